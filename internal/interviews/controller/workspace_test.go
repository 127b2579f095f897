package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	e "github.com/gartstein/interviews/internal/interviews/errors"
	"github.com/gartstein/interviews/internal/interviews/events"
	"github.com/gartstein/interviews/internal/interviews/models"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestWorkspace(t *testing.T, store *memoryStore, opts ...Option) (*Workspace, *recordingProducer) {
	t.Helper()
	producer := &recordingProducer{}
	w := NewWorkspace(store, producer, "user-1", zaptest.NewLogger(t), opts...)
	t.Cleanup(w.Wait)
	return w, producer
}

func seedCompany(store *memoryStore, id, name string, created time.Time, questions ...models.Question) models.Company {
	c := models.Company{ID: id, Name: name, CreatedAt: created, Questions: questions}
	store.seed(c)
	return c
}

func ids(companies []models.Company) []string {
	out := make([]string, 0, len(companies))
	for _, c := range companies {
		out = append(out, c.ID)
	}
	return out
}

func TestWorkspace_AddCompany_ReplacesTemporaryIDs(t *testing.T) {
	store := newMemoryStore()
	w, producer := newTestWorkspace(t, store)

	const n = 5
	for i := 0; i < n; i++ {
		c, err := w.AddCompany(fmt.Sprintf("Company %d", i), "", "")
		require.NoError(t, err)
		assert.True(t, IsTemporary(c.ID))
		assert.Empty(t, c.Questions)
	}

	// Visible at once, newest first.
	companies := w.Companies()
	require.Len(t, companies, n)
	assert.Equal(t, "Company 4", companies[0].Name)

	w.Wait()

	companies = w.Companies()
	require.Len(t, companies, n)
	seen := map[string]bool{}
	for _, c := range companies {
		assert.False(t, IsTemporary(c.ID), "temporary id left after insert resolved: %s", c.ID)
		assert.False(t, seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true
	}
	assert.Equal(t, "Company 4", companies[0].Name, "resolution keeps display order")
	assert.Len(t, producer.types(), n)
}

func TestWorkspace_GetCompanyAcceptsTemporaryID(t *testing.T) {
	store := newMemoryStore()
	w, _ := newTestWorkspace(t, store)

	created, err := w.AddCompany("Acme", "2026-03-01", "https://acme.example/jobs/1")
	require.NoError(t, err)
	w.Wait()

	byTemp, ok := w.GetCompany(created.ID)
	require.True(t, ok)
	assert.False(t, IsTemporary(byTemp.ID))

	byID, ok := w.GetCompany(byTemp.ID)
	require.True(t, ok)
	assert.Equal(t, byTemp, byID)

	_, ok = w.GetCompany("missing")
	assert.False(t, ok)
}

func TestWorkspace_AddCompany_Validation(t *testing.T) {
	store := newMemoryStore()
	w, _ := newTestWorkspace(t, store)

	_, err := w.AddCompany("   ", "", "")
	assert.ErrorIs(t, err, e.ErrInvalidInput)

	_, err = w.AddCompany("Acme", "03/01/2026", "")
	assert.ErrorIs(t, err, e.ErrInvalidInput)

	w.Wait()
	assert.Empty(t, w.Companies())
	assert.Zero(t, store.callCount("insert_company"))
}

func TestWorkspace_AddCompany_RemoteFailureKeepsOptimisticEntry(t *testing.T) {
	store := newMemoryStore()
	store.failInsertCompany = func(models.Company) error { return errors.New("connection reset") }
	core, recorded := observer.New(zap.ErrorLevel)
	producer := &recordingProducer{}
	w := NewWorkspace(store, producer, "user-1", zap.New(core))

	c, err := w.AddCompany("Acme", "", "")
	require.NoError(t, err)
	w.Wait()

	got, ok := w.GetCompany(c.ID)
	require.True(t, ok, "optimistic entry is not rolled back")
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, 1, recorded.FilterMessage("Remote write failed").Len())
	assert.Empty(t, producer.types())
}

func TestWorkspace_DeleteCompany_RemovesOnlyThatCompany(t *testing.T) {
	store := newMemoryStore()
	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		seedCompany(store, fmt.Sprintf("c%d", i), fmt.Sprintf("Company %d", i), base.Add(time.Duration(i)*time.Hour))
	}
	w, producer := newTestWorkspace(t, store)
	require.NoError(t, w.Load(context.Background()))
	require.Equal(t, []string{"c3", "c2", "c1", "c0"}, ids(w.Companies()))

	require.NoError(t, w.DeleteCompany("c2"))
	assert.Equal(t, []string{"c3", "c1", "c0"}, ids(w.Companies()))

	require.NoError(t, w.DeleteCompany("c0"))
	assert.Equal(t, []string{"c3", "c1"}, ids(w.Companies()))

	assert.ErrorIs(t, w.DeleteCompany("c2"), e.ErrNotFound)

	w.Wait()
	_, ok := store.company("c2")
	assert.False(t, ok)
	_, ok = store.company("c1")
	assert.True(t, ok)
	assert.Equal(t, []events.EventType{events.CompanyDeleted, events.CompanyDeleted}, producer.types())
}

func TestWorkspace_DeleteCompanyWhileInsertPending(t *testing.T) {
	store := newMemoryStore()
	store.gate = make(chan struct{})
	w, _ := newTestWorkspace(t, store)

	c, err := w.AddCompany("Acme", "", "")
	require.NoError(t, err)
	require.NoError(t, w.DeleteCompany(c.ID))
	assert.Empty(t, w.Companies())

	close(store.gate)
	w.Wait()

	assert.Equal(t, 1, store.callCount("delete_company"), "delete targets the id assigned by the insert")
	companies, err := store.ListCompanies(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, companies)
}

func TestWorkspace_UpdateCompany(t *testing.T) {
	store := newMemoryStore()
	seedCompany(store, "c1", "Acme", time.Now())
	w, _ := newTestWorkspace(t, store)
	require.NoError(t, w.Load(context.Background()))

	require.NoError(t, w.UpdateCompany("c1", "Acme Corp", "2026-04-01", "https://acme.example"))
	got, _ := w.GetCompany("c1")
	assert.Equal(t, "Acme Corp", got.Name)
	assert.Equal(t, "2026-04-01", got.JobDate)

	assert.ErrorIs(t, w.UpdateCompany("missing", "X", "", ""), e.ErrNotFound)
	assert.ErrorIs(t, w.UpdateCompany("c1", "", "", ""), e.ErrInvalidInput)

	w.Wait()
	stored, _ := store.company("c1")
	assert.Equal(t, "Acme Corp", stored.Name)
	assert.Equal(t, "https://acme.example", stored.JobLink)
}

func TestWorkspace_AddQuestion_OnlyTouchesTargetCompany(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	seedCompany(store, "c1", "Acme", now.Add(-time.Hour),
		models.Question{ID: "q1", CompanyID: "c1", Text: "Why us?", Answers: []models.Answer{}, Categories: []string{}})
	seedCompany(store, "c2", "Globex", now)
	w, _ := newTestWorkspace(t, store)
	require.NoError(t, w.Load(context.Background()))
	before, _ := w.GetCompany("c1")

	q, err := w.AddQuestion("c2", models.QuestionInput{
		Text:       "Tell me about a conflict",
		Categories: []string{"conflict", " conflict ", ""},
		LimitType:  models.LimitChar,
		LimitCount: 500,
	})
	require.NoError(t, err)
	assert.True(t, IsTemporary(q.ID))
	assert.Equal(t, []string{"conflict"}, q.Categories)

	after, _ := w.GetCompany("c1")
	assert.Equal(t, before, after)

	target, _ := w.GetCompany("c2")
	require.Len(t, target.Questions, 1)
	assert.Equal(t, "Tell me about a conflict", target.Questions[0].Text)

	w.Wait()
	target, _ = w.GetCompany("c2")
	require.Len(t, target.Questions, 1)
	assert.False(t, IsTemporary(target.Questions[0].ID))
	after, _ = w.GetCompany("c1")
	assert.Equal(t, before, after)
}

func TestWorkspace_AddQuestion_WaitsForParentInsert(t *testing.T) {
	store := newMemoryStore()
	store.gate = make(chan struct{})
	w, producer := newTestWorkspace(t, store)

	c, err := w.AddCompany("Acme", "", "")
	require.NoError(t, err)
	q, err := w.AddQuestion(c.ID, models.QuestionInput{Text: "Tell me about yourself"})
	require.NoError(t, err)
	assert.Equal(t, c.ID, q.CompanyID)

	close(store.gate)
	w.Wait()

	resolved, ok := w.GetCompany(c.ID)
	require.True(t, ok)
	require.Len(t, resolved.Questions, 1)
	stored, ok := store.company(resolved.ID)
	require.True(t, ok)
	require.Len(t, stored.Questions, 1)
	assert.Equal(t, resolved.Questions[0].ID, stored.Questions[0].ID)
	assert.Equal(t, resolved.ID, resolved.Questions[0].CompanyID)
	assert.ElementsMatch(t, []events.EventType{events.CompanyCreated, events.QuestionCreated}, producer.types())
}

func TestWorkspace_AddQuestion_ParentInsertFailed(t *testing.T) {
	store := newMemoryStore()
	store.failInsertCompany = func(models.Company) error { return errors.New("timeout") }
	core, recorded := observer.New(zap.ErrorLevel)
	w := NewWorkspace(store, nil, "user-1", zap.New(core))

	c, err := w.AddCompany("Acme", "", "")
	require.NoError(t, err)
	_, err = w.AddQuestion(c.ID, models.QuestionInput{Text: "Why?"})
	require.NoError(t, err)
	w.Wait()

	assert.Zero(t, store.callCount("insert_question"))
	assert.Equal(t, 2, recorded.FilterMessage("Remote write failed").Len())
	got, _ := w.GetCompany(c.ID)
	assert.Len(t, got.Questions, 1)
}

func TestWorkspace_AddQuestion_Validation(t *testing.T) {
	store := newMemoryStore()
	seedCompany(store, "c1", "Acme", time.Now())
	w, _ := newTestWorkspace(t, store)
	require.NoError(t, w.Load(context.Background()))

	tests := []struct {
		name string
		in   models.QuestionInput
		want error
	}{
		{"blank text", models.QuestionInput{Text: " "}, e.ErrInvalidInput},
		{"type without count", models.QuestionInput{Text: "Q", LimitType: models.LimitByte}, e.ErrInvalidInput},
		{"count without type", models.QuestionInput{Text: "Q", LimitCount: 10}, e.ErrInvalidInput},
		{"unknown type", models.QuestionInput{Text: "Q", LimitType: "word", LimitCount: 10}, e.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.AddQuestion("c1", tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := w.AddQuestion("missing", models.QuestionInput{Text: "Q"})
	assert.ErrorIs(t, err, e.ErrNotFound)

	got, _ := w.GetCompany("c1")
	assert.Empty(t, got.Questions)
}

func TestWorkspace_DeleteQuestions_SingleBatch(t *testing.T) {
	store := newMemoryStore()
	seedCompany(store, "c1", "Acme", time.Now(),
		models.Question{ID: "q1", CompanyID: "c1", Text: "One"},
		models.Question{ID: "q2", CompanyID: "c1", Text: "Two"},
		models.Question{ID: "q3", CompanyID: "c1", Text: "Three"},
	)
	seedCompany(store, "c2", "Globex", time.Now().Add(-time.Hour),
		models.Question{ID: "q4", CompanyID: "c2", Text: "Four"},
	)
	w, producer := newTestWorkspace(t, store)
	require.NoError(t, w.Load(context.Background()))

	// q4 belongs to another company and is left alone.
	require.NoError(t, w.DeleteQuestions("c1", []string{"q1", "q3", "q4"}))

	got, _ := w.GetCompany("c1")
	require.Len(t, got.Questions, 1)
	assert.Equal(t, "q2", got.Questions[0].ID)
	other, _ := w.GetCompany("c2")
	assert.Len(t, other.Questions, 1)

	w.Wait()
	require.Len(t, store.deletedBatches, 1)
	assert.Equal(t, []string{"q1", "q3"}, store.deletedBatches[0])
	assert.Equal(t, []events.EventType{events.QuestionsDeleted}, producer.types())
}

func TestWorkspace_AcmeScenario(t *testing.T) {
	store := newMemoryStore()
	w, _ := newTestWorkspace(t, store)

	acme, err := w.AddCompany("Acme", "", "")
	require.NoError(t, err)
	q, err := w.AddQuestion(acme.ID, models.QuestionInput{Text: "Tell me about yourself"})
	require.NoError(t, err)
	assert.Nil(t, q.Limit)

	_, err = w.AddAnswer(acme.ID, q.ID, "I am a developer.")
	require.NoError(t, err)

	got, ok := w.GetCompany(acme.ID)
	require.True(t, ok)
	require.Len(t, got.Questions, 1)
	require.Len(t, got.Questions[0].Answers, 1)
	assert.Equal(t, "I am a developer.", got.Questions[0].Answers[0].Content)

	w.Wait()

	got, _ = w.GetCompany(acme.ID)
	stored, ok := store.company(got.ID)
	require.True(t, ok)
	require.Len(t, stored.Questions, 1)
	require.Len(t, stored.Questions[0].Answers, 1)
	assert.Equal(t, "I am a developer.", stored.Questions[0].Answers[0].Content)
}

func TestWorkspace_UpdateAnswer_KeepsCreatedAtAndSiblings(t *testing.T) {
	store := newMemoryStore()
	clock := newTestClock()
	seedCompany(store, "c1", "Acme", clock.Now(),
		models.Question{ID: "q1", CompanyID: "c1", Text: "Why us?", Answers: []models.Answer{}})
	w, _ := newTestWorkspace(t, store, WithClock(clock.Now))
	require.NoError(t, w.Load(context.Background()))

	first, err := w.AddAnswer("c1", "q1", "Because of the product.")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, first.UpdatedAt)
	clock.Advance(time.Minute)
	second, err := w.AddAnswer("c1", "q1", "Because of the team.")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	require.NoError(t, w.UpdateAnswer("c1", "q1", first.ID, "Because of the mission."))

	got, _ := w.GetCompany("c1")
	answers := got.Questions[0].Answers
	require.Len(t, answers, 2)
	assert.Equal(t, "Because of the mission.", answers[0].Content)
	assert.Equal(t, first.CreatedAt, answers[0].CreatedAt)
	assert.Equal(t, clock.Now(), answers[0].UpdatedAt)
	assert.True(t, answers[0].UpdatedAt.After(first.UpdatedAt))
	assert.Equal(t, second, answers[1])

	assert.ErrorIs(t, w.UpdateAnswer("c1", "q1", "missing", "x"), e.ErrNotFound)
	assert.ErrorIs(t, w.UpdateAnswer("c1", "q1", first.ID, " "), e.ErrInvalidInput)

	w.Wait()
	writes := store.answerWrites["q1"]
	require.Len(t, writes, 3, "every change writes the whole answer document")
	assert.Len(t, writes[2], 2)
}

func TestWorkspace_DeleteAnswer(t *testing.T) {
	store := newMemoryStore()
	seedCompany(store, "c1", "Acme", time.Now(),
		models.Question{ID: "q1", CompanyID: "c1", Text: "Why us?", Answers: []models.Answer{
			{ID: "a1", Content: "one"}, {ID: "a2", Content: "two"},
		}})
	w, _ := newTestWorkspace(t, store)
	require.NoError(t, w.Load(context.Background()))

	require.NoError(t, w.DeleteAnswer("c1", "q1", "a1"))
	got, _ := w.GetCompany("c1")
	require.Len(t, got.Questions[0].Answers, 1)
	assert.Equal(t, "a2", got.Questions[0].Answers[0].ID)

	assert.ErrorIs(t, w.DeleteAnswer("c1", "q1", "a1"), e.ErrNotFound)
	assert.ErrorIs(t, w.DeleteAnswer("c1", "q9", "a2"), e.ErrNotFound)
}

func TestWorkspace_AnswerOnTemporaryQuestion(t *testing.T) {
	store := newMemoryStore()
	store.gate = make(chan struct{})
	w, _ := newTestWorkspace(t, store)

	c, _ := w.AddCompany("Acme", "", "")
	q, _ := w.AddQuestion(c.ID, models.QuestionInput{Text: "Why?"})
	_, err := w.AddAnswer(c.ID, q.ID, "Because.")
	require.NoError(t, err)

	close(store.gate)
	w.Wait()

	got, _ := w.GetCompany(c.ID)
	realQuestionID := got.Questions[0].ID
	require.False(t, IsTemporary(realQuestionID))
	require.Len(t, store.answerWrites[realQuestionID], 1)

	// The temporary ids keep working after resolution.
	require.NoError(t, w.UpdateAnswer(c.ID, q.ID, got.Questions[0].Answers[0].ID, "Because I care."))
	w.Wait()
	assert.Len(t, store.answerWrites[realQuestionID], 2)
}

func TestWorkspace_Schedules(t *testing.T) {
	store := newMemoryStore()
	seedCompany(store, "c1", "Acme", time.Now())
	w, producer := newTestWorkspace(t, store)
	require.NoError(t, w.Load(context.Background()))

	s, err := w.AddSchedule("c1", models.ScheduleInput{Title: "Coding test", Date: "2026-03-10", Time: "14:00"})
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleScreening, s.Type)
	assert.Equal(t, "2026-03-10T14:00", s.Date)

	_, err = w.AddSchedule("c1", models.ScheduleInput{Title: "", Date: "2026-03-10"})
	assert.ErrorIs(t, err, e.ErrInvalidInput)

	w.Wait()
	require.NoError(t, w.DeleteSchedule("c1", s.ID))
	got, _ := w.GetCompany("c1")
	assert.Empty(t, got.Schedules)
	assert.ErrorIs(t, w.DeleteSchedule("c1", s.ID), e.ErrNotFound)

	w.Wait()
	stored, _ := store.company("c1")
	require.Len(t, stored.Schedules, 1)
	assert.Equal(t, []string{stored.Schedules[0].ID}, store.scheduleDeletes, "delete targets the store id")
	assert.Equal(t, []events.EventType{events.ScheduleCreated, events.ScheduleDeleted}, producer.types())
}

func TestWorkspace_LoadStates(t *testing.T) {
	store := newMemoryStore()
	seedCompany(store, "c1", "Acme", time.Now())
	w, _ := newTestWorkspace(t, store)

	assert.Equal(t, StateNoSession, w.State())
	assert.False(t, w.Loading())

	var loadingDuringLoad bool
	unsubscribe := w.Subscribe(func(c Change) {
		if c.Type == ChangeLoaded {
			loadingDuringLoad = w.Loading()
		}
	})
	defer unsubscribe()

	require.NoError(t, w.Load(context.Background()))
	assert.Equal(t, StateLoaded, w.State())
	assert.False(t, w.Loading())
	assert.False(t, loadingDuringLoad)
	assert.Len(t, w.Companies(), 1)
}

func TestWorkspace_LoadFailureKeepsState(t *testing.T) {
	store := newMemoryStore()
	seedCompany(store, "c1", "Acme", time.Now())
	core, recorded := observer.New(zap.ErrorLevel)
	w := NewWorkspace(store, nil, "user-1", zap.New(core))
	require.NoError(t, w.Load(context.Background()))

	store.listErr = errors.New("service unavailable")
	err := w.Load(context.Background())

	assert.Error(t, err)
	assert.Equal(t, StateLoaded, w.State())
	assert.False(t, w.Loading())
	assert.Equal(t, []string{"c1"}, ids(w.Companies()))
	assert.Equal(t, 1, recorded.FilterMessage("Failed to load companies").Len())
}

func TestWorkspace_LoadKeepsPendingInserts(t *testing.T) {
	store := newMemoryStore()
	seedCompany(store, "c1", "Acme", time.Now().Add(-time.Hour))
	store.gate = make(chan struct{})
	w, _ := newTestWorkspace(t, store)

	pending, err := w.AddCompany("Globex", "", "")
	require.NoError(t, err)
	require.NoError(t, w.Load(context.Background()))

	assert.Equal(t, []string{pending.ID, "c1"}, ids(w.Companies()))

	close(store.gate)
	w.Wait()
	companies := w.Companies()
	require.Len(t, companies, 2)
	assert.False(t, IsTemporary(companies[0].ID))
}

func TestWorkspace_LoadKeepsInsertsSettledDuringFetch(t *testing.T) {
	store := newMemoryStore()
	seedCompany(store, "c1", "Acme", time.Now().Add(-time.Hour))
	w, _ := newTestWorkspace(t, store)
	require.NoError(t, w.Load(context.Background()))
	store.gate = make(chan struct{})

	company, err := w.AddCompany("Globex", "", "")
	require.NoError(t, err)
	question, err := w.AddQuestion("c1", models.QuestionInput{Text: "Why Acme?"})
	require.NoError(t, err)
	schedule, err := w.AddSchedule("c1", models.ScheduleInput{Title: "Onsite", Date: "2026-03-10"})
	require.NoError(t, err)

	// The inserts land after the snapshot was taken but before it is merged.
	store.afterList = func() {
		close(store.gate)
		w.Wait()
	}
	require.NoError(t, w.Load(context.Background()))

	companies := w.Companies()
	require.Len(t, companies, 2)
	assert.Equal(t, "Globex", companies[0].Name)
	assert.False(t, IsTemporary(companies[0].ID))
	resolved, ok := w.GetCompany(company.ID)
	require.True(t, ok, "temporary id still resolves")
	assert.Equal(t, companies[0].ID, resolved.ID)

	acme, ok := w.GetCompany("c1")
	require.True(t, ok)
	require.Len(t, acme.Questions, 1)
	assert.Equal(t, question.Text, acme.Questions[0].Text)
	require.Len(t, acme.Schedules, 1)
	assert.Equal(t, schedule.Title, acme.Schedules[0].Title)

	// A later load sees them in the store and does not duplicate them.
	store.afterList = nil
	require.NoError(t, w.Load(context.Background()))
	assert.Len(t, w.Companies(), 2)
	acme, _ = w.GetCompany("c1")
	assert.Len(t, acme.Questions, 1)
	assert.Len(t, acme.Schedules, 1)
}

func TestWorkspace_LoadDropsEntitiesGoneFromStore(t *testing.T) {
	store := newMemoryStore()
	seedCompany(store, "c1", "Acme", time.Now().Add(-time.Hour))
	w, _ := newTestWorkspace(t, store)

	_, err := w.AddCompany("Globex", "", "")
	require.NoError(t, err)
	w.Wait()
	require.NoError(t, w.Load(context.Background()))
	require.Len(t, w.Companies(), 2)

	store.mu.Lock()
	for id, c := range store.companies {
		if c.Name == "Globex" {
			delete(store.companies, id)
		}
	}
	store.mu.Unlock()

	require.NoError(t, w.Load(context.Background()))
	assert.Equal(t, []string{"c1"}, ids(w.Companies()))
}

func TestWorkspace_CloseClearsState(t *testing.T) {
	store := newMemoryStore()
	seedCompany(store, "c1", "Acme", time.Now())
	w, _ := newTestWorkspace(t, store)
	require.NoError(t, w.Load(context.Background()))

	var changes []ChangeType
	w.Subscribe(func(c Change) { changes = append(changes, c.Type) })

	w.Close()

	assert.Equal(t, StateNoSession, w.State())
	assert.Empty(t, w.Companies())
	_, ok := w.GetCompany("c1")
	assert.False(t, ok)
	_, err := w.AddCompany("Acme", "", "")
	assert.ErrorIs(t, err, e.ErrUnauthenticated)
	assert.ErrorIs(t, w.DeleteCompany("c1"), e.ErrUnauthenticated)
	assert.ErrorIs(t, w.Load(context.Background()), e.ErrUnauthenticated)
	assert.Equal(t, []ChangeType{ChangeCleared}, changes)
}

func TestWorkspace_CloseWithInsertInFlight(t *testing.T) {
	store := newMemoryStore()
	store.gate = make(chan struct{})
	w, _ := newTestWorkspace(t, store)

	_, err := w.AddCompany("Acme", "", "")
	require.NoError(t, err)
	w.Close()

	close(store.gate)
	w.Wait()
	assert.Empty(t, w.Companies())
}

func TestWorkspace_Subscribe(t *testing.T) {
	store := newMemoryStore()
	w, _ := newTestWorkspace(t, store)

	var mu sync.Mutex
	var changes []Change
	unsubscribe := w.Subscribe(func(c Change) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, c)
	})

	c, err := w.AddCompany("Acme", "", "")
	require.NoError(t, err)
	w.Wait()
	unsubscribe()
	_, err = w.AddCompany("Globex", "", "")
	require.NoError(t, err)
	w.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, changes, 2)
	assert.Equal(t, ChangeCompanyAdded, changes[0].Type)
	assert.Equal(t, ChangeIDResolved, changes[1].Type)
	assert.Equal(t, c.ID, changes[1].TempID)
	assert.False(t, IsTemporary(changes[1].CompanyID))
}

func TestWorkspace_EventsCarryOwner(t *testing.T) {
	store := newMemoryStore()
	w, producer := newTestWorkspace(t, store)

	_, err := w.AddCompany("Acme", "", "")
	require.NoError(t, err)
	w.Wait()

	producer.mu.Lock()
	defer producer.mu.Unlock()
	require.Len(t, producer.events, 1)
	ev := producer.events[0]
	assert.Equal(t, events.CompanyCreated, ev.Type)
	assert.Equal(t, "user-1", ev.UserID)
	assert.False(t, IsTemporary(ev.CompanyID))
}
