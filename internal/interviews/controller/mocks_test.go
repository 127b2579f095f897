package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"

	e "github.com/gartstein/interviews/internal/interviews/errors"
	"github.com/gartstein/interviews/internal/interviews/events"
	"github.com/gartstein/interviews/internal/interviews/models"
)

// memoryStore is an in-memory Store. gate, when set, holds inserts until it
// is closed; the fail* funcs inject errors per call.
type memoryStore struct {
	mu        sync.Mutex
	nextID    int
	companies map[string]*models.Company
	calls     []string

	gate               chan struct{}
	listErr            error
	afterList          func()
	failInsertCompany  func(models.Company) error
	failInsertQuestion func(models.Question) error

	questionParents map[string]string
	answerWrites    map[string][][]models.Answer
	deletedBatches  [][]string
	scheduleDeletes []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		companies:       make(map[string]*models.Company),
		questionParents: make(map[string]string),
		answerWrites:    make(map[string][][]models.Answer),
	}
}

func (s *memoryStore) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func (s *memoryStore) wait() {
	if s.gate != nil {
		<-s.gate
	}
}

func (s *memoryStore) record(call string) {
	s.calls = append(s.calls, call)
}

func (s *memoryStore) callCount(call string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == call {
			n++
		}
	}
	return n
}

// seed stores a company as if it had been persisted earlier.
func (s *memoryStore) seed(c models.Company) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c = c.Clone()
	s.companies[c.ID] = &c
	for _, q := range c.Questions {
		s.questionParents[q.ID] = c.ID
	}
}

func (s *memoryStore) ListCompanies(_ context.Context, _ string) ([]models.Company, error) {
	s.mu.Lock()
	s.record("list")
	if s.listErr != nil {
		s.mu.Unlock()
		return nil, s.listErr
	}
	out := make([]models.Company, 0, len(s.companies))
	for _, c := range s.companies {
		out = append(out, c.Clone())
	}
	afterList := s.afterList
	s.mu.Unlock()

	if afterList != nil {
		afterList()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryStore) InsertCompany(_ context.Context, _ string, company models.Company) (string, error) {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("insert_company")
	if s.failInsertCompany != nil {
		if err := s.failInsertCompany(company); err != nil {
			return "", err
		}
	}
	c := company.Clone()
	c.ID = s.id("company")
	s.companies[c.ID] = &c
	return c.ID, nil
}

func (s *memoryStore) UpdateCompany(_ context.Context, id string, in models.CompanyInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("update_company")
	c, ok := s.companies[id]
	if !ok {
		return e.ErrNotFound
	}
	c.Name, c.JobDate, c.JobLink = in.Name, in.JobDate, in.JobLink
	return nil
}

func (s *memoryStore) DeleteCompany(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("delete_company")
	if _, ok := s.companies[id]; !ok {
		return e.ErrNotFound
	}
	delete(s.companies, id)
	return nil
}

func (s *memoryStore) InsertQuestion(_ context.Context, companyID string, question models.Question) (string, error) {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("insert_question")
	if s.failInsertQuestion != nil {
		if err := s.failInsertQuestion(question); err != nil {
			return "", err
		}
	}
	c, ok := s.companies[companyID]
	if !ok {
		return "", e.ErrNotFound
	}
	q := question.Clone()
	q.ID = s.id("question")
	q.CompanyID = companyID
	c.Questions = append(c.Questions, q)
	s.questionParents[q.ID] = companyID
	return q.ID, nil
}

func (s *memoryStore) DeleteQuestions(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("delete_questions")
	s.deletedBatches = append(s.deletedBatches, append([]string{}, ids...))
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	for _, c := range s.companies {
		kept := c.Questions[:0]
		for _, q := range c.Questions {
			if !drop[q.ID] {
				kept = append(kept, q)
			}
		}
		c.Questions = kept
	}
	return nil
}

func (s *memoryStore) SaveAnswers(_ context.Context, questionID string, answers []models.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("save_answers")
	parent, ok := s.questionParents[questionID]
	if !ok {
		return e.ErrNotFound
	}
	s.answerWrites[questionID] = append(s.answerWrites[questionID], append([]models.Answer{}, answers...))
	c := s.companies[parent]
	for i := range c.Questions {
		if c.Questions[i].ID == questionID {
			c.Questions[i].Answers = append([]models.Answer{}, answers...)
		}
	}
	return nil
}

func (s *memoryStore) InsertSchedule(_ context.Context, companyID string, schedule models.Schedule) (string, error) {
	s.wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("insert_schedule")
	c, ok := s.companies[companyID]
	if !ok {
		return "", e.ErrNotFound
	}
	schedule.ID = s.id("schedule")
	schedule.CompanyID = companyID
	c.Schedules = append(c.Schedules, schedule)
	return schedule.ID, nil
}

func (s *memoryStore) DeleteSchedule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("delete_schedule")
	s.scheduleDeletes = append(s.scheduleDeletes, id)
	return nil
}

func (s *memoryStore) company(id string) (models.Company, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[id]
	if !ok {
		return models.Company{}, false
	}
	return c.Clone(), true
}

// recordingProducer collects produced events.
type recordingProducer struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingProducer) Produce(event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingProducer) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}
