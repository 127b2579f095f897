package controller

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	e "github.com/gartstein/interviews/internal/interviews/errors"
	"github.com/gartstein/interviews/internal/interviews/events"
	"github.com/gartstein/interviews/internal/interviews/models"
)

// AddCompany prepends a new company under a temporary id and inserts it in
// the background.
func (w *Workspace) AddCompany(name, jobDate, jobLink string) (models.Company, error) {
	in := models.CompanyInput{Name: strings.TrimSpace(name), JobDate: jobDate, JobLink: jobLink}
	if err := in.Validate(); err != nil {
		return models.Company{}, fmt.Errorf("%w: %v", e.ErrInvalidInput, err)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return models.Company{}, e.ErrUnauthenticated
	}
	tempID := newTempID()
	entry := &companyEntry{
		company: models.Company{
			ID:        tempID,
			Name:      in.Name,
			JobDate:   in.JobDate,
			JobLink:   in.JobLink,
			CreatedAt: w.now(),
		},
		remote: pendingRemote(),
	}
	w.companies[tempID] = entry
	w.order = append([]string{tempID}, w.order...)
	snapshot := w.snapshotLocked(entry)
	w.mu.Unlock()

	w.metrics.RecordMutation("add_company")
	w.emit(Change{Type: ChangeCompanyAdded, CompanyID: tempID})

	w.goRemote("insert_company", []zap.Field{zap.String("company_id", tempID)}, func() error {
		ctx, cancel := w.remoteContext()
		defer cancel()
		id, err := w.store.InsertCompany(ctx, w.userID, snapshot)
		w.resolveCompany(entry, tempID, id, err)
		if err != nil {
			return err
		}
		w.publish(events.CompanyCreated, id)
		return nil
	})

	return snapshot, nil
}

// UpdateCompany replaces the editable fields of a company.
func (w *Workspace) UpdateCompany(id, name, jobDate, jobLink string) error {
	in := models.CompanyInput{Name: strings.TrimSpace(name), JobDate: jobDate, JobLink: jobLink}
	if err := in.Validate(); err != nil {
		return fmt.Errorf("%w: %v", e.ErrInvalidInput, err)
	}

	w.mu.Lock()
	entry, err := w.companyLocked(id)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	entry.company.Name = in.Name
	entry.company.JobDate = in.JobDate
	entry.company.JobLink = in.JobLink
	current := entry.company.ID
	w.mu.Unlock()

	w.metrics.RecordMutation("update_company")
	w.emit(Change{Type: ChangeCompanyUpdated, CompanyID: current})

	w.goRemote("update_company", []zap.Field{zap.String("company_id", current)}, func() error {
		companyID, ok := await(entry.remote)
		if !ok {
			return errNotPersisted
		}
		ctx, cancel := w.remoteContext()
		defer cancel()
		if err := w.store.UpdateCompany(ctx, companyID, in); err != nil {
			return err
		}
		w.publish(events.CompanyUpdated, companyID)
		return nil
	})
	return nil
}

// DeleteCompany drops a company with its questions and schedules from the
// workspace. The store cascades the delete to child rows.
func (w *Workspace) DeleteCompany(id string) error {
	w.mu.Lock()
	entry, err := w.companyLocked(id)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	key := entry.company.ID
	delete(w.companies, key)
	w.order = removeKeys(w.order, map[string]bool{key: true})
	for _, qk := range entry.questions {
		delete(w.questions, qk)
	}
	for _, sk := range entry.schedules {
		delete(w.schedules, sk)
	}
	w.mu.Unlock()

	w.metrics.RecordMutation("delete_company")
	w.emit(Change{Type: ChangeCompanyDeleted, CompanyID: key})

	w.goRemote("delete_company", []zap.Field{zap.String("company_id", key)}, func() error {
		companyID, ok := await(entry.remote)
		if !ok {
			return nil
		}
		ctx, cancel := w.remoteContext()
		defer cancel()
		if err := w.store.DeleteCompany(ctx, companyID); err != nil {
			return err
		}
		w.publish(events.CompanyDeleted, companyID)
		return nil
	})
	return nil
}

// AddQuestion appends a question to one company. When the company itself
// is still being inserted, the question insert waits for its store id.
func (w *Workspace) AddQuestion(companyID string, in models.QuestionInput) (models.Question, error) {
	if err := in.Validate(); err != nil {
		return models.Question{}, fmt.Errorf("%w: %v", e.ErrInvalidInput, err)
	}

	w.mu.Lock()
	entry, err := w.companyLocked(companyID)
	if err != nil {
		w.mu.Unlock()
		return models.Question{}, err
	}
	tempID := newTempID()
	var order *int
	if in.Order != nil {
		o := *in.Order
		order = &o
	}
	qe := &questionEntry{
		question: models.Question{
			ID:         tempID,
			CompanyID:  entry.company.ID,
			Order:      order,
			Text:       strings.TrimSpace(in.Text),
			Answers:    []models.Answer{},
			Categories: models.NormalizeCategories(in.Categories),
			Limit:      in.Limit(),
			CreatedAt:  w.now(),
		},
		owner:  entry,
		remote: pendingRemote(),
	}
	w.questions[tempID] = qe
	entry.questions = append(entry.questions, tempID)
	snapshot := qe.question.Clone()
	w.mu.Unlock()

	w.metrics.RecordMutation("add_question")
	w.emit(Change{Type: ChangeQuestionAdded, CompanyID: snapshot.CompanyID, IDs: []string{tempID}})

	w.goRemote("insert_question", []zap.Field{zap.String("question_id", tempID)}, func() error {
		parentID, ok := await(entry.remote)
		if !ok {
			w.resolveQuestion(qe, tempID, "", errNotPersisted)
			return errNotPersisted
		}
		ctx, cancel := w.remoteContext()
		defer cancel()
		id, err := w.store.InsertQuestion(ctx, parentID, snapshot)
		w.resolveQuestion(qe, tempID, id, err)
		if err != nil {
			return err
		}
		w.publish(events.QuestionCreated, parentID, id)
		return nil
	})

	return snapshot, nil
}

// DeleteQuestions removes the given questions of one company in a single
// update and issues one batch delete.
func (w *Workspace) DeleteQuestions(companyID string, ids []string) error {
	w.mu.Lock()
	entry, err := w.companyLocked(companyID)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	drop := make(map[string]bool, len(ids))
	var remotes []*remote
	var removed []string
	for _, id := range ids {
		qe, err := w.questionLocked(entry, id)
		if err != nil {
			continue
		}
		key := qe.question.ID
		if drop[key] {
			continue
		}
		drop[key] = true
		delete(w.questions, key)
		remotes = append(remotes, qe.remote)
		removed = append(removed, key)
	}
	if len(removed) == 0 {
		w.mu.Unlock()
		return nil
	}
	entry.questions = removeKeys(entry.questions, drop)
	current := entry.company.ID
	w.mu.Unlock()

	w.metrics.RecordMutation("delete_questions")
	w.emit(Change{Type: ChangeQuestionsDeleted, CompanyID: current, IDs: removed})

	w.goRemote("delete_questions", []zap.Field{zap.Strings("question_ids", removed)}, func() error {
		persisted := make([]string, 0, len(remotes))
		for _, r := range remotes {
			if id, ok := await(r); ok {
				persisted = append(persisted, id)
			}
		}
		if len(persisted) == 0 {
			return nil
		}
		ctx, cancel := w.remoteContext()
		defer cancel()
		if err := w.store.DeleteQuestions(ctx, persisted); err != nil {
			return err
		}
		parentID, _ := await(entry.remote)
		w.publish(events.QuestionsDeleted, parentID, persisted...)
		return nil
	})
	return nil
}

// AddAnswer appends an answer to a question. Answers are persisted as one
// document per question, so the whole collection is written.
func (w *Workspace) AddAnswer(companyID, questionID, content string) (models.Answer, error) {
	if strings.TrimSpace(content) == "" {
		return models.Answer{}, fmt.Errorf("%w: answer content is required", e.ErrInvalidInput)
	}

	var added models.Answer
	err := w.changeAnswers("add_answer", companyID, questionID, func(answers []models.Answer) ([]models.Answer, error) {
		now := w.now()
		added = models.Answer{ID: uuid.NewString(), Content: content, CreatedAt: now, UpdatedAt: now}
		return append(answers, added), nil
	})
	if err != nil {
		return models.Answer{}, err
	}
	return added, nil
}

// UpdateAnswer replaces the content of one answer and bumps its update time.
func (w *Workspace) UpdateAnswer(companyID, questionID, answerID, content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: answer content is required", e.ErrInvalidInput)
	}

	return w.changeAnswers("update_answer", companyID, questionID, func(answers []models.Answer) ([]models.Answer, error) {
		for i := range answers {
			if answers[i].ID == answerID {
				answers[i].Content = content
				answers[i].UpdatedAt = w.now()
				return answers, nil
			}
		}
		return nil, e.ErrNotFound
	})
}

func (w *Workspace) DeleteAnswer(companyID, questionID, answerID string) error {
	return w.changeAnswers("delete_answer", companyID, questionID, func(answers []models.Answer) ([]models.Answer, error) {
		for i := range answers {
			if answers[i].ID == answerID {
				return append(answers[:i], answers[i+1:]...), nil
			}
		}
		return nil, e.ErrNotFound
	})
}

// changeAnswers applies edit to a copy of the question's answers, stores the
// result locally and writes that snapshot to the store.
func (w *Workspace) changeAnswers(op, companyID, questionID string, edit func([]models.Answer) ([]models.Answer, error)) error {
	w.mu.Lock()
	entry, err := w.companyLocked(companyID)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	qe, err := w.questionLocked(entry, questionID)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	answers, err := edit(append([]models.Answer{}, qe.question.Answers...))
	if err != nil {
		w.mu.Unlock()
		return err
	}
	qe.question.Answers = answers
	snapshot := append([]models.Answer{}, answers...)
	current, currentQuestion := entry.company.ID, qe.question.ID
	w.mu.Unlock()

	w.metrics.RecordMutation(op)
	w.emit(Change{Type: ChangeAnswersChanged, CompanyID: current, IDs: []string{currentQuestion}})

	w.goRemote("save_answers", []zap.Field{zap.String("question_id", currentQuestion)}, func() error {
		id, ok := await(qe.remote)
		if !ok {
			return errNotPersisted
		}
		ctx, cancel := w.remoteContext()
		defer cancel()
		if err := w.store.SaveAnswers(ctx, id, snapshot); err != nil {
			return err
		}
		parentID, _ := await(entry.remote)
		w.publish(events.AnswersSaved, parentID, id)
		return nil
	})
	return nil
}

// AddSchedule appends a schedule to a company. Schedules are only reached
// through their company, so the local id is kept and the store id is only
// recorded for a later delete.
func (w *Workspace) AddSchedule(companyID string, in models.ScheduleInput) (models.Schedule, error) {
	if err := in.Validate(); err != nil {
		return models.Schedule{}, fmt.Errorf("%w: %v", e.ErrInvalidInput, err)
	}
	kind := strings.TrimSpace(in.Type)
	if kind == "" {
		kind = models.ScheduleScreening
	}

	w.mu.Lock()
	entry, err := w.companyLocked(companyID)
	if err != nil {
		w.mu.Unlock()
		return models.Schedule{}, err
	}
	se := &scheduleEntry{
		schedule: models.Schedule{
			ID:          uuid.NewString(),
			CompanyID:   entry.company.ID,
			Title:       strings.TrimSpace(in.Title),
			Date:        in.DateString(),
			Description: in.Description,
			Type:        kind,
			CreatedAt:   w.now(),
		},
		remote: pendingRemote(),
	}
	w.schedules[se.schedule.ID] = se
	entry.schedules = append(entry.schedules, se.schedule.ID)
	snapshot := se.schedule
	w.mu.Unlock()

	w.metrics.RecordMutation("add_schedule")
	w.emit(Change{Type: ChangeScheduleAdded, CompanyID: snapshot.CompanyID, IDs: []string{snapshot.ID}})

	w.goRemote("insert_schedule", []zap.Field{zap.String("schedule_id", snapshot.ID)}, func() error {
		parentID, ok := await(entry.remote)
		if !ok {
			w.resolveSchedule(se, "", errNotPersisted)
			return errNotPersisted
		}
		ctx, cancel := w.remoteContext()
		defer cancel()
		id, err := w.store.InsertSchedule(ctx, parentID, snapshot)
		w.resolveSchedule(se, id, err)
		if err != nil {
			return err
		}
		w.publish(events.ScheduleCreated, parentID, id)
		return nil
	})

	return snapshot, nil
}

func (w *Workspace) DeleteSchedule(companyID, scheduleID string) error {
	w.mu.Lock()
	entry, err := w.companyLocked(companyID)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	se, ok := w.schedules[scheduleID]
	if !ok || !slices.Contains(entry.schedules, scheduleID) {
		w.mu.Unlock()
		return e.ErrNotFound
	}
	delete(w.schedules, scheduleID)
	entry.schedules = removeKeys(entry.schedules, map[string]bool{scheduleID: true})
	current := entry.company.ID
	w.mu.Unlock()

	w.metrics.RecordMutation("delete_schedule")
	w.emit(Change{Type: ChangeScheduleDeleted, CompanyID: current, IDs: []string{scheduleID}})

	w.goRemote("delete_schedule", []zap.Field{zap.String("schedule_id", scheduleID)}, func() error {
		id, ok := await(se.remote)
		if !ok {
			return nil
		}
		ctx, cancel := w.remoteContext()
		defer cancel()
		if err := w.store.DeleteSchedule(ctx, id); err != nil {
			return err
		}
		parentID, _ := await(entry.remote)
		w.publish(events.ScheduleDeleted, parentID, id)
		return nil
	})
	return nil
}
