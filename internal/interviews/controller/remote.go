package controller

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/gartstein/interviews/internal/interviews/events"
)

var errNotPersisted = errors.New("parent was never persisted")

type ChangeType string

const (
	ChangeLoaded           ChangeType = "loaded"
	ChangeCleared          ChangeType = "cleared"
	ChangeCompanyAdded     ChangeType = "company_added"
	ChangeCompanyUpdated   ChangeType = "company_updated"
	ChangeCompanyDeleted   ChangeType = "company_deleted"
	ChangeQuestionAdded    ChangeType = "question_added"
	ChangeQuestionsDeleted ChangeType = "questions_deleted"
	ChangeAnswersChanged   ChangeType = "answers_changed"
	ChangeScheduleAdded    ChangeType = "schedule_added"
	ChangeScheduleDeleted  ChangeType = "schedule_deleted"
	// ChangeIDResolved reports that a temporary id was replaced.
	ChangeIDResolved ChangeType = "id_resolved"
)

// Change is a local state change delivered to subscribers.
type Change struct {
	Type      ChangeType `json:"type"`
	CompanyID string     `json:"companyId,omitempty"`
	IDs       []string   `json:"ids,omitempty"`
	// TempID is set on ChangeIDResolved; IDs then holds the new id.
	TempID string `json:"tempId,omitempty"`
}

// Subscribe registers fn for local changes. fn runs on the goroutine that
// made the change, outside the workspace lock.
func (w *Workspace) Subscribe(fn func(Change)) (unsubscribe func()) {
	w.mu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subscribers[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.subscribers, id)
		w.mu.Unlock()
	}
}

func (w *Workspace) emit(change Change) {
	w.mu.Lock()
	fns := make([]func(Change), 0, len(w.subscribers))
	for _, fn := range w.subscribers {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

// goRemote runs fn in the background. Failures are logged and counted; the
// optimistic local state is kept as is.
func (w *Workspace) goRemote(op string, fields []zap.Field, fn func() error) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		start := time.Now()
		err := fn()
		w.metrics.RecordRemoteCall(op, err, time.Since(start))
		if err != nil {
			w.logger.Error("Remote write failed",
				append([]zap.Field{zap.String("op", op), zap.Error(err)}, fields...)...,
			)
		}
	}()
}

func (w *Workspace) remoteContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), w.timeout)
}

// await blocks until the insert tracked by r settled and returns the store
// id, or false if the insert failed.
func await(r *remote) (string, bool) {
	<-r.ready
	return r.id, r.id != ""
}

func (w *Workspace) publish(eventType events.EventType, companyID string, ids ...string) {
	w.producer.Produce(events.Event{
		Type:       eventType,
		UserID:     w.userID,
		CompanyID:  companyID,
		EntityIDs:  ids,
		OccurredAt: w.now(),
	})
}

// resolveCompany records the outcome of a company insert and, on success,
// swaps the temporary id for the store id in place.
func (w *Workspace) resolveCompany(entry *companyEntry, tempID, id string, err error) {
	w.mu.Lock()
	resolved := false
	if err == nil {
		entry.remote.id = id
		if w.companies[tempID] == entry {
			delete(w.companies, tempID)
			w.companies[id] = entry
			w.aliases[tempID] = id
			replaceKey(w.order, tempID, id)
			resolved = true
		}
		entry.company.ID = id
	}
	w.settleLocked(entry.remote)
	w.mu.Unlock()

	if resolved {
		w.emit(Change{Type: ChangeIDResolved, CompanyID: id, IDs: []string{id}, TempID: tempID})
	}
}

// resolveQuestion is resolveCompany for questions, scoped to the owning
// company's question list.
func (w *Workspace) resolveQuestion(qe *questionEntry, tempID, id string, err error) {
	w.mu.Lock()
	resolved := false
	var companyID string
	if err == nil {
		qe.remote.id = id
		if w.questions[tempID] == qe {
			delete(w.questions, tempID)
			w.questions[id] = qe
			w.aliases[tempID] = id
			replaceKey(qe.owner.questions, tempID, id)
			companyID = qe.owner.company.ID
			resolved = true
		}
		qe.question.ID = id
	}
	w.settleLocked(qe.remote)
	w.mu.Unlock()

	if resolved {
		w.emit(Change{Type: ChangeIDResolved, CompanyID: companyID, IDs: []string{id}, TempID: tempID})
	}
}

func (w *Workspace) resolveSchedule(se *scheduleEntry, id string, err error) {
	w.mu.Lock()
	if err == nil {
		se.remote.id = id
	}
	w.settleLocked(se.remote)
	w.mu.Unlock()
}

func replaceKey(keys []string, from, to string) {
	for i, k := range keys {
		if k == from {
			keys[i] = to
			return
		}
	}
}

func removeKeys(keys []string, drop map[string]bool) []string {
	out := keys[:0]
	for _, k := range keys {
		if !drop[k] {
			out = append(out, k)
		}
	}
	return out
}
