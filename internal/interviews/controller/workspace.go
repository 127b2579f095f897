// Package controller implements the data synchronization layer: a
// per-user Workspace that applies every mutation to its in-memory state at
// once and persists it to the remote store in the background, replacing
// temporary ids with the ids assigned by the store as inserts resolve.
package controller

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	e "github.com/gartstein/interviews/internal/interviews/errors"
	"github.com/gartstein/interviews/internal/interviews/events"
	"github.com/gartstein/interviews/internal/interviews/metrics"
	"github.com/gartstein/interviews/internal/interviews/models"
)

const (
	tempPrefix           = "tmp-"
	defaultRemoteTimeout = 10 * time.Second
)

// Store is the remote store the workspace persists to.
type Store interface {
	ListCompanies(ctx context.Context, userID string) ([]models.Company, error)
	InsertCompany(ctx context.Context, userID string, company models.Company) (string, error)
	UpdateCompany(ctx context.Context, id string, in models.CompanyInput) error
	DeleteCompany(ctx context.Context, id string) error
	InsertQuestion(ctx context.Context, companyID string, question models.Question) (string, error)
	DeleteQuestions(ctx context.Context, ids []string) error
	SaveAnswers(ctx context.Context, questionID string, answers []models.Answer) error
	InsertSchedule(ctx context.Context, companyID string, schedule models.Schedule) (string, error)
	DeleteSchedule(ctx context.Context, id string) error
}

type EventProducer interface {
	Produce(event events.Event)
}

type State int

const (
	StateNoSession State = iota
	StateLoading
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "no-session"
	}
}

// IsTemporary reports whether id was generated locally and has not been
// replaced by a store id yet.
func IsTemporary(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}

func newTempID() string {
	return tempPrefix + uuid.NewString()
}

// remote tracks the store id of a locally created entity. ready is closed
// once the insert settled; id stays empty if it failed. seq orders settles
// within a workspace and is zero for loaded entities.
type remote struct {
	id    string
	ready chan struct{}
	seq   uint64
}

func pendingRemote() *remote {
	return &remote{ready: make(chan struct{})}
}

func persistedRemote(id string) *remote {
	r := &remote{id: id, ready: make(chan struct{})}
	close(r.ready)
	return r
}

func (r *remote) settled() bool {
	select {
	case <-r.ready:
		return true
	default:
		return false
	}
}

type companyEntry struct {
	company   models.Company
	questions []string
	schedules []string
	remote    *remote
}

type questionEntry struct {
	question models.Question
	owner    *companyEntry
	remote   *remote
}

type scheduleEntry struct {
	schedule models.Schedule
	remote   *remote
}

// Workspace is the in-memory view of one user's data. Entities live in
// arenas keyed by their current id; aliases translates temporary ids that
// have since been resolved. All state is guarded by mu.
type Workspace struct {
	store    Store
	producer EventProducer
	userID   string
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	timeout  time.Duration

	mu          sync.Mutex
	state       State
	loading     bool
	closed      bool
	companies   map[string]*companyEntry
	questions   map[string]*questionEntry
	schedules   map[string]*scheduleEntry
	order       []string
	aliases     map[string]string
	subscribers map[int]func(Change)
	nextSub     int
	settles     uint64

	wg sync.WaitGroup
}

type Option func(*Workspace)

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Workspace) { w.now = now }
}

// WithRemoteTimeout bounds every remote call.
func WithRemoteTimeout(d time.Duration) Option {
	return func(w *Workspace) {
		if d > 0 {
			w.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Workspace) { w.metrics = m }
}

// NewWorkspace creates an empty workspace for userID. Call Load to fill it.
func NewWorkspace(store Store, producer EventProducer, userID string, logger *zap.Logger, opts ...Option) *Workspace {
	if producer == nil {
		producer = events.Discard{}
	}
	w := &Workspace{
		store:       store,
		producer:    producer,
		userID:      userID,
		logger:      logger.Named("workspace").With(zap.String("user_id", userID)),
		now:         time.Now,
		timeout:     defaultRemoteTimeout,
		subscribers: make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.reset()
	return w
}

func (w *Workspace) reset() {
	w.companies = make(map[string]*companyEntry)
	w.questions = make(map[string]*questionEntry)
	w.schedules = make(map[string]*scheduleEntry)
	w.aliases = make(map[string]string)
	w.order = nil
}

func (w *Workspace) UserID() string { return w.userID }

func (w *Workspace) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Loading is true while the first load runs on an empty workspace.
func (w *Workspace) Loading() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loading
}

// Load fetches the user's companies from the store. On failure the cached
// state is left untouched and the error is returned.
func (w *Workspace) Load(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return e.ErrUnauthenticated
	}
	prev := w.state
	if w.state == StateNoSession {
		w.state = StateLoading
	}
	w.loading = len(w.order) == 0
	since := w.settles
	w.mu.Unlock()

	start := time.Now()
	companies, err := w.store.ListCompanies(ctx, w.userID)
	w.metrics.RecordRemoteCall("list_companies", err, time.Since(start))

	w.mu.Lock()
	w.loading = false
	if w.closed {
		w.mu.Unlock()
		return e.ErrUnauthenticated
	}
	if err != nil {
		w.state = prev
		w.mu.Unlock()
		w.logger.Error("Failed to load companies", zap.Error(err))
		return err
	}
	w.replaceLocked(companies, since)
	w.state = StateLoaded
	count := len(w.order)
	w.mu.Unlock()

	w.logger.Debug("Companies loaded", zap.Int("count", count))
	w.emit(Change{Type: ChangeLoaded})
	return nil
}

// replaceLocked swaps the arenas for the loaded companies. Local inserts the
// snapshot may have missed are carried over: those still in flight, and those
// that succeeded after the settles count reached since.
func (w *Workspace) replaceLocked(companies []models.Company, since uint64) {
	oldCompanies, oldQuestions, oldSchedules, oldOrder := w.companies, w.questions, w.schedules, w.order
	aliases := w.aliases
	w.reset()
	w.aliases = aliases

	carry := func(r *remote) bool {
		return !r.settled() || (r.id != "" && r.seq > since)
	}

	loaded := make(map[string]bool, len(companies))
	for _, c := range companies {
		loaded[c.ID] = true
	}

	for _, key := range oldOrder {
		entry := oldCompanies[key]
		if loaded[key] || !carry(entry.remote) {
			continue
		}
		w.companies[key] = entry
		w.order = append(w.order, key)
		for _, qk := range entry.questions {
			w.questions[qk] = oldQuestions[qk]
		}
		for _, sk := range entry.schedules {
			w.schedules[sk] = oldSchedules[sk]
		}
	}

	for _, c := range companies {
		entry := &companyEntry{remote: persistedRemote(c.ID)}
		entry.company = c
		entry.company.Questions = nil
		entry.company.Schedules = nil
		seen := make(map[string]bool, len(c.Questions)+len(c.Schedules))
		for _, q := range c.Questions {
			qe := &questionEntry{question: q.Clone(), owner: entry, remote: persistedRemote(q.ID)}
			w.questions[q.ID] = qe
			entry.questions = append(entry.questions, q.ID)
			seen[q.ID] = true
		}
		for _, s := range c.Schedules {
			w.schedules[s.ID] = &scheduleEntry{schedule: s, remote: persistedRemote(s.ID)}
			entry.schedules = append(entry.schedules, s.ID)
			seen[s.ID] = true
		}
		if old, ok := oldCompanies[c.ID]; ok {
			for _, qk := range old.questions {
				qe := oldQuestions[qk]
				if seen[qk] || seen[qe.remote.id] || !carry(qe.remote) {
					continue
				}
				qe.owner = entry
				w.questions[qk] = qe
				entry.questions = append(entry.questions, qk)
			}
			for _, sk := range old.schedules {
				se := oldSchedules[sk]
				if seen[sk] || seen[se.remote.id] || !carry(se.remote) {
					continue
				}
				w.schedules[sk] = se
				entry.schedules = append(entry.schedules, sk)
			}
		}
		w.companies[c.ID] = entry
		w.order = append(w.order, c.ID)
	}
}

// settleLocked marks r settled and stamps it with the next settle number.
func (w *Workspace) settleLocked(r *remote) {
	w.settles++
	r.seq = w.settles
	close(r.ready)
}

// resolveLocked maps a temporary id to the id it was replaced with.
func (w *Workspace) resolveLocked(id string) string {
	if real, ok := w.aliases[id]; ok {
		return real
	}
	return id
}

func (w *Workspace) companyLocked(id string) (*companyEntry, error) {
	if w.closed {
		return nil, e.ErrUnauthenticated
	}
	entry, ok := w.companies[w.resolveLocked(id)]
	if !ok {
		return nil, e.ErrNotFound
	}
	return entry, nil
}

func (w *Workspace) questionLocked(company *companyEntry, id string) (*questionEntry, error) {
	qe, ok := w.questions[w.resolveLocked(id)]
	if !ok || qe.owner != company {
		return nil, e.ErrNotFound
	}
	return qe, nil
}

func (w *Workspace) snapshotLocked(entry *companyEntry) models.Company {
	c := entry.company
	c.Questions = make([]models.Question, 0, len(entry.questions))
	for _, key := range entry.questions {
		q := w.questions[key].question.Clone()
		q.CompanyID = c.ID
		c.Questions = append(c.Questions, q)
	}
	c.Schedules = make([]models.Schedule, 0, len(entry.schedules))
	for _, key := range entry.schedules {
		s := w.schedules[key].schedule
		s.CompanyID = c.ID
		c.Schedules = append(c.Schedules, s)
	}
	return c
}

// GetCompany looks a company up by its current or temporary id.
func (w *Workspace) GetCompany(id string) (models.Company, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	entry, ok := w.companies[w.resolveLocked(id)]
	if !ok {
		return models.Company{}, false
	}
	return w.snapshotLocked(entry), true
}

// Companies returns a copy of all companies in display order.
func (w *Workspace) Companies() []models.Company {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.Company, 0, len(w.order))
	for _, key := range w.order {
		out = append(out, w.snapshotLocked(w.companies[key]))
	}
	return out
}

// Wait blocks until every remote call issued so far has settled.
func (w *Workspace) Wait() {
	w.wg.Wait()
}

// Close tears the workspace down on sign-out. Cached data is dropped and
// later mutations fail with ErrUnauthenticated. Remote calls already in
// flight still complete.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.state = StateNoSession
	w.loading = false
	w.reset()
	w.mu.Unlock()

	w.emit(Change{Type: ChangeCleared})

	w.mu.Lock()
	w.subscribers = make(map[int]func(Change))
	w.mu.Unlock()
}
