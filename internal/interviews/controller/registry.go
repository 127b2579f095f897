package controller

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/gartstein/interviews/internal/interviews/auth"
	"github.com/gartstein/interviews/internal/interviews/metrics"
)

type session struct {
	workspace *Workspace
	loaded    chan struct{}
	err       error
}

// Registry keeps one loaded Workspace per signed-in user. The workspace is
// shared by all of the user's sessions and is released when the last session
// the registry saw sign in signs out.
type Registry struct {
	store    Store
	producer EventProducer
	logger   *zap.Logger
	metrics  *metrics.Metrics
	opts     []Option

	mu       sync.Mutex
	sessions map[string]*session
	// tokens holds the live session tokens per user.
	tokens map[string]map[string]struct{}
	wg     sync.WaitGroup
}

func NewRegistry(store Store, producer EventProducer, logger *zap.Logger, m *metrics.Metrics, opts ...Option) *Registry {
	return &Registry{
		store:    store,
		producer: producer,
		logger:   logger.Named("registry"),
		metrics:  m,
		opts:     append(opts, WithMetrics(m)),
		sessions: make(map[string]*session),
		tokens:   make(map[string]map[string]struct{}),
	}
}

// Workspace returns the user's workspace, creating and loading it on first
// use. Concurrent callers wait for the same load.
func (r *Registry) Workspace(ctx context.Context, userID string) (*Workspace, error) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	if !ok {
		s = &session{
			workspace: NewWorkspace(r.store, r.producer, userID, r.logger, r.opts...),
			loaded:    make(chan struct{}),
		}
		r.sessions[userID] = s
		r.metrics.SetActiveWorkspaces(len(r.sessions))
	}
	r.mu.Unlock()

	if !ok {
		s.err = s.workspace.Load(context.WithoutCancel(ctx))
		if s.err != nil {
			r.mu.Lock()
			if r.sessions[userID] == s {
				delete(r.sessions, userID)
				r.metrics.SetActiveWorkspaces(len(r.sessions))
			}
			r.mu.Unlock()
		}
		close(s.loaded)
	}

	select {
	case <-s.loaded:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.workspace, nil
}

// Release tears down the user's workspace.
func (r *Registry) Release(userID string) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.metrics.SetActiveWorkspaces(len(r.sessions))
	r.mu.Unlock()

	if ok {
		s.workspace.Close()
		r.logger.Info("Workspace released", zap.String("user_id", userID))
	}
}

// HandleAuthChange warms the workspace on sign-in and drops it once the
// user's last session signs out. Register it with
// auth.Provider.OnAuthStateChange.
func (r *Registry) HandleAuthChange(change auth.StateChange) {
	userID := change.Session.UserID
	switch change.Type {
	case auth.SignedIn:
		r.mu.Lock()
		live, ok := r.tokens[userID]
		if !ok {
			live = make(map[string]struct{})
			r.tokens[userID] = live
		}
		live[change.Session.Token] = struct{}{}
		r.mu.Unlock()

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if _, err := r.Workspace(context.Background(), userID); err != nil {
				r.logger.Warn("Failed to load workspace on sign in", zap.String("user_id", userID), zap.Error(err))
			}
		}()
	case auth.SignedOut:
		r.mu.Lock()
		live := r.tokens[userID]
		delete(live, change.Session.Token)
		remaining := len(live)
		if remaining == 0 {
			delete(r.tokens, userID)
		}
		r.mu.Unlock()

		if remaining > 0 {
			r.logger.Debug("Workspace kept for remaining sessions",
				zap.String("user_id", userID),
				zap.Int("sessions", remaining),
			)
			return
		}
		r.Release(userID)
	}
}

// Close waits for pending loads and remote writes, then drops every
// workspace.
func (r *Registry) Close() {
	r.wg.Wait()

	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*session)
	r.tokens = make(map[string]map[string]struct{})
	r.metrics.SetActiveWorkspaces(0)
	r.mu.Unlock()

	for _, s := range sessions {
		<-s.loaded
		s.workspace.Wait()
		s.workspace.Close()
	}
}
