package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gartstein/interviews/internal/interviews/auth"
	e "github.com/gartstein/interviews/internal/interviews/errors"
)

func TestRegistry_WorkspaceLoadsOnce(t *testing.T) {
	store := newMemoryStore()
	seedCompany(store, "c1", "Acme", time.Now())
	r := NewRegistry(store, nil, zaptest.NewLogger(t), nil)
	defer r.Close()

	first, err := r.Workspace(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, first.State())
	assert.Len(t, first.Companies(), 1)

	second, err := r.Workspace(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, store.callCount("list"))

	other, err := r.Workspace(context.Background(), "user-2")
	require.NoError(t, err)
	assert.NotSame(t, first, other)
}

func TestRegistry_LoadFailureIsRetried(t *testing.T) {
	store := newMemoryStore()
	store.listErr = errors.New("unavailable")
	r := NewRegistry(store, nil, zaptest.NewLogger(t), nil)
	defer r.Close()

	_, err := r.Workspace(context.Background(), "user-1")
	require.Error(t, err)

	store.mu.Lock()
	store.listErr = nil
	store.mu.Unlock()

	w, err := r.Workspace(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, w.State())
}

func TestRegistry_HandleAuthChange(t *testing.T) {
	store := newMemoryStore()
	seedCompany(store, "c1", "Acme", time.Now())
	r := NewRegistry(store, nil, zaptest.NewLogger(t), nil)
	defer r.Close()

	r.HandleAuthChange(auth.StateChange{Type: auth.SignedIn, Session: auth.Session{UserID: "user-1"}})
	require.Eventually(t, func() bool { return store.callCount("list") == 1 }, time.Second, 5*time.Millisecond)

	w, err := r.Workspace(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.callCount("list"))

	r.HandleAuthChange(auth.StateChange{Type: auth.SignedOut, Session: auth.Session{UserID: "user-1"}})
	assert.Equal(t, StateNoSession, w.State())
	assert.Empty(t, w.Companies())

	fresh, err := r.Workspace(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NotSame(t, w, fresh)
	assert.Len(t, fresh.Companies(), 1)
}

func TestRegistry_SignOutKeepsWorkspaceForOtherSessions(t *testing.T) {
	store := newMemoryStore()
	seedCompany(store, "c1", "Acme", time.Now())
	r := NewRegistry(store, nil, zaptest.NewLogger(t), nil)
	defer r.Close()

	laptop := auth.Session{UserID: "user-1", Token: "token-laptop"}
	phone := auth.Session{UserID: "user-1", Token: "token-phone"}
	r.HandleAuthChange(auth.StateChange{Type: auth.SignedIn, Session: laptop})
	r.HandleAuthChange(auth.StateChange{Type: auth.SignedIn, Session: phone})

	w, err := r.Workspace(context.Background(), "user-1")
	require.NoError(t, err)

	r.HandleAuthChange(auth.StateChange{Type: auth.SignedOut, Session: laptop})
	assert.Equal(t, StateLoaded, w.State(), "the phone session still uses the workspace")
	_, err = w.AddCompany("Globex", "", "")
	require.NoError(t, err)

	same, err := r.Workspace(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Same(t, w, same)

	r.HandleAuthChange(auth.StateChange{Type: auth.SignedOut, Session: phone})
	assert.Equal(t, StateNoSession, w.State())
	_, err = w.AddCompany("Initech", "", "")
	assert.ErrorIs(t, err, e.ErrUnauthenticated)
}
