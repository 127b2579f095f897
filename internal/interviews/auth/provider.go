// Package auth is the identity provider: sign-up, sign-in and sign-out,
// session restore from a bearer token, and auth state notifications. It also
// guards the gRPC and HTTP surfaces.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/gartstein/interviews/internal/interviews/captcha"
	e "github.com/gartstein/interviews/internal/interviews/errors"
	"github.com/gartstein/interviews/internal/interviews/models"
)

const minPasswordLength = 6

type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, string, error)
}

type CaptchaVerifier interface {
	Verify(ctx context.Context, token string) (*captcha.Result, error)
}

type EventType string

const (
	SignedIn  EventType = "SIGNED_IN"
	SignedOut EventType = "SIGNED_OUT"
)

// StateChange is delivered to OnAuthStateChange listeners.
type StateChange struct {
	Type    EventType
	Session Session
}

type Provider struct {
	users    UserStore
	verifier CaptchaVerifier
	secret   string
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	revoked   map[string]time.Time
	listeners map[int]func(StateChange)
	nextID    int
}

// NewProvider builds a Provider. verifier may be nil to skip bot checks.
func NewProvider(users UserStore, verifier CaptchaVerifier, secret string, ttl time.Duration, logger *zap.Logger) *Provider {
	return &Provider{
		users:     users,
		verifier:  verifier,
		secret:    secret,
		ttl:       ttl,
		logger:    logger.Named("auth"),
		now:       time.Now,
		revoked:   make(map[string]time.Time),
		listeners: make(map[int]func(StateChange)),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp registers a new account after bot verification and signs it in.
func (p *Provider) SignUp(ctx context.Context, email, password, captchaToken string) (*Session, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", e.ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", e.ErrInvalidInput, minPasswordLength)
	}

	if p.verifier != nil {
		if _, err := p.verifier.Verify(ctx, captchaToken); err != nil {
			p.logger.Warn("Sign up rejected by bot verification", zap.String("email", email), zap.Error(err))
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := p.users.CreateUser(ctx, email, string(hash))
	if err != nil {
		return nil, err
	}

	p.logger.Info("User signed up", zap.String("user_id", user.ID))
	return p.issue(user)
}

// SignIn checks the credentials and opens a session.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	user, hash, err := p.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, e.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, e.ErrInvalidCredentials
	}

	return p.issue(user)
}

func (p *Provider) issue(user *models.User) (*Session, error) {
	token, err := GenerateToken(user.ID, user.Email, p.secret, p.ttl)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	session, err := p.parse(token)
	if err != nil {
		return nil, err
	}

	p.notify(StateChange{Type: SignedIn, Session: *session})
	return session, nil
}

// SignOut revokes the token until it expires and notifies listeners.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	session, err := p.GetSession(ctx, token)
	if err != nil {
		return err
	}

	p.mu.Lock()
	now := p.now()
	for id, exp := range p.revoked {
		if exp.Before(now) {
			delete(p.revoked, id)
		}
	}
	p.revoked[session.tokenID] = session.ExpiresAt
	p.mu.Unlock()

	p.logger.Info("User signed out", zap.String("user_id", session.UserID))
	p.notify(StateChange{Type: SignedOut, Session: *session})
	return nil
}

// GetSession restores the session carried by token.
func (p *Provider) GetSession(_ context.Context, token string) (*Session, error) {
	session, err := p.parse(token)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	_, revoked := p.revoked[session.tokenID]
	p.mu.Unlock()
	if revoked {
		return nil, fmt.Errorf("%w: session revoked", e.ErrUnauthenticated)
	}
	return session, nil
}

func (p *Provider) parse(token string) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", e.ErrUnauthenticated)
	}
	claims, err := validateToken(token, p.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", e.ErrUnauthenticated, err)
	}
	session, err := sessionFromClaims(claims, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", e.ErrUnauthenticated, err)
	}
	return session, nil
}

// OnAuthStateChange registers fn for sign-in and sign-out events. The
// returned func removes the listener.
func (p *Provider) OnAuthStateChange(fn func(StateChange)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *Provider) notify(change StateChange) {
	p.mu.Lock()
	fns := make([]func(StateChange), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}
