// Package session holds the signed-in identity that gates every write.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/microsense/internal/domain"
	"github.com/jonboulle/clockwork"
)

// MinPasswordLength is the shortest password the sign-in form accepts.
const MinPasswordLength = 6

var (
	ErrEmailRequired    = errors.New("email is required")
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
)

// Authenticator is the backend auth transport.
type Authenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (domain.Session, error)
	SignUp(ctx context.Context, email, password string) (domain.Session, error)
	Refresh(ctx context.Context, refreshToken string) (domain.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Listener is notified after the session changes.
type Listener func(s domain.Session, signedIn bool)

// Manager tracks the current session. It is safe for concurrent use.
type Manager struct {
	auth   Authenticator
	logger *slog.Logger

	mu        sync.RWMutex
	current   *domain.Session
	loading   bool
	listeners []Listener
}

// NewManager creates a signed-out Manager.
func NewManager(auth Authenticator, logger *slog.Logger) *Manager {
	return &Manager{auth: auth, logger: logger}
}

// Current returns the active session, if any.
func (m *Manager) Current() (domain.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return domain.Session{}, false
	}
	return *m.current, true
}

// Loading reports whether startup restoration is still running.
func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// Subscribe registers fn to be called on every session change.
func (m *Manager) Subscribe(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Restore re-establishes a session from a stored refresh token. The loading
// flag is set while it runs. A failed restore leaves the manager signed out.
func (m *Manager) Restore(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	m.setLoading(true)
	defer m.setLoading(false)

	s, err := m.auth.Refresh(ctx, refreshToken)
	if err != nil {
		m.logger.Warn("session restore failed", "error", err)
		return err
	}
	m.set(&s)
	m.logger.Info("session restored", "user_id", s.UserID)
	return nil
}

// SignIn authenticates with email and password.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if err := validate(email, password); err != nil {
		return err
	}
	s, err := m.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return err
	}
	m.set(&s)
	m.logger.Info("signed in", "user_id", s.UserID)
	return nil
}

// SignUp registers a new account and signs in when the backend issues a
// session immediately. Otherwise domain.ErrConfirmationRequired is returned.
func (m *Manager) SignUp(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if err := validate(email, password); err != nil {
		return err
	}
	s, err := m.auth.SignUp(ctx, email, password)
	if err != nil {
		return err
	}
	if s.AccessToken == "" {
		m.logger.Info("sign-up pending email confirmation", "email", email)
		return domain.ErrConfirmationRequired
	}
	m.set(&s)
	m.logger.Info("signed up", "user_id", s.UserID)
	return nil
}

// SignOut clears the local session and then revokes it remotely. The local
// session is cleared even when the remote call fails; that error is returned.
func (m *Manager) SignOut(ctx context.Context) error {
	s, ok := m.Current()
	if !ok {
		return nil
	}
	m.set(nil)
	m.logger.Info("signed out", "user_id", s.UserID)

	if err := m.auth.SignOut(ctx, s.AccessToken); err != nil {
		m.logger.Warn("remote sign-out failed", "error", err)
		return err
	}
	return nil
}

// KeepAlive refreshes the session leeway before it expires until ctx is
// done. A refresh keeps the same identity, so listeners are not notified.
// Failed refreshes are retried every retry interval.
func (m *Manager) KeepAlive(ctx context.Context, clock clockwork.Clock, leeway, retry time.Duration) {
	failed := false
	for {
		wait := retry
		if s, ok := m.Current(); ok && !s.ExpiresAt.IsZero() && !failed {
			wait = max(clock.Until(s.ExpiresAt)-leeway, 0)
		}

		timer := clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}

		s, ok := m.Current()
		if !ok || s.RefreshToken == "" || s.ExpiresAt.IsZero() || clock.Until(s.ExpiresAt) > leeway {
			failed = false
			continue
		}
		renewed, err := m.auth.Refresh(ctx, s.RefreshToken)
		if err != nil {
			failed = true
			m.logger.Warn("session refresh failed", "user_id", s.UserID, "error", err)
			continue
		}
		failed = false
		m.renew(s.UserID, renewed)
		m.logger.Debug("session refreshed", "user_id", renewed.UserID, "expires_at", renewed.ExpiresAt)
	}
}

// renew swaps in fresh tokens if userID is still the signed-in user.
func (m *Manager) renew(userID string, s domain.Session) {
	m.mu.Lock()
	if m.current == nil || m.current.UserID != userID {
		m.mu.Unlock()
		return
	}
	m.current = &s
	m.mu.Unlock()
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
}

func (m *Manager) set(s *domain.Session) {
	m.mu.Lock()
	m.current = s
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	var snapshot domain.Session
	if s != nil {
		snapshot = *s
	}
	for _, fn := range listeners {
		fn(snapshot, s != nil)
	}
}

func validate(email, password string) error {
	if email == "" {
		return ErrEmailRequired
	}
	if len([]rune(password)) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}
