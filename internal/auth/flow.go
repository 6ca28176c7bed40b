// Package auth drives the interactive OAuth connect flow: it hands out an
// authorization URL, waits for the platform to redirect back with a code,
// exchanges the code for a token and persists it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftpost/driftpost/internal/home"
	"github.com/driftpost/driftpost/internal/providers"
)

// Sentinel errors for the connect flow.
var (
	// ErrTimeout is returned when the member never completed authorization
	// within the flow's window.
	ErrTimeout = errors.New("authorization timed out")

	// ErrStateMismatch rejects a callback whose state nonce is unknown.
	ErrStateMismatch = errors.New("unknown or expired authorization state")

	// ErrFlowInProgress rejects starting a second flow while one waits.
	ErrFlowInProgress = errors.New("an authorization flow is already in progress")

	// ErrNoProvider is returned when no social provider is configured.
	ErrNoProvider = errors.New("no social provider configured")
)

// DefaultTimeout is the window a member has to complete authorization.
const DefaultTimeout = 2 * time.Minute

// ProviderResolver returns the social provider backing the next flow
// operation. It is consulted per operation, so a provider that appears
// through a configuration reload becomes usable without rebuilding the
// flow.
type ProviderResolver func() (name string, provider providers.SocialProvider, err error)

// StaticProvider returns a resolver pinned to one provider.
func StaticProvider(name string, provider providers.SocialProvider) ProviderResolver {
	return func() (string, providers.SocialProvider, error) {
		return name, provider, nil
	}
}

// Session is one pending authorization attempt. It captures the provider
// that issued its URL so the code is exchanged with the same client even
// if configuration changes mid-flow.
type Session struct {
	State    string
	URL      string
	name     string
	provider providers.SocialProvider
	created  time.Time
	code     chan string
}

// Outcome is the result of a completed connect flow.
type Outcome struct {
	Provider string               `json:"provider"`
	Identity *providers.Identity  `json:"identity"`
	Token    *providers.AuthToken `json:"-"`
}

// Flow manages pending authorization sessions. One flow instance serves
// the whole process; sessions are keyed by state nonce.
type Flow struct {
	resolve ProviderResolver
	home    *home.Dir
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending *Session
}

// NewFlow creates a connect flow over the given provider resolver. A zero
// timeout falls back to DefaultTimeout. home may be nil to skip
// persistence.
func NewFlow(resolve ProviderResolver, dir *home.Dir, timeout time.Duration, logger *slog.Logger) *Flow {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		resolve: resolve,
		home:    dir,
		timeout: timeout,
		logger:  logger,
	}
}

// Begin creates a pending session and returns it. Only one session may
// wait at a time; a stale session past its window is evicted first.
func (f *Flow) Begin() (*Session, error) {
	name, provider, err := f.resolve()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoProvider, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pending != nil {
		if time.Since(f.pending.created) < f.timeout {
			return nil, ErrFlowInProgress
		}
		f.pending = nil
	}

	state := uuid.New().String()
	session := &Session{
		State:    state,
		URL:      provider.AuthURL(state),
		name:     name,
		provider: provider,
		created:  time.Now(),
		code:     make(chan string, 1),
	}
	f.pending = session
	f.logger.Info("authorization flow started", "provider", name, "state", state)
	return session, nil
}

// Complete delivers the authorization code from the redirect callback to
// the waiting session.
func (f *Flow) Complete(state, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pending == nil || f.pending.State != state {
		return ErrStateMismatch
	}

	select {
	case f.pending.code <- code:
		return nil
	default:
		return fmt.Errorf("%w: code already delivered", ErrStateMismatch)
	}
}

// Wait blocks until the session's code arrives, then exchanges it for a
// token, resolves the member identity and persists the token. The wait is
// bounded by the flow timeout regardless of the caller's context.
func (f *Flow) Wait(ctx context.Context, session *Session) (*Outcome, error) {
	defer f.clear(session)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var code string
	select {
	case code = <-session.code:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}

	token, err := session.provider.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	identity, err := session.provider.Profile(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("profile lookup failed: %w", err)
	}

	if f.home != nil {
		saved := &home.SavedToken{
			AccessToken: token.AccessToken,
			ExpiresAt:   token.ExpiresAt,
			Provider:    session.name,
		}
		if err := f.home.SaveToken(saved); err != nil {
			return nil, fmt.Errorf("token persistence failed: %w", err)
		}
	}

	f.logger.Info("authorization flow completed",
		"provider", session.name, "member", identity.ID)
	return &Outcome{Provider: session.name, Identity: identity, Token: token}, nil
}

// Status reports the current persisted connection, if any.
func (f *Flow) Status(ctx context.Context) (*Outcome, error) {
	if f.home == nil {
		return nil, home.ErrNoToken
	}
	saved, err := f.home.LoadToken()
	if err != nil {
		return nil, err
	}
	if saved.Expired() {
		return nil, providers.ErrAuthExpired
	}

	name, provider, err := f.resolve()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoProvider, err)
	}

	identity, err := provider.Profile(ctx, saved.AccessToken)
	if err != nil {
		return nil, err
	}
	if saved.Provider != "" {
		name = saved.Provider
	}
	return &Outcome{
		Provider: name,
		Identity: identity,
		Token: &providers.AuthToken{
			AccessToken: saved.AccessToken,
			ExpiresAt:   saved.ExpiresAt,
		},
	}, nil
}

// Token returns the persisted access token if present and unexpired.
func (f *Flow) Token() (string, error) {
	if f.home == nil {
		return "", home.ErrNoToken
	}
	saved, err := f.home.LoadToken()
	if err != nil {
		return "", err
	}
	if saved.Expired() {
		return "", providers.ErrAuthExpired
	}
	return saved.AccessToken, nil
}

// Disconnect drops the persisted token.
func (f *Flow) Disconnect() error {
	if f.home == nil {
		return nil
	}
	return f.home.ClearToken()
}

func (f *Flow) clear(session *Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == session {
		f.pending = nil
	}
}
