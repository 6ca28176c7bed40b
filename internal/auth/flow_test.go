package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/driftpost/driftpost/internal/home"
	"github.com/driftpost/driftpost/internal/providers"
)

func newTestFlow(t *testing.T, social *providers.MockSocial, timeout time.Duration) *Flow {
	t.Helper()
	dir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New: %v", err)
	}
	return NewFlow(StaticProvider("mock", social), dir, timeout, nil)
}

func TestFlowRoundTrip(t *testing.T) {
	social := providers.NewMockSocial()
	flow := newTestFlow(t, social, time.Second)

	session, err := flow.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if session.URL == "" || session.State == "" {
		t.Fatalf("session incomplete: %+v", session)
	}

	done := make(chan struct{})
	var outcome *Outcome
	var waitErr error
	go func() {
		defer close(done)
		outcome, waitErr = flow.Wait(context.Background(), session)
	}()

	if err := flow.Complete(session.State, "auth-code"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	<-done

	if waitErr != nil {
		t.Fatalf("Wait: %v", waitErr)
	}
	if outcome.Identity == nil || outcome.Identity.ID != "mock-member" {
		t.Errorf("outcome identity = %+v", outcome.Identity)
	}
	if outcome.Token == nil || outcome.Token.AccessToken != "mock-token" {
		t.Errorf("outcome token = %+v", outcome.Token)
	}

	// The token was persisted and is readable back.
	token, err := flow.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token != "mock-token" {
		t.Errorf("persisted token = %q, want mock-token", token)
	}

	// A new flow may begin once the previous one finished.
	if _, err := flow.Begin(); err != nil {
		t.Errorf("Begin after finish: %v", err)
	}
}

func TestFlowTimeout(t *testing.T) {
	social := providers.NewMockSocial()
	flow := newTestFlow(t, social, 50*time.Millisecond)

	session, err := flow.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := flow.Wait(context.Background(), session); !errors.Is(err, ErrTimeout) {
		t.Errorf("Wait error = %v, want ErrTimeout", err)
	}

	// Nothing was persisted.
	if _, err := flow.Token(); !errors.Is(err, home.ErrNoToken) {
		t.Errorf("Token error = %v, want ErrNoToken", err)
	}
}

func TestFlowStateMismatch(t *testing.T) {
	social := providers.NewMockSocial()
	flow := newTestFlow(t, social, time.Second)

	if _, err := flow.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := flow.Complete("wrong-state", "code"); !errors.Is(err, ErrStateMismatch) {
		t.Errorf("Complete error = %v, want ErrStateMismatch", err)
	}
}

func TestFlowSingleInFlight(t *testing.T) {
	social := providers.NewMockSocial()
	flow := newTestFlow(t, social, time.Second)

	if _, err := flow.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := flow.Begin(); !errors.Is(err, ErrFlowInProgress) {
		t.Errorf("second Begin error = %v, want ErrFlowInProgress", err)
	}
}

func TestFlowExchangeFailure(t *testing.T) {
	social := providers.NewMockSocial()
	social.ExchangeErr = errors.New("token endpoint rejected the code")
	flow := newTestFlow(t, social, time.Second)

	session, err := flow.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := flow.Wait(context.Background(), session)
		done <- err
	}()
	if err := flow.Complete(session.State, "bad-code"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := <-done; err == nil {
		t.Error("Wait succeeded despite failing exchange")
	}
}

func TestDisconnect(t *testing.T) {
	social := providers.NewMockSocial()
	flow := newTestFlow(t, social, time.Second)

	session, err := flow.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	go flow.Complete(session.State, "code")
	if _, err := flow.Wait(context.Background(), session); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if err := flow.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, err := flow.Token(); !errors.Is(err, home.ErrNoToken) {
		t.Errorf("Token after disconnect error = %v, want ErrNoToken", err)
	}
}

// A provider that shows up after the flow was built, as happens when a
// configuration reload adds one, must become usable without rebuilding
// the flow.
func TestFlowResolvesProviderPerCall(t *testing.T) {
	dir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New: %v", err)
	}

	var mu sync.Mutex
	var social *providers.MockSocial
	resolve := func() (string, providers.SocialProvider, error) {
		mu.Lock()
		defer mu.Unlock()
		if social == nil {
			return "", nil, errors.New("no providers registered")
		}
		return "mock", social, nil
	}
	flow := NewFlow(resolve, dir, time.Second, nil)

	if _, err := flow.Begin(); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("Begin without provider error = %v, want ErrNoProvider", err)
	}

	mu.Lock()
	social = providers.NewMockSocial()
	mu.Unlock()

	session, err := flow.Begin()
	if err != nil {
		t.Fatalf("Begin after provider appeared: %v", err)
	}
	go flow.Complete(session.State, "code")
	outcome, err := flow.Wait(context.Background(), session)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if outcome.Provider != "mock" {
		t.Errorf("outcome provider = %q, want mock", outcome.Provider)
	}
}
