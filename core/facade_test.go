package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/R3E-Network/session-core/breaker"
	"github.com/R3E-Network/session-core/identity"
	"github.com/R3E-Network/session-core/scerr"
	"github.com/R3E-Network/session-core/sessionfactory"
)

type fakeConnHandle struct{ closed bool }

type fakeProvider struct {
	mu     sync.Mutex
	opened int
}

func (p *fakeProvider) Open(ctx context.Context) (any, error) {
	p.mu.Lock()
	p.opened++
	p.mu.Unlock()
	return &fakeConnHandle{}, nil
}
func (p *fakeProvider) Close(handle any) error {
	h, ok := handle.(*fakeConnHandle)
	if ok {
		h.closed = true
	}
	return nil
}
func (p *fakeProvider) InTransaction(handle any) bool                  { return false }
func (p *fakeProvider) Rollback(handle any) error                      { return nil }
func (p *fakeProvider) PoolStatus(ctx context.Context) (sessionfactory.PoolStatus, error) {
	return sessionfactory.PoolStatus{Size: 5, Idle: 5}, nil
}
func (p *fakeProvider) Health(ctx context.Context) error { return nil }

type scriptedAuthClient struct {
	mu        sync.Mutex
	responses []func() (AuthVerdict, error)
	calls     int
}

func (c *scriptedAuthClient) Validate(ctx context.Context, token string) (AuthVerdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls >= len(c.responses) {
		return AuthVerdict{}, errors.New("no scripted response left")
	}
	resp := c.responses[c.calls]
	c.calls++
	return resp()
}
func (c *scriptedAuthClient) Logout(ctx context.Context, token string) error { return nil }
func (c *scriptedAuthClient) Health(ctx context.Context) error               { return nil }

func testIdentity(t *testing.T, userID string) identity.Identity {
	t.Helper()
	id, err := identity.New(userID, "", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return id
}

func TestCachedFallbackUnderOpenBreaker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Breaker.FailureThreshold = 1
	cfg.Breaker.CallTimeout = 50 * time.Millisecond
	cfg.Breaker.RecoveryTimeout = time.Hour

	client := &scriptedAuthClient{
		responses: []func() (AuthVerdict, error){
			func() (AuthVerdict, error) { return AuthVerdict{Valid: true, UserID: "U"}, nil },
			func() (AuthVerdict, error) { return AuthVerdict{}, errors.New("auth service down") },
		},
	}

	facade := New(&fakeProvider{}, client, cfg, nil)
	defer facade.Shutdown(context.Background())

	// First call succeeds and primes the token cache.
	verdict, err := facade.Authenticate(context.Background(), "token-T")
	if err != nil || !verdict.Valid || verdict.UserID != "U" {
		t.Fatalf("unexpected first verdict: %+v err=%v", verdict, err)
	}

	// Second call fails and trips the breaker open (failure_threshold=1).
	if _, err := facade.Authenticate(context.Background(), "token-T"); err == nil {
		t.Fatal("expected the second call to fail and trip the breaker")
	}
	if facade.authBreaker.State() != breaker.Open {
		t.Fatalf("expected breaker OPEN, got %s", facade.authBreaker.State())
	}

	// Third call: breaker is open, cache has the positive verdict.
	verdict, err = facade.Authenticate(context.Background(), "token-T")
	if err != nil {
		t.Fatalf("expected cached fallback, got error %v", err)
	}
	if !verdict.Valid || verdict.UserID != "U" || !verdict.Degraded {
		t.Fatalf("expected degraded cached verdict, got %+v", verdict)
	}
}

func TestAuthUnavailableWithNoCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Breaker.FailureThreshold = 1
	cfg.Breaker.CallTimeout = 50 * time.Millisecond
	cfg.Breaker.RecoveryTimeout = time.Hour

	client := &scriptedAuthClient{
		responses: []func() (AuthVerdict, error){
			func() (AuthVerdict, error) { return AuthVerdict{}, errors.New("down") },
			func() (AuthVerdict, error) { return AuthVerdict{}, errors.New("down") },
		},
	}
	facade := New(&fakeProvider{}, client, cfg, nil)
	defer facade.Shutdown(context.Background())

	_, _ = facade.Authenticate(context.Background(), "token-never-cached")
	_, err := facade.Authenticate(context.Background(), "token-never-cached")
	if !scerr.Is(err, scerr.AuthUnavailable) {
		t.Fatalf("expected AuthUnavailable, got %v", err)
	}
}

func TestShutdownWithLiveSessionsResetsSingleton(t *testing.T) {
	client := &scriptedAuthClient{}
	provider := &fakeProvider{}

	f1 := Init(provider, client, DefaultConfig(), nil)

	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := testIdentity(t, "user")
			_ = f1.WithSession(context.Background(), id, sessionfactory.Options{}, func(ctx context.Context, h *sessionfactory.Handle) error {
				<-release
				return nil
			})
		}(i)
	}

	deadline := time.Now().Add(time.Second)
	for f1.factory.LiveCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
	close(release)
	wg.Wait()

	if f1.factory.LiveCount() != 0 {
		t.Fatalf("expected empty live-set after shutdown, got %d", f1.factory.LiveCount())
	}

	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown must be idempotent, got %v", err)
	}

	f2 := Init(&fakeProvider{}, client, DefaultConfig(), nil)
	if f2 == f1 {
		t.Fatal("expected Init after Shutdown to return a fresh instance")
	}
	defer Shutdown(context.Background())
}
