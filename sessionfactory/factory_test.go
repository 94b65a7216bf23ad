package sessionfactory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/R3E-Network/session-core/identity"
	"github.com/R3E-Network/session-core/scerr"
	"github.com/R3E-Network/session-core/scopevalidator"
)

type fakeHandle struct {
	id     int64
	closed bool
	inTx   bool
}

type fakeProvider struct {
	mu       sync.Mutex
	opened   int64
	closed   int64
	failOpen bool
	waiters  int
}

func (p *fakeProvider) Open(ctx context.Context) (any, error) {
	if p.failOpen {
		return nil, errors.New("connection refused")
	}
	id := atomic.AddInt64(&p.opened, 1)
	return &fakeHandle{id: id}, nil
}

func (p *fakeProvider) Close(handle any) error {
	h, ok := handle.(*fakeHandle)
	if !ok || h.closed {
		return nil
	}
	h.closed = true
	atomic.AddInt64(&p.closed, 1)
	return nil
}

func (p *fakeProvider) InTransaction(handle any) bool {
	h, ok := handle.(*fakeHandle)
	return ok && h.inTx
}

func (p *fakeProvider) Rollback(handle any) error { return nil }

func (p *fakeProvider) PoolStatus(ctx context.Context) (PoolStatus, error) {
	return PoolStatus{Size: 10, InUse: 0, Idle: 10, Waiters: p.waiters}, nil
}

func (p *fakeProvider) Health(ctx context.Context) error { return nil }

func testIdentity(t *testing.T, userID string) identity.Identity {
	t.Helper()
	id, err := identity.New(userID, "", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return id
}

func TestConcurrentIsolation(t *testing.T) {
	provider := &fakeProvider{}
	factory := New(provider, Config{LeakDetectionEnabled: false}, nil)
	defer factory.Close(context.Background())

	var wg sync.WaitGroup
	seen := make(chan string, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := testIdentity(t, fmt.Sprintf("user_%d", n))
			err := factory.Run(context.Background(), id, Options{}, func(ctx context.Context, h *Handle) error {
				if h.Tag().Identity.UserID != id.UserID {
					return fmt.Errorf("tag mismatch")
				}
				seen <- h.Tag().Identity.SessionID
				return nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	close(seen)

	ids := map[string]bool{}
	for s := range seen {
		ids[s] = true
	}
	if len(ids) != 5 {
		t.Fatalf("expected 5 distinct session ids, got %d", len(ids))
	}

	health := factory.Health()
	if health.Active != 0 {
		t.Fatalf("expected active=0, got %d", health.Active)
	}
	if health.TotalCreated != 5 || health.TotalClosed != 5 {
		t.Fatalf("expected created=5 closed=5, got %+v", health)
	}
}

func TestCrossUserOwnershipDenied(t *testing.T) {
	provider := &fakeProvider{}
	factory := New(provider, Config{LeakDetectionEnabled: false}, nil)
	defer factory.Close(context.Background())

	idA := testIdentity(t, "user_A")
	err := factory.Run(context.Background(), idA, Options{}, func(ctx context.Context, h *Handle) error {
		tag := h.Tag()
		_, validateErr := h.Conn()
		if validateErr != nil {
			return validateErr
		}
		ownershipErr := scopevalidator.ValidateOwnership(&tag, "user_B")
		if !scerr.Is(ownershipErr, scerr.SessionIsolationError) {
			t.Fatalf("expected isolation error, got %v", ownershipErr)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("session should remain usable for user_A: %v", err)
	}
}

func TestLeakReaping(t *testing.T) {
	provider := &fakeProvider{}
	cfg := Config{
		MaxSessionLifetime:    100 * time.Millisecond,
		LeakDetectionInterval: 30 * time.Millisecond,
		LeakDetectionEnabled:  true,
	}
	factory := New(provider, cfg, nil)
	defer factory.Close(context.Background())

	id := testIdentity(t, "user_0")
	var capturedHandle *Handle
	lifecycleErrCh := make(chan error, 1)
	go func() {
		err := factory.Run(context.Background(), id, Options{}, func(ctx context.Context, h *Handle) error {
			capturedHandle = h
			time.Sleep(250 * time.Millisecond)
			_, connErr := h.Conn()
			lifecycleErrCh <- connErr
			return nil
		})
		if err != nil {
			t.Logf("scope exited with error (expected once reaped): %v", err)
		}
	}()

	var connErr error
	select {
	case connErr = <-lifecycleErrCh:
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for leak reap to invalidate handle")
	}
	if !scerr.Is(connErr, scerr.SessionLifecycleError) {
		t.Fatalf("expected SessionLifecycleError after reap, got %v", connErr)
	}
	if capturedHandle == nil {
		t.Fatal("expected handle to have been captured")
	}

	health := factory.Health()
	if health.Leaked != 1 {
		t.Fatalf("expected leaked=1, got %d", health.Leaked)
	}
}

func TestConnectionAcquireErrorSurfaces(t *testing.T) {
	provider := &fakeProvider{failOpen: true}
	factory := New(provider, Config{LeakDetectionEnabled: false}, nil)
	defer factory.Close(context.Background())

	id := testIdentity(t, "user_0")
	err := factory.Run(context.Background(), id, Options{}, func(ctx context.Context, h *Handle) error {
		t.Fatal("fn should never run when acquire fails")
		return nil
	})
	if !scerr.Is(err, scerr.ConnectionAcquireError) {
		t.Fatalf("expected ConnectionAcquireError, got %v", err)
	}
	if factory.Health().TotalCreated != 0 {
		t.Fatalf("expected no session counted on acquire failure, got %d", factory.Health().TotalCreated)
	}
}

func TestShutdownWithLiveSessions(t *testing.T) {
	provider := &fakeProvider{}
	factory := New(provider, Config{LeakDetectionEnabled: false}, nil)

	var wg sync.WaitGroup
	release := make(chan struct{})
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := testIdentity(t, fmt.Sprintf("user_%d", n))
			err := factory.Run(context.Background(), id, Options{}, func(ctx context.Context, h *Handle) error {
				<-release
				return nil
			})
			errs <- err
		}(i)
	}

	deadline := time.Now().Add(time.Second)
	for factory.LiveCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if factory.LiveCount() != 3 {
		t.Fatalf("expected 3 live sessions before shutdown, got %d", factory.LiveCount())
	}

	if err := factory.Close(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
	if factory.LiveCount() != 0 {
		t.Fatalf("expected empty live-set after shutdown, got %d", factory.LiveCount())
	}

	close(release)
	wg.Wait()

	if err := factory.Close(context.Background()); err != nil {
		t.Fatalf("second Close must be idempotent, got %v", err)
	}
}
