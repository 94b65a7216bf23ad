package scopevalidator

import (
	"testing"

	"github.com/R3E-Network/session-core/identity"
	"github.com/R3E-Network/session-core/scerr"
)

func mustIdentity(t *testing.T, userID string) identity.Identity {
	t.Helper()
	id, err := identity.New(userID, "", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return id
}

func TestNewTagSetsFlags(t *testing.T) {
	tag := NewTag(mustIdentity(t, "user_a"))
	if !tag.IsRequestScoped || !tag.FactoryManaged {
		t.Fatalf("expected both flags set: %+v", tag)
	}
	if tag.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}
}

func TestValidateRequestScopedFailsOnMissingTag(t *testing.T) {
	if err := ValidateRequestScoped(nil); !scerr.Is(err, scerr.SessionIsolationError) {
		t.Fatalf("expected SessionIsolationError, got %v", err)
	}
}

func TestValidateOwnershipDetectsCrossUserAccess(t *testing.T) {
	tag := NewTag(mustIdentity(t, "user_A"))
	err := ValidateOwnership(&tag, "user_B")
	if !scerr.Is(err, scerr.SessionIsolationError) {
		t.Fatalf("expected SessionIsolationError, got %v", err)
	}
	if err.Error() == "" {
		t.Fatal("expected a message")
	}
}

func TestValidatePassesForOwner(t *testing.T) {
	tag := NewTag(mustIdentity(t, "user_A"))
	if err := Validate(&tag, "user_A"); err != nil {
		t.Fatalf("expected no error for the owning user, got %v", err)
	}
}

type fakeSessionHandle struct{}

func (fakeSessionHandle) IsSessionHandle() bool { return true }

type agentWithCapturedSession struct {
	Name    string
	Session fakeSessionHandle
}

type agentWithoutCapturedSession struct {
	Name string
}

func TestValidateNoStoredSessionsDetectsCapture(t *testing.T) {
	bad := &agentWithCapturedSession{Name: "agent", Session: fakeSessionHandle{}}
	if err := ValidateNoStoredSessions(bad); !scerr.Is(err, scerr.SessionIsolationError) {
		t.Fatalf("expected SessionIsolationError, got %v", err)
	}

	good := &agentWithoutCapturedSession{Name: "agent"}
	if err := ValidateNoStoredSessions(good); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
