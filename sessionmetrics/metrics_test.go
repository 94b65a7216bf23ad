package sessionmetrics

import (
	"reflect"
	"testing"
	"time"
)

// canonicalSessionFields is the one authoritative field set for the
// Session metrics record. Any drift here — a rename, an addition that
// shadows last_activity_at with a bare "last_activity", or an
// "operations_count"/"errors" field sneaking back in — fails this test.
// This is the Go-idiomatic analog of the source's AttributeError bug:
// Go has no runtime AttributeError for a missing struct field, so the
// SSOT contract is enforced here, at test time, against the one
// canonical type instead.
var canonicalSessionFields = []string{
	"SessionID",
	"RequestID",
	"UserID",
	"State",
	"CreatedAt",
	"LastActivityAt",
	"ClosedAt",
	"QueryCount",
	"TransactionCount",
	"ErrorCount",
	"LastError",
	"TotalTimeMS",
}

func TestSessionMetricsFieldAccessConsistency(t *testing.T) {
	typ := reflect.TypeOf(Session{})
	if typ.NumField() != len(canonicalSessionFields) {
		t.Fatalf("Session has %d fields, want %d (%v)", typ.NumField(), len(canonicalSessionFields), canonicalSessionFields)
	}
	for i, want := range canonicalSessionFields {
		got := typ.Field(i).Name
		if got != want {
			t.Errorf("field %d: got %q, want %q", i, got, want)
		}
	}
	// The three rejected non-canonical spellings must not exist on the type.
	for _, banned := range []string{"LastActivity", "OperationsCount", "Errors"} {
		if _, ok := typ.FieldByName(banned); ok {
			t.Errorf("non-canonical field %q must not exist on Session", banned)
		}
	}
}

func TestMarkActivityTransitionsCreatedToActive(t *testing.T) {
	s := New("sess_1", "req_1", "user_1")
	if s.State != Created {
		t.Fatalf("expected CREATED, got %s", s.State)
	}
	s.MarkActivity()
	if s.State != Active {
		t.Fatalf("expected ACTIVE after first use, got %s", s.State)
	}
}

func TestRecordErrorSetsStateAndLastError(t *testing.T) {
	s := New("sess_1", "req_1", "user_1")
	s.RecordError("boom")
	if s.State != Error {
		t.Fatalf("expected ERROR, got %s", s.State)
	}
	if s.ErrorCount != 1 || s.LastError != "boom" {
		t.Fatalf("unexpected counters: %+v", s)
	}
}

func TestCloseIsIdempotentAndSetsTotalTimeOnce(t *testing.T) {
	s := New("sess_1", "req_1", "user_1")
	time.Sleep(2 * time.Millisecond)
	s.Close()
	first := s.TotalTimeMS
	s.Close()
	if s.TotalTimeMS != first {
		t.Fatalf("total_time_ms mutated on second close: %d != %d", s.TotalTimeMS, first)
	}
	if s.State != Closed {
		t.Fatalf("expected CLOSED, got %s", s.State)
	}
}

func TestErrorThenCloseIsAllowed(t *testing.T) {
	s := New("sess_1", "req_1", "user_1")
	s.RecordError("leaked")
	s.Close()
	if s.State != Closed {
		t.Fatalf("expected CLOSED after forced cleanup, got %s", s.State)
	}
}

func TestPoolPeakConcurrentIsMonotonic(t *testing.T) {
	p := &Pool{}
	p.IncrementActive()
	p.IncrementActive()
	p.IncrementActive()
	if p.PeakConcurrentSessions != 3 {
		t.Fatalf("expected peak 3, got %d", p.PeakConcurrentSessions)
	}
	p.RecordClose(10)
	if p.PeakConcurrentSessions != 3 {
		t.Fatalf("peak must not decrease on close, got %d", p.PeakConcurrentSessions)
	}
	if p.ActiveSessions != 2 {
		t.Fatalf("expected active 2 after one close, got %d", p.ActiveSessions)
	}
}

func TestPoolAvgLifetimeIsStreamingMean(t *testing.T) {
	p := &Pool{}
	p.IncrementActive()
	p.RecordClose(100)
	p.IncrementActive()
	p.RecordClose(200)
	if p.AvgSessionLifetimeMS != 150 {
		t.Fatalf("expected streaming mean 150, got %f", p.AvgSessionLifetimeMS)
	}
}
