// Package identity defines the value types and identifier grammar that
// carry user/request/thread/run scope through the rest of session-core.
package identity

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/session-core/scerr"
)

// Prefix enumerates the sanctioned identifier prefixes.
type Prefix string

const (
	PrefixThread  Prefix = "thread"
	PrefixRun     Prefix = "run"
	PrefixRequest Prefix = "req"
	PrefixWS      Prefix = "ws"
	PrefixSession Prefix = "session"
)

// DefaultThreadAllowlist is the set of prefixes the persistence
// collaborator accepts when inserting into the thread store.
var DefaultThreadAllowlist = []Prefix{PrefixThread}

// Identity is the immutable bundle passed to every scope.
type Identity struct {
	UserID    string
	RequestID string
	ThreadID  string
	RunID     string
	SessionID string
}

// New constructs an Identity, auto-generating RequestID and SessionID
// when absent. UserID must be non-empty.
func New(userID, requestID, threadID, runID string) (Identity, error) {
	if strings.TrimSpace(userID) == "" {
		return Identity{}, scerr.Malformed("user_id must not be empty")
	}
	if requestID == "" {
		requestID = NewRequestID(userID)
	}
	sessionID := fmt.Sprintf("%s_%s_%s", userID, requestID, shortRandom())
	return Identity{
		UserID:    userID,
		RequestID: requestID,
		ThreadID:  threadID,
		RunID:     runID,
		SessionID: sessionID,
	}, nil
}

// ParsedID is the decomposition of an identifier emitted at the boundary.
type ParsedID struct {
	Prefix    string
	Operation string
	Body      string
}

// generate builds {prefix}_{operation}_{base36(time)}_{base36(random64)}.
func generate(prefix Prefix, operation string) string {
	op := sanitizeOperation(operation)
	t := strconv.FormatInt(time.Now().UnixNano(), 36)
	r := strconv.FormatUint(randomUint64(), 36)
	return fmt.Sprintf("%s_%s_%s_%s", prefix, op, t, r)
}

func sanitizeOperation(operation string) string {
	operation = strings.TrimSpace(operation)
	if operation == "" {
		return "op"
	}
	return strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, operation)
}

func randomUint64() uint64 {
	id := uuid.New()
	var v uint64
	for _, b := range id[:8] {
		v = v<<8 | uint64(b)
	}
	return v
}

func shortRandom() string {
	id := uuid.New()
	return strconv.FormatUint(uint64(id[0])<<24|uint64(id[1])<<16|uint64(id[2])<<8|uint64(id[3]), 36)
}

// NewThreadID mints a thread-scoped identifier for the given operation.
func NewThreadID(userID, operation string) string { return generate(PrefixThread, operation) }

// NewRunID mints a run-scoped identifier for the given operation.
func NewRunID(userID, operation string) string { return generate(PrefixRun, operation) }

// NewRequestID mints a request-scoped identifier for the given operation.
func NewRequestID(operation string) string { return generate(PrefixRequest, operation) }

// GenerateUserContextIDs returns (thread_id, run_id, request_id) for a
// fresh unit of work belonging to user_id under operation.
func GenerateUserContextIDs(userID, operation string) (threadID, runID, requestID string) {
	return NewThreadID(userID, operation), NewRunID(userID, operation), NewRequestID(operation)
}

// ParseID splits an identifier at its first underscore into prefix and
// body. The body is not decomposed further: Operation and Body both hold
// the whole remainder. It returns an error of kind MalformedIdentifier if
// the prefix or the body is empty; the prefix is not checked against the
// sanctioned set (ValidateThreadPrefix does that against an allowlist).
func ParseID(s string) (ParsedID, error) {
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ParsedID{}, scerr.Malformed(fmt.Sprintf("identifier %q has no recognizable prefix/body", s))
	}
	return ParsedID{Prefix: parts[0], Operation: parts[1], Body: parts[1]}, nil
}

// Reprefix converts an externally sourced identifier (e.g. one minted by
// a WebSocket connection factory) into one carrying a sanctioned prefix,
// before it is allowed to reach a persistence collaborator.
func Reprefix(rawID string, prefix Prefix) string {
	parsed, err := ParseID(rawID)
	if err != nil {
		return generate(prefix, "reprefixed")
	}
	return fmt.Sprintf("%s_%s", prefix, parsed.Operation)
}

// ValidateThreadPrefix enforces the persistence collaborator's grammar:
// a thread identifier must begin with one of the allowed prefixes.
func ValidateThreadPrefix(threadID string, allowlist []Prefix) error {
	if threadID == "" {
		return nil
	}
	parsed, err := ParseID(threadID)
	if err != nil {
		return err
	}
	for _, p := range allowlist {
		if parsed.Prefix == string(p) {
			return nil
		}
	}
	return scerr.Malformed(fmt.Sprintf("thread identifier prefix %q is not in the allowlist", parsed.Prefix))
}
