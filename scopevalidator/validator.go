// Package scopevalidator implements the stateless predicates (SSV) that
// enforce tagging and ownership invariants on a session handle.
package scopevalidator

import (
	"fmt"
	"reflect"
	"time"

	"github.com/R3E-Network/session-core/identity"
	"github.com/R3E-Network/session-core/scerr"
)

// Tag is the identity plus flags attached to a session at issue time.
// It is the statically typed replacement for a dynamic "session.info"
// dict: field names are fixed at compile time.
type Tag struct {
	Identity         identity.Identity
	IsRequestScoped  bool
	FactoryManaged   bool
	CreatedAt        time.Time
}

// NewTag writes identity + flags + created_at, ready to attach to a
// session handle. Re-tagging with a different user_id after issue time
// must go through full re-registration rather than calling NewTag again
// on an in-flight tag — that path is an isolation violation (see
// ValidateOwnership).
func NewTag(id identity.Identity) Tag {
	return Tag{
		Identity:        id,
		IsRequestScoped: true,
		FactoryManaged:  true,
		CreatedAt:       time.Now().UTC(),
	}
}

// ValidateRequestScoped fails if the tag is missing or not request-scoped.
func ValidateRequestScoped(tag *Tag) error {
	if tag == nil {
		return scerr.Isolation("session isolation violated: tag missing")
	}
	if !tag.IsRequestScoped {
		return scerr.Isolation("session isolation violated: session is not request-scoped")
	}
	return nil
}

// ValidateFactoryManaged fails if the tag's factory_managed flag is unset.
func ValidateFactoryManaged(tag *Tag) error {
	if tag == nil || !tag.FactoryManaged {
		return scerr.Isolation("session isolation violated: session is not factory-managed")
	}
	return nil
}

// ValidateOwnership fails if the tag's user_id does not match expectedUserID.
func ValidateOwnership(tag *Tag, expectedUserID string) error {
	if tag == nil {
		return scerr.Isolation("session isolation violated: tag missing")
	}
	if tag.Identity.UserID != expectedUserID {
		return scerr.Isolation(fmt.Sprintf(
			"session isolation violated: session owned by %q, requested by %q",
			tag.Identity.UserID, expectedUserID))
	}
	return nil
}

// Validate runs every per-yield check RSSF requires before handing a
// session back to caller code.
func Validate(tag *Tag, expectedUserID string) error {
	if err := ValidateRequestScoped(tag); err != nil {
		return err
	}
	if err := ValidateFactoryManaged(tag); err != nil {
		return err
	}
	return ValidateOwnership(tag, expectedUserID)
}

// SessionHolder is implemented by a session handle so that
// ValidateNoStoredSessions can recognize a field that captures one.
type SessionHolder interface {
	IsSessionHandle() bool
}

// ValidateNoStoredSessions introspects obj's exported fields and fails
// if any of them holds a value implementing SessionHolder, asserting
// that a consumer (an agent or service) does not capture a session
// handle beyond its request scope.
func ValidateNoStoredSessions(obj any) error {
	if obj == nil {
		return nil
	}
	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		fv := v.Field(i)
		if holdsSessionHandle(fv) {
			return scerr.Isolation(fmt.Sprintf(
				"session isolation violated: field %q retains a session handle beyond request scope", field.Name))
		}
	}
	return nil
}

func holdsSessionHandle(v reflect.Value) bool {
	if !v.CanInterface() {
		return false
	}
	iface := v.Interface()
	if holder, ok := iface.(SessionHolder); ok {
		return holder.IsSessionHandle()
	}
	if v.Kind() == reflect.Ptr && !v.IsNil() {
		return holdsSessionHandle(v.Elem())
	}
	return false
}
