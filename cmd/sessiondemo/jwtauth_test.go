package main

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return signed
}

func TestJWTAuthClientValidatesSignedToken(t *testing.T) {
	client := newJWTAuthClient("demo-secret")
	token := signToken(t, "demo-secret", jwt.MapClaims{
		"sub":         "user-42",
		"email":       "user42@example.com",
		"permissions": []interface{}{"read", "write"},
		"exp":         time.Now().Add(time.Hour).Unix(),
	})

	verdict, err := client.Validate(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verdict.Valid || verdict.UserID != "user-42" || len(verdict.Permissions) != 2 {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}
}

func TestJWTAuthClientRejectsBadSignature(t *testing.T) {
	client := newJWTAuthClient("demo-secret")
	token := signToken(t, "wrong-secret", jwt.MapClaims{"sub": "user-42"})

	verdict, err := client.Validate(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Valid {
		t.Fatal("expected an invalid verdict for a badly-signed token")
	}
}

func TestJWTAuthClientChaosModeForcesFailure(t *testing.T) {
	client := newJWTAuthClient("demo-secret")
	client.SetChaos(true)

	token := signToken(t, "demo-secret", jwt.MapClaims{"sub": "user-42"})
	_, err := client.Validate(context.Background(), token)
	if err == nil {
		t.Fatal("expected chaos mode to force a validation error")
	}
}
