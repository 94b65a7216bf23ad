package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/R3E-Network/session-core/core"
)

// jwtAuthClient is the demo's core.AuthClient: it validates a bearer
// token as an HMAC-signed JWT and reads identity/permission claims off
// it. It has no real backing auth service, which is the point — it
// lets the /chaos endpoint flip Validate into always-failing so the breaker can be
// exercised end to end.
type jwtAuthClient struct {
	secret []byte

	mu     sync.Mutex
	chaos  bool
	logged map[string]bool
}

func newJWTAuthClient(secret string) *jwtAuthClient {
	return &jwtAuthClient{secret: []byte(secret), logged: make(map[string]bool)}
}

// SetChaos toggles forced auth-service failures, used by the /chaos
// endpoint to demonstrate the circuit breaker tripping open.
func (c *jwtAuthClient) SetChaos(on bool) {
	c.mu.Lock()
	c.chaos = on
	c.mu.Unlock()
}

func (c *jwtAuthClient) Validate(ctx context.Context, token string) (core.AuthVerdict, error) {
	c.mu.Lock()
	chaos := c.chaos
	c.mu.Unlock()
	if chaos {
		return core.AuthVerdict{}, fmt.Errorf("auth service unavailable (chaos mode)")
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return core.AuthVerdict{Valid: false}, nil
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return core.AuthVerdict{Valid: false}, nil
	}

	userID, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)

	var perms []string
	if raw, ok := claims["permissions"].([]interface{}); ok {
		for _, p := range raw {
			if s, ok := p.(string); ok {
				perms = append(perms, s)
			}
		}
	}

	return core.AuthVerdict{Valid: true, UserID: userID, Email: email, Permissions: perms}, nil
}

func (c *jwtAuthClient) Logout(ctx context.Context, token string) error {
	return nil
}

func (c *jwtAuthClient) Health(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chaos {
		return fmt.Errorf("chaos mode enabled")
	}
	return nil
}
