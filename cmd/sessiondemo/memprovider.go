package main

import (
	"context"
	"sync"

	"github.com/R3E-Network/session-core/sessionfactory"
)

// memConn is the opaque handle the in-memory provider hands out. It
// holds nothing but closed and in-transaction flags; there is no real
// backing resource.
type memConn struct {
	mu        sync.Mutex
	closed    bool
	tx        bool
}

// memProvider is a ConnectionProvider with no backing database, used
// when the demo binary is launched without a -dsn flag. It exists so
// the whole demo can be exercised with zero external dependencies.
type memProvider struct {
	mu    sync.Mutex
	open  int
	limit int
}

func newMemProvider(limit int) *memProvider {
	return &memProvider{limit: limit}
}

func (p *memProvider) Open(ctx context.Context) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open++
	return &memConn{}, nil
}

func (p *memProvider) Close(handle any) error {
	c, ok := handle.(*memConn)
	if !ok {
		return nil
	}
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	p.mu.Lock()
	if p.open > 0 {
		p.open--
	}
	p.mu.Unlock()
	return nil
}

func (p *memProvider) InTransaction(handle any) bool {
	c, ok := handle.(*memConn)
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx
}

func (p *memProvider) Rollback(handle any) error {
	c, ok := handle.(*memConn)
	if !ok {
		return nil
	}
	c.mu.Lock()
	c.tx = false
	c.mu.Unlock()
	return nil
}

func (p *memProvider) PoolStatus(ctx context.Context) (sessionfactory.PoolStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	waiters := 0
	if p.limit > 0 && p.open >= p.limit {
		waiters = p.open - p.limit + 1
	}
	return sessionfactory.PoolStatus{Size: p.limit, InUse: p.open, Idle: p.limit - p.open, Waiters: waiters}, nil
}

func (p *memProvider) Health(ctx context.Context) error {
	return nil
}
