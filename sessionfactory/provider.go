package sessionfactory

import "context"

// PoolStatus mirrors the external connection provider's own pool
// bookkeeping; RSSF never duplicates it.
type PoolStatus struct {
	Size    int
	InUse   int
	Idle    int
	Waiters int
}

// ConnectionProvider is the external collaborator RSSF acquires
// underlying database sessions from. The provider owns the real
// connection pool (size, acquire timeout); RSSF only tracks ownership
// and lifetime of what it is handed.
type ConnectionProvider interface {
	// Open acquires a session handle. May block on pool exhaustion; may
	// fail with a provider-specific error that the factory wraps as
	// ConnectionAcquireError.
	Open(ctx context.Context) (any, error)
	// Close is idempotent.
	Close(handle any) error
	InTransaction(handle any) bool
	Rollback(handle any) error
	PoolStatus(ctx context.Context) (PoolStatus, error)
	Health(ctx context.Context) error
}
