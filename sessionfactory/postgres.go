package sessionfactory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// OpenPostgres opens a *sqlx.DB and verifies connectivity within a
// bounded ping, mirroring the teacher's internal/platform/database.Open.
func OpenPostgres(ctx context.Context, dsn string, pingTimeout time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return db, nil
}

// pgConn is the opaque handle RSSF holds: one checked-out pooled
// connection plus an optional in-flight transaction.
type pgConn struct {
	conn *sqlx.Conn
	tx   *sqlx.Tx
}

// PostgresProvider is the concrete ConnectionProvider backed by a
// database/sql connection pool via lib/pq and sqlx, following the
// parameterized query style the teacher uses throughout its
// packages/*/store_postgres.go files.
type PostgresProvider struct {
	db             *sqlx.DB
	acquireTimeout time.Duration
}

// NewPostgresProvider wraps an already-open pool. acquireTimeout bounds
// how long Open waits for a pooled connection.
func NewPostgresProvider(db *sqlx.DB, acquireTimeout time.Duration) *PostgresProvider {
	if acquireTimeout <= 0 {
		acquireTimeout = 5 * time.Second
	}
	return &PostgresProvider{db: db, acquireTimeout: acquireTimeout}
}

func (p *PostgresProvider) Open(ctx context.Context) (any, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()
	conn, err := p.db.Connx(acquireCtx)
	if err != nil {
		return nil, fmt.Errorf("acquiring pooled connection: %w", err)
	}
	return &pgConn{conn: conn}, nil
}

func (p *PostgresProvider) Close(handle any) error {
	pc, ok := handle.(*pgConn)
	if !ok || pc == nil || pc.conn == nil {
		return nil
	}
	if pc.tx != nil {
		// Best-effort rollback of anything left in flight before closing.
		_ = pc.tx.Rollback()
		pc.tx = nil
	}
	err := pc.conn.Close()
	pc.conn = nil
	return err
}

func (p *PostgresProvider) InTransaction(handle any) bool {
	pc, ok := handle.(*pgConn)
	return ok && pc != nil && pc.tx != nil
}

func (p *PostgresProvider) Rollback(handle any) error {
	pc, ok := handle.(*pgConn)
	if !ok || pc == nil || pc.tx == nil {
		return nil
	}
	err := pc.tx.Rollback()
	pc.tx = nil
	return err
}

func (p *PostgresProvider) PoolStatus(ctx context.Context) (PoolStatus, error) {
	stats := p.db.Stats()
	return PoolStatus{
		Size:    stats.MaxOpenConnections,
		InUse:   stats.InUse,
		Idle:    stats.Idle,
		Waiters: int(stats.WaitCount),
	}, nil
}

func (p *PostgresProvider) Health(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Begin starts a transaction on the handle, used by caller code that
// needs explicit transactional control within a scope.
func Begin(ctx context.Context, handle any) error {
	pc, ok := handle.(*pgConn)
	if !ok || pc == nil || pc.conn == nil {
		return sql.ErrConnDone
	}
	tx, err := pc.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	pc.tx = tx
	return nil
}
