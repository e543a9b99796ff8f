package transaction

import (
	"context"

	"github.com/xraph/crucible/pkg/pool"
)

// Conn is a pooled connection capable of carrying transactions. Root
// transactions use Begin, Commit and Rollback; nested scopes use the
// savepoint operations on the same connection.
type Conn interface {
	pool.Resource

	// Begin opens a transaction on this connection.
	Begin(ctx context.Context, opts Options) error

	// Commit commits the open transaction.
	Commit(ctx context.Context) error

	// Rollback aborts the open transaction.
	Rollback(ctx context.Context) error

	// Savepoint marks a named savepoint inside the open transaction.
	Savepoint(ctx context.Context, name string) error

	// RollbackTo undoes work done since the named savepoint.
	RollbackTo(ctx context.Context, name string) error

	// ReleaseSavepoint discards the named savepoint, keeping its work.
	ReleaseSavepoint(ctx context.Context, name string) error
}

// Connector produces transactional connections for the manager's pool.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}
