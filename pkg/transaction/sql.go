package transaction

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"

	"github.com/xraph/crucible/errors"
)

// savepointName guards against injection through savepoint identifiers.
var savepointName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLConnector produces transactional connections over a database/sql
// pool. Each connection pins one session so savepoints and transaction
// state stay on the same backend connection.
type SQLConnector struct {
	db *sql.DB
}

// NewSQLConnector creates a connector over db.
func NewSQLConnector(db *sql.DB) *SQLConnector {
	return &SQLConnector{db: db}
}

// Connect pins a dedicated session from the database pool.
func (c *SQLConnector) Connect(ctx context.Context) (Conn, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &SQLConn{conn: conn}, nil
}

// SQLConn is one pinned database session. While a transaction is open,
// statement execution routes through it; outside one, statements run in
// autocommit mode. After a transaction finishes, statements fail with a
// transaction state error until the next Begin.
type SQLConn struct {
	conn *sql.Conn

	// mu guards the transaction fields: the cancellation watcher finishes
	// a transaction on its own goroutine while the unit of work may still
	// be issuing statements.
	mu  sync.Mutex
	tx  *sql.Tx
	end State
}

// sqlRunner is the statement surface shared by sql.Tx and sql.Conn.
type sqlRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isolationLevel(i Isolation) sql.IsolationLevel {
	switch i {
	case ReadCommitted:
		return sql.LevelReadCommitted
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Serializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

func (c *SQLConn) Begin(ctx context.Context, opts Options) error {
	tx, err := c.conn.BeginTx(ctx, &sql.TxOptions{
		Isolation: isolationLevel(opts.Isolation),
		ReadOnly:  opts.ReadOnly,
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.tx = tx
	c.end = ""
	c.mu.Unlock()
	return nil
}

func (c *SQLConn) Commit(context.Context) error {
	tx, err := c.finish(StateCommitted)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (c *SQLConn) Rollback(context.Context) error {
	tx, err := c.finish(StateRolledBack)
	if err != nil {
		return err
	}
	return tx.Rollback()
}

func (c *SQLConn) finish(end State) (*sql.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil || c.end != "" {
		return nil, sql.ErrTxDone
	}
	c.end = end
	return c.tx, nil
}

func (c *SQLConn) Savepoint(ctx context.Context, name string) error {
	return c.savepointStmt(ctx, "SAVEPOINT", name)
}

func (c *SQLConn) RollbackTo(ctx context.Context, name string) error {
	return c.savepointStmt(ctx, "ROLLBACK TO SAVEPOINT", name)
}

func (c *SQLConn) ReleaseSavepoint(ctx context.Context, name string) error {
	return c.savepointStmt(ctx, "RELEASE SAVEPOINT", name)
}

func (c *SQLConn) savepointStmt(ctx context.Context, verb, name string) error {
	if !savepointName.MatchString(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}
	c.mu.Lock()
	tx, end := c.tx, c.end
	c.mu.Unlock()
	if tx == nil || end != "" {
		return sql.ErrTxDone
	}
	_, err := tx.ExecContext(ctx, verb+" "+name)
	return err
}

// runner returns the statement surface for the current scope. Once the
// transaction has finished, statements fail rather than fall through to
// autocommit mode; a rollback on the watcher goroutine must not let
// in-flight repository work land outside the transaction.
func (c *SQLConn) runner(op string) (sqlRunner, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.tx != nil && c.end == "":
		return c.tx, nil
	case c.end != "":
		return nil, errors.ErrTransactionState(op, string(c.end))
	default:
		return c.conn, nil
	}
}

// ExecContext runs a statement inside the open transaction, or in
// autocommit mode when none is open.
func (c *SQLConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	r, err := c.runner("exec")
	if err != nil {
		return nil, err
	}
	return r.ExecContext(ctx, query, args...)
}

// QueryContext runs a query inside the open transaction, or in
// autocommit mode when none is open.
func (c *SQLConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	r, err := c.runner("query")
	if err != nil {
		return nil, err
	}
	return r.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query inside the open transaction,
// or in autocommit mode when none is open. A finished transaction
// reports its error through Row.Scan.
func (c *SQLConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	c.mu.Lock()
	tx := c.tx
	c.mu.Unlock()
	if tx != nil {
		return tx.QueryRowContext(ctx, query, args...)
	}
	return c.conn.QueryRowContext(ctx, query, args...)
}

// Close returns the pinned session to the database pool.
func (c *SQLConn) Close() error {
	c.mu.Lock()
	if c.tx != nil && c.end == "" {
		_ = c.tx.Rollback()
	}
	c.tx = nil
	c.end = ""
	c.mu.Unlock()
	return c.conn.Close()
}

// SQLExecutor returns the statement surface of the transaction active on
// ctx. Repositories use it to run their statements on the transaction's
// connection without knowing the transaction machinery.
func SQLExecutor(ctx context.Context) (*SQLConn, bool) {
	tx, ok := Current(ctx)
	if !ok {
		return nil, false
	}
	conn, ok := tx.Conn().(*SQLConn)
	return conn, ok
}
