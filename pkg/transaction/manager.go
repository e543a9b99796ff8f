package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/crucible/errors"
	"github.com/xraph/crucible/logger"
	"github.com/xraph/crucible/pkg/common"
	"github.com/xraph/crucible/pkg/metrics"
	"github.com/xraph/crucible/pkg/pool"
)

type txKey struct{}

// Current returns the transaction active on ctx, if any. Transactions
// travel only through explicit context propagation; there is no global
// or per-goroutine registry.
func Current(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	return tx, ok
}

// Config configures a transaction manager.
type Config struct {
	// PoolSize bounds the number of live connections.
	PoolSize int `yaml:"pool_size"`

	// AcquireTimeout bounds how long a begin waits for a connection on an
	// exhausted pool.
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`

	Logger  common.Logger  `yaml:"-"`
	Metrics common.Metrics `yaml:"-"`
}

// Manager begins, completes, and scopes transactions over a bounded
// connection pool.
type Manager struct {
	pool    *pool.Pool
	logger  common.Logger
	metrics common.Metrics
}

// NewManager creates a manager drawing connections from connector.
func NewManager(connector Connector, config Config) (*Manager, error) {
	l := config.Logger
	if l == nil {
		l = logger.NewNoopLogger()
	}
	m := config.Metrics
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	size := config.PoolSize
	if size == 0 {
		size = 10
	}

	p, err := pool.New(
		func(ctx context.Context) (pool.Resource, error) { return connector.Connect(ctx) },
		pool.Config{Size: size, AcquireTimeout: config.AcquireTimeout, Logger: l, Metrics: m},
	)
	if err != nil {
		return nil, err
	}

	return &Manager{pool: p, logger: l, metrics: m}, nil
}

// Begin opens a transactional scope according to the propagation option
// and returns a derived context carrying it. Exhausted-pool waits fail
// with a timeout error the caller may retry.
func (m *Manager) Begin(ctx context.Context, opts Options) (context.Context, *Tx, error) {
	existing, _ := Current(ctx)
	active := existing != nil && existing.State() == StateActive

	switch opts.Propagation {
	case AlwaysNew:
		return m.beginRoot(ctx, opts)
	case Nested:
		if !active {
			return m.beginRoot(ctx, opts)
		}
		return m.beginNested(ctx, existing, opts)
	default:
		if active {
			existing.join()
			return ctx, existing, nil
		}
		return m.beginRoot(ctx, opts)
	}
}

func (m *Manager) beginRoot(ctx context.Context, opts Options) (context.Context, *Tx, error) {
	resource, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	conn := resource.(Conn)

	if err := conn.Begin(ctx, opts); err != nil {
		m.releaseConn(conn, false)
		return nil, nil, errors.ErrConnectionError("begin", err)
	}

	tx := &Tx{
		id:      uuid.NewString(),
		manager: m,
		conn:    conn,
		opts:    opts,
		state:   StateActive,
		done:    make(chan struct{}),
	}

	// A transaction abandoned by cancellation must not hold its
	// connection: the watcher rolls it back.
	go watch(ctx, tx)

	m.metrics.Counter("crucible.tx.begins").Inc()
	m.logger.Debug("transaction begun",
		logger.String("transaction", tx.id),
		logger.String("propagation", opts.Propagation.String()),
		logger.String("isolation", opts.Isolation.String()),
		logger.Bool("read_only", opts.ReadOnly),
	)

	return context.WithValue(ctx, txKey{}, tx), tx, nil
}

func (m *Manager) beginNested(ctx context.Context, parent *Tx, opts Options) (context.Context, *Tx, error) {
	root := parent
	for root.parent != nil {
		root = root.parent
	}
	name := fmt.Sprintf("sp_%d", root.nextSavepoint())

	if err := parent.conn.Savepoint(ctx, name); err != nil {
		return nil, nil, errors.ErrConnectionError("savepoint", err)
	}

	tx := &Tx{
		id:        uuid.NewString(),
		manager:   m,
		conn:      parent.conn,
		parent:    parent,
		savepoint: name,
		opts:      opts,
		state:     StateActive,
	}

	m.metrics.Counter("crucible.tx.begins").Inc()
	m.logger.Debug("nested transaction begun",
		logger.String("transaction", tx.id),
		logger.String("parent", parent.id),
		logger.String("savepoint", name),
	)

	return context.WithValue(ctx, txKey{}, tx), tx, nil
}

// Execute runs fn inside a transactional scope: commit when fn returns
// nil, rollback when it returns a rollback-eligible error or panics. A
// panic is re-raised after the rollback.
func (m *Manager) Execute(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	txCtx, tx, err := m.Begin(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(txCtx)
			panic(r)
		}
	}()

	if err := fn(txCtx); err != nil {
		if opts.shouldRollback(err) {
			if rbErr := tx.Rollback(txCtx); rbErr != nil {
				return errors.Join(err, rbErr)
			}
			return err
		}
		if cmErr := tx.Commit(txCtx); cmErr != nil {
			return errors.Join(err, cmErr)
		}
		return err
	}

	return tx.Commit(txCtx)
}

// Stats returns the connection pool occupancy.
func (m *Manager) Stats() pool.Stats {
	return m.pool.Stats()
}

// Close shuts the connection pool down.
func (m *Manager) Close() error {
	return m.pool.Close()
}

func (m *Manager) releaseConn(conn Conn, broken bool) {
	var err error
	if broken {
		err = m.pool.Discard(conn)
	} else {
		err = m.pool.Release(conn)
	}
	if err != nil {
		m.logger.Error("connection release failed", logger.Error(err))
	}
}

func (m *Manager) observeFinish(tx *Tx, state State) {
	switch state {
	case StateCommitted:
		m.metrics.Counter("crucible.tx.commits").Inc()
	case StateRolledBack:
		m.metrics.Counter("crucible.tx.rollbacks").Inc()
	}
	m.logger.Debug("transaction finished",
		logger.String("transaction", tx.id),
		logger.String("state", string(state)),
	)
}

// watch rolls an active transaction back when its context is canceled.
// The rollback itself runs on a fresh context: the canceled one must not
// abort the cleanup.
func watch(ctx context.Context, tx *Tx) {
	select {
	case <-ctx.Done():
		tx.abort(context.WithoutCancel(ctx))
	case <-tx.done:
	}
}
