package transaction

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crucible/errors"
)

// fakeTxConn records the transaction operations executed on it.
type fakeTxConn struct {
	mu         sync.Mutex
	ops        []string
	failCommit bool
	closed     bool
}

func (c *fakeTxConn) record(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, op)
}

func (c *fakeTxConn) Ops() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.ops...)
}

func (c *fakeTxConn) Begin(_ context.Context, opts Options) error {
	c.record("begin")
	return nil
}

func (c *fakeTxConn) Commit(context.Context) error {
	if c.failCommit {
		c.record("commit-failed")
		return fmt.Errorf("disk full")
	}
	c.record("commit")
	return nil
}

func (c *fakeTxConn) Rollback(context.Context) error {
	c.record("rollback")
	return nil
}

func (c *fakeTxConn) Savepoint(_ context.Context, name string) error {
	c.record("savepoint " + name)
	return nil
}

func (c *fakeTxConn) RollbackTo(_ context.Context, name string) error {
	c.record("rollback to " + name)
	return nil
}

func (c *fakeTxConn) ReleaseSavepoint(_ context.Context, name string) error {
	c.record("release " + name)
	return nil
}

func (c *fakeTxConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeConnector struct {
	mu         sync.Mutex
	conns      []*fakeTxConn
	failCommit bool
}

func (f *fakeConnector) Connect(context.Context) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn := &fakeTxConn{failCommit: f.failCommit}
	f.conns = append(f.conns, conn)
	return conn, nil
}

func newFakeManager(t *testing.T, config Config) (*Manager, *fakeConnector) {
	t.Helper()
	connector := &fakeConnector{}
	m, err := NewManager(connector, config)
	require.NoError(t, err)
	return m, connector
}

func TestExecuteCommitsOnSuccess(t *testing.T) {
	m, connector := newFakeManager(t, Config{PoolSize: 1})

	var inside *Tx
	err := m.Execute(context.Background(), Options{}, func(ctx context.Context) error {
		tx, ok := Current(ctx)
		require.True(t, ok)
		inside = tx
		assert.Equal(t, StateActive, tx.State())
		assert.NotEmpty(t, tx.ID())
		return nil
	})
	require.NoError(t, err)

	require.Len(t, connector.conns, 1)
	assert.Equal(t, []string{"begin", "commit"}, connector.conns[0].Ops())
	assert.Equal(t, StateCommitted, inside.State())

	// The connection is back in the pool.
	assert.Equal(t, 0, m.Stats().InUse)
	assert.Equal(t, 1, m.Stats().Idle)
}

func TestExecuteRollsBackOnError(t *testing.T) {
	m, connector := newFakeManager(t, Config{PoolSize: 1})

	boom := errors.New("insufficient funds")
	err := m.Execute(context.Background(), Options{}, func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, []string{"begin", "rollback"}, connector.conns[0].Ops())
	assert.Equal(t, 0, m.Stats().InUse)
}

func TestExecuteRollbackOnFilterCommits(t *testing.T) {
	m, connector := newFakeManager(t, Config{PoolSize: 1})

	benign := errors.New("not found")
	opts := Options{RollbackOn: func(err error) bool { return !errors.Is(err, benign) }}

	err := m.Execute(context.Background(), opts, func(context.Context) error {
		return benign
	})
	assert.ErrorIs(t, err, benign)
	assert.Equal(t, []string{"begin", "commit"}, connector.conns[0].Ops())
}

func TestExecutePanicRollsBackAndRepanics(t *testing.T) {
	m, connector := newFakeManager(t, Config{PoolSize: 1})

	assert.PanicsWithValue(t, "bad state", func() {
		_ = m.Execute(context.Background(), Options{}, func(context.Context) error {
			panic("bad state")
		})
	})

	assert.Equal(t, []string{"begin", "rollback"}, connector.conns[0].Ops())
	assert.Equal(t, 0, m.Stats().InUse)
}

func TestJoinOrCreateJoinsActiveTransaction(t *testing.T) {
	m, connector := newFakeManager(t, Config{PoolSize: 1})

	var outer, inner *Tx
	err := m.Execute(context.Background(), Options{}, func(ctx context.Context) error {
		outer, _ = Current(ctx)
		return m.Execute(ctx, Options{}, func(innerCtx context.Context) error {
			inner, _ = Current(innerCtx)
			return nil
		})
	})
	require.NoError(t, err)

	assert.Same(t, outer, inner)
	// One physical transaction: the joined scope never touches the
	// connection.
	require.Len(t, connector.conns, 1)
	assert.Equal(t, []string{"begin", "commit"}, connector.conns[0].Ops())
}

func TestJoinedRollbackPoisonsOuterCommit(t *testing.T) {
	m, connector := newFakeManager(t, Config{PoolSize: 1})

	err := m.Execute(context.Background(), Options{}, func(ctx context.Context) error {
		// The inner failure is swallowed, but the shared transaction is
		// already poisoned.
		_ = m.Execute(ctx, Options{}, func(context.Context) error {
			return errors.New("inner failure")
		})
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.IsTransactionState(err))
	assert.Equal(t, []string{"begin", "rollback"}, connector.conns[0].Ops())
}

func TestAlwaysNewIsIndependent(t *testing.T) {
	m, connector := newFakeManager(t, Config{PoolSize: 2})

	err := m.Execute(context.Background(), Options{}, func(ctx context.Context) error {
		var outer, inner *Tx
		outer, _ = Current(ctx)

		innerErr := m.Execute(ctx, Options{Propagation: AlwaysNew}, func(innerCtx context.Context) error {
			inner, _ = Current(innerCtx)
			return errors.New("inner failure")
		})
		require.Error(t, innerErr)
		assert.NotSame(t, outer, inner)

		// The outer transaction resumes unaffected.
		current, _ := Current(ctx)
		assert.Same(t, outer, current)
		assert.Equal(t, StateActive, outer.State())
		return nil
	})
	require.NoError(t, err)

	require.Len(t, connector.conns, 2)
	assert.Equal(t, []string{"begin", "commit"}, connector.conns[0].Ops())
	assert.Equal(t, []string{"begin", "rollback"}, connector.conns[1].Ops())
}

func TestAlwaysNewOnExhaustedPoolTimesOut(t *testing.T) {
	m, _ := newFakeManager(t, Config{PoolSize: 1, AcquireTimeout: 50 * time.Millisecond})

	err := m.Execute(context.Background(), Options{}, func(ctx context.Context) error {
		return m.Execute(ctx, Options{Propagation: AlwaysNew}, func(context.Context) error {
			return nil
		})
	})
	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err))
}

func TestNestedRollbackKeepsOuterWork(t *testing.T) {
	m, connector := newFakeManager(t, Config{PoolSize: 1})

	err := m.Execute(context.Background(), Options{}, func(ctx context.Context) error {
		innerErr := m.Execute(ctx, Options{Propagation: Nested}, func(context.Context) error {
			return errors.New("inner failure")
		})
		require.Error(t, innerErr)

		outer, _ := Current(ctx)
		assert.Equal(t, StateActive, outer.State())
		return nil
	})
	require.NoError(t, err)

	require.Len(t, connector.conns, 1)
	assert.Equal(t,
		[]string{"begin", "savepoint sp_1", "rollback to sp_1", "commit"},
		connector.conns[0].Ops())
}

func TestNestedCommitReleasesSavepoint(t *testing.T) {
	m, connector := newFakeManager(t, Config{PoolSize: 1})

	err := m.Execute(context.Background(), Options{}, func(ctx context.Context) error {
		return m.Execute(ctx, Options{Propagation: Nested}, func(context.Context) error {
			return nil
		})
	})
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"begin", "savepoint sp_1", "release sp_1", "commit"},
		connector.conns[0].Ops())
}

func TestNestedWithoutOuterActsAsRoot(t *testing.T) {
	m, connector := newFakeManager(t, Config{PoolSize: 1})

	err := m.Execute(context.Background(), Options{Propagation: Nested}, func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"begin", "commit"}, connector.conns[0].Ops())
}

func TestCommitOnCompletedTransactionFails(t *testing.T) {
	m, _ := newFakeManager(t, Config{PoolSize: 1})

	txCtx, tx, err := m.Begin(context.Background(), Options{})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(txCtx))

	err = tx.Commit(txCtx)
	require.Error(t, err)
	assert.True(t, errors.IsTransactionState(err))

	err = tx.Rollback(txCtx)
	require.Error(t, err)
	assert.True(t, errors.IsTransactionState(err))
}

func TestCommitFailureRollsBackAndSurfaces(t *testing.T) {
	connector := &fakeConnector{failCommit: true}
	m, err := NewManager(connector, Config{PoolSize: 1})
	require.NoError(t, err)

	txCtx, tx, err := m.Begin(context.Background(), Options{})
	require.NoError(t, err)

	err = tx.Commit(txCtx)
	require.Error(t, err)
	assert.Equal(t, StateRolledBack, tx.State())

	// The broken connection was discarded, freeing its pool slot.
	assert.Equal(t, 0, m.Stats().Created)
	assert.True(t, connector.conns[0].closed)
}

func TestSetRollbackOnlyTurnsCommitIntoRollback(t *testing.T) {
	m, connector := newFakeManager(t, Config{PoolSize: 1})

	txCtx, tx, err := m.Begin(context.Background(), Options{})
	require.NoError(t, err)

	tx.SetRollbackOnly()
	assert.True(t, tx.RollbackOnly())

	err = tx.Commit(txCtx)
	require.Error(t, err)
	assert.True(t, errors.IsTransactionState(err))
	assert.Equal(t, StateRolledBack, tx.State())
	assert.Equal(t, []string{"begin", "rollback"}, connector.conns[0].Ops())
}

func TestCancellationRollsBackActiveTransaction(t *testing.T) {
	m, connector := newFakeManager(t, Config{PoolSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	_, tx, err := m.Begin(ctx, Options{})
	require.NoError(t, err)

	cancel()

	require.Eventually(t, func() bool {
		return tx.State() == StateRolledBack
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"begin", "rollback"}, connector.conns[0].Ops())
	assert.Equal(t, 0, m.Stats().InUse)
}

func TestCurrentWithoutTransaction(t *testing.T) {
	_, ok := Current(context.Background())
	assert.False(t, ok)
}

func TestTransactionIDsAreUnique(t *testing.T) {
	m, _ := newFakeManager(t, Config{PoolSize: 2})

	txCtx1, tx1, err := m.Begin(context.Background(), Options{})
	require.NoError(t, err)
	txCtx2, tx2, err := m.Begin(context.Background(), Options{})
	require.NoError(t, err)

	assert.NotEmpty(t, tx1.ID())
	assert.NotEqual(t, tx1.ID(), tx2.ID())

	require.NoError(t, tx1.Rollback(txCtx1))
	require.NoError(t, tx2.Rollback(txCtx2))
}
