package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/crucible/errors"
)

type fakeConn struct {
	id     int
	closed atomic.Bool
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func newFakePool(t *testing.T, size int, timeout time.Duration) *Pool {
	t.Helper()
	var next int
	factory := func(context.Context) (Resource, error) {
		next++
		return &fakeConn{id: next}, nil
	}
	p, err := New(factory, Config{Size: size, AcquireTimeout: timeout})
	require.NoError(t, err)
	return p
}

func TestAcquireCreatesLazily(t *testing.T) {
	p := newFakePool(t, 2, time.Second)

	assert.Equal(t, 0, p.Stats().Created)

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, conn)

	stats := p.Stats()
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.InUse)
	assert.Equal(t, 0, stats.Idle)
}

func TestReleaseReturnsToIdleAndReuses(t *testing.T) {
	p := newFakePool(t, 2, time.Second)

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Release(conn))

	stats := p.Stats()
	assert.Equal(t, 1, stats.Idle)
	assert.Equal(t, 0, stats.InUse)

	again, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, conn, again)
	assert.Equal(t, 1, p.Stats().Created)
}

func TestAcquireExhaustedTimesOut(t *testing.T) {
	p := newFakePool(t, 1, 100*time.Millisecond)

	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Acquire(context.Background())
	waited := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err))
	assert.GreaterOrEqual(t, waited, 100*time.Millisecond)
	assert.Less(t, waited, time.Second)
}

func TestAcquireWaiterWokenByRelease(t *testing.T) {
	p := newFakePool(t, 1, time.Second)

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)

	got := make(chan Resource, 1)
	go func() {
		waited, err := p.Acquire(context.Background())
		if err == nil {
			got <- waited
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Release(conn))

	select {
	case waited := <-got:
		assert.Same(t, conn, waited)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by release")
	}
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	p := newFakePool(t, 1, time.Minute)

	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReleaseForeignResource(t *testing.T) {
	p := newFakePool(t, 1, time.Second)

	err := p.Release(&fakeConn{})
	assert.ErrorIs(t, err, errors.ErrNotPoolConnection)
}

func TestReleaseTwice(t *testing.T) {
	p := newFakePool(t, 1, time.Second)

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Release(conn))
	assert.Error(t, p.Release(conn))
}

func TestDiscardFreesSlot(t *testing.T) {
	p := newFakePool(t, 1, time.Second)

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Discard(conn))
	assert.True(t, conn.(*fakeConn).closed.Load())

	// The slot is free again: a fresh resource can be created.
	replacement, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, conn, replacement)
}

func TestCloseRejectsAcquire(t *testing.T) {
	p := newFakePool(t, 2, time.Second)

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Release(conn))

	require.NoError(t, p.Close())
	assert.True(t, conn.(*fakeConn).closed.Load())

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, errors.ErrPoolClosed)
}

func TestCloseWhileCheckedOut(t *testing.T) {
	p := newFakePool(t, 1, time.Second)

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.False(t, conn.(*fakeConn).closed.Load())

	// Releasing after close closes the resource instead of pooling it.
	require.NoError(t, p.Release(conn))
	assert.True(t, conn.(*fakeConn).closed.Load())
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	_, err := New(func(context.Context) (Resource, error) { return &fakeConn{}, nil }, Config{Size: 0})
	assert.Error(t, err)
}
