package transaction

import (
	"context"
	"sync"

	"github.com/xraph/crucible/errors"
	"github.com/xraph/crucible/logger"
)

// State is the lifecycle state of a transaction.
type State string

const (
	// StateActive means the transaction accepts work and awaits its
	// single commit or rollback.
	StateActive State = "active"

	// StateCommitted is terminal: the transaction committed.
	StateCommitted State = "committed"

	// StateRolledBack is terminal: the transaction rolled back.
	StateRolledBack State = "rolled_back"
)

// Tx is one transactional scope. Root scopes own a pooled connection;
// nested scopes share their parent's connection behind a savepoint.
// Exactly one commit or rollback reaches the connection per scope, after
// which the state is terminal and further completion calls fail.
type Tx struct {
	id        string
	manager   *Manager
	conn      Conn
	parent    *Tx
	savepoint string
	opts      Options

	mu           sync.Mutex
	state        State
	rollbackOnly bool
	joins        int
	savepoints   int
	done         chan struct{}
	doneClosed   bool
}

// ID returns the unique transaction identifier.
func (tx *Tx) ID() string { return tx.id }

// State returns the current lifecycle state.
func (tx *Tx) State() State {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

// Conn returns the connection the transaction runs on, for executing
// work inside the scope.
func (tx *Tx) Conn() Conn { return tx.conn }

// Options returns the options the scope was begun with.
func (tx *Tx) Options() Options { return tx.opts }

// SetRollbackOnly poisons the transaction: it stays active and keeps
// accepting work, but the eventual commit rolls back instead.
func (tx *Tx) SetRollbackOnly() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.rollbackOnly = true
}

// RollbackOnly reports whether the transaction has been poisoned.
func (tx *Tx) RollbackOnly() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.rollbackOnly
}

// Commit completes the scope. A joined scope detaches without touching
// the connection; the outermost commit reaches the store. Committing a
// rollback-only transaction rolls it back and reports that. Committing a
// non-active transaction is a state error.
func (tx *Tx) Commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state != StateActive {
		return errors.ErrTransactionState("commit", string(tx.state))
	}
	if tx.joins > 0 {
		tx.joins--
		return nil
	}
	if tx.rollbackOnly {
		if err := tx.rollbackLocked(ctx); err != nil {
			return err
		}
		return errors.ErrTransactionState("commit", "rollback-only")
	}
	return tx.commitLocked(ctx)
}

// Rollback aborts the scope. From a joined scope it detaches and poisons
// the shared transaction; the outermost rollback reaches the store.
func (tx *Tx) Rollback(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state != StateActive {
		return errors.ErrTransactionState("rollback", string(tx.state))
	}
	if tx.joins > 0 {
		tx.joins--
		tx.rollbackOnly = true
		return nil
	}
	return tx.rollbackLocked(ctx)
}

// join attaches one more participant to an active transaction.
func (tx *Tx) join() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.joins++
}

// nextSavepoint hands out savepoint names, unique within the root scope.
func (tx *Tx) nextSavepoint() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.savepoints++
	return tx.savepoints
}

// abort force-rolls-back an active transaction regardless of attached
// participants. Used when the owning context is canceled.
func (tx *Tx) abort(ctx context.Context) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state != StateActive {
		return
	}
	tx.joins = 0
	if err := tx.rollbackLocked(ctx); err != nil {
		tx.manager.logger.Warn("rollback on cancellation failed",
			logger.String("transaction", tx.id),
			logger.Error(err),
		)
	}
}

func (tx *Tx) commitLocked(ctx context.Context) error {
	if tx.savepoint != "" {
		if err := tx.conn.ReleaseSavepoint(ctx, tx.savepoint); err != nil {
			tx.finishLocked(StateRolledBack)
			return errors.ErrConnectionError("release savepoint", err)
		}
		tx.finishLocked(StateCommitted)
		return nil
	}

	if err := tx.conn.Commit(ctx); err != nil {
		// A failed commit leaves no committed work behind; the scope is
		// rolled back and the failure surfaces to the caller.
		tx.finishLocked(StateRolledBack)
		tx.manager.releaseConn(tx.conn, true)
		return errors.ErrConnectionError("commit", err)
	}

	tx.finishLocked(StateCommitted)
	tx.manager.releaseConn(tx.conn, false)
	return nil
}

func (tx *Tx) rollbackLocked(ctx context.Context) error {
	if tx.savepoint != "" {
		err := tx.conn.RollbackTo(ctx, tx.savepoint)
		tx.finishLocked(StateRolledBack)
		if err != nil {
			return errors.ErrConnectionError("rollback to savepoint", err)
		}
		return nil
	}

	err := tx.conn.Rollback(ctx)
	tx.finishLocked(StateRolledBack)
	tx.manager.releaseConn(tx.conn, err != nil)
	if err != nil {
		return errors.ErrConnectionError("rollback", err)
	}
	return nil
}

func (tx *Tx) finishLocked(state State) {
	tx.state = state
	if tx.done != nil && !tx.doneClosed {
		close(tx.done)
		tx.doneClosed = true
	}
	tx.manager.observeFinish(tx, state)
}
