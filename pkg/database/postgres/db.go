package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bagel-payroll/bagel-server/pkg/retry"
	"github.com/bagel-payroll/bagel-server/pkg/retry/backoff"
)

const (
	maxTxAttempts = 5
	txBackoff     = 10 * time.Millisecond
	maxTxBackoff  = 200 * time.Millisecond
)

var (
	ErrAlreadyInTx = errors.New("already executing in existing db tx")
	ErrNotInTx     = errors.New("not executing in existing db tx")

	errInsufficientIsolation = errors.New("current tx doesn't meet isolation level requirements")
)

type txStateContextKey struct{}

// txState is the DB transaction carried by a context.
type txState struct {
	tx        *sqlx.Tx
	isolation sql.IsolationLevel
}

func normalizeIsolation(isolation sql.IsolationLevel) sql.IsolationLevel {
	if isolation == sql.LevelDefault {
		return sql.LevelReadCommitted
	}
	return isolation
}

// ExecuteTxWithinCtx runs fn inside a DB transaction carried by the context
// passed to it. The transaction commits when fn returns nil and rolls back
// otherwise. Serialization failures and deadlocks rerun fn in a fresh
// transaction, so fn must be safe to repeat.
func ExecuteTxWithinCtx(ctx context.Context, db *sqlx.DB, isolation sql.IsolationLevel, fn func(context.Context) error) error {
	if ctx.Value(txStateContextKey{}) != nil {
		return ErrAlreadyInTx
	}

	state := &txState{isolation: normalizeIsolation(isolation)}

	_, err := retry.Retry(
		func() error {
			tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: state.isolation})
			if err != nil {
				return err
			}
			state.tx = tx

			return finish(tx, fn(context.WithValue(ctx, txStateContextKey{}, state)))
		},
		retry.Limit(maxTxAttempts),
		retry.Context(ctx),
		func(_ uint, err error) bool {
			return IsRetriableTxError(err)
		},
		retry.BackoffWithJitter(backoff.BinaryExponential(txBackoff), maxTxBackoff, 0.2),
	)
	return err
}

// ExecuteInTx runs fn in the transaction carried by ctx when there is one.
// Otherwise fn gets a transaction of its own that is committed or rolled back
// before returning.
func ExecuteInTx(ctx context.Context, db *sqlx.DB, isolation sql.IsolationLevel, fn func(tx *sqlx.Tx) error) error {
	isolation = normalizeIsolation(isolation)

	tx, err := txFromCtx(ctx, isolation)
	switch err {
	case nil:
		return fn(tx)
	case ErrNotInTx:
	default:
		return err
	}

	tx, err = db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return err
	}
	return finish(tx, fn(tx))
}

// finish commits tx when err is nil and rolls it back otherwise. A rollback
// is always issued on failure so the connection returns to the pool.
func finish(tx *sqlx.Tx, err error) error {
	if err == nil {
		return tx.Commit()
	}

	if rollbackErr := tx.Rollback(); rollbackErr != nil {
		return fmt.Errorf("failed to rollback transaction after %v: %w", err, rollbackErr)
	}
	return err
}

func txFromCtx(ctx context.Context, desired sql.IsolationLevel) (*sqlx.Tx, error) {
	state, ok := ctx.Value(txStateContextKey{}).(*txState)
	if !ok || state.tx == nil {
		return nil, ErrNotInTx
	}
	if state.isolation < desired {
		return nil, errInsufficientIsolation
	}
	return state.tx, nil
}
