package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/code-payments/tokadapt-server/pkg/retry"
	"github.com/code-payments/tokadapt-server/pkg/retry/backoff"
)

type ctxTxKey struct{}

// ctxTx is the transaction carried by contexts from ExecuteTxWithinCtx.
type ctxTx struct {
	tx        *sqlx.Tx
	isolation sql.IsolationLevel
}

const (
	// MaxSerializationAttempts bounds ExecuteRetryable.
	MaxSerializationAttempts = 10

	serializationBackoffBase = 5 * time.Millisecond
	serializationBackoffMax  = 250 * time.Millisecond
)

var (
	ErrAlreadyInTx = errors.New("already executing in existing db tx")
	ErrNotInTx     = errors.New("not executing in existing db tx")
)

// ExecuteRetryable retries fn while it fails with a serialization failure, up
// to MaxSerializationAttempts times. fn must be safe to run more than once.
func ExecuteRetryable(fn func() error) error {
	_, err := retry.Retry(
		fn,
		retry.RetriableIf(IsSerializationFailure),
		retry.Limit(MaxSerializationAttempts),
		retry.BackoffWithJitter(backoff.BinaryExponential(serializationBackoffBase), serializationBackoffMax, 0.25),
	)
	return err
}

// IsInTx returns whether the context carries a transaction started by
// ExecuteTxWithinCtx.
func IsInTx(ctx context.Context) bool {
	_, ok := ctx.Value(ctxTxKey{}).(ctxTx)
	return ok
}

// ExecuteTxWithinCtx runs fn in a new transaction carried by the context
// passed to fn. The transaction commits when fn succeeds and rolls back
// otherwise. Nested calls fail with ErrAlreadyInTx.
func ExecuteTxWithinCtx(ctx context.Context, db *sqlx.DB, isolation sql.IsolationLevel, fn func(context.Context) error) error {
	if IsInTx(ctx) {
		return ErrAlreadyInTx
	}

	isolation = effectiveIsolation(isolation)
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return err
	}

	ctx = context.WithValue(ctx, ctxTxKey{}, ctxTx{tx: tx, isolation: isolation})
	return finish(tx, fn(ctx))
}

// ExecuteInTx runs fn within the transaction carried by ctx when there is one,
// leaving commit and rollback to its owner. Otherwise fn runs in a new
// transaction that is completed here.
func ExecuteInTx(ctx context.Context, db *sqlx.DB, isolation sql.IsolationLevel, fn func(tx *sqlx.Tx) error) error {
	isolation = effectiveIsolation(isolation)

	existing, err := txFromCtx(ctx, isolation)
	switch {
	case err == nil:
		return fn(existing)
	case err != ErrNotInTx:
		return err
	}

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return err
	}
	return finish(tx, fn(tx))
}

// finish commits tx when fnErr is nil. Rollback is always attempted
// otherwise so the connection is returned to the pool.
func finish(tx *sqlx.Tx, fnErr error) error {
	if fnErr == nil {
		return tx.Commit()
	}
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return fnErr
}

// effectiveIsolation maps sql.LevelDefault to the Postgres default.
func effectiveIsolation(isolation sql.IsolationLevel) sql.IsolationLevel {
	if isolation == sql.LevelDefault {
		return sql.LevelReadCommitted
	}
	return isolation
}

func txFromCtx(ctx context.Context, desired sql.IsolationLevel) (*sqlx.Tx, error) {
	v := ctx.Value(ctxTxKey{})
	if v == nil {
		return nil, ErrNotInTx
	}

	current, ok := v.(ctxTx)
	if !ok {
		return nil, errors.New("invalid type for tx")
	}
	if current.isolation < desired {
		return nil, errors.New("current tx doesn't meet isolation level requirements")
	}
	return current.tx, nil
}
