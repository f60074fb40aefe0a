package database

import (
	"context"
	"database/sql"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type txContextKey string

const txKey = txContextKey("tx")

// Tx is an open transaction. Commit and Rollback are no-ops for callers
// that joined an existing transaction via the context; only the creator
// closes it. A deferred Rollback after a successful Commit is also a no-op,
// which keeps the repository pattern a plain
// "defer tx.Rollback(ctx); ...; return tx.Commit(ctx)".
type Tx interface {
	Querier
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction wraps sqlx.Tx with ownership and closed-state tracking. The
// closed flag is shared between the owner and joined views so IsOpen stays
// consistent.
type Transaction struct {
	*sqlx.Tx
	logger ectologger.Logger
	owner  bool
	closed *bool
}

// GetTx returns the transaction attached to ctx when one is still open, or
// begins a new one and attaches it. Joined callers get a non-owning view.
func GetTx(ctx context.Context, logger ectologger.Logger, db *sqlx.DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if existing, ok := ctx.Value(txKey).(*Transaction); ok && existing.IsOpen() {
		joined := &Transaction{
			Tx:     existing.Tx,
			logger: logger,
			owner:  false,
			closed: existing.closed,
		}
		return ctx, joined, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("Failed to begin transaction")
		return ctx, nil, errors.Wrap(err, "beginning transaction")
	}

	closed := false
	owned := &Transaction{Tx: tx, logger: logger, owner: true, closed: &closed}
	return context.WithValue(ctx, txKey, owned), owned, nil
}

func (t *Transaction) IsOpen() bool {
	return !*t.closed
}

func (t *Transaction) Commit(ctx context.Context) error {
	if !t.owner || *t.closed {
		return nil
	}
	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("Failed to commit transaction")
		return errors.Wrap(err, "committing transaction")
	}
	*t.closed = true
	return nil
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if !t.owner || *t.closed {
		return nil
	}
	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("Failed to roll back transaction")
		return errors.Wrap(err, "rolling back transaction")
	}
	*t.closed = true
	return nil
}
