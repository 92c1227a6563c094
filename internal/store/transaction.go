package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskflow-api/internal/platform/logger"
)

// TxFn runs inside a transaction. Returning nil commits.
type TxFn func(ctx context.Context, tx *sql.Tx) error

// RunInTransaction runs fn in a new transaction on db. An error from fn
// rolls back and is returned unchanged when the rollback succeeds. A panic
// in fn rolls back and is re-raised.
func RunInTransaction(ctx context.Context, db *sql.DB, fn TxFn) (err error) {
	log := logger.FromContext(ctx)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", slog.String("error", err.Error()))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error("rollback after panic failed", slog.String("error", rbErr.Error()))
		}
		log.Error("transaction aborted by panic", slog.Any("panic", p))
		// ALLOW-PANIC: re-raising a panic from inside the transaction
		panic(p)
	}()

	if err = fn(ctx, tx); err != nil {
		return rollback(log, tx, err)
	}

	if err = tx.Commit(); err != nil {
		log.Error("failed to commit transaction", slog.String("error", err.Error()))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func rollback(log *slog.Logger, tx *sql.Tx, cause error) error {
	if err := tx.Rollback(); err != nil {
		log.Error("failed to roll back transaction",
			slog.String("rollback_error", err.Error()),
			slog.String("cause", cause.Error()))
		return fmt.Errorf("error rolling back transaction: %v (cause: %w)", err, cause)
	}
	log.Debug("transaction rolled back", slog.String("cause", cause.Error()))
	return cause
}
