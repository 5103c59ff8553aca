package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/0xPolygon/cdk-opnode/log"
)

// WithTx runs fn inside a transaction. The transaction is committed when fn
// succeeds and rolled back otherwise. A failed rollback is logged, the error of
// fn is the one returned.
func WithTx(ctx context.Context, logger *log.Logger, database *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if errRllbck := tx.Rollback(); errRllbck != nil {
			logger.Errorf("error while rolling back tx: %v", errRllbck)
		}
		return err
	}
	return tx.Commit()
}
