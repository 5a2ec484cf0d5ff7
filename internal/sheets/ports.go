package sheets

import (
	"context"

	"libreta/internal/core"
)

// Ports for the central office mirror. The cooperative's office keeps a
// shared spreadsheet ledger; the worker pushes every local transaction
// there once, best effort.
type (
	TransactionWriter interface {
		Append(ctx context.Context, tx core.Transaction, rate float64) (rowRef string, err error)
	}

	TransactionDeleter interface {
		Delete(ctx context.Context, txID string) error
	}
)
