// Package memory is an in-process stand-in for the office spreadsheet,
// used when no Google credentials are configured and by worker tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"libreta/internal/core"
)

type row struct {
	tx   core.Transaction
	rate float64
}

type Store struct {
	mu   sync.Mutex
	rows []row
}

func New() *Store {
	return &Store{}
}

// Append stores the transaction and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, tx core.Transaction, rate float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row{tx: tx, rate: rate})
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Delete removes the row with the given transaction id, if present.
func (s *Store) Delete(_ context.Context, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rows {
		if r.tx.ID == txID {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

// Transactions returns a copy of the mirrored rows, append order.
func (s *Store) Transactions() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.tx
	}
	return out
}
