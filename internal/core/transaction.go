package core

import (
	"errors"
	"sort"
	"strings"
)

type (
	// Draft is a transaction produced by the distribution engine before it
	// has been assigned an id and an owner. The caller assigns ids and
	// persists the whole group atomically.
	Draft struct {
		Date        Date
		Category    Category
		AmountBs    float64
		Description string
		Reference   string
		MonthsPaid  int
	}

	// Transaction is one atomic monetary movement in a member's log.
	// AmountBs is negative only for savings withdrawals.
	Transaction struct {
		ID          string
		MemberID    int64
		Date        Date
		Category    Category
		AmountBs    float64
		Description string
		Reference   string
		MonthsPaid  int
	}

	// GroupKey identifies the transactions belonging to one user-facing
	// operation. Rows sharing a date and a non-empty reference are one
	// group; rows without a reference are singleton groups keyed by their
	// own id (Solo), so an empty reference can never collide.
	GroupKey struct {
		Date      Date
		Reference string
		Solo      string
	}

	// Group is a transaction group in insertion order.
	Group struct {
		Key GroupKey
		Txs []Transaction
	}

	// History is a member's full transaction log, newest first.
	History []Transaction
)

var (
	ErrEmptyDescription = errors.New("empty description")
	ErrUnknownCategory  = errors.New("unknown category")
)

// Key returns the grouping key for t.
func (t Transaction) Key() GroupKey {
	if strings.TrimSpace(t.Reference) == "" {
		return GroupKey{Date: t.Date, Solo: t.ID}
	}
	return GroupKey{Date: t.Date, Reference: t.Reference}
}

func (d Draft) Validate() error {
	if err := d.Date.Validate(); err != nil {
		return err
	}
	if !d.Category.Valid() {
		return ErrUnknownCategory
	}
	if d.AmountBs == 0 {
		return ErrInvalidAmount
	}
	if d.AmountBs < 0 && d.Category != Savings {
		// Only savings withdrawals may be negative.
		return ErrInvalidAmount
	}
	if len(strings.TrimSpace(d.Description)) == 0 {
		return ErrEmptyDescription
	}
	return nil
}

// ByCategory returns the transactions in h with any of the given categories,
// preserving order.
func (h History) ByCategory(cats ...Category) History {
	var out History
	for _, tx := range h {
		for _, c := range cats {
			if tx.Category == c {
				out = append(out, tx)
				break
			}
		}
	}
	return out
}

// TotalUSD sums the USD value of every transaction in h with one of the
// given categories, converting each row at its own date's rate. Rows whose
// date has no rate contribute zero.
func (h History) TotalUSD(rates RateTable, cats ...Category) float64 {
	var sum float64
	for _, tx := range h.ByCategory(cats...) {
		sum += rates.USDValue(tx.AmountBs, tx.Date)
	}
	return sum
}

// MonthsPaid sums the monthsPaid counters over all social-protection rows.
func (h History) MonthsPaid() int {
	var months int
	for _, tx := range h {
		if tx.Category == SocialProtection && tx.MonthsPaid > 0 {
			months += tx.MonthsPaid
		}
	}
	return months
}

// LatestDate returns the most recent transaction date among the given
// categories, or a zero Date when there are none.
func (h History) LatestDate(cats ...Category) Date {
	var latest Date
	for _, tx := range h.ByCategory(cats...) {
		if latest.IsZero() || tx.Date.After(latest.Time) {
			latest = tx.Date
		}
	}
	return latest
}

// Groups collapses h into transaction groups, newest group first. Order
// within a group follows insertion order.
func (h History) Groups() []Group {
	index := make(map[GroupKey]int)
	var groups []Group
	for _, tx := range h {
		k := tx.Key()
		if i, ok := index[k]; ok {
			groups[i].Txs = append(groups[i].Txs, tx)
			continue
		}
		index[k] = len(groups)
		groups = append(groups, Group{Key: k, Txs: []Transaction{tx}})
	}
	return groups
}

// WithoutIDs returns h with every transaction whose id is in ids removed.
func (h History) WithoutIDs(ids []string) History {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	out := make(History, 0, len(h))
	for _, tx := range h {
		if _, ok := drop[tx.ID]; !ok {
			out = append(out, tx)
		}
	}
	return out
}

// IDs returns the id set of the group.
func (g Group) IDs() []string {
	ids := make([]string, len(g.Txs))
	for i, tx := range g.Txs {
		ids[i] = tx.ID
	}
	return ids
}

// TotalBs sums the bolivar amounts of the group.
func (g Group) TotalBs() float64 {
	var sum float64
	for _, tx := range g.Txs {
		sum += tx.AmountBs
	}
	return sum
}

// SortForReceipt orders the group's rows in the canonical receipt order:
// loan, certificate, protection, fund, savings.
func (g Group) SortForReceipt() []Transaction {
	out := append([]Transaction(nil), g.Txs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Category.SortOrder() < out[j].Category.SortOrder()
	})
	return out
}
