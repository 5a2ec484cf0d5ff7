// Package export renders a member's transaction log as a flat table for
// download and sharing with the cooperative office.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"libreta/internal/core"
)

var csvHeader = []string{
	"ID", "Fecha", "Categoría", "Descripción", "Referencia",
	"Monto Bs", "Tasa", "Monto $", "Saldo Ahorro $",
}

// WriteCSV emits one row per transaction, oldest first, with each row
// converted at its own date's rate and a running savings balance computed
// the same way the dashboard does it.
func WriteCSV(w io.Writer, m core.Member, h core.History, rates core.RateTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	rows := core.Chronological(h)
	balances := core.RunningSavings(m, h, rates)

	for i, tx := range rows {
		rate, _ := rates.Rate(tx.Date)
		usd := rates.USDValue(tx.AmountBs, tx.Date)
		record := []string{
			tx.ID,
			tx.Date.ISO(),
			tx.Category.Label(),
			tx.Description,
			tx.Reference,
			fmt.Sprintf("%.2f", tx.AmountBs),
			formatRate(rate),
			fmt.Sprintf("%.2f", core.Round2(usd)),
			fmt.Sprintf("%.2f", core.Round2(balances[i])),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %s: %w", tx.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatRate(rate float64) string {
	if rate <= 0 {
		return ""
	}
	return fmt.Sprintf("%.2f", rate)
}
