// Package receipt renders one transaction group as the text slip members
// share with the cooperative office by messenger.
package receipt

import (
	"fmt"
	"strings"

	"libreta/internal/core"
)

// Render produces the receipt for one operation. Line items follow the
// canonical order: loan, certificate, protection, fund, savings.
func Render(m core.Member, g core.Group, rate float64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "COOPERATIVA - COMPROBANTE\n")
	fmt.Fprintf(&b, "Asociado: %s (No. %d)\n", m.FullName(), m.ID)
	if len(g.Txs) > 0 {
		fmt.Fprintf(&b, "Fecha: %s\n", g.Txs[0].Date.ISO())
	}
	if g.Key.Reference != "" {
		fmt.Fprintf(&b, "Referencia: %s\n", g.Key.Reference)
	}
	b.WriteString(strings.Repeat("-", 34) + "\n")

	var totalBs, totalUsd float64
	for _, tx := range g.SortForReceipt() {
		usd := 0.0
		if rate > 0 {
			usd = tx.AmountBs / rate
		}
		totalBs += tx.AmountBs
		totalUsd += usd

		line := tx.Category.Label()
		if tx.MonthsPaid > 1 {
			line = fmt.Sprintf("%s (%d meses)", line, tx.MonthsPaid)
		}
		fmt.Fprintf(&b, "%-26s %s\n", line, core.FormatUSD(core.Round2(usd)))
	}

	b.WriteString(strings.Repeat("-", 34) + "\n")
	fmt.Fprintf(&b, "Total: %s", core.FormatBs(totalBs))
	if rate > 0 {
		fmt.Fprintf(&b, " / %s (tasa %.2f)", core.FormatUSD(core.Round2(totalUsd)), rate)
	}
	b.WriteString("\n")
	return b.String()
}
