// Package report renders the persisted flywheel state as terminal tables for
// the --print-stats command.
package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/hadcinema-ops/giveaway/pkg/stats"
)

// historyRows caps the table output; the full history stays in the store.
const historyRows = 25

// Render writes the totals and recent history of doc to w.
func Render(w io.Writer, doc *stats.Document) {
	renderConfig(w, doc)
	renderTotals(w, doc)
	renderHistory(w, doc)
}

func renderConfig(w io.Writer, doc *stats.Document) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Deployment")
	t.AppendRow(table.Row{"Mint", doc.Config.Mint})
	t.AppendRow(table.Row{"Wallet", doc.Config.Wallet})
	t.AppendRow(table.Row{"Network", doc.Config.Network})
	if doc.Config.Decimals != nil {
		t.AppendRow(table.Row{"Decimals", *doc.Config.Decimals})
	} else {
		t.AppendRow(table.Row{"Decimals", "not discovered yet"})
	}
	t.Render()
}

func renderTotals(w io.Writer, doc *stats.Document) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Totals")
	t.AppendHeader(table.Row{"Claims", "SOL Spent", "Tokens Bought", "Tokens Burned", "Tokens Airdropped"})
	t.AppendRow(table.Row{
		doc.Totals.Claims,
		fmt.Sprintf("%.6f", doc.Totals.SolSpent),
		fmt.Sprintf("%.4f", doc.Totals.TokensBought),
		fmt.Sprintf("%.4f", doc.Totals.TokensBurned),
		fmt.Sprintf("%.4f", doc.Totals.TokensAirdropped),
	})
	t.Render()
}

func renderHistory(w io.Writer, doc *stats.Document) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("History (%d of %d)", min(historyRows, len(doc.History)), len(doc.History)))
	t.AppendHeader(table.Row{"Time", "Type", "SOL In", "Tokens", "Winner", "Signature"})

	for i, e := range doc.History {
		if i >= historyRows {
			break
		}
		t.AppendRow(table.Row{
			e.Ts.Format("2006-01-02 15:04:05"),
			e.Type,
			formatAmount(e.AmountInSol, "%.6f"),
			formatAmount(e.AmountTokens, "%.4f"),
			e.Winner,
			e.Signature,
		})
	}
	t.Render()
}

func formatAmount(v float64, format string) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf(format, v)
}
