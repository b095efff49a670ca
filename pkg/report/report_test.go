package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hadcinema-ops/giveaway/pkg/stats"
)

func TestGiveaway_Report_Render(t *testing.T) {
	t.Parallel()
	doc := stats.Defaults("mint-addr", "wallet-addr", "mainnet")
	doc.Totals.Claims = 2
	doc.Totals.SolSpent = 0.123456
	doc.Prepend(stats.HistoryEntry{
		Ts:          time.Now().UTC(),
		Type:        stats.EntryBuy,
		Signature:   "sig-abc",
		AmountInSol: 0.05,
	})

	var buf bytes.Buffer
	Render(&buf, doc)

	out := buf.String()
	require.Contains(t, out, "mint-addr")
	require.Contains(t, out, "0.123456")
	require.Contains(t, out, "sig-abc")
	require.Contains(t, out, stats.EntryBuy)
}
