// Package stats holds the persisted flywheel state: public configuration,
// monotone running totals and a capped, newest-first history of on-chain
// actions.
package stats

import (
	"fmt"
	"math"
	"time"
)

// HistoryCap bounds the history log; oldest entries are silently dropped.
const HistoryCap = 200

// DefaultDecimals is used when mint decimals cannot be discovered on-chain.
const DefaultDecimals = 6

// History entry types.
const (
	EntryClaim   = "claim"
	EntryBuy     = "buy"
	EntryBurn    = "burn"
	EntryAirdrop = "airdrop"
)

// PublicConfig is the non-secret configuration exposed on the public API and
// persisted with the document. Decimals is discovered lazily and, once set,
// never overwritten.
type PublicConfig struct {
	Mint     string `json:"mint"`
	Wallet   string `json:"dev"`
	Network  string `json:"network"`
	Decimals *uint8 `json:"decimals"`
}

// Totals are monotone counters, only ever incremented by the orchestrator
// after a step is confirmed.
type Totals struct {
	Claims           uint64  `json:"claims"`
	SolSpent         float64 `json:"solSpent"`
	TokensBought     float64 `json:"tokensBought"`
	TokensBurned     float64 `json:"tokensBurned"`
	TokensAirdropped float64 `json:"tokensAirdropped"`
}

// HistoryEntry is one immutable record of an on-chain action.
type HistoryEntry struct {
	Ts              time.Time `json:"ts"`
	Type            string    `json:"type"`
	Signature       string    `json:"signature"`
	Link            string    `json:"link"`
	AmountInSol     float64   `json:"amountInSol,omitempty"`
	EstTokensOut    float64   `json:"estTokensOut,omitempty"`
	TokensOutRaw    uint64    `json:"tokensOutRaw,omitempty"`
	AmountTokens    float64   `json:"amountTokens,omitempty"`
	AmountTokensRaw uint64    `json:"amountTokensRaw,omitempty"`
	Winner          string    `json:"winner,omitempty"`
	Keyword         string    `json:"keyword,omitempty"`
}

// Document is the whole persisted state, read and replaced as one unit.
type Document struct {
	Config  PublicConfig   `json:"config"`
	Totals  Totals         `json:"totals"`
	History []HistoryEntry `json:"history"`
}

// Defaults returns a fresh document seeded from deployment identity.
func Defaults(mint, wallet, network string) *Document {
	return &Document{
		Config: PublicConfig{
			Mint:    mint,
			Wallet:  wallet,
			Network: network,
		},
		History: []HistoryEntry{},
	}
}

// Prepend inserts an entry at the head of the history, keeping newest-first
// ordering, and trims to HistoryCap.
func (d *Document) Prepend(e HistoryEntry) {
	d.History = append([]HistoryEntry{e}, d.History...)
	d.Trim()
}

// Trim caps the history at HistoryCap entries, dropping the oldest.
func (d *Document) Trim() {
	if len(d.History) > HistoryCap {
		d.History = d.History[:HistoryCap]
	}
}

// ToUi converts a raw token amount to its display value. Decimals are clamped
// to [0, 12].
func ToUi(raw uint64, decimals uint8) float64 {
	d := decimals
	if d > 12 {
		d = 12
	}
	return float64(raw) / math.Pow10(int(d))
}

// SolscanLink derives the explorer link for a transaction signature.
func SolscanLink(signature string) string {
	return fmt.Sprintf("https://solscan.io/tx/%s", signature)
}
