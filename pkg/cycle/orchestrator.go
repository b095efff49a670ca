// Package cycle drives the flywheel: claim creator fees, buy the target
// token with the proceeds, then hand the holding to the configured terminal
// (burn or airdrop). Exactly one cycle runs at a time.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hadcinema-ops/giveaway/pkg/holders"
	"github.com/hadcinema-ops/giveaway/pkg/metrics"
	"github.com/hadcinema-ops/giveaway/pkg/pumpportal"
	chain "github.com/hadcinema-ops/giveaway/pkg/solana"
	"github.com/hadcinema-ops/giveaway/pkg/stats"
	"github.com/hadcinema-ops/giveaway/pkg/swap"
)

// ErrCycleInFlight is returned when a run is requested while another is
// still executing. The caller reports it as a skip, not a failure.
var ErrCycleInFlight = errors.New("cycle already in flight")

// FeeClaimer collects accumulated creator fees into the wallet.
type FeeClaimer interface {
	Claim(ctx context.Context) (*pumpportal.ClaimResult, error)
}

// Buyer converts claimed SOL into the target token.
type Buyer interface {
	MarketBuy(ctx context.Context) (*swap.BuyResult, error)
}

// Terminal disposes of the wallet's token holding at the end of a cycle and
// reports what it did. A nil entry means there was nothing to dispose of.
type Terminal interface {
	Dispose(ctx context.Context, decimals uint8) (*stats.HistoryEntry, error)
}

type OrchestratorConfig struct {
	Logger   *slog.Logger
	Store    stats.Store
	Claimer  FeeClaimer
	Buyer    Buyer
	Terminal Terminal
	Decimals stats.DecimalsFetcher
	Events   *Broadcaster

	// Registry, when set, is rotated to a fresh keyword after each cycle.
	Registry *holders.Registry
}

func (cfg *OrchestratorConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Buyer == nil {
		return errors.New("buyer is required")
	}
	if cfg.Terminal == nil {
		return errors.New("terminal is required")
	}
	if cfg.Decimals == nil {
		return errors.New("decimals fetcher is required")
	}
	if cfg.Events == nil {
		cfg.Events = NewBroadcaster()
	}
	return nil
}

type Orchestrator struct {
	log     *slog.Logger
	cfg     OrchestratorConfig
	running atomic.Bool
	lastRun traceKeeper
}

func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{log: cfg.Logger, cfg: cfg}, nil
}

// LastRun returns a snapshot of the most recent cycle's trace, or nil before
// the first one. The snapshot is safe to serialize while a run is in flight.
func (o *Orchestrator) LastRun() *Trace {
	if t := o.lastRun.get(); t != nil {
		return t.Snapshot()
	}
	return nil
}

// Events returns the broadcaster for event-stream subscribers.
func (o *Orchestrator) Events() *Broadcaster {
	return o.cfg.Events
}

// Running reports whether a cycle or sync is currently in flight.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// RunCycle executes one full claim-buy-dispose cycle. Only one run may be in
// flight; a concurrent request gets ErrCycleInFlight. A claim failure is
// logged and traced but does not stop the cycle; a buy failure does. Terminal
// failures are traced and leave the holding for the next cycle.
func (o *Orchestrator) RunCycle(ctx context.Context, reason string) (*Trace, error) {
	if !o.running.CompareAndSwap(false, true) {
		metrics.RecordCycle("skipped", 0)
		return nil, ErrCycleInFlight
	}
	defer o.running.Store(false)

	start := time.Now()
	trace := newTrace(reason)
	trace.add("begin", map[string]any{"reason": reason})
	o.lastRun.set(trace)
	o.log.Info("cycle: begin", "run_id", trace.ID, "reason", reason)

	doc, err := o.cfg.Store.Load(ctx)
	if err != nil {
		return o.fail(trace, start, fmt.Errorf("load stats: %w", err))
	}
	decimals := stats.ResolveDecimals(ctx, o.log, doc, o.cfg.Decimals)

	o.claim(ctx, trace, doc)

	buy, err := o.cfg.Buyer.MarketBuy(ctx)
	if err != nil {
		o.persist(ctx, doc)
		return o.fail(trace, start, fmt.Errorf("buy: %w", err))
	}
	if buy == nil {
		trace.add("buy_skipped", nil)
	} else {
		o.recordBuy(ctx, trace, doc, buy, decimals)
	}

	// The terminal still runs on a skipped buy: a holding left behind by an
	// earlier failed cycle gets disposed of now.
	o.dispose(ctx, trace, doc, decimals)

	doc.Trim()
	if err := o.cfg.Store.Save(ctx, doc); err != nil {
		return o.fail(trace, start, fmt.Errorf("persist stats: %w", err))
	}

	trace.add("done", nil)
	o.cfg.Events.Publish(Event{Type: "cycle", Data: trace.Snapshot()})
	metrics.RecordCycle("ok", time.Since(start))
	o.log.Info("cycle: done", "run_id", trace.ID, "duration", time.Since(start))
	return trace, nil
}

// ForceSync re-resolves on-chain derived state and runs the terminal step
// without claiming or buying, so a holding left behind by an interrupted
// cycle is reconciled on demand. It shares the single-flight guard with
// RunCycle.
func (o *Orchestrator) ForceSync(ctx context.Context) (*stats.Document, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInFlight
	}
	defer o.running.Store(false)

	doc, err := o.cfg.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}
	decimals := stats.ResolveDecimals(ctx, o.log, doc, o.cfg.Decimals)

	trace := newTrace("sync")
	trace.add("begin", map[string]any{"reason": "sync"})
	o.lastRun.set(trace)
	o.dispose(ctx, trace, doc, decimals)

	doc.Trim()
	if err := o.cfg.Store.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("persist stats: %w", err)
	}
	trace.add("done", nil)
	o.cfg.Events.Publish(Event{Type: "cycle", Data: trace.Snapshot()})
	o.log.Info("cycle: forced sync")
	return doc, nil
}

func (o *Orchestrator) claim(ctx context.Context, trace *Trace, doc *stats.Document) {
	if o.cfg.Claimer == nil {
		return
	}
	res, err := o.cfg.Claimer.Claim(ctx)
	metrics.RecordClaim(err, lamportsOf(res))
	if err != nil {
		// Nothing to claim is the common case; the buy may still have SOL
		// from earlier claims to work with.
		trace.add("claim_error", map[string]any{"error": err.Error()})
		o.log.Warn("cycle: claim failed, continuing", "error", err)
		return
	}

	doc.Totals.Claims++
	doc.Prepend(stats.HistoryEntry{
		Ts:          time.Now().UTC(),
		Type:        stats.EntryClaim,
		Signature:   res.Signature.String(),
		Link:        stats.SolscanLink(res.Signature.String()),
		AmountInSol: chain.LamportsToSOL(res.LamportsClaimed),
	})
	trace.add("claim", map[string]any{
		"signature": res.Signature.String(),
		"lamports":  res.LamportsClaimed,
	})
	o.persist(ctx, doc)
}

func (o *Orchestrator) recordBuy(ctx context.Context, trace *Trace, doc *stats.Document, buy *swap.BuyResult, decimals uint8) {
	metrics.RecordBuy(buy.Venue, buy.AmountInSOL)
	doc.Totals.SolSpent += buy.AmountInSOL
	doc.Totals.TokensBought += stats.ToUi(buy.TokensOutRaw, decimals)
	doc.Prepend(stats.HistoryEntry{
		Ts:           time.Now().UTC(),
		Type:         stats.EntryBuy,
		Signature:    buy.Signature.String(),
		Link:         stats.SolscanLink(buy.Signature.String()),
		AmountInSol:  buy.AmountInSOL,
		EstTokensOut: stats.ToUi(buy.EstTokensOut, decimals),
		TokensOutRaw: buy.TokensOutRaw,
	})
	trace.add("buy", map[string]any{
		"signature":      buy.Signature.String(),
		"venue":          buy.Venue,
		"amount_sol":     buy.AmountInSOL,
		"tokens_out_raw": buy.TokensOutRaw,
	})

	// Persist before the terminal acts: if the process dies mid-disposal the
	// bought amount is already on the books.
	o.persist(ctx, doc)
}

func (o *Orchestrator) dispose(ctx context.Context, trace *Trace, doc *stats.Document, decimals uint8) {
	entry, err := o.cfg.Terminal.Dispose(ctx, decimals)
	if err != nil {
		// The holding is still in the wallet; the next cycle picks it up.
		trace.add("terminal_error", map[string]any{"error": err.Error()})
		o.log.Warn("cycle: terminal failed, holding carries over", "error", err)
		return
	}
	if entry == nil {
		trace.add("terminal_skipped", nil)
		return
	}

	switch entry.Type {
	case stats.EntryBurn:
		doc.Totals.TokensBurned += entry.AmountTokens
	case stats.EntryAirdrop:
		doc.Totals.TokensAirdropped += entry.AmountTokens
	}
	metrics.RecordDisposal(entry.Type, entry.AmountTokensRaw)
	doc.Prepend(*entry)
	trace.add(entry.Type, map[string]any{
		"signature":  entry.Signature,
		"amount_raw": entry.AmountTokensRaw,
		"winner":     entry.Winner,
	})

	if o.cfg.Registry != nil {
		keyword := holders.NewKeyword()
		o.cfg.Registry.Reset(keyword)
		o.cfg.Events.Publish(Event{Type: "keyword", Data: map[string]any{"keyword": keyword}})
	}
}

// persist is the mid-cycle save: failures are logged and the final save
// retries with the same document.
func (o *Orchestrator) persist(ctx context.Context, doc *stats.Document) {
	if err := o.cfg.Store.Save(ctx, doc); err != nil {
		o.log.Warn("cycle: mid-cycle persist failed", "error", err)
	}
}

func (o *Orchestrator) fail(trace *Trace, start time.Time, err error) (*Trace, error) {
	trace.add("error", map[string]any{"error": err.Error()})
	o.cfg.Events.Publish(Event{Type: "cycle", Data: trace.Snapshot()})
	metrics.RecordCycle("error", time.Since(start))
	o.log.Error("cycle: failed", "run_id", trace.ID, "error", err)
	return trace, err
}

func lamportsOf(res *pumpportal.ClaimResult) uint64 {
	if res == nil {
		return 0
	}
	return res.LamportsClaimed
}
