// Package swap turns claimed SOL into the target token. The primary route is
// the Jupiter aggregator; when the aggregator cannot serve the buy it falls
// back to PumpPortal. Either way the realized token output is measured from
// chain state rather than trusted from the quote.
package swap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/gagliardetto/solana-go"

	"github.com/hadcinema-ops/giveaway/pkg/jupiter"
	chain "github.com/hadcinema-ops/giveaway/pkg/solana"
)

const submitMaxRetries = 3

// pumpFeeMarginSOL is held back from a fallback buy to cover PumpPortal's fee
// and the transaction fee.
const pumpFeeMarginSOL = 0.0005

// Router prices and assembles aggregator swaps. Implemented by
// jupiter.Client.
type Router interface {
	Quote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps int) (*jupiter.Quote, error)
	Swap(ctx context.Context, quote *jupiter.Quote, user solana.PublicKey, prioritizationFeeLamports uint64) ([]byte, error)
}

// FallbackVenue executes a buy when the aggregator has no route. Implemented
// by pumpportal.Client.
type FallbackVenue interface {
	Buy(ctx context.Context, amountSOL, slippagePct, priorityFeeSOL float64) (solana.Signature, error)
}

// Measurer resolves the realized token output of a submitted buy.
type Measurer interface {
	TotalBalance(ctx context.Context, mint, owner solana.PublicKey) (uint64, error)
	Measure(ctx context.Context, sig solana.Signature, mint, owner solana.PublicKey, balanceBefore uint64) uint64
}

// BuyResult reports an executed buy. TokensOutRaw is the measured delivery; 0
// means the measurement budget ran out, not that nothing arrived.
type BuyResult struct {
	Signature    solana.Signature
	AmountInSOL  float64
	EstTokensOut uint64
	TokensOutRaw uint64
	Venue        string
}

// Buy venues, recorded on results and history entries.
const (
	VenueJupiter    = "jupiter"
	VenuePumpPortal = "pumpportal"
)

type BuyerConfig struct {
	Logger   *slog.Logger
	Chain    chain.Client
	Router   Router
	Fallback FallbackVenue
	Measurer Measurer

	Signer solana.PrivateKey
	Mint   solana.PublicKey

	// ReserveSOL stays in the wallet to keep it rent-exempt and fee-capable.
	ReserveSOL float64
	// MinSwapSOL is the smallest spend worth executing.
	MinSwapSOL  float64
	SlippageBps int

	// Fallback sizing. MinPumpSOL floors the fallback spend, TargetPumpSOL
	// caps it when positive.
	MinPumpSOL      float64
	TargetPumpSOL   float64
	PumpSlippagePct float64

	PriorityFeeSOL            float64
	PrioritizationFeeLamports uint64
}

func (cfg *BuyerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Chain == nil {
		return errors.New("chain client is required")
	}
	if cfg.Router == nil {
		return errors.New("router is required")
	}
	if cfg.Fallback == nil {
		return errors.New("fallback venue is required")
	}
	if cfg.Measurer == nil {
		return errors.New("measurer is required")
	}
	if len(cfg.Signer) == 0 {
		return errors.New("signer is required")
	}
	if cfg.Mint.IsZero() {
		return errors.New("mint is required")
	}
	if cfg.MinSwapSOL <= 0 {
		cfg.MinSwapSOL = 0.003
	}
	if cfg.SlippageBps <= 0 {
		cfg.SlippageBps = 300
	}
	if cfg.MinPumpSOL <= 0 {
		cfg.MinPumpSOL = 0.003
	}
	if cfg.PumpSlippagePct <= 0 {
		cfg.PumpSlippagePct = 5
	}
	return nil
}

type Buyer struct {
	log *slog.Logger
	cfg BuyerConfig
}

func NewBuyer(cfg BuyerConfig) (*Buyer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Buyer{log: cfg.Logger, cfg: cfg}, nil
}

// MarketBuy spends the wallet's SOL above the reserve on the target token.
// Returns (nil, nil) when the spendable amount is below the minimum or when
// both venues failed; either way it is a skipped buy, not a failure, and the
// SOL remains available next cycle.
func (b *Buyer) MarketBuy(ctx context.Context) (*BuyResult, error) {
	wallet := b.cfg.Signer.PublicKey()

	balance, err := b.cfg.Chain.Balance(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("wallet balance: %w", err)
	}
	reserve := chain.SOLToLamports(b.cfg.ReserveSOL)
	if balance <= reserve {
		b.log.Info("swap: nothing to spend above reserve", "balance_sol", chain.LamportsToSOL(balance), "reserve_sol", b.cfg.ReserveSOL)
		return nil, nil
	}
	spendable := balance - reserve
	if chain.LamportsToSOL(spendable) < b.cfg.MinSwapSOL {
		b.log.Info("swap: spendable below minimum, skipping buy",
			"spendable_sol", chain.LamportsToSOL(spendable),
			"min_sol", b.cfg.MinSwapSOL,
		)
		return nil, nil
	}

	tokensBefore, err := b.cfg.Measurer.TotalBalance(ctx, b.cfg.Mint, wallet)
	if err != nil {
		b.log.Warn("swap: pre-buy token balance unavailable, delta fallback degraded", "error", err)
		tokensBefore = 0
	}

	result, routeErr := b.buyViaRouter(ctx, wallet, spendable, tokensBefore)
	if routeErr == nil {
		return result, nil
	}
	if errors.Is(routeErr, jupiter.ErrNoRoute) {
		b.log.Info("swap: no aggregator route, trying fallback venue")
	} else {
		b.log.Warn("swap: aggregator buy failed, trying fallback venue", "error", routeErr)
	}

	result, err = b.buyViaFallback(ctx, wallet, spendable, tokensBefore)
	if err != nil {
		// The SOL stays in the wallet and the cycle continues to the
		// terminal step; the next cycle retries the buy.
		b.log.Warn("swap: fallback buy failed, skipping buy this cycle", "error", err)
		return nil, nil
	}
	return result, nil
}

func (b *Buyer) buyViaRouter(ctx context.Context, wallet solana.PublicKey, spendable, tokensBefore uint64) (*BuyResult, error) {
	quote, err := b.cfg.Router.Quote(ctx, solana.SolMint, b.cfg.Mint, spendable, b.cfg.SlippageBps)
	if err != nil {
		return nil, err
	}

	raw, err := b.cfg.Router.Swap(ctx, quote, wallet, b.cfg.PrioritizationFeeLamports)
	if err != nil {
		return nil, fmt.Errorf("assemble swap: %w", err)
	}
	tx, err := chain.DeserializeTransaction(raw)
	if err != nil {
		return nil, err
	}
	if err := chain.SignWith(tx, b.cfg.Signer); err != nil {
		return nil, err
	}

	sig, err := b.cfg.Chain.Submit(ctx, tx, false, submitMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("submit swap: %w", err)
	}
	b.log.Info("swap: aggregator buy sent",
		"signature", sig,
		"amount_sol", chain.LamportsToSOL(spendable),
		"est_tokens_out", quote.OutAmount,
	)

	delta := b.cfg.Measurer.Measure(ctx, sig, b.cfg.Mint, wallet, tokensBefore)
	return &BuyResult{
		Signature:    sig,
		AmountInSOL:  chain.LamportsToSOL(spendable),
		EstTokensOut: quote.OutAmount,
		TokensOutRaw: delta,
		Venue:        VenueJupiter,
	}, nil
}

func (b *Buyer) buyViaFallback(ctx context.Context, wallet solana.PublicKey, spendable, tokensBefore uint64) (*BuyResult, error) {
	amountSOL := chain.LamportsToSOL(spendable)
	if b.cfg.TargetPumpSOL > 0 {
		amountSOL = math.Min(amountSOL, b.cfg.TargetPumpSOL)
	}
	if amountSOL+pumpFeeMarginSOL < b.cfg.MinPumpSOL {
		b.log.Info("swap: fallback spend below floor, skipping buy",
			"amount_sol", amountSOL,
			"min_sol", b.cfg.MinPumpSOL,
		)
		return nil, nil
	}
	amountSOL = math.Max(b.cfg.MinPumpSOL, amountSOL-pumpFeeMarginSOL)
	// The floor must not push the spend into the reserve.
	amountSOL = math.Min(amountSOL, chain.LamportsToSOL(spendable))
	amountSOL = math.Round(amountSOL*1e6) / 1e6

	sig, err := b.cfg.Fallback.Buy(ctx, amountSOL, b.cfg.PumpSlippagePct, b.cfg.PriorityFeeSOL)
	if err != nil {
		return nil, fmt.Errorf("fallback buy: %w", err)
	}

	delta := b.cfg.Measurer.Measure(ctx, sig, b.cfg.Mint, wallet, tokensBefore)
	return &BuyResult{
		Signature:    sig,
		AmountInSOL:  amountSOL,
		TokensOutRaw: delta,
		Venue:        VenuePumpPortal,
	}, nil
}
