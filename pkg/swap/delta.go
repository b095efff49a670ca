package swap

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/hadcinema-ops/giveaway/pkg/retry"
	chain "github.com/hadcinema-ops/giveaway/pkg/solana"
)

// DeltaMeasurerConfig bounds the two measurement strategies.
type DeltaMeasurerConfig struct {
	Logger *slog.Logger
	Chain  chain.Client
	Clock  clockwork.Clock

	ReceiptAttempts int
	ReceiptInterval time.Duration
	BalanceAttempts int
	BalanceInterval time.Duration
}

func (cfg *DeltaMeasurerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Chain == nil {
		return errors.New("chain client is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ReceiptAttempts <= 0 {
		cfg.ReceiptAttempts = 8
	}
	if cfg.ReceiptInterval <= 0 {
		cfg.ReceiptInterval = 500 * time.Millisecond
	}
	if cfg.BalanceAttempts <= 0 {
		cfg.BalanceAttempts = 10
	}
	if cfg.BalanceInterval <= 0 {
		cfg.BalanceInterval = 400 * time.Millisecond
	}
	return nil
}

// DeltaMeasurer determines how many tokens a transaction actually delivered.
// A swap's exact output is not known synchronously: the receipt is
// eventually-consistent and account state converges asynchronously, so the
// receipt diff is tried first and a direct before/after balance diff across
// both token program variants is the fallback.
type DeltaMeasurer struct {
	log *slog.Logger
	cfg DeltaMeasurerConfig
}

func NewDeltaMeasurer(cfg DeltaMeasurerConfig) (*DeltaMeasurer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &DeltaMeasurer{log: cfg.Logger, cfg: cfg}, nil
}

// TotalBalance sums the owner's associated account balances for mint across
// both token program variants.
func (m *DeltaMeasurer) TotalBalance(ctx context.Context, mint, owner solana.PublicKey) (uint64, error) {
	var total uint64
	for _, program := range chain.TokenPrograms {
		ata, err := chain.AssociatedTokenAddress(owner, mint, program)
		if err != nil {
			return 0, err
		}
		amount, err := m.cfg.Chain.TokenAccountBalance(ctx, ata)
		if err != nil {
			return 0, err
		}
		total += amount
	}
	return total, nil
}

// Measure returns the raw token amount delivered to owner by the transaction,
// never negative. Exhausting both polling budgets yields 0, not an error.
func (m *DeltaMeasurer) Measure(ctx context.Context, sig solana.Signature, mint, owner solana.PublicKey, balanceBefore uint64) uint64 {
	if delta := m.measureViaReceipt(ctx, sig, mint, owner); delta > 0 {
		return delta
	}
	return m.measureViaBalances(ctx, mint, owner, balanceBefore)
}

func (m *DeltaMeasurer) measureViaReceipt(ctx context.Context, sig solana.Signature, mint, owner solana.PublicKey) uint64 {
	delta, done, err := retry.Poll(ctx, retry.PollConfig{
		MaxAttempts: m.cfg.ReceiptAttempts,
		Interval:    m.cfg.ReceiptInterval,
		Clock:       m.cfg.Clock,
	}, func(ctx context.Context) (uint64, bool, error) {
		receipt, err := m.cfg.Chain.Receipt(ctx, sig)
		if err != nil {
			m.log.Debug("swap: receipt fetch failed", "signature", sig, "error", err)
			return 0, false, nil
		}
		if receipt == nil {
			return 0, false, nil
		}
		pre := sumTokenBalances(receipt.PreTokenBalances, mint, owner)
		post := sumTokenBalances(receipt.PostTokenBalances, mint, owner)
		if post > pre {
			return post - pre, true, nil
		}
		return 0, false, nil
	})
	if err != nil || !done {
		return 0
	}
	return delta
}

func (m *DeltaMeasurer) measureViaBalances(ctx context.Context, mint, owner solana.PublicKey, before uint64) uint64 {
	delta, done, err := retry.Poll(ctx, retry.PollConfig{
		MaxAttempts: m.cfg.BalanceAttempts,
		Interval:    m.cfg.BalanceInterval,
		Clock:       m.cfg.Clock,
	}, func(ctx context.Context) (uint64, bool, error) {
		current, err := m.TotalBalance(ctx, mint, owner)
		if err != nil {
			m.log.Debug("swap: balance probe failed", "error", err)
			return 0, false, nil
		}
		if current > before {
			return current - before, true, nil
		}
		return 0, false, nil
	})
	if err != nil || !done {
		return 0
	}
	return delta
}

func sumTokenBalances(balances []chain.TokenBalance, mint, owner solana.PublicKey) uint64 {
	var sum uint64
	for _, b := range balances {
		if b.Mint.Equals(mint) && b.Owner.Equals(owner) {
			sum += b.Amount
		}
	}
	return sum
}
