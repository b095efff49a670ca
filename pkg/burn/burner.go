// Package burn is the destruction terminal: it removes the wallet's entire
// holding of the target token from supply at the end of a cycle.
package burn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/jonboulle/clockwork"

	chain "github.com/hadcinema-ops/giveaway/pkg/solana"
	"github.com/hadcinema-ops/giveaway/pkg/stats"
)

const submitMaxRetries = 3

type BurnerConfig struct {
	Logger *slog.Logger
	Chain  chain.Client
	Clock  clockwork.Clock
	Signer solana.PrivateKey
	Mint   solana.PublicKey

	// PriorityFeeMicro, when positive, prefixes the transaction with a
	// compute-unit price instruction (microlamports per unit).
	PriorityFeeMicro uint64

	// ProbeAttempts/ProbeInterval bound the wait for a just-bought balance
	// to become visible before concluding there is nothing to burn.
	ProbeAttempts int
	ProbeInterval time.Duration
}

func (cfg *BurnerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Chain == nil {
		return errors.New("chain client is required")
	}
	if len(cfg.Signer) == 0 {
		return errors.New("signer is required")
	}
	if cfg.Mint.IsZero() {
		return errors.New("mint is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ProbeAttempts <= 0 {
		cfg.ProbeAttempts = 10
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 500 * time.Millisecond
	}
	return nil
}

// Burner burns the wallet's full token balance. The mint may live under
// either token program variant; both associated accounts are probed and the
// newer variant wins when both hold a balance.
type Burner struct {
	log *slog.Logger
	cfg BurnerConfig
}

func NewBurner(cfg BurnerConfig) (*Burner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Burner{log: cfg.Logger, cfg: cfg}, nil
}

// Dispose burns the wallet's entire balance of the mint and returns the
// resulting history entry. Returns (nil, nil) when there is nothing to burn.
func (b *Burner) Dispose(ctx context.Context, decimals uint8) (*stats.HistoryEntry, error) {
	owner := b.cfg.Signer.PublicKey()

	holding, err := chain.WaitForHolding(ctx, b.cfg.Chain, b.cfg.Clock, b.cfg.ProbeAttempts, b.cfg.ProbeInterval, owner, b.cfg.Mint)
	if err != nil {
		return nil, err
	}
	if holding.Amount == 0 {
		b.log.Info("burn: nothing to burn")
		return nil, nil
	}
	program, source, amount := holding.Program, holding.Account, holding.Amount

	instructions := []solana.Instruction{}
	if b.cfg.PriorityFeeMicro > 0 {
		instructions = append(instructions, chain.SetComputeUnitPriceInstruction(b.cfg.PriorityFeeMicro))
	}
	instructions = append(instructions, chain.BurnCheckedInstruction(program, source, b.cfg.Mint, owner, amount, decimals))

	blockhash, err := b.cfg.Chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("blockhash for burn: %w", err)
	}
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(owner))
	if err != nil {
		return nil, fmt.Errorf("build burn transaction: %w", err)
	}
	if err := chain.SignWith(tx, b.cfg.Signer); err != nil {
		return nil, err
	}

	// Simulation is advisory. A simulation failure is logged and the burn is
	// still submitted; simulated state can lag the balance we just read.
	if err := b.cfg.Chain.Simulate(ctx, tx); err != nil {
		b.log.Warn("burn: simulation failed, submitting anyway", "error", err)
	}

	sig, err := b.cfg.Chain.Submit(ctx, tx, false, submitMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("submit burn: %w", err)
	}
	if err := b.cfg.Chain.Confirm(ctx, sig, solanarpc.CommitmentConfirmed); err != nil {
		return nil, fmt.Errorf("confirm burn %s: %w", sig, err)
	}

	b.log.Info("burn: burned full balance",
		"signature", sig,
		"amount_raw", amount,
		"token_program", program,
	)
	return &stats.HistoryEntry{
		Ts:              time.Now().UTC(),
		Type:            stats.EntryBurn,
		Signature:       sig.String(),
		Link:            stats.SolscanLink(sig.String()),
		AmountTokens:    stats.ToUi(amount, decimals),
		AmountTokensRaw: amount,
	}, nil
}
