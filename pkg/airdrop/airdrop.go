// Package airdrop is the distribution terminal: instead of burning, the
// wallet's entire holding of the target token is transferred to a
// weighted-random holder at the end of a cycle.
package airdrop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/jonboulle/clockwork"

	"github.com/hadcinema-ops/giveaway/pkg/holders"
	chain "github.com/hadcinema-ops/giveaway/pkg/solana"
	"github.com/hadcinema-ops/giveaway/pkg/stats"
)

const submitMaxRetries = 3

type AirdropperConfig struct {
	Logger   *slog.Logger
	Chain    chain.Client
	Clock    clockwork.Clock
	Selector *holders.Selector
	// Registry supplies entrants under the keyword policy. Nil otherwise.
	Registry *holders.Registry

	Signer solana.PrivateKey
	Mint   solana.PublicKey

	PriorityFeeMicro uint64

	// ProbeAttempts/ProbeInterval bound the wait for a just-bought balance
	// to become visible before concluding there is nothing to send.
	ProbeAttempts int
	ProbeInterval time.Duration
}

func (cfg *AirdropperConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Chain == nil {
		return errors.New("chain client is required")
	}
	if cfg.Selector == nil {
		return errors.New("selector is required")
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

type Airdropper struct {
	log *slog.Logger
	cfg AirdropperConfig
}

func NewAirdropper(cfg AirdropperConfig) (*Airdropper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Airdropper{log: cfg.Logger, cfg: cfg}, nil
}

// Dispose transfers the wallet's entire balance of the mint to a selected
// holder and returns the resulting history entry. Returns (nil, nil) when
// there is nothing to send.
func (a *Airdropper) Dispose(ctx context.Context, decimals uint8) (*stats.HistoryEntry, error) {
	owner := a.cfg.Signer.PublicKey()

	holding, err := chain.WaitForHolding(ctx, a.cfg.Chain, a.cfg.Clock, a.cfg.ProbeAttempts, a.cfg.ProbeInterval, owner, a.cfg.Mint)
	if err != nil {
		return nil, err
	}
	if holding.Amount == 0 {
		a.log.Info("airdrop: nothing to send")
		return nil, nil
	}
	program, source, amount := holding.Program, holding.Account, holding.Amount

	var entrants map[string]struct{}
	var keyword string
	if a.cfg.Registry != nil {
		entrants = a.cfg.Registry.Entrants()
		keyword = a.cfg.Registry.Keyword()
	}

	winner, err := a.cfg.Selector.PickWinner(ctx, entrants)
	if err != nil {
		return nil, fmt.Errorf("pick winner: %w", err)
	}

	dest, err := chain.AssociatedTokenAddress(winner.Owner, a.cfg.Mint, program)
	if err != nil {
		return nil, err
	}

	instructions := []solana.Instruction{}
	if a.cfg.PriorityFeeMicro > 0 {
		instructions = append(instructions, chain.SetComputeUnitPriceInstruction(a.cfg.PriorityFeeMicro))
	}
	instructions = append(instructions,
		chain.CreateAssociatedTokenAccountIdempotentInstruction(owner, winner.Owner, a.cfg.Mint, dest, program),
		chain.TransferCheckedInstruction(program, source, a.cfg.Mint, dest, owner, amount, decimals),
	)

	blockhash, err := a.cfg.Chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("blockhash for airdrop: %w", err)
	}
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(owner))
	if err != nil {
		return nil, fmt.Errorf("build airdrop transaction: %w", err)
	}
	if err := chain.SignWith(tx, a.cfg.Signer); err != nil {
		return nil, err
	}

	if err := a.cfg.Chain.Simulate(ctx, tx); err != nil {
		a.log.Warn("airdrop: simulation failed, submitting anyway", "error", err)
	}

	sig, err := a.cfg.Chain.Submit(ctx, tx, false, submitMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("submit airdrop: %w", err)
	}
	if err := a.cfg.Chain.Confirm(ctx, sig, solanarpc.CommitmentConfirmed); err != nil {
		return nil, fmt.Errorf("confirm airdrop %s: %w", sig, err)
	}

	a.log.Info("airdrop: sent full balance",
		"signature", sig,
		"winner", winner.Owner,
		"amount_raw", amount,
	)
	return &stats.HistoryEntry{
		Ts:              time.Now().UTC(),
		Type:            stats.EntryAirdrop,
		Signature:       sig.String(),
		Link:            stats.SolscanLink(sig.String()),
		AmountTokens:    stats.ToUi(amount, decimals),
		AmountTokensRaw: amount,
		Winner:          winner.Owner.String(),
		Keyword:         keyword,
	}, nil
}
