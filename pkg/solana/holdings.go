package solana

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/hadcinema-ops/giveaway/pkg/retry"
)

// LocateHolding probes the owner's associated token accounts under both token
// program variants and returns the variant, account and balance to act on.
// When both variants hold a balance the newer program wins.
func LocateHolding(ctx context.Context, c Client, owner, mint solana.PublicKey) (program, account solana.PublicKey, amount uint64, err error) {
	for _, p := range TokenPrograms {
		ata, derr := AssociatedTokenAddress(owner, mint, p)
		if derr != nil {
			return solana.PublicKey{}, solana.PublicKey{}, 0, derr
		}
		balance, berr := c.TokenAccountBalance(ctx, ata)
		if berr != nil {
			return solana.PublicKey{}, solana.PublicKey{}, 0, fmt.Errorf("probe token balance: %w", berr)
		}
		if balance > 0 {
			return p, ata, balance, nil
		}
	}
	return solana.PublicKey{}, solana.PublicKey{}, 0, nil
}

// Holding is a located token balance under a specific program variant.
type Holding struct {
	Program solana.PublicKey
	Account solana.PublicKey
	Amount  uint64
}

// WaitForHolding polls LocateHolding until a positive balance appears or the
// attempt budget runs out. Freshly bought tokens can lag behind the swap
// confirmation, so callers probe for a bounded window before treating the
// wallet as empty. Returns a zero Holding with a nil error on exhaustion.
func WaitForHolding(ctx context.Context, c Client, clock clockwork.Clock, attempts int, interval time.Duration, owner, mint solana.PublicKey) (Holding, error) {
	h, _, err := retry.Poll(ctx, retry.PollConfig{
		MaxAttempts: attempts,
		Interval:    interval,
		Clock:       clock,
	}, func(ctx context.Context) (Holding, bool, error) {
		program, account, amount, err := LocateHolding(ctx, c, owner, mint)
		if err != nil {
			return Holding{}, false, err
		}
		return Holding{Program: program, Account: account, Amount: amount}, amount > 0, nil
	})
	return h, err
}
