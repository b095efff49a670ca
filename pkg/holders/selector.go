// Package holders selects the receiving wallet for the airdrop terminal:
// fetches the current holder set and draws a weighted-random winner under one
// of three policies (balance-weighted, uniform, registered entrants).
package holders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/gagliardetto/solana-go"

	chain "github.com/hadcinema-ops/giveaway/pkg/solana"
)

// Weighting policies.
const (
	PolicyBalance  = "balance"
	PolicyUniform  = "uniform"
	PolicyEntrants = "keyword"
)

// PickIndex draws a weighted-random index: a uniform value in [0, sum) is
// reduced by each weight in order until it crosses zero. When every weight is
// zero the last index is returned; that is the deliberate tie-break, not an
// error, so a degenerate holder set still yields a winner.
func PickIndex(weights []float64) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return len(weights) - 1
	}
	r := rand.Float64() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return i
		}
	}
	return len(weights) - 1
}

type SelectorConfig struct {
	Logger *slog.Logger
	Chain  chain.Client
	Mint   solana.PublicKey
	Policy string
}

func (cfg *SelectorConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Chain == nil {
		return errors.New("chain client is required")
	}
	switch cfg.Policy {
	case PolicyBalance, PolicyUniform, PolicyEntrants:
	default:
		return fmt.Errorf("unknown weighting policy %q", cfg.Policy)
	}
	return nil
}

type Selector struct {
	log *slog.Logger
	cfg SelectorConfig
}

func NewSelector(cfg SelectorConfig) (*Selector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Selector{log: cfg.Logger, cfg: cfg}, nil
}

// PickWinner fetches the largest holders and draws one according to the
// configured policy. Under PolicyEntrants the pool is narrowed to registered
// entrants when any of them currently hold; an empty entrant overlap falls
// back to the full holder set.
func (s *Selector) PickWinner(ctx context.Context, entrants map[string]struct{}) (*chain.Holder, error) {
	all, err := s.cfg.Chain.LargestHolders(ctx, s.cfg.Mint)
	if err != nil {
		return nil, fmt.Errorf("fetch holders: %w", err)
	}
	if len(all) == 0 {
		return nil, errors.New("no holders found")
	}

	pool := all
	if s.cfg.Policy == PolicyEntrants && len(entrants) > 0 {
		filtered := make([]chain.Holder, 0, len(all))
		for _, h := range all {
			if _, ok := entrants[h.Owner.String()]; ok {
				filtered = append(filtered, h)
			}
		}
		if len(filtered) > 0 {
			pool = filtered
		}
	}

	weights := make([]float64, len(pool))
	for i, h := range pool {
		if s.cfg.Policy == PolicyBalance {
			weights[i] = float64(h.Amount)
		} else {
			weights[i] = 1
		}
	}

	idx := PickIndex(weights)
	winner := pool[idx]
	s.log.Info("holders: winner selected",
		"winner", winner.Owner,
		"policy", s.cfg.Policy,
		"pool_size", len(pool),
	)
	return &winner, nil
}
