package holders

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/hadcinema-ops/giveaway/pkg/logger"
	chain "github.com/hadcinema-ops/giveaway/pkg/solana"
)

func TestGiveaway_Holders_PickIndexInBounds(t *testing.T) {
	t.Parallel()
	weights := []float64{3, 1, 4, 1, 5}
	for i := 0; i < 1000; i++ {
		idx := PickIndex(weights)
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, len(weights))
	}
}

func TestGiveaway_Holders_PickIndexHeavyWeightDominates(t *testing.T) {
	t.Parallel()
	weights := []float64{1, 1, 1, 1, 100}

	hits := 0
	const trials = 10_000
	for i := 0; i < trials; i++ {
		if PickIndex(weights) == 4 {
			hits++
		}
	}
	// Expected hit rate 100/104 ≈ 96%; anything above 90% passes comfortably.
	require.Greater(t, hits, trials*90/100, "heavy weight selected only %d/%d times", hits, trials)
}

func TestGiveaway_Holders_PickIndexAllZeroReturnsLast(t *testing.T) {
	t.Parallel()
	for i := 0; i < 100; i++ {
		require.Equal(t, 2, PickIndex([]float64{0, 0, 0}))
	}
}

func TestGiveaway_Holders_PickIndexSingle(t *testing.T) {
	t.Parallel()
	require.Equal(t, 0, PickIndex([]float64{7}))
}

type fakeHolderChain struct {
	chain.Client
	holders []chain.Holder
	err     error
}

func (f *fakeHolderChain) LargestHolders(ctx context.Context, mint solana.PublicKey) ([]chain.Holder, error) {
	return f.holders, f.err
}

func newSelector(t *testing.T, policy string, holders []chain.Holder) *Selector {
	t.Helper()
	s, err := NewSelector(SelectorConfig{
		Logger: logger.New(false),
		Chain:  &fakeHolderChain{holders: holders},
		Mint:   solana.NewWallet().PublicKey(),
		Policy: policy,
	})
	require.NoError(t, err)
	return s
}

func TestGiveaway_Holders_PickWinnerNoHolders(t *testing.T) {
	t.Parallel()
	s := newSelector(t, PolicyUniform, nil)
	_, err := s.PickWinner(context.Background(), nil)
	require.Error(t, err)
}

func TestGiveaway_Holders_PickWinnerEntrantsFilter(t *testing.T) {
	t.Parallel()
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()
	s := newSelector(t, PolicyEntrants, []chain.Holder{
		{Owner: a, Amount: 10},
		{Owner: b, Amount: 20},
	})

	entrants := map[string]struct{}{b.String(): {}}
	for i := 0; i < 50; i++ {
		winner, err := s.PickWinner(context.Background(), entrants)
		require.NoError(t, err)
		require.Equal(t, b, winner.Owner)
	}
}

func TestGiveaway_Holders_PickWinnerEntrantsFallbackToAll(t *testing.T) {
	t.Parallel()
	a := solana.NewWallet().PublicKey()
	s := newSelector(t, PolicyEntrants, []chain.Holder{{Owner: a, Amount: 10}})

	// No registered entrant holds the token: fall back to the full pool.
	entrants := map[string]struct{}{solana.NewWallet().PublicKey().String(): {}}
	winner, err := s.PickWinner(context.Background(), entrants)
	require.NoError(t, err)
	require.Equal(t, a, winner.Owner)
}

func TestGiveaway_Holders_RegistryLifecycle(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	require.ErrorIs(t, r.Register("owner1", "any message"), ErrNoActiveKeyword)

	r.Reset("GM42")
	require.ErrorIs(t, r.Register("owner1", "hello world"), ErrKeywordMismatch)
	require.NoError(t, r.Register("owner1", "sending gm42 to everyone"))
	require.NoError(t, r.Register("owner2", "GM42!"))
	require.Equal(t, 2, r.Size())

	r.Reset(NewKeyword())
	require.Equal(t, 0, r.Size())
	require.Len(t, r.Keyword(), 4)
}
