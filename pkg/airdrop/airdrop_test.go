package airdrop

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"

	"github.com/hadcinema-ops/giveaway/pkg/holders"
	"github.com/hadcinema-ops/giveaway/pkg/logger"
	chain "github.com/hadcinema-ops/giveaway/pkg/solana"
	"github.com/hadcinema-ops/giveaway/pkg/stats"
)

type fakeChain struct {
	chain.Client

	balances map[solana.PublicKey]uint64
	holders  []chain.Holder

	submittedTx *solana.Transaction
}

func (f *fakeChain) TokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return f.balances[account], nil
}

func (f *fakeChain) LargestHolders(ctx context.Context, mint solana.PublicKey) ([]chain.Holder, error) {
	return f.holders, nil
}

func (f *fakeChain) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return solana.Hash{1}, nil
}

func (f *fakeChain) Simulate(ctx context.Context, tx *solana.Transaction) error {
	return nil
}

func (f *fakeChain) Submit(ctx context.Context, tx *solana.Transaction, skipPreflight bool, maxRetries uint) (solana.Signature, error) {
	f.submittedTx = tx
	return solana.Signature{5}, nil
}

func (f *fakeChain) Confirm(ctx context.Context, sig solana.Signature, commitment solanarpc.CommitmentType) error {
	return nil
}

func newAirdropper(t *testing.T, fc *fakeChain, signer solana.PrivateKey, mint solana.PublicKey, policy string, reg *holders.Registry) *Airdropper {
	t.Helper()
	sel, err := holders.NewSelector(holders.SelectorConfig{
		Logger: logger.New(false),
		Chain:  fc,
		Mint:   mint,
		Policy: policy,
	})
	require.NoError(t, err)

	a, err := NewAirdropper(AirdropperConfig{
		Logger:        logger.New(false),
		Chain:         fc,
		Selector:      sel,
		Registry:      reg,
		Signer:        signer,
		Mint:          mint,
		ProbeAttempts: 1,
	})
	require.NoError(t, err)
	return a
}

func TestGiveaway_Airdrop_NothingToSend(t *testing.T) {
	t.Parallel()
	signer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	fc := &fakeChain{balances: map[solana.PublicKey]uint64{}}
	a := newAirdropper(t, fc, signer, solana.NewWallet().PublicKey(), holders.PolicyUniform, nil)

	entry, err := a.Dispose(context.Background(), 6)
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestGiveaway_Airdrop_SendsFullBalanceToWinner(t *testing.T) {
	t.Parallel()
	signer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	mint := solana.NewWallet().PublicKey()
	winner := solana.NewWallet().PublicKey()

	source, err := chain.AssociatedTokenAddress(signer.PublicKey(), mint, chain.Token2022ProgramID)
	require.NoError(t, err)

	fc := &fakeChain{
		balances: map[solana.PublicKey]uint64{source: 2_500_000},
		holders:  []chain.Holder{{Owner: winner, Amount: 10}},
	}
	a := newAirdropper(t, fc, signer, mint, holders.PolicyBalance, nil)

	entry, err := a.Dispose(context.Background(), 6)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, stats.EntryAirdrop, entry.Type)
	require.Equal(t, winner.String(), entry.Winner)
	require.Equal(t, uint64(2_500_000), entry.AmountTokensRaw)
	require.InDelta(t, 2.5, entry.AmountTokens, 1e-9)
	// Create-ATA (idempotent) then the transfer itself.
	require.Len(t, fc.submittedTx.Message.Instructions, 2)
}

func TestGiveaway_Airdrop_KeywordEntryRecordsKeyword(t *testing.T) {
	t.Parallel()
	signer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	mint := solana.NewWallet().PublicKey()
	entrant := solana.NewWallet().PublicKey()
	outsider := solana.NewWallet().PublicKey()

	source, err := chain.AssociatedTokenAddress(signer.PublicKey(), mint, chain.Token2022ProgramID)
	require.NoError(t, err)

	fc := &fakeChain{
		balances: map[solana.PublicKey]uint64{source: 100},
		holders: []chain.Holder{
			{Owner: entrant, Amount: 1},
			{Owner: outsider, Amount: 1_000_000},
		},
	}

	reg := holders.NewRegistry()
	reg.Reset("WXYZ")
	require.NoError(t, reg.Register(entrant.String(), "wxyz here"))

	a := newAirdropper(t, fc, signer, mint, holders.PolicyEntrants, reg)

	entry, err := a.Dispose(context.Background(), 6)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, entrant.String(), entry.Winner)
	require.Equal(t, "WXYZ", entry.Keyword)
}
