package swap

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/hadcinema-ops/giveaway/pkg/jupiter"
	"github.com/hadcinema-ops/giveaway/pkg/logger"
	chain "github.com/hadcinema-ops/giveaway/pkg/solana"
)

type fakeChain struct {
	chain.Client

	balance      uint64
	tokenBalance uint64
	receipt      *chain.Receipt
	submitted    int
	sig          solana.Signature
}

func (f *fakeChain) Balance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	return f.balance, nil
}

func (f *fakeChain) TokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return f.tokenBalance, nil
}

func (f *fakeChain) Receipt(ctx context.Context, sig solana.Signature) (*chain.Receipt, error) {
	return f.receipt, nil
}

func (f *fakeChain) Submit(ctx context.Context, tx *solana.Transaction, skipPreflight bool, maxRetries uint) (solana.Signature, error) {
	f.submitted++
	return f.sig, nil
}

func newMeasurer(t *testing.T, c chain.Client) *DeltaMeasurer {
	t.Helper()
	m, err := NewDeltaMeasurer(DeltaMeasurerConfig{
		Logger:          logger.New(false),
		Chain:           c,
		Clock:           clockwork.NewFakeClock(),
		ReceiptAttempts: 1,
		BalanceAttempts: 1,
	})
	require.NoError(t, err)
	return m
}

func TestGiveaway_Swap_MeasureViaReceipt(t *testing.T) {
	t.Parallel()
	mint := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()

	fc := &fakeChain{receipt: &chain.Receipt{
		PreTokenBalances:  []chain.TokenBalance{{Mint: mint, Owner: owner, Amount: 100}},
		PostTokenBalances: []chain.TokenBalance{{Mint: mint, Owner: owner, Amount: 600}},
	}}
	m := newMeasurer(t, fc)

	delta := m.Measure(context.Background(), solana.Signature{}, mint, owner, 0)
	require.Equal(t, uint64(500), delta)
}

func TestGiveaway_Swap_MeasureIgnoresOtherOwners(t *testing.T) {
	t.Parallel()
	mint := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()

	// Receipt only moves tokens for a different owner; fall through to the
	// balance diff.
	fc := &fakeChain{
		receipt: &chain.Receipt{
			PostTokenBalances: []chain.TokenBalance{{Mint: mint, Owner: other, Amount: 999}},
		},
		tokenBalance: 80, // per variant account, 160 total
	}
	m := newMeasurer(t, fc)

	delta := m.Measure(context.Background(), solana.Signature{}, mint, owner, 100)
	require.Equal(t, uint64(60), delta)
}

func TestGiveaway_Swap_MeasureExhaustedReturnsZero(t *testing.T) {
	t.Parallel()
	mint := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()

	fc := &fakeChain{tokenBalance: 50}
	m := newMeasurer(t, fc)

	// No receipt and no balance growth: zero, never an error or negative.
	delta := m.Measure(context.Background(), solana.Signature{}, mint, owner, 100)
	require.Equal(t, uint64(0), delta)
}

type fakeRouter struct {
	quote    *jupiter.Quote
	quoteErr error
	raw      []byte
	quoted   int
}

func (f *fakeRouter) Quote(ctx context.Context, in, out solana.PublicKey, amount uint64, slippageBps int) (*jupiter.Quote, error) {
	f.quoted++
	return f.quote, f.quoteErr
}

func (f *fakeRouter) Swap(ctx context.Context, q *jupiter.Quote, user solana.PublicKey, fee uint64) ([]byte, error) {
	return f.raw, nil
}

type fakeFallback struct {
	sig    solana.Signature
	err    error
	calls  int
	amount float64
}

func (f *fakeFallback) Buy(ctx context.Context, amountSOL, slippagePct, priorityFeeSOL float64) (solana.Signature, error) {
	f.calls++
	f.amount = amountSOL
	return f.sig, f.err
}

type fakeMeasurer struct {
	before uint64
	delta  uint64
}

func (f *fakeMeasurer) TotalBalance(ctx context.Context, mint, owner solana.PublicKey) (uint64, error) {
	return f.before, nil
}

func (f *fakeMeasurer) Measure(ctx context.Context, sig solana.Signature, mint, owner solana.PublicKey, before uint64) uint64 {
	return f.delta
}

// serializedTx builds a minimal signed transaction for fakes that must return
// deserializable bytes.
func serializedTx(t *testing.T, payer solana.PrivateKey) []byte {
	t.Helper()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{chain.SetComputeUnitPriceInstruction(1_000)},
		solana.Hash{},
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)
	require.NoError(t, chain.SignWith(tx, payer))
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func newBuyer(t *testing.T, cfg BuyerConfig) *Buyer {
	t.Helper()
	cfg.Logger = logger.New(false)
	b, err := NewBuyer(cfg)
	require.NoError(t, err)
	return b
}

func TestGiveaway_Swap_BuySkipsBelowMinimum(t *testing.T) {
	t.Parallel()
	signer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	router := &fakeRouter{}
	b := newBuyer(t, BuyerConfig{
		Chain:      &fakeChain{balance: 11_000_000}, // 0.011 SOL
		Router:     router,
		Fallback:   &fakeFallback{},
		Measurer:   &fakeMeasurer{},
		Signer:     signer,
		Mint:       solana.NewWallet().PublicKey(),
		ReserveSOL: 0.01,
		MinSwapSOL: 0.003,
	})

	result, err := b.MarketBuy(context.Background())
	require.NoError(t, err)
	require.Nil(t, result)
	require.Zero(t, router.quoted)
}

func TestGiveaway_Swap_BuyViaAggregator(t *testing.T) {
	t.Parallel()
	signer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	sig := solana.Signature{1, 2, 3}
	fc := &fakeChain{balance: 60_000_000, sig: sig} // 0.06 SOL
	router := &fakeRouter{
		quote: &jupiter.Quote{OutAmount: 123_456},
		raw:   serializedTx(t, signer),
	}
	b := newBuyer(t, BuyerConfig{
		Chain:      fc,
		Router:     router,
		Fallback:   &fakeFallback{},
		Measurer:   &fakeMeasurer{delta: 120_000},
		Signer:     signer,
		Mint:       solana.NewWallet().PublicKey(),
		ReserveSOL: 0.01,
	})

	result, err := b.MarketBuy(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, sig, result.Signature)
	require.Equal(t, VenueJupiter, result.Venue)
	require.InDelta(t, 0.05, result.AmountInSOL, 1e-9)
	require.Equal(t, uint64(123_456), result.EstTokensOut)
	require.Equal(t, uint64(120_000), result.TokensOutRaw)
	require.Equal(t, 1, fc.submitted)
}

func TestGiveaway_Swap_BuyFallsBackWhenNoRoute(t *testing.T) {
	t.Parallel()
	signer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	fb := &fakeFallback{sig: solana.Signature{9}}
	b := newBuyer(t, BuyerConfig{
		Chain:         &fakeChain{balance: 60_000_000},
		Router:        &fakeRouter{quoteErr: jupiter.ErrNoRoute},
		Fallback:      fb,
		Measurer:      &fakeMeasurer{delta: 42},
		Signer:        signer,
		Mint:          solana.NewWallet().PublicKey(),
		ReserveSOL:    0.01,
		MinPumpSOL:    0.003,
		TargetPumpSOL: 0.02,
	})

	result, err := b.MarketBuy(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, VenuePumpPortal, result.Venue)
	require.Equal(t, 1, fb.calls)
	// Spendable 0.05 capped to 0.02, less the fee margin.
	require.InDelta(t, 0.0195, fb.amount, 1e-9)
	require.InDelta(t, 0.0195, result.AmountInSOL, 1e-9)
	require.Equal(t, uint64(42), result.TokensOutRaw)
}

func TestGiveaway_Swap_FallbackSkipsBelowFloor(t *testing.T) {
	t.Parallel()
	signer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	fb := &fakeFallback{}
	b := newBuyer(t, BuyerConfig{
		Chain:      &fakeChain{balance: 15_000_000}, // 0.005 SOL spendable
		Router:     &fakeRouter{quoteErr: jupiter.ErrNoRoute},
		Fallback:   fb,
		Measurer:   &fakeMeasurer{},
		Signer:     signer,
		Mint:       solana.NewWallet().PublicKey(),
		ReserveSOL: 0.01,
		MinSwapSOL: 0.001,
		MinPumpSOL: 0.01,
	})

	result, err := b.MarketBuy(context.Background())
	require.NoError(t, err)
	require.Nil(t, result)
	require.Zero(t, fb.calls)
}

func TestGiveaway_Swap_RouterErrorFallsBackToVenue(t *testing.T) {
	t.Parallel()
	signer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	// Any aggregator failure falls back, not just a missing route.
	fb := &fakeFallback{sig: solana.Signature{9}}
	b := newBuyer(t, BuyerConfig{
		Chain:      &fakeChain{balance: 60_000_000},
		Router:     &fakeRouter{quoteErr: errors.New("quote returned 503")},
		Fallback:   fb,
		Measurer:   &fakeMeasurer{delta: 7},
		Signer:     signer,
		Mint:       solana.NewWallet().PublicKey(),
		ReserveSOL: 0.01,
	})

	result, err := b.MarketBuy(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, VenuePumpPortal, result.Venue)
	require.Equal(t, 1, fb.calls)
	require.Equal(t, uint64(7), result.TokensOutRaw)
}

func TestGiveaway_Swap_BothVenuesFailingSkipsBuy(t *testing.T) {
	t.Parallel()
	signer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	fb := &fakeFallback{err: errors.New("trade-local returned 500")}
	b := newBuyer(t, BuyerConfig{
		Chain:      &fakeChain{balance: 60_000_000},
		Router:     &fakeRouter{quoteErr: errors.New("rpc exploded")},
		Fallback:   fb,
		Measurer:   &fakeMeasurer{},
		Signer:     signer,
		Mint:       solana.NewWallet().PublicKey(),
		ReserveSOL: 0.01,
	})

	// Skipped, not failed: the cycle continues to the terminal step.
	result, err := b.MarketBuy(context.Background())
	require.NoError(t, err)
	require.Nil(t, result)
	require.Equal(t, 1, fb.calls)
}

func TestGiveaway_Swap_FallbackClampedToSpendable(t *testing.T) {
	t.Parallel()
	signer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	fb := &fakeFallback{sig: solana.Signature{9}}
	b := newBuyer(t, BuyerConfig{
		Chain:      &fakeChain{balance: 29_900_000}, // 0.0199 SOL spendable
		Router:     &fakeRouter{quoteErr: jupiter.ErrNoRoute},
		Fallback:   fb,
		Measurer:   &fakeMeasurer{},
		Signer:     signer,
		Mint:       solana.NewWallet().PublicKey(),
		ReserveSOL: 0.01,
		MinSwapSOL: 0.001,
		MinPumpSOL: 0.02,
	})

	result, err := b.MarketBuy(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	// The floor exceeds spendable; the spend is clamped, never dipping into
	// the reserve.
	require.InDelta(t, 0.0199, fb.amount, 1e-9)
}
