package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/jonboulle/clockwork"

	"github.com/hadcinema-ops/giveaway/pkg/retry"
)

// DefaultRPCURL is the default Solana RPC endpoint.
const DefaultRPCURL = "https://api.mainnet-beta.solana.com"

// TokenBalance is one pre/post token balance row from a transaction receipt.
type TokenBalance struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

// Receipt holds the settled effects of a transaction, as far as the flywheel
// cares about them.
type Receipt struct {
	Err               any
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// Holder is a token account owner with its raw balance.
type Holder struct {
	Owner  solana.PublicKey
	Amount uint64
}

// Client is the chain surface consumed by the flywheel components. Implemented
// by RPCClient; tests substitute fakes.
type Client interface {
	// Balance returns the lamport balance of an address.
	Balance(ctx context.Context, addr solana.PublicKey) (uint64, error)
	// TokenAccountBalance returns the raw token balance of a token account,
	// or 0 when the account does not exist.
	TokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	// MintDecimals returns the decimal precision of a mint.
	MintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error)
	// LatestBlockhash returns a recent blockhash for transaction assembly.
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	// Submit sends a signed transaction and returns its signature.
	Submit(ctx context.Context, tx *solana.Transaction, skipPreflight bool, maxRetries uint) (solana.Signature, error)
	// Confirm blocks until the signature reaches the given commitment or the
	// bounded polling budget runs out.
	Confirm(ctx context.Context, sig solana.Signature, commitment solanarpc.CommitmentType) error
	// Receipt returns the transaction's settled effects, or nil when the
	// receipt is not yet available.
	Receipt(ctx context.Context, sig solana.Signature) (*Receipt, error)
	// Simulate runs the transaction against current state without submitting.
	Simulate(ctx context.Context, tx *solana.Transaction) error
	// LargestHolders returns the owners of the largest token accounts of a
	// mint with their raw balances.
	LargestHolders(ctx context.Context, mint solana.PublicKey) ([]Holder, error)
}

// RPCClientConfig configures an RPCClient.
type RPCClientConfig struct {
	Logger   *slog.Logger
	Endpoint string
	Clock    clockwork.Clock

	// ConfirmAttempts/ConfirmInterval bound the Confirm polling loop.
	ConfirmAttempts int
	ConfirmInterval time.Duration
}

func (cfg *RPCClientConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultRPCURL
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ConfirmAttempts <= 0 {
		cfg.ConfirmAttempts = 30
	}
	if cfg.ConfirmInterval <= 0 {
		cfg.ConfirmInterval = time.Second
	}
	return nil
}

// RPCClient implements Client over a JSON-RPC endpoint.
type RPCClient struct {
	log *slog.Logger
	cfg RPCClientConfig
	rpc *solanarpc.Client
}

func NewRPCClient(cfg RPCClientConfig) (*RPCClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RPCClient{
		log: cfg.Logger,
		cfg: cfg,
		rpc: solanarpc.New(cfg.Endpoint),
	}, nil
}

func (c *RPCClient) Balance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	res, err := c.rpc.GetBalance(ctx, addr, solanarpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("getBalance: %w", err)
	}
	return res.Value, nil
}

func (c *RPCClient) TokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	res, err := c.rpc.GetTokenAccountBalance(ctx, account, solanarpc.CommitmentConfirmed)
	if err != nil {
		// A missing associated account is a zero balance, not a failure.
		if isAccountNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("getTokenAccountBalance: %w", err)
	}
	if res.Value == nil {
		return 0, nil
	}
	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token amount %q: %w", res.Value.Amount, err)
	}
	return amount, nil
}

func (c *RPCClient) MintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	res, err := c.rpc.GetTokenSupply(ctx, mint, solanarpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("getTokenSupply: %w", err)
	}
	if res.Value == nil {
		return 0, errors.New("getTokenSupply: empty result")
	}
	return res.Value.Decimals, nil
}

func (c *RPCClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	res, err := c.rpc.GetLatestBlockhash(ctx, solanarpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("getLatestBlockhash: %w", err)
	}
	return res.Value.Blockhash, nil
}

func (c *RPCClient) Submit(ctx context.Context, tx *solana.Transaction, skipPreflight bool, maxRetries uint) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{
		SkipPreflight: skipPreflight,
		MaxRetries:    &maxRetries,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sendTransaction: %w", err)
	}
	return sig, nil
}

func (c *RPCClient) Confirm(ctx context.Context, sig solana.Signature, commitment solanarpc.CommitmentType) error {
	_, done, err := retry.Poll(ctx, retry.PollConfig{
		MaxAttempts: c.cfg.ConfirmAttempts,
		Interval:    c.cfg.ConfirmInterval,
		Clock:       c.cfg.Clock,
	}, func(ctx context.Context) (struct{}, bool, error) {
		res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			c.log.Debug("solana: signature status fetch failed", "signature", sig, "error", err)
			return struct{}{}, false, nil
		}
		if len(res.Value) == 0 || res.Value[0] == nil {
			return struct{}{}, false, nil
		}
		st := res.Value[0]
		if st.Err != nil {
			return struct{}{}, false, fmt.Errorf("transaction %s failed on-chain: %v", sig, st.Err)
		}
		return struct{}{}, reached(st.ConfirmationStatus, commitment), nil
	})
	if err != nil {
		return err
	}
	if !done {
		return fmt.Errorf("transaction %s not confirmed within polling budget", sig)
	}
	return nil
}

func (c *RPCClient) Receipt(ctx context.Context, sig solana.Signature) (*Receipt, error) {
	maxVersion := uint64(0)
	res, err := c.rpc.GetTransaction(ctx, sig, &solanarpc.GetTransactionOpts{
		Commitment:                     solanarpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, solanarpc.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getTransaction: %w", err)
	}
	if res == nil || res.Meta == nil {
		return nil, nil
	}

	r := &Receipt{Err: res.Meta.Err}
	r.PreTokenBalances = convertTokenBalances(res.Meta.PreTokenBalances)
	r.PostTokenBalances = convertTokenBalances(res.Meta.PostTokenBalances)
	return r, nil
}

func (c *RPCClient) Simulate(ctx context.Context, tx *solana.Transaction) error {
	res, err := c.rpc.SimulateTransactionWithOpts(ctx, tx, &solanarpc.SimulateTransactionOpts{
		Commitment: solanarpc.CommitmentConfirmed,
	})
	if err != nil {
		return fmt.Errorf("simulateTransaction: %w", err)
	}
	if res.Value != nil && res.Value.Err != nil {
		return fmt.Errorf("simulation failed: %v (logs: %s)", res.Value.Err, strings.Join(res.Value.Logs, "; "))
	}
	return nil
}

func (c *RPCClient) LargestHolders(ctx context.Context, mint solana.PublicKey) ([]Holder, error) {
	res, err := c.rpc.GetTokenLargestAccounts(ctx, mint, solanarpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("getTokenLargestAccounts: %w", err)
	}

	holders := make([]Holder, 0, len(res.Value))
	for _, acc := range res.Value {
		if acc == nil {
			continue
		}
		amount, err := strconv.ParseUint(acc.Amount, 10, 64)
		if err != nil || amount == 0 {
			continue
		}
		info, err := c.rpc.GetAccountInfo(ctx, acc.Address)
		if err != nil {
			c.log.Debug("solana: holder account lookup failed", "address", acc.Address, "error", err)
			continue
		}
		if info.Value == nil {
			continue
		}
		parsed, err := ParseTokenAccount(info.Value.Data.GetBinary())
		if err != nil {
			c.log.Debug("solana: holder account parse failed", "address", acc.Address, "error", err)
			continue
		}
		holders = append(holders, Holder{Owner: parsed.Owner, Amount: amount})
	}
	return holders, nil
}

func convertTokenBalances(in []solanarpc.TokenBalance) []TokenBalance {
	out := make([]TokenBalance, 0, len(in))
	for _, b := range in {
		if b.Owner == nil || b.UiTokenAmount == nil {
			continue
		}
		amount, err := strconv.ParseUint(b.UiTokenAmount.Amount, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, TokenBalance{Mint: b.Mint, Owner: *b.Owner, Amount: amount})
	}
	return out
}

// reached reports whether an observed confirmation status satisfies the
// requested commitment.
func reached(status solanarpc.ConfirmationStatusType, want solanarpc.CommitmentType) bool {
	rank := func(s string) int {
		switch s {
		case "processed":
			return 1
		case "confirmed":
			return 2
		case "finalized":
			return 3
		}
		return 0
	}
	return rank(string(status)) >= rank(string(want))
}

func isAccountNotFound(err error) bool {
	if errors.Is(err, solanarpc.ErrNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not find account") || strings.Contains(msg, "invalid param")
}

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / float64(solana.LAMPORTS_PER_SOL)
}

// SOLToLamports converts SOL to lamports.
func SOLToLamports(sol float64) uint64 {
	if sol <= 0 {
		return 0
	}
	return uint64(sol * float64(solana.LAMPORTS_PER_SOL))
}
