// Package pumpportal adapts the PumpPortal local-transaction API: creator-fee
// claims and the fallback token buy. The API returns a serialized unsigned
// transaction which we sign locally and submit ourselves.
package pumpportal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/hadcinema-ops/giveaway/pkg/retry"
	chain "github.com/hadcinema-ops/giveaway/pkg/solana"
)

// DefaultBaseURL is the public PumpPortal endpoint.
const DefaultBaseURL = "https://pumpportal.fun"

const submitMaxRetries = 3

// ErrNoSigner is returned when a signing operation is attempted without a
// configured secret key.
var ErrNoSigner = errors.New("pumpportal: no signer configured")

// ClaimResult reports a submitted creator-fee claim. LamportsClaimed is a
// best-effort before/after balance delta, net of the transaction fee.
type ClaimResult struct {
	Signature       solana.Signature
	LamportsClaimed uint64
}

type ClientConfig struct {
	Logger     *slog.Logger
	BaseURL    string
	HTTPClient *http.Client
	Retry      retry.Config
	Chain      chain.Client
	Mint       solana.PublicKey
	Signer     solana.PrivateKey
}

func (cfg *ClientConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Chain == nil {
		return errors.New("chain client is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

type Client struct {
	log *slog.Logger
	cfg ClientConfig
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{log: cfg.Logger, cfg: cfg}, nil
}

// Claim collects accumulated creator fees into the signer wallet. The caller
// treats any error as "zero claimed this cycle".
func (c *Client) Claim(ctx context.Context) (*ClaimResult, error) {
	if len(c.cfg.Signer) == 0 {
		return nil, ErrNoSigner
	}
	wallet := c.cfg.Signer.PublicKey()

	before, err := c.cfg.Chain.Balance(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("balance before claim: %w", err)
	}

	raw, err := c.tradeLocal(ctx, map[string]any{
		"publicKey": wallet.String(),
		"action":    "collectCreatorFee",
	})
	if err != nil {
		return nil, err
	}

	tx, err := chain.DeserializeTransaction(raw)
	if err != nil {
		return nil, err
	}
	if err := chain.SignWith(tx, c.cfg.Signer); err != nil {
		return nil, err
	}

	sig, err := c.cfg.Chain.Submit(ctx, tx, true, submitMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("submit claim: %w", err)
	}
	if err := c.cfg.Chain.Confirm(ctx, sig, solanarpc.CommitmentConfirmed); err != nil {
		return nil, fmt.Errorf("confirm claim %s: %w", sig, err)
	}

	result := &ClaimResult{Signature: sig}
	if after, err := c.cfg.Chain.Balance(ctx, wallet); err == nil && after > before {
		result.LamportsClaimed = after - before
	}
	c.log.Info("pumpportal: claimed creator fees", "signature", sig, "lamports", result.LamportsClaimed)
	return result, nil
}

// Buy purchases the mint for amountSOL through PumpPortal. Used as the
// fallback execution path when no swap route exists.
func (c *Client) Buy(ctx context.Context, amountSOL, slippagePct, priorityFeeSOL float64) (solana.Signature, error) {
	if len(c.cfg.Signer) == 0 {
		return solana.Signature{}, ErrNoSigner
	}

	raw, err := c.tradeLocal(ctx, map[string]any{
		"publicKey":        c.cfg.Signer.PublicKey().String(),
		"action":           "buy",
		"mint":             c.cfg.Mint.String(),
		"amount":           fmt.Sprintf("%.6f", amountSOL),
		"denominatedInSol": true,
		"slippage":         slippagePct,
		"priorityFee":      priorityFeeSOL,
	})
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := chain.DeserializeTransaction(raw)
	if err != nil {
		return solana.Signature{}, err
	}
	if err := chain.SignWith(tx, c.cfg.Signer); err != nil {
		return solana.Signature{}, err
	}

	sig, err := c.cfg.Chain.Submit(ctx, tx, true, submitMaxRetries)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("submit buy: %w", err)
	}
	c.log.Info("pumpportal: buy sent", "signature", sig, "amount_sol", amountSOL)
	return sig, nil
}

// tradeLocal posts to the trade-local endpoint and returns the serialized
// transaction bytes. Rate limits and server errors are retried with backoff.
func (c *Client) tradeLocal(ctx context.Context, payload map[string]any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal trade-local request: %w", err)
	}

	var data []byte
	err = retry.Do(ctx, c.cfg.Retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/trade-local", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create trade-local request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.cfg.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("trade-local request: %w", err)
		}
		defer resp.Body.Close()

		data, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("read trade-local response: %w", err)
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return &retry.StatusError{Status: resp.StatusCode, Body: string(data)}
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("trade-local returned %d: %s", resp.StatusCode, string(data))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("trade-local returned empty transaction")
	}
	return data, nil
}
