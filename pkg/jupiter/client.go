// Package jupiter is a thin client for the Jupiter v6 swap aggregator:
// quote, then swap-transaction assembly. Signing and submission stay with the
// caller.
package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/hadcinema-ops/giveaway/pkg/retry"
)

// DefaultBaseURL is the public Jupiter quote API.
const DefaultBaseURL = "https://quote-api.jup.ag"

// ErrNoRoute is returned when the aggregator cannot route the swap.
var ErrNoRoute = errors.New("jupiter: no route for swap")

// Quote is a priced route. Raw is passed back verbatim on Swap, as the API
// requires.
type Quote struct {
	Raw       json.RawMessage
	OutAmount uint64
}

type quoteResponse struct {
	OutAmount            string            `json:"outAmount"`
	OtherAmountThreshold string            `json:"otherAmountThreshold"`
	RoutePlan            []json.RawMessage `json:"routePlan"`
	ErrorCode            string            `json:"errorCode"`
	Error                string            `json:"error"`
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	PrioritizationFeeLamports uint64          `json:"prioritizationFeeLamports,omitempty"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
	Error           string `json:"error"`
}

type ClientConfig struct {
	Logger     *slog.Logger
	BaseURL    string
	HTTPClient *http.Client
	Retry      retry.Config
}

func (cfg *ClientConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
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

// Quote prices a swap of amount raw input units. Returns ErrNoRoute when the
// aggregator has no path between the mints.
func (c *Client) Quote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps int) (*Quote, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint.String())
	q.Set("outputMint", outputMint.String())
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippageBps))

	data, status, err := c.do(ctx, http.MethodGet, "/v6/quote?"+q.Encode(), nil, 1<<20)
	if err != nil {
		return nil, fmt.Errorf("quote request: %w", err)
	}

	var parsed quoteResponse
	if jsonErr := json.Unmarshal(data, &parsed); jsonErr == nil {
		if parsed.ErrorCode == "COULD_NOT_FIND_ANY_ROUTE" || (status != http.StatusOK && len(parsed.RoutePlan) == 0) {
			return nil, ErrNoRoute
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("quote returned %d: %s", status, string(data))
	}
	if len(parsed.RoutePlan) == 0 {
		return nil, ErrNoRoute
	}

	out := parsed.OutAmount
	if out == "" {
		out = parsed.OtherAmountThreshold
	}
	outAmount, err := strconv.ParseUint(out, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse quote outAmount %q: %w", out, err)
	}

	return &Quote{Raw: json.RawMessage(data), OutAmount: outAmount}, nil
}

// Swap asks the aggregator to assemble the swap transaction for a quote.
// Returns the serialized unsigned transaction.
func (c *Client) Swap(ctx context.Context, quote *Quote, user solana.PublicKey, prioritizationFeeLamports uint64) ([]byte, error) {
	body, err := json.Marshal(swapRequest{
		QuoteResponse:             quote.Raw,
		UserPublicKey:             user.String(),
		WrapAndUnwrapSol:          true,
		PrioritizationFeeLamports: prioritizationFeeLamports,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal swap request: %w", err)
	}

	data, status, err := c.do(ctx, http.MethodPost, "/v6/swap", body, 4<<20)
	if err != nil {
		return nil, fmt.Errorf("swap request: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("swap returned %d: %s", status, string(data))
	}

	var parsed swapResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode swap response: %w", err)
	}
	if parsed.SwapTransaction == "" {
		return nil, fmt.Errorf("swap response missing transaction: %s", parsed.Error)
	}

	raw, err := base64.StdEncoding.DecodeString(parsed.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("decode swap transaction: %w", err)
	}
	return raw, nil
}

// do issues the request with bounded retries. Rate limits and server errors
// are retried; any other status is returned to the caller to interpret.
func (c *Client) do(ctx context.Context, method, path string, body []byte, limit int64) ([]byte, int, error) {
	var data []byte
	var status int
	err := retry.Do(ctx, c.cfg.Retry, func() error {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rd)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.cfg.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err = io.ReadAll(io.LimitReader(resp.Body, limit))
		if err != nil {
			return err
		}
		status = resp.StatusCode
		if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
			return &retry.StatusError{Status: status, Body: string(data)}
		}
		return nil
	})
	return data, status, err
}
