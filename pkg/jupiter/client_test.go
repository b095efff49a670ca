package jupiter

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/hadcinema-ops/giveaway/pkg/logger"
	"github.com/hadcinema-ops/giveaway/pkg/retry"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		Logger:  logger.New(false),
		BaseURL: baseURL,
		Retry: retry.Config{
			MaxAttempts: 3,
			BaseBackoff: time.Millisecond,
			MaxBackoff:  2 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	return c
}

func TestGiveaway_Jupiter_Quote(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v6/quote", r.URL.Path)
		w.Write([]byte(`{"outAmount":"123456","routePlan":[{}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	q, err := c.Quote(context.Background(), solana.SolMint, solana.NewWallet().PublicKey(), 1_000_000, 300)
	require.NoError(t, err)
	require.Equal(t, uint64(123_456), q.OutAmount)
	require.NotEmpty(t, q.Raw)
}

func TestGiveaway_Jupiter_QuoteNoRouteNotRetried(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errorCode":"COULD_NOT_FIND_ANY_ROUTE"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Quote(context.Background(), solana.SolMint, solana.NewWallet().PublicKey(), 1_000_000, 300)
	require.ErrorIs(t, err, ErrNoRoute)
	require.Equal(t, int64(1), hits.Load(), "a missing route is a final answer, not a transient failure")
}

func TestGiveaway_Jupiter_QuoteRetriesServerErrors(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"outAmount":"42","routePlan":[{}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	q, err := c.Quote(context.Background(), solana.SolMint, solana.NewWallet().PublicKey(), 1_000_000, 300)
	require.NoError(t, err)
	require.Equal(t, uint64(42), q.OutAmount)
	require.Equal(t, int64(3), hits.Load())
}

func TestGiveaway_Jupiter_Swap(t *testing.T) {
	t.Parallel()
	raw := []byte{1, 2, 3, 4}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v6/swap", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"swapTransaction":"` + base64.StdEncoding.EncodeToString(raw) + `"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	got, err := c.Swap(context.Background(), &Quote{Raw: []byte(`{}`)}, solana.NewWallet().PublicKey(), 0)
	require.NoError(t, err)
	require.Equal(t, raw, got)
}
