package aggregator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-trader/internal/solana"
)

type stubRPC struct {
	sentTx    string
	signature string
	sendErr   error
}

func (s *stubRPC) GetTransaction(context.Context, string) (*solana.Transaction, error) {
	return nil, nil
}

func (s *stubRPC) GetSignaturesForAddress(context.Context, string, *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	return nil, nil
}

func (s *stubRPC) GetBalance(context.Context, string) (uint64, error) {
	return 0, nil
}

func (s *stubRPC) GetTokenSupply(context.Context, string) (*solana.TokenAmount, error) {
	return nil, nil
}

func (s *stubRPC) GetTokenBalance(context.Context, string, string) (uint64, error) {
	return 0, nil
}

func (s *stubRPC) SendTransaction(_ context.Context, signedTxBase64 string) (string, error) {
	if s.sendErr != nil {
		return "", s.sendErr
	}
	s.sentTx = signedTxBase64
	return s.signature, nil
}

type stubSigner struct{}

func (stubSigner) PublicKey() string { return "SignerPubKey111" }

func (stubSigner) Sign(_ context.Context, txBlob []byte) ([]byte, error) {
	return append([]byte("signed:"), txBlob...), nil
}

func TestJupiterClient_GetQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "MintIn", r.URL.Query().Get("inputMint"))
		assert.Equal(t, "50000000", r.URL.Query().Get("amount"))
		assert.Equal(t, "300", r.URL.Query().Get("slippageBps"))

		json.NewEncoder(w).Encode(map[string]any{
			"inputMint":   "MintIn",
			"outputMint":  "MintOut",
			"inAmount":    "50000000",
			"outAmount":   "123456",
			"slippageBps": 300,
		})
	}))
	defer srv.Close()

	c := NewJupiterClient(&stubRPC{}, WithBaseURL(srv.URL))

	quote, err := c.GetQuote(context.Background(), "MintIn", "MintOut", 50_000_000, 300)
	require.NoError(t, err)
	assert.Equal(t, uint64(50_000_000), quote.InAmount)
	assert.Equal(t, uint64(123456), quote.OutAmount)
	assert.Equal(t, "MintOut", quote.OutputMint)
	assert.NotEmpty(t, quote.Route, "raw quote kept for swap construction")
}

func TestJupiterClient_GetQuoteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"inputMint": "A", "outputMint": "B",
			"inAmount": "1", "outAmount": "2", "slippageBps": 100,
		})
	}))
	defer srv.Close()

	c := NewJupiterClient(&stubRPC{}, WithBaseURL(srv.URL))
	c.retryDelay = time.Millisecond

	quote, err := c.GetQuote(context.Background(), "A", "B", 1, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), quote.OutAmount)
	assert.Equal(t, int64(2), calls.Load())
}

func TestJupiterClient_GetQuoteClientErrorIsTerminal(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"no route"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewJupiterClient(&stubRPC{}, WithBaseURL(srv.URL))

	_, err := c.GetQuote(context.Background(), "A", "B", 1, 100)
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load(), "4xx must not be retried")
}

func TestJupiterClient_ExecuteSwap(t *testing.T) {
	unsignedTx := []byte("serialized-tx")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/swap", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "SignerPubKey111", req["userPublicKey"])
		assert.NotNil(t, req["quoteResponse"])

		json.NewEncoder(w).Encode(map[string]string{
			"swapTransaction": base64.StdEncoding.EncodeToString(unsignedTx),
		})
	}))
	defer srv.Close()

	rpc := &stubRPC{signature: "ExecSig111"}
	c := NewJupiterClient(rpc, WithBaseURL(srv.URL))

	quote := &Quote{Route: json.RawMessage(`{"inputMint":"A"}`)}
	res, err := c.ExecuteSwap(context.Background(), quote, stubSigner{})
	require.NoError(t, err)
	assert.Equal(t, "ExecSig111", res.Signature)

	sent, err := base64.StdEncoding.DecodeString(rpc.sentTx)
	require.NoError(t, err)
	assert.Equal(t, append([]byte("signed:"), unsignedTx...), sent)
}

func TestJupiterClient_ExecuteSwapEmptyQuote(t *testing.T) {
	c := NewJupiterClient(&stubRPC{})
	_, err := c.ExecuteSwap(context.Background(), nil, stubSigner{})
	assert.Error(t, err)
}
