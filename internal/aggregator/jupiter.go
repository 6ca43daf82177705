package aggregator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"solana-copy-trader/internal/solana"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://quote-api.jup.ag/v6"
	DefaultTimeout     = 15 * time.Second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
)

// JupiterClient implements Client against the Jupiter v6 quote API.
type JupiterClient struct {
	baseURL     string
	client      *http.Client
	rpc         solana.RPCClient
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// JupiterOption configures JupiterClient.
type JupiterOption func(*JupiterClient)

// WithBaseURL sets the quote API base URL.
func WithBaseURL(u string) JupiterOption {
	return func(c *JupiterClient) {
		c.baseURL = u
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) JupiterOption {
	return func(c *JupiterClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for quote requests.
func WithMaxRetries(n int) JupiterOption {
	return func(c *JupiterClient) {
		c.maxRetries = n
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) JupiterOption {
	return func(c *JupiterClient) {
		c.client = client
	}
}

// NewJupiterClient creates a Jupiter aggregator client. Swap submission goes
// through the given Solana RPC client.
func NewJupiterClient(rpc solana.RPCClient, opts ...JupiterOption) *JupiterClient {
	c := &JupiterClient{
		baseURL:     DefaultBaseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		rpc:         rpc,
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ Client = (*JupiterClient)(nil)

// quoteResponse mirrors the fields of the Jupiter quote payload the core
// reads. Amounts come back as decimal strings.
type quoteResponse struct {
	InputMint   string `json:"inputMint"`
	OutputMint  string `json:"outputMint"`
	InAmount    string `json:"inAmount"`
	OutAmount   string `json:"outAmount"`
	SlippageBps int    `json:"slippageBps"`
}

// GetQuote prices a swap. Transient failures are retried with capped
// exponential backoff; quotes are read-only so retrying is safe.
func (c *JupiterClient) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippageBps))

	raw, err := c.getWithRetry(ctx, c.baseURL+"/quote?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal quote: %w", err)
	}

	inAmount, err := strconv.ParseUint(resp.InAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse quote inAmount %q: %w", resp.InAmount, err)
	}
	outAmount, err := strconv.ParseUint(resp.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse quote outAmount %q: %w", resp.OutAmount, err)
	}

	return &Quote{
		InputMint:   resp.InputMint,
		OutputMint:  resp.OutputMint,
		InAmount:    inAmount,
		OutAmount:   outAmount,
		SlippageBps: resp.SlippageBps,
		Route:       raw,
	}, nil
}

// swapRequest is the payload for the swap-construction endpoint.
type swapRequest struct {
	QuoteResponse    json.RawMessage `json:"quoteResponse"`
	UserPublicKey    string          `json:"userPublicKey"`
	WrapAndUnwrapSol bool            `json:"wrapAndUnwrapSol"`
}

// swapResponse carries the unsigned transaction, base64-encoded.
type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// ExecuteSwap builds the swap transaction, signs it through the signer, and
// submits it. No step here is retried: a duplicate on-chain submission is
// worse than a reported failure.
func (c *JupiterClient) ExecuteSwap(ctx context.Context, quote *Quote, signer Signer) (*SwapResult, error) {
	if quote == nil || len(quote.Route) == 0 {
		return nil, fmt.Errorf("execute swap: empty quote")
	}

	body, err := json.Marshal(swapRequest{
		QuoteResponse:    quote.Route,
		UserPublicKey:    signer.PublicKey(),
		WrapAndUnwrapSol: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create swap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("swap request: %w", err)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read swap response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("swap endpoint status %d: %s", resp.StatusCode, string(raw))
	}

	var sw swapResponse
	if err := json.Unmarshal(raw, &sw); err != nil {
		return nil, fmt.Errorf("unmarshal swap response: %w", err)
	}

	txBlob, err := base64.StdEncoding.DecodeString(sw.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("decode swap transaction: %w", err)
	}

	signed, err := signer.Sign(ctx, txBlob)
	if err != nil {
		return nil, fmt.Errorf("sign swap transaction: %w", err)
	}

	sig, err := c.rpc.SendTransaction(ctx, base64.StdEncoding.EncodeToString(signed))
	if err != nil {
		return nil, fmt.Errorf("submit swap transaction: %w", err)
	}

	return &SwapResult{Signature: sig}, nil
}

// getWithRetry performs a GET with capped exponential backoff on transient
// failures. A non-200 below 500 is terminal; the aggregator is telling us
// the route cannot be priced.
func (c *JupiterClient) getWithRetry(ctx context.Context, rawURL string) ([]byte, error) {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
			continue
		default:
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
