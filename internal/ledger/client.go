package ledger

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
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/streamtip/sponsord/pkg/ratelimiter"
)

// ErrTransport marks faults where the request may not have reached the node.
// Callers may retry with identical payloads.
var ErrTransport = errors.New("ledger transport fault")

// RPCError is a JSON-RPC level error returned by the node itself.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsStaleReference reports whether err is the node rejecting a transaction
// because a pinned object version was already consumed by another transaction.
func IsStaleReference(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	msg := rpcErr.Message
	return strings.Contains(msg, "not available for consumption") ||
		strings.Contains(msg, "ObjectVersionUnavailable") ||
		strings.Contains(msg, "is not available for transaction")
}

type rpcRequest struct {
	ID      int64  `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Client is the HTTP JSON-RPC implementation of Gateway. One instance is
// constructed at process start and injected into every component.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *ratelimiter.Limiter

	rpcID int64
	mutex sync.Mutex
}

type Option func(*Client)

// WithRateLimit throttles outbound RPCs. Public fullnodes enforce per-client
// quotas; staying under them beats getting HTTP 429s back.
func WithRateLimit(rps, burst int) Option {
	return func(c *Client) {
		c.limiter = ratelimiter.New(rps, burst)
	}
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		rpcID:      1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limit wait: %w", method, err)
		}
	}

	c.mutex.Lock()
	reqID := c.rpcID
	c.rpcID++
	c.mutex.Unlock()

	req := rpcRequest{ID: reqID, JSONRPC: "2.0", Method: method, Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", method, err, ErrTransport)
	}
	defer resp.Body.Close()

	slog.Debug("ledger RPC completed", "method", method, "elapsed", time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %v: %w", method, err, ErrTransport)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: HTTP %d: %s: %w", method, resp.StatusCode, string(data), ErrTransport)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("%s: unmarshal response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %w", method, rpcResp.Error)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("%s: unmarshal result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) GetCoins(ctx context.Context, owner, coinType string) ([]Coin, error) {
	var all []Coin
	var cursor any

	for {
		var page coinPage
		if err := c.call(ctx, "suix_getCoins", []any{owner, coinType, cursor, nil}, &page); err != nil {
			return nil, fmt.Errorf("get coins for %s: %w", owner, err)
		}
		all = append(all, page.Data...)
		if !page.HasNextPage || page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

func (c *Client) GetReferenceGasPrice(ctx context.Context) (uint64, error) {
	var priceStr string
	if err := c.call(ctx, "suix_getReferenceGasPrice", []any{}, &priceStr); err != nil {
		return 0, fmt.Errorf("get reference gas price: %w", err)
	}
	price, err := strconv.ParseUint(priceStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse reference gas price %q: %w", priceStr, err)
	}
	return price, nil
}

func (c *Client) DryRunTransaction(ctx context.Context, txBytes []byte) (*DryRunResult, error) {
	var result DryRunResult
	encoded := base64.StdEncoding.EncodeToString(txBytes)
	if err := c.call(ctx, "sui_dryRunTransactionBlock", []any{encoded}, &result); err != nil {
		return nil, fmt.Errorf("dry run: %w", err)
	}
	return &result, nil
}

func (c *Client) ExecuteTransaction(ctx context.Context, txBytes []byte, signatures []string) (*ExecuteResult, error) {
	var result ExecuteResult
	encoded := base64.StdEncoding.EncodeToString(txBytes)
	params := []any{
		encoded,
		signatures,
		map[string]any{"showEffects": true},
		"WaitForLocalExecution",
	}
	if err := c.call(ctx, "sui_executeTransactionBlock", params, &result); err != nil {
		return nil, fmt.Errorf("execute transaction: %w", err)
	}
	return &result, nil
}

func (c *Client) QueryEvents(ctx context.Context, eventType string, limit int, descending bool) (*EventPage, error) {
	var page EventPage
	params := []any{
		map[string]any{"MoveEventType": eventType},
		nil,
		limit,
		descending,
	}
	if err := c.call(ctx, "suix_queryEvents", params, &page); err != nil {
		return nil, fmt.Errorf("query events %s: %w", eventType, err)
	}
	return &page, nil
}

func (c *Client) GetTransaction(ctx context.Context, digest string) (*ExecuteResult, error) {
	var result ExecuteResult
	params := []any{digest, map[string]any{"showEffects": true}}
	if err := c.call(ctx, "sui_getTransactionBlock", params, &result); err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", digest, err)
	}
	return &result, nil
}

// BatchGetTransactions fans out digest lookups with bounded concurrency.
func (c *Client) BatchGetTransactions(ctx context.Context, digests []string) (map[string]*ExecuteResult, error) {
	const maxConcurrency = 10
	sem := semaphore.NewWeighted(maxConcurrency)

	results := make(map[string]*ExecuteResult)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, digest := range digests {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		wg.Add(1)

		go func(d string) {
			defer sem.Release(1)
			defer wg.Done()

			res, err := c.GetTransaction(ctx, d)
			if err != nil {
				return
			}
			mu.Lock()
			results[d] = res
			mu.Unlock()
		}(digest)
	}

	wg.Wait()
	return results, nil
}

func (c *Client) Close() error { return nil }
