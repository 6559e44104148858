// Package datastore provides the pipeline's datastore adapter: an RPC-style
// HTTP client with a bounded connection pool, single-retry connection policy,
// and a circuit breaker.
package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/prensadata/rotativa/breaker"
)

// maxResponseSize limits RPC response bodies.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// RPC names invoked by the pipeline.
const (
	rpcFindSimilarEntity   = "find_similar_entity"
	rpcInsertWholeFragment = "insert_whole_fragment"
)

// EntityMatch is one candidate returned by find_similar_entity.
type EntityMatch struct {
	ID             string  `json:"id"`
	NormalizedName string  `json:"normalized_name"`
	Similarity     float64 `json:"similarity"`
}

// InsertResult reports the counts the datastore persisted for one fragment.
type InsertResult struct {
	FragmentID   string         `json:"fragment_id"`
	CountsByType map[string]int `json:"counts_by_type"`
}

// Store is the call surface the pipeline depends on. Tests substitute a
// mock; production uses *Client.
type Store interface {
	FindSimilarEntity(ctx context.Context, name, entityType string, threshold float64) ([]EntityMatch, error)
	InsertWholeFragment(ctx context.Context, payload *FragmentPayload) (*InsertResult, error)
}

// Config holds the datastore endpoint settings.
type Config struct {
	// URL is the datastore RPC base URL.
	URL string
	// Key authenticates the calls.
	Key string
	// Timeout bounds each RPC attempt.
	Timeout time.Duration
	// PoolSize bounds concurrent in-flight RPCs.
	PoolSize int
	// PoolAcquireWait is the budget for acquiring a pool permit.
	PoolAcquireWait time.Duration
}

// Client is the production datastore adapter.
type Client struct {
	cfg        Config
	httpClient *http.Client
	pool       *semaphore.Weighted
	brk        *breaker.Breaker
	logger     *slog.Logger

	// waitObserver, when set, receives the pool acquisition wait per RPC.
	waitObserver func(time.Duration)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithBreaker sets the circuit breaker guarding the calls.
func WithBreaker(b *breaker.Breaker) ClientOption {
	return func(client *Client) {
		client.brk = b
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithPoolWaitObserver registers a callback observing pool wait times.
func WithPoolWaitObserver(fn func(time.Duration)) ClientOption {
	return func(client *Client) {
		client.waitObserver = fn
	}
}

// NewClient creates a datastore client.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 10
	}
	if cfg.PoolAcquireWait == 0 {
		cfg.PoolAcquireWait = 200 * time.Millisecond
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		pool:       semaphore.NewWeighted(int64(cfg.PoolSize)),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FindSimilarEntity looks up canonical entities matching name/type at or
// above threshold. Used by phase 4 for normalization.
func (c *Client) FindSimilarEntity(ctx context.Context, name, entityType string, threshold float64) ([]EntityMatch, error) {
	params := map[string]any{
		"name":      name,
		"type":      entityType,
		"threshold": threshold,
	}

	var matches []EntityMatch
	if err := c.call(ctx, rpcFindSimilarEntity, params, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

// InsertWholeFragment persists a fragment and all its elements in one RPC.
// The datastore assigns stable IDs and owns uniqueness.
func (c *Client) InsertWholeFragment(ctx context.Context, payload *FragmentPayload) (*InsertResult, error) {
	var result InsertResult
	if err := c.call(ctx, rpcInsertWholeFragment, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// call runs one RPC through the pool, breaker, and retry policy.
func (c *Client) call(ctx context.Context, rpc string, params, out any) error {
	// Acquire a pool permit within the short wait budget. Exhaustion is
	// surfaced explicitly, never as a silent drop.
	waitStart := time.Now()
	acquireCtx, cancel := context.WithTimeout(ctx, c.cfg.PoolAcquireWait)
	err := c.pool.Acquire(acquireCtx, 1)
	cancel()
	if c.waitObserver != nil {
		c.waitObserver(time.Since(waitStart))
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &RPCError{RPC: rpc, PoolExhausted: true, err: err}
	}
	defer c.pool.Release(1)

	if c.brk == nil {
		return c.callWithRetry(ctx, rpc, params, out)
	}

	_, err = c.brk.Execute(func() (any, error) {
		return nil, c.callWithRetry(ctx, rpc, params, out)
	})
	return err
}

// callWithRetry retries connection errors exactly once. Validation and RPC
// errors are terminal.
func (c *Client) callWithRetry(ctx context.Context, rpc string, params, out any) error {
	err := c.doRPC(ctx, rpc, params, out)
	if err == nil {
		return nil
	}

	re, ok := IsRPCError(err)
	if !ok || !re.IsConnectionError || ctx.Err() != nil {
		return err
	}

	c.logger.Debug("datastore connection error, retrying once", "rpc", rpc, "error", err)
	return c.doRPC(ctx, rpc, params, out)
}

// doRPC executes a single RPC attempt.
func (c *Client) doRPC(ctx context.Context, rpc string, params, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return &RPCError{RPC: rpc, err: fmt.Errorf("marshal params: %w", err)}
	}

	url := fmt.Sprintf("%s/rpc/%s", c.cfg.URL, rpc)

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &RPCError{RPC: rpc, err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.cfg.Key)
	req.Header.Set("Authorization", "Bearer "+c.cfg.Key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RPCError{RPC: rpc, IsConnectionError: true, err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &RPCError{RPC: rpc, IsConnectionError: true, err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return &RPCError{RPC: rpc, IsConnectionError: true,
			err: fmt.Errorf("datastore error (status %d): %s", resp.StatusCode, truncate(respBody))}
	default:
		return &RPCError{RPC: rpc,
			err: fmt.Errorf("datastore rejected call (status %d): %s", resp.StatusCode, truncate(respBody))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &RPCError{RPC: rpc, err: fmt.Errorf("parse response: %w", err)}
	}
	return nil
}

func truncate(b []byte) string {
	s := string(b)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

// compile-time interface check
var _ Store = (*Client)(nil)
