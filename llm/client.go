// Package llm provides the pipeline's LLM adapter: a provider-agnostic chat
// completion client with per-call timeout, bounded retries with exponential
// backoff, and a circuit breaker.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/prensadata/rotativa/breaker"
)

// maxResponseSize limits the LLM response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Completer is the call surface the phases depend on. Tests substitute a
// mock; production uses *Client.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request defines one chat completion call.
type Request struct {
	// System is the system prompt. Optional.
	System string

	// Prompt is the user message. Required.
	Prompt string

	// Temperature controls randomness. nil uses the provider default.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the provider default.
	MaxTokens int
}

// Response contains the completion result.
type Response struct {
	// Content is the generated text. Callers parse it as JSON.
	Content string

	// Model is the model that produced the completion.
	Model string

	// TokensUsed is the total tokens consumed (if reported).
	TokensUsed int

	// FinishReason indicates why generation stopped.
	FinishReason string
}

// Config holds the endpoint settings for the client.
type Config struct {
	// Provider selects the wire format ("openai" or "anthropic").
	Provider string
	// Endpoint is the provider base URL.
	Endpoint string
	// APIKey authenticates the calls.
	APIKey string
	// Model is the model identifier.
	Model string
	// Timeout bounds each attempt.
	Timeout time.Duration
}

// Client is the production LLM adapter.
type Client struct {
	cfg         Config
	provider    Provider
	httpClient  *http.Client
	retryConfig RetryConfig
	brk         *breaker.Breaker
	logger      *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retryConfig = cfg
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

// NewClient creates an LLM client for the configured provider.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	provider := GetProvider(cfg.Provider)
	if provider == nil {
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		cfg:         cfg,
		provider:    provider,
		retryConfig: DefaultRetryConfig(),
		httpClient:  &http.Client{},
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Complete sends a completion request through the breaker and retry layer.
// While the circuit is open the call fails fast with ServiceUnavailableError.
// When retries are exhausted it returns an UnavailableError.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Prompt == "" {
		return nil, NewFatalError(errors.New("prompt is required"))
	}

	if c.brk == nil {
		return c.completeWithRetry(ctx, req)
	}

	out, err := c.brk.Execute(func() (any, error) {
		return c.completeWithRetry(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Response), nil
}

// completeWithRetry attempts the request up to 1+MaxRetries times.
func (c *Client) completeWithRetry(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	var lastStatus int
	var timedOut bool

	attempts := c.retryConfig.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, status, err := c.doRequest(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		lastStatus = status
		timedOut = errors.Is(err, context.DeadlineExceeded)

		// Validation and auth errors never retry.
		if IsFatal(err) {
			return nil, err
		}
		// The caller's own deadline expired; retrying cannot help.
		if ctx.Err() != nil {
			break
		}

		if attempt < attempts {
			backoff := c.calculateBackoff(attempt)
			c.logger.Debug("LLM request failed, retrying",
				"attempt", attempt,
				"max_attempts", attempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return nil, &UnavailableError{
					RetryCount: attempt - 1,
					LastStatus: lastStatus,
					TimedOut:   true,
					err:        ctx.Err(),
				}
			case <-time.After(backoff):
			}
		}
	}

	return nil, &UnavailableError{
		RetryCount: attempts - 1,
		LastStatus: lastStatus,
		TimedOut:   timedOut,
		err:        lastErr,
	}
}

// calculateBackoff computes exponential backoff duration with jitter.
// Jitter prevents thundering herd when multiple workers retry simultaneously.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.retryConfig.BackoffMultiplier
	}

	backoff := time.Duration(float64(c.retryConfig.BackoffBase) * multiplier)
	if backoff > c.retryConfig.MaxBackoff {
		backoff = c.retryConfig.MaxBackoff
	}

	// +/- 25% to prevent synchronized retries.
	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}

// doRequest executes a single HTTP attempt. The returned int is the HTTP
// status, 0 when the request never reached the provider.
func (c *Client) doRequest(ctx context.Context, req Request) (*Response, int, error) {
	url := c.provider.BuildURL(c.cfg.Endpoint)

	body, err := c.provider.BuildRequestBody(c.cfg.Model, req.System, req.Prompt, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, 0, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	c.provider.SetHeaders(httpReq, c.cfg.APIKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors and timeouts are transient.
		return nil, 0, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, httpResp.StatusCode, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, httpResp.StatusCode, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	resp, err := c.provider.ParseResponse(respBody, c.cfg.Model)
	if err != nil {
		return nil, httpResp.StatusCode, err
	}
	return resp, httpResp.StatusCode, nil
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
// Rate limits and 5xx retry; other 4xx do not.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("LLM API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	default:
		return NewFatalError(err)
	}
}
