package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// SubmitOutcome classifies one article submission.
type SubmitOutcome int

const (
	// SubmitAccepted is a 200 from the pipeline, sync or async alike.
	SubmitAccepted SubmitOutcome = iota
	// SubmitRejected is a terminal 4xx; the article goes to the error bin.
	SubmitRejected
	// SubmitExhausted means transient failures outlasted the retry budget.
	SubmitExhausted
)

// Submitter posts article bodies to the pipeline with the connector's retry
// policy: transient failures back off exponentially, 429 honors the
// server-provided retry_after, 4xx is terminal.
type Submitter struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSubmitter creates a submitter.
func NewSubmitter(cfg Config, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 90 * time.Second},
		logger:     logger,
	}
}

// Submit posts one article body until accepted, rejected, or out of retries.
func (s *Submitter) Submit(ctx context.Context, body []byte) SubmitOutcome {
	backoff := s.cfg.BackoffBase
	if backoff <= 0 {
		backoff = time.Second
	}

	attempts := s.cfg.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		outcome, retryAfter := s.post(ctx, body)
		if outcome != SubmitExhausted {
			return outcome
		}
		if attempt == attempts {
			break
		}

		wait := backoff
		if retryAfter > 0 {
			wait = retryAfter
		}
		s.logger.Warn("submission failed, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff", wait)

		select {
		case <-ctx.Done():
			return SubmitExhausted
		case <-time.After(wait):
		}
		backoff *= 2
	}
	return SubmitExhausted
}

// post performs one attempt. The second return is the server-requested wait
// for 429 responses.
func (s *Submitter) post(ctx context.Context, body []byte) (SubmitOutcome, time.Duration) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.PipelineURL+"/procesar_articulo", bytes.NewReader(body))
	if err != nil {
		return SubmitRejected, 0
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// Connection errors and timeouts are transient.
		return SubmitExhausted, 0
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return SubmitAccepted, 0
	case resp.StatusCode == http.StatusTooManyRequests:
		return SubmitExhausted, parseRetryAfter(resp.Body)
	case resp.StatusCode >= 500:
		return SubmitExhausted, 0
	default:
		// 4xx: the article itself is bad; retrying cannot help.
		return SubmitRejected, 0
	}
}

func parseRetryAfter(body io.Reader) time.Duration {
	var payload struct {
		RetryAfter int `json:"retry_after"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil || payload.RetryAfter <= 0 {
		return 0
	}
	return time.Duration(payload.RetryAfter) * time.Second
}
