// Package breaker wraps sony/gobreaker with the state machine both external
// adapters share: CLOSED → OPEN after N consecutive failures, OPEN for a
// fixed interval, one probe in HALF_OPEN.
package breaker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// StateListener is notified on every breaker state transition.
type StateListener func(service string, from, to gobreaker.State)

// Breaker guards calls to one external service.
type Breaker struct {
	service string
	openFor time.Duration
	cb      *gobreaker.CircuitBreaker
}

// Config holds the breaker thresholds for one service.
type Config struct {
	// Failures is the consecutive-failure count that opens the circuit.
	Failures int
	// OpenFor is how long the circuit stays open before admitting a probe.
	OpenFor time.Duration
}

// New creates a breaker for the named service. onChange may be nil.
func New(service string, cfg Config, logger *slog.Logger, onChange StateListener) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	failures := uint32(cfg.Failures)
	if failures == 0 {
		failures = 5
	}
	openFor := cfg.OpenFor
	if openFor == 0 {
		openFor = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        service,
		MaxRequests: 1, // one probe in half-open
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state change",
				"service", name,
				"from", from.String(),
				"to", to.String())
			if onChange != nil {
				onChange(name, from, to)
			}
		},
	}

	return &Breaker{
		service: service,
		openFor: openFor,
		cb:      gobreaker.NewCircuitBreaker(settings),
	}
}

// Execute runs fn through the breaker. While the circuit is open the call
// fails fast with a ServiceUnavailableError.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	out, err := b.cb.Execute(fn)
	if err != nil && isOpenErr(err) {
		return nil, &ServiceUnavailableError{Service: b.service, RetryAfter: b.openFor}
	}
	return out, err
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// StateValue maps a breaker state to the gauge encoding
// 0=CLOSED, 1=HALF_OPEN, 2=OPEN.
func StateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func isOpenErr(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// ServiceUnavailableError is returned when a call fails fast: the circuit is
// open, the pool is exhausted, or the controller is not ready. The controller
// treats it as a trigger for the owning phase's fallback.
type ServiceUnavailableError struct {
	Service    string
	RetryAfter time.Duration
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("service %s unavailable (circuit open, retry after %s)", e.Service, e.RetryAfter)
}

// IsServiceUnavailable reports whether err is a fail-fast unavailability.
func IsServiceUnavailable(err error) bool {
	var sue *ServiceUnavailableError
	return errors.As(err, &sue)
}
