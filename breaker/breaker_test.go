package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := New("llm", Config{Failures: 5, OpenFor: 30 * time.Second}, nil, nil)
	boom := errors.New("boom")

	for i := 0; i < 5; i++ {
		_, err := b.Execute(func() (any, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}

	assert.Equal(t, gobreaker.StateOpen, b.State())

	// Next call fails fast without invoking fn.
	called := false
	start := time.Now()
	_, err := b.Execute(func() (any, error) {
		called = true
		return nil, nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, IsServiceUnavailable(err))
	assert.Less(t, time.Since(start), 5*time.Millisecond)
}

func TestBreaker_ProbeRecovery(t *testing.T) {
	b := New("datastore", Config{Failures: 2, OpenFor: 50 * time.Millisecond}, nil, nil)
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_, _ = b.Execute(func() (any, error) { return nil, boom })
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	// Wait out the open interval; the next call is the half-open probe.
	time.Sleep(60 * time.Millisecond)

	out, err := b.Execute(func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b := New("llm", Config{Failures: 1, OpenFor: 50 * time.Millisecond}, nil, nil)
	boom := errors.New("boom")

	_, _ = b.Execute(func() (any, error) { return nil, boom })
	require.Equal(t, gobreaker.StateOpen, b.State())

	time.Sleep(60 * time.Millisecond)

	_, err := b.Execute(func() (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, gobreaker.StateOpen, b.State())
}

func TestBreaker_StateChangeListener(t *testing.T) {
	var transitions []string
	listener := func(service string, from, to gobreaker.State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}

	b := New("llm", Config{Failures: 1, OpenFor: time.Minute}, nil, listener)
	_, _ = b.Execute(func() (any, error) { return nil, errors.New("boom") })

	require.Len(t, transitions, 1)
	assert.Equal(t, "closed->open", transitions[0])
}

func TestStateValue(t *testing.T) {
	assert.Equal(t, 0.0, StateValue(gobreaker.StateClosed))
	assert.Equal(t, 1.0, StateValue(gobreaker.StateHalfOpen))
	assert.Equal(t, 2.0, StateValue(gobreaker.StateOpen))
}
