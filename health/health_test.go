package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllChecksPass(t *testing.T) {
	m := NewManager()
	m.Register("llm", func(context.Context) error { return nil })
	m.Register("datastore", func(context.Context) error { return nil })

	report, ok := m.Run(context.Background())
	require.True(t, ok)
	assert.Equal(t, StatusPass, report.Status)
	assert.Equal(t, StatusPass, report.Checks["llm"].Status)
	assert.Equal(t, StatusPass, report.Checks["datastore"].Status)
}

func TestFailingCheckFailsReport(t *testing.T) {
	m := NewManager()
	m.Register("llm", func(context.Context) error { return nil })
	m.Register("datastore", func(context.Context) error { return errors.New("connection refused") })

	report, ok := m.Run(context.Background())
	require.False(t, ok)
	assert.Equal(t, StatusFail, report.Status)
	assert.Equal(t, StatusFail, report.Checks["datastore"].Status)
	assert.Contains(t, report.Checks["datastore"].Message, "connection refused")
	// Healthy checks still report pass.
	assert.Equal(t, StatusPass, report.Checks["llm"].Status)
}

func TestFilesystemCheck(t *testing.T) {
	assert.NoError(t, FilesystemCheck(t.TempDir())(context.Background()))
	assert.Error(t, FilesystemCheck("/nonexistent/path")(context.Background()))
}

func TestReadyCheck(t *testing.T) {
	ready := false
	check := ReadyCheck(func() bool { return ready })

	assert.Error(t, check(context.Background()))
	ready = true
	assert.NoError(t, check(context.Background()))
}

func TestBreakerCheck(t *testing.T) {
	state := 0.0
	check := BreakerCheck("llm", func() float64 { return state })

	assert.NoError(t, check(context.Background()))
	state = 2
	err := check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm circuit breaker is open")
	// Half-open admits probes; the check passes.
	state = 1
	assert.NoError(t, check(context.Background()))
}
