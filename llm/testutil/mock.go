// Package testutil provides test utilities for the llm package.
package testutil

import (
	"context"
	"sync"

	"github.com/prensadata/rotativa/llm"
)

// MockLLM is a thread-safe mock LLM client for testing.
// It returns configured responses in sequence and captures calls.
//
// Usage:
//
//	// Single response mock
//	mock := &MockLLM{
//	    Responses: []*llm.Response{
//	        {Content: `{"is_relevant": true}`, Model: "test-model"},
//	    },
//	}
//
//	// Error response
//	mock := &MockLLM{Err: errors.New("connection failed")}
type MockLLM struct {
	mu            sync.Mutex
	Responses     []*llm.Response // Responses to return in sequence
	Err           error           // Error to return (takes precedence over Responses)
	ErrOnce       bool            // Return Err only on the first call
	prompts       []string
	callCount     int
	responseIndex int
}

// Complete implements llm.Completer.
func (m *MockLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	m.prompts = append(m.prompts, req.Prompt)

	if m.Err != nil {
		if m.ErrOnce && m.callCount > 1 {
			// fall through to responses
		} else {
			return nil, m.Err
		}
	}

	if m.responseIndex < len(m.Responses) {
		resp := m.Responses[m.responseIndex]
		m.responseIndex++
		return resp, nil
	}

	// Default response if no responses configured
	return &llm.Response{Content: "{}", Model: "test-model"}, nil
}

// CallCount returns the number of times Complete() was called.
func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Prompts returns the prompts passed to Complete(), in order.
func (m *MockLLM) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Reset resets the mock's state (call count and response index).
func (m *MockLLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.responseIndex = 0
	m.prompts = nil
}
