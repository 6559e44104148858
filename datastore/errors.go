package datastore

import (
	"errors"
	"fmt"
)

// RPCError is raised by the datastore adapter. Connection errors are
// retryable (once); validation errors are terminal.
type RPCError struct {
	// RPC is the datastore procedure that failed.
	RPC string
	// IsConnectionError marks transport failures, which retry once.
	IsConnectionError bool
	// PoolExhausted marks a failed pool-permit acquisition.
	PoolExhausted bool

	err error
}

func (e *RPCError) Error() string {
	switch {
	case e.PoolExhausted:
		return fmt.Sprintf("datastore rpc %s: connection pool exhausted", e.RPC)
	case e.IsConnectionError:
		return fmt.Sprintf("datastore rpc %s: connection error: %v", e.RPC, e.err)
	default:
		return fmt.Sprintf("datastore rpc %s: %v", e.RPC, e.err)
	}
}

func (e *RPCError) Unwrap() error {
	return e.err
}

// IsRPCError reports whether err is a datastore RPC failure and returns it.
func IsRPCError(err error) (*RPCError, bool) {
	var re *RPCError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
