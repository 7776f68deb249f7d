package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailureKind classifies why a backend call failed.
type FailureKind string

const (
	FailureConnection FailureKind = "connection"
	FailureAuth       FailureKind = "auth"
	FailureModel      FailureKind = "model"
	FailureTimeout    FailureKind = "timeout"
)

// BackendError is the single tagged failure surfaced by every Completer.
// Message always carries the backend's raw error text; callers must never
// substitute placeholder output for it.
type BackendError struct {
	Kind    FailureKind
	Backend string
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend %s error: %s", e.Backend, e.Kind, e.Message)
}

// classify wraps a transport-level error into a BackendError.
func classify(backend string, err error) *BackendError {
	kind := FailureConnection
	if errors.Is(err, context.DeadlineExceeded) {
		kind = FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = FailureTimeout
	}
	return &BackendError{Kind: kind, Backend: backend, Message: err.Error()}
}

func statusKind(status int) FailureKind {
	switch {
	case status == 401 || status == 403:
		return FailureAuth
	case status == 408 || status == 504:
		return FailureTimeout
	default:
		return FailureModel
	}
}
