package inference

import (
	"errors"
	"strings"
)

var (
	// ErrTimeout is returned when no response arrives before the deadline.
	ErrTimeout = errors.New("inference: timeout")
	// ErrConnection is returned when the transport cannot be established.
	ErrConnection = errors.New("inference: connection error")
	// ErrConnectionClosed is returned for requests still pending at shutdown
	// and for submissions made after it.
	ErrConnectionClosed = errors.New("inference: connection closed")
)

// BackendErrorType categorizes errors reported by the backend.
type BackendErrorType int

const (
	// ErrTypeUnknown is an error the backend did not classify.
	ErrTypeUnknown BackendErrorType = iota
	// ErrTypeInvalidRequest means the backend rejected the request payload.
	ErrTypeInvalidRequest
	// ErrTypeQuotaExceeded means the caller is rate limited.
	ErrTypeQuotaExceeded
	// ErrTypeUpstream means the model or its host failed.
	ErrTypeUpstream
)

func (t BackendErrorType) String() string {
	switch t {
	case ErrTypeInvalidRequest:
		return "invalid_request"
	case ErrTypeQuotaExceeded:
		return "quota"
	case ErrTypeUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// BackendError is an error frame sent by the backend for one request.
type BackendError struct {
	Type      BackendErrorType
	RequestID string
	Message   string
	Reason    string
}

func (e *BackendError) Error() string {
	if e.Reason != "" {
		return "backend error: " + e.Message + ": " + e.Reason
	}
	return "backend error: " + e.Message
}

// classifyReason maps a backend reason string onto an error type.
func classifyReason(reason string) BackendErrorType {
	r := strings.ToLower(reason)
	switch {
	case strings.Contains(r, "invalid") || strings.Contains(r, "validation") || strings.Contains(r, "bad request"):
		return ErrTypeInvalidRequest
	case strings.Contains(r, "quota") || strings.Contains(r, "rate limit") || strings.Contains(r, "too many"):
		return ErrTypeQuotaExceeded
	case strings.Contains(r, "unavailable") || strings.Contains(r, "internal") || strings.Contains(r, "timeout"):
		return ErrTypeUpstream
	default:
		return ErrTypeUnknown
	}
}
