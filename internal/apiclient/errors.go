package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed call. Retry and workflow logic switch on it.
type Kind int

const (
	KindNetwork Kind = iota + 1
	KindTokenExpired
	KindRateLimited
	KindHTTP
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "NETWORK_ERROR"
	case KindTokenExpired:
		return "TOKEN_EXPIRED"
	case KindRateLimited:
		return "RATE_LIMITED"
	case KindHTTP:
		return "HTTP_ERROR"
	case KindMalformed:
		return "MALFORMED_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// Retryable reports whether a failure of this kind is worth another attempt.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindRateLimited, KindHTTP:
		return true
	default:
		return false
	}
}

// Error is the tagged error returned by Client calls.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status, 0 for network failures
	Message string // server-provided message when available
	Err     error  // underlying cause (network/decoding)
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTokenExpired:
		return fmt.Sprintf("token expired (HTTP %d)", e.Status)
	case KindRateLimited:
		return "rate limited (HTTP 429)"
	case KindHTTP:
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	case KindMalformed:
		return fmt.Sprintf("malformed response: %v", e.Err)
	default:
		return fmt.Sprintf("network: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from err. ok is false for errors not produced by this package.
func KindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}

// IsTokenExpired reports whether err means the credential was rejected.
func IsTokenExpired(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindTokenExpired
}

// IsMalformed reports whether err is a 2xx response whose body could not be decoded.
func IsMalformed(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindMalformed
}

// classifyStatus maps a non-2xx response to an *Error.
func classifyStatus(status int, body []byte) *Error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Error{Kind: KindTokenExpired, Status: status}
	case http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Status: status}
	}
	msg := "Unknown"
	var m struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &m) == nil && strings.TrimSpace(m.Message) != "" {
		msg = strings.TrimSpace(m.Message)
	}
	return &Error{Kind: KindHTTP, Status: status, Message: msg}
}
