package provider

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a provider failure for the failover protocol.
type ErrorKind int

const (
	// KindTransient faults are eligible for local retry before switching.
	KindTransient ErrorKind = iota
	// KindRateLimit means the provider exhausted its quota; switch
	// immediately, retrying the same provider is pointless.
	KindRateLimit
	// KindAuth means the session is invalid or expired; switch immediately.
	KindAuth
	// KindNotFound means the instrument legitimately has no data. It is not
	// a provider failure and never penalizes health.
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimit:
		return "rate_limit"
	case KindAuth:
		return "authentication"
	case KindNotFound:
		return "data_not_found"
	default:
		return "transient"
	}
}

// Error is the tagged error type raised by providers and by the manager.
type Error struct {
	Provider string
	Kind     ErrorKind
	Message  string
	// ResetAt is set on rate limit errors when the provider knows its quota
	// reset time.
	ResetAt time.Time
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a transient provider error wrapping err.
func NewError(provider string, err error) *Error {
	return &Error{Provider: provider, Kind: KindTransient, Err: err}
}

// NewRateLimitError reports an exhausted quota.
func NewRateLimitError(provider string) *Error {
	return &Error{Provider: provider, Kind: KindRateLimit, Message: "rate limit exceeded"}
}

// NewAuthError reports an invalid or expired session.
func NewAuthError(provider, message string) *Error {
	if message == "" {
		message = "authentication failed"
	}
	return &Error{Provider: provider, Kind: KindAuth, Message: message}
}

// NewNotFoundError reports that a symbol has no data at this provider.
func NewNotFoundError(provider, symbol string) *Error {
	return &Error{Provider: provider, Kind: KindNotFound, Message: "no data for " + symbol}
}

func kindOf(err error) (ErrorKind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

// IsRateLimit reports whether err is a rate limit error.
func IsRateLimit(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindRateLimit
}

// IsAuth reports whether err is an authentication error.
func IsAuth(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindAuth
}

// IsNotFound reports whether err means "no data", as opposed to a fault.
func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}
