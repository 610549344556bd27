package limiter

import (
	"errors"
	"fmt"
)

// Transition errors. Every one is raised before any state change, except that a
// quota rejection may follow a committed window rollover.
var (
	ErrInvalidConfig      = errors.New("invalid configuration values")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrProgramPaused      = errors.New("program is paused")
	ErrClientBlocked      = errors.New("client is blocked by admin")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrBurstLimitExceeded = errors.New("burst limit exceeded")
)

// Store errors.
var (
	ErrNotInitialized     = errors.New("policy not initialized")
	ErrAlreadyInitialized = errors.New("policy already initialized")
	ErrNotRegistered      = errors.New("client not registered")
	ErrAlreadyRegistered  = errors.New("client already registered")
)

// OpError records the operation and identity that produced an error.
type OpError struct {
	Op       string
	Identity Identity
	Err      error
}

func (e *OpError) Error() string {
	if e.Identity.IsZero() {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Identity, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opError(op string, id Identity, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Identity: id, Err: err}
}

// IsQuotaError reports whether err is a RateLimitExceeded or
// BurstLimitExceeded rejection.
func IsQuotaError(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded) || errors.Is(err, ErrBurstLimitExceeded)
}
