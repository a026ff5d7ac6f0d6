package errors

import (
	"errors"
	"fmt"
)

// Classification sentinels returned by the resilience gateway. Callers use
// errors.Is to decide between retry-with-backoff (rate limit, timeout) and
// deferring entirely (open breaker).
var (
	// ErrServiceUnavailable means the circuit breaker for the dependency is
	// open and the call was rejected without touching the network.
	ErrServiceUnavailable = errors.New("service unavailable: circuit breaker open")

	// ErrRateLimited means the per-dependency rate limiter rejected the call.
	ErrRateLimited = errors.New("rate limited")

	// ErrTimeout means the per-call deadline elapsed before the dependency answered.
	ErrTimeout = errors.New("operation timed out")
)

// UpstreamError wraps a failure reported by an external dependency itself,
// as opposed to a protective rejection by the gateway.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error from %q: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError wraps err as a failure of the named external service.
func NewUpstreamError(service string, err error) error {
	return &UpstreamError{Service: service, Err: err}
}

// ValidationError represents malformed input rejected before any work is done.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError signals a duplicate resource. Where idempotence applies the
// caller absorbs it silently as a no-op instead of failing.
type ConflictError struct {
	Resource string
	Key      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Resource, e.Key)
}

// NewConflictError creates a ConflictError for the given resource and key.
func NewConflictError(resource, key string) error {
	return &ConflictError{Resource: resource, Key: key}
}

// AnalysisFailure means a presence or fix analysis stage could not produce a
// result. The finding is held at its current stage for a later retry.
type AnalysisFailure struct {
	Stage string
	Err   error
}

func (e *AnalysisFailure) Error() string {
	return fmt.Sprintf("analysis stage %q failed: %v", e.Stage, e.Err)
}

func (e *AnalysisFailure) Unwrap() error {
	return e.Err
}

// NewAnalysisFailure wraps err as a failure of the named analysis stage.
func NewAnalysisFailure(stage string, err error) error {
	return &AnalysisFailure{Stage: stage, Err: err}
}

// MatchAmbiguousError means bounty reconciliation found more than one open
// bounty for a repository and no explicit reference to disambiguate. The
// bounty is held for manual resolution rather than guessed at.
type MatchAmbiguousError struct {
	RepositoryURL string
	Candidates    int
}

func (e *MatchAmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous bounty match for %q: %d open candidates", e.RepositoryURL, e.Candidates)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsAnalysisFailure reports whether err is an AnalysisFailure.
func IsAnalysisFailure(err error) bool {
	var af *AnalysisFailure
	return errors.As(err, &af)
}

// IsMatchAmbiguous reports whether err is a MatchAmbiguousError.
func IsMatchAmbiguous(err error) bool {
	var ma *MatchAmbiguousError
	return errors.As(err, &ma)
}

// IsRetryable reports whether err is transient: worth retrying with backoff.
// Open-breaker rejections are deliberately excluded; those calls must be
// deferred until the breaker allows a probe.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout) {
		return true
	}
	var ue *UpstreamError
	return errors.As(err, &ue)
}
