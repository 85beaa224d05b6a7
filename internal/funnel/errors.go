package funnel

import "fmt"

// ValidationError reports a malformed analysis request. It is terminal and
// maps to 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// AuthError reports a missing or rejected bearer token. It is terminal and
// maps to 401.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// QuotaExceededError reports that the caller used up its allowance for a
// feature. It is terminal and maps to 403.
type QuotaExceededError struct {
	UserID  string
	Feature string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("usage limit reached for %s", e.Feature)
}

// SchemaError reports provider output that is not a well-formed Result.
// The pipeline recovers from it by moving to the next fallback tier.
type SchemaError struct {
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid analysis result: %s: %v", e.Reason, e.Err)
	}
	return "invalid analysis result: " + e.Reason
}

func (e *SchemaError) Unwrap() error { return e.Err }

// StorageError wraps failures of best-effort stores (cache, quota counter,
// usage sink). It is logged and never returned to the caller.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// RateLimitedError reports a caller sending requests faster than allowed.
// It is terminal and maps to 429.
type RateLimitedError struct {
	UserID string
}

func (e *RateLimitedError) Error() string {
	return "too many requests"
}
