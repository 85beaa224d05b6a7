package providers

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedProvider is returned when no adapter is registered for a
	// credential's provider kind.
	ErrUnsupportedProvider = errors.New("providers: unsupported provider")

	// ErrCircuitOpen is returned without calling the provider while its
	// circuit breaker is open.
	ErrCircuitOpen = errors.New("providers: circuit open")
)

// StatusCoder is implemented by errors that carry an upstream HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// ProviderError is a failed provider call: network failure, non-2xx answer,
// empty completion or deadline expiry. Timeout is set only for the latter.
type ProviderError struct {
	Provider   string
	StatusCode int
	Timeout    bool
	Message    string
	Type       string
}

func (e *ProviderError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: request timed out: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s (status=%d, type=%s)", e.Provider, e.Message, e.StatusCode, e.Type)
}

// HTTPStatus implements StatusCoder.
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

// IsTimeout reports whether err is a ProviderError caused by deadline expiry.
func IsTimeout(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Timeout
}

// EmptyCompletion is the error adapters return for a 2xx answer without text.
func EmptyCompletion(provider string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Message:  "empty completion",
		Type:     "empty_response",
	}
}
