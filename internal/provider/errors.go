package provider

import "errors"

// Sentinel errors. Provider implementations wrap them so callers can
// classify a failure with errors.Is.
var (
	ErrRateLimit      = errors.New("provider rate limited")
	ErrContextLength  = errors.New("context length exceeded")
	ErrProviderDown   = errors.New("provider unavailable")
	ErrAuthentication = errors.New("provider authentication failed")

	// ErrEmptyCompletion is reported by callers when a completion came
	// back without any text.
	ErrEmptyCompletion = errors.New("empty completion")

	// ErrNoProvider indicates no backend or no key is configured.
	ErrNoProvider = errors.New("no provider configured")

	// ErrCoolingDown is returned without calling the backend while the
	// health breaker is open.
	ErrCoolingDown = errors.New("provider cooling down")
)

// IsTransient reports whether err is a failure that says something about
// the backend's health rather than about the request.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}
