package messaging

import "errors"

// Validation errors are terminal and never retried.
var (
	// ErrInvalidPhoneFormat is returned for phones that are not 55 + 11 digits.
	ErrInvalidPhoneFormat = errors.New("messaging: invalid phone format, expected 55 followed by 11 digits")

	// ErrInvalidPayload is returned for webhook bodies that cannot be decoded.
	ErrInvalidPayload = errors.New("messaging: invalid payload")
)

// Authentication errors reject a webhook before anything is persisted.
var (
	ErrMissingSignature  = errors.New("messaging: missing webhook signature")
	ErrSignatureMismatch = errors.New("messaging: webhook signature mismatch")
	ErrReplayWindow      = errors.New("messaging: webhook timestamp outside replay window")
	ErrSecretMissing     = errors.New("messaging: webhook secret not configured")
)

// ErrCircuitOpen short-circuits a send without calling the chat API.
var ErrCircuitOpen = errors.New("messaging: circuit open")

// IsValidationError reports whether err must not be retried.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidPhoneFormat) || errors.Is(err, ErrInvalidPayload)
}

// IsAuthenticationError reports whether err came from signature or replay checks.
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrMissingSignature) ||
		errors.Is(err, ErrSignatureMismatch) ||
		errors.Is(err, ErrReplayWindow) ||
		errors.Is(err, ErrSecretMissing)
}
