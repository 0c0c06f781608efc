package ai

import "errors"

// Failure taxonomy from spec §4.5. These map onto apperr.Kind at the
// Gateway boundary (see gateway.go's classify).
var (
	ErrTransient           = errors.New("ai: transient provider error")
	ErrRateLimited         = errors.New("ai: rate limited")
	ErrQuotaExhausted      = errors.New("ai: quota exhausted")
	ErrMalformedResponse   = errors.New("ai: malformed provider response")
	ErrUnauthorized        = errors.New("ai: unauthorized")
	ErrProviderUnavailable = errors.New("ai: provider unavailable")
	ErrOCRUnavailable      = errors.New("ai: no OCR backend configured")
	ErrNoProvider          = errors.New("ai: no provider available for capability")
)
