// Package apperr implements the error-kind taxonomy and HTTP mapping from
// spec §7. It replaces the ad hoc gin.H{"error": ...} call sites the earlier
// handlers used with one reusable type.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the abstract error kinds from spec §7.
type Kind string

const (
	KindValidation       Kind = "ValidationError"
	KindAuth             Kind = "AuthError"
	KindNotFound         Kind = "NotFound"
	KindConflictingState Kind = "ConflictingState"
	KindPayloadTooLarge  Kind = "PayloadTooLarge"
	KindRateLimited      Kind = "RateLimited"
	KindBackpressure     Kind = "Backpressure"
	KindStorage          Kind = "StorageError"
	KindCacheUnavailable Kind = "CacheUnavailable"
	KindBlobMissing      Kind = "BlobMissing"
	KindProviderUnavail  Kind = "ProviderUnavailable"
	KindQuotaExhausted   Kind = "QuotaExhausted"
	KindMalformedAI      Kind = "MalformedAIResponse"
	KindTransient        Kind = "TransientError"
	KindInternal         Kind = "InternalError"
)

// AppError is the single error type returned across component boundaries.
type AppError struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// New builds an AppError of the given kind.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Wrap builds an AppError of the given kind wrapping cause.
func Wrap(kind Kind, cause error, message string) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

// WithDetails attaches structured details (echoed to 4xx clients only).
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// As extracts an *AppError from err, defaulting to InternalError.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return &AppError{Kind: KindInternal, Message: "internal error", Cause: err}
}

// StatusCode maps a Kind to the §6.1 HTTP status code.
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflictingState:
		return http.StatusConflict
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindBackpressure:
		return http.StatusServiceUnavailable
	case KindMalformedAI:
		return http.StatusUnprocessableEntity
	case KindStorage, KindCacheUnavailable, KindBlobMissing, KindProviderUnavail,
		KindQuotaExhausted, KindTransient, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// IsRetriable reports whether spec §7's propagation policy treats this kind
// as locally recoverable via retry (AI Gateway / Ingestion Pipeline use).
func (k Kind) IsRetriable() bool {
	switch k {
	case KindTransient, KindRateLimited:
		return true
	default:
		return false
	}
}
