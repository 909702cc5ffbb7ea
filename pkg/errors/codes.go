package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP mapping and retry decisions.
type Kind string

const (
	// KindInputInvalid covers schema or validation failures and wrong-status
	// lifecycle transitions.
	KindInputInvalid Kind = "input_invalid"
	// KindNotFound covers missing resources and cross-user access.
	KindNotFound Kind = "not_found"
	// KindUnauthorized covers missing or invalid bearer credentials.
	KindUnauthorized Kind = "unauthorized"
	// KindOAuthMisconfigured covers missing OAuth client credentials.
	KindOAuthMisconfigured Kind = "oauth_misconfigured"
	// KindUpstreamUnavailable covers transient OCR/LLM/calendar/scraper
	// failures. Retryable.
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	// KindUpstreamRejected covers provider 4xx responses. Not retryable.
	KindUpstreamRejected Kind = "upstream_rejected"
	// KindOCRUnavailable means every configured OCR backend failed.
	KindOCRUnavailable Kind = "ocr_unavailable"
	// KindInternal covers everything unexpected.
	KindInternal Kind = "internal"
)

// KindInfo contains metadata about an error kind.
type KindInfo struct {
	Kind       Kind
	Retryable  bool
	HTTPStatus int
}

// kindRegistry maps kinds to their metadata.
var kindRegistry = map[Kind]KindInfo{
	KindInputInvalid:        {Kind: KindInputInvalid, Retryable: false, HTTPStatus: http.StatusBadRequest},
	KindNotFound:            {Kind: KindNotFound, Retryable: false, HTTPStatus: http.StatusNotFound},
	KindUnauthorized:        {Kind: KindUnauthorized, Retryable: false, HTTPStatus: http.StatusUnauthorized},
	KindOAuthMisconfigured:  {Kind: KindOAuthMisconfigured, Retryable: false, HTTPStatus: http.StatusNotImplemented},
	KindUpstreamUnavailable: {Kind: KindUpstreamUnavailable, Retryable: true, HTTPStatus: http.StatusBadGateway},
	KindUpstreamRejected:    {Kind: KindUpstreamRejected, Retryable: false, HTTPStatus: http.StatusBadGateway},
	KindOCRUnavailable:      {Kind: KindOCRUnavailable, Retryable: true, HTTPStatus: http.StatusBadGateway},
	KindInternal:            {Kind: KindInternal, Retryable: false, HTTPStatus: http.StatusInternalServerError},
}

// CoreError attaches a Kind to an underlying error.
type CoreError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// E constructs a CoreError with the given kind and message.
func E(kind Kind, msg string) *CoreError {
	return &CoreError{Kind: kind, Message: msg}
}

// Ef constructs a CoreError with a formatted message.
func Ef(kind Kind, format string, args ...interface{}) *CoreError {
	return &CoreError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an existing error.
func Wrap(kind Kind, msg string, err error) *CoreError {
	return &CoreError{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the Kind from an error chain. Sentinel errors map onto
// their natural kinds; anything unclassified is KindInternal.
func KindOf(err error) Kind {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidState):
		return KindInputInvalid
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrOAuthMisconfigured):
		return KindOAuthMisconfigured
	default:
		return KindInternal
	}
}

// IsRetryable returns true if the error represents a transient failure.
func IsRetryable(err error) bool {
	if info, ok := kindRegistry[KindOf(err)]; ok {
		return info.Retryable
	}
	return false
}

// HTTPStatus returns the HTTP status code for the error.
func HTTPStatus(err error) int {
	if info, ok := kindRegistry[KindOf(err)]; ok {
		return info.HTTPStatus
	}
	return http.StatusInternalServerError
}
