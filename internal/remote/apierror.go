// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package remote

import (
	"errors"
	"io"
	"net"
	"syscall"
	"time"
)

// Well-known reasons and domains.
const (
	ReasonUnknown               = "unknown"
	ReasonRateLimitExceeded     = "rateLimitExceeded"
	ReasonUserRateLimitExceeded = "userRateLimitExceeded"
	ReasonBackendError          = "backendError"
	ReasonInternalError         = "internalError"
	ReasonInvalidGrant          = "invalid_grant"
	ReasonCircuitOpen           = "circuitOpen"
	ReasonNotFound              = "notFound"

	DomainGlobal      = "global"
	DomainApplication = "application"
	DomainClient      = "client"
)

// errorInfoReasons maps google.rpc.ErrorInfo reasons, which are
// UPPER_SNAKE_CASE, onto the legacy errors[] reasons used throughout this
// package.
var errorInfoReasons = map[string]string{
	"RATE_LIMIT_EXCEEDED":           ReasonRateLimitExceeded,
	"USER_RATE_LIMIT_EXCEEDED":      ReasonUserRateLimitExceeded,
	"RATE_LIMIT_EXCEEDED_PER_USER":  ReasonUserRateLimitExceeded,
	"BACKEND_ERROR":                 ReasonBackendError,
	"INTERNAL_ERROR":                ReasonInternalError,
	"DAILY_LIMIT_EXCEEDED":          "dailyLimitExceeded",
	"STORAGE_QUOTA_EXCEEDED":        "storageQuotaExceeded",
	"INSUFFICIENT_FILE_PERMISSIONS": "insufficientFilePermissions",
	"NOT_FOUND":                     ReasonNotFound,
}

// canonicalReason returns the legacy spelling of an ErrorInfo reason, or
// reason unchanged.
func canonicalReason(reason string) string {
	if legacy, ok := errorInfoReasons[reason]; ok {
		return legacy
	}
	return reason
}

// APIError is a classified remote store failure. Build one with Classify.
type APIError struct {
	Code              int               `json:"code"`
	Status            string            `json:"status,omitempty"`
	Reason            string            `json:"reason"`
	Domain            string            `json:"domain"`
	Message           string            `json:"message"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	RetryAfterSeconds *int              `json:"retry_after_seconds,omitempty"`

	// Upstream is the raw message from the remote API, if any.
	Upstream string `json:"-"`

	cause error
}

// Error returns the user-facing message.
func (e *APIError) Error() string {
	return e.Message
}

// Unwrap returns the original error.
func (e *APIError) Unwrap() error {
	return e.cause
}

// RetryAfter returns the server's retry hint, or zero.
func (e *APIError) RetryAfter() time.Duration {
	if e.RetryAfterSeconds == nil {
		return 0
	}
	return time.Duration(*e.RetryAfterSeconds) * time.Second
}

// Rejected reports that the remote refused the request without acting on
// it, so repeating it cannot duplicate a side effect.
func (e *APIError) Rejected() bool {
	if e.Code == 429 {
		return true
	}
	switch canonicalReason(e.Reason) {
	case ReasonRateLimitExceeded, ReasonUserRateLimitExceeded, "SlowDown", "Throttling", "ThrottlingException", "TooManyRequestsException":
		return true
	}
	return false
}

// Transient reports a failure that may succeed on a later attempt but
// whose effect on the remote side is unknown.
func (e *APIError) Transient() bool {
	if e.Reason == ReasonCircuitOpen {
		return false
	}
	switch e.Code {
	case 408, 500, 502, 503, 504:
		if e.Domain != DomainApplication {
			return true
		}
	}
	switch canonicalReason(e.Reason) {
	case ReasonBackendError, ReasonInternalError, "RequestTimeout", "InternalError", "ServiceUnavailable":
		return true
	}
	if e.Domain == DomainApplication {
		return isNetworkFailure(e.cause)
	}
	return false
}

// Retryable reports whether the retry policy may attempt the call again.
func (e *APIError) Retryable(idempotent bool) bool {
	if e.Rejected() {
		return true
	}
	return idempotent && e.Transient()
}

// AsAPIError extracts an *APIError from err's chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNotFound reports a classified 404.
func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Code == 404
}

func isNetworkFailure(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}
