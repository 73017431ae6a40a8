package instagram_client

import (
	"errors"
	"net/http"
)

// FailureKind says how a failed call should be treated.
type FailureKind string

const (
	KindRateLimited FailureKind = "rate_limited"
	KindAuthExpired FailureKind = "auth_expired"
	KindNotFound    FailureKind = "not_found"
	KindTransient   FailureKind = "transient"
	KindPermanent   FailureKind = "permanent"
)

// Retryable reports whether a call that failed this way may be attempted again.
func (k FailureKind) Retryable() bool {
	return k == KindRateLimited || k == KindTransient
}

// Graph API error codes, see the platform's error reference.
const (
	codeUnknown            = 1
	codeServiceUnavailable = 2
	codeAppRateLimit       = 4
	codeUserRateLimit      = 17
	codeInvalidParameter   = 100
	codeAccessTokenExpired = 190
	codePageRateLimit      = 32
	codeCustomRateLimit    = 613
	codeSpamLimit          = 368
)

// Classify maps any error from this package to a FailureKind. Errors that are not API
// errors (network failures, timeouts, unconfirmed deliveries) are transient.
func Classify(err error) FailureKind {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return KindTransient
	}

	switch apiErr.Code {
	case codeAppRateLimit, codeUserRateLimit, codePageRateLimit, codeCustomRateLimit, codeSpamLimit:
		return KindRateLimited
	case codeAccessTokenExpired:
		return KindAuthExpired
	case codeInvalidParameter:
		return KindNotFound
	case codeUnknown, codeServiceUnavailable:
		return KindTransient
	}

	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case apiErr.StatusCode == http.StatusUnauthorized:
		return KindAuthExpired
	case apiErr.StatusCode == http.StatusNotFound:
		return KindNotFound
	case apiErr.StatusCode >= 500:
		return KindTransient
	}
	return KindPermanent
}
