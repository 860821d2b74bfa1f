package retry

import (
	"errors"
	"net"
	"syscall"

	"restoflow/internal/client"
)

// StripeRetryable retries Stripe rate-limit errors, server-side failures
// and network-level errors. 4xx responses (card declines, validation,
// auth) are permanent and must not be retried.
func StripeRetryable(err error) bool {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == "rate_limit_error" || apiErr.StatusCode == 429 {
			return true
		}
		return apiErr.StatusCode >= 500
	}
	return isNetworkError(err)
}

// DoorDashRetryable retries HTTP 429, server-side failures and
// network-level errors. Any other response is permanent: retrying a
// create-delivery call on a 4xx could dispatch a second courier.
func DoorDashRetryable(err error) bool {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 {
			return true
		}
		return apiErr.StatusCode >= 500
	}
	return isNetworkError(err)
}

// isNetworkError reports whether err is a transport-level failure:
// timeouts, connection resets/refusals, DNS resolution failures.
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
