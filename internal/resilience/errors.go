package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Reasons a collaborator call can fail, used as metric labels.
const (
	ReasonTimeout     = "timeout"
	ReasonCircuitOpen = "circuit_open"
	ReasonRateLimited = "rate_limited"
	ReasonTransient   = "transient"
	ReasonBadResponse = "bad_response"
	ReasonError       = "error"
)

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsTransient reports whether err looks like a passing network condition:
// a timeout, a reset or refused connection, or a DNS failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsTimeout(err) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"server closed idle connection",
		"status 429",
		"status 503",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Reason classifies a collaborator failure for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCircuitOpen):
		return ReasonCircuitOpen
	case IsTimeout(err):
		return ReasonTimeout
	case IsTransient(err):
		return ReasonTransient
	default:
		return ReasonError
	}
}
