package utils

import (
	"context"
	"errors"
	"net"
	"strings"
)

// --- Sentinel Errors for Categorization ---
//
// RetryingTask decides retry-vs-terminal with errors.Is against these,
// so the taxonomy is explicit rather than inferred from message text.
var (
	ErrPolicyDisallowed = errors.New("disallowed by robots.txt") // Terminal: never retried
	ErrFetch            = errors.New("fetch error")              // Timeout/DNS/navigation failure; retryable
	ErrRetryFailed      = errors.New("request failed after all retries")
	ErrClientHTTPError  = errors.New("client HTTP error (4xx)")
	ErrServerHTTPError  = errors.New("server HTTP error (5xx)")
	ErrOtherHTTPError   = errors.New("other HTTP error (non-2xx)")
	ErrExtractionNoise  = errors.New("link failed extraction rules") // Skipped at link granularity
	ErrPersistence      = errors.New("catalog persistence error")
	ErrDatabase         = errors.New("database error") // Wraps badger errors
	ErrParsing          = errors.New("parsing error")
	ErrRequestCreation  = errors.New("failed to create HTTP request")
	ErrFatalSetup       = errors.New("fatal setup error") // Aborts the run, process exits non-zero
	ErrConfigValidation = errors.New("configuration validation error")
)

// IsTerminal reports whether err represents a policy decision that must not
// be retried. Retrying a robots.txt disallow cannot change the outcome.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrPolicyDisallowed) || errors.Is(err, ErrFatalSetup)
}

// CategorizeError maps an error to a stable category string for stats and metrics.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrPolicyDisallowed):
		return "Policy_Robots"
	case errors.Is(err, ErrRetryFailed):
		if errors.Is(err, ErrServerHTTPError) {
			return "RetryFailed_HTTPServer"
		}
		if errors.Is(err, ErrClientHTTPError) {
			return "RetryFailed_HTTPClient"
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "RetryFailed_NetworkTimeout"
		}
		return "RetryFailed_NetworkOther"
	case errors.Is(err, ErrClientHTTPError):
		errMsg := err.Error()
		if strings.Contains(errMsg, " 404 ") {
			return "HTTP_404"
		}
		if strings.Contains(errMsg, " 403 ") {
			return "HTTP_403"
		}
		if strings.Contains(errMsg, " 429 ") {
			return "HTTP_429"
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrFetch):
		return "Fetch_Navigation"
	case errors.Is(err, ErrExtractionNoise):
		return "Extraction_Noise"
	case errors.Is(err, ErrPersistence):
		return "Catalog_Persistence"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrParsing):
		return "Content_Parsing"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrFatalSetup):
		return "Setup_Fatal"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	// Fallback checks for common underlying error types
	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErrMsg, "timeout"), strings.Contains(lowerErrMsg, "deadline exceeded"):
		return "Network_TimeoutGeneric"
	case strings.Contains(lowerErrMsg, "connection refused"):
		return "Network_ConnectionRefused"
	case strings.Contains(lowerErrMsg, "no such host"):
		return "Network_DNSLookup"
	case strings.Contains(lowerErrMsg, "tls"), strings.Contains(lowerErrMsg, "certificate"):
		return "Network_TLS"
	case strings.Contains(lowerErrMsg, "reset by peer"):
		return "Network_ConnectionReset"
	}

	return "Unknown"
}
