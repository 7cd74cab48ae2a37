package reddit

import (
	"net/http"
	"time"
)

// Status classifies one upstream response. Expected conditions (rate limits,
// missing communities) are variants here, never Go errors, so callers branch
// exhaustively instead of unwrapping failure classes.
type Status int

const (
	StatusSuccess Status = iota
	StatusNotFound
	StatusForbidden
	StatusRateLimited
	StatusRedirected
	StatusUnexpected
	StatusNetworkError
)

// String names the status for logs and metrics labels.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNotFound:
		return "not_found"
	case StatusForbidden:
		return "forbidden"
	case StatusRateLimited:
		return "rate_limited"
	case StatusRedirected:
		return "redirected"
	case StatusUnexpected:
		return "unexpected"
	case StatusNetworkError:
		return "network_error"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one upstream call.
type Outcome struct {
	Status     Status
	HTTPStatus int
	// RetryAfter is the parsed Retry-After value; only meaningful when
	// Status is StatusRateLimited.
	RetryAfter time.Duration
	// Err carries the transport error when Status is StatusNetworkError.
	Err error
}

// OK reports whether the call succeeded.
func (o Outcome) OK() bool { return o.Status == StatusSuccess }

// classify maps one HTTP response (or transport error) to an Outcome.
func classify(resp *http.Response, err error, now time.Time, defaultRetryAfter time.Duration) Outcome {
	if err != nil {
		return Outcome{Status: StatusNetworkError, Err: err}
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return Outcome{Status: StatusSuccess, HTTPStatus: resp.StatusCode}
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		// The upstream redirects requests for communities that do not
		// exist; treat redirects as "absent".
		return Outcome{Status: StatusRedirected, HTTPStatus: resp.StatusCode}
	case resp.StatusCode == http.StatusForbidden:
		return Outcome{Status: StatusForbidden, HTTPStatus: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return Outcome{Status: StatusNotFound, HTTPStatus: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		ra, ok := ParseRetryAfter(resp.Header.Get("Retry-After"), now)
		if !ok {
			ra = defaultRetryAfter
		}
		return Outcome{Status: StatusRateLimited, HTTPStatus: resp.StatusCode, RetryAfter: ra}
	default:
		return Outcome{Status: StatusUnexpected, HTTPStatus: resp.StatusCode}
	}
}

// Backoff computes the delay before retrying a throttled or flaky call.
// Exponential growth (base 2) capped at 60 seconds, unless an explicit
// Retry-After exceeds the cap, in which case the explicit value wins. The
// result is never below minDelay.
func Backoff(attempt int, retryAfter, minDelay time.Duration) time.Duration {
	const maxBackoff = 60 * time.Second
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 6 {
		attempt = 6
	}
	d := time.Second << uint(attempt)
	if d > maxBackoff {
		d = maxBackoff
	}
	if retryAfter > d {
		d = retryAfter
	}
	if d < minDelay {
		d = minDelay
	}
	return d
}
