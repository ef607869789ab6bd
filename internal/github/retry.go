package github

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// secondaryLimitSubstr is the fallback body signal for GitHub's secondary
// (abuse) rate limit. The Retry-After header and X-RateLimit-Remaining are
// checked first; the substring only catches responses that carry neither.
const secondaryLimitSubstr = "secondary rate limit"

// retryableStatus classifies a response. Retryable: 429, any 5xx, and 403s
// that signal rate limiting (primary exhaustion, an explicit Retry-After,
// or the secondary-limit body text). Hard 403s are auth failures and
// propagate immediately.
func retryableStatus(status int, header http.Header, body []byte) bool {
	switch status {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		if header.Get("X-RateLimit-Remaining") == "0" {
			return true
		}
		if header.Get("Retry-After") != "" {
			return true
		}
		return strings.Contains(strings.ToLower(string(body)), secondaryLimitSubstr)
	}
	return status >= 500
}

// parseRetryAfter reads the Retry-After header in seconds form. Zero means
// no usable hint.
func parseRetryAfter(header http.Header) time.Duration {
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// isRetryable reports whether an attempt error may be retried.
func isRetryable(err error) bool {
	var rl *rateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var te *transportError
	return errors.As(err, &te)
}

// retryAfterHint extracts the server's explicit wait duration, if any.
func retryAfterHint(err error) time.Duration {
	var rl *rateLimitError
	if errors.As(err, &rl) {
		return rl.retryAfter
	}
	return 0
}

// withRetry runs one logical call with bounded retries. Waits follow
// base*2^(attempt-1) capped at RetryMaxDelay, plus jitter in [0, base); an
// explicit Retry-After hint overrides the schedule for that wait, clamped to
// RetryAfterMax. All attempts share the caller's context, so a deadline
// terminates the call mid-wait.
func (c *Client) withRetry(ctx context.Context, op func() error) error {
	// BackOff implementations are stateful; always use a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = RetryBaseDelay
	bo.MaxInterval = RetryMaxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		if attempt >= maxAttempts {
			return fmt.Errorf("%w after %d attempts: %s", ErrRetryExhausted, attempt, err)
		}

		delay := bo.NextBackOff() + time.Duration(rand.Int63n(int64(RetryBaseDelay)))
		if hint := retryAfterHint(err); hint > 0 {
			delay = hint
			if delay > RetryAfterMax {
				delay = RetryAfterMax
			}
		}

		if c.OnRetry != nil {
			c.OnRetry(attempt, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
