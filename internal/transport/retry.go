package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

// Sentinel errors for retry logic.
var (
	ErrRetryable = &fwerr.WalletError{
		Code:     "RETRYABLE_ERROR",
		Message:  "temporary failure",
		ExitCode: fwerr.ExitGeneral,
	}

	ErrRateLimited = &fwerr.WalletError{
		Code:     "RATE_LIMITED",
		Message:  "rate limited by remote service",
		ExitCode: fwerr.ExitGeneral,
	}
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts int           // including the first attempt
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap for the exponential delay
}

// DefaultRetryConfig returns 3 attempts with 250ms, 500ms delays.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// RetryAfterError asks the retry loop to wait at least Delay before the
// next attempt.
type RetryAfterError struct {
	Err   error
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return e.Err.Error()
}

func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

// Retry runs op until it succeeds, returns a non-retryable error, ctx is
// done, or cfg.MaxAttempts is reached.
func Retry[T any](ctx context.Context, cfg RetryConfig, op func(context.Context) (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err = op(ctx)
		if err == nil || !IsRetryable(err) {
			return result, err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := backoff(attempt, cfg.BaseDelay, cfg.MaxDelay)
		var ra *RetryAfterError
		if errors.As(err, &ra) && ra.Delay > delay {
			delay = min(ra.Delay, cfg.MaxDelay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
	}

	return result, fmt.Errorf("giving up after %d attempts: %w", cfg.MaxAttempts, err)
}

// backoff returns base*2^attempt capped at maxDelay, jittered into [d/2, d).
func backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	d := base << attempt
	if d <= 0 || d > maxDelay {
		d = maxDelay
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half) //nolint:gosec // G404: jitter needs no cryptographic randomness
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRetryable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded)
}

// WrapRetryable marks err as retryable.
func WrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRetryable, err)
}

// StatusError classifies a non-2xx HTTP status. 429 and 5xx are retryable;
// a 429 carries the Retry-After delay when the server sent one.
func StatusError(resp *http.Response) error {
	err := fwerr.WithDetails(fwerr.New("HTTP_STATUS", "unexpected response status"), map[string]string{
		"status": strconv.Itoa(resp.StatusCode),
	})
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RetryAfterError{
			Err:   fmt.Errorf("%w: %w", ErrRateLimited, err),
			Delay: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= http.StatusInternalServerError:
		return WrapRetryable(err)
	default:
		return err
	}
}

// ParseRetryAfter parses a Retry-After header given in seconds.
func ParseRetryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
