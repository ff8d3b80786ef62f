package retry

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// Config holds the configuration for retry logic
type Config struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultConfig returns the retry configuration used by the remote adapters
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		BaseDelay:       200 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		BackoffMultiple: 2.0,
	}
}

// ErrorChecker reports whether a failed attempt should be retried
type ErrorChecker func(err error, statusCode int, responseBody []byte) bool

// Func is a single attempt. statusCode and responseBody are zero when the
// call never reached the remote end.
type Func[T any] func(attempt int) (result T, statusCode int, responseBody []byte, err error)

// Options configures retry behavior
type Options struct {
	Config       Config
	ErrorChecker ErrorChecker
	Logger       *slog.Logger
	APIName      string
}

func (c Config) delay(attempt int) time.Duration {
	d := time.Duration(float64(c.BaseDelay) * math.Pow(c.BackoffMultiple, float64(attempt)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. Cancellation of ctx during a backoff returns ctx.Err().
func Do[T any](ctx context.Context, opts Options, fn Func[T]) (T, error) {
	var zero T
	var lastErr error
	var lastStatus int
	var lastBody []byte
	attempts := opts.Config.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			d := opts.Config.delay(attempt - 1)
			opts.debug("retrying", "attempt", attempt+1, "max_attempts", attempts, "delay", d)

			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		result, status, body, err := fn(attempt)
		lastErr, lastStatus, lastBody = err, status, body

		if opts.ErrorChecker != nil && opts.ErrorChecker(err, status, body) && attempt < attempts-1 {
			opts.debug("retryable failure", "attempt", attempt+1, "status", status, "error", err)
			continue
		}

		if err != nil {
			return zero, err
		}
		if attempt > 0 {
			opts.debug("request succeeded after retry", "attempt", attempt+1)
		}
		return result, nil
	}

	if lastErr != nil {
		return zero, lastErr
	}
	return zero, &RetryExhaustedError{
		APIName:        opts.APIName,
		MaxAttempts:    attempts,
		LastStatusCode: lastStatus,
		LastResponse:   lastBody,
	}
}

func (o Options) debug(msg string, args ...any) {
	if o.Logger == nil {
		return
	}
	o.Logger.Debug(msg, append([]any{"api", o.APIName}, args...)...)
}

// RetryExhaustedError is returned when every attempt was retryable but none
// produced an error value to surface.
type RetryExhaustedError struct {
	APIName        string
	MaxAttempts    int
	LastStatusCode int
	LastResponse   []byte
}

func (e *RetryExhaustedError) Error() string {
	return "retry attempts exhausted for " + e.APIName + " API"
}
