package smear

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// Backoff controls the retry schedule of a request
type Backoff struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errUnexpected  = errors.New("unexpected status code")
	errCircuitOpen = errors.New("circuit breaker open")
)

// delay returns the wait before retry number attempt (0 based)
func (b Backoff) delay(attempt int) time.Duration {
	d := b.InitialInterval << uint(attempt)
	if d <= 0 || (b.MaxInterval > 0 && d > b.MaxInterval) {
		d = b.MaxInterval
	}
	return d
}

// doWithRetry executes the request through the circuit breaker, retrying
// transport errors, rate limiting and server errors with exponential backoff.
// Other client errors and an open breaker fail immediately.
func doWithRetry(ctx context.Context, client *http.Client, cb *gobreaker.CircuitBreaker, b Backoff, build func() (*http.Request, error)) (*http.Response, error) {
	if b.MaxRetries < 0 || b.InitialInterval <= 0 {
		return nil, fmt.Errorf("invalid backoff configuration %+v", b)
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := build()
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)

		result, err := cb.Execute(func() (interface{}, error) {
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return resp, nil
			}

			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				return nil, errRateLimited
			case resp.StatusCode >= 500:
				return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
			default:
				return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}
		})
		if err == nil {
			return result.(*http.Response), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		if errors.Is(err, errUnexpected) {
			return nil, err
		}

		lastErr = err
		if attempt >= b.MaxRetries {
			return nil, lastErr
		}

		timer := time.NewTimer(b.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
