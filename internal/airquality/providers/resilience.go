package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BackoffConfig controls retries of a single query. MaxRetries of zero issues
// each request exactly once.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var (
	ErrRateLimited      = errors.New("rate limited")
	ErrServerError      = errors.New("server error")
	ErrUnexpectedStatus = errors.New("unexpected status code")
	ErrCircuitOpen      = errors.New("circuit breaker open")
	ErrInvalidToken     = errors.New("invalid api token")
	ErrProviderStatus   = errors.New("provider reported an error")

	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// breakerTripAfter is the number of consecutive failures that opens a breaker.
const breakerTripAfter = 10

// breakers holds one circuit breaker per upstream target, so a station that
// keeps failing never blocks the bulk query or the other stations.
type breakers struct {
	prefix  string
	timeout time.Duration

	mu  sync.Mutex
	set map[string]*gobreaker.CircuitBreaker
}

func newBreakers(prefix string, timeout time.Duration) *breakers {
	return &breakers{
		prefix:  prefix,
		timeout: timeout,
		set:     make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (b *breakers) get(target string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.set[target]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        b.prefix + ":" + target,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     b.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > breakerTripAfter
		},
		IsSuccessful: countsAsSuccess,
	})
	b.set[target] = cb
	return cb
}

// countsAsSuccess keeps aborted requests out of the failure count: an
// unmount cancelling its queries says nothing about upstream health.
func countsAsSuccess(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// do sends the request built by buildRequest through cb, retrying with
// exponential backoff while the policy allows it.
func do(
	ctx context.Context,
	client *http.Client,
	backoff BackoffConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func(ctx context.Context) (*http.Request, error),
) (*http.Response, error) {
	if client == nil {
		return nil, errNoHTTPClient
	}
	if backoff.MaxRetries < 0 || (backoff.MaxRetries > 0 && backoff.InitialInterval <= 0) {
		return nil, errInvalidConfig
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := buildRequest(ctx)
		if err != nil {
			return nil, err
		}

		result, err := cb.Execute(func() (interface{}, error) {
			return send(ctx, client, req)
		})
		if err == nil {
			return result.(*http.Response), nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, cb.Name())
		}
		if attempt >= backoff.MaxRetries || ctx.Err() != nil {
			return nil, err
		}

		timer := time.NewTimer(backoff.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// send performs one attempt and maps unusable statuses to errors.
func send(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		err = ErrRateLimited
	case resp.StatusCode >= 500:
		err = ErrServerError
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		err = fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	default:
		return resp, nil
	}
	resp.Body.Close()
	return nil, err
}

func (b BackoffConfig) delay(attempt int) time.Duration {
	d := b.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
	if b.MaxInterval > 0 && d > b.MaxInterval {
		d = b.MaxInterval
	}
	return d
}
