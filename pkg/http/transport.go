package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// errUpstreamDown marks gateway failures so the breaker counts them; the response itself is
// still returned to the caller.
var errUpstreamDown = errors.New("upstream unavailable")

// errLocalRateLimit means the client-side limiter could not admit the request before the deadline.
var errLocalRateLimit = errors.New("client rate limit exceeded")

// sender performs one round trip, optionally through a rate limiter and a circuit breaker.
type sender struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

func newBreaker(failures uint32, cooldown time.Duration) *gobreaker.CircuitBreaker[*http.Response] {
	if failures == 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "feed-api",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

func (s *sender) send(client *http.Client, req *http.Request) (*http.Response, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(req.Context()); err != nil {
			if ctxErr := req.Context().Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: %v", errLocalRateLimit, err)
		}
	}
	if s.breaker == nil {
		return client.Do(req)
	}

	resp, err := s.breaker.Execute(func() (*http.Response, error) {
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return resp, errUpstreamDown
		}
		return resp, nil
	})
	if errors.Is(err, errUpstreamDown) {
		return resp, nil
	}
	return resp, err
}

func isBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
