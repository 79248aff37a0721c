package blockchain

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

const (
	defaultUnhealthyDuration = time.Minute // Cooldown before an open breaker lets a probe through
	defaultTripAfter         = 3           // Consecutive transport failures that open a breaker
)

var errNoHealthyEndpoint = errors.New("no healthy RPC endpoints available")

type endpointStatus struct {
	url     string
	display string
	breaker *gobreaker.CircuitBreaker
}

// FailoverClient spreads requests over several RPC endpoints.
// Each endpoint sits behind its own circuit breaker; endpoints with an open
// breaker are skipped until their cooldown expires.
type FailoverClient struct {
	endpoints    []*endpointStatus
	currentIndex int
	mu           sync.Mutex
}

// NewFailoverClient creates a failover client over urls
func NewFailoverClient(urls []string, tripAfter uint32, cooldown time.Duration) (*FailoverClient, error) {
	if len(urls) == 0 {
		return nil, &ConfigurationError{Field: "endpoints", Reason: "at least one RPC URL is required"}
	}
	if tripAfter == 0 {
		tripAfter = defaultTripAfter
	}
	if cooldown <= 0 {
		cooldown = defaultUnhealthyDuration
	}

	fc := &FailoverClient{endpoints: make([]*endpointStatus, 0, len(urls))}
	for _, raw := range urls {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, &ConfigurationError{Field: "endpoints", Reason: fmt.Sprintf("invalid RPC URL %q", RedactURL(raw))}
		}

		display := RedactURL(raw)
		fc.endpoints = append(fc.endpoints, &endpointStatus{
			url:     raw,
			display: display,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        display,
				MaxRequests: 1,
				Timeout:     cooldown,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= tripAfter
				},
				// Only transport failures count against an endpoint.
				IsSuccessful: func(err error) bool {
					return err == nil || !errors.Is(err, ErrTransport)
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					if to == gobreaker.StateOpen {
						slog.Warn("RPC endpoint marked unhealthy, will retry after cooldown",
							"endpoint", name, "retry_after", cooldown)
						return
					}
					slog.Info("RPC endpoint state changed", "endpoint", name, "from", from.String(), "to", to.String())
				},
			}),
		})
	}

	return fc, nil
}

// currentEndpoint returns the current endpoint, moving past endpoints whose breaker is open
func (fc *FailoverClient) currentEndpoint() (*endpointStatus, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	for i := range len(fc.endpoints) {
		idx := (fc.currentIndex + i) % len(fc.endpoints)
		ep := fc.endpoints[idx]
		if ep.breaker.State() != gobreaker.StateOpen {
			fc.currentIndex = idx
			return ep, nil
		}
	}

	return nil, errNoHealthyEndpoint
}

// Rotate moves the current endpoint past endpointURL after a failed request
func (fc *FailoverClient) Rotate(endpointURL string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if fc.endpoints[fc.currentIndex].url == endpointURL {
		fc.currentIndex = (fc.currentIndex + 1) % len(fc.endpoints)
	}
}

// EndpointsHealth reports, per redacted endpoint, whether its breaker admits traffic
func (fc *FailoverClient) EndpointsHealth() map[string]bool {
	status := make(map[string]bool, len(fc.endpoints))
	for _, ep := range fc.endpoints {
		status[ep.display] = ep.breaker.State() != gobreaker.StateOpen
	}
	return status
}

// execute runs fn through the endpoint's breaker
func (ep *endpointStatus) execute(fn func() error) error {
	_, err := ep.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &TransportError{Endpoint: ep.display, Err: err}
	}
	return err
}

// RedactURL strips query values (API keys) from an endpoint URL for logging
func RedactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	if parsed.RawQuery == "" {
		return parsed.String()
	}

	keys := slices.Sorted(maps.Keys(parsed.Query()))
	for i, key := range keys {
		keys[i] = key + "=***"
	}
	parsed.RawQuery = strings.Join(keys, "&")
	return parsed.String()
}
