package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// Doer executes a single HTTP request.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// FallbackFunc answers in place of the backend while the breaker rejects calls.
type FallbackFunc func(ctx context.Context, err error) (*http.Response, error)

// BreakerConfig tunes a BreakerClient.
type BreakerConfig struct {
	Name string

	// HalfOpenRequests are let through while probing a recovering backend.
	HalfOpenRequests uint32
	// Window resets the closed-state counters; zero never resets them.
	Window time.Duration
	// Cooldown is how long the breaker stays open.
	Cooldown time.Duration

	// The breaker trips once MinRequests have been seen in the window and
	// at least FailureRatio of them failed.
	FailureRatio float64
	MinRequests  uint32

	Fallback FallbackFunc
}

// DefaultBreakerConfig returns the settings used for the cart backend.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		HalfOpenRequests: 1,
		Window:           time.Minute,
		Cooldown:         30 * time.Second,
		FailureRatio:     0.5,
		MinRequests:      5,
	}
}

// ServerError is how a 5xx reply surfaces through the breaker.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Body)
}

// ErrCircuitOpen is returned for calls rejected by an open breaker.
var ErrCircuitOpen = gobreaker.ErrOpenState

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cartsync_circuit_breaker_state",
		Help: "Backend circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	breakerRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartsync_circuit_breaker_rejected_total",
		Help: "Requests rejected or diverted to the fallback by the breaker",
	}, []string{"name"})
)

// BreakerClient guards a Doer with a circuit breaker. Transport errors and
// 5xx replies count as failures; 4xx replies and caller cancellations do not.
type BreakerClient struct {
	next     Doer
	cb       *gobreaker.CircuitBreaker[*http.Response]
	name     string
	fallback FallbackFunc
	logger   *slog.Logger
}

// NewBreakerClient wraps next.
func NewBreakerClient(next Doer, cfg BreakerConfig, logger *slog.Logger) *BreakerClient {
	gauge := breakerState.WithLabelValues(cfg.Name)
	gauge.Set(float64(gobreaker.StateClosed))

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Window,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= cfg.MinRequests &&
				float64(c.TotalFailures) >= cfg.FailureRatio*float64(c.Requests)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			gauge.Set(float64(to))
		},
	})

	return &BreakerClient{
		next:     next,
		cb:       cb,
		name:     cfg.Name,
		fallback: cfg.Fallback,
		logger:   logger,
	}
}

// Do sends req through the breaker.
func (c *BreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.cb.Execute(func() (*http.Response, error) {
		resp, err := c.next.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return nil, &ServerError{Status: resp.StatusCode, Body: string(body)}
	})
	if err == nil {
		return resp, nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		breakerRejected.WithLabelValues(c.name).Inc()
		if c.fallback != nil {
			c.logger.WarnContext(ctx, "circuit breaker rejecting calls, using fallback",
				slog.String("breaker", c.name),
			)
			return c.fallback(ctx, err)
		}
	}
	return nil, err
}

// State reports the breaker's current state.
func (c *BreakerClient) State() gobreaker.State { return c.cb.State() }

// Check fails while the breaker is open. It fits health.Checker.
func (c *BreakerClient) Check(context.Context) error {
	if c.cb.State() == gobreaker.StateOpen {
		return fmt.Errorf("%s: circuit breaker open", c.name)
	}
	return nil
}
