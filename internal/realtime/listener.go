// Package realtime keeps the cart store in step with server-side changes
// pushed to a logged-in user.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/cartsync/internal/adapter"
	"github.com/utafrali/cartsync/internal/state"
	apperrors "github.com/utafrali/cartsync/pkg/errors"
)

// EventCartUpdated is the push event carrying a full cart snapshot.
const EventCartUpdated = "cart_updated"

// DeliverFunc hands one raw cart payload to the listener.
type DeliverFunc func(ctx context.Context, payload []byte)

// Transport subscribes to cart updates for one user. Subscribe blocks until
// ctx is canceled (returning nil) or the connection is lost.
type Transport interface {
	Name() string
	Subscribe(ctx context.Context, userID string, deliver DeliverFunc) error
}

// Options tunes reconnect behavior.
type Options struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// DefaultOptions returns the reconnect delays used by the daemon.
func DefaultOptions() Options {
	return Options{
		MinBackoff: 500 * time.Millisecond,
		MaxBackoff: 30 * time.Second,
	}
}

type subscription struct {
	userID string
	cancel context.CancelFunc
	done   chan struct{}
}

// Listener applies pushed carts to the store. Each pushed cart replaces the
// local one wholesale, including optimistic changes not yet sent. Payloads
// that decode to no cart are ignored.
type Listener struct {
	transport Transport
	store     *state.Store
	logger    *slog.Logger
	opts      Options

	mu      sync.Mutex
	current *subscription
}

// NewListener creates a listener that reads from transport and writes to store.
func NewListener(transport Transport, store *state.Store, logger *slog.Logger, opts Options) *Listener {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = DefaultOptions().MinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = opts.MinBackoff
	}
	return &Listener{
		transport: transport,
		store:     store,
		logger:    logger.With(slog.String("transport", transport.Name())),
		opts:      opts,
	}
}

// Connect subscribes to updates for userID. A subscription for the same user
// is reused; one for another user is torn down first. The subscription
// outlives ctx and runs until Disconnect.
func (l *Listener) Connect(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.InvalidInput("user id is required for push updates")
	}

	l.mu.Lock()
	if l.current != nil && l.current.userID == userID {
		l.mu.Unlock()
		return nil
	}
	prev := l.current
	l.current = nil
	l.mu.Unlock()
	stop(prev)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &subscription{userID: userID, cancel: cancel, done: make(chan struct{})}

	l.mu.Lock()
	l.current = sub
	l.mu.Unlock()

	go l.run(runCtx, sub)
	l.logger.InfoContext(ctx, "push subscription started", slog.String("user_id", userID))
	return nil
}

// Disconnect ends the active subscription, if any, and waits for it to stop.
func (l *Listener) Disconnect() {
	l.mu.Lock()
	sub := l.current
	l.current = nil
	l.mu.Unlock()

	if sub != nil {
		stop(sub)
		l.logger.Info("push subscription stopped", slog.String("user_id", sub.userID))
	}
}

// UserID returns the user currently subscribed, or "".
func (l *Listener) UserID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return ""
	}
	return l.current.userID
}

func stop(sub *subscription) {
	if sub == nil {
		return
	}
	sub.cancel()
	<-sub.done
}

func (l *Listener) run(ctx context.Context, sub *subscription) {
	defer close(sub.done)

	backoff := l.opts.MinBackoff
	for {
		delivered := false
		err := l.transport.Subscribe(ctx, sub.userID, func(ctx context.Context, payload []byte) {
			delivered = true
			l.apply(ctx, sub, payload)
		})
		if ctx.Err() != nil {
			return
		}
		if delivered {
			backoff = l.opts.MinBackoff
		}
		if err == nil {
			err = errors.New("subscription ended")
		}
		reconnectsTotal.WithLabelValues(l.transport.Name()).Inc()
		l.logger.WarnContext(ctx, "push connection lost, reconnecting",
			slog.String("user_id", sub.userID),
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, l.opts.MaxBackoff)
	}
}

func (l *Listener) apply(ctx context.Context, sub *subscription, payload []byte) {
	cart, err := adapter.DecodeCart(payload, l.logger)
	if err != nil {
		pushEventsTotal.WithLabelValues(l.transport.Name(), "invalid").Inc()
		l.logger.WarnContext(ctx, "discarding malformed cart push", slog.String("error", err.Error()))
		return
	}
	if cart == nil {
		pushEventsTotal.WithLabelValues(l.transport.Name(), "ignored").Inc()
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != sub {
		pushEventsTotal.WithLabelValues(l.transport.Name(), "ignored").Inc()
		return
	}
	l.store.Replace(cart)
	pushEventsTotal.WithLabelValues(l.transport.Name(), "applied").Inc()

	l.logger.DebugContext(ctx, "cart push applied",
		slog.String("user_id", sub.userID),
		slog.String("cart_id", cart.ID),
		slog.Int("total_items", cart.TotalItems),
	)
}
