// Package session resolves which identity owns the cart: the logged-in user
// or a persistent guest session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/utafrali/cartsync/internal/domain"
	apperrors "github.com/utafrali/cartsync/pkg/errors"
)

// GuestKey is the storage key of the guest session id.
const GuestKey = "guestSessionId"

// Resolver yields the current cart owner. It is safe for concurrent use.
type Resolver struct {
	mu     sync.Mutex
	store  Store
	userID string
	logger *slog.Logger
	newID  func() string
}

// NewResolver creates a resolver persisting guest ids in store.
func NewResolver(store Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// Resolve returns the authenticated user when one is set, otherwise the
// persisted guest session, creating and persisting it on first use.
func (r *Resolver) Resolve(ctx context.Context) (domain.Owner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.userID != "" {
		return domain.Owner{Kind: domain.OwnerUser, ID: r.userID}, nil
	}

	id, err := r.store.Get(ctx, GuestKey)
	if err == nil && id != "" {
		return domain.Owner{Kind: domain.OwnerGuest, ID: id}, nil
	}
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return domain.Owner{}, fmt.Errorf("read guest session: %w", err)
	}

	id = r.newID()
	if err := r.store.Set(ctx, GuestKey, id); err != nil {
		return domain.Owner{}, fmt.Errorf("persist guest session: %w", err)
	}
	r.logger.InfoContext(ctx, "guest session created", slog.String("session_id", id))
	return domain.Owner{Kind: domain.OwnerGuest, ID: id}, nil
}

// UserID returns the authenticated user id, or "".
func (r *Resolver) UserID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userID
}

// Login makes userID the owner and forgets the guest session. Guest cart
// contents are not carried over.
func (r *Resolver) Login(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.InvalidInput("user id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Delete(ctx, GuestKey); err != nil {
		return fmt.Errorf("clear guest session: %w", err)
	}
	r.userID = userID
	return nil
}

// Logout drops the authenticated user. The next Resolve starts a fresh guest session.
func (r *Resolver) Logout() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userID = ""
}
