package repository

import (
	"context"

	"github.com/utafrali/cartsync/internal/domain"
)

// CartRepository is the remote cart API as seen by the engine.
//
// Lookups report a missing cart with an error wrapping apperrors.ErrNotFound.
// Mutations return the updated cart when the backend sends one back, or nil.
type CartRepository interface {
	// GetByOwner fetches the cart of a user or guest session.
	GetByOwner(ctx context.Context, owner domain.Owner) (*domain.Cart, error)

	// Create creates an empty cart for the owner.
	Create(ctx context.Context, owner domain.Owner) (*domain.Cart, error)

	// AddItem adds quantity units of the variant to the cart.
	AddItem(ctx context.Context, cartID, variantID string, quantity int) (*domain.Cart, error)

	// RemoveItem removes quantity units of the variant from the cart.
	RemoveItem(ctx context.Context, cartID, variantID string, quantity int) (*domain.Cart, error)

	// Clear empties the cart. userID, when set, lets the backend push the
	// new state to that user's channel.
	Clear(ctx context.Context, cartID, userID string) error

	// Delete removes the cart entirely.
	Delete(ctx context.Context, cartID string) error
}
