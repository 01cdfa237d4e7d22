package state

import "github.com/utafrali/cartsync/internal/domain"

// Summary derives the badge and order summary figures. Aggregates recorded
// on the cart are preferred; without a cart they are computed from lines.
func (s *Store) Summary() domain.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := domain.Summary{
		ItemCount:  domain.ItemCount(s.items),
		TotalPrice: domain.TotalAmount(s.items),
	}
	if s.cart != nil {
		sum.ItemCount = s.cart.TotalItems
		sum.TotalPrice = s.cart.TotalPrice
		sum.DiscountAmount = s.cart.DiscountAmount
	}
	sum.Payable = sum.TotalPrice - sum.DiscountAmount
	if sum.Payable < 0 {
		sum.Payable = 0
	}
	return sum
}

// IsInCart reports whether a line for the variant exists.
func (s *Store) IsInCart(variantID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.FindVariantIndex(s.items, variantID) >= 0
}

// QuantityOf returns the quantity held for the variant, or 0.
func (s *Store) QuantityOf(variantID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := domain.FindVariantIndex(s.items, variantID); idx >= 0 {
		return s.items[idx].Quantity
	}
	return 0
}

// LineItem returns a copy of the line with the given id.
func (s *Store) LineItem(lineItemID string) (domain.LineItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := domain.FindItemIndex(s.items, lineItemID)
	if idx < 0 {
		return domain.LineItem{}, false
	}
	return domain.CloneItems(s.items[idx : idx+1])[0], true
}

// LineItemByVariant returns a copy of the line holding the variant.
func (s *Store) LineItemByVariant(variantID string) (domain.LineItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := domain.FindVariantIndex(s.items, variantID)
	if idx < 0 {
		return domain.LineItem{}, false
	}
	return domain.CloneItems(s.items[idx : idx+1])[0], true
}
