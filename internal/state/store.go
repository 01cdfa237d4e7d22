// Package state holds the single source of truth for the cart the UI renders.
package state

import (
	"sync"

	"github.com/utafrali/cartsync/internal/domain"
)

// Snapshot is an immutable copy of the store contents.
type Snapshot struct {
	Cart      *domain.Cart      `json:"cart"`
	LineItems []domain.LineItem `json:"line_items"`
	Loading   bool              `json:"loading"`
	Error     string            `json:"error,omitempty"`
}

// Listener is notified with a fresh snapshot after every state change.
type Listener func(Snapshot)

// Store guards the cart state. Readers always receive deep copies.
type Store struct {
	mu        sync.RWMutex
	cart      *domain.Cart
	items     []domain.LineItem
	loading   bool
	err       string
	listeners map[int]Listener
	nextID    int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{listeners: make(map[int]Listener)}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	items := domain.CloneItems(s.items)
	if items == nil {
		items = []domain.LineItem{}
	}
	return Snapshot{
		Cart:      s.cart.Clone(),
		LineItems: items,
		Loading:   s.loading,
		Error:     s.err,
	}
}

// Cart returns a copy of the held cart, or nil.
func (s *Store) Cart() *domain.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Clone()
}

// CartID returns the id of the held cart, or "".
func (s *Store) CartID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cart == nil {
		return ""
	}
	return s.cart.ID
}

// Subscribe registers fn and returns a function that removes it.
// Listeners run on the goroutine that changed the state and must not call
// back into the cart service synchronously.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// update applies fn under the write lock and notifies listeners afterwards.
func (s *Store) update(fn func()) {
	s.mu.Lock()
	fn()
	snap := s.snapshotLocked()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

// Replace swaps in a whole cart. Line items are taken from the cart; a nil
// cart empties the state. The error is cleared.
func (s *Store) Replace(cart *domain.Cart) {
	s.update(func() {
		s.setCartLocked(cart)
		s.err = ""
	})
}

func (s *Store) setCartLocked(cart *domain.Cart) {
	if cart == nil {
		s.cart = nil
		s.items = nil
		return
	}
	s.cart = cart.Clone()
	s.items = domain.CloneItems(cart.Items)
}

// SetLoading toggles the loading flag.
func (s *Store) SetLoading(loading bool) {
	s.update(func() { s.loading = loading })
}

// SetError records a display message. An empty message clears it.
func (s *Store) SetError(msg string) {
	s.update(func() { s.err = msg })
}

// Fail records msg and empties the local cart.
func (s *Store) Fail(msg string) {
	s.update(func() {
		s.setCartLocked(nil)
		s.err = msg
	})
}

// Reset drops everything, including the error.
func (s *Store) Reset() {
	s.update(func() {
		s.setCartLocked(nil)
		s.err = ""
		s.loading = false
	})
}

// SetQuantity sets the quantity of a line and adjusts the aggregate count.
// It returns the previous quantity and false if the line is unknown.
func (s *Store) SetQuantity(lineItemID string, qty int) (prev int, ok bool) {
	s.update(func() {
		idx := domain.FindItemIndex(s.items, lineItemID)
		if idx < 0 {
			return
		}
		prev, ok = s.items[idx].Quantity, true
		s.items[idx].Quantity = qty
		if s.cart != nil {
			s.cart.TotalItems += qty - prev
			s.cart.TotalPrice += int64(qty-prev) * s.items[idx].Price
			s.syncCartItemsLocked()
		}
	})
	return prev, ok
}

// Removal describes a line taken out of the store so it can be put back.
type Removal struct {
	Item       domain.LineItem
	Index      int
	TotalItems int
	TotalPrice int64
}

// RemoveLine takes the line out of the store and decrements the aggregates.
func (s *Store) RemoveLine(lineItemID string) (Removal, bool) {
	var (
		rm Removal
		ok bool
	)
	s.update(func() {
		idx := domain.FindItemIndex(s.items, lineItemID)
		if idx < 0 {
			return
		}
		rm = Removal{Item: s.items[idx], Index: idx}
		ok = true
		s.items = append(s.items[:idx:idx], s.items[idx+1:]...)
		if s.cart != nil {
			rm.TotalItems, rm.TotalPrice = s.cart.TotalItems, s.cart.TotalPrice
			s.cart.TotalItems -= rm.Item.Quantity
			s.cart.TotalPrice -= rm.Item.Subtotal()
			s.syncCartItemsLocked()
		}
	})
	return rm, ok
}

// Restore puts a removed line back at its original position and restores the
// aggregates captured at removal time. It is a no-op if the line reappeared
// in the meantime (for example through a push).
func (s *Store) Restore(rm Removal) {
	s.update(func() {
		if domain.FindItemIndex(s.items, rm.Item.ID) >= 0 {
			return
		}
		idx := rm.Index
		if idx > len(s.items) {
			idx = len(s.items)
		}
		items := make([]domain.LineItem, 0, len(s.items)+1)
		items = append(items, s.items[:idx]...)
		items = append(items, rm.Item)
		items = append(items, s.items[idx:]...)
		s.items = items
		if s.cart != nil {
			s.cart.TotalItems, s.cart.TotalPrice = rm.TotalItems, rm.TotalPrice
			s.syncCartItemsLocked()
		}
	})
}

// ClearItems drops every line. With dropCart the cart object goes too.
func (s *Store) ClearItems(dropCart bool) {
	s.update(func() {
		s.items = nil
		if dropCart {
			s.cart = nil
			return
		}
		if s.cart != nil {
			s.cart.TotalItems, s.cart.TotalPrice, s.cart.DiscountAmount = 0, 0, 0
			s.syncCartItemsLocked()
		}
	})
}

// syncCartItemsLocked keeps cart.Items in step with the line list.
func (s *Store) syncCartItemsLocked() {
	s.cart.Items = domain.CloneItems(s.items)
}
