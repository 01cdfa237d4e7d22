package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/utafrali/cartsync/internal/domain"
	apperrors "github.com/utafrali/cartsync/pkg/errors"
)

type backendCall struct {
	Op        string
	CartID    string
	VariantID string
	Quantity  int
	UserID    string
}

// fakeBackend is an in-memory cart API that merges lines by variant like the
// real backend does.
type fakeBackend struct {
	mu      sync.Mutex
	carts   map[string]*domain.Cart
	byOwner map[domain.Owner]string
	prices  map[string]int64
	nextID  int
	calls   []backendCall

	getErr    error
	addErr    error
	removeErr error
	clearErr  error

	// afterAdd runs after the n-th AddItem call (1-based) was applied and
	// before it returns.
	afterAdd func(n int)
	addCount int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		carts:   make(map[string]*domain.Cart),
		byOwner: make(map[domain.Owner]string),
		prices:  map[string]int64{"v1": 350000, "v2": 120000, "v3": 99000, "v9": 500000},
	}
}

func (f *fakeBackend) seed(owner domain.Owner, lines ...domain.LineItem) *domain.Cart {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart := f.newCartLocked(owner)
	for _, li := range lines {
		if li.Price == 0 {
			li.Price = f.prices[li.VariantID]
		}
		if li.ID == "" {
			li.ID = "li-" + li.VariantID
		}
		cart.Items = append(cart.Items, li)
	}
	recompute(cart)
	return cart.Clone()
}

func (f *fakeBackend) newCartLocked(owner domain.Owner) *domain.Cart {
	f.nextID++
	cart := &domain.Cart{ID: fmt.Sprintf("cart-%d", f.nextID)}
	if owner.IsUser() {
		cart.UserID = owner.ID
	} else {
		cart.SessionID = owner.ID
	}
	f.carts[cart.ID] = cart
	f.byOwner[owner] = cart.ID
	return cart
}

func recompute(c *domain.Cart) {
	c.TotalItems = domain.ItemCount(c.Items)
	c.TotalPrice = domain.TotalAmount(c.Items)
}

func (f *fakeBackend) record(c backendCall) {
	f.calls = append(f.calls, c)
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *fakeBackend) callsOf(op string) []backendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []backendCall
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeBackend) GetByOwner(_ context.Context, owner domain.Owner) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(backendCall{Op: "get", UserID: owner.ID})
	if f.getErr != nil {
		return nil, f.getErr
	}
	id, ok := f.byOwner[owner]
	if !ok {
		return nil, apperrors.NotFound("cart", owner.ID)
	}
	return f.carts[id].Clone(), nil
}

func (f *fakeBackend) Create(_ context.Context, owner domain.Owner) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(backendCall{Op: "create", UserID: owner.ID})
	return f.newCartLocked(owner).Clone(), nil
}

func (f *fakeBackend) AddItem(_ context.Context, cartID, variantID string, quantity int) (*domain.Cart, error) {
	f.mu.Lock()
	f.record(backendCall{Op: "add", CartID: cartID, VariantID: variantID, Quantity: quantity})
	f.addCount++
	n := f.addCount
	if f.addErr != nil {
		err := f.addErr
		f.mu.Unlock()
		return nil, err
	}
	cart, ok := f.carts[cartID]
	if !ok {
		f.mu.Unlock()
		return nil, apperrors.NotFound("cart", cartID)
	}
	if idx := domain.FindVariantIndex(cart.Items, variantID); idx >= 0 {
		cart.Items[idx].Quantity += quantity
	} else {
		cart.Items = append(cart.Items, domain.LineItem{
			ID: "li-" + variantID, VariantID: variantID, Quantity: quantity, Price: f.prices[variantID],
		})
	}
	recompute(cart)
	out := cart.Clone()
	hook := f.afterAdd
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return out, nil
}

func (f *fakeBackend) RemoveItem(_ context.Context, cartID, variantID string, quantity int) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(backendCall{Op: "remove", CartID: cartID, VariantID: variantID, Quantity: quantity})
	if f.removeErr != nil {
		return nil, f.removeErr
	}
	cart, ok := f.carts[cartID]
	if !ok {
		return nil, apperrors.NotFound("cart", cartID)
	}
	if idx := domain.FindVariantIndex(cart.Items, variantID); idx >= 0 {
		cart.Items[idx].Quantity -= quantity
		if cart.Items[idx].Quantity <= 0 {
			cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		}
	}
	recompute(cart)
	return cart.Clone(), nil
}

func (f *fakeBackend) Clear(_ context.Context, cartID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(backendCall{Op: "clear", CartID: cartID, UserID: userID})
	if f.clearErr != nil {
		return f.clearErr
	}
	if cart, ok := f.carts[cartID]; ok {
		cart.Items = nil
		recompute(cart)
	}
	return nil
}

func (f *fakeBackend) Delete(_ context.Context, cartID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(backendCall{Op: "delete", CartID: cartID})
	cart, ok := f.carts[cartID]
	if !ok {
		return apperrors.NotFound("cart", cartID)
	}
	delete(f.carts, cartID)
	delete(f.byOwner, cart.Owner())
	return nil
}

type fakeListener struct {
	mu           sync.Mutex
	connected    string
	connects     int
	disconnects  int
	connectError error

	// onDisconnect runs after each Disconnect, outside the lock.
	onDisconnect func()
}

func (l *fakeListener) Connect(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connects++
	if l.connectError != nil {
		return l.connectError
	}
	l.connected = userID
	return nil
}

func (l *fakeListener) Disconnect() {
	l.mu.Lock()
	l.disconnects++
	l.connected = ""
	hook := l.onDisconnect
	l.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (l *fakeListener) user() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}
