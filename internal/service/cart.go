package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/utafrali/cartsync/internal/domain"
	"github.com/utafrali/cartsync/internal/repository"
	"github.com/utafrali/cartsync/internal/scheduler"
	"github.com/utafrali/cartsync/internal/session"
	"github.com/utafrali/cartsync/internal/state"
	apperrors "github.com/utafrali/cartsync/pkg/errors"
	"github.com/utafrali/cartsync/pkg/logger"
	"github.com/utafrali/cartsync/pkg/validator"
)

// DefaultDebounce is the quiet period before a quantity change is sent.
const DefaultDebounce = 300 * time.Millisecond

// MaxQuantityPerItem caps a single add or quantity update.
const MaxQuantityPerItem = 999

// PushListener is the realtime channel the service connects for logged-in users.
type PushListener interface {
	Connect(ctx context.Context, userID string) error
	Disconnect()
}

// AddItemInput holds the parameters for adding a variant to the cart.
type AddItemInput struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=999"`
}

// Options tunes the service.
type Options struct {
	Debounce time.Duration
}

// pendingUpdate tracks a debounced quantity change for one line.
// base is the quantity the backend is believed to hold; target is what the
// user asked for last.
type pendingUpdate struct {
	variantID string
	base      int
	target    int
	seq       uint64
}

// CartService coordinates optimistic local changes with the remote cart.
type CartService struct {
	repo      repository.CartRepository
	store     *state.Store
	sessions  *session.Resolver
	listener  PushListener
	logger    *slog.Logger
	debouncer *scheduler.Debouncer
	seq       *scheduler.Sequencer
	creates   singleflight.Group

	mu      sync.Mutex
	pending map[string]*pendingUpdate

	// epoch changes on every owner switch; results started under an older
	// epoch are dropped.
	epoch atomic.Uint64

	bgCtx    context.Context
	bgCancel context.CancelFunc
	inflight sync.WaitGroup
	closed   atomic.Bool
}

// NewCartService creates a cart service. listener may be nil when no push
// channel is configured.
func NewCartService(
	repo repository.CartRepository,
	store *state.Store,
	sessions *session.Resolver,
	listener PushListener,
	logger *slog.Logger,
	opts Options,
) *CartService {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CartService{
		repo:      repo,
		store:     store,
		sessions:  sessions,
		listener:  listener,
		logger:    logger,
		debouncer: scheduler.NewDebouncer(opts.Debounce),
		seq:       scheduler.NewSequencer(),
		pending:   make(map[string]*pendingUpdate),
		bgCtx:     ctx,
		bgCancel:  cancel,
	}
}

// Store exposes the state store backing this service.
func (s *CartService) Store() *state.Store { return s.store }

// HasPending reports whether a quantity change for the line is waiting to be sent.
func (s *CartService) HasPending(lineItemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[lineItemID]
	return ok
}

// Owner returns the identity whose cart the service holds.
func (s *CartService) Owner(ctx context.Context) (domain.Owner, error) {
	return s.sessions.Resolve(ctx)
}

func (s *CartService) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, s.logger)
}

// Fetch loads the owner's cart. A missing cart yields an empty state without
// error; any other failure records the error and empties local state.
func (s *CartService) Fetch(ctx context.Context) error {
	epoch := s.epoch.Load()

	owner, err := s.sessions.Resolve(ctx)
	if err != nil {
		s.store.Fail(apperrors.Message(err))
		return fmt.Errorf("resolve owner: %w", err)
	}
	ctx = logger.WithOwner(ctx, string(owner.Kind), owner.ID)

	s.store.SetLoading(true)
	defer s.store.SetLoading(false)

	cart, err := s.repo.GetByOwner(ctx, owner)
	if s.epoch.Load() != epoch {
		return nil
	}
	switch {
	case err == nil:
		s.store.Replace(cart)
		return nil
	case errors.Is(err, apperrors.ErrNotFound):
		s.store.Replace(nil)
		return nil
	default:
		s.log(ctx).ErrorContext(ctx, "fetch cart failed", slog.String("error", err.Error()))
		s.store.Fail(apperrors.Message(err))
		return fmt.Errorf("fetch cart: %w", err)
	}
}

// EnsureCart returns the held cart, looking it up or creating it for the
// current owner when none is held. Concurrent callers share one creation.
func (s *CartService) EnsureCart(ctx context.Context) (*domain.Cart, error) {
	if cart := s.store.Cart(); cart != nil {
		return cart, nil
	}

	owner, err := s.sessions.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve owner: %w", err)
	}
	epoch := s.epoch.Load()
	ctx = logger.WithOwner(context.WithoutCancel(ctx), string(owner.Kind), owner.ID)

	v, err, _ := s.creates.Do(string(owner.Kind)+":"+owner.ID, func() (any, error) {
		if cart := s.store.Cart(); cart != nil {
			return cart, nil
		}

		cart, err := s.repo.GetByOwner(ctx, owner)
		if errors.Is(err, apperrors.ErrNotFound) {
			cart, err = s.repo.Create(ctx, owner)
			if err == nil {
				s.log(ctx).InfoContext(ctx, "cart created", slog.String("cart_id", cart.ID))
			}
		}
		if err != nil {
			return nil, err
		}
		if s.epoch.Load() == epoch {
			s.store.Replace(cart)
		}
		return cart, nil
	})
	if err != nil {
		return nil, fmt.Errorf("ensure cart: %w", err)
	}
	return v.(*domain.Cart).Clone(), nil
}

// AddItem sends a quantity delta for the variant. Nothing is inserted
// locally; the returned cart (or the push channel) brings the new line.
func (s *CartService) AddItem(ctx context.Context, productID string, quantity int, variantID string) error {
	if quantity == 0 {
		quantity = 1
	}
	input := AddItemInput{ProductID: productID, VariantID: variantID, Quantity: quantity}
	if err := validator.Validate(input); err != nil {
		s.log(ctx).WarnContext(ctx, "add item rejected",
			slog.String("variant_id", variantID),
			slog.Int("quantity", quantity),
			slog.String("error", err.Error()),
		)
		return apperrors.InvalidInput(err.Error())
	}

	epoch := s.epoch.Load()
	cart, err := s.EnsureCart(ctx)
	if err != nil {
		observeMutation("add_item", err)
		return s.resync(ctx, "add_item", err)
	}

	updated, err := s.repo.AddItem(ctx, cart.ID, variantID, quantity)
	observeMutation("add_item", err)
	if s.epoch.Load() != epoch {
		return err
	}
	if err != nil {
		return s.resync(ctx, "add_item", err)
	}

	s.log(ctx).InfoContext(ctx, "item added",
		slog.String("cart_id", cart.ID),
		slog.String("variant_id", variantID),
		slog.Int("quantity", quantity),
	)
	if updated == nil {
		return s.Fetch(ctx)
	}
	s.store.Replace(updated)
	return nil
}

// UpdateQuantity sets the line quantity locally and schedules the backend
// call. Quantities of zero or less remove the line.
func (s *CartService) UpdateQuantity(ctx context.Context, lineItemID string, quantity int) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, lineItemID)
	}
	if quantity > MaxQuantityPerItem {
		return apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerItem))
	}
	if s.store.CartID() == "" {
		return apperrors.NoCart("no cart to update")
	}

	s.mu.Lock()
	li, ok := s.store.LineItem(lineItemID)
	if !ok {
		s.mu.Unlock()
		return apperrors.NotFound("line item", lineItemID)
	}
	p, exists := s.pending[lineItemID]
	if !exists {
		p = &pendingUpdate{variantID: li.VariantID, base: li.Quantity}
		s.pending[lineItemID] = p
	}
	p.target = quantity
	p.seq = s.seq.Next(lineItemID)
	s.store.SetQuantity(lineItemID, quantity)
	s.mu.Unlock()

	s.debouncer.Schedule(lineItemID, func() { s.flushQuantity(lineItemID) })
	return nil
}

// flushQuantity sends target minus base for the line once its debounce fires.
func (s *CartService) flushQuantity(lineItemID string) {
	s.mu.Lock()
	p, ok := s.pending[lineItemID]
	if !ok || s.closed.Load() {
		s.mu.Unlock()
		return
	}
	diff := p.target - p.base
	seq := p.seq
	p.base = p.target
	if diff == 0 {
		delete(s.pending, lineItemID)
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	ctx := s.bgCtx
	epoch := s.epoch.Load()
	cartID := s.store.CartID()

	var (
		cart *domain.Cart
		err  error
		op   = "add_item"
	)
	if diff > 0 {
		cart, err = s.repo.AddItem(ctx, cartID, p.variantID, diff)
	} else {
		op = "remove_item"
		cart, err = s.repo.RemoveItem(ctx, cartID, p.variantID, -diff)
	}
	observeMutation(op, err)
	if s.closed.Load() {
		return
	}

	s.mu.Lock()
	latest := s.epoch.Load() == epoch && s.seq.IsLatest(lineItemID, seq)
	if !latest {
		if err != nil && s.pending[lineItemID] == p {
			// The delta never reached the backend; let the next flush resend it.
			p.base -= diff
		}
		s.mu.Unlock()
		staleResponsesTotal.Inc()
		s.logger.Debug("stale quantity response discarded",
			slog.String("line_item_id", lineItemID),
			slog.Uint64("seq", seq),
		)
		return
	}
	if s.pending[lineItemID] == p {
		delete(s.pending, lineItemID)
	}
	s.mu.Unlock()

	if err != nil {
		_ = s.resync(ctx, "update_quantity", err)
		return
	}
	if cart == nil {
		_ = s.Fetch(ctx)
		return
	}
	s.store.Replace(cart)
}

// RemoveItem removes the line locally, cancels any pending quantity change
// for it and asks the backend to drop the full quantity. On failure the
// line is put back where it was.
func (s *CartService) RemoveItem(ctx context.Context, lineItemID string) error {
	cartID := s.store.CartID()
	if cartID == "" {
		return apperrors.NoCart("no cart to remove from")
	}

	s.mu.Lock()
	rm, ok := s.store.RemoveLine(lineItemID)
	if !ok {
		s.mu.Unlock()
		return apperrors.NotFound("line item", lineItemID)
	}
	s.debouncer.Cancel(lineItemID)
	delete(s.pending, lineItemID)
	seq := s.seq.Next(lineItemID)
	s.mu.Unlock()

	epoch := s.epoch.Load()
	cart, err := s.repo.RemoveItem(ctx, cartID, rm.Item.VariantID, rm.Item.Quantity)
	observeMutation("remove_item", err)
	if s.epoch.Load() != epoch {
		return err
	}
	if err != nil {
		s.store.Restore(rm)
		rollbacksTotal.WithLabelValues("remove_item").Inc()
		return s.resync(ctx, "remove_item", err)
	}

	s.mu.Lock()
	latest := s.seq.IsLatest(lineItemID, seq)
	if latest {
		s.seq.Forget(lineItemID)
	}
	s.mu.Unlock()
	if !latest {
		staleResponsesTotal.Inc()
		return nil
	}

	s.log(ctx).InfoContext(ctx, "item removed",
		slog.String("cart_id", cartID),
		slog.String("variant_id", rm.Item.VariantID),
		slog.Int("quantity", rm.Item.Quantity),
	)
	if cart != nil {
		s.store.Replace(cart)
	}
	return nil
}

// RemoveItemCompletely removes whichever line holds the variant.
func (s *CartService) RemoveItemCompletely(ctx context.Context, variantID string) error {
	li, ok := s.store.LineItemByVariant(variantID)
	if !ok {
		return apperrors.NotFound("variant in cart", variantID)
	}
	return s.RemoveItem(ctx, li.ID)
}

// ClearAllItems empties the cart locally and remotely, then re-fetches.
func (s *CartService) ClearAllItems(ctx context.Context) error {
	cartID := s.store.CartID()
	s.dropPending()
	s.store.ClearItems(false)
	if cartID == "" {
		return s.Fetch(ctx)
	}

	err := s.repo.Clear(ctx, cartID, s.sessions.UserID())
	observeMutation("clear_cart", err)
	if err != nil {
		return s.resync(ctx, "clear_cart", err)
	}
	s.log(ctx).InfoContext(ctx, "cart cleared", slog.String("cart_id", cartID))
	return s.Fetch(ctx)
}

// DeleteCurrentCart drops the cart locally and remotely, then re-fetches.
func (s *CartService) DeleteCurrentCart(ctx context.Context) error {
	cartID := s.store.CartID()
	s.dropPending()
	s.store.ClearItems(true)
	if cartID == "" {
		return s.Fetch(ctx)
	}

	err := s.repo.Delete(ctx, cartID)
	observeMutation("delete_cart", err)
	if err != nil {
		return s.resync(ctx, "delete_cart", err)
	}
	s.log(ctx).InfoContext(ctx, "cart deleted", slog.String("cart_id", cartID))
	return s.Fetch(ctx)
}

// Login switches the owner to userID. The guest session is forgotten and its
// cart is not merged; the user's cart is fetched and the push channel joined.
func (s *CartService) Login(ctx context.Context, userID string) error {
	if err := s.sessions.Login(ctx, userID); err != nil {
		return err
	}
	// Pushes for the previous user must stop before the store is reset.
	if s.listener != nil {
		s.listener.Disconnect()
	}
	s.switchOwner()

	err := s.Fetch(ctx)
	if s.listener != nil {
		if lerr := s.listener.Connect(ctx, userID); lerr != nil {
			s.log(ctx).WarnContext(ctx, "push channel unavailable", slog.String("error", lerr.Error()))
		}
	}
	s.log(ctx).InfoContext(ctx, "user logged in", slog.String("user_id", userID))
	return err
}

// Logout leaves the push channel and falls back to a fresh guest session.
func (s *CartService) Logout(ctx context.Context) error {
	if s.listener != nil {
		s.listener.Disconnect()
	}
	s.sessions.Logout()
	s.switchOwner()
	return s.Fetch(ctx)
}

// Close cancels pending quantity changes, leaves the push channel and waits
// for in-flight debounced calls to finish.
func (s *CartService) Close() {
	// Taken under mu so a flush that passed its closed check has already
	// joined inflight before Wait below.
	s.mu.Lock()
	alreadyClosed := s.closed.Swap(true)
	s.mu.Unlock()
	if alreadyClosed {
		return
	}
	s.debouncer.Stop()
	s.bgCancel()
	if s.listener != nil {
		s.listener.Disconnect()
	}
	s.inflight.Wait()

	s.mu.Lock()
	s.pending = make(map[string]*pendingUpdate)
	s.mu.Unlock()
}

func (s *CartService) switchOwner() {
	s.epoch.Add(1)
	s.dropPending()
	s.store.Reset()
}

// dropPending cancels every debounced change and invalidates in-flight ones.
func (s *CartService) dropPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debouncer.CancelAll()
	s.seq.Reset()
	s.pending = make(map[string]*pendingUpdate)
}

// resync records a display message for err, re-fetches the cart and returns err.
func (s *CartService) resync(ctx context.Context, op string, err error) error {
	s.log(ctx).ErrorContext(ctx, "cart mutation failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	resyncsTotal.WithLabelValues(op).Inc()
	if fetchErr := s.Fetch(ctx); fetchErr != nil {
		s.log(ctx).WarnContext(ctx, "resync fetch failed", slog.String("error", fetchErr.Error()))
	}
	s.store.SetError(apperrors.Message(err))
	return err
}
