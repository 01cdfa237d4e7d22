package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/cartsync/internal/domain"
	"github.com/utafrali/cartsync/internal/service"
	"github.com/utafrali/cartsync/pkg/httputil"
	"github.com/utafrali/cartsync/pkg/middleware"
	"github.com/utafrali/cartsync/pkg/validator"
)

// CartHandler exposes the cart service over HTTP.
type CartHandler struct {
	service *service.CartService
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc *service.CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding a variant to the cart.
type AddItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=0,lte=999"`
}

// UpdateQuantityRequest is the JSON request body for setting a line quantity.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=0,lte=999"`
}

// LoginRequest is the JSON request body for switching to a user.
type LoginRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
}

// CartView is the state snapshot returned by every cart endpoint.
type CartView struct {
	Owner     domain.Owner      `json:"owner"`
	Cart      *domain.Cart      `json:"cart"`
	LineItems []domain.LineItem `json:"line_items"`
	Summary   domain.Summary    `json:"summary"`
	Loading   bool              `json:"loading"`
	Error     string            `json:"error,omitempty"`
	Pending   []string          `json:"pending,omitempty"`
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.writeView(w, r, http.StatusOK)
}

// Refresh handles POST /api/v1/cart/refresh
func (h *CartHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Fetch(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeView(w, r, http.StatusOK)
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.AddItem(r.Context(), req.ProductID, req.Quantity, req.VariantID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeView(w, r, http.StatusOK)
}

// UpdateQuantity handles PUT /api/v1/cart/items/{lineItemId}. The backend
// call is debounced, so a successful response is 202 Accepted.
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	lineItemID := chi.URLParam(r, "lineItemId")

	var req UpdateQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.UpdateQuantity(r.Context(), lineItemID, *req.Quantity); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	status := http.StatusAccepted
	if *req.Quantity == 0 {
		status = http.StatusOK
	}
	h.writeView(w, r, status)
}

// RemoveItem handles DELETE /api/v1/cart/items/{lineItemId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveItem(r.Context(), chi.URLParam(r, "lineItemId")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeView(w, r, http.StatusOK)
}

// RemoveVariant handles DELETE /api/v1/cart/variants/{variantId}
func (h *CartHandler) RemoveVariant(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveItemCompletely(r.Context(), chi.URLParam(r, "variantId")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeView(w, r, http.StatusOK)
}

// Clear handles POST /api/v1/cart/clear
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearAllItems(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeView(w, r, http.StatusOK)
}

// DeleteCart handles DELETE /api/v1/cart
func (h *CartHandler) DeleteCart(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCurrentCart(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeView(w, r, http.StatusOK)
}

// Login handles POST /api/v1/session/login
func (h *CartHandler) Login(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.AuthenticatedUser(r.Context())
	if !ok {
		var req LoginRequest
		if !h.decode(w, r, &req) {
			return
		}
		userID = req.UserID
	}

	if err := h.service.Login(r.Context(), userID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeView(w, r, http.StatusOK)
}

// Logout handles POST /api/v1/session/logout
func (h *CartHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeView(w, r, http.StatusOK)
}

// --- Helpers ---

// decode reads and validates a JSON body, writing a 400 and returning false
// when it is unusable.
func (h *CartHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := validator.DecodeAndValidate(r, dst); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return false
	}
	return true
}

func (h *CartHandler) writeView(w http.ResponseWriter, r *http.Request, status int) {
	owner, err := h.service.Owner(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	store := h.service.Store()
	snap := store.Snapshot()
	view := CartView{
		Owner:     owner,
		Cart:      snap.Cart,
		LineItems: snap.LineItems,
		Summary:   store.Summary(),
		Loading:   snap.Loading,
		Error:     snap.Error,
	}
	if view.LineItems == nil {
		view.LineItems = []domain.LineItem{}
	}
	for _, li := range snap.LineItems {
		if h.service.HasPending(li.ID) {
			view.Pending = append(view.Pending, li.ID)
		}
	}
	httputil.WriteData(w, status, view)
}
