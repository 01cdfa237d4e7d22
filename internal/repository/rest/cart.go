package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/cartsync/internal/adapter"
	"github.com/utafrali/cartsync/internal/domain"
	apperrors "github.com/utafrali/cartsync/pkg/errors"
	"github.com/utafrali/cartsync/pkg/httpclient"
	"github.com/utafrali/cartsync/pkg/tracing"
)

const (
	serviceName = "cart-api"
	tracerName  = "github.com/utafrali/cartsync/internal/repository/rest"
)

// CircuitOpenFallback turns an open breaker into a retry hint for the UI.
func CircuitOpenFallback(_ context.Context, _ error) (*http.Response, error) {
	return nil, apperrors.ServiceUnavailable("cart service is temporarily unavailable, please try again shortly")
}

// CartRepository implements repository.CartRepository over the backend REST API.
type CartRepository struct {
	client  httpclient.Doer
	baseURL string
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewCartRepository creates a REST cart repository rooted at baseURL
// (for example http://localhost:3000/api).
func NewCartRepository(client httpclient.Doer, baseURL string, logger *slog.Logger) *CartRepository {
	return &CartRepository{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		tracer:  tracing.Tracer(tracerName),
	}
}

func (r *CartRepository) GetByOwner(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	var path string
	switch owner.Kind {
	case domain.OwnerUser:
		path = "/carts/user/" + url.PathEscape(owner.ID)
	case domain.OwnerGuest:
		path = "/carts/session/" + url.PathEscape(owner.ID)
	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown owner kind %q", owner.Kind))
	}

	cart, err := r.call(ctx, "get_cart", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, apperrors.NotFound("cart", owner.ID)
	}
	return cart, nil
}

func (r *CartRepository) Create(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	body := map[string]string{}
	switch owner.Kind {
	case domain.OwnerUser:
		body["userId"] = owner.ID
	case domain.OwnerGuest:
		body["sessionId"] = owner.ID
	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown owner kind %q", owner.Kind))
	}

	cart, err := r.call(ctx, "create_cart", http.MethodPost, "/carts", body)
	if err != nil {
		return nil, err
	}
	if cart == nil || cart.ID == "" {
		return nil, fmt.Errorf("%s: create cart returned no cart id", serviceName)
	}
	return cart, nil
}

type itemRequest struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

func (r *CartRepository) AddItem(ctx context.Context, cartID, variantID string, quantity int) (*domain.Cart, error) {
	return r.call(ctx, "add_item", http.MethodPost, "/carts/"+url.PathEscape(cartID)+"/items",
		itemRequest{VariantID: variantID, Quantity: quantity})
}

func (r *CartRepository) RemoveItem(ctx context.Context, cartID, variantID string, quantity int) (*domain.Cart, error) {
	return r.call(ctx, "remove_item", http.MethodDelete, "/carts/"+url.PathEscape(cartID)+"/items",
		itemRequest{VariantID: variantID, Quantity: quantity})
}

func (r *CartRepository) Clear(ctx context.Context, cartID, userID string) error {
	body := map[string]string{}
	if userID != "" {
		body["userId"] = userID
	}
	_, err := r.call(ctx, "clear_cart", http.MethodPost, "/carts/"+url.PathEscape(cartID)+"/clear", body)
	return err
}

func (r *CartRepository) Delete(ctx context.Context, cartID string) error {
	_, err := r.call(ctx, "delete_cart", http.MethodDelete, "/carts/"+url.PathEscape(cartID), nil)
	return err
}

// call performs one backend request inside a client span and decodes the
// cart the backend sends back, if any.
func (r *CartRepository) call(ctx context.Context, op, method, path string, payload any) (cart *domain.Cart, err error) {
	ctx, span := r.tracer.Start(ctx, serviceName+" "+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("cart_api.path", path),
		),
	)
	defer func() { tracing.EndSpan(span, err) }()

	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := r.client.Do(ctx, req)
	if err != nil {
		return nil, translateTransportError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpclient.ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}
	cart, err = adapter.DecodeCart(data, r.logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.logger.DebugContext(ctx, "cart api call",
		slog.String("op", op),
		slog.Int("status", resp.StatusCode),
		slog.Bool("cart_returned", cart != nil),
	)
	return cart, nil
}

func translateTransportError(op string, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	var serverErr *httpclient.ServerError
	if errors.As(err, &serverErr) && serverErr.Status == http.StatusServiceUnavailable {
		return httpclient.ErrorFromBody(serverErr.Status, []byte(serverErr.Body), serviceName)
	}
	return fmt.Errorf("call %s %s: %w", serviceName, op, err)
}
