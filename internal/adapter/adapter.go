// Package adapter converts the backend's loosely shaped cart JSON into the
// canonical domain types.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/cartsync/internal/domain"
)

// envelopeKeys are the wrappers the backend may put around a cart document.
var envelopeKeys = []string{"data", "cart"}

// DecodeCart unwraps an optional response envelope and normalizes the cart.
// A JSON null, an envelope holding null, or a document with neither an id nor
// items yields a nil cart and no error. Items that cannot be decoded are
// skipped and logged; only a malformed cart document is an error.
func DecodeCart(body []byte, logger *slog.Logger) (*domain.Cart, error) {
	doc, err := unwrap(bytes.TrimSpace(body), 3)
	if err != nil {
		return nil, err
	}
	if len(doc) == 0 || bytes.Equal(doc, []byte("null")) {
		return nil, nil
	}

	var raw rawCart
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	if raw.value() == "" && len(raw.Items) == 0 {
		return nil, nil
	}
	return normalizeCart(raw, logger), nil
}

func unwrap(doc []byte, depth int) ([]byte, error) {
	if depth == 0 || len(doc) == 0 || doc[0] != '{' {
		return doc, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("decode cart envelope: %w", err)
	}
	if looksLikeCart(fields) {
		return doc, nil
	}
	for _, key := range envelopeKeys {
		if inner, ok := fields[key]; ok {
			return unwrap(bytes.TrimSpace(inner), depth-1)
		}
	}
	return doc, nil
}

func looksLikeCart(fields map[string]json.RawMessage) bool {
	for _, key := range []string{"_id", "items", "userId", "sessionId"} {
		if _, ok := fields[key]; ok {
			return true
		}
	}
	return false
}

// normalizeCart keeps the payload aggregates only when every item survived
// normalization unchanged; otherwise they are recomputed from the kept lines.
func normalizeCart(raw rawCart, logger *slog.Logger) *domain.Cart {
	items, intact := normalizeItems(raw.Items, raw.value(), logger)

	cart := &domain.Cart{
		ID:             raw.value(),
		UserID:         raw.UserID.ID,
		SessionID:      raw.SessionID,
		Items:          items,
		TotalItems:     domain.ItemCount(items),
		TotalPrice:     domain.TotalAmount(items),
		DiscountAmount: raw.DiscountAmount.Or(0),
	}
	if intact {
		cart.TotalPrice = raw.TotalPrice.Or(cart.TotalPrice)
		if raw.TotalItems.Set {
			cart.TotalItems = raw.TotalItems.Value
		}
	}
	return cart
}

// normalizeItems decodes each item on its own. intact is false when any item
// was dropped or merged into another line.
func normalizeItems(raw []json.RawMessage, cartID string, logger *slog.Logger) (items []domain.LineItem, intact bool) {
	items = make([]domain.LineItem, 0, len(raw))
	seen := make(map[string]int, len(raw))
	intact = true

	for i, doc := range raw {
		li, err := normalizeItem(doc)
		if err != nil {
			intact = false
			reason := "malformed"
			switch {
			case errors.Is(err, errUnreferenced):
				reason = "unreferenced"
			case errors.Is(err, errNoQuantity):
				reason = "no_quantity"
			}
			itemsDroppedTotal.WithLabelValues(reason).Inc()
			level := slog.LevelDebug
			if reason == "malformed" {
				level = slog.LevelWarn
			}
			logger.Log(context.Background(), level, "cart item skipped",
				slog.String("cart_id", cartID),
				slog.Int("index", i),
				slog.String("error", err.Error()),
			)
			continue
		}

		key := "v:" + li.VariantID
		if li.VariantID == "" {
			key = "p:" + li.ProductID
		}
		if idx, dup := seen[key]; dup {
			intact = false
			items[idx].Quantity += li.Quantity
			continue
		}
		seen[key] = len(items)
		items = append(items, li)
	}
	return items, intact
}

var (
	errUnreferenced = errors.New("item references neither a variant nor a product")
	errNoQuantity   = errors.New("item quantity is not positive")
)

func normalizeItem(doc json.RawMessage) (domain.LineItem, error) {
	var ri rawItem
	if err := json.Unmarshal(doc, &ri); err != nil {
		return domain.LineItem{}, fmt.Errorf("decode item: %w", err)
	}

	variantRef := ri.Variant
	if !variantRef.present() {
		variantRef = ri.VariantID
	}
	productRef := ri.Product
	if !productRef.present() {
		productRef = ri.ProductID
	}
	if !variantRef.present() && !productRef.present() {
		return domain.LineItem{}, errUnreferenced
	}
	if ri.Quantity.Value <= 0 {
		return domain.LineItem{}, errNoQuantity
	}

	li := domain.LineItem{
		ID:        ri.value(),
		VariantID: variantRef.ID,
		ProductID: productRef.ID,
		Quantity:  ri.Quantity.Value,
	}

	var variantPrice int64
	if len(variantRef.Doc) > 0 {
		v, err := normalizeVariant(variantRef.Doc, productRef)
		if err != nil {
			return domain.LineItem{}, err
		}
		li.Variant = v
		variantPrice = v.Price
		if li.ProductID == "" && v.Product != nil {
			li.ProductID = v.Product.ID
		}
	} else if len(productRef.Doc) > 0 {
		p, err := normalizeProduct(productRef.Doc)
		if err != nil {
			return domain.LineItem{}, err
		}
		li.Variant = &domain.Variant{ID: li.VariantID, Product: p}
	}

	li.Price = ri.Price.Or(variantPrice)
	if li.ID == "" {
		li.ID = li.VariantID
	}
	if li.ID == "" {
		li.ID = li.ProductID
	}
	return li, nil
}

func normalizeVariant(doc json.RawMessage, itemProduct ref) (*domain.Variant, error) {
	var rv rawVariant
	if err := json.Unmarshal(doc, &rv); err != nil {
		return nil, fmt.Errorf("decode variant: %w", err)
	}

	v := &domain.Variant{
		ID:    rv.value(),
		SKU:   rv.SKU,
		Price: rv.Price.Or(0),
		Stock: rv.Stock.Value,
		Image: firstImage(rv.Image, rv.Images),
	}
	for _, a := range decodeAttributes(rv.Attributes) {
		v.Attributes = append(v.Attributes, domain.Attribute{Name: a.Name, Value: a.Value})
	}

	productRef := rv.Product
	if !productRef.present() {
		productRef = rv.ProductID
	}
	if !productRef.present() {
		productRef = itemProduct
	}
	switch {
	case len(productRef.Doc) > 0:
		p, err := normalizeProduct(productRef.Doc)
		if err != nil {
			return nil, err
		}
		v.Product = p
	case productRef.ID != "":
		v.Product = &domain.Product{ID: productRef.ID}
	}
	if v.Image == "" && v.Product != nil {
		v.Image = v.Product.Image
	}
	return v, nil
}

func normalizeProduct(doc json.RawMessage) (*domain.Product, error) {
	var rp rawProduct
	if err := json.Unmarshal(doc, &rp); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	return &domain.Product{
		ID:    rp.value(),
		Name:  rp.Name,
		Image: firstImage(rp.Image, rp.Images),
	}, nil
}
