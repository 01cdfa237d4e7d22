package domain

// OwnerKind tells whose cart the engine is holding.
type OwnerKind string

const (
	OwnerUser  OwnerKind = "user"
	OwnerGuest OwnerKind = "guest"
)

// Owner identifies the holder of a cart: an authenticated user or a guest session.
type Owner struct {
	Kind OwnerKind `json:"kind"`
	ID   string    `json:"id"`
}

// IsUser reports whether the owner is an authenticated user.
func (o Owner) IsUser() bool { return o.Kind == OwnerUser }

// Cart is the canonical client-side view of a remote cart.
type Cart struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id,omitempty"`
	SessionID      string     `json:"session_id,omitempty"`
	Items          []LineItem `json:"items"`
	TotalItems     int        `json:"total_items"`
	TotalPrice     int64      `json:"total_price"`
	DiscountAmount int64      `json:"discount_amount"`
}

// Owner returns the owner recorded on the cart. A user id takes precedence
// over a session id.
func (c *Cart) Owner() Owner {
	if c.UserID != "" {
		return Owner{Kind: OwnerUser, ID: c.UserID}
	}
	return Owner{Kind: OwnerGuest, ID: c.SessionID}
}

// Clone returns a deep copy of the cart so callers can mutate it freely.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	cpy := *c
	cpy.Items = CloneItems(c.Items)
	return &cpy
}

// LineItem is one entry of the cart, unique per variant.
type LineItem struct {
	ID        string   `json:"id"`
	VariantID string   `json:"variant_id"`
	ProductID string   `json:"product_id,omitempty"`
	Quantity  int      `json:"quantity"`
	Price     int64    `json:"price"`
	Variant   *Variant `json:"variant,omitempty"`
}

// Subtotal is the captured unit price times the quantity.
func (li LineItem) Subtotal() int64 {
	return li.Price * int64(li.Quantity)
}

// Variant is the denormalized snapshot of a purchasable SKU carried by a line.
type Variant struct {
	ID         string      `json:"id"`
	SKU        string      `json:"sku,omitempty"`
	Price      int64       `json:"price"`
	Stock      int         `json:"stock"`
	Image      string      `json:"image,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
	Product    *Product    `json:"product,omitempty"`
}

// Attribute is a name/value pair such as Size=M.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Product is the parent product snapshot of a variant.
type Product struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

// CloneItems deep-copies a slice of line items.
func CloneItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	out := make([]LineItem, len(items))
	copy(out, items)
	for i := range out {
		if out[i].Variant != nil {
			v := *out[i].Variant
			v.Attributes = append([]Attribute(nil), v.Attributes...)
			if v.Product != nil {
				p := *v.Product
				v.Product = &p
			}
			out[i].Variant = &v
		}
	}
	return out
}

// FindItemIndex returns the index of the line with the given id, or -1.
func FindItemIndex(items []LineItem, lineItemID string) int {
	for i := range items {
		if items[i].ID == lineItemID {
			return i
		}
	}
	return -1
}

// FindVariantIndex returns the index of the line holding the variant, or -1.
func FindVariantIndex(items []LineItem, variantID string) int {
	for i := range items {
		if items[i].VariantID == variantID {
			return i
		}
	}
	return -1
}

// ItemCount sums the quantities of all lines.
func ItemCount(items []LineItem) int {
	var n int
	for _, it := range items {
		n += it.Quantity
	}
	return n
}

// TotalAmount sums price times quantity over all lines, in whole đồng.
func TotalAmount(items []LineItem) int64 {
	var total int64
	for _, it := range items {
		total += it.Subtotal()
	}
	return total
}

// Summary is the derived view used by badges and order summaries.
type Summary struct {
	ItemCount      int   `json:"item_count"`
	TotalPrice     int64 `json:"total_price"`
	DiscountAmount int64 `json:"discount_amount"`
	Payable        int64 `json:"payable"`
}
