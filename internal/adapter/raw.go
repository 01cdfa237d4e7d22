package adapter

import (
	"bytes"
	"encoding/json"
	"sort"
)

// ref is a reference that arrives either as a bare id string or as a
// populated document carrying `_id` or `id`.
type ref struct {
	ID  string
	Doc json.RawMessage
}

func (r *ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*r = ref{}
		return nil
	case data[0] == '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = ref{ID: id}
		return nil
	default:
		var ids docID
		if err := json.Unmarshal(data, &ids); err != nil {
			return err
		}
		*r = ref{ID: ids.value(), Doc: append(json.RawMessage(nil), data...)}
		return nil
	}
}

func (r ref) present() bool { return r.ID != "" || len(r.Doc) > 0 }

// docID captures both id spellings used by the backend.
type docID struct {
	MongoID string `json:"_id"`
	ID      string `json:"id"`
}

func (d docID) value() string {
	if d.MongoID != "" {
		return d.MongoID
	}
	return d.ID
}

type rawCart struct {
	docID
	UserID         ref       `json:"userId"`
	SessionID      string    `json:"sessionId"`
	Items          []json.RawMessage `json:"items"`
	TotalItems     Count             `json:"totalItems"`
	TotalPrice     Price             `json:"totalPrice"`
	DiscountAmount Price             `json:"discountAmount"`
}

type rawItem struct {
	docID
	Variant   ref   `json:"variant"`
	VariantID ref   `json:"variantId"`
	Product   ref   `json:"product"`
	ProductID ref   `json:"productId"`
	Quantity  Count `json:"quantity"`
	Price     Price `json:"price"`
}

type rawVariant struct {
	docID
	SKU        string          `json:"sku"`
	Price      Price           `json:"price"`
	Stock      Count           `json:"stock"`
	Image      string          `json:"image"`
	Images     []string        `json:"images"`
	Attributes json.RawMessage `json:"attributes"`
	Product    ref             `json:"product"`
	ProductID  ref             `json:"productId"`
}

type rawProduct struct {
	docID
	Name   string   `json:"name"`
	Image  string   `json:"image"`
	Images []string `json:"images"`
}

type rawAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// firstImage prefers the single image field and falls back to the gallery.
func firstImage(image string, images []string) string {
	if image != "" || len(images) == 0 {
		return image
	}
	return images[0]
}

// decodeAttributes accepts either [{name,value}] or a flat {"Size":"M"} object.
func decodeAttributes(data json.RawMessage) []rawAttribute {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	if data[0] == '[' {
		var list []rawAttribute
		if err := json.Unmarshal(data, &list); err != nil {
			return nil
		}
		return list
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	list := make([]rawAttribute, 0, len(m))
	for k, v := range m {
		list = append(list, rawAttribute{Name: k, Value: v})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}
