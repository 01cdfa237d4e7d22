package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Price is a monetary amount in whole đồng decoded from any of the wire
// shapes the backend emits: a JSON number, a numeric string or a Mongo
// extended-JSON decimal ({"$numberDecimal": "350000"}).
type Price struct {
	Value int64
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = Price{}
		return nil
	}

	var literal string
	switch data[0] {
	case '{':
		var ext struct {
			NumberDecimal *string `json:"$numberDecimal"`
		}
		if err := json.Unmarshal(data, &ext); err != nil {
			return fmt.Errorf("decode decimal price: %w", err)
		}
		if ext.NumberDecimal == nil {
			return fmt.Errorf("price object without $numberDecimal: %s", data)
		}
		literal = *ext.NumberDecimal
	case '"':
		if err := json.Unmarshal(data, &literal); err != nil {
			return fmt.Errorf("decode string price: %w", err)
		}
	default:
		literal = string(data)
	}

	v, err := ParsePrice(literal)
	if err != nil {
		return err
	}
	*p = Price{Value: v, Set: true}
	return nil
}

// ParsePrice converts a decimal literal to whole đồng, rounding half away from zero.
func ParsePrice(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty price")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	d = d.Round(0)
	if d.LessThan(minPrice) || d.GreaterThan(maxPrice) {
		return 0, fmt.Errorf("price %q out of range", s)
	}
	return d.IntPart(), nil
}

var (
	minPrice = decimal.NewFromInt(math.MinInt64)
	maxPrice = decimal.NewFromInt(math.MaxInt64)
)

// Or returns the price when set and fallback otherwise.
func (p Price) Or(fallback int64) int64 {
	if p.Set {
		return p.Value
	}
	return fallback
}

// Count is an integer quantity that arrives as a JSON number
// or a numeric string ("2"). Fractions and values beyond int32 are rejected.
type Count struct {
	Value int
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = Count{}
		return nil
	}

	literal := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &literal); err != nil {
			return fmt.Errorf("decode string count: %w", err)
		}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(literal))
	if err != nil {
		return fmt.Errorf("parse count %q: %w", literal, err)
	}
	if !d.IsInteger() || d.Abs().GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
		return fmt.Errorf("count %q is not a whole number in range", literal)
	}
	*c = Count{Value: int(d.IntPart()), Set: true}
	return nil
}
