package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrMalformedInput = errors.New("malformed price level")

var (
	errNegativePrice = errors.New("price: negative")
	errNegativeSize  = errors.New("size: negative")
)

// MalformedInputError describes the first level of an update that failed to parse.
type MalformedInputError struct {
	Side  Side
	Index int
	Field string
	Value string
	Err   error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("%s: %s[%d].%s=%q: %v", ErrMalformedInput, e.Side, e.Index, e.Field, e.Value, e.Err)
}

func (e *MalformedInputError) Unwrap() error {
	return ErrMalformedInput
}

// PriceLevel keeps the parsed price/size together with the text the exchange sent.
// The checksum is computed over the text, ordering uses the parsed price.
type PriceLevel struct {
	Price     decimal.Decimal
	Size      decimal.Decimal
	PriceText string
	SizeText  string
}

// IsTombstone reports whether the level removes its price from a side.
func (l PriceLevel) IsTombstone() bool {
	return l.Size.IsZero()
}

// Key is the canonical price key: "9.10" and "9.1" share it.
func (l PriceLevel) Key() string {
	return l.Price.String()
}

func ParsePriceLevel(raw []string) (PriceLevel, error) {
	if len(raw) < 2 {
		return PriceLevel{}, fmt.Errorf("expected [price, size], got %d fields", len(raw))
	}

	price, err := decimal.NewFromString(raw[0])
	if err != nil {
		return PriceLevel{}, fmt.Errorf("price: %w", err)
	}
	if price.IsNegative() {
		return PriceLevel{}, errNegativePrice
	}
	size, err := decimal.NewFromString(raw[1])
	if err != nil {
		return PriceLevel{}, fmt.Errorf("size: %w", err)
	}
	if size.IsNegative() {
		return PriceLevel{}, errNegativeSize
	}

	return PriceLevel{
		Price:     price,
		Size:      size,
		PriceText: raw[0],
		SizeText:  raw[1],
	}, nil
}

// ParsePriceLevels parses every level of one side. A nil input stays nil so
// that an absent side can be told apart from an empty one.
func ParsePriceLevels(side Side, depth [][]string) ([]PriceLevel, error) {
	if depth == nil {
		return nil, nil
	}

	result := make([]PriceLevel, len(depth))
	for i, raw := range depth {
		level, err := ParsePriceLevel(raw)
		if err != nil {
			return nil, &MalformedInputError{
				Side:  side,
				Index: i,
				Field: malformedField(raw),
				Value: fmt.Sprint(raw),
				Err:   err,
			}
		}
		result[i] = level
	}

	return result, nil
}

func malformedField(raw []string) string {
	if len(raw) < 2 {
		return "level"
	}
	if price, err := decimal.NewFromString(raw[0]); err != nil || price.IsNegative() {
		return "price"
	}
	return "size"
}

func serializePriceLevels(levels []PriceLevel) [][]string {
	result := make([][]string, len(levels))
	for i, level := range levels {
		result[i] = []string{level.PriceText, level.SizeText}
	}

	return result
}
