package model

import (
	"errors"
	"time"
)

// ErrStaleData marks a price point whose timestamp is not strictly after the
// last accepted one. Stale points are dropped, never reordered.
var ErrStaleData = errors.New("stale price point")

// PricePoint is a single observation from the price stream. Immutable.
type PricePoint struct {
	Symbol string    `json:"symbol"`
	TS     time.Time `json:"ts"` // UTC
	Price  float64   `json:"price"`
}
