// Package indicator provides rolling technical indicator calculations over a
// streaming price sequence.
//
// All indicators implement the Indicator interface, receiving close prices
// and producing float64 values. Updates are O(1); window-based indicators use
// preallocated circular buffers.
package indicator

// Indicator is the interface for all rolling indicators.
type Indicator interface {
	// Update feeds a new price and recalculates.
	Update(price float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Reset clears all accumulated state.
	Reset()
}
