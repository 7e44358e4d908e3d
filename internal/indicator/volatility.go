package indicator

import "math"

// Volatility calculates the rolling sample standard deviation of percentage
// returns. Used as a trade-enable gate, not a trading signal.
type Volatility struct {
	window    int
	buf       []float64 // returns
	idx       int
	count     int // returns observed
	sum       float64
	sumSq     float64
	prevClose float64
	havePrev  bool
	current   float64
}

// NewVolatility creates a new rolling volatility indicator over window returns.
func NewVolatility(window int) *Volatility {
	return &Volatility{
		window: window,
		buf:    make([]float64, window),
	}
}

func (v *Volatility) Update(price float64) {
	if !v.havePrev {
		v.prevClose = price
		v.havePrev = true
		return
	}

	ret := 0.0
	if v.prevClose != 0 {
		ret = price/v.prevClose - 1
	}
	v.prevClose = price

	if v.count >= v.window {
		old := v.buf[v.idx]
		v.sum -= old
		v.sumSq -= old * old
	}
	v.buf[v.idx] = ret
	v.sum += ret
	v.sumSq += ret * ret
	v.idx = (v.idx + 1) % v.window
	v.count++

	if v.count >= v.window {
		n := float64(v.window)
		mean := v.sum / n
		// Sample variance; clamp tiny negatives from float cancellation.
		variance := (v.sumSq - n*mean*mean) / (n - 1)
		if variance < 0 {
			variance = 0
		}
		v.current = math.Sqrt(variance)
	}
}

func (v *Volatility) Value() float64 { return v.current }
func (v *Volatility) Ready() bool    { return v.count >= v.window }

// Reset clears the volatility state for reuse.
func (v *Volatility) Reset() {
	v.idx = 0
	v.count = 0
	v.sum = 0
	v.sumSq = 0
	v.prevClose = 0
	v.havePrev = false
	v.current = 0
	for i := range v.buf {
		v.buf[i] = 0
	}
}
