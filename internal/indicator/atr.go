package indicator

import "math"

// ATR calculates Average True Range over a rolling window. With a close-only
// stream the true range degenerates to |price_t - price_{t-1}|, so this is a
// rolling mean of absolute one-step moves.
type ATR struct {
	period    int
	buf       []float64
	idx       int
	count     int // true ranges observed
	sum       float64
	prevClose float64
	havePrev  bool
	current   float64
}

// NewATR creates a new ATR indicator with the given period.
func NewATR(period int) *ATR {
	return &ATR{
		period: period,
		buf:    make([]float64, period),
	}
}

func (a *ATR) Update(price float64) {
	if !a.havePrev {
		a.prevClose = price
		a.havePrev = true
		return
	}

	tr := math.Abs(price - a.prevClose)
	a.prevClose = price

	if a.count >= a.period {
		a.sum -= a.buf[a.idx]
	}
	a.buf[a.idx] = tr
	a.sum += tr
	a.idx = (a.idx + 1) % a.period
	a.count++

	if a.count >= a.period {
		a.current = a.sum / float64(a.period)
	}
}

func (a *ATR) Value() float64 { return a.current }
func (a *ATR) Ready() bool    { return a.count >= a.period }

// Reset clears the ATR state for reuse.
func (a *ATR) Reset() {
	a.idx = 0
	a.count = 0
	a.sum = 0
	a.prevClose = 0
	a.havePrev = false
	a.current = 0
	for i := range a.buf {
		a.buf[i] = 0
	}
}
