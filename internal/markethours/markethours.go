// Package markethours provides the broker trading-day boundary and the
// optional intraday trading window used by the risk gate.
//
// Synthetic binary-contract indices quote around the clock, so the broker day
// is plain UTC midnight and the default window covers the whole day.
package markethours

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BrokerDay returns the UTC day bucket t belongs to. Daily P/L accounting
// keys off this value.
func BrokerDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// SameBrokerDay reports whether a and b fall on the same broker day.
func SameBrokerDay(a, b time.Time) bool {
	return BrokerDay(a).Equal(BrokerDay(b))
}

// Window is a daily trading window in UTC, e.g. "09:00-17:00".
// The full-day window "00:00-24:00" admits every instant.
type Window struct {
	startMin int // minutes from midnight, inclusive
	endMin   int // minutes from midnight, exclusive; 1440 = end of day
}

// FullDay is the always-open window.
var FullDay = Window{startMin: 0, endMin: 24 * 60}

// ParseWindow parses "HH:MM-HH:MM". "24:00" is accepted as end of day.
func ParseWindow(s string) (Window, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("markethours: invalid window %q", s)
	}
	start, err := parseHM(parts[0])
	if err != nil {
		return Window{}, fmt.Errorf("markethours: invalid window %q: %w", s, err)
	}
	end, err := parseHM(parts[1])
	if err != nil {
		return Window{}, fmt.Errorf("markethours: invalid window %q: %w", s, err)
	}
	if end <= start {
		return Window{}, fmt.Errorf("markethours: window %q ends before it starts", s)
	}
	return Window{startMin: start, endMin: end}, nil
}

func parseHM(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("bad hour %q", parts[0])
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("bad minute %q", parts[1])
	}
	return h*60 + m, nil
}

// Contains reports whether t (in UTC) falls inside the window.
func (w Window) Contains(t time.Time) bool {
	u := t.UTC()
	hm := u.Hour()*60 + u.Minute()
	return hm >= w.startMin && hm < w.endMin
}

// AlwaysOpen reports whether the window admits every instant.
func (w Window) AlwaysOpen() bool {
	return w.startMin == 0 && w.endMin == 24*60
}

// String renders the window back to "HH:MM-HH:MM".
func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d",
		w.startMin/60, w.startMin%60, w.endMin/60, w.endMin%60)
}
