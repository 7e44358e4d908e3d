package model

import "time"

// AccountState is the aggregate the risk gate reads and the lifecycle manager
// mutates on settlement. Single logical owner; callers get value copies.
type AccountState struct {
	Balance        float64   `json:"balance"`
	DailyPnL       float64   `json:"daily_pnl"`
	OpenTradeCount int       `json:"open_trade_count"`
	OpenRiskSum    float64   `json:"open_risk_sum"` // sum of stakes of Open trades
	PeakBalance    float64   `json:"peak_balance"`
	Day            time.Time `json:"day"` // broker day the daily P/L belongs to
}
