package market

import (
	"time"
)

const MonthlyViewName = "minute_bars_monthly"

// MonthlyBar is one row of the monthly continuous aggregate, keyed by
// (Code, Month). It is derived from Tick rows and never written directly.
type MonthlyBar struct {
	Code   string    `db:"code" json:"code"`
	Month  time.Time `db:"month" json:"month"`
	Name   string    `db:"name" json:"name"` // last name seen in the month
	Open   float64   `db:"open" json:"open"`
	High   float64   `db:"high" json:"high"`
	Low    float64   `db:"low" json:"low"`
	Close  float64   `db:"close" json:"close"`
	Volume int64     `db:"volume" json:"volume"`
	Amount float64   `db:"amount" json:"amount"`
}
