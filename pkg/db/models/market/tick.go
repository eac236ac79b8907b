package market

import (
	"time"
)

const TicksTableName = "minute_bars"
const TicksStagingTableName = "minute_bars_staging"

// TickColumns is the column order shared by the target table, the staging
// table and the COPY stream.
var TickColumns = []string{
	"time", "code", "name", "open", "high", "low", "close",
	"volume", "amount", "change_pct", "amplitude",
}

// Tick is one validated minute bar. Unique on (Code, Time); never updated
// after the first successful load.
type Tick struct {
	Time      time.Time `db:"time" json:"time"` // exchange wall clock, second precision
	Code      string    `db:"code" json:"code"` // canonical 600000.SH form
	Name      string    `db:"name" json:"name"`
	Open      float64   `db:"open" json:"open"` // negative values are legal under back-adjustment
	High      float64   `db:"high" json:"high"`
	Low       float64   `db:"low" json:"low"`
	Close     float64   `db:"close" json:"close"`
	Volume    int64     `db:"volume" json:"volume"`
	Amount    float64   `db:"amount" json:"amount"`
	ChangePct float64   `db:"change_pct" json:"change_pct"`
	Amplitude float64   `db:"amplitude" json:"amplitude"`
}

// Values returns the row in TickColumns order for pgx.CopyFromSlice.
func (t *Tick) Values() []any {
	return []any{
		t.Time, t.Code, t.Name, t.Open, t.High, t.Low, t.Close,
		t.Volume, t.Amount, t.ChangePct, t.Amplitude,
	}
}
