package adapter

import "time"

// Position is the latest snapshot of one symbol position.
type Position struct {
	Symbol           string            `json:"symbol"`
	Size             float64           `json:"size"`
	Value            float64           `json:"value"`
	EntryPrice       float64           `json:"entry_price"`
	LiquidationPrice Optional[float64] `json:"liquidation_price"`
	UpdateTime       time.Time         `json:"update_time"`
}

// Balance is the latest snapshot of one asset balance.
type Balance struct {
	Asset      string    `json:"asset"`
	Free       float64   `json:"free"`
	Total      float64   `json:"total"`
	UpdateTime time.Time `json:"update_time"`
}
