package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick is the normalized quote for one symbol as delivered by the upstream
// price feed. Ticks are ephemeral; the risk engine never persists them.
type Tick struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Last   decimal.Decimal `json:"last"`
	At     time.Time       `json:"ts"`
}
