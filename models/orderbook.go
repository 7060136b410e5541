package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel represents a single price level in the orderbook
type PriceLevel struct {
	Price  decimal.Decimal `json:"price"`
	Size   decimal.Decimal `json:"size"`
	Orders *int64          `json:"orders,omitempty"`
}

// OrderBookL1Event is the best bid and offer. Either side may be absent
// when the book is empty on that side.
type OrderBookL1Event struct {
	Envelope
	Bid  *PriceLevel `json:"bid,omitempty"`
	Ask  *PriceLevel `json:"ask,omitempty"`
	Time *time.Time  `json:"time,omitempty"`
}

// OrderBookL2Event carries depth levels. Snapshot is false for incremental
// updates; books are passed through as received and never reconstructed.
type OrderBookL2Event struct {
	Envelope
	Snapshot bool         `json:"snapshot"`
	Bids     []PriceLevel `json:"bids"`
	Asks     []PriceLevel `json:"asks"`
	Time     *time.Time   `json:"time,omitempty"`
}
