package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is a normalized record emitted by a translator. The set of
// implementations is closed; consumers switch on the concrete type.
type Event interface {
	Meta() Envelope
	isEvent()
}

// Envelope carries the fields every event shares.
type Envelope struct {
	Exchange Exchange `json:"exchange"`
	Channel  Channel  `json:"channel"`
	Symbol   string   `json:"symbol"`
	Sequence *int64   `json:"sequence,omitempty"`
	// ReceivedAt is the arrival time of the frame, not the venue's event time.
	ReceivedAt time.Time   `json:"receivedAt"`
	Raw        *RawPayload `json:"raw,omitempty"`
}

func (e Envelope) Meta() Envelope { return e }

// AccountSymbol is used as the symbol of account-wide events.
const AccountSymbol = "*"

type TradeEntry struct {
	TradeID string          `json:"tradeId,omitempty"`
	Price   decimal.Decimal `json:"price"`
	Size    decimal.Decimal `json:"size"`
	Side    Side            `json:"side"`
	Time    time.Time       `json:"time"`
}

type TradesEvent struct {
	Envelope
	Trades []TradeEntry `json:"trades"`
}

type CandleEntry struct {
	OpenTime  time.Time        `json:"openTime"`
	CloseTime *time.Time       `json:"closeTime,omitempty"`
	Interval  string           `json:"interval,omitempty"`
	Open      decimal.Decimal  `json:"open"`
	High      decimal.Decimal  `json:"high"`
	Low       decimal.Decimal  `json:"low"`
	Close     decimal.Decimal  `json:"close"`
	Volume    decimal.Decimal  `json:"volume"`
	Trades    *int64           `json:"trades,omitempty"`
	Confirmed *bool            `json:"confirmed,omitempty"`
	Turnover  *decimal.Decimal `json:"turnover,omitempty"`
}

type CandleEvent struct {
	Envelope
	Candles []CandleEntry `json:"candles"`
}

type MidEntry struct {
	Symbol string          `json:"symbol"`
	Mid    decimal.Decimal `json:"mid"`
}

type AllMidsEvent struct {
	Envelope
	Mids []MidEntry `json:"mids"`
}

type ActiveAssetCtxEvent struct {
	Envelope
	FundingRate       decimal.Decimal  `json:"fundingRate"`
	MarkPrice         decimal.Decimal  `json:"markPrice"`
	OpenInterest      decimal.Decimal  `json:"openInterest"`
	OraclePrice       *decimal.Decimal `json:"oraclePrice,omitempty"`
	MidPrice          *decimal.Decimal `json:"midPrice,omitempty"`
	PrevDayPrice      *decimal.Decimal `json:"prevDayPrice,omitempty"`
	DayNotionalVolume *decimal.Decimal `json:"dayNotionalVolume,omitempty"`
}

type FundingRateEvent struct {
	Envelope
	FundingRate     decimal.Decimal  `json:"fundingRate"`
	MarkPrice       *decimal.Decimal `json:"markPrice,omitempty"`
	NextFundingTime *time.Time       `json:"nextFundingTime,omitempty"`
}

type UserOrderEntry struct {
	OrderID       string           `json:"orderId"`
	ClientOrderID string           `json:"clientOrderId,omitempty"`
	Symbol        string           `json:"symbol"`
	Side          Side             `json:"side"`
	OrderType     string           `json:"orderType,omitempty"`
	Price         decimal.Decimal  `json:"price"`
	Size          decimal.Decimal  `json:"size"`
	OriginalSize  *decimal.Decimal `json:"originalSize,omitempty"`
	FilledSize    *decimal.Decimal `json:"filledSize,omitempty"`
	Status        string           `json:"status"`
	Time          time.Time        `json:"time"`
}

type UserOrderEvent struct {
	Envelope
	Orders []UserOrderEntry `json:"orders"`
}

type OpenOrdersEvent struct {
	Envelope
	Orders []UserOrderEntry `json:"orders"`
}

type FillEntry struct {
	TradeID       string           `json:"tradeId,omitempty"`
	OrderID       string           `json:"orderId"`
	Symbol        string           `json:"symbol"`
	Side          Side             `json:"side"`
	Price         decimal.Decimal  `json:"price"`
	Size          decimal.Decimal  `json:"size"`
	Fee           *decimal.Decimal `json:"fee,omitempty"`
	FeeAsset      string           `json:"feeAsset,omitempty"`
	ClosedPnl     *decimal.Decimal `json:"closedPnl,omitempty"`
	StartPosition *decimal.Decimal `json:"startPosition,omitempty"`
	Direction     string           `json:"direction,omitempty"`
	Time          time.Time        `json:"time"`
}

type FillEvent struct {
	Envelope
	Snapshot bool        `json:"snapshot,omitempty"`
	Fills    []FillEntry `json:"fills"`
}

type PositionEntry struct {
	Symbol           string           `json:"symbol"`
	Side             PositionSide     `json:"side"`
	Size             decimal.Decimal  `json:"size"`
	EntryPrice       *decimal.Decimal `json:"entryPrice,omitempty"`
	UnrealizedPnl    *decimal.Decimal `json:"unrealizedPnl,omitempty"`
	LiquidationPrice *decimal.Decimal `json:"liquidationPrice,omitempty"`
	Leverage         *decimal.Decimal `json:"leverage,omitempty"`
	MarginType       string           `json:"marginType,omitempty"`
}

type PositionEvent struct {
	Envelope
	Positions []PositionEntry `json:"positions"`
}

type BalanceEntry struct {
	Asset     string           `json:"asset"`
	Total     decimal.Decimal  `json:"total"`
	Available *decimal.Decimal `json:"available,omitempty"`
}

type BalanceEvent struct {
	Envelope
	Balances        []BalanceEntry   `json:"balances"`
	AccountValue    *decimal.Decimal `json:"accountValue,omitempty"`
	TotalMarginUsed *decimal.Decimal `json:"totalMarginUsed,omitempty"`
}

type FundingEntry struct {
	Symbol       string           `json:"symbol"`
	FundingRate  decimal.Decimal  `json:"fundingRate"`
	Payment      decimal.Decimal  `json:"payment"`
	PositionSize *decimal.Decimal `json:"positionSize,omitempty"`
	Time         time.Time        `json:"time"`
}

type UserFundingEvent struct {
	Envelope
	Snapshot bool           `json:"snapshot,omitempty"`
	Fundings []FundingEntry `json:"fundings"`
}

type LedgerEntry struct {
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
	Hash   string          `json:"hash,omitempty"`
	Time   time.Time       `json:"time"`
}

type LedgerEvent struct {
	Envelope
	Snapshot bool          `json:"snapshot,omitempty"`
	Entries  []LedgerEntry `json:"entries"`
}

type NotificationEvent struct {
	Envelope
	Message string `json:"message"`
}

func (TradesEvent) isEvent()         {}
func (OrderBookL1Event) isEvent()    {}
func (OrderBookL2Event) isEvent()    {}
func (CandleEvent) isEvent()         {}
func (AllMidsEvent) isEvent()        {}
func (ActiveAssetCtxEvent) isEvent() {}
func (FundingRateEvent) isEvent()    {}
func (UserOrderEvent) isEvent()      {}
func (OpenOrdersEvent) isEvent()     {}
func (FillEvent) isEvent()           {}
func (PositionEvent) isEvent()       {}
func (BalanceEvent) isEvent()        {}
func (UserFundingEvent) isEvent()    {}
func (LedgerEvent) isEvent()         {}
func (NotificationEvent) isEvent()   {}
