package hyperliquid

import (
	"encoding/json"

	"cryptoconnect/internal/translator/wire"
)

type subscription struct {
	Type     string `json:"type"`
	Coin     string `json:"coin,omitempty"`
	User     string `json:"user,omitempty"`
	Interval string `json:"interval,omitempty"`
	NSigFigs *int   `json:"nSigFigs,omitempty"`
	Dex      string `json:"dex,omitempty"`
}

type request struct {
	Method       string       `json:"method"`
	Subscription subscription `json:"subscription"`
}

type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type trade struct {
	Coin string       `json:"coin"`
	Side string       `json:"side"`
	Px   wire.Decimal `json:"px"`
	Sz   wire.Decimal `json:"sz"`
	Time wire.Millis  `json:"time"`
	Hash string       `json:"hash"`
	Tid  wire.Int     `json:"tid"`
}

type level struct {
	Px wire.Decimal `json:"px"`
	Sz wire.Decimal `json:"sz"`
	N  *int64       `json:"n"`
}

type bbo struct {
	Coin string      `json:"coin"`
	Time wire.Millis `json:"time"`
	Bbo  []*level    `json:"bbo"`
	Bid  *level      `json:"bid"`
	Ask  *level      `json:"ask"`
}

type book struct {
	Coin   string      `json:"coin"`
	Time   wire.Millis `json:"time"`
	Levels [][]level   `json:"levels"`
}

type candle struct {
	OpenTime  wire.Millis  `json:"t"`
	CloseTime wire.Millis  `json:"T"`
	Symbol    string       `json:"s"`
	Interval  string       `json:"i"`
	Open      wire.Decimal `json:"o"`
	Close     wire.Decimal `json:"c"`
	High      wire.Decimal `json:"h"`
	Low       wire.Decimal `json:"l"`
	Volume    wire.Decimal `json:"v"`
	Trades    *int64       `json:"n"`
}

type allMids struct {
	Mids map[string]wire.Decimal `json:"mids"`
}

type assetCtx struct {
	Coin string `json:"coin"`
	Ctx  struct {
		Funding      wire.Decimal `json:"funding"`
		MarkPx       wire.Decimal `json:"markPx"`
		OpenInterest wire.Decimal `json:"openInterest"`
		OraclePx     wire.Decimal `json:"oraclePx"`
		MidPx        wire.Decimal `json:"midPx"`
		PrevDayPx    wire.Decimal `json:"prevDayPx"`
		DayNtlVlm    wire.Decimal `json:"dayNtlVlm"`
	} `json:"ctx"`
}

type order struct {
	Coin      string       `json:"coin"`
	Side      string       `json:"side"`
	LimitPx   wire.Decimal `json:"limitPx"`
	Sz        wire.Decimal `json:"sz"`
	Oid       wire.Int     `json:"oid"`
	Timestamp wire.Millis  `json:"timestamp"`
	OrigSz    wire.Decimal `json:"origSz"`
	Cloid     string       `json:"cloid"`
	OrderType string       `json:"orderType"`
}

type orderUpdate struct {
	Order           order       `json:"order"`
	Status          string      `json:"status"`
	StatusTimestamp wire.Millis `json:"statusTimestamp"`
}

type fill struct {
	Coin          string       `json:"coin"`
	Px            wire.Decimal `json:"px"`
	Sz            wire.Decimal `json:"sz"`
	Side          string       `json:"side"`
	Time          wire.Millis  `json:"time"`
	StartPosition wire.Decimal `json:"startPosition"`
	Dir           string       `json:"dir"`
	ClosedPnl     wire.Decimal `json:"closedPnl"`
	Oid           wire.Int     `json:"oid"`
	Tid           wire.Int     `json:"tid"`
	Fee           wire.Decimal `json:"fee"`
	FeeToken      string       `json:"feeToken"`
}

type userFills struct {
	IsSnapshot bool   `json:"isSnapshot"`
	Fills      []fill `json:"fills"`
}

type position struct {
	Coin          string       `json:"coin"`
	Szi           wire.Decimal `json:"szi"`
	EntryPx       wire.Decimal `json:"entryPx"`
	UnrealizedPnl wire.Decimal `json:"unrealizedPnl"`
	LiquidationPx wire.Decimal `json:"liquidationPx"`
	Leverage      *struct {
		Type  string       `json:"type"`
		Value wire.Decimal `json:"value"`
	} `json:"leverage"`
}

type marginSummary struct {
	AccountValue    wire.Decimal `json:"accountValue"`
	TotalMarginUsed wire.Decimal `json:"totalMarginUsed"`
}

type clearinghouse struct {
	AssetPositions []struct {
		Position position `json:"position"`
	} `json:"assetPositions"`
	MarginSummary      *marginSummary `json:"marginSummary"`
	CrossMarginSummary *marginSummary `json:"crossMarginSummary"`
	Withdrawable       wire.Decimal   `json:"withdrawable"`
}

// clearinghouseMessage accepts both the wrapped and the bare state.
type clearinghouseMessage struct {
	clearinghouse
	Wrapped *clearinghouse `json:"clearinghouseState"`
}

type fundingDelta struct {
	Coin        string       `json:"coin"`
	Usdc        wire.Decimal `json:"usdc"`
	Szi         wire.Decimal `json:"szi"`
	FundingRate wire.Decimal `json:"fundingRate"`
}

type funding struct {
	Time wire.Millis `json:"time"`
	fundingDelta
	Delta *fundingDelta `json:"delta"`
}

type userFundings struct {
	IsSnapshot bool      `json:"isSnapshot"`
	Fundings   []funding `json:"fundings"`
}

type ledgerUpdate struct {
	Time  wire.Millis `json:"time"`
	Hash  string      `json:"hash"`
	Delta struct {
		Type string       `json:"type"`
		Usdc wire.Decimal `json:"usdc"`
	} `json:"delta"`
}

type ledgerUpdates struct {
	IsSnapshot bool           `json:"isSnapshot"`
	Updates    []ledgerUpdate `json:"nonFundingLedgerUpdates"`
	Legacy     []ledgerUpdate `json:"ledgerUpdates"`
}

type openOrders struct {
	Orders []order `json:"orders"`
}
