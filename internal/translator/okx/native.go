package okx

import (
	"encoding/json"

	"cryptoconnect/internal/translator/wire"
)

type arg struct {
	Channel  string `json:"channel"`
	InstID   string `json:"instId,omitempty"`
	InstType string `json:"instType,omitempty"`
}

type request struct {
	ID   string `json:"id,omitempty"`
	Op   string `json:"op"`
	Args []arg  `json:"args"`
}

type message struct {
	Event  string          `json:"event"`
	Code   string          `json:"code"`
	Msg    string          `json:"msg"`
	Arg    arg             `json:"arg"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type trade struct {
	InstID  string       `json:"instId"`
	TradeID string       `json:"tradeId"`
	Px      wire.Decimal `json:"px"`
	Sz      wire.Decimal `json:"sz"`
	Side    string       `json:"side"`
	Ts      wire.Millis  `json:"ts"`
}

// level is [price, size, deprecated, orders].
type level []wire.Decimal

type book struct {
	Asks  []level     `json:"asks"`
	Bids  []level     `json:"bids"`
	Ts    wire.Millis `json:"ts"`
	SeqID int64       `json:"seqId"`
}

// candle is [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm].
type candle []json.RawMessage

type fundingRate struct {
	InstID          string       `json:"instId"`
	FundingRate     wire.Decimal `json:"fundingRate"`
	NextFundingTime wire.Millis  `json:"nextFundingTime"`
}

type order struct {
	InstID     string       `json:"instId"`
	OrdID      string       `json:"ordId"`
	ClOrdID    string       `json:"clOrdId"`
	Side       string       `json:"side"`
	OrdType    string       `json:"ordType"`
	Px         wire.Decimal `json:"px"`
	Sz         wire.Decimal `json:"sz"`
	AccFillSz  wire.Decimal `json:"accFillSz"`
	FillSz     wire.Decimal `json:"fillSz"`
	FillPx     wire.Decimal `json:"fillPx"`
	FillFee    wire.Decimal `json:"fillFee"`
	FillFeeCcy string       `json:"fillFeeCcy"`
	FillPnl    wire.Decimal `json:"fillPnl"`
	TradeID    string       `json:"tradeId"`
	State      string       `json:"state"`
	UTime      wire.Millis  `json:"uTime"`
	FillTime   wire.Millis  `json:"fillTime"`
}

type position struct {
	InstID  string       `json:"instId"`
	PosSide string       `json:"posSide"`
	Pos     wire.Decimal `json:"pos"`
	AvgPx   wire.Decimal `json:"avgPx"`
	Upl     wire.Decimal `json:"upl"`
	LiqPx   wire.Decimal `json:"liqPx"`
	Lever   wire.Decimal `json:"lever"`
	MgnMode string       `json:"mgnMode"`
}

type account struct {
	TotalEq wire.Decimal `json:"totalEq"`
	Imr     wire.Decimal `json:"imr"`
	Details []struct {
		Ccy      string       `json:"ccy"`
		Eq       wire.Decimal `json:"eq"`
		AvailBal wire.Decimal `json:"availBal"`
	} `json:"details"`
}
