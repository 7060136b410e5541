package mexc

import (
	"encoding/json"

	"cryptoconnect/internal/translator/wire"
)

type param struct {
	Symbol   string `json:"symbol,omitempty"`
	Interval string `json:"interval,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Compress *bool  `json:"compress,omitempty"`
}

type request struct {
	Method string `json:"method"`
	Param  param  `json:"param"`
}

type message struct {
	Channel string          `json:"channel"`
	Symbol  string          `json:"symbol"`
	Ts      wire.Millis     `json:"ts"`
	Data    json.RawMessage `json:"data"`
}

// deal side T: 1 buy, 2 sell.
type deal struct {
	Price  wire.Decimal `json:"p"`
	Volume wire.Decimal `json:"v"`
	Side   int          `json:"T"`
	Time   wire.Millis  `json:"t"`
}

// level is [price, volume, orders].
type level []wire.Decimal

type depth struct {
	Asks    []level `json:"asks"`
	Bids    []level `json:"bids"`
	Version int64   `json:"version"`
}

// kline times are epoch seconds.
type kline struct {
	Symbol   string       `json:"symbol"`
	Interval string       `json:"interval"`
	Time     wire.Int     `json:"t"`
	Open     wire.Decimal `json:"o"`
	Close    wire.Decimal `json:"c"`
	High     wire.Decimal `json:"h"`
	Low      wire.Decimal `json:"l"`
	Amount   wire.Decimal `json:"a"`
	Quantity wire.Decimal `json:"q"`
}

type ticker struct {
	Symbol      string       `json:"symbol"`
	LastPrice   wire.Decimal `json:"lastPrice"`
	Bid1        wire.Decimal `json:"bid1"`
	Ask1        wire.Decimal `json:"ask1"`
	FairPrice   wire.Decimal `json:"fairPrice"`
	IndexPrice  wire.Decimal `json:"indexPrice"`
	FundingRate wire.Decimal `json:"fundingRate"`
	HoldVol     wire.Decimal `json:"holdVol"`
	Amount24    wire.Decimal `json:"amount24"`
	Timestamp   wire.Millis  `json:"timestamp"`
}

type fundingRate struct {
	Symbol         string       `json:"symbol"`
	Rate           wire.Decimal `json:"rate"`
	NextSettleTime wire.Millis  `json:"nextSettleTime"`
}
