package bybit

import (
	"encoding/json"

	"cryptoconnect/internal/translator/wire"
)

type request struct {
	ReqID string   `json:"req_id,omitempty"`
	Op    string   `json:"op"`
	Args  []string `json:"args"`
}

// message is the outer shape of every frame: either an op response or a
// topic push.
type message struct {
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Ts      wire.Millis     `json:"ts"`
	Data    json.RawMessage `json:"data"`
}

type trade struct {
	Time   wire.Millis  `json:"T"`
	Symbol string       `json:"s"`
	Side   string       `json:"S"`
	Size   wire.Decimal `json:"v"`
	Price  wire.Decimal `json:"p"`
	ID     string       `json:"i"`
}

type book struct {
	Symbol   string            `json:"s"`
	Bids     [][2]wire.Decimal `json:"b"`
	Asks     [][2]wire.Decimal `json:"a"`
	UpdateID int64             `json:"u"`
	Seq      int64             `json:"seq"`
}

type kline struct {
	Start    wire.Millis  `json:"start"`
	End      wire.Millis  `json:"end"`
	Interval string       `json:"interval"`
	Open     wire.Decimal `json:"open"`
	Close    wire.Decimal `json:"close"`
	High     wire.Decimal `json:"high"`
	Low      wire.Decimal `json:"low"`
	Volume   wire.Decimal `json:"volume"`
	Turnover wire.Decimal `json:"turnover"`
	Confirm  bool         `json:"confirm"`
}

type ticker struct {
	Symbol          string       `json:"symbol"`
	MarkPrice       wire.Decimal `json:"markPrice"`
	FundingRate     wire.Decimal `json:"fundingRate"`
	NextFundingTime wire.Millis  `json:"nextFundingTime"`
}

type order struct {
	Symbol      string       `json:"symbol"`
	OrderID     string       `json:"orderId"`
	OrderLinkID string       `json:"orderLinkId"`
	Side        string       `json:"side"`
	OrderType   string       `json:"orderType"`
	Price       wire.Decimal `json:"price"`
	Qty         wire.Decimal `json:"qty"`
	LeavesQty   wire.Decimal `json:"leavesQty"`
	CumExecQty  wire.Decimal `json:"cumExecQty"`
	OrderStatus string       `json:"orderStatus"`
	UpdatedTime wire.Millis  `json:"updatedTime"`
}

type execution struct {
	Symbol      string       `json:"symbol"`
	OrderID     string       `json:"orderId"`
	ExecID      string       `json:"execId"`
	Side        string       `json:"side"`
	ExecPrice   wire.Decimal `json:"execPrice"`
	ExecQty     wire.Decimal `json:"execQty"`
	ExecFee     wire.Decimal `json:"execFee"`
	FeeCurrency string       `json:"feeCurrency"`
	ClosedPnl   wire.Decimal `json:"closedPnl"`
	ExecTime    wire.Millis  `json:"execTime"`
}

type position struct {
	Symbol        string       `json:"symbol"`
	Side          string       `json:"side"`
	Size          wire.Decimal `json:"size"`
	EntryPrice    wire.Decimal `json:"entryPrice"`
	UnrealisedPnl wire.Decimal `json:"unrealisedPnl"`
	LiqPrice      wire.Decimal `json:"liqPrice"`
	Leverage      wire.Decimal `json:"leverage"`
	TradeMode     int          `json:"tradeMode"`
}

type wallet struct {
	AccountType        string       `json:"accountType"`
	TotalEquity        wire.Decimal `json:"totalEquity"`
	TotalInitialMargin wire.Decimal `json:"totalInitialMargin"`
	Coin               []struct {
		Coin                string       `json:"coin"`
		WalletBalance       wire.Decimal `json:"walletBalance"`
		Equity              wire.Decimal `json:"equity"`
		AvailableToWithdraw wire.Decimal `json:"availableToWithdraw"`
	} `json:"coin"`
}
