package models

import (
	"fmt"
	"strings"
)

// Exchange identifies a venue. The string value is the serialized form.
type Exchange string

const (
	ExchangeHyperliquid Exchange = "hyperliquid"
	ExchangeBybit       Exchange = "bybit"
	ExchangeOKX         Exchange = "okx"
	ExchangeMEXC        Exchange = "mexc"
)

var exchanges = []Exchange{ExchangeHyperliquid, ExchangeBybit, ExchangeOKX, ExchangeMEXC}

// Exchanges lists every supported venue.
func Exchanges() []Exchange {
	out := make([]Exchange, len(exchanges))
	copy(out, exchanges)
	return out
}

// ParseExchange resolves a venue name case-insensitively.
func ParseExchange(s string) (Exchange, error) {
	name := Exchange(strings.ToLower(strings.TrimSpace(s)))
	for _, ex := range exchanges {
		if ex == name {
			return ex, nil
		}
	}
	return "", fmt.Errorf("unknown exchange %q", s)
}

func (e Exchange) String() string { return string(e) }

// Channel is the unified stream kind.
type Channel string

const (
	ChannelTrades         Channel = "trades"
	ChannelOrderBookL1    Channel = "orderbook-l1"
	ChannelOrderBookL2    Channel = "orderbook-l2"
	ChannelCandles        Channel = "candles"
	ChannelUserOrders     Channel = "user-orders"
	ChannelFills          Channel = "fills"
	ChannelPositions      Channel = "positions"
	ChannelBalances       Channel = "balances"
	ChannelAllMids        Channel = "all-mids"
	ChannelActiveAssetCtx Channel = "active-asset-ctx"
	ChannelUserFundings   Channel = "user-fundings"
	ChannelLedger         Channel = "ledger"
	ChannelNotifications  Channel = "notifications"
	ChannelOpenOrders     Channel = "open-orders"
	ChannelFundingRate    Channel = "funding-rate"
)

var channels = map[Channel]bool{
	ChannelTrades:         false,
	ChannelOrderBookL1:    false,
	ChannelOrderBookL2:    false,
	ChannelCandles:        false,
	ChannelAllMids:        false,
	ChannelActiveAssetCtx: false,
	ChannelFundingRate:    false,
	ChannelUserOrders:     true,
	ChannelFills:          true,
	ChannelPositions:      true,
	ChannelBalances:       true,
	ChannelUserFundings:   true,
	ChannelLedger:         true,
	ChannelNotifications:  true,
	ChannelOpenOrders:     true,
}

// ParseChannel resolves a channel name. Both the canonical form
// ("orderbook-l2") and compact spellings ("orderbookL2", "orderbook_l2")
// are accepted.
func ParseChannel(s string) (Channel, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "_", "-")
	if _, ok := channels[Channel(norm)]; ok {
		return Channel(norm), nil
	}
	compact := strings.ReplaceAll(norm, "-", "")
	for ch := range channels {
		if strings.ReplaceAll(string(ch), "-", "") == compact {
			return ch, nil
		}
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

func (c Channel) String() string { return string(c) }

// UserScoped reports whether the channel is account-wide rather than per
// instrument.
func (c Channel) UserScoped() bool { return channels[c] }

// Side is the normalized trade direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide maps the letter and word codes used by venues onto buy/sell.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "b", "buy", "bid", "long":
		return SideBuy, nil
	case "a", "s", "sell", "ask", "short":
		return SideSell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// PositionSide is the direction of an open position.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)
