// Package exchanges wires each venue's translator to its endpoints,
// keepalive and send budget.
package exchanges

import (
	"fmt"
	"strings"

	"cryptoconnect/internal/ratelimit"
	"cryptoconnect/internal/translator"
	"cryptoconnect/internal/translator/bybit"
	"cryptoconnect/internal/translator/hyperliquid"
	"cryptoconnect/internal/translator/mexc"
	"cryptoconnect/internal/translator/okx"
	"cryptoconnect/models"
)

// Venue is everything a stream needs to talk to one exchange.
type Venue struct {
	Exchange   models.Exchange
	Translator translator.Translator
	Keepalive  translator.Keepalive
	publicURL  string
	privateURL string
	// candleURL is set when candles live on a separate endpoint.
	candleURL string
}

func New(ex models.Exchange, opts translator.Options) (*Venue, error) {
	switch ex {
	case models.ExchangeHyperliquid:
		return &Venue{
			Exchange:   ex,
			Translator: hyperliquid.New(opts),
			Keepalive:  hyperliquid.Keepalive,
			publicURL:  hyperliquid.MainnetURL,
			privateURL: hyperliquid.MainnetURL,
		}, nil
	case models.ExchangeBybit:
		return &Venue{
			Exchange:   ex,
			Translator: bybit.New(opts),
			Keepalive:  bybit.Keepalive,
			publicURL:  bybit.PublicLinearURL,
			privateURL: bybit.PrivateURL,
		}, nil
	case models.ExchangeOKX:
		return &Venue{
			Exchange:   ex,
			Translator: okx.New(opts),
			Keepalive:  okx.Keepalive,
			publicURL:  okx.PublicURL,
			privateURL: okx.PrivateURL,
			candleURL:  okx.BusinessURL,
		}, nil
	case models.ExchangeMEXC:
		return &Venue{
			Exchange:   ex,
			Translator: mexc.New(opts),
			Keepalive:  mexc.Keepalive,
			publicURL:  mexc.FuturesURL,
			privateURL: mexc.FuturesURL,
		}, nil
	}
	return nil, fmt.Errorf("unknown exchange %q", ex)
}

// Markets a venue can serve. Futures is the default and the only market
// most venues are wired for.
const (
	MarketFutures = "futures"
	MarketSpot    = "spot"
)

// ForMarket builds the venue of ex serving market.
func ForMarket(ex models.Exchange, market string, opts translator.Options) (*Venue, error) {
	switch strings.ToLower(market) {
	case "", MarketFutures:
		return New(ex, opts)
	case MarketSpot:
		if ex == models.ExchangeMEXC {
			return &Venue{
				Exchange:   ex,
				Translator: mexc.NewSpot(opts),
				Keepalive:  mexc.SpotKeepalive,
				publicURL:  mexc.SpotURL,
				privateURL: mexc.SpotURL,
			}, nil
		}
	}
	return nil, fmt.Errorf("%s has no %q market", ex, market)
}

// Parse resolves name and builds its venue.
func Parse(name string, opts translator.Options) (*Venue, error) {
	ex, err := models.ParseExchange(name)
	if err != nil {
		return nil, err
	}
	return New(ex, opts)
}

// URL picks the endpoint serving channels. Venues that split public,
// private and candle traffic need one connection per endpoint; mixing them
// is rejected.
func (v *Venue) URL(channels []models.Channel) (string, error) {
	url := ""
	for _, ch := range channels {
		next := v.publicURL
		switch {
		case ch.UserScoped():
			next = v.privateURL
		case ch == models.ChannelCandles && v.candleURL != "":
			next = v.candleURL
		}
		if url != "" && url != next {
			return "", fmt.Errorf("%s: channels need separate connections (%s and %s)", v.Exchange, url, next)
		}
		url = next
	}
	if url == "" {
		url = v.publicURL
	}
	return url, nil
}

// Limiter builds the venue's token bucket. Non-positive arguments use the
// venue default.
func (v *Venue) Limiter(capacity int, refillPerSecond float64) *ratelimit.TokenBucket {
	return ratelimit.ForExchange(v.Exchange, capacity, refillPerSecond)
}
