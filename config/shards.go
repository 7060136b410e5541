package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"cryptoconnect/models"
)

// Shard is one physical connection: its own stream manager, optionally bound
// to a local source IP, carrying a subset of the subscriptions. Spreading
// subscriptions over several source addresses keeps each one under the
// venue's per-IP connection and subscription limits. Exchange, URL and
// LoginMessage default to the top-level exchange and auth settings, so one
// process can mux several venues with one shard each.
type Shard struct {
	Name          string               `yaml:"name"`
	Exchange      string               `yaml:"exchange"`
	Market        string               `yaml:"market"`
	URL           string               `yaml:"url"`
	LoginMessage  string               `yaml:"login_message"`
	LocalIP       string               `yaml:"local_ip"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
}

// ExchangeName is the venue this shard connects to.
func (s Shard) ExchangeName(cfg *Config) string {
	if s.Exchange != "" {
		return s.Exchange
	}
	return cfg.Exchange.Name
}

// MarketName is the market this shard trades, inheriting exchange.market
// only when the shard is on the top-level exchange.
func (s Shard) MarketName(cfg *Config) string {
	if s.Market != "" {
		return s.Market
	}
	if s.Exchange == "" || strings.EqualFold(s.Exchange, cfg.Exchange.Name) {
		return cfg.Exchange.Market
	}
	return ""
}

// Endpoint is the URL override for this shard, empty for the venue default.
// The top-level exchange.url only applies to shards on that exchange.
func (s Shard) Endpoint(cfg *Config) string {
	if s.URL != "" {
		return s.URL
	}
	if s.Exchange == "" || strings.EqualFold(s.Exchange, cfg.Exchange.Name) {
		return cfg.Exchange.URL
	}
	return ""
}

// Login is the venue login frame for this shard. The top-level
// auth.login_message only applies to shards on the top-level exchange.
func (s Shard) Login(cfg *Config) string {
	if s.LoginMessage != "" {
		return s.LoginMessage
	}
	if s.Exchange == "" || strings.EqualFold(s.Exchange, cfg.Exchange.Name) {
		return cfg.Auth.LoginMessage
	}
	return ""
}

// Shards represents the full shard configuration.
type Shards struct {
	Shards []Shard `yaml:"shards"`
}

// LoadShards loads shard configuration from the given path.
func LoadShards(path string) (*Shards, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shards file: %w", err)
	}
	var cfg Shards
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse shards file: %w", err)
	}
	for i, s := range cfg.Shards {
		if s.Name == "" {
			cfg.Shards[i].Name = fmt.Sprintf("shard-%d", i)
		}
		if s.LocalIP != "" && net.ParseIP(s.LocalIP) == nil {
			return nil, fmt.Errorf("shards[%d].local_ip %q is not an IP address", i, s.LocalIP)
		}
		if len(s.Subscriptions) == 0 {
			return nil, fmt.Errorf("shards[%d] has no subscriptions", i)
		}
		if s.Exchange != "" {
			if _, err := models.ParseExchange(s.Exchange); err != nil {
				return nil, fmt.Errorf("shards[%d].exchange: %w", i, err)
			}
		}
		if err := validateMarket(s.Market); err != nil {
			return nil, fmt.Errorf("shards[%d].market: %w", i, err)
		}
	}
	return &cfg, nil
}

// ShardsOrDefault returns the shards in path, or a single unbound shard
// carrying cfg.Subscriptions when path is empty or missing.
func ShardsOrDefault(path string, cfg *Config) (*Shards, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return LoadShards(path)
		}
	}
	return &Shards{Shards: []Shard{{Name: "default", Subscriptions: cfg.Subscriptions}}}, nil
}

// Validate checks every shard subscription against the shard's exchange.
func (s *Shards) Validate(cfg *Config) error {
	for i, shard := range s.Shards {
		ex, err := models.ParseExchange(shard.ExchangeName(cfg))
		if err != nil {
			return fmt.Errorf("shards[%d].exchange: %w", i, err)
		}
		for j, sub := range shard.Subscriptions {
			if _, err := sub.Request(ex); err != nil {
				return fmt.Errorf("shards[%d].subscriptions[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}
