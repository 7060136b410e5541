package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cryptoconnect/models"
)

type Config struct {
	Connector     ConnectorConfig      `yaml:"connector"`
	Exchange      ExchangeConfig       `yaml:"exchange"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	Transport     TransportConfig      `yaml:"transport"`
	RateLimit     RateLimitConfig      `yaml:"rate_limit"`
	Stream        StreamConfig         `yaml:"stream"`
	Auth          AuthConfig           `yaml:"auth"`
	Sink          SinkConfig           `yaml:"sink"`
	Logging       LoggingConfig        `yaml:"logging"`
}

type ConnectorConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ExchangeConfig struct {
	Name string `yaml:"name"`
	// Market selects futures (default) or spot where a venue serves both.
	Market string `yaml:"market"`
	// URL overrides the venue's default websocket endpoint.
	URL        string `yaml:"url"`
	IncludeRaw bool   `yaml:"include_raw"`
}

type SubscriptionConfig struct {
	Channel  string            `yaml:"channel"`
	Symbols  []string          `yaml:"symbols"`
	Interval string            `yaml:"interval"`
	Depth    int               `yaml:"depth"`
	Options  map[string]string `yaml:"options"`
}

type TransportConfig struct {
	BaseDelay        time.Duration `yaml:"base_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	Jitter           float64       `yaml:"jitter"`
	MaxAttempts      int           `yaml:"max_attempts"`
	StaleTimeout     time.Duration `yaml:"stale_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ReadLimit        int64         `yaml:"read_limit"`
}

// RateLimitConfig left at zero selects the venue's default.
type RateLimitConfig struct {
	Capacity        int     `yaml:"capacity"`
	RefillPerSecond float64 `yaml:"refill_per_second"`
}

type StreamConfig struct {
	QueueCapacity  int           `yaml:"queue_capacity"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

// AuthConfig carries credentials produced outside the connector. LoginMessage
// is a pre-signed login frame sent verbatim after every connect.
type AuthConfig struct {
	UserAddress  string `yaml:"user_address"`
	LoginMessage string `yaml:"login_message"`
}

type SinkConfig struct {
	JSONL      JSONLConfig      `yaml:"jsonl"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	S3         S3Config         `yaml:"s3"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type JSONLConfig struct {
	Enabled bool `yaml:"enabled"`
	// Output is "stdout" or a file path.
	Output string `yaml:"output"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type S3Config struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	Prefix          string        `yaml:"prefix"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	MaxBuffer       int           `yaml:"max_buffer"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns the configuration used for any key the file leaves out.
func Default() Config {
	return Config{
		Transport: TransportConfig{
			BaseDelay:        500 * time.Millisecond,
			MaxDelay:         30 * time.Second,
			Jitter:           0.25,
			MaxAttempts:      10,
			StaleTimeout:     60 * time.Second,
			HandshakeTimeout: 10 * time.Second,
		},
		Stream: StreamConfig{
			QueueCapacity:  10000,
			ReportInterval: 30 * time.Second,
		},
		Sink: SinkConfig{
			JSONL: JSONLConfig{Enabled: true, Output: "stdout"},
			Redis: RedisConfig{TTL: time.Minute},
			S3:    S3Config{FlushInterval: time.Minute, MaxBuffer: 50000},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnv(config *Config) {
	if v := os.Getenv("EXCHANGE"); v != "" {
		config.Exchange.Name = strings.TrimSpace(v)
	}
	if v := os.Getenv("USER_ADDRESS"); v != "" {
		config.Auth.UserAddress = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOGIN_MESSAGE"); v != "" {
		config.Auth.LoginMessage = strings.TrimSpace(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		config.Sink.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.Sink.Redis.Addr = strings.TrimSpace(v)
	}

	// Override S3 settings from environment variables if available
	if config.Sink.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Sink.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Sink.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Sink.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Sink.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Sink.S3.Bucket = strings.TrimSpace(config.Sink.S3.Bucket)
}

func validateConfig(cfg *Config) error {
	if cfg.Connector.Name == "" {
		return fmt.Errorf("connector.name is required")
	}

	ex, err := models.ParseExchange(cfg.Exchange.Name)
	if err != nil {
		return fmt.Errorf("exchange.name: %w", err)
	}
	if err := validateMarket(cfg.Exchange.Market); err != nil {
		return fmt.Errorf("exchange.market: %w", err)
	}

	for i, sub := range cfg.Subscriptions {
		if _, err := sub.Request(ex); err != nil {
			return fmt.Errorf("subscriptions[%d]: %w", i, err)
		}
	}

	t := cfg.Transport
	if t.BaseDelay <= 0 {
		return fmt.Errorf("transport.base_delay must be greater than 0")
	}
	if t.MaxDelay < t.BaseDelay {
		return fmt.Errorf("transport.max_delay must not be less than transport.base_delay")
	}
	if t.Jitter < 0 || t.Jitter >= 1 {
		return fmt.Errorf("transport.jitter must be in [0, 1)")
	}
	if t.MaxAttempts <= 0 {
		return fmt.Errorf("transport.max_attempts must be greater than 0")
	}
	if t.StaleTimeout <= 0 {
		return fmt.Errorf("transport.stale_timeout must be greater than 0")
	}
	if t.PingInterval < 0 {
		return fmt.Errorf("transport.ping_interval must not be negative")
	}
	if t.PingInterval > 0 && t.PingInterval >= t.StaleTimeout {
		return fmt.Errorf("transport.ping_interval must be shorter than transport.stale_timeout")
	}

	if cfg.RateLimit.Capacity < 0 || cfg.RateLimit.RefillPerSecond < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}

	if cfg.Stream.QueueCapacity <= 0 {
		return fmt.Errorf("stream.queue_capacity must be greater than 0")
	}

	if cfg.Sink.Kafka.Enabled {
		if len(cfg.Sink.Kafka.Brokers) == 0 {
			return fmt.Errorf("sink.kafka.brokers is required when kafka is enabled")
		}
		if cfg.Sink.Kafka.Topic == "" {
			return fmt.Errorf("sink.kafka.topic is required when kafka is enabled")
		}
	}

	if cfg.Sink.Redis.Enabled && cfg.Sink.Redis.Addr == "" {
		return fmt.Errorf("sink.redis.addr is required when redis is enabled")
	}

	if cfg.Sink.S3.Enabled {
		if cfg.Sink.S3.Bucket == "" {
			return fmt.Errorf("sink.s3.bucket is required when S3 is enabled")
		}
		if cfg.Sink.S3.Region == "" {
			return fmt.Errorf("sink.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Sink.S3.Bucket) {
			return fmt.Errorf("sink.s3.bucket '%s' is invalid", cfg.Sink.S3.Bucket)
		}
		if cfg.Sink.S3.FlushInterval <= 0 {
			return fmt.Errorf("sink.s3.flush_interval must be greater than 0")
		}
	}

	return nil
}

// Request converts the entry into a subscribe request for ex.
func (s SubscriptionConfig) Request(ex models.Exchange) (models.SubscribeRequest, error) {
	ch, err := models.ParseChannel(s.Channel)
	if err != nil {
		return models.SubscribeRequest{}, err
	}
	var opts []models.RequestOption
	if s.Interval != "" {
		opts = append(opts, models.WithInterval(s.Interval))
	}
	if s.Depth != 0 {
		opts = append(opts, models.WithDepth(s.Depth))
	}
	for k, v := range s.Options {
		opts = append(opts, models.WithOption(k, v))
	}
	req := models.NewSubscribeRequest(ex, ch, s.Symbols, opts...)
	if err := req.Validate(); err != nil {
		return models.SubscribeRequest{}, err
	}
	return req, nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}

func validateMarket(market string) error {
	switch strings.ToLower(market) {
	case "", "futures", "spot":
		return nil
	}
	return fmt.Errorf("unknown market %q", market)
}
