package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cryptoconnect/config"
	"cryptoconnect/internal/auth"
	"cryptoconnect/internal/exchanges"
	"cryptoconnect/internal/sink"
	"cryptoconnect/internal/stream"
	"cryptoconnect/internal/translator"
	"cryptoconnect/internal/transport"
	"cryptoconnect/logger"
	"cryptoconnect/models"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	shardPath := flag.String("shards", "config/shards.yml", "Path to shard configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	env := config.AppEnvironment()
	log.WithEnv("APP_ENV").WithFields(logger.Fields{
		"service":  cfg.Connector.Name,
		"version":  cfg.Connector.Version,
		"exchange": cfg.Exchange.Name,
	}).Info("starting connector")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Sink.CloudWatch.Enabled {
		logger.InitCloudWatch(ctx, log, cfg.Sink.CloudWatch.Region, cfg.Sink.CloudWatch.Namespace, cfg.Sink.CloudWatch.Dashboard)
	}

	shards, err := config.ShardsOrDefault(*shardPath, cfg)
	if err != nil {
		log.WithError(err).Error("failed to load shard configuration")
		os.Exit(1)
	}
	if err := shards.Validate(cfg); err != nil {
		log.WithError(err).Error("invalid shard configuration")
		os.Exit(1)
	}
	if config.IsProductionLike(env) && countSubscriptions(shards) == 0 {
		log.WithEnv("APP_ENV").Error("no subscriptions configured")
		os.Exit(1)
	}

	sinks, err := buildSinks(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("failed to create sinks")
		os.Exit(1)
	}

	managers := make([]*stream.Manager, 0, len(shards.Shards))
	for _, shard := range shards.Shards {
		m, err := startShard(ctx, cfg, shard, log)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"shard": shard.Name}).Error("failed to start shard")
			stopAll(managers, log)
			_ = sink.CloseAll(sinks...)
			os.Exit(1)
		}
		managers = append(managers, m)
	}

	logger.StartReport(ctx, log, cfg.Stream.ReportInterval, func() logger.Counters {
		total := logger.Counters{}
		for _, m := range managers {
			for k, v := range m.Stats().Counters() {
				total[k] += v
			}
		}
		return total
	})

	var wg sync.WaitGroup
	failed := make(chan error, len(managers))
	for _, m := range managers {
		wg.Add(1)
		go func(m *stream.Manager) {
			defer wg.Done()
			if err := sink.Pump(ctx, m, log, sinks...); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("pump stopped")
			}
		}(m)
		go func(m *stream.Manager) {
			if err := m.Wait(ctx); err != nil && ctx.Err() == nil {
				failed <- err
			}
		}(m)
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case err := <-failed:
		log.WithError(err).Error("stream failed; shutting down")
		exitCode = 1
	}

	log.Info("starting graceful shutdown")
	stopAll(managers, log)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}
	cancel()

	if err := sink.CloseAll(sinks...); err != nil {
		log.WithError(err).Warn("failed to close sinks")
	}
	log.Info("connector stopped")
	os.Exit(exitCode)
}

func countSubscriptions(shards *config.Shards) int {
	n := 0
	for _, s := range shards.Shards {
		n += len(s.Subscriptions)
	}
	return n
}

// startShard opens one connection carrying the shard's subscriptions.
func startShard(ctx context.Context, cfg *config.Config, shard config.Shard, log *logger.Log) (*stream.Manager, error) {
	ex, err := models.ParseExchange(shard.ExchangeName(cfg))
	if err != nil {
		return nil, err
	}
	venue, err := exchanges.ForMarket(ex, shard.MarketName(cfg), translator.Options{
		IncludeRaw:  cfg.Exchange.IncludeRaw,
		UserAddress: cfg.Auth.UserAddress,
		Log:         log,
	})
	if err != nil {
		return nil, err
	}

	reqs := make([]models.SubscribeRequest, 0, len(shard.Subscriptions))
	channels := make([]models.Channel, 0, len(shard.Subscriptions))
	for i, sc := range shard.Subscriptions {
		req, err := sc.Request(venue.Exchange)
		if err != nil {
			return nil, fmt.Errorf("shard %s subscriptions[%d]: %w", shard.Name, i, err)
		}
		reqs = append(reqs, req)
		channels = append(channels, req.Channel)
	}

	uri := shard.Endpoint(cfg)
	if uri == "" {
		if uri, err = venue.URL(channels); err != nil {
			return nil, err
		}
	}

	tc := transport.Config{
		BaseDelay:        cfg.Transport.BaseDelay,
		MaxDelay:         cfg.Transport.MaxDelay,
		Jitter:           cfg.Transport.Jitter,
		MaxAttempts:      cfg.Transport.MaxAttempts,
		StaleTimeout:     cfg.Transport.StaleTimeout,
		PingInterval:     cfg.Transport.PingInterval,
		Ping:             venue.Keepalive.Message,
		HandshakeTimeout: cfg.Transport.HandshakeTimeout,
		ReadLimit:        cfg.Transport.ReadLimit,
		LocalIP:          shard.LocalIP,
	}
	if tc.PingInterval == 0 {
		tc.PingInterval = venue.Keepalive.Interval
	}

	m, err := stream.New(stream.Options{
		Translator:    venue.Translator,
		Transport:     transport.NewWebSocket(tc, log),
		Limiter:       venue.Limiter(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond),
		Auth:          authProvider(cfg, shard, venue.Exchange),
		QueueCapacity: cfg.Stream.QueueCapacity,
		Log:           log,
	})
	if err != nil {
		return nil, err
	}

	log.WithComponent("main").WithFields(logger.Fields{
		"shard":         shard.Name,
		"exchange":      string(venue.Exchange),
		"url":           uri,
		"local_ip":      shard.LocalIP,
		"subscriptions": len(reqs),
	}).Info("starting shard")

	if err := m.Start(ctx, uri); err != nil {
		return nil, err
	}
	for _, req := range reqs {
		if err := m.Subscribe(ctx, req); err != nil {
			_ = m.Stop()
			return nil, fmt.Errorf("subscribe %s: %w", req.Key(), err)
		}
	}
	return m, nil
}

func authProvider(cfg *config.Config, shard config.Shard, ex models.Exchange) auth.Provider {
	switch login := shard.Login(cfg); {
	case login != "":
		return auth.Static{Login: transport.TextMessage(login)}
	case ex == models.ExchangeHyperliquid && cfg.Auth.UserAddress != "":
		return auth.Hyperliquid{UserAddress: cfg.Auth.UserAddress}
	}
	return auth.NoAuth{}
}

func buildSinks(ctx context.Context, cfg *config.Config, log *logger.Log) ([]sink.Sink, error) {
	var sinks []sink.Sink
	sc := cfg.Sink

	if sc.JSONL.Enabled {
		sinks = append(sinks, sink.OpenJSONL(sc.JSONL.Output, cfg.Logging.MaxAge))
	}
	if sc.Kafka.Enabled {
		k, err := sink.NewKafka(sc.Kafka.Brokers, sc.Kafka.Topic, log)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, k)
	}
	if sc.Redis.Enabled {
		r, err := sink.NewRedis(ctx, sink.RedisOptions{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			TTL:      sc.Redis.TTL,
		})
		if err != nil {
			_ = sink.CloseAll(sinks...)
			return nil, err
		}
		sinks = append(sinks, r)
	}
	if sc.S3.Enabled {
		a, err := sink.NewArchive(ctx, sink.ArchiveOptions{
			Bucket:          sc.S3.Bucket,
			Region:          sc.S3.Region,
			Endpoint:        sc.S3.Endpoint,
			PathStyle:       sc.S3.PathStyle,
			Prefix:          sc.S3.Prefix,
			AccessKeyID:     sc.S3.AccessKeyID,
			SecretAccessKey: sc.S3.SecretAccessKey,
			FlushInterval:   sc.S3.FlushInterval,
			MaxBuffer:       sc.S3.MaxBuffer,
		}, log)
		if err == nil {
			err = a.Start(ctx)
		}
		if err != nil {
			_ = sink.CloseAll(sinks...)
			return nil, err
		}
		sinks = append(sinks, a)
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping archive")
	}
	return sinks, nil
}

func stopAll(managers []*stream.Manager, log *logger.Log) {
	for _, m := range managers {
		if err := m.Stop(); err != nil {
			log.WithError(err).Warn("failed to stop stream")
		}
	}
}
