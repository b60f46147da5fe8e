package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/PriceDrop/config"
	"github.com/BearBump/PriceDrop/internal/broker/kafka"
	"github.com/BearBump/PriceDrop/internal/cache/rediscache"
	"github.com/BearBump/PriceDrop/internal/notify"
	"github.com/BearBump/PriceDrop/internal/notify/sendgrid"
	"github.com/BearBump/PriceDrop/internal/scraper"
	"github.com/BearBump/PriceDrop/internal/services/products"
	"github.com/BearBump/PriceDrop/internal/storage/pgstore"
)

type priceDropAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     apiOpts
	svc      *products.Service
	consumer *kafka.Consumer
	cache    *rediscache.RedisCache
	closeDB  func()
}

func mustBootstrapPriceDropAPI() *priceDropAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.PriceDrop.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.PriceDrop.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "pricedrop-api"
	}
	topic := cfg.Kafka.PriceChangedTopicName
	if topic == "" {
		topic = "price.changed"
	}
	cacheTTL := time.Duration(cfg.PriceDrop.CurrentProductTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	scrapeTimeout := time.Duration(cfg.PriceDrop.ScrapeTimeoutSeconds) * time.Second
	if scrapeTimeout <= 0 {
		scrapeTimeout = scraper.DefaultTimeout
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	var transport notify.Transport = notify.LogTransport{}
	if cfg.Email.SendGridAPIKey != "" {
		transport = sendgrid.New(cfg.Email.SendGridBaseURL, cfg.Email.SendGridAPIKey, cfg.Email.FromEmail, cfg.Email.FromName)
	}
	dispatcher := notify.New(transport, cfg.Email.AppURL)

	// Для трекинга достаточно одной попытки, пользователь ждёт ответа.
	sc := scraper.NewRetrying(scraper.NewRegistry(scrapeTimeout), scraper.RetryPolicy{Attempts: 1})

	svc := products.New(st, sc, dispatcher, rc, cacheTTL)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &priceDropAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: apiOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		svc:      svc,
		consumer: consumer,
		cache:    rc,
		closeDB:  st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgstore.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgstore.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *priceDropAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *priceDropAPIApp) Run() error {
	return runPriceDropAPI(a.ctx, a.opts, a.svc, a.consumer)
}
