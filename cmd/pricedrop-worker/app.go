package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/BearBump/PriceDrop/config"
	"github.com/BearBump/PriceDrop/internal/broker/kafka"
	"github.com/BearBump/PriceDrop/internal/cache/rediscache"
	"github.com/BearBump/PriceDrop/internal/notify"
	"github.com/BearBump/PriceDrop/internal/notify/sendgrid"
	"github.com/BearBump/PriceDrop/internal/scraper"
	"github.com/BearBump/PriceDrop/internal/services/digest"
	"github.com/BearBump/PriceDrop/internal/services/reconcile"
	"github.com/BearBump/PriceDrop/internal/storage/pgstore"
)

type workerRepository interface {
	reconcile.Repository
	digest.Repository
}

type workerFactories struct {
	newStorage     func(cfg *config.Config) (repo workerRepository, closeFn func(), err error)
	newProducer    func(cfg *config.Config) reconcile.Producer
	newRateLimiter func(cfg *config.Config) reconcile.RateLimiter
	newLocker      func(cfg *config.Config) reconcile.Locker
	newTransport   func(cfg *config.Config) notify.Transport
	newScraper     func(cfg *config.Config) scraper.Scraper
}

func postgresConnString(cfg *config.Config) string {
	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
}

func redisAddr(cfg *config.Config) string {
	return fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerRepository, func(), error) {
			st, err := pgstore.New(postgresConnString(cfg))
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) reconcile.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) reconcile.RateLimiter {
			return rediscache.NewRateLimiter(redisAddr(cfg))
		},
		newLocker: func(cfg *config.Config) reconcile.Locker {
			return rediscache.NewLocker(redisAddr(cfg))
		},
		newTransport: func(cfg *config.Config) notify.Transport {
			// Без ключа письма только пишутся в лог.
			if cfg.Email.SendGridAPIKey == "" {
				return notify.LogTransport{}
			}
			return sendgrid.New(cfg.Email.SendGridBaseURL, cfg.Email.SendGridAPIKey, cfg.Email.FromEmail, cfg.Email.FromName)
		},
		newScraper: func(cfg *config.Config) scraper.Scraper {
			timeout := time.Duration(cfg.PriceDrop.ScrapeTimeoutSeconds) * time.Second
			if timeout <= 0 {
				timeout = scraper.DefaultTimeout
			}
			policy := scraper.DefaultRetryPolicy()
			if cfg.PriceDrop.ScrapeRetryAttempts > 0 {
				policy.Attempts = cfg.PriceDrop.ScrapeRetryAttempts
			}
			return scraper.NewRetrying(scraper.NewRegistry(timeout), policy)
		},
	}
}

type worker struct {
	job    *reconcile.Job
	digest *digest.Sender

	scheduleInterval time.Duration
	digestLookback   time.Duration
}

func jobSettings(cfg *config.Config) reconcile.Settings {
	pd := cfg.PriceDrop
	return reconcile.Settings{
		BatchSize:          pd.JobBatchSize,
		ItemDelay:          time.Duration(pd.JobItemDelayMillis) * time.Millisecond,
		MaxDuration:        time.Duration(pd.JobMaxDurationSeconds) * time.Second,
		ErrorThreshold:     pd.JobErrorThreshold,
		ErrorWindow:        time.Duration(pd.JobErrorWindowHours) * time.Hour,
		RateLimitPerMinute: int64(pd.ScrapeRateLimitPerMinute),
	}
}

func buildWorker(cfg *config.Config, f workerFactories) (*worker, func(), error) {
	topic := cfg.Kafka.PriceChangedTopicName
	if topic == "" {
		topic = "price.changed"
	}
	lookback := time.Duration(cfg.PriceDrop.DigestLookbackHours) * time.Hour
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}

	repo, closeStorage, err := f.newStorage(cfg)
	if err != nil {
		return nil, nil, err
	}

	var closers []io.Closer
	track := func(v any) {
		if c, ok := v.(io.Closer); ok {
			closers = append(closers, c)
		}
	}
	closeFn := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				slog.Warn("close worker dependency", "error", err.Error())
			}
		}
		if closeStorage != nil {
			closeStorage()
		}
	}

	dispatcher := notify.New(f.newTransport(cfg), cfg.Email.AppURL)

	producer := f.newProducer(cfg)
	track(producer)
	job := reconcile.New(repo, f.newScraper(cfg), dispatcher).
		WithSettings(jobSettings(cfg)).
		WithProducer(producer, topic)
	if l := f.newLocker(cfg); l != nil {
		track(l)
		job = job.WithLocker(l)
	}
	if rl := f.newRateLimiter(cfg); rl != nil {
		track(rl)
		job = job.WithRateLimiter(rl)
	}

	return &worker{
		job:              job,
		digest:           digest.New(repo, dispatcher),
		scheduleInterval: time.Duration(cfg.PriceDrop.JobScheduleIntervalSeconds) * time.Second,
		digestLookback:   lookback,
	}, closeFn, nil
}

// RunPriceDropWorker serves the cron endpoints and, when an interval is
// configured, also runs the job on an internal schedule.
func RunPriceDropWorker(ctx context.Context, cfg *config.Config, f workerFactories, httpOpts workerHTTPOpts) error {
	w, closeFn, err := buildWorker(cfg, f)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := ctx.Err(); err != nil {
		return err
	}

	httpOpts.job = w.job
	httpOpts.digest = w.digest
	httpOpts.digestLookback = w.digestLookback
	httpOpts.cfg = cfg
	httpOpts.cronSecret = cfg.PriceDrop.CronSecret
	if httpOpts.httpAddr == "" {
		httpOpts.httpAddr = cfg.PriceDrop.WorkerHTTPAddr
	}

	if w.scheduleInterval > 0 {
		httpOpts.scheduled = true
		go func() {
			slog.Info("price check schedule started", "interval", w.scheduleInterval.String())
			_ = w.job.Schedule(ctx, w.scheduleInterval)
		}()
	}

	return runWorkerHTTPServer(ctx, httpOpts)
}
