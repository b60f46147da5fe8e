package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/BearBump/PriceDrop/config"
	"github.com/BearBump/PriceDrop/internal/metrics"
	"github.com/BearBump/PriceDrop/internal/services/digest"
	"github.com/BearBump/PriceDrop/internal/services/reconcile"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

type priceJob interface {
	Run(ctx context.Context) (reconcile.Summary, error)
	Trigger()
	Stats() reconcile.Stats
	Settings() reconcile.Settings
}

type digestRunner interface {
	Run(ctx context.Context, since time.Time) (digest.Summary, error)
}

type workerHTTPOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	job            priceJob
	digest         digestRunner
	digestLookback time.Duration
	cronSecret     string
	scheduled      bool
	cfg            *config.Config
	now            func() time.Time
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}
	if opts.swaggerPath == "" {
		return fmt.Errorf("worker swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("worker swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: newWorkerRouter(opts)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("worker HTTP listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}

func newWorkerRouter(opts workerHTTPOpts) chi.Router {
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.digestLookback <= 0 {
		opts.digestLookback = 7 * 24 * time.Hour
	}

	r := chi.NewRouter()
	r.Use(metrics.HTTPMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.job == nil {
			_, _ = w.Write([]byte(`{"error":"job not wired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(opts.job.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.job == nil {
			_, _ = w.Write([]byte(`{"error":"job not wired"}`))
			return
		}
		// Only operational settings, never secrets.
		s := opts.job.Settings()
		out := map[string]any{
			"batchSize":          s.BatchSize,
			"itemDelayMillis":    s.ItemDelay.Milliseconds(),
			"maxDurationSeconds": int(s.MaxDuration.Seconds()),
			"errorThreshold":     s.ErrorThreshold,
			"errorWindowHours":   int(s.ErrorWindow.Hours()),
			"rateLimitPerMinute": s.RateLimitPerMinute,
		}
		if opts.cfg != nil {
			out["scheduleIntervalSeconds"] = opts.cfg.PriceDrop.JobScheduleIntervalSeconds
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Post("/trigger", requireCronSecret(opts.cronSecret, func(w http.ResponseWriter, r *http.Request) {
		if opts.job == nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "job not wired"})
			return
		}
		// Trigger только будит цикл Schedule, без него сигнал никто не прочитает.
		if !opts.scheduled {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "schedule not running, use /cron/check-prices"})
			return
		}
		opts.job.Trigger()
		writeJSON(w, http.StatusAccepted, map[string]any{"triggered": true})
	}))

	checkPrices := requireCronSecret(opts.cronSecret, func(w http.ResponseWriter, r *http.Request) {
		if opts.job == nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "job not wired"})
			return
		}
		// Отключение клиента не должно обрывать прогон, у job свой дедлайн.
		sum, err := opts.job.Run(context.WithoutCancel(r.Context()))
		switch {
		case errors.Is(err, reconcile.ErrAlreadyRunning):
			writeJSON(w, http.StatusConflict, map[string]any{"success": false, "error": "Job already running"})
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": sum, "duration_ms": sum.DurationMS})
		}
	})
	r.Get("/cron/check-prices", checkPrices)
	r.Post("/cron/check-prices", checkPrices)

	weeklyDigest := requireCronSecret(opts.cronSecret, func(w http.ResponseWriter, r *http.Request) {
		if opts.digest == nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "digest not wired"})
			return
		}
		since := opts.now().Add(-opts.digestLookback)
		sum, err := opts.digest.Run(context.WithoutCancel(r.Context()), since)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": sum, "duration_ms": sum.DurationMS})
	})
	r.Get("/cron/weekly-digest", weeklyDigest)
	r.Post("/cron/weekly-digest", weeklyDigest)

	if opts.swaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, r, opts.swaggerPath)
		})
		swaggerURL := "/swagger.json"
		if fi, err := os.Stat(opts.swaggerPath); err == nil {
			swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
		}
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
	}

	return r
}

// requireCronSecret rejects requests without "Authorization: Bearer <secret>".
// An empty secret rejects everything.
func requireCronSecret(secret string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if secret == "" || !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			slog.Warn("cron call rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
