package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	productsapi "github.com/BearBump/PriceDrop/internal/api/products_api"
	"github.com/BearBump/PriceDrop/internal/broker/kafka"
	"github.com/BearBump/PriceDrop/internal/broker/messages"
	"github.com/BearBump/PriceDrop/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

type apiOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type productService interface {
	productsapi.Service
	ApplyPriceChanged(ctx context.Context, msg messages.PriceChanged) error
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler kafka.Handler) error
}

func runPriceDropAPI(ctx context.Context, opts apiOpts, svc productService, consumer kafkaConsumer) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, lis, newRouter(svc, opts.swaggerPath))
	}()

	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		if err := consumer.Consume(ctx, priceChangedHandler(ctx, svc)); err != nil && ctx.Err() == nil {
			slog.Error("kafka consumer stopped", "error", err.Error())
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}

// priceChangedHandler refreshes the cached product for each event.
// Undecodable events are poison and get skipped.
func priceChangedHandler(ctx context.Context, svc productService) kafka.Handler {
	return func(_key, value []byte) error {
		var m messages.PriceChanged
		if err := json.Unmarshal(value, &m); err != nil {
			return errors.Wrap(kafka.ErrPoison, err.Error())
		}
		if m.ProductID == 0 {
			return errors.Wrap(kafka.ErrPoison, "product_id is required")
		}
		return svc.ApplyPriceChanged(ctx, m)
	}
}

func newRouter(svc productService, swaggerPath string) chi.Router {
	r := chi.NewRouter()
	r.Use(metrics.HTTPMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))

	r.Mount("/api/v1", productsapi.New(svc).Routes())
	return r
}

func runHTTPServer(ctx context.Context, lis net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP API listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}
