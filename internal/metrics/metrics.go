package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricedrop_job_runs_total",
		Help: "Reconciliation runs by outcome",
	}, []string{"status"})

	JobRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricedrop_job_run_duration_seconds",
		Help:    "Wall-clock duration of a reconciliation run",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 240, 300, 600},
	})

	ProductsCheckedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricedrop_products_checked_total",
		Help: "Products scraped successfully",
	})

	ProductsUpdatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricedrop_products_updated_total",
		Help: "Products whose price changed",
	})

	PriceDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricedrop_price_drops_total",
		Help: "Detected price drops",
	})

	AlertsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricedrop_alerts_sent_total",
		Help: "Price-drop emails handed to the transport",
	})

	DispatchFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricedrop_dispatch_failed_total",
		Help: "Notification dispatch failures",
	}, []string{"kind"})

	CheckErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricedrop_check_errors_total",
		Help: "Per-item price check failures",
	})

	ProductsDeactivatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricedrop_products_deactivated_total",
		Help: "Products deactivated after repeated failures",
	})

	ScrapeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pricedrop_scrape_duration_seconds",
		Help:    "Latency of a product scrape including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"platform", "outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

func ObserveScrape(platform string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ScrapeDuration.WithLabelValues(platform, outcome).Observe(d.Seconds())
}

// HTTPMiddleware records request metrics labelled by chi route pattern.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := []string{r.Method, path, strconv.Itoa(status)}
		HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(labels...).Inc()
	})
}
