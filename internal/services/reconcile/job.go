package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/PriceDrop/internal/broker/messages"
	"github.com/BearBump/PriceDrop/internal/metrics"
	"github.com/BearBump/PriceDrop/internal/models"
	"github.com/BearBump/PriceDrop/internal/notify"
	"github.com/BearBump/PriceDrop/internal/platform"
	"github.com/BearBump/PriceDrop/internal/pricing"
	"github.com/BearBump/PriceDrop/internal/scraper"
	"github.com/pkg/errors"
)

const JobName = "check_prices"

var ErrAlreadyRunning = errors.New("price check already running")

type Repository interface {
	ListDueProducts(ctx context.Context, limit int) ([]*models.Product, error)
	ApplyPriceChange(ctx context.Context, ch models.PriceChange) error
	TouchProduct(ctx context.Context, productID uint64, inStock bool, checkedAt time.Time) error
	ListActiveSubscribers(ctx context.Context, productID uint64) ([]*models.Subscriber, error)
	RecordAlert(ctx context.Context, n models.Notification) error
	RecordScrapeError(ctx context.Context, e models.ErrorLog) error
	CountRecentErrors(ctx context.Context, productID uint64, since time.Time) (int, error)
	DeactivateProduct(ctx context.Context, productID uint64) error
	InsertJobRun(ctx context.Context, r models.JobRun) error
}

type Dispatcher interface {
	SendPriceDrop(ctx context.Context, in notify.PriceDrop) error
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error)
}

type RateLimiter interface {
	Wait(ctx context.Context, key string, limit int64, window time.Duration) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Settings struct {
	BatchSize          int
	ItemDelay          time.Duration
	MaxDuration        time.Duration
	ErrorThreshold     int
	ErrorWindow        time.Duration
	RateLimitPerMinute int64
}

func DefaultSettings() Settings {
	return Settings{
		BatchSize:          100,
		ItemDelay:          time.Second,
		MaxDuration:        300 * time.Second,
		ErrorThreshold:     5,
		ErrorWindow:        24 * time.Hour,
		RateLimitPerMinute: 30,
	}
}

type PriceDrop struct {
	ProductID uint64  `json:"product_id"`
	Name      string  `json:"name"`
	URL       string  `json:"url"`
	OldPrice  float64 `json:"old_price"`
	NewPrice  float64 `json:"new_price"`
	Savings   float64 `json:"savings"`
	Alerts    int     `json:"alerts"`
}

type Summary struct {
	Status      string        `json:"status"`
	Selected    int           `json:"selected"`
	Checked     int           `json:"checked"`
	Updated     int           `json:"updated"`
	AlertsSent  int           `json:"alerts_sent"`
	Errors      int           `json:"errors"`
	Deactivated int           `json:"deactivated"`
	Skipped     int           `json:"skipped"`
	PriceDrops  []PriceDrop   `json:"price_drops"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"-"`
	DurationMS  int64         `json:"duration_ms"`
}

type Job struct {
	repo       Repository
	scraper    scraper.Scraper
	dispatcher Dispatcher
	locker     Locker
	rl         RateLimiter
	producer   Producer
	topic      string

	settings Settings

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	running   atomic.Bool
	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastRunUnixNano     atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalRuns           atomic.Int64
	totalChecked        atomic.Int64
	totalUpdated        atomic.Int64
	totalAlerts         atomic.Int64
	totalErrors         atomic.Int64
	lastMu              sync.Mutex
	lastStatus          string
	lastError           string
}

func New(repo Repository, s scraper.Scraper, d Dispatcher) *Job {
	return &Job{
		repo:              repo,
		scraper:           s,
		dispatcher:        d,
		settings:          DefaultSettings(),
		now:               time.Now,
		sleep:             sleepCtx,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (j *Job) WithSettings(s Settings) *Job {
	if s.BatchSize > 0 {
		j.settings.BatchSize = s.BatchSize
	}
	if s.ItemDelay > 0 {
		j.settings.ItemDelay = s.ItemDelay
	}
	if s.MaxDuration > 0 {
		j.settings.MaxDuration = s.MaxDuration
	}
	if s.ErrorThreshold > 0 {
		j.settings.ErrorThreshold = s.ErrorThreshold
	}
	if s.ErrorWindow > 0 {
		j.settings.ErrorWindow = s.ErrorWindow
	}
	if s.RateLimitPerMinute > 0 {
		j.settings.RateLimitPerMinute = s.RateLimitPerMinute
	}
	return j
}

func (j *Job) WithLocker(l Locker) *Job {
	j.locker = l
	return j
}

func (j *Job) WithRateLimiter(rl RateLimiter) *Job {
	j.rl = rl
	return j
}

func (j *Job) WithProducer(p Producer, topic string) *Job {
	j.producer = p
	j.topic = topic
	return j
}

func (j *Job) Settings() Settings { return j.settings }

// Run executes one reconciliation pass and persists its JobRun.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	if !j.running.CompareAndSwap(false, true) {
		return Summary{}, ErrAlreadyRunning
	}
	defer j.running.Store(false)

	var lockErr error
	if j.locker != nil {
		release, ok, err := j.locker.Acquire(ctx, "lock:job:"+JobName, j.settings.MaxDuration+time.Minute)
		switch {
		case err != nil:
			// Без лока второй инстанс мог бы разослать те же алерты, прогон не выполняем.
			lockErr = errors.Wrap(err, "acquire job lock")
		case !ok:
			return Summary{}, ErrAlreadyRunning
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					slog.Error("release job lock", "error", err.Error())
				}
			}()
		}
	}

	start := j.now()
	j.lastRunUnixNano.Store(start.UTC().UnixNano())

	runCtx, cancel := context.WithTimeout(ctx, j.settings.MaxDuration)
	defer cancel()

	var (
		sum    Summary
		runErr error
	)
	if lockErr != nil {
		sum, runErr = Summary{PriceDrops: []PriceDrop{}}, lockErr
	} else {
		sum, runErr = j.runBatch(runCtx)
	}
	sum.StartedAt = start.UTC()
	sum.Duration = j.now().Sub(start)
	sum.DurationMS = sum.Duration.Milliseconds()

	rec := models.JobRun{
		JobName:         JobName,
		Status:          sum.Status,
		ProductsChecked: sum.Checked,
		ProductsUpdated: sum.Updated,
		AlertsSent:      sum.AlertsSent,
		Errors:          sum.Errors,
		Duration:        sum.Duration,
		CreatedAt:       j.now().UTC(),
	}
	if runErr != nil {
		sum.Status = models.JobRunStatusFailed
		rec.Status = models.JobRunStatusFailed
		rec.ErrorMessage = runErr.Error()
	}

	// the run deadline may be spent; the audit row must still land
	if err := j.repo.InsertJobRun(context.WithoutCancel(ctx), rec); err != nil {
		slog.Error("persist job run", "status", rec.Status, "error", err.Error())
		if runErr == nil {
			runErr = errors.Wrap(err, "persist job run")
			sum.Status = models.JobRunStatusFailed
		}
	}

	j.observe(sum, runErr)
	slog.Info("price check finished",
		"status", sum.Status,
		"checked", sum.Checked,
		"updated", sum.Updated,
		"alerts_sent", sum.AlertsSent,
		"errors", sum.Errors,
		"deactivated", sum.Deactivated,
		"skipped", sum.Skipped,
		"duration_ms", sum.DurationMS,
	)
	return sum, runErr
}

func (j *Job) runBatch(ctx context.Context) (Summary, error) {
	sum := Summary{Status: models.JobRunStatusSuccess, PriceDrops: []PriceDrop{}}

	items, err := j.repo.ListDueProducts(ctx, j.settings.BatchSize)
	if err != nil {
		return sum, errors.Wrap(err, "select due products")
	}
	sum.Selected = len(items)

	for i, p := range items {
		if ctx.Err() != nil {
			sum.Status = models.JobRunStatusPartial
			sum.Skipped = len(items) - i
			break
		}
		if err := j.processOne(ctx, p, &sum); err != nil {
			// only the run deadline escapes processOne
			sum.Status = models.JobRunStatusPartial
			sum.Skipped = len(items) - i
			break
		}
		if err := j.sleep(ctx, j.settings.ItemDelay); err != nil && i < len(items)-1 {
			sum.Status = models.JobRunStatusPartial
			sum.Skipped = len(items) - i - 1
			break
		}
	}
	return sum, nil
}

func (j *Job) processOne(ctx context.Context, p *models.Product, sum *Summary) error {
	tag := platform.Detect(p.URL)
	if j.rl != nil && j.settings.RateLimitPerMinute > 0 {
		if err := j.rl.Wait(ctx, "rl:scrape:"+string(tag), j.settings.RateLimitPerMinute, time.Minute); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("scrape rate limiter unavailable", "platform", tag, "error", err.Error())
		}
	}

	started := time.Now()
	res, err := j.scraper.Scrape(ctx, p.URL)
	metrics.ObserveScrape(string(tag), err, time.Since(started))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		j.recordFailure(ctx, p, err, sum)
		return nil
	}
	sum.Checked++
	checkedAt := j.now().UTC()

	if pricing.SameCents(res.Price, p.CurrentPrice) {
		if err := j.repo.TouchProduct(ctx, p.ID, res.InStock, checkedAt); err != nil {
			j.recordFailure(ctx, p, err, sum)
		}
		return nil
	}

	name := res.Title
	if name == "" || name == p.URL {
		name = p.Name
	}
	err = j.repo.ApplyPriceChange(ctx, models.PriceChange{
		ProductID: p.ID,
		Name:      name,
		Price:     res.Price,
		Currency:  res.Currency,
		ImageURL:  res.Image,
		InStock:   res.InStock,
		CheckedAt: checkedAt,
	})
	if err != nil {
		j.recordFailure(ctx, p, err, sum)
		return nil
	}
	sum.Updated++

	isDrop := p.CurrentPrice > 0 && res.Price < p.CurrentPrice
	j.publish(ctx, messages.PriceChanged{
		ProductID: p.ID,
		URL:       p.URL,
		Platform:  string(tag),
		Name:      name,
		OldPrice:  p.CurrentPrice,
		NewPrice:  res.Price,
		Currency:  res.Currency,
		InStock:   res.InStock,
		IsDrop:    isDrop,
		CheckedAt: checkedAt,
	})

	if isDrop {
		image := res.Image
		if image == "" {
			image = p.ImageURL
		}
		j.alertSubscribers(ctx, p, name, image, res.Price, sum)
	}
	return nil
}

func (j *Job) alertSubscribers(ctx context.Context, p *models.Product, name, image string, newPrice float64, sum *Summary) {
	metrics.PriceDropsTotal.Inc()
	drop := PriceDrop{
		ProductID: p.ID,
		Name:      name,
		URL:       p.URL,
		OldPrice:  p.CurrentPrice,
		NewPrice:  newPrice,
		Savings:   pricing.Savings(p.CurrentPrice, newPrice),
	}
	defer func() { sum.PriceDrops = append(sum.PriceDrops, drop) }()

	subs, err := j.repo.ListActiveSubscribers(ctx, p.ID)
	if err != nil {
		j.recordFailure(ctx, p, err, sum)
		return
	}

	for _, sub := range subs {
		if !sub.WantsAlert(newPrice) {
			continue
		}
		err := j.dispatcher.SendPriceDrop(ctx, notify.PriceDrop{
			To:          sub.Email,
			Name:        sub.FullName,
			ProductName: name,
			ProductURL:  p.URL,
			ImageURL:    image,
			OldPrice:    p.CurrentPrice,
			NewPrice:    newPrice,
		})
		if err != nil {
			kind := "unknown"
			var de *notify.DispatchError
			if errors.As(err, &de) {
				kind = string(de.Kind)
			}
			metrics.DispatchFailedTotal.WithLabelValues(kind).Inc()
			slog.Warn("price drop email failed", "product_id", p.ID, "user_id", sub.UserID.String(), "error", err.Error())
			continue
		}
		sum.AlertsSent++
		drop.Alerts++

		err = j.repo.RecordAlert(ctx, models.Notification{
			UserID:    sub.UserID,
			Type:      models.NotificationTypePriceDrop,
			Title:     "Price Drop Alert!",
			Message:   fmt.Sprintf("%s dropped to $%s", name, pricing.Format(newPrice)),
			ProductID: p.ID,
			OldPrice:  p.CurrentPrice,
			NewPrice:  newPrice,
			CreatedAt: j.now().UTC(),
		})
		if err != nil {
			slog.Error("record alert", "product_id", p.ID, "user_id", sub.UserID.String(), "error", err.Error())
		}
	}
}

// recordFailure appends an ErrorLog and deactivates the product once it has
// failed ErrorThreshold times inside ErrorWindow.
func (j *Job) recordFailure(ctx context.Context, p *models.Product, cause error, sum *Summary) {
	sum.Errors++
	slog.Warn("price check failed", "product_id", p.ID, "url", p.URL, "error", cause.Error())

	now := j.now().UTC()
	err := j.repo.RecordScrapeError(ctx, models.ErrorLog{
		Type:         models.ErrorTypePriceCheckFailed,
		ProductID:    p.ID,
		ErrorMessage: cause.Error(),
		CreatedAt:    now,
	})
	if err != nil {
		slog.Error("record error log", "product_id", p.ID, "error", err.Error())
		return
	}

	n, err := j.repo.CountRecentErrors(ctx, p.ID, now.Add(-j.settings.ErrorWindow))
	if err != nil {
		slog.Error("count error logs", "product_id", p.ID, "error", err.Error())
		return
	}
	if n < j.settings.ErrorThreshold {
		return
	}
	if err := j.repo.DeactivateProduct(ctx, p.ID); err != nil {
		slog.Error("deactivate product", "product_id", p.ID, "error", err.Error())
		return
	}
	sum.Deactivated++
	slog.Warn("product deactivated", "product_id", p.ID, "url", p.URL, "recent_errors", n)
}

func (j *Job) publish(ctx context.Context, msg messages.PriceChanged) {
	if j.producer == nil || j.topic == "" {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal price changed", "product_id", msg.ProductID, "error", err.Error())
		return
	}
	key := []byte(strconv.FormatUint(msg.ProductID, 10))
	if err := j.producer.Publish(ctx, j.topic, key, b); err != nil {
		slog.Warn("publish price changed", "product_id", msg.ProductID, "error", err.Error())
	}
}

func (j *Job) observe(sum Summary, err error) {
	j.totalRuns.Add(1)
	j.totalChecked.Add(int64(sum.Checked))
	j.totalUpdated.Add(int64(sum.Updated))
	j.totalAlerts.Add(int64(sum.AlertsSent))
	j.totalErrors.Add(int64(sum.Errors))
	j.lastMu.Lock()
	j.lastStatus = sum.Status
	if err != nil {
		j.lastError = err.Error()
	}
	j.lastMu.Unlock()

	metrics.JobRunsTotal.WithLabelValues(sum.Status).Inc()
	metrics.JobRunDuration.Observe(sum.Duration.Seconds())
	metrics.ProductsCheckedTotal.Add(float64(sum.Checked))
	metrics.ProductsUpdatedTotal.Add(float64(sum.Updated))
	metrics.AlertsSentTotal.Add(float64(sum.AlertsSent))
	metrics.CheckErrorsTotal.Add(float64(sum.Errors))
	metrics.ProductsDeactivatedTotal.Add(float64(sum.Deactivated))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
