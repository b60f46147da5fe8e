package reconcile

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/PriceDrop/internal/models"
	"github.com/BearBump/PriceDrop/internal/notify"
	"github.com/BearBump/PriceDrop/internal/scraper"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type memRepo struct {
	mu sync.Mutex

	products      map[uint64]*models.Product
	history       []models.PriceObservation
	subscribers   map[uint64][]*models.Subscriber
	notifications []models.Notification
	alertCounts   map[uuid.UUID]int
	errorLogs     []models.ErrorLog
	jobRuns       []models.JobRun

	listErr      error
	applyErr     error
	insertRunErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		products:    map[uint64]*models.Product{},
		subscribers: map[uint64][]*models.Subscriber{},
		alertCounts: map[uuid.UUID]int{},
	}
}

func (r *memRepo) addProduct(p models.Product) {
	p.IsActive = true
	r.products[p.ID] = &p
}

func (r *memRepo) addSubscriber(productID uint64, s models.Subscriber) uuid.UUID {
	s.UserID = uuid.New()
	s.ProductID = productID
	s.IsActive = true
	r.subscribers[productID] = append(r.subscribers[productID], &s)
	return s.UserID
}

func (r *memRepo) product(id uint64) models.Product {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.products[id]
}

func (r *memRepo) historyFor(id uint64) []models.PriceObservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PriceObservation
	for _, o := range r.history {
		if o.ProductID == id {
			out = append(out, o)
		}
	}
	return out
}

func (r *memRepo) ListDueProducts(ctx context.Context, limit int) ([]*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*models.Product
	for _, p := range r.products {
		if p.IsActive {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastChecked, out[j].LastChecked
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) ApplyPriceChange(ctx context.Context, ch models.PriceChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.applyErr != nil {
		return r.applyErr
	}
	p, ok := r.products[ch.ProductID]
	if !ok {
		return models.ErrNotFound
	}
	p.CurrentPrice = ch.Price
	p.InStock = ch.InStock
	at := ch.CheckedAt
	p.LastChecked = &at
	if ch.Name != "" {
		p.Name = ch.Name
	}
	if ch.ImageURL != "" {
		p.ImageURL = ch.ImageURL
	}
	r.history = append(r.history, models.PriceObservation{
		ID: uint64(len(r.history) + 1), ProductID: p.ID, Price: ch.Price, Currency: ch.Currency, InStock: ch.InStock, RecordedAt: at,
	})
	return nil
}

func (r *memRepo) TouchProduct(ctx context.Context, productID uint64, inStock bool, checkedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.products[productID]
	p.InStock = inStock
	p.LastChecked = &checkedAt
	return nil
}

func (r *memRepo) ListActiveSubscribers(ctx context.Context, productID uint64) ([]*models.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribers[productID], nil
}

func (r *memRepo) RecordAlert(ctx context.Context, n models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
	r.alertCounts[n.UserID]++
	return nil
}

func (r *memRepo) RecordScrapeError(ctx context.Context, e models.ErrorLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorLogs = append(r.errorLogs, e)
	return nil
}

func (r *memRepo) CountRecentErrors(ctx context.Context, productID uint64, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.errorLogs {
		if e.ProductID == productID && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) DeactivateProduct(ctx context.Context, productID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[productID].IsActive = false
	return nil
}

func (r *memRepo) InsertJobRun(ctx context.Context, run models.JobRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertRunErr != nil {
		return r.insertRunErr
	}
	r.jobRuns = append(r.jobRuns, run)
	return nil
}

type stubScraper struct {
	mu      sync.Mutex
	results map[string]scraper.Product
	errs    map[string]error
	calls   map[string]int
}

func newStubScraper() *stubScraper {
	return &stubScraper{
		results: map[string]scraper.Product{},
		errs:    map[string]error{},
		calls:   map[string]int{},
	}
}

func (s *stubScraper) set(url string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[url] = scraper.Product{Title: "Item " + url, Price: price, Currency: "USD", InStock: true}
}

func (s *stubScraper) Scrape(ctx context.Context, url string) (scraper.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[url]++
	if err, ok := s.errs[url]; ok {
		return scraper.Product{}, err
	}
	p, ok := s.results[url]
	if !ok {
		return scraper.Product{}, &scraper.Error{URL: url, Err: scraper.ErrPriceNotFound}
	}
	return p, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	sent   []notify.PriceDrop
	failTo map[string]error
}

func (d *recordingDispatcher) SendPriceDrop(ctx context.Context, in notify.PriceDrop) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.failTo[in.To]; ok {
		return err
	}
	d.sent = append(d.sent, in)
	return nil
}

func (d *recordingDispatcher) recipients() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, s := range d.sent {
		out = append(out, s.To)
	}
	sort.Strings(out)
	return out
}

type recordingProducer struct {
	topic  string
	values [][]byte
	err    error
}

func (p *recordingProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.topic = topic
	p.values = append(p.values, value)
	return p.err
}

type recordingLimiter struct {
	keys []string
	err  error
}

func (l *recordingLimiter) Wait(ctx context.Context, key string, limit int64, window time.Duration) error {
	l.keys = append(l.keys, key)
	return l.err
}

var errBoom = errors.New("boom")

type failingLocker struct{ err error }

func (l failingLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	return nil, false, l.err
}
