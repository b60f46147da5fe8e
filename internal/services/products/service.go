package products

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/PriceDrop/internal/broker/messages"
	"github.com/BearBump/PriceDrop/internal/cache"
	"github.com/BearBump/PriceDrop/internal/models"
	"github.com/BearBump/PriceDrop/internal/notify"
	"github.com/BearBump/PriceDrop/internal/platform"
	"github.com/BearBump/PriceDrop/internal/pricing"
	"github.com/BearBump/PriceDrop/internal/scraper"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateProfile(ctx context.Context, p models.Profile) (*models.Profile, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	CountActiveSubscriptions(ctx context.Context, userID uuid.UUID) (int, error)
	GetProduct(ctx context.Context, id uint64) (*models.Product, error)
	GetProductByURL(ctx context.Context, url string) (*models.Product, error)
	CreateProduct(ctx context.Context, in models.ProductCreateInput) (*models.Product, error)
	ReactivateProduct(ctx context.Context, id uint64) error
	CreateSubscription(ctx context.Context, in models.SubscriptionCreateInput) (*models.Subscription, error)
	DeactivateSubscription(ctx context.Context, userID uuid.UUID, productID uint64) error
	ListUserSubscriptions(ctx context.Context, userID uuid.UUID) ([]*models.Subscription, error)
	ListPriceHistory(ctx context.Context, productID uint64, limit, offset int) ([]*models.PriceObservation, error)
}

type Mailer interface {
	SendWelcome(ctx context.Context, in notify.Welcome) error
}

type Service struct {
	repo       Repository
	scraper    scraper.Scraper
	mailer     Mailer
	cache      cache.BytesCache
	currentTTL time.Duration
	now        func() time.Time
}

func New(repo Repository, s scraper.Scraper, m Mailer, c cache.BytesCache, currentTTL time.Duration) *Service {
	return &Service{repo: repo, scraper: s, mailer: m, cache: c, currentTTL: currentTTL, now: time.Now}
}

type ProfileInput struct {
	ID                 uuid.UUID
	Email              string
	FullName           string
	Plan               models.Plan
	EmailNotifications *bool
}

// CreateProfile stores the profile and sends the welcome email. A failed
// email does not fail the call.
func (s *Service) CreateProfile(ctx context.Context, in ProfileInput) (*models.Profile, error) {
	if in.ID == uuid.Nil {
		return nil, errors.Wrap(models.ErrInvalidInput, "id is required")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return nil, errors.Wrap(models.ErrInvalidInput, "email is invalid")
	}
	plan := in.Plan
	if plan == "" {
		plan = models.PlanFree
	}
	if !plan.Valid() {
		return nil, errors.Wrapf(models.ErrInvalidInput, "unknown plan %q", plan)
	}
	emailOn := true
	if in.EmailNotifications != nil {
		emailOn = *in.EmailNotifications
	}

	p, err := s.repo.CreateProfile(ctx, models.Profile{
		ID:                 in.ID,
		Email:              addr.Address,
		FullName:           strings.TrimSpace(in.FullName),
		Plan:               plan,
		EmailNotifications: emailOn,
	})
	if err != nil {
		return nil, err
	}

	if s.mailer != nil {
		if err := s.mailer.SendWelcome(ctx, notify.Welcome{To: p.Email, Name: p.FullName}); err != nil {
			slog.Warn("welcome email failed", "user_id", p.ID.String(), "error", err.Error())
		}
	}
	return p, nil
}

type TrackRequest struct {
	UserID          uuid.UUID
	URL             string
	TargetPrice     *float64
	NotifyOnAnyDrop bool
}

type TrackResult struct {
	Product      *models.Product
	Subscription *models.Subscription
}

func validateProductURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.Wrap(models.ErrInvalidInput, "url must be an absolute http(s) url")
	}
	return raw, nil
}

// TrackProduct subscribes the user to the product at URL, creating the
// product from a fresh scrape the first time the URL is seen.
func (s *Service) TrackProduct(ctx context.Context, req TrackRequest) (*TrackResult, error) {
	if req.UserID == uuid.Nil {
		return nil, errors.Wrap(models.ErrInvalidInput, "user id is required")
	}
	rawURL, err := validateProductURL(req.URL)
	if err != nil {
		return nil, err
	}
	if req.TargetPrice != nil && *req.TargetPrice <= 0 {
		return nil, errors.Wrap(models.ErrInvalidInput, "target price must be positive")
	}

	profile, err := s.repo.GetProfile(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	n, err := s.repo.CountActiveSubscriptions(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if limit := profile.Plan.ProductLimit(); n >= limit {
		return nil, errors.Wrapf(models.ErrPlanLimitReached, "%s plan allows %d products", profile.Plan, limit)
	}

	product, err := s.repo.GetProductByURL(ctx, rawURL)
	switch {
	case errors.Is(err, models.ErrNotFound):
		product, err = s.createFromScrape(ctx, rawURL)
	case err == nil && !product.IsActive:
		product, err = s.reactivate(ctx, product)
	}
	if err != nil {
		return nil, err
	}

	sub, err := s.repo.CreateSubscription(ctx, models.SubscriptionCreateInput{
		UserID:          req.UserID,
		ProductID:       product.ID,
		TargetPrice:     req.TargetPrice,
		NotifyOnAnyDrop: req.NotifyOnAnyDrop,
	})
	if err != nil {
		return nil, err
	}
	return &TrackResult{Product: product, Subscription: sub}, nil
}

func (s *Service) createFromScrape(ctx context.Context, rawURL string) (*models.Product, error) {
	res, err := s.scraper.Scrape(ctx, rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "scrape product")
	}
	return s.repo.CreateProduct(ctx, models.ProductCreateInput{
		URL:           rawURL,
		Platform:      string(platform.Detect(rawURL)),
		Name:          res.Title,
		Price:         res.Price,
		OriginalPrice: res.OriginalPrice,
		Currency:      res.Currency,
		ImageURL:      res.Image,
		InStock:       res.InStock,
		CheckedAt:     s.now().UTC(),
	})
}

// reactivate returns a product switched off by repeated check failures to
// the job, but only if its page scrapes again.
func (s *Service) reactivate(ctx context.Context, p *models.Product) (*models.Product, error) {
	if _, err := s.scraper.Scrape(ctx, p.URL); err != nil {
		return nil, errors.Wrap(err, "scrape inactive product")
	}
	if err := s.repo.ReactivateProduct(ctx, p.ID); err != nil {
		return nil, err
	}
	slog.Info("product reactivated on track", "product_id", p.ID)
	out := *p
	out.IsActive = true
	out.LastChecked = nil
	return &out, nil
}

func (s *Service) UntrackProduct(ctx context.Context, userID uuid.UUID, productID uint64) error {
	if userID == uuid.Nil || productID == 0 {
		return errors.Wrap(models.ErrInvalidInput, "user id and product id are required")
	}
	return s.repo.DeactivateSubscription(ctx, userID, productID)
}

// GetProduct reads through the cache. Cache failures fall back to the
// repository.
func (s *Service) GetProduct(ctx context.Context, id uint64) (*models.Product, error) {
	if id == 0 {
		return nil, errors.Wrap(models.ErrInvalidInput, "product id is required")
	}
	if s.cacheEnabled() {
		if b, ok, err := s.cache.Get(ctx, currentKey(id)); err == nil && ok {
			var p models.Product
			if json.Unmarshal(b, &p) == nil {
				return &p, nil
			}
		}
	}

	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	s.storeCurrent(ctx, p)
	return p, nil
}

type TrackedProduct struct {
	Subscription *models.Subscription
	Product      *models.Product
}

func (s *Service) ListTrackedProducts(ctx context.Context, userID uuid.UUID) ([]TrackedProduct, error) {
	subs, err := s.repo.ListUserSubscriptions(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]TrackedProduct, 0, len(subs))
	for _, sub := range subs {
		p, err := s.GetProduct(ctx, sub.ProductID)
		if err != nil {
			return nil, err
		}
		out = append(out, TrackedProduct{Subscription: sub, Product: p})
	}
	return out, nil
}

func (s *Service) ListHistory(ctx context.Context, productID uint64, limit, offset int) ([]*models.PriceObservation, error) {
	if productID == 0 {
		return nil, errors.Wrap(models.ErrInvalidInput, "product id is required")
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListPriceHistory(ctx, productID, limit, offset)
}

// WriteHistoryCSV writes one row per observation under a header row.
func WriteHistoryCSV(w io.Writer, obs []*models.PriceObservation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"recorded_at", "price", "currency", "in_stock"}); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	for _, o := range obs {
		rec := []string{
			o.RecordedAt.UTC().Format(time.RFC3339),
			pricing.Format(o.Price),
			o.Currency,
			strconv.FormatBool(o.InStock),
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(err, "write csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

// ApplyPriceChanged refreshes the cached product after a price event.
func (s *Service) ApplyPriceChanged(ctx context.Context, msg messages.PriceChanged) error {
	if msg.ProductID == 0 {
		return errors.New("product_id is required")
	}
	if !s.cacheEnabled() {
		return nil
	}
	p, err := s.repo.GetProduct(ctx, msg.ProductID)
	if errors.Is(err, models.ErrNotFound) {
		return s.cache.Delete(ctx, currentKey(msg.ProductID))
	}
	if err != nil {
		return err
	}
	s.storeCurrent(ctx, p)
	return nil
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.currentTTL > 0
}

func (s *Service) storeCurrent(ctx context.Context, p *models.Product) {
	if !s.cacheEnabled() {
		return
	}
	b, _ := json.Marshal(p)
	_ = s.cache.Set(ctx, currentKey(p.ID), b, s.currentTTL)
}

func currentKey(id uint64) string {
	return fmt.Sprintf("product:%d:current", id)
}
