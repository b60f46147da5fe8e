package products_api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/PriceDrop/internal/models"
	"github.com/BearBump/PriceDrop/internal/scraper"
	"github.com/BearBump/PriceDrop/internal/services/products"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// UserHeader carries the caller's id, set by the auth proxy in front of the API.
const UserHeader = "X-User-ID"

type Service interface {
	CreateProfile(ctx context.Context, in products.ProfileInput) (*models.Profile, error)
	TrackProduct(ctx context.Context, req products.TrackRequest) (*products.TrackResult, error)
	UntrackProduct(ctx context.Context, userID uuid.UUID, productID uint64) error
	GetProduct(ctx context.Context, id uint64) (*models.Product, error)
	ListTrackedProducts(ctx context.Context, userID uuid.UUID) ([]products.TrackedProduct, error)
	ListHistory(ctx context.Context, productID uint64, limit, offset int) ([]*models.PriceObservation, error)
}

type ProductsAPI struct {
	svc Service
}

func New(svc Service) *ProductsAPI {
	return &ProductsAPI{svc: svc}
}

func (a *ProductsAPI) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/profiles", a.createProfile)
	r.Post("/products/track", a.trackProduct)
	r.Delete("/products/{id}/track", a.untrackProduct)
	r.Get("/products/{id}", a.getProduct)
	r.Get("/products/{id}/history", a.listHistory)
	r.Get("/me/products", a.listTracked)
	return r
}

type profileRequest struct {
	Email              string `json:"email"`
	FullName           string `json:"full_name"`
	Plan               string `json:"plan"`
	EmailNotifications *bool  `json:"email_notifications"`
}

type trackRequest struct {
	URL             string   `json:"url"`
	TargetPrice     *float64 `json:"target_price"`
	NotifyOnAnyDrop bool     `json:"notify_on_any_drop"`
}

type profileDTO struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	FullName           string `json:"full_name"`
	Plan               string `json:"plan"`
	TrackedCount       int    `json:"tracked_count"`
	AlertCount         int    `json:"alert_count"`
	EmailNotifications bool   `json:"email_notifications"`
}

type productDTO struct {
	ID            uint64     `json:"id"`
	URL           string     `json:"url"`
	Platform      string     `json:"platform"`
	Name          string     `json:"name"`
	CurrentPrice  float64    `json:"current_price"`
	OriginalPrice float64    `json:"original_price,omitempty"`
	Currency      string     `json:"currency"`
	ImageURL      string     `json:"image_url,omitempty"`
	InStock       bool       `json:"in_stock"`
	IsActive      bool       `json:"is_active"`
	LastChecked   *time.Time `json:"last_checked,omitempty"`
}

type subscriptionDTO struct {
	ID              uint64    `json:"id"`
	ProductID       uint64    `json:"product_id"`
	TargetPrice     *float64  `json:"target_price,omitempty"`
	NotifyOnAnyDrop bool      `json:"notify_on_any_drop"`
	CreatedAt       time.Time `json:"created_at"`
}

type observationDTO struct {
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	InStock    bool      `json:"in_stock"`
	RecordedAt time.Time `json:"recorded_at"`
}

func (a *ProductsAPI) createProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := a.svc.CreateProfile(r.Context(), products.ProfileInput{
		ID:                 userID,
		Email:              req.Email,
		FullName:           req.FullName,
		Plan:               models.Plan(req.Plan),
		EmailNotifications: req.EmailNotifications,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProfileDTO(p))
}

func (a *ProductsAPI) trackProduct(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req trackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := a.svc.TrackProduct(r.Context(), products.TrackRequest{
		UserID:          userID,
		URL:             req.URL,
		TargetPrice:     req.TargetPrice,
		NotifyOnAnyDrop: req.NotifyOnAnyDrop,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"product":  toProductDTO(res.Product),
		"tracking": toSubscriptionDTO(res.Subscription),
	})
}

func (a *ProductsAPI) untrackProduct(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := productID(w, r)
	if !ok {
		return
	}
	if err := a.svc.UntrackProduct(r.Context(), userID, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *ProductsAPI) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	p, err := a.svc.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

func (a *ProductsAPI) listHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	obs, err := a.svc.ListHistory(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=price-history-"+strconv.FormatUint(id, 10)+".csv")
		if err := products.WriteHistoryCSV(w, obs); err != nil {
			slog.Error("write history csv", "product_id", id, "error", err.Error())
		}
		return
	}

	out := make([]observationDTO, 0, len(obs))
	for _, o := range obs {
		out = append(out, observationDTO{Price: o.Price, Currency: o.Currency, InStock: o.InStock, RecordedAt: o.RecordedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_id": id, "history": out})
}

func (a *ProductsAPI) listTracked(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	items, err := a.svc.ListTrackedProducts(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	type item struct {
		Tracking subscriptionDTO `json:"tracking"`
		Product  productDTO      `json:"product"`
	}
	out := make([]item, 0, len(items))
	for _, it := range items {
		out = append(out, item{Tracking: toSubscriptionDTO(it.Subscription), Product: toProductDTO(it.Product)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": out})
}

func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get(UserHeader))
	if err != nil || id == uuid.Nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Unauthorized"})
		return uuid.Nil, false
	}
	return id, true
}

func productID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid product id"})
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid request body"})
		return false
	}
	return true
}

func statusFor(err error) (int, string) {
	var se *scraper.Error
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrProfileNotFound):
		return http.StatusNotFound, "Profile not found"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "Product not found"
	case errors.Is(err, models.ErrNotTracking):
		return http.StatusNotFound, "You are not tracking this product"
	case errors.Is(err, models.ErrPlanLimitReached):
		return http.StatusForbidden, "Plan limit reached"
	case errors.Is(err, models.ErrAlreadyTracking):
		return http.StatusConflict, "You are already tracking this product"
	case errors.Is(err, models.ErrProfileExists):
		return http.StatusConflict, "Profile already exists"
	case errors.As(err, &se):
		return http.StatusUnprocessableEntity, "Failed to fetch product details"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err.Error())
	}
	writeJSON(w, code, map[string]any{"success": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func toProfileDTO(p *models.Profile) profileDTO {
	return profileDTO{
		ID:                 p.ID.String(),
		Email:              p.Email,
		FullName:           p.FullName,
		Plan:               string(p.Plan),
		TrackedCount:       p.TrackedCount,
		AlertCount:         p.AlertCount,
		EmailNotifications: p.EmailNotifications,
	}
}

func toProductDTO(p *models.Product) productDTO {
	return productDTO{
		ID:            p.ID,
		URL:           p.URL,
		Platform:      p.Platform,
		Name:          p.Name,
		CurrentPrice:  p.CurrentPrice,
		OriginalPrice: p.OriginalPrice,
		Currency:      p.Currency,
		ImageURL:      p.ImageURL,
		InStock:       p.InStock,
		IsActive:      p.IsActive,
		LastChecked:   p.LastChecked,
	}
}

func toSubscriptionDTO(s *models.Subscription) subscriptionDTO {
	return subscriptionDTO{
		ID:              s.ID,
		ProductID:       s.ProductID,
		TargetPrice:     s.TargetPrice,
		NotifyOnAnyDrop: s.NotifyOnAnyDrop,
		CreatedAt:       s.CreatedAt,
	}
}
