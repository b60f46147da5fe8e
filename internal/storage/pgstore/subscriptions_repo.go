package pgstore

import (
	"context"
	"time"

	"github.com/BearBump/PriceDrop/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) CreateProfile(ctx context.Context, p models.Profile) (*models.Profile, error) {
	now := time.Now().UTC()
	if p.Plan == "" {
		p.Plan = models.PlanFree
	}

	_, err := s.db.Exec(ctx, `
INSERT INTO user_profiles (
  id, email, full_name, plan, email_notifications, sms_notifications, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
`, p.ID, p.Email, p.FullName, string(p.Plan), p.EmailNotifications, p.SMSNotifications, now)
	if isUniqueViolation(err) {
		return nil, models.ErrProfileExists
	}
	if err != nil {
		return nil, errors.Wrap(err, "insert profile")
	}
	return s.GetProfile(ctx, p.ID)
}

func (s *Storage) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var (
		p    models.Profile
		plan string
	)
	err := s.db.QueryRow(ctx, `
SELECT id, email, full_name, plan, tracked_count, alert_count,
       email_notifications, sms_notifications, created_at, updated_at
FROM user_profiles
WHERE id = $1
`, userID).Scan(
		&p.ID, &p.Email, &p.FullName, &plan, &p.TrackedCount, &p.AlertCount,
		&p.EmailNotifications, &p.SMSNotifications, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrProfileNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select profile")
	}
	p.Plan = models.Plan(plan)
	return &p, nil
}

func (s *Storage) CountActiveSubscriptions(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM user_tracking WHERE user_id = $1 AND is_active`, userID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count subscriptions")
	}
	return n, nil
}

// CreateSubscription inserts the subscription and bumps tracked_count in one
// transaction. An inactive row for the same pair is reactivated; an active
// one yields ErrAlreadyTracking.
func (s *Storage) CreateSubscription(ctx context.Context, in models.SubscriptionCreateInput) (*models.Subscription, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sub := models.Subscription{
		UserID:          in.UserID,
		ProductID:       in.ProductID,
		TargetPrice:     in.TargetPrice,
		NotifyOnAnyDrop: in.NotifyOnAnyDrop,
		IsActive:        true,
	}
	err = tx.QueryRow(ctx, `
INSERT INTO user_tracking (user_id, product_id, target_price, notify_on_any_drop, is_active, created_at)
VALUES ($1,$2,$3,$4,TRUE,$5)
ON CONFLICT (user_id, product_id)
DO UPDATE SET
  target_price = EXCLUDED.target_price,
  notify_on_any_drop = EXCLUDED.notify_on_any_drop,
  is_active = TRUE,
  created_at = EXCLUDED.created_at
WHERE NOT user_tracking.is_active
RETURNING id, created_at
`, in.UserID, in.ProductID, in.TargetPrice, in.NotifyOnAnyDrop, now).Scan(&sub.ID, &sub.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
		return nil, models.ErrAlreadyTracking
	}
	if err != nil {
		return nil, errors.Wrap(err, "insert subscription")
	}

	if _, err := tx.Exec(ctx, `
UPDATE user_profiles SET tracked_count = tracked_count + 1, updated_at = $2 WHERE id = $1
`, in.UserID, now); err != nil {
		return nil, errors.Wrap(err, "increment tracked count")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return &sub, nil
}

func (s *Storage) DeactivateSubscription(ctx context.Context, userID uuid.UUID, productID uint64) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
UPDATE user_tracking SET is_active = FALSE WHERE user_id = $1 AND product_id = $2 AND is_active
`, userID, productID)
	if err != nil {
		return errors.Wrap(err, "deactivate subscription")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotTracking
	}

	if _, err := tx.Exec(ctx, `
UPDATE user_profiles SET tracked_count = GREATEST(tracked_count - 1, 0), updated_at = $2 WHERE id = $1
`, userID, now); err != nil {
		return errors.Wrap(err, "decrement tracked count")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func (s *Storage) ListUserSubscriptions(ctx context.Context, userID uuid.UUID) ([]*models.Subscription, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, user_id, product_id, target_price, notify_on_any_drop, is_active, created_at
FROM user_tracking
WHERE user_id = $1 AND is_active
ORDER BY created_at DESC, id DESC
`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "select subscriptions")
	}
	defer rows.Close()

	var out []*models.Subscription
	for rows.Next() {
		var sub models.Subscription
		if err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.ProductID, &sub.TargetPrice,
			&sub.NotifyOnAnyDrop, &sub.IsActive, &sub.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan subscription")
		}
		out = append(out, &sub)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ListActiveSubscribers joins active subscriptions of a product with the
// subscriber profile.
func (s *Storage) ListActiveSubscribers(ctx context.Context, productID uint64) ([]*models.Subscriber, error) {
	rows, err := s.db.Query(ctx, `
SELECT t.id, t.user_id, t.product_id, t.target_price, t.notify_on_any_drop, t.is_active, t.created_at,
       u.email, u.full_name, u.email_notifications
FROM user_tracking t
JOIN user_profiles u ON u.id = t.user_id
WHERE t.product_id = $1 AND t.is_active
ORDER BY t.id ASC
`, productID)
	if err != nil {
		return nil, errors.Wrap(err, "select subscribers")
	}
	defer rows.Close()

	var out []*models.Subscriber
	for rows.Next() {
		var sub models.Subscriber
		if err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.ProductID, &sub.TargetPrice, &sub.NotifyOnAnyDrop, &sub.IsActive, &sub.CreatedAt,
			&sub.Email, &sub.FullName, &sub.EmailNotifications,
		); err != nil {
			return nil, errors.Wrap(err, "scan subscriber")
		}
		out = append(out, &sub)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
