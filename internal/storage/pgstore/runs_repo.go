package pgstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/PriceDrop/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type notificationMeta struct {
	OldPrice float64 `json:"old_price"`
	NewPrice float64 `json:"new_price"`
	Savings  float64 `json:"savings"`
}

// RecordAlert stores the notification and bumps the subscriber's alert
// counter together.
func (s *Storage) RecordAlert(ctx context.Context, n models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	meta, err := json.Marshal(notificationMeta{
		OldPrice: n.OldPrice,
		NewPrice: n.NewPrice,
		Savings:  n.OldPrice - n.NewPrice,
	})
	if err != nil {
		return errors.Wrap(err, "marshal metadata")
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
INSERT INTO notifications (user_id, type, title, message, product_id, metadata, read, created_at)
VALUES ($1,$2,$3,$4,$5,$6,FALSE,$7)
`, n.UserID, n.Type, n.Title, n.Message, n.ProductID, meta, n.CreatedAt); err != nil {
		return errors.Wrap(err, "insert notification")
	}
	if _, err := tx.Exec(ctx, `
UPDATE user_profiles SET alert_count = alert_count + 1, updated_at = $2 WHERE id = $1
`, n.UserID, n.CreatedAt); err != nil {
		return errors.Wrap(err, "increment alert count")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func (s *Storage) RecordScrapeError(ctx context.Context, e models.ErrorLog) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO error_logs (type, product_id, error_message, created_at) VALUES ($1,$2,$3,$4)
`, e.Type, e.ProductID, e.ErrorMessage, e.CreatedAt)
	return errors.Wrap(err, "insert error log")
}

func (s *Storage) CountRecentErrors(ctx context.Context, productID uint64, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
SELECT count(*) FROM error_logs WHERE product_id = $1 AND created_at >= $2
`, productID, since).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count error logs")
	}
	return n, nil
}

func (s *Storage) InsertJobRun(ctx context.Context, r models.JobRun) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO cron_logs (
  job_name, status, products_checked, products_updated, alerts_sent, errors,
  duration_ms, error_message, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, r.JobName, r.Status, r.ProductsChecked, r.ProductsUpdated, r.AlertsSent, r.Errors,
		r.Duration.Milliseconds(), r.ErrorMessage, r.CreatedAt)
	return errors.Wrap(err, "insert job run")
}

func (s *Storage) ListJobRuns(ctx context.Context, jobName string, limit int) ([]*models.JobRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
SELECT id, job_name, status, products_checked, products_updated, alerts_sent, errors,
       duration_ms, error_message, created_at
FROM cron_logs
WHERE job_name = $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`, jobName, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select job runs")
	}
	defer rows.Close()

	var out []*models.JobRun
	for rows.Next() {
		var (
			r  models.JobRun
			ms int64
		)
		if err := rows.Scan(
			&r.ID, &r.JobName, &r.Status, &r.ProductsChecked, &r.ProductsUpdated, &r.AlertsSent, &r.Errors,
			&ms, &r.ErrorMessage, &r.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan job run")
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, &r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ListDigestEntries returns price-drop notifications since the given time,
// grouped by recipient.
func (s *Storage) ListDigestEntries(ctx context.Context, since time.Time) ([]*models.DigestEntry, error) {
	rows, err := s.db.Query(ctx, `
SELECT u.id, u.email, u.full_name, u.email_notifications,
       p.name, p.url,
       COALESCE((n.metadata->>'old_price')::float8, 0),
       COALESCE((n.metadata->>'new_price')::float8, 0),
       n.created_at
FROM notifications n
JOIN user_profiles u ON u.id = n.user_id
JOIN products p ON p.id = n.product_id
WHERE n.type = $1 AND n.created_at >= $2
ORDER BY u.id, n.created_at ASC, n.id ASC
`, models.NotificationTypePriceDrop, since)
	if err != nil {
		return nil, errors.Wrap(err, "select digest entries")
	}
	defer rows.Close()

	var out []*models.DigestEntry
	for rows.Next() {
		var e models.DigestEntry
		if err := rows.Scan(
			&e.UserID, &e.Email, &e.FullName, &e.EmailNotifications,
			&e.ProductName, &e.ProductURL, &e.OldPrice, &e.NewPrice, &e.NotifiedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan digest entry")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
