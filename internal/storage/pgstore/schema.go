package pgstore

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS user_profiles (
  id UUID PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  full_name TEXT NOT NULL DEFAULT '',
  plan TEXT NOT NULL DEFAULT 'free',
  tracked_count INT NOT NULL DEFAULT 0,
  alert_count INT NOT NULL DEFAULT 0,
  email_notifications BOOLEAN NOT NULL DEFAULT TRUE,
  sms_notifications BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS products (
  id BIGSERIAL PRIMARY KEY,
  url TEXT NOT NULL UNIQUE,
  platform TEXT NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  current_price DOUBLE PRECISION NOT NULL DEFAULT 0,
  original_price DOUBLE PRECISION NOT NULL DEFAULT 0,
  currency TEXT NOT NULL DEFAULT 'USD',
  image_url TEXT NOT NULL DEFAULT '',
  in_stock BOOLEAN NOT NULL DEFAULT TRUE,
  last_checked TIMESTAMPTZ NULL,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_products_active_last_checked ON products(last_checked ASC NULLS FIRST) WHERE is_active`,
		`
CREATE TABLE IF NOT EXISTS price_history (
  id BIGSERIAL PRIMARY KEY,
  product_id BIGINT NOT NULL REFERENCES products(id),
  price DOUBLE PRECISION NOT NULL,
  currency TEXT NOT NULL,
  in_stock BOOLEAN NOT NULL,
  recorded_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_price_history_product_recorded ON price_history(product_id, recorded_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS user_tracking (
  id BIGSERIAL PRIMARY KEY,
  user_id UUID NOT NULL REFERENCES user_profiles(id) ON DELETE CASCADE,
  product_id BIGINT NOT NULL REFERENCES products(id),
  target_price DOUBLE PRECISION NULL,
  notify_on_any_drop BOOLEAN NOT NULL DEFAULT FALSE,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL,
  UNIQUE (user_id, product_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_user_tracking_product ON user_tracking(product_id) WHERE is_active`,
		`
CREATE TABLE IF NOT EXISTS notifications (
  id BIGSERIAL PRIMARY KEY,
  user_id UUID NOT NULL REFERENCES user_profiles(id) ON DELETE CASCADE,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  product_id BIGINT NULL REFERENCES products(id),
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  read BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_type_created ON notifications(type, created_at)`,
		`
CREATE TABLE IF NOT EXISTS error_logs (
  id BIGSERIAL PRIMARY KEY,
  type TEXT NOT NULL,
  product_id BIGINT NULL REFERENCES products(id),
  error_message TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_error_logs_product_created ON error_logs(product_id, created_at)`,
		`
CREATE TABLE IF NOT EXISTS cron_logs (
  id BIGSERIAL PRIMARY KEY,
  job_name TEXT NOT NULL,
  status TEXT NOT NULL,
  products_checked INT NOT NULL DEFAULT 0,
  products_updated INT NOT NULL DEFAULT 0,
  alerts_sent INT NOT NULL DEFAULT 0,
  errors INT NOT NULL DEFAULT 0,
  duration_ms BIGINT NOT NULL DEFAULT 0,
  error_message TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
