package pgstore

import (
	"context"
	"time"

	"github.com/BearBump/PriceDrop/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const productColumns = `
  id, url, platform, name,
  current_price, original_price, currency, image_url,
  in_stock, last_checked, is_active,
  created_at, updated_at`

func scanProduct(row pgx.Row) (*models.Product, error) {
	var p models.Product
	if err := row.Scan(
		&p.ID, &p.URL, &p.Platform, &p.Name,
		&p.CurrentPrice, &p.OriginalPrice, &p.Currency, &p.ImageURL,
		&p.InStock, &p.LastChecked, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Storage) GetProduct(ctx context.Context, id uint64) (*models.Product, error) {
	p, err := scanProduct(s.db.QueryRow(ctx, `SELECT`+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select product")
	}
	return p, nil
}

func (s *Storage) GetProductByURL(ctx context.Context, url string) (*models.Product, error) {
	p, err := scanProduct(s.db.QueryRow(ctx, `SELECT`+productColumns+` FROM products WHERE url = $1`, url))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select product by url")
	}
	return p, nil
}

// CreateProduct upserts by URL. The first observation is written only when
// the row is new, so a concurrent track of the same URL never duplicates it.
func (s *Storage) CreateProduct(ctx context.Context, in models.ProductCreateInput) (*models.Product, error) {
	now := time.Now().UTC()
	if in.CheckedAt.IsZero() {
		in.CheckedAt = now
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		id       uint64
		inserted bool
	)
	err = tx.QueryRow(ctx, `
INSERT INTO products (
  url, platform, name, current_price, original_price, currency, image_url,
  in_stock, last_checked, is_active, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,TRUE,$10,$10)
ON CONFLICT (url)
DO UPDATE SET updated_at = products.updated_at
RETURNING id, (xmax = 0)
`, in.URL, in.Platform, in.Name, in.Price, in.OriginalPrice, in.Currency, in.ImageURL,
		in.InStock, in.CheckedAt, now).Scan(&id, &inserted)
	if err != nil {
		return nil, errors.Wrap(err, "insert product")
	}

	if inserted {
		if _, err := tx.Exec(ctx, `
INSERT INTO price_history (product_id, price, currency, in_stock, recorded_at)
VALUES ($1,$2,$3,$4,$5)
`, id, in.Price, in.Currency, in.InStock, in.CheckedAt); err != nil {
			return nil, errors.Wrap(err, "insert price history")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return s.GetProduct(ctx, id)
}

// ListDueProducts returns active products, never-checked first, then the
// longest unchecked.
func (s *Storage) ListDueProducts(ctx context.Context, limit int) ([]*models.Product, error) {
	rows, err := s.db.Query(ctx, `SELECT`+productColumns+`
FROM products
WHERE is_active
ORDER BY last_checked ASC NULLS FIRST, id ASC
LIMIT $1
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due products")
	}
	defer rows.Close()

	var out []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ApplyPriceChange updates the product and appends one observation in a
// single transaction. Empty name or image keep the stored value.
func (s *Storage) ApplyPriceChange(ctx context.Context, ch models.PriceChange) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
UPDATE products SET
  current_price = $2,
  in_stock = $3,
  last_checked = $4,
  name = COALESCE(NULLIF($5, ''), name),
  image_url = COALESCE(NULLIF($6, ''), image_url),
  currency = COALESCE(NULLIF($7, ''), currency),
  updated_at = $4
WHERE id = $1
`, ch.ProductID, ch.Price, ch.InStock, ch.CheckedAt, ch.Name, ch.ImageURL, ch.Currency)
	if err != nil {
		return errors.Wrap(err, "update product")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO price_history (product_id, price, currency, in_stock, recorded_at)
SELECT id, current_price, currency, in_stock, $2 FROM products WHERE id = $1
`, ch.ProductID, ch.CheckedAt); err != nil {
		return errors.Wrap(err, "insert price history")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func (s *Storage) TouchProduct(ctx context.Context, productID uint64, inStock bool, checkedAt time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE products SET in_stock = $2, last_checked = $3, updated_at = $3 WHERE id = $1
`, productID, inStock, checkedAt)
	return errors.Wrap(err, "touch product")
}

func (s *Storage) DeactivateProduct(ctx context.Context, productID uint64) error {
	_, err := s.db.Exec(ctx, `UPDATE products SET is_active = FALSE, updated_at = now() WHERE id = $1`, productID)
	return errors.Wrap(err, "deactivate product")
}

// ReactivateProduct clears last_checked so the next run picks it up first.
func (s *Storage) ReactivateProduct(ctx context.Context, productID uint64) error {
	tag, err := s.db.Exec(ctx, `
UPDATE products SET is_active = TRUE, last_checked = NULL, updated_at = now() WHERE id = $1
`, productID)
	if err != nil {
		return errors.Wrap(err, "reactivate product")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *Storage) ListPriceHistory(ctx context.Context, productID uint64, limit, offset int) ([]*models.PriceObservation, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, product_id, price, currency, in_stock, recorded_at
FROM price_history
WHERE product_id = $1
ORDER BY recorded_at ASC, id ASC
LIMIT $2 OFFSET $3
`, productID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select price history")
	}
	defer rows.Close()

	var out []*models.PriceObservation
	for rows.Next() {
		var o models.PriceObservation
		if err := rows.Scan(&o.ID, &o.ProductID, &o.Price, &o.Currency, &o.InStock, &o.RecordedAt); err != nil {
			return nil, errors.Wrap(err, "scan price history")
		}
		out = append(out, &o)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
