package products

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/BearBump/PriceDrop/internal/models"
	"github.com/BearBump/PriceDrop/internal/notify"
	"github.com/BearBump/PriceDrop/internal/scraper"
	"github.com/stretchr/testify/require"
)

type stubScraper struct {
	product scraper.Product
	err     error
	calls   []string
}

func (s *stubScraper) Scrape(ctx context.Context, url string) (scraper.Product, error) {
	s.calls = append(s.calls, url)
	return s.product, s.err
}

type recordingMailer struct {
	welcomes []notify.Welcome
	err      error
}

func (m *recordingMailer) SendWelcome(ctx context.Context, in notify.Welcome) error {
	m.welcomes = append(m.welcomes, in)
	return m.err
}

func TestWriteHistoryCSV(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := WriteHistoryCSV(&buf, []*models.PriceObservation{
		{Price: 100, Currency: "USD", InStock: true, RecordedAt: at},
		{Price: 1299.5, Currency: "USD", InStock: false, RecordedAt: at.Add(time.Hour)},
	})
	require.NoError(t, err)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"recorded_at", "price", "currency", "in_stock"},
		{"2025-03-01T12:00:00Z", "100.00", "USD", "true"},
		{"2025-03-01T13:00:00Z", "1299.50", "USD", "false"},
	}, rows)
}

func TestWriteHistoryCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHistoryCSV(&buf, nil))
	require.Equal(t, "recorded_at,price,currency,in_stock\n", buf.String())
}

func TestValidateProductURL(t *testing.T) {
	u, err := validateProductURL("  https://www.ebay.com/itm/1?x=1 ")
	require.NoError(t, err)
	require.Equal(t, "https://www.ebay.com/itm/1?x=1", u)

	_, err = validateProductURL("javascript:alert(1)")
	require.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestCurrentKey(t *testing.T) {
	require.Equal(t, "product:42:current", currentKey(42))
}
