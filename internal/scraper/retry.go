package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

type RetryPolicy struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Retrying repeats temporary scrape failures with exponential backoff.
type Retrying struct {
	next   Scraper
	policy RetryPolicy
}

func NewRetrying(next Scraper, policy RetryPolicy) *Retrying {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = DefaultRetryPolicy().InitialDelay
	}
	if policy.MaxDelay < policy.InitialDelay {
		policy.MaxDelay = policy.InitialDelay
	}
	return &Retrying{next: next, policy: policy}
}

func (r *Retrying) Policy() RetryPolicy { return r.policy }

func (r *Retrying) Scrape(ctx context.Context, url string) (Product, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.policy.InitialDelay
	eb.MaxInterval = r.policy.MaxDelay
	eb.MaxElapsedTime = 0
	eb.Reset()

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.policy.Attempts-1)), ctx)

	var (
		out     Product
		lastErr error
	)
	op := func() error {
		p, err := r.next.Scrape(ctx, url)
		if err != nil {
			lastErr = err
			var se *Error
			if !errors.As(err, &se) || !se.Temporary() {
				return backoff.Permanent(err)
			}
			return err
		}
		out = p
		return nil
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("scrape retry", "url", url, "wait", wait, "err", err)
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if lastErr != nil {
			return Product{}, lastErr
		}
		return Product{}, &Error{URL: url, Err: err}
	}
	return out, nil
}
