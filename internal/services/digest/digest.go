package digest

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/PriceDrop/internal/models"
	"github.com/BearBump/PriceDrop/internal/notify"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const JobName = "weekly_digest"

type Repository interface {
	ListDigestEntries(ctx context.Context, since time.Time) ([]*models.DigestEntry, error)
	InsertJobRun(ctx context.Context, r models.JobRun) error
}

type Dispatcher interface {
	SendWeeklyDigest(ctx context.Context, in notify.Digest) error
}

type Summary struct {
	Status     string        `json:"status"`
	Users      int           `json:"users"`
	Sent       int           `json:"sent"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Since      time.Time     `json:"since"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
}

type Sender struct {
	repo       Repository
	dispatcher Dispatcher
	now        func() time.Time
}

func New(repo Repository, d Dispatcher) *Sender {
	return &Sender{repo: repo, dispatcher: d, now: time.Now}
}

type recipient struct {
	digest  notify.Digest
	enabled bool
}

// Run sends one digest to every user who received a price-drop alert since
// the given time. Users with email notifications off are skipped.
func (s *Sender) Run(ctx context.Context, since time.Time) (Summary, error) {
	started := s.now()
	sum := Summary{Since: since}

	entries, err := s.repo.ListDigestEntries(ctx, since)
	if err != nil {
		return s.finish(ctx, sum, started, errors.Wrap(err, "list digest entries"))
	}

	order := make([]uuid.UUID, 0)
	byUser := make(map[uuid.UUID]*recipient)
	for _, e := range entries {
		r, ok := byUser[e.UserID]
		if !ok {
			r = &recipient{
				digest:  notify.Digest{To: e.Email, Name: e.FullName},
				enabled: e.EmailNotifications,
			}
			byUser[e.UserID] = r
			order = append(order, e.UserID)
		}
		r.digest.Items = append(r.digest.Items, notify.DigestItem{
			ProductName: e.ProductName,
			ProductURL:  e.ProductURL,
			OldPrice:    e.OldPrice,
			NewPrice:    e.NewPrice,
		})
	}

	sum.Users = len(order)
	for _, id := range order {
		r := byUser[id]
		if !r.enabled {
			sum.Skipped++
			continue
		}
		if err := s.dispatcher.SendWeeklyDigest(ctx, r.digest); err != nil {
			sum.Failed++
			slog.Warn("digest dispatch failed", "user_id", id.String(), "error", err.Error())
			continue
		}
		sum.Sent++
	}
	return s.finish(ctx, sum, started, nil)
}

func (s *Sender) finish(ctx context.Context, sum Summary, started time.Time, runErr error) (Summary, error) {
	sum.Duration = s.now().Sub(started)
	sum.DurationMS = sum.Duration.Milliseconds()
	sum.Status = models.JobRunStatusSuccess
	run := models.JobRun{
		JobName:    JobName,
		AlertsSent: sum.Sent,
		Errors:     sum.Failed,
		Duration:   sum.Duration,
	}
	if runErr != nil {
		sum.Status = models.JobRunStatusFailed
		run.ErrorMessage = runErr.Error()
	}
	run.Status = sum.Status

	if err := s.repo.InsertJobRun(context.WithoutCancel(ctx), run); err != nil {
		if runErr != nil {
			slog.Error("job run not recorded", "job", JobName, "error", err.Error())
			return sum, runErr
		}
		return sum, errors.Wrap(err, "insert job run")
	}
	slog.Info("digest finished", "users", sum.Users, "sent", sum.Sent, "skipped", sum.Skipped, "failed", sum.Failed)
	return sum, runErr
}
