package digest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/PriceDrop/internal/models"
	"github.com/BearBump/PriceDrop/internal/notify"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	entries []*models.DigestEntry
	listErr error
	since   time.Time
	runs    []models.JobRun
	runErr  error
}

func (f *fakeRepo) ListDigestEntries(ctx context.Context, since time.Time) ([]*models.DigestEntry, error) {
	f.since = since
	return f.entries, f.listErr
}

func (f *fakeRepo) InsertJobRun(ctx context.Context, r models.JobRun) error {
	f.runs = append(f.runs, r)
	return f.runErr
}

type recordingDispatcher struct {
	sent []notify.Digest
	fail map[string]error
}

func (d *recordingDispatcher) SendWeeklyDigest(ctx context.Context, in notify.Digest) error {
	if err := d.fail[in.To]; err != nil {
		return err
	}
	d.sent = append(d.sent, in)
	return nil
}

func entry(user uuid.UUID, email string, enabled bool, name string, oldPrice, newPrice float64) *models.DigestEntry {
	return &models.DigestEntry{
		UserID: user, Email: email, FullName: "User", EmailNotifications: enabled,
		ProductName: name, ProductURL: "https://ebay.com/itm/" + name, OldPrice: oldPrice, NewPrice: newPrice,
	}
}

func TestRun_GroupsByUser(t *testing.T) {
	ann, bob, cid := uuid.New(), uuid.New(), uuid.New()
	repo := &fakeRepo{entries: []*models.DigestEntry{
		entry(ann, "ann@example.com", true, "kettle", 50, 40),
		entry(ann, "ann@example.com", true, "toaster", 30, 25),
		entry(bob, "bob@example.com", false, "kettle", 50, 40),
		entry(cid, "cid@example.com", true, "lamp", 20, 10),
	}}
	d := &recordingDispatcher{}
	since := time.Now().Add(-7 * 24 * time.Hour)

	sum, err := New(repo, d).Run(context.Background(), since)
	require.NoError(t, err)
	require.Equal(t, since, repo.since)
	require.Equal(t, 3, sum.Users)
	require.Equal(t, 2, sum.Sent)
	require.Equal(t, 1, sum.Skipped)
	require.Equal(t, models.JobRunStatusSuccess, sum.Status)

	require.Len(t, d.sent, 2)
	require.Equal(t, "ann@example.com", d.sent[0].To)
	require.Len(t, d.sent[0].Items, 2)
	require.InDelta(t, 15.0, d.sent[0].TotalSavings(), 0.001)
	require.Equal(t, "cid@example.com", d.sent[1].To)

	require.Len(t, repo.runs, 1)
	require.Equal(t, JobName, repo.runs[0].JobName)
	require.Equal(t, 2, repo.runs[0].AlertsSent)
}

func TestRun_DispatchFailureCounted(t *testing.T) {
	ann := uuid.New()
	repo := &fakeRepo{entries: []*models.DigestEntry{entry(ann, "ann@example.com", true, "kettle", 50, 40)}}
	d := &recordingDispatcher{fail: map[string]error{"ann@example.com": errors.New("rejected")}}

	sum, err := New(repo, d).Run(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, 0, sum.Sent)
	require.Equal(t, 1, repo.runs[0].Errors)
}

func TestRun_NoEntries(t *testing.T) {
	repo := &fakeRepo{}
	sum, err := New(repo, &recordingDispatcher{}).Run(context.Background(), time.Now())
	require.NoError(t, err)
	require.Zero(t, sum.Users)
	require.Len(t, repo.runs, 1)
}

func TestRun_ListFailure(t *testing.T) {
	repo := &fakeRepo{listErr: errors.New("db down")}
	sum, err := New(repo, &recordingDispatcher{}).Run(context.Background(), time.Now())
	require.Error(t, err)
	require.Equal(t, models.JobRunStatusFailed, sum.Status)
	require.Len(t, repo.runs, 1)
	require.Contains(t, repo.runs[0].ErrorMessage, "db down")
}

func TestRun_JobRunWriteFailure(t *testing.T) {
	repo := &fakeRepo{runErr: errors.New("insert failed")}
	_, err := New(repo, &recordingDispatcher{}).Run(context.Background(), time.Now())
	require.Error(t, err)
}
