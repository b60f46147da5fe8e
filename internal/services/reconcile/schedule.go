package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

// Trigger asks a running Schedule loop for an immediate pass. Non-blocking.
func (j *Job) Trigger() {
	j.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case j.triggerCh <- struct{}{}:
	default:
	}
}

// Schedule runs the job every interval and on Trigger until ctx is done.
func (j *Job) Schedule(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			j.runScheduled(ctx)
		case <-j.triggerCh:
			j.runScheduled(ctx)
		}
	}
}

func (j *Job) runScheduled(ctx context.Context) {
	if _, err := j.Run(ctx); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			slog.Info("price check skipped, another run in progress")
			return
		}
		slog.Error("scheduled price check", "error", err.Error())
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastRunAt     *time.Time `json:"lastRunAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	Running       bool       `json:"running"`
	TotalRuns     int64      `json:"totalRuns"`
	TotalChecked  int64      `json:"totalChecked"`
	TotalUpdated  int64      `json:"totalUpdated"`
	TotalAlerts   int64      `json:"totalAlerts"`
	TotalErrors   int64      `json:"totalErrors"`
	LastStatus    string     `json:"lastStatus,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
}

func (j *Job) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, j.startedAtUnixNano).UTC(),
		Running:      j.running.Load(),
		TotalRuns:    j.totalRuns.Load(),
		TotalChecked: j.totalChecked.Load(),
		TotalUpdated: j.totalUpdated.Load(),
		TotalAlerts:  j.totalAlerts.Load(),
		TotalErrors:  j.totalErrors.Load(),
	}
	if n := j.lastRunUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastRunAt = &t
	}
	if n := j.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	j.lastMu.Lock()
	st.LastStatus = j.lastStatus
	st.LastError = j.lastError
	j.lastMu.Unlock()
	return st
}
