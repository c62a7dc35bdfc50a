package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/curatelab/shelfsort/catalog"
)

// JobState tracks the reorder job driver's state machine:
// SUBMITTED → POLLING → DONE | TIMED_OUT.
type JobState string

const (
	JobSubmitted JobState = "SUBMITTED"
	JobPolling   JobState = "POLLING"
	JobDone      JobState = "DONE"
	JobTimedOut  JobState = "TIMED_OUT"
)

// Defaults for the poll loop. Job durations are small and predictable, so a
// fixed interval with a hard attempt cap is enough; no exponential backoff.
const (
	defaultPollInterval = 2 * time.Second
	defaultMaxAttempts  = 30
)

// JobDriver polls an asynchronous reorder job to completion with bounded
// retries. It never blocks indefinitely: the attempt cap is hard.
type JobDriver struct {
	Poller      catalog.JobPoller
	Interval    time.Duration
	MaxAttempts int
	Log         *slog.Logger

	// sleep is injectable so tests run without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewJobDriver returns a driver with the fixed production poll policy.
func NewJobDriver(poller catalog.JobPoller, log *slog.Logger) *JobDriver {
	return &JobDriver{
		Poller:      poller,
		Interval:    defaultPollInterval,
		MaxAttempts: defaultMaxAttempts,
		Log:         log,
	}
}

// Await polls until the job reports done or the attempt budget is spent.
// A timed-out job is not a failure: the move request was already accepted
// and there is no compensating action, so the caller reports success with a
// caveat. Poll errors consume an attempt and polling continues.
func (d *JobDriver) Await(ctx context.Context, ref catalog.JobRef) (JobState, error) {
	interval := d.Interval
	if interval < 0 {
		interval = defaultPollInterval
	}
	maxAttempts := d.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	sleep := d.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	state := JobSubmitted
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		state = JobPolling
		done, err := d.Poller.JobDone(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return state, ctx.Err()
			}
			log.Warn("job poll failed", "job", ref, "attempt", attempt, "error", err)
		} else if done {
			return JobDone, nil
		}
		if attempt < maxAttempts {
			if err := sleep(ctx, interval); err != nil {
				return state, err
			}
		}
	}

	log.Warn("job did not finish within poll budget", "job", ref, "attempts", maxAttempts)
	return JobTimedOut, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
