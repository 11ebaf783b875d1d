// Package poller waits for downstream jobs to finish.
//
// A job moves from PENDING or RUNNING to one of COMPLETE, FAILED or
// RETRIED. Wait polls at a fixed interval and blocks the calling worker
// until the job ends. A FAILED job gets a grace period for the platform to
// retry it; a retry is followed to the new job id, at most MaxRetryFollows
// times.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/schederr"
)

const (
	DefaultInterval        = 30 * time.Second
	DefaultGrace           = 5 * time.Second
	DefaultMaxRetryFollows = 3
)

var (
	// ErrJobFailed is returned when a job failed and no retry was found.
	ErrJobFailed = errors.New("job failed")

	// ErrRetryLimit is returned when a job kept failing after the maximum
	// number of followed retries.
	ErrRetryLimit = errors.New("retry follow limit reached")
)

// Sleeper pauses the poller. Sleep must return ctx.Err() when ctx ends
// first.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerSleeper sleeps on a real timer.
var TimerSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
})

// Poller is safe for concurrent use when its JobService is.
type Poller struct {
	jobs       JobService
	interval   time.Duration
	grace      time.Duration
	maxFollows int
	sleeper    Sleeper
	logger     *slog.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the delay between polls. Default: 30s.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// WithGrace sets how long to wait for a platform retry after a failure.
// Default: 5s.
func WithGrace(d time.Duration) Option {
	return func(p *Poller) { p.grace = d }
}

// WithMaxRetryFollows bounds how many retries are followed. Default: 3.
func WithMaxRetryFollows(n int) Option {
	return func(p *Poller) { p.maxFollows = n }
}

// WithSleeper replaces the timer, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(p *Poller) { p.sleeper = s }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// New creates a poller over jobs.
func New(jobs JobService, opts ...Option) *Poller {
	p := &Poller{
		jobs:       jobs,
		interval:   DefaultInterval,
		grace:      DefaultGrace,
		maxFollows: DefaultMaxRetryFollows,
		sleeper:    TimerSleeper,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Outcome describes a finished wait.
type Outcome struct {
	// JobID is the last job followed.
	JobID string
	State JobState
	// Follows counts the retries followed.
	Follows int
	// Sequences counts polling sequences, one per job id polled.
	Sequences int
	// Polls counts GetJobState calls.
	Polls int
	// Reused is set by TriggerOrWait when an existing job was awaited
	// instead of triggering a new one.
	Reused bool
}

// Wait blocks until job id (or the retry chain it starts) completes.
//
// A COMPLETE job returns a nil error. A job that fails without a retry, or
// keeps failing past the follow limit, returns a downstream-stage error
// alongside the outcome so far.
func (p *Poller) Wait(ctx context.Context, id string) (*Outcome, error) {
	out := &Outcome{JobID: id}
	for {
		state, err := p.pollUntilDone(ctx, out)
		if err != nil {
			return out, err
		}
		out.State = state

		switch state {
		case Complete:
			return out, nil
		case Failed:
			if err := p.sleeper.Sleep(ctx, p.grace); err != nil {
				return out, err
			}
		}

		next, found, err := p.jobs.FindJob(ctx, Predicate{RetryOf: out.JobID})
		if err != nil {
			return out, p.downstream(out, "look up retry", err)
		}
		if !found {
			return out, p.downstream(out, "no retry found", ErrJobFailed)
		}
		if out.Follows >= p.maxFollows {
			return out, p.downstream(out, fmt.Sprintf("gave up after %d retries", out.Follows), ErrRetryLimit)
		}

		out.Follows++
		retriesFollowed.Inc()
		p.logger.Info("following retried job",
			"job", out.JobID,
			"retry", next,
			"follows", out.Follows,
			"event", "job_retry_followed",
		)
		out.JobID = next
	}
}

// pollUntilDone runs one polling sequence for out.JobID.
func (p *Poller) pollUntilDone(ctx context.Context, out *Outcome) (JobState, error) {
	out.Sequences++
	for {
		state, err := p.jobs.GetJobState(ctx, out.JobID)
		out.Polls++
		if err != nil {
			return "", p.downstream(out, "get job state", err)
		}
		jobPolls.WithLabelValues(string(state)).Inc()
		if !state.Active() {
			return state, nil
		}
		if err := p.sleeper.Sleep(ctx, p.interval); err != nil {
			return "", err
		}
	}
}

// WaitForAny waits for an existing job matching pred, if there is one.
// States in pred default to the active states.
func (p *Poller) WaitForAny(ctx context.Context, pred Predicate) (*Outcome, bool, error) {
	if len(pred.States) == 0 {
		pred.States = ActiveStates
	}
	id, found, err := p.jobs.FindJob(ctx, pred)
	if err != nil {
		return nil, false, schederr.Wrap(schederr.StageDownstream, err, "find running job")
	}
	if !found {
		return nil, false, nil
	}
	p.logger.Info("waiting for running job", "job", id, "gear", pred.Gear, "destination", pred.Destination)
	out, err := p.Wait(ctx, id)
	if out != nil {
		out.Reused = true
	}
	return out, true, err
}

// TriggerRequest describes a downstream job to run.
type TriggerRequest struct {
	Project     string
	Gear        string
	Destination string
	Config      map[string]string
}

// TriggerOrWait waits for a matching active job if one exists, otherwise
// triggers a new job and waits for it.
//
// This is mutual exclusion by polling, not a lock: two callers can both see
// no active job and both trigger.
func (p *Poller) TriggerOrWait(ctx context.Context, req TriggerRequest) (*Outcome, error) {
	out, found, err := p.WaitForAny(ctx, Predicate{
		Project:     req.Project,
		Gear:        req.Gear,
		States:      ActiveStates,
		Destination: req.Destination,
	})
	if found || err != nil {
		return out, err
	}

	id, err := p.jobs.Trigger(ctx, req.Gear, req.Config, req.Destination)
	if err != nil {
		return nil, schederr.Wrap(schederr.StageDownstream, err, "trigger "+req.Gear)
	}
	p.logger.Info("triggered job", "job", id, "gear", req.Gear, "destination", req.Destination)
	return p.Wait(ctx, id)
}

func (p *Poller) downstream(out *Outcome, msg string, err error) error {
	return schederr.Wrap(schederr.StageDownstream, err, fmt.Sprintf("job %s: %s", out.JobID, msg))
}
