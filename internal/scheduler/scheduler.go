// Package scheduler drains per-participant validation queues on a bounded
// worker pool.
//
// Requests are grouped by participant. Each participant gets one ordered
// queue and exactly one worker for the whole run, so records of a
// participant are validated strictly in comparator order while different
// participants proceed in parallel. Cascades produced by a validation are
// resolved and pushed back into the same participant's queue.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/classify"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/coordinator"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/poller"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/qc"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/queue"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/schederr"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

var tracer = otel.Tracer("qcsched.scheduler")

// RecordGetter looks up single records for Status.
type RecordGetter interface {
	GetRecord(ctx context.Context, id string) (visit.Record, error)
}

// Trigger configures the downstream job run after each PASS.
type Trigger struct {
	Poller  *poller.Poller
	Project string
	Gear    string
	Config  map[string]string
}

// Scheduler is safe for concurrent use; each Run owns its queues.
type Scheduler struct {
	coord        *coordinator.Coordinator
	records      RecordGetter
	classifier   *classify.Classifier
	comparator   classify.Comparator
	poolSize     int
	maxSteps     int
	upstreamMode visit.ResetMode
	cascadeMode  visit.ResetMode
	trigger      *Trigger
	ids          RunIDGenerator
	logger       *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPoolSize sets the worker count. Values below one use DefaultPoolSize.
func WithPoolSize(n int) Option {
	return func(s *Scheduler) { s.poolSize = n }
}

// WithMaxSteps sets the per-participant step quota. Default: 10000.
func WithMaxSteps(n int) Option {
	return func(s *Scheduler) { s.maxSteps = n }
}

// WithResetModes sets the reset mode for ScheduleValidation requests and
// for cascaded requests. Default: ResetGear for both. Requests passed to
// Run keep their own mode.
func WithResetModes(upstream, cascaded visit.ResetMode) Option {
	return func(s *Scheduler) {
		s.upstreamMode = upstream
		s.cascadeMode = cascaded
	}
}

// WithTrigger runs a downstream job for every record that ends PASS.
func WithTrigger(t *Trigger) Option {
	return func(s *Scheduler) { s.trigger = t }
}

// WithRunIDs sets the run id source. Default: UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(s *Scheduler) { s.ids = g }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a scheduler.
func New(coord *coordinator.Coordinator, records RecordGetter, classifier *classify.Classifier, cmp classify.Comparator, opts ...Option) *Scheduler {
	s := &Scheduler{
		coord:        coord,
		records:      records,
		classifier:   classifier,
		comparator:   cmp,
		maxSteps:     DefaultMaxSteps,
		upstreamMode: visit.ResetGear,
		cascadeMode:  visit.ResetGear,
		ids:          UUIDv7Generator{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.poolSize < 1 {
		s.poolSize = DefaultPoolSize()
	}
	return s
}

// PoolSize returns the configured worker count.
func (s *Scheduler) PoolSize() int {
	return s.poolSize
}

// ScheduleValidation validates the selected records of one participant and
// everything they cascade into. It is the entry point for upstream
// ingestion.
func (s *Scheduler) ScheduleValidation(ctx context.Context, dt visit.Datatype, participant visit.ParticipantID, sel visit.Selector) error {
	rep, err := s.Run(ctx, []visit.ValidationRequest{{
		Datatype:    dt,
		Participant: participant,
		Selector:    sel,
		Reset:       s.upstreamMode,
	}})
	if err != nil {
		return err
	}
	return rep.Err()
}

// Status returns the aggregate QC status of a record.
func (s *Scheduler) Status(ctx context.Context, recordID string) (visit.Outcome, error) {
	rec, err := s.records.GetRecord(ctx, recordID)
	if err != nil {
		return "", &schederr.Error{Stage: schederr.StageStore, RecordID: recordID, Message: "get record", Err: err}
	}
	return qc.Aggregate(rec.QCStatus), nil
}

// Run processes requests and returns the report.
//
// A fatal error for one participant (store failure, quota, downstream
// failure) stops only that participant and is recorded in the report;
// Report.Err joins them. The returned error is non-nil only when ctx ended.
func (s *Scheduler) Run(ctx context.Context, reqs []visit.ValidationRequest) (*Report, error) {
	runID := s.ids.Generate()
	logger := s.logger.With("run", runID)

	ctx, span := tracer.Start(ctx, "scheduler.Run",
		trace.WithAttributes(
			attribute.String("qcsched.run", runID),
			attribute.Int("qcsched.requests", len(reqs)),
		),
	)
	defer span.End()

	// The participant -> work map is complete before any worker starts and
	// is only read afterwards.
	byParticipant := make(map[visit.ParticipantID][]visit.ValidationRequest)
	for _, r := range reqs {
		byParticipant[r.Participant] = append(byParticipant[r.Participant], r)
	}
	participants := make([]visit.ParticipantID, 0, len(byParticipant))
	for p := range byParticipant {
		participants = append(participants, p)
	}
	slices.Sort(participants)

	report := &Report{RunID: runID, Participants: make([]ParticipantReport, len(participants))}
	logger.Info("run started", "participants", len(participants), "requests", len(reqs), "workers", s.poolSize)

	var g errgroup.Group
	g.SetLimit(s.poolSize)
	for i, p := range participants {
		pr := &report.Participants[i]
		pr.Participant = p
		pr.Final = map[string]visit.Outcome{}
		work := byParticipant[p]
		g.Go(func() error {
			s.runParticipant(ctx, logger.With("participant", p), work, pr)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "context canceled")
		return report, err
	}
	if err := report.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	logger.Info("run finished", "participants", len(participants))
	return report, nil
}

// runParticipant owns q for its whole lifetime.
func (s *Scheduler) runParticipant(ctx context.Context, logger *slog.Logger, reqs []visit.ValidationRequest, pr *ParticipantReport) {
	participantsActive.Inc()
	defer participantsActive.Dec()

	q := queue.New(s.comparator)
	quota := newStepQuota(pr.Participant, s.maxSteps)

	for _, req := range reqs {
		if err := s.enqueue(ctx, logger, q, req, pr); err != nil {
			pr.fail(err)
			return
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			pr.fail(err)
			return
		}
		e, ok := q.Pop()
		if !ok {
			break
		}
		if err := quota.check(); err != nil {
			logger.Warn("participant aborted", "error", err, "event", "quota_exceeded")
			pr.fail(&schederr.Error{
				Stage:       schederr.StageCascade,
				Participant: pr.Participant,
				Message:     "quota exceeded",
				Err:         err,
			})
			return
		}

		res, err := s.coord.ValidateOne(ctx, e.Record, e.Reset)
		if err != nil {
			pr.fail(err)
			return
		}

		step := Step{
			Record:   e.Record.ID,
			Datatype: e.Record.Datatype,
			Date:     visit.FormatDate(e.Record.EffectiveDate),
			Tier:     string(e.Tier),
			Reset:    e.Reset.String(),
			Status:   res.Status,
			Origin:   visit.FormatDate(e.Origin),
		}
		if res.EngineErr != nil {
			pr.warn(res.EngineErr)
		}
		for _, w := range res.Warnings {
			pr.warn(w)
		}

		if s.trigger != nil && res.Status == visit.Pass {
			job, err := s.runTrigger(ctx, e.Record)
			if err != nil {
				pr.Order = append(pr.Order, step)
				pr.Final[e.Record.ID] = res.Status
				pr.fail(err)
				return
			}
			step.Job = job
		}
		pr.Order = append(pr.Order, step)
		pr.Final[e.Record.ID] = res.Status

		for _, next := range res.Cascade {
			next.Reset = s.cascadeMode
			if err := s.enqueue(ctx, logger, q, next, pr); err != nil {
				pr.fail(err)
				return
			}
		}
	}

	logger.Debug("participant drained", "steps", len(pr.Order), "excluded", len(pr.Excluded))
}

// enqueue resolves req and pushes every classifiable record.
func (s *Scheduler) enqueue(ctx context.Context, logger *slog.Logger, q *queue.OrderedQueue, req visit.ValidationRequest, pr *ParticipantReport) error {
	recs, err := s.coord.Resolve(ctx, req)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		tier, err := s.classifier.Classify(rec.Name)
		if err != nil {
			unclassifiable.Inc()
			logger.Warn("record excluded from queue",
				"record", rec.ID,
				"name", rec.Name,
				"error", err,
				"event", "record_unclassifiable",
			)
			if !slices.ContainsFunc(pr.Excluded, func(x Exclusion) bool { return x.Record == rec.ID }) {
				pr.Excluded = append(pr.Excluded, Exclusion{Record: rec.ID, Reason: err.Error()})
			}
			continue
		}
		added, err := q.Push(queue.Entry{Record: rec, Tier: tier, Reset: req.Reset, Origin: req.Origin})
		if err != nil {
			return &schederr.Error{
				Stage:       schederr.StageClassification,
				Participant: rec.Participant,
				Datatype:    rec.Datatype,
				RecordID:    rec.ID,
				Message:     "push record",
				Err:         err,
			}
		}
		if !added {
			logger.Debug("record already queued", "record", rec.ID)
		}
	}
	return nil
}

func (s *Scheduler) runTrigger(ctx context.Context, rec visit.Record) (string, error) {
	out, err := s.trigger.Poller.TriggerOrWait(ctx, poller.TriggerRequest{
		Project:     s.trigger.Project,
		Gear:        s.trigger.Gear,
		Destination: rec.ID,
		Config:      s.trigger.Config,
	})
	if err != nil {
		return "", &schederr.Error{
			Stage:       schederr.StageDownstream,
			Participant: rec.Participant,
			Datatype:    rec.Datatype,
			RecordID:    rec.ID,
			Message:     fmt.Sprintf("downstream %s", s.trigger.Gear),
			Err:         err,
		}
	}
	return out.JobID, nil
}
