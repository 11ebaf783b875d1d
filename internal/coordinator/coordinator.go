// Package coordinator resolves validation requests to concrete records and
// validates single records.
//
// Resolve turns a request selector into the records it names. ValidateOne
// runs the validation engine on one record, folds the per-gear outcome into
// the record's QC status under the caller's reset mode, persists it, and
// derives the cascade that the change causes.
//
// Failure policy:
//   - record store failures are fatal to the call and are not retried here
//   - an engine failure marks only that record IN_REVIEW for the owning gear
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/cascade"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/depgraph"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/qc"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/schederr"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

var tracer = otel.Tracer("qcsched.coordinator")

var (
	// ErrUnknownDatatype is returned by Resolve for a datatype missing from
	// the dependency configuration.
	ErrUnknownDatatype = errors.New("unknown datatype")

	// ErrEmptyCutoff is returned by Resolve for a cutoff selector without dates.
	ErrEmptyCutoff = errors.New("cutoff selector has no dates")
)

// RecordStore is the record store collaborator.
type RecordStore interface {
	cascade.RecordFinder
	GetRecord(ctx context.Context, id string) (visit.Record, error)
	UpdateStatus(ctx context.Context, id string, status visit.QCStatus) error
}

// Engine validates one record and returns an outcome per gear.
type Engine interface {
	Validate(ctx context.Context, rec visit.Record) (map[string]visit.Outcome, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, rec visit.Record) (map[string]visit.Outcome, error)

// Validate calls f.
func (f EngineFunc) Validate(ctx context.Context, rec visit.Record) (map[string]visit.Outcome, error) {
	return f(ctx, rec)
}

// Coordinator is safe for concurrent use when its store and engine are.
type Coordinator struct {
	store   RecordStore
	engine  Engine
	graph   *depgraph.Graph
	cascade *cascade.Invalidator
	gear    string
	logger  *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New creates a coordinator. gear names the validator whose status entry
// the coordinator owns: it is the entry reset under ResetGear and the one
// marked IN_REVIEW when the engine fails.
func New(store RecordStore, engine Engine, graph *depgraph.Graph, gear string, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		engine: engine,
		graph:  graph,
		gear:   gear,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cascade = cascade.New(graph, store, c.logger)
	return c
}

// Gear returns the owning gear name.
func (c *Coordinator) Gear() string {
	return c.gear
}

// Resolve returns the records a request selects.
//
// Explicit selectors are looked up one by one; ids that no longer exist, or
// that belong to another participant or datatype, are dropped with a
// warning. Cutoff selectors become a store query: a
// longitudinal datatype is queried with ">=" from the earliest cutoff date
// (or ">" for an After selector), a non-longitudinal one with the exact
// cutoff dates only.
func (c *Coordinator) Resolve(ctx context.Context, req visit.ValidationRequest) ([]visit.Record, error) {
	ctx, span := tracer.Start(ctx, "coordinator.Resolve",
		trace.WithAttributes(
			attribute.String("qcsched.participant", string(req.Participant)),
			attribute.String("qcsched.datatype", string(req.Datatype)),
			attribute.String("qcsched.selector", req.Selector.String()),
		),
	)
	defer span.End()

	recs, err := c.resolve(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("qcsched.records", len(recs)))
	span.SetStatus(codes.Ok, "")
	return recs, nil
}

func (c *Coordinator) resolve(ctx context.Context, req visit.ValidationRequest) ([]visit.Record, error) {
	if !c.graph.Known(req.Datatype) {
		return nil, &schederr.Error{
			Stage:       schederr.StageConfig,
			Participant: req.Participant,
			Datatype:    req.Datatype,
			Message:     "resolve request",
			Err:         ErrUnknownDatatype,
		}
	}

	if req.Selector.IsExplicit() {
		return c.resolveExplicit(ctx, req)
	}

	filter, err := c.filterFor(req)
	if err != nil {
		return nil, &schederr.Error{
			Stage:       schederr.StageConfig,
			Participant: req.Participant,
			Datatype:    req.Datatype,
			Message:     "resolve request",
			Err:         err,
		}
	}

	recs, err := c.store.FindRecords(ctx, req.Participant, req.Datatype, filter)
	if err != nil {
		return nil, &schederr.Error{
			Stage:       schederr.StageStore,
			Participant: req.Participant,
			Datatype:    req.Datatype,
			Message:     fmt.Sprintf("find records %s", filter.Op),
			Err:         err,
		}
	}
	return recs, nil
}

func (c *Coordinator) resolveExplicit(ctx context.Context, req visit.ValidationRequest) ([]visit.Record, error) {
	recs := make([]visit.Record, 0, len(req.Selector.Records))
	for _, id := range req.Selector.Records {
		rec, err := c.store.GetRecord(ctx, id)
		if errors.Is(err, visit.ErrRecordNotFound) {
			c.logger.Warn("selected record no longer exists",
				"participant", req.Participant,
				"datatype", req.Datatype,
				"record", id,
			)
			continue
		}
		if err != nil {
			return nil, &schederr.Error{
				Stage:       schederr.StageStore,
				Participant: req.Participant,
				Datatype:    req.Datatype,
				RecordID:    id,
				Message:     "get record",
				Err:         err,
			}
		}
		if rec.Participant != req.Participant || rec.Datatype != req.Datatype {
			c.logger.Warn("selected record belongs to another request, skipped",
				"participant", req.Participant,
				"datatype", req.Datatype,
				"record", id,
				"record_participant", rec.Participant,
				"record_datatype", rec.Datatype,
				"event", "record_mismatch",
			)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// filterFor maps a cutoff selector to a store date filter.
func (c *Coordinator) filterFor(req visit.ValidationRequest) (visit.DateFilter, error) {
	sel := req.Selector
	if sel.Op == visit.OpAll {
		return visit.DateFilter{Op: visit.OpAll}, nil
	}
	if len(sel.Dates) == 0 {
		return visit.DateFilter{}, ErrEmptyCutoff
	}

	if !c.graph.Longitudinal(req.Datatype) {
		if len(sel.Dates) == 1 {
			return visit.DateFilter{Op: visit.OpEqual, Dates: sel.Dates}, nil
		}
		return visit.DateFilter{Op: visit.OpAnyOf, Dates: slices.Clone(sel.Dates)}, nil
	}

	earliest := slices.MinFunc(sel.Dates, func(a, b time.Time) int { return a.Compare(b) })
	switch {
	case sel.Op == visit.OpAfter:
		return visit.DateFilter{Op: visit.OpAfter, Dates: []time.Time{earliest}}, nil
	case sel.Op == visit.OpAtOrAfter || sel.Forward:
		return visit.DateFilter{Op: visit.OpAtOrAfter, Dates: []time.Time{earliest}}, nil
	case len(sel.Dates) == 1:
		return visit.DateFilter{Op: visit.OpEqual, Dates: sel.Dates}, nil
	default:
		return visit.DateFilter{Op: visit.OpAnyOf, Dates: slices.Clone(sel.Dates)}, nil
	}
}

// Result is the outcome of validating one record.
type Result struct {
	// Record carries the QC status as persisted.
	Record visit.Record
	// Outcomes is what the engine reported, or IN_REVIEW for the owning
	// gear when the engine failed.
	Outcomes map[string]visit.Outcome
	// Status is the aggregate of Record.QCStatus.
	Status visit.Outcome
	// EngineErr is the validation-stage error when the engine failed.
	EngineErr error
	// Cascade holds the follow-up requests caused by this change.
	Cascade []visit.ValidationRequest
	// Warnings holds cascade-stage inconsistencies that were skipped.
	Warnings []error
}

// ValidateOne validates rec under mode and persists the merged status.
//
// A context cancellation during the engine call is returned as an error
// rather than recorded as IN_REVIEW.
func (c *Coordinator) ValidateOne(ctx context.Context, rec visit.Record, mode visit.ResetMode) (*Result, error) {
	ctx, span := tracer.Start(ctx, "coordinator.ValidateOne",
		trace.WithAttributes(
			attribute.String("qcsched.participant", string(rec.Participant)),
			attribute.String("qcsched.datatype", string(rec.Datatype)),
			attribute.String("qcsched.record", rec.ID),
			attribute.String("qcsched.reset", mode.String()),
		),
	)
	defer span.End()

	res, err := c.validateOne(ctx, rec, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("qcsched.status", string(res.Status)),
		attribute.Int("qcsched.cascade", len(res.Cascade)),
	)
	span.SetStatus(codes.Ok, "")
	return res, nil
}

func (c *Coordinator) validateOne(ctx context.Context, rec visit.Record, mode visit.ResetMode) (*Result, error) {
	status := qc.Reset(rec.QCStatus, mode, c.gear)

	start := time.Now()
	outcomes, err := c.engine.Validate(ctx, rec)
	validationDuration.WithLabelValues(string(rec.Datatype)).Observe(time.Since(start).Seconds())

	res := &Result{}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("validate %s: %w", rec.ID, ctxErr)
		}
		res.EngineErr = &schederr.Error{
			Stage:       schederr.StageValidation,
			Participant: rec.Participant,
			Datatype:    rec.Datatype,
			RecordID:    rec.ID,
			Message:     "validation engine failed, marked IN_REVIEW",
			Err:         err,
		}
		c.logger.Warn("validation failed",
			"participant", rec.Participant,
			"record", rec.ID,
			"gear", c.gear,
			"error", err,
			"event", "validation_failed",
		)
		outcomes = map[string]visit.Outcome{c.gear: visit.InReview}
	}
	res.Outcomes = outcomes

	status = qc.Merge(status, outcomes)
	if err := c.store.UpdateStatus(ctx, rec.ID, status); err != nil {
		return nil, &schederr.Error{
			Stage:       schederr.StageStore,
			Participant: rec.Participant,
			Datatype:    rec.Datatype,
			RecordID:    rec.ID,
			Message:     "update status",
			Err:         err,
		}
	}
	rec.QCStatus = status
	res.Record = rec
	res.Status = qc.Aggregate(status)
	recordsValidated.WithLabelValues(string(rec.Datatype), string(res.Status)).Inc()

	c.logger.Debug("record validated",
		"participant", rec.Participant,
		"record", rec.ID,
		"datatype", rec.Datatype,
		"reset", mode,
		"status", res.Status,
	)

	cr, err := c.cascade.OnRecordsChanged(ctx, rec.Datatype, []visit.Record{rec})
	if err != nil {
		return nil, err
	}
	res.Cascade = cr.Requests
	res.Warnings = cr.Warnings
	return res, nil
}
