// Package cascade derives follow-up validation work from a completed
// validation.
//
// When records of datatype A change, every datatype depending on A is
// re-validated for the same participant and date, and if A is longitudinal
// every later record of A is re-validated too. OnRecordsChanged runs after a
// validation completes and looks one hop ahead only; deeper chains happen
// because each cascaded validation reports its own change in turn.
package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/depgraph"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/schederr"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// RecordFinder is the part of the record store the invalidator queries.
type RecordFinder interface {
	FindRecords(ctx context.Context, participant visit.ParticipantID, datatype visit.Datatype, filter visit.DateFilter) ([]visit.Record, error)
}

// Result is the outcome of one OnRecordsChanged call.
type Result struct {
	// Requests are the follow-up validations, dependents first, in the
	// order of the changed records.
	Requests []visit.ValidationRequest
	// Warnings are cascade-stage errors for pairs that were skipped because
	// more than one same-date dependent record exists.
	Warnings []error
}

// Invalidator computes cascades against a dependency graph.
// Safe for concurrent use when the finder is.
type Invalidator struct {
	graph  *depgraph.Graph
	finder RecordFinder
	logger *slog.Logger
}

// New creates an invalidator. A nil logger uses slog.Default().
func New(graph *depgraph.Graph, finder RecordFinder, logger *slog.Logger) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{graph: graph, finder: finder, logger: logger}
}

// OnRecordsChanged returns the validation requests caused by changes to
// records of datatype dt.
//
// For each dependent datatype D and changed record R, the one record of D
// dated exactly R's effective date (same participant) is selected. Finding
// several is a data-integrity problem: the pair is skipped and reported in
// Result.Warnings, and processing continues. If dt is longitudinal, a
// request for every record of dt dated after R is added, tagged with R's
// date as the cascade origin.
//
// Returned requests carry ResetNone; the caller picks the reset mode.
// Store failures abort the call with a store-stage error.
func (inv *Invalidator) OnRecordsChanged(ctx context.Context, dt visit.Datatype, changed []visit.Record) (*Result, error) {
	result := &Result{}
	dependents := inv.graph.Dependents(dt)

	for _, rec := range changed {
		for _, dep := range dependents {
			req, warn, err := inv.sameDate(ctx, dep, rec)
			if err != nil {
				return nil, err
			}
			if warn != nil {
				result.Warnings = append(result.Warnings, warn)
				continue
			}
			if req != nil {
				cascadeRequests.WithLabelValues("dependent").Inc()
				result.Requests = append(result.Requests, *req)
			}
		}

		if inv.graph.Longitudinal(dt) {
			cascadeRequests.WithLabelValues("longitudinal").Inc()
			result.Requests = append(result.Requests, visit.ValidationRequest{
				Datatype:    dt,
				Participant: rec.Participant,
				Selector:    visit.After(rec.EffectiveDate),
				Origin:      rec.EffectiveDate,
			})
		}
	}

	inv.logger.Debug("cascade computed",
		"datatype", dt,
		"changed", len(changed),
		"requests", len(result.Requests),
		"warnings", len(result.Warnings),
	)
	return result, nil
}

// sameDate finds the dependent record matching rec's date exactly.
func (inv *Invalidator) sameDate(ctx context.Context, dep visit.Datatype, rec visit.Record) (*visit.ValidationRequest, error, error) {
	filter := visit.DateFilter{Op: visit.OpEqual, Dates: []time.Time{rec.EffectiveDate}}
	found, err := inv.finder.FindRecords(ctx, rec.Participant, dep, filter)
	if err != nil {
		return nil, nil, &schederr.Error{
			Stage:       schederr.StageStore,
			Participant: rec.Participant,
			Datatype:    dep,
			Message:     "find same-date dependents",
			Err:         err,
		}
	}

	switch len(found) {
	case 0:
		return nil, nil, nil
	case 1:
		return &visit.ValidationRequest{
			Datatype:    dep,
			Participant: rec.Participant,
			Selector:    visit.Explicit(found[0].ID),
			Origin:      rec.EffectiveDate,
		}, nil, nil
	default:
		cascadeInconsistent.Inc()
		ids := make([]string, len(found))
		for i, r := range found {
			ids[i] = r.ID
		}
		inv.logger.Warn("multiple same-date dependent records, cascade skipped",
			"participant", rec.Participant,
			"trigger", rec.ID,
			"dependent_datatype", dep,
			"date", visit.FormatDate(rec.EffectiveDate),
			"records", ids,
			"event", "cascade_inconsistent",
		)
		return nil, &schederr.Error{
			Stage:       schederr.StageCascade,
			Participant: rec.Participant,
			Datatype:    dep,
			RecordID:    rec.ID,
			Message:     fmt.Sprintf("%d %s records dated %s, expected at most one", len(found), dep, visit.FormatDate(rec.EffectiveDate)),
		}, nil
	}
}
