// Package qc rolls per-gear QC outcomes up into one record status and
// applies status reset modes before a gear reruns.
package qc

import (
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// Aggregate folds a record's gear outcomes with FAIL > IN_REVIEW > PASS
// precedence. An empty status aggregates to PASS: at this layer "no gear has
// run yet" is not distinguishable from "every gear passed".
func Aggregate(status visit.QCStatus) visit.Outcome {
	result := visit.Pass
	for _, o := range status {
		switch o {
		case visit.Fail:
			return visit.Fail
		case visit.InReview:
			result = visit.InReview
		}
	}
	return result
}

// Reset returns a copy of status prepared for gear to rerun under mode.
// The input map is never modified.
func Reset(status visit.QCStatus, mode visit.ResetMode, gear string) visit.QCStatus {
	switch mode {
	case visit.ResetAll:
		return visit.QCStatus{}
	case visit.ResetGear:
		out := status.Clone()
		delete(out, gear)
		return out
	default:
		return status.Clone()
	}
}

// Merge applies outcomes on top of status, last write wins per gear.
// The input map is never modified.
func Merge(status visit.QCStatus, outcomes map[string]visit.Outcome) visit.QCStatus {
	out := status.Clone()
	for gear, o := range outcomes {
		out[gear] = o
	}
	return out
}
