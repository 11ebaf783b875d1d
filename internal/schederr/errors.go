// Package schederr defines the scheduler's error taxonomy.
//
// Every failure surfaced to a caller of the scheduler carries the Stage that
// produced it, so operational tooling can tell data problems (classification,
// cascade, validation) from infrastructure problems (store, downstream).
package schederr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// Stage identifies the part of the pipeline that produced an error.
type Stage string

const (
	// StageClassification covers unclassifiable or ambiguous record names.
	StageClassification Stage = "classification"

	// StageCascade covers data-integrity problems found while cascading and
	// participants that exceeded the step quota.
	StageCascade Stage = "cascade"

	// StageStore covers record store failures. These are fatal for the
	// request being resolved and are never retried here.
	StageStore Stage = "store"

	// StageValidation covers failures of the validation engine.
	StageValidation Stage = "validation"

	// StageDownstream covers triggered jobs that failed or could not be
	// followed through their retries.
	StageDownstream Stage = "downstream"

	// StageConfig covers configuration that could not be loaded.
	StageConfig Stage = "config"
)

// Error is a scheduler failure with structured context.
type Error struct {
	Stage       Stage
	Participant visit.ParticipantID
	Datatype    visit.Datatype
	RecordID    string
	Message     string
	Err         error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Stage))
	b.WriteString(": ")
	b.WriteString(e.Message)

	var ctx []string
	if e.Participant != "" {
		ctx = append(ctx, "participant="+string(e.Participant))
	}
	if e.Datatype != "" {
		ctx = append(ctx, "datatype="+string(e.Datatype))
	}
	if e.RecordID != "" {
		ctx = append(ctx, "record="+e.RecordID)
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without an underlying cause.
func New(stage Stage, message string) *Error {
	return &Error{Stage: stage, Message: message}
}

// Wrap creates an Error around err.
func Wrap(stage Stage, err error, message string) *Error {
	return &Error{Stage: stage, Message: message, Err: err}
}

// StageOf returns the stage of the first Error in err's chain.
func StageOf(err error) (Stage, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

// IsStage reports whether err carries the given stage.
// Uses errors.As, so wrapped and joined errors are matched too.
func IsStage(err error, stage Stage) bool {
	if err == nil {
		return false
	}
	var se *Error
	if errors.As(err, &se) && se.Stage == stage {
		return true
	}
	// errors.As stops at the first match; joined errors may hold others.
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if IsStage(e, stage) {
				return true
			}
		}
	}
	return false
}

// Stages lists the distinct stages found in err, in order of appearance.
func Stages(err error) []Stage {
	var out []Stage
	seen := map[Stage]bool{}
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				walk(inner)
			}
			return
		}
		if s, ok := StageOf(e); ok && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	walk(err)
	return out
}
