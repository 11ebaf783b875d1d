package scheduler

import (
	"errors"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// Report summarizes one Run.
type Report struct {
	RunID        string              `json:"run_id"`
	Participants []ParticipantReport `json:"participants"`
}

// Err joins the fatal errors of every participant, or nil.
func (r *Report) Err() error {
	var errs []error
	for _, p := range r.Participants {
		if p.err != nil {
			errs = append(errs, p.err)
		}
	}
	return errors.Join(errs...)
}

// ParticipantReport is the work done for one participant.
type ParticipantReport struct {
	Participant visit.ParticipantID `json:"participant"`
	// Order lists validations in the order they ran. A record appears
	// more than once when a cascade re-queued it after it ran.
	Order    []Step      `json:"order"`
	Excluded []Exclusion `json:"excluded,omitempty"`
	// Warnings are non-fatal errors: cascade inconsistencies and engine
	// failures that marked a record IN_REVIEW.
	Warnings []string `json:"warnings,omitempty"`
	// Final maps each validated record id to its aggregate status after
	// its last validation in this run.
	Final map[string]visit.Outcome `json:"final"`
	Error string                   `json:"error,omitempty"`

	err error
}

// Step is one validation.
type Step struct {
	Record   string         `json:"record"`
	Datatype visit.Datatype `json:"datatype"`
	Date     string         `json:"date"`
	Tier     string         `json:"tier"`
	Reset    string         `json:"reset"`
	Status   visit.Outcome  `json:"status"`
	// Origin is the date of the change that cascaded into this step.
	Origin string `json:"origin,omitempty"`
	// Job is the downstream job awaited after a PASS.
	Job string `json:"job,omitempty"`
}

// Exclusion is a record dropped before queueing.
type Exclusion struct {
	Record string `json:"record"`
	Reason string `json:"reason"`
}

func (p *ParticipantReport) fail(err error) {
	p.err = err
	p.Error = err.Error()
}

func (p *ParticipantReport) warn(err error) {
	p.Warnings = append(p.Warnings, err.Error())
}
