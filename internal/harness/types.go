package harness

import (
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/scheduler"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion holds.
	Pass bool `json:"pass"`

	// Report is the scheduler's run report.
	Report *scheduler.Report `json:"report"`

	// Calls counts engine invocations per record id.
	Calls map[string]int `json:"calls"`

	// Status holds the stored aggregate status of every seeded record
	// after the run.
	Status map[string]visit.Outcome `json:"status"`

	// Gears holds the stored per-gear QC status of every seeded record.
	Gears map[string]visit.QCStatus `json:"gears"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Calls:  map[string]int{},
		Status: map[string]visit.Outcome{},
		Gears:  map[string]visit.QCStatus{},
		Errors: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// participant returns the report section for p, or nil.
func (r *Result) participant(p string) *scheduler.ParticipantReport {
	if r.Report == nil {
		return nil
	}
	for i := range r.Report.Participants {
		if string(r.Report.Participants[i].Participant) == p {
			return &r.Report.Participants[i]
		}
	}
	return nil
}
