package scheduler

import (
	"errors"
	"fmt"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// DefaultMaxSteps bounds validations per participant per run.
const DefaultMaxSteps = 10000

// stepQuota counts validations drained from one participant's queue.
//
// The dependency graph is normally acyclic, which already guarantees the
// queue drains. When cycles are allowed the quota is what stops a cascade
// that keeps re-queueing the same records.
type stepQuota struct {
	participant visit.ParticipantID
	maxSteps    int
	current     int
}

func newStepQuota(participant visit.ParticipantID, maxSteps int) *stepQuota {
	return &stepQuota{participant: participant, maxSteps: maxSteps}
}

// check counts one step and fails once the limit is passed.
func (q *stepQuota) check() error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			Participant: q.participant,
			Steps:       q.current,
			Limit:       q.maxSteps,
		}
	}
	return nil
}

// StepsExceededError aborts one participant whose queue kept growing.
type StepsExceededError struct {
	Participant visit.ParticipantID
	Steps       int
	Limit       int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("participant %s exceeded max steps quota: %d steps > %d limit",
		e.Participant, e.Steps, e.Limit)
}

// IsStepsExceededError reports whether err wraps a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
