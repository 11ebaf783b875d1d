package poller

import (
	"context"
	"fmt"
	"strings"
)

// JobState is the lifecycle state of a downstream job.
type JobState string

const (
	Pending  JobState = "PENDING"
	Running  JobState = "RUNNING"
	Complete JobState = "COMPLETE"
	Failed   JobState = "FAILED"
	// Retried means the platform replaced the job with a new one; the old
	// id no longer progresses.
	Retried JobState = "RETRIED"
)

// ActiveStates are the states a job can still leave.
var ActiveStates = []JobState{Pending, Running}

// Active reports whether the job may still change state.
func (s JobState) Active() bool {
	return s == Pending || s == Running
}

// ParseJobState accepts any casing ("complete", "COMPLETE").
func ParseJobState(s string) (JobState, error) {
	switch st := JobState(strings.ToUpper(strings.TrimSpace(s))); st {
	case Pending, Running, Complete, Failed, Retried:
		return st, nil
	default:
		return "", fmt.Errorf("unknown job state %q", s)
	}
}

// Predicate narrows a job search. Empty fields match anything.
type Predicate struct {
	Project     string
	Gear        string
	States      []JobState
	Destination string
	// RetryOf matches the job the platform started to retry the given id.
	RetryOf string
}

// JobService is the downstream job trigger/poll collaborator.
type JobService interface {
	Trigger(ctx context.Context, gear string, config map[string]string, destination string) (string, error)
	GetJobState(ctx context.Context, id string) (JobState, error)
	// FindJob returns the newest job matching p, or found=false.
	FindJob(ctx context.Context, p Predicate) (id string, found bool, err error)
}
