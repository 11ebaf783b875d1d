package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/scheduler"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// TraceSnapshot captures what a scenario run did, in a form that is
// identical across runs: the report plus engine call counts and final
// stored statuses. Map keys marshal sorted.
type TraceSnapshot struct {
	ScenarioName string                   `json:"scenario_name"`
	RunID        string                   `json:"run_id"`
	Participants []ParticipantSnapshot    `json:"participants"`
	Calls        map[string]int           `json:"calls"`
	Status       map[string]visit.Outcome `json:"status"`
}

// ParticipantSnapshot is the deterministic part of a participant report.
type ParticipantSnapshot struct {
	Participant visit.ParticipantID `json:"participant"`
	Order       []scheduler.Step    `json:"order"`
	Excluded    []string            `json:"excluded,omitempty"`
	Warnings    int                 `json:"warnings,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// Snapshot builds the golden form of a result.
func Snapshot(name string, result *Result) TraceSnapshot {
	snap := TraceSnapshot{
		ScenarioName: name,
		Participants: []ParticipantSnapshot{},
		Calls:        result.Calls,
		Status:       result.Status,
	}
	if result.Report == nil {
		return snap
	}
	snap.RunID = result.Report.RunID
	for _, p := range result.Report.Participants {
		ps := ParticipantSnapshot{
			Participant: p.Participant,
			Order:       p.Order,
			Warnings:    len(p.Warnings),
			Error:       p.Error,
		}
		if ps.Order == nil {
			ps.Order = []scheduler.Step{}
		}
		for _, x := range p.Excluded {
			ps.Excluded = append(ps.Excluded, x.Record)
		}
		snap.Participants = append(snap.Participants, ps)
	}
	return snap
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := json.MarshalIndent(Snapshot(scenarioName, result), "", "  ")
	if err != nil {
		return err
	}
	traceJSON = append(traceJSON, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
