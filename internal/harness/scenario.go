package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/batch"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/poller"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// Scenario defines a scheduling scenario.
// A scenario seeds a record store, scripts the validation engine, submits
// validation requests and asserts on the resulting run.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config is a scheduler configuration document, written inline.
	Config yaml.Node `yaml:"config"`

	// Records seed the store before the run.
	Records []batch.RecordSpec `yaml:"records"`

	// Outcomes scripts the engine per record id. The i-th validation of a
	// record reports Outcomes[id][i]; the last entry repeats. "ERROR" makes
	// the engine call fail. Records without a script PASS.
	Outcomes map[string][]string `yaml:"outcomes,omitempty"`

	// Jobs scripts the terminal state of downstream jobs per destination
	// record id. Unscripted jobs COMPLETE.
	Jobs map[string]string `yaml:"jobs,omitempty"`

	// Requests are submitted to one Run, in order.
	Requests []batch.RequestSpec `yaml:"requests"`

	// Assertions validate the run report and the final store state.
	// Supported types: order, processed_count, final_status, gear_status,
	// excluded, participant_error, warning_count
	Assertions []Assertion `yaml:"assertions"`

	// RunID is an optional fixed run id for deterministic tests.
	// If empty, defaults to "test-run".
	RunID string `yaml:"run_id,omitempty"`
}

// Assertion validates one aspect of the run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "order": Participant's validations ran in exactly this record order
	// - "processed_count": Record was validated exactly Count times
	// - "final_status": Record's stored aggregate status equals Status
	// - "gear_status": Record's stored outcome for Gear equals Status
	// - "excluded": Record was dropped as unclassifiable
	// - "participant_error": Participant stopped with an error of Stage
	// - "warning_count": Participant collected exactly Count warnings
	Type string `yaml:"type"`

	Participant string   `yaml:"participant,omitempty"`
	Records     []string `yaml:"records,omitempty"`
	Record      string   `yaml:"record,omitempty"`
	Status      string   `yaml:"status,omitempty"`
	Gear        string   `yaml:"gear,omitempty"`
	Stage       string   `yaml:"stage,omitempty"`
	Count       int      `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertOrder            = "order"
	AssertProcessedCount   = "processed_count"
	AssertFinalStatus      = "final_status"
	AssertGearStatus       = "gear_status"
	AssertExcluded         = "excluded"
	AssertParticipantError = "participant_error"
	AssertWarningCount     = "warning_count"
)

// outcomeError in an outcome script makes the engine call fail.
const outcomeError = "ERROR"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Config.Kind == 0 {
		return fmt.Errorf("config is required")
	}

	if len(s.Requests) == 0 {
		return fmt.Errorf("requests list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for id, script := range s.Outcomes {
		if len(script) == 0 {
			return fmt.Errorf("outcomes[%s]: script must be non-empty", id)
		}
		for _, o := range script {
			if o == outcomeError {
				continue
			}
			if _, err := visit.ParseOutcome(o); err != nil {
				return fmt.Errorf("outcomes[%s]: %w", id, err)
			}
		}
	}

	for id, state := range s.Jobs {
		st, err := poller.ParseJobState(state)
		if err != nil {
			return fmt.Errorf("jobs[%s]: %w", id, err)
		}
		if st.Active() {
			return fmt.Errorf("jobs[%s]: state %s is not terminal", id, st)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOrder:
		if a.Participant == "" || len(a.Records) == 0 {
			return fmt.Errorf("assertions[%d]: participant and records are required for order", index)
		}
	case AssertProcessedCount:
		if a.Record == "" {
			return fmt.Errorf("assertions[%d]: record is required for processed_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for processed_count", index)
		}
	case AssertFinalStatus:
		if a.Record == "" {
			return fmt.Errorf("assertions[%d]: record is required for final_status", index)
		}
		if _, err := visit.ParseOutcome(a.Status); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertGearStatus:
		if a.Record == "" || a.Gear == "" {
			return fmt.Errorf("assertions[%d]: record and gear are required for gear_status", index)
		}
		if _, err := visit.ParseOutcome(a.Status); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertExcluded:
		if a.Record == "" {
			return fmt.Errorf("assertions[%d]: record is required for excluded", index)
		}
	case AssertParticipantError:
		if a.Participant == "" || a.Stage == "" {
			return fmt.Errorf("assertions[%d]: participant and stage are required for participant_error", index)
		}
	case AssertWarningCount:
		if a.Participant == "" {
			return fmt.Errorf("assertions[%d]: participant is required for warning_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
