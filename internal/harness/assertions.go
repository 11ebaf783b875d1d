package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/scheduler"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// AssertionError is returned when an assertion fails.
// It includes the participant's processing order to help debug the failure.
type AssertionError struct {
	Type     string           // Assertion type for categorization
	Expected string           // Human-readable expected outcome
	Actual   string           // Human-readable actual outcome
	Order    []scheduler.Step // Processing order for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Order) > 0 {
		fmt.Fprintf(&buf, "\nProcessing order:\n")
		for i, s := range e.Order {
			fmt.Fprintf(&buf, "  [%d] %s %s@%s %s\n", i+1, s.Record, s.Datatype, s.Date, s.Status)
		}
	}

	return buf.String()
}

// assertOrder checks that the participant's validations ran in exactly the
// given record order, repeats included.
func assertOrder(result *Result, a Assertion) error {
	p := result.participant(a.Participant)
	if p == nil {
		return &AssertionError{
			Type:     AssertOrder,
			Expected: fmt.Sprintf("participant %s in report", a.Participant),
			Actual:   "participant not found",
		}
	}
	got := make([]string, len(p.Order))
	for i, s := range p.Order {
		got[i] = s.Record
	}
	if !slices.Equal(got, a.Records) {
		return &AssertionError{
			Type:     AssertOrder,
			Expected: fmt.Sprintf("%v", a.Records),
			Actual:   fmt.Sprintf("%v", got),
			Order:    p.Order,
		}
	}
	return nil
}

// assertProcessedCount checks how often the engine saw a record.
func assertProcessedCount(result *Result, a Assertion) error {
	if n := result.Calls[a.Record]; n != a.Count {
		return &AssertionError{
			Type:     AssertProcessedCount,
			Expected: fmt.Sprintf("%d validation(s) of %s", a.Count, a.Record),
			Actual:   fmt.Sprintf("%d validation(s)", n),
		}
	}
	return nil
}

// assertFinalStatus checks the stored aggregate status of a record.
func assertFinalStatus(result *Result, a Assertion) error {
	got, ok := result.Status[a.Record]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalStatus,
			Expected: fmt.Sprintf("record %s seeded", a.Record),
			Actual:   "record not found",
		}
	}
	if got != visit.Outcome(a.Status) {
		return &AssertionError{
			Type:     AssertFinalStatus,
			Expected: fmt.Sprintf("%s is %s", a.Record, a.Status),
			Actual:   string(got),
		}
	}
	return nil
}

// assertGearStatus checks one gear's stored outcome for a record.
func assertGearStatus(result *Result, a Assertion) error {
	status, ok := result.Gears[a.Record]
	if !ok {
		return &AssertionError{
			Type:     AssertGearStatus,
			Expected: fmt.Sprintf("record %s seeded", a.Record),
			Actual:   "record not found",
		}
	}
	got, ok := status[a.Gear]
	if !ok || got != visit.Outcome(a.Status) {
		actual := string(got)
		if !ok {
			actual = "no outcome"
		}
		return &AssertionError{
			Type:     AssertGearStatus,
			Expected: fmt.Sprintf("%s/%s is %s", a.Record, a.Gear, a.Status),
			Actual:   actual,
		}
	}
	return nil
}

// assertExcluded checks that a record was dropped before queueing.
func assertExcluded(result *Result, a Assertion) error {
	if result.Report != nil {
		for _, p := range result.Report.Participants {
			for _, x := range p.Excluded {
				if x.Record == a.Record {
					return nil
				}
			}
		}
	}
	return &AssertionError{
		Type:     AssertExcluded,
		Expected: fmt.Sprintf("record %s excluded", a.Record),
		Actual:   "not excluded",
	}
}

// assertParticipantError checks that a participant stopped with an error
// whose text starts with the stage.
func assertParticipantError(result *Result, a Assertion) error {
	p := result.participant(a.Participant)
	switch {
	case p == nil:
		return &AssertionError{
			Type:     AssertParticipantError,
			Expected: fmt.Sprintf("participant %s in report", a.Participant),
			Actual:   "participant not found",
		}
	case p.Error == "":
		return &AssertionError{
			Type:     AssertParticipantError,
			Expected: fmt.Sprintf("%s error for %s", a.Stage, a.Participant),
			Actual:   "no error",
			Order:    p.Order,
		}
	case !strings.HasPrefix(p.Error, a.Stage+":"):
		return &AssertionError{
			Type:     AssertParticipantError,
			Expected: fmt.Sprintf("%s error for %s", a.Stage, a.Participant),
			Actual:   p.Error,
			Order:    p.Order,
		}
	}
	return nil
}

// assertWarningCount checks the number of non-fatal warnings.
func assertWarningCount(result *Result, a Assertion) error {
	p := result.participant(a.Participant)
	if p == nil {
		return &AssertionError{
			Type:     AssertWarningCount,
			Expected: fmt.Sprintf("participant %s in report", a.Participant),
			Actual:   "participant not found",
		}
	}
	if len(p.Warnings) != a.Count {
		return &AssertionError{
			Type:     AssertWarningCount,
			Expected: fmt.Sprintf("%d warning(s)", a.Count),
			Actual:   fmt.Sprintf("%d warning(s): %v", len(p.Warnings), p.Warnings),
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertOrder:
			err = assertOrder(result, assertion)
		case AssertProcessedCount:
			err = assertProcessedCount(result, assertion)
		case AssertFinalStatus:
			err = assertFinalStatus(result, assertion)
		case AssertGearStatus:
			err = assertGearStatus(result, assertion)
		case AssertExcluded:
			err = assertExcluded(result, assertion)
		case AssertParticipantError:
			err = assertParticipantError(result, assertion)
		case AssertWarningCount:
			err = assertWarningCount(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
