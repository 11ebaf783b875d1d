package visit

import (
	"fmt"
	"strings"
	"time"
)

// Op is the comparison a cutoff selector or store date filter applies to a
// record's effective date.
type Op int

const (
	// OpAll matches every record regardless of date.
	OpAll Op = iota
	// OpEqual matches records whose date equals the single given date.
	OpEqual
	// OpAnyOf matches records whose date equals any of the given dates.
	OpAnyOf
	// OpAtOrAfter matches records dated on or after the given date (>=).
	OpAtOrAfter
	// OpAfter matches records dated strictly after the given date (>).
	OpAfter
)

func (o Op) String() string {
	switch o {
	case OpAll:
		return "all"
	case OpEqual:
		return "="
	case OpAnyOf:
		return "in"
	case OpAtOrAfter:
		return ">="
	case OpAfter:
		return ">"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// ParseOp converts the textual form produced by Op.String.
func ParseOp(s string) (Op, error) {
	switch strings.TrimSpace(s) {
	case "", "all":
		return OpAll, nil
	case "=", "==", "eq":
		return OpEqual, nil
	case "in", "any":
		return OpAnyOf, nil
	case ">=", "gte":
		return OpAtOrAfter, nil
	case ">", "gt":
		return OpAfter, nil
	default:
		return 0, fmt.Errorf("unknown date operator %q", s)
	}
}

// DateFilter restricts a record store query by effective date.
type DateFilter struct {
	Op    Op
	Dates []time.Time
}

// Matches reports whether date satisfies the filter. Stores that cannot push
// the filter down use it directly.
func (f DateFilter) Matches(date time.Time) bool {
	switch f.Op {
	case OpAll:
		return true
	case OpEqual, OpAnyOf:
		for _, d := range f.Dates {
			if date.Equal(d) {
				return true
			}
		}
		return false
	case OpAtOrAfter:
		return len(f.Dates) > 0 && !date.Before(f.Dates[0])
	case OpAfter:
		return len(f.Dates) > 0 && date.After(f.Dates[0])
	default:
		return false
	}
}

// Selector picks the records a ValidationRequest applies to.
//
// A selector with Records set is explicit and the remaining fields are
// ignored. Otherwise Op and Dates form a cutoff.
type Selector struct {
	Records []string
	Op      Op
	Dates   []time.Time
	// Forward asks for every record after the cutoff to be re-checked as
	// well. It only has an effect for longitudinal datatypes.
	Forward bool
}

// Explicit selects the given record ids verbatim.
func Explicit(ids ...string) Selector {
	return Selector{Records: ids}
}

// Cutoff selects records from date onwards (a forward re-check).
func Cutoff(date time.Time) Selector {
	return Selector{Op: OpAtOrAfter, Dates: []time.Time{date}, Forward: true}
}

// ExactDates selects records dated exactly on one of the dates.
func ExactDates(dates ...time.Time) Selector {
	if len(dates) == 1 {
		return Selector{Op: OpEqual, Dates: dates}
	}
	return Selector{Op: OpAnyOf, Dates: dates}
}

// After selects records dated strictly after date.
func After(date time.Time) Selector {
	return Selector{Op: OpAfter, Dates: []time.Time{date}}
}

// IsExplicit reports whether the selector names records directly.
func (s Selector) IsExplicit() bool {
	return len(s.Records) > 0
}

func (s Selector) String() string {
	if s.IsExplicit() {
		return "records[" + strings.Join(s.Records, ",") + "]"
	}
	dates := make([]string, len(s.Dates))
	for i, d := range s.Dates {
		dates[i] = FormatDate(d)
	}
	out := s.Op.String() + " " + strings.Join(dates, ",")
	if s.Forward {
		out += " (forward)"
	}
	return out
}

// ResetMode says what happens to a record's QC status before a gear reruns.
type ResetMode int

const (
	// ResetNone keeps every entry and replaces only the running gear's.
	ResetNone ResetMode = iota
	// ResetGear clears the running gear's entry, preserving the others.
	ResetGear
	// ResetAll clears every entry; used when a pipeline starts fresh.
	ResetAll
)

func (m ResetMode) String() string {
	switch m {
	case ResetNone:
		return "none"
	case ResetGear:
		return "gear"
	case ResetAll:
		return "all"
	default:
		return fmt.Sprintf("ResetMode(%d)", int(m))
	}
}

// ParseResetMode converts "none", "gear" or "all".
func ParseResetMode(s string) (ResetMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "append":
		return ResetNone, nil
	case "gear":
		return ResetGear, nil
	case "all":
		return ResetAll, nil
	default:
		return 0, fmt.Errorf("unknown reset mode %q", s)
	}
}

// ValidationRequest is one unit of scheduling work.
type ValidationRequest struct {
	Datatype    Datatype
	Participant ParticipantID
	Selector    Selector
	Reset       ResetMode
	// Origin is the cascade origin timestamp: the effective date of the
	// record whose change produced this request. Zero for upstream requests.
	Origin time.Time
}

func (r ValidationRequest) String() string {
	return fmt.Sprintf("%s/%s %s", r.Participant, r.Datatype, r.Selector)
}
