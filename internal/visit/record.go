package visit

import (
	"errors"
	"fmt"
	"maps"
	"time"
)

// ParticipantID is the stable, opaque identity of a tracked participant.
type ParticipantID string

// Datatype labels the schema of a record (e.g. "UDS", "FTLD", "LBD").
type Datatype string

// Outcome is the result reported by one validator gear.
type Outcome string

const (
	Pass     Outcome = "PASS"
	Fail     Outcome = "FAIL"
	InReview Outcome = "IN_REVIEW"
)

// ParseOutcome converts a string to an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(s); o {
	case Pass, Fail, InReview:
		return o, nil
	default:
		return "", fmt.Errorf("unknown outcome %q", s)
	}
}

// QCStatus maps validator gear name to its last reported outcome.
type QCStatus map[string]Outcome

// Clone returns an independent copy. A nil status clones to an empty map.
func (s QCStatus) Clone() QCStatus {
	out := make(QCStatus, len(s))
	maps.Copy(out, s)
	return out
}

// Record is one submitted visit or document instance.
type Record struct {
	ID          string
	Participant ParticipantID
	Datatype    Datatype
	// Name is the record's file name in the store; it determines the tier.
	Name string
	// Fields holds the raw record values, including candidate date fields.
	Fields map[string]string
	// Modified is the store modification time, the last-resort date.
	Modified time.Time
	// EffectiveDate is resolved once at ingest and used for ordering and
	// for the store's date filters.
	EffectiveDate time.Time
	QCStatus      QCStatus
}

func (r Record) String() string {
	return fmt.Sprintf("%s(%s/%s@%s)", r.ID, r.Participant, r.Datatype, FormatDate(r.EffectiveDate))
}

// FormatDate renders a date the way it appears in logs and reports.
// Midnight UTC dates print without a time component.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339)
}

var dateLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	time.DateTime,
	"01/02/2006",
}

// ParseDate parses a date field value. Values without a zone are UTC.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// ErrRecordNotFound is returned by record stores for an unknown record id.
var ErrRecordNotFound = errors.New("record not found")
