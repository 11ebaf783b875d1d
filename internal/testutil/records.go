package testutil

import (
	"time"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// Day parses a YYYY-MM-DD date and panics on malformed input.
func Day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

// Record builds a record with its effective date already resolved.
// The file name is "<id>_<datatype>.json" so the default classifier
// assigns the datatype's usual tier.
func Record(id string, participant visit.ParticipantID, dt visit.Datatype, date string) visit.Record {
	d := Day(date)
	return visit.Record{
		ID:            id,
		Participant:   participant,
		Datatype:      dt,
		Name:          id + "_" + string(dt) + ".json",
		Fields:        map[string]string{"visitdate": date},
		Modified:      d,
		EffectiveDate: d,
		QCStatus:      visit.QCStatus{},
	}
}
