package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// createTestStore creates a new store in a temp directory for testing.
// Job ids are "job-1", "job-2", ... in creation order.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	n := 0
	s, err := Open(path, WithJobIDs(func() string {
		n++
		return fmt.Sprintf("job-%d", n)
	}))
	require.NoError(t, err, "Open() failed")
	t.Cleanup(func() { s.Close() })
	return s
}

func day(s string) time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return d
}

// createTestRecord creates a record with minimal required fields.
func createTestRecord(id string, participant visit.ParticipantID, dt visit.Datatype, date string) visit.Record {
	return visit.Record{
		ID:            id,
		Participant:   participant,
		Datatype:      dt,
		Name:          id + "_" + string(dt) + ".json",
		Fields:        map[string]string{"visitdate": date},
		Modified:      day(date).Add(36 * time.Hour),
		EffectiveDate: day(date),
		QCStatus:      visit.QCStatus{},
	}
}
