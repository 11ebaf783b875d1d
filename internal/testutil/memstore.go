package testutil

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// MemStore is an in-memory record store for tests.
//
// It mirrors the SQLite store's contract: FindRecords returns matches in
// (effective date, id) order and GetRecord wraps visit.ErrRecordNotFound.
// Records are copied on the way in and out.
//
// Thread-safety: all methods are safe for concurrent use.
type MemStore struct {
	mu      sync.Mutex
	records map[string]visit.Record
	updates []string

	// FindErr, when set, is returned by every FindRecords call.
	FindErr error
}

// NewMemStore creates a store holding recs.
func NewMemStore(recs ...visit.Record) *MemStore {
	s := &MemStore{records: make(map[string]visit.Record)}
	for _, r := range recs {
		s.records[r.ID] = clone(r)
	}
	return s
}

// PutRecord inserts or replaces a record. A nil QCStatus keeps the
// status already stored.
func (s *MemStore) PutRecord(_ context.Context, rec visit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := clone(rec)
	if rec.QCStatus == nil {
		next.QCStatus = s.records[rec.ID].QCStatus
	}
	if next.QCStatus == nil {
		next.QCStatus = visit.QCStatus{}
	}
	s.records[rec.ID] = next
	return nil
}

// GetRecord returns the record with the given id.
func (s *MemStore) GetRecord(_ context.Context, id string) (visit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return visit.Record{}, fmt.Errorf("get record %s: %w", id, visit.ErrRecordNotFound)
	}
	return clone(rec), nil
}

// FindRecords returns the participant's records of datatype dt matching filter.
func (s *MemStore) FindRecords(_ context.Context, participant visit.ParticipantID, dt visit.Datatype, filter visit.DateFilter) ([]visit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	var out []visit.Record
	for _, r := range s.records {
		if r.Participant == participant && r.Datatype == dt && filter.Matches(r.EffectiveDate) {
			out = append(out, clone(r))
		}
	}
	slices.SortFunc(out, func(a, b visit.Record) int {
		if c := a.EffectiveDate.Compare(b.EffectiveDate); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

// UpdateStatus replaces a record's QC status.
func (s *MemStore) UpdateStatus(_ context.Context, id string, status visit.QCStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("update status %s: %w", id, visit.ErrRecordNotFound)
	}
	rec.QCStatus = status.Clone()
	s.records[id] = rec
	s.updates = append(s.updates, id)
	return nil
}

// Participants returns every participant with at least one record, sorted.
func (s *MemStore) Participants(_ context.Context) ([]visit.ParticipantID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[visit.ParticipantID]struct{})
	for _, r := range s.records {
		seen[r.Participant] = struct{}{}
	}
	out := make([]visit.ParticipantID, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	slices.Sort(out)
	return out, nil
}

// Updates returns the ids passed to UpdateStatus, in call order.
func (s *MemStore) Updates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.updates)
}

func clone(r visit.Record) visit.Record {
	r.Fields = maps.Clone(r.Fields)
	r.QCStatus = r.QCStatus.Clone()
	return r
}
