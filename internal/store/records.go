package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// PutRecord inserts or updates a record. The effective date must already
// be resolved.
//
// A nil QCStatus leaves the stored status untouched, so re-ingesting a
// record keeps every gear's outcome. A non-nil map, even an empty one,
// replaces it.
func (s *Store) PutRecord(ctx context.Context, rec visit.Record) error {
	if rec.ID == "" {
		return errors.New("put record: empty id")
	}
	if rec.EffectiveDate.IsZero() {
		return fmt.Errorf("put record %s: effective date not resolved", rec.ID)
	}
	fields, err := marshalFields(rec.Fields)
	if err != nil {
		return fmt.Errorf("put record %s: %w", rec.ID, err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO records (id, participant, datatype, name, fields, modified, effective_date)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				participant = excluded.participant,
				datatype = excluded.datatype,
				name = excluded.name,
				fields = excluded.fields,
				modified = excluded.modified,
				effective_date = excluded.effective_date
		`,
			rec.ID,
			string(rec.Participant),
			string(rec.Datatype),
			rec.Name,
			fields,
			encodeTime(rec.Modified),
			encodeTime(rec.EffectiveDate),
		)
		if err != nil {
			return fmt.Errorf("put record %s: %w", rec.ID, err)
		}
		if rec.QCStatus == nil {
			return nil
		}
		return s.replaceStatus(ctx, tx, rec.ID, rec.QCStatus)
	})
}

// GetRecord returns a record with its QC status.
func (s *Store) GetRecord(ctx context.Context, id string) (visit.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, participant, datatype, name, fields, modified, effective_date
		FROM records
		WHERE id = ?
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return visit.Record{}, fmt.Errorf("get record %s: %w", id, visit.ErrRecordNotFound)
	}
	if err != nil {
		return visit.Record{}, fmt.Errorf("get record %s: %w", id, err)
	}

	statuses, err := s.readStatus(ctx, []string{id})
	if err != nil {
		return visit.Record{}, err
	}
	rec.QCStatus = statuses[id]
	if rec.QCStatus == nil {
		rec.QCStatus = visit.QCStatus{}
	}
	return rec, nil
}

// FindRecords returns the participant's records of datatype dt matching
// filter, ordered by effective date then id.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) FindRecords(ctx context.Context, participant visit.ParticipantID, dt visit.Datatype, filter visit.DateFilter) ([]visit.Record, error) {
	where, args, err := dateClause(filter)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, participant, datatype, name, fields, modified, effective_date
		FROM records
		WHERE participant = ? AND datatype = ?` + where + `
		ORDER BY effective_date ASC, id COLLATE BINARY ASC
	`
	rows, err := s.db.QueryContext(ctx, query, append([]any{string(participant), string(dt)}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	defer rows.Close()

	recs := []visit.Record{}
	var ids []string
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("find records: %w", err)
		}
		recs = append(recs, rec)
		ids = append(ids, rec.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}

	statuses, err := s.readStatus(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i].QCStatus = statuses[recs[i].ID]
		if recs[i].QCStatus == nil {
			recs[i].QCStatus = visit.QCStatus{}
		}
	}
	return recs, nil
}

// Participants lists every participant with at least one record, sorted.
func (s *Store) Participants(ctx context.Context) ([]visit.ParticipantID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT participant FROM records ORDER BY participant COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	out := []visit.ParticipantID{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, visit.ParticipantID(p))
	}
	return out, rows.Err()
}

// dateClause renders a filter as an SQL condition on effective_date.
func dateClause(f visit.DateFilter) (string, []any, error) {
	if f.Op == visit.OpAll {
		return "", nil, nil
	}
	if len(f.Dates) == 0 {
		return "", nil, fmt.Errorf("date filter %s: no dates", f.Op)
	}

	switch f.Op {
	case visit.OpEqual:
		return " AND effective_date = ?", []any{encodeTime(f.Dates[0])}, nil
	case visit.OpAnyOf:
		marks := make([]string, len(f.Dates))
		args := make([]any, len(f.Dates))
		for i, d := range f.Dates {
			marks[i] = "?"
			args[i] = encodeTime(d)
		}
		return " AND effective_date IN (" + strings.Join(marks, ", ") + ")", args, nil
	case visit.OpAtOrAfter:
		return " AND effective_date >= ?", []any{encodeTime(f.Dates[0])}, nil
	case visit.OpAfter:
		return " AND effective_date > ?", []any{encodeTime(f.Dates[0])}, nil
	default:
		return "", nil, fmt.Errorf("unsupported date filter %s", f.Op)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (visit.Record, error) {
	var (
		rec                 visit.Record
		participant, dt     string
		fields              string
		modified, effective int64
	)
	if err := row.Scan(&rec.ID, &participant, &dt, &rec.Name, &fields, &modified, &effective); err != nil {
		return visit.Record{}, err
	}
	f, err := unmarshalFields(fields)
	if err != nil {
		return visit.Record{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	rec.Participant = visit.ParticipantID(participant)
	rec.Datatype = visit.Datatype(dt)
	rec.Fields = f
	rec.Modified = decodeTime(modified)
	rec.EffectiveDate = decodeTime(effective)
	return rec, nil
}

func encodeTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func decodeTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// marshalFields encodes the field map as JSON TEXT. Map keys are sorted by
// encoding/json, so identical maps produce identical rows.
func marshalFields(fields map[string]string) (string, error) {
	if fields == nil {
		return "{}", nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

func unmarshalFields(data string) (map[string]string, error) {
	fields := map[string]string{}
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return fields, nil
}
