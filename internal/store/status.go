package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// UpdateStatus replaces a record's gear outcome map in one transaction.
// Each written row is stamped with the next logical clock value.
func (s *Store) UpdateStatus(ctx context.Context, id string, status visit.QCStatus) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE id = ?`, id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("update status %s: %w", id, err)
		}
		if exists == 0 {
			return fmt.Errorf("update status %s: %w", id, visit.ErrRecordNotFound)
		}
		return s.replaceStatus(ctx, tx, id, status)
	})
}

// replaceStatus rewrites every qc_status row of a record. Gears are written
// in sorted order so seq assignment is deterministic.
func (s *Store) replaceStatus(ctx context.Context, tx *sql.Tx, id string, status visit.QCStatus) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM qc_status WHERE record_id = ?`, id); err != nil {
		return fmt.Errorf("clear status %s: %w", id, err)
	}

	gears := make([]string, 0, len(status))
	for g := range status {
		gears = append(gears, g)
	}
	slices.Sort(gears)

	for _, g := range gears {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO qc_status (record_id, gear, outcome, seq) VALUES (?, ?, ?, ?)
		`, id, g, string(status[g]), s.clock.Next())
		if err != nil {
			return fmt.Errorf("write status %s/%s: %w", id, g, err)
		}
	}
	return nil
}

// readStatus loads the status maps of the given records.
func (s *Store) readStatus(ctx context.Context, ids []string) (map[string]visit.QCStatus, error) {
	out := make(map[string]visit.QCStatus, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, gear, outcome
		FROM qc_status
		WHERE record_id IN (`+strings.Join(marks, ", ")+`)
		ORDER BY record_id COLLATE BINARY ASC, seq ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, gear, outcome string
		if err := rows.Scan(&id, &gear, &outcome); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		o, err := visit.ParseOutcome(outcome)
		if err != nil {
			return nil, fmt.Errorf("record %s gear %s: %w", id, gear, err)
		}
		if out[id] == nil {
			out[id] = visit.QCStatus{}
		}
		out[id][gear] = o
	}
	return out, rows.Err()
}
