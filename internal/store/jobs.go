package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/poller"
)

// Job is one row of the local job ledger.
type Job struct {
	ID          string            `json:"id"`
	Gear        string            `json:"gear"`
	Project     string            `json:"project,omitempty"`
	Destination string            `json:"destination,omitempty"`
	Config      map[string]string `json:"config,omitempty"`
	State       poller.JobState   `json:"state"`
	RetryOf     string            `json:"retry_of,omitempty"`
	Seq         int64             `json:"seq"`
}

// Ledger binds the job ledger to one project so it satisfies
// poller.JobService, whose Trigger call carries no project.
type Ledger struct {
	store   *Store
	project string
}

// Jobs returns the ledger view for project.
func (s *Store) Jobs(project string) *Ledger {
	return &Ledger{store: s, project: project}
}

// Trigger records a new PENDING job and returns its id.
func (l *Ledger) Trigger(ctx context.Context, gear string, config map[string]string, destination string) (string, error) {
	return l.store.insertJob(ctx, Job{
		Gear:        gear,
		Project:     l.project,
		Destination: destination,
		Config:      config,
		State:       poller.Pending,
	})
}

// GetJobState returns the job's current state.
func (l *Ledger) GetJobState(ctx context.Context, id string) (poller.JobState, error) {
	job, err := l.store.GetJob(ctx, id)
	if err != nil {
		return "", err
	}
	return job.State, nil
}

// FindJob returns the newest job matching p.
func (l *Ledger) FindJob(ctx context.Context, p poller.Predicate) (string, bool, error) {
	return l.store.FindJob(ctx, p)
}

func (s *Store) insertJob(ctx context.Context, job Job) (string, error) {
	if job.ID == "" {
		job.ID = s.jobIDs()
	}
	config, err := marshalFields(job.Config)
	if err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	var retryOf any
	if job.RetryOf != "" {
		retryOf = job.RetryOf
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, gear, project, destination, config, state, retry_of, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.Gear, job.Project, job.Destination, config, string(job.State), retryOf, s.clock.Next())
	if err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	return job.ID, nil
}

// GetJob returns a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, gear, project, destination, config, state, retry_of, seq
		FROM jobs WHERE id = ?
	`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// FindJob returns the newest job (highest seq) matching p.
func (s *Store) FindJob(ctx context.Context, p poller.Predicate) (string, bool, error) {
	var (
		conds []string
		args  []any
	)
	if p.Project != "" {
		conds = append(conds, "project = ?")
		args = append(args, p.Project)
	}
	if p.Gear != "" {
		conds = append(conds, "gear = ?")
		args = append(args, p.Gear)
	}
	if p.Destination != "" {
		conds = append(conds, "destination = ?")
		args = append(args, p.Destination)
	}
	if p.RetryOf != "" {
		conds = append(conds, "retry_of = ?")
		args = append(args, p.RetryOf)
	}
	if len(p.States) > 0 {
		marks := make([]string, len(p.States))
		for i, st := range p.States {
			marks[i] = "?"
			args = append(args, string(st))
		}
		conds = append(conds, "state IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT id FROM jobs`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY seq DESC LIMIT 1`

	var id string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find job: %w", err)
	}
	return id, true, nil
}

// SetJobState moves a job to state.
func (s *Store) SetJobState(ctx context.Context, id string, state poller.JobState) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET state = ?, seq = ? WHERE id = ?`,
		string(state), s.clock.Next(), id)
	if err != nil {
		return fmt.Errorf("set job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set job %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return nil
}

// RetryJob starts a PENDING copy of job id the way the platform retries a
// failed job, and returns the new id. The old job keeps its state.
func (s *Store) RetryJob(ctx context.Context, id string) (string, error) {
	old, err := s.GetJob(ctx, id)
	if err != nil {
		return "", err
	}
	return s.insertJob(ctx, Job{
		Gear:        old.Gear,
		Project:     old.Project,
		Destination: old.Destination,
		Config:      old.Config,
		State:       poller.Pending,
		RetryOf:     old.ID,
	})
}

// ListJobs returns every job in seq order.
func (s *Store) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, gear, project, destination, config, state, retry_of, seq
		FROM jobs ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row scanner) (Job, error) {
	var (
		job     Job
		config  string
		state   string
		retryOf sql.NullString
	)
	if err := row.Scan(&job.ID, &job.Gear, &job.Project, &job.Destination, &config, &state, &retryOf, &job.Seq); err != nil {
		return Job{}, err
	}
	if err := json.Unmarshal([]byte(config), &job.Config); err != nil {
		return Job{}, fmt.Errorf("job %s config: %w", job.ID, err)
	}
	if len(job.Config) == 0 {
		job.Config = nil
	}
	job.State = poller.JobState(state)
	job.RetryOf = retryOf.String
	return job, nil
}
