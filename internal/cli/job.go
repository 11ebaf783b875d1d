package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/poller"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/store"
)

// JobOptions holds flags shared by the job subcommands.
type JobOptions struct {
	*RootOptions
	Database string
	Retry    bool
}

// JobResult is the job set result.
type JobResult struct {
	Job   string          `json:"job"`
	State poller.JobState `json:"state"`
	Retry string          `json:"retry,omitempty"`
}

func (r JobResult) String() string {
	out := fmt.Sprintf("Job %s is %s", r.Job, r.State)
	if r.Retry != "" {
		out += fmt.Sprintf("; retry %s is PENDING", r.Retry)
	}
	return out
}

// JobList is the job list result.
type JobList struct {
	Jobs []store.Job `json:"jobs"`
}

func (l JobList) String() string {
	if len(l.Jobs) == 0 {
		return "No jobs"
	}
	lines := make([]string, len(l.Jobs))
	for i, j := range l.Jobs {
		lines[i] = fmt.Sprintf("%s %s %s/%s -> %s", j.ID, j.State, j.Project, j.Gear, j.Destination)
		if j.RetryOf != "" {
			lines[i] += " (retry of " + j.RetryOf + ")"
		}
	}
	return strings.Join(lines, "\n")
}

// NewJobCommand creates the job command group for the local job ledger.
func NewJobCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JobOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and drive the local downstream job ledger",
		Long: `The local job ledger stands in for the platform's job service. A run
with a trigger configured waits on the jobs it starts; these commands move
them through their states from another terminal.`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	set := &cobra.Command{
		Use:   "set <job-id> <state>",
		Short: "Set a job's state",
		Long: `Set a job's state (PENDING, RUNNING, COMPLETE, FAILED, RETRIED).
With --retry a PENDING retry of the job is started as well.

Example:
  qcsched job set --db ./qc.db job-1 failed --retry`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobSet(opts, args[0], args[1], cmd)
		},
	}
	set.Flags().BoolVar(&opts.Retry, "retry", false, "start a retry of the job")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List every job in the ledger",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobList(opts, cmd)
		},
	}

	cmd.AddCommand(set, list)
	return cmd
}

func runJobSet(opts *JobOptions, id, rawState string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	state, err := poller.ParseJobState(rawState)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, "invalid job state", err)
	}

	st, closeStore, err := openStore(f, logger, opts.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := st.SetJobState(ctx, id, state); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return f.Fail(ExitCommandError, ErrCodeNotFound, "job not found: "+id, nil)
		}
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to update job", err)
	}

	result := JobResult{Job: id, State: state}
	if opts.Retry {
		if result.Retry, err = st.RetryJob(ctx, id); err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to retry job", err)
		}
	}
	logger.Debug("job updated", "job", id, "state", state, "retry", result.Retry)
	return f.Success(result)
}

func runJobList(opts *JobOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	st, closeStore, err := openStore(f, logger, opts.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	jobs, err := st.ListJobs(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to list jobs", err)
	}
	return f.Success(JobList{Jobs: jobs})
}
