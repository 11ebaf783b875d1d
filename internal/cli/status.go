package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/qc"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Database string
}

// StatusResult is the status command result.
type StatusResult struct {
	Record      string         `json:"record"`
	Participant string         `json:"participant"`
	Datatype    string         `json:"datatype"`
	Date        string         `json:"date"`
	Status      visit.Outcome  `json:"status"`
	Gears       visit.QCStatus `json:"gears"`
}

func (r StatusResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s/%s@%s): %s", r.Record, r.Participant, r.Datatype, r.Date, r.Status)
	for _, gear := range slices.Sorted(maps.Keys(r.Gears)) {
		fmt.Fprintf(&b, "\n  %s: %s", gear, r.Gears[gear])
	}
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status <record-id>",
		Short: "Show a record's aggregate QC status",
		Long: `Show the aggregate QC status of a record and the outcome reported by
every validator gear. Any FAIL makes the record FAIL, otherwise any
IN_REVIEW makes it IN_REVIEW.

Example:
  qcsched status --db ./qc.db uds-001`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStatus(opts *StatusOptions, id string, cmd *cobra.Command) error {
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
	rec, err := st.GetRecord(ctx, id)
	if errors.Is(err, visit.ErrRecordNotFound) {
		return f.Fail(ExitCommandError, ErrCodeNotFound, "record not found: "+id, nil)
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to read record", err)
	}

	return f.Success(StatusResult{
		Record:      rec.ID,
		Participant: string(rec.Participant),
		Datatype:    string(rec.Datatype),
		Date:        visit.FormatDate(rec.EffectiveDate),
		Status:      qc.Aggregate(rec.QCStatus),
		Gears:       rec.QCStatus,
	})
}
