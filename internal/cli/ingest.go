package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/batch"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Database string
	Config   string
}

// IngestResult is the ingest command result.
type IngestResult struct {
	Ingested int      `json:"ingested"`
	Records  []string `json:"records"`
}

func (r IngestResult) String() string {
	return fmt.Sprintf("Ingested %d record(s)", r.Ingested)
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <batch.yaml>",
		Short: "Load records into the record store",
		Long: `Resolve each record's effective date with the configured date fields
and upsert it into the SQLite record store. Ingesting does not validate.

Example:
  qcsched ingest --db ./qc.db --config ./qcsched.yaml ./batch.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to scheduler configuration (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runIngest(opts *IngestOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := loadConfig(f, opts.Config)
	if err != nil {
		return err
	}
	file, err := batch.Load(path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, "invalid batch file", err)
	}
	recs, err := file.VisitRecords(cfg.DateResolver())
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, "invalid batch file", err)
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

	result := IngestResult{Records: make([]string, 0, len(recs))}
	for _, rec := range recs {
		if err := st.PutRecord(ctx, rec); err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to store record "+rec.ID, err)
		}
		logger.Debug("record ingested", "record", rec.ID, "date", rec.EffectiveDate)
		result.Records = append(result.Records, rec.ID)
	}
	result.Ingested = len(result.Records)
	return f.Success(result)
}
