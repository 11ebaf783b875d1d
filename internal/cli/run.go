package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/batch"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/coordinator"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/poller"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/rules"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/scheduler"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database    string
	Config      string
	Rules       string
	MetricsAddr string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <requests.yaml>",
		Short: "Schedule validation requests and print the run report",
		Long: `Validate the records selected by a request file, in dependency order,
cascading every change to the records that depend on it.

Records listed in the request file are ingested first. Every datatype is
checked against the CUE definition of the same name in the rules
directory; a datatype without a definition is marked IN_REVIEW.

Example:
  qcsched run --db ./qc.db --config ./qcsched.yaml --rules ./rules ./requests.yaml
  qcsched run --db ./qc.db --config ./qcsched.yaml --rules ./rules --metrics-addr :9090 ./requests.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to scheduler configuration (required)")
	cmd.Flags().StringVar(&opts.Rules, "rules", "", "directory of CUE rule definitions (required)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("rules")

	return cmd
}

func runSchedule(opts *RunOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := loadConfig(f, opts.Config)
	if err != nil {
		return err
	}
	graph, err := cfg.Graph(logger)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeConfig, "invalid dependency graph", err)
	}
	classifier, err := cfg.BuildClassifier()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeConfig, "invalid classifier", err)
	}
	upstream, cascaded, err := cfg.ResetModes()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeConfig, "invalid reset modes", err)
	}

	file, err := batch.Load(path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, "invalid request file", err)
	}
	recs, err := file.VisitRecords(cfg.DateResolver())
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, "invalid request file", err)
	}
	reqs, err := file.ValidationRequests(upstream)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, "invalid request file", err)
	}

	logger.Info("loading rules", "dir", opts.Rules)
	engine, err := rules.Load(opts.Rules, cfg.Gear)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeValidation, "failed to load rules", err)
	}

	st, closeStore, err := openStore(f, logger, opts.Database)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("database ready", "path", opts.Database)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if opts.MetricsAddr != "" {
		stop, err := serveMetrics(logger, opts.MetricsAddr)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeGeneric, "failed to start metrics server", err)
		}
		defer stop()
	}

	for _, rec := range recs {
		if err := st.PutRecord(ctx, rec); err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to store record "+rec.ID, err)
		}
	}

	coord := coordinator.New(st, engine, graph, cfg.Gear, coordinator.WithLogger(logger))
	schedOpts := []scheduler.Option{
		scheduler.WithPoolSize(cfg.Pool.Size),
		scheduler.WithMaxSteps(cfg.Pool.MaxSteps),
		scheduler.WithResetModes(upstream, cascaded),
		scheduler.WithLogger(logger),
	}
	if t := cfg.Trigger; t != nil {
		pollerOpts := append(cfg.PollerOptions(), poller.WithLogger(logger))
		schedOpts = append(schedOpts, scheduler.WithTrigger(&scheduler.Trigger{
			Poller:  poller.New(st.Jobs(t.Project), pollerOpts...),
			Project: t.Project,
			Gear:    t.Gear,
			Config:  t.Config,
		}))
	}
	sched := scheduler.New(coord, st, classifier, cfg.Comparator(), schedOpts...)

	report, err := sched.Run(ctx, reqs)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, "run interrupted", err)
	}
	return writeReport(f, report)
}

// writeReport prints the report. Participant failures still print the
// full report and exit with ExitFailure.
func writeReport(f *OutputFormatter, report *scheduler.Report) error {
	runErr := report.Err()
	if f.Format == "json" {
		if runErr == nil {
			return f.Success(report)
		}
		if err := f.Error(ErrorCode(runErr, ErrCodeGeneric), "run finished with failures", report); err != nil {
			return err
		}
		return WrapExitError(ExitFailure, "run finished with failures", runErr)
	}

	fmt.Fprintln(f.Writer, reportText(report))
	if runErr != nil {
		return f.Fail(ExitFailure, ErrorCode(runErr, ErrCodeGeneric), "run finished with failures", runErr)
	}
	return nil
}

func reportText(r *scheduler.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %d participant(s)", r.RunID, len(r.Participants))
	for _, p := range r.Participants {
		fmt.Fprintf(&b, "\n%s", p.Participant)
		for i, s := range p.Order {
			fmt.Fprintf(&b, "\n  %d. %s %s %s %s -> %s", i+1, s.Record, s.Datatype, s.Date, s.Tier, s.Status)
			if s.Origin != "" {
				fmt.Fprintf(&b, " (cascade from %s)", s.Origin)
			}
			if s.Job != "" {
				fmt.Fprintf(&b, " job %s", s.Job)
			}
		}
		for _, e := range p.Excluded {
			fmt.Fprintf(&b, "\n  excluded %s: %s", e.Record, e.Reason)
		}
		for _, w := range p.Warnings {
			fmt.Fprintf(&b, "\n  warning: %s", w)
		}
		if p.Error != "" {
			fmt.Fprintf(&b, "\n  error: %s", p.Error)
		}
	}
	return b.String()
}

// serveMetrics exposes /metrics until the returned stop function runs.
func serveMetrics(logger *slog.Logger, addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}, nil
}
