package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/scheduler"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// DatatypeSummary describes one configured datatype.
type DatatypeSummary struct {
	Name         string   `json:"name"`
	Longitudinal bool     `json:"longitudinal"`
	DependsOn    []string `json:"depends_on,omitempty"`
	Dependents   []string `json:"dependents,omitempty"`
}

// ConfigSummary is the check-config result.
type ConfigSummary struct {
	Gear      string            `json:"gear"`
	Pinned    string            `json:"pinned_datatype,omitempty"`
	Datatypes []DatatypeSummary `json:"datatypes"`
	Cycles    []string          `json:"cycles,omitempty"`
	Tiers     []string          `json:"tier_rules"`
	PoolSize  int               `json:"pool_size"`
	Trigger   string            `json:"trigger,omitempty"`
}

func (s ConfigSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Configuration valid (gear %s, %d worker(s))\n", s.Gear, s.PoolSize)
	for _, dt := range s.Datatypes {
		flag := ""
		if dt.Longitudinal {
			flag = " [longitudinal]"
		}
		if dt.Name == s.Pinned {
			flag += " [pinned]"
		}
		fmt.Fprintf(&b, "  %s%s", dt.Name, flag)
		if len(dt.Dependents) > 0 {
			fmt.Fprintf(&b, " -> %s", strings.Join(dt.Dependents, ", "))
		}
		b.WriteString("\n")
	}
	for _, c := range s.Cycles {
		fmt.Fprintf(&b, "  warning: cycle %s\n", c)
	}
	fmt.Fprintf(&b, "  tiers: %s", strings.Join(s.Tiers, "; "))
	if s.Trigger != "" {
		fmt.Fprintf(&b, "\n  trigger: %s", s.Trigger)
	}
	return b.String()
}

// NewCheckConfigCommand creates the check-config command.
func NewCheckConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-config <config>",
		Short: "Load and validate a scheduler configuration",
		Long: `Load a YAML or CUE scheduler configuration, build its dependency graph
and tier classifier, and print what was loaded.

Example:
  qcsched check-config ./qcsched.yaml
  qcsched check-config --format json ./qcsched.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckConfig(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runCheckConfig(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	cfg, err := loadConfig(f, path)
	if err != nil {
		return err
	}

	logger := newLogger(opts, io.Discard)
	graph, err := cfg.Graph(logger)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeConfig, "invalid dependency graph", err)
	}
	classifier, err := cfg.BuildClassifier()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeConfig, "invalid classifier", err)
	}

	summary := ConfigSummary{
		Gear:     cfg.Gear,
		Pinned:   cfg.PinnedDatatype,
		PoolSize: cfg.Pool.Size,
	}
	if summary.PoolSize < 1 {
		summary.PoolSize = scheduler.DefaultPoolSize()
	}
	for _, dt := range cfg.Datatypes {
		ds := DatatypeSummary{Name: dt.Name, Longitudinal: dt.Longitudinal, DependsOn: dt.DependsOn}
		for _, d := range graph.Dependents(visit.Datatype(dt.Name)) {
			ds.Dependents = append(ds.Dependents, string(d))
		}
		summary.Datatypes = append(summary.Datatypes, ds)
	}
	for _, c := range graph.Cycles() {
		parts := make([]string, len(c))
		for i, d := range c {
			parts[i] = string(d)
		}
		summary.Cycles = append(summary.Cycles, strings.Join(parts, " -> "))
	}
	for _, r := range classifier.Rules() {
		summary.Tiers = append(summary.Tiers, fmt.Sprintf("%s=%s", r.Name, r.Tier))
	}
	if t := cfg.Trigger; t != nil {
		summary.Trigger = t.Project + "/" + t.Gear
	}

	f.VerboseLog("Loaded %d datatype(s) from %s", len(cfg.Datatypes), path)
	return f.Success(summary)
}
