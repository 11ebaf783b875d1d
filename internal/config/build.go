package config

import (
	"fmt"
	"log/slog"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/classify"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/depgraph"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/poller"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// Graph builds the dependency graph under the configured cycle policy.
// A nil logger uses slog.Default() for cycle warnings.
func (c *Config) Graph(logger *slog.Logger) (*depgraph.Graph, error) {
	policy, err := depgraph.ParseCyclePolicy(c.Cycles)
	if err != nil {
		return nil, err
	}
	specs := make([]depgraph.Spec, len(c.Datatypes))
	for i, dt := range c.Datatypes {
		deps := make([]visit.Datatype, len(dt.DependsOn))
		for j, d := range dt.DependsOn {
			deps[j] = visit.Datatype(d)
		}
		specs[i] = depgraph.Spec{Datatype: visit.Datatype(dt.Name), DependsOn: deps, Longitudinal: dt.Longitudinal}
	}
	opts := []depgraph.Option{depgraph.WithCyclePolicy(policy)}
	if logger != nil {
		opts = append(opts, depgraph.WithLogger(logger))
	}
	return depgraph.New(specs, opts...)
}

// BuildClassifier compiles the tier rules. Without configured rules the
// built-in rules and override apply.
func (c *Config) BuildClassifier() (*classify.Classifier, error) {
	var override *classify.Override
	if o := c.Classifier.Override; o != nil {
		override = &classify.Override{Substring: o.Substring, Tier: classify.Tier(o.Tier)}
	}
	if len(c.Classifier.Rules) == 0 {
		if override == nil {
			override = classify.DefaultOverride
		}
		return classify.Compile(override, classify.DefaultRuleSpecs)
	}
	specs := make([]classify.RuleSpec, len(c.Classifier.Rules))
	for i, r := range c.Classifier.Rules {
		specs[i] = classify.RuleSpec{Name: r.Name, Tier: r.Tier, Pattern: r.Pattern}
	}
	return classify.Compile(override, specs)
}

// Comparator returns the record comparator with the pinned datatype.
func (c *Config) Comparator() classify.Comparator {
	return classify.Comparator{Pinned: visit.Datatype(c.PinnedDatatype)}
}

// DateResolver returns the effective date resolver.
func (c *Config) DateResolver() classify.DateResolver {
	return classify.DateResolver{Primary: c.Dates.Primary, Fallbacks: c.Dates.Fallbacks}
}

// ResetModes returns the upstream and cascade reset modes.
func (c *Config) ResetModes() (upstream, cascade visit.ResetMode, err error) {
	if upstream, err = visit.ParseResetMode(c.Reset.Upstream); err != nil {
		return 0, 0, fmt.Errorf("reset.upstream: %w", err)
	}
	if cascade, err = visit.ParseResetMode(c.Reset.Cascade); err != nil {
		return 0, 0, fmt.Errorf("reset.cascade: %w", err)
	}
	return upstream, cascade, nil
}

// PollerOptions returns the poller tuning.
func (c *Config) PollerOptions() []poller.Option {
	opts := []poller.Option{
		poller.WithInterval(c.Poller.Interval.Duration),
		poller.WithGrace(c.Poller.Grace.Duration),
	}
	if c.Poller.MaxRetryFollows != nil {
		opts = append(opts, poller.WithMaxRetryFollows(*c.Poller.MaxRetryFollows))
	}
	return opts
}
