package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/depgraph"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load("testdata/qcsched.yaml")
	require.NoError(t, err)

	assert.Equal(t, "form-qc-checker", cfg.Gear)
	require.Len(t, cfg.Datatypes, 3)
	assert.True(t, cfg.Datatypes[0].Longitudinal)
	assert.Equal(t, []string{"UDS"}, cfg.Datatypes[1].DependsOn)
	assert.Equal(t, 10*time.Second, cfg.Poller.Interval.Duration)
	assert.Equal(t, DefaultGrace, cfg.Poller.Grace.Duration)
	require.NotNil(t, cfg.Poller.MaxRetryFollows)
	assert.Equal(t, 0, *cfg.Poller.MaxRetryFollows)
	assert.Equal(t, DefaultMaxSteps, cfg.Pool.MaxSteps)
	assert.Equal(t, "reject", cfg.Cycles)
	require.NotNil(t, cfg.Trigger)
	assert.Equal(t, "ingest-forms", cfg.Trigger.Project)

	upstream, cascade, err := cfg.ResetModes()
	require.NoError(t, err)
	assert.Equal(t, visit.ResetAll, upstream)
	assert.Equal(t, visit.ResetGear, cascade)

	g, err := cfg.Graph(nil)
	require.NoError(t, err)
	assert.Equal(t, []visit.Datatype{"NP"}, g.Dependents("UDS"))

	c, err := cfg.BuildClassifier()
	require.NoError(t, err)
	tier, err := c.Classify("110001_NP.json")
	require.NoError(t, err)
	assert.Equal(t, "tier2", string(tier))
	tier, err = c.Classify("110001_UDS-SCAN.json")
	require.NoError(t, err)
	assert.Equal(t, "tier0", string(tier))

	assert.Equal(t, visit.Datatype("UDS"), cfg.Comparator().Pinned)
	assert.Equal(t, []string{"scan_date"}, cfg.DateResolver().Fallbacks)
	assert.Len(t, cfg.PollerOptions(), 3)
}

func TestLoad_CUE(t *testing.T) {
	cfg, err := Load("testdata/qcsched.cue")
	require.NoError(t, err)

	assert.Equal(t, "form-qc-checker", cfg.Gear)
	assert.Equal(t, 2*time.Second, cfg.Poller.Grace.Duration)
	assert.Equal(t, DefaultInterval, cfg.Poller.Interval.Duration)
	assert.Equal(t, DefaultPrimaryDate, cfg.Dates.Primary)
	assert.Equal(t, DefaultFallbackDates, cfg.Dates.Fallbacks)

	// No configured rules: built-in classifier.
	c, err := cfg.BuildClassifier()
	require.NoError(t, err)
	tier, err := c.Classify("110001_FTLD.json")
	require.NoError(t, err)
	assert.Equal(t, "tier1", string(tier))
}

func TestParseYAML_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing gear", "datatypes: [{name: UDS}]", "gear: failed required"},
		{"no datatypes", "gear: g", "datatypes: failed required"},
		{"unnamed datatype", "gear: g\ndatatypes: [{longitudinal: true}]", "datatypes[0].name: failed required"},
		{"unknown dependency", "gear: g\ndatatypes: [{name: NP, depends_on: [UDS]}]", `depends on unknown datatype "UDS"`},
		{"duplicate", "gear: g\ndatatypes: [{name: UDS}, {name: UDS}]", "duplicate datatype"},
		{"bad cycles", "gear: g\ncycles: maybe\ndatatypes: [{name: UDS}]", "cycles: failed oneof"},
		{"bad pinned", "gear: g\npinned_datatype: LBD\ndatatypes: [{name: UDS}]", "pinned_datatype"},
		{"bad pattern", "gear: g\ndatatypes: [{name: UDS}]\nclassifier: {rules: [{name: r, tier: t, pattern: '('}]}", "classifier.rules[0]"},
		{"bad duration", "gear: g\ndatatypes: [{name: UDS}]\npoller: {interval: soon}", "invalid duration"},
		{"unknown key", "gear: g\ndatatypes: [{name: UDS}]\nworkers: 3", "field workers not found"},
		{"trigger without project", "gear: g\ndatatypes: [{name: UDS}]\ntrigger: {gear: p}", "trigger.project: failed required"},
		{"negative steps", "gear: g\ndatatypes: [{name: UDS}]\npool: {max_steps: -1}", "pool.max_steps: failed gte=0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGraph_CyclePolicy(t *testing.T) {
	src := "gear: g\ndatatypes: [{name: A, depends_on: [B]}, {name: B, depends_on: [A]}]\n"

	cfg, err := ParseYAML([]byte(src))
	require.NoError(t, err)
	_, err = cfg.Graph(nil)
	var ce *depgraph.CycleError
	assert.ErrorAs(t, err, &ce)

	cfg, err = ParseYAML([]byte(src + "cycles: allow\n"))
	require.NoError(t, err)
	g, err := cfg.Graph(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, g.Cycles())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFieldPath(t *testing.T) {
	assert.Equal(t, "datatypes[0].depends_on[1]", fieldPath("Config.Datatypes[0].DependsOn[1]"))
	assert.Equal(t, "poller.max_retry_follows", fieldPath("Config.Poller.MaxRetryFollows"))
}
