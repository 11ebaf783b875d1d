// Package config loads the scheduler configuration from YAML or CUE.
//
// A configuration names the owning gear, the datatypes with their
// dependencies and longitudinal flags, the tier classifier, effective date
// fields, pool and poller tuning, and an optional downstream trigger.
// Omitted fields take defaults; the result is checked with
// go-playground/validator and cross-field checks (unknown dependencies,
// duplicate datatypes, bad patterns).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxSteps        = 10000
	DefaultInterval        = 30 * time.Second
	DefaultGrace           = 5 * time.Second
	DefaultMaxRetryFollows = 3
	DefaultPrimaryDate     = "visitdate"
)

// DefaultFallbackDates are tried after the primary date field.
var DefaultFallbackDates = []string{"scan_date", "scandate", "img_date", "collection_date"}

// Config is the full scheduler configuration.
type Config struct {
	Gear           string           `yaml:"gear" validate:"required"`
	PinnedDatatype string           `yaml:"pinned_datatype"`
	Datatypes      []DatatypeConfig `yaml:"datatypes" validate:"required,min=1,dive"`
	Classifier     ClassifierConfig `yaml:"classifier"`
	Dates          DatesConfig      `yaml:"dates"`
	Pool           PoolConfig       `yaml:"pool"`
	Poller         PollerConfig     `yaml:"poller"`
	Trigger        *TriggerConfig   `yaml:"trigger" validate:"omitempty"`
	Reset          ResetConfig      `yaml:"reset"`
	Cycles         string           `yaml:"cycles" validate:"omitempty,oneof=reject allow"`
}

// DatatypeConfig is one node of the dependency graph.
type DatatypeConfig struct {
	Name         string   `yaml:"name" validate:"required"`
	Longitudinal bool     `yaml:"longitudinal"`
	DependsOn    []string `yaml:"depends_on" validate:"dive,required"`
}

// ClassifierConfig holds tier rules. No rules means the built-in set.
type ClassifierConfig struct {
	Override *OverrideConfig `yaml:"override" validate:"omitempty"`
	Rules    []RuleConfig    `yaml:"rules" validate:"dive"`
}

// OverrideConfig is the priority substring rule.
type OverrideConfig struct {
	Substring string `yaml:"substring" validate:"required"`
	Tier      string `yaml:"tier" validate:"required"`
}

// RuleConfig is one named tier pattern.
type RuleConfig struct {
	Name    string `yaml:"name" validate:"required"`
	Tier    string `yaml:"tier" validate:"required"`
	Pattern string `yaml:"pattern" validate:"required"`
}

// DatesConfig lists the effective date candidate fields.
type DatesConfig struct {
	Primary   string   `yaml:"primary"`
	Fallbacks []string `yaml:"fallbacks" validate:"dive,required"`
}

// PoolConfig tunes the worker pool.
type PoolConfig struct {
	// Size 0 selects the core-count heuristic.
	Size     int `yaml:"size" validate:"gte=0"`
	MaxSteps int `yaml:"max_steps" validate:"gte=0"`
}

// PollerConfig tunes downstream job polling.
type PollerConfig struct {
	Interval        Duration `yaml:"interval"`
	Grace           Duration `yaml:"grace"`
	MaxRetryFollows *int     `yaml:"max_retry_follows" validate:"omitempty,gte=0"`
}

// TriggerConfig enables a downstream job per passing record.
type TriggerConfig struct {
	Gear    string            `yaml:"gear" validate:"required"`
	Project string            `yaml:"project" validate:"required"`
	Config  map[string]string `yaml:"config"`
}

// ResetConfig picks reset modes for upstream and cascaded requests.
type ResetConfig struct {
	Upstream string `yaml:"upstream" validate:"omitempty,oneof=none gear all"`
	Cascade  string `yaml:"cascade" validate:"omitempty,oneof=none gear all"`
}

// Duration is a time.Duration written as "30s" in configuration.
type Duration struct {
	time.Duration
}

// UnmarshalYAML accepts a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"30s\"", node.Line)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML writes the duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

var validate = validator.New()

// Load reads a configuration file. Files ending in .cue are evaluated as
// CUE; anything else is YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		return ParseCUE(data, filepath.Base(path))
	}
	return ParseYAML(data)
}

// ParseYAML decodes, defaults and validates YAML configuration.
// Unknown keys are rejected.
func ParseYAML(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseCUE evaluates CUE configuration. The value must be concrete; it is
// exported to JSON and decoded with the YAML rules, since JSON is YAML.
func ParseCUE(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile config: %w", err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("config is not concrete: %w", err)
	}
	js, err := v.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("export config: %w", err)
	}
	return ParseYAML(js)
}

// ApplyDefaults fills every omitted field.
func (c *Config) ApplyDefaults() {
	if c.Cycles == "" {
		c.Cycles = "reject"
	}
	if c.Dates.Primary == "" {
		c.Dates.Primary = DefaultPrimaryDate
	}
	if c.Dates.Fallbacks == nil {
		c.Dates.Fallbacks = append([]string(nil), DefaultFallbackDates...)
	}
	if c.Pool.MaxSteps == 0 {
		c.Pool.MaxSteps = DefaultMaxSteps
	}
	if c.Poller.Interval.Duration == 0 {
		c.Poller.Interval.Duration = DefaultInterval
	}
	if c.Poller.Grace.Duration == 0 {
		c.Poller.Grace.Duration = DefaultGrace
	}
	if c.Poller.MaxRetryFollows == nil {
		n := DefaultMaxRetryFollows
		c.Poller.MaxRetryFollows = &n
	}
	if c.Reset.Upstream == "" {
		c.Reset.Upstream = "gear"
	}
	if c.Reset.Cascade == "" {
		c.Reset.Cascade = "gear"
	}
}

// Validate checks struct tags and cross-field rules and returns every
// problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, &FieldError{Field: fieldPath(fe.Namespace()), Rule: fe.Tag(), Param: fe.Param()})
		}
	}

	known := make(map[string]bool, len(c.Datatypes))
	for _, dt := range c.Datatypes {
		if dt.Name == "" {
			continue
		}
		if known[dt.Name] {
			errs = append(errs, fmt.Errorf("datatypes: duplicate datatype %q", dt.Name))
		}
		known[dt.Name] = true
	}
	for _, dt := range c.Datatypes {
		for _, dep := range dt.DependsOn {
			if dep != "" && !known[dep] {
				errs = append(errs, fmt.Errorf("datatypes: %s depends on unknown datatype %q", dt.Name, dep))
			}
		}
	}
	if c.PinnedDatatype != "" && !known[c.PinnedDatatype] {
		errs = append(errs, fmt.Errorf("pinned_datatype: unknown datatype %q", c.PinnedDatatype))
	}
	for i, r := range c.Classifier.Rules {
		if _, err := regexp.Compile(r.Pattern); r.Pattern != "" && err != nil {
			errs = append(errs, fmt.Errorf("classifier.rules[%d] %s: %w", i, r.Name, err))
		}
	}
	if c.Poller.Grace.Duration < 0 || c.Poller.Interval.Duration < 0 {
		errs = append(errs, errors.New("poller: durations must not be negative"))
	}

	return errors.Join(errs...)
}

// FieldError is one failed struct-tag rule.
type FieldError struct {
	Field string
	Rule  string
	Param string
}

func (e *FieldError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: failed %s=%s", e.Field, e.Rule, e.Param)
	}
	return fmt.Sprintf("%s: failed %s", e.Field, e.Rule)
}

// fieldPath turns "Config.Datatypes[0].Name" into "datatypes[0].name".
func fieldPath(ns string) string {
	ns = strings.TrimPrefix(ns, "Config.")
	parts := strings.Split(ns, ".")
	for i, p := range parts {
		name, index, _ := strings.Cut(p, "[")
		parts[i] = snake(name)
		if index != "" {
			parts[i] += "[" + index
		}
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
