package classify

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Tier is an ordering category. Higher tiers are processed first.
type Tier string

// Unknown is the tier of a record no rule classified.
const Unknown Tier = ""

// Before reports whether records of tier t are processed before tier o.
func (t Tier) Before(o Tier) bool {
	return t > o
}

// ErrUnclassifiable is returned when no rule matches a record name.
var ErrUnclassifiable = errors.New("record name matches no tier rule")

// AmbiguousError is returned when more than one rule matches a record name.
type AmbiguousError struct {
	Name  string
	Rules []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("record name %q is ambiguous: matches rules %s", e.Name, strings.Join(e.Rules, ", "))
}

// Rule maps a record name pattern to a tier.
type Rule struct {
	Name    string
	Tier    Tier
	Pattern *regexp.Regexp
}

// Override is an unconditional substring check evaluated before the rules.
// It exists for datatypes whose names collide with the generic patterns.
type Override struct {
	Substring string
	Tier      Tier
}

// Classifier assigns tiers from record names. It is immutable and safe for
// concurrent use.
type Classifier struct {
	override *Override
	rules    []Rule
}

// New creates a classifier. The override may be nil.
func New(override *Override, rules ...Rule) *Classifier {
	c := &Classifier{rules: append([]Rule(nil), rules...)}
	if override != nil && override.Substring != "" {
		o := *override
		o.Substring = norm.NFC.String(o.Substring)
		c.override = &o
	}
	return c
}

// RuleSpec is the uncompiled form of a Rule, as found in configuration.
type RuleSpec struct {
	Name    string
	Tier    string
	Pattern string
}

// Compile builds a classifier from rule specs.
func Compile(override *Override, specs []RuleSpec) (*Classifier, error) {
	rules := make([]Rule, 0, len(specs))
	for _, s := range specs {
		if s.Tier == "" {
			return nil, fmt.Errorf("rule %q: tier is required", s.Name)
		}
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", s.Name, err)
		}
		rules = append(rules, Rule{Name: s.Name, Tier: Tier(s.Tier), Pattern: re})
	}
	return New(override, rules...), nil
}

// DefaultRuleSpecs are the tier rules used when configuration names none.
//
//	tier3  enrollment and transfer forms
//	tier2  non-visit forms
//	tier1  visit forms (UDS, FTLD, LBD modules)
//	tier0  imaging summaries and genetics
var DefaultRuleSpecs = []RuleSpec{
	{Name: "enrollment", Tier: "tier3", Pattern: `_(ENRL|TRF)\.json$`},
	{Name: "non-visit", Tier: "tier2", Pattern: `_(NP|MDS|BDS|MLST)\.json$`},
	{Name: "visit", Tier: "tier1", Pattern: `_(UDS|FTLD|LBD)(-[A-Z]+)?\.json$`},
	{Name: "imaging-genetics", Tier: "tier0", Pattern: `_([A-Z]+-)?(SCAN|MRI|PET|APOE|GWAS)\.json$`},
}

// DefaultOverride sends every imaging summary to tier0, including files like
// "..._UDS-SCAN.json" that otherwise match both the visit and imaging rules.
var DefaultOverride = &Override{Substring: "SCAN", Tier: "tier0"}

// Default returns the classifier built from DefaultRuleSpecs.
func Default() *Classifier {
	c, err := Compile(DefaultOverride, DefaultRuleSpecs)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the tier for a record name.
//
// The override is checked first. Otherwise every rule is evaluated and
// exactly one must match; none is ErrUnclassifiable, several is an
// AmbiguousError. The classifier never picks among competing rules.
func (c *Classifier) Classify(name string) (Tier, error) {
	name = norm.NFC.String(name)

	if c.override != nil && strings.Contains(name, c.override.Substring) {
		return c.override.Tier, nil
	}

	var matched []Rule
	for _, r := range c.rules {
		if r.Pattern.MatchString(name) {
			matched = append(matched, r)
		}
	}

	switch len(matched) {
	case 0:
		return Unknown, fmt.Errorf("%w: %q", ErrUnclassifiable, name)
	case 1:
		return matched[0].Tier, nil
	default:
		names := make([]string, len(matched))
		for i, r := range matched {
			names[i] = r.Name
		}
		return Unknown, &AmbiguousError{Name: name, Rules: names}
	}
}

// Rules returns the configured rules in evaluation order.
func (c *Classifier) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}
