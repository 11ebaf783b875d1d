package classify

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_DefaultRules(t *testing.T) {
	c := Default()

	tests := []struct {
		name string
		want Tier
	}{
		{"NACC000001_ENRL.json", "tier3"},
		{"NACC000001_2024-01-01_NP.json", "tier2"},
		{"NACC000001_2024-01-01_UDS.json", "tier1"},
		{"NACC000001_2024-01-01_FTLD.json", "tier1"},
		{"NACC000001_2024-01-01_LBD-FU.json", "tier1"},
		{"NACC000001_2024-01-15_MRI.json", "tier0"},
		{"NACC000001_APOE.json", "tier0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Classify(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_OverrideWinsOverCollidingRules(t *testing.T) {
	c := Default()

	// Without the override this name matches both the visit and the
	// imaging rule.
	got, err := c.Classify("NACC000001_2024-01-01_UDS-SCAN.json")
	require.NoError(t, err)
	assert.Equal(t, Tier("tier0"), got)

	noOverride, err := Compile(nil, DefaultRuleSpecs)
	require.NoError(t, err)
	_, err = noOverride.Classify("NACC000001_2024-01-01_UDS-SCAN.json")
	var amb *AmbiguousError
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, []string{"visit", "imaging-genetics"}, amb.Rules)
}

func TestClassify_Ambiguous(t *testing.T) {
	c := Default()

	_, err := c.Classify("NACC000001_2024-01-01_UDS-MRI.json")
	var amb *AmbiguousError
	require.ErrorAs(t, err, &amb)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestClassify_Unclassifiable(t *testing.T) {
	c := Default()

	tier, err := c.Classify("notes.txt")
	assert.True(t, errors.Is(err, ErrUnclassifiable))
	assert.Equal(t, Unknown, tier)
}

func TestClassify_NormalizesNames(t *testing.T) {
	// Composed "\u00e9" in the rule, "e" plus a combining accent in the name.
	c := New(nil, Rule{Name: "r", Tier: "tier1", Pattern: regexp.MustCompile("^caf\u00e9_UDS\\.json$")})

	got, err := c.Classify("cafe\u0301_UDS.json")
	require.NoError(t, err)
	assert.Equal(t, Tier("tier1"), got)
}

func TestClassify_TierIsPureFunctionOfName(t *testing.T) {
	c := Default()
	name := "NACC000001_2024-01-01_UDS.json"

	first, err := c.Classify(name)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := c.Classify(name)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile(nil, []RuleSpec{{Name: "bad", Tier: "tier1", Pattern: "("}})
	assert.Error(t, err)

	_, err = Compile(nil, []RuleSpec{{Name: "notier", Pattern: "x"}})
	assert.ErrorContains(t, err, "tier is required")
}

func TestTier_Before(t *testing.T) {
	assert.True(t, Tier("tier3").Before("tier1"))
	assert.False(t, Tier("tier0").Before("tier1"))
	assert.False(t, Tier("tier1").Before("tier1"))
}
