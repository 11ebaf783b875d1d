package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCompare_TierDominatesDate(t *testing.T) {
	c := Comparator{Pinned: "UDS"}
	early := Key{Tier: "tier3", Date: day("2020-01-01"), Datatype: "ENRL", ID: "a"}
	late := Key{Tier: "tier1", Date: day("2099-01-01"), Datatype: "UDS", ID: "b"}

	got, err := c.Compare(early, late)
	require.NoError(t, err)
	assert.Equal(t, Less, got)
	assert.True(t, c.Less(early, late))
	assert.False(t, c.Less(late, early))

	// Also holds the other way round on dates.
	lowTierEarly := Key{Tier: "tier0", Date: day("2000-01-01"), Datatype: "MRI", ID: "c"}
	assert.True(t, c.Less(late, lowTierEarly))
}

func TestCompare_SameTierAscendingDate(t *testing.T) {
	c := Comparator{Pinned: "UDS"}
	a := Key{Tier: "tier1", Date: day("2024-01-01"), Datatype: "UDS", ID: "a"}
	b := Key{Tier: "tier1", Date: day("2024-02-01"), Datatype: "UDS", ID: "b"}

	assert.True(t, c.Less(a, b))
	assert.False(t, c.Less(b, a))

	got, err := c.Compare(b, a)
	require.NoError(t, err)
	assert.Equal(t, Greater, got)
}

func TestCompare_PinnedTieIsIncomparable(t *testing.T) {
	c := Comparator{Pinned: "UDS"}
	pinned := Key{Tier: "tier1", Date: day("2024-01-01"), Datatype: "UDS", Name: "a_UDS.json", ID: "1"}
	other := Key{Tier: "tier1", Date: day("2024-01-01"), Datatype: "FTLD", Name: "a_FTLD.json", ID: "2"}

	assert.False(t, c.Less(pinned, other), "pinned record must never be less than the other datatype")
	assert.False(t, c.Less(other, pinned), "reverse comparison must also be false")

	got, err := c.Compare(pinned, other)
	require.NoError(t, err)
	assert.Equal(t, Incomparable, got)

	got, err = c.Compare(other, pinned)
	require.NoError(t, err)
	assert.Equal(t, Incomparable, got)
}

func TestCompare_NonPinnedTieBreaksOnName(t *testing.T) {
	c := Comparator{Pinned: "UDS"}
	a := Key{Tier: "tier1", Date: day("2024-01-01"), Datatype: "FTLD", Name: "a_FTLD.json", ID: "2"}
	b := Key{Tier: "tier1", Date: day("2024-01-01"), Datatype: "LBD", Name: "a_LBD.json", ID: "1"}

	assert.True(t, c.Less(a, b))
	assert.False(t, c.Less(b, a))
}

func TestCompare_SameRecordIsEquivalent(t *testing.T) {
	c := Comparator{}
	a := Key{Tier: "tier1", Date: day("2024-01-01"), Datatype: "UDS", Name: "n", ID: "1"}

	got, err := c.Compare(a, a)
	require.NoError(t, err)
	assert.Equal(t, Equivalent, got)
	assert.False(t, c.Less(a, a))
}

func TestCompare_UnknownTierFails(t *testing.T) {
	c := Comparator{}
	known := Key{Tier: "tier1", Date: day("2024-01-01")}
	unknown := Key{Date: day("2024-01-01")}

	_, err := c.Compare(known, unknown)
	assert.ErrorIs(t, err, ErrUnknownTier)
	assert.False(t, c.Less(known, unknown))
	assert.False(t, c.Less(unknown, known))
}

func TestCompare_PinnedDisabled(t *testing.T) {
	c := Comparator{}
	a := Key{Tier: "tier1", Date: day("2024-01-01"), Datatype: "UDS", Name: "b", ID: "1"}
	b := Key{Tier: "tier1", Date: day("2024-01-01"), Datatype: "FTLD", Name: "a", ID: "2"}

	assert.True(t, c.Less(b, a))
}
