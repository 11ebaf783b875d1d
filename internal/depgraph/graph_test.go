package depgraph

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

func TestNew_Dependents(t *testing.T) {
	g, err := New([]Spec{
		{Datatype: "UDS", Longitudinal: true},
		{Datatype: "NP", DependsOn: []visit.Datatype{"UDS"}},
		{Datatype: "FTLD", DependsOn: []visit.Datatype{"UDS"}},
		{Datatype: "MRI"},
	})
	require.NoError(t, err)

	assert.Equal(t, []visit.Datatype{"FTLD", "NP"}, g.Dependents("UDS"))
	assert.Empty(t, g.Dependents("NP"))
	assert.Empty(t, g.Dependents("unknown"))
	assert.True(t, g.DependsOn("NP", "UDS"))
	assert.False(t, g.DependsOn("UDS", "NP"))

	assert.True(t, g.Longitudinal("UDS"))
	assert.False(t, g.Longitudinal("NP"))
	assert.False(t, g.Longitudinal("unknown"))

	assert.True(t, g.Known("MRI"))
	assert.False(t, g.Known("LBD"))
	assert.Equal(t, []visit.Datatype{"FTLD", "MRI", "NP", "UDS"}, g.Datatypes())
	assert.Empty(t, g.Cycles())
}

func TestNew_RejectsTwoNodeCycle(t *testing.T) {
	_, err := New([]Spec{
		{Datatype: "A", DependsOn: []visit.Datatype{"B"}},
		{Datatype: "B", DependsOn: []visit.Datatype{"A"}},
	})

	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	require.Len(t, ce.Cycles, 1)
	assert.Equal(t, []visit.Datatype{"A", "B", "A"}, ce.Cycles[0])
	assert.Contains(t, err.Error(), "A -> B -> A")
}

func TestNew_RejectsSelfEdge(t *testing.T) {
	_, err := New([]Spec{{Datatype: "A", DependsOn: []visit.Datatype{"A"}}})

	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, [][]visit.Datatype{{"A", "A"}}, ce.Cycles)
}

func TestNew_AllowCyclesLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	g, err := New([]Spec{
		{Datatype: "A", DependsOn: []visit.Datatype{"C"}},
		{Datatype: "B", DependsOn: []visit.Datatype{"A"}},
		{Datatype: "C", DependsOn: []visit.Datatype{"B"}},
	}, WithCyclePolicy(AllowCycles), WithLogger(logger))
	require.NoError(t, err)

	require.Len(t, g.Cycles(), 1)
	assert.Equal(t, []visit.Datatype{"A", "B", "C", "A"}, g.Cycles()[0])
	assert.Contains(t, buf.String(), "dependency_cycle")
}

func TestNew_DiamondIsAcyclic(t *testing.T) {
	g, err := New([]Spec{
		{Datatype: "A"},
		{Datatype: "B", DependsOn: []visit.Datatype{"A"}},
		{Datatype: "C", DependsOn: []visit.Datatype{"A"}},
		{Datatype: "D", DependsOn: []visit.Datatype{"B", "C"}},
	})
	require.NoError(t, err)
	assert.Empty(t, g.Cycles())
}

func TestNew_ConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		specs []Spec
		want  string
	}{
		{"empty name", []Spec{{}}, "name is required"},
		{"duplicate", []Spec{{Datatype: "A"}, {Datatype: "A"}}, "configured twice"},
		{"unknown dependency", []Spec{{Datatype: "A", DependsOn: []visit.Datatype{"Z"}}}, "unknown datatype Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.specs)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParseCyclePolicy(t *testing.T) {
	p, err := ParseCyclePolicy("")
	require.NoError(t, err)
	assert.Equal(t, RejectCycles, p)

	p, err = ParseCyclePolicy("allow")
	require.NoError(t, err)
	assert.Equal(t, AllowCycles, p)

	_, err = ParseCyclePolicy("maybe")
	assert.Error(t, err)
}
