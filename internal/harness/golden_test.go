package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_CascadeForward(t *testing.T) {
	// Regenerate with:
	//   go test ./internal/harness -run TestRunWithGolden -update
	result, err := RunWithGolden(t, loadTestScenario(t, "cascade_forward"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunWithGolden_IsolatedFailures(t *testing.T) {
	result, err := RunWithGolden(t, loadTestScenario(t, "isolated_failures"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestSnapshot_EmptyReport(t *testing.T) {
	snap := Snapshot("empty", NewResult())
	assert.Equal(t, "empty", snap.ScenarioName)
	assert.Empty(t, snap.Participants)
	assert.NotNil(t, snap.Participants)
}
