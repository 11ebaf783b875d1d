package schederr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MessageIncludesContext(t *testing.T) {
	err := &Error{
		Stage:       StageStore,
		Participant: "P1",
		Datatype:    "UDS",
		Message:     "find records",
		Err:         errors.New("database is locked"),
	}

	assert.Equal(t, "store: find records (participant=P1, datatype=UDS): database is locked", err.Error())
}

func TestError_NoContext(t *testing.T) {
	err := New(StageClassification, "no tier matched")
	assert.Equal(t, "classification: no tier matched", err.Error())
}

func TestIsStage_Wrapped(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("resolve: %w", Wrap(StageStore, cause, "query failed"))

	assert.True(t, IsStage(err, StageStore))
	assert.False(t, IsStage(err, StageDownstream))
	assert.ErrorIs(t, err, cause)

	stage, ok := StageOf(err)
	require.True(t, ok)
	assert.Equal(t, StageStore, stage)
}

func TestIsStage_Joined(t *testing.T) {
	err := errors.Join(
		New(StageCascade, "two records"),
		New(StageDownstream, "job failed"),
	)

	assert.True(t, IsStage(err, StageCascade))
	assert.True(t, IsStage(err, StageDownstream))
	assert.False(t, IsStage(err, StageStore))
	assert.Equal(t, []Stage{StageCascade, StageDownstream}, Stages(err))
}

func TestIsStage_Nil(t *testing.T) {
	assert.False(t, IsStage(nil, StageStore))
	_, ok := StageOf(errors.New("plain"))
	assert.False(t, ok)
}
