package qc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

func TestAggregate_Precedence(t *testing.T) {
	tests := []struct {
		name   string
		status visit.QCStatus
		want   visit.Outcome
	}{
		{"fail wins", visit.QCStatus{"gearA": visit.Pass, "gearB": visit.Fail, "gearC": visit.InReview}, visit.Fail},
		{"in review over pass", visit.QCStatus{"gearA": visit.Pass, "gearB": visit.InReview}, visit.InReview},
		{"all pass", visit.QCStatus{"gearA": visit.Pass, "gearB": visit.Pass}, visit.Pass},
		{"empty is pass", visit.QCStatus{}, visit.Pass},
		{"nil is pass", nil, visit.Pass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.status))
		})
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	status := visit.QCStatus{"gearA": visit.Pass, "gearB": visit.InReview}
	first := Aggregate(status)
	second := Aggregate(status)

	assert.Equal(t, first, second)
	assert.Equal(t, visit.QCStatus{"gearA": visit.Pass, "gearB": visit.InReview}, status, "aggregate must not mutate")
}

func TestReset_Modes(t *testing.T) {
	status := visit.QCStatus{"checker": visit.Fail, "identifier": visit.Pass}

	assert.Equal(t, visit.QCStatus{}, Reset(status, visit.ResetAll, "checker"))
	assert.Equal(t, visit.QCStatus{"identifier": visit.Pass}, Reset(status, visit.ResetGear, "checker"))
	assert.Equal(t, status, Reset(status, visit.ResetNone, "checker"))

	assert.Len(t, status, 2, "input must not be modified")
}

func TestMerge_LastWriteWinsPerGear(t *testing.T) {
	status := visit.QCStatus{"checker": visit.Fail, "identifier": visit.Pass}

	got := Merge(status, map[string]visit.Outcome{"checker": visit.Pass})
	assert.Equal(t, visit.QCStatus{"checker": visit.Pass, "identifier": visit.Pass}, got)
	assert.Equal(t, visit.Fail, status["checker"])
}
