package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/depgraph"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/schederr"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/testutil"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

const gear = "form-qc"

func testGraph(t *testing.T) *depgraph.Graph {
	t.Helper()
	g, err := depgraph.New([]depgraph.Spec{
		{Datatype: "UDS", Longitudinal: true},
		{Datatype: "NP", DependsOn: []visit.Datatype{"UDS"}},
	})
	require.NoError(t, err)
	return g
}

func passEngine() Engine {
	return EngineFunc(func(context.Context, visit.Record) (map[string]visit.Outcome, error) {
		return map[string]visit.Outcome{gear: visit.Pass}, nil
	})
}

func ids(recs []visit.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func fixture() *testutil.MemStore {
	return testutil.NewMemStore(
		testutil.Record("u1", "P1", "UDS", "2024-01-01"),
		testutil.Record("u2", "P1", "UDS", "2024-02-01"),
		testutil.Record("u3", "P1", "UDS", "2024-03-01"),
		testutil.Record("n1", "P1", "NP", "2024-01-01"),
		testutil.Record("n2", "P1", "NP", "2024-02-01"),
		testutil.Record("n3", "P1", "NP", "2024-03-01"),
	)
}

func TestResolve_Explicit(t *testing.T) {
	c := New(fixture(), passEngine(), testGraph(t), gear)

	recs, err := c.Resolve(context.Background(), visit.ValidationRequest{
		Datatype:    "UDS",
		Participant: "P1",
		Selector:    visit.Explicit("u2", "gone", "u1"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "u1"}, ids(recs))
}

func TestResolve_ExplicitSkipsForeignRecords(t *testing.T) {
	store := fixture()
	require.NoError(t, store.PutRecord(context.Background(), testutil.Record("p2-u1", "P2", "UDS", "2024-01-01")))
	c := New(store, passEngine(), testGraph(t), gear)

	recs, err := c.Resolve(context.Background(), visit.ValidationRequest{
		Datatype:    "UDS",
		Participant: "P1",
		Selector:    visit.Explicit("p2-u1", "n1", "u1"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids(recs))
}

func TestResolve_CutoffByLongitudinalFlag(t *testing.T) {
	tests := []struct {
		name     string
		datatype visit.Datatype
		selector visit.Selector
		want     []string
	}{
		{"longitudinal forward", "UDS", visit.Cutoff(testutil.Day("2024-02-01")), []string{"u2", "u3"}},
		{"longitudinal after", "UDS", visit.After(testutil.Day("2024-02-01")), []string{"u3"}},
		{"non-longitudinal forward is exact", "NP", visit.Cutoff(testutil.Day("2024-02-01")), []string{"n2"}},
		{"non-longitudinal any-of", "NP", visit.ExactDates(testutil.Day("2024-01-01"), testutil.Day("2024-03-01")), []string{"n1", "n3"}},
		{"all", "NP", visit.Selector{Op: visit.OpAll}, []string{"n1", "n2", "n3"}},
	}

	c := New(fixture(), passEngine(), testGraph(t), gear)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := c.Resolve(context.Background(), visit.ValidationRequest{
				Datatype:    tt.datatype,
				Participant: "P1",
				Selector:    tt.selector,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(recs))
		})
	}
}

func TestResolve_StoreFailureIsFatal(t *testing.T) {
	store := fixture()
	store.FindErr = errors.New("connection refused")
	c := New(store, passEngine(), testGraph(t), gear)

	_, err := c.Resolve(context.Background(), visit.ValidationRequest{
		Datatype:    "UDS",
		Participant: "P1",
		Selector:    visit.Cutoff(testutil.Day("2024-01-01")),
	})
	require.Error(t, err)
	assert.True(t, schederr.IsStage(err, schederr.StageStore))
}

func TestResolve_RejectsBadRequests(t *testing.T) {
	c := New(fixture(), passEngine(), testGraph(t), gear)

	_, err := c.Resolve(context.Background(), visit.ValidationRequest{
		Datatype: "LBD", Participant: "P1", Selector: visit.Explicit("x"),
	})
	assert.ErrorIs(t, err, ErrUnknownDatatype)

	_, err = c.Resolve(context.Background(), visit.ValidationRequest{
		Datatype: "UDS", Participant: "P1", Selector: visit.Selector{Op: visit.OpAtOrAfter},
	})
	assert.ErrorIs(t, err, ErrEmptyCutoff)
}

func TestValidateOne_MergesAndCascades(t *testing.T) {
	ctx := context.Background()
	store := fixture()
	c := New(store, passEngine(), testGraph(t), gear)

	rec, err := store.GetRecord(ctx, "u2")
	require.NoError(t, err)
	rec.QCStatus = visit.QCStatus{"identifier-lookup": visit.Pass, gear: visit.Fail}

	res, err := c.ValidateOne(ctx, rec, visit.ResetNone)
	require.NoError(t, err)
	assert.Equal(t, visit.Pass, res.Status)
	assert.Equal(t, visit.QCStatus{"identifier-lookup": visit.Pass, gear: visit.Pass}, res.Record.QCStatus)

	stored, err := store.GetRecord(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, res.Record.QCStatus, stored.QCStatus)

	// NP on the same date, then every later UDS visit.
	require.Len(t, res.Cascade, 2)
	assert.Equal(t, []string{"n2"}, res.Cascade[0].Selector.Records)
	assert.Equal(t, visit.OpAfter, res.Cascade[1].Selector.Op)
	assert.True(t, res.Cascade[1].Origin.Equal(testutil.Day("2024-02-01")))
}

func TestValidateOne_ResetModes(t *testing.T) {
	initial := visit.QCStatus{"identifier-lookup": visit.Fail, gear: visit.Fail}
	tests := []struct {
		mode visit.ResetMode
		want visit.QCStatus
	}{
		{visit.ResetNone, visit.QCStatus{"identifier-lookup": visit.Fail, gear: visit.Pass}},
		{visit.ResetGear, visit.QCStatus{"identifier-lookup": visit.Fail, gear: visit.Pass}},
		{visit.ResetAll, visit.QCStatus{gear: visit.Pass}},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			store := fixture()
			c := New(store, passEngine(), testGraph(t), gear)
			rec := testutil.Record("n1", "P1", "NP", "2024-01-01")
			rec.QCStatus = initial.Clone()

			res, err := c.ValidateOne(context.Background(), rec, tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Record.QCStatus)
		})
	}
}

func TestValidateOne_GearResetDropsStaleOutcome(t *testing.T) {
	// The engine reports another gear only; ResetGear must still drop our
	// stale FAIL while ResetNone keeps it.
	engine := EngineFunc(func(context.Context, visit.Record) (map[string]visit.Outcome, error) {
		return map[string]visit.Outcome{"other": visit.Pass}, nil
	})
	rec := testutil.Record("n1", "P1", "NP", "2024-01-01")
	rec.QCStatus = visit.QCStatus{gear: visit.Fail}

	c := New(fixture(), engine, testGraph(t), gear)
	res, err := c.ValidateOne(context.Background(), rec, visit.ResetGear)
	require.NoError(t, err)
	assert.Equal(t, visit.Pass, res.Status)

	res, err = c.ValidateOne(context.Background(), rec, visit.ResetNone)
	require.NoError(t, err)
	assert.Equal(t, visit.Fail, res.Status)
}

func TestValidateOne_EngineFailureMarksInReview(t *testing.T) {
	engine := EngineFunc(func(context.Context, visit.Record) (map[string]visit.Outcome, error) {
		return nil, errors.New("rule set exploded")
	})
	c := New(fixture(), engine, testGraph(t), gear)

	res, err := c.ValidateOne(context.Background(), testutil.Record("n1", "P1", "NP", "2024-01-01"), visit.ResetGear)
	require.NoError(t, err)
	assert.Equal(t, visit.InReview, res.Status)
	assert.Equal(t, visit.InReview, res.Record.QCStatus[gear])
	assert.True(t, schederr.IsStage(res.EngineErr, schederr.StageValidation))
}

func TestValidateOne_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	engine := EngineFunc(func(ctx context.Context, _ visit.Record) (map[string]visit.Outcome, error) {
		cancel()
		return nil, ctx.Err()
	})
	store := fixture()
	c := New(store, engine, testGraph(t), gear)

	_, err := c.ValidateOne(ctx, testutil.Record("n1", "P1", "NP", "2024-01-01"), visit.ResetGear)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.Updates())
}

func TestValidateOne_UpdateFailure(t *testing.T) {
	c := New(testutil.NewMemStore(), passEngine(), testGraph(t), gear)

	_, err := c.ValidateOne(context.Background(), testutil.Record("missing", "P1", "NP", "2024-01-01"), visit.ResetGear)
	require.Error(t, err)
	assert.True(t, schederr.IsStage(err, schederr.StageStore))
	assert.ErrorIs(t, err, visit.ErrRecordNotFound)
}

