package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/config"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/coordinator"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/poller"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/qc"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/scheduler"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/store"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/testutil"
	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// defaultRunID is used when a scenario names no run id.
const defaultRunID = "test-run"

// Harness is the scenario execution environment.
// It runs one scenario against a fresh store with deterministic run and
// job ids, a scripted engine and jobs that finish without waiting.
type Harness struct {
	store  *store.Store
	cfg    *config.Config
	engine *scriptedEngine
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Parse the inline configuration
// 2. Create fresh in-memory database and seed the records
// 3. Build the real coordinator and scheduler around a scripted engine
// 4. Submit every request to one Run
// 5. Evaluate assertions against the report and the stored statuses
func Run(scenario *Scenario) (*Result, error) {
	raw, err := yaml.Marshal(&scenario.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	cfg, err := config.ParseYAML(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	jobSeq := 0
	st, err := store.Open(":memory:", store.WithJobIDs(func() string {
		jobSeq++
		return fmt.Sprintf("job-%d", jobSeq)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		cfg:    cfg,
		engine: newScriptedEngine(cfg.Gear, scenario.Outcomes),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	ctx := context.Background()
	seeded, err := h.seed(ctx, scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to seed records: %w", err)
	}

	sched, err := h.scheduler(scenario)
	if err != nil {
		return nil, err
	}

	upstream, _, err := cfg.ResetModes()
	if err != nil {
		return nil, err
	}
	reqs := make([]visit.ValidationRequest, 0, len(scenario.Requests))
	for i, spec := range scenario.Requests {
		req, err := spec.Request(upstream)
		if err != nil {
			return nil, fmt.Errorf("requests[%d]: %w", i, err)
		}
		reqs = append(reqs, req)
	}

	report, err := sched.Run(ctx, reqs)
	if err != nil {
		return nil, fmt.Errorf("run failed: %w", err)
	}

	result := NewResult()
	result.Report = report
	result.Calls = h.engine.counts()
	for _, id := range seeded {
		rec, err := st.GetRecord(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read record %s: %w", id, err)
		}
		result.Status[id] = qc.Aggregate(rec.QCStatus)
		result.Gears[id] = rec.QCStatus
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

func (h *Harness) seed(ctx context.Context, scenario *Scenario) ([]string, error) {
	ids := make([]string, 0, len(scenario.Records))
	for i, spec := range scenario.Records {
		rec, err := spec.Record(h.cfg.DateResolver())
		if err != nil {
			return nil, fmt.Errorf("records[%d]: %w", i, err)
		}
		if err := h.store.PutRecord(ctx, rec); err != nil {
			return nil, err
		}
		ids = append(ids, rec.ID)
	}
	return ids, nil
}

func (h *Harness) scheduler(scenario *Scenario) (*scheduler.Scheduler, error) {
	graph, err := h.cfg.Graph(h.logger)
	if err != nil {
		return nil, fmt.Errorf("invalid dependency graph: %w", err)
	}
	classifier, err := h.cfg.BuildClassifier()
	if err != nil {
		return nil, fmt.Errorf("invalid classifier: %w", err)
	}
	upstream, cascaded, err := h.cfg.ResetModes()
	if err != nil {
		return nil, err
	}

	runID := scenario.RunID
	if runID == "" {
		runID = defaultRunID
	}

	coord := coordinator.New(h.store, h.engine, graph, h.cfg.Gear, coordinator.WithLogger(h.logger))
	opts := []scheduler.Option{
		scheduler.WithPoolSize(h.cfg.Pool.Size),
		scheduler.WithMaxSteps(h.cfg.Pool.MaxSteps),
		scheduler.WithResetModes(upstream, cascaded),
		scheduler.WithRunIDs(testutil.NewFixedGenerator(runID)),
		scheduler.WithLogger(h.logger),
	}
	if t := h.cfg.Trigger; t != nil {
		jobs := &scriptedJobs{Ledger: h.store.Jobs(t.Project), store: h.store, final: scenario.Jobs}
		pollerOpts := append(h.cfg.PollerOptions(),
			poller.WithSleeper(poller.SleeperFunc(func(ctx context.Context, _ time.Duration) error {
				return ctx.Err()
			})),
			poller.WithLogger(h.logger),
		)
		opts = append(opts, scheduler.WithTrigger(&scheduler.Trigger{
			Poller:  poller.New(jobs, pollerOpts...),
			Project: t.Project,
			Gear:    t.Gear,
			Config:  t.Config,
		}))
	}
	return scheduler.New(coord, h.store, classifier, h.cfg.Comparator(), opts...), nil
}

// scriptedEngine replays per-record outcome scripts.
type scriptedEngine struct {
	gear    string
	scripts map[string][]string

	mu    sync.Mutex
	calls map[string]int
}

func newScriptedEngine(gear string, scripts map[string][]string) *scriptedEngine {
	return &scriptedEngine{gear: gear, scripts: scripts, calls: map[string]int{}}
}

func (e *scriptedEngine) Validate(_ context.Context, rec visit.Record) (map[string]visit.Outcome, error) {
	e.mu.Lock()
	n := e.calls[rec.ID]
	e.calls[rec.ID] = n + 1
	e.mu.Unlock()

	script := e.scripts[rec.ID]
	if len(script) == 0 {
		return map[string]visit.Outcome{e.gear: visit.Pass}, nil
	}
	step := script[min(n, len(script)-1)]
	if step == outcomeError {
		return nil, fmt.Errorf("scripted engine failure for %s", rec.ID)
	}
	return map[string]visit.Outcome{e.gear: visit.Outcome(step)}, nil
}

func (e *scriptedEngine) counts() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.calls)
}

// scriptedJobs moves every triggered job straight to its scripted
// terminal state.
type scriptedJobs struct {
	*store.Ledger
	store *store.Store
	final map[string]string
}

func (j *scriptedJobs) Trigger(ctx context.Context, gear string, cfg map[string]string, destination string) (string, error) {
	id, err := j.Ledger.Trigger(ctx, gear, cfg, destination)
	if err != nil {
		return "", err
	}
	state := poller.Complete
	if raw, ok := j.final[destination]; ok {
		if state, err = poller.ParseJobState(raw); err != nil {
			return "", err
		}
	}
	return id, j.store.SetJobState(ctx, id, state)
}
