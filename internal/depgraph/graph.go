// Package depgraph holds the static datatype dependency graph.
//
// An edge A -> B means B must be re-validated when A's values change,
// because B's rules reference A's data. The graph is loaded once at startup
// and is immutable afterwards, so every worker may read it without locking.
package depgraph

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// Spec is one configured datatype.
type Spec struct {
	Datatype visit.Datatype
	// DependsOn lists the datatypes whose records this datatype's rules read.
	DependsOn []visit.Datatype
	// Longitudinal datatypes have rules for later visits that may read
	// earlier visits of the same datatype.
	Longitudinal bool
}

// CyclePolicy decides what loading a cyclic configuration does.
type CyclePolicy int

const (
	// RejectCycles fails New with a CycleError.
	RejectCycles CyclePolicy = iota
	// AllowCycles loads the graph and logs each cycle as a warning.
	// Cascading over a cycle is then only bounded by the scheduler quota.
	AllowCycles
)

// ParseCyclePolicy converts "reject" or "allow".
func ParseCyclePolicy(s string) (CyclePolicy, error) {
	switch s {
	case "", "reject":
		return RejectCycles, nil
	case "allow":
		return AllowCycles, nil
	default:
		return 0, fmt.Errorf("unknown cycle policy %q", s)
	}
}

// CycleError reports the cycles found in a rejected configuration.
type CycleError struct {
	Cycles [][]visit.Datatype
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Cycles))
	for i, c := range e.Cycles {
		parts[i] = formatPath(c)
	}
	return fmt.Sprintf("dependency graph has %d cycle(s): %s", len(e.Cycles), strings.Join(parts, "; "))
}

// Graph is the immutable dependency graph.
type Graph struct {
	dependents   map[visit.Datatype]map[visit.Datatype]struct{}
	longitudinal map[visit.Datatype]bool
	cycles       [][]visit.Datatype
}

// Option configures New.
type Option func(*options)

type options struct {
	policy CyclePolicy
	logger *slog.Logger
}

// WithCyclePolicy sets the cycle policy. Default: RejectCycles.
func WithCyclePolicy(p CyclePolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithLogger sets the logger used for cycle warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds a graph from datatype specs.
//
// Every datatype named in DependsOn must itself have a spec. Datatypes must
// be unique.
func New(specs []Spec, opts ...Option) (*Graph, error) {
	o := options{policy: RejectCycles, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	g := &Graph{
		dependents:   make(map[visit.Datatype]map[visit.Datatype]struct{}, len(specs)),
		longitudinal: make(map[visit.Datatype]bool, len(specs)),
	}

	for _, s := range specs {
		if s.Datatype == "" {
			return nil, fmt.Errorf("datatype name is required")
		}
		if _, dup := g.dependents[s.Datatype]; dup {
			return nil, fmt.Errorf("datatype %s configured twice", s.Datatype)
		}
		g.dependents[s.Datatype] = make(map[visit.Datatype]struct{})
		g.longitudinal[s.Datatype] = s.Longitudinal
	}

	for _, s := range specs {
		for _, dep := range s.DependsOn {
			deps, ok := g.dependents[dep]
			if !ok {
				return nil, fmt.Errorf("datatype %s depends on unknown datatype %s", s.Datatype, dep)
			}
			deps[s.Datatype] = struct{}{}
		}
	}

	g.cycles = findCycles(g.adjacency())
	if len(g.cycles) > 0 {
		if o.policy == RejectCycles {
			return nil, &CycleError{Cycles: g.cycles}
		}
		for _, c := range g.cycles {
			o.logger.Warn("dependency cycle allowed by configuration",
				"path", formatPath(c),
				"event", "dependency_cycle",
			)
		}
	}

	return g, nil
}

// Dependents returns the datatypes that depend on dt, sorted by name.
func (g *Graph) Dependents(dt visit.Datatype) []visit.Datatype {
	deps := g.dependents[dt]
	out := make([]visit.Datatype, 0, len(deps))
	for d := range deps {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

// DependsOn reports whether dependent is re-validated when dt changes.
func (g *Graph) DependsOn(dependent, dt visit.Datatype) bool {
	_, ok := g.dependents[dt][dependent]
	return ok
}

// Longitudinal reports whether dt is longitudinal. Unknown datatypes are not.
func (g *Graph) Longitudinal(dt visit.Datatype) bool {
	return g.longitudinal[dt]
}

// Known reports whether dt is configured.
func (g *Graph) Known(dt visit.Datatype) bool {
	_, ok := g.dependents[dt]
	return ok
}

// Datatypes returns every configured datatype, sorted by name.
func (g *Graph) Datatypes() []visit.Datatype {
	out := make([]visit.Datatype, 0, len(g.dependents))
	for d := range g.dependents {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

// Cycles returns the cycles found at load time (only possible under
// AllowCycles).
func (g *Graph) Cycles() [][]visit.Datatype {
	return g.cycles
}

func (g *Graph) adjacency() map[visit.Datatype][]visit.Datatype {
	adj := make(map[visit.Datatype][]visit.Datatype, len(g.dependents))
	for dt := range g.dependents {
		adj[dt] = g.Dependents(dt)
	}
	return adj
}

func formatPath(path []visit.Datatype) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = string(p)
	}
	return strings.Join(parts, " -> ")
}
