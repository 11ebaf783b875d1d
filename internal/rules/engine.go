// Package rules is the default validation engine: every datatype is checked
// against a CUE definition of the same name.
//
// A rules directory holds one CUE package. For datatype UDS the engine looks
// up #UDS, encodes the record's fields as a struct of strings, and unifies
// the two. Definitions are closed, so undeclared fields fail unless the
// definition ends with "...".
//
//	#UDS: {
//		visitdate: =~"^[0-9]{4}-[0-9]{2}-[0-9]{2}$"
//		ptid:      string & !=""
//		...
//	}
//
// A datatype without a definition is reported IN_REVIEW: there is nothing to
// check it against, which is neither a pass nor a failure.
package rules

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// Engine validates records against CUE definitions.
//
// Thread-safety: safe for concurrent use. A cue.Context is not safe for
// concurrent mutation, so every unification holds mu.
type Engine struct {
	mu    sync.Mutex
	ctx   *cue.Context
	value cue.Value
	gear  string
}

// Load builds the rules package in dir. gear names the outcome key.
func Load(dir, gear string) (*Engine, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("rules directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("rules directory: not a directory: %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("rules directory %s: no CUE instances loaded", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", err)
	}
	return &Engine{ctx: ctx, value: value, gear: gear}, nil
}

// Compile builds an engine from CUE source text.
func Compile(src, gear string) (*Engine, error) {
	ctx := cuecontext.New()
	value := ctx.CompileString(src, cue.Filename("rules.cue"))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compiling rules: %w", err)
	}
	return &Engine{ctx: ctx, value: value, gear: gear}, nil
}

// Gear returns the outcome key the engine reports under.
func (e *Engine) Gear() string {
	return e.gear
}

// Has reports whether datatype dt has a definition.
func (e *Engine) Has(dt visit.Datatype) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.definition(dt)
	return ok
}

// Check validates rec and returns the problems found. found is false when
// the datatype has no definition.
func (e *Engine) Check(rec visit.Record) (problems []string, found bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	def, ok := e.definition(rec.Datatype)
	if !ok {
		return nil, false, nil
	}

	fields := rec.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	data := e.ctx.Encode(fields)
	if err := data.Err(); err != nil {
		return nil, true, fmt.Errorf("encode record %s: %w", rec.ID, err)
	}

	if err := def.Unify(data).Validate(cue.Concrete(true)); err != nil {
		for _, ce := range cueerrors.Errors(err) {
			problems = append(problems, ce.Error())
		}
		if len(problems) == 0 {
			problems = []string{err.Error()}
		}
	}
	return problems, true, nil
}

// Validate implements the coordinator's engine contract.
func (e *Engine) Validate(ctx context.Context, rec visit.Record) (map[string]visit.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	problems, found, err := e.Check(rec)
	if err != nil {
		return nil, err
	}
	switch {
	case !found:
		return map[string]visit.Outcome{e.gear: visit.InReview}, nil
	case len(problems) > 0:
		return map[string]visit.Outcome{e.gear: visit.Fail}, nil
	default:
		return map[string]visit.Outcome{e.gear: visit.Pass}, nil
	}
}

// definition looks up #<datatype>. Callers hold mu.
func (e *Engine) definition(dt visit.Datatype) (cue.Value, bool) {
	path := cue.ParsePath("#" + DefinitionName(dt))
	if path.Err() != nil {
		return cue.Value{}, false
	}
	v := e.value.LookupPath(path)
	return v, v.Exists()
}

// DefinitionName maps a datatype to a CUE identifier: characters that
// cannot appear in an identifier become underscores ("UDS-SCAN" -> "UDS_SCAN")
// and a name not starting with a letter gets a leading underscore
// ("3D-MRI" -> "_3D_MRI").
func DefinitionName(dt visit.Datatype) string {
	name := strings.Map(func(r rune) rune {
		if r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, string(dt))
	if first, _ := utf8.DecodeRuneInString(name); !unicode.IsLetter(first) && first != '_' && first != '$' {
		name = "_" + name
	}
	return name
}
