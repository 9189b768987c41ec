package metadata

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed doctype.cue
var doctypeCUE string

// Validator checks raw doctype payloads against the #DocType definition
// before they are decoded and cached.
//
// Thread-safety: a cue.Context is not safe for concurrent use, so Validate
// serializes on an internal mutex.
type Validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

// NewValidator compiles the embedded #DocType definition.
func NewValidator() (*Validator, error) {
	cctx := cuecontext.New()
	v := cctx.CompileString(doctypeCUE, cue.Filename("doctype.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile doctype schema: %w", err)
	}
	def := v.LookupPath(cue.ParsePath("#DocType"))
	if !def.Exists() {
		return nil, fmt.Errorf("compile doctype schema: #DocType not defined")
	}
	return &Validator{ctx: cctx, schema: def}, nil
}

// Validate reports the first constraint violation in a JSON doctype, or nil.
func (v *Validator) Validate(data []byte) error {
	expr, err := cuejson.Extract("doctype.json", data)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	val := v.ctx.BuildExpr(expr)
	if err := val.Err(); err != nil {
		return formatCUEError(err)
	}
	if err := v.schema.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// formatCUEError keeps the first of possibly many CUE errors, prefixed with
// the offending path.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if path := first.Path(); len(path) > 0 {
		return fmt.Errorf("invalid doctype at %s: %w", strings.Join(path, "."), first)
	}
	return fmt.Errorf("invalid doctype: %w", first)
}
