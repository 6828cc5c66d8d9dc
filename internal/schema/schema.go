// Package schema checks the shape of asset payloads against CUE definitions.
//
// The store never interprets payload semantics (units, physical validity).
// A Validator only answers "does this payload have the expected structure",
// and only for types that have a definition; every other type passes.
package schema

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/mcg/internal/ir"
)

//go:embed payloads.cue
var builtinSchema string

// Validator checks payloads against per-type CUE definitions.
// A definition named #<AssetType> in the source constrains that type.
//
// Thread-safety: safe for concurrent use. cue.Context is not, so Validate
// serializes access.
type Validator struct {
	mu   sync.Mutex
	ctx  *cue.Context
	defs map[ir.AssetType]cue.Value
}

// New returns a Validator for the built-in System and Method definitions.
func New() (*Validator, error) {
	return Compile(builtinSchema)
}

// NewWith returns a Validator for the built-in definitions unified with
// extra CUE sources. A repeated definition narrows the built-in one.
func NewWith(extra ...string) (*Validator, error) {
	src := builtinSchema
	for _, e := range extra {
		src += "\n" + e
	}
	return Compile(src)
}

// Compile builds a Validator from CUE source.
func Compile(src string) (*Validator, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(src, cue.Filename("payloads.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile payload schema: %w", formatCUEError(err))
	}

	defs := make(map[ir.AssetType]cue.Value)
	for _, t := range ir.AssetTypes {
		def := root.LookupPath(cue.ParsePath("#" + string(t)))
		if def.Exists() {
			defs[t] = def
		}
	}

	return &Validator{ctx: ctx, defs: defs}, nil
}

// Covers reports whether t has a definition.
func (v *Validator) Covers(t ir.AssetType) bool {
	_, ok := v.defs[t]
	return ok
}

// Validate returns a SchemaViolation if payload does not unify with the
// definition for t. Types without a definition always pass.
func (v *Validator) Validate(t ir.AssetType, payload ir.Object) error {
	def, ok := v.defs[t]
	if !ok {
		return nil
	}

	data, err := ir.CanonicalPayload(payload)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	val := v.ctx.CompileBytes(data, cue.Filename("payload.json"))
	if err := val.Err(); err != nil {
		return ir.NewSchemaViolation(t, formatCUEError(err))
	}
	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return ir.NewSchemaViolation(t, formatCUEError(err))
	}
	return nil
}

// formatCUEError keeps the first of possibly many CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	return errs[0]
}
