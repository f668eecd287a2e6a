package config

import (
	_ "embed"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// Validate checks the merged raw tree against the embedded CUE schema.
// Returns a *Error carrying the full validation report on failure.
func Validate(tree Tree) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return &Error{Message: "compiling configuration schema", Err: err}
	}

	value := ctx.Encode(tree)
	if err := value.Err(); err != nil {
		return &Error{Message: "encoding configuration for validation", Err: err}
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return &Error{Message: "configuration failed schema validation:\n" + cueerrors.Details(err, nil)}
	}
	return nil
}
