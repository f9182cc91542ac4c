// Package compiler is the top-level driver: it owns nothing but the
// call sequence, running one expression through every stage from
// parsing (C1) to the finished object (C8).
package compiler

import (
	"pixc/internal/asmx64"
	"pixc/internal/ast"
	"pixc/internal/codegen"
	"pixc/internal/image"
	"pixc/internal/ir"
	"pixc/internal/regalloc"
	"pixc/internal/stats"
)

// Symbol is the name every compiled routine is exported under in its
// object file.
const Symbol = "pixc_eval"

// CompileEval runs the full C1-C8 pipeline over src against img's
// shape and returns a relocatable object containing the compiled
// routine, matching the System V-like ABI described in spec.md §6.
func CompileEval(src string, img *image.Buffer) ([]byte, error) {
	a, roots, err := LowerEval(src, img)
	if err != nil {
		return nil, err
	}

	al := regalloc.New(a)
	sched, err := al.Allocate(roots)
	if err != nil {
		return nil, err
	}

	code, err := codegen.Emit(a, img, sched, roots)
	if err != nil {
		return nil, err
	}

	return asmx64.WriteObject(Symbol, code), nil
}

// LowerEval runs the C1-C5 front half of the pipeline only (parse,
// statistics, IR build, per-channel specialization, cleanup),
// returning the cleaned-up per-channel roots without allocating
// registers or emitting code. This is what `pixc dump-ir` calls: the
// textual IR dump never needs a register schedule.
func LowerEval(src string, img *image.Buffer) (*ir.Arena, []ir.ID, error) {
	if err := image.CheckShape(img); err != nil {
		return nil, nil, err
	}

	expr, err := ast.Parse(src)
	if err != nil {
		return nil, nil, err
	}

	oracle := stats.New(img)

	a, root, err := ir.Lower(expr, img, oracle)
	if err != nil {
		return nil, nil, err
	}

	roots := make([]ir.ID, img.Channels)
	for c := 0; c < img.Channels; c++ {
		roots[c] = ir.Specialize(a, root, c)
	}
	a, roots = ir.Cleanup(a, roots)
	return a, roots, nil
}
