package compiler

import (
	"strings"
	"testing"

	"pixc/internal/cerr"
	"pixc/internal/image"
)

func TestCompileEvalProducesObjectWithSymbol(t *testing.T) {
	img := image.NewBuffer(4, 4, 1, 3)
	obj, err := CompileEval("val * 2 + x", img)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(obj) == 0 {
		t.Fatalf("expected object bytes")
	}
	if !strings.Contains(string(obj), Symbol) {
		t.Fatalf("expected object's symbol table to contain %q", Symbol)
	}
}

func TestCompileEvalRejectsBadShapeBeforeLowering(t *testing.T) {
	img := image.NewBuffer(5, 4, 1, 3) // width not a multiple of 4
	_, err := CompileEval("x", img)
	if err == nil {
		t.Fatalf("expected a ShapeError")
	}
	ce, ok := err.(*cerr.CompileError)
	if !ok {
		t.Fatalf("expected *cerr.CompileError, got %T", err)
	}
	if ce.Kind != cerr.ShapeError {
		t.Fatalf("expected ShapeError, got %v", ce.Kind)
	}
}

func TestCompileEvalRejectsWrongChannelCount(t *testing.T) {
	img := image.NewBuffer(4, 4, 1, 4)
	_, err := CompileEval("x", img)
	if err == nil {
		t.Fatalf("expected a ShapeError")
	}
}

func TestCompileEvalPropagatesParseErrors(t *testing.T) {
	img := image.NewBuffer(4, 4, 1, 3)
	_, err := CompileEval("x +", img)
	if err == nil {
		t.Fatalf("expected a parse error")
	}
	ce, ok := err.(*cerr.CompileError)
	if !ok {
		t.Fatalf("expected *cerr.CompileError, got %T", err)
	}
	if ce.Kind != cerr.ParseError {
		t.Fatalf("expected ParseError, got %v", ce.Kind)
	}
}

func TestCompileEvalFatalsOnUnsupportedOpcode(t *testing.T) {
	img := image.NewBuffer(4, 4, 1, 3)
	_, err := CompileEval("sin(x)", img)
	if err == nil {
		t.Fatalf("expected an UnsupportedOp error")
	}
	ce, ok := err.(*cerr.CompileError)
	if !ok {
		t.Fatalf("expected *cerr.CompileError, got %T", err)
	}
	if ce.Kind != cerr.UnsupportedOp {
		t.Fatalf("expected UnsupportedOp, got %v", ce.Kind)
	}
}
