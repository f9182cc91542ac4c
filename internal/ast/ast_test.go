package ast

import "testing"

func TestParseBinaryPrecedence(t *testing.T) {
	expr, err := Parse("1 + 2 * 3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sum, ok := expr.(*Binary)
	if !ok || sum.Op != "+" {
		t.Fatalf("expected top-level '+', got %#v", expr)
	}
	if _, ok := sum.Left.(*NumberLit); !ok {
		t.Fatalf("expected left operand to be a literal, got %#v", sum.Left)
	}
	prod, ok := sum.Right.(*Binary)
	if !ok || prod.Op != "*" {
		t.Fatalf("expected right operand to be '*', got %#v", sum.Right)
	}
}

func TestParsePowerBindsTighterThanProduct(t *testing.T) {
	expr, err := Parse("2 * 3 ^ 2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	prod, ok := expr.(*Binary)
	if !ok || prod.Op != "*" {
		t.Fatalf("expected top-level '*', got %#v", expr)
	}
	if _, ok := prod.Right.(*Binary); !ok {
		t.Fatalf("expected right operand to be '^', got %#v", prod.Right)
	}
}

func TestParseVarUniformAndConst(t *testing.T) {
	for _, tc := range []struct {
		src  string
		want Expr
	}{
		{"x", &Var{Name: "x"}},
		{"val", &Var{Name: "val"}},
		{"width", &Uniform{Name: "width"}},
		{"pi", &NamedConst{Name: "pi"}},
	} {
		expr, err := Parse(tc.src)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.src, err)
		}
		if expr != tc.want && !exprEqual(expr, tc.want) {
			t.Fatalf("parse %q = %#v, want %#v", tc.src, expr, tc.want)
		}
	}
}

func exprEqual(a, b Expr) bool {
	switch av := a.(type) {
	case *Var:
		bv, ok := b.(*Var)
		return ok && av.Name == bv.Name
	case *Uniform:
		bv, ok := b.(*Uniform)
		return ok && av.Name == bv.Name
	case *NamedConst:
		bv, ok := b.(*NamedConst)
		return ok && av.Name == bv.Name
	default:
		return false
	}
}

func TestParseTernary(t *testing.T) {
	expr, err := Parse("x > 0 ? 1 : -1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	tern, ok := expr.(*Ternary)
	if !ok {
		t.Fatalf("expected *Ternary, got %#v", expr)
	}
	if _, ok := tern.Cond.(*Binary); !ok {
		t.Fatalf("expected condition to be a comparison, got %#v", tern.Cond)
	}
	if _, ok := tern.Else.(*Unary); !ok {
		t.Fatalf("expected else branch to be negation, got %#v", tern.Else)
	}
}

func TestParseSampleWithUpToThreeArgs(t *testing.T) {
	expr, err := Parse("[0, 1, 2]")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s, ok := expr.(*Sample)
	if !ok || len(s.Args) != 3 {
		t.Fatalf("expected a 3-argument Sample, got %#v", expr)
	}
}

func TestParseZeroArgAndOneArgStatistics(t *testing.T) {
	if _, err := Parse("mean()"); err != nil {
		t.Fatalf("mean(): %v", err)
	}
	expr, err := Parse("mean(1)")
	if err != nil {
		t.Fatalf("mean(1): %v", err)
	}
	call, ok := expr.(*Call)
	if !ok || call.Name != "mean" || len(call.Args) != 1 {
		t.Fatalf("expected a 1-arg mean Call, got %#v", expr)
	}
}

func TestParseTwoArgFunctions(t *testing.T) {
	for _, src := range []string{"atan2(1, 2)", "covariance(0, 1)"} {
		expr, err := Parse(src)
		if err != nil {
			t.Fatalf("parse %q: %v", src, err)
		}
		call, ok := expr.(*Call)
		if !ok || len(call.Args) != 2 {
			t.Fatalf("parse %q = %#v, want a 2-arg Call", src, expr)
		}
	}
}

func TestParseRejectsBareStatisticName(t *testing.T) {
	if _, err := Parse("mean"); err == nil {
		t.Fatalf("expected an error for 'mean' without parens")
	}
}

func TestParseRejectsUnknownIdentifier(t *testing.T) {
	if _, err := Parse("frobnicate(1)"); err == nil {
		t.Fatalf("expected an error for an unknown function")
	}
}

func TestParseRejectsTrailingInput(t *testing.T) {
	if _, err := Parse("1 + 2) "); err == nil {
		t.Fatalf("expected an error for unbalanced trailing input")
	}
}

func TestParseRejectsArityMismatch(t *testing.T) {
	if _, err := Parse("sin(1, 2)"); err == nil {
		t.Fatalf("expected an error: sin takes one argument")
	}
	if _, err := Parse("atan2(1)"); err == nil {
		t.Fatalf("expected an error: atan2 takes two arguments")
	}
}

func TestIsStatName(t *testing.T) {
	if !IsStatName("mean") || !IsStatName("covariance") {
		t.Fatalf("expected mean and covariance to be statistic names")
	}
	if IsStatName("sin") {
		t.Fatalf("sin is a math function, not a statistic")
	}
}
