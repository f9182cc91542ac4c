package ir

import (
	"testing"

	"pixc/internal/ast"
	"pixc/internal/image"
	"pixc/internal/stats"
)

func lowerSource(t *testing.T, src string, img *image.Buffer) (*Arena, ID) {
	t.Helper()
	expr, err := ast.Parse(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	if img == nil {
		img = image.NewBuffer(4, 2, 1, 3)
	}
	a, root, err := Lower(expr, img, stats.New(img))
	if err != nil {
		t.Fatalf("lower %q: %v", src, err)
	}
	return a, root
}

func TestConstantFolding(t *testing.T) {
	a, root := lowerSource(t, "1 + 2 * 3", nil)
	if a.Node(root).Op != OpConst {
		t.Fatalf("expected folded Const root, got %s", a.Node(root).Op)
	}
	if a.Node(root).FVal != 7 {
		t.Fatalf("expected 7, got %v", a.Node(root).FVal)
	}
}

func TestHashConsingIdentity(t *testing.T) {
	a, root := lowerSource(t, "(x + 1) * (x + 1)", nil)
	n := a.Node(root)
	if n.Op != OpTimes {
		t.Fatalf("expected Times root, got %s", n.Op)
	}
	if n.Inputs[0] != n.Inputs[1] {
		t.Fatalf("identical subexpressions did not hash-cons to the same node")
	}
}

func TestLevelOfPixelCoordinate(t *testing.T) {
	a, root := lowerSource(t, "x", nil)
	if got := a.Node(root).Level; got != 3 {
		t.Fatalf("expected level 3 for x, got %d", got)
	}
}

func TestLevelOfLoopInvariant(t *testing.T) {
	a, root := lowerSource(t, "width + 1", nil)
	if got := a.Node(root).Level; got != 0 {
		t.Fatalf("expected level 0 for a uniform-only expression, got %d", got)
	}
}

func TestTernaryBranchFree(t *testing.T) {
	a, root := lowerSource(t, "(x > 1) ? 1 : 0", nil)
	n := a.Node(root)
	if n.Op != OpOr {
		t.Fatalf("expected Or root for ternary, got %s", n.Op)
	}
	left := a.Node(n.Inputs[0])
	right := a.Node(n.Inputs[1])
	if left.Op != OpAnd || right.Op != OpNand {
		t.Fatalf("expected And/Nand children, got %s/%s", left.Op, right.Op)
	}
}

func TestValLowersToLoadAtOutputChannel(t *testing.T) {
	a, root := lowerSource(t, "val", nil)
	n := a.Node(root)
	if n.Op != OpLoad {
		t.Fatalf("expected Load root for val, got %s", n.Op)
	}
	if n.Deps&DepMem == 0 || n.Deps&DepC == 0 {
		t.Fatalf("expected val's address to depend on mem and c, got deps=%v", n.Deps)
	}
}

func TestMultiDimensionalSampleIsUnsupported(t *testing.T) {
	expr, err := ast.Parse("[x, y]")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	img := image.NewBuffer(4, 2, 1, 3)
	_, _, err = Lower(expr, img, stats.New(img))
	if err == nil {
		t.Fatalf("expected UnsupportedOp error for 2-D sample")
	}
}

func TestStatCallFoldsToConst(t *testing.T) {
	a, root := lowerSource(t, "mean()", nil)
	if a.Node(root).Op != OpConst {
		t.Fatalf("expected mean() to fold to Const, got %s", a.Node(root).Op)
	}
}

func TestDivideByConstantBecomesTimes(t *testing.T) {
	a, root := lowerSource(t, "x / 2", nil)
	n := a.Node(root)
	if n.Op != OpTimes {
		t.Fatalf("expected Divide(x,k) rewritten to Times, got %s", n.Op)
	}
}

func TestIntegerTimesConstantBecomesTimesImm(t *testing.T) {
	// Literals are always Float (spec.md §3); an Int*Int-constant
	// product only arises from an Int-typed uniform like `width`.
	a, root := lowerSource(t, "x * width", nil)
	if a.Node(root).Op != OpTimesImm {
		t.Fatalf("expected integer Times with constant operand to become TimesImm, got %s", a.Node(root).Op)
	}
}

func TestChannelSpecializationSharesInvariantNodes(t *testing.T) {
	a, root := lowerSource(t, "x + c", nil)
	r0 := Specialize(a, root, 0)
	r1 := Specialize(a, root, 1)
	if r0 == r1 {
		t.Fatalf("channel-dependent roots should differ across channels")
	}
	n0 := a.Node(r0)
	// c resolves to an integer constant, which buildSum fuses into PlusImm.
	if n0.Op != OpPlusImm {
		t.Fatalf("expected PlusImm root, got %s", n0.Op)
	}
	if n0.Inputs[0] != a.Node(root).Inputs[0] {
		t.Fatalf("the c-independent x operand should be shared, not cloned")
	}
}

func TestCleanupReachability(t *testing.T) {
	a, root := lowerSource(t, "x + 1", nil)
	out, roots := Cleanup(a, []ID{root})
	visited := make(map[ID]bool)
	var dfs func(ID)
	dfs = func(id ID) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, in := range out.nodes[id].Inputs {
			dfs(in)
		}
	}
	for _, r := range roots {
		dfs(r)
	}
	if len(visited) != len(out.nodes) {
		t.Fatalf("cleanup left %d unreachable nodes out of %d", len(out.nodes)-len(visited), len(out.nodes))
	}
}
