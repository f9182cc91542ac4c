package ir

// Cleanup performs the post-build mark-sweep described in spec.md
// §4.3/§9: a single DFS from the given roots marks reachable nodes;
// everything else is dropped by rebuilding a fresh, compacted arena
// that contains only the reachable survivors, re-interned into its own
// hash-consing tables. Cleanup copies each surviving node's Level
// verbatim rather than recomputing it, so it never needs its own
// rebalancing pass: the canonical operand-level ordering is an
// invariant every node must already satisfy by the time it reaches
// Cleanup, which Specialize's rebuild (specialize.go) maintains by
// reconstructing changed Plus/Minus/Times nodes through Arena.Arith
// instead of a raw intern.
func Cleanup(a *Arena, roots []ID) (*Arena, []ID) {
	var order []ID
	visited := make(map[ID]bool)
	var dfs func(ID)
	dfs = func(id ID) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, in := range a.nodes[id].Inputs {
			dfs(in)
		}
		order = append(order, id)
	}
	for _, r := range roots {
		dfs(r)
	}

	out := NewArena()
	remap := make(map[ID]ID, len(order))
	for _, old := range order {
		n := a.nodes[old]
		newInputs := make([]ID, len(n.Inputs))
		for i, in := range n.Inputs {
			newInputs[i] = remap[in]
		}
		nid := out.newNode(Node{
			Op: n.Op, Type: n.Type, Inputs: newInputs,
			IVal: n.IVal, FVal: n.FVal, Deps: n.Deps, Level: n.Level,
		})
		remap[old] = nid
		if len(n.Inputs) == 0 {
			out.singles[singleKey{n.Op, n.Type, n.IVal, n.FVal}] = nid
		}
	}

	newRoots := make([]ID, len(roots))
	for i, r := range roots {
		newRoots[i] = remap[r]
	}
	return out, newRoots
}
