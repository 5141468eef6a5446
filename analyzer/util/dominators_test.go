package util

import (
	"reflect"
	"testing"

	"github.com/pattyshack/starling/ast"
	"github.com/pattyshack/starling/ast/asttest"
)

func TestDominatorTree(t *testing.T) {
	tests := []struct {
		name      string
		graph     *ast.Graph
		idoms     []ast.BlockID
		depths    []int
		postorder []ast.BlockID
	}{
		{
			name:      "loop",
			graph:     asttest.LoopWithEquals(),
			idoms:     []ast.BlockID{ast.NoBlock, 0, 1, 1},
			depths:    []int{0, 1, 2, 2},
			postorder: []ast.BlockID{3, 2, 1, 0},
		},
		{
			name:      "diamond",
			graph:     asttest.Diamond(),
			idoms:     []ast.BlockID{ast.NoBlock, 0, 0, 0, 3},
			depths:    []int{0, 1, 1, 1, 2},
			postorder: []ast.BlockID{4, 3, 1, 2, 0},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			postorder := Postorder(test.graph)
			if !reflect.DeepEqual(postorder, test.postorder) {
				t.Errorf("expected postorder %v, got %v", test.postorder, postorder)
			}

			tree := NewDominatorTree(test.graph)

			idoms := []ast.BlockID{}
			depths := []int{}
			for idx := range test.graph.Blocks {
				block := test.graph.Block(ast.BlockID(idx))
				idoms = append(idoms, tree.Idom(block.ID))
				depths = append(depths, tree.Depth(block.ID))

				if block.Idom != tree.Idom(block.ID) ||
					block.DomDepth != tree.Depth(block.ID) {
					t.Errorf("block %s idom / depth not populated", block.Label)
				}
			}

			if !reflect.DeepEqual(idoms, test.idoms) {
				t.Errorf("expected idoms %v, got %v", test.idoms, idoms)
			}

			if !reflect.DeepEqual(depths, test.depths) {
				t.Errorf("expected depths %v, got %v", test.depths, depths)
			}
		})
	}
}

func TestDominatorQueries(t *testing.T) {
	graph := asttest.Diamond()
	tree := NewDominatorTree(graph)

	entry := asttest.BlockByLabel(graph, "entry")
	left := asttest.BlockByLabel(graph, "left")
	right := asttest.BlockByLabel(graph, "right")
	merge := asttest.BlockByLabel(graph, "merge")
	exit := asttest.BlockByLabel(graph, "exit")

	dominates := []struct {
		first    ast.BlockID
		second   ast.BlockID
		expected bool
	}{
		{entry, exit, true},
		{merge, exit, true},
		{merge, merge, true},
		{left, merge, false},
		{left, right, false},
		{exit, entry, false},
	}

	for _, test := range dominates {
		if tree.Dominates(test.first, test.second) != test.expected {
			t.Errorf(
				"Dominates(%d, %d): expected %v",
				test.first,
				test.second,
				test.expected)
		}
	}

	lcas := []struct {
		first    ast.BlockID
		second   ast.BlockID
		expected ast.BlockID
	}{
		{left, right, entry},
		{left, exit, entry},
		{merge, exit, merge},
		{exit, exit, exit},
		{ast.NoBlock, right, right},
		{left, ast.NoBlock, left},
	}

	for _, test := range lcas {
		lca := tree.LCA(test.first, test.second)
		if lca != test.expected {
			t.Errorf(
				"LCA(%d, %d): expected %d, got %d",
				test.first,
				test.second,
				test.expected,
				lca)
		}
	}

	if tree.Deeper(entry, merge) != merge || tree.Deeper(exit, entry) != exit {
		t.Errorf("unexpected Deeper result")
	}

	if tree.Deeper(left, right) != ast.NoBlock {
		t.Errorf("expected unrelated blocks to have no deeper block")
	}

	path := tree.Path(exit, entry)
	if !reflect.DeepEqual(path, []ast.BlockID{exit, merge, entry}) {
		t.Errorf("unexpected path: %v", path)
	}

	if tree.Path(entry, exit) != nil {
		t.Errorf("expected no path from an ancestor to a descendant")
	}

	if !reflect.DeepEqual(tree.Children(entry), []ast.BlockID{left, right, merge}) {
		t.Errorf("unexpected children: %v", tree.Children(entry))
	}
}

func TestUnreachableBlocks(t *testing.T) {
	graph := ast.NewGraph("unreachable")
	entry := graph.NewBlock("entry", 1)
	dead := graph.NewBlock("dead", 1)
	graph.AddEdge(dead, entry)
	graph.Append(entry, ast.Return, nil)
	graph.Append(dead, ast.Jump, nil)

	tree := NewDominatorTree(graph)
	if tree.IsReachable(dead) || !tree.IsReachable(entry) {
		t.Errorf("unexpected reachability")
	}

	if tree.Dominates(dead, dead) || tree.Dominates(entry, dead) {
		t.Errorf("unreachable blocks should not participate in dominance")
	}

	_, reachable := DFS(graph)
	if _, ok := reachable[dead]; ok {
		t.Errorf("DFS reached an unreachable block")
	}
}
