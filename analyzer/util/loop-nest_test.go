package util

import (
	"reflect"
	"testing"

	"github.com/pattyshack/starling/ast"
	"github.com/pattyshack/starling/ast/asttest"
)

func TestLoopNest(t *testing.T) {
	graph := asttest.LoopWithEquals()
	nest := NewLoopNest(NewDominatorTree(graph))

	header := asttest.BlockByLabel(graph, "header")
	body := asttest.BlockByLabel(graph, "body")

	if len(nest.Loops) != 1 {
		t.Fatalf("expected one loop, found %d", len(nest.Loops))
	}

	loop := nest.Loops[0]
	if loop.Header != header {
		t.Errorf("expected header %d, got %d", header, loop.Header)
	}

	if !reflect.DeepEqual(loop.Blocks, []ast.BlockID{header, body}) {
		t.Errorf("unexpected loop blocks: %v", loop.Blocks)
	}

	if !reflect.DeepEqual(loop.Latches, []ast.BlockID{body}) {
		t.Errorf("unexpected latches: %v", loop.Latches)
	}

	expected := []int{0, 1, 1, 0}
	for idx, depth := range expected {
		block := graph.Block(ast.BlockID(idx))
		if nest.Depth(block.ID) != depth || block.LoopDepth != depth {
			t.Errorf(
				"block %s: expected depth %d, got %d (%d)",
				block.Label,
				depth,
				nest.Depth(block.ID),
				block.LoopDepth)
		}
	}
}

func TestNestedLoops(t *testing.T) {
	graph := ast.NewGraph("nested")
	entry := graph.NewBlock("entry", 1)
	outer := graph.NewBlock("outer", 10)
	inner := graph.NewBlock("inner", 100)
	latch := graph.NewBlock("latch", 10)
	exit := graph.NewBlock("exit", 1)

	graph.AddEdge(entry, outer)
	graph.AddEdge(outer, inner)
	graph.AddEdge(inner, inner)
	graph.AddEdge(inner, latch)
	graph.AddEdge(latch, outer)
	graph.AddEdge(latch, exit)

	nest := NewLoopNest(NewDominatorTree(graph))

	expected := map[ast.BlockID]int{
		entry: 0,
		outer: 1,
		inner: 2,
		latch: 1,
		exit:  0,
	}
	for block, depth := range expected {
		if nest.Depth(block) != depth {
			t.Errorf(
				"block %d: expected depth %d, got %d",
				block,
				depth,
				nest.Depth(block))
		}
	}

	if len(nest.Loops) != 2 ||
		nest.Loops[0].Header != outer ||
		nest.Loops[1].Header != inner {
		t.Errorf("unexpected loops: %v", nest.Loops)
	}
}
