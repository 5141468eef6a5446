package util

import (
	"sort"

	"github.com/pattyshack/starling/ast"
)

type Loop struct {
	Header ast.BlockID

	// Sorted by block id.  Includes the header.
	Blocks []ast.BlockID

	// Back edge sources.
	Latches []ast.BlockID
}

// Natural loops, identified by back edges (edges whose destination dominates
// their source).  Loops sharing a header are merged.  NewLoopNest populates
// each block's LoopDepth.
//
// Note: irreducible cycles have no dominating header and do not contribute
// to loop depth.
type LoopNest struct {
	Loops []*Loop // ordered by header id

	depth []int
}

func NewLoopNest(tree *DominatorTree) *LoopNest {
	graph := tree.Graph()

	latches := map[ast.BlockID][]ast.BlockID{}
	for id := 0; id < graph.NumBlocks(); id++ {
		block := graph.Block(ast.BlockID(id))
		if !tree.IsReachable(block.ID) {
			continue
		}

		for _, succ := range block.Succs {
			if tree.Dominates(succ, block.ID) {
				latches[succ] = append(latches[succ], block.ID)
			}
		}
	}

	headers := make([]ast.BlockID, 0, len(latches))
	for header := range latches {
		headers = append(headers, header)
	}
	sort.Slice(headers, func(i int, j int) bool { return headers[i] < headers[j] })

	nest := &LoopNest{
		depth: make([]int, graph.NumBlocks()),
	}

	for _, header := range headers {
		loop := &Loop{
			Header:  header,
			Latches: latches[header],
		}

		inLoop := map[ast.BlockID]struct{}{header: {}}
		stack := append([]ast.BlockID(nil), loop.Latches...)
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			_, ok := inLoop[top]
			if ok {
				continue
			}
			inLoop[top] = struct{}{}

			for _, pred := range graph.Block(top).Preds {
				if tree.IsReachable(pred) {
					stack = append(stack, pred)
				}
			}
		}

		for block := range inLoop {
			loop.Blocks = append(loop.Blocks, block)
			nest.depth[block]++
		}
		sort.Slice(
			loop.Blocks,
			func(i int, j int) bool { return loop.Blocks[i] < loop.Blocks[j] })

		nest.Loops = append(nest.Loops, loop)
	}

	for id := 0; id < graph.NumBlocks(); id++ {
		graph.Block(ast.BlockID(id)).LoopDepth = nest.depth[id]
	}

	return nest
}

func (nest *LoopNest) Depth(block ast.BlockID) int {
	return nest.depth[block]
}
