package util

import (
	"github.com/pattyshack/starling/ast"
)

// Answers "does any block on a control flow path between a and b contain a
// safepoint (or any side effect)?" queries.  The region between a and b is the set of blocks
// reachable from a that can also reach b (a and b inclusive).  Reachability
// sets are computed on demand and cached.
type SafepointRegions struct {
	graph *ast.Graph

	hasSafepoint  []bool
	hasSideEffect []bool

	forward  map[ast.BlockID][]bool
	backward map[ast.BlockID][]bool
}

func NewSafepointRegions(graph *ast.Graph) *SafepointRegions {
	hasSafepoint := make([]bool, graph.NumBlocks())
	hasSideEffect := make([]bool, graph.NumBlocks())
	for id := range hasSafepoint {
		hasSafepoint[id] = graph.HasSafepoint(ast.BlockID(id))
		hasSideEffect[id] = graph.HasSideEffects(ast.BlockID(id))
	}

	return &SafepointRegions{
		graph:         graph,
		hasSafepoint:  hasSafepoint,
		hasSideEffect: hasSideEffect,
		forward:       map[ast.BlockID][]bool{},
		backward:      map[ast.BlockID][]bool{},
	}
}

func (regions *SafepointRegions) BlockHasSafepoint(block ast.BlockID) bool {
	return regions.hasSafepoint[block]
}

func (regions *SafepointRegions) reach(
	start ast.BlockID,
	cache map[ast.BlockID][]bool,
	next func(*ast.Block) []ast.BlockID,
) []bool {
	result, ok := cache[start]
	if ok {
		return result
	}

	result = make([]bool, regions.graph.NumBlocks())
	stack := []ast.BlockID{start}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if result[top] {
			continue
		}
		result[top] = true

		stack = append(stack, next(regions.graph.Block(top))...)
	}

	cache[start] = result
	return result
}

// Returns true if the region between first and second (in either direction)
// is free of safepoints.
func (regions *SafepointRegions) IsSafepointFree(
	first ast.BlockID,
	second ast.BlockID,
) bool {
	return regions.isFreeOf(regions.hasSafepoint, first, second)
}

// Returns true if the region between first and second (in either direction)
// is free of side effects.  Memory reads may move freely within such a
// region.
func (regions *SafepointRegions) IsSideEffectFree(
	first ast.BlockID,
	second ast.BlockID,
) bool {
	return regions.isFreeOf(regions.hasSideEffect, first, second)
}

func (regions *SafepointRegions) isFreeOf(
	marked []bool,
	first ast.BlockID,
	second ast.BlockID,
) bool {
	if first == second {
		return !marked[first]
	}

	return regions.isFree(marked, first, second) &&
		regions.isFree(marked, second, first)
}

func (regions *SafepointRegions) isFree(
	marked []bool,
	from ast.BlockID,
	to ast.BlockID,
) bool {
	forward := regions.reach(
		from,
		regions.forward,
		func(block *ast.Block) []ast.BlockID { return block.Succs })
	backward := regions.reach(
		to,
		regions.backward,
		func(block *ast.Block) []ast.BlockID { return block.Preds })

	// The endpoints are always part of the region, even when there is no path
	// between them.
	if marked[from] || marked[to] {
		return false
	}

	for id, reachable := range forward {
		if reachable && backward[id] && marked[id] {
			return false
		}
	}
	return true
}
