package util

import (
	"github.com/pattyshack/starling/ast"
)

type Pass[T any] interface {
	Process(T)
}

// Passes are executed in sequence.  A compilation is single threaded; no
// pass runs concurrently with another pass over the same node.
func Process[T any](
	node T,
	passes []Pass[T],
	shouldEarlyExit func() bool, // optional
) {
	for _, pass := range passes {
		pass.Process(node)

		if shouldEarlyExit != nil && shouldEarlyExit() {
			return
		}
	}
}

type DataflowWorkSet struct {
	queue []ast.BlockID
	set   map[ast.BlockID]struct{}
}

func NewDataflowWorkSet() *DataflowWorkSet {
	return &DataflowWorkSet{
		set: map[ast.BlockID]struct{}{},
	}
}

func (set *DataflowWorkSet) IsEmpty() bool {
	return len(set.queue) == 0
}

func (set *DataflowWorkSet) Push(block ast.BlockID) {
	_, ok := set.set[block]
	if ok {
		return
	}
	set.set[block] = struct{}{}
	set.queue = append(set.queue, block)
}

func (set *DataflowWorkSet) Pop() ast.BlockID {
	head := set.queue[0]
	set.queue = set.queue[1:]
	delete(set.set, head)
	return head
}

// Returns the blocks reachable from the entry block in depth first
// preorder, and the set of reachable blocks.
func DFS(graph *ast.Graph) ([]ast.BlockID, map[ast.BlockID]struct{}) {
	stack := make([]ast.BlockID, 0, graph.NumBlocks())
	stack = append(stack, 0)

	visited := make(map[ast.BlockID]struct{}, graph.NumBlocks())
	order := make([]ast.BlockID, 0, graph.NumBlocks())
	for len(stack) > 0 {
		idx := len(stack) - 1
		top := stack[idx]
		stack = stack[:idx]

		_, ok := visited[top]
		if ok {
			continue
		}

		visited[top] = struct{}{}
		order = append(order, top)

		// Push in reverse so that the first successor is visited first.
		succs := graph.Block(top).Succs
		for i := len(succs) - 1; i >= 0; i-- {
			stack = append(stack, succs[i])
		}
	}

	return order, visited
}

type blockAndIndex struct {
	block ast.BlockID
	index int // number of successor edges that have already been explored.
}

// Returns a depth first postorder of the blocks reachable from the entry
// block.  Unreachable blocks do not appear.
func Postorder(graph *ast.Graph) []ast.BlockID {
	seen := make([]bool, graph.NumBlocks())
	order := make([]ast.BlockID, 0, graph.NumBlocks())

	stack := make([]blockAndIndex, 0, 32)
	stack = append(stack, blockAndIndex{block: 0})
	seen[0] = true
	for len(stack) > 0 {
		tos := len(stack) - 1
		top := stack[tos]
		succs := graph.Block(top.block).Succs
		if top.index < len(succs) {
			stack[tos].index++
			succ := succs[top.index]
			if !seen[succ] {
				seen[succ] = true
				stack = append(stack, blockAndIndex{block: succ})
			}
			continue
		}
		stack = stack[:tos]
		order = append(order, top.block)
	}
	return order
}

func ReversePostorder(graph *ast.Graph) []ast.BlockID {
	order := Postorder(graph)
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}
