package util

import (
	"math/bits"

	"github.com/pattyshack/starling/ast"
)

// Dominator tree over the reachable blocks of a graph, computed with the
// Cooper, Harvey & Kennedy iterative algorithm.  NewDominatorTree also
// populates each block's Idom and DomDepth.
type DominatorTree struct {
	graph *ast.Graph

	// -1 for unreachable blocks
	postnum []int

	idom     []ast.BlockID
	depth    []int
	children [][]ast.BlockID

	// Preorder / postorder intervals of the dominator tree, used for constant
	// time dominance checks.
	enter []int
	exit  []int

	lca *lcaRange
}

func NewDominatorTree(graph *ast.Graph) *DominatorTree {
	numBlocks := graph.NumBlocks()
	tree := &DominatorTree{
		graph:    graph,
		postnum:  make([]int, numBlocks),
		idom:     make([]ast.BlockID, numBlocks),
		depth:    make([]int, numBlocks),
		children: make([][]ast.BlockID, numBlocks),
		enter:    make([]int, numBlocks),
		exit:     make([]int, numBlocks),
	}

	for idx := range tree.postnum {
		tree.postnum[idx] = -1
		tree.idom[idx] = ast.NoBlock
	}

	postorder := Postorder(graph)
	for idx, block := range postorder {
		tree.postnum[block] = idx
	}

	tree.idom[0] = 0
	changed := true
	for changed {
		changed = false

		// Iterate in reverse postorder, skipping the entry block.
		for idx := len(postorder) - 2; idx >= 0; idx-- {
			block := postorder[idx]

			newIdom := ast.NoBlock
			for _, pred := range graph.Block(block).Preds {
				if tree.idom[pred] == ast.NoBlock { // not yet processed / unreachable
					continue
				}

				if newIdom == ast.NoBlock {
					newIdom = pred
				} else {
					newIdom = tree.intersect(pred, newIdom)
				}
			}

			if newIdom != tree.idom[block] {
				tree.idom[block] = newIdom
				changed = true
			}
		}
	}
	tree.idom[0] = ast.NoBlock

	// Children are recorded in block id order to keep the tree deterministic.
	for id := 0; id < numBlocks; id++ {
		parent := tree.idom[id]
		if parent != ast.NoBlock {
			tree.children[parent] = append(tree.children[parent], ast.BlockID(id))
		}
	}

	tree.number()

	for id := 0; id < numBlocks; id++ {
		block := graph.Block(ast.BlockID(id))
		block.Idom = tree.idom[id]
		block.DomDepth = tree.depth[id]
	}

	tree.lca = newLCARange(tree)
	return tree
}

// intersect finds the closest dominator of both first and second.
func (tree *DominatorTree) intersect(
	first ast.BlockID,
	second ast.BlockID,
) ast.BlockID {
	for first != second {
		for tree.postnum[first] < tree.postnum[second] {
			first = tree.idom[first]
		}
		for tree.postnum[second] < tree.postnum[first] {
			second = tree.idom[second]
		}
	}
	return first
}

func (tree *DominatorTree) number() {
	type entry struct {
		block ast.BlockID
		child int
	}

	counter := 0
	stack := []entry{{block: 0}}
	tree.enter[0] = counter
	counter++
	for len(stack) > 0 {
		tos := len(stack) - 1
		top := stack[tos]
		children := tree.children[top.block]
		if top.child < len(children) {
			stack[tos].child++
			child := children[top.child]
			tree.depth[child] = tree.depth[top.block] + 1
			tree.enter[child] = counter
			counter++
			stack = append(stack, entry{block: child})
			continue
		}

		tree.exit[top.block] = counter
		counter++
		stack = stack[:tos]
	}
}

func (tree *DominatorTree) Graph() *ast.Graph {
	return tree.graph
}

func (tree *DominatorTree) IsReachable(block ast.BlockID) bool {
	return tree.postnum[block] >= 0
}

func (tree *DominatorTree) Idom(block ast.BlockID) ast.BlockID {
	return tree.idom[block]
}

func (tree *DominatorTree) Depth(block ast.BlockID) int {
	return tree.depth[block]
}

func (tree *DominatorTree) Children(block ast.BlockID) []ast.BlockID {
	return tree.children[block]
}

// Returns true if every path from the entry to second passes through first.
// A block dominates itself.
func (tree *DominatorTree) Dominates(
	first ast.BlockID,
	second ast.BlockID,
) bool {
	if !tree.IsReachable(first) || !tree.IsReachable(second) {
		return false
	}

	return tree.enter[first] <= tree.enter[second] &&
		tree.exit[second] <= tree.exit[first]
}

// Returns the deeper of the two blocks if they are on the same dominator
// tree path, or NoBlock otherwise.
func (tree *DominatorTree) Deeper(
	first ast.BlockID,
	second ast.BlockID,
) ast.BlockID {
	if tree.Dominates(first, second) {
		return second
	} else if tree.Dominates(second, first) {
		return first
	}
	return ast.NoBlock
}

// Lowest common ancestor in the dominator tree.
func (tree *DominatorTree) LCA(first ast.BlockID, second ast.BlockID) ast.BlockID {
	if first == ast.NoBlock {
		return second
	} else if second == ast.NoBlock {
		return first
	}
	return tree.lca.find(first, second)
}

// Returns the dominator tree path from descendant up to ancestor (both
// inclusive), ordered from the deepest block to the shallowest block.
// Returns nil if ancestor does not dominate descendant.
func (tree *DominatorTree) Path(
	descendant ast.BlockID,
	ancestor ast.BlockID,
) []ast.BlockID {
	if !tree.Dominates(ancestor, descendant) {
		return nil
	}

	path := []ast.BlockID{descendant}
	for current := descendant; current != ancestor; {
		current = tree.idom[current]
		path = append(path, current)
	}
	return path
}

// lcaRange computes lowest common ancestor queries in O(n lg n) precomputed
// space and O(1) time per query, using range minimum queries over an Euler
// tour of the dominator tree.
type lcaRange struct {
	tree *DominatorTree

	// An index in the Euler tour where the block appears.
	pos []int

	// rangeMin[k][i] contains the minimum depth block in the Euler tour from
	// positions i to i+1<<k-1, inclusive.
	rangeMin [][]ast.BlockID
}

func newLCARange(tree *DominatorTree) *lcaRange {
	numBlocks := tree.graph.NumBlocks()
	pos := make([]int, numBlocks)

	type queueEntry struct {
		block ast.BlockID
		child int // number of children already visited
	}

	tour := make([]ast.BlockID, 0, numBlocks*2)
	queue := []queueEntry{{block: 0}}
	for len(queue) > 0 {
		n := len(queue) - 1
		top := queue[n]
		queue = queue[:n]

		pos[top.block] = len(tour)
		tour = append(tour, top.block)

		children := tree.children[top.block]
		if top.child < len(children) {
			queue = append(
				queue,
				queueEntry{block: top.block, child: top.child + 1},
				queueEntry{block: children[top.child]})
		}
	}

	rangeMin := [][]ast.BlockID{tour}
	for logS, s := 1, 2; s < len(tour); logS, s = logS+1, s*2 {
		r := make([]ast.BlockID, len(tour)-s+1)
		for i := 0; i < len(tour)-s+1; i++ {
			block := rangeMin[logS-1][i]
			block2 := rangeMin[logS-1][i+s/2]
			if tree.depth[block2] < tree.depth[block] {
				block = block2
			}
			r[i] = block
		}
		rangeMin = append(rangeMin, r)
	}

	return &lcaRange{
		tree:     tree,
		pos:      pos,
		rangeMin: rangeMin,
	}
}

func (lca *lcaRange) find(first ast.BlockID, second ast.BlockID) ast.BlockID {
	if first == second {
		return first
	}

	p1 := lca.pos[first]
	p2 := lca.pos[second]
	if p1 > p2 {
		p1, p2 = p2, p1
	}

	logS := bits.Len(uint(p2-p1)) - 1
	block1 := lca.rangeMin[logS][p1]
	block2 := lca.rangeMin[logS][p2-1<<logS+1]
	if lca.tree.depth[block1] < lca.tree.depth[block2] {
		return block1
	}
	return block2
}
