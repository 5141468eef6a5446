package allocator

import (
	"reflect"
	"slices"

	"github.com/pattyshack/starling/analyzer/util"
	"github.com/pattyshack/starling/ast"
)

// Note:
// 1. Liveness is computed on the final schedule (after local code motion)
// using classic back flow propagation.
//
// 2. PHI:
//  a. Liveness.  Let
//        Xi = PHI(Xj, ...)
//    where the subscript indicate which block variable X is is defined in.
//    We'll use the convention that Xi is live in block i, and Xj is live out
//    of block j.
//  b. The phi's own inputs are not live in block i (unless used elsewhere).

// All distances are in number of instructions relative to the beginning of
// the current block.  Current block's phi instructions counts as zero; the
// first non-phi instruction counts as one.
type LiveInfo struct {
	// Distance to the nearest next use along any path.
	Distance int
}

func (info *LiveInfo) Copy() *LiveInfo {
	return &LiveInfo{
		Distance: info.Distance,
	}
}

func (liveOutInfo *LiveInfo) MergeFromChildLiveInInfo(
	parentBlockLength int,
	childLiveInInfo *LiveInfo,
) bool {
	dist := parentBlockLength + childLiveInInfo.Distance
	if liveOutInfo.Distance <= dist {
		return false
	}
	liveOutInfo.Distance = dist
	return true
}

type LiveSet map[ast.ValueRef]*LiveInfo

func (liveIn LiveSet) InstructionUses(useDist int, value ast.ValueRef) {
	_, ok := liveIn[value]
	if !ok {
		liveIn[value] = &LiveInfo{
			Distance: useDist,
		}
	}
}

func (liveIn LiveSet) MergeFromLiveOut(
	value ast.ValueRef,
	liveOutInfo *LiveInfo,
) {
	_, ok := liveIn[value]
	if !ok {
		liveIn[value] = liveOutInfo.Copy()
	}
}

func (liveOut LiveSet) MergeFromChildLiveIn(
	value ast.ValueRef,
	parentBlockLength int,
	childLiveInInfo *LiveInfo,
) bool {
	info, ok := liveOut[value]
	if !ok {
		info = childLiveInInfo.Copy()
		info.Distance += parentBlockLength
		liveOut[value] = info
		return true
	}
	return info.MergeFromChildLiveInInfo(parentBlockLength, childLiveInInfo)
}

// Returns the set's values in canonical order.
func (set LiveSet) Values() []ast.ValueRef {
	values := make([]ast.ValueRef, 0, len(set))
	for value := range set {
		values = append(values, value)
	}
	slices.SortFunc(values, ast.CompareValueRefs)
	return values
}

type LivenessAnalyzer struct {
	graph *ast.Graph

	// Indexed by block id.  Updated by children block.
	LiveOut []LiveSet

	// Indexed by block id.  Updated by current block.
	LiveIn []LiveSet
}

var _ util.Pass[*ast.Graph] = &LivenessAnalyzer{}

func NewLivenessAnalyzer() *LivenessAnalyzer {
	return &LivenessAnalyzer{}
}

func (analyzer *LivenessAnalyzer) Process(graph *ast.Graph) {
	analyzer.graph = graph
	analyzer.LiveOut = make([]LiveSet, graph.NumBlocks())
	analyzer.LiveIn = make([]LiveSet, graph.NumBlocks())

	for idx := range graph.Blocks {
		analyzer.LiveOut[idx] = LiveSet{}
	}

	// Seed with every block (in postorder) rather than only the terminal
	// blocks, since infinite loops have no path to a terminal block.
	workSet := util.NewDataflowWorkSet()
	for _, block := range util.Postorder(graph) {
		workSet.Push(block)
	}

	for !workSet.IsEmpty() {
		block := graph.Block(workSet.Pop())
		if analyzer.updateLiveIn(block) {
			for _, parent := range block.Preds {
				if analyzer.updateParentLiveOut(graph.Block(parent), block) {
					workSet.Push(parent)
				}
			}
		}
	}
}

func (analyzer *LivenessAnalyzer) isDefinedIn(
	value ast.ValueRef,
	block *ast.Block,
) bool {
	return analyzer.graph.Instruction(value.Instruction).Block == block.ID
}

// Note: no need to perform per instruction back propagation since we have
// ssa use/def and block placement information.
func (analyzer *LivenessAnalyzer) updateLiveIn(block *ast.Block) bool {
	liveIn := LiveSet{}

	for idx, id := range block.Scheduled {
		inst := analyzer.graph.Instruction(id)
		if inst.IsPhi() {
			for _, dest := range inst.OutputRefs() {
				liveIn.InstructionUses(0, dest) // See note 2a.
			}
			continue
		}

		dist := idx + 1
		for _, src := range inst.Inputs {
			if analyzer.isDefinedIn(src, block) {
				continue
			}

			liveIn.InstructionUses(dist, src)
		}
	}

	for value, info := range analyzer.LiveOut[block.ID] {
		if analyzer.isDefinedIn(value, block) {
			continue
		}
		liveIn.MergeFromLiveOut(value, info)
	}

	if !reflect.DeepEqual(liveIn, analyzer.LiveIn[block.ID]) {
		analyzer.LiveIn[block.ID] = liveIn
		return true
	}
	return false
}

func (analyzer *LivenessAnalyzer) updateParentLiveOut(
	parent *ast.Block,
	child *ast.Block,
) bool {
	childLiveIn := analyzer.LiveIn[child.ID]
	parentLiveOut := analyzer.LiveOut[parent.ID]

	modified := false
	parentBlockLength := len(parent.Scheduled)
	for value, childInfo := range childLiveIn {
		def := analyzer.graph.Instruction(value.Instruction)
		if !def.IsPhi() || def.Block != child.ID {
			if parentLiveOut.MergeFromChildLiveIn(
				value,
				parentBlockLength,
				childInfo) {
				modified = true
			}
			continue
		}

		// Corresponding parent block definition.  See note 2a.  The parent may
		// appear multiple times in the child's predecessor list.
		for predIdx, pred := range child.Preds {
			if pred != parent.ID {
				continue
			}

			if parentLiveOut.MergeFromChildLiveIn(
				def.Inputs[predIdx],
				parentBlockLength,
				childInfo) {
				modified = true
			}
		}
	}

	return modified
}

// Calls visit on each instruction of the block, in reverse scheduled order,
// with the set of values live immediately after the instruction.  The set is
// reused between calls and must not be retained by visit.
func (analyzer *LivenessAnalyzer) WalkBackward(
	block *ast.Block,
	visit func(inst *ast.Instruction, liveAfter map[ast.ValueRef]struct{}),
) {
	live := make(map[ast.ValueRef]struct{}, len(analyzer.LiveOut[block.ID]))
	for value := range analyzer.LiveOut[block.ID] {
		live[value] = struct{}{}
	}

	for idx := len(block.Scheduled) - 1; idx >= 0; idx-- {
		inst := analyzer.graph.Instruction(block.Scheduled[idx])
		visit(inst, live)

		for _, dest := range inst.OutputRefs() {
			delete(live, dest)
		}

		if inst.IsPhi() {
			continue
		}

		for _, src := range inst.Inputs {
			live[src] = struct{}{}
		}
	}
}

// Returns, for every safepoint, the values live across the safepoint (i.e.,
// live immediately after the safepoint, excluding the safepoint's own
// outputs), in canonical order.
func (analyzer *LivenessAnalyzer) SafepointLiveness() map[ast.InstructionID][]ast.ValueRef {
	result := map[ast.InstructionID][]ast.ValueRef{}
	for idx := range analyzer.graph.Blocks {
		analyzer.WalkBackward(
			analyzer.graph.Block(ast.BlockID(idx)),
			func(inst *ast.Instruction, liveAfter map[ast.ValueRef]struct{}) {
				if !inst.IsSafepoint() {
					return
				}

				values := []ast.ValueRef{}
				for value := range liveAfter {
					if value.Instruction != inst.ID {
						values = append(values, value)
					}
				}
				slices.SortFunc(values, ast.CompareValueRefs)
				result[inst.ID] = values
			})
	}
	return result
}
