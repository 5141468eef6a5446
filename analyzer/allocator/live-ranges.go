package allocator

import (
	"sort"

	"github.com/pattyshack/starling/analyzer/util"
	"github.com/pattyshack/starling/ast"
)

// The convex hull of all program points (in the linearized reverse
// postorder) where a value is defined, used, or live.
type LiveRange struct {
	Value ast.ValueRef

	Start int
	End   int
}

func (liveRange *LiveRange) extend(point int) {
	if point < liveRange.Start {
		liveRange.Start = point
	}
	if point > liveRange.End {
		liveRange.End = point
	}
}

// Returns the values' live ranges, sorted by (start, value).  Dead values'
// ranges cover only their definition point.
func ComputeLiveRanges(
	graph *ast.Graph,
	liveness *LivenessAnalyzer,
) []*LiveRange {
	order := util.ReversePostorder(graph)

	blockStart := make([]int, graph.NumBlocks())
	point := 0
	for _, id := range order {
		blockStart[id] = point
		point += len(graph.Block(id).Scheduled)
	}

	ranges := map[ast.ValueRef]*LiveRange{}
	get := func(value ast.ValueRef) *LiveRange {
		liveRange, ok := ranges[value]
		if !ok {
			def := graph.Instruction(value.Instruction)
			defPoint := blockStart[def.Block] + def.Position
			liveRange = &LiveRange{
				Value: value,
				Start: defPoint,
				End:   defPoint,
			}
			ranges[value] = liveRange
		}
		return liveRange
	}

	for _, id := range order {
		block := graph.Block(id)

		for value := range liveness.LiveIn[id] {
			get(value).extend(blockStart[id])
		}

		liveness.WalkBackward(
			block,
			func(inst *ast.Instruction, liveAfter map[ast.ValueRef]struct{}) {
				instPoint := blockStart[id] + inst.Position
				for value := range liveAfter {
					get(value).extend(instPoint)
				}

				for _, dest := range inst.OutputRefs() {
					get(dest).extend(instPoint)
				}

				if inst.IsPhi() {
					return
				}

				for _, src := range inst.Inputs {
					get(src).extend(instPoint)
				}
			})

		// Values live out of the block (including phi inputs for successors)
		// are live through the end of the block.
		if len(block.Scheduled) > 0 {
			end := blockStart[id] + len(block.Scheduled) - 1
			for value := range liveness.LiveOut[id] {
				get(value).extend(end)
			}
		}
	}

	result := make([]*LiveRange, 0, len(ranges))
	for _, liveRange := range ranges {
		result = append(result, liveRange)
	}

	sort.Slice(
		result,
		func(i int, j int) bool {
			if result[i].Start != result[j].Start {
				return result[i].Start < result[j].Start
			}
			return ast.CompareValueRefs(result[i].Value, result[j].Value) < 0
		})

	return result
}
