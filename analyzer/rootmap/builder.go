package rootmap

import (
	"slices"

	"github.com/pattyshack/gt/parseutil"

	"github.com/pattyshack/starling/analyzer/allocator"
	"github.com/pattyshack/starling/analyzer/scheduler"
	"github.com/pattyshack/starling/analyzer/util"
	"github.com/pattyshack/starling/ast"
)

// Builds a root map for every safepoint of a fully scheduled graph.  Root
// maps contain the live Reference / NarrowReference values, plus the
// dataflow mandated reference temps (reported with their temp type).  All
// other temps are invisible to the collector.  Non-mandated reference temps
// are only tolerated as scheduling artifacts enclosing the safepoint (they
// are excluded); any other live reference temp fails the build.
type Builder struct {
	*parseutil.Emitter

	allocator *allocator.Allocator
	tracker   *scheduler.TempTracker

	// Ordered by (block, position).
	RootMaps []*RootMap
}

var _ util.Pass[*ast.Graph] = &Builder{}

// The allocator must have processed the graph.
func NewBuilder(
	emitter *parseutil.Emitter,
	allocator *allocator.Allocator,
	tracker *scheduler.TempTracker,
) *Builder {
	return &Builder{
		Emitter:   emitter,
		allocator: allocator,
		tracker:   tracker,
	}
}

func (builder *Builder) Process(graph *ast.Graph) {
	builder.RootMaps = nil
	for idx := range graph.Blocks {
		block := graph.Block(ast.BlockID(idx))
		for _, id := range block.Scheduled {
			inst := graph.Instruction(id)
			if !inst.IsSafepoint() {
				continue
			}

			rootMap, ok := builder.build(graph, inst)
			if !ok {
				builder.RootMaps = nil
				return
			}
			builder.RootMaps = append(builder.RootMaps, rootMap)
		}
	}
}

func (builder *Builder) build(
	graph *ast.Graph,
	safepoint *ast.Instruction,
) (*RootMap, bool) {
	rootMap := &RootMap{
		Safepoint: safepoint.ID,
		Block:     safepoint.Block,
		Position:  safepoint.Position,
	}

	for _, value := range builder.allocator.SafepointLiveness[safepoint.ID] {
		output := graph.Output(value)

		rootType := output.Kind
		switch output.Kind {
		case ast.Value:
			continue
		case ast.Reference, ast.NarrowReference:
		case ast.Temp:
			switch {
			case builder.tracker.IsMandated(value):
				rootType = output.TempType
			case builder.tracker.IsExempt(value):
				rootMap.Excluded = append(
					rootMap.Excluded,
					Exclusion{Value: value, Reason: NonReferenceTemp})
				continue
			case builder.encloses(value, safepoint.ID):
				rootMap.Excluded = append(
					rootMap.Excluded,
					Exclusion{Value: value, Reason: EnclosesSafepoint})
				continue
			default:
				util.EmitRootAccuracyViolation(
					builder.Emitter,
					safepoint.Loc(),
					"temp %s is live across safepoint %s but is not dataflow "+
						"mandated",
					value,
					safepoint)
				return nil, false
			}
		default:
			panic("should never happen")
		}

		location := builder.allocator.Location(value)
		if location == nil || !location.IsSafepointSlot {
			panic("should never happen")
		}

		rootMap.Entries = append(
			rootMap.Entries,
			Entry{
				Value:    value,
				Type:     rootType,
				Location: location,
			})
	}

	seen := map[ast.ValueRef]struct{}{}
	for _, exclusion := range rootMap.Excluded {
		seen[exclusion.Value] = struct{}{}
	}

	for _, src := range safepoint.Inputs {
		_, ok := seen[src]
		if ok {
			continue
		}
		seen[src] = struct{}{}

		output := graph.Output(src)
		if output.Kind != ast.Temp ||
			!output.TempType.IsReference() ||
			builder.tracker.IsMandated(src) {
			continue
		}

		rootMap.Excluded = append(
			rootMap.Excluded,
			Exclusion{Value: src, Reason: ConsumedBySafepoint})
	}

	slices.SortFunc(
		rootMap.Excluded,
		func(first Exclusion, second Exclusion) int {
			return ast.CompareValueRefs(first.Value, second.Value)
		})
	return rootMap, true
}

// Scheduling artifacts: the temp's generator and last consumer surround the
// safepoint within a single block.
func (builder *Builder) encloses(
	temp ast.ValueRef,
	safepoint ast.InstructionID,
) bool {
	binding, ok := builder.tracker.Binding(temp)
	return ok && builder.tracker.Encloses(binding, safepoint)
}

// Returns the root map of the given safepoint, or nil.
func (builder *Builder) RootMap(safepoint ast.InstructionID) *RootMap {
	for _, rootMap := range builder.RootMaps {
		if rootMap.Safepoint == safepoint {
			return rootMap
		}
	}
	return nil
}
