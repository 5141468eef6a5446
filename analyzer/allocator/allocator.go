package allocator

import (
	"github.com/pattyshack/starling/analyzer/util"
	"github.com/pattyshack/starling/architecture"
	"github.com/pattyshack/starling/ast"
	"github.com/pattyshack/starling/platform"
)

// A linear scan style location assigner, run on the final schedule.
//
// Every value that is live across at least one safepoint gets a dedicated
// fixed stack slot for its whole lifetime.  Safepoint slots are allocated in
// canonical value order, so a safepoint's root locations only depend on
// which values are live across it.  The remaining values share the
// platform's allocatable registers; when registers run out, the value whose
// live range ends furthest away is spilled to a stack slot.
//
// Assumptions:
// - all values are at most register sized.
// - moves / spill code are not materialized; each value has one location
//   for its whole lifetime.
type Allocator struct {
	platform.Platform

	Liveness *LivenessAnalyzer

	// Values live across each safepoint, in canonical order.
	SafepointLiveness map[ast.InstructionID][]ast.ValueRef

	LiveRanges []*LiveRange

	Locations map[ast.ValueRef]*architecture.DataLocation

	Frame *architecture.StackFrame
}

var _ util.Pass[*ast.Graph] = &Allocator{}

func NewAllocator(targetPlatform platform.Platform) *Allocator {
	return &Allocator{
		Platform:  targetPlatform,
		Liveness:  NewLivenessAnalyzer(),
		Locations: map[ast.ValueRef]*architecture.DataLocation{},
		Frame:     architecture.NewStackFrame(),
	}
}

func (allocator *Allocator) Process(graph *ast.Graph) {
	allocator.Liveness.Process(graph)
	allocator.SafepointLiveness = allocator.Liveness.SafepointLiveness()
	allocator.LiveRanges = ComputeLiveRanges(graph, allocator.Liveness)

	allocator.assignSafepointSlots(graph)
	allocator.assignRegisters(graph)

	allocator.Frame.FinalizeFrame(allocator.StackFrameAlignment())
}

func (allocator *Allocator) assignSafepointSlots(graph *ast.Graph) {
	crossing := LiveSet{}
	for _, values := range allocator.SafepointLiveness {
		for _, value := range values {
			crossing[value] = &LiveInfo{}
		}
	}

	for _, value := range crossing.Values() {
		allocator.Locations[value] = allocator.Frame.AddSafepointSlot(
			value,
			graph.Output(value))
	}
}

func (allocator *Allocator) assignRegisters(graph *ast.Graph) {
	selector := NewRegisterSelector(
		allocator.ArchitectureRegisters().Allocatable)

	for _, liveRange := range allocator.LiveRanges {
		_, ok := allocator.Locations[liveRange.Value]
		if ok { // safepoint slot
			continue
		}

		selector.ExpireBefore(liveRange.Start)

		register, evicted := selector.Select(liveRange)
		if evicted != nil {
			allocator.Locations[evicted.Value] = allocator.Frame.AddSpillSlot(
				evicted.Value,
				graph.Output(evicted.Value))
		}

		output := graph.Output(liveRange.Value)
		if register == nil {
			allocator.Locations[liveRange.Value] = allocator.Frame.AddSpillSlot(
				liveRange.Value,
				output)
		} else {
			allocator.Locations[liveRange.Value] = architecture.NewRegisterDataLocation(
				liveRange.Value.String(),
				architecture.ByteSize(output),
				register)
		}
	}
}

func (allocator *Allocator) Location(
	value ast.ValueRef,
) *architecture.DataLocation {
	return allocator.Locations[value]
}
