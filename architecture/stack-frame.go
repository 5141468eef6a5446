package architecture

import (
	"github.com/pattyshack/starling/ast"
)

const (
	ReturnAddress = "%return-address"
)

// Stack frame layout from top to bottom:
//
// |              | (low address)
// |--------------| <- stack pointer (offset 0)
// |safepoint 1   | values live across at least one safepoint, ordered by
// |--------------| value id
// |...           |
// |--------------|
// |safepoint n   |
// |--------------|
// |spill slot 1  | values that did not fit into registers
// |--------------|
// |...           |
// |--------------|
// |spill slot m  |
// |--------------|
// |padding       |
// |--------------|
// |ret address   |
// |--------------|
// |              | (high address)
//
// Safepoint slots are assigned before anything else so that a value's slot
// offset only depends on the set of values live across safepoints, not on
// the instruction order or on register pressure.
type StackFrame struct {
	// All slot name -> location
	Locations map[string]*DataLocation

	ReturnAddress *DataLocation

	// In allocation order.
	SafepointSlots []*DataLocation
	SpillSlots     []*DataLocation

	// Computed by FinalizeFrame()
	TotalFrameSize int             // This respects stack frame alignment
	Layout         []*DataLocation // return address, then allocation order
}

func NewStackFrame() *StackFrame {
	frame := &StackFrame{
		Locations: map[string]*DataLocation{},
	}
	frame.ReturnAddress = frame.add(ReturnAddress, AddressByteSize)
	return frame
}

func (frame *StackFrame) add(name string, byteSize int) *DataLocation {
	_, ok := frame.Locations[name]
	if ok {
		panic("duplicate data location: " + name)
	}
	if frame.Layout != nil {
		panic("cannot add slot after finalize")
	}

	loc := NewFixedStackDataLocation(name, byteSize)
	frame.Locations[name] = loc
	return loc
}

// Must be called before any AddSpillSlot call, in canonical value order.
func (frame *StackFrame) AddSafepointSlot(
	value ast.ValueRef,
	output ast.Output,
) *DataLocation {
	if len(frame.SpillSlots) > 0 {
		panic("safepoint slots must be allocated before spill slots")
	}

	loc := frame.add(value.String(), ByteSize(output))
	loc.IsSafepointSlot = true
	frame.SafepointSlots = append(frame.SafepointSlots, loc)
	return loc
}

func (frame *StackFrame) AddSpillSlot(
	value ast.ValueRef,
	output ast.Output,
) *DataLocation {
	loc := frame.add(value.String(), ByteSize(output))
	frame.SpillSlots = append(frame.SpillSlots, loc)
	return loc
}

func (frame *StackFrame) FinalizeFrame(stackFrameAlignment int) {
	fixedSize := 0
	for _, loc := range frame.SafepointSlots {
		fixedSize += loc.AlignedSize
	}
	for _, loc := range frame.SpillSlots {
		fixedSize += loc.AlignedSize
	}

	roundUp := (fixedSize + stackFrameAlignment - 1) / stackFrameAlignment
	frame.TotalFrameSize = roundUp * stackFrameAlignment

	layout := make(
		[]*DataLocation,
		0,
		len(frame.SafepointSlots)+len(frame.SpillSlots)+1)
	layout = append(layout, frame.ReturnAddress)
	layout = append(layout, frame.SafepointSlots...)
	layout = append(layout, frame.SpillSlots...)
	frame.Layout = layout

	frame.ReturnAddress.Offset = frame.TotalFrameSize

	currentOffset := 0
	for _, loc := range frame.SafepointSlots {
		loc.Offset = currentOffset
		currentOffset += loc.AlignedSize
	}

	for _, loc := range frame.SpillSlots {
		loc.Offset = currentOffset
		currentOffset += loc.AlignedSize
	}
}
