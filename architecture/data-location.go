package architecture

import (
	"fmt"
)

// Where a value lives for its entire lifetime.  For simplicity, a value is
// either entirely in one register or entirely in one fixed stack slot.
type DataLocation struct {
	Name string

	Register *Register // nil for stack locations

	OnFixedStack bool

	// Stack slots assigned to values that are live across some safepoint.
	// These slots are what root maps refer to.
	IsSafepointSlot bool

	AlignedSize int // register aligned size

	// All offsets are relative to the top of the (preallocated) stack.
	//
	// NOTE: We'll determine the stack entry address based on stack pointer
	// rather than base pointer:
	//
	// entry address = stack pointer address + offset
	Offset int
}

func NewRegisterDataLocation(
	name string,
	byteSize int,
	register *Register,
) *DataLocation {
	if NumRegisters(byteSize) != 1 || register == nil {
		panic("should never happen")
	}

	return &DataLocation{
		Name:        name,
		Register:    register,
		AlignedSize: AlignedSize(byteSize),
	}
}

func NewFixedStackDataLocation(
	name string,
	byteSize int,
) *DataLocation {
	return &DataLocation{
		Name:         name,
		OnFixedStack: true,
		AlignedSize:  AlignedSize(byteSize),
	}
}

func (loc *DataLocation) Copy() *DataLocation {
	copied := *loc
	return &copied
}

// Returns a short form suitable for dumps, e.g., "rax" or "sp+16".
func (loc *DataLocation) String() string {
	if loc.Register != nil {
		return loc.Register.Name
	}
	return fmt.Sprintf("sp+%d", loc.Offset)
}
