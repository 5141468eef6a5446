package architecture

import (
	"github.com/pattyshack/starling/ast"
)

const (
	// Assumption: we only support 64 bit architecture.
	RegisterByteSize = 8
	AddressByteSize  = RegisterByteSize

	// Compressed references are 32 bit offsets into the heap.
	NarrowReferenceByteSize = 4
)

// Byte size of a value of the given kind.  Temps are sized by their type tag.
func ByteSize(output ast.Output) int {
	switch output.RootType() {
	case ast.Value:
		return RegisterByteSize
	case ast.Reference:
		return AddressByteSize
	case ast.NarrowReference:
		return NarrowReferenceByteSize
	default:
		panic("should never reach here")
	}
}

func NumRegisters(byteSize int) int {
	return (byteSize + RegisterByteSize - 1) / RegisterByteSize
}

// Register aligned size.
func AlignedSize(byteSize int) int {
	return NumRegisters(byteSize) * RegisterByteSize
}
