package ast

import (
	"fmt"
	"strings"

	"github.com/pattyshack/gt/parseutil"
)

// All nodes of a compilation are arena allocated inside their Graph and are
// addressed by index.  Ids are only meaningful within the owning graph.
type InstructionID int32

type BlockID int32

const (
	NoInstruction = InstructionID(-1)
	NoBlock       = BlockID(-1)

	// Position of an instruction that has not been ordered by local code motion.
	Unordered = -1
)

type OutputKind string

const (
	// Non-reference data (integer, float, flags, etc.)
	Value = OutputKind("value")

	// Full width garbage collector root.
	Reference = OutputKind("ref")

	// Compressed garbage collector root.  Semantically a root, but uses a
	// smaller encoding.
	NarrowReference = OutputKind("narrow")

	// Synthetic value that only holds an intermediate computation for its
	// consumers.  Temp outputs carry a separate numeric type tag (TempType).
	Temp = OutputKind("temp")
)

func (kind OutputKind) IsReference() bool {
	return kind == Reference || kind == NarrowReference
}

type Output struct {
	Kind OutputKind

	// Only used by Temp outputs.  One of Value, Reference or NarrowReference.
	TempType OutputKind

	// Only used by Temp outputs.  Set by instruction selection when the temp
	// denotes an object reference that is required past a safepoint (i.e.,
	// the temp is not a scheduling artifact).
	DataflowMandated bool
}

func ValueOutput() Output {
	return Output{Kind: Value}
}

func ReferenceOutput() Output {
	return Output{Kind: Reference}
}

func NarrowReferenceOutput() Output {
	return Output{Kind: NarrowReference}
}

func TempOutput(tempType OutputKind) Output {
	return Output{Kind: Temp, TempType: tempType}
}

func MandatedTempOutput(tempType OutputKind) Output {
	return Output{Kind: Temp, TempType: tempType, DataflowMandated: true}
}

// The type the collector would see if the output occupied a root location.
func (output Output) RootType() OutputKind {
	if output.Kind == Temp {
		return output.TempType
	}
	return output.Kind
}

func (output Output) String() string {
	if output.Kind != Temp {
		return string(output.Kind)
	}

	if output.DataflowMandated {
		return fmt.Sprintf("temp/%s!", output.TempType)
	}
	return fmt.Sprintf("temp/%s", output.TempType)
}

// Parses the String() form of an output, e.g., "ref", "temp/narrow" or
// "temp/ref!" (a dataflow mandated temp).
func ParseOutput(str string) (Output, error) {
	switch OutputKind(str) {
	case Value, Reference, NarrowReference:
		return Output{Kind: OutputKind(str)}, nil
	}

	tempType, ok := strings.CutPrefix(str, string(Temp)+"/")
	if !ok {
		return Output{}, fmt.Errorf("invalid output (%s)", str)
	}

	tempType, mandated := strings.CutSuffix(tempType, "!")
	switch OutputKind(tempType) {
	case Value, Reference, NarrowReference:
	default:
		return Output{}, fmt.Errorf("invalid temp type (%s)", str)
	}

	return Output{
		Kind:             Temp,
		TempType:         OutputKind(tempType),
		DataflowMandated: mandated,
	}, nil
}

// A reference to one of an instruction's outputs.
type ValueRef struct {
	Instruction InstructionID
	Index       int
}

func Out(id InstructionID) ValueRef {
	return ValueRef{Instruction: id}
}

func (ref ValueRef) String() string {
	if ref.Index == 0 {
		return fmt.Sprintf("v%d", ref.Instruction)
	}
	return fmt.Sprintf("v%d.%d", ref.Instruction, ref.Index)
}

// Deterministic ordering used whenever value sets are linearized.
func CompareValueRefs(first ValueRef, second ValueRef) int {
	if first.Instruction != second.Instruction {
		if first.Instruction < second.Instruction {
			return -1
		}
		return 1
	}

	if first.Index < second.Index {
		return -1
	} else if first.Index > second.Index {
		return 1
	}
	return 0
}

type Instruction struct {
	parseutil.StartEndPos

	ID     InstructionID
	Name   string // optional, only used for debugging
	Opcode Opcode

	// Ordered data dependencies.  For phis, the i-th input corresponds to the
	// i-th predecessor of the phi's block.
	Inputs  []ValueRef
	Outputs []Output

	// Pinned instructions are never moved out of their home block.
	Pinned bool

	// The block instruction selection emitted the instruction into.
	Home BlockID

	// Internal (set during global code motion)
	Block BlockID

	// Internal (set during local code motion)
	Position int
}

func (inst *Instruction) IsSafepoint() bool {
	return inst.Opcode.IsSafepoint()
}

func (inst *Instruction) IsControl() bool {
	return inst.Opcode.IsControl()
}

func (inst *Instruction) IsPhi() bool {
	return inst.Opcode == Phi
}

func (inst *Instruction) OutputRefs() []ValueRef {
	refs := make([]ValueRef, 0, len(inst.Outputs))
	for idx := range inst.Outputs {
		refs = append(refs, ValueRef{Instruction: inst.ID, Index: idx})
	}
	return refs
}

func (inst *Instruction) HasTempOutput() bool {
	for _, output := range inst.Outputs {
		if output.Kind == Temp {
			return true
		}
	}
	return false
}

func (inst *Instruction) String() string {
	name := inst.Name
	if name == "" {
		name = fmt.Sprintf("v%d", inst.ID)
	} else {
		name = fmt.Sprintf("v%d(%s)", inst.ID, inst.Name)
	}
	return name
}
