package ast

import (
	"fmt"
	"slices"

	"github.com/pattyshack/gt/parseutil"
)

// The instruction graph of a single method compilation.  The graph owns all
// blocks and instructions (arena allocated, addressed by index), and is
// discarded as a unit once the compilation finishes.
//
// NOTE: Block / Instruction pointers returned by the graph are invalidated
// by NewBlock / Append.  Scheduling passes never add nodes.
type Graph struct {
	parseutil.StartEndPos

	Name string

	// Blocks[0] is the entry block.
	Blocks       []Block
	Instructions []Instruction

	// Internal (lazily computed def-use index)
	users [][]Use
}

// A single use of a value.
type Use struct {
	User       InstructionID
	InputIndex int
}

// A basic block.
type Block struct {
	parseutil.StartEndPos

	ID    BlockID
	Label string

	Preds []BlockID
	Succs []BlockID

	// Relative execution frequency estimate.  This is a heuristic and may be
	// arbitrarily inaccurate; it never affects correctness.
	Frequency float64

	// Instructions emitted into this block by instruction selection, in
	// emission order.
	Members []InstructionID

	// Internal (populated by control flow analysis)
	Idom      BlockID // NoBlock for the entry block
	DomDepth  int
	LoopDepth int

	// Internal (populated by global / local code motion).  Final linear order
	// once local code motion finishes.
	Scheduled []InstructionID
}

func NewGraph(name string) *Graph {
	return &Graph{
		Name: name,
	}
}

func (graph *Graph) Entry() *Block {
	return &graph.Blocks[0]
}

func (graph *Graph) Block(id BlockID) *Block {
	return &graph.Blocks[id]
}

func (graph *Graph) Instruction(id InstructionID) *Instruction {
	return &graph.Instructions[id]
}

func (graph *Graph) Output(ref ValueRef) Output {
	return graph.Instructions[ref.Instruction].Outputs[ref.Index]
}

func (graph *Graph) NumBlocks() int {
	return len(graph.Blocks)
}

func (graph *Graph) NumInstructions() int {
	return len(graph.Instructions)
}

func (graph *Graph) NewBlock(label string, frequency float64) BlockID {
	id := BlockID(len(graph.Blocks))
	if label == "" {
		label = fmt.Sprintf("b%d", id)
	}

	graph.Blocks = append(
		graph.Blocks,
		Block{
			ID:        id,
			Label:     label,
			Frequency: frequency,
			Idom:      NoBlock,
		})
	return id
}

// Successor order matters for branches (see Branch), and predecessor order
// matters for phis.
func (graph *Graph) AddEdge(from BlockID, to BlockID) {
	graph.Blocks[from].Succs = append(graph.Blocks[from].Succs, to)
	graph.Blocks[to].Preds = append(graph.Blocks[to].Preds, from)
}

// Append an instruction to the block's member list.  The instruction is
// pinned if its opcode is pinned by default.
func (graph *Graph) Append(
	block BlockID,
	op Opcode,
	inputs []ValueRef,
	outputs ...Output,
) InstructionID {
	id := InstructionID(len(graph.Instructions))

	inputsCopy := make([]ValueRef, len(inputs))
	copy(inputsCopy, inputs)

	graph.Instructions = append(
		graph.Instructions,
		Instruction{
			ID:       id,
			Opcode:   op,
			Inputs:   inputsCopy,
			Outputs:  outputs,
			Pinned:   op.IsValid() && op.IsPinned(),
			Home:     block,
			Block:    NoBlock,
			Position: Unordered,
		})

	graph.Blocks[block].Members = append(graph.Blocks[block].Members, id)
	graph.users = nil
	return id
}

// Same as Append, but also names the instruction.
func (graph *Graph) AppendNamed(
	block BlockID,
	name string,
	op Opcode,
	inputs []ValueRef,
	outputs ...Output,
) InstructionID {
	id := graph.Append(block, op, inputs, outputs...)
	graph.Instructions[id].Name = name
	return id
}

// Replaces the instruction's inputs.  Used by loaders to resolve forward
// references (e.g., loop carried phi inputs).
func (graph *Graph) SetInputs(id InstructionID, inputs []ValueRef) {
	graph.Instructions[id].Inputs = append([]ValueRef(nil), inputs...)
	graph.users = nil
}

func (graph *Graph) Pin(id InstructionID) {
	graph.Instructions[id].Pinned = true
}

// Returns all uses of the instruction's outputs, ordered by user id.
func (graph *Graph) Users(id InstructionID) []Use {
	if graph.users == nil {
		graph.computeUsers()
	}
	return graph.users[id]
}

func (graph *Graph) computeUsers() {
	users := make([][]Use, len(graph.Instructions))
	for idx := range graph.Instructions {
		inst := &graph.Instructions[idx]
		for inputIdx, input := range inst.Inputs {
			if input.Instruction < 0 ||
				int(input.Instruction) >= len(graph.Instructions) {
				continue // reported by graph validation
			}

			users[input.Instruction] = append(
				users[input.Instruction],
				Use{
					User:       inst.ID,
					InputIndex: inputIdx,
				})
		}
	}
	graph.users = users
}

// Reset all scheduling state (block assignment, positions, dominance and
// loop information).
func (graph *Graph) ResetSchedule() {
	for idx := range graph.Instructions {
		graph.Instructions[idx].Block = NoBlock
		graph.Instructions[idx].Position = Unordered
	}

	for idx := range graph.Blocks {
		block := &graph.Blocks[idx]
		block.Idom = NoBlock
		block.DomDepth = 0
		block.LoopDepth = 0
		block.Scheduled = nil
	}
}

// Deep copies the graph, including scheduling state.
func (graph *Graph) Clone() *Graph {
	clone := &Graph{
		StartEndPos:  graph.StartEndPos,
		Name:         graph.Name,
		Blocks:       make([]Block, len(graph.Blocks)),
		Instructions: make([]Instruction, len(graph.Instructions)),
	}

	for idx, block := range graph.Blocks {
		block.Preds = slices.Clone(block.Preds)
		block.Succs = slices.Clone(block.Succs)
		block.Members = slices.Clone(block.Members)
		block.Scheduled = slices.Clone(block.Scheduled)
		clone.Blocks[idx] = block
	}

	for idx, inst := range graph.Instructions {
		inst.Inputs = slices.Clone(inst.Inputs)
		inst.Outputs = slices.Clone(inst.Outputs)
		clone.Instructions[idx] = inst
	}

	return clone
}
