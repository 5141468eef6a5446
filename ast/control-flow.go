package ast

// Returns true if the block has no successors (i.e., it ends with a return).
func (block *Block) IsTerminal() bool {
	return len(block.Succs) == 0
}

// Returns the block's control (terminating) instruction, as emitted by
// instruction selection.  Returns nil if the block has no control
// instruction.
func (graph *Graph) ControlInstruction(id BlockID) *Instruction {
	var control *Instruction
	for _, instId := range graph.Blocks[id].Members {
		inst := &graph.Instructions[instId]
		if inst.Opcode.IsValid() && inst.IsControl() {
			control = inst
		}
	}
	return control
}

// Returns the safepoints homed in the block, in emission order.
func (graph *Graph) Safepoints(id BlockID) []InstructionID {
	var result []InstructionID
	for _, instId := range graph.Blocks[id].Members {
		inst := &graph.Instructions[instId]
		if inst.Opcode.IsValid() && inst.IsSafepoint() {
			result = append(result, instId)
		}
	}
	return result
}

func (graph *Graph) HasSafepoint(id BlockID) bool {
	return len(graph.Safepoints(id)) > 0
}

// Returns true if any instruction homed in the block has side effects.
func (graph *Graph) HasSideEffects(id BlockID) bool {
	for _, instId := range graph.Blocks[id].Members {
		inst := &graph.Instructions[instId]
		if inst.Opcode.IsValid() && inst.Opcode.HasSideEffects() {
			return true
		}
	}
	return false
}
