package ast

// Returns the phi's instructions in the block, in emission order.
func (graph *Graph) Phis(id BlockID) []InstructionID {
	var result []InstructionID
	for _, instId := range graph.Blocks[id].Members {
		if graph.Instructions[instId].IsPhi() {
			result = append(result, instId)
		}
	}
	return result
}

// A phi's input is used at the end of the corresponding predecessor block,
// not in the phi's own block.
func (graph *Graph) PhiInputBlock(phi *Instruction, inputIdx int) BlockID {
	if !phi.IsPhi() {
		panic("should never happen")
	}

	block := phi.Home
	if phi.Block != NoBlock {
		block = phi.Block
	}
	return graph.Blocks[block].Preds[inputIdx]
}

// The block where the use is evaluated.  This is the user's block, except for
// phi uses, which are evaluated at the end of the matching predecessor.
func (graph *Graph) UseBlock(use Use) BlockID {
	user := &graph.Instructions[use.User]
	if user.IsPhi() {
		return graph.PhiInputBlock(user, use.InputIndex)
	}
	return user.Block
}
