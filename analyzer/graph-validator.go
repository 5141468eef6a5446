package analyzer

import (
	"github.com/pattyshack/gt/parseutil"

	"github.com/pattyshack/starling/analyzer/util"
	"github.com/pattyshack/starling/ast"
	"github.com/pattyshack/starling/platform"
)

// Structural checks on a graph handed over by instruction selection.  Every
// violation is a malformed graph error.
type graphValidator struct {
	*parseutil.Emitter

	platform platform.Platform

	graph *ast.Graph
}

func ValidateGraph(
	emitter *parseutil.Emitter,
	targetPlatform platform.Platform,
) util.Pass[*ast.Graph] {
	return &graphValidator{
		Emitter:  emitter,
		platform: targetPlatform,
	}
}

func (validator *graphValidator) emit(
	loc parseutil.Location,
	format string,
	args ...interface{},
) {
	util.EmitMalformedGraph(validator.Emitter, loc, format, args...)
}

func (validator *graphValidator) Process(graph *ast.Graph) {
	validator.graph = graph

	if graph.NumBlocks() == 0 {
		validator.emit(graph.Loc(), "graph %s has no blocks", graph.Name)
		return
	}

	if len(graph.Entry().Preds) > 0 {
		validator.emit(
			graph.Entry().Loc(),
			"entry block %s cannot have predecessors",
			graph.Entry().Label)
	}

	for idx := range graph.Blocks {
		validator.validateBlock(graph.Block(ast.BlockID(idx)))
	}

	for idx := range graph.Instructions {
		validator.validateInstruction(graph.Instruction(ast.InstructionID(idx)))
	}

	if validator.HasErrors() {
		return
	}

	_, reachable := util.DFS(graph)
	for idx := range graph.Blocks {
		block := graph.Block(ast.BlockID(idx))
		_, ok := reachable[block.ID]
		if !ok {
			validator.emit(
				block.Loc(),
				"missing dominance: block %s is unreachable from the entry block",
				block.Label)
		}
	}
}

func (validator *graphValidator) isValidBlock(id ast.BlockID) bool {
	return id >= 0 && int(id) < validator.graph.NumBlocks()
}

func (validator *graphValidator) validateBlock(block *ast.Block) {
	for _, id := range append(append([]ast.BlockID{}, block.Preds...), block.Succs...) {
		if !validator.isValidBlock(id) {
			validator.emit(
				block.Loc(),
				"block %s has an edge to an invalid block (%d)",
				block.Label,
				id)
			return
		}
	}

	if len(block.Members) == 0 {
		validator.emit(block.Loc(), "block %s is empty", block.Label)
		return
	}

	numControl := 0
	for _, id := range block.Members {
		inst := validator.graph.Instruction(id)
		if inst.Home != block.ID {
			validator.emit(
				inst.Loc(),
				"%s is a member of %s but its home is b%d",
				inst,
				block.Label,
				inst.Home)
		}

		if inst.Opcode.IsValid() && inst.IsControl() {
			numControl++
		}
	}

	last := validator.graph.Instruction(block.Members[len(block.Members)-1])
	if numControl != 1 || !last.Opcode.IsValid() || !last.IsControl() {
		validator.emit(
			block.Loc(),
			"block %s must end with exactly one control instruction",
			block.Label)
		return
	}

	if last.Opcode.NumSuccessors() != len(block.Succs) {
		validator.emit(
			last.Loc(),
			"%s (%s) expects %d successors, but block %s has %d",
			last,
			last.Opcode,
			last.Opcode.NumSuccessors(),
			block.Label,
			len(block.Succs))
	}
}

func (validator *graphValidator) validateInstruction(inst *ast.Instruction) {
	graph := validator.graph

	if !inst.Opcode.IsValid() {
		validator.emit(inst.Loc(), "%s has unknown opcode (%s)", inst, inst.Opcode)
		return
	}

	if !validator.isValidBlock(inst.Home) {
		validator.emit(inst.Loc(), "%s has invalid home block (%d)", inst, inst.Home)
		return
	}

	op := inst.Opcode
	if !inst.Pinned &&
		(op.IsPinned() || op.HasSideEffects() || op.IsSafepoint()) {
		validator.emit(inst.Loc(), "%s (%s) must be pinned", inst, op)
	}

	if op == ast.Param && inst.Home != graph.Entry().ID {
		validator.emit(inst.Loc(), "param %s must be in the entry block", inst)
	}

	if inst.IsPhi() {
		numPreds := len(graph.Block(inst.Home).Preds)
		if len(inst.Inputs) != numPreds {
			validator.emit(
				inst.Loc(),
				"phi %s has %d inputs, but its block has %d predecessors",
				inst,
				len(inst.Inputs),
				numPreds)
		}
	}

	if inst.IsControl() && len(inst.Outputs) > 0 {
		validator.emit(inst.Loc(), "control instruction %s cannot have outputs", inst)
	}

	if op == ast.Branch && len(inst.Inputs) != 1 {
		validator.emit(inst.Loc(), "branch %s requires exactly one input", inst)
	}

	for _, input := range inst.Inputs {
		if input.Instruction < 0 ||
			int(input.Instruction) >= graph.NumInstructions() {
			validator.emit(
				inst.Loc(),
				"%s references undefined instruction (%s)",
				inst,
				input)
			continue
		}

		def := graph.Instruction(input.Instruction)
		if input.Index < 0 || input.Index >= len(def.Outputs) {
			validator.emit(
				inst.Loc(),
				"%s references undefined output (%s)",
				inst,
				input)
		}
	}

	for idx, output := range inst.Outputs {
		validator.validateOutput(inst, idx, output)
	}
}

func (validator *graphValidator) validateOutput(
	inst *ast.Instruction,
	idx int,
	output ast.Output,
) {
	ref := ast.ValueRef{Instruction: inst.ID, Index: idx}

	switch output.Kind {
	case ast.Value, ast.Reference, ast.NarrowReference:
		if output.TempType != "" || output.DataflowMandated {
			validator.emit(
				inst.Loc(),
				"%s is not a temp, but has temp attributes",
				ref)
		}
	case ast.Temp:
		switch output.TempType {
		case ast.Value, ast.Reference, ast.NarrowReference:
		default:
			validator.emit(
				inst.Loc(),
				"temp %s has invalid temp type (%s)",
				ref,
				output.TempType)
		}

		if inst.IsSafepoint() {
			validator.emit(
				inst.Loc(),
				"safepoint %s cannot generate temp %s",
				inst,
				ref)
		}

		if inst.IsPhi() {
			validator.emit(inst.Loc(), "phi %s cannot generate temp %s", inst, ref)
		}
	default:
		validator.emit(
			inst.Loc(),
			"%s has invalid output kind (%s)",
			ref,
			output.Kind)
		return
	}

	if output.RootType() == ast.NarrowReference &&
		!validator.platform.SupportsCompressedReferences() {
		validator.emit(
			inst.Loc(),
			"%s is a compressed reference, which is not supported by %s",
			ref,
			validator.platform.ArchitectureName())
	}
}
