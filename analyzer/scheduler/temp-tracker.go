package scheduler

import (
	"slices"

	"github.com/pattyshack/gt/parseutil"

	"github.com/pattyshack/starling/analyzer/util"
	"github.com/pattyshack/starling/ast"
)

// A temp output together with the instruction that generates it and the
// instructions that consume it.
type TempBinding struct {
	Temp   ast.ValueRef
	Output ast.Output

	Generator ast.InstructionID

	// Sorted by instruction id, without duplicates.
	Consumers []ast.InstructionID
}

// Exempt temps may legitimately be live across a safepoint: either the temp
// holds non-reference data (the collector never inspects it), or
// instruction selection marked it as a genuine, dataflow mandated reference.
func (binding *TempBinding) IsExempt() bool {
	return !binding.Output.TempType.IsReference() ||
		binding.Output.DataflowMandated
}

// Mandated temps are reported in root maps (using their TempType).
func (binding *TempBinding) IsMandated() bool {
	return binding.Output.DataflowMandated &&
		binding.Output.TempType.IsReference()
}

func (binding *TempBinding) HasConsumer(id ast.InstructionID) bool {
	_, found := slices.BinarySearch(binding.Consumers, id)
	return found
}

// Registry of all temp operands in a graph.  Built once the graph is fully
// constructed; the graph's def-use structure must not change afterward.
type TempTracker struct {
	graph *ast.Graph

	bindings []*TempBinding // sorted by temp

	byTemp      map[ast.ValueRef]*TempBinding
	byGenerator map[ast.InstructionID][]*TempBinding
	byConsumer  map[ast.InstructionID][]*TempBinding
}

func NewTempTracker(
	graph *ast.Graph,
	emitter *parseutil.Emitter,
) *TempTracker {
	tracker := &TempTracker{
		graph:       graph,
		byTemp:      map[ast.ValueRef]*TempBinding{},
		byGenerator: map[ast.InstructionID][]*TempBinding{},
		byConsumer:  map[ast.InstructionID][]*TempBinding{},
	}

	for idx := range graph.Instructions {
		inst := &graph.Instructions[idx]
		for outIdx, output := range inst.Outputs {
			if output.Kind != ast.Temp {
				continue
			}

			binding := &TempBinding{
				Temp:      ast.ValueRef{Instruction: inst.ID, Index: outIdx},
				Output:    output,
				Generator: inst.ID,
			}

			for _, use := range graph.Users(inst.ID) {
				user := graph.Instruction(use.User)
				if user.Inputs[use.InputIndex] != binding.Temp {
					continue
				}

				if user.IsPhi() {
					util.EmitMalformedGraph(
						emitter,
						user.Loc(),
						"temp %s (generated by %s) cannot flow into phi %s",
						binding.Temp,
						inst,
						user)
					continue
				}

				if len(binding.Consumers) == 0 ||
					binding.Consumers[len(binding.Consumers)-1] != user.ID {
					binding.Consumers = append(binding.Consumers, user.ID)
				}
			}

			tracker.bindings = append(tracker.bindings, binding)
			tracker.byTemp[binding.Temp] = binding
			tracker.byGenerator[inst.ID] = append(
				tracker.byGenerator[inst.ID],
				binding)
			for _, consumer := range binding.Consumers {
				tracker.byConsumer[consumer] = append(
					tracker.byConsumer[consumer],
					binding)
			}
		}
	}

	return tracker
}

func (tracker *TempTracker) Bindings() []*TempBinding {
	return tracker.bindings
}

func (tracker *TempTracker) Binding(temp ast.ValueRef) (*TempBinding, bool) {
	binding, ok := tracker.byTemp[temp]
	return binding, ok
}

func (tracker *TempTracker) GeneratedBy(
	id ast.InstructionID,
) []*TempBinding {
	return tracker.byGenerator[id]
}

func (tracker *TempTracker) ConsumedBy(id ast.InstructionID) []*TempBinding {
	return tracker.byConsumer[id]
}

// Returns true if the instruction generates or consumes any temp.
func (tracker *TempTracker) IsTempRelated(id ast.InstructionID) bool {
	return len(tracker.byGenerator[id]) > 0 || len(tracker.byConsumer[id]) > 0
}

func (tracker *TempTracker) IsExempt(temp ast.ValueRef) bool {
	binding, ok := tracker.byTemp[temp]
	return ok && binding.IsExempt()
}

func (tracker *TempTracker) IsMandated(temp ast.ValueRef) bool {
	binding, ok := tracker.byTemp[temp]
	return ok && binding.IsMandated()
}

// Returns the consumer with the largest scheduled position.  The binding's
// instructions must be scheduled into a single block.
func (tracker *TempTracker) lastConsumer(
	binding *TempBinding,
) *ast.Instruction {
	var last *ast.Instruction
	for _, id := range binding.Consumers {
		consumer := tracker.graph.Instruction(id)
		if last == nil || consumer.Position > last.Position {
			last = consumer
		}
	}
	return last
}

// Returns true if every consumer is scheduled into the generator's block.
func (tracker *TempTracker) isColocated(binding *TempBinding) bool {
	block := tracker.graph.Instruction(binding.Generator).Block
	for _, id := range binding.Consumers {
		if tracker.graph.Instruction(id).Block != block {
			return false
		}
	}
	return true
}

// Returns true if the safepoint executes strictly between the temp's
// generator and its last consumer in the final schedule.
func (tracker *TempTracker) Encloses(
	binding *TempBinding,
	safepoint ast.InstructionID,
) bool {
	if len(binding.Consumers) == 0 || !tracker.isColocated(binding) {
		return false
	}

	generator := tracker.graph.Instruction(binding.Generator)
	inst := tracker.graph.Instruction(safepoint)
	if inst.Block != generator.Block {
		return false
	}

	last := tracker.lastConsumer(binding)
	return generator.Position < inst.Position && inst.Position < last.Position
}

// Returns the first safepoint enclosed by the temp's live range.  Consumers
// scheduled outside the generator's block always span the block's exit
// (the returned safepoint is NoInstruction in that case).
func (tracker *TempTracker) SpansSafepoint(
	binding *TempBinding,
) (ast.InstructionID, bool) {
	if len(binding.Consumers) == 0 {
		return ast.NoInstruction, false
	}

	if !tracker.isColocated(binding) {
		return ast.NoInstruction, true
	}

	generator := tracker.graph.Instruction(binding.Generator)
	last := tracker.lastConsumer(binding)
	block := tracker.graph.Block(generator.Block)
	for pos := generator.Position + 1; pos < last.Position; pos++ {
		id := block.Scheduled[pos]
		if tracker.graph.Instruction(id).IsSafepoint() {
			return id, true
		}
	}
	return ast.NoInstruction, false
}

// Returns a safepoint S such that generator <= S <= consumer under the
// dependsOn relation (dependsOn(a, b) is true if b transitively depends on
// a within the block).  Such a temp cannot be kept on one side of S by any
// legal order.  Exempt temps never have forced crossings.
func (tracker *TempTracker) ForcedCrossing(
	binding *TempBinding,
	safepoints []ast.InstructionID,
	dependsOn func(ast.InstructionID, ast.InstructionID) bool,
) (ast.InstructionID, bool) {
	if binding.IsExempt() {
		return ast.NoInstruction, false
	}

	for _, safepoint := range safepoints {
		if safepoint == binding.Generator ||
			!dependsOn(binding.Generator, safepoint) {
			continue
		}

		for _, consumer := range binding.Consumers {
			if consumer != safepoint && dependsOn(safepoint, consumer) {
				return safepoint, true
			}
		}
	}
	return ast.NoInstruction, false
}

// Returns a non-exempt binding that would be live across next if next were
// scheduled now, i.e., its generator is scheduled but some consumer other
// than next is not.  Always false for non-safepoints.
func (tracker *TempTracker) WouldSpanSafepoint(
	next ast.InstructionID,
	isScheduled func(ast.InstructionID) bool,
) (*TempBinding, bool) {
	if !tracker.graph.Instruction(next).IsSafepoint() {
		return nil, false
	}

	for _, binding := range tracker.bindings {
		if binding.IsExempt() || !isScheduled(binding.Generator) {
			continue
		}

		for _, consumer := range binding.Consumers {
			if consumer != next && !isScheduled(consumer) {
				return binding, true
			}
		}
	}
	return nil, false
}

// Verifies temp containment on the final schedule: no non-exempt temp is
// live across a safepoint.
func (tracker *TempTracker) Verify(emitter *parseutil.Emitter) {
	for _, binding := range tracker.bindings {
		if binding.IsExempt() {
			continue
		}

		safepoint, spans := tracker.SpansSafepoint(binding)
		if !spans {
			continue
		}

		generator := tracker.graph.Instruction(binding.Generator)
		if safepoint == ast.NoInstruction {
			util.EmitRootAccuracyViolation(
				emitter,
				generator.Loc(),
				"temp %s (generated by %s) escapes its generator's block",
				binding.Temp,
				generator)
		} else {
			util.EmitRootAccuracyViolation(
				emitter,
				generator.Loc(),
				"temp %s (generated by %s) is live across safepoint %s",
				binding.Temp,
				generator,
				tracker.graph.Instruction(safepoint))
		}
	}
}
