package scheduler

import (
	"github.com/pattyshack/gt/parseutil"

	"github.com/pattyshack/starling/analyzer/util"
	"github.com/pattyshack/starling/ast"
)

// Global code motion assigns every instruction to a block.
//
// Pinned instructions stay in their home block.  Movable instructions are
// placed on the dominator tree path between their earliest legal block
// (the deepest block among their inputs' blocks) and their latest legal
// block (the lowest common dominator of their uses), preferring the
// shallowest loop nest, then the lowest frequency, then the block closest to
// the uses.
//
// Memory reads only leave their home block for blocks separated from it by
// a side effect free region.
//
// Temp generators and consumers are kept in a single block.
type globalCodeMotion struct {
	*parseutil.Emitter

	domTree    *util.DominatorTree
	regions    *util.SafepointRegions
	tracker    *TempTracker
	tieBreaker TieBreaker

	graph *ast.Graph

	// Topological order over non-phi data dependencies (inputs first).
	order []ast.InstructionID

	early []ast.BlockID
}

func GlobalCodeMotion(
	emitter *parseutil.Emitter,
	domTree *util.DominatorTree,
	tracker *TempTracker,
	tieBreaker TieBreaker,
) util.Pass[*ast.Graph] {
	return &globalCodeMotion{
		Emitter:    emitter,
		domTree:    domTree,
		tracker:    tracker,
		tieBreaker: tieBreaker,
	}
}

func (gcm *globalCodeMotion) Process(graph *ast.Graph) {
	gcm.graph = graph
	gcm.regions = util.NewSafepointRegions(graph)

	for idx := range graph.Instructions {
		graph.Instructions[idx].Block = ast.NoBlock
		graph.Instructions[idx].Position = ast.Unordered
	}

	gcm.order = gcm.topologicalOrder()
	if gcm.order == nil {
		return
	}

	if !gcm.scheduleEarly() {
		return
	}

	if !gcm.scheduleLate() {
		return
	}

	if gcm.tieBreaker.IsRandomized() {
		gcm.perturb()
	}

	if !gcm.checkTempColocation() {
		return
	}

	for idx := range graph.Blocks {
		graph.Blocks[idx].Scheduled = nil
	}
	for idx := range graph.Instructions {
		inst := &graph.Instructions[idx]
		block := graph.Block(inst.Block)
		block.Scheduled = append(block.Scheduled, inst.ID)
	}

	gcm.EmitErrors(CheckDominance(graph, gcm.domTree)...)
}

func (gcm *globalCodeMotion) label(block ast.BlockID) string {
	return gcm.graph.Block(block).Label
}

// Kahn's algorithm over data edges.  Phi inputs are excluded since they are
// evaluated at the end of the predecessor blocks (i.e., phis may close
// loops).
func (gcm *globalCodeMotion) topologicalOrder() []ast.InstructionID {
	graph := gcm.graph
	numInsts := graph.NumInstructions()

	pending := make([]int, numInsts)
	queue := make([]ast.InstructionID, 0, numInsts)
	for idx := range graph.Instructions {
		inst := &graph.Instructions[idx]
		if !inst.IsPhi() {
			pending[idx] = len(inst.Inputs)
		}

		if pending[idx] == 0 {
			queue = append(queue, inst.ID)
		}
	}

	for head := 0; head < len(queue); head++ {
		for _, use := range graph.Users(queue[head]) {
			if graph.Instruction(use.User).IsPhi() {
				continue
			}

			pending[use.User]--
			if pending[use.User] == 0 {
				queue = append(queue, use.User)
			}
		}
	}

	if len(queue) == numInsts {
		return queue
	}

	for idx, count := range pending {
		if count > 0 {
			inst := graph.Instruction(ast.InstructionID(idx))
			util.EmitMalformedGraph(
				gcm.Emitter,
				inst.Loc(),
				"cyclic data dependency involving %s",
				inst)
			break
		}
	}
	return nil
}

func (gcm *globalCodeMotion) scheduleEarly() bool {
	graph := gcm.graph
	gcm.early = make([]ast.BlockID, graph.NumInstructions())

	ok := true
	for _, id := range gcm.order {
		inst := graph.Instruction(id)
		if inst.Pinned {
			gcm.early[id] = inst.Home
			inst.Block = inst.Home
			continue
		}

		early := graph.Entry().ID
		for _, input := range inst.Inputs {
			inputEarly := gcm.early[input.Instruction]
			deeper := gcm.domTree.Deeper(early, inputEarly)
			if deeper == ast.NoBlock {
				util.EmitMalformedGraph(
					gcm.Emitter,
					inst.Loc(),
					"missing dominance: inputs of %s are defined in unrelated "+
						"blocks (%s, %s)",
					inst,
					gcm.label(early),
					gcm.label(inputEarly))
				ok = false
				break
			}
			early = deeper
		}

		if ok && inst.Opcode.ReadsMemory() {
			early = gcm.hoistLimit(inst, early)
		}
		gcm.early[id] = early
	}

	if !ok {
		return false
	}

	// Pinned instructions' inputs must be available in the home block (or at
	// the end of the matching predecessor for phis).
	for idx := range graph.Instructions {
		inst := &graph.Instructions[idx]
		if !inst.Pinned {
			continue
		}

		for inputIdx, input := range inst.Inputs {
			target := inst.Home
			if inst.IsPhi() {
				target = graph.PhiInputBlock(inst, inputIdx)
			}

			if !gcm.domTree.Dominates(gcm.early[input.Instruction], target) {
				util.EmitMalformedGraph(
					gcm.Emitter,
					inst.Loc(),
					"missing dominance: input %s of pinned %s is not available in %s",
					input,
					inst,
					gcm.label(target))
				ok = false
			}
		}
	}

	return ok
}

// Memory reads are not hoisted out of their home block past side effects.
func (gcm *globalCodeMotion) hoistLimit(
	inst *ast.Instruction,
	early ast.BlockID,
) ast.BlockID {
	limit := inst.Home
	for _, id := range gcm.domTree.Path(inst.Home, early) {
		if !gcm.isMovableTo(inst, id) {
			break
		}
		limit = id
	}
	return limit
}

// Returns the lowest common dominator of all uses, or NoBlock if the
// instruction has no uses.
func (gcm *globalCodeMotion) usesLCA(inst *ast.Instruction) ast.BlockID {
	lca := ast.NoBlock
	for _, use := range gcm.graph.Users(inst.ID) {
		lca = gcm.domTree.LCA(lca, gcm.graph.UseBlock(use))
	}
	return lca
}

func (gcm *globalCodeMotion) scheduleLate() bool {
	for idx := len(gcm.order) - 1; idx >= 0; idx-- {
		inst := gcm.graph.Instruction(gcm.order[idx])
		if inst.Pinned {
			continue
		}

		block, ok := gcm.place(inst)
		if !ok {
			return false
		}
		inst.Block = block
	}
	return true
}

func (gcm *globalCodeMotion) isMovableTo(
	inst *ast.Instruction,
	block ast.BlockID,
) bool {
	return !inst.Opcode.ReadsMemory() ||
		block == inst.Home ||
		gcm.regions.IsSideEffectFree(block, inst.Home)
}

func (gcm *globalCodeMotion) place(inst *ast.Instruction) (ast.BlockID, bool) {
	block, ok := gcm.placeUnrestricted(inst)
	if !ok {
		return ast.NoBlock, false
	}

	// Temp colocation is rechecked once every instruction is placed.
	if !gcm.isMovableTo(inst, block) {
		return inst.Home, true
	}
	return block, true
}

func (gcm *globalCodeMotion) placeUnrestricted(
	inst *ast.Instruction,
) (
	ast.BlockID,
	bool,
) {
	early := gcm.early[inst.ID]
	late := gcm.usesLCA(inst)

	if len(gcm.tracker.GeneratedBy(inst.ID)) > 0 {
		return gcm.placeTempGenerator(inst, early, late)
	}

	if len(gcm.tracker.ConsumedBy(inst.ID)) > 0 {
		block, found, ok := gcm.placeTempConsumer(inst, early, late)
		if !ok {
			return ast.NoBlock, false
		}

		if found {
			return block, true
		}
	}

	if late == ast.NoBlock {
		return early, true
	}

	if !gcm.domTree.Dominates(early, late) {
		util.EmitMalformedGraph(
			gcm.Emitter,
			inst.Loc(),
			"missing dominance: inputs of %s (available in %s) do not dominate "+
				"its uses (%s)",
			inst,
			gcm.label(early),
			gcm.label(late))
		return ast.NoBlock, false
	}

	var best *ast.Block
	for _, id := range gcm.domTree.Path(late, early) {
		if !gcm.isMovableTo(inst, id) {
			continue
		}

		block := gcm.graph.Block(id)
		if best == nil ||
			block.LoopDepth < best.LoopDepth ||
			(block.LoopDepth == best.LoopDepth &&
				(block.Frequency < best.Frequency ||
					(block.Frequency == best.Frequency && block.ID > best.ID))) {
			best = block
		}
	}

	if best == nil {
		return inst.Home, true
	}
	return best.ID, true
}

// A movable generator is never hoisted away from its consumers; all uses must
// end up in a single block.
func (gcm *globalCodeMotion) placeTempGenerator(
	inst *ast.Instruction,
	early ast.BlockID,
	late ast.BlockID,
) (ast.BlockID, bool) {
	if late == ast.NoBlock {
		return early, true
	}

	// An exempt (non-reference) temp split across blocks is a construction
	// error rather than a root problem.
	emit := util.EmitMalformedGraph
	for _, binding := range gcm.tracker.GeneratedBy(inst.ID) {
		if !binding.IsExempt() {
			emit = util.EmitRootAccuracyViolation
		}
	}

	for _, use := range gcm.graph.Users(inst.ID) {
		useBlock := gcm.graph.UseBlock(use)
		if useBlock != late {
			emit(
				gcm.Emitter,
				inst.Loc(),
				"temp generator %s has consumers in different blocks (%s, %s)",
				inst,
				gcm.label(late),
				gcm.label(useBlock))
			return ast.NoBlock, false
		}
	}

	if !gcm.domTree.Dominates(early, late) {
		util.EmitMalformedGraph(
			gcm.Emitter,
			inst.Loc(),
			"missing dominance: inputs of %s (available in %s) do not dominate "+
				"its uses (%s)",
			inst,
			gcm.label(early),
			gcm.label(late))
		return ast.NoBlock, false
	}

	return late, true
}

// A consumer follows its pinned generator, or the consumers of the same temp
// that were already placed.  Returns found = false if the consumer is free
// to use the regular placement heuristic.
func (gcm *globalCodeMotion) placeTempConsumer(
	inst *ast.Instruction,
	early ast.BlockID,
	late ast.BlockID,
) (
	ast.BlockID,
	bool, // found
	bool, // ok
) {
	isLegal := func(block ast.BlockID) bool {
		return gcm.domTree.Dominates(early, block) &&
			(late == ast.NoBlock || gcm.domTree.Dominates(block, late))
	}

	for _, binding := range gcm.tracker.ConsumedBy(inst.ID) {
		generator := gcm.graph.Instruction(binding.Generator)
		if !generator.Pinned {
			continue
		}

		if !isLegal(generator.Home) {
			util.EmitRootAccuracyViolation(
				gcm.Emitter,
				inst.Loc(),
				"temp %s consumer %s cannot be placed in pinned generator %s's "+
					"block (%s)",
				binding.Temp,
				inst,
				generator,
				gcm.label(generator.Home))
			return ast.NoBlock, false, false
		}
		return generator.Home, true, true
	}

	for _, binding := range gcm.tracker.ConsumedBy(inst.ID) {
		for _, consumer := range binding.Consumers {
			if consumer == inst.ID {
				continue
			}

			block := gcm.graph.Instruction(consumer).Block
			if block != ast.NoBlock && isLegal(block) {
				return block, true, true
			}
		}
	}

	return ast.NoBlock, false, true
}

// Pinned generators and pinned consumers are never moved, so they may still
// end up in different blocks.
func (gcm *globalCodeMotion) checkTempColocation() bool {
	ok := true
	for _, binding := range gcm.tracker.Bindings() {
		if binding.IsExempt() {
			continue
		}

		generator := gcm.graph.Instruction(binding.Generator)
		for _, id := range binding.Consumers {
			consumer := gcm.graph.Instruction(id)
			if consumer.Block == generator.Block {
				continue
			}

			util.EmitRootAccuracyViolation(
				gcm.Emitter,
				consumer.Loc(),
				"temp %s (generated by %s in %s) is consumed by %s in %s",
				binding.Temp,
				generator,
				gcm.label(generator.Block),
				consumer,
				gcm.label(consumer.Block))
			ok = false
		}
	}
	return ok
}

// Re-chooses movable instructions' blocks using the tie breaker.  The
// candidates are restricted to blocks at the deterministic choice's loop
// depth that are separated from the deterministic choice by a safepoint free
// region, so that the set of values live at every safepoint is unaffected.
func (gcm *globalCodeMotion) perturb() {
	graph := gcm.graph
	for idx := len(gcm.order) - 1; idx >= 0; idx-- {
		inst := graph.Instruction(gcm.order[idx])
		if inst.Pinned || gcm.tracker.IsTempRelated(inst.ID) {
			continue
		}

		late := gcm.usesLCA(inst)
		if late == ast.NoBlock {
			continue
		}

		top := graph.Entry().ID
		for _, input := range inst.Inputs {
			top = gcm.domTree.Deeper(top, graph.Instruction(input.Instruction).Block)
			if top == ast.NoBlock {
				panic("should never happen")
			}
		}

		current := inst.Block
		depth := graph.Block(current).LoopDepth

		candidates := []ast.BlockID{current}
		for _, block := range gcm.domTree.Path(late, top) {
			if block == current ||
				graph.Block(block).LoopDepth != depth ||
				!gcm.regions.IsSafepointFree(block, current) ||
				!gcm.isMovableTo(inst, block) {
				continue
			}
			candidates = append(candidates, block)
		}

		inst.Block = candidates[gcm.tieBreaker.Choose(len(candidates))]
	}
}
