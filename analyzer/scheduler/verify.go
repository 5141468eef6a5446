package scheduler

import (
	"github.com/pattyshack/gt/parseutil"

	"github.com/pattyshack/starling/analyzer/util"
	"github.com/pattyshack/starling/ast"
)

// Checks that every instruction is placed in a block dominated by its inputs'
// blocks (phi inputs: the matching predecessor), that pinned instructions
// stayed home, and, once local code motion assigned positions, that
// same-block inputs are ordered before their users.
func CheckDominance(
	graph *ast.Graph,
	domTree *util.DominatorTree,
) []error {
	emitter := &parseutil.Emitter{}
	for idx := range graph.Instructions {
		inst := &graph.Instructions[idx]
		if inst.Block == ast.NoBlock {
			util.EmitMalformedGraph(emitter, inst.Loc(), "%s is not placed", inst)
			continue
		}

		if inst.Pinned && inst.Block != inst.Home {
			util.EmitMalformedGraph(
				emitter,
				inst.Loc(),
				"pinned %s moved out of %s",
				inst,
				graph.Block(inst.Home).Label)
		}

		for inputIdx, input := range inst.Inputs {
			def := graph.Instruction(input.Instruction)

			useBlock := inst.Block
			if inst.IsPhi() {
				useBlock = graph.PhiInputBlock(inst, inputIdx)
			}

			if !domTree.Dominates(def.Block, useBlock) {
				util.EmitMalformedGraph(
					emitter,
					inst.Loc(),
					"definition of %s (in %s) does not dominate its use by %s (in %s)",
					input,
					graph.Block(def.Block).Label,
					inst,
					graph.Block(useBlock).Label)
				continue
			}

			if !inst.IsPhi() &&
				def.Block == inst.Block &&
				inst.Position != ast.Unordered &&
				def.Position >= inst.Position {

				util.EmitMalformedGraph(
					emitter,
					inst.Loc(),
					"%s is scheduled before its input %s",
					inst,
					input)
			}
		}
	}

	return emitter.Errors()
}

type scheduleVerifier struct {
	*parseutil.Emitter

	domTree *util.DominatorTree
	tracker *TempTracker
}

// Verifies dominance legality and temp containment of the final schedule.
func VerifySchedule(
	emitter *parseutil.Emitter,
	domTree *util.DominatorTree,
	tracker *TempTracker,
) util.Pass[*ast.Graph] {
	return &scheduleVerifier{
		Emitter: emitter,
		domTree: domTree,
		tracker: tracker,
	}
}

func (verifier *scheduleVerifier) Process(graph *ast.Graph) {
	verifier.EmitErrors(CheckDominance(graph, verifier.domTree)...)
	verifier.tracker.Verify(verifier.Emitter)
}
