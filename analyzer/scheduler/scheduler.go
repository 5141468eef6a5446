package scheduler

import (
	"github.com/pattyshack/gt/parseutil"

	"github.com/pattyshack/starling/analyzer/util"
	"github.com/pattyshack/starling/ast"
)

// Scheduling state shared with the passes that run after scheduling.
type Schedule struct {
	Config Config

	DomTree *util.DominatorTree
	Loops   *util.LoopNest
	Tracker *TempTracker
}

// Places and orders every instruction of a validated graph.  The graph's
// Block / Position fields and each block's Scheduled list hold the result.
// Errors are reported to the emitter; the returned schedule is nil if
// scheduling failed.
func Run(
	graph *ast.Graph,
	config Config,
	emitter *parseutil.Emitter,
) *Schedule {
	domTree := util.NewDominatorTree(graph)
	schedule := &Schedule{
		Config:  config,
		DomTree: domTree,
		Loops:   util.NewLoopNest(domTree),
		Tracker: NewTempTracker(graph, emitter),
	}

	if emitter.HasErrors() {
		return nil
	}

	passes := []util.Pass[*ast.Graph]{
		GlobalCodeMotion(
			emitter,
			schedule.DomTree,
			schedule.Tracker,
			config.GCMTieBreaker()),
		LocalCodeMotion(emitter, schedule.Tracker, config.LCMTieBreaker()),
		VerifySchedule(emitter, schedule.DomTree, schedule.Tracker),
	}

	util.Process(graph, passes, emitter.HasErrors)
	if emitter.HasErrors() {
		return nil
	}

	return schedule
}
