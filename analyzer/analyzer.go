package analyzer

import (
	"github.com/pattyshack/gt/parseutil"

	"github.com/pattyshack/starling/analyzer/allocator"
	"github.com/pattyshack/starling/analyzer/rootmap"
	"github.com/pattyshack/starling/analyzer/scheduler"
	"github.com/pattyshack/starling/analyzer/util"
	"github.com/pattyshack/starling/architecture"
	"github.com/pattyshack/starling/ast"
	"github.com/pattyshack/starling/platform"
)

// The result of a successful compilation.  The graph itself holds the
// final block placement and instruction order.
type CompiledMethod struct {
	Graph  *ast.Graph
	Config scheduler.Config

	Schedule  *scheduler.Schedule
	Allocator *allocator.Allocator

	// One per safepoint, ordered by (block, position).
	RootMaps []*rootmap.RootMap
}

func (method *CompiledMethod) Frame() *architecture.StackFrame {
	return method.Allocator.Frame
}

// Returns the final instruction order of the block.
func (method *CompiledMethod) BlockOrder(id ast.BlockID) []ast.InstructionID {
	return method.Graph.Block(id).Scheduled
}

func (method *CompiledMethod) RootMap(
	safepoint ast.InstructionID,
) *rootmap.RootMap {
	for _, rootMap := range method.RootMaps {
		if rootMap.Safepoint == safepoint {
			return rootMap
		}
	}
	return nil
}

// Schedules the graph and computes its root maps.
//
// An invalid config is a usage error and is returned immediately.
// Compilation errors (malformed graph, root accuracy violations) are
// reported to the emitter, in which case the returned method is nil and the
// caller must fall back to another execution tier.  The graph is modified in
// place.
func Compile(
	graph *ast.Graph,
	targetPlatform platform.Platform,
	config scheduler.Config,
	emitter *parseutil.Emitter,
) (*CompiledMethod, error) {
	err := config.Validate()
	if err != nil {
		return nil, err
	}

	util.Process(
		graph,
		[]util.Pass[*ast.Graph]{ValidateGraph(emitter, targetPlatform)},
		emitter.HasErrors)
	if emitter.HasErrors() {
		return nil, nil
	}

	schedule := scheduler.Run(graph, config, emitter)
	if schedule == nil {
		return nil, nil
	}

	locationAllocator := allocator.NewAllocator(targetPlatform)
	builder := rootmap.NewBuilder(emitter, locationAllocator, schedule.Tracker)

	util.Process(
		graph,
		[]util.Pass[*ast.Graph]{locationAllocator, builder},
		emitter.HasErrors)
	if emitter.HasErrors() {
		return nil, nil
	}

	return &CompiledMethod{
		Graph:     graph,
		Config:    config,
		Schedule:  schedule,
		Allocator: locationAllocator,
		RootMaps:  builder.RootMaps,
	}, nil
}
