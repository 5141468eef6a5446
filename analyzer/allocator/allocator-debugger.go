package allocator

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pattyshack/starling/analyzer/util"
	"github.com/pattyshack/starling/ast"
)

type AllocatorDebugger struct {
	*Allocator

	writer io.Writer
}

// Dumps the allocator's result.  Must run after the allocator.
func Debug(allocator *Allocator, writer io.Writer) util.Pass[*ast.Graph] {
	return &AllocatorDebugger{
		Allocator: allocator,
		writer:    writer,
	}
}

func (debugger *AllocatorDebugger) Process(graph *ast.Graph) {
	buffer := &bytes.Buffer{}
	printf := func(template string, args ...interface{}) {
		fmt.Fprintf(buffer, template, args...)
	}

	printf("Graph: %s\n", graph.Name)
	printf("------------------------------------------\n")
	printf("Liveness:\n")
	for idx := range graph.Blocks {
		block := graph.Block(ast.BlockID(idx))
		printf("  Block %d (%s):\n", idx, block.Label)

		printf("    LiveIn:\n")
		liveIn := debugger.Liveness.LiveIn[idx]
		for _, value := range liveIn.Values() {
			printf("      %s : %d\n", value, liveIn[value].Distance)
		}

		printf("    LiveOut:\n")
		liveOut := debugger.Liveness.LiveOut[idx]
		for _, value := range liveOut.Values() {
			printf("      %s : %d\n", value, liveOut[value].Distance)
		}
	}

	printf("------------------------------------------\n")
	printf("Live Ranges:\n")
	for _, liveRange := range debugger.LiveRanges {
		printf(
			"  %s: [%d %d] -> %s\n",
			liveRange.Value,
			liveRange.Start,
			liveRange.End,
			debugger.Locations[liveRange.Value])
	}

	printf("------------------------------------------\n")
	printf("Stack Frame (Size = %d):\n", debugger.Frame.TotalFrameSize)
	printf("  Layout:\n")
	for _, entry := range debugger.Frame.Layout {
		printf("    %s: %s\n", entry.Name, entry)
	}
	printf("==========================================\n")

	fmt.Fprintln(debugger.writer, buffer.String())
}
