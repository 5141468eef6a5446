package allocator

import (
	"fmt"
	"io"

	"github.com/pattyshack/starling/analyzer/util"
	"github.com/pattyshack/starling/ast"
)

type LivenessPrinter struct {
	*LivenessAnalyzer

	writer io.Writer
}

// This is only for debugging purpose.
func PrintLiveness(writer io.Writer) util.Pass[*ast.Graph] {
	return &LivenessPrinter{
		LivenessAnalyzer: NewLivenessAnalyzer(),
		writer:           writer,
	}
}

func (printer *LivenessPrinter) Process(graph *ast.Graph) {
	printer.LivenessAnalyzer.Process(graph)

	result := fmt.Sprintf("Graph: %s\n", graph.Name)
	for idx := range graph.Blocks {
		block := graph.Block(ast.BlockID(idx))
		result += fmt.Sprintf("  Block %d (%s):\n", idx, block.Label)

		result += fmt.Sprintf("    LiveIn:\n")
		liveIn := printer.LiveIn[idx]
		for _, value := range liveIn.Values() {
			result += fmt.Sprintf(
				"      %s %d (%s)\n",
				value,
				liveIn[value].Distance,
				graph.Output(value))
		}

		result += fmt.Sprintf("    LiveOut:\n")
		liveOut := printer.LiveOut[idx]
		for _, value := range liveOut.Values() {
			result += fmt.Sprintf(
				"      %s %d (%s)\n",
				value,
				liveOut[value].Distance,
				graph.Output(value))
		}
	}

	fmt.Fprintln(printer.writer, result)
}
