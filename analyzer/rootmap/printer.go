package rootmap

import (
	"fmt"
	"io"

	"github.com/pattyshack/starling/analyzer/util"
	"github.com/pattyshack/starling/ast"
)

type rootMapPrinter struct {
	rootMaps []*RootMap

	writer io.Writer
}

// This is only for debugging purpose.
func PrintRootMaps(rootMaps []*RootMap, writer io.Writer) util.Pass[*ast.Graph] {
	return &rootMapPrinter{
		rootMaps: rootMaps,
		writer:   writer,
	}
}

func (printer *rootMapPrinter) Process(graph *ast.Graph) {
	result := fmt.Sprintf("Root maps: %s\n", graph.Name)
	for _, rootMap := range printer.rootMaps {
		result += fmt.Sprintf(
			"  %s: %s\n",
			graph.Instruction(rootMap.Safepoint).Opcode,
			rootMap)
	}
	fmt.Fprint(printer.writer, result)
}
