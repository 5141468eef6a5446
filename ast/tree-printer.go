package ast

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unsafe"

	"github.com/docker/go-units"
)

const (
	indent = "  "
)

func GraphString(graph *Graph) string {
	buffer := &bytes.Buffer{}
	_ = PrintGraph(buffer, graph)
	return buffer.String()
}

// Prints the graph in block order.  Blocks that have been scheduled are
// printed in their final order (with positions); otherwise, instructions are
// printed in emission order.
func PrintGraph(output io.Writer, graph *Graph) error {
	printer := &graphPrinter{
		graph:  graph,
		writer: output,
	}
	printer.print()
	return printer.err
}

// Approximate arena footprint of the graph.
func ArenaSize(graph *Graph) int64 {
	size := int64(len(graph.Blocks)) * int64(unsafe.Sizeof(Block{}))
	size += int64(len(graph.Instructions)) * int64(unsafe.Sizeof(Instruction{}))
	for _, inst := range graph.Instructions {
		size += int64(len(inst.Inputs)) * int64(unsafe.Sizeof(ValueRef{}))
		size += int64(len(inst.Outputs)) * int64(unsafe.Sizeof(Output{}))
	}
	return size
}

type graphPrinter struct {
	graph  *Graph
	indent string
	writer io.Writer
	err    error
}

func (printer *graphPrinter) writeString(str string) {
	if printer.err != nil {
		return
	}

	_, printer.err = io.WriteString(printer.writer, str)
}

func (printer *graphPrinter) writeLine(format string, args ...interface{}) {
	printer.writeString(printer.indent)
	printer.writeString(fmt.Sprintf(format, args...))
	printer.writeString("\n")
}

func (printer *graphPrinter) push() {
	printer.indent += indent
}

func (printer *graphPrinter) pop() {
	printer.indent = printer.indent[:len(printer.indent)-len(indent)]
}

func (printer *graphPrinter) print() {
	graph := printer.graph
	printer.writeLine(
		"Graph: %s (%d blocks, %d instructions, arena %s)",
		graph.Name,
		len(graph.Blocks),
		len(graph.Instructions),
		units.HumanSize(float64(ArenaSize(graph))))

	printer.push()
	for idx := range graph.Blocks {
		printer.printBlock(&graph.Blocks[idx])
	}
	printer.pop()
}

func (printer *graphPrinter) printBlock(block *Block) {
	idom := "-"
	if block.Idom != NoBlock {
		idom = printer.graph.Blocks[block.Idom].Label
	}

	printer.writeLine(
		"Block %d (%s): freq=%g idom=%s loop-depth=%d preds=%s succs=%s",
		block.ID,
		block.Label,
		block.Frequency,
		idom,
		block.LoopDepth,
		printer.blockLabels(block.Preds),
		printer.blockLabels(block.Succs))

	printer.push()
	instructions := block.Members
	if block.Scheduled != nil {
		instructions = block.Scheduled
	}
	for _, id := range instructions {
		printer.writeLine("%s", InstructionString(printer.graph, id))
	}
	printer.pop()
}

func (printer *graphPrinter) blockLabels(ids []BlockID) string {
	labels := make([]string, 0, len(ids))
	for _, id := range ids {
		labels = append(labels, printer.graph.Blocks[id].Label)
	}
	return "[" + strings.Join(labels, ", ") + "]"
}

// Formats the instruction as: <pos>: <dests> = <opcode> <srcs> [flags]
func InstructionString(graph *Graph, id InstructionID) string {
	inst := &graph.Instructions[id]

	result := ""
	if inst.Position != Unordered {
		result += fmt.Sprintf("%d: ", inst.Position)
	}

	if len(inst.Outputs) > 0 {
		dests := make([]string, 0, len(inst.Outputs))
		for idx, output := range inst.Outputs {
			ref := ValueRef{Instruction: id, Index: idx}
			dests = append(dests, fmt.Sprintf("%s:%s", ref, output))
		}
		result += strings.Join(dests, ", ") + " = "
	}

	result += string(inst.Opcode)

	if len(inst.Inputs) > 0 {
		srcs := make([]string, 0, len(inst.Inputs))
		for _, input := range inst.Inputs {
			srcs = append(srcs, input.String())
		}
		result += " " + strings.Join(srcs, ", ")
	}

	if inst.Name != "" {
		result += fmt.Sprintf(" (%s)", inst.Name)
	}

	if inst.Pinned {
		result += " [pinned]"
	}

	if inst.Block != NoBlock && inst.Block != inst.Home {
		result += fmt.Sprintf(
			" [moved from %s]",
			graph.Blocks[inst.Home].Label)
	}

	return result
}
