package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pattyshack/gt/parseutil"
	"gopkg.in/yaml.v3"

	"github.com/pattyshack/starling/ast"
)

// Graph file format:
//
//	name: sum
//	blocks:
//	  - label: entry
//	    succs: [loop]
//	    instructions:
//	      - {name: n, op: param, out: [value]}
//	      - {op: jump}
//	  - label: loop
//	    frequency: 10
//	    succs: [loop, exit]
//	    instructions:
//	      - {name: i, op: phi, in: [n, i1], out: [value]}
//	      ...
//
// Inputs refer to named instructions ("name" for the first output, "name.2"
// for the third output).  Outputs use the output kind syntax (value, ref,
// narrow, temp/<type>, temp/<type>! for dataflow mandated temps).  Edges are
// added in block order then successor order; phi inputs follow the
// resulting predecessor order.
type graphDoc struct {
	Name   string      `yaml:"name"`
	Blocks []yaml.Node `yaml:"blocks"`
}

type blockDoc struct {
	Label        string      `yaml:"label"`
	Frequency    *float64    `yaml:"frequency"`
	Succs        []string    `yaml:"succs"`
	Instructions []yaml.Node `yaml:"instructions"`
}

type instructionDoc struct {
	Name   string   `yaml:"name,omitempty"`
	Op     string   `yaml:"op"`
	In     []string `yaml:"in,omitempty,flow"`
	Out    []string `yaml:"out,omitempty,flow"`
	Pinned *bool    `yaml:"pinned,omitempty"`
}

type parser struct {
	fileName string
	emitter  *parseutil.Emitter

	graph *ast.Graph

	labels map[string]ast.BlockID
	names  map[string]ast.InstructionID

	pendingInputs map[ast.InstructionID][]string
}

func (parser *parser) location(node *yaml.Node) parseutil.Location {
	return parseutil.Location{
		FileName: parser.fileName,
		Line:     node.Line,
		Column:   node.Column,
	}
}

func (parser *parser) pos(node *yaml.Node) parseutil.StartEndPos {
	loc := parser.location(node)
	return parseutil.NewStartEndPos(loc, loc)
}

func (parser *parser) parse(content []byte) *ast.Graph {
	root := yaml.Node{}
	err := yaml.Unmarshal(content, &root)
	if err != nil {
		parser.emitter.Emit(
			parseutil.Location{FileName: parser.fileName},
			"invalid graph file: %s",
			err)
		return nil
	}

	doc := graphDoc{}
	err = root.Decode(&doc)
	if err != nil {
		parser.emitter.Emit(parser.location(&root), "invalid graph: %s", err)
		return nil
	}

	if doc.Name == "" {
		doc.Name = parser.fileName
	}

	parser.graph = ast.NewGraph(doc.Name)
	parser.graph.StartEndPos = parser.pos(&root)

	blocks := make([]blockDoc, len(doc.Blocks))
	for idx := range doc.Blocks {
		node := &doc.Blocks[idx]
		err := node.Decode(&blocks[idx])
		if err != nil {
			parser.emitter.Emit(parser.location(node), "invalid block: %s", err)
			return nil
		}

		parser.declareBlock(node, blocks[idx])
	}

	for idx, block := range blocks {
		for _, succ := range block.Succs {
			succId, ok := parser.labels[succ]
			if !ok {
				parser.emitter.Emit(
					parser.location(&doc.Blocks[idx]),
					"undefined block label (%s)",
					succ)
				continue
			}
			parser.graph.AddEdge(ast.BlockID(idx), succId)
		}
	}

	for idx := range blocks {
		for instIdx := range blocks[idx].Instructions {
			parser.declareInstruction(
				ast.BlockID(idx),
				&blocks[idx].Instructions[instIdx])
		}
	}

	for idx := range parser.graph.Instructions {
		parser.resolveInputs(ast.InstructionID(idx))
	}

	if parser.emitter.HasErrors() {
		return nil
	}
	return parser.graph
}

func (parser *parser) declareBlock(node *yaml.Node, doc blockDoc) {
	frequency := 1.0
	if doc.Frequency != nil {
		frequency = *doc.Frequency
	}

	id := parser.graph.NewBlock(doc.Label, frequency)
	block := parser.graph.Block(id)
	block.StartEndPos = parser.pos(node)

	_, ok := parser.labels[block.Label]
	if ok {
		parser.emitter.Emit(
			parser.location(node),
			"duplicate block label (%s)",
			block.Label)
		return
	}
	parser.labels[block.Label] = id
}

func (parser *parser) declareInstruction(block ast.BlockID, node *yaml.Node) {
	doc := instructionDoc{}
	err := node.Decode(&doc)
	if err != nil {
		parser.emitter.Emit(parser.location(node), "invalid instruction: %s", err)
		return
	}

	op := ast.Opcode(doc.Op)
	if !op.IsValid() {
		parser.emitter.Emit(parser.location(node), "unknown opcode (%s)", doc.Op)
		return
	}

	outputs := make([]ast.Output, 0, len(doc.Out))
	for _, str := range doc.Out {
		output, err := ast.ParseOutput(str)
		if err != nil {
			parser.emitter.Emit(parser.location(node), "%s", err)
			return
		}
		outputs = append(outputs, output)
	}

	id := parser.graph.AppendNamed(block, doc.Name, op, nil, outputs...)
	inst := parser.graph.Instruction(id)
	inst.StartEndPos = parser.pos(node)
	if doc.Pinned != nil {
		inst.Pinned = *doc.Pinned
	}

	parser.pendingInputs[id] = doc.In

	if doc.Name == "" {
		return
	}

	_, ok := parser.names[doc.Name]
	if ok {
		parser.emitter.Emit(
			parser.location(node),
			"duplicate instruction name (%s)",
			doc.Name)
		return
	}
	parser.names[doc.Name] = id
}

func (parser *parser) resolveInputs(id ast.InstructionID) {
	inst := parser.graph.Instruction(id)

	inputs := make([]ast.ValueRef, 0, len(parser.pendingInputs[id]))
	for _, name := range parser.pendingInputs[id] {
		index := 0
		base, suffix, found := strings.Cut(name, ".")
		if found {
			var err error
			index, err = strconv.Atoi(suffix)
			if err != nil {
				parser.emitter.Emit(inst.Loc(), "invalid input reference (%s)", name)
				return
			}
		}

		def, ok := parser.names[base]
		if !ok {
			parser.emitter.Emit(inst.Loc(), "undefined instruction (%s)", base)
			return
		}

		inputs = append(inputs, ast.ValueRef{Instruction: def, Index: index})
	}

	parser.graph.SetInputs(id, inputs)
}

// Loads a single graph from yaml.  Returns nil if the file has errors (the
// errors are reported to the emitter).  The graph is not validated.
func Parse(
	fileName string,
	content []byte,
	emitter *parseutil.Emitter,
) *ast.Graph {
	parser := &parser{
		fileName:      fileName,
		emitter:       emitter,
		labels:        map[string]ast.BlockID{},
		names:         map[string]ast.InstructionID{},
		pendingInputs: map[ast.InstructionID][]string{},
	}
	return parser.parse(content)
}

// Formats the graph in the format accepted by Parse.  Unnamed instructions
// are given v<id> names.
func Format(graph *ast.Graph) ([]byte, error) {
	name := func(id ast.InstructionID) string {
		inst := graph.Instruction(id)
		if inst.Name != "" {
			return inst.Name
		}
		return fmt.Sprintf("v%d", id)
	}

	type formattedBlock struct {
		Label        string            `yaml:"label"`
		Frequency    float64           `yaml:"frequency"`
		Succs        []string          `yaml:"succs,omitempty,flow"`
		Instructions []instructionDoc `yaml:"instructions"`
	}

	type formattedGraph struct {
		Name   string           `yaml:"name"`
		Blocks []formattedBlock `yaml:"blocks"`
	}

	result := formattedGraph{Name: graph.Name}
	for idx := range graph.Blocks {
		block := graph.Block(ast.BlockID(idx))
		formatted := formattedBlock{
			Label:     block.Label,
			Frequency: block.Frequency,
		}

		for _, succ := range block.Succs {
			formatted.Succs = append(formatted.Succs, graph.Block(succ).Label)
		}

		for _, id := range block.Members {
			inst := graph.Instruction(id)
			doc := instructionDoc{
				Name: name(id),
				Op:   string(inst.Opcode),
			}

			for _, input := range inst.Inputs {
				ref := name(input.Instruction)
				if input.Index > 0 {
					ref = fmt.Sprintf("%s.%d", ref, input.Index)
				}
				doc.In = append(doc.In, ref)
			}

			for _, output := range inst.Outputs {
				doc.Out = append(doc.Out, output.String())
			}

			if inst.Pinned != inst.Opcode.IsPinned() {
				pinned := inst.Pinned
				doc.Pinned = &pinned
			}

			formatted.Instructions = append(formatted.Instructions, doc)
		}

		result.Blocks = append(result.Blocks, formatted)
	}

	return yaml.Marshal(result)
}
