package parser

import (
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/pattyshack/gt/parseutil"

	"github.com/pattyshack/starling/ast"
	"github.com/pattyshack/starling/ast/asttest"
)

const loopGraph = `
name: loop
blocks:
  - label: entry
    succs: [header]
    instructions:
      - {name: obj, op: param, out: [ref]}
      - {name: n, op: param, out: [value]}
      - {name: zero, op: const, out: [value]}
      - {name: one, op: const, out: [value]}
      - {op: jump}
  - label: header
    frequency: 10
    succs: [exit, body]
    instructions:
      - {name: i, op: phi, in: [zero, i1], out: [value]}
      - {name: cur, op: phi, in: [obj, next], out: [ref]}
      - {name: done, op: compare, in: [i, n], out: [value]}
      - {op: branch, in: [done]}
  - label: body
    frequency: 9
    succs: [header]
    instructions:
      - {name: field, op: load_narrow, in: [cur], out: [temp/narrow]}
      - {name: same, op: compare_ref, in: [field, cur], out: [value]}
      - {name: equals, op: call, in: [cur, same]}
      - {name: next, op: load, in: [cur], out: [ref]}
      - {name: i1, op: add, in: [i, one], out: [value]}
      - {name: scaled, op: mul, in: [i, n], out: [value]}
      - {name: offset, op: sub, in: [n, i], out: [value]}
      - {name: mix, op: add, in: [scaled, offset], out: [value]}
      - {name: mark, op: store, in: [cur, mix]}
      - {op: jump}
  - label: exit
    instructions:
      - {name: ret, op: return, in: [cur]}
`

func TestParseLoop(t *testing.T) {
	emitter := &parseutil.Emitter{}
	graph := Parse("loop.yaml", []byte(loopGraph), emitter)
	if graph == nil || emitter.HasErrors() {
		t.Fatalf("unexpected errors: %v", emitter.Errors())
	}

	expected := asttest.LoopWithEquals()

	if graph.Name != "loop" || graph.NumBlocks() != expected.NumBlocks() {
		t.Fatalf("unexpected graph: %s", ast.GraphString(graph))
	}

	for idx := range expected.Blocks {
		expectedBlock := expected.Block(ast.BlockID(idx))
		block := graph.Block(ast.BlockID(idx))

		if block.Label != expectedBlock.Label ||
			block.Frequency != expectedBlock.Frequency ||
			!reflect.DeepEqual(block.Preds, expectedBlock.Preds) ||
			!reflect.DeepEqual(block.Succs, expectedBlock.Succs) {
			t.Errorf("block %d differs", idx)
		}
	}

	// The yaml leaves the jumps and the branch unnamed.
	for idx := range expected.Instructions {
		expectedInst := expected.Instruction(ast.InstructionID(idx))
		if expectedInst.IsControl() && expectedInst.Name != "ret" {
			continue
		}

		inst := graph.Instruction(asttest.Lookup(graph, expectedInst.Name))
		if inst.Opcode != expectedInst.Opcode ||
			inst.Pinned != expectedInst.Pinned ||
			!slices.Equal(inst.Outputs, expectedInst.Outputs) {
			t.Errorf("%s differs", expectedInst.Name)
		}

		inputs := []string{}
		for _, input := range inst.Inputs {
			inputs = append(inputs, graph.Instruction(input.Instruction).Name)
		}

		expectedInputs := []string{}
		for _, input := range expectedInst.Inputs {
			expectedInputs = append(
				expectedInputs,
				expected.Instruction(input.Instruction).Name)
		}

		if !reflect.DeepEqual(inputs, expectedInputs) {
			t.Errorf(
				"%s: expected inputs %v, got %v",
				expectedInst.Name,
				expectedInputs,
				inputs)
		}
	}

	if graph.Block(asttest.BlockByLabel(graph, "exit")).Frequency != 1 {
		t.Errorf("expected default frequency")
	}
}

func TestParseMultipleOutputs(t *testing.T) {
	content := `
name: multi
blocks:
  - label: entry
    instructions:
      - {name: p, op: param, out: [ref]}
      - {name: g, op: load, in: [p], out: [ref, "temp/ref!"]}
      - {name: u, op: select, in: [g, g.1, p], out: [ref], pinned: true}
      - {op: return, in: [u]}
`

	emitter := &parseutil.Emitter{}
	graph := Parse("multi.yaml", []byte(content), emitter)
	if graph == nil {
		t.Fatalf("unexpected errors: %v", emitter.Errors())
	}

	g := asttest.Lookup(graph, "g")
	u := graph.Instruction(asttest.Lookup(graph, "u"))

	expectedInputs := []ast.ValueRef{
		{Instruction: g},
		{Instruction: g, Index: 1},
		asttest.Value(graph, "p"),
	}
	if !reflect.DeepEqual(u.Inputs, expectedInputs) {
		t.Errorf("expected %v, got %v", expectedInputs, u.Inputs)
	}

	if !u.Pinned {
		t.Errorf("expected explicit pin")
	}

	expectedOutputs := []ast.Output{
		ast.ReferenceOutput(),
		ast.MandatedTempOutput(ast.Reference),
	}
	if !reflect.DeepEqual(graph.Instruction(g).Outputs, expectedOutputs) {
		t.Errorf("expected %v, got %v", expectedOutputs, graph.Instruction(g).Outputs)
	}

	if graph.Block(0).Label != "entry" {
		t.Errorf("unexpected label")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		message string
	}{
		{
			name:    "invalid yaml",
			content: "blocks: [",
			message: "invalid graph file",
		},
		{
			name: "duplicate label",
			content: `
blocks:
  - label: entry
    instructions: [{op: return}]
  - label: entry
    instructions: [{op: return}]
`,
			message: "duplicate block label (entry)",
		},
		{
			name: "undefined successor",
			content: `
blocks:
  - label: entry
    succs: [nowhere]
    instructions: [{op: jump}]
`,
			message: "undefined block label (nowhere)",
		},
		{
			name: "unknown opcode",
			content: `
blocks:
  - label: entry
    instructions: [{op: frobnicate}, {op: return}]
`,
			message: "unknown opcode (frobnicate)",
		},
		{
			name: "invalid output",
			content: `
blocks:
  - label: entry
    instructions: [{name: a, op: param, out: [bogus]}, {op: return}]
`,
			message: "bogus",
		},
		{
			name: "duplicate name",
			content: `
blocks:
  - label: entry
    instructions:
      - {name: a, op: param, out: [value]}
      - {name: a, op: param, out: [value]}
      - {op: return}
`,
			message: "duplicate instruction name (a)",
		},
		{
			name: "undefined input",
			content: `
blocks:
  - label: entry
    instructions: [{op: return, in: [missing]}]
`,
			message: "undefined instruction (missing)",
		},
		{
			name: "invalid input index",
			content: `
blocks:
  - label: entry
    instructions:
      - {name: a, op: param, out: [value]}
      - {op: return, in: [a.x]}
`,
			message: "invalid input reference (a.x)",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			emitter := &parseutil.Emitter{}
			graph := Parse("bad.yaml", []byte(test.content), emitter)
			if graph != nil {
				t.Errorf("expected nil graph")
			}

			found := false
			for _, err := range emitter.Errors() {
				if strings.Contains(err.Error(), test.message) {
					found = true
				}
			}

			if !found {
				t.Errorf("expected %q in %v", test.message, emitter.Errors())
			}
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	original := asttest.LoopWithEquals()

	content, err := Format(original)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	emitter := &parseutil.Emitter{}
	parsed := Parse("formatted.yaml", content, emitter)
	if parsed == nil {
		t.Fatalf("unexpected errors: %v\n%s", emitter.Errors(), content)
	}

	expected := ast.GraphString(original)
	actual := ast.GraphString(parsed)
	if expected != actual {
		t.Errorf("expected:\n%s\ngot:\n%s", expected, actual)
	}
}
