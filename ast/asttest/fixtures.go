// Package asttest provides small instruction graphs shared by the analyzer
// test suites.
package asttest

import (
	"fmt"

	"github.com/pattyshack/starling/ast"
)

// Returns the id of the instruction with the given name.  Panics if the
// graph has no such instruction.
func Lookup(graph *ast.Graph, name string) ast.InstructionID {
	for idx := range graph.Instructions {
		if graph.Instructions[idx].Name == name {
			return ast.InstructionID(idx)
		}
	}
	panic(fmt.Sprintf("instruction not found: %s", name))
}

func Value(graph *ast.Graph, name string) ast.ValueRef {
	return ast.Out(Lookup(graph, name))
}

func BlockByLabel(graph *ast.Graph, label string) ast.BlockID {
	for idx := range graph.Blocks {
		if graph.Blocks[idx].Label == label {
			return ast.BlockID(idx)
		}
	}
	panic(fmt.Sprintf("block not found: %s", label))
}

// A loop walking a chain of objects, comparing each object's narrow field
// with the object itself right before calling equals():
//
//	entry:  obj = param ref; n = param; zero = const; one = const; jump
//	header: i = phi(zero, i1); cur = phi(obj, next); done = compare i n;
//	        branch done [exit, body]
//	body:   field = load_narrow cur (temp/narrow); same = compare_ref field cur;
//	        call equals(cur, same); next = load cur (ref); i1 = add i one;
//	        scaled = mul i n; offset = sub n i; mix = add scaled offset;
//	        mark = store cur mix; jump
//	exit:   return cur
//
// The call is the only safepoint inside the loop, and cur is the only
// reference live across it.  When perturbed, global code motion has no
// alternative placement inside the loop (every loop block reaches the call),
// but local code motion may interleave next, i1 and the mark computation in
// any order after the call.
func LoopWithEquals() *ast.Graph {
	graph := ast.NewGraph("loop-with-equals")

	entry := graph.NewBlock("entry", 1)
	header := graph.NewBlock("header", 10)
	body := graph.NewBlock("body", 9)
	exit := graph.NewBlock("exit", 1)

	graph.AddEdge(entry, header)
	graph.AddEdge(header, exit)
	graph.AddEdge(header, body)
	graph.AddEdge(body, header)

	obj := graph.AppendNamed(entry, "obj", ast.Param, nil, ast.ReferenceOutput())
	n := graph.AppendNamed(entry, "n", ast.Param, nil, ast.ValueOutput())
	zero := graph.AppendNamed(entry, "zero", ast.Constant, nil, ast.ValueOutput())
	one := graph.AppendNamed(entry, "one", ast.Constant, nil, ast.ValueOutput())
	graph.AppendNamed(entry, "enter", ast.Jump, nil)

	i := graph.AppendNamed(header, "i", ast.Phi, nil, ast.ValueOutput())
	cur := graph.AppendNamed(header, "cur", ast.Phi, nil, ast.ReferenceOutput())
	done := graph.AppendNamed(
		header,
		"done",
		ast.Compare,
		[]ast.ValueRef{ast.Out(i), ast.Out(n)},
		ast.ValueOutput())
	graph.AppendNamed(header, "test", ast.Branch, []ast.ValueRef{ast.Out(done)})

	field := graph.AppendNamed(
		body,
		"field",
		ast.LoadNarrow,
		[]ast.ValueRef{ast.Out(cur)},
		ast.TempOutput(ast.NarrowReference))
	same := graph.AppendNamed(
		body,
		"same",
		ast.CompareRef,
		[]ast.ValueRef{ast.Out(field), ast.Out(cur)},
		ast.ValueOutput())
	graph.AppendNamed(
		body,
		"equals",
		ast.Call,
		[]ast.ValueRef{ast.Out(cur), ast.Out(same)})
	next := graph.AppendNamed(
		body,
		"next",
		ast.Load,
		[]ast.ValueRef{ast.Out(cur)},
		ast.ReferenceOutput())
	i1 := graph.AppendNamed(
		body,
		"i1",
		ast.Add,
		[]ast.ValueRef{ast.Out(i), ast.Out(one)},
		ast.ValueOutput())
	scaled := graph.AppendNamed(
		body,
		"scaled",
		ast.Mul,
		[]ast.ValueRef{ast.Out(i), ast.Out(n)},
		ast.ValueOutput())
	offset := graph.AppendNamed(
		body,
		"offset",
		ast.Sub,
		[]ast.ValueRef{ast.Out(n), ast.Out(i)},
		ast.ValueOutput())
	mix := graph.AppendNamed(
		body,
		"mix",
		ast.Add,
		[]ast.ValueRef{ast.Out(scaled), ast.Out(offset)},
		ast.ValueOutput())
	graph.AppendNamed(
		body,
		"mark",
		ast.Store,
		[]ast.ValueRef{ast.Out(cur), ast.Out(mix)})
	graph.AppendNamed(body, "latch", ast.Jump, nil)

	graph.AppendNamed(exit, "ret", ast.Return, []ast.ValueRef{ast.Out(cur)})

	graph.SetInputs(i, []ast.ValueRef{ast.Out(zero), ast.Out(i1)})
	graph.SetInputs(cur, []ast.ValueRef{ast.Out(obj), ast.Out(next)})

	return graph
}

// A single block method where a reference temp must be live across a call:
//
//	entry: obj = param ref; tmp = load obj (temp/ref); r = call(tmp);
//	       picked = select r tmp obj (ref); return picked
//
// The call depends on tmp's generator and the select depends on the call, so
// no legal order keeps tmp on one side of the call.  If mandated is false,
// the compilation must fail with a root accuracy violation.
func ForcedCrossing(mandated bool) *ast.Graph {
	graph := ast.NewGraph("forced-crossing")
	entry := graph.NewBlock("entry", 1)

	tempOutput := ast.TempOutput(ast.Reference)
	if mandated {
		tempOutput = ast.MandatedTempOutput(ast.Reference)
	}

	obj := graph.AppendNamed(entry, "obj", ast.Param, nil, ast.ReferenceOutput())
	tmp := graph.AppendNamed(
		entry,
		"tmp",
		ast.Load,
		[]ast.ValueRef{ast.Out(obj)},
		tempOutput)
	r := graph.AppendNamed(
		entry,
		"call",
		ast.Call,
		[]ast.ValueRef{ast.Out(tmp)},
		ast.ValueOutput())
	picked := graph.AppendNamed(
		entry,
		"picked",
		ast.Select,
		[]ast.ValueRef{ast.Out(r), ast.Out(tmp), ast.Out(obj)},
		ast.ReferenceOutput())
	graph.AppendNamed(entry, "ret", ast.Return, []ast.ValueRef{ast.Out(picked)})

	return graph
}

// A safepoint free diamond whose join stores a sum computed from the entry
// block's params:
//
//	entry: a = param; b = param; p = param ref; c = compare a b;
//	       branch c [left, right]
//	left:  jump merge
//	right: jump merge
//	merge: sum = add a b; store p sum; jump exit
//	exit:  return
//
// sum may legally live in entry or merge, both at loop depth zero with no
// safepoint in between.
func Diamond() *ast.Graph {
	graph := ast.NewGraph("diamond")

	entry := graph.NewBlock("entry", 1)
	left := graph.NewBlock("left", 0.5)
	right := graph.NewBlock("right", 0.5)
	merge := graph.NewBlock("merge", 1)
	exit := graph.NewBlock("exit", 1)

	graph.AddEdge(entry, left)
	graph.AddEdge(entry, right)
	graph.AddEdge(left, merge)
	graph.AddEdge(right, merge)
	graph.AddEdge(merge, exit)

	a := graph.AppendNamed(entry, "a", ast.Param, nil, ast.ValueOutput())
	b := graph.AppendNamed(entry, "b", ast.Param, nil, ast.ValueOutput())
	p := graph.AppendNamed(entry, "p", ast.Param, nil, ast.ReferenceOutput())
	c := graph.AppendNamed(
		entry,
		"c",
		ast.Compare,
		[]ast.ValueRef{ast.Out(a), ast.Out(b)},
		ast.ValueOutput())
	graph.AppendNamed(entry, "split", ast.Branch, []ast.ValueRef{ast.Out(c)})

	graph.AppendNamed(left, "left-jump", ast.Jump, nil)
	graph.AppendNamed(right, "right-jump", ast.Jump, nil)

	sum := graph.AppendNamed(
		merge,
		"sum",
		ast.Add,
		[]ast.ValueRef{ast.Out(a), ast.Out(b)},
		ast.ValueOutput())
	graph.AppendNamed(
		merge,
		"save",
		ast.Store,
		[]ast.ValueRef{ast.Out(p), ast.Out(sum)})
	graph.AppendNamed(merge, "join", ast.Jump, nil)

	graph.AppendNamed(exit, "ret", ast.Return, nil)

	return graph
}
