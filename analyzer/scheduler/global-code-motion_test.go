package scheduler

import (
	"testing"

	"github.com/pattyshack/gt/parseutil"

	"github.com/pattyshack/starling/analyzer/util"
	"github.com/pattyshack/starling/ast"
	"github.com/pattyshack/starling/ast/asttest"
)

func TestGlobalCodeMotionPerturbation(t *testing.T) {
	deterministic := asttest.Diamond()
	runSchedule(t, deterministic, DefaultConfig())
	if placement(deterministic, "sum") != "merge" {
		t.Fatalf(
			"expected sum to stay next to its use, got %s",
			placement(deterministic, "sum"))
	}

	seen := map[string]struct{}{}
	for seed := int64(1); seed <= 32; seed++ {
		graph := asttest.Diamond()
		schedule := runSchedule(
			t,
			graph,
			Config{Seed: seed, PerturbGCM: true})

		block := placement(graph, "sum")
		if block != "merge" && block != "entry" {
			t.Errorf("seed %d: sum placed in %s", seed, block)
		}
		seen[block] = struct{}{}

		if placement(graph, "c") != "entry" || placement(graph, "save") != "merge" {
			t.Errorf("seed %d: moved an instruction without alternatives", seed)
		}

		if errs := CheckDominance(graph, schedule.DomTree); len(errs) != 0 {
			t.Errorf("seed %d: %v", seed, errs)
		}
	}

	if len(seen) != 2 {
		t.Errorf("expected both legal placements across seeds, got %v", seen)
	}
}

func TestGlobalCodeMotionKeepsLoopPlacement(t *testing.T) {
	// Every loop block reaches the call, so no loop instruction has an
	// alternative placement.
	expected := asttest.LoopWithEquals()
	runSchedule(t, expected, DefaultConfig())

	for seed := int64(1); seed <= 16; seed++ {
		graph := asttest.LoopWithEquals()
		runSchedule(t, graph, Config{Seed: seed, PerturbGCM: true})

		for idx := range graph.Instructions {
			if graph.Instructions[idx].Block != expected.Instructions[idx].Block {
				t.Errorf(
					"seed %d: %s moved to %s",
					seed,
					&graph.Instructions[idx],
					graph.Block(graph.Instructions[idx].Block).Label)
			}
		}
	}
}

func TestGlobalCodeMotionTempColocation(t *testing.T) {
	// A pinned temp consumer in a different block than its pinned generator
	// cannot be fixed by code motion.
	graph := ast.NewGraph("split-temp")
	entry := graph.NewBlock("entry", 1)
	next := graph.NewBlock("next", 1)
	graph.AddEdge(entry, next)

	obj := graph.AppendNamed(entry, "obj", ast.Param, nil, ast.ReferenceOutput())
	tmp := graph.AppendNamed(
		entry,
		"tmp",
		ast.Load,
		[]ast.ValueRef{ast.Out(obj)},
		ast.TempOutput(ast.Reference))
	graph.Pin(tmp)
	graph.AppendNamed(entry, "enter", ast.Jump, nil)

	graph.AppendNamed(next, "save", ast.Store, []ast.ValueRef{ast.Out(obj), ast.Out(tmp)})
	graph.AppendNamed(next, "ret", ast.Return, nil)

	emitter := &parseutil.Emitter{}
	if Run(graph, DefaultConfig(), emitter) != nil {
		t.Fatalf("expected scheduling to fail")
	}

	if !util.HasErrorKind(emitter.Errors(), util.RootAccuracy) {
		t.Errorf("expected root accuracy violation, got %v", emitter.Errors())
	}
}

func TestGlobalCodeMotionMovableConsumerFollowsPinnedGenerator(t *testing.T) {
	graph := ast.NewGraph("follow")
	entry := graph.NewBlock("entry", 10)
	next := graph.NewBlock("next", 1)
	graph.AddEdge(entry, next)

	obj := graph.AppendNamed(entry, "obj", ast.Param, nil, ast.ReferenceOutput())
	tmp := graph.AppendNamed(
		entry,
		"tmp",
		ast.Load,
		[]ast.ValueRef{ast.Out(obj)},
		ast.TempOutput(ast.NarrowReference))
	graph.Pin(tmp)
	graph.AppendNamed(entry, "enter", ast.Jump, nil)

	// Emitted into next, which is also the cheaper block.
	same := graph.AppendNamed(
		next,
		"same",
		ast.CompareRef,
		[]ast.ValueRef{ast.Out(tmp), ast.Out(obj)},
		ast.ValueOutput())
	graph.AppendNamed(next, "ret", ast.Return, []ast.ValueRef{ast.Out(same)})

	runSchedule(t, graph, DefaultConfig())

	if placement(graph, "same") != "entry" {
		t.Errorf("expected consumer to follow its generator, got %s",
			placement(graph, "same"))
	}
}

func TestGlobalCodeMotionCycle(t *testing.T) {
	graph := ast.NewGraph("cycle")
	entry := graph.NewBlock("entry", 1)

	first := graph.AppendNamed(entry, "first", ast.Add, nil, ast.ValueOutput())
	second := graph.AppendNamed(
		entry,
		"second",
		ast.Add,
		[]ast.ValueRef{ast.Out(first), ast.Out(first)},
		ast.ValueOutput())
	graph.SetInputs(first, []ast.ValueRef{ast.Out(second), ast.Out(second)})
	graph.AppendNamed(entry, "ret", ast.Return, nil)

	emitter := &parseutil.Emitter{}
	if Run(graph, DefaultConfig(), emitter) != nil {
		t.Fatalf("expected scheduling to fail")
	}

	kind, _ := util.FirstErrorKind(emitter.Errors())
	if kind != util.MalformedGraph {
		t.Errorf("expected malformed graph, got %v", emitter.Errors())
	}
}

func TestGlobalCodeMotionMissingDominance(t *testing.T) {
	graph := ast.NewGraph("missing-dominance")
	entry := graph.NewBlock("entry", 1)
	left := graph.NewBlock("left", 1)
	right := graph.NewBlock("right", 1)
	merge := graph.NewBlock("merge", 1)
	graph.AddEdge(entry, left)
	graph.AddEdge(entry, right)
	graph.AddEdge(left, merge)
	graph.AddEdge(right, merge)

	a := graph.AppendNamed(entry, "a", ast.Param, nil, ast.ValueOutput())
	graph.AppendNamed(entry, "split", ast.Branch, []ast.ValueRef{ast.Out(a)})

	b := graph.AppendNamed(left, "b", ast.Param, nil, ast.ValueOutput())
	graph.AppendNamed(left, "left-jump", ast.Jump, nil)
	c := graph.AppendNamed(right, "c", ast.Param, nil, ast.ValueOutput())
	graph.AppendNamed(right, "right-jump", ast.Jump, nil)

	sum := graph.AppendNamed(
		merge,
		"sum",
		ast.Add,
		[]ast.ValueRef{ast.Out(b), ast.Out(c)},
		ast.ValueOutput())
	graph.AppendNamed(merge, "ret", ast.Return, []ast.ValueRef{ast.Out(sum)})

	emitter := &parseutil.Emitter{}
	if Run(graph, DefaultConfig(), emitter) != nil {
		t.Fatalf("expected scheduling to fail")
	}

	if !util.HasErrorKind(emitter.Errors(), util.MalformedGraph) {
		t.Errorf("expected malformed graph, got %v", emitter.Errors())
	}
}

// entry:  p = param ref; n = param; zero = const; jump
// header: i = phi(zero, i1); done = compare i n; branch done [exit, body]
// body:   size = array_length p; i1 = add i size; (save = store p i1); jump
// exit:   return
func loopInvariantLoad(withStore bool) *ast.Graph {
	graph := ast.NewGraph("loop-invariant-load")

	entry := graph.NewBlock("entry", 1)
	header := graph.NewBlock("header", 10)
	body := graph.NewBlock("body", 9)
	exit := graph.NewBlock("exit", 1)

	graph.AddEdge(entry, header)
	graph.AddEdge(header, exit)
	graph.AddEdge(header, body)
	graph.AddEdge(body, header)

	p := graph.AppendNamed(entry, "p", ast.Param, nil, ast.ReferenceOutput())
	n := graph.AppendNamed(entry, "n", ast.Param, nil, ast.ValueOutput())
	zero := graph.AppendNamed(entry, "zero", ast.Constant, nil, ast.ValueOutput())
	graph.AppendNamed(entry, "enter", ast.Jump, nil)

	i := graph.AppendNamed(header, "i", ast.Phi, nil, ast.ValueOutput())
	done := graph.AppendNamed(
		header,
		"done",
		ast.Compare,
		[]ast.ValueRef{ast.Out(i), ast.Out(n)},
		ast.ValueOutput())
	graph.AppendNamed(header, "test", ast.Branch, []ast.ValueRef{ast.Out(done)})

	size := graph.AppendNamed(
		body,
		"size",
		ast.ArrayLength,
		[]ast.ValueRef{ast.Out(p)},
		ast.ValueOutput())
	i1 := graph.AppendNamed(
		body,
		"i1",
		ast.Add,
		[]ast.ValueRef{ast.Out(i), ast.Out(size)},
		ast.ValueOutput())
	if withStore {
		graph.AppendNamed(body, "save", ast.Store, []ast.ValueRef{ast.Out(p), ast.Out(i1)})
	}
	graph.AppendNamed(body, "latch", ast.Jump, nil)

	graph.AppendNamed(exit, "ret", ast.Return, nil)

	graph.SetInputs(i, []ast.ValueRef{ast.Out(zero), ast.Out(i1)})

	return graph
}

func TestGlobalCodeMotionLoadHoisting(t *testing.T) {
	tests := []struct {
		name      string
		withStore bool
		expected  string
	}{
		{"side effect free loop", false, "entry"},
		{"loop with store", true, "body"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			configs := []Config{DefaultConfig()}
			for seed := int64(1); seed <= 8; seed++ {
				configs = append(configs, StressConfig(seed))
			}

			for _, config := range configs {
				graph := loopInvariantLoad(test.withStore)
				runSchedule(t, graph, config)

				if placement(graph, "size") != test.expected {
					t.Errorf(
						"%s: expected size in %s, got %s",
						config,
						test.expected,
						placement(graph, "size"))
				}
			}
		})
	}
}

func TestGlobalCodeMotionSplitValueTemp(t *testing.T) {
	// A scratch value temp consumed in two blocks is a construction error,
	// not a root accuracy problem.
	graph := ast.NewGraph("split-value-temp")
	entry := graph.NewBlock("entry", 1)
	next := graph.NewBlock("next", 1)
	graph.AddEdge(entry, next)

	obj := graph.AppendNamed(entry, "obj", ast.Param, nil, ast.ReferenceOutput())
	scratch := graph.AppendNamed(
		entry,
		"scratch",
		ast.MachTemp,
		nil,
		ast.TempOutput(ast.Value))
	graph.AppendNamed(entry, "first", ast.Store, []ast.ValueRef{ast.Out(obj), ast.Out(scratch)})
	graph.AppendNamed(entry, "enter", ast.Jump, nil)

	graph.AppendNamed(next, "second", ast.Store, []ast.ValueRef{ast.Out(obj), ast.Out(scratch)})
	graph.AppendNamed(next, "ret", ast.Return, nil)

	emitter := &parseutil.Emitter{}
	if Run(graph, DefaultConfig(), emitter) != nil {
		t.Fatalf("expected scheduling to fail")
	}

	kind, ok := util.FirstErrorKind(emitter.Errors())
	if !ok || kind != util.MalformedGraph {
		t.Errorf("expected malformed graph, got %v", emitter.Errors())
	}

	if util.HasErrorKind(emitter.Errors(), util.RootAccuracy) {
		t.Errorf("unexpected root accuracy violation: %v", emitter.Errors())
	}
}
