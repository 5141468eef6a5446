package scheduler

import (
	"reflect"
	"strings"
	"testing"

	"github.com/pattyshack/gt/parseutil"

	"github.com/pattyshack/starling/analyzer/util"
	"github.com/pattyshack/starling/ast"
	"github.com/pattyshack/starling/ast/asttest"
)

// entry: p = param ref; g = load p (ref, temp/ref); c = call g.0;
//
//	u = compare_ref g.1 p; save = store p u; return
//
// Without the temp, u would be scheduled after the call (as late as
// possible).  The temp pulls u in front of the call.
func multiOutputTempGraph() *ast.Graph {
	graph := ast.NewGraph("multi-output")
	entry := graph.NewBlock("entry", 1)

	p := graph.AppendNamed(entry, "p", ast.Param, nil, ast.ReferenceOutput())
	g := graph.AppendNamed(
		entry,
		"g",
		ast.Load,
		[]ast.ValueRef{ast.Out(p)},
		ast.ReferenceOutput(),
		ast.TempOutput(ast.Reference))
	graph.AppendNamed(entry, "c", ast.Call, []ast.ValueRef{ast.Out(g)})
	u := graph.AppendNamed(
		entry,
		"u",
		ast.CompareRef,
		[]ast.ValueRef{{Instruction: g, Index: 1}, ast.Out(p)},
		ast.ValueOutput())
	graph.AppendNamed(
		entry,
		"save",
		ast.Store,
		[]ast.ValueRef{ast.Out(p), ast.Out(u)})
	graph.AppendNamed(entry, "ret", ast.Return, nil)

	return graph
}

func TestLocalCodeMotionGluesTempConsumers(t *testing.T) {
	for _, config := range []Config{DefaultConfig(), StressConfig(1), StressConfig(2)} {
		t.Run(config.String(), func(t *testing.T) {
			graph := multiOutputTempGraph()
			runSchedule(t, graph, config)

			expected := []string{"p", "g", "u", "c", "save", "ret"}
			actual := blockOrder(graph, "entry")
			if !reflect.DeepEqual(actual, expected) {
				t.Errorf("expected %v, got %v", expected, actual)
			}
		})
	}
}

func TestLocalCodeMotionTempNeverSpansCall(t *testing.T) {
	orders := map[string]struct{}{}
	for seed := int64(1); seed <= 32; seed++ {
		graph := asttest.LoopWithEquals()
		schedule := runSchedule(t, graph, Config{Seed: seed, PerturbLCM: true})

		field := graph.Instruction(asttest.Lookup(graph, "field"))
		same := graph.Instruction(asttest.Lookup(graph, "same"))
		call := graph.Instruction(asttest.Lookup(graph, "equals"))
		if !(field.Position < same.Position && same.Position < call.Position) {
			t.Errorf(
				"seed %d: expected field < same < equals, got %d %d %d",
				seed,
				field.Position,
				same.Position,
				call.Position)
		}

		binding, _ := schedule.Tracker.Binding(ast.Out(field.ID))
		if schedule.Tracker.Encloses(binding, call.ID) {
			t.Errorf("seed %d: temp encloses the call", seed)
		}

		order := blockOrder(graph, "body")
		if order[len(order)-1] != "latch" {
			t.Errorf("seed %d: control instruction is not last: %v", seed, order)
		}
		orders[strings.Join(order, " ")] = struct{}{}
	}

	if len(orders) < 2 {
		t.Errorf("expected perturbation to produce different orders: %v", orders)
	}
}

func TestLocalCodeMotionKeepsSideEffectOrder(t *testing.T) {
	graph := ast.NewGraph("side-effects")
	entry := graph.NewBlock("entry", 1)

	p := graph.AppendNamed(entry, "p", ast.Param, nil, ast.ReferenceOutput())
	a := graph.AppendNamed(entry, "a", ast.Constant, nil, ast.ValueOutput())
	b := graph.AppendNamed(entry, "b", ast.Constant, nil, ast.ValueOutput())
	graph.AppendNamed(entry, "first", ast.Store, []ast.ValueRef{ast.Out(p), ast.Out(b)})
	graph.AppendNamed(entry, "poll", ast.Poll, nil)
	graph.AppendNamed(entry, "second", ast.Store, []ast.ValueRef{ast.Out(p), ast.Out(a)})
	graph.AppendNamed(entry, "ret", ast.Return, nil)

	for seed := int64(1); seed <= 8; seed++ {
		graph := graph.Clone()
		runSchedule(t, graph, Config{Seed: seed, PerturbLCM: true})

		order := blockOrder(graph, "entry")
		position := map[string]int{}
		for idx, name := range order {
			position[name] = idx
		}

		if !(position["first"] < position["poll"] &&
			position["poll"] < position["second"] &&
			position["second"] < position["ret"]) {
			t.Errorf("seed %d: side effects reordered: %v", seed, order)
		}

		// a is only needed after the poll.
		if position["a"] < position["poll"] {
			t.Errorf("seed %d: a scheduled before the poll: %v", seed, order)
		}
	}
}

func TestLocalCodeMotionForcedCrossing(t *testing.T) {
	for _, config := range []Config{DefaultConfig(), StressConfig(1)} {
		t.Run(config.String(), func(t *testing.T) {
			graph := asttest.ForcedCrossing(false)
			emitter := &parseutil.Emitter{}
			if Run(graph, config, emitter) != nil {
				t.Fatalf("expected scheduling to fail")
			}

			errs := emitter.Errors()
			if len(errs) != 1 {
				t.Fatalf("expected exactly one error, got %v", errs)
			}

			kind, _ := util.FirstErrorKind(errs)
			if kind != util.RootAccuracy {
				t.Errorf("expected root accuracy violation, got %v", errs)
			}

			if !strings.Contains(errs[0].Error(), "is not dataflow mandated") {
				t.Errorf("unexpected message: %v", errs[0])
			}
		})
	}
}

func TestLocalCodeMotionMandatedTempCrossing(t *testing.T) {
	graph := asttest.ForcedCrossing(true)
	runSchedule(t, graph, DefaultConfig())

	expected := []string{"obj", "tmp", "call", "picked", "ret"}
	actual := blockOrder(graph, "entry")
	if !reflect.DeepEqual(actual, expected) {
		t.Errorf("expected %v, got %v", expected, actual)
	}
}

func TestLocalCodeMotionSideEffectCycle(t *testing.T) {
	// The poll is emitted before the store, but the store's input is computed
	// from the poll's output.
	graph := ast.NewGraph("side-effect-cycle")
	entry := graph.NewBlock("entry", 1)

	p := graph.AppendNamed(entry, "p", ast.Param, nil, ast.ReferenceOutput())
	save := graph.AppendNamed(entry, "save", ast.Store, nil)
	r := graph.AppendNamed(entry, "call", ast.Call, nil, ast.ValueOutput())
	graph.AppendNamed(entry, "ret", ast.Return, nil)
	graph.SetInputs(save, []ast.ValueRef{ast.Out(p), ast.Out(r)})

	emitter := &parseutil.Emitter{}
	if Run(graph, DefaultConfig(), emitter) != nil {
		t.Fatalf("expected scheduling to fail")
	}

	if !util.HasErrorKind(emitter.Errors(), util.MalformedGraph) {
		t.Errorf("expected malformed graph, got %v", emitter.Errors())
	}
}

// entry: p = param ref; v = param; old = load p (ref); save = store p v;
//
//	mutate = call p; fresh = load p (ref); both = compare_ref old fresh;
//	return both
func loadsAroundSideEffects() *ast.Graph {
	graph := ast.NewGraph("loads-around-side-effects")
	entry := graph.NewBlock("entry", 1)

	p := graph.AppendNamed(entry, "p", ast.Param, nil, ast.ReferenceOutput())
	v := graph.AppendNamed(entry, "v", ast.Param, nil, ast.ValueOutput())
	old := graph.AppendNamed(
		entry,
		"old",
		ast.Load,
		[]ast.ValueRef{ast.Out(p)},
		ast.ReferenceOutput())
	graph.AppendNamed(entry, "save", ast.Store, []ast.ValueRef{ast.Out(p), ast.Out(v)})
	graph.AppendNamed(entry, "mutate", ast.Call, []ast.ValueRef{ast.Out(p)})
	fresh := graph.AppendNamed(
		entry,
		"fresh",
		ast.Load,
		[]ast.ValueRef{ast.Out(p)},
		ast.ReferenceOutput())
	both := graph.AppendNamed(
		entry,
		"both",
		ast.CompareRef,
		[]ast.ValueRef{ast.Out(old), ast.Out(fresh)},
		ast.ValueOutput())
	graph.AppendNamed(entry, "ret", ast.Return, []ast.ValueRef{ast.Out(both)})

	return graph
}

func TestLocalCodeMotionKeepsLoadsBetweenSideEffects(t *testing.T) {
	graph := loadsAroundSideEffects()
	runSchedule(t, graph, DefaultConfig())

	expected := []string{"p", "v", "old", "save", "mutate", "fresh", "both", "ret"}
	actual := blockOrder(graph, "entry")
	if !reflect.DeepEqual(actual, expected) {
		t.Errorf("expected %v, got %v", expected, actual)
	}

	for seed := int64(1); seed <= 16; seed++ {
		graph := loadsAroundSideEffects()
		runSchedule(t, graph, StressConfig(seed))

		position := map[string]int{}
		for idx, name := range blockOrder(graph, "entry") {
			position[name] = idx
		}

		if !(position["old"] < position["save"] &&
			position["save"] < position["mutate"] &&
			position["mutate"] < position["fresh"]) {
			t.Errorf(
				"seed %d: loads reordered across side effects: %v",
				seed,
				blockOrder(graph, "entry"))
		}
	}
}
