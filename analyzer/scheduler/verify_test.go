package scheduler

import (
	"strings"
	"testing"

	"github.com/pattyshack/starling/ast/asttest"
)

func TestCheckDominance(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(t *testing.T, schedule *Schedule)
		message string
	}{
		{
			name:   "legal",
			modify: func(*testing.T, *Schedule) {},
		},
		{
			name: "use before definition block",
			modify: func(t *testing.T, schedule *Schedule) {
				graph := schedule.DomTree.Graph()
				next := graph.Instruction(asttest.Lookup(graph, "next"))
				next.Block = asttest.BlockByLabel(graph, "entry")
				next.Position = 0
			},
			message: "does not dominate its use",
		},
		{
			name: "pinned moved",
			modify: func(t *testing.T, schedule *Schedule) {
				graph := schedule.DomTree.Graph()
				call := graph.Instruction(asttest.Lookup(graph, "equals"))
				call.Block = asttest.BlockByLabel(graph, "header")
			},
			message: "pinned v11(equals) moved out of body",
		},
		{
			name: "same block order",
			modify: func(t *testing.T, schedule *Schedule) {
				graph := schedule.DomTree.Graph()
				same := graph.Instruction(asttest.Lookup(graph, "same"))
				field := graph.Instruction(asttest.Lookup(graph, "field"))
				same.Position, field.Position = field.Position, same.Position
			},
			message: "is scheduled before its input",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			graph := asttest.LoopWithEquals()
			schedule := runSchedule(t, graph, DefaultConfig())
			test.modify(t, schedule)

			errs := CheckDominance(graph, schedule.DomTree)
			if test.message == "" {
				if len(errs) != 0 {
					t.Errorf("unexpected errors: %v", errs)
				}
				return
			}

			found := false
			for _, err := range errs {
				if strings.Contains(err.Error(), test.message) {
					found = true
				}
			}

			if !found {
				t.Errorf("expected %q in %v", test.message, errs)
			}
		})
	}
}
