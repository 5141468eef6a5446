package util

import (
	"testing"

	"github.com/pattyshack/starling/ast/asttest"
)

func TestSafepointRegions(t *testing.T) {
	diamond := asttest.Diamond()
	diamondRegions := NewSafepointRegions(diamond)

	loop := asttest.LoopWithEquals()
	loopRegions := NewSafepointRegions(loop)

	tests := []struct {
		name     string
		regions  *SafepointRegions
		first    string
		second   string
		expected bool
	}{
		{"diamond entry to merge", diamondRegions, "entry", "merge", true},
		{"diamond merge to entry", diamondRegions, "merge", "entry", true},
		{"diamond left to right", diamondRegions, "left", "right", true},
		{"diamond into return block", diamondRegions, "merge", "exit", false},
		{"diamond return block", diamondRegions, "exit", "exit", false},
		{"diamond single block", diamondRegions, "left", "left", true},
		{"loop entry to header", loopRegions, "entry", "header", false},
		{"loop header to header", loopRegions, "header", "header", true},
		{"loop header to body", loopRegions, "header", "body", false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			graph := test.regions.graph
			first := asttest.BlockByLabel(graph, test.first)
			second := asttest.BlockByLabel(graph, test.second)

			if test.regions.IsSafepointFree(first, second) != test.expected {
				t.Errorf("expected %v", test.expected)
			}
		})
	}
}

func TestSideEffectRegions(t *testing.T) {
	diamond := asttest.Diamond()
	regions := NewSafepointRegions(diamond)

	tests := []struct {
		first    string
		second   string
		expected bool
	}{
		{"entry", "left", true},
		{"left", "right", true},
		{"entry", "merge", false}, // merge stores
		{"merge", "merge", false},
		{"entry", "entry", true},
	}

	for _, test := range tests {
		t.Run(test.first+" to "+test.second, func(t *testing.T) {
			first := asttest.BlockByLabel(diamond, test.first)
			second := asttest.BlockByLabel(diamond, test.second)

			if regions.IsSideEffectFree(first, second) != test.expected {
				t.Errorf("expected %v", test.expected)
			}
		})
	}
}
