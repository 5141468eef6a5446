package rootmap

import (
	"fmt"
	"strings"

	"github.com/pattyshack/starling/architecture"
	"github.com/pattyshack/starling/ast"
)

// A location holding a collector visible reference at a safepoint.
type Entry struct {
	Value ast.ValueRef

	// Reference or NarrowReference.
	Type ast.OutputKind

	Location *architecture.DataLocation
}

func (entry Entry) String() string {
	return fmt.Sprintf("%s:%s@%s", entry.Value, entry.Type, entry.Location)
}

type ExclusionReason string

const (
	// A temp holding non-reference data is live across the safepoint.
	NonReferenceTemp = ExclusionReason("non-reference temp")

	// A reference temp that is a scheduling artifact is consumed by the
	// safepoint itself and is dead afterward.
	ConsumedBySafepoint = ExclusionReason("temp consumed by safepoint")

	// A non-mandated reference temp whose generator and last consumer
	// surround the safepoint.  The schedule verifier rejects such schedules
	// before code is emitted.
	EnclosesSafepoint = ExclusionReason("temp encloses safepoint")
)

// A temp that was deliberately left out of the root map.
type Exclusion struct {
	Value  ast.ValueRef
	Reason ExclusionReason
}

func (exclusion Exclusion) String() string {
	return fmt.Sprintf("%s (%s)", exclusion.Value, exclusion.Reason)
}

// The set of root locations the collector must scan when the method is
// stopped at the safepoint.
type RootMap struct {
	Safepoint ast.InstructionID
	Block     ast.BlockID
	Position  int

	// Sorted by value.
	Entries []Entry

	// Sorted by value.
	Excluded []Exclusion
}

// The schedule independent content of the root map: the (type, location)
// pairs, in canonical order.
func (rootMap *RootMap) Slots() []string {
	slots := make([]string, 0, len(rootMap.Entries))
	for _, entry := range rootMap.Entries {
		slots = append(slots, fmt.Sprintf("%s@%s", entry.Type, entry.Location))
	}
	return slots
}

func (rootMap *RootMap) Values() []ast.ValueRef {
	values := make([]ast.ValueRef, 0, len(rootMap.Entries))
	for _, entry := range rootMap.Entries {
		values = append(values, entry.Value)
	}
	return values
}

func (rootMap *RootMap) Contains(value ast.ValueRef) bool {
	for _, entry := range rootMap.Entries {
		if entry.Value == value {
			return true
		}
	}
	return false
}

func (rootMap *RootMap) ContainsType(kind ast.OutputKind) bool {
	for _, entry := range rootMap.Entries {
		if entry.Type == kind {
			return true
		}
	}
	return false
}

func (rootMap *RootMap) String() string {
	entries := make([]string, 0, len(rootMap.Entries))
	for _, entry := range rootMap.Entries {
		entries = append(entries, entry.String())
	}

	result := fmt.Sprintf(
		"v%d @ b%d:%d [%s]",
		rootMap.Safepoint,
		rootMap.Block,
		rootMap.Position,
		strings.Join(entries, " "))

	if len(rootMap.Excluded) > 0 {
		excluded := make([]string, 0, len(rootMap.Excluded))
		for _, exclusion := range rootMap.Excluded {
			excluded = append(excluded, exclusion.String())
		}
		result += " excluded: " + strings.Join(excluded, ", ")
	}

	return result
}
