package allocator

import (
	"sort"

	arch "github.com/pattyshack/starling/architecture"
	"github.com/pattyshack/starling/ast"
)

type activeRange struct {
	*LiveRange
	register *arch.Register
}

// Tracks register occupancy during the linear scan.
type RegisterSelector struct {
	free map[*arch.Register]struct{}

	registers []*arch.Register

	// Sorted by (end, value).
	active []activeRange
}

func NewRegisterSelector(registers []*arch.Register) *RegisterSelector {
	free := make(map[*arch.Register]struct{}, len(registers))
	for _, register := range registers {
		free[register] = struct{}{}
	}

	return &RegisterSelector{
		free:      free,
		registers: registers,
	}
}

// Releases the registers of ranges that ended before the given point.
func (selector *RegisterSelector) ExpireBefore(point int) {
	idx := 0
	for ; idx < len(selector.active); idx++ {
		entry := selector.active[idx]
		if entry.End >= point {
			break
		}
		selector.free[entry.register] = struct{}{}
	}
	selector.active = selector.active[idx:]
}

// Returns the lowest indexed free register, or nil if every register is
// occupied.
func (selector *RegisterSelector) selectFree() *arch.Register {
	for _, register := range selector.registers {
		_, ok := selector.free[register]
		if ok {
			return register
		}
	}
	return nil
}

func (selector *RegisterSelector) activate(
	liveRange *LiveRange,
	register *arch.Register,
) {
	delete(selector.free, register)

	selector.active = append(
		selector.active,
		activeRange{
			LiveRange: liveRange,
			register:  register,
		})

	sort.SliceStable(
		selector.active,
		func(i int, j int) bool {
			first := selector.active[i]
			second := selector.active[j]
			if first.End != second.End {
				return first.End < second.End
			}
			return ast.CompareValueRefs(first.Value, second.Value) < 0
		})
}

// Assigns a register to the live range.  When every register is occupied,
// the range (among the active ranges and the new range) whose end is
// furthest away is spilled.  Returns the assigned register (nil if the new
// range is spilled) and the evicted range (nil if no active range is
// evicted).
func (selector *RegisterSelector) Select(
	liveRange *LiveRange,
) (
	*arch.Register,
	*LiveRange, // evicted
) {
	register := selector.selectFree()
	if register != nil {
		selector.activate(liveRange, register)
		return register, nil
	}

	last := selector.active[len(selector.active)-1]
	if last.End <= liveRange.End {
		return nil, nil
	}

	selector.active = selector.active[:len(selector.active)-1]
	selector.free[last.register] = struct{}{}
	selector.activate(liveRange, last.register)
	return last.register, last.LiveRange
}
