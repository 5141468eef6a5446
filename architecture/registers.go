package architecture

type Register struct {
	Name string

	// Position within the owning register set.  Allocation always prefers
	// lower indices.
	Index int

	// When true, the register is reserved for stack pointer.
	IsStackPointer bool

	// When true, the register holds the method's frame / thread state and is
	// never handed out by the location assigner.
	IsReserved bool

	// When true, the register can hold integer, pointer and compressed pointer
	// data.  Only general registers are used for scheduling values.
	AllowGeneralOp bool

	// When true, the register is usable for float operations.
	AllowFloatOp bool
}

func NewStackPointerRegister(name string) *Register {
	return &Register{
		Name:           name,
		IsStackPointer: true,
	}
}

func NewReservedRegister(name string) *Register {
	return &Register{
		Name:           name,
		IsReserved:     true,
		AllowGeneralOp: true,
	}
}

func NewGeneralRegister(name string) *Register {
	return &Register{
		Name:           name,
		AllowGeneralOp: true,
	}
}

func NewFloatRegister(name string) *Register {
	return &Register{
		Name:         name,
		AllowFloatOp: true,
	}
}

// Assumptions:
//
// 1. Each architecture has exactly one stack pointer register, which is
// always live.
//
// 2. Reserved registers (e.g., the thread register, the heap base used for
// decoding compressed references) are always live as well.
//
// 3. Values are never split across registers (every value is at most
// register sized).
type RegisterSet struct {
	StackPointer *Register

	// In declaration order.
	All []*Register

	// Non-reserved general registers, in declaration order.  These are the
	// registers available to the location assigner.
	Allocatable []*Register

	Float []*Register
}

func NewRegisterSet(registers ...*Register) *RegisterSet {
	set := &RegisterSet{}

	names := map[string]struct{}{}
	for _, register := range registers {
		if register.Name == "" {
			panic("no register name")
		}

		_, ok := names[register.Name]
		if ok {
			panic("added duplicate register: " + register.Name)
		}
		names[register.Name] = struct{}{}

		set.add(register)
	}

	if set.StackPointer == nil {
		panic("no stack pointer register specified")
	}

	if len(set.Allocatable) == 0 {
		panic("no allocatable register specified")
	}

	return set
}

func (set *RegisterSet) add(register *Register) {
	register.Index = len(set.All)
	set.All = append(set.All, register)

	if register.IsStackPointer {
		if register.AllowGeneralOp || register.AllowFloatOp {
			panic("stack pointer register cannot be general/float register")
		}

		if set.StackPointer != nil {
			panic("multiple stack pointer register specified")
		}
		set.StackPointer = register
		return
	}

	if !register.AllowGeneralOp && !register.AllowFloatOp {
		panic("added unusable register")
	}

	if register.AllowGeneralOp && !register.IsReserved {
		set.Allocatable = append(set.Allocatable, register)
	}

	if register.AllowFloatOp {
		set.Float = append(set.Float, register)
	}
}
