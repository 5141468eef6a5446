package ast

type Opcode string

const (
	Param    = Opcode("param")
	Constant = Opcode("const")
	Phi      = Opcode("phi")

	Add     = Opcode("add")
	Sub     = Opcode("sub")
	Mul     = Opcode("mul")
	Compare = Opcode("compare") // dest = (src1 == src2)? 1 : 0

	// Reference equality check.  Narrow and full width operands may be mixed.
	CompareRef = Opcode("compare_ref")

	// dest = src1 != 0 ? src2 : src3
	Select = Opcode("select")

	ArrayLength = Opcode("array_length")

	// Loads a full width reference / value from the object in src1.
	Load = Opcode("load")

	// Loads a narrow reference from the object in src1.  The optional second
	// source is a temp scratch operand used by the load's barrier.
	LoadNarrow   = Opcode("load_narrow")
	DecodeNarrow = Opcode("decode_narrow")
	EncodeNarrow = Opcode("encode_narrow")

	// Defines a temp operand (scratch register) for its consumers.
	MachTemp = Opcode("mach_temp")

	Store = Opcode("store")

	Call = Opcode("call")
	Poll = Opcode("poll")

	Return = Opcode("return")
	Jump   = Opcode("jump")
	Branch = Opcode("branch") // branch src1 : succ[0] if src1 != 0, else succ[1]
)

type opcodeProperties struct {
	pinned         bool
	hasSideEffects bool
	readsMemory    bool
	isSafepoint    bool
	isControl      bool
	numSuccessors  int

	// Approximate number of cycles before the result is available.  Used by
	// local code motion's critical path heuristic.
	latency int
}

var opcodeTable = map[Opcode]opcodeProperties{
	Param:    {pinned: true, latency: 0},
	Constant: {latency: 1},
	Phi:      {pinned: true, latency: 0},

	Add:     {latency: 1},
	Sub:     {latency: 1},
	Mul:     {latency: 3},
	Compare: {latency: 1},

	CompareRef: {latency: 1},
	Select:     {latency: 1},

	ArrayLength:  {readsMemory: true, latency: 3},
	Load:         {readsMemory: true, latency: 4},
	LoadNarrow:   {readsMemory: true, latency: 4},
	DecodeNarrow: {latency: 1},
	EncodeNarrow: {latency: 1},
	MachTemp:     {latency: 0},

	Store: {pinned: true, hasSideEffects: true, latency: 1},

	Call: {pinned: true, hasSideEffects: true, isSafepoint: true, latency: 10},
	Poll: {pinned: true, hasSideEffects: true, isSafepoint: true, latency: 1},

	Return: {
		pinned:         true,
		hasSideEffects: true,
		isSafepoint:    true,
		isControl:      true,
		numSuccessors:  0,
		latency:        1,
	},
	Jump: {
		pinned:        true,
		isControl:     true,
		numSuccessors: 1,
		latency:       1,
	},
	Branch: {
		pinned:        true,
		isControl:     true,
		numSuccessors: 2,
		latency:       1,
	},
}

func (op Opcode) properties() opcodeProperties {
	props, ok := opcodeTable[op]
	if !ok {
		panic("unknown opcode: " + string(op))
	}
	return props
}

func (op Opcode) IsValid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Pinned by default.  Instruction selection may pin additional instructions.
func (op Opcode) IsPinned() bool {
	return op.properties().pinned
}

func (op Opcode) HasSideEffects() bool {
	return op.properties().hasSideEffects
}

// Memory reads may not be reordered across side effects (stores, calls,
// etc.).
func (op Opcode) ReadsMemory() bool {
	return op.properties().readsMemory
}

func (op Opcode) IsSafepoint() bool {
	return op.properties().isSafepoint
}

func (op Opcode) IsControl() bool {
	return op.properties().isControl
}

func (op Opcode) NumSuccessors() int {
	return op.properties().numSuccessors
}

func (op Opcode) Latency() int {
	return op.properties().latency
}
