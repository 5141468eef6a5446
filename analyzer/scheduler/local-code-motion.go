package scheduler

import (
	"github.com/google/btree"
	"github.com/pattyshack/gt/parseutil"

	"github.com/pattyshack/starling/analyzer/util"
	"github.com/pattyshack/starling/ast"
)

const readyListDegree = 8

type dagNode struct {
	inst *ast.Instruction

	preds []*dagNode
	succs []*dagNode

	// Critical path length from this node to the end of the block.
	height int

	// 1-based position in the block's safepoint chain.  Zero for
	// non-safepoints.
	safepointIdx int

	// Number of safepoints that must be scheduled before the node.
	low int

	// The node is scheduled after the segment-th safepoint and before the
	// (segment+1)-th safepoint.
	segment int

	numPending int
}

func (node *dagNode) isSafepoint() bool {
	return node.safepointIdx > 0
}

func readyListLess(first *dagNode, second *dagNode) bool {
	if first.height != second.height {
		return first.height > second.height
	}
	return first.inst.ID < second.inst.ID
}

// Local code motion orders the instructions within each block.
//
// Phis and params are scheduled first, the control instruction last.  The
// remaining instructions are list scheduled in critical path order, subject
// to data dependencies and the emission order of side-effecting
// instructions (memory reads are never reordered across side effects).
//
// Safepoints partition the block into segments.  Each instruction is
// assigned the latest segment its dependencies allow, except that temp
// generators and their consumers are pulled into a common segment so that no
// temp is live across a safepoint.  Segment assignment does not depend on
// the tie breaker.
type localCodeMotion struct {
	*parseutil.Emitter

	tracker    *TempTracker
	tieBreaker TieBreaker

	graph *ast.Graph
}

func LocalCodeMotion(
	emitter *parseutil.Emitter,
	tracker *TempTracker,
	tieBreaker TieBreaker,
) util.Pass[*ast.Graph] {
	return &localCodeMotion{
		Emitter:    emitter,
		tracker:    tracker,
		tieBreaker: tieBreaker,
	}
}

func (lcm *localCodeMotion) Process(graph *ast.Graph) {
	lcm.graph = graph
	for idx := range graph.Blocks {
		if !lcm.scheduleBlock(&graph.Blocks[idx]) {
			return
		}
	}
}

type blockScheduler struct {
	*localCodeMotion

	block *ast.Block

	head []*dagNode // phis and params
	body []*dagNode // in id order

	nodes map[ast.InstructionID]*dagNode

	// Topological order of body.
	topo []*dagNode

	safepoints []*dagNode // in chain order

	order []ast.InstructionID
}

func (lcm *localCodeMotion) scheduleBlock(block *ast.Block) bool {
	scheduler := &blockScheduler{
		localCodeMotion: lcm,
		block:           block,
		nodes:           make(map[ast.InstructionID]*dagNode, len(block.Scheduled)),
	}

	scheduler.buildDAG()
	if !scheduler.sortTopologically() {
		return false
	}

	scheduler.computeHeights()
	if !scheduler.assignSegments() {
		return false
	}

	if !scheduler.listSchedule() {
		return false
	}

	block.Scheduled = scheduler.order
	return true
}

func (scheduler *blockScheduler) addEdge(from *dagNode, to *dagNode) {
	from.succs = append(from.succs, to)
	to.preds = append(to.preds, from)
	to.numPending++
}

func (scheduler *blockScheduler) buildDAG() {
	graph := scheduler.graph

	var control *dagNode
	for _, id := range scheduler.block.Scheduled {
		inst := graph.Instruction(id)
		node := &dagNode{inst: inst}
		scheduler.nodes[id] = node

		if inst.IsPhi() || inst.Opcode == ast.Param {
			scheduler.head = append(scheduler.head, node)
			continue
		}

		scheduler.body = append(scheduler.body, node)
		if inst.IsControl() {
			control = node
		}

		if inst.IsSafepoint() {
			scheduler.safepoints = append(scheduler.safepoints, node)
			node.safepointIdx = len(scheduler.safepoints)
		}
	}

	for _, node := range scheduler.body {
		for _, input := range node.inst.Inputs {
			def, ok := scheduler.nodes[input.Instruction]
			if !ok || def.inst.IsPhi() || def.inst.Opcode == ast.Param {
				continue
			}
			scheduler.addEdge(def, node)
		}
	}

	scheduler.addMemoryEdges()

	if control == nil {
		return
	}

	for _, node := range scheduler.body {
		if node != control {
			scheduler.addEdge(node, control)
		}
	}
}

// Side effects keep their emission order, and memory reads stay between the
// side effects emitted around them.  Memory reads moved in from other blocks
// are unordered (the block has no side effects).
func (scheduler *blockScheduler) addMemoryEdges() {
	var prev *dagNode
	var reads []*dagNode
	for _, id := range scheduler.block.Members {
		node, ok := scheduler.nodes[id]
		if !ok || node.inst.IsPhi() || node.inst.Opcode == ast.Param {
			continue
		}

		if node.inst.Opcode.ReadsMemory() {
			if prev != nil {
				scheduler.addEdge(prev, node)
			}
			reads = append(reads, node)
			continue
		}

		if !node.inst.Opcode.HasSideEffects() && !node.isSafepoint() {
			continue
		}

		for _, read := range reads {
			scheduler.addEdge(read, node)
		}
		reads = nil

		if prev != nil {
			scheduler.addEdge(prev, node)
		}
		prev = node
	}
}

func (scheduler *blockScheduler) sortTopologically() bool {
	pending := make(map[*dagNode]int, len(scheduler.body))
	queue := make([]*dagNode, 0, len(scheduler.body))
	for _, node := range scheduler.body {
		pending[node] = len(node.preds)
		if len(node.preds) == 0 {
			queue = append(queue, node)
		}
	}

	for head := 0; head < len(queue); head++ {
		for _, succ := range queue[head].succs {
			pending[succ]--
			if pending[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	if len(queue) != len(scheduler.body) {
		for _, node := range scheduler.body {
			if pending[node] > 0 {
				util.EmitMalformedGraph(
					scheduler.Emitter,
					node.inst.Loc(),
					"cyclic dependency in %s involving %s (data dependencies "+
						"contradict side effect order)",
					scheduler.block.Label,
					node.inst)
				break
			}
		}
		return false
	}

	scheduler.topo = queue
	return true
}

func (scheduler *blockScheduler) computeHeights() {
	for idx := len(scheduler.topo) - 1; idx >= 0; idx-- {
		node := scheduler.topo[idx]

		maxSucc := 0
		for _, succ := range node.succs {
			if succ.height > maxSucc {
				maxSucc = succ.height
			}
		}
		node.height = node.inst.Opcode.Latency() + maxSucc
	}
}

func (scheduler *blockScheduler) assignSegments() bool {
	numSafepoints := len(scheduler.safepoints)

	for _, node := range scheduler.topo {
		for _, pred := range node.preds {
			low := pred.low
			if pred.isSafepoint() {
				low = pred.safepointIdx
			}

			if low > node.low {
				node.low = low
			}
		}
	}

	for idx := len(scheduler.topo) - 1; idx >= 0; idx-- {
		node := scheduler.topo[idx]
		node.segment = numSafepoints
		for _, succ := range node.succs {
			high := succ.segment
			if succ.isSafepoint() {
				high = succ.safepointIdx - 1
			}

			if high < node.segment {
				node.segment = high
			}
		}
	}

	if numSafepoints == 0 {
		return true
	}

	type group struct {
		nodes []*dagNode

		// Safepoint consumers must not be scheduled before the rest of the
		// group.
		minSegment int
	}

	groups := []group{}
	for _, node := range scheduler.body {
		for _, binding := range scheduler.tracker.GeneratedBy(node.inst.ID) {
			if binding.IsExempt() {
				continue
			}

			glued := group{nodes: []*dagNode{node}}
			for _, consumer := range binding.Consumers {
				consumerNode, ok := scheduler.nodes[consumer]
				if !ok {
					panic("should never happen") // temps are colocated by gcm
				}

				if !consumerNode.isSafepoint() {
					glued.nodes = append(glued.nodes, consumerNode)
				} else if consumerNode.safepointIdx-1 > glued.minSegment {
					glued.minSegment = consumerNode.safepointIdx - 1
				}
			}

			groups = append(groups, glued)
		}
	}

	for changed := true; changed; {
		changed = false

		for _, group := range groups {
			segment := numSafepoints
			for _, node := range group.nodes {
				if node.segment < segment {
					segment = node.segment
				}
			}

			for _, node := range group.nodes {
				if node.segment != segment {
					node.segment = segment
					changed = true
				}
			}
		}

		for idx := len(scheduler.topo) - 1; idx >= 0; idx-- {
			node := scheduler.topo[idx]
			if node.isSafepoint() {
				continue
			}

			for _, succ := range node.succs {
				if !succ.isSafepoint() && succ.segment < node.segment {
					node.segment = succ.segment
					changed = true
				}
			}
		}
	}

	for _, node := range scheduler.topo {
		if node.isSafepoint() || node.segment >= node.low {
			continue
		}

		scheduler.reportForcedCrossing(node)
		return false
	}

	for _, group := range groups {
		if group.nodes[0].segment < group.minSegment {
			scheduler.reportForcedCrossing(group.nodes[0])
			return false
		}
	}

	return true
}

func (scheduler *blockScheduler) dependsOn(
	from ast.InstructionID,
	to ast.InstructionID,
) bool {
	source := scheduler.nodes[from]
	target := scheduler.nodes[to]
	if source == nil || target == nil {
		return false
	}

	visited := map[*dagNode]struct{}{}
	stack := []*dagNode{source}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top == target {
			return true
		}

		_, ok := visited[top]
		if ok {
			continue
		}
		visited[top] = struct{}{}
		stack = append(stack, top.succs...)
	}
	return false
}

func (scheduler *blockScheduler) reportForcedCrossing(node *dagNode) {
	safepointIDs := make([]ast.InstructionID, 0, len(scheduler.safepoints))
	for _, safepoint := range scheduler.safepoints {
		safepointIDs = append(safepointIDs, safepoint.inst.ID)
	}

	for _, binding := range scheduler.tracker.Bindings() {
		if _, ok := scheduler.nodes[binding.Generator]; !ok {
			continue
		}

		safepoint, forced := scheduler.tracker.ForcedCrossing(
			binding,
			safepointIDs,
			scheduler.dependsOn)
		if !forced {
			continue
		}

		generator := scheduler.graph.Instruction(binding.Generator)
		util.EmitRootAccuracyViolation(
			scheduler.Emitter,
			generator.Loc(),
			"temp %s (generated by %s) must be live across safepoint %s, but "+
				"is not dataflow mandated",
			binding.Temp,
			generator,
			scheduler.graph.Instruction(safepoint))
		return
	}

	// The crossing is forced by a chain of temps rather than a single temp.
	safepoint := scheduler.safepoints[node.segment]
	util.EmitRootAccuracyViolation(
		scheduler.Emitter,
		node.inst.Loc(),
		"temps chained through %s cannot be kept on one side of safepoint %s",
		node.inst,
		safepoint.inst)
}

func (scheduler *blockScheduler) schedule(node *dagNode) {
	node.inst.Position = len(scheduler.order)
	scheduler.order = append(scheduler.order, node.inst.ID)
}

func (scheduler *blockScheduler) listSchedule() bool {
	for _, node := range scheduler.head {
		scheduler.schedule(node)
	}

	numSafepoints := len(scheduler.safepoints)
	buckets := make([][]*dagNode, numSafepoints+1)
	for _, node := range scheduler.body {
		if node.numPending == 0 && !node.isSafepoint() {
			buckets[node.segment] = append(buckets[node.segment], node)
		}
	}

	isScheduled := func(id ast.InstructionID) bool {
		return scheduler.graph.Instruction(id).Position != ast.Unordered
	}

	for segment := 0; segment <= numSafepoints; segment++ {
		ready := btree.NewG[*dagNode](readyListDegree, readyListLess)
		for _, node := range buckets[segment] {
			ready.ReplaceOrInsert(node)
		}
		buckets[segment] = nil

		release := func(node *dagNode) {
			for _, succ := range node.succs {
				succ.numPending--
				if succ.numPending > 0 || succ.isSafepoint() {
					continue
				}

				if succ.segment == segment {
					ready.ReplaceOrInsert(succ)
				} else if succ.segment > segment {
					buckets[succ.segment] = append(buckets[succ.segment], succ)
				} else {
					panic("should never happen")
				}
			}
		}

		for ready.Len() > 0 {
			var next *dagNode
			if scheduler.tieBreaker.IsRandomized() {
				candidates := make([]*dagNode, 0, ready.Len())
				ready.Ascend(func(node *dagNode) bool {
					candidates = append(candidates, node)
					return true
				})
				next = candidates[scheduler.tieBreaker.Choose(len(candidates))]
				ready.Delete(next)
			} else {
				next, _ = ready.DeleteMin()
			}

			scheduler.schedule(next)
			release(next)
		}

		if segment == numSafepoints {
			break
		}

		safepoint := scheduler.safepoints[segment]
		if safepoint.numPending != 0 {
			panic("should never happen")
		}

		binding, spans := scheduler.tracker.WouldSpanSafepoint(
			safepoint.inst.ID,
			isScheduled)
		if spans {
			util.EmitRootAccuracyViolation(
				scheduler.Emitter,
				safepoint.inst.Loc(),
				"temp %s would be live across safepoint %s",
				binding.Temp,
				safepoint.inst)
			return false
		}

		scheduler.schedule(safepoint)
		release(safepoint)
	}

	if len(scheduler.order) != len(scheduler.block.Scheduled) {
		panic("should never happen")
	}

	return true
}
