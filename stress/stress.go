package stress

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"

	"github.com/pattyshack/gt/parseutil"

	"github.com/pattyshack/starling/analyzer"
	"github.com/pattyshack/starling/analyzer/scheduler"
	"github.com/pattyshack/starling/analyzer/util"
	"github.com/pattyshack/starling/ast"
	"github.com/pattyshack/starling/compiler"
	"github.com/pattyshack/starling/metadata"
	"github.com/pattyshack/starling/platform"
)

type Property string

const (
	// Every safepoint has the same root map (slot types and locations) under
	// every seed.
	Invariance = Property("root map invariance")

	// Root maps never contain non-mandated temps.
	TempInvisibility = Property("temp invisibility")

	// Compiling twice with the same config yields identical results.
	Determinism = Property("determinism")

	// Every value is defined in a block dominating its uses.
	DominanceLegality = Property("dominance legality")

	// No non-exempt temp is live across a safepoint.
	TempContainment = Property("temp containment")

	// A graph that falls back under the default config falls back for the
	// same reason under every seed.
	FallBackConsistency = Property("fall back consistency")
)

type Violation struct {
	Seed     int64
	Property Property
	Message  string
}

func (violation Violation) String() string {
	return fmt.Sprintf(
		"seed %d: %s: %s",
		violation.Seed,
		violation.Property,
		violation.Message)
}

type Report struct {
	Graph string
	Seeds []int64

	// Set if the default (unperturbed) compilation fell back.
	FallBack util.ErrorKind

	// Number of distinct instruction orders observed across all seeds
	// (including the default config).
	DistinctOrders int

	// The default compilation's root map slots, keyed by safepoint.
	RootMaps map[ast.InstructionID][]string

	Violations []Violation
}

func (report *Report) OK() bool {
	return len(report.Violations) == 0
}

func (report *Report) Print(writer io.Writer) error {
	status := "ok"
	if !report.OK() {
		status = fmt.Sprintf("%d violations", len(report.Violations))
	}

	_, err := fmt.Fprintf(
		writer,
		"%s: %d seeds, %d distinct orders: %s\n",
		report.Graph,
		len(report.Seeds),
		report.DistinctOrders,
		status)
	if err != nil {
		return err
	}

	if report.FallBack != "" {
		_, err = fmt.Fprintf(writer, "  falls back: %s\n", report.FallBack)
		if err != nil {
			return err
		}
	}

	safepoints := make([]ast.InstructionID, 0, len(report.RootMaps))
	for id := range report.RootMaps {
		safepoints = append(safepoints, id)
	}
	slices.Sort(safepoints)

	for _, id := range safepoints {
		_, err = fmt.Fprintf(
			writer,
			"  v%d: [%s]\n",
			id,
			strings.Join(report.RootMaps[id], " "))
		if err != nil {
			return err
		}
	}

	for _, violation := range report.Violations {
		_, err = fmt.Fprintf(writer, "  %s\n", violation)
		if err != nil {
			return err
		}
	}

	return nil
}

// Returns seeds 1 .. n.
func Seeds(n int) []int64 {
	seeds := make([]int64, 0, n)
	for seed := int64(1); seed <= int64(n); seed++ {
		seeds = append(seeds, seed)
	}
	return seeds
}

type Harness struct {
	broker *compiler.Broker
}

func NewHarness(targetPlatform platform.Platform, maxWorkers int) *Harness {
	return &Harness{
		broker: compiler.NewBroker(
			targetPlatform,
			maxWorkers,
			metadata.Options{}),
	}
}

// Compiles the graph under the default config and twice under each seed's
// stress config, and checks the scheduling properties.  The input graph is
// never modified.  Only usage errors and cancellation are returned as
// errors; property failures are reported as violations.
func (harness *Harness) Run(
	ctx context.Context,
	graph *ast.Graph,
	seeds []int64,
) (*Report, error) {
	configs := make([]scheduler.Config, 0, len(seeds))
	for _, seed := range seeds {
		configs = append(configs, scheduler.StressConfig(seed))
	}
	return harness.RunConfigs(ctx, graph, configs)
}

// Same as Run, but with explicit (perturbed) configs.
func (harness *Harness) RunConfigs(
	ctx context.Context,
	graph *ast.Graph,
	configs []scheduler.Config,
) (*Report, error) {
	requests := []compiler.Request{
		{Graph: graph.Clone(), Config: scheduler.DefaultConfig()},
	}

	seeds := make([]int64, 0, len(configs))
	for _, config := range configs {
		seeds = append(seeds, config.Seed)
		requests = append(
			requests,
			compiler.Request{Graph: graph.Clone(), Config: config},
			compiler.Request{Graph: graph.Clone(), Config: config})
	}

	results, err := harness.broker.CompileAll(ctx, requests)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Graph:    graph.Name,
		Seeds:    seeds,
		RootMaps: map[ast.InstructionID][]string{},
	}

	baseline := results[0]
	if baseline.Tier == compiler.Compiled {
		for _, rootMap := range baseline.Method.RootMaps {
			report.RootMaps[rootMap.Safepoint] = rootMap.Slots()
		}
		report.checkMethod(0, baseline.Method)
	} else {
		report.FallBack = baseline.Reason
	}

	orders := map[string]struct{}{}
	if baseline.Method != nil {
		orders[orderSignature(baseline.Method.Graph)] = struct{}{}
	}

	for idx, seed := range seeds {
		first := results[1+2*idx]
		second := results[2+2*idx]

		report.checkDeterminism(seed, first, second)

		if baseline.Tier != compiler.Compiled {
			if first.Tier != compiler.FallBack || first.Reason != baseline.Reason {
				report.violate(
					seed,
					FallBackConsistency,
					"expected %s fall back, but got %s",
					baseline.Reason,
					first)
			}
			continue
		}

		if first.Tier != compiler.Compiled {
			report.violate(
				seed,
				FallBackConsistency,
				"default config compiled, but seed fell back (%s): %v",
				first.Reason,
				first.Errors)
			continue
		}

		orders[orderSignature(first.Method.Graph)] = struct{}{}
		report.checkMethod(seed, first.Method)
		report.checkInvariance(seed, first.Method)
	}

	report.DistinctOrders = len(orders)
	return report, nil
}

func (report *Report) violate(
	seed int64,
	property Property,
	format string,
	args ...interface{},
) {
	report.Violations = append(
		report.Violations,
		Violation{
			Seed:     seed,
			Property: property,
			Message:  fmt.Sprintf(format, args...),
		})
}

func (report *Report) checkMethod(seed int64, method *analyzer.CompiledMethod) {
	graph := method.Graph

	for _, rootMap := range method.RootMaps {
		for _, entry := range rootMap.Entries {
			output := graph.Output(entry.Value)
			if output.Kind == ast.Temp && !output.DataflowMandated {
				report.violate(
					seed,
					TempInvisibility,
					"root map of v%d contains temp %s",
					rootMap.Safepoint,
					entry.Value)
			}
		}
	}

	for _, err := range scheduler.CheckDominance(graph, method.Schedule.DomTree) {
		report.violate(seed, DominanceLegality, "%s", err)
	}

	emitter := &parseutil.Emitter{}
	method.Schedule.Tracker.Verify(emitter)
	for _, err := range emitter.Errors() {
		report.violate(seed, TempContainment, "%s", err)
	}
}

func (report *Report) checkInvariance(
	seed int64,
	method *analyzer.CompiledMethod,
) {
	if len(method.RootMaps) != len(report.RootMaps) {
		report.violate(
			seed,
			Invariance,
			"expected %d root maps, found %d",
			len(report.RootMaps),
			len(method.RootMaps))
	}

	for _, rootMap := range method.RootMaps {
		expected, ok := report.RootMaps[rootMap.Safepoint]
		if !ok {
			report.violate(
				seed,
				Invariance,
				"unexpected root map for v%d",
				rootMap.Safepoint)
			continue
		}

		actual := rootMap.Slots()
		if !slices.Equal(expected, actual) {
			report.violate(
				seed,
				Invariance,
				"root map of v%d differs: expected [%s], found [%s]",
				rootMap.Safepoint,
				strings.Join(expected, " "),
				strings.Join(actual, " "))
		}
	}
}

func (report *Report) checkDeterminism(
	seed int64,
	first *compiler.Result,
	second *compiler.Result,
) {
	if first.Tier != second.Tier || first.Reason != second.Reason {
		report.violate(
			seed,
			Determinism,
			"results differ: %s vs %s",
			first,
			second)
		return
	}

	if first.Tier != compiler.Compiled {
		return
	}

	if orderSignature(first.Method.Graph) != orderSignature(second.Method.Graph) {
		report.violate(seed, Determinism, "instruction orders differ")
	}

	if !reflect.DeepEqual(first.Metadata, second.Metadata) ||
		rootMapSignature(first.Method) != rootMapSignature(second.Method) {
		report.violate(seed, Determinism, "root maps differ")
	}
}

func orderSignature(graph *ast.Graph) string {
	builder := strings.Builder{}
	for idx := range graph.Blocks {
		fmt.Fprintf(&builder, "%v;", graph.Blocks[idx].Scheduled)
	}
	return builder.String()
}

func rootMapSignature(method *analyzer.CompiledMethod) string {
	builder := strings.Builder{}
	for _, rootMap := range method.RootMaps {
		builder.WriteString(rootMap.String())
		builder.WriteString("\n")
	}
	return builder.String()
}
