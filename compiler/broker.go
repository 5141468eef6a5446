package compiler

import (
	"context"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"github.com/pattyshack/gt/parseutil"
	"golang.org/x/sync/errgroup"

	"github.com/pattyshack/starling/analyzer"
	"github.com/pattyshack/starling/analyzer/scheduler"
	"github.com/pattyshack/starling/analyzer/util"
	"github.com/pattyshack/starling/ast"
	"github.com/pattyshack/starling/metadata"
	"github.com/pattyshack/starling/platform"
)

type Tier string

const (
	// The method was compiled and its root map table was published.
	Compiled = Tier("compiled")

	// Compilation failed (malformed graph or root accuracy violation).  The
	// method must keep running in the lower tier.
	FallBack = Tier("fall back")

	// The compilation was discarded before it finished.
	Cancelled = Tier("cancelled")
)

type Request struct {
	Graph  *ast.Graph
	Config scheduler.Config
}

type Result struct {
	ID   uuid.UUID
	Name string
	Tier Tier

	// Only set for Compiled results.
	Method   *analyzer.CompiledMethod
	Metadata []byte

	// Only set for FallBack results.
	Reason util.ErrorKind
	Errors []error
}

func (result *Result) String() string {
	switch result.Tier {
	case Compiled:
		return fmt.Sprintf(
			"%s %s: %s (%d root maps, %d bytes)",
			result.ID,
			result.Name,
			result.Tier,
			len(result.Method.RootMaps),
			len(result.Metadata))
	case FallBack:
		return fmt.Sprintf(
			"%s %s: %s (%s, %d errors)",
			result.ID,
			result.Name,
			result.Tier,
			result.Reason,
			len(result.Errors))
	default:
		return fmt.Sprintf("%s %s: %s", result.ID, result.Name, result.Tier)
	}
}

// Compiles batches of methods concurrently.  Each compilation is single
// threaded and owns its graph and emitter; nothing is shared between
// compilations other than the (read only) platform.
type Broker struct {
	platform   platform.Platform
	maxWorkers int
	options    metadata.Options
}

// maxWorkers <= 0 defaults to GOMAXPROCS.
func NewBroker(
	targetPlatform platform.Platform,
	maxWorkers int,
	options metadata.Options,
) *Broker {
	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}

	return &Broker{
		platform:   targetPlatform,
		maxWorkers: maxWorkers,
		options:    options,
	}
}

// Compiles a single method.  Only usage errors (invalid config) and metadata
// encoding failures are returned as errors; compilation failures produce a
// FallBack result.
func (broker *Broker) Compile(request Request) (*Result, error) {
	result := &Result{
		ID:   uuid.New(),
		Name: request.Graph.Name,
	}

	emitter := &parseutil.Emitter{}
	method, err := analyzer.Compile(
		request.Graph,
		broker.platform,
		request.Config,
		emitter)
	if err != nil {
		return nil, fmt.Errorf("cannot compile %s: %w", request.Graph.Name, err)
	}

	if method == nil {
		result.Tier = FallBack
		result.Errors = emitter.Errors()
		result.Reason, _ = util.FirstErrorKind(result.Errors)
		return result, nil
	}

	encoded, err := metadata.Encode(
		method.Frame().TotalFrameSize,
		method.RootMaps,
		broker.options)
	if err != nil {
		return nil, fmt.Errorf("cannot encode %s: %w", request.Graph.Name, err)
	}

	result.Tier = Compiled
	result.Method = method
	result.Metadata = encoded
	return result, nil
}

// Compiles all requests, returning results in request order.  If the
// context is cancelled (or a usage error occurs), the whole batch is
// discarded: every result is marked Cancelled and the error is returned.
func (broker *Broker) CompileAll(
	ctx context.Context,
	requests []Request,
) ([]*Result, error) {
	results := make([]*Result, len(requests))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(broker.maxWorkers)

	for idx, request := range requests {
		group.Go(func() error {
			err := groupCtx.Err()
			if err != nil {
				return err
			}

			result, err := broker.Compile(request)
			if err != nil {
				return err
			}

			results[idx] = result
			return nil
		})
	}

	err := group.Wait()
	if err == nil {
		err = ctx.Err()
	}

	if err != nil {
		for idx, request := range requests {
			results[idx] = &Result{
				ID:   uuid.New(),
				Name: request.Graph.Name,
				Tier: Cancelled,
			}
		}
		return results, err
	}

	return results, nil
}
