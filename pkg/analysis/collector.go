package analysis

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	perrors "github.com/logflow/procinsight/pkg/errors"
)

// collectResult pairs the activity and transition aggregates of a set of traces.
type collectResult struct {
	activities  *ActivityStats
	transitions *TransitionStats
}

// collect aggregates activity and transition statistics over all traces.
// With workers > 1 the traces are split into contiguous shards that are
// aggregated concurrently and merged afterwards. Counts and duration sums
// add, sets union and first-seen positions take the minimum, so the result
// does not depend on the number of workers.
func collect(ctx context.Context, traces []*Trace, workers int) (*collectResult, error) {
	if workers <= 1 || len(traces) < 2 {
		return collectShard(ctx, traces)
	}
	if workers > len(traces) {
		workers = len(traces)
	}

	shards := make([]*collectResult, workers)
	size := (len(traces) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * size
		if lo >= len(traces) {
			break
		}
		hi := lo + size
		if hi > len(traces) {
			hi = len(traces)
		}

		w, part := w, traces[lo:hi]
		g.Go(func() error {
			res, err := collectShard(gctx, part)
			if err != nil {
				return err
			}
			shards[w] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &collectResult{
		activities:  newActivityStats(),
		transitions: newTransitionStats(),
	}
	for _, s := range shards {
		if s == nil {
			continue
		}
		out.activities.merge(s.activities)
		out.transitions.merge(s.transitions)
	}
	return out, nil
}

// collectShard aggregates one shard. A panic while aggregating is returned
// as an E201 error instead of taking the process down.
func collectShard(ctx context.Context, traces []*Trace) (res *collectResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = perrors.New(perrors.CodeAnalysisFailed, fmt.Sprintf("aggregation panic: %v", r)).
				WithContext("traces", len(traces))
		}
	}()

	res = &collectResult{
		activities:  newActivityStats(),
		transitions: newTransitionStats(),
	}
	for i, tr := range traces {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, perrors.Wrap(err, perrors.CodeContextCanceled, "aggregation canceled")
			}
		}
		res.activities.addTrace(tr)
		res.transitions.addTrace(tr)
	}
	return res, nil
}
