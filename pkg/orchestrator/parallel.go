package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndaru/kirana/pkg/placeholder"
	"github.com/ndaru/kirana/pkg/toolkit"
)

// parallelStrategy launches one worker per enabled tool instance. Every
// instance sees only the original request; no instance ever observes another
// instance's output. Workers share no mutable state: each writes exactly one
// pre-allocated slot keyed by its configuration index, and the slots are only
// read after the join barrier, so the aggregate needs no locking.
type parallelStrategy struct {
	logger zerolog.Logger
}

func (p *parallelStrategy) Name() StrategyName {
	return StrategyParallel
}

func (p *parallelStrategy) Run(ctx context.Context, req Request, instances []ResolvedInstance, opts RunOptions) (AggregatedContext, *ExecutionReport, error) {
	started := time.Now()

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]ToolExecutionResult, len(instances))

	var wg sync.WaitGroup

	for i, inst := range instances {
		wg.Add(1)
		go func(index int, inst ResolvedInstance) {
			defer wg.Done()

			query := toolkit.QueryContext{
				RequestID:   req.RequestID,
				UserMessage: req.UserMessage,
				History:     req.History,
			}

			result, err := runInstance(execCtx, inst, query, opts.ToolTimeout, p.logger)
			if err != nil {
				// The shared context was cancelled under this worker,
				// either by the caller or by fail-fast. Which one is
				// decided after the join, when ctx.Err() is inspected.
				results[index] = skippedResult(inst, "skipped: orchestration cancelled")
				return
			}

			results[index] = result

			if result.Status == StatusFailed && opts.FailFast {
				cancel()
			}
		}(i, inst)
	}

	// Join barrier: no early return, even if the first workers finish long
	// before the rest.
	wg.Wait()

	if err := ctx.Err(); err != nil {
		// Caller cancelled: completed results are discarded.
		return nil, nil, err
	}

	report := &ExecutionReport{
		// Slots are index-keyed, so the report is already in configuration
		// order no matter which worker finished first.
		Results:       results,
		TotalDuration: time.Since(started),
	}

	if opts.FailFast {
		for i, result := range results {
			if result.Status == StatusFailed {
				return nil, report, fmt.Errorf("orchestration aborted: tool %s failed: %s", instances[i].Instance.ToolName, result.Error)
			}
		}
	}

	agg := make(AggregatedContext, len(instances))
	for i, result := range results {
		label := instances[i].Instance.PlaceholderLabel
		if result.Status == StatusOK {
			agg[label] = result.Text
			continue
		}
		// Failed slots degrade to the fixed marker; the aggregate always
		// holds one entry per enabled instance.
		agg[label] = placeholder.FallbackText
	}

	return agg, report, nil
}
