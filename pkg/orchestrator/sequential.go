package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndaru/kirana/pkg/placeholder"
	"github.com/ndaru/kirana/pkg/toolkit"
)

// sequentialStrategy runs tool instances one at a time in configuration
// order. Each instance's query context carries the prompt template
// substituted with every earlier output, so a tool can observe and act on
// what ran before it. That chaining is the point of this strategy and the
// reason it cannot be parallelized.
type sequentialStrategy struct {
	logger zerolog.Logger
}

func (s *sequentialStrategy) Name() StrategyName {
	return StrategySequential
}

func (s *sequentialStrategy) Run(ctx context.Context, req Request, instances []ResolvedInstance, opts RunOptions) (AggregatedContext, *ExecutionReport, error) {
	started := time.Now()

	agg := make(AggregatedContext, len(instances))
	report := &ExecutionReport{Results: make([]ToolExecutionResult, 0, len(instances))}

	for i, inst := range instances {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		query := toolkit.QueryContext{
			RequestID:     req.RequestID,
			UserMessage:   req.UserMessage,
			History:       req.History,
			PartialPrompt: placeholder.Substitute(req.PromptTemplate, agg),
		}

		result, err := runInstance(ctx, inst, query, opts.ToolTimeout, s.logger)
		if err != nil {
			// Cancellation: no partial prompt is ever returned.
			return nil, nil, err
		}

		report.Results = append(report.Results, result)

		if result.Status == StatusFailed {
			if opts.FailFast {
				for _, rest := range instances[i+1:] {
					report.Results = append(report.Results, skippedResult(rest, "skipped: fail-fast after "+inst.Instance.ToolName))
				}
				report.TotalDuration = time.Since(started)
				return nil, report, fmt.Errorf("orchestration aborted: tool %s failed: %s", inst.Instance.ToolName, result.Error)
			}
			agg[inst.Instance.PlaceholderLabel] = placeholder.FallbackText
			continue
		}

		agg[inst.Instance.PlaceholderLabel] = result.Text
	}

	report.TotalDuration = time.Since(started)

	return agg, report, nil
}
