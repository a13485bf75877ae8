package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndaru/kirana/pkg/toolkit"
)

// RunOptions carries the per-request policy knobs a strategy honors.
type RunOptions struct {
	FailFast    bool
	ToolTimeout time.Duration
}

// Strategy executes an ordered list of resolved tool instances and produces
// the aggregated context plus the execution report. Implementations must
// build both in configuration order regardless of completion order.
type Strategy interface {
	Name() StrategyName
	Run(ctx context.Context, req Request, instances []ResolvedInstance, opts RunOptions) (AggregatedContext, *ExecutionReport, error)
}

// NewStrategy returns the strategy implementation for name. Adding a new
// strategy means adding one implementation here, not touching call sites.
func NewStrategy(name StrategyName, logger zerolog.Logger) (Strategy, error) {
	switch name {
	case StrategySequential:
		return &sequentialStrategy{logger: logger}, nil
	case StrategyParallel:
		return &parallelStrategy{logger: logger}, nil
	default:
		return nil, &UnknownStrategyError{Name: string(name)}
	}
}

// runInstance executes one tool instance bounded by timeout and translates
// the outcome into a ToolExecutionResult. Cancellation of the parent context
// is surfaced through the returned error so no partial prompt is built for a
// cancelled request; timeouts and tool errors are ordinary failures.
func runInstance(ctx context.Context, inst ResolvedInstance, query toolkit.QueryContext, timeout time.Duration, logger zerolog.Logger) (ToolExecutionResult, error) {
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}

	result := ToolExecutionResult{
		PlaceholderLabel: inst.Instance.PlaceholderLabel,
		ToolName:         inst.Instance.ToolName,
		StartedAt:        time.Now(),
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outputChan := make(chan *toolkit.Output, 1)
	errChan := make(chan error, 1)

	go func() {
		output, err := inst.Resolved.Tool.Execute(execCtx, query, inst.Resolved.Config)
		if err != nil {
			errChan <- err
		} else {
			outputChan <- output
		}
	}()

	select {
	case output := <-outputChan:
		result.FinishedAt = time.Now()
		result.Status = StatusOK
		if output != nil {
			result.Text = output.Text
			result.Sources = output.Sources
		}

		logger.Debug().
			Str("tool", result.ToolName).
			Str("label", result.PlaceholderLabel).
			Dur("duration", result.Duration()).
			Msg("Tool execution completed")

		return result, nil

	case err := <-errChan:
		result.FinishedAt = time.Now()

		// The worker may report the shared context's cancellation as its
		// own error; treat that as cancellation, not tool failure.
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return result, ctx.Err()
		}

		result.Status = StatusFailed
		result.Error = err.Error()

		logger.Warn().
			Str("tool", result.ToolName).
			Str("label", result.PlaceholderLabel).
			Dur("duration", result.Duration()).
			Err(err).
			Msg("Tool execution failed")

		return result, nil

	case <-execCtx.Done():
		result.FinishedAt = time.Now()

		if ctx.Err() != nil {
			// Parent cancelled: the whole orchestration is abandoned.
			return result, ctx.Err()
		}

		// Per-tool timeout is an ordinary failure, not a crash of the
		// orchestration.
		result.Status = StatusFailed
		result.Error = "tool execution timeout after " + timeout.String()

		logger.Warn().
			Str("tool", result.ToolName).
			Str("label", result.PlaceholderLabel).
			Dur("timeout", timeout).
			Msg("Tool execution timeout")

		return result, nil
	}
}

// skippedResult records an instance that never ran.
func skippedResult(inst ResolvedInstance, reason string) ToolExecutionResult {
	return ToolExecutionResult{
		PlaceholderLabel: inst.Instance.PlaceholderLabel,
		ToolName:         inst.Instance.ToolName,
		Status:           StatusSkipped,
		Error:            reason,
	}
}
