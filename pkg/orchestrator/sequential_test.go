package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndaru/kirana/pkg/placeholder"
	"github.com/ndaru/kirana/pkg/toolkit"
)

func TestSequential_ChainedContext(t *testing.T) {
	rec := newRecorder()
	instances := []ResolvedInstance{
		fakeInstance("one", "1_context", "first output", fakeOpts{rec: rec}),
		fakeInstance("two", "2_rubric", "second output", fakeOpts{rec: rec}),
		fakeInstance("three", "3_file", "third output", fakeOpts{rec: rec}),
	}

	req := Request{
		RequestID:      "req-1",
		UserMessage:    "hello",
		PromptTemplate: "A: {1_context}\nB: {2_rubric}\nC: {3_file}",
	}

	strategy := &sequentialStrategy{logger: zerolog.Nop()}
	agg, report, err := strategy.Run(context.Background(), req, instances, RunOptions{})
	require.NoError(t, err)

	// Tool 2 observes tool 1's output but not tool 3's.
	second := rec.query("2_rubric")
	assert.Contains(t, second.PartialPrompt, "first output")
	assert.NotContains(t, second.PartialPrompt, "third output")
	assert.Contains(t, second.PartialPrompt, "{2_rubric}")

	// Tool 1 sees the pristine template.
	first := rec.query("1_context")
	assert.Equal(t, req.PromptTemplate, first.PartialPrompt)

	// Tool 3 sees both predecessors.
	third := rec.query("3_file")
	assert.Contains(t, third.PartialPrompt, "first output")
	assert.Contains(t, third.PartialPrompt, "second output")

	assert.Equal(t, AggregatedContext{
		"1_context": "first output",
		"2_rubric":  "second output",
		"3_file":    "third output",
	}, agg)
	require.Len(t, report.Results, 3)
	assert.Equal(t, "1_context", report.Results[0].PlaceholderLabel)
	assert.Equal(t, "3_file", report.Results[2].PlaceholderLabel)
}

func TestSequential_GracefulDegradation(t *testing.T) {
	instances := []ResolvedInstance{
		fakeInstance("a", "1_a", "ok A", fakeOpts{}),
		fakeInstance("b", "2_b", "", fakeOpts{err: toolkit.NewExecutionError("b", "backend unreachable", nil)}),
		fakeInstance("c", "3_c", "ok C", fakeOpts{}),
	}

	strategy := &sequentialStrategy{logger: zerolog.Nop()}
	agg, report, err := strategy.Run(context.Background(), Request{PromptTemplate: "{1_a} {2_b} {3_c}"}, instances, RunOptions{})
	require.NoError(t, err)

	// Failed instance still contributes an entry: the fallback marker.
	assert.Equal(t, placeholder.FallbackText, agg["2_b"])
	assert.Equal(t, "ok A", agg["1_a"])
	assert.Equal(t, "ok C", agg["3_c"])

	require.Len(t, report.Results, 3)
	assert.Equal(t, StatusOK, report.Results[0].Status)
	assert.Equal(t, StatusFailed, report.Results[1].Status)
	assert.Equal(t, StatusOK, report.Results[2].Status)
	assert.Contains(t, report.Results[1].Error, "backend unreachable")
}

func TestSequential_FailFast(t *testing.T) {
	rec := newRecorder()
	instances := []ResolvedInstance{
		fakeInstance("a", "1_a", "", fakeOpts{rec: rec, err: toolkit.NewExecutionError("a", "boom", nil)}),
		fakeInstance("b", "2_b", "never", fakeOpts{rec: rec}),
		fakeInstance("c", "3_c", "never", fakeOpts{rec: rec}),
	}

	strategy := &sequentialStrategy{logger: zerolog.Nop()}
	agg, report, err := strategy.Run(context.Background(), Request{}, instances, RunOptions{FailFast: true})
	require.Error(t, err)
	assert.Nil(t, agg)

	// Tools 2 and 3 never executed.
	assert.Equal(t, 1, rec.callCount())

	require.Len(t, report.Results, 3)
	assert.Equal(t, StatusFailed, report.Results[0].Status)
	assert.Equal(t, StatusSkipped, report.Results[1].Status)
	assert.Equal(t, StatusSkipped, report.Results[2].Status)
}

func TestSequential_FailedOutputFeedsFallbackToChain(t *testing.T) {
	rec := newRecorder()
	instances := []ResolvedInstance{
		fakeInstance("a", "1_a", "", fakeOpts{err: toolkit.NewExecutionError("a", "down", nil)}),
		fakeInstance("b", "2_b", "ok", fakeOpts{rec: rec}),
	}

	strategy := &sequentialStrategy{logger: zerolog.Nop()}
	_, _, err := strategy.Run(context.Background(), Request{PromptTemplate: "{1_a} then {2_b}"}, instances, RunOptions{})
	require.NoError(t, err)

	assert.Contains(t, rec.query("2_b").PartialPrompt, placeholder.FallbackText)
}

func TestSequential_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	instances := []ResolvedInstance{
		fakeInstance("slow", "1_slow", "x", fakeOpts{delay: 5 * time.Second}),
		fakeInstance("next", "2_next", "y", fakeOpts{}),
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	strategy := &sequentialStrategy{logger: zerolog.Nop()}
	agg, report, err := strategy.Run(ctx, Request{}, instances, RunOptions{})

	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, agg)
	assert.Nil(t, report)
}

func TestSequential_TimeoutIsToleratedFailure(t *testing.T) {
	instances := []ResolvedInstance{
		fakeInstance("slow", "1_slow", "x", fakeOpts{delay: time.Second}),
		fakeInstance("fast", "2_fast", "y", fakeOpts{}),
	}

	strategy := &sequentialStrategy{logger: zerolog.Nop()}
	agg, report, err := strategy.Run(context.Background(), Request{}, instances, RunOptions{ToolTimeout: 30 * time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, placeholder.FallbackText, agg["1_slow"])
	assert.Equal(t, "y", agg["2_fast"])
	assert.Equal(t, StatusFailed, report.Results[0].Status)
	assert.Contains(t, report.Results[0].Error, "timeout")
}

func TestSequential_EmptyOutputIsNotFailure(t *testing.T) {
	instances := []ResolvedInstance{
		fakeInstance("empty", "1_empty", "", fakeOpts{}),
	}

	strategy := &sequentialStrategy{logger: zerolog.Nop()}
	agg, report, err := strategy.Run(context.Background(), Request{}, instances, RunOptions{})
	require.NoError(t, err)

	text, ok := agg["1_empty"]
	assert.True(t, ok)
	assert.Equal(t, "", text)
	assert.Equal(t, StatusOK, report.Results[0].Status)
}
