package orchestrator

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndaru/kirana/pkg/placeholder"
	"github.com/ndaru/kirana/pkg/toolkit"
)

func TestParallel_Independence(t *testing.T) {
	rec := newRecorder()
	instances := []ResolvedInstance{
		fakeInstance("one", "1_a", "out A", fakeOpts{rec: rec}),
		fakeInstance("two", "2_b", "out B", fakeOpts{rec: rec}),
		fakeInstance("three", "3_c", "out C", fakeOpts{rec: rec}),
	}

	strategy := &parallelStrategy{logger: zerolog.Nop()}
	agg, report, err := strategy.Run(context.Background(), Request{
		UserMessage:    "question",
		PromptTemplate: "{1_a} {2_b} {3_c}",
	}, instances, RunOptions{})
	require.NoError(t, err)

	// No instance ever sees another's output: the partial prompt is never
	// populated for parallel execution.
	for _, label := range []string{"1_a", "2_b", "3_c"} {
		query := rec.query(label)
		assert.Empty(t, query.PartialPrompt, "label %s", label)
		assert.Equal(t, "question", query.UserMessage)
	}

	assert.Equal(t, AggregatedContext{"1_a": "out A", "2_b": "out B", "3_c": "out C"}, agg)
	require.Len(t, report.Results, 3)
}

func TestParallel_DeterministicUnderRandomizedCompletion(t *testing.T) {
	run := func(seed int64) (AggregatedContext, []string) {
		rng := rand.New(rand.NewSource(seed))
		instances := []ResolvedInstance{
			fakeInstance("one", "1_a", "out A", fakeOpts{delay: time.Duration(rng.Intn(40)) * time.Millisecond}),
			fakeInstance("two", "2_b", "out B", fakeOpts{delay: time.Duration(rng.Intn(40)) * time.Millisecond}),
			fakeInstance("three", "3_c", "out C", fakeOpts{delay: time.Duration(rng.Intn(40)) * time.Millisecond}),
		}

		strategy := &parallelStrategy{logger: zerolog.Nop()}
		agg, report, err := strategy.Run(context.Background(), Request{}, instances, RunOptions{})
		require.NoError(t, err)

		order := make([]string, 0, len(report.Results))
		for _, r := range report.Results {
			order = append(order, r.PlaceholderLabel)
		}
		return agg, order
	}

	firstAgg, firstOrder := run(1)

	for seed := int64(2); seed < 8; seed++ {
		agg, order := run(seed)
		// Report stays in configuration order and the aggregate is
		// identical no matter which worker finished first.
		assert.Equal(t, firstOrder, order, "seed %d", seed)
		assert.Equal(t, firstAgg, agg, "seed %d", seed)
	}

	assert.Equal(t, []string{"1_a", "2_b", "3_c"}, firstOrder)
}

func TestParallel_JoinBarrierWaitsForAll(t *testing.T) {
	rec := newRecorder()
	instances := []ResolvedInstance{
		fakeInstance("fast", "1_fast", "quick", fakeOpts{rec: rec}),
		fakeInstance("slow", "2_slow", "late", fakeOpts{rec: rec, delay: 80 * time.Millisecond}),
	}

	strategy := &parallelStrategy{logger: zerolog.Nop()}
	started := time.Now()
	agg, _, err := strategy.Run(context.Background(), Request{}, instances, RunOptions{})
	require.NoError(t, err)

	// No early return: the slow worker's output is present.
	assert.Equal(t, "late", agg["2_slow"])
	assert.GreaterOrEqual(t, time.Since(started), 80*time.Millisecond)
}

func TestParallel_GracefulDegradation(t *testing.T) {
	instances := []ResolvedInstance{
		fakeInstance("a", "1_a", "ok A", fakeOpts{}),
		fakeInstance("b", "2_b", "", fakeOpts{err: toolkit.NewExecutionError("b", "resource not found", nil)}),
		fakeInstance("c", "3_c", "ok C", fakeOpts{}),
	}

	strategy := &parallelStrategy{logger: zerolog.Nop()}
	agg, report, err := strategy.Run(context.Background(), Request{}, instances, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, placeholder.FallbackText, agg["2_b"])
	assert.Equal(t, "ok A", agg["1_a"])
	assert.Equal(t, "ok C", agg["3_c"])
	assert.Equal(t, StatusFailed, report.Results[1].Status)
}

func TestParallel_Timeout(t *testing.T) {
	instances := []ResolvedInstance{
		fakeInstance("slow", "1_slow", "never arrives", fakeOpts{delay: time.Second}),
		fakeInstance("fast", "2_fast", "done", fakeOpts{}),
	}

	strategy := &parallelStrategy{logger: zerolog.Nop()}
	agg, report, err := strategy.Run(context.Background(), Request{}, instances, RunOptions{ToolTimeout: 40 * time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, placeholder.FallbackText, agg["1_slow"])
	assert.Equal(t, "done", agg["2_fast"])
	assert.Equal(t, StatusFailed, report.Results[0].Status)
	assert.Contains(t, report.Results[0].Error, "timeout")
}

func TestParallel_FailFast(t *testing.T) {
	instances := []ResolvedInstance{
		fakeInstance("a", "1_a", "", fakeOpts{err: toolkit.NewExecutionError("a", "boom", nil)}),
		fakeInstance("b", "2_b", "slowish", fakeOpts{delay: 300 * time.Millisecond}),
	}

	strategy := &parallelStrategy{logger: zerolog.Nop()}
	agg, report, err := strategy.Run(context.Background(), Request{}, instances, RunOptions{FailFast: true})

	require.Error(t, err)
	assert.Nil(t, agg)
	require.Len(t, report.Results, 2)
	assert.Equal(t, StatusFailed, report.Results[0].Status)
}

func TestParallel_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	instances := []ResolvedInstance{
		fakeInstance("a", "1_a", "x", fakeOpts{delay: 5 * time.Second}),
		fakeInstance("b", "2_b", "y", fakeOpts{delay: 5 * time.Second}),
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	strategy := &parallelStrategy{logger: zerolog.Nop()}
	agg, report, err := strategy.Run(ctx, Request{}, instances, RunOptions{})

	// Completed results are discarded: cancellation is a distinct outcome,
	// never a partial prompt.
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, agg)
	assert.Nil(t, report)
}

func TestParallel_SourcesSurviveJoin(t *testing.T) {
	instances := []ResolvedInstance{
		fakeInstance("a", "1_a", "A", fakeOpts{sources: []toolkit.Source{{Kind: "document", Ref: "doc-1"}}}),
		fakeInstance("b", "2_b", "B", fakeOpts{sources: []toolkit.Source{{Kind: "document", Ref: "doc-2"}}}),
	}

	strategy := &parallelStrategy{logger: zerolog.Nop()}
	_, report, err := strategy.Run(context.Background(), Request{}, instances, RunOptions{})
	require.NoError(t, err)

	merged := MergeSources(report)
	require.Len(t, merged, 2)
	assert.Equal(t, "doc-1", merged[0].Ref)
	assert.Equal(t, "doc-2", merged[1].Ref)
}
