package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/ndaru/kirana/pkg/toolkit"
)

// recorder captures the QueryContext each tool invocation received, keyed by
// placeholder label, so tests can assert what each instance was allowed to
// see.
type recorder struct {
	mu      sync.Mutex
	queries map[string]toolkit.QueryContext
	calls   []string
}

func newRecorder() *recorder {
	return &recorder{queries: make(map[string]toolkit.QueryContext)}
}

func (r *recorder) record(label string, query toolkit.QueryContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries[label] = query
	r.calls = append(r.calls, label)
}

func (r *recorder) query(label string) toolkit.QueryContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queries[label]
}

func (r *recorder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// fakeInstance builds a ResolvedInstance around a canned behavior. delay
// lets parallel tests randomize completion order; err simulates a tool
// failure.
func fakeInstance(name, label, text string, opts fakeOpts) ResolvedInstance {
	tool := toolkit.ToolFunc(func(ctx context.Context, query toolkit.QueryContext, config map[string]interface{}) (*toolkit.Output, error) {
		if opts.rec != nil {
			opts.rec.record(label, query)
		}
		if opts.delay > 0 {
			select {
			case <-time.After(opts.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if opts.err != nil {
			return nil, opts.err
		}
		return &toolkit.Output{Text: text, Sources: opts.sources}, nil
	})

	return ResolvedInstance{
		Instance: toolkit.InstanceConfig{
			ToolName:         name,
			PlaceholderLabel: label,
			Enabled:          true,
		},
		Resolved: &toolkit.ResolvedTool{
			Definition: toolkit.Definition{Name: name, Description: name, PlaceholderKind: "context"},
			Tool:       tool,
		},
	}
}

type fakeOpts struct {
	rec     *recorder
	delay   time.Duration
	err     error
	sources []toolkit.Source
}
