package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/HerbHall/cellwatch/internal/command"
)

// Compile-time interface check.
var _ command.Runner = (*Runner)(nil)

// Runner is a scripted command.Runner that records every invocation in order.
// Commands are matched by prefix against "name arg1 arg2 ..."; the first rule
// registered for a matching prefix wins. Unmatched commands return Default.
type Runner struct {
	mu      sync.Mutex
	calls   []string
	rules   []*rule
	Default command.Result
}

type rule struct {
	prefix  string
	results []command.Result
	fn      func(call string) command.Result
	hits    int
}

// NewRunner returns a Runner whose unmatched commands succeed.
func NewRunner() *Runner {
	return &Runner{}
}

// On scripts the results returned for commands starting with prefix. Results
// are returned in sequence; the last one repeats once exhausted.
func (r *Runner) On(prefix string, results ...command.Result) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, &rule{prefix: prefix, results: results})
	return r
}

// OnFunc computes the result for commands starting with prefix.
func (r *Runner) OnFunc(prefix string, fn func(call string) command.Result) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, &rule{prefix: prefix, fn: fn})
	return r
}

// Run records the call and returns the scripted result.
func (r *Runner) Run(_ context.Context, name string, args ...string) command.Result {
	call := strings.Join(append([]string{name}, args...), " ")

	r.mu.Lock()
	r.calls = append(r.calls, call)
	var matched *rule
	for _, rl := range r.rules {
		if strings.HasPrefix(call, rl.prefix) {
			matched = rl
			break
		}
	}
	var res command.Result
	var fn func(string) command.Result
	switch {
	case matched == nil:
		res = r.Default
	case matched.fn != nil:
		fn = matched.fn
	case len(matched.results) == 0:
		res = command.Result{}
	default:
		i := min(matched.hits, len(matched.results)-1)
		res = matched.results[i]
	}
	if matched != nil {
		matched.hits++
	}
	r.mu.Unlock()

	if fn != nil {
		res = fn(call)
	}
	res.Name = name
	res.Args = args
	return res
}

// Calls returns a copy of all recorded invocations.
func (r *Runner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// Index returns the position of the first call starting with prefix, or -1.
func (r *Runner) Index(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.calls {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

// Called reports whether any call started with prefix.
func (r *Runner) Called(prefix string) bool {
	return r.Index(prefix) >= 0
}

// Exit is shorthand for a Result with the given exit code.
func Exit(code int) command.Result {
	return command.Result{ExitCode: code}
}

// Output is shorthand for a successful Result with stdout.
func Output(stdout string) command.Result {
	return command.Result{Stdout: stdout}
}
