package runner

import (
	"context"
	"strings"
	"sync"
)

// Call records one invocation seen by a Fake.
type Call struct {
	Name string
	Args []string
}

// String renders the call as a single command line, for test assertions.
func (c Call) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Fake is a Runner for tests. It records every call and answers from a map
// of command-line prefixes to canned stdout or errors.
type Fake struct {
	mu      sync.Mutex
	calls   []Call
	Outputs map[string]string // command-line prefix -> stdout
	Errors  map[string]error  // command-line prefix -> error
}

func NewFake() *Fake {
	return &Fake{
		Outputs: map[string]string{},
		Errors:  map[string]error{},
	}
}

func (f *Fake) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	call := Call{Name: name, Args: args}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	line := call.String()
	for prefix, err := range f.Errors {
		if strings.HasPrefix(line, prefix) {
			return nil, err
		}
	}
	for prefix, out := range f.Outputs {
		if strings.HasPrefix(line, prefix) {
			return []byte(out), nil
		}
	}
	return nil, nil
}

// Calls returns a copy of the recorded invocations.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CommandLines returns every recorded invocation rendered as a command line.
func (f *Fake) CommandLines() []string {
	calls := f.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.String()
	}
	return lines
}
