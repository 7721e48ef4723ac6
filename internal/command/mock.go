package command

import (
	"context"
	"strings"
	"sync"
)

// Call is one invocation recorded by MockRunner.
type Call struct {
	Name string
	Args []string
	// Launched is true for Launch calls, where Name holds the command line.
	Launched bool
	// Detached is true for Start calls.
	Detached bool
}

// String renders the call as a command line.
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// MockRunner records commands instead of running them.
type MockRunner struct {
	mu    sync.Mutex
	calls []Call
	err   error
}

// NewMockRunner creates a new MockRunner.
func NewMockRunner() *MockRunner {
	return &MockRunner{}
}

// SetError makes every following call fail with err.
func (m *MockRunner) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Run records the call.
func (m *MockRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Name: name, Args: append([]string(nil), args...)})
	return "", m.err
}

// Start records the call.
func (m *MockRunner) Start(name string, args ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Name: name, Args: append([]string(nil), args...), Detached: true})
	return m.err
}

// Launch records the command line.
func (m *MockRunner) Launch(cmdline string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Name: cmdline, Launched: true})
	return m.err
}

// Calls returns a copy of the recorded calls.
func (m *MockRunner) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}
