package exec

import (
	"context"
	"strings"
	"sync"
)

// FakeResponse is a canned reply of the FakeExecutor
type FakeResponse struct {
	Output string
	Err    error
}

// FakeExecutor answers commands from a table keyed by pod name and a
// substring of the joined command. Used by tests of the exec callers.
type FakeExecutor struct {
	mu        sync.Mutex
	responses map[string][]fakeRule
	Calls     []FakeCall
}

// FakeCall records one invocation of the FakeExecutor
type FakeCall struct {
	Pod     string
	Command string
}

type fakeRule struct {
	match    string
	response FakeResponse
}

// NewFakeExecutor returns an empty FakeExecutor
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{responses: map[string][]fakeRule{}}
}

// On registers a response for commands on the pod containing match, the
// first registered match wins
func (f *FakeExecutor) On(pod, match string, response FakeResponse) *FakeExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[pod] = append(f.responses[pod], fakeRule{match: match, response: response})
	return f
}

func (f *FakeExecutor) Exec(ctx context.Context, podDetails PodDetails, command []string) (string, error) {
	joined := strings.Join(command, " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, FakeCall{Pod: podDetails.PodName, Command: joined})
	for _, rule := range f.responses[podDetails.PodName] {
		if strings.Contains(joined, rule.match) {
			return rule.response.Output, rule.response.Err
		}
	}
	return "", nil
}
