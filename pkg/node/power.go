// Package node defines the node power lifecycle used by the shutdown faults.
package node

import (
	"context"
	"sync"
)

// PowerController stops and starts cluster nodes by name
type PowerController interface {
	StopNodes(ctx context.Context, nodes []string) error
	StartNodes(ctx context.Context, nodes []string) error
}

// FakePowerController records power operations, used by tests
type FakePowerController struct {
	mu       sync.Mutex
	Stopped  map[string]bool
	Stops    [][]string
	Starts   [][]string
	StopErr  error
	StartErr error
	// OnStop and OnStart let tests flip node readiness in a fake clientset
	OnStop  func(nodes []string)
	OnStart func(nodes []string)
}

// NewFakePowerController returns a FakePowerController with every node running
func NewFakePowerController() *FakePowerController {
	return &FakePowerController{Stopped: map[string]bool{}}
}

func (f *FakePowerController) StopNodes(ctx context.Context, nodes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Stops = append(f.Stops, nodes)
	if f.StopErr != nil {
		return f.StopErr
	}
	for _, n := range nodes {
		f.Stopped[n] = true
	}
	if f.OnStop != nil {
		f.OnStop(nodes)
	}
	return nil
}

func (f *FakePowerController) StartNodes(ctx context.Context, nodes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Starts = append(f.Starts, nodes)
	if f.StartErr != nil {
		return f.StartErr
	}
	for _, n := range nodes {
		delete(f.Stopped, n)
	}
	if f.OnStart != nil {
		f.OnStart(nodes)
	}
	return nil
}
