// Package session carries the state shared by the components of one scenario run.
// A Session is created by the driver and passed by pointer; nothing in the
// harness keeps it in a package variable.
package session

import (
	"sort"
	"sync"

	"github.com/litmuschaos/stretch-dr-go/pkg/clients"
	"github.com/litmuschaos/stretch-dr-go/pkg/node"
	experimentTypes "github.com/litmuschaos/stretch-dr-go/pkg/stretch/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/tolerance"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/exec"
	"k8s.io/utils/clock"
)

// Session is the explicit context object of a scenario run
type Session struct {
	Clients   clients.ClientSets
	Details   *experimentTypes.ExperimentDetails
	Clock     clock.Clock
	Executor  exec.Executor
	Power     node.PowerController
	Tolerance *tolerance.Table

	mu        sync.Mutex
	workloads map[string][]types.WorkloadInstance
	logFiles  map[string]types.LogFileMap
	replicas  map[string]ScaledDeployment
	stopped   map[string]struct{}
	active    *types.FaultWindow
	outcomes  []types.OutcomeRecord
}

// ScaledDeployment remembers the replica count a deployment had before a fault
type ScaledDeployment struct {
	Namespace string
	Name      string
	Replicas  int32
}

// New returns a session with empty ledgers
func New(c clients.ClientSets, details *experimentTypes.ExperimentDetails, clk clock.Clock, executor exec.Executor, power node.PowerController, table *tolerance.Table) *Session {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if table == nil {
		table = tolerance.Default()
	}
	return &Session{
		Clients:   c,
		Details:   details,
		Clock:     clk,
		Executor:  executor,
		Power:     power,
		Tolerance: table,
		workloads: map[string][]types.WorkloadInstance{},
		logFiles:  map[string]types.LogFileMap{},
		replicas:  map[string]ScaledDeployment{},
		stopped:   map[string]struct{}{},
	}
}

// SetWorkloads caches the instances observed for a label
func (s *Session) SetWorkloads(label string, instances []types.WorkloadInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workloads[label] = instances
}

// Workloads returns the cached instances of a label
func (s *Session) Workloads(label string) []types.WorkloadInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.WorkloadInstance(nil), s.workloads[label]...)
}

// SetLogFileMap stores the pre-fault baseline of a writer label
func (s *Session) SetLogFileMap(label string, m types.LogFileMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logFiles[label] = m
}

// LogFileMap returns the baseline of a writer label
func (s *Session) LogFileMap(label string) (types.LogFileMap, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.logFiles[label]
	return m, ok
}

// RecordScale remembers the first observed replica count of a deployment
func (s *Session) RecordScale(namespace, name string, replicas int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := namespace + "/" + name
	if _, ok := s.replicas[key]; !ok {
		s.replicas[key] = ScaledDeployment{Namespace: namespace, Name: name, Replicas: replicas}
	}
}

// ForgetScale drops a deployment once its replica count has been restored
func (s *Session) ForgetScale(namespace, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.replicas, namespace+"/"+name)
}

// ScaledDeployments lists deployments whose replica counts still need restoring
func (s *Session) ScaledDeployments() []ScaledDeployment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ScaledDeployment
	for _, d := range s.replicas {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Namespace+out[i].Name < out[j].Namespace+out[j].Name })
	return out
}

// RecordStopped remembers nodes powered off by a fault
func (s *Session) RecordStopped(nodes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		s.stopped[n] = struct{}{}
	}
}

// RecordStarted forgets nodes which were powered back on
func (s *Session) RecordStarted(nodes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		delete(s.stopped, n)
	}
}

// StoppedNodes lists nodes which are still powered off
func (s *Session) StoppedNodes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for n := range s.stopped {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// SetActiveFault records the fault whose effects are being observed
func (s *Session) SetActiveFault(w *types.FaultWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = w
}

// ActiveFault returns the kind and split name of the active fault, if any
func (s *Session) ActiveFault() (types.FaultKind, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return "", "", false
	}
	return s.active.Kind, s.active.Name, true
}

// AddOutcome appends a verification result to the run
func (s *Session) AddOutcome(o types.OutcomeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
}

// Outcomes returns every verification result of the run
func (s *Session) Outcomes() []types.OutcomeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.OutcomeRecord(nil), s.outcomes...)
}
