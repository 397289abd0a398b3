package recovery

import (
	"fmt"
	"sync"
	"time"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"k8s.io/utils/clock"
)

// State of the cluster as seen by the orchestrator
type State string

const (
	Healthy       State = "Healthy"
	FaultInjected State = "FaultInjected"
	Degraded      State = "Degraded"
	Recovering    State = "Recovering"
	Verified      State = "Verified"
	Failed        State = "Failed"
)

// transitions lists the legal successors of every state. A recovered cluster
// may take another fault before it is verified.
var transitions = map[State][]State{
	Healthy:       {FaultInjected, Failed},
	FaultInjected: {Degraded, Recovering, Failed},
	Degraded:      {Recovering, Failed},
	Recovering:    {FaultInjected, Verified, Failed},
	Verified:      {},
	Failed:        {},
}

// Transition is one recorded state change
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Machine validates and records state changes
type Machine struct {
	mu      sync.Mutex
	clock   clock.Clock
	state   State
	history []Transition
	hooks   []func(Transition)
}

// NewMachine returns a machine in the Healthy state
func NewMachine(clk clock.Clock) *Machine {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Machine{clock: clk, state: Healthy}
}

// State returns the current state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// History returns every transition taken so far
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transition(nil), m.history...)
}

// OnTransition registers a hook called after every successful transition
func (m *Machine) OnTransition(hook func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// To moves the machine to the target state, an illegal transition is an error
func (m *Machine) To(target State) error {
	m.mu.Lock()
	if !legal(m.state, target) {
		from := m.state
		m.mu.Unlock()
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeUnexpectedBehaviour, Reason: fmt.Sprintf("illegal transition from %s to %s", from, target)}
	}
	t := Transition{From: m.state, To: target, At: m.clock.Now().UTC()}
	m.state = target
	m.history = append(m.history, t)
	hooks := append(([]func(Transition))(nil), m.hooks...)
	m.mu.Unlock()

	for _, hook := range hooks {
		hook(t)
	}
	return nil
}

func legal(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
