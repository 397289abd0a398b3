// Package tolerance holds the reviewable table of degraded states that are
// expected while a given fault is active and must not fail a scenario.
package tolerance

import (
	"os"
	"strings"

	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/palantir/stacktrace"
	"gopkg.in/yaml.v2"
)

// Rule lists what is tolerated for one fault kind, optionally narrowed to a split name
type Rule struct {
	Fault            types.FaultKind        `yaml:"fault"`
	Splits           []string               `yaml:"splits,omitempty"`
	Statuses         []types.InstanceStatus `yaml:"statuses,omitempty"`
	ExecErrors       []string               `yaml:"execErrors,omitempty"`
	HealthWarnings   []string               `yaml:"healthWarnings,omitempty"`
	ForceDeleteStuck bool                   `yaml:"forceDeleteStuck,omitempty"`
}

// Table is the ordered set of rules, every matching rule contributes
type Table struct {
	Rules []Rule `yaml:"rules"`
}

// Default is the built-in table.
// Splits "bc" and "ab-bc" cut both data zones apart, so the shared volume
// loses quorum from one side and its writers and readers crash-loop.
func Default() *Table {
	return &Table{Rules: []Rule{
		{
			Fault:      types.NetworkSplit,
			Splits:     []string{"bc", "ab-bc"},
			Statuses:   []types.InstanceStatus{types.StatusError, types.StatusCrashLoopBackOff},
			ExecErrors: []string{"Permission Denied", "unable to upgrade connection"},
		},
		{
			Fault:          types.NetworkSplit,
			HealthWarnings: []string{"daemons have recently crashed"},
		},
		{
			Fault:          types.DaemonScale,
			HealthWarnings: []string{"daemons have recently crashed"},
		},
		{
			Fault:          types.ResourceDelete,
			HealthWarnings: []string{"daemons have recently crashed"},
		},
		{
			Fault:            types.NodeShutdown,
			Statuses:         []types.InstanceStatus{types.StatusTerminating, types.StatusPending, types.StatusContainerCreating},
			ExecErrors:       []string{"unable to upgrade connection"},
			HealthWarnings:   []string{"daemons have recently crashed"},
			ForceDeleteStuck: true,
		},
		{
			Fault:          types.NetworkFence,
			Statuses:       []types.InstanceStatus{types.StatusPending, types.StatusContainerCreating},
			HealthWarnings: []string{"daemons have recently crashed"},
		},
	}}
}

// Load reads a yaml table from path, the default table is returned for an empty path
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stacktrace.Propagate(err, "could not read tolerance table %s", path)
	}
	return Parse(data)
}

// Parse decodes a yaml table
func Parse(data []byte) (*Table, error) {
	table := &Table{}
	if err := yaml.UnmarshalStrict(data, table); err != nil {
		return nil, stacktrace.Propagate(err, "could not parse tolerance table")
	}
	return table, nil
}

func (r Rule) matches(fault types.FaultKind, split string) bool {
	if r.Fault != fault {
		return false
	}
	if len(r.Splits) == 0 {
		return true
	}
	for _, s := range r.Splits {
		if s == split {
			return true
		}
	}
	return false
}

func (t *Table) rules(fault types.FaultKind, split string) []Rule {
	if t == nil {
		return nil
	}
	var out []Rule
	for _, r := range t.Rules {
		if r.matches(fault, split) {
			out = append(out, r)
		}
	}
	return out
}

// Statuses returns the additional instance statuses accepted under the fault
func (t *Table) Statuses(fault types.FaultKind, split string) []types.InstanceStatus {
	var out []types.InstanceStatus
	for _, r := range t.rules(fault, split) {
		out = append(out, r.Statuses...)
	}
	return out
}

// ExecErrorTolerated reports whether an exec failure is expected under the fault
func (t *Table) ExecErrorTolerated(fault types.FaultKind, split string, err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, r := range t.rules(fault, split) {
		for _, fragment := range r.ExecErrors {
			if strings.Contains(msg, fragment) {
				return true
			}
		}
	}
	return false
}

// HealthWarningTolerated reports whether the health detail names any known recoverable warning of the fault
func (t *Table) HealthWarningTolerated(fault types.FaultKind, split, detail string) bool {
	for _, r := range t.rules(fault, split) {
		for _, warning := range r.HealthWarnings {
			if strings.Contains(detail, warning) {
				return true
			}
		}
	}
	return false
}

// ForceDeleteStuck reports whether instances stuck in Terminating may be force deleted
func (t *Table) ForceDeleteStuck(fault types.FaultKind, split string) bool {
	for _, r := range t.rules(fault, split) {
		if r.ForceDeleteStuck {
			return true
		}
	}
	return false
}
