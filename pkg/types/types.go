package types

import (
	"fmt"
	"time"
)

// Protocol is the storage access mode of a workload
type Protocol string

const (
	// FileShared is a CephFS volume mounted read-write by many writers
	FileShared Protocol = "cephfs"
	// BlockExclusive is an RBD volume mounted read-write by exactly one writer
	BlockExclusive Protocol = "rbd"
)

// Role of a workload instance
type Role string

const (
	Writer Role = "writer"
	Reader Role = "reader"
)

// InstanceStatus is the observed status of a workload instance
type InstanceStatus string

const (
	StatusPending           InstanceStatus = "Pending"
	StatusRunning           InstanceStatus = "Running"
	StatusCompleted         InstanceStatus = "Completed"
	StatusFailed            InstanceStatus = "Failed"
	StatusTerminating       InstanceStatus = "Terminating"
	StatusError             InstanceStatus = "Error"
	StatusCrashLoopBackOff  InstanceStatus = "CrashLoopBackOff"
	StatusContainerCreating InstanceStatus = "ContainerCreating"
	StatusUnknown           InstanceStatus = "Unknown"
)

// labels of the logwriter and logreader workloads
const (
	LogWriterCephFSLabel = "app=logwriter-cephfs"
	LogReaderCephFSLabel = "app=logreader-cephfs"
	LogWriterRBDLabel    = "app=logwriter-rbd"
)

// WorkloadInstance is one running unit of a writer or reader workload
type WorkloadInstance struct {
	Name      string
	Namespace string
	Role      Role
	Protocol  Protocol
	Label     string
	Zone      string
	Node      string
	VolumeRef string
	Container string
	Status    InstanceStatus
}

// LogFileMap maps instance name to artifact name to the recorded start marker.
// For FileShared workloads the map holds a single key, the instance the volume was read from.
type LogFileMap map[string]map[string]string

// Artifacts returns the artifact names recorded for the instance
func (m LogFileMap) Artifacts(instance string) []string {
	var names []string
	for name := range m[instance] {
		names = append(names, name)
	}
	return names
}

// FaultKind names the supported fault types
type FaultKind string

const (
	NetworkSplit   FaultKind = "NetworkSplit"
	NodeShutdown   FaultKind = "NodeShutdown"
	DaemonScale    FaultKind = "DaemonScale"
	ResourceDelete FaultKind = "ResourceDelete"
	NetworkFence   FaultKind = "NetworkFence"
)

// FaultWindow is the planned interval of a fault
type FaultWindow struct {
	Kind     FaultKind
	Name     string
	Start    time.Time
	Duration time.Duration
	Targets  []string
}

// NewFaultWindow validates that the planned start is strictly after issue time
func NewFaultWindow(kind FaultKind, name string, issuedAt, start time.Time, duration time.Duration, targets []string) (FaultWindow, error) {
	if !start.After(issuedAt) {
		return FaultWindow{}, fmt.Errorf("fault start %s is not after issue time %s", start.Format(time.RFC3339), issuedAt.Format(time.RFC3339))
	}
	if duration <= 0 {
		return FaultWindow{}, fmt.Errorf("fault duration must be positive, got %s", duration)
	}
	return FaultWindow{Kind: kind, Name: name, Start: start.UTC(), Duration: duration, Targets: targets}, nil
}

// End is the planned end of the fault
func (w FaultWindow) End() time.Time {
	return w.Start.Add(w.Duration)
}

// ObservationWindow is the realized interval verification runs against
type ObservationWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window, bounds included
func (w ObservationWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Duration of the window
func (w ObservationWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w ObservationWindow) String() string {
	return fmt.Sprintf("[%s, %s]", w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
}
