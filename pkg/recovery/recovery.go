// Package recovery brings the cluster back after a fault and verifies that no
// data was lost or corrupted on the way.
package recovery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/fault"
	"github.com/litmuschaos/stretch-dr-go/pkg/health"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/session"
	"github.com/litmuschaos/stretch-dr-go/pkg/status"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/retry"
	"github.com/litmuschaos/stretch-dr-go/pkg/verify"
	"github.com/litmuschaos/stretch-dr-go/pkg/workloads"
	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"
)

// Finalizer is a teardown step, finalizers run in reverse registration order
type Finalizer func(ctx context.Context) error

// Orchestrator drives the recovery state machine of one scenario run
type Orchestrator struct {
	*Machine

	s          *session.Session
	checker    health.Checker
	finalizers []Finalizer
}

// New returns an orchestrator in the Healthy state
func New(s *session.Session, checker health.Checker) *Orchestrator {
	return &Orchestrator{Machine: NewMachine(s.Clock), s: s, checker: checker}
}

// Defer registers a teardown step
func (o *Orchestrator) Defer(f Finalizer) {
	o.finalizers = append(o.finalizers, f)
}

// Finalize runs every registered teardown step, also after a failure of an
// earlier one. The first error is returned.
func (o *Orchestrator) Finalize(ctx context.Context) error {
	var first error
	for i := len(o.finalizers) - 1; i >= 0; i-- {
		if err := o.finalizers[i](ctx); err != nil {
			log.Errorf("[Cleanup]: Teardown step failed, err: %v", err)
			if first == nil {
				first = err
			}
		}
	}
	o.finalizers = nil
	return first
}

// Fail moves to Failed and returns err
func (o *Orchestrator) Fail(err error) error {
	if o.State() != Failed {
		if terr := o.To(Failed); terr != nil {
			log.Warnf("[Recover]: %v", terr)
		}
	}
	return err
}

// Recover restores node power and replica counts, repairs workload instances
// which did not come back, waits for every node to be Ready and for the
// cluster health. Any exhausted step moves the machine to Failed.
func (o *Orchestrator) Recover(ctx context.Context, labels ...string) error {
	if err := o.To(Recovering); err != nil {
		return err
	}
	d := o.s.Details

	if err := o.startNodes(ctx); err != nil {
		return o.Fail(err)
	}
	if err := fault.RestoreReplicas(ctx, o.s); err != nil {
		return o.Fail(err)
	}
	if err := o.RecoverWorkloads(ctx, labels...); err != nil {
		return o.Fail(err)
	}
	if err := status.CheckNodeStatus(ctx, nil, d.NodeWaitTries*d.NodeWaitDelay, d.NodeWaitDelay, o.s.Clients, o.s.Clock); err != nil {
		return o.Fail(stacktrace.Propagate(err, "nodes are not ready after recovery"))
	}
	if o.checker != nil {
		if err := health.CephHealth(ctx, o.s, o.checker, d.HealthCheckTries); err != nil {
			return o.Fail(err)
		}
	}
	log.Info("[Recover]: Cluster recovered")
	return nil
}

func (o *Orchestrator) startNodes(ctx context.Context) error {
	nodes := o.s.StoppedNodes()
	if o.s.Power != nil {
		notReady, err := status.NotReadyNodes(ctx, o.s.Clients)
		if err != nil {
			return err
		}
		nodes = union(nodes, notReady)
	}
	if len(nodes) == 0 {
		return nil
	}
	log.Infof("[Recover]: Following nodes %v are NOT READY, starting them", nodes)
	return fault.StartNodes(ctx, o.s, nodes)
}

// ForceDeleteStuck force deletes the instances of the labels stuck in
// Terminating when the active fault allows it. The instances left not running
// are returned.
func (o *Orchestrator) ForceDeleteStuck(ctx context.Context, labels ...string) ([]types.WorkloadInstance, error) {
	notRunning, err := workloads.NotRunning(ctx, o.s, labels...)
	if err != nil {
		return nil, err
	}
	kind, split, _ := o.s.ActiveFault()
	if !o.s.Tolerance.ForceDeleteStuck(kind, split) {
		return notRunning, nil
	}
	var remaining []types.WorkloadInstance
	for _, inst := range notRunning {
		if inst.Status != types.StatusTerminating {
			remaining = append(remaining, inst)
			continue
		}
		log.Infof("[Recover]: Force deleting the pod %v stuck in %v", inst.Name, inst.Status)
		if err := o.s.Clients.DeletePod(ctx, inst.Namespace, inst.Name, true); err != nil {
			return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosRevert, Target: fmt.Sprintf("{podName: %s}", inst.Name), Reason: err.Error()}
		}
	}
	return remaining, nil
}

// RecoverWorkloads repairs the instances of the labels which are not running.
// Instances stuck Terminating are force deleted when the active fault allows
// it; any other instance gets its node restarted, or is deleted when no power
// controller is available. Every label is then polled back to its full count.
func (o *Orchestrator) RecoverWorkloads(ctx context.Context, labels ...string) error {
	notRunning, err := o.ForceDeleteStuck(ctx, labels...)
	if err != nil {
		return err
	}

	restart := map[string]struct{}{}
	for _, inst := range notRunning {
		log.InfoWithValues("[Recover]: Workload instance is not running", logrus.Fields{
			"Instance": inst.Name,
			"Status":   inst.Status,
			"Node":     inst.Node,
		})
		if o.s.Power != nil && inst.Node != "" {
			restart[inst.Node] = struct{}{}
			continue
		}
		if err := o.s.Clients.DeletePod(ctx, inst.Namespace, inst.Name, false); err != nil {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosRevert, Target: fmt.Sprintf("{podName: %s}", inst.Name), Reason: err.Error()}
		}
	}

	for _, node := range sortedKeys(restart) {
		if err := o.restartNode(ctx, node); err != nil {
			return err
		}
	}
	return o.waitForWorkloads(ctx, labels...)
}

func (o *Orchestrator) restartNode(ctx context.Context, node string) error {
	log.Infof("[Recover]: Restarting node %v", node)
	shutdown := &fault.NodeShutdownFault{Nodes: []string{node}}
	if err := shutdown.Apply(ctx, o.s); err != nil {
		return stacktrace.Propagate(err, "could not stop node %s", node)
	}
	return shutdown.Undo(ctx, o.s)
}

func (o *Orchestrator) waitForWorkloads(ctx context.Context, labels ...string) error {
	d := o.s.Details
	delay := d.Delay
	if delay <= 0 {
		delay = 1
	}
	for _, label := range labels {
		statuses := []types.InstanceStatus{types.StatusRunning}
		if label == types.LogReaderCephFSLabel {
			statuses = append(statuses, types.StatusCompleted)
		}
		expected := workloads.ExpectedReplicas(label)
		if label == types.LogReaderCephFSLabel {
			expected = 0
		}
		err := retry.
			Times(uint(d.Timeout / delay)).
			Wait(time.Duration(delay) * time.Second).
			Clock(o.s.Clock).
			TryWithContext(ctx, func(attempt uint) error {
				_, err := workloads.GetInstances(ctx, o.s, label, expected, statuses...)
				return err
			})
		if err != nil {
			return stacktrace.Propagate(err, "%s instances did not recover", label)
		}
	}
	return nil
}

// Verify requires zero loss and zero corruption on every workload with a
// recorded baseline and moves the machine to Verified or Failed
func (o *Orchestrator) Verify(ctx context.Context) error {
	if o.State() != Recovering {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeUnexpectedBehaviour, Reason: fmt.Sprintf("cannot verify in state %s", o.State())}
	}
	for _, proto := range []types.Protocol{types.FileShared, types.BlockExclusive} {
		label := workloads.WriterLabel(proto)
		if _, ok := o.s.LogFileMap(label); !ok {
			continue
		}
		loss, err := verify.CheckForDataLoss(ctx, o.s, label)
		if err != nil {
			return o.Fail(err)
		}
		if loss.Value() {
			return o.Fail(cerrors.Error{ErrorCode: cerrors.ErrorTypeDataLoss, Target: fmt.Sprintf("{label: %s}", label), Reason: loss.Detail()})
		}
		log.Infof("[Verify]: [%s] No data loss is seen", proto)

		corruption, err := verify.CheckForDataCorruption(ctx, o.s, proto)
		if err != nil {
			return o.Fail(err)
		}
		if corruption.Value() {
			return o.Fail(cerrors.Error{ErrorCode: cerrors.ErrorTypeDataCorruption, Target: fmt.Sprintf("{label: %s}", corruption.Subject()), Reason: corruption.Detail()})
		}
		log.Infof("[Verify]: [%s] No data corruption is seen", proto)
	}
	return o.To(Verified)
}

func union(a, b []string) []string {
	set := map[string]struct{}{}
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		set[v] = struct{}{}
	}
	return sortedKeys(set)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
