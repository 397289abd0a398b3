// Package scenario holds the named disaster recovery scenarios and the driver
// running one of them end to end: baseline, fault, verification, recovery.
package scenario

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	netsplit "github.com/litmuschaos/stretch-dr-go/chaoslib/litmus/network-split/lib"
	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/events"
	"github.com/litmuschaos/stretch-dr-go/pkg/fault"
	"github.com/litmuschaos/stretch-dr-go/pkg/health"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/metrics"
	"github.com/litmuschaos/stretch-dr-go/pkg/objectstore"
	"github.com/litmuschaos/stretch-dr-go/pkg/recovery"
	"github.com/litmuschaos/stretch-dr-go/pkg/result"
	"github.com/litmuschaos/stretch-dr-go/pkg/session"
	"github.com/litmuschaos/stretch-dr-go/pkg/telemetry"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/common"
	"github.com/litmuschaos/stretch-dr-go/pkg/verify"
	"github.com/litmuschaos/stretch-dr-go/pkg/workloads"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	corev1 "k8s.io/api/core/v1"
)

// warmUp is the log volume generated before the baseline is recorded
const warmUp = 2 * time.Minute

// Func is the body of a scenario
type Func func(ctx context.Context, r *Run) error

// Scenario is a named, registered scenario
type Scenario struct {
	Name        string
	Description string
	Run         Func
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Scenario{}
)

// Register adds a scenario, a duplicate name panics
func Register(sc Scenario) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[sc.Name]; ok {
		panic(fmt.Sprintf("scenario %s registered twice", sc.Name))
	}
	registry[sc.Name] = sc
}

// Lookup returns the scenario registered under name
func Lookup(name string) (Scenario, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	sc, ok := registry[name]
	return sc, ok
}

// List returns every registered scenario sorted by name
func List() []Scenario {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Scenario, 0, len(registry))
	for _, sc := range registry {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run is everything a scenario works with. Recorder and Metrics are optional.
type Run struct {
	Session      *session.Session
	Orchestrator *recovery.Orchestrator
	Health       health.Checker
	Scheduler    netsplit.Scheduler
	Fencer       fault.Fencer
	Store        objectstore.Client
	Recorder     *events.Recorder
	Metrics      *metrics.Metrics

	failStep string
}

// NewRun wires an orchestrator over the session and hooks the optional
// observers on its transitions
func NewRun(s *session.Session, checker health.Checker, recorder *events.Recorder, m *metrics.Metrics) *Run {
	r := &Run{Session: s, Orchestrator: recovery.New(s, checker), Health: checker, Recorder: recorder, Metrics: m}
	if m != nil {
		r.Orchestrator.OnTransition(m.ObserveTransition)
	}
	if recorder != nil {
		r.Orchestrator.OnTransition(recorder.ObserveTransition)
	}
	return r
}

// Execute runs the named scenario, tears it down whatever the outcome and
// stores the verdict
func Execute(ctx context.Context, r *Run, name string) (*result.ResultDetails, error) {
	s := r.Session
	d := s.Details
	resultDetails := &result.ResultDetails{Scenario: name, RunID: d.RunID, Namespace: d.Namespace, Verdict: result.Awaited}

	sc, ok := Lookup(name)
	if !ok {
		return resultDetails, cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Target: fmt.Sprintf("{scenario: %s}", name), Reason: "unknown scenario"}
	}

	log.InfoWithValues("[PreReq]: Running the scenario", logrus.Fields{
		"Scenario":  name,
		"RunID":     d.RunID,
		"Namespace": d.Namespace,
		"Zones":     d.NetsplitZones,
		"Duration":  d.ChaosDuration,
		"Fencing":   d.Fencing,
	})
	if err := result.ChaosResult(ctx, s.Clients, resultDetails); err != nil {
		log.Errorf("Unable to create the result, err: %v", err)
		return resultDetails, err
	}

	ctx, span := telemetry.StartTracing(ctx, "scenario/"+name, attribute.String("run_id", d.RunID))
	err := sc.Run(ctx, r)
	if err != nil && r.failStep == "" {
		r.failStep = result.FaultInjection
	}
	// teardown also runs after an interrupt
	teardownCtx := context.WithoutCancel(ctx)
	if terr := telemetry.Step(teardownCtx, "teardown", r.Orchestrator.Finalize); terr != nil && err == nil {
		err, r.failStep = terr, result.Teardown
	}
	span.End()

	ctx = teardownCtx
	resultDetails.Outcomes = s.Outcomes()
	resultDetails.Transitions = r.Orchestrator.History()
	if r.Metrics != nil {
		for _, o := range resultDetails.Outcomes {
			r.Metrics.Outcome(ctx, o)
		}
	}

	if err != nil {
		log.Errorf("[Status]: Scenario %v failed, err: %v", name, err)
		if rerr := result.RecordAfterFailure(ctx, s.Clients, resultDetails, r.failStep, err); rerr != nil {
			log.Errorf("Unable to update the result, err: %v", rerr)
		}
	} else {
		resultDetails.Verdict = result.Pass
		if rerr := result.ChaosResult(ctx, s.Clients, resultDetails); rerr != nil {
			log.Errorf("Unable to update the result, err: %v", rerr)
		}
		log.Infof("[Status]: Scenario %v passed", name)
	}
	r.summary(ctx, resultDetails)

	if r.Metrics != nil && d.Pushgateway != "" {
		if perr := r.Metrics.Push(ctx, d.Pushgateway, "stretch_dr", d.RunID); perr != nil {
			log.Warnf("Unable to push the metrics, err: %v", perr)
		}
	}
	return resultDetails, err
}

func (r *Run) summary(ctx context.Context, resultDetails *result.ResultDetails) {
	eventType := corev1.EventTypeNormal
	if resultDetails.Verdict == result.Fail {
		eventType = corev1.EventTypeWarning
	}
	details := &events.EventDetails{
		Scenario:  resultDetails.Scenario,
		RunID:     resultDetails.RunID,
		Namespace: resultDetails.Namespace,
		Reason:    events.Summary,
		Message:   fmt.Sprintf("%v scenario has been %v", resultDetails.Scenario, resultDetails.Verdict),
		Type:      eventType,
	}
	if err := events.GenerateEvents(ctx, details, r.Session.Clients, r.Session.Clock); err != nil {
		log.Warnf("Unable to create the summary event, err: %v", err)
	}
}

// step runs fn as a traced step and remembers the first failed step
func (r *Run) step(ctx context.Context, failStep, name string, fn func(ctx context.Context) error) error {
	err := telemetry.Step(ctx, name, fn)
	if err != nil && r.failStep == "" {
		r.failStep = failStep
	}
	return err
}

// fail moves the orchestrator to Failed once a step gave up
func (r *Run) fail(err error) error {
	return r.Orchestrator.Fail(err)
}

// baseline deploys the writers, waits for the warm up, records the artifacts
// and checks the cluster health. It runs strictly before any fault.
func (r *Run) baseline(ctx context.Context, zoneAware bool, readerMinutes int, protos ...types.Protocol) error {
	s := r.Session
	err := r.step(ctx, result.WorkloadDeployment, "deploy", func(ctx context.Context) error {
		for _, proto := range protos {
			if _, err := workloads.StartWriter(ctx, s, proto, zoneAware); err != nil {
				return err
			}
			if proto != types.FileShared {
				continue
			}
			claim, err := workloads.WriterClaim(ctx, s)
			if err != nil {
				return err
			}
			if _, err := workloads.StartReader(ctx, s, claim, readerMinutes); err != nil {
				return err
			}
		}
		log.Infof("[Wait]: Generating %v worth of logs", warmUp)
		return common.WaitForDuration(ctx, s.Clock, warmUp)
	})
	if err != nil {
		return r.fail(err)
	}

	err = r.step(ctx, result.BaselineCollection, "baseline", func(ctx context.Context) error {
		for _, proto := range protos {
			label := workloads.WriterLabel(proto)
			if _, err := workloads.GetInstances(ctx, s, label, workloads.ExpectedReplicas(label), types.StatusRunning); err != nil {
				return err
			}
			if _, err := workloads.CollectLogFileMap(ctx, s, proto); err != nil {
				return err
			}
		}
		log.Info("[Status]: All the workloads pods are successfully up and running")
		return nil
	})
	if err != nil {
		return r.fail(err)
	}

	if r.Health == nil {
		return nil
	}
	err = r.step(ctx, result.PreChaosHealthCheck, "health/pre", func(ctx context.Context) error {
		return health.CephHealth(ctx, s, r.Health, s.Details.HealthCheckTries)
	})
	if err != nil {
		return r.fail(err)
	}
	return nil
}

// arm registers the undo of f as a teardown step and returns a revert which
// undoes it at most once
func (r *Run) arm(f fault.Fault) func(ctx context.Context) error {
	var (
		once sync.Once
		err  error
	)
	revert := func(ctx context.Context) error {
		once.Do(func() {
			err = r.step(ctx, result.FaultRevert, "revert/"+string(f.Kind()), func(ctx context.Context) error {
				return fault.Revert(ctx, r.Session, f)
			})
			if err == nil && r.Recorder != nil {
				r.Recorder.FaultReverted(string(f.Kind()), f.Name())
			}
		})
		return err
	}
	r.Orchestrator.Defer(revert)
	return revert
}

// inject applies an armed fault, holds it and moves to FaultInjected.
// Only the first fault of a composed injection moves the state.
func (r *Run) inject(ctx context.Context, f fault.Fault, hold time.Duration) (types.ObservationWindow, error) {
	var w types.ObservationWindow
	err := r.step(ctx, result.FaultInjection, "inject/"+string(f.Kind()), func(ctx context.Context) error {
		var err error
		w, err = fault.Inject(ctx, r.Session, f, hold)
		return err
	})
	if err != nil {
		return w, r.fail(err)
	}
	if r.Orchestrator.State() != recovery.FaultInjected {
		if err := r.Orchestrator.To(recovery.FaultInjected); err != nil {
			return w, err
		}
	}
	if r.Metrics != nil {
		r.Metrics.FaultInjected(ctx, f.Kind(), f.Name())
	}
	if r.Recorder != nil {
		r.Recorder.FaultInjected(string(f.Kind()), f.Name(), f.Targets())
	}
	return w, nil
}

// postFailureChecks classifies the pauses over the realized window and marks
// the cluster degraded when any workload paused
func (r *Run) postFailureChecks(ctx context.Context, w types.ObservationWindow, waitForReadCompletion bool) error {
	before := len(r.Session.Outcomes())
	err := r.step(ctx, result.PostFailureChecks, "verify/pause", func(ctx context.Context) error {
		return verify.PostFailureChecks(ctx, r.Session, w, waitForReadCompletion)
	})
	if err != nil {
		return r.fail(err)
	}
	for _, o := range r.Session.Outcomes()[before:] {
		if o.Value() && r.Orchestrator.State() == recovery.FaultInjected {
			return r.Orchestrator.To(recovery.Degraded)
		}
	}
	return nil
}

// recoverAndVerify brings the cluster back and verifies loss and corruption
func (r *Run) recoverAndVerify(ctx context.Context, labels ...string) error {
	if err := r.recover(ctx, labels...); err != nil {
		return err
	}
	return r.step(ctx, result.DataIntegrity, "verify/integrity", r.Orchestrator.Verify)
}

func (r *Run) recover(ctx context.Context, labels ...string) error {
	return r.step(ctx, result.ClusterRecovery, "recover", func(ctx context.Context) error {
		return r.Orchestrator.Recover(ctx, labels...)
	})
}

// labels returns the workload labels of the protocols
func labels(protos ...types.Protocol) []string {
	var out []string
	for _, proto := range protos {
		out = append(out, workloads.WriterLabel(proto))
		if proto == types.FileShared {
			out = append(out, types.LogReaderCephFSLabel)
		}
	}
	return out
}
