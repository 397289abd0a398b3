package scenario

import (
	"context"
	"fmt"

	"github.com/litmuschaos/stretch-dr-go/pkg/fault"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/result"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/common"
	"github.com/litmuschaos/stretch-dr-go/pkg/workloads"
	"github.com/palantir/stacktrace"
)

// WorkerRoleLabel selects the nodes running workloads, only those are fenced
const WorkerRoleLabel = "node-role.kubernetes.io/worker"

func init() {
	Register(Scenario{
		Name:        "zone-shutdown",
		Description: "Power off every node of each data zone in turn with zone aware workloads",
		Run:         zoneShutdown(true),
	})
	Register(Scenario{
		Name:        "zone-shutdown-zone-unaware",
		Description: "Power off every node of each data zone in turn with unconstrained workloads",
		Run:         zoneShutdown(false),
	})
}

func zoneShutdown(zoneAware bool) Func {
	return func(ctx context.Context, r *Run) error {
		s := r.Session
		d := s.Details
		protos := []types.Protocol{types.FileShared, types.BlockExclusive}
		if err := r.baseline(ctx, zoneAware, d.LogReaderDuration, protos...); err != nil {
			return err
		}
		for _, zone := range d.DataZones {
			if err := r.recollect(ctx, zone, protos); err != nil {
				return err
			}
			if err := r.shutdownZone(ctx, zone, protos); err != nil {
				return err
			}
		}
		return r.step(ctx, result.DataIntegrity, "verify/integrity", r.Orchestrator.Verify)
	}
}

// shutdownZone powers the zone off and optionally fences its workers. The
// workloads must relocate out of the zone before it is unfenced and powered
// back on, then the cluster recovers.
func (r *Run) shutdownZone(ctx context.Context, zone string, protos []types.Protocol) error {
	s := r.Session
	d := s.Details

	var nodes, workers []string
	err := r.step(ctx, result.FaultInjection, "nodes/"+zone, func(ctx context.Context) error {
		var err error
		if nodes, err = fault.NodesInZone(ctx, s, zone); err != nil {
			return err
		}
		if len(nodes) == 0 {
			return stacktrace.NewError("no nodes found in zone %s", zone)
		}
		list, err := s.Clients.ListNodes(ctx, fmt.Sprintf("%s=%s,%s", d.ZoneLabel, zone, WorkerRoleLabel))
		if err != nil {
			return stacktrace.Propagate(err, "could not list the workers of zone %s", zone)
		}
		for _, n := range list.Items {
			workers = append(workers, n.Name)
		}
		return nil
	})
	if err != nil {
		return r.fail(err)
	}

	shutdown := &fault.NodeShutdownFault{Nodes: nodes, Zone: zone}
	powerOn := r.arm(shutdown)
	w, err := r.inject(ctx, shutdown, 0)
	if err != nil {
		return err
	}
	active := types.FaultWindow{Kind: shutdown.Kind(), Name: zone, Start: w.Start, Targets: nodes}

	unfence := func(context.Context) error { return nil }
	if d.Fencing && len(workers) != 0 {
		fence := &fault.NetworkFenceFault{Nodes: workers, Fencer: r.Fencer}
		unfence = r.arm(fence)
		if _, err := r.inject(ctx, fence, 0); err != nil {
			return err
		}
	}

	// the fence replaced the shutdown as the observed fault
	s.SetActiveFault(&active)

	log.Infof("[Wait]: Waiting %v for the workloads to relocate out of zone %v", d.RelocationTime(), zone)
	if err := common.WaitForDuration(ctx, s.Clock, d.RelocationTime()); err != nil {
		return r.fail(err)
	}
	if !d.Fencing {
		// without fencing the block volumes stay attached to the dead nodes
		err := r.step(ctx, result.WorkloadRelocation, "force-delete/"+zone, func(ctx context.Context) error {
			_, err := r.Orchestrator.ForceDeleteStuck(ctx, types.LogWriterRBDLabel)
			return err
		})
		if err != nil {
			return r.fail(err)
		}
	}
	err = r.step(ctx, result.WorkloadRelocation, "relocate/"+zone, func(ctx context.Context) error {
		return workloads.WaitForRelocation(ctx, s, zone, labels(protos...)...)
	})
	if err != nil {
		return r.fail(err)
	}

	if err := unfence(ctx); err != nil {
		return r.fail(err)
	}
	w.End = s.Clock.Now().UTC()
	if err := powerOn(ctx); err != nil {
		return r.fail(err)
	}

	if err := r.postFailureChecks(ctx, w, true); err != nil {
		return err
	}
	return r.recover(ctx, labels(protos...)...)
}

// recollect refreshes the log file maps before a zone goes down so the
// verification of that zone sees the artifacts written since the last one
func (r *Run) recollect(ctx context.Context, zone string, protos []types.Protocol) error {
	s := r.Session
	err := r.step(ctx, result.BaselineCollection, "baseline/"+zone, func(ctx context.Context) error {
		for _, proto := range protos {
			label := workloads.WriterLabel(proto)
			if _, err := workloads.GetInstances(ctx, s, label, workloads.ExpectedReplicas(label), types.StatusRunning); err != nil {
				return err
			}
			if _, err := workloads.CollectLogFileMap(ctx, s, proto); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return r.fail(err)
	}
	return nil
}
