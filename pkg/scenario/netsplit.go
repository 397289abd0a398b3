package scenario

import (
	"context"
	"time"

	"github.com/litmuschaos/stretch-dr-go/pkg/fault"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/result"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/palantir/stacktrace"
)

func init() {
	Register(Scenario{
		Name:        "netsplit-cephfs",
		Description: "Split the zones apart while a shared filesystem writer and reader run",
		Run:         netsplitScenario(types.FileShared),
	})
	Register(Scenario{
		Name:        "netsplit-rbd",
		Description: "Split the zones apart while block volume writers run",
		Run:         netsplitScenario(types.BlockExclusive),
	})
}

func netsplitScenario(proto types.Protocol) Func {
	return func(ctx context.Context, r *Run) error {
		s := r.Session
		d := s.Details
		// the reader has to outlive the whole split
		readerMinutes := int((d.LeadTime() + d.ChaosDurationTime() + d.Margin() + time.Minute - 1) / time.Minute)
		if readerMinutes < d.LogReaderDuration {
			readerMinutes = d.LogReaderDuration
		}
		if err := r.baseline(ctx, true, readerMinutes, proto); err != nil {
			return err
		}

		var nodes []string
		err := r.step(ctx, result.FaultInjection, "nodes", func(ctx context.Context) error {
			list, err := s.Clients.ListNodes(ctx, "")
			if err != nil {
				return stacktrace.Propagate(err, "could not list the cluster nodes")
			}
			for _, n := range list.Items {
				nodes = append(nodes, n.Name)
			}
			return nil
		})
		if err != nil {
			return r.fail(err)
		}

		split := fault.NewNetworkSplit(s, d.NetsplitZones, nodes, r.Scheduler)
		revert := r.arm(split)
		w, err := r.inject(ctx, split, 0)
		if err != nil {
			return err
		}
		if err := revert(ctx); err != nil {
			return r.fail(err)
		}
		log.Infof("[Status]: Netsplit %v realized over %v", d.NetsplitZones, w)

		if err := r.postFailureChecks(ctx, w, true); err != nil {
			return err
		}
		return r.recoverAndVerify(ctx, labels(proto)...)
	}
}
