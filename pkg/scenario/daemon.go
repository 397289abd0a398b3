package scenario

import (
	"context"

	"github.com/litmuschaos/stretch-dr-go/pkg/fault"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
)

func init() {
	Register(Scenario{
		Name:        "mon-failure-single",
		Description: "Scale one monitor of the first data zone down",
		Run:         daemonScenario(fault.Mon, false),
	})
	Register(Scenario{
		Name:        "mon-failure-both",
		Description: "Scale one monitor of every data zone down at once",
		Run:         daemonScenario(fault.Mon, true),
	})
	Register(Scenario{
		Name:        "osd-failure-single",
		Description: "Scale one osd of the first data zone down",
		Run:         daemonScenario(fault.OSD, false),
	})
	Register(Scenario{
		Name:        "osd-failure-both",
		Description: "Scale one osd of every data zone down at once",
		Run:         daemonScenario(fault.OSD, true),
	})
}

func daemonScenario(daemon fault.Daemon, allZones bool) Func {
	return func(ctx context.Context, r *Run) error {
		s := r.Session
		d := s.Details
		protos := []types.Protocol{types.FileShared, types.BlockExclusive}
		if err := r.baseline(ctx, true, d.LogReaderDuration, protos...); err != nil {
			return err
		}

		zones := d.DataZones
		if !allZones && len(zones) > 1 {
			zones = zones[:1]
		}
		f := &fault.DaemonScaleFault{Daemon: daemon, Zones: zones}
		revert := r.arm(f)
		w, err := r.inject(ctx, f, d.SettleTime())
		if err != nil {
			return err
		}
		if err := revert(ctx); err != nil {
			return r.fail(err)
		}

		if err := r.postFailureChecks(ctx, w, false); err != nil {
			return err
		}
		return r.recoverAndVerify(ctx, labels(protos...)...)
	}
}
