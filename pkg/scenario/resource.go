package scenario

import (
	"context"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/fault"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/result"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/common"
)

func init() {
	Register(Scenario{
		Name:        "resource-delete",
		Description: "Delete pods of a ceph component repeatedly and let the operator reconcile",
		Run:         resourceDelete,
	})
}

func resourceDelete(ctx context.Context, r *Run) error {
	s := r.Session
	d := s.Details
	res, ok := fault.Resources[d.ResourceKind]
	if !ok {
		r.failStep = result.FaultInjection
		return r.fail(cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetSelection, Target: "{resource: " + d.ResourceKind + "}", Reason: "unsupported resource kind"})
	}
	count := d.ResourceDeletes
	if count <= 0 {
		count = res.Deletes
	}

	protos := []types.Protocol{types.FileShared, types.BlockExclusive}
	if err := r.baseline(ctx, true, d.LogReaderDuration, protos...); err != nil {
		return err
	}

	f := &fault.ResourceDeleteFault{Resource: d.ResourceKind, Count: count}
	r.arm(f)
	w, err := r.inject(ctx, f, 0)
	if err != nil {
		return err
	}
	log.Infof("[Wait]: Waiting %v for %v to be reconciled", d.SettleTime(), d.ResourceKind)
	if err := common.WaitForDuration(ctx, s.Clock, d.SettleTime()); err != nil {
		return r.fail(err)
	}
	w.End = s.Clock.Now().UTC()

	if err := r.postFailureChecks(ctx, w, false); err != nil {
		return err
	}
	return r.recoverAndVerify(ctx, labels(protos...)...)
}
