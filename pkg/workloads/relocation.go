package workloads

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/session"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/retry"
)

// WaitForRelocation waits until the workloads of the labels run outside the
// zone: the full replica count of every writer Running and at least one
// reader instance, all of them Running or Completed. Instances left
// Terminating or Unknown on the nodes of the zone are ignored. The wait grows
// linearly from the poll delay and gives up after the status check timeout
// with an error naming the zone and the instances which did not make it.
func WaitForRelocation(ctx context.Context, s *session.Session, zone string, labels ...string) error {
	d := s.Details
	delay := d.Delay
	if delay <= 0 {
		delay = 1
	}
	timeout := time.Duration(d.Timeout) * time.Second

	var pending []string
	err := retry.
		Times(uint(d.Timeout/delay) + 1).
		Wait(time.Duration(delay) * time.Second).
		Linear(time.Duration(delay) * time.Second).
		Timeout(timeout).
		Clock(s.Clock).
		TryWithTimeout(ctx, func(attempt uint) error {
			var err error
			pending, err = notRelocated(ctx, s, zone, labels)
			if err != nil {
				return err
			}
			if len(pending) != 0 {
				return cerrors.WorkloadStatusChecks{Target: strings.Join(labels, ","), Reason: fmt.Sprintf("%d instance(s) not relocated", len(pending))}
			}
			return nil
		})
	if err == nil {
		log.Infof("[Status]: Workloads relocated out of zone %v", zone)
		return nil
	}
	if len(pending) == 0 {
		return err
	}
	return cerrors.Error{
		ErrorCode: cerrors.ErrorTypeTimeout,
		Target:    fmt.Sprintf("{zone: %s, instances: [%s]}", zone, strings.Join(pending, ", ")),
		Reason:    fmt.Sprintf("workloads did not relocate out of the zone within %v", timeout),
	}
}

// notRelocated describes every instance, or missing replica, keeping the
// labels from being relocated out of the zone
func notRelocated(ctx context.Context, s *session.Session, zone string, labels []string) ([]string, error) {
	var pending []string
	for _, label := range labels {
		instances, err := GetInstances(ctx, s, label, 0)
		if err != nil {
			return nil, err
		}
		ready := 0
		for _, inst := range instances {
			left := inst.Zone == zone && (inst.Status == types.StatusTerminating || inst.Status == types.StatusUnknown)
			switch {
			case left:
			case inst.Status == types.StatusCompleted && label == types.LogReaderCephFSLabel:
				ready++
			case inst.Status != types.StatusRunning:
				pending = append(pending, fmt.Sprintf("%s(%s)", inst.Name, inst.Status))
			case inst.Zone == zone:
				pending = append(pending, fmt.Sprintf("%s(running in %s)", inst.Name, zone))
			default:
				ready++
			}
		}
		want := ExpectedReplicas(label)
		if label == types.LogReaderCephFSLabel {
			want = 1
		}
		if ready < want {
			pending = append(pending, fmt.Sprintf("%s(%d/%d ready)", label, ready, want))
		}
	}
	return pending, nil
}
