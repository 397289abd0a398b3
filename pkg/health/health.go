// Package health reads the storage cluster health through the ceph toolbox pod.
package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/session"
	"github.com/litmuschaos/stretch-dr-go/pkg/tolerance"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/exec"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/retry"
	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"
)

const (
	StatusOK   = "HEALTH_OK"
	StatusWarn = "HEALTH_WARN"
	StatusErr  = "HEALTH_ERR"

	toolboxContainer = "rook-ceph-tools"
	healthDelay      = 20 * time.Second
)

// Summary is one health reading
type Summary struct {
	Status string
	// Detail is the output of `ceph health detail`, only read when the status is not OK
	Detail string
}

// Checker reads the cluster health and archives crash reports
type Checker interface {
	Health(ctx context.Context) (Summary, error)
	ArchiveCrashes(ctx context.Context) error
}

// Toolbox execs ceph commands in the rook-ceph-tools pod
type Toolbox struct {
	s *session.Session
}

// NewToolbox returns a Checker bound to the toolbox of the session cluster
func NewToolbox(s *session.Session) *Toolbox {
	return &Toolbox{s: s}
}

func (t *Toolbox) ceph(ctx context.Context, command string) (string, error) {
	d := t.s.Details
	pods, err := t.s.Clients.ListPods(ctx, d.ClusterNamespace, d.ToolboxLabel)
	if err != nil {
		return "", stacktrace.Propagate(err, "could not list the toolbox pods")
	}
	for _, pod := range pods.Items {
		if pod.DeletionTimestamp != nil {
			continue
		}
		return exec.Shell(ctx, t.s.Executor, exec.PodDetails{PodName: pod.Name, Namespace: d.ClusterNamespace, ContainerName: toolboxContainer}, command)
	}
	return "", cerrors.Error{ErrorCode: cerrors.ErrorTypeHealthCheck, Target: fmt.Sprintf("{label: %s, namespace: %s}", d.ToolboxLabel, d.ClusterNamespace), Reason: "no ceph toolbox pod found"}
}

func (t *Toolbox) Health(ctx context.Context) (Summary, error) {
	out, err := t.ceph(ctx, "ceph health")
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Status: firstWord(out)}
	if summary.Status == StatusOK {
		return summary, nil
	}
	if summary.Detail, err = t.ceph(ctx, "ceph health detail"); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

func (t *Toolbox) ArchiveCrashes(ctx context.Context) error {
	if _, err := t.ceph(ctx, "ceph crash archive-all"); err != nil {
		return stacktrace.Propagate(err, "could not archive the ceph crashes")
	}
	log.Info("[Recover]: Archived the ceph crash reports")
	return nil
}

func firstWord(out string) string {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Tolerable reports whether a non OK reading is a warning whose detail names
// at least one cause the table tolerates for the fault. Other causes listed
// next to it do not make the warning intolerable.
func Tolerable(summary Summary, table *tolerance.Table, fault types.FaultKind, split string) bool {
	if summary.Status != StatusWarn {
		return false
	}
	return table.HealthWarningTolerated(fault, split, summary.Detail)
}

// CephHealth polls the health up to tries times. A tolerated warning of the
// active fault is accepted once the crash reports are archived.
func CephHealth(ctx context.Context, s *session.Session, checker Checker, tries int) error {
	if tries <= 0 {
		tries = 1
	}
	var last Summary
	err := retry.
		Times(uint(tries)).
		Wait(healthDelay).
		Clock(s.Clock).
		TryWithContext(ctx, func(attempt uint) error {
			summary, err := checker.Health(ctx)
			if err != nil {
				return err
			}
			last = summary
			if summary.Status != StatusOK {
				log.Infof("[Status]: Ceph health is %v, attempt %d", summary.Status, attempt+1)
				return cerrors.Error{ErrorCode: cerrors.ErrorTypeHealthCheck, Reason: summary.Detail}
			}
			return nil
		})
	if err == nil {
		log.Info("[Status]: Ceph health is OK")
		return nil
	}

	kind, split, _ := s.ActiveFault()
	if Tolerable(last, s.Tolerance, kind, split) {
		log.InfoWithValues("[Status]: Ceph health warning is tolerated", logrus.Fields{
			"Fault":  kind,
			"Detail": strings.TrimSpace(last.Detail),
		})
		return checker.ArchiveCrashes(ctx)
	}
	if last.Status == "" {
		return stacktrace.Propagate(err, "could not read the ceph health")
	}
	return cerrors.Error{ErrorCode: cerrors.ErrorTypeHealthCheck, Target: fmt.Sprintf("{status: %s}", last.Status), Reason: strings.TrimSpace(last.Detail)}
}
