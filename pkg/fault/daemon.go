package fault

import (
	"context"
	"fmt"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/session"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/common"
	"github.com/litmuschaos/stretch-dr-go/pkg/workloads"
	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Daemon is a ceph daemon type managed by one deployment per instance
type Daemon string

const (
	Mon Daemon = "mon"
	OSD Daemon = "osd"
)

// Label selects the pods of the daemon
func (d Daemon) Label() string {
	return "app=rook-ceph-" + string(d)
}

// DaemonScaleFault scales one daemon per zone down to zero replicas.
// Several zones batch several simultaneous daemon failures into one fault.
type DaemonScaleFault struct {
	Daemon Daemon
	Zones  []string

	deployments []string
}

func (f *DaemonScaleFault) Kind() types.FaultKind { return types.DaemonScale }
func (f *DaemonScaleFault) Name() string { return string(f.Daemon) }
func (f *DaemonScaleFault) Targets() []string { return f.deployments }

// Apply picks a random daemon pod in every zone and scales its deployment to 0
func (f *DaemonScaleFault) Apply(ctx context.Context, s *session.Session) error {
	ns := s.Details.ClusterNamespace
	if len(f.deployments) == 0 {
		for _, zone := range f.Zones {
			pods, err := PodsInZone(ctx, s, ns, f.Daemon.Label(), zone)
			if err != nil {
				return err
			}
			if len(pods) == 0 {
				return cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetSelection, Target: fmt.Sprintf("{daemon: %s, zone: %s}", f.Daemon, zone), Reason: "no daemon pod found in zone"}
			}
			pod := pods[common.RandomIndex(len(pods))]
			name, kind, err := workloads.GetParentNameAndKind(ctx, s.Clients, pod)
			if err != nil {
				return cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetSelection, Target: fmt.Sprintf("{podName: %s}", pod.Name), Reason: err.Error()}
			}
			if kind != workloads.Deployment {
				return cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetSelection, Target: fmt.Sprintf("{podName: %s}", pod.Name), Reason: fmt.Sprintf("owner %s is a %s, not a deployment", name, kind)}
			}
			log.Infof("[Info]: Failing %v %v from zone %v", f.Daemon, name, zone)
			f.deployments = append(f.deployments, name)
		}
	}

	for _, name := range f.deployments {
		deploy, err := s.Clients.GetDeployment(ctx, ns, name)
		if err != nil {
			return stacktrace.Propagate(err, "could not get deployment %s", name)
		}
		replicas := int32(1)
		if deploy.Spec.Replicas != nil && *deploy.Spec.Replicas > 0 {
			replicas = *deploy.Spec.Replicas
		}
		s.RecordScale(ns, name, replicas)
		if err := s.Clients.ScaleDeployment(ctx, ns, name, 0); err != nil {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosInject, Target: fmt.Sprintf("{deployment: %s}", name), Reason: err.Error()}
		}
	}
	log.InfoWithValues("[Inject]: Scaled down the daemon deployments", logrus.Fields{
		"Daemon":      f.Daemon,
		"Deployments": f.deployments,
	})
	return nil
}

// Undo restores the replica counts recorded by Apply
func (f *DaemonScaleFault) Undo(ctx context.Context, s *session.Session) error {
	return RestoreReplicas(ctx, s)
}

// RestoreReplicas scales every deployment recorded on the session back to its original count
func RestoreReplicas(ctx context.Context, s *session.Session) error {
	for _, d := range s.ScaledDeployments() {
		if err := s.Clients.ScaleDeployment(ctx, d.Namespace, d.Name, d.Replicas); err != nil {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosRevert, Target: fmt.Sprintf("{deployment: %s}", d.Name), Reason: err.Error()}
		}
		s.ForgetScale(d.Namespace, d.Name)
		log.Infof("[Recover]: Scaled %v back to %v replica(s)", d.Name, d.Replicas)
	}
	return nil
}

// PodsInZone lists the pods of the label whose node carries the zone label value
func PodsInZone(ctx context.Context, s *session.Session, namespace, label, zone string) ([]corev1.Pod, error) {
	pods, err := s.Clients.ListPods(ctx, namespace, label)
	if err != nil {
		return nil, stacktrace.Propagate(err, "could not list pods of %s", label)
	}
	zones := map[string]string{}
	var out []corev1.Pod
	for _, pod := range pods.Items {
		nodeName := pod.Spec.NodeName
		if nodeName == "" {
			continue
		}
		z, ok := zones[nodeName]
		if !ok {
			node, err := s.Clients.KubeClient.CoreV1().Nodes().Get(ctx, nodeName, metav1.GetOptions{})
			if err != nil {
				return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetSelection, Target: fmt.Sprintf("{nodeName: %s}", nodeName), Reason: err.Error()}
			}
			z = node.Labels[s.Details.ZoneLabel]
			zones[nodeName] = z
		}
		if z == zone {
			out = append(out, pod)
		}
	}
	return out, nil
}

// NodesInZone lists the nodes carrying the zone label value
func NodesInZone(ctx context.Context, s *session.Session, zone string) ([]string, error) {
	nodes, err := s.Clients.ListNodes(ctx, fmt.Sprintf("%s=%s", s.Details.ZoneLabel, zone))
	if err != nil {
		return nil, stacktrace.Propagate(err, "could not list nodes of zone %s", zone)
	}
	names := make([]string, 0, len(nodes.Items))
	for _, n := range nodes.Items {
		names = append(names, n.Name)
	}
	return names, nil
}
