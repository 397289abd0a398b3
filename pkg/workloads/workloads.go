// Package workloads deploys and observes the logwriter and logreader workloads
// used to detect pauses, loss and corruption on the stretch cluster.
package workloads

import (
	"context"
	"fmt"
	"sort"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/session"
	"github.com/litmuschaos/stretch-dr-go/pkg/status"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// readerDeleteTimeout bounds the wait for old reader pods to go away
const readerDeleteTimeout = 120

type labelInfo struct {
	role      types.Role
	protocol  types.Protocol
	container string
	replicas  int
}

var knownLabels = map[string]labelInfo{
	types.LogWriterCephFSLabel: {role: types.Writer, protocol: types.FileShared, container: WriterContainer, replicas: cephFSReplicas},
	types.LogReaderCephFSLabel: {role: types.Reader, protocol: types.FileShared, container: ReaderContainer, replicas: readerPods},
	types.LogWriterRBDLabel:    {role: types.Writer, protocol: types.BlockExclusive, container: WriterContainer, replicas: rbdReplicas},
}

// ExpectedReplicas returns the instance count of a known workload label
func ExpectedReplicas(label string) int {
	return knownLabels[label].replicas
}

// WriterLabel returns the writer label of a protocol
func WriterLabel(proto types.Protocol) string {
	if proto == types.BlockExclusive {
		return types.LogWriterRBDLabel
	}
	return types.LogWriterCephFSLabel
}

// StartWriter deploys the writer of the protocol and waits until every instance is placed and running
func StartWriter(ctx context.Context, s *session.Session, proto types.Protocol, zoneAware bool) ([]types.WorkloadInstance, error) {
	d := s.Details
	label := WriterLabel(proto)

	log.InfoWithValues("[PreReq]: Deploying the logwriter workload", logrus.Fields{
		"Protocol":  proto,
		"ZoneAware": zoneAware,
		"Namespace": d.Namespace,
	})

	var err error
	switch proto {
	case types.FileShared:
		if err = createIgnoringExisting(func() error {
			_, err := s.Clients.KubeClient.CoreV1().PersistentVolumeClaims(d.Namespace).Create(ctx, CephFSClaim(d.Namespace, d.CephFSStorage), metav1.CreateOptions{})
			return err
		}); err == nil {
			err = createIgnoringExisting(func() error {
				_, err := s.Clients.KubeClient.AppsV1().Deployments(d.Namespace).Create(ctx,
					CephFSWriterDeployment(d.Namespace, d.LogWriterImage, LogWriterCephFSName, d.ZoneLabel, d.DataZones, zoneAware), metav1.CreateOptions{})
				return err
			})
		}
	case types.BlockExclusive:
		err = createIgnoringExisting(func() error {
			_, err := s.Clients.KubeClient.AppsV1().StatefulSets(d.Namespace).Create(ctx,
				RBDWriterStatefulSet(d.Namespace, d.LogWriterImage, d.RBDStorage, d.ZoneLabel, d.DataZones, zoneAware), metav1.CreateOptions{})
			return err
		})
	default:
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeDeployment, Reason: fmt.Sprintf("unsupported protocol %q", proto)}
	}
	if err != nil {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeDeployment, Target: fmt.Sprintf("{label: %s, namespace: %s}", label, d.Namespace), Reason: err.Error()}
	}

	if err := status.CheckPodStatusPhase(ctx, d.Namespace, label, d.Timeout, d.Delay, s.Clients, s.Clock, types.StatusRunning); err != nil {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeDeployment, Target: fmt.Sprintf("{label: %s, namespace: %s}", label, d.Namespace), Reason: fmt.Sprintf("writer was not placed within %ds: %v", d.Timeout, err)}
	}
	return GetInstances(ctx, s, label, ExpectedReplicas(label), types.StatusRunning)
}

// StartReader deploys a reader bound to the claim for the given minutes
func StartReader(ctx context.Context, s *session.Session, claim string, minutes int) ([]types.WorkloadInstance, error) {
	d := s.Details
	log.Infof("[PreReq]: Starting the logreader job on claim %s for %d minute(s)", claim, minutes)

	if err := createIgnoringExisting(func() error {
		_, err := s.Clients.KubeClient.BatchV1().Jobs(d.Namespace).Create(ctx, CephFSReaderJob(d.Namespace, d.LogWriterImage, claim, minutes), metav1.CreateOptions{})
		return err
	}); err != nil {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeDeployment, Target: fmt.Sprintf("{job: %s, namespace: %s}", LogReaderCephFSName, d.Namespace), Reason: err.Error()}
	}
	if err := status.CheckPodStatusPhase(ctx, d.Namespace, types.LogReaderCephFSLabel, d.Timeout, d.Delay, s.Clients, s.Clock, types.StatusRunning, types.StatusCompleted); err != nil {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeDeployment, Target: fmt.Sprintf("{job: %s, namespace: %s}", LogReaderCephFSName, d.Namespace), Reason: err.Error()}
	}
	return GetInstances(ctx, s, types.LogReaderCephFSLabel, 0, types.StatusRunning, types.StatusCompleted)
}

// DeleteReader removes the reader job and waits for its pods to disappear
func DeleteReader(ctx context.Context, s *session.Session) error {
	d := s.Details
	pods, err := s.Clients.ListPods(ctx, d.Namespace, types.LogReaderCephFSLabel)
	if err != nil {
		return stacktrace.Propagate(err, "could not list the logreader pods")
	}
	propagation := metav1.DeletePropagationBackground
	err = s.Clients.KubeClient.BatchV1().Jobs(d.Namespace).Delete(ctx, LogReaderCephFSName, metav1.DeleteOptions{PropagationPolicy: &propagation})
	if err != nil && !k8serrors.IsNotFound(err) {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Target: fmt.Sprintf("{job: %s}", LogReaderCephFSName), Reason: err.Error()}
	}

	var names []string
	for _, p := range pods.Items {
		names = append(names, p.Name)
		// background propagation leaves pods to the garbage collector
		if err := s.Clients.DeletePod(ctx, d.Namespace, p.Name, false); err != nil {
			return stacktrace.Propagate(err, "could not delete logreader pod %s", p.Name)
		}
	}
	if err := status.WaitForPodsDeleted(ctx, d.Namespace, names, readerDeleteTimeout, 5, s.Clients, s.Clock); err != nil {
		return stacktrace.Propagate(err, "old logreader pods were not deleted")
	}
	log.Info("[Cleanup]: All old logreader pods are deleted")
	return nil
}

// GetInstances lists the instances of a label and asserts their count and statuses.
// expected <= 0 skips the count assertion.
func GetInstances(ctx context.Context, s *session.Session, label string, expected int, statuses ...types.InstanceStatus) ([]types.WorkloadInstance, error) {
	d := s.Details
	pods, err := s.Clients.ListPods(ctx, d.Namespace, label)
	if err != nil {
		return nil, stacktrace.Propagate(err, "could not list pods of %s", label)
	}
	if expected > 0 && len(pods.Items) != expected {
		return nil, cerrors.WorkloadStatusChecks{Target: label, Reason: fmt.Sprintf("expected %d instance(s), found %d", expected, len(pods.Items))}
	}

	zones := map[string]string{}
	instances := make([]types.WorkloadInstance, 0, len(pods.Items))
	for i := range pods.Items {
		inst := toInstance(ctx, s, &pods.Items[i], label, zones)
		if len(statuses) != 0 && !oneOf(inst.Status, statuses) {
			return nil, cerrors.WorkloadStatusChecks{Target: label, Reason: fmt.Sprintf("instance %s is %s, expected one of %v", inst.Name, inst.Status, statuses)}
		}
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].Name < instances[j].Name })
	s.SetWorkloads(label, instances)
	return instances, nil
}

// WaitForStatuses polls until every instance reaches one of the expected statuses
func WaitForStatuses(ctx context.Context, s *session.Session, instances []types.WorkloadInstance, expected []types.InstanceStatus, timeout int) error {
	names := make([]string, 0, len(instances))
	for _, inst := range instances {
		names = append(names, inst.Name)
	}
	return status.CheckPodStatuses(ctx, s.Details.Namespace, names, expected, timeout, s.Details.Delay, s.Clients, s.Clock)
}

// NotRunning returns the instances of the labels which are neither running nor completed
func NotRunning(ctx context.Context, s *session.Session, labels ...string) ([]types.WorkloadInstance, error) {
	var out []types.WorkloadInstance
	for _, label := range labels {
		instances, err := GetInstances(ctx, s, label, 0)
		if err != nil {
			return nil, err
		}
		for _, inst := range instances {
			if inst.Status != types.StatusRunning && inst.Status != types.StatusCompleted {
				out = append(out, inst)
			}
		}
	}
	return out, nil
}

// WriterClaim returns the claim backing the CephFS writer deployment
func WriterClaim(ctx context.Context, s *session.Session) (string, error) {
	deploy, err := s.Clients.GetDeployment(ctx, s.Details.Namespace, LogWriterCephFSName)
	if err != nil {
		return "", stacktrace.Propagate(err, "could not get the logwriter deployment")
	}
	for _, v := range deploy.Spec.Template.Spec.Volumes {
		if v.PersistentVolumeClaim != nil {
			return v.PersistentVolumeClaim.ClaimName, nil
		}
	}
	return "", cerrors.Error{ErrorCode: cerrors.ErrorTypeUnexpectedBehaviour, Target: fmt.Sprintf("{deployment: %s}", LogWriterCephFSName), Reason: "deployment has no claim volume"}
}

func toInstance(ctx context.Context, s *session.Session, pod *corev1.Pod, label string, zones map[string]string) types.WorkloadInstance {
	info := knownLabels[label]
	inst := types.WorkloadInstance{
		Name:      pod.Name,
		Namespace: pod.Namespace,
		Role:      info.role,
		Protocol:  info.protocol,
		Label:     label,
		Node:      pod.Spec.NodeName,
		Container: info.container,
		Status:    status.PodStatus(pod),
	}
	for _, v := range pod.Spec.Volumes {
		if v.PersistentVolumeClaim != nil {
			inst.VolumeRef = v.PersistentVolumeClaim.ClaimName
			break
		}
	}
	if inst.Node != "" {
		zone, ok := zones[inst.Node]
		if !ok {
			if n, err := s.Clients.KubeClient.CoreV1().Nodes().Get(ctx, inst.Node, metav1.GetOptions{}); err == nil {
				zone = n.Labels[s.Details.ZoneLabel]
			}
			zones[inst.Node] = zone
		}
		inst.Zone = zone
	}
	return inst
}

func oneOf(state types.InstanceStatus, states []types.InstanceStatus) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

func createIgnoringExisting(create func() error) error {
	if err := create(); err != nil && !k8serrors.IsAlreadyExists(err) {
		return err
	}
	return nil
}
