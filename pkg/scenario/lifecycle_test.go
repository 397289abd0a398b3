package scenario

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	netsplit "github.com/litmuschaos/stretch-dr-go/chaoslib/litmus/network-split/lib"
	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/clients"
	"github.com/litmuschaos/stretch-dr-go/pkg/node"
	"github.com/litmuschaos/stretch-dr-go/pkg/recovery"
	"github.com/litmuschaos/stretch-dr-go/pkg/result"
	"github.com/litmuschaos/stretch-dr-go/pkg/session"
	"github.com/litmuschaos/stretch-dr-go/pkg/tolerance"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/exec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
	testingclock "k8s.io/utils/clock/testing"
)

// peers maps every worker to the node of the other data zone taking over its pods
var peers = map[string]string{"worker-1": "worker-3", "worker-2": "worker-4", "worker-3": "worker-1", "worker-4": "worker-2"}

var (
	cephFSWriters = []string{"logwriter-cephfs-a", "logwriter-cephfs-b", "logwriter-cephfs-c", "logwriter-cephfs-d"}
	rbdWriters    = []string{"logwriter-rbd-0", "logwriter-rbd-1"}
)

func clusterNode(name, zone, ip string, worker bool) *corev1.Node {
	labels := map[string]string{zoneLabel: zone}
	if worker {
		labels[WorkerRoleLabel] = ""
	}
	n := &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name, Labels: labels},
		Status:     corev1.NodeStatus{Addresses: []corev1.NodeAddress{{Type: corev1.NodeInternalIP, Address: ip}}},
	}
	setReady(n, true)
	return n
}

func logPod(name, app, nodeName, container string, phase corev1.PodPhase) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns, Labels: map[string]string{"app": app}},
		Spec:       corev1.PodSpec{NodeName: nodeName, Containers: []corev1.Container{{Name: container}}},
		Status:     corev1.PodStatus{Phase: phase},
	}
}

func daemonObjects(daemon, name, nodeName string) []runtime.Object {
	replicas := int32(1)
	return []runtime.Object{
		&appsv1.Deployment{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: clusterNS},
			Spec:       appsv1.DeploymentSpec{Replicas: &replicas},
		},
		&appsv1.ReplicaSet{ObjectMeta: metav1.ObjectMeta{
			Name: name + "-rs", Namespace: clusterNS,
			OwnerReferences: []metav1.OwnerReference{{Kind: "Deployment", Name: name}},
		}},
		&corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{
				Name: name + "-pod", Namespace: clusterNS,
				Labels:          map[string]string{"app": "rook-ceph-" + daemon},
				OwnerReferences: []metav1.OwnerReference{{Kind: "ReplicaSet", Name: name + "-rs"}},
			},
			Spec:   corev1.PodSpec{NodeName: nodeName},
			Status: corev1.PodStatus{Phase: corev1.PodRunning},
		},
	}
}

// stretchCluster is an arbiter and two data zones of two workers each, the
// writers spread over both data zones, one mon and one osd per data zone
func stretchCluster() []runtime.Object {
	objs := []runtime.Object{
		clusterNode("master-0", "arbiter", "10.0.0.1", false),
		clusterNode("worker-1", "data-1", "10.0.1.1", true),
		clusterNode("worker-2", "data-1", "10.0.1.2", true),
		clusterNode("worker-3", "data-2", "10.0.2.1", true),
		clusterNode("worker-4", "data-2", "10.0.2.2", true),
	}
	for i, name := range cephFSWriters {
		objs = append(objs, logPod(name, "logwriter-cephfs", fmt.Sprintf("worker-%d", i+1), "logwriter", corev1.PodRunning))
	}
	objs = append(objs,
		logPod(rbdWriters[0], "logwriter-rbd", "worker-1", "logwriter", corev1.PodRunning),
		logPod(rbdWriters[1], "logwriter-rbd", "worker-3", "logwriter", corev1.PodRunning),
	)
	objs = append(objs, daemonObjects("mon", "rook-ceph-mon-a", "worker-1")...)
	objs = append(objs, daemonObjects("mon", "rook-ceph-mon-c", "worker-3")...)
	objs = append(objs, daemonObjects("osd", "rook-ceph-osd-0", "worker-2")...)
	objs = append(objs, daemonObjects("osd", "rook-ceph-osd-1", "worker-4")...)
	return objs
}

// continuousLog writes one marker a minute from 10:00 to 19:59
func continuousLog() string {
	var b strings.Builder
	b.WriteString("2024-05-10T10:00:00.000000+00:00 started\n")
	for h := 10; h < 20; h++ {
		for m := 0; m < 60; m++ {
			fmt.Fprintf(&b, "2024-05-10T%02d:%02d:30.000000+00:00 record\n", h, m)
		}
	}
	return b.String()
}

// writerExecutor answers the listings and reads of every writer with
// uninterrupted logs
func writerExecutor() *exec.FakeExecutor {
	text := continuousLog()
	executor := exec.NewFakeExecutor()
	for _, pod := range cephFSWriters {
		executor.
			On(pod, "ls -l", exec.FakeResponse{Output: "cephfs-1.log\ncephfs-2.log\n"}).
			On(pod, "cat ", exec.FakeResponse{Output: text})
	}
	for _, pod := range rbdWriters {
		executor.
			On(pod, "ls -l", exec.FakeResponse{Output: pod + ".log\n"}).
			On(pod, "cat ", exec.FakeResponse{Output: text})
	}
	return executor
}

// completeReaders makes every created reader job run one pod to completion
func completeReaders(kube *fake.Clientset) {
	var (
		mu   sync.Mutex
		runs int
	)
	kube.PrependReactor("create", "jobs", func(action k8stesting.Action) (bool, runtime.Object, error) {
		mu.Lock()
		runs++
		name := fmt.Sprintf("logreader-cephfs-%d", runs)
		mu.Unlock()
		pod := logPod(name, "logreader-cephfs", "worker-3", "logreader", corev1.PodSucceeded)
		return false, nil, kube.Tracker().Add(pod)
	})
}

// relocateOnStop moves the workload pods of stopped nodes to their peers
func relocateOnStop(kube *fake.Clientset, power *node.FakePowerController) {
	stop := power.OnStop
	power.OnStop = func(nodes []string) {
		stop(nodes)
		down := map[string]bool{}
		for _, n := range nodes {
			down[n] = true
		}
		pods, err := kube.CoreV1().Pods(ns).List(context.Background(), metav1.ListOptions{})
		if err != nil {
			return
		}
		for i := range pods.Items {
			pod := &pods.Items[i]
			if !down[pod.Spec.NodeName] {
				continue
			}
			pod.Spec.NodeName = peers[pod.Spec.NodeName]
			_, _ = kube.CoreV1().Pods(ns).Update(context.Background(), pod, metav1.UpdateOptions{})
		}
	}
}

type recordingFencer struct {
	mu       sync.Mutex
	fenced   []string
	unfenced []string
}

func (f *recordingFencer) CIDRs(ctx context.Context, node string) ([]string, error) {
	return []string{"10.128.0.0/32"}, nil
}

func (f *recordingFencer) Fence(ctx context.Context, node, cidr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fenced = append(f.fenced, node)
	return nil
}

func (f *recordingFencer) Unfence(ctx context.Context, node string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unfenced = append(f.unfenced, node)
	return nil
}

// countingScheduler records how many split helpers every schedule created
type countingScheduler struct {
	*netsplit.HelperScheduler
	helpers []int
}

func (c *countingScheduler) ScheduleSplit(ctx context.Context, nodes []string, splitName string, target time.Time, length time.Duration) error {
	if err := c.HelperScheduler.ScheduleSplit(ctx, nodes, splitName, target, length); err != nil {
		return err
	}
	pods, err := c.Clients.ListPods(ctx, c.Namespace, c.HelperLabel())
	if err != nil {
		return err
	}
	c.helpers = append(c.helpers, len(pods.Items))
	return nil
}

// newClusterRun wires a run over the fake stretch cluster
func newClusterRun(t *testing.T, power node.PowerController, configure func(s *session.Session)) (*Run, *fake.Clientset) {
	t.Helper()
	kube := fake.NewSimpleClientset(stretchCluster()...)
	completeReaders(kube)

	d := details()
	d.ArbiterZone = "arbiter"
	d.NetsplitLeadTime = 5
	d.ChaosDuration = 15
	d.NetsplitMargin = 5
	d.DaemonSettleTime = 600
	d.RelocationBuffer = 600
	d.LogReaderDuration = 5
	d.HelperImage = "litmuschaos/go-runner:latest"

	s := session.New(clients.ClientSets{KubeClient: kube}, d, testingclock.NewFakeClock(epoch), writerExecutor(), power, tolerance.Default())
	if configure != nil {
		configure(s)
	}
	return NewRun(s, nil, nil, nil), kube
}

func podsLeft(t *testing.T, kube *fake.Clientset, namespace, label string) int {
	t.Helper()
	pods, err := kube.CoreV1().Pods(namespace).List(context.Background(), metav1.ListOptions{LabelSelector: label})
	require.NoError(t, err)
	return len(pods.Items)
}

func states(rd *result.ResultDetails) []recovery.State {
	var path []recovery.State
	for _, tr := range rd.Transitions {
		path = append(path, tr.To)
	}
	return path
}

func TestNetsplitLifecycle(t *testing.T) {
	tests := []struct {
		split   string
		helpers int
	}{
		// arbiter and the two data-1 workers
		{"ab", 3},
		// every worker, the arbiter still reaches both sides
		{"bc", 4},
		{"ab-ac", 5},
		{"ab-bc", 5},
	}
	for _, scenarioName := range []string{"netsplit-cephfs", "netsplit-rbd"} {
		for _, tt := range tests {
			t.Run(scenarioName+"/"+tt.split, func(t *testing.T) {
				r, kube := newClusterRun(t, nil, func(s *session.Session) {
					s.Details.NetsplitZones = tt.split
				})
				scheduler := &countingScheduler{HelperScheduler: &netsplit.HelperScheduler{
					Clients:   r.Session.Clients,
					Namespace: clusterNS,
					Image:     r.Session.Details.HelperImage,
					ZoneLabel: zoneLabel,
					Arbiter:   "arbiter",
					DataZones: r.Session.Details.DataZones,
					RunID:     r.Session.Details.RunID,
				}}
				r.Scheduler = scheduler

				rd, err := Execute(context.Background(), r, scenarioName)
				require.NoError(t, err)
				assert.Equal(t, result.Pass, rd.Verdict)
				assert.Equal(t, recovery.Verified, r.Orchestrator.State())
				assert.Equal(t, []int{tt.helpers}, scheduler.helpers)
				assert.Zero(t, podsLeft(t, kube, clusterNS, scheduler.HelperLabel()))

				require.NotEmpty(t, rd.Outcomes)
				for _, o := range rd.Outcomes {
					if o.Kind() == types.Pause {
						assert.Equal(t, types.NetworkSplit, o.Fault(), o.String())
					}
				}
				// lead, duration and margin of the split are waited through
				assert.GreaterOrEqual(t, r.Session.Clock.Since(epoch), 25*time.Minute)
			})
		}
	}
}

func TestZoneShutdownLifecycle(t *testing.T) {
	tests := []struct {
		name    string
		fencing bool
	}{
		{name: "with fencing", fencing: true},
		{name: "without fencing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			power := node.NewFakePowerController()
			fencer := &recordingFencer{}
			r, kube := newClusterRun(t, power, func(s *session.Session) {
				s.Details.Fencing = tt.fencing
			})
			flipNodes(kube, power)
			relocateOnStop(kube, power)
			r.Fencer = fencer

			rd, err := Execute(context.Background(), r, "zone-shutdown")
			require.NoError(t, err)
			assert.Equal(t, result.Pass, rd.Verdict)
			assert.Equal(t, recovery.Verified, r.Orchestrator.State())

			// each data zone went down and came back in turn
			require.Len(t, power.Stops, 2)
			assert.ElementsMatch(t, []string{"worker-1", "worker-2"}, power.Stops[0])
			assert.ElementsMatch(t, []string{"worker-3", "worker-4"}, power.Stops[1])
			assert.Equal(t, power.Stops, power.Starts)

			if tt.fencing {
				assert.ElementsMatch(t, []string{"worker-1", "worker-2", "worker-3", "worker-4"}, fencer.fenced)
				assert.ElementsMatch(t, fencer.fenced, fencer.unfenced)
			} else {
				assert.Empty(t, fencer.fenced)
			}
			for _, name := range []string{"worker-1", "worker-3"} {
				n, err := kube.CoreV1().Nodes().Get(context.Background(), name, metav1.GetOptions{})
				require.NoError(t, err)
				assert.Empty(t, n.Spec.Taints)
			}

			// the block writers are checked where they run while the zone is down
			zones := map[string][]string{}
			for _, o := range rd.Outcomes {
				if o.Kind() == types.Pause && strings.HasPrefix(o.Subject(), "logwriter-rbd-") {
					zones[o.Subject()] = append(zones[o.Subject()], o.Zone())
					assert.Equal(t, types.NodeShutdown, o.Fault())
					assert.False(t, o.Value(), o.String())
				}
			}
			assert.Equal(t, map[string][]string{
				"logwriter-rbd-0": {"data-2", "data-1"},
				"logwriter-rbd-1": {"data-2", "data-1"},
			}, zones)

			path := states(rd)
			assert.Equal(t, recovery.Verified, path[len(path)-1])
			var injected int
			for _, st := range path {
				if st == recovery.FaultInjected {
					injected++
				}
			}
			assert.Equal(t, 2, injected)
		})
	}
}

func TestZoneShutdownRelocationTimeout(t *testing.T) {
	power := node.NewFakePowerController()
	fencer := &recordingFencer{}
	r, kube := newClusterRun(t, power, func(s *session.Session) {
		s.Details.Fencing = true
	})
	// nodes go down but nothing is rescheduled
	flipNodes(kube, power)
	r.Fencer = fencer

	rd, err := Execute(context.Background(), r, "zone-shutdown")
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, cerrors.ErrorTypeTimeout), "got %v", err)
	assert.Contains(t, err.Error(), "zone: data-1")
	assert.Contains(t, err.Error(), "logwriter-rbd-0(running in data-1)")
	assert.Contains(t, err.Error(), "logwriter-cephfs-a(running in data-1)")
	assert.Equal(t, result.Fail, rd.Verdict)
	assert.Equal(t, recovery.Failed, r.Orchestrator.State())

	_, failStep, err := result.GetVerdict(context.Background(), r.Session.Clients, ns, "zone-shutdown")
	require.NoError(t, err)
	assert.Contains(t, failStep, result.WorkloadRelocation)

	// the second zone is never touched and the teardown restores the first
	require.Len(t, power.Stops, 1)
	assert.ElementsMatch(t, []string{"worker-1", "worker-2"}, power.Stops[0])
	require.Len(t, power.Starts, 1)
	assert.ElementsMatch(t, []string{"worker-1", "worker-2"}, fencer.unfenced)
	// no pause was classified before giving up
	for _, o := range rd.Outcomes {
		assert.NotEqual(t, types.Pause, o.Kind(), o.String())
	}
}

func TestDaemonFailureLifecycle(t *testing.T) {
	tests := []struct {
		scenario string
		label    string
		targets  []string
	}{
		{"mon-failure-single", "app=rook-ceph-mon", []string{"rook-ceph-mon-a"}},
		{"mon-failure-both", "app=rook-ceph-mon", []string{"rook-ceph-mon-a", "rook-ceph-mon-c"}},
		{"osd-failure-single", "app=rook-ceph-osd", []string{"rook-ceph-osd-0"}},
		{"osd-failure-both", "app=rook-ceph-osd", []string{"rook-ceph-osd-0", "rook-ceph-osd-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			r, kube := newClusterRun(t, nil, nil)
			var scaled []string
			kube.PrependReactor("update", "deployments", func(action k8stesting.Action) (bool, runtime.Object, error) {
				if u, ok := action.(k8stesting.UpdateAction); ok {
					if d, ok := u.GetObject().(*appsv1.Deployment); ok && d.Spec.Replicas != nil && *d.Spec.Replicas == 0 {
						scaled = append(scaled, d.Name)
					}
				}
				return false, nil, nil
			})

			rd, err := Execute(context.Background(), r, tt.scenario)
			require.NoError(t, err)
			assert.Equal(t, result.Pass, rd.Verdict)
			assert.Equal(t, recovery.Verified, r.Orchestrator.State())

			sort.Strings(scaled)
			assert.Equal(t, tt.targets, scaled)
			for _, name := range tt.targets {
				d, err := kube.AppsV1().Deployments(clusterNS).Get(context.Background(), name, metav1.GetOptions{})
				require.NoError(t, err)
				assert.Equal(t, int32(1), *d.Spec.Replicas)
			}
			assert.Empty(t, r.Session.ScaledDeployments())

			// the fault is held for the settle time before it is reverted
			assert.GreaterOrEqual(t, r.Session.Clock.Since(epoch), 10*time.Minute)
			for _, o := range rd.Outcomes {
				if o.Kind() == types.Pause {
					assert.Equal(t, types.DaemonScale, o.Fault(), o.String())
				}
			}
		})
	}
}
