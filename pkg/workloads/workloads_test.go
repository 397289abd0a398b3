package workloads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/clients"
	"github.com/litmuschaos/stretch-dr-go/pkg/session"
	experimentTypes "github.com/litmuschaos/stretch-dr-go/pkg/stretch/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/exec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	testingclock "k8s.io/utils/clock/testing"
)

const ns = "namespace-sc-logwriter"

func details() *experimentTypes.ExperimentDetails {
	return &experimentTypes.ExperimentDetails{
		Namespace:      ns,
		ZoneLabel:      "topology.kubernetes.io/zone",
		DataZones:      []string{"data-1", "data-2"},
		Timeout:        30,
		Delay:          15,
		LogWriterImage: "quay.io/ocsci/logwriter:latest",
		CephFSStorage:  "ocs-storagecluster-cephfs",
		RBDStorage:     "ocs-storagecluster-ceph-rbd",
	}
}

func zoneNode(name, zone string) *corev1.Node {
	return &corev1.Node{ObjectMeta: metav1.ObjectMeta{
		Name:   name,
		Labels: map[string]string{"topology.kubernetes.io/zone": zone},
	}}
}

func workloadPod(name, app, node string, phase corev1.PodPhase) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns, Labels: map[string]string{"app": app}},
		Spec: corev1.PodSpec{
			NodeName: node,
			Volumes: []corev1.Volume{{
				Name: "logwriter-volume",
				VolumeSource: corev1.VolumeSource{
					PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: LogWriterCephFSName},
				},
			}},
		},
		Status: corev1.PodStatus{Phase: phase},
	}
}

func newSession(executor exec.Executor, objs ...runtime.Object) *session.Session {
	c := clients.ClientSets{KubeClient: fake.NewSimpleClientset(objs...)}
	clk := testingclock.NewFakeClock(time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC))
	return session.New(c, details(), clk, executor, nil, nil)
}

func cephFSWriters(phase corev1.PodPhase) []runtime.Object {
	return []runtime.Object{
		zoneNode("worker-1", "data-1"),
		zoneNode("worker-2", "data-2"),
		workloadPod("logwriter-cephfs-a", LogWriterCephFSName, "worker-1", corev1.PodRunning),
		workloadPod("logwriter-cephfs-b", LogWriterCephFSName, "worker-1", corev1.PodRunning),
		workloadPod("logwriter-cephfs-c", LogWriterCephFSName, "worker-2", corev1.PodRunning),
		workloadPod("logwriter-cephfs-d", LogWriterCephFSName, "worker-2", phase),
	}
}

func TestStartWriterCephFS(t *testing.T) {
	s := newSession(exec.NewFakeExecutor(), cephFSWriters(corev1.PodRunning)...)

	instances, err := StartWriter(context.Background(), s, types.FileShared, true)
	require.NoError(t, err)
	require.Len(t, instances, 4)

	assert.Equal(t, "logwriter-cephfs-a", instances[0].Name)
	assert.Equal(t, "data-1", instances[0].Zone)
	assert.Equal(t, "data-2", instances[3].Zone)
	assert.Equal(t, types.Writer, instances[0].Role)
	assert.Equal(t, types.FileShared, instances[0].Protocol)
	assert.Equal(t, LogWriterCephFSName, instances[0].VolumeRef)

	_, err = s.Clients.KubeClient.CoreV1().PersistentVolumeClaims(ns).Get(context.Background(), LogWriterCephFSName, metav1.GetOptions{})
	assert.NoError(t, err)
	deploy, err := s.Clients.KubeClient.AppsV1().Deployments(ns).Get(context.Background(), LogWriterCephFSName, metav1.GetOptions{})
	require.NoError(t, err)
	assert.NotNil(t, deploy.Spec.Template.Spec.Affinity)
	assert.Len(t, s.Workloads(types.LogWriterCephFSLabel), 4)

	// a second start finds the resources already present
	_, err = StartWriter(context.Background(), s, types.FileShared, true)
	assert.NoError(t, err)
}

func TestStartWriterNotPlaced(t *testing.T) {
	s := newSession(exec.NewFakeExecutor(), cephFSWriters(corev1.PodPending)...)

	_, err := StartWriter(context.Background(), s, types.FileShared, false)
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, cerrors.ErrorTypeDeployment))
}

func TestGetInstances(t *testing.T) {
	tests := []struct {
		name     string
		expected int
		statuses []types.InstanceStatus
		wantErr  bool
	}{
		{"count and status match", 4, []types.InstanceStatus{types.StatusRunning}, false},
		{"count mismatch", 2, nil, true},
		{"count skipped", 0, nil, false},
		{"status mismatch", 4, []types.InstanceStatus{types.StatusCompleted}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(exec.NewFakeExecutor(), cephFSWriters(corev1.PodRunning)...)
			_, err := GetInstances(context.Background(), s, types.LogWriterCephFSLabel, tt.expected, tt.statuses...)
			if tt.wantErr {
				assert.True(t, cerrors.Is(err, cerrors.ErrorTypeUnexpectedBehaviour), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNotRunning(t *testing.T) {
	s := newSession(exec.NewFakeExecutor(), cephFSWriters(corev1.PodPending)...)
	out, err := NotRunning(context.Background(), s, types.LogWriterCephFSLabel)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "logwriter-cephfs-d", out[0].Name)
	assert.Equal(t, "worker-2", out[0].Node)
}

func TestCollectLogFileMapCephFS(t *testing.T) {
	executor := exec.NewFakeExecutor().
		On("logwriter-cephfs-a", "ls -l", exec.FakeResponse{Output: "a.log\nlost+found\n\nb.log\n"}).
		On("logwriter-cephfs-a", "cat a.log", exec.FakeResponse{Output: "2024-05-10T10:00:01.500000+00:00 started\n"}).
		On("logwriter-cephfs-a", "cat b.log", exec.FakeResponse{Output: "2024-05-10T10:00:02+00:00 started\n"})
	s := newSession(executor, cephFSWriters(corev1.PodRunning)...)

	m, err := CollectLogFileMap(context.Background(), s, types.FileShared)
	require.NoError(t, err)
	assert.Equal(t, types.LogFileMap{
		"logwriter-cephfs-a": {"a.log": "10:00:01.500000+00:00", "b.log": "10:00:02+00:00"},
	}, m)

	stored, ok := s.LogFileMap(types.LogWriterCephFSLabel)
	assert.True(t, ok)
	assert.Equal(t, m, stored)
	for _, call := range executor.Calls {
		assert.Equal(t, "logwriter-cephfs-a", call.Pod)
	}
}

func TestCollectLogFileMapRBD(t *testing.T) {
	objs := []runtime.Object{
		zoneNode("worker-1", "data-1"),
		workloadPod("logwriter-rbd-0", LogWriterRBDName, "worker-1", corev1.PodRunning),
		workloadPod("logwriter-rbd-1", LogWriterRBDName, "worker-1", corev1.PodRunning),
	}
	executor := exec.NewFakeExecutor().
		On("logwriter-rbd-0", "ls -l", exec.FakeResponse{Output: "x.log\n"}).
		On("logwriter-rbd-0", "cat x.log", exec.FakeResponse{Output: "2024-05-10T10:00:00+00:00 started"}).
		On("logwriter-rbd-1", "ls -l", exec.FakeResponse{Output: "lost+found\n"})
	s := newSession(executor, objs...)

	m, err := CollectLogFileMap(context.Background(), s, types.BlockExclusive)
	require.NoError(t, err)
	assert.Equal(t, types.LogFileMap{
		"logwriter-rbd-0": {"x.log": "10:00:00+00:00"},
		"logwriter-rbd-1": {},
	}, m)
}

func TestCollectLogFileMapIdempotent(t *testing.T) {
	tests := []struct {
		name  string
		later string
		want  map[string]string
	}{
		{
			name:  "nothing changed in between",
			later: "a.log\n",
			want:  map[string]string{"a.log": "10:00:01+00:00"},
		},
		{
			name:  "an artifact was added in between",
			later: "a.log\nb.log\n",
			want:  map[string]string{"a.log": "10:00:01+00:00", "b.log": "10:20:00+00:00"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := exec.NewFakeExecutor().
				On("logwriter-cephfs-a", "ls -l", exec.FakeResponse{Output: "a.log\n"}).
				On("logwriter-cephfs-a", "cat a.log", exec.FakeResponse{Output: "2024-05-10T10:00:01+00:00 started\n"}).
				On("logwriter-cephfs-a", "cat b.log", exec.FakeResponse{Output: "2024-05-10T10:20:00+00:00 started\n"})
			s := newSession(executor, cephFSWriters(corev1.PodRunning)...)
			ctx := context.Background()

			first, err := CollectLogFileMap(ctx, s, types.FileShared)
			require.NoError(t, err)
			again, err := CollectLogFileMap(ctx, s, types.FileShared)
			require.NoError(t, err)
			assert.Equal(t, first, again)

			// a fresh executor answers with the later listing
			s.Executor = exec.NewFakeExecutor().
				On("logwriter-cephfs-a", "ls -l", exec.FakeResponse{Output: tt.later}).
				On("logwriter-cephfs-a", "cat a.log", exec.FakeResponse{Output: "2024-05-10T10:00:01+00:00 started\n"}).
				On("logwriter-cephfs-a", "cat b.log", exec.FakeResponse{Output: "2024-05-10T10:20:00+00:00 started\n"})
			later, err := CollectLogFileMap(ctx, s, types.FileShared)
			require.NoError(t, err)
			assert.Equal(t, types.LogFileMap{"logwriter-cephfs-a": tt.want}, later)

			stored, ok := s.LogFileMap(types.LogWriterCephFSLabel)
			require.True(t, ok)
			assert.Equal(t, later, stored)
		})
	}
}

func TestCollectLogFileMapStopsOnPermanentError(t *testing.T) {
	executor := exec.NewFakeExecutor().
		On("logwriter-cephfs-a", "ls -l", exec.FakeResponse{Err: errors.New("no such file or directory")})
	s := newSession(executor, cephFSWriters(corev1.PodRunning)...)

	_, err := CollectLogFileMap(context.Background(), s, types.FileShared)
	assert.Error(t, err)
	assert.Len(t, executor.Calls, 1)
}

func TestCollectLogFileMapRetriesTransientError(t *testing.T) {
	executor := exec.NewFakeExecutor().
		On("logwriter-cephfs-a", "ls -l", exec.FakeResponse{Err: errors.New("unable to upgrade connection: container not found")})
	s := newSession(executor, cephFSWriters(corev1.PodRunning)...)

	_, err := CollectLogFileMap(context.Background(), s, types.FileShared)
	assert.Error(t, err)
	assert.Len(t, executor.Calls, 4)
}

func TestDeleteReader(t *testing.T) {
	job := &batchv1.Job{ObjectMeta: metav1.ObjectMeta{Name: LogReaderCephFSName, Namespace: ns}}
	s := newSession(exec.NewFakeExecutor(),
		job,
		workloadPod("logreader-cephfs-1", LogReaderCephFSName, "", corev1.PodSucceeded),
		workloadPod("logreader-cephfs-2", LogReaderCephFSName, "", corev1.PodSucceeded),
	)

	require.NoError(t, DeleteReader(context.Background(), s))
	pods, err := s.Clients.KubeClient.CoreV1().Pods(ns).List(context.Background(), metav1.ListOptions{LabelSelector: types.LogReaderCephFSLabel})
	require.NoError(t, err)
	assert.Empty(t, pods.Items)

	// nothing left to delete
	assert.NoError(t, DeleteReader(context.Background(), s))
}

func TestWriterClaim(t *testing.T) {
	deploy := CephFSWriterDeployment(ns, "img", "my-claim", "zone", nil, false)
	s := newSession(exec.NewFakeExecutor(), deploy)

	claim, err := WriterClaim(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "my-claim", claim)
}

func TestReaderCommand(t *testing.T) {
	assert.Equal(t, "/opt/logreader.py -t 5 *.log -d", ReaderCommand(5))
	job := CephFSReaderJob(ns, "img", "claim", 5)
	assert.Equal(t, []string{"/bin/sh", "-c", "/opt/logreader.py -t 5 *.log -d"}, job.Spec.Template.Spec.Containers[0].Command)
}
