package workloads

import (
	"context"
	"testing"
	"time"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/exec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// leftBehind is a pod of the shut down zone whose deletion never completes
func leftBehind(name, app, node string) *corev1.Pod {
	p := workloadPod(name, app, node, corev1.PodRunning)
	now := metav1.NewTime(time.Date(2024, 5, 10, 9, 55, 0, 0, time.UTC))
	p.DeletionTimestamp = &now
	return p
}

func relocated() []runtime.Object {
	return []runtime.Object{
		zoneNode("worker-1", "data-1"),
		zoneNode("worker-2", "data-2"),
		leftBehind("logwriter-cephfs-a", LogWriterCephFSName, "worker-1"),
		leftBehind("logwriter-cephfs-b", LogWriterCephFSName, "worker-1"),
		workloadPod("logwriter-cephfs-c", LogWriterCephFSName, "worker-2", corev1.PodRunning),
		workloadPod("logwriter-cephfs-d", LogWriterCephFSName, "worker-2", corev1.PodRunning),
		workloadPod("logwriter-cephfs-e", LogWriterCephFSName, "worker-2", corev1.PodRunning),
		workloadPod("logwriter-cephfs-f", LogWriterCephFSName, "worker-2", corev1.PodRunning),
		leftBehind("logwriter-rbd-0", LogWriterRBDName, "worker-1"),
		workloadPod("logwriter-rbd-1", LogWriterRBDName, "worker-2", corev1.PodRunning),
		workloadPod("logwriter-rbd-2", LogWriterRBDName, "worker-2", corev1.PodRunning),
		workloadPod("logreader-cephfs-1", LogReaderCephFSName, "worker-1", corev1.PodSucceeded),
		workloadPod("logreader-cephfs-2", LogReaderCephFSName, "worker-2", corev1.PodRunning),
	}
}

func TestWaitForRelocation(t *testing.T) {
	replace := func(objs []runtime.Object, pod *corev1.Pod) []runtime.Object {
		out := make([]runtime.Object, 0, len(objs))
		for _, o := range objs {
			if p, ok := o.(*corev1.Pod); ok && p.Name == pod.Name {
				continue
			}
			out = append(out, o)
		}
		return append(out, pod)
	}
	tests := []struct {
		name     string
		objs     []runtime.Object
		wantErr  bool
		wantText []string
	}{
		{
			name: "every workload relocated",
			objs: relocated(),
		},
		{
			name:     "writer still pending",
			objs:     replace(relocated(), workloadPod("logwriter-cephfs-f", LogWriterCephFSName, "worker-2", corev1.PodPending)),
			wantErr:  true,
			wantText: []string{"zone: data-1", "logwriter-cephfs-f(Pending)", "app=logwriter-cephfs(3/4 ready)"},
		},
		{
			name:     "block replica missing",
			objs:     replace(relocated(), leftBehind("logwriter-rbd-2", LogWriterRBDName, "worker-2")),
			wantErr:  true,
			wantText: []string{"logwriter-rbd-2(Terminating)", "app=logwriter-rbd(1/2 ready)"},
		},
		{
			name:     "block writer still running in the zone",
			objs:     replace(relocated(), workloadPod("logwriter-rbd-0", LogWriterRBDName, "worker-1", corev1.PodRunning)),
			wantErr:  true,
			wantText: []string{"logwriter-rbd-0(running in data-1)"},
		},
		{
			name:     "reader failed",
			objs:     replace(relocated(), workloadPod("logreader-cephfs-2", LogReaderCephFSName, "worker-2", corev1.PodFailed)),
			wantErr:  true,
			wantText: []string{"logreader-cephfs-2(Failed)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(exec.NewFakeExecutor(), tt.objs...)
			start := s.Clock.Now()

			err := WaitForRelocation(context.Background(), s, "data-1",
				types.LogWriterCephFSLabel, types.LogReaderCephFSLabel, types.LogWriterRBDLabel)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, time.Duration(0), s.Clock.Since(start))
				return
			}
			require.Error(t, err)
			assert.True(t, cerrors.Is(err, cerrors.ErrorTypeTimeout), "got %v", err)
			for _, text := range tt.wantText {
				assert.Contains(t, err.Error(), text)
			}
			// gave up after the status check timeout
			assert.Equal(t, 30*time.Second, s.Clock.Since(start))
		})
	}
}
