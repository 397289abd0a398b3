package status

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	clients "github.com/litmuschaos/stretch-dr-go/pkg/clients"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/pkg/errors"
	logrus "github.com/sirupsen/logrus"
	v1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/clock"
)

// PodStatus derives the status column an operator would see for the pod
func PodStatus(pod *v1.Pod) types.InstanceStatus {
	if pod.DeletionTimestamp != nil {
		return types.StatusTerminating
	}
	for _, container := range pod.Status.ContainerStatuses {
		if w := container.State.Waiting; w != nil {
			switch w.Reason {
			case string(types.StatusCrashLoopBackOff):
				return types.StatusCrashLoopBackOff
			case string(types.StatusContainerCreating):
				return types.StatusContainerCreating
			}
		}
	}
	switch pod.Status.Phase {
	case v1.PodRunning:
		return types.StatusRunning
	case v1.PodSucceeded:
		return types.StatusCompleted
	case v1.PodPending:
		return types.StatusPending
	case v1.PodFailed:
		for _, container := range pod.Status.ContainerStatuses {
			if t := container.State.Terminated; t != nil && t.Reason == string(types.StatusError) {
				return types.StatusError
			}
		}
		return types.StatusFailed
	}
	return types.StatusUnknown
}

// isOneOfState check for the status should be present inside given list
func isOneOfState(state types.InstanceStatus, states []types.InstanceStatus) bool {
	for i := range states {
		if state == states[i] {
			return true
		}
	}
	return false
}

// CheckPodStatuses waits until every named pod reaches one of the expected statuses
func CheckPodStatuses(ctx context.Context, namespace string, podNames []string, expected []types.InstanceStatus, timeout, delay int, clients clients.ClientSets, clk clock.Clock) error {
	observed := map[string]types.InstanceStatus{}
	err := poll(timeout, delay, clk).TryWithContext(ctx, func(attempt uint) error {
		pending := 0
		for _, name := range podNames {
			pod, err := clients.KubeClient.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
			if err != nil {
				observed[name] = types.StatusUnknown
				pending++
				continue
			}
			observed[name] = PodStatus(pod)
			if !isOneOfState(observed[name], expected) {
				pending++
			}
		}
		if pending > 0 {
			return errors.Errorf("%d pod(s) not yet in %v", pending, expected)
		}
		return nil
	})
	if err != nil {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeTimeout,
			Target:    fmt.Sprintf("{namespace: %s, pods: %s}", namespace, describe(observed)),
			Reason:    fmt.Sprintf("pods did not reach %v within %ds", expected, timeout),
		}
	}
	for name, state := range observed {
		log.InfoWithValues("[Status]: The status of Pods are as follows", logrus.Fields{
			"Pod": name, "Status": state})
	}
	return nil
}

// CheckPodStatusPhase checks the status of every pod with the label
func CheckPodStatusPhase(ctx context.Context, namespace, label string, timeout, delay int, clients clients.ClientSets, clk clock.Clock, states ...types.InstanceStatus) error {
	return poll(timeout, delay, clk).TryWithContext(ctx, func(attempt uint) error {
		podList, err := clients.KubeClient.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: label})
		if err != nil {
			return errors.Errorf("Unable to find the pods with matching labels, err: %v", err)
		} else if len(podList.Items) == 0 {
			return errors.Errorf("Unable to find the pods with matching labels")
		}

		for i := range podList.Items {
			state := PodStatus(&podList.Items[i])
			if !isOneOfState(state, states) {
				return cerrors.Error{ErrorCode: cerrors.ErrorTypeStatusChecks, Target: fmt.Sprintf("{podName: %s}", podList.Items[i].Name), Reason: fmt.Sprintf("pod is in %s state, expected %v", state, states)}
			}
			log.InfoWithValues("[Status]: The status of Pods are as follows", logrus.Fields{
				"Pod": podList.Items[i].Name, "Status": state})
		}
		return nil
	})
}

// WaitForPodsDeleted waits until none of the named pods exist anymore
func WaitForPodsDeleted(ctx context.Context, namespace string, podNames []string, timeout, delay int, clients clients.ClientSets, clk clock.Clock) error {
	return poll(timeout, delay, clk).TryWithContext(ctx, func(attempt uint) error {
		for _, name := range podNames {
			_, err := clients.KubeClient.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
			if err == nil {
				return cerrors.Error{ErrorCode: cerrors.ErrorTypeTimeout, Target: fmt.Sprintf("{podName: %s}", name), Reason: "pod is not deleted yet"}
			}
			if !k8serrors.IsNotFound(err) {
				return err
			}
		}
		return nil
	})
}

func describe(observed map[string]types.InstanceStatus) string {
	var parts []string
	for name, state := range observed {
		parts = append(parts, fmt.Sprintf("%s=%s", name, state))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
