package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/litmuschaos/stretch-dr-go/pkg/utils/retry"
	appsv1 "k8s.io/api/apps/v1"
	core_v1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	retries "k8s.io/client-go/util/retry"
)

var (
	defaultTimeout = 180
	defaultDelay   = 2
)

// isRetriable filters out api errors which will not change on a later attempt
func isRetriable(err error) bool {
	return !(k8serrors.IsNotFound(err) ||
		k8serrors.IsForbidden(err) ||
		k8serrors.IsInvalid(err) ||
		k8serrors.IsAlreadyExists(err) ||
		k8serrors.IsBadRequest(err))
}

func defaultRetry() *retry.Model {
	return retry.
		Times(uint(defaultTimeout / defaultDelay)).
		Wait(time.Duration(defaultDelay) * time.Second).
		On(isRetriable)
}

func (clients *ClientSets) GetPod(ctx context.Context, namespace, name string, timeout, delay int) (*core_v1.Pod, error) {
	var (
		pod *core_v1.Pod
		err error
	)

	if err := retry.
		Times(uint(timeout / delay)).
		Wait(time.Duration(delay) * time.Second).
		On(isRetriable).
		TryWithContext(ctx, func(attempt uint) error {
			pod, err = clients.KubeClient.CoreV1().Pods(namespace).Get(ctx, name, v1.GetOptions{})
			return err
		}); err != nil {
		return nil, err
	}

	return pod, nil
}

func (clients *ClientSets) ListPods(ctx context.Context, namespace, labels string) (*core_v1.PodList, error) {
	var (
		pods *core_v1.PodList
		err  error
	)

	if err := defaultRetry().TryWithContext(ctx, func(attempt uint) error {
		pods, err = clients.KubeClient.CoreV1().Pods(namespace).List(ctx, v1.ListOptions{
			LabelSelector: labels,
		})
		return err
	}); err != nil {
		return nil, err
	}

	return pods, nil
}

// ListPodsOnNode lists the pods matching the labels which are scheduled on the given node
func (clients *ClientSets) ListPodsOnNode(ctx context.Context, namespace, labels, nodeName string) (*core_v1.PodList, error) {
	var (
		pods *core_v1.PodList
		err  error
	)

	if err := defaultRetry().TryWithContext(ctx, func(attempt uint) error {
		pods, err = clients.KubeClient.CoreV1().Pods(namespace).List(ctx, v1.ListOptions{
			LabelSelector: labels,
			FieldSelector: "spec.nodeName=" + nodeName,
		})
		return err
	}); err != nil {
		return nil, err
	}

	return pods, nil
}

// DeletePod deletes the pod, force sets a zero grace period
func (clients *ClientSets) DeletePod(ctx context.Context, namespace, name string, force bool) error {
	opts := v1.DeleteOptions{}
	if force {
		grace := int64(0)
		opts.GracePeriodSeconds = &grace
	}
	return defaultRetry().TryWithContext(ctx, func(attempt uint) error {
		err := clients.KubeClient.CoreV1().Pods(namespace).Delete(ctx, name, opts)
		if k8serrors.IsNotFound(err) {
			return nil
		}
		return err
	})
}

func (clients *ClientSets) GetNode(ctx context.Context, name string, timeout, delay int) (*core_v1.Node, error) {
	var (
		node *core_v1.Node
		err  error
	)

	if err := retry.
		Times(uint(timeout / delay)).
		Wait(time.Duration(delay) * time.Second).
		On(isRetriable).
		TryWithContext(ctx, func(attempt uint) error {
			node, err = clients.KubeClient.CoreV1().Nodes().Get(ctx, name, v1.GetOptions{})
			return err
		}); err != nil {
		return nil, err
	}

	return node, nil
}

func (clients *ClientSets) ListNodes(ctx context.Context, labels string) (*core_v1.NodeList, error) {
	var (
		nodes *core_v1.NodeList
		err   error
	)

	if err := defaultRetry().TryWithContext(ctx, func(attempt uint) error {
		nodes, err = clients.KubeClient.CoreV1().Nodes().List(ctx, v1.ListOptions{
			LabelSelector: labels,
		})
		return err
	}); err != nil {
		return nil, err
	}

	return nodes, nil
}

func (clients *ClientSets) GetDeployment(ctx context.Context, namespace, name string) (*appsv1.Deployment, error) {
	var (
		deploy *appsv1.Deployment
		err    error
	)

	if err := defaultRetry().TryWithContext(ctx, func(attempt uint) error {
		deploy, err = clients.KubeClient.AppsV1().Deployments(namespace).Get(ctx, name, v1.GetOptions{})
		return err
	}); err != nil {
		return nil, err
	}

	return deploy, nil
}

// ScaleDeployment updates the replica count, retrying on update conflicts
func (clients *ClientSets) ScaleDeployment(ctx context.Context, namespace, name string, replicas int32) error {
	return retries.RetryOnConflict(retries.DefaultRetry, func() error {
		// Retrieve the latest version of Deployment before attempting update
		deploy, err := clients.KubeClient.AppsV1().Deployments(namespace).Get(ctx, name, v1.GetOptions{})
		if err != nil {
			return err
		}
		deploy.Spec.Replicas = &replicas
		_, err = clients.KubeClient.AppsV1().Deployments(namespace).Update(ctx, deploy, v1.UpdateOptions{})
		return err
	})
}

// GetPodLogs returns the logs of every container of the pod, concatenated in spec order
func (clients *ClientSets) GetPodLogs(ctx context.Context, namespace string, pod *core_v1.Pod) (string, error) {
	var out bytes.Buffer
	for _, container := range pod.Spec.Containers {
		req := clients.KubeClient.CoreV1().Pods(namespace).GetLogs(pod.Name, &core_v1.PodLogOptions{Container: container.Name})
		stream, err := req.Stream(ctx)
		if err != nil {
			return "", fmt.Errorf("unable to stream logs of %s/%s, err: %v", pod.Name, container.Name, err)
		}
		_, err = io.Copy(&out, stream)
		stream.Close()
		if err != nil {
			return "", fmt.Errorf("unable to read logs of %s/%s, err: %v", pod.Name, container.Name, err)
		}
	}
	return out.String(), nil
}
