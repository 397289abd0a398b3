package exec

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/clients"
	"github.com/pkg/errors"
	apiv1 "k8s.io/api/core/v1"
	v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/remotecommand"
)

// PodDetails contains all the required variables to exec inside a container
type PodDetails struct {
	PodName       string
	Namespace     string
	ContainerName string
}

// Executor runs commands inside a container and returns its stdout
type Executor interface {
	Exec(ctx context.Context, podDetails PodDetails, command []string) (string, error)
}

// Shell runs the script through `sh -c` with the given executor
func Shell(ctx context.Context, executor Executor, podDetails PodDetails, script string) (string, error) {
	return executor.Exec(ctx, podDetails, []string{"/bin/sh", "-c", script})
}

// SPDYExecutor execs through the apiserver using the spdy upgrade
type SPDYExecutor struct {
	Clients clients.ClientSets
}

// NewSPDYExecutor returns an executor bound to the given clientsets
func NewSPDYExecutor(clients clients.ClientSets) *SPDYExecutor {
	return &SPDYExecutor{Clients: clients}
}

// Exec function will run the provide commands inside the target container
func (e *SPDYExecutor) Exec(ctx context.Context, podDetails PodDetails, command []string) (string, error) {

	pod, err := e.Clients.KubeClient.CoreV1().Pods(podDetails.Namespace).Get(ctx, podDetails.PodName, v1.GetOptions{})
	if err != nil {
		return "", errors.Errorf("unable to get %v pod in %v namespace, err: %v", podDetails.PodName, podDetails.Namespace, err)
	}
	if err := checkPodStatus(pod, podDetails.ContainerName); err != nil {
		return "", err
	}

	req := e.Clients.KubeClient.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(podDetails.PodName).
		Namespace(podDetails.Namespace).
		SubResource("exec")
	scheme := runtime.NewScheme()
	if err := apiv1.AddToScheme(scheme); err != nil {
		return "", fmt.Errorf("error adding to scheme: %v", err)
	}

	// NewParameterCodec creates a ParameterCodec capable of transforming url values into versioned objects and back.
	parameterCodec := runtime.NewParameterCodec(scheme)

	req.VersionedParams(&apiv1.PodExecOptions{
		Command:   command,
		Container: podDetails.ContainerName,
		Stdin:     false,
		Stdout:    true,
		Stderr:    true,
		TTY:       false,
	}, parameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(e.Clients.KubeConfig, "POST", req.URL())
	if err != nil {
		return "", fmt.Errorf("error while creating Executor: %v", err)
	}

	var stdout, stderr bytes.Buffer
	err = exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdin:  nil,
		Stdout: &stdout,
		Stderr: &stderr,
		Tty:    false,
	})
	if err != nil {
		return "", cerrors.Error{
			ErrorCode: cerrors.ErrorTypeCommandFailed,
			Target:    fmt.Sprintf("{podName: %s, namespace: %s, container: %s}", podDetails.PodName, podDetails.Namespace, podDetails.ContainerName),
			Reason:    commandFailure(command, stderr.String(), err),
		}
	}

	return stdout.String(), nil
}

func commandFailure(command []string, stderr string, err error) string {
	reason := fmt.Sprintf("command '%s' failed: %v", strings.Join(command, " "), err)
	if stderr = strings.TrimSpace(stderr); stderr != "" {
		reason += ", stderr: " + stderr
	}
	return reason
}

// checkPodStatus verify the status of given pod & container
func checkPodStatus(pod *apiv1.Pod, containerName string) error {

	if strings.ToLower(string(pod.Status.Phase)) != "running" {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeCommandFailed,
			Target:    fmt.Sprintf("{podName: %s}", pod.Name),
			Reason:    fmt.Sprintf("pod is not in running state, phase: %v", pod.Status.Phase),
		}
	}
	for _, container := range pod.Status.ContainerStatuses {
		if container.Name == containerName && !container.Ready {
			return cerrors.Error{
				ErrorCode: cerrors.ErrorTypeCommandFailed,
				Target:    fmt.Sprintf("{podName: %s, container: %s}", pod.Name, container.Name),
				Reason:    fmt.Sprintf("container is not in ready state, phase: %v", pod.Status.Phase),
			}
		}
	}
	return nil
}
