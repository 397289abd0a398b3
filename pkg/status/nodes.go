package status

import (
	"context"
	"fmt"
	"time"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	clients "github.com/litmuschaos/stretch-dr-go/pkg/clients"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/retry"
	logrus "github.com/sirupsen/logrus"
	apiv1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/clock"
)

// poll builds the bounded retry used by every status check
func poll(timeout, delay int, clk clock.Clock) *retry.Model {
	if delay <= 0 {
		delay = 1
	}
	attempts := timeout / delay
	if attempts < 1 {
		attempts = 1
	}
	return retry.
		Times(uint(attempts)).
		Wait(time.Duration(delay) * time.Second).
		Clock(clk)
}

// IsNodeReady reports the NodeReady condition of the node
func IsNodeReady(node *apiv1.Node) bool {
	for _, condition := range node.Status.Conditions {
		if condition.Type == apiv1.NodeReady && condition.Status == apiv1.ConditionTrue {
			return true
		}
	}
	return false
}

// CheckNodeStatus checks that every given node is Ready, all nodes are checked when none is given
func CheckNodeStatus(ctx context.Context, nodes []string, timeout, delay int, clients clients.ClientSets, clk clock.Clock) error {

	return poll(timeout, delay, clk).TryWithContext(ctx, func(attempt uint) error {
		nodeList := apiv1.NodeList{}
		if len(nodes) != 0 {
			for _, name := range nodes {
				node, err := clients.KubeClient.CoreV1().Nodes().Get(ctx, name, metav1.GetOptions{})
				if err != nil {
					return cerrors.Error{ErrorCode: cerrors.ErrorTypeStatusChecks, Target: fmt.Sprintf("{nodeName: %s}", name), Reason: err.Error()}
				}
				nodeList.Items = append(nodeList.Items, *node)
			}
		} else {
			all, err := clients.KubeClient.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
			if err != nil {
				return cerrors.Error{ErrorCode: cerrors.ErrorTypeStatusChecks, Reason: fmt.Sprintf("failed to list all nodes: %s", err.Error())}
			}
			nodeList = *all
		}
		for _, node := range nodeList.Items {
			isReady := IsNodeReady(&node)
			if !isReady {
				return cerrors.Error{ErrorCode: cerrors.ErrorTypeTimeout, Target: fmt.Sprintf("{nodeName: %s}", node.Name), Reason: "node is not in ready state"}
			}
			log.InfoWithValues("[Status]: The Node status are as follows", logrus.Fields{
				"Node": node.Name, "Ready": isReady})
		}
		return nil
	})
}

// CheckNodeNotReadyState check for node to be in not ready state
func CheckNodeNotReadyState(ctx context.Context, nodeName string, timeout, delay int, clients clients.ClientSets, clk clock.Clock) error {
	return poll(timeout, delay, clk).TryWithContext(ctx, func(attempt uint) error {
		node, err := clients.KubeClient.CoreV1().Nodes().Get(ctx, nodeName, metav1.GetOptions{})
		if err != nil {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeStatusChecks, Target: fmt.Sprintf("{nodeName: %s}", nodeName), Reason: err.Error()}
		}
		isReady := IsNodeReady(node)
		// It will retry until the node becomes NotReady
		if isReady {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeTimeout, Target: fmt.Sprintf("{nodeName: %s}", nodeName), Reason: "node is not in NotReady state during chaos"}
		}
		log.InfoWithValues("[Status]: The Node status are as follows", logrus.Fields{
			"Node": node.Name, "Ready": isReady})

		return nil
	})
}

// NotReadyNodes returns the names of the nodes whose NodeReady condition is not true
func NotReadyNodes(ctx context.Context, clients clients.ClientSets) ([]string, error) {
	nodes, err := clients.ListNodes(ctx, "")
	if err != nil {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeStatusChecks, Reason: fmt.Sprintf("failed to list all nodes: %s", err.Error())}
	}
	var notReady []string
	for i := range nodes.Items {
		if !IsNodeReady(&nodes.Items[i]) {
			notReady = append(notReady, nodes.Items[i].Name)
		}
	}
	return notReady, nil
}
