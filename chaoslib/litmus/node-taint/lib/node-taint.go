package lib

import (
	"context"
	"fmt"
	"strings"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	clients "github.com/litmuschaos/stretch-dr-go/pkg/clients"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	apiv1 "k8s.io/api/core/v1"
	v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	retries "k8s.io/client-go/util/retry"
)

// OutOfServiceTaint lets the cluster detach volumes from a node which is shut down
const OutOfServiceTaint = "node.kubernetes.io/out-of-service=nodeshutdown:NoExecute"

// ParseTaint splits "key=value:effect" into a taint.
// The value defaults to "node-taint" and the effect to NoExecute.
func ParseTaint(taint string) apiv1.Taint {
	value := "node-taint"
	effect := apiv1.TaintEffectNoExecute

	parts := strings.Split(taint, ":")
	label := strings.Split(parts[0], "=")
	if len(label) >= 2 {
		value = label[1]
	}
	if len(parts) >= 2 {
		effect = apiv1.TaintEffect(parts[1])
	}
	return apiv1.Taint{Key: label[0], Value: value, Effect: effect}
}

// TaintNodes adds the taint to every node which does not carry its key yet
func TaintNodes(ctx context.Context, clients clients.ClientSets, nodes []string, taint apiv1.Taint) error {
	for _, name := range nodes {
		log.Infof("Add %v taints to the %v node", taint.ToString(), name)
		err := retries.RetryOnConflict(retries.DefaultRetry, func() error {
			node, err := clients.KubeClient.CoreV1().Nodes().Get(ctx, name, v1.GetOptions{})
			if err != nil {
				return err
			}
			for _, t := range node.Spec.Taints {
				if t.Key == taint.Key {
					return nil
				}
			}
			node.Spec.Taints = append(node.Spec.Taints, taint)
			_, err = clients.KubeClient.CoreV1().Nodes().Update(ctx, node, v1.UpdateOptions{})
			return err
		})
		if err != nil {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosInject, Target: fmt.Sprintf("{nodeName: %s}", name), Reason: fmt.Sprintf("failed to add taint: %v", err)}
		}
	}
	log.Infof("Successfully added taint in %v node(s)", len(nodes))
	return nil
}

// RemoveTaint removes every taint with the key from the nodes
func RemoveTaint(ctx context.Context, clients clients.ClientSets, nodes []string, key string) error {
	for _, name := range nodes {
		err := retries.RetryOnConflict(retries.DefaultRetry, func() error {
			node, err := clients.KubeClient.CoreV1().Nodes().Get(ctx, name, v1.GetOptions{})
			if err != nil {
				return err
			}
			var kept []apiv1.Taint
			for _, t := range node.Spec.Taints {
				if t.Key != key {
					kept = append(kept, t)
				}
			}
			if len(kept) == len(node.Spec.Taints) {
				return nil
			}
			node.Spec.Taints = kept
			_, err = clients.KubeClient.CoreV1().Nodes().Update(ctx, node, v1.UpdateOptions{})
			return err
		})
		if err != nil {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosRevert, Target: fmt.Sprintf("{nodeName: %s}", name), Reason: fmt.Sprintf("failed to remove taint: %v", err)}
		}
	}
	log.Infof("Successfully removed %v taint from %v node(s)", key, len(nodes))
	return nil
}
