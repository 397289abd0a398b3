package lib

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	clients "github.com/litmuschaos/stretch-dr-go/pkg/clients"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/retry"
	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/utils/clock"
)

const (
	FenceStateFenced   = "Fenced"
	FenceStateUnfenced = "Unfenced"
	resultSucceeded    = "Succeeded"
)

var (
	// CSIAddonsNodeGVR publishes the fence client details of a csi nodeplugin
	CSIAddonsNodeGVR = schema.GroupVersionResource{Group: "csiaddons.openshift.io", Version: "v1alpha1", Resource: "csiaddonsnodes"}
	// NetworkFenceGVR is the cluster scoped fence record
	NetworkFenceGVR = schema.GroupVersionResource{Group: "csiaddons.openshift.io", Version: "v1alpha1", Resource: "networkfences"}
)

// CSIFencer fences nodes through the csi-addons NetworkFence resource
type CSIFencer struct {
	Clients          clients.ClientSets
	ClusterNamespace string
	Driver           string
	SecretName       string
	Clock            clock.Clock
	// Attempts bounds the CIDR lookup and the fence creation
	Attempts uint
	Delay    time.Duration
}

// NewCSIFencer returns a fencer for the rbd driver of the cluster namespace
func NewCSIFencer(c clients.ClientSets, clusterNamespace string, clk clock.Clock) *CSIFencer {
	return &CSIFencer{
		Clients:          c,
		ClusterNamespace: clusterNamespace,
		Driver:           clusterNamespace + ".rbd.csi.ceph.com",
		SecretName:       "rook-csi-rbd-provisioner",
		Clock:            clk,
		Attempts:         5,
		Delay:            10 * time.Second,
	}
}

// FenceName is the name of the fence record of a node
func FenceName(node string) string {
	return node + "-fence"
}

func (f *CSIFencer) retry() *retry.Model {
	return retry.Times(f.Attempts).Wait(f.Delay).Clock(f.Clock)
}

// CIDRs reads the client CIDRs the rbd nodeplugin on the node reports.
// The status is populated asynchronously, so the lookup is retried.
func (f *CSIFencer) CIDRs(ctx context.Context, node string) ([]string, error) {
	var cidrs []string
	err := f.retry().TryWithContext(ctx, func(attempt uint) error {
		list, err := f.Clients.DynamicClient.Resource(CSIAddonsNodeGVR).Namespace(f.ClusterNamespace).List(ctx, v1.ListOptions{})
		if err != nil {
			return err
		}
		for i := range list.Items {
			item := &list.Items[i]
			if !isRBDNodeplugin(item, node) {
				continue
			}
			if cidrs = clientCIDRs(item); len(cidrs) != 0 {
				return nil
			}
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeCommandFailed, Target: fmt.Sprintf("{csiAddonsNode: %s}", item.GetName()), Reason: "no fence client cidrs reported yet"}
		}
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeCommandFailed, Target: fmt.Sprintf("{nodeName: %s}", node), Reason: "no rbd csi-addons node found"}
	})
	if err != nil {
		return nil, stacktrace.Propagate(err, "could not get the cidrs of %s", node)
	}
	return cidrs, nil
}

func isRBDNodeplugin(item *unstructured.Unstructured, node string) bool {
	nodeID, _, _ := unstructured.NestedString(item.Object, "spec", "driver", "nodeID")
	if nodeID != node && !strings.HasPrefix(item.GetName(), node) {
		return false
	}
	return strings.Contains(item.GetName(), "rbd")
}

// clientCIDRs reads status.networkFenceClientStatus[0].ClientDetails[0].cidrs
func clientCIDRs(item *unstructured.Unstructured) []string {
	statuses, _, _ := unstructured.NestedSlice(item.Object, "status", "networkFenceClientStatus")
	if len(statuses) == 0 {
		return nil
	}
	first, ok := statuses[0].(map[string]interface{})
	if !ok {
		return nil
	}
	details, _, _ := unstructured.NestedSlice(first, "ClientDetails")
	if len(details) == 0 {
		return nil
	}
	detail, ok := details[0].(map[string]interface{})
	if !ok {
		return nil
	}
	cidrs, _, _ := unstructured.NestedStringSlice(detail, "cidrs")
	return cidrs
}

// Fence creates the fence record of the node for the cidr
func (f *CSIFencer) Fence(ctx context.Context, node, cidr string) error {
	fence := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": NetworkFenceGVR.GroupVersion().String(),
		"kind":       "NetworkFence",
		"metadata":   map[string]interface{}{"name": FenceName(node)},
		"spec": map[string]interface{}{
			"driver":     f.Driver,
			"cidrs":      []interface{}{cidr},
			"fenceState": FenceStateFenced,
			"secret": map[string]interface{}{
				"name":      f.SecretName,
				"namespace": f.ClusterNamespace,
			},
			"parameters": map[string]interface{}{"clusterID": f.ClusterNamespace},
		},
	}}

	err := f.retry().TryWithContext(ctx, func(attempt uint) error {
		_, err := f.Clients.DynamicClient.Resource(NetworkFenceGVR).Create(ctx, fence, v1.CreateOptions{})
		if err != nil && !k8serrors.IsAlreadyExists(err) {
			return err
		}
		return nil
	})
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosInject, Target: fmt.Sprintf("{nodeName: %s, cidr: %s}", node, cidr), Reason: fmt.Sprintf("unable to create network fence: %v", err)}
	}
	log.InfoWithValues("[Inject]: Network fence created", logrus.Fields{
		"Node": node,
		"CIDR": cidr,
	})
	return nil
}

// Unfence flips the fence record to Unfenced, waits for the result and deletes it
func (f *CSIFencer) Unfence(ctx context.Context, node string) error {
	name := FenceName(node)
	patch := []byte(fmt.Sprintf(`{"spec":{"fenceState":%q}}`, FenceStateUnfenced))
	_, err := f.Clients.DynamicClient.Resource(NetworkFenceGVR).Patch(ctx, name, types.MergePatchType, patch, v1.PatchOptions{})
	if k8serrors.IsNotFound(err) {
		log.Warnf("no network fence found for %v node", node)
		return nil
	}
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosRevert, Target: fmt.Sprintf("{nodeName: %s}", node), Reason: fmt.Sprintf("unable to unfence: %v", err)}
	}

	err = f.retry().TryWithContext(ctx, func(attempt uint) error {
		obj, err := f.Clients.DynamicClient.Resource(NetworkFenceGVR).Get(ctx, name, v1.GetOptions{})
		if err != nil {
			return err
		}
		state, _, _ := unstructured.NestedString(obj.Object, "spec", "fenceState")
		result, _, _ := unstructured.NestedString(obj.Object, "status", "result")
		if state != FenceStateUnfenced || result != resultSucceeded {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeTimeout, Target: fmt.Sprintf("{networkFence: %s}", name), Reason: fmt.Sprintf("unfence result is %q", result)}
		}
		return nil
	})
	if err != nil {
		return stacktrace.Propagate(err, "node %s was not unfenced", node)
	}

	if err := f.Clients.DynamicClient.Resource(NetworkFenceGVR).Delete(ctx, name, v1.DeleteOptions{}); err != nil && !k8serrors.IsNotFound(err) {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosRevert, Target: fmt.Sprintf("{networkFence: %s}", name), Reason: err.Error()}
	}
	log.Infof("[Recover]: Node %v is unfenced", node)
	return nil
}
