package lib

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	clients "github.com/litmuschaos/stretch-dr-go/pkg/clients"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/telemetry"
	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"
	apiv1 "k8s.io/api/core/v1"
	v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const helperName = "netsplit-helper"

// Scheduler plans a network split between zone groups. It returns once the
// split is scheduled; there is no completion signal.
type Scheduler interface {
	ScheduleSplit(ctx context.Context, nodes []string, splitName string, target time.Time, length time.Duration) error
}

// Cuts expands a split name into the zone letter pairs it separates.
// Letters are a for the arbiter and b, c for the data zones: "ab-bc" cuts a from b and b from c.
func Cuts(splitName string) ([][2]byte, error) {
	var cuts [][2]byte
	for _, part := range strings.Split(splitName, "-") {
		if len(part) != 2 || part[0] == part[1] || !validLetter(part[0]) || !validLetter(part[1]) {
			return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetSelection, Target: fmt.Sprintf("{split: %s}", splitName), Reason: "split name must be dash separated pairs of the zone letters a, b, c"}
		}
		cuts = append(cuts, [2]byte{part[0], part[1]})
	}
	return cuts, nil
}

func validLetter(b byte) bool {
	return b == 'a' || b == 'b' || b == 'c'
}

// ZonePairs resolves the zone names each cut of the split separates
func ZonePairs(splitName, arbiter string, dataZones []string) ([][2]string, error) {
	if len(dataZones) < 2 {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetSelection, Reason: fmt.Sprintf("two data zones are required, got %v", dataZones)}
	}
	cuts, err := Cuts(splitName)
	if err != nil {
		return nil, err
	}
	zone := map[byte]string{'a': arbiter, 'b': dataZones[0], 'c': dataZones[1]}
	pairs := make([][2]string, 0, len(cuts))
	for _, c := range cuts {
		pairs = append(pairs, [2]string{zone[c[0]], zone[c[1]]})
	}
	return pairs, nil
}

// Peers returns, per zone, the zones it can no longer reach during the split
func Peers(pairs [][2]string) map[string][]string {
	peers := map[string][]string{}
	for _, p := range pairs {
		peers[p[0]] = append(peers[p[0]], p[1])
		peers[p[1]] = append(peers[p[1]], p[0])
	}
	return peers
}

// SplitScript waits for the target time, drops all traffic to and from the
// peer addresses for the given length and removes the rules again. The rules
// are also removed when the helper is terminated early.
func SplitScript(peerIPs []string, target time.Time, length time.Duration) string {
	var add, del []string
	for _, ip := range peerIPs {
		add = append(add,
			fmt.Sprintf("iptables -I INPUT -s %s -j DROP", ip),
			fmt.Sprintf("iptables -I OUTPUT -d %s -j DROP", ip))
		del = append(del,
			fmt.Sprintf("iptables -D INPUT -s %s -j DROP", ip),
			fmt.Sprintf("iptables -D OUTPUT -d %s -j DROP", ip))
	}
	heal := strings.Join(del, "; ")
	return strings.Join([]string{
		fmt.Sprintf("heal() { %s; }", heal),
		"trap 'heal; exit 0' TERM INT",
		fmt.Sprintf("wait=$(( %d - $(date +%%s) ))", target.Unix()),
		"if [ $wait -gt 0 ]; then sleep $wait; fi",
		strings.Join(add, " && "),
		fmt.Sprintf("sleep %d & wait $!", int(length.Seconds())),
		"heal",
	}, "\n")
}

// HelperScheduler realizes a split with one privileged host network pod per node
type HelperScheduler struct {
	Clients   clients.ClientSets
	Namespace string
	Image     string
	ZoneLabel string
	Arbiter   string
	DataZones []string
	RunID     string
}

// HelperLabel selects the helper pods of the run
func (h *HelperScheduler) HelperLabel() string {
	return fmt.Sprintf("app=%s-%s", helperName, h.RunID)
}

// ScheduleSplit creates the helper pods and returns without waiting for them
func (h *HelperScheduler) ScheduleSplit(ctx context.Context, nodes []string, splitName string, target time.Time, length time.Duration) error {
	pairs, err := ZonePairs(splitName, h.Arbiter, h.DataZones)
	if err != nil {
		return err
	}
	peers := Peers(pairs)

	nodeList, err := h.Clients.KubeClient.CoreV1().Nodes().List(ctx, v1.ListOptions{})
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosInject, Reason: fmt.Sprintf("unable to list nodes: %v", err)}
	}
	ipsByZone := map[string][]string{}
	zoneOf := map[string]string{}
	for _, n := range nodeList.Items {
		zone := n.Labels[h.ZoneLabel]
		zoneOf[n.Name] = zone
		if ip := InternalIP(&n); ip != "" {
			ipsByZone[zone] = append(ipsByZone[zone], ip)
		}
	}

	scheduled := 0
	for _, name := range nodes {
		zone, ok := zoneOf[name]
		if !ok {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetSelection, Target: fmt.Sprintf("{nodeName: %s}", name), Reason: "node not found"}
		}
		var peerIPs []string
		for _, peer := range peers[zone] {
			peerIPs = append(peerIPs, ipsByZone[peer]...)
		}
		if len(peerIPs) == 0 {
			continue
		}
		sort.Strings(peerIPs)
		if err := h.createHelperPod(ctx, name, SplitScript(peerIPs, target, length)); err != nil {
			return stacktrace.Propagate(err, "could not create the split helper on %s", name)
		}
		scheduled++
	}

	log.InfoWithValues("[Inject]: Network split scheduled", logrus.Fields{
		"Split":   splitName,
		"Target":  target.UTC().Format(time.RFC3339),
		"Length":  length.String(),
		"Helpers": scheduled,
	})
	return nil
}

// Cleanup deletes the helper pods, their trap removes any rule still in place
func (h *HelperScheduler) Cleanup(ctx context.Context) error {
	pods, err := h.Clients.ListPods(ctx, h.Namespace, h.HelperLabel())
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosRevert, Target: fmt.Sprintf("{label: %s}", h.HelperLabel()), Reason: err.Error()}
	}
	for _, pod := range pods.Items {
		if err := h.Clients.DeletePod(ctx, h.Namespace, pod.Name, false); err != nil {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosRevert, Target: fmt.Sprintf("{podName: %s}", pod.Name), Reason: err.Error()}
		}
	}
	log.Infof("[Cleanup]: Deleted %d network split helper pod(s)", len(pods.Items))
	return nil
}

func (h *HelperScheduler) createHelperPod(ctx context.Context, nodeName, script string) error {
	privileged := true
	grace := int64(30)
	helperPod := &apiv1.Pod{
		ObjectMeta: v1.ObjectMeta{
			Name:      fmt.Sprintf("%s-%s-%s", helperName, h.RunID, nodeName),
			Namespace: h.Namespace,
			Labels:    map[string]string{"app": helperName + "-" + h.RunID, "name": helperName},
		},
		Spec: apiv1.PodSpec{
			HostNetwork:                   true,
			RestartPolicy:                 apiv1.RestartPolicyNever,
			NodeName:                      nodeName,
			TerminationGracePeriodSeconds: &grace,
			Tolerations:                   []apiv1.Toleration{{Operator: apiv1.TolerationOpExists}},
			Containers: []apiv1.Container{
				{
					Name:            helperName,
					Image:           h.Image,
					ImagePullPolicy: apiv1.PullIfNotPresent,
					Command:         []string{"/bin/sh"},
					Args:            []string{"-c", script},
					Env: []apiv1.EnvVar{
						{Name: telemetry.TraceParent, Value: telemetry.GetMarshalledSpanFromContext(ctx)},
					},
					SecurityContext: &apiv1.SecurityContext{
						Privileged: &privileged,
						Capabilities: &apiv1.Capabilities{
							Add: []apiv1.Capability{"NET_ADMIN"},
						},
					},
				},
			},
		},
	}

	_, err := h.Clients.KubeClient.CoreV1().Pods(h.Namespace).Create(ctx, helperPod, v1.CreateOptions{})
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosInject, Target: fmt.Sprintf("{nodeName: %s}", nodeName), Reason: fmt.Sprintf("unable to create helper pod: %s", err.Error())}
	}
	return nil
}

// InternalIP returns the internal address of the node
func InternalIP(node *apiv1.Node) string {
	for _, addr := range node.Status.Addresses {
		if addr.Type == apiv1.NodeInternalIP {
			return addr.Address
		}
	}
	return ""
}
