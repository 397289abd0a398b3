package workloads

import (
	"context"
	"fmt"

	"github.com/litmuschaos/stretch-dr-go/pkg/clients"
	core_v1 "k8s.io/api/core/v1"
	v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	Deployment  string = "Deployment"
	ReplicaSet  string = "ReplicaSet"
	DaemonSet   string = "DaemonSet"
	StatefulSet string = "StatefulSet"
	Job         string = "Job"
)

func getPodParent(ctx context.Context, targetPod core_v1.Pod, clients clients.ClientSets) (string, string, error) {
	for _, own := range targetPod.OwnerReferences {
		switch own.Kind {
		case ReplicaSet:
			return getRSParent(ctx, own.Name, targetPod.Namespace, clients)
		case StatefulSet, DaemonSet, Job:
			return own.Name, own.Kind, nil
		}
	}
	return "", "", fmt.Errorf("no parent found for %v pod", targetPod.Name)
}

func getRSParent(ctx context.Context, name, ns string, clients clients.ClientSets) (string, string, error) {
	rs, err := clients.KubeClient.AppsV1().ReplicaSets(ns).Get(ctx, name, v1.GetOptions{})
	if err != nil {
		return "", "", err
	}
	for _, own := range rs.OwnerReferences {
		if own.Kind == Deployment {
			return own.Name, own.Kind, nil
		}
	}
	return "", "", fmt.Errorf("no parent found for %v rs", name)
}

// GetParentNameAndKind derive the parent name of the given target pod
func GetParentNameAndKind(ctx context.Context, clients clients.ClientSets, targetPod core_v1.Pod) (string, string, error) {
	return getPodParent(ctx, targetPod, clients)
}
