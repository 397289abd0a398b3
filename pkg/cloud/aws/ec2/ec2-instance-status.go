package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/clients"
	"github.com/litmuschaos/stretch-dr-go/pkg/cloud/aws/common"
	v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

//GetInstanceStates returns the state name of every given instance
func GetInstanceStates(ctx context.Context, svc ec2iface.EC2API, ids []string) (map[string]string, error) {
	result, err := svc.DescribeInstancesWithContext(ctx, &ec2.DescribeInstancesInput{InstanceIds: aws.StringSlice(ids)})
	if err != nil {
		return nil, common.CheckAWSError(err)
	}
	states := map[string]string{}
	for _, reservationDetails := range result.Reservations {
		for _, instanceDetails := range reservationDetails.Instances {
			if instanceDetails.State == nil {
				continue
			}
			states[aws.StringValue(instanceDetails.InstanceId)] = aws.StringValue(instanceDetails.State.Name)
		}
	}
	return states, nil
}

//InstanceIDs resolves the ec2 instance ids of the nodes from their provider ids
func InstanceIDs(ctx context.Context, c clients.ClientSets, nodes []string) ([]string, error) {
	ids := make([]string, 0, len(nodes))
	for _, name := range nodes {
		node, err := c.KubeClient.CoreV1().Nodes().Get(ctx, name, v1.GetOptions{})
		if err != nil {
			return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetSelection, Target: fmt.Sprintf("{nodeName: %s}", name), Reason: err.Error()}
		}
		id := InstanceID(node.Spec.ProviderID)
		if id == "" {
			return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetSelection, Target: fmt.Sprintf("{nodeName: %s}", name), Reason: fmt.Sprintf("no ec2 instance in provider id %q", node.Spec.ProviderID)}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

//InstanceID extracts the instance id from a provider id like aws:///us-east-1a/i-0123
func InstanceID(providerID string) string {
	if !strings.HasPrefix(providerID, "aws://") {
		return ""
	}
	parts := strings.Split(providerID, "/")
	id := parts[len(parts)-1]
	if !strings.HasPrefix(id, "i-") {
		return ""
	}
	return id
}
