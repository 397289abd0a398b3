package aws

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/clients"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apiv1 "k8s.io/api/core/v1"
	v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	testingclock "k8s.io/utils/clock/testing"
)

// fakeEC2 moves instances to the requested state after a number of describe calls
type fakeEC2 struct {
	ec2iface.EC2API

	mu        sync.Mutex
	states    map[string]string
	pending   map[string]string
	lag       int
	describes int
	stopErr   error
}

func newFakeEC2(lag int, ids ...string) *fakeEC2 {
	f := &fakeEC2{states: map[string]string{}, pending: map[string]string{}, lag: lag}
	for _, id := range ids {
		f.states[id] = ec2.InstanceStateNameRunning
	}
	return f
}

func (f *fakeEC2) change(ids []*string, want string) []*ec2.InstanceStateChange {
	var out []*ec2.InstanceStateChange
	for _, id := range aws.StringValueSlice(ids) {
		out = append(out, &ec2.InstanceStateChange{
			InstanceId:    aws.String(id),
			PreviousState: &ec2.InstanceState{Name: aws.String(f.states[id])},
			CurrentState:  &ec2.InstanceState{Name: aws.String(want)},
		})
		f.pending[id] = want
	}
	return out
}

func (f *fakeEC2) StopInstancesWithContext(_ aws.Context, in *ec2.StopInstancesInput, _ ...request.Option) (*ec2.StopInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	return &ec2.StopInstancesOutput{StoppingInstances: f.change(in.InstanceIds, ec2.InstanceStateNameStopping)}, nil
}

func (f *fakeEC2) StartInstancesWithContext(_ aws.Context, in *ec2.StartInstancesInput, _ ...request.Option) (*ec2.StartInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &ec2.StartInstancesOutput{StartingInstances: f.change(in.InstanceIds, ec2.InstanceStateNamePending)}, nil
}

func (f *fakeEC2) DescribeInstancesWithContext(_ aws.Context, in *ec2.DescribeInstancesInput, _ ...request.Option) (*ec2.DescribeInstancesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describes++
	if f.describes > f.lag {
		for id, transitional := range f.pending {
			switch transitional {
			case ec2.InstanceStateNameStopping:
				f.states[id] = ec2.InstanceStateNameStopped
			case ec2.InstanceStateNamePending:
				f.states[id] = ec2.InstanceStateNameRunning
			}
			delete(f.pending, id)
		}
		f.describes = 0
	}
	var instances []*ec2.Instance
	for _, id := range aws.StringValueSlice(in.InstanceIds) {
		instances = append(instances, &ec2.Instance{
			InstanceId: aws.String(id),
			State:      &ec2.InstanceState{Name: aws.String(f.states[id])},
		})
	}
	return &ec2.DescribeInstancesOutput{Reservations: []*ec2.Reservation{{Instances: instances}}}, nil
}

func awsNode(name, providerID string) *apiv1.Node {
	return &apiv1.Node{
		ObjectMeta: v1.ObjectMeta{Name: name},
		Spec:       apiv1.NodeSpec{ProviderID: providerID},
	}
}

func newController(svc ec2iface.EC2API) *PowerController {
	return &PowerController{
		Clients: clients.ClientSets{KubeClient: fake.NewSimpleClientset(
			awsNode("worker-1", "aws:///us-east-1a/i-0aaa"),
			awsNode("worker-2", "aws:///us-east-1b/i-0bbb"),
			awsNode("bare", ""),
		)},
		Region:  "us-east-1",
		EC2:     svc,
		Clock:   testingclock.NewFakeClock(time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)),
		Timeout: 60,
		Delay:   15,
	}
}

func TestInstanceID(t *testing.T) {
	tests := map[string]string{
		"aws:///us-east-1a/i-0123456789": "i-0123456789",
		"aws:///us-east-1a/":             "",
		"gce://project/zone/vm":          "",
		"":                               "",
	}
	for providerID, want := range tests {
		assert.Equal(t, want, InstanceID(providerID), providerID)
	}
}

func TestStopAndStartNodes(t *testing.T) {
	svc := newFakeEC2(1, "i-0aaa", "i-0bbb")
	p := newController(svc)
	ctx := context.Background()

	require.NoError(t, p.StopNodes(ctx, []string{"worker-1", "worker-2"}))
	assert.Equal(t, ec2.InstanceStateNameStopped, svc.states["i-0aaa"])
	assert.Equal(t, ec2.InstanceStateNameStopped, svc.states["i-0bbb"])

	require.NoError(t, p.StartNodes(ctx, []string{"worker-1"}))
	assert.Equal(t, ec2.InstanceStateNameRunning, svc.states["i-0aaa"])
	assert.Equal(t, ec2.InstanceStateNameStopped, svc.states["i-0bbb"])
}

func TestStopNodesNeverStopped(t *testing.T) {
	svc := newFakeEC2(100, "i-0aaa")
	p := newController(svc)

	err := p.StopNodes(context.Background(), []string{"worker-1"})
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, cerrors.ErrorTypeChaosInject))
}

func TestStopNodesAPIError(t *testing.T) {
	svc := newFakeEC2(0, "i-0aaa")
	svc.stopErr = awserr.New("UnauthorizedOperation", "not allowed", nil)
	p := newController(svc)

	err := p.StopNodes(context.Background(), []string{"worker-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UnauthorizedOperation")
}

func TestStopNodesWithoutProviderID(t *testing.T) {
	p := newController(newFakeEC2(0))
	err := p.StopNodes(context.Background(), []string{"bare"})
	require.Error(t, err)
	assert.True(t, cerrors.Is(err, cerrors.ErrorTypeTargetSelection))
}
