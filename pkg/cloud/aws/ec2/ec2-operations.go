package aws

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/clients"
	"github.com/litmuschaos/stretch-dr-go/pkg/cloud/aws/common"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/retry"
	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// PowerController stops and starts the ec2 instances backing cluster nodes
type PowerController struct {
	Clients clients.ClientSets
	Region  string
	EC2     ec2iface.EC2API
	Clock   clock.Clock
	// Timeout and Delay bound the wait for an instance state, in seconds
	Timeout int
	Delay   int
}

// NewPowerController returns a controller for the instances of the region
func NewPowerController(c clients.ClientSets, region string, clk clock.Clock) *PowerController {
	return &PowerController{
		Clients: c,
		Region:  region,
		EC2:     ec2.New(common.GetAWSSession(region, "")),
		Clock:   clk,
		Timeout: 900,
		Delay:   15,
	}
}

// StopNodes stops the instances of the nodes and waits for them to be stopped
func (p *PowerController) StopNodes(ctx context.Context, nodes []string) error {
	ids, err := InstanceIDs(ctx, p.Clients, nodes)
	if err != nil {
		return err
	}

	result, err := p.EC2.StopInstancesWithContext(ctx, &ec2.StopInstancesInput{InstanceIds: aws.StringSlice(ids)})
	if err != nil {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeChaosInject,
			Reason:    fmt.Sprintf("failed to stop EC2 instances: %v", common.CheckAWSError(err).Error()),
			Target:    p.target(ids),
		}
	}
	for _, change := range result.StoppingInstances {
		log.InfoWithValues("[Inject]: Stopping EC2 instance:", logrus.Fields{
			"CurrentState":  aws.StringValue(change.CurrentState.Name),
			"PreviousState": aws.StringValue(change.PreviousState.Name),
			"InstanceId":    aws.StringValue(change.InstanceId),
		})
	}
	return p.waitForState(ctx, ids, ec2.InstanceStateNameStopped, cerrors.ErrorTypeChaosInject)
}

// StartNodes starts the instances of the nodes and waits for them to be running
func (p *PowerController) StartNodes(ctx context.Context, nodes []string) error {
	ids, err := InstanceIDs(ctx, p.Clients, nodes)
	if err != nil {
		return err
	}

	result, err := p.EC2.StartInstancesWithContext(ctx, &ec2.StartInstancesInput{InstanceIds: aws.StringSlice(ids)})
	if err != nil {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeChaosRevert,
			Reason:    fmt.Sprintf("failed to start EC2 instances: %v", common.CheckAWSError(err).Error()),
			Target:    p.target(ids),
		}
	}
	for _, change := range result.StartingInstances {
		log.InfoWithValues("[Recover]: Starting EC2 instance:", logrus.Fields{
			"CurrentState":  aws.StringValue(change.CurrentState.Name),
			"PreviousState": aws.StringValue(change.PreviousState.Name),
			"InstanceId":    aws.StringValue(change.InstanceId),
		})
	}
	return p.waitForState(ctx, ids, ec2.InstanceStateNameRunning, cerrors.ErrorTypeChaosRevert)
}

func (p *PowerController) waitForState(ctx context.Context, ids []string, want string, code cerrors.ErrorType) error {
	log.Infof("[Status]: Waiting for EC2 instances %v to be %v", ids, want)
	delay := p.Delay
	if delay <= 0 {
		delay = 1
	}
	return retry.
		Times(uint(p.Timeout / delay)).
		Wait(time.Duration(delay) * time.Second).
		Clock(p.Clock).
		TryWithContext(ctx, func(attempt uint) error {
			states, err := GetInstanceStates(ctx, p.EC2, ids)
			if err != nil {
				return stacktrace.Propagate(err, "failed to get the instance status")
			}
			for _, id := range ids {
				if states[id] != want {
					log.Infof("The instance %v state is %v", id, states[id])
					return cerrors.Error{
						ErrorCode: code,
						Reason:    fmt.Sprintf("instance is not in %v state", want),
						Target:    p.target([]string{id}),
					}
				}
			}
			return nil
		})
}

func (p *PowerController) target(ids []string) string {
	return fmt.Sprintf("{EC2 Instance ID: %v, Region: %v}", strings.Join(ids, ","), p.Region)
}
