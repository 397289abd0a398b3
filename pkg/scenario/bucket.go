package scenario

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/fault"
	"github.com/litmuschaos/stretch-dr-go/pkg/health"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/objectstore"
	"github.com/litmuschaos/stretch-dr-go/pkg/result"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/pool"
	"github.com/palantir/stacktrace"
)

// GatewayLabel selects the object gateway core pod
const GatewayLabel = "noobaa-core=noobaa"

func init() {
	Register(Scenario{
		Name:        "bucket-tagging-node-stop",
		Description: "Tag buckets concurrently while the node of the object gateway is powered off",
		Run:         bucketTagging,
	})
}

func bucketTags(runID, bucket string) map[string]string {
	return map[string]string{"stretch-dr/run": runID, "stretch-dr/bucket": bucket}
}

func bucketTagging(ctx context.Context, r *Run) error {
	s := r.Session
	d := s.Details
	if r.Store == nil {
		return r.fail(cerrors.Error{ErrorCode: cerrors.ErrorTypeStatusChecks, Reason: "no object store configured"})
	}
	buckets := objectstore.BucketNames("stretch-dr-"+strings.ToLower(d.RunID), d.BucketCount)

	err := r.step(ctx, result.BaselineCollection, "buckets", func(ctx context.Context) error {
		for _, b := range buckets {
			if err := r.Store.CreateBucket(ctx, b); err != nil {
				return stacktrace.Propagate(err, "could not create bucket %s", b)
			}
		}
		log.Infof("[PreReq]: Created %v buckets", len(buckets))
		return nil
	})
	r.Orchestrator.Defer(func(ctx context.Context) error {
		var first error
		for _, b := range buckets {
			if err := r.Store.DeleteBucket(ctx, b); err != nil && first == nil {
				first = stacktrace.Propagate(err, "could not delete bucket %s", b)
			}
		}
		return first
	})
	if err != nil {
		return r.fail(err)
	}
	if r.Health != nil {
		err := r.step(ctx, result.PreChaosHealthCheck, "health/pre", func(ctx context.Context) error {
			return health.CephHealth(ctx, s, r.Health, d.HealthCheckTries)
		})
		if err != nil {
			return r.fail(err)
		}
	}

	var gateway string
	err = r.step(ctx, result.FaultInjection, "gateway", func(ctx context.Context) error {
		pods, err := s.Clients.ListPods(ctx, d.ClusterNamespace, GatewayLabel)
		if err != nil {
			return stacktrace.Propagate(err, "could not list the gateway pods")
		}
		for _, pod := range pods.Items {
			if pod.Spec.NodeName != "" {
				gateway = pod.Spec.NodeName
				return nil
			}
		}
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetSelection, Target: fmt.Sprintf("{label: %s}", GatewayLabel), Reason: "no scheduled gateway pod found"}
	})
	if err != nil {
		return r.fail(err)
	}

	workers := pool.New(d.PoolWorkers)
	// drains whatever an early return left behind
	defer func() { go workers.Join() }()
	for _, b := range buckets {
		b := b
		workers.Submit(ctx, func(ctx context.Context) error {
			return r.Store.PutBucketTags(ctx, b, bucketTags(d.RunID, b))
		})
	}

	shutdown := &fault.NodeShutdownFault{Nodes: []string{gateway}}
	powerOn := r.arm(shutdown)
	if _, err := r.inject(ctx, shutdown, 0); err != nil {
		return err
	}
	if err := r.step(ctx, result.FaultInjection, "tagging", func(context.Context) error { return workers.Join() }); err != nil {
		return r.fail(err)
	}
	if err := powerOn(ctx); err != nil {
		return r.fail(err)
	}
	if err := r.recover(ctx); err != nil {
		return err
	}

	err = r.step(ctx, result.BucketTagVerification, "verify/tags", func(ctx context.Context) error {
		return r.verifyTags(ctx, buckets)
	})
	if err != nil {
		return r.fail(err)
	}
	return r.step(ctx, result.DataIntegrity, "verify/integrity", r.Orchestrator.Verify)
}

// verifyTags records one loss outcome over all buckets and fails on any
// bucket whose tags did not survive
func (r *Run) verifyTags(ctx context.Context, buckets []string) error {
	s := r.Session
	var lost []string
	for _, b := range buckets {
		got, err := r.Store.GetBucketTags(ctx, b)
		if err != nil {
			return stacktrace.Propagate(err, "could not get the tags of bucket %s", b)
		}
		for k, v := range bucketTags(s.Details.RunID, b) {
			if got[k] != v {
				lost = append(lost, b)
				break
			}
		}
	}
	sort.Strings(lost)
	detail := fmt.Sprintf("%d/%d buckets kept their tags", len(buckets)-len(lost), len(buckets))
	s.AddOutcome(types.NewOutcome("buckets", types.NodeShutdown, types.Loss, len(lost) != 0, detail))
	if len(lost) != 0 {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeDataLoss, Target: fmt.Sprintf("{buckets: %s}", strings.Join(lost, ",")), Reason: "bucket tags were lost"}
	}
	log.Infof("[Verify]: %v", detail)
	return nil
}
