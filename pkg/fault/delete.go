package fault

import (
	"context"
	"fmt"
	"sort"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/session"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/common"
	"github.com/palantir/stacktrace"
)

// Resource is a kind of cluster component the resource delete fault targets
type Resource struct {
	Label   string
	Deletes int
}

// Resources maps the supported kinds to their label and default delete count
var Resources = map[string]Resource{
	"osd":                {Label: "app=rook-ceph-osd", Deletes: 3},
	"rook-ceph-operator": {Label: "app=rook-ceph-operator", Deletes: 3},
	"mon":                {Label: "app=rook-ceph-mon", Deletes: 5},
}

// ResourceKinds lists the supported kinds in a stable order
func ResourceKinds() []string {
	kinds := make([]string, 0, len(Resources))
	for k := range Resources {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// ResourceDeleteFault deletes one pod of the kind Count times in succession.
// Recovery is left to the operator's reconciliation, Undo does nothing.
type ResourceDeleteFault struct {
	Resource string
	Count    int

	deleted []string
}

func (f *ResourceDeleteFault) Kind() types.FaultKind { return types.ResourceDelete }
func (f *ResourceDeleteFault) Name() string { return f.Resource }
func (f *ResourceDeleteFault) Targets() []string { return f.deleted }

// Apply picks a currently existing pod for every delete, without waiting in between
func (f *ResourceDeleteFault) Apply(ctx context.Context, s *session.Session) error {
	res, ok := Resources[f.Resource]
	if !ok {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetSelection, Target: fmt.Sprintf("{resource: %s}", f.Resource), Reason: fmt.Sprintf("unsupported resource, expected one of %v", ResourceKinds())}
	}
	count := f.Count
	if count <= 0 {
		count = res.Deletes
	}

	ns := s.Details.ClusterNamespace
	for i := len(f.deleted); i < count; i++ {
		pods, err := s.Clients.ListPods(ctx, ns, res.Label)
		if err != nil {
			return stacktrace.Propagate(err, "could not list %s pods", f.Resource)
		}
		var candidates []string
		for _, pod := range pods.Items {
			if pod.DeletionTimestamp == nil {
				candidates = append(candidates, pod.Name)
			}
		}
		if len(candidates) == 0 {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetSelection, Target: fmt.Sprintf("{label: %s}", res.Label), Reason: "no pod left to delete"}
		}
		name := candidates[common.RandomIndex(len(candidates))]
		if err := s.Clients.DeletePod(ctx, ns, name, false); err != nil {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosInject, Target: fmt.Sprintf("{podName: %s}", name), Reason: err.Error()}
		}
		f.deleted = append(f.deleted, name)
		log.Infof("[Inject]: Deleted %v pod %v (%d/%d)", f.Resource, name, i+1, count)
	}
	return nil
}

func (f *ResourceDeleteFault) Undo(ctx context.Context, s *session.Session) error {
	return nil
}
