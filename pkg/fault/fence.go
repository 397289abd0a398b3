package fault

import (
	"context"
	"fmt"

	taint "github.com/litmuschaos/stretch-dr-go/chaoslib/litmus/node-taint/lib"
	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/session"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/palantir/stacktrace"
)

// NetworkFenceFault fences worker nodes which are already shut down and taints
// them out of service so their volumes can be attached elsewhere
type NetworkFenceFault struct {
	Nodes  []string
	Fencer Fencer

	fenced map[string]string
}

func (f *NetworkFenceFault) Kind() types.FaultKind { return types.NetworkFence }
func (f *NetworkFenceFault) Name() string { return "" }
func (f *NetworkFenceFault) Targets() []string { return f.Nodes }

// Fenced returns the cidr fenced per node
func (f *NetworkFenceFault) Fenced() map[string]string {
	out := map[string]string{}
	for k, v := range f.fenced {
		out[k] = v
	}
	return out
}

// Apply fences the first client cidr of every node, then taints them all
func (f *NetworkFenceFault) Apply(ctx context.Context, s *session.Session) error {
	if f.fenced == nil {
		f.fenced = map[string]string{}
	}
	for _, node := range f.Nodes {
		if _, ok := f.fenced[node]; ok {
			continue
		}
		cidrs, err := f.Fencer.CIDRs(ctx, node)
		if err != nil {
			return err
		}
		if len(cidrs) == 0 {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeTargetSelection, Target: fmt.Sprintf("{nodeName: %s}", node), Reason: "no client cidr found"}
		}
		if err := f.Fencer.Fence(ctx, node, cidrs[0]); err != nil {
			return err
		}
		f.fenced[node] = cidrs[0]
	}
	if err := taint.TaintNodes(ctx, s.Clients, f.Nodes, taint.ParseTaint(taint.OutOfServiceTaint)); err != nil {
		return stacktrace.Propagate(err, "could not taint the fenced nodes")
	}
	log.Infof("[Inject]: Fenced and tainted nodes %v", f.Nodes)
	return nil
}

// Undo unfences every fenced node and removes the out of service taint
func (f *NetworkFenceFault) Undo(ctx context.Context, s *session.Session) error {
	for _, node := range f.Nodes {
		if _, ok := f.fenced[node]; !ok {
			continue
		}
		if err := f.Fencer.Unfence(ctx, node); err != nil {
			return err
		}
		delete(f.fenced, node)
	}
	outOfService := taint.ParseTaint(taint.OutOfServiceTaint)
	return taint.RemoveTaint(ctx, s.Clients, f.Nodes, outOfService.Key)
}
