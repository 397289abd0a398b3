package fault

import (
	"context"
	"strings"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/session"
	"github.com/litmuschaos/stretch-dr-go/pkg/status"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/palantir/stacktrace"
)

// notReadyTimeout bounds the wait for stopped nodes to leave the cluster
const notReadyTimeout = 300

// NodeShutdownFault powers nodes off and back on
type NodeShutdownFault struct {
	Nodes []string
	// Zone is informational, set when a whole zone is shut down
	Zone string
}

func (f *NodeShutdownFault) Kind() types.FaultKind { return types.NodeShutdown }
func (f *NodeShutdownFault) Name() string { return f.Zone }
func (f *NodeShutdownFault) Targets() []string { return f.Nodes }

// Apply stops the nodes and blocks until every one of them reports NotReady
func (f *NodeShutdownFault) Apply(ctx context.Context, s *session.Session) error {
	if s.Power == nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosInject, Reason: "no node power controller configured"}
	}
	if err := s.Power.StopNodes(ctx, f.Nodes); err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosInject, Target: nodeTarget(f.Nodes), Reason: err.Error()}
	}
	s.RecordStopped(f.Nodes...)
	for _, node := range f.Nodes {
		if err := status.CheckNodeNotReadyState(ctx, node, notReadyTimeout, s.Details.Delay, s.Clients, s.Clock); err != nil {
			return stacktrace.Propagate(err, "node %s did not go down", node)
		}
	}
	log.Infof("[Inject]: Nodes %v are shutdown successfully", f.Nodes)
	return nil
}

// Undo starts the nodes and waits for them to be Ready
func (f *NodeShutdownFault) Undo(ctx context.Context, s *session.Session) error {
	return StartNodes(ctx, s, f.Nodes)
}

// StartNodes powers the nodes on and waits until all are Ready
func StartNodes(ctx context.Context, s *session.Session, nodes []string) error {
	if len(nodes) == 0 {
		return nil
	}
	if s.Power == nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosRevert, Reason: "no node power controller configured"}
	}
	log.Infof("[Recover]: Starting the %v nodes", nodes)
	if err := s.Power.StartNodes(ctx, nodes); err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeChaosRevert, Target: nodeTarget(nodes), Reason: err.Error()}
	}
	s.RecordStarted(nodes...)
	d := s.Details
	if err := status.CheckNodeStatus(ctx, nodes, d.NodeWaitTries*d.NodeWaitDelay, d.NodeWaitDelay, s.Clients, s.Clock); err != nil {
		return stacktrace.Propagate(err, "nodes did not become ready")
	}
	return nil
}

func nodeTarget(nodes []string) string {
	return "{nodes: " + strings.Join(nodes, ",") + "}"
}
