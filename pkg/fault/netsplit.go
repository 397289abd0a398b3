package fault

import (
	"context"
	"time"

	netsplit "github.com/litmuschaos/stretch-dr-go/chaoslib/litmus/network-split/lib"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/session"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/common"
	"github.com/palantir/stacktrace"
)

type cleaner interface {
	Cleanup(ctx context.Context) error
}

// NetworkSplitFault cuts zone groups apart for a bounded duration starting
// after a lead time. The scheduler gives no completion signal, Hold sleeps
// past the planned end plus a margin.
type NetworkSplitFault struct {
	Split     string
	Nodes     []string
	Scheduler netsplit.Scheduler
	Lead      time.Duration
	Duration  time.Duration
	Margin    time.Duration

	window types.FaultWindow
}

// NewNetworkSplit takes lead, duration and margin from the run details
func NewNetworkSplit(s *session.Session, split string, nodes []string, scheduler netsplit.Scheduler) *NetworkSplitFault {
	return &NetworkSplitFault{
		Split:     split,
		Nodes:     nodes,
		Scheduler: scheduler,
		Lead:      s.Details.LeadTime(),
		Duration:  s.Details.ChaosDurationTime(),
		Margin:    s.Details.Margin(),
	}
}

func (f *NetworkSplitFault) Kind() types.FaultKind { return types.NetworkSplit }
func (f *NetworkSplitFault) Name() string { return f.Split }
func (f *NetworkSplitFault) Targets() []string { return f.Nodes }

// Window is the planned window of the last Apply
func (f *NetworkSplitFault) Window() types.FaultWindow { return f.window }

func (f *NetworkSplitFault) Apply(ctx context.Context, s *session.Session) error {
	if _, err := netsplit.Cuts(f.Split); err != nil {
		return err
	}
	issuedAt := s.Clock.Now()
	window, err := types.NewFaultWindow(types.NetworkSplit, f.Split, issuedAt, issuedAt.Add(f.Lead), f.Duration, f.Nodes)
	if err != nil {
		return stacktrace.Propagate(err, "invalid network split window")
	}
	if err := f.Scheduler.ScheduleSplit(ctx, f.Nodes, f.Split, window.Start, window.Duration); err != nil {
		return stacktrace.Propagate(err, "could not schedule the %s split", f.Split)
	}
	f.window = window
	log.Infof("[Inject]: Netsplit induced at %v for zones %v", window.Start.Format(time.RFC3339), f.Split)
	return nil
}

// Hold waits for the planned start, the duration and the margin. The realized
// window runs from reaching the start to reaching the planned end.
func (f *NetworkSplitFault) Hold(ctx context.Context, s *session.Session) (types.ObservationWindow, error) {
	s.SetActiveFault(&f.window)
	if err := common.WaitForDuration(ctx, s.Clock, f.window.Start.Sub(s.Clock.Now())); err != nil {
		return types.ObservationWindow{}, err
	}
	start := s.Clock.Now().UTC()
	log.Infof("[Wait]: Waiting %v for the %v split to end", f.window.Duration, f.Split)
	if err := common.WaitForDuration(ctx, s.Clock, f.window.End().Sub(s.Clock.Now())); err != nil {
		return types.ObservationWindow{}, err
	}
	end := s.Clock.Now().UTC()
	log.Infof("[Wait]: Waiting %v margin for the %v split to heal", f.Margin, f.Split)
	if err := common.WaitForDuration(ctx, s.Clock, f.Margin); err != nil {
		return types.ObservationWindow{}, err
	}
	log.Infof("[Info]: Ended netsplit at %v", end.Format(time.RFC3339))
	return types.ObservationWindow{Start: start, End: end}, nil
}

// Undo removes any helper the scheduler left behind
func (f *NetworkSplitFault) Undo(ctx context.Context, s *session.Session) error {
	if c, ok := f.Scheduler.(cleaner); ok {
		return c.Cleanup(ctx)
	}
	return nil
}
