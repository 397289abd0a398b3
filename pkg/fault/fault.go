// Package fault holds the fault variants a scenario can inject. Every variant
// pairs an Apply with an Undo and is driven through Inject and Revert.
package fault

import (
	"context"
	"time"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/session"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/common"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/retry"
	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"
)

const (
	applyAttempts = 3
	applyDelay    = 10 * time.Second
)

// Fault is one injectable failure
type Fault interface {
	Kind() types.FaultKind
	// Name qualifies the kind, e.g. the split name of a network split
	Name() string
	Targets() []string
	Apply(ctx context.Context, s *session.Session) error
	Undo(ctx context.Context, s *session.Session) error
}

// Holder is implemented by faults which realize their own window after Apply
type Holder interface {
	Hold(ctx context.Context, s *session.Session) (types.ObservationWindow, error)
}

// Fencer blocks and restores the data path of a node
type Fencer interface {
	CIDRs(ctx context.Context, node string) ([]string, error)
	Fence(ctx context.Context, node, cidr string) error
	Unfence(ctx context.Context, node string) error
}

// Inject applies the fault with bounded retry on transient errors, marks it
// active on the session and holds it. The returned window is the realized one.
func Inject(ctx context.Context, s *session.Session, f Fault, hold time.Duration) (types.ObservationWindow, error) {
	log.InfoWithValues("[Inject]: Injecting fault", logrus.Fields{
		"Kind":    f.Kind(),
		"Name":    f.Name(),
		"Targets": f.Targets(),
	})

	start := s.Clock.Now().UTC()
	err := retry.
		Times(applyAttempts).
		Wait(applyDelay).
		On(cerrors.IsTransient).
		Clock(s.Clock).
		TryWithContext(ctx, func(attempt uint) error {
			return f.Apply(ctx, s)
		})
	if err != nil {
		return types.ObservationWindow{}, stacktrace.Propagate(err, "could not inject %s fault", f.Kind())
	}
	s.SetActiveFault(&types.FaultWindow{Kind: f.Kind(), Name: f.Name(), Start: start, Duration: hold, Targets: f.Targets()})

	if h, ok := f.(Holder); ok {
		return h.Hold(ctx, s)
	}
	if hold > 0 {
		log.Infof("[Wait]: Holding the %v fault for %v", f.Kind(), hold)
		if err := common.WaitForDuration(ctx, s.Clock, hold); err != nil {
			return types.ObservationWindow{}, err
		}
	}
	return types.ObservationWindow{Start: start, End: s.Clock.Now().UTC()}, nil
}

// Revert undoes the fault with the same bounded retry as Inject
func Revert(ctx context.Context, s *session.Session, f Fault) error {
	err := retry.
		Times(applyAttempts).
		Wait(applyDelay).
		On(cerrors.IsTransient).
		Clock(s.Clock).
		TryWithContext(ctx, func(attempt uint) error {
			return f.Undo(ctx, s)
		})
	if err != nil {
		return stacktrace.Propagate(err, "could not revert %s fault", f.Kind())
	}
	log.Infof("[Recover]: Reverted the %v fault", f.Kind())
	return nil
}
