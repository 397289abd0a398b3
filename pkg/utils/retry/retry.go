package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"k8s.io/utils/clock"
)

// Action defines the prototype of action function, function as a value
type Action func(attempt uint) error

// Predicate decides whether a failed attempt is worth another try
type Predicate func(err error) bool

// Model defines the schema, contains all the attributes need for retry
type Model struct {
	retry     uint
	waitTime  time.Duration
	step      time.Duration
	timeout   time.Duration
	retryable Predicate
	clock     clock.Clock
}

// Times is used to define the retry count
// it will run if the instance of model is not present before
func Times(retry uint) *Model {
	model := Model{}
	return model.Times(retry)
}

// Times is used to define the retry count
// it will run if the instance of model is already present
func (model *Model) Times(retry uint) *Model {
	model.retry = retry
	return model
}

// Wait is used to define the wait duration after each iteration of retry
// it will run if the instance of model is not present before
func Wait(waitTime time.Duration) *Model {
	model := Model{}
	return model.Wait(waitTime)
}

// Wait is used to define the wait duration after each iteration of retry
// it will run if the instance of model is already present
func (model *Model) Wait(waitTime time.Duration) *Model {
	model.waitTime = waitTime
	return model
}

// Linear grows the wait duration by step after every failed attempt
func (model *Model) Linear(step time.Duration) *Model {
	model.step = step
	return model
}

// Timeout bounds the total time TryWithTimeout spends on the attempts and the waits between them
func (model *Model) Timeout(timeout time.Duration) *Model {
	model.timeout = timeout
	return model
}

// On restricts retries to the errors accepted by the predicate,
// any other error is returned right away
func (model *Model) On(retryable Predicate) *Model {
	model.retryable = retryable
	return model
}

// Clock sets the clock used for the waits between attempts
func (model *Model) Clock(c clock.Clock) *Model {
	model.clock = c
	return model
}

func (model Model) getClock() clock.Clock {
	if model.clock == nil {
		return clock.RealClock{}
	}
	return model.clock
}

// delay returns the wait before the attempt following the given one
func (model Model) delay(attempt uint) time.Duration {
	return model.waitTime + time.Duration(attempt)*model.step
}

func (model Model) shouldStop(err error) bool {
	return err != nil && model.retryable != nil && !model.retryable(err)
}

// Try is used to run a action with retries and some delay after each iteration
func (model Model) Try(action Action) error {
	return model.TryWithContext(context.Background(), action)
}

// TryWithContext behaves like Try but stops waiting once the context is done
func (model Model) TryWithContext(ctx context.Context, action Action) error {
	if action == nil {
		return fmt.Errorf("no action specified")
	}

	clk := model.getClock()
	var err error
	for attempt := uint(0); attempt < model.retry; attempt++ {
		if err = action(attempt); err == nil || model.shouldStop(err) {
			return err
		}
		if attempt+1 == model.retry {
			break
		}
		if ctx.Err() != nil {
			return err
		}
		if d := model.delay(attempt); d > 0 {
			clk.Sleep(d)
		}
	}

	return err
}

// TryWithTimeout behaves like TryWithContext but also gives up once the
// timeout has elapsed on the model clock. The last attempt runs at the
// deadline at the latest. Giving up on time returns a timeout error carrying
// the error of the last attempt. A zero timeout only bounds the attempts.
func (model Model) TryWithTimeout(ctx context.Context, action Action) error {
	if action == nil {
		return fmt.Errorf("no action specified")
	}
	if model.timeout <= 0 {
		return model.TryWithContext(ctx, action)
	}

	clk := model.getClock()
	deadline := clk.Now().Add(model.timeout)
	var err error
	for attempt := uint(0); attempt < model.retry; attempt++ {
		if err = action(attempt); err == nil || model.shouldStop(err) {
			return err
		}
		if attempt+1 == model.retry || ctx.Err() != nil {
			return err
		}
		remaining := deadline.Sub(clk.Now())
		if remaining <= 0 {
			return cerrors.Error{
				ErrorCode: cerrors.ErrorTypeTimeout,
				Reason:    fmt.Sprintf("gave up after %s, last error: %v", model.timeout, err),
			}
		}
		d := model.delay(attempt)
		if d > remaining {
			d = remaining
		}
		if d > 0 {
			clk.Sleep(d)
		}
	}

	return err
}
