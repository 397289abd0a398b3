package retry

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	testingclock "k8s.io/utils/clock/testing"
)

func TestTimesWaitTimeout(t *testing.T) {
	model := Times(5).Wait(2 * time.Second).Timeout(3 * time.Second)

	if model.retry != 5 {
		t.Errorf("expected retry=5, got %d", model.retry)
	}
	if model.waitTime != 2*time.Second {
		t.Errorf("expected waitTime=2s, got %s", model.waitTime)
	}
	if model.timeout != 3*time.Second {
		t.Errorf("expected timeout=3s, got %s", model.timeout)
	}
}

func TestTry_ActionSucceedsImmediately(t *testing.T) {
	model := Times(3).Wait(0)

	calls := 0
	action := func(attempt uint) error {
		calls++
		return nil
	}

	err := model.Try(action)
	if err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestTry_ActionFailsThenSucceeds(t *testing.T) {
	model := Times(3).Wait(0)

	calls := 0
	action := func(attempt uint) error {
		calls++
		if attempt < 1 {
			return errors.New("fail")
		}
		return nil
	}

	err := model.Try(action)
	if err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestTry_ActionAlwaysFails(t *testing.T) {
	model := Times(3).Wait(0)

	calls := 0
	action := func(attempt uint) error {
		calls++
		return errors.New("fail")
	}

	err := model.Try(action)
	if err == nil {
		t.Error("expected error, got nil")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestTry_StopsOnNonRetryableError(t *testing.T) {
	model := Times(5).Wait(0).On(cerrors.IsTransient)

	calls := 0
	action := func(attempt uint) error {
		calls++
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeDataLoss}
	}

	if err := model.Try(action); err == nil {
		t.Error("expected error, got nil")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestTry_RetriesTransientError(t *testing.T) {
	model := Times(4).Wait(0).On(cerrors.IsTransient)

	calls := 0
	action := func(attempt uint) error {
		calls++
		if attempt < 3 {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeCommandFailed, Reason: "exec failed"}
		}
		return nil
	}

	if err := model.Try(action); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestTry_LinearDelayOnFakeClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	fakeClock := testingclock.NewFakeClock(start)
	model := Times(4).Wait(5 * time.Second).Linear(time.Second).Clock(fakeClock)

	_ = model.Try(func(attempt uint) error { return errors.New("fail") })

	// waits of 5s, 6s and 7s between four attempts
	if got := fakeClock.Since(start); got != 18*time.Second {
		t.Errorf("expected 18s of waiting, got %s", got)
	}
}

func TestTryWithContext_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Times(5).Wait(0).TryWithContext(ctx, func(attempt uint) error {
		calls++
		return errors.New("fail")
	})
	if err == nil {
		t.Error("expected error, got nil")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestTryWithTimeout_GivesUpAtDeadline(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	fakeClock := testingclock.NewFakeClock(start)
	model := Times(100).Wait(10 * time.Second).Timeout(25 * time.Second).Clock(fakeClock)

	var at []time.Duration
	err := model.TryWithTimeout(context.Background(), func(attempt uint) error {
		at = append(at, fakeClock.Since(start))
		return errors.New("pods are pending")
	})

	var cerr cerrors.Error
	if !errors.As(err, &cerr) || cerr.ErrorCode != cerrors.ErrorTypeTimeout {
		t.Fatalf("expected timeout cerror, got %v", err)
	}
	if !strings.Contains(cerr.Reason, "pods are pending") {
		t.Errorf("expected the last error in the reason, got %q", cerr.Reason)
	}
	// the last wait is cut short so the final attempt runs at the deadline
	want := []time.Duration{0, 10 * time.Second, 20 * time.Second, 25 * time.Second}
	if !reflect.DeepEqual(at, want) {
		t.Errorf("expected attempts at %v, got %v", want, at)
	}
}

func TestTryWithTimeout_LinearDelay(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	fakeClock := testingclock.NewFakeClock(start)
	model := Times(10).Wait(5 * time.Second).Linear(5 * time.Second).Timeout(30 * time.Second).Clock(fakeClock)

	var at []time.Duration
	err := model.TryWithTimeout(context.Background(), func(attempt uint) error {
		at = append(at, fakeClock.Since(start))
		return errors.New("fail")
	})
	if !cerrors.Is(err, cerrors.ErrorTypeTimeout) {
		t.Errorf("expected timeout error, got %v", err)
	}
	// waits of 5s, 10s and 15s
	want := []time.Duration{0, 5 * time.Second, 15 * time.Second, 30 * time.Second}
	if !reflect.DeepEqual(at, want) {
		t.Errorf("expected attempts at %v, got %v", want, at)
	}
}

func TestTryWithTimeout_SucceedsWithinTimeout(t *testing.T) {
	fakeClock := testingclock.NewFakeClock(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	model := Times(10).Wait(15 * time.Second).Timeout(time.Minute).Clock(fakeClock)

	called := 0
	err := model.TryWithTimeout(context.Background(), func(attempt uint) error {
		called++
		if attempt < 1 {
			return errors.New("fail")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if called != 2 {
		t.Errorf("expected 2 calls, got %d", called)
	}
}

func TestTryWithTimeout_AttemptsRunOutFirst(t *testing.T) {
	fakeClock := testingclock.NewFakeClock(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	model := Times(2).Wait(time.Second).Timeout(time.Hour).Clock(fakeClock)

	err := model.TryWithTimeout(context.Background(), func(attempt uint) error {
		return errors.New("fail")
	})
	if err == nil || cerrors.Is(err, cerrors.ErrorTypeTimeout) {
		t.Errorf("expected the plain last error, got %v", err)
	}
}

func TestTry_NilAction(t *testing.T) {
	model := Times(2)
	err := model.Try(nil)
	if err == nil {
		t.Error("expected error for nil action, got nil")
	}
}

func TestTryWithTimeout_NilAction(t *testing.T) {
	model := Times(2)
	err := model.TryWithTimeout(context.Background(), nil)
	if err == nil {
		t.Error("expected error for nil action, got nil")
	}
}
