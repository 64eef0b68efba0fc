package concurrent

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSingleSuccessAndMap(t *testing.T) {
	got, err := MapSingle(Success(21), func(v int) int { return v * 2 }).Await(context.Background())
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestSingleOnErrorResume(t *testing.T) {
	boom := errors.New("boom")
	got, err := FailedSingle[string](boom).OnErrorResume(func(err error) *Single[string] {
		if !errors.Is(err, boom) {
			t.Errorf("resume saw %v, want %v", err, boom)
		}
		return Success("fallback")
	}).Await(context.Background())
	if err != nil || got != "fallback" {
		t.Errorf("got (%q, %v), want (fallback, nil)", got, err)
	}
}

func TestSingleOnErrorResumeSkippedOnSuccess(t *testing.T) {
	got, err := Success(1).OnErrorResume(func(error) *Single[int] {
		t.Error("resume called on success")
		return Success(2)
	}).Await(context.Background())
	if err != nil || got != 1 {
		t.Errorf("got (%d, %v), want (1, nil)", got, err)
	}
}

func TestSingleOneTerminal(t *testing.T) {
	var successes, failures int
	NewSingle(func(sub SingleSubscriber[int]) {
		sub.OnSubscribe(IgnoreCancel)
		sub.OnSuccess(1)
		sub.OnSuccess(2)
		sub.OnError(errors.New("late"))
	}).SubscribeFunc(func(int) { successes++ }, func(error) { failures++ })

	if successes != 1 || failures != 0 {
		t.Errorf("successes=%d failures=%d, want 1 and 0", successes, failures)
	}
}

func TestSingleDuplicateOnSubscribeCancelsSecond(t *testing.T) {
	second := false
	NewSingle(func(sub SingleSubscriber[int]) {
		sub.OnSubscribe(IgnoreCancel)
		sub.OnSubscribe(CancellableFunc(func() { second = true }))
		sub.OnSuccess(1)
	}).SubscribeFunc(nil, nil)
	if !second {
		t.Error("second Cancellable was not cancelled")
	}
}

func TestSingleAwaitContext(t *testing.T) {
	cancelled := make(chan struct{})
	never := NewSingle(func(sub SingleSubscriber[int]) {
		sub.OnSubscribe(CancellableFunc(func() { close(cancelled) }))
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := never.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Error("producer was not cancelled")
	}
}

func TestDeferSingleRunsPerSubscribe(t *testing.T) {
	calls := 0
	s := DeferSingle(func() *Single[int] {
		calls++
		return Success(calls)
	})
	s.SubscribeFunc(nil, nil)
	got, _ := s.Await(context.Background())
	if got != 2 || calls != 2 {
		t.Errorf("got %d after %d calls, want 2 and 2", got, calls)
	}
}

func TestFromBlocking(t *testing.T) {
	ex := NewExecutor()
	defer ex.CloseAsync().Await(context.Background())

	got, err := FromBlocking(ex, func() (string, error) { return "done", nil }).Await(context.Background())
	if err != nil || got != "done" {
		t.Errorf("got (%q, %v), want (done, nil)", got, err)
	}

	boom := errors.New("blocking failed")
	if _, err := FromBlocking(ex, func() (int, error) { return 0, boom }).Await(context.Background()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}

	_, err = FromBlocking(ex, func() (int, error) { panic("blocked") }).Await(context.Background())
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Errorf("err = %v, want *PanicError", err)
	}
}
