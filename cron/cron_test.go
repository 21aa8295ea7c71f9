package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-nodeflow"
	"github.com/goliatone/go-nodeflow/flow"
)

func TestScheduleAfterCompletesAndReportsStatus(t *testing.T) {
	scheduler := NewScheduler()
	var count atomic.Int32

	handle, err := scheduler.ScheduleAfter(50*time.Millisecond, JobConfig{}, func(context.Context) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("schedule after: %v", err)
	}

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("expected handle completion")
	}

	if got := count.Load(); got != 1 {
		t.Fatalf("expected one execution, got %d", got)
	}
	if status := handle.Status(); status != ScheduleStatusCompleted {
		t.Fatalf("expected completed status, got %s", status)
	}
	if runs := handle.Runs(); runs != 1 {
		t.Fatalf("expected one recorded run, got %d", runs)
	}
}

func TestScheduleAtCancelPreventsExecution(t *testing.T) {
	scheduler := NewScheduler()
	var count atomic.Int32

	handle, err := scheduler.ScheduleAt(time.Now().Add(250*time.Millisecond), JobConfig{}, func(context.Context) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("schedule at: %v", err)
	}

	handle.Cancel()

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("expected canceled handle to close done channel")
	}

	time.Sleep(300 * time.Millisecond)
	if got := count.Load(); got != 0 {
		t.Fatalf("expected zero executions after cancel, got %d", got)
	}
	if status := handle.Status(); status != ScheduleStatusCanceled {
		t.Fatalf("expected canceled status, got %s", status)
	}
}

func TestScheduleAfterRetriesAndFails(t *testing.T) {
	var reported atomic.Int32
	scheduler := NewScheduler(WithErrorHandler(func(error) {
		reported.Add(1)
	}))
	var attempts atomic.Int32
	boom := errors.New("boom")

	handle, err := scheduler.ScheduleAfter(0, JobConfig{MaxAttempts: 3, Wait: time.Millisecond}, func(context.Context) error {
		attempts.Add(1)
		return boom
	})
	if err != nil {
		t.Fatalf("schedule after: %v", err)
	}

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("expected handle completion")
	}

	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if status := handle.Status(); status != ScheduleStatusFailed {
		t.Fatalf("expected failed status, got %s", status)
	}
	if !errors.Is(handle.Err(), boom) {
		t.Fatalf("expected boom, got %v", handle.Err())
	}
	if got := reported.Load(); got != 1 {
		t.Fatalf("expected error handler to run once, got %d", got)
	}
}

func TestScheduleAfterCapturesPanics(t *testing.T) {
	scheduler := NewScheduler(WithErrorHandler(func(error) {}))

	handle, err := scheduler.ScheduleAfter(0, JobConfig{}, func(context.Context) error {
		panic("kaboom")
	})
	if err != nil {
		t.Fatalf("schedule after: %v", err)
	}

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("expected handle completion")
	}

	if !nodeflow.HasCode(handle.Err(), nodeflow.ErrCodePanicRecovered) {
		t.Fatalf("expected panic error, got %v", handle.Err())
	}
}

func TestScheduleAfterAppliesTimeout(t *testing.T) {
	scheduler := NewScheduler(WithErrorHandler(func(error) {}))

	handle, err := scheduler.ScheduleAfter(0, JobConfig{Timeout: 20 * time.Millisecond}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("schedule after: %v", err)
	}

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("expected timeout to end the job")
	}
	if !errors.Is(handle.Err(), context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", handle.Err())
	}
}

func TestScheduleCronCancelableHandle(t *testing.T) {
	scheduler := NewScheduler()
	var count atomic.Int32

	handle, err := scheduler.ScheduleCron(JobConfig{
		Expression: "@every 1s",
	}, func(context.Context) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("schedule cron: %v", err)
	}

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("scheduler start: %v", err)
	}
	defer scheduler.Stop(context.Background())

	deadline := time.After(2500 * time.Millisecond)
	for count.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected at least one cron run")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}

	handle.Cancel()
	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("expected cancel to close handle done channel")
	}

	if status := handle.Status(); status != ScheduleStatusCanceled {
		t.Fatalf("expected canceled status, got %s", status)
	}
}

func TestScheduleCronMaxRunsCompletes(t *testing.T) {
	scheduler := NewScheduler()
	var count atomic.Int32

	handle, err := scheduler.ScheduleCron(JobConfig{
		Expression: "@every 1s",
		MaxRuns:    2,
	}, func(context.Context) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("schedule cron: %v", err)
	}

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("scheduler start: %v", err)
	}
	defer scheduler.Stop(context.Background())

	select {
	case <-handle.Done():
	case <-time.After(4 * time.Second):
		t.Fatal("expected handle to complete after two runs")
	}

	if status := handle.Status(); status != ScheduleStatusCompleted {
		t.Fatalf("expected completed status, got %s", status)
	}
	if got := count.Load(); got != 2 {
		t.Fatalf("expected two executions, got %d", got)
	}
}

func TestSchedulerStopMarksHandleStopped(t *testing.T) {
	scheduler := NewScheduler()
	handle, err := scheduler.ScheduleCron(JobConfig{
		Expression: "@every 5s",
	}, func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("schedule cron: %v", err)
	}

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("scheduler start: %v", err)
	}

	if err := scheduler.Stop(context.Background()); err != nil {
		t.Fatalf("scheduler stop: %v", err)
	}

	select {
	case <-handle.Done():
	case <-time.After(time.Second):
		t.Fatal("expected handle done on stop")
	}

	if status := handle.Status(); status != ScheduleStatusStopped {
		t.Fatalf("expected stopped status, got %s", status)
	}
	if handle.ID() == 0 {
		t.Fatal("expected non-zero handle id")
	}
}

func TestScheduleCronValidation(t *testing.T) {
	scheduler := NewScheduler()
	noop := func(context.Context) error { return nil }

	if _, err := scheduler.ScheduleCron(JobConfig{}, noop); err == nil {
		t.Fatal("expected empty expression error")
	}

	if _, err := scheduler.ScheduleCron(JobConfig{Expression: "not a cron"}, noop); err == nil {
		t.Fatal("expected invalid expression error")
	}

	if _, err := scheduler.ScheduleCron(JobConfig{Expression: "@every 1s"}, nil); err == nil {
		t.Fatal("expected missing job error")
	}
}

func TestFlowJobUsesFreshSharedState(t *testing.T) {
	inc := flow.NewNode[*nodeflow.Store, int, int](nodeflow.NodeFuncs[*nodeflow.Store, int, int]{
		PrepFn: func(_ context.Context, s *nodeflow.Store, _ nodeflow.Params) (int, error) {
			v, _ := nodeflow.StoreValue[int](s, "n")
			return v, nil
		},
		ExecFn: func(_ context.Context, v int) (int, error) {
			return v + 1, nil
		},
		PostFn: func(_ context.Context, s *nodeflow.Store, _ int, result int) (nodeflow.Action, error) {
			s.Set("n", result)
			return "done", nil
		},
	}, flow.WithName("inc"))
	graph := flow.NewFlow[*nodeflow.Store](inc)

	var last atomic.Int32
	job := FlowJob[*nodeflow.Store](graph, func() *nodeflow.Store {
		return nodeflow.NewStore(nil)
	}, func(s *nodeflow.Store, action nodeflow.Action, err error) {
		if err != nil || action != "done" {
			t.Errorf("unexpected outcome %q %v", action, err)
		}
		n, _ := nodeflow.StoreValue[int](s, "n")
		last.Store(int32(n))
	})

	for i := 0; i < 3; i++ {
		if err := job(context.Background()); err != nil {
			t.Fatalf("flow job: %v", err)
		}
		if got := last.Load(); got != 1 {
			t.Fatalf("expected each run to start from an empty store, got %d", got)
		}
	}
}
