package runner

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

type fixedDecisionStrategy struct {
	decision RetryDecision
}

func (f fixedDecisionStrategy) SleepDuration(int, error) time.Duration {
	return f.decision.Delay
}

func (f fixedDecisionStrategy) DecideRetry(int, error) RetryDecision {
	return f.decision
}

func TestDecideRetryUsesDeciderWhenAvailable(t *testing.T) {
	strategy := fixedDecisionStrategy{
		decision: RetryDecision{
			ShouldRetry: false,
			Delay:       25 * time.Millisecond,
			Metadata: map[string]any{
				"source": "test",
			},
		},
	}

	decision := DecideRetry(strategy, 1, fmt.Errorf("boom"))
	if decision.ShouldRetry {
		t.Fatal("expected strategy decision to disable retry")
	}
	if decision.Delay != 25*time.Millisecond {
		t.Fatalf("unexpected delay: %s", decision.Delay)
	}
	if decision.Metadata["source"] != "test" {
		t.Fatal("expected metadata propagation")
	}
}

func TestDecideRetryFallsBackToSleepDuration(t *testing.T) {
	strategy := ExponentialBackoffStrategy{
		Base:   10 * time.Millisecond,
		Factor: 2,
		Max:    100 * time.Millisecond,
	}
	decision := DecideRetry(strategy, 2, nil)
	if !decision.ShouldRetry {
		t.Fatal("expected fallback strategy to retry")
	}
	if decision.Delay != 40*time.Millisecond {
		t.Fatalf("unexpected fallback delay: %s", decision.Delay)
	}
}

func TestDecideRetryPermanent(t *testing.T) {
	decision := DecideRetry(FixedDelayStrategy{Delay: time.Second}, 0, Permanent(errors.New("nope")))
	if decision.ShouldRetry {
		t.Fatal("expected permanent errors not to be retried")
	}
}

func TestExponentialBackoffCapsAtMax(t *testing.T) {
	strategy := ExponentialBackoffStrategy{Base: 10 * time.Millisecond, Factor: 10, Max: 50 * time.Millisecond}
	if d := strategy.SleepDuration(3, nil); d != 50*time.Millisecond {
		t.Fatalf("expected cap at 50ms, got %s", d)
	}
}

func TestFixedDelayStrategy(t *testing.T) {
	if d := (FixedDelayStrategy{Delay: 15 * time.Millisecond}).SleepDuration(7, nil); d != 15*time.Millisecond {
		t.Fatalf("expected constant 15ms delay, got %s", d)
	}
	if d := (FixedDelayStrategy{Delay: -time.Second}).SleepDuration(0, nil); d != 0 {
		t.Fatalf("expected negative delay to clamp to zero, got %s", d)
	}
}

func TestPermanentHelpers(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatal("expected Permanent(nil) to be nil")
	}
	base := errors.New("base")
	wrapped := fmt.Errorf("context: %w", Permanent(base))
	if !IsPermanent(wrapped) {
		t.Fatal("expected wrapped permanent error to be detected")
	}
	if !errors.Is(wrapped, base) {
		t.Fatal("expected permanent wrapper to unwrap to base")
	}
}
