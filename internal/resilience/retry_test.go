package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	var calls int
	attempts, err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 || attempts != 1 {
		t.Errorf("expected 1 call / 1 attempt, got %d / %d", calls, attempts)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls int
	attempts, err := Do(context.Background(), fastRetry(2), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return Transientf(503, "temporary")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 || attempts != 3 {
		t.Errorf("expected 3 calls / 3 attempts, got %d / %d", calls, attempts)
	}
}

func TestDo_AttemptsBoundedByMaxRetries(t *testing.T) {
	var calls int
	attempts, err := Do(context.Background(), fastRetry(2), func(_ context.Context) error {
		calls++
		return Transientf(500, "always fails")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// MaxRetries of 2 means at most 3 attempts.
	if calls != 3 || attempts != 3 {
		t.Errorf("expected 3 calls / 3 attempts, got %d / %d", calls, attempts)
	}
}

func TestDo_ZeroMaxRetriesSingleAttempt(t *testing.T) {
	var calls int
	attempts, _ := Do(context.Background(), fastRetry(0), func(_ context.Context) error {
		calls++
		return Transientf(500, "fail")
	})
	if calls != 1 || attempts != 1 {
		t.Errorf("expected single attempt, got %d calls / %d attempts", calls, attempts)
	}
}

func TestDo_NonTransientNoRetry(t *testing.T) {
	var calls int
	attempts, err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return errors.New("validation failed: bad field id")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 || attempts != 1 {
		t.Errorf("expected no retry for non-transient error, got %d calls / %d attempts", calls, attempts)
	}
}

func TestDo_CancelStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	cfg := RetryConfig{
		MaxRetries:     5,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		Multiplier:     2.0,
	}

	start := time.Now()
	_, err := Do(ctx, cfg, func(_ context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return Transientf(500, "fail")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls before cancel stopped retries, got %d", calls)
	}
	// The backoff wait after the second failure must be aborted, not
	// slept through.
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Errorf("cancel did not abort backoff wait (took %v)", elapsed)
	}
}

func TestDo_CustomShouldRetry(t *testing.T) {
	var calls int
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(err error) bool { return err.Error() == "retry me" }

	_, err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("retry me")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDo_OnRetryCallback(t *testing.T) {
	var seen []int
	cfg := fastRetry(2)
	cfg.OnRetry = func(attempt int, _ time.Duration, _ error) {
		seen = append(seen, attempt)
	}

	_, _ = Do(context.Background(), cfg, func(_ context.Context) error {
		return Transientf(500, "fail")
	})

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("expected OnRetry after attempts [1 2], got %v", seen)
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	var calls int
	val, attempts, err := DoVal(context.Background(), fastRetry(2), func(_ context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", Transientf(500, "fail")
		}
		return "snapshot", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "snapshot" || attempts != 2 {
		t.Errorf("expected (snapshot, 2), got (%q, %d)", val, attempts)
	}
}

func TestDoVal_ZeroValueOnFailure(t *testing.T) {
	val, _, err := DoVal(context.Background(), fastRetry(1), func(_ context.Context) (int, error) {
		return 42, Transientf(500, "fail")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if val != 0 {
		t.Errorf("expected zero value on failure, got %d", val)
	}
}

func TestBackoffDelay_ExponentialGrowth(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
	}.withDefaults()

	expected := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}
	for i, want := range expected {
		if got := backoffDelay(cfg, i+1); got != want {
			t.Errorf("retry %d: expected %v, got %v", i+1, want, got)
		}
	}
}

func TestBackoffDelay_CapsAtMax(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     5 * time.Second,
		Multiplier:     10.0,
	}.withDefaults()

	if got := backoffDelay(cfg, 6); got > 5*time.Second {
		t.Errorf("expected delay capped at 5s, got %v", got)
	}
}

func TestBackoffDelay_JitterBounds(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.5,
	}.withDefaults()

	seen := make(map[time.Duration]bool)
	for i := 0; i < 100; i++ {
		d := backoffDelay(cfg, 1)
		seen[d] = true
		if d < 500*time.Millisecond || d > 1500*time.Millisecond {
			t.Errorf("delay %v outside [500ms, 1500ms]", d)
		}
	}
	if len(seen) < 2 {
		t.Error("expected jitter to vary delays")
	}
}

func TestRetryLogger(t *testing.T) {
	t.Parallel()
	// Must not panic against the global logger.
	logger := RetryLogger("loan_system", "read_fields")
	logger(1, time.Second, errors.New("test error"))
}
