package resilience

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/amontoro/strategos/pkg/errors"
)

func TestWithTimeoutResultCompletes(t *testing.T) {
	out, err := WithTimeoutResult(context.Background(), TimeoutConfig{Duration: time.Second},
		func(ctx context.Context) (any, error) {
			return "done", nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "done" {
		t.Fatalf("unexpected result: %v", out)
	}
}

func TestWithTimeoutResultExpires(t *testing.T) {
	_, err := WithTimeoutResult(context.Background(), TimeoutConfig{Duration: 10 * time.Millisecond},
		func(ctx context.Context) (any, error) {
			select {
			case <-time.After(time.Second):
				return "late", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})
	se, ok := err.(*errors.StrategosError)
	if !ok || se.Code != errors.CodeStepTimeout {
		t.Fatalf("expected STEP_TIMEOUT, got %v", err)
	}
	if !se.Recoverable {
		t.Fatalf("timeout should be recoverable")
	}
}

func TestWithTimeoutZeroDisablesBoundary(t *testing.T) {
	err := WithTimeout(context.Background(), TimeoutConfig{}, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Fatalf("expected no deadline")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	cfg := DefaultRetryConfig().WithInitialDelay(time.Millisecond)
	attempts := 0
	err := cfg.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New(errors.CodeToolFailure, "transient", nil).WithRecoverable(true)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnUnrecoverable(t *testing.T) {
	cfg := DefaultRetryConfig().WithInitialDelay(time.Millisecond)
	attempts := 0
	err := cfg.Do(context.Background(), func() error {
		attempts++
		return errors.New(errors.CodeInvalidInput, "permanent", nil)
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 1 {
		t.Fatalf("unrecoverable error should not retry, got %d attempts", attempts)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	cfg := DefaultRetryConfig().
		WithMaxAttempts(2).
		WithInitialDelay(time.Millisecond).
		WithIsRecoverable(func(error) bool { return true })
	attempts := 0
	sentinel := stderrors.New("always fails")
	err := cfg.Do(context.Background(), func() error {
		attempts++
		return sentinel
	})
	if !stderrors.Is(err, sentinel) {
		t.Fatalf("expected last error, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	cfg := DefaultRetryConfig().WithInitialDelay(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := cfg.Do(ctx, func() error {
		return errors.New(errors.CodeToolFailure, "transient", nil).WithRecoverable(true)
	})
	se, ok := err.(*errors.StrategosError)
	if !ok || se.Code != errors.CodeRunCancelled {
		t.Fatalf("expected RUN_CANCELLED, got %v", err)
	}
}
