package util

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/spachava753/peerlab/internal/models"
)

func fastRetry(n int) models.RetryConfig {
	return models.RetryConfig{MaxAttempts: n, InitialDelayMs: 1, MaxDelayMs: 2, Multiplier: 1.5}
}

func TestRetry(t *testing.T) {
	transient := fmt.Errorf("status 503: %w", models.ErrTransient)
	rejected := fmt.Errorf("status 422: %w", models.ErrHostRejected)

	tests := []struct {
		name      string
		attempts  int
		failures  []error
		wantCalls int
		wantErr   error
	}{
		{name: "first try", attempts: 3, wantCalls: 1},
		{name: "recovers", attempts: 3, failures: []error{transient, transient}, wantCalls: 3},
		{name: "exhausted", attempts: 2, failures: []error{transient, transient, transient}, wantCalls: 2, wantErr: models.ErrTransient},
		{name: "permanent", attempts: 5, failures: []error{rejected}, wantCalls: 1, wantErr: models.ErrHostRejected},
		{name: "zero attempts runs once", attempts: 0, failures: []error{transient}, wantCalls: 1, wantErr: models.ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), fastRetry(tt.attempts), "test", func() error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetry(10), "test", func() error {
		return models.ErrTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
