package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestBucketStartsEmpty(t *testing.T) {
	// A refill rate of one token per hour keeps the bucket effectively
	// frozen for the duration of the test.
	b := New(5, 1, time.Hour)

	if b.TryRemove(1) {
		t.Fatalf("expected a fresh bucket to hold no tokens")
	}
}

func TestBucketFillsOnElapsedTime(t *testing.T) {
	b := New(2, 1000, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.Remove(ctx, 1); err != nil {
		t.Fatalf("expected Remove to succeed once the drip refilled a token: %v", err)
	}
}

func TestTryRemoveTakesAvailableTokens(t *testing.T) {
	b := New(2, 1000, time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.TryRemove(1) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("bucket never refilled a token within the deadline")
}

func TestRemoveHonorsCancellation(t *testing.T) {
	b := New(1, 1, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Remove(ctx, 1); err == nil {
		t.Fatalf("expected Remove on a cancelled context to fail")
	}
}
