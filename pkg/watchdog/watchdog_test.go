// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package watchdog

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Unix(1000, 0)

func TestNew_RequiresPositiveTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
	}{
		{name: "zero", timeout: 0},
		{name: "negative", timeout: -200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.timeout, t0)
			if !errors.Is(err, ErrInvalidTimeout) {
				t.Errorf("Expected ErrInvalidTimeout, got %v", err)
			}
		})
	}
}

func TestWatchdog_FreshNotExpired(t *testing.T) {
	w, err := New(200*time.Millisecond, t0)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if w.Expired(t0) {
		t.Error("Fresh watchdog should not be expired")
	}
	if w.Expired(t0.Add(200 * time.Millisecond)) {
		t.Error("Exactly at the timeout boundary is still alive")
	}
}

func TestWatchdog_ExpiresAfterTimeout(t *testing.T) {
	w, _ := New(200*time.Millisecond, t0)
	if !w.Expired(t0.Add(201 * time.Millisecond)) {
		t.Error("Expected expiry past the timeout")
	}
}

func TestWatchdog_ResetRestoresLiveness(t *testing.T) {
	w, _ := New(200*time.Millisecond, t0)

	now := t0.Add(150 * time.Millisecond)
	w.Reset(now)

	if w.Expired(now.Add(150 * time.Millisecond)) {
		t.Error("Reset should extend the deadline")
	}
	if !w.Expired(now.Add(201 * time.Millisecond)) {
		t.Error("Timeout counts from the last reset")
	}
}

func TestWatchdog_ResetAfterExpiryRecovers(t *testing.T) {
	w, _ := New(200*time.Millisecond, t0)

	late := t0.Add(1 * time.Second)
	if !w.Expired(late) {
		t.Fatal("Expected expiry before recovery")
	}
	w.Reset(late)
	if w.Expired(late.Add(100 * time.Millisecond)) {
		t.Error("A reset after expiry should restore liveness")
	}
}

func TestWatchdog_Remaining(t *testing.T) {
	w, _ := New(500*time.Millisecond, t0)

	if got := w.Remaining(t0.Add(100 * time.Millisecond)); got != 400*time.Millisecond {
		t.Errorf("Expected 400ms remaining, got %v", got)
	}
	if got := w.Remaining(t0.Add(2 * time.Second)); got != 0 {
		t.Errorf("Expired watchdog should report zero remaining, got %v", got)
	}
}

func TestWatchdog_ElapsedAndFeeds(t *testing.T) {
	w, _ := New(500*time.Millisecond, t0)
	if w.Feeds() != 0 {
		t.Errorf("Expected zero feeds, got %d", w.Feeds())
	}

	w.Reset(t0.Add(50 * time.Millisecond))
	w.Reset(t0.Add(90 * time.Millisecond))

	if w.Feeds() != 2 {
		t.Errorf("Expected 2 feeds, got %d", w.Feeds())
	}
	if got := w.Elapsed(t0.Add(100 * time.Millisecond)); got != 10*time.Millisecond {
		t.Errorf("Expected 10ms elapsed, got %v", got)
	}
	if w.Timeout() != 500*time.Millisecond {
		t.Errorf("Timeout accessor mismatch: %v", w.Timeout())
	}
}
