// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

// Package watchdog tracks time since the last accepted drive command.
// Expiry is not an error: it is the safety event that tells the control
// loop to stop the vehicle and report LINK_LOST.
package watchdog

import (
	"errors"
	"time"
)

// ErrInvalidTimeout reports a non-positive timeout. The timeout is a
// required deployment parameter; there is no safe universal default.
var ErrInvalidTimeout = errors.New("watchdog: timeout must be positive")

// Watchdog holds the liveness deadline state. All methods take the current
// time explicitly; the caller owns the clock.
type Watchdog struct {
	timeout   time.Duration
	lastReset time.Time
	feeds     uint64
}

// New returns a watchdog considered fed as of now.
func New(timeout time.Duration, now time.Time) (*Watchdog, error) {
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}
	return &Watchdog{timeout: timeout, lastReset: now}, nil
}

// Reset marks the watchdog fed. Called once per accepted drive command;
// duplicate or out-of-order sequence numbers still reset it, because
// liveness is about receiving any valid drive traffic at all.
func (w *Watchdog) Reset(now time.Time) {
	w.lastReset = now
	w.feeds++
}

// Expired reports whether more than the timeout has elapsed since the
// last reset.
func (w *Watchdog) Expired(now time.Time) bool {
	return now.Sub(w.lastReset) > w.timeout
}

// Remaining returns the time left before expiry, or zero once expired.
func (w *Watchdog) Remaining(now time.Time) time.Duration {
	left := w.timeout - now.Sub(w.lastReset)
	if left < 0 {
		return 0
	}
	return left
}

// Elapsed returns the time since the last reset.
func (w *Watchdog) Elapsed(now time.Time) time.Duration {
	return now.Sub(w.lastReset)
}

// Timeout returns the configured timeout.
func (w *Watchdog) Timeout() time.Duration {
	return w.timeout
}

// Feeds returns how many resets have occurred.
func (w *Watchdog) Feeds() uint64 {
	return w.feeds
}
