// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package robot

import (
	"testing"
	"time"
)

var t0 = time.Unix(1700000000, 0)

// ============================================================================
// Mode names
// ============================================================================

func TestModeString(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{ModeBoot, "BOOT"},
		{ModeNetUp, "NET_UP"},
		{ModeClientOK, "CLIENT_OK"},
		{ModeDriving, "DRIVING"},
		{ModeLinkLost, "LINK_LOST"},
		{ModeEStop, "E_STOP"},
		{Mode(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("Mode(%d).String(): expected %q, got %q", int(tt.mode), tt.want, got)
		}
	}
}

// ============================================================================
// Lifecycle transitions
// ============================================================================

func TestMachineHappyPath(t *testing.T) {
	m := NewMachine(nil)

	if m.Mode() != ModeBoot {
		t.Fatalf("Expected new machine in BOOT, got %v", m.Mode())
	}
	if !m.NetUp(t0) {
		t.Error("Expected NetUp to transition from BOOT")
	}
	if m.Mode() != ModeNetUp {
		t.Errorf("Expected NET_UP, got %v", m.Mode())
	}
	if !m.CommandSeen(t0) {
		t.Error("Expected CommandSeen to transition from NET_UP")
	}
	if m.Mode() != ModeClientOK {
		t.Errorf("Expected CLIENT_OK, got %v", m.Mode())
	}
	if !m.DriveProcessed(t0) {
		t.Error("Expected DriveProcessed to transition from CLIENT_OK")
	}
	if m.Mode() != ModeDriving {
		t.Errorf("Expected DRIVING, got %v", m.Mode())
	}
}

func TestMachineLinkLossAndRecovery(t *testing.T) {
	m := driveMachine()

	if !m.WatchdogExpired(t0) {
		t.Error("Expected WatchdogExpired to transition from DRIVING")
	}
	if m.Mode() != ModeLinkLost {
		t.Errorf("Expected LINK_LOST, got %v", m.Mode())
	}

	// A repeated expiry report changes nothing.
	if m.WatchdogExpired(t0) {
		t.Error("Expected WatchdogExpired to be ignored in LINK_LOST")
	}

	if !m.DriveProcessed(t0) {
		t.Error("Expected DriveProcessed to recover from LINK_LOST")
	}
	if m.Mode() != ModeDriving {
		t.Errorf("Expected DRIVING after recovery, got %v", m.Mode())
	}
}

func TestMachineInvalidEventsIgnored(t *testing.T) {
	tests := []struct {
		name  string
		setup func() *Machine
		event func(*Machine) bool
	}{
		{"NetUp outside BOOT", driveMachine, func(m *Machine) bool { return m.NetUp(t0) }},
		{"CommandSeen in BOOT", func() *Machine { return NewMachine(nil) }, func(m *Machine) bool { return m.CommandSeen(t0) }},
		{"CommandSeen while DRIVING", driveMachine, func(m *Machine) bool { return m.CommandSeen(t0) }},
		{"DriveProcessed in BOOT", func() *Machine { return NewMachine(nil) }, func(m *Machine) bool { return m.DriveProcessed(t0) }},
		{"DriveProcessed while DRIVING", driveMachine, func(m *Machine) bool { return m.DriveProcessed(t0) }},
		{"WatchdogExpired in CLIENT_OK", clientMachine, func(m *Machine) bool { return m.WatchdogExpired(t0) }},
		{"ResetRequested outside E_STOP", driveMachine, func(m *Machine) bool { return m.ResetRequested(t0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.setup()
			before := m.Mode()
			if tt.event(m) {
				t.Error("Expected event to be ignored")
			}
			if m.Mode() != before {
				t.Errorf("Expected mode to stay %v, got %v", before, m.Mode())
			}
		})
	}
}

// ============================================================================
// Emergency stop latching
// ============================================================================

func TestMachineEStopLatches(t *testing.T) {
	m := driveMachine()

	if !m.EStopped(t0) {
		t.Error("Expected EStopped to latch from DRIVING")
	}
	if m.Mode() != ModeEStop {
		t.Fatalf("Expected E_STOP, got %v", m.Mode())
	}

	// Nothing but reset gets out.
	if m.DriveProcessed(t0) || m.CommandSeen(t0) || m.WatchdogExpired(t0) || m.NetUp(t0) {
		t.Error("Expected all non-reset events to be ignored in E_STOP")
	}
	if m.EStopped(t0) {
		t.Error("Expected repeated EStopped to be a no-op")
	}
	if m.Mode() != ModeEStop {
		t.Errorf("Expected E_STOP to hold, got %v", m.Mode())
	}

	if !m.ResetRequested(t0) {
		t.Error("Expected ResetRequested to clear E_STOP")
	}
	if m.Mode() != ModeBoot {
		t.Errorf("Expected BOOT after reset, got %v", m.Mode())
	}
}

func TestMachineEStopFromEveryState(t *testing.T) {
	setups := []struct {
		name  string
		setup func() *Machine
	}{
		{"BOOT", func() *Machine { return NewMachine(nil) }},
		{"NET_UP", func() *Machine { m := NewMachine(nil); m.NetUp(t0); return m }},
		{"CLIENT_OK", clientMachine},
		{"DRIVING", driveMachine},
		{"LINK_LOST", func() *Machine { m := driveMachine(); m.WatchdogExpired(t0); return m }},
	}

	for _, tt := range setups {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.setup()
			if !m.EStopped(t0) {
				t.Error("Expected EStopped to latch")
			}
			if m.Mode() != ModeEStop {
				t.Errorf("Expected E_STOP, got %v", m.Mode())
			}
		})
	}
}

// ============================================================================
// Transition reporting
// ============================================================================

func TestMachineSinkReceivesTransitions(t *testing.T) {
	var seen []Transition
	m := NewMachine(func(tr Transition) { seen = append(seen, tr) })

	now := t0
	m.NetUp(now)
	now = now.Add(time.Second)
	m.CommandSeen(now)
	m.DriveProcessed(now)

	if len(seen) != 3 {
		t.Fatalf("Expected 3 transitions, got %d", len(seen))
	}

	want := []Transition{
		{From: ModeBoot, To: ModeNetUp, Reason: "network up", At: t0},
		{From: ModeNetUp, To: ModeClientOK, Reason: "client connected", At: t0.Add(time.Second)},
		{From: ModeClientOK, To: ModeDriving, Reason: "driving", At: t0.Add(time.Second)},
	}
	for i, tr := range seen {
		if tr != want[i] {
			t.Errorf("Transition %d: expected %+v, got %+v", i, want[i], tr)
		}
	}
}

func TestMachineIgnoredEventsNotReported(t *testing.T) {
	count := 0
	m := NewMachine(func(Transition) { count++ })

	m.DriveProcessed(t0)
	m.WatchdogExpired(t0)
	m.ResetRequested(t0)

	if count != 0 {
		t.Errorf("Expected no transitions reported, got %d", count)
	}
}

// ============================================================================
// Helpers
// ============================================================================

func clientMachine() *Machine {
	m := NewMachine(nil)
	m.NetUp(t0)
	m.CommandSeen(t0)
	return m
}

func driveMachine() *Machine {
	m := clientMachine()
	m.DriveProcessed(t0)
	return m
}
