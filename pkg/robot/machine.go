// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package robot

import "time"

// Transition describes one state change, stamped with the loop tick time
// that caused it.
type Transition struct {
	From   Mode
	To     Mode
	Reason string
	At     time.Time
}

// TransitionSink receives every state change synchronously, on the control
// loop goroutine. Keep it fast; it runs inside the tick.
type TransitionSink func(Transition)

// Machine is the connection state machine. It is not safe for concurrent
// use; the control loop owns it. Invalid events for the current state are
// ignored, so callers can report what happened without checking the mode
// first.
type Machine struct {
	mode Mode
	sink TransitionSink
}

// NewMachine returns a machine in ModeBoot. sink may be nil.
func NewMachine(sink TransitionSink) *Machine {
	return &Machine{mode: ModeBoot, sink: sink}
}

// Mode returns the current state.
func (m *Machine) Mode() Mode {
	return m.mode
}

// NetUp reports that the command socket is bound and the robot is
// reachable. Valid only from ModeBoot.
func (m *Machine) NetUp(now time.Time) bool {
	if m.mode != ModeBoot {
		return false
	}
	return m.transition(ModeNetUp, "network up", now)
}

// CommandSeen reports a valid command from a peer. The first one promotes
// ModeNetUp to ModeClientOK. Discovery broadcasts do not establish a
// session and must not be reported here.
func (m *Machine) CommandSeen(now time.Time) bool {
	if m.mode != ModeNetUp {
		return false
	}
	return m.transition(ModeClientOK, "client connected", now)
}

// DriveProcessed reports that a valid drive command was applied. It enters
// ModeDriving from ModeClientOK, and restores it from ModeLinkLost when
// command flow resumes.
func (m *Machine) DriveProcessed(now time.Time) bool {
	switch m.mode {
	case ModeClientOK:
		return m.transition(ModeDriving, "driving", now)
	case ModeLinkLost:
		return m.transition(ModeDriving, "link recovered", now)
	}
	return false
}

// WatchdogExpired reports that too long has passed since the last drive
// command. Valid only while ModeDriving.
func (m *Machine) WatchdogExpired(now time.Time) bool {
	if m.mode != ModeDriving {
		return false
	}
	return m.transition(ModeLinkLost, "watchdog expired", now)
}

// EStopped latches the emergency stop. It fires from any state and stays
// latched until ResetRequested; repeated stops are no-ops.
func (m *Machine) EStopped(now time.Time) bool {
	if m.mode == ModeEStop {
		return false
	}
	return m.transition(ModeEStop, "emergency stop", now)
}

// ResetRequested clears a latched emergency stop, returning the machine to
// ModeBoot so the loop re-runs its bring-up. Only valid from ModeEStop; a
// reboot is the other way out.
func (m *Machine) ResetRequested(now time.Time) bool {
	if m.mode != ModeEStop {
		return false
	}
	return m.transition(ModeBoot, "reset", now)
}

func (m *Machine) transition(to Mode, reason string, now time.Time) bool {
	from := m.mode
	m.mode = to
	if m.sink != nil {
		m.sink(Transition{From: from, To: to, Reason: reason, At: now})
	}
	return true
}
