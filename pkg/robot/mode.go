// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

// Package robot holds the on-robot core: the connection state machine, the
// fixed-period control loop, and the robot's identity.
package robot

// Mode is the robot's externally visible lifecycle state. Exactly one live
// value exists per robot; only the control loop mutates it, through the
// Machine's transition methods.
type Mode int

// Lifecycle states
const (
	ModeBoot Mode = iota
	ModeNetUp
	ModeClientOK
	ModeDriving
	ModeLinkLost
	ModeEStop
)

// String returns the wire name carried in acks and shown to operators.
func (m Mode) String() string {
	switch m {
	case ModeBoot:
		return "BOOT"
	case ModeNetUp:
		return "NET_UP"
	case ModeClientOK:
		return "CLIENT_OK"
	case ModeDriving:
		return "DRIVING"
	case ModeLinkLost:
		return "LINK_LOST"
	case ModeEStop:
		return "E_STOP"
	default:
		return "UNKNOWN"
	}
}
