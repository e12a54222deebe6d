// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package mcu

import "math"

// Frame builder functions create Frame structs ready for encoding, with
// the payload keys the MCU firmware expects.

// NewDriveFrame creates a SET_DRIVE frame (0x10). Motor levels in
// [-1.0, 1.0] travel as signed milli-units; out-of-range values are
// clamped.
//
// Payload: 0 => left milli, 1 => right milli.
func NewDriveFrame(left, right float64) *Frame {
	return NewFrame(MsgSetDrive, map[int]interface{}{
		0: DriveLevelMilli(left),
		1: DriveLevelMilli(right),
	})
}

// NewStopFrame creates a STOP frame (0x11). The MCU actively brakes both
// motors.
func NewStopFrame() *Frame {
	return NewFrame(MsgStop, nil)
}

// NewStatusFrame creates a SET_STATUS frame (0x12) driving the MCU's LCD
// banner and underglow LEDs.
//
// Payload: 0 => status code, 1 => red, 2 => green, 3 => blue.
func NewStatusFrame(code StatusCode, color [3]uint8) *Frame {
	return NewFrame(MsgSetStatus, map[int]interface{}{
		0: uint64(code),
		1: uint64(color[0]),
		2: uint64(color[1]),
		3: uint64(color[2]),
	})
}

// NewPingFrame creates a PING_REQUEST frame (0x1F). The MCU responds with
// PING_RESPONSE containing its uptime.
func NewPingFrame() *Frame {
	return NewFrame(MsgPingRequest, nil)
}

// DriveLevelMilli converts a motor level to wire milli-units.
func DriveLevelMilli(v float64) int64 {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return int64(math.Round(v * DriveLevelScale))
}

// Telemetry is the periodic MCU report.
type Telemetry struct {
	BatteryMV  int64
	LeftMilli  int64
	RightMilli int64
}

// ParseTelemetry extracts a TELEMETRY payload (0x30).
//
// Payload: 0 => battery mV, 1 => left measured milli, 2 => right measured
// milli.
func ParseTelemetry(f *Frame) (Telemetry, bool) {
	if f.Type() != MsgTelemetry {
		return Telemetry{}, false
	}
	m := f.PayloadMap()
	battery, ok := GetMapInt(m, 0)
	if !ok {
		return Telemetry{}, false
	}
	left, _ := GetMapInt(m, 1)
	right, _ := GetMapInt(m, 2)
	return Telemetry{BatteryMV: battery, LeftMilli: left, RightMilli: right}, true
}

// ParsePingResponse extracts the uptime from a PING_RESPONSE payload
// (0x3F).
func ParsePingResponse(f *Frame) (uptimeMs uint64, ok bool) {
	if f.Type() != MsgPingResponse {
		return 0, false
	}
	return GetMapUint(f.PayloadMap(), 0)
}
