// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

// Package mcu implements the framed serial protocol between the picolink
// daemon and the motor-controller microcontroller.
//
// A frame is START | length | payload | CRC16 | END, where the payload is
// a CBOR array [msg_type, payload_map] and the length byte counts the CBOR
// bytes. Everything between the framing bytes is byte-stuffed. The link is
// point to point, so frames carry no addressing.
package mcu

// Protocol framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Frame size limits
const (
	MaxFrameSize   = 64 // 5 overhead + 59 payload
	MaxPayloadSize = 59
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Message types - Commands (Daemon → MCU) 0x10-0x1F
const (
	MsgSetDrive    = 0x10
	MsgStop        = 0x11
	MsgSetStatus   = 0x12
	MsgPingRequest = 0x1F
)

// Message types - Telemetry (MCU → Daemon) 0x30-0x3F
const (
	MsgTelemetry    = 0x30
	MsgPingResponse = 0x3F
)

// Message types - Errors (MCU → Daemon) 0xE0-0xEF
const (
	MsgErrorInvalidCmd = 0xE0
	MsgErrorCRCReject  = 0xE1
)

// Decoder states (internal)
// No separate type state - the message type is embedded in the CBOR payload
const (
	stateIdle = iota
	stateLength
	statePayload
	stateCRC1
	stateCRC2
	stateComplete
)

// DriveLevelScale is the wire unit for motor levels: [-1.0, 1.0] maps to
// [-1000, 1000].
const DriveLevelScale = 1000

// StatusCode tells the MCU which banner and underglow pattern to show.
// Values track the robot mode lifecycle.
type StatusCode uint8

// Status code values
const (
	StatusBoot StatusCode = iota
	StatusNetUp
	StatusClientOK
	StatusDriving
	StatusLinkLost
	StatusEStop
)
