// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package mcu

import "time"

// Frame is one protocol message. Frames coming off the wire keep their raw
// CBOR bytes and parse lazily on first access; frames built locally carry
// parsed values and are encoded on demand.
type Frame struct {
	length      uint8
	cborPayload []byte
	crc         uint16
	timestamp   time.Time

	msgType    uint8
	payloadMap map[int]interface{}
	parsed     bool
	parseErr   error
}

// NewFrame creates a frame from a message type and payload map. A nil map
// encodes as an empty payload.
func NewFrame(msgType uint8, payload map[int]interface{}) *Frame {
	return &Frame{
		msgType:    msgType,
		payloadMap: payload,
		parsed:     true,
		timestamp:  time.Now(),
	}
}

// NewRawFrame creates a frame from wire-side fields. The CBOR payload is
// parsed lazily on first access.
func NewRawFrame(length uint8, cborPayload []byte, crc uint16) *Frame {
	return &Frame{
		length:      length,
		cborPayload: cborPayload,
		crc:         crc,
		timestamp:   time.Now(),
	}
}

// Length returns the payload length byte.
func (f *Frame) Length() uint8 {
	return f.length
}

// ensureParsed decodes the CBOR payload once, caching the result.
func (f *Frame) ensureParsed() {
	if f.parsed {
		return
	}
	f.parsed = true
	f.msgType, f.payloadMap, f.parseErr = ParseCBORMessage(f.cborPayload)
}

// Type returns the message type.
func (f *Frame) Type() uint8 {
	f.ensureParsed()
	return f.msgType
}

// PayloadMap returns the decoded payload map, nil for empty payloads.
func (f *Frame) PayloadMap() map[int]interface{} {
	f.ensureParsed()
	return f.payloadMap
}

// ParseError returns the payload decode error, if any.
func (f *Frame) ParseError() error {
	f.ensureParsed()
	return f.parseErr
}

// Timestamp returns when the frame was decoded or created.
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// CRC returns the received checksum. Zero for locally built frames.
func (f *Frame) CRC() uint16 {
	return f.crc
}
