// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package mcu

import (
	"fmt"
	"time"
)

// Decoder is the frame decoder state machine. Feed it one byte at a time;
// it resynchronizes on the next START byte after any error or mid-stream
// garbage.
type Decoder struct {
	state       int
	buffer      []byte
	bufferIndex int
	escapeNext  bool
	frame       *Frame
	rawBuffer   []byte // raw bytes including framing, for diagnostics
}

// NewDecoder creates a new frame decoder.
func NewDecoder() *Decoder {
	return &Decoder{
		state:     stateIdle,
		buffer:    make([]byte, MaxFrameSize),
		rawBuffer: make([]byte, 0, MaxFrameSize*2),
	}
}

// Reset returns the decoder to idle, discarding any partial frame.
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.bufferIndex = 0
	d.escapeNext = false
	d.frame = nil
	d.rawBuffer = d.rawBuffer[:0]
}

// RawBytes returns the raw bytes accumulated since the last reset.
func (d *Decoder) RawBytes() []byte {
	return d.rawBuffer
}

// DecodeByte processes a single byte. It returns a completed frame, nil
// while a frame is still in progress, or an error when the current frame
// is abandoned.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	d.rawBuffer = append(d.rawBuffer, b)

	if d.escapeNext {
		d.escapeNext = false
		return d.consume(b ^ EscXor)
	}

	switch b {
	case EscByte:
		d.escapeNext = true
		return nil, nil
	case StartByte:
		// A bare START always begins a fresh frame, even mid-frame: the
		// previous frame was torn and cannot complete.
		d.restart()
		return nil, nil
	case EndByte:
		return d.finish()
	}

	return d.consume(b)
}

func (d *Decoder) restart() {
	d.state = stateLength
	d.bufferIndex = 0
	d.escapeNext = false
	d.frame = nil
	d.rawBuffer = append(d.rawBuffer[:0], StartByte)
}

func (d *Decoder) finish() (*Frame, error) {
	if d.state != stateComplete {
		state := d.state
		d.Reset()
		return nil, fmt.Errorf("unexpected END byte in state %d", state)
	}

	frame := d.frame
	calculated := CalculateCRC(d.buffer[:d.bufferIndex])
	if frame.crc != calculated {
		d.Reset()
		return nil, fmt.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", calculated, frame.crc)
	}

	frame.timestamp = time.Now()
	d.Reset()
	return frame, nil
}

func (d *Decoder) consume(b byte) (*Frame, error) {
	switch d.state {
	case stateIdle:
		// Waiting for START byte
		return nil, nil

	case stateLength:
		if b > MaxPayloadSize {
			d.Reset()
			return nil, fmt.Errorf("invalid length: %d (max %d)", b, MaxPayloadSize)
		}
		d.frame = &Frame{length: b, cborPayload: make([]byte, 0, b)}
		d.buffer[d.bufferIndex] = b
		d.bufferIndex++
		if b == 0 {
			d.state = stateCRC1
		} else {
			d.state = statePayload
		}
		return nil, nil

	case statePayload:
		if d.bufferIndex >= MaxFrameSize {
			d.Reset()
			return nil, fmt.Errorf("buffer overflow: frame exceeds max size")
		}
		d.frame.cborPayload = append(d.frame.cborPayload, b)
		d.buffer[d.bufferIndex] = b
		d.bufferIndex++
		if len(d.frame.cborPayload) >= int(d.frame.length) {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.frame.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.frame.crc |= uint16(b)
		d.state = stateComplete
		return nil, nil

	case stateComplete:
		d.Reset()
		return nil, fmt.Errorf("data byte after CRC, expected END")

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}
