// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package mcu

import (
	"fmt"
	"sync/atomic"

	"go.bug.st/serial"
)

// SerialActuator drives the motor MCU over a serial port. Command methods
// are called from the control loop only; a companion goroutine reads the
// return channel (telemetry, ping responses, error frames) so reads never
// touch the control path.
type SerialActuator struct {
	port serial.Port
	done chan struct{}

	battery    atomic.Int64 // millivolts, negative until first telemetry
	uptimeMs   atomic.Uint64
	decodeErrs atomic.Uint64
	mcuErrs    atomic.Uint64
}

// OpenSerialActuator opens the MCU link at 8N1 and starts the reader.
func OpenSerialActuator(portName string, baud int) (*SerialActuator, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open MCU port %s: %w", portName, err)
	}

	a := &SerialActuator{port: port, done: make(chan struct{})}
	a.battery.Store(-1)
	go a.readLoop()
	return a, nil
}

// Drive sends one SET_DRIVE frame.
func (a *SerialActuator) Drive(left, right float64) error {
	return a.send(NewDriveFrame(left, right))
}

// Stop sends a STOP frame; the MCU actively brakes.
func (a *SerialActuator) Stop() error {
	return a.send(NewStopFrame())
}

// SetStatus updates the MCU's LCD banner and underglow.
func (a *SerialActuator) SetStatus(code StatusCode, color [3]uint8) error {
	return a.send(NewStatusFrame(code, color))
}

// Ping requests an uptime report.
func (a *SerialActuator) Ping() error {
	return a.send(NewPingFrame())
}

// BatteryMV returns the last reported battery voltage, and whether the
// MCU has reported one yet.
func (a *SerialActuator) BatteryMV() (int64, bool) {
	mv := a.battery.Load()
	return mv, mv >= 0
}

// UptimeMs returns the MCU uptime from the last ping response.
func (a *SerialActuator) UptimeMs() uint64 {
	return a.uptimeMs.Load()
}

// ErrorCounts returns decode errors seen on the return channel and error
// frames reported by the MCU.
func (a *SerialActuator) ErrorCounts() (decode, reported uint64) {
	return a.decodeErrs.Load(), a.mcuErrs.Load()
}

// Close shuts the port and waits for the reader to drain.
func (a *SerialActuator) Close() error {
	err := a.port.Close()
	<-a.done
	return err
}

func (a *SerialActuator) send(f *Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	if _, err := a.port.Write(data); err != nil {
		return fmt.Errorf("write MCU frame: %w", err)
	}
	return nil
}

func (a *SerialActuator) readLoop() {
	defer close(a.done)

	dec := NewDecoder()
	buf := make([]byte, MaxFrameSize)
	for {
		n, err := a.port.Read(buf)
		if err != nil {
			return
		}
		for _, b := range buf[:n] {
			frame, err := dec.DecodeByte(b)
			if err != nil {
				a.decodeErrs.Add(1)
				continue
			}
			if frame != nil {
				a.handleFrame(frame)
			}
		}
	}
}

func (a *SerialActuator) handleFrame(f *Frame) {
	switch f.Type() {
	case MsgTelemetry:
		if t, ok := ParseTelemetry(f); ok {
			a.battery.Store(t.BatteryMV)
		}
	case MsgPingResponse:
		if up, ok := ParsePingResponse(f); ok {
			a.uptimeMs.Store(up)
		}
	case MsgErrorInvalidCmd, MsgErrorCRCReject:
		a.mcuErrs.Add(1)
	}
}
