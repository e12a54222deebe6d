// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed reports a datagram that is not valid JSON, lacks a
	// required field, or carries a field of the wrong type.
	ErrMalformed = errors.New("malformed command")

	// ErrUnknownCommand reports a well-formed datagram whose cmd tag is
	// not recognized.
	ErrUnknownCommand = errors.New("unknown command")
)

// driveFields uses pointers so missing fields are distinguishable from
// zero values.
type driveFields struct {
	Throttle *float64 `json:"throttle"`
	Steer    *float64 `json:"steer"`
	Seq      *uint32  `json:"seq"`
	SentAtMs *int64   `json:"t_ms"`
}

type setCalibrationFields struct {
	Calibration *struct {
		SteeringTrim    *float64 `json:"steering_trim"`
		MotorLeftScale  *float64 `json:"motor_left_scale"`
		MotorRightScale *float64 `json:"motor_right_scale"`
	} `json:"calibration"`
}

// Decode parses one datagram into a Command. It validates the presence and
// type of every required field; it never mutates state and never blocks.
func Decode(data []byte) (Command, error) {
	var env struct {
		Cmd *string `json:"cmd"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Cmd == nil {
		return nil, fmt.Errorf("%w: missing cmd field", ErrMalformed)
	}

	switch *env.Cmd {
	case CmdDrive:
		return decodeDrive(data)
	case CmdStop:
		return Stop{}, nil
	case CmdEStop:
		return EStop{}, nil
	case CmdReset:
		return Reset{}, nil
	case CmdDiscover:
		return DiscoverRequest{}, nil
	case CmdGetCalibration:
		return GetCalibration{}, nil
	case CmdSetCalibration:
		return decodeSetCalibration(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, *env.Cmd)
	}
}

func decodeDrive(data []byte) (Command, error) {
	var f driveFields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: drive: %v", ErrMalformed, err)
	}
	if f.Throttle == nil || f.Steer == nil || f.Seq == nil || f.SentAtMs == nil {
		return nil, fmt.Errorf("%w: drive missing required field", ErrMalformed)
	}
	return Drive{
		Throttle: clamp(*f.Throttle, -1, 1),
		Steer:    clamp(*f.Steer, -1, 1),
		Seq:      *f.Seq,
		SentAtMs: *f.SentAtMs,
	}, nil
}

func decodeSetCalibration(data []byte) (Command, error) {
	var f setCalibrationFields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: set_calibration: %v", ErrMalformed, err)
	}
	if f.Calibration == nil {
		return nil, fmt.Errorf("%w: set_calibration missing calibration object", ErrMalformed)
	}
	c := f.Calibration
	if c.SteeringTrim == nil || c.MotorLeftScale == nil || c.MotorRightScale == nil {
		return nil, fmt.Errorf("%w: set_calibration missing calibration field", ErrMalformed)
	}
	return SetCalibration{
		Calibration: Calibration{
			SteeringTrim:    *c.SteeringTrim,
			MotorLeftScale:  *c.MotorLeftScale,
			MotorRightScale: *c.MotorRightScale,
		},
	}, nil
}

// Encode renders a Command as a datagram. It is total for the closed
// command set: these structs contain only plain fields, so Marshal cannot
// fail.
func Encode(cmd Command) []byte {
	var v any
	switch c := cmd.(type) {
	case Drive:
		v = struct {
			Cmd      string  `json:"cmd"`
			Throttle float64 `json:"throttle"`
			Steer    float64 `json:"steer"`
			Seq      uint32  `json:"seq"`
			SentAtMs int64   `json:"t_ms"`
		}{CmdDrive, c.Throttle, c.Steer, c.Seq, c.SentAtMs}
	case SetCalibration:
		v = struct {
			Cmd         string      `json:"cmd"`
			Calibration Calibration `json:"calibration"`
		}{CmdSetCalibration, c.Calibration}
	default:
		v = struct {
			Cmd string `json:"cmd"`
		}{cmd.Kind()}
	}
	data, _ := json.Marshal(v)
	return data
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
