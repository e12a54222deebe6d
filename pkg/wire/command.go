// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

// Package wire implements the picolink LAN control protocol.
//
// Commands travel as JSON datagrams on a single well-known UDP port. Every
// message carries a "cmd" discriminator; the remaining fields depend on the
// command:
//
//	drive           throttle, steer (numbers), seq, t_ms (integers)
//	stop            discriminator only, immediate zero output
//	estop           discriminator only, latched stop
//	reset           discriminator only, clears a latched stop
//	discover        discriminator only, answered with a robot_info record
//	get_calibration discriminator only, answered with a calibration record
//	set_calibration nested "calibration" object with steering_trim,
//	                motor_left_scale, motor_right_scale
//
// Robot to peer traffic is best effort: Ack echoes the last processed drive
// sequence and the current mode, RobotInfo answers discovery, and
// CalibrationReply answers calibration reads.
package wire

// Wire discriminator values for the "cmd" field.
const (
	CmdDrive          = "drive"
	CmdStop           = "stop"
	CmdEStop          = "estop"
	CmdReset          = "reset"
	CmdDiscover       = "discover"
	CmdGetCalibration = "get_calibration"
	CmdSetCalibration = "set_calibration"
)

// MaxDatagramSize bounds a single command datagram. Commands are small;
// anything larger is not ours.
const MaxDatagramSize = 1024

// Command is one decoded wire message. The concrete type carries the
// payload; Kind returns the wire discriminator. The set of implementations
// is closed: dispatch sites switch over all of them.
type Command interface {
	Kind() string
}

// Drive carries one throttle/steer sample. Throttle and steer are clamped
// to [-1, 1] at decode time, never rejected. SentAtMs is the sender's
// millisecond timestamp and is diagnostic only.
type Drive struct {
	Throttle float64
	Steer    float64
	Seq      uint32
	SentAtMs int64
}

// Stop requests an immediate zero output without changing mode.
type Stop struct{}

// EStop requests a latched stop. Only Reset clears it.
type EStop struct{}

// Reset clears a latched stop and reboots the session lifecycle.
type Reset struct{}

// DiscoverRequest asks any listening robot to identify itself.
type DiscoverRequest struct{}

// GetCalibration asks for the robot's current calibration record.
type GetCalibration struct{}

// SetCalibration writes a calibration record. The robot clamps values to
// their documented ranges before applying.
type SetCalibration struct {
	Calibration Calibration
}

func (Drive) Kind() string           { return CmdDrive }
func (Stop) Kind() string            { return CmdStop }
func (EStop) Kind() string           { return CmdEStop }
func (Reset) Kind() string           { return CmdReset }
func (DiscoverRequest) Kind() string { return CmdDiscover }
func (GetCalibration) Kind() string  { return CmdGetCalibration }
func (SetCalibration) Kind() string  { return CmdSetCalibration }

// Calibration is the wire form of a robot's trim and scale record.
type Calibration struct {
	SteeringTrim    float64 `json:"steering_trim"`
	MotorLeftScale  float64 `json:"motor_left_scale"`
	MotorRightScale float64 `json:"motor_right_scale"`
}
