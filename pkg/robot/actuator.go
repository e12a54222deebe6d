// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package robot

import "github.com/picolink/picolink/internal/log"

// Actuator applies motor output to hardware. Implementations must treat
// Stop as an active brake, not merely zero drive.
type Actuator interface {
	Drive(left, right float64) error
	Stop() error
}

// BatteryReporter is implemented by actuators that can read pack voltage.
// The loop includes the reading in telemetry when available.
type BatteryReporter interface {
	BatteryMV() (int64, bool)
}

// NopActuator logs output at debug level and drives nothing. Used for bench
// runs without an MCU attached.
type NopActuator struct{}

func (NopActuator) Drive(left, right float64) error {
	log.Debug("drive", "left", left, "right", right)
	return nil
}

func (NopActuator) Stop() error {
	log.Debug("stop")
	return nil
}
