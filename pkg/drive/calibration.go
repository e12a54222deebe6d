// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package drive

// Calibration bounds. Writes outside these ranges are clamped to the
// nearest bound, never rejected, so a driver's correction attempt is not
// silently discarded.
const (
	TrimMin  = -0.5
	TrimMax  = 0.5
	ScaleMin = 0.5
	ScaleMax = 1.0
)

// CalibrationVersion is the persisted record format version.
const CalibrationVersion = 1

// Calibration compensates for mechanical bias (trim) and motor strength
// asymmetry (per-side scale).
type Calibration struct {
	SteeringTrim float64 `json:"steering_trim"`
	LeftScale    float64 `json:"motor_left_scale"`
	RightScale   float64 `json:"motor_right_scale"`
	Version      uint32  `json:"version"`
}

// DefaultCalibration is the record used on first boot and whenever the
// persisted record cannot be read.
func DefaultCalibration() Calibration {
	return Calibration{
		SteeringTrim: 0,
		LeftScale:    1.0,
		RightScale:   1.0,
		Version:      CalibrationVersion,
	}
}

// Clamped returns the record with every field forced into its documented
// range.
func (c Calibration) Clamped() Calibration {
	return Calibration{
		SteeringTrim: clamp(c.SteeringTrim, TrimMin, TrimMax),
		LeftScale:    clamp(c.LeftScale, ScaleMin, ScaleMax),
		RightScale:   clamp(c.RightScale, ScaleMin, ScaleMax),
		Version:      c.Version,
	}
}
