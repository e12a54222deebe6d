// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

// Package drive converts throttle/steer samples into per-side motor levels
// for a two-wheel differential-drive vehicle, and maintains the robot's
// persisted calibration record.
package drive

import "math"

// Output holds per-side motor levels in [-1, 1].
type Output struct {
	Left  float64
	Right float64
}

// Mix computes motor levels from one throttle/steer sample and the current
// calibration. Trim is added to steer before the throttle/steer sum so it
// shifts the effective heading uniformly at every throttle level; per-side
// scale is applied after clamping so motor-strength compensation cannot
// widen the clamp boundary. Pure and total: any inputs yield an Output
// with both sides in [-1, 1].
func Mix(throttle, steer float64, cal Calibration) Output {
	effectiveSteer := clamp(steer+cal.SteeringTrim, -1, 1)
	return Output{
		Left:  clamp(throttle+effectiveSteer, -1, 1) * cal.LeftScale,
		Right: clamp(throttle-effectiveSteer, -1, 1) * cal.RightScale,
	}
}

// Zero returns stopped motors. It is the only output permitted while the
// robot is in LINK_LOST or E_STOP.
func Zero() Output {
	return Output{}
}

// IsZero reports whether both sides are exactly stopped.
func (o Output) IsZero() bool {
	return o.Left == 0 && o.Right == 0
}

// ApplyDeadZone suppresses values closer to center than threshold. The
// cutoff is hard: values at or past the threshold pass through unscaled,
// matching the feel drivers are calibrated to.
func ApplyDeadZone(v, threshold float64) float64 {
	if math.Abs(v) < threshold {
		return 0
	}
	return v
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
