// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

// Package config loads picolink configuration files and supplies defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Robot daemon defaults. The watchdog timeout has drifted between
// deployments (200-500 ms); 500 ms is the current shipped value.
const (
	DefaultPort              = 8765
	DefaultControlRateHz     = 30
	DefaultWatchdogTimeoutMs = 500
	DefaultDeadZone          = 0.08
	DefaultMCUBaud           = 115200
)

// RobotConfig holds the on-robot daemon settings.
type RobotConfig struct {
	RobotID           int     `json:"robot_id"`
	Port              int     `json:"port"`
	ControlRateHz     int     `json:"control_rate_hz"`
	WatchdogTimeoutMs int     `json:"watchdog_timeout_ms"`
	DeadZone          float64 `json:"dead_zone"`
	CalibrationPath   string  `json:"calibration_path"`
	MCUPort           string  `json:"mcu_port"`
	MCUBaud           int     `json:"mcu_baud"`
	WirelessIface     string  `json:"wireless_iface"`
}

// DefaultRobotConfig returns the daemon settings used when no config file
// is present.
func DefaultRobotConfig() RobotConfig {
	return RobotConfig{
		RobotID:           1,
		Port:              DefaultPort,
		ControlRateHz:     DefaultControlRateHz,
		WatchdogTimeoutMs: DefaultWatchdogTimeoutMs,
		DeadZone:          DefaultDeadZone,
		CalibrationPath:   "calibration.json",
		MCUPort:           "",
		MCUBaud:           DefaultMCUBaud,
		WirelessIface:     "wlan0",
	}
}

// LoadRobotConfig reads a JSON config file over the defaults. Fields absent
// from the file keep their default values.
func LoadRobotConfig(path string) (RobotConfig, error) {
	cfg := DefaultRobotConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports configuration values the daemon cannot run with.
func (c RobotConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.ControlRateHz <= 0 {
		return fmt.Errorf("control_rate_hz must be positive, got %d", c.ControlRateHz)
	}
	if c.WatchdogTimeoutMs <= 0 {
		return fmt.Errorf("watchdog_timeout_ms must be positive, got %d", c.WatchdogTimeoutMs)
	}
	if c.DeadZone < 0 || c.DeadZone >= 1 {
		return fmt.Errorf("dead_zone %v out of range [0,1)", c.DeadZone)
	}
	return nil
}
