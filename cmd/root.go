// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/picolink/picolink/internal/log"
	"github.com/picolink/picolink/pkg/robot"
)

var (
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "picolink",
	Short: "Pico-Go robot command link",
	Long: `Picolink - drive and manage Pico-Go wheeled robots over UDP.

The robot side runs as a daemon ("picolink robot") next to the motor MCU
and stops the wheels whenever the command stream pauses for longer than
its watchdog timeout. The operator side discovers robots on the local
network, streams drive commands at a fixed rate, and tunes steering
calibration.

Typical use:
  picolink robot --id 3 --mcu-port /dev/ttyACM0    (on the robot)
  picolink drive                                    (on a laptop)
  picolink discover                                 (list robots)`,
	Version: robot.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Init(logLevel, logJSON)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Force JSON log output even on a terminal")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
