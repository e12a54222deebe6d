// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/picolink/picolink/internal/config"
	"github.com/picolink/picolink/internal/log"
	"github.com/picolink/picolink/pkg/session"
)

var (
	driveRobot string
	drivePort  int
	driveRate  int
)

var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Drive a robot interactively",
	Long: `Open the interactive driving console.

Without --robot the console scans the network, connects straight away
when exactly one robot answers, and otherwise shows a picker. The last
robot used is tried first on later runs.

Keys while driving:
  up/down     throttle +-0.1
  left/right  steering +-0.1
  space       stop (zero input)
  e           emergency stop
  r           clear emergency stop
  t / T       nudge steering trim
  s           save trim to the robot
  g           re-read calibration from the robot
  q           quit (sends a final stop)`,
	RunE: runDrive,
}

func init() {
	rootCmd.AddCommand(driveCmd)

	driveCmd.Flags().StringVar(&driveRobot, "robot", "", "Robot address, host[:port]; skips discovery")
	driveCmd.Flags().IntVar(&drivePort, "port", config.DefaultPort, "UDP command port")
	driveCmd.Flags().IntVar(&driveRate, "rate", session.DefaultRateHz, "Drive command rate in Hz")
}

func runDrive(cmd *cobra.Command, args []string) error {
	var st config.ClientState
	statePath, stateErr := config.ClientStatePath()
	if stateErr == nil {
		st = config.LoadClientState(statePath)
	}

	m := newDriveModel(drivePort, driveRate, driveRobot, st.LastAddr)
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	dm := finalDriveModel(final)
	if dm == nil {
		return nil
	}
	if dm.mgr != nil {
		// Close streams a final stop so the robot is not left coasting
		// into its watchdog.
		if err := dm.mgr.Close(); err != nil {
			log.Debug("session close", "err", err)
		}
	}
	if stateErr == nil && dm.target.Addr != nil && dm.target.Info.RobotID != 0 {
		st.Remember(dm.target.Info.RobotID, dm.target.Info.Name,
			dm.target.Addr.String(), dm.target.Info.Hostname, time.Now())
		if err := config.SaveClientState(statePath, st); err != nil {
			log.Debug("client state not saved", "err", err)
		}
	}
	return nil
}

// finalDriveModel unwraps the model returned by the program. Key handlers
// return the model by pointer, so both forms show up here.
func finalDriveModel(m tea.Model) *driveModel {
	switch v := m.(type) {
	case driveModel:
		return &v
	case *driveModel:
		return v
	}
	return nil
}
