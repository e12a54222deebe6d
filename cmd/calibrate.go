// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package cmd

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/picolink/picolink/internal/config"
	"github.com/picolink/picolink/internal/log"
	"github.com/picolink/picolink/pkg/session"
	"github.com/picolink/picolink/pkg/wire"
)

var (
	calRobot string
	calPort  int
	calTrim  float64
	calLeft  float64
	calRight float64
	calNudge float64
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Show or change a robot's drive calibration",
	Long: `Read or write the steering trim and per-wheel scale of a robot.

Without value flags the current calibration is printed. With --trim,
--left or --right only the given fields are changed; the rest keep
their current values. --nudge-trim adds a delta to the robot's current
trim instead of replacing it, for walking the trim in while watching
the robot drive. The robot clamps what it accepts and persists the
result, so the values printed afterwards are what is actually in
effect.

The target robot is taken from --robot, else from the last robot used,
else from a broadcast discovery that must find exactly one robot.

Examples:
  picolink calibrate
  picolink calibrate --trim 0.04
  picolink calibrate --nudge-trim -0.01
  picolink calibrate --robot 192.168.1.50 --left 0.95 --right 1.0`,
	RunE: runCalibrate,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)

	calibrateCmd.Flags().StringVar(&calRobot, "robot", "", "Robot address, host[:port]")
	calibrateCmd.Flags().IntVar(&calPort, "port", config.DefaultPort, "UDP command port")
	calibrateCmd.Flags().Float64Var(&calTrim, "trim", 0, "Steering trim, -1..1")
	calibrateCmd.Flags().Float64Var(&calLeft, "left", 0, "Left wheel scale, 0..1")
	calibrateCmd.Flags().Float64Var(&calRight, "right", 0, "Right wheel scale, 0..1")
	calibrateCmd.Flags().Float64Var(&calNudge, "nudge-trim", 0, "Add a delta to the current steering trim")
	calibrateCmd.MarkFlagsMutuallyExclusive("trim", "nudge-trim")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	addr, info, err := resolveTarget(ctx, calRobot, calPort)
	if err != nil {
		return err
	}
	if info != nil {
		fmt.Printf("Robot: %s (id %d) at %s\n", info.Name, info.RobotID, addr)
	} else {
		fmt.Printf("Robot: %s\n", addr)
	}

	cur, err := session.GetCalibration(ctx, addr, 2*time.Second)
	if err != nil {
		return fmt.Errorf("read calibration: %w", err)
	}

	changed := cmd.Flags().Changed("trim") || cmd.Flags().Changed("left") ||
		cmd.Flags().Changed("right") || cmd.Flags().Changed("nudge-trim")
	if !changed {
		printCalibration("Current", cur)
		return nil
	}

	want := cur
	if cmd.Flags().Changed("trim") {
		want.SteeringTrim = calTrim
	}
	if cmd.Flags().Changed("nudge-trim") {
		want.SteeringTrim = cur.SteeringTrim + calNudge
	}
	if cmd.Flags().Changed("left") {
		want.MotorLeftScale = calLeft
	}
	if cmd.Flags().Changed("right") {
		want.MotorRightScale = calRight
	}

	applied, err := session.SetCalibration(ctx, addr, want, 2*time.Second)
	if err != nil {
		return fmt.Errorf("write calibration: %w", err)
	}
	printCalibration("Previous", cur)
	printCalibration("Applied", applied)
	return nil
}

func printCalibration(label string, c wire.Calibration) {
	fmt.Printf("%s calibration:\n", label)
	fmt.Printf("  steering trim: %+.3f\n", c.SteeringTrim)
	fmt.Printf("  left scale:    %.3f\n", c.MotorLeftScale)
	fmt.Printf("  right scale:   %.3f\n", c.MotorRightScale)
}

// resolveTarget finds the robot to talk to: explicit flag, then the cached
// address from the last run, then broadcast discovery. The resolved address
// is written back to the cache for the next command.
func resolveTarget(ctx context.Context, explicit string, port int) (*net.UDPAddr, *wire.RobotInfo, error) {
	var path string
	var st config.ClientState
	if p, err := config.ClientStatePath(); err == nil {
		path = p
		st = config.LoadClientState(path)
	}

	addr, info, err := session.Resolve(ctx, session.ResolveOptions{
		Explicit: explicit,
		Cached:   st.LastAddr,
		Port:     port,
	})
	if err != nil {
		return nil, nil, err
	}

	if path != "" && info != nil {
		st.Remember(info.RobotID, info.Name, addr.String(), info.Hostname, time.Now())
		if err := config.SaveClientState(path, st); err != nil {
			log.Debug("client state not saved", "err", err)
		}
	}
	return addr, info, nil
}
