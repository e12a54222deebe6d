// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/picolink/picolink/internal/config"
	"github.com/picolink/picolink/internal/log"
	"github.com/picolink/picolink/pkg/drive"
	"github.com/picolink/picolink/pkg/mcu"
	"github.com/picolink/picolink/pkg/robot"
)

// Below this the Pico's 2S pack is close to empty and the motors brown out.
const lowBatteryMV = 6500

var (
	robotConfigPath string
	robotID         int
	robotPort       int
	robotRate       int
	robotWatchdogMs int
	robotDeadZone   float64
	robotCalPath    string
	robotMCUPort    string
	robotMCUBaud    int
	robotIface      string
	robotNoMCU      bool
)

var robotCmd = &cobra.Command{
	Use:   "robot",
	Short: "Run the on-robot control daemon",
	Long: `Run the control daemon on the robot itself.

The daemon binds the UDP command port, announces the robot to discovery
probes, mixes incoming drive commands into per-wheel motor levels and
forwards them to the motor MCU over serial. If no valid drive command
arrives within the watchdog timeout the wheels are stopped until the
operator resumes.

Flags override the matching fields of the JSON config file. Without
--mcu-port (or with --no-mcu) the daemon runs headless and only logs
the motor levels it would apply, which is useful on a dev machine.

Exit codes:
  0 - clean shutdown (SIGINT/SIGTERM)
  1 - startup or runtime failure`,
	RunE: runRobot,
}

func init() {
	rootCmd.AddCommand(robotCmd)

	robotCmd.Flags().StringVarP(&robotConfigPath, "config", "c", "", "JSON config file")
	robotCmd.Flags().IntVar(&robotID, "id", 0, "Robot id, 1-8 for the named fleet")
	robotCmd.Flags().IntVar(&robotPort, "port", 0, "UDP command port")
	robotCmd.Flags().IntVar(&robotRate, "rate", 0, "Control loop rate in Hz")
	robotCmd.Flags().IntVar(&robotWatchdogMs, "watchdog-ms", 0, "Watchdog timeout in milliseconds")
	robotCmd.Flags().Float64Var(&robotDeadZone, "dead-zone", 0, "Stick dead zone, 0..1")
	robotCmd.Flags().StringVar(&robotCalPath, "calibration", "", "Calibration file path")
	robotCmd.Flags().StringVar(&robotMCUPort, "mcu-port", "", "Motor MCU serial device, e.g. /dev/ttyACM0")
	robotCmd.Flags().IntVar(&robotMCUBaud, "mcu-baud", 0, "Motor MCU baud rate")
	robotCmd.Flags().StringVar(&robotIface, "iface", "", "Wireless interface for RSSI reporting")
	robotCmd.Flags().BoolVar(&robotNoMCU, "no-mcu", false, "Run without motor hardware")
}

func runRobot(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultRobotConfig()
	if robotConfigPath != "" {
		var err error
		cfg, err = config.LoadRobotConfig(robotConfigPath)
		if err != nil {
			return err
		}
	}
	applyRobotFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	identity := robot.IdentityFor(cfg.RobotID)
	log.Info("starting robot daemon",
		"id", identity.ID, "name", identity.Name, "port", cfg.Port, "rate_hz", cfg.ControlRateHz)

	store, err := drive.OpenStore(cfg.CalibrationPath)
	if err != nil {
		// Still drivable with default calibration, so keep going.
		log.Warn("calibration file unreadable, using defaults", "path", cfg.CalibrationPath, "err", err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: cfg.Port})
	if err != nil {
		return fmt.Errorf("bind command port: %w", err)
	}
	defer conn.Close()

	var act robot.Actuator = robot.NopActuator{}
	var mcuAct *mcu.SerialActuator
	if cfg.MCUPort != "" && !robotNoMCU {
		mcuAct, err = mcu.OpenSerialActuator(cfg.MCUPort, cfg.MCUBaud)
		if err != nil {
			return fmt.Errorf("open MCU port %s: %w", cfg.MCUPort, err)
		}
		defer mcuAct.Close()
		act = mcuAct
		if err := mcuAct.SetStatus(mcu.StatusBoot, identity.Color); err != nil {
			log.Warn("MCU status update failed", "err", err)
		}
	} else {
		log.Warn("running without motor hardware, drive output is log-only")
	}

	loopCfg := robot.LoopConfig{
		Identity:        identity,
		Port:            cfg.Port,
		ControlRateHz:   cfg.ControlRateHz,
		DeadZone:        cfg.DeadZone,
		WatchdogTimeout: time.Duration(cfg.WatchdogTimeoutMs) * time.Millisecond,
		RSSI:            robot.WirelessRSSI(cfg.WirelessIface),
		OnTransition: func(tr robot.Transition) {
			log.Info("mode change", "from", tr.From, "to", tr.To, "reason", tr.Reason)
			if mcuAct != nil {
				if err := mcuAct.SetStatus(modeStatus(tr.To), identity.Color); err != nil {
					log.Debug("MCU status update failed", "err", err)
				}
			}
		},
		OnTelemetry: func(t robot.Telemetry) {
			if t.HasBattery && t.BatteryMV < lowBatteryMV {
				log.Warn("battery low", "mv", t.BatteryMV)
			}
		},
	}

	loop, err := robot.NewLoop(loopCfg, conn, store, act)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("robot daemon stopped")
	return nil
}

// applyRobotFlags overlays explicitly set flags onto the loaded config.
func applyRobotFlags(cmd *cobra.Command, cfg *config.RobotConfig) {
	if cmd.Flags().Changed("id") {
		cfg.RobotID = robotID
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = robotPort
	}
	if cmd.Flags().Changed("rate") {
		cfg.ControlRateHz = robotRate
	}
	if cmd.Flags().Changed("watchdog-ms") {
		cfg.WatchdogTimeoutMs = robotWatchdogMs
	}
	if cmd.Flags().Changed("dead-zone") {
		cfg.DeadZone = robotDeadZone
	}
	if cmd.Flags().Changed("calibration") {
		cfg.CalibrationPath = robotCalPath
	}
	if cmd.Flags().Changed("mcu-port") {
		cfg.MCUPort = robotMCUPort
	}
	if cmd.Flags().Changed("mcu-baud") {
		cfg.MCUBaud = robotMCUBaud
	}
	if cmd.Flags().Changed("iface") {
		cfg.WirelessIface = robotIface
	}
}

func modeStatus(m robot.Mode) mcu.StatusCode {
	switch m {
	case robot.ModeNetUp:
		return mcu.StatusNetUp
	case robot.ModeClientOK:
		return mcu.StatusClientOK
	case robot.ModeDriving:
		return mcu.StatusDriving
	case robot.ModeLinkLost:
		return mcu.StatusLinkLost
	case robot.ModeEStop:
		return mcu.StatusEStop
	default:
		return mcu.StatusBoot
	}
}
