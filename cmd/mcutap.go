// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"github.com/picolink/picolink/internal/log"
	"github.com/picolink/picolink/pkg/mcu"
)

var (
	mcutapPort string
	mcutapBaud int
)

var mcutapCmd = &cobra.Command{
	Use:   "mcutap",
	Short: "Display MCU serial frames in human-readable form",
	Long: `Continuously decode and display motor MCU frames as they arrive.

Attach to the MCU serial line (or a passive UART probe on it) and print
each frame with timestamp, message type and decoded payload. Useful for
verifying the MCU link without running the full robot daemon.

Note that the daemon holds the serial device exclusively, so run mcutap
instead of the daemon, not next to it.`,
	RunE: runMcutap,
}

func init() {
	rootCmd.AddCommand(mcutapCmd)

	mcutapCmd.Flags().StringVarP(&mcutapPort, "port", "p", "", "Serial port device, e.g. /dev/ttyACM0")
	mcutapCmd.Flags().IntVarP(&mcutapBaud, "baud", "b", 115200, "Baud rate")
	mcutapCmd.MarkFlagRequired("port")
}

func runMcutap(cmd *cobra.Command, args []string) error {
	mode := &serial.Mode{
		BaudRate: mcutapBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(mcutapPort, mode)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", mcutapPort, err)
	}
	defer port.Close()

	fmt.Printf("Picolink - MCU Frame Tap\n")
	fmt.Printf("Port: %s @ %d baud\n", mcutapPort, mcutapBaud)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := mcu.NewDecoder()
	buf := make([]byte, 128)

	for {
		n, err := port.Read(buf)
		if err != nil {
			log.Warn("serial read error", "err", err)
			continue
		}

		for i := 0; i < n; i++ {
			frame, err := decoder.DecodeByte(buf[i])
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if frame != nil {
				fmt.Print(mcu.FormatFrame(frame))
			}
		}
	}
}
