// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/picolink/picolink/internal/config"
	"github.com/picolink/picolink/internal/log"
	"github.com/picolink/picolink/pkg/session"
)

var (
	discoverPort int
	discoverWait time.Duration
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan the local network for robots",
	Long: `Broadcast a discovery probe and list every robot that answers.

Responding robots are cached in the client state file so that later
"picolink drive" and "picolink calibrate" runs can reach them without
a fresh broadcast.

Exit codes:
  0 - at least one robot found
  1 - no robots answered`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().IntVar(&discoverPort, "port", config.DefaultPort, "UDP command port to probe")
	discoverCmd.Flags().DurationVar(&discoverWait, "wait", 2*time.Second, "How long to collect replies")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	fmt.Printf("Scanning for robots (%s)...\n\n", discoverWait)

	found, err := session.Discover(context.Background(), discoverPort, discoverWait)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Printf("No robots answered on port %d.\n", discoverPort)
		os.Exit(1)
	}

	fmt.Printf("%-4s %-10s %-22s %-14s %-8s %s\n", "ID", "NAME", "ADDRESS", "HOSTNAME", "VERSION", "TRIM")
	for _, f := range found {
		fmt.Printf("%-4d %-10s %-22s %-14s %-8s %+.3f\n",
			f.Info.RobotID, f.Info.Name, f.Addr.String(), f.Info.Hostname, f.Info.Version,
			f.Info.Calibration.SteeringTrim)
	}
	fmt.Printf("\n%d robot(s) found.\n", len(found))

	rememberFound(found)
	return nil
}

// rememberFound updates the client cache with every responder. LastAddr is
// only rewritten when the answer is unambiguous.
func rememberFound(found []session.Found) {
	path, err := config.ClientStatePath()
	if err != nil {
		log.Debug("client state unavailable", "err", err)
		return
	}
	st := config.LoadClientState(path)
	prev := st.LastAddr
	now := time.Now()
	for _, f := range found {
		st.Remember(f.Info.RobotID, f.Info.Name, f.Addr.String(), f.Info.Hostname, now)
	}
	if len(found) != 1 {
		st.LastAddr = prev
	}
	if err := config.SaveClientState(path, st); err != nil {
		log.Debug("client state not saved", "err", err)
	}
}
