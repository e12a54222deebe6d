// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors
//
// Picolink - command link for Pico-Go wheeled robots.
//
// One binary serves both ends of the link: "picolink robot" is the
// on-robot daemon, the remaining subcommands are operator tools.

package main

import (
	"os"

	"github.com/picolink/picolink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
