// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package robot

import "fmt"

// Version is reported in discovery responses.
const Version = "1.0"

// Identity is the per-robot presentation: call sign, hostname and the accent
// color used by status LEDs and client UIs.
type Identity struct {
	ID       int
	Name     string
	Hostname string
	Color    [3]uint8
}

var robotNames = map[int]string{
	1: "THUNDER",
	2: "BLITZ",
	3: "NITRO",
	4: "TURBO",
	5: "SPEED",
	6: "BOLT",
	7: "FLASH",
	8: "STORM",
}

var robotColors = map[int][3]uint8{
	1: {255, 140, 0},
	2: {255, 255, 0},
	3: {255, 0, 0},
	4: {0, 255, 0},
	5: {255, 255, 255},
	6: {0, 0, 255},
	7: {0, 255, 128},
	8: {0, 200, 255},
}

// IdentityFor maps a robot id to its fleet identity. Ids outside the named
// fleet get a generated call sign and a white accent so an unconfigured
// robot still announces itself.
func IdentityFor(id int) Identity {
	name, ok := robotNames[id]
	if !ok {
		name = fmt.Sprintf("RACER-%d", id)
	}
	color, ok := robotColors[id]
	if !ok {
		color = [3]uint8{255, 255, 255}
	}
	return Identity{
		ID:       id,
		Name:     name,
		Hostname: fmt.Sprintf("picogo%d", id),
		Color:    color,
	}
}
