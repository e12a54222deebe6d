// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package robot

import "testing"

func TestIdentityForKnownRobot(t *testing.T) {
	id := IdentityFor(1)

	if id.Name != "THUNDER" {
		t.Errorf("Expected THUNDER, got %q", id.Name)
	}
	if id.Hostname != "picogo1" {
		t.Errorf("Expected picogo1, got %q", id.Hostname)
	}
	if id.Color != [3]uint8{255, 140, 0} {
		t.Errorf("Expected orange accent, got %v", id.Color)
	}
}

func TestIdentityForWholeFleet(t *testing.T) {
	names := map[int]string{
		1: "THUNDER", 2: "BLITZ", 3: "NITRO", 4: "TURBO",
		5: "SPEED", 6: "BOLT", 7: "FLASH", 8: "STORM",
	}

	for robotID, want := range names {
		id := IdentityFor(robotID)
		if id.Name != want {
			t.Errorf("Robot %d: expected %q, got %q", robotID, want, id.Name)
		}
		if id.ID != robotID {
			t.Errorf("Robot %d: expected matching ID, got %d", robotID, id.ID)
		}
	}
}

func TestIdentityForUnknownRobot(t *testing.T) {
	id := IdentityFor(42)

	if id.Name != "RACER-42" {
		t.Errorf("Expected generated call sign RACER-42, got %q", id.Name)
	}
	if id.Hostname != "picogo42" {
		t.Errorf("Expected picogo42, got %q", id.Hostname)
	}
	if id.Color != [3]uint8{255, 255, 255} {
		t.Errorf("Expected white fallback accent, got %v", id.Color)
	}
}
