// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package robot

import (
	"os"
	"strconv"
	"strings"
)

// RSSIFunc reports wireless signal strength in dBm. The second return is
// false when no reading is available.
type RSSIFunc func() (int, bool)

// WirelessRSSI returns an RSSIFunc that reads /proc/net/wireless for the
// given interface. On platforms or interfaces without the proc entry it
// degrades to "no reading" instead of failing.
func WirelessRSSI(iface string) RSSIFunc {
	return func() (int, bool) {
		data, err := os.ReadFile("/proc/net/wireless")
		if err != nil {
			return 0, false
		}
		return parseWirelessRSSI(data, iface)
	}
}

// parseWirelessRSSI extracts the signal level column for iface. The file
// has two header lines, then one line per interface:
//
//	wlan0: 0000   54.  -56.  -256        0      0      0      0      0        0
//
// Quality values carry a trailing dot. Level is already in dBm.
func parseWirelessRSSI(data []byte, iface string) (int, bool) {
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		if fields[0] != iface+":" {
			continue
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[3], "."), 64)
		if err != nil {
			return 0, false
		}
		return int(level), true
	}
	return 0, false
}
