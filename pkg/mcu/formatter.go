// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package mcu

import "fmt"

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp().Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X)\n", timestamp, FormatMessageType(f.Type()), f.Type())
	result += FormatPayloadMap(f.Type(), f.PayloadMap())
	return result
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	case MsgSetDrive:
		return "SET_DRIVE"
	case MsgStop:
		return "STOP"
	case MsgSetStatus:
		return "SET_STATUS"
	case MsgPingRequest:
		return "PING_REQUEST"
	case MsgTelemetry:
		return "TELEMETRY"
	case MsgPingResponse:
		return "PING_RESPONSE"
	case MsgErrorInvalidCmd:
		return "ERROR_INVALID_CMD"
	case MsgErrorCRCReject:
		return "ERROR_CRC_REJECT"
	default:
		return "UNKNOWN"
	}
}

// FormatPayloadMap formats the payload map based on message type
func FormatPayloadMap(msgType uint8, m map[int]interface{}) string {
	switch msgType {
	case MsgStop, MsgPingRequest:
		return "  (no payload)\n"

	case MsgSetDrive:
		left, _ := GetMapInt(m, 0)
		right, _ := GetMapInt(m, 1)
		return fmt.Sprintf("  Left: %+d‰, Right: %+d‰\n", left, right)

	case MsgSetStatus:
		code, _ := GetMapUint(m, 0)
		r, _ := GetMapUint(m, 1)
		g, _ := GetMapUint(m, 2)
		b, _ := GetMapUint(m, 3)
		return fmt.Sprintf("  Status: %s (%d), Color: #%02X%02X%02X\n",
			formatStatusCode(uint8(code)), code, r, g, b)

	case MsgTelemetry:
		battery, _ := GetMapInt(m, 0)
		left, _ := GetMapInt(m, 1)
		right, _ := GetMapInt(m, 2)
		return fmt.Sprintf("  Battery: %.2f V, Measured: %+d‰ / %+d‰\n",
			float64(battery)/1000, left, right)

	case MsgPingResponse:
		uptime, _ := GetMapUint(m, 0)
		return fmt.Sprintf("  Uptime: %s\n", formatUptimeMs(uptime))

	case MsgErrorInvalidCmd:
		code, _ := GetMapInt(m, 0)
		return fmt.Sprintf("  Rejected command type: 0x%02X\n", code)

	case MsgErrorCRCReject:
		return "  (MCU rejected a frame with a bad CRC)\n"
	}

	if m == nil {
		return "  (nil payload)\n"
	}
	result := "  Payload: {"
	for k, v := range m {
		result += fmt.Sprintf("%d: %v, ", k, v)
	}
	return result + "}\n"
}

// formatStatusCode returns a human-readable status name
func formatStatusCode(code uint8) string {
	names := []string{"BOOT", "NET_UP", "CLIENT_OK", "DRIVING", "LINK_LOST", "E_STOP"}
	if int(code) < len(names) {
		return names[code]
	}
	return "UNKNOWN"
}

// formatUptimeMs converts milliseconds to a compact human-readable form
func formatUptimeMs(ms uint64) string {
	seconds := ms / 1000
	if seconds == 0 {
		return fmt.Sprintf("%d ms", ms)
	}
	minutes := seconds / 60
	seconds %= 60
	hours := minutes / 60
	minutes %= 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
