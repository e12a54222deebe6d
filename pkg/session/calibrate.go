// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package session

import (
	"context"
	"net"
	"time"

	"github.com/picolink/picolink/pkg/wire"
)

// GetCalibration asks a robot for its current calibration record.
func GetCalibration(ctx context.Context, addr *net.UDPAddr, wait time.Duration) (wire.Calibration, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return wire.Calibration{}, err
	}
	defer conn.Close()

	if _, err := conn.WriteToUDP(wire.Encode(wire.GetCalibration{}), addr); err != nil {
		return wire.Calibration{}, err
	}

	deadline := time.Now().Add(wait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	buf := make([]byte, wire.MaxDatagramSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return wire.Calibration{}, err
		}
		if reply, ok := wire.ParseCalibrationReply(buf[:n]); ok {
			return reply.Calibration, nil
		}
	}
}

// SetCalibration writes a calibration record to a robot, then reads it back
// so the caller sees the clamped values the robot actually applied.
func SetCalibration(ctx context.Context, addr *net.UDPAddr, cal wire.Calibration, wait time.Duration) (wire.Calibration, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return wire.Calibration{}, err
	}

	_, err = conn.WriteToUDP(wire.Encode(wire.SetCalibration{Calibration: cal}), addr)
	conn.Close()
	if err != nil {
		return wire.Calibration{}, err
	}

	return GetCalibration(ctx, addr, wait)
}
