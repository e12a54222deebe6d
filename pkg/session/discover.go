// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

// Package session is the operator side of the robot link: finding robots on
// the local network, streaming drive commands at a fixed rate, and tracking
// link health from the robot's acks.
package session

import (
	"context"
	"net"
	"sort"
	"time"

	"github.com/picolink/picolink/internal/log"
	"github.com/picolink/picolink/pkg/wire"
)

// Found pairs a discovery response with the address it came from.
type Found struct {
	Info wire.RobotInfo
	Addr *net.UDPAddr
}

// Discover broadcasts a discover request on every capable interface and
// collects responses until wait elapses. Robots are deduplicated by id and
// returned sorted by id. Send failures on individual interfaces are not
// fatal; a machine with no usable network simply finds nothing.
func Discover(ctx context.Context, port int, wait time.Duration) ([]Found, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	payload := wire.Encode(wire.DiscoverRequest{})
	for _, addr := range broadcastAddrs(port) {
		if _, err := conn.WriteToUDP(payload, addr); err != nil {
			log.Debug("discovery send failed", "addr", addr, "err", err)
		}
	}

	deadline := time.Now().Add(wait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	var found []Found
	seen := make(map[int]bool)
	buf := make([]byte, wire.MaxDatagramSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			break
		}
		info, ok := wire.ParseRobotInfo(buf[:n])
		if !ok {
			continue
		}
		if seen[info.RobotID] {
			continue
		}
		seen[info.RobotID] = true
		found = append(found, Found{Info: info, Addr: from})
		log.Debug("robot found", "id", info.RobotID, "name", info.Name, "addr", from)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Info.RobotID < found[j].Info.RobotID })
	return found, ctx.Err()
}

// Probe sends a unicast discover to a known address and waits for its
// robot info. Used to check whether a cached address is still live before
// falling back to a full broadcast.
func Probe(ctx context.Context, addr *net.UDPAddr, wait time.Duration) (wire.RobotInfo, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return wire.RobotInfo{}, err
	}
	defer conn.Close()

	if _, err := conn.WriteToUDP(wire.Encode(wire.DiscoverRequest{}), addr); err != nil {
		return wire.RobotInfo{}, err
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
			return wire.RobotInfo{}, err
		}
		if info, ok := wire.ParseRobotInfo(buf[:n]); ok {
			return info, nil
		}
	}
}

// broadcastAddrs returns the limited broadcast address plus the directed
// broadcast of every up, broadcast-capable IPv4 interface.
func broadcastAddrs(port int) []*net.UDPAddr {
	addrs := []*net.UDPAddr{{IP: net.IPv4bcast, Port: port}}
	seen := map[string]bool{addrs[0].IP.String(): true}

	ifaces, err := net.Interfaces()
	if err != nil {
		return addrs
	}
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagBroadcast == 0 {
			continue
		}
		ifaddrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range ifaddrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			mask := ipnet.Mask
			if len(mask) == net.IPv6len {
				mask = mask[12:]
			}
			bcast := make(net.IP, net.IPv4len)
			for i := range bcast {
				bcast[i] = ip4[i] | ^mask[i]
			}
			if seen[bcast.String()] {
				continue
			}
			seen[bcast.String()] = true
			addrs = append(addrs, &net.UDPAddr{IP: bcast, Port: port})
		}
	}
	return addrs
}
