// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/picolink/picolink/internal/log"
	"github.com/picolink/picolink/pkg/wire"
)

// Resolution errors.
var (
	ErrNoRobots  = errors.New("no robots found")
	ErrAmbiguous = errors.New("multiple robots found")
)

// ResolveOptions controls how a robot address is picked.
type ResolveOptions struct {
	// Explicit is an operator-supplied "host" or "host:port". When set it
	// wins outright, no probe.
	Explicit string

	// Cached is the last known good address, tried with a short probe
	// before any broadcast.
	Cached string

	// Port is the command port used for bare hosts and for discovery.
	Port int

	// DiscoveryWait bounds the broadcast collection window.
	DiscoveryWait time.Duration

	// ProbeWait bounds the cached-address probe.
	ProbeWait time.Duration
}

// Resolve picks the robot to talk to: explicit address first, then a probe
// of the cached address, then broadcast discovery. Discovery must find
// exactly one robot; with more than one the operator has to choose.
// The returned info is nil when the address was taken on faith.
func Resolve(ctx context.Context, opts ResolveOptions) (*net.UDPAddr, *wire.RobotInfo, error) {
	if opts.DiscoveryWait <= 0 {
		opts.DiscoveryWait = 2 * time.Second
	}
	if opts.ProbeWait <= 0 {
		opts.ProbeWait = 500 * time.Millisecond
	}

	if opts.Explicit != "" {
		addr, err := parseAddr(opts.Explicit, opts.Port)
		if err != nil {
			return nil, nil, fmt.Errorf("bad robot address %q: %w", opts.Explicit, err)
		}
		return addr, nil, nil
	}

	if opts.Cached != "" {
		if addr, err := parseAddr(opts.Cached, opts.Port); err == nil {
			if info, err := Probe(ctx, addr, opts.ProbeWait); err == nil {
				log.Debug("cached robot address still live", "addr", addr, "name", info.Name)
				return addr, &info, nil
			}
			log.Debug("cached robot address stale", "addr", addr)
		}
	}

	found, err := Discover(ctx, opts.Port, opts.DiscoveryWait)
	if err != nil {
		return nil, nil, err
	}
	switch len(found) {
	case 0:
		return nil, nil, ErrNoRobots
	case 1:
		return found[0].Addr, &found[0].Info, nil
	default:
		names := ""
		for i, f := range found {
			if i > 0 {
				names += ", "
			}
			names += fmt.Sprintf("%s at %s", f.Info.Name, f.Addr)
		}
		return nil, nil, fmt.Errorf("%w: %s", ErrAmbiguous, names)
	}
}

// parseAddr accepts "host:port" or a bare host, filling in defaultPort.
func parseAddr(s string, defaultPort int) (*net.UDPAddr, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		host = s
		portStr = strconv.Itoa(defaultPort)
	}
	return net.ResolveUDPAddr("udp4", net.JoinHostPort(host, portStr))
}
