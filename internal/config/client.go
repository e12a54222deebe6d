// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// KnownRobot is one remembered robot in the client cache.
type KnownRobot struct {
	RobotID  int       `json:"robot_id"`
	Name     string    `json:"name"`
	Addr     string    `json:"addr"`
	Hostname string    `json:"hostname,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

// ClientState is the operator-side cache persisted between runs. LastAddr
// is probed before falling back to broadcast discovery.
type ClientState struct {
	LastAddr string       `json:"last_addr,omitempty"`
	Robots   []KnownRobot `json:"robots,omitempty"`
}

// ClientStatePath returns the robots.json location, honoring
// XDG_CONFIG_HOME before falling back to ~/.config.
func ClientStatePath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "picolink", "robots.json"), nil
}

// LoadClientState reads the cache, returning an empty state when the file
// does not exist or cannot be parsed. A stale or corrupt cache only costs
// one broadcast discovery.
func LoadClientState(path string) ClientState {
	var st ClientState
	data, err := os.ReadFile(path)
	if err != nil {
		return st
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return ClientState{}
	}
	return st
}

// SaveClientState writes the cache atomically (temp file + rename).
func SaveClientState(path string, st ClientState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode client state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write client state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace client state: %w", err)
	}
	return nil
}

// Remember records addr as the most recent robot and upserts it into the
// known-robot list, keyed by robot id.
func (st *ClientState) Remember(robotID int, name, addr, hostname string, seen time.Time) {
	st.LastAddr = addr
	for i := range st.Robots {
		if st.Robots[i].RobotID == robotID {
			st.Robots[i].Name = name
			st.Robots[i].Addr = addr
			st.Robots[i].Hostname = hostname
			st.Robots[i].LastSeen = seen
			return
		}
	}
	st.Robots = append(st.Robots, KnownRobot{
		RobotID:  robotID,
		Name:     name,
		Addr:     addr,
		Hostname: hostname,
		LastSeen: seen,
	})
}
