// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package drive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Store owns the robot's calibration record and its file on stable
// storage. Exactly one Store exists per robot; only the control loop calls
// its methods, so it carries no locking.
type Store struct {
	path    string
	current Calibration
}

// OpenStore loads the record at path. The returned Store is always usable:
// a missing file is a normal first boot, and any other read or parse
// failure falls back to defaults with the failure returned for logging.
func OpenStore(path string) (*Store, error) {
	s := &Store{path: path, current: DefaultCalibration()}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read calibration: %w", err)
	}

	var loaded Calibration
	if err := json.Unmarshal(data, &loaded); err != nil {
		return s, fmt.Errorf("parse calibration %s: %w", path, err)
	}
	s.current = loaded.Clamped()
	return s, nil
}

// Get returns the current record.
func (s *Store) Get() Calibration {
	return s.current
}

// Set clamps and applies a new record, then persists it synchronously.
// The in-memory record stays authoritative for the session even when the
// write fails; the error is returned for logging only.
func (s *Store) Set(c Calibration) (Calibration, error) {
	applied := c.Clamped()
	applied.Version = CalibrationVersion
	s.current = applied
	if err := s.persist(); err != nil {
		return applied, err
	}
	return applied, nil
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// persist writes a temp file then renames it over the record, so a torn
// write never corrupts the stored calibration.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return fmt.Errorf("encode calibration: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write calibration: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace calibration: %w", err)
	}
	return nil
}
