// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package wire

import (
	"errors"
	"fmt"
	"time"
)

// RxStats accumulates receive-side counters for one socket. The loss
// estimate comes from gaps in drive sequence numbers: a drive whose seq
// skips past lastSeq+1 counts the skipped range as lost. Reordered or
// duplicate sequences are not counted again; they still count as valid
// traffic (any structurally valid drive feeds liveness regardless of its
// sequence number).
type RxStats struct {
	StartTime time.Time

	Datagrams     uint64
	ValidCommands uint64
	Drives        uint64
	Malformed     uint64
	Unknown       uint64
	EstimatedLost uint64

	lastSeq uint32
	seqSeen bool

	// Derived by CalculateRates.
	DatagramRate float64 // datagrams/sec
	ErrorRate    float64 // errors/sec
}

// NewRxStats returns zeroed counters starting now.
func NewRxStats(now time.Time) *RxStats {
	return &RxStats{StartTime: now}
}

// Update records one decode outcome.
func (s *RxStats) Update(cmd Command, decodeErr error) {
	s.Datagrams++

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrUnknownCommand) {
			s.Unknown++
		} else {
			s.Malformed++
		}
		return
	}

	s.ValidCommands++
	if d, ok := cmd.(Drive); ok {
		s.Drives++
		if s.seqSeen && d.Seq > s.lastSeq+1 {
			s.EstimatedLost += uint64(d.Seq - s.lastSeq - 1)
		}
		if !s.seqSeen || d.Seq > s.lastSeq {
			s.lastSeq = d.Seq
			s.seqSeen = true
		}
	}
}

// LastSeq returns the highest drive sequence seen, and whether any drive
// has been seen at all.
func (s *RxStats) LastSeq() (uint32, bool) {
	return s.lastSeq, s.seqSeen
}

// LossPercent returns the estimated datagram loss over observed drives.
func (s *RxStats) LossPercent() float64 {
	expected := s.Drives + s.EstimatedLost
	if expected == 0 {
		return 0
	}
	return float64(s.EstimatedLost) * 100.0 / float64(expected)
}

// CalculateRates recomputes the per-second rates as of now.
func (s *RxStats) CalculateRates(now time.Time) {
	elapsed := now.Sub(s.StartTime).Seconds()
	if elapsed > 0 {
		s.DatagramRate = float64(s.Datagrams) / elapsed
		s.ErrorRate = float64(s.Malformed+s.Unknown) / elapsed
	}
}

// String returns a formatted counter summary.
func (s *RxStats) String() string {
	result := fmt.Sprintf("Datagrams:     %8d\n", s.Datagrams)
	result += fmt.Sprintf("Valid:         %8d\n", s.ValidCommands)
	result += fmt.Sprintf("Drives:        %8d\n", s.Drives)
	if s.Malformed > 0 {
		result += fmt.Sprintf("Malformed:     %8d\n", s.Malformed)
	}
	if s.Unknown > 0 {
		result += fmt.Sprintf("Unknown:       %8d\n", s.Unknown)
	}
	result += fmt.Sprintf("Est. lost:     %8d (%.1f%%)\n", s.EstimatedLost, s.LossPercent())
	return result
}

// Reset clears all counters, keeping the start time at now.
func (s *RxStats) Reset(now time.Time) {
	*s = RxStats{StartTime: now}
}
