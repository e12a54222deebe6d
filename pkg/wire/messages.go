// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Picolink Contributors

package wire

import "encoding/json"

// Ack is the robot's best-effort reply to processed commands. SeqAck echoes
// the last accepted drive sequence; State is the current mode name. RSSI is
// present only when the robot can read its wireless signal strength.
type Ack struct {
	SeqAck uint32 `json:"seq_ack"`
	State  string `json:"state"`
	RSSI   *int   `json:"rssi,omitempty"`
}

// RobotInfo answers a discover request.
type RobotInfo struct {
	Type        string      `json:"type"`
	RobotID     int         `json:"robot_id"`
	Name        string      `json:"name"`
	Hostname    string      `json:"hostname"`
	Version     string      `json:"version"`
	Color       [3]uint8    `json:"color"`
	Port        int         `json:"port"`
	Calibration Calibration `json:"calibration"`
}

// RobotInfoType is the discriminator value carried in RobotInfo.Type.
const RobotInfoType = "robot_info"

// CalibrationReply answers get_calibration.
type CalibrationReply struct {
	Calibration Calibration `json:"calibration"`
}

// Encode renders the ack as a datagram.
func (a Ack) Encode() []byte {
	data, _ := json.Marshal(a)
	return data
}

// Encode renders the discovery response as a datagram.
func (r RobotInfo) Encode() []byte {
	r.Type = RobotInfoType
	data, _ := json.Marshal(r)
	return data
}

// Encode renders the calibration reply as a datagram.
func (r CalibrationReply) Encode() []byte {
	data, _ := json.Marshal(r)
	return data
}

// ParseAck reports whether data is an ack and returns it if so.
func ParseAck(data []byte) (Ack, bool) {
	var probe struct {
		SeqAck *uint32 `json:"seq_ack"`
		State  *string `json:"state"`
		RSSI   *int    `json:"rssi"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Ack{}, false
	}
	if probe.SeqAck == nil || probe.State == nil {
		return Ack{}, false
	}
	return Ack{SeqAck: *probe.SeqAck, State: *probe.State, RSSI: probe.RSSI}, true
}

// ParseRobotInfo reports whether data is a discovery response and returns
// it if so.
func ParseRobotInfo(data []byte) (RobotInfo, bool) {
	var info RobotInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return RobotInfo{}, false
	}
	if info.Type != RobotInfoType {
		return RobotInfo{}, false
	}
	return info, true
}

// ParseCalibrationReply reports whether data is a calibration reply and
// returns it if so.
func ParseCalibrationReply(data []byte) (CalibrationReply, bool) {
	var probe struct {
		Calibration *Calibration `json:"calibration"`
		Cmd         *string      `json:"cmd"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return CalibrationReply{}, false
	}
	if probe.Calibration == nil || probe.Cmd != nil {
		return CalibrationReply{}, false
	}
	return CalibrationReply{Calibration: *probe.Calibration}, true
}
