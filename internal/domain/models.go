// Bike Trainer - BLE sensor ingestion and training session recorder.
// Copyright (C) 2026  Paulo Sérgio
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package domain

import "time"

// Source identifies which sensor produced a notification.
type Source string

const (
	SourcePower     Source = "power"      // Cycling Power Measurement (0x2A63)
	SourceHeartRate Source = "heart_rate" // Heart Rate Measurement (0x2A37)
	SourceSteering  Source = "steering"   // Custom steering input characteristic
)

// Notification is one raw characteristic value as delivered by the transport.
// ReceivedAt is the monotonic delivery timestamp; decoders derive every
// elapsed-time computation from it.
type Notification struct {
	Source     Source    `json:"source"`
	Payload    []byte    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

// PowerSample is one decoded cycling power reading.
// Cadence and Speed stay nil until the meter has reported crank or wheel data
// since the last (re)connect.
type PowerSample struct {
	Timestamp           time.Time `json:"timestamp"`            // Delivery time of the payload
	PowerWatts          int16     `json:"power"`                // Instantaneous power in watts
	CadenceRPM          *float64  `json:"cadence,omitempty"`    // Crank rate in RPM
	SpeedKmh            *float64  `json:"speed,omitempty"`      // Wheel speed in km/h
	AccumulatedEnergyKJ float64   `json:"accumulated_energy"`   // Energy in kJ
	AccumulatedDistance float64   `json:"accumulated_distance"` // Distance in meters
}

// HeartRateSample is one decoded heart-rate reading.
type HeartRateSample struct {
	Timestamp             time.Time `json:"timestamp"`
	HeartRateBPM          uint8     `json:"heart_rate"`
	AccumulatedHeartbeats float64   `json:"accumulated_heartbeats"`
}

// SteeringState is one decoded steering-device reading.
type SteeringState struct {
	Timestamp time.Time `json:"timestamp"`
	Mode      uint8     `json:"mode"`    // 0-3
	Buttons   [6]bool   `json:"buttons"` // Least significant bit first
	Axes      [5]uint8  `json:"axes"`    // a1, a2, roll, pitch, yaw
}

// RoutePoint is one processed point of a virtual route.
type RoutePoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Elevation float64 `json:"ele"`
	Distance  float64 `json:"distance"` // Meters from the route start
	Grade     float64 `json:"grade"`    // Percent, smoothed
}

// ===============
// DATABASE MODELS
// ===============

// Activity represents a completed training session.
type Activity struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	SessionID     string    `json:"session_id" gorm:"index"`
	StartTime     time.Time `json:"start_time"`
	Duration      int64     `json:"duration"`       // Duration in seconds
	TotalDistance float64   `json:"total_distance"` // Meters
	AvgPower      int       `json:"avg_power"`      // Watts
	MaxPower      int       `json:"max_power"`      // Watts
	MaxHeartRate  int       `json:"max_heart_rate"` // BPM
	Calories      int       `json:"calories"`       // kcal
	Laps          int       `json:"laps"`
	TCXFile       string    `json:"tcx_file"`
	FITFile       string    `json:"fit_file"`
	CreatedAt     time.Time `json:"created_at"`
}

// SessionRecord stores the JSON projection of a session so an interrupted
// ride can be restored and exported later.
type SessionRecord struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	StartTime time.Time `json:"start_time"`
	Samples   int       `json:"samples"`
	Data      []byte    `json:"data"`
	Finished  bool      `json:"finished"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
