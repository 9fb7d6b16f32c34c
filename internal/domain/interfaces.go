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

// SensorService defines how raw notifications reach the application.
// Decoupled: It doesn't matter if it's BLE or Simulation.
type SensorService interface {
	// ConnectPower connects ONLY to the power meter (Cycling Power)
	ConnectPower(onStatus func(string, string)) error

	// ConnectHR connects ONLY to the Heart Rate Monitor
	ConnectHR(onStatus func(string, string)) error

	// ConnectSteering connects ONLY to the steering input device
	ConnectSteering(onStatus func(string, string)) error

	// Subscribe starts forwarding raw notifications from connected devices
	// and from any device connected afterwards. It may be called again.
	Subscribe(out chan<- Notification) error

	// Disconnect disconnects everything
	Disconnect()
}

// Resetter is a per-source decoder whose state can be forced back to its
// disconnected defaults. LastNotification reports false once reset.
type Resetter interface {
	LastNotification() (time.Time, bool)
	Reset()

	// ResetIfSilentSince resets atomically when the last notification is
	// before deadline, reporting that time and whether it reset.
	ResetIfSilentSince(deadline time.Time) (time.Time, bool)
}

// PowerSource exposes the latest decoded power sample.
type PowerSource interface {
	Latest() (PowerSample, bool)
}

// HeartRateSource exposes the latest decoded heart-rate sample.
type HeartRateSource interface {
	Latest() (HeartRateSample, bool)
}
