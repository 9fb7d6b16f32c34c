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

package sensor

import (
	"fmt"
	"sync"
	"time"

	"bike-trainer/internal/domain"
)

// Heartbeats are only integrated across gaps up to this long.
const maxHeartRateGap = 6 * time.Second

// HeartRateDecoder decodes Heart Rate Measurement notifications and estimates
// the number of heartbeats since connect.
type HeartRateDecoder struct {
	mu sync.Mutex

	lastNotification time.Time
	connected        bool
	heartRate        uint8
	beats            float64
}

func NewHeartRateDecoder() *HeartRateDecoder {
	return &HeartRateDecoder{}
}

// Update integrates the previous heart rate over the time since the last
// notification, then reads the new rate from byte 1. Only the 8-bit value
// format is supported; rates above 255 bpm are not representable.
func (d *HeartRateDecoder) Update(payload []byte, at time.Time) (domain.HeartRateSample, error) {
	if len(payload) < 2 {
		return domain.HeartRateSample{}, fmt.Errorf("heart rate: %w: %d bytes", ErrShortPayload, len(payload))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		if gap := at.Sub(d.lastNotification); gap > 0 && gap <= maxHeartRateGap {
			d.beats += gap.Seconds() / 60 * float64(d.heartRate)
		}
	}

	d.heartRate = payload[1]
	d.lastNotification = at
	d.connected = true

	return d.sampleLocked(), nil
}

func (d *HeartRateDecoder) sampleLocked() domain.HeartRateSample {
	return domain.HeartRateSample{
		Timestamp:             d.lastNotification,
		HeartRateBPM:          d.heartRate,
		AccumulatedHeartbeats: d.beats,
	}
}

func (d *HeartRateDecoder) Latest() (domain.HeartRateSample, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return domain.HeartRateSample{}, false
	}
	return d.sampleLocked(), true
}

func (d *HeartRateDecoder) LastNotification() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastNotification, d.connected
}

// Reset clears the heart rate and the heartbeat count.
func (d *HeartRateDecoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

// ResetIfSilentSince is the watchdog's atomic check-and-reset.
func (d *HeartRateDecoder) ResetIfSilentSince(deadline time.Time) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	last, ok := d.lastNotification, d.connected
	if !ok || !last.Before(deadline) {
		return last, false
	}
	d.resetLocked()
	return last, true
}

func (d *HeartRateDecoder) resetLocked() {
	d.lastNotification = time.Time{}
	d.connected = false
	d.heartRate = 0
	d.beats = 0
}
