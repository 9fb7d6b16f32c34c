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
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"bike-trainer/internal/domain"
)

const (
	// WheelRadius assumes a 700x18c tire.
	WheelRadius = 0.311 // meters

	// Gaps longer than this between two power notifications are treated as
	// a dropped link: nothing is integrated over them.
	maxPowerGap = 3 * time.Second

	kmhPerRPM = 3.0 / 25.0 * math.Pi * WheelRadius
)

// CyclingPowerDecoder decodes Cycling Power Measurement notifications and
// keeps the derived state of one power meter.
type CyclingPowerDecoder struct {
	mu sync.Mutex

	wheel *RevolutionTracker
	crank *RevolutionTracker

	lastNotification time.Time
	connected        bool // a payload has been decoded since the last reset

	power      int16
	cadence    float64
	hasCadence bool
	speed      float64
	hasSpeed   bool
	energy     float64 // kJ
	distance   float64 // m
}

func NewCyclingPowerDecoder() *CyclingPowerDecoder {
	return &CyclingPowerDecoder{
		wheel: NewRevolutionTracker(WheelTicksPerSecond),
		crank: NewRevolutionTracker(CrankTicksPerSecond),
	}
}

// Update decodes one payload delivered at the given time and returns the
// resulting sample. A payload too short for its own flags is rejected
// without touching any state.
func (d *CyclingPowerDecoder) Update(payload []byte, at time.Time) (domain.PowerSample, error) {
	if len(payload) < payloadHeaderSize {
		return domain.PowerSample{}, fmt.Errorf("cycling power: %w: %d bytes", ErrShortPayload, len(payload))
	}

	flags := ReadFlags(payload[0], payload[1])
	if need := requiredLength(flags); len(payload) < need {
		return domain.PowerSample{}, fmt.Errorf("cycling power: %w: flags %d need %d bytes, got %d",
			ErrShortPayload, flags.Value(), need, len(payload))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var dt float64
	if d.connected {
		gap := at.Sub(d.lastNotification)
		if gap > 0 && gap <= maxPowerGap {
			dt = gap.Seconds()
		}
	}

	// Energy is integrated with the power of the previous notification.
	if off, ok := flags.OffsetOf(FieldAccumulatedEnergy); ok {
		d.energy = float64(binary.LittleEndian.Uint16(payload[off:]))
	} else if d.connected && d.power > 0 {
		d.energy += dt * float64(d.power) / 1000
	}

	d.power = int16(binary.LittleEndian.Uint16(payload[2:]))

	if off, ok := flags.OffsetOf(FieldWheelRevolutionData); ok {
		revs := binary.LittleEndian.Uint32(payload[off:])
		ticks := binary.LittleEndian.Uint16(payload[off+4:])

		rpm := d.wheel.Update(int64(revs), int64(ticks)).Rate
		if rpm == 0 && d.power != 0 {
			rpm = d.wheel.LastNonZeroRate()
		}

		d.speed = rpm * kmhPerRPM
		d.hasSpeed = true
		d.distance = float64(revs) * 2 * math.Pi * WheelRadius
	}

	if off, ok := flags.OffsetOf(FieldCrankRevolutionData); ok {
		revs := binary.LittleEndian.Uint16(payload[off:])
		ticks := binary.LittleEndian.Uint16(payload[off+2:])

		r := d.crank.Update(int64(revs), int64(ticks))
		switch {
		case r.Stale:
			d.cadence = 0
		case r.Anomalous:
			// keep the previous cadence
		default:
			d.cadence = r.Rate
		}
		d.hasCadence = true
	}

	d.lastNotification = at
	d.connected = true

	return d.sampleLocked(), nil
}

// requiredLength is the minimum payload size holding every field the decoder reads.
func requiredLength(flags FlagSet) int {
	need := payloadHeaderSize
	for _, f := range []Field{FieldWheelRevolutionData, FieldCrankRevolutionData, FieldAccumulatedEnergy} {
		if off, ok := flags.OffsetOf(f); ok && off+f.Size() > need {
			need = off + f.Size()
		}
	}
	return need
}

func (d *CyclingPowerDecoder) sampleLocked() domain.PowerSample {
	s := domain.PowerSample{
		Timestamp:           d.lastNotification,
		PowerWatts:          d.power,
		AccumulatedEnergyKJ: d.energy,
		AccumulatedDistance: d.distance,
	}
	if d.hasCadence {
		c := d.cadence
		s.CadenceRPM = &c
	}
	if d.hasSpeed {
		v := d.speed
		s.SpeedKmh = &v
	}
	return s
}

// Latest returns the most recent sample, false while disconnected.
func (d *CyclingPowerDecoder) Latest() (domain.PowerSample, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return domain.PowerSample{}, false
	}
	return d.sampleLocked(), true
}

func (d *CyclingPowerDecoder) LastNotification() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastNotification, d.connected
}

// Reset returns the decoder to its disconnected defaults. Safe to call at any time.
func (d *CyclingPowerDecoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

// ResetIfSilentSince resets the decoder when its last notification is
// before deadline. The check and the reset hold one lock, so a payload
// decoded concurrently is never wiped. It returns the last notification
// time and whether a reset happened.
func (d *CyclingPowerDecoder) ResetIfSilentSince(deadline time.Time) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	last, ok := d.lastNotification, d.connected
	if !ok || !last.Before(deadline) {
		return last, false
	}
	d.resetLocked()
	return last, true
}

func (d *CyclingPowerDecoder) resetLocked() {
	d.wheel.Reset()
	d.crank.Reset()
	d.lastNotification = time.Time{}
	d.connected = false
	d.power = 0
	d.cadence, d.hasCadence = 0, false
	d.speed, d.hasSpeed = 0, false
	d.energy = 0
	d.distance = 0
}
