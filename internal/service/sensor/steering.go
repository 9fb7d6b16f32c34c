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

const steeringPayloadSize = 6

// SteeringDecoder decodes the steering device output characteristic:
// byte 0 holds the mode in its top two bits and six buttons below it,
// bytes 1-5 are raw axis values.
type SteeringDecoder struct {
	mu        sync.Mutex
	state     domain.SteeringState
	connected bool
}

func NewSteeringDecoder() *SteeringDecoder {
	return &SteeringDecoder{}
}

func (d *SteeringDecoder) Update(payload []byte, at time.Time) (domain.SteeringState, error) {
	if len(payload) < steeringPayloadSize {
		return domain.SteeringState{}, fmt.Errorf("steering: %w: %d bytes", ErrShortPayload, len(payload))
	}

	s := domain.SteeringState{
		Timestamp: at,
		Mode:      payload[0] >> 6,
	}
	bits := payload[0]
	for i := range s.Buttons {
		s.Buttons[i] = bits&1 == 1
		bits >>= 1
	}
	copy(s.Axes[:], payload[1:steeringPayloadSize])

	d.mu.Lock()
	d.state = s
	d.connected = true
	d.mu.Unlock()

	return s, nil
}

func (d *SteeringDecoder) Latest() (domain.SteeringState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state, d.connected
}

func (d *SteeringDecoder) LastNotification() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Timestamp, d.connected
}

func (d *SteeringDecoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

func (d *SteeringDecoder) ResetIfSilentSince(deadline time.Time) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	last, ok := d.state.Timestamp, d.connected
	if !ok || !last.Before(deadline) {
		return last, false
	}
	d.resetLocked()
	return last, true
}

func (d *SteeringDecoder) resetLocked() {
	d.state = domain.SteeringState{}
	d.connected = false
}
