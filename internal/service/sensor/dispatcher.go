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
	"context"
	"fmt"
	"log"

	"bike-trainer/internal/domain"
)

// Dispatcher routes raw notifications to the decoder owning their source.
type Dispatcher struct {
	Power     *CyclingPowerDecoder
	HeartRate *HeartRateDecoder
	Steering  *SteeringDecoder
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		Power:     NewCyclingPowerDecoder(),
		HeartRate: NewHeartRateDecoder(),
		Steering:  NewSteeringDecoder(),
	}
}

// Dispatch decodes one notification. Errors are local to that notification.
func (d *Dispatcher) Dispatch(n domain.Notification) error {
	var err error
	switch n.Source {
	case domain.SourcePower:
		_, err = d.Power.Update(n.Payload, n.ReceivedAt)
	case domain.SourceHeartRate:
		_, err = d.HeartRate.Update(n.Payload, n.ReceivedAt)
	case domain.SourceSteering:
		_, err = d.Steering.Update(n.Payload, n.ReceivedAt)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownSource, n.Source)
	}
	return err
}

// Decoder returns the resettable decoder of a source.
func (d *Dispatcher) Decoder(src domain.Source) (domain.Resetter, error) {
	switch src {
	case domain.SourcePower:
		return d.Power, nil
	case domain.SourceHeartRate:
		return d.HeartRate, nil
	case domain.SourceSteering:
		return d.Steering, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSource, src)
}

// Disconnect resets the decoder of a source.
func (d *Dispatcher) Disconnect(src domain.Source) error {
	r, err := d.Decoder(src)
	if err != nil {
		return err
	}
	r.Reset()
	return nil
}

// Run dispatches notifications until ctx is done or in is closed. A bad
// notification is logged and dropped.
func (d *Dispatcher) Run(ctx context.Context, in <-chan domain.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-in:
			if !ok {
				return
			}
			if err := d.Dispatch(n); err != nil {
				log.Printf("[BLE] dropped %s notification: %v", n.Source, err)
			}
		}
	}
}
