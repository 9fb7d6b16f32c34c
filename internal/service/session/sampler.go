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

package session

import (
	"context"
	"time"

	"bike-trainer/internal/domain"
)

// DefaultSampleInterval is how often the sampler polls the sensors.
const DefaultSampleInterval = 450 * time.Millisecond

// Sampler feeds the recorder at a fixed rate, at most once per distinct
// power notification.
type Sampler struct {
	recorder  *Recorder
	power     domain.PowerSource
	heartRate domain.HeartRateSource

	lastSampled time.Time
}

func NewSampler(recorder *Recorder, power domain.PowerSource, heartRate domain.HeartRateSource) *Sampler {
	return &Sampler{recorder: recorder, power: power, heartRate: heartRate}
}

// Tick samples the sensors if a new power notification arrived since the
// previous tick. Heart rate is attached only while its sensor is connected.
func (s *Sampler) Tick() bool {
	p, ok := s.power.Latest()
	if !ok || p.Timestamp.Equal(s.lastSampled) {
		return false
	}
	s.lastSampled = p.Timestamp

	v := Sample{
		Power:    Float(float64(p.PowerWatts)),
		Cadence:  copyPtr(p.CadenceRPM),
		Speed:    copyPtr(p.SpeedKmh),
		Distance: Float(p.AccumulatedDistance),
		Energy:   Float(p.AccumulatedEnergyKJ),
	}
	if s.heartRate != nil {
		if hr, ok := s.heartRate.Latest(); ok {
			v.HeartRate = Float(float64(hr.HeartRateBPM))
			v.Heartbeats = Float(hr.AccumulatedHeartbeats)
		}
	}
	return s.recorder.Sample(v)
}

// Run ticks every interval until ctx is done.
func (s *Sampler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}
