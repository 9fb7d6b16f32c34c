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
	"errors"
	"math"
	"testing"
	"time"
)

type wheelData struct {
	revs  uint32
	ticks uint16
}

type crankData struct {
	revs  uint16
	ticks uint16
}

type powerFields struct {
	power  int16
	wheel  *wheelData
	crank  *crankData
	energy *uint16
}

// buildPowerPayload lays out a Cycling Power Measurement the way the
// transmitter does.
func buildPowerPayload(t *testing.T, f powerFields) []byte {
	t.Helper()

	var fields []Field
	if f.wheel != nil {
		fields = append(fields, FieldWheelRevolutionData)
	}
	if f.crank != nil {
		fields = append(fields, FieldCrankRevolutionData)
	}
	if f.energy != nil {
		fields = append(fields, FieldAccumulatedEnergy)
	}
	b0, b1 := EncodeFlags(NewFlagSet(fields...))

	buf := []byte{b0, b1}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(f.power))
	if f.wheel != nil {
		buf = binary.LittleEndian.AppendUint32(buf, f.wheel.revs)
		buf = binary.LittleEndian.AppendUint16(buf, f.wheel.ticks)
	}
	if f.crank != nil {
		buf = binary.LittleEndian.AppendUint16(buf, f.crank.revs)
		buf = binary.LittleEndian.AppendUint16(buf, f.crank.ticks)
	}
	if f.energy != nil {
		buf = binary.LittleEndian.AppendUint16(buf, *f.energy)
	}
	return buf
}

func mustUpdatePower(t *testing.T, d *CyclingPowerDecoder, f powerFields, at time.Time) powerView {
	t.Helper()
	sample, err := d.Update(buildPowerPayload(t, f), at)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	return powerView{sample.PowerWatts, sample.CadenceRPM, sample.SpeedKmh, sample.AccumulatedEnergyKJ, sample.AccumulatedDistance}
}

// powerView is a PowerSample without its timestamp.
type powerView struct {
	Power    int16
	Cadence  *float64
	Speed    *float64
	Energy   float64
	Distance float64
}

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestPowerOnlyPayload(t *testing.T) {
	d := NewCyclingPowerDecoder()

	s := mustUpdatePower(t, d, powerFields{power: 200}, t0)
	if s.Power != 200 {
		t.Fatalf("power = %d, want 200", s.Power)
	}
	if s.Cadence != nil || s.Speed != nil {
		t.Fatalf("cadence/speed should be absent: %+v", s)
	}
	if s.Energy != 0 {
		t.Fatalf("energy = %v, want 0 on first notification", s.Energy)
	}
}

func TestPowerIntegratesEnergyWithPreviousPower(t *testing.T) {
	d := NewCyclingPowerDecoder()

	mustUpdatePower(t, d, powerFields{power: 200}, t0)
	s := mustUpdatePower(t, d, powerFields{power: 300}, t0.Add(time.Second))
	if !approx(s.Energy, 0.2) {
		t.Fatalf("energy = %v, want 0.2", s.Energy)
	}

	s = mustUpdatePower(t, d, powerFields{power: 300}, t0.Add(2*time.Second))
	if !approx(s.Energy, 0.5) {
		t.Fatalf("energy = %v, want 0.5", s.Energy)
	}

	// A gap over 3 s integrates nothing.
	s = mustUpdatePower(t, d, powerFields{power: 300}, t0.Add(6*time.Second))
	if !approx(s.Energy, 0.5) {
		t.Fatalf("energy after gap = %v, want 0.5", s.Energy)
	}
}

func TestPowerReadsAccumulatedEnergy(t *testing.T) {
	d := NewCyclingPowerDecoder()
	kj := uint16(1234)

	s := mustUpdatePower(t, d, powerFields{
		power:  180,
		wheel:  &wheelData{revs: 1, ticks: 0},
		crank:  &crankData{revs: 1, ticks: 0},
		energy: &kj,
	}, t0)
	if s.Energy != 1234 {
		t.Fatalf("energy = %v, want 1234", s.Energy)
	}
}

func TestPowerWheelSpeedAndDistance(t *testing.T) {
	d := NewCyclingPowerDecoder()

	s := mustUpdatePower(t, d, powerFields{power: 150, wheel: &wheelData{revs: 100, ticks: 1000}}, t0)
	if s.Speed == nil || *s.Speed != 0 {
		t.Fatalf("stale speed = %v, want 0", s.Speed)
	}
	if !approx(s.Distance, 100*2*math.Pi*WheelRadius) {
		t.Fatalf("distance = %v", s.Distance)
	}

	s = mustUpdatePower(t, d, powerFields{power: 150, wheel: &wheelData{revs: 110, ticks: 2048}}, t0.Add(time.Second))
	rpm := 2048.0 * 60 * 10 / 1048
	want := rpm * 3 / 25 * math.Pi * 0.311
	if !approx(*s.Speed, want) {
		t.Fatalf("speed = %v, want %v", *s.Speed, want)
	}

	// No revolutions under load: hold the last non-zero rate.
	s = mustUpdatePower(t, d, powerFields{power: 150, wheel: &wheelData{revs: 110, ticks: 3000}}, t0.Add(2*time.Second))
	if !approx(*s.Speed, want) {
		t.Fatalf("held speed = %v, want %v", *s.Speed, want)
	}

	// Without load the wheel is reported stopped.
	s = mustUpdatePower(t, d, powerFields{power: 0, wheel: &wheelData{revs: 110, ticks: 4000}}, t0.Add(3*time.Second))
	if *s.Speed != 0 {
		t.Fatalf("speed without load = %v, want 0", *s.Speed)
	}
}

func TestPowerCrankCadence(t *testing.T) {
	d := NewCyclingPowerDecoder()

	s := mustUpdatePower(t, d, powerFields{power: 100, crank: &crankData{revs: 10, ticks: 1024}}, t0)
	if s.Cadence == nil || *s.Cadence != 0 {
		t.Fatalf("stale cadence = %v, want 0", s.Cadence)
	}

	s = mustUpdatePower(t, d, powerFields{power: 100, crank: &crankData{revs: 11, ticks: 2048}}, t0.Add(time.Second))
	if !approx(*s.Cadence, 60) {
		t.Fatalf("cadence = %v, want 60", *s.Cadence)
	}

	// Duplicate crank event keeps the previous cadence.
	s = mustUpdatePower(t, d, powerFields{power: 100, crank: &crankData{revs: 11, ticks: 2048}}, t0.Add(2*time.Second))
	if !approx(*s.Cadence, 60) {
		t.Fatalf("cadence on duplicate = %v, want 60", *s.Cadence)
	}

	s = mustUpdatePower(t, d, powerFields{power: 100, crank: &crankData{revs: 13, ticks: 3072}}, t0.Add(3*time.Second))
	if !approx(*s.Cadence, 120) {
		t.Fatalf("cadence = %v, want 120", *s.Cadence)
	}
}

func TestPowerShortPayloadLeavesStateUntouched(t *testing.T) {
	d := NewCyclingPowerDecoder()
	mustUpdatePower(t, d, powerFields{power: 250}, t0)

	full := buildPowerPayload(t, powerFields{power: 400, wheel: &wheelData{revs: 5, ticks: 5}})
	for _, payload := range [][]byte{full[:3], full[:len(full)-1]} {
		_, err := d.Update(payload, t0.Add(time.Second))
		if !errors.Is(err, ErrShortPayload) {
			t.Fatalf("err = %v, want ErrShortPayload", err)
		}
	}

	s, ok := d.Latest()
	if !ok || s.PowerWatts != 250 || !s.Timestamp.Equal(t0) {
		t.Fatalf("state changed by rejected payload: %+v", s)
	}
}

func TestPowerReset(t *testing.T) {
	d := NewCyclingPowerDecoder()
	mustUpdatePower(t, d, powerFields{power: 200, crank: &crankData{revs: 1, ticks: 0}}, t0)
	mustUpdatePower(t, d, powerFields{power: 200, crank: &crankData{revs: 2, ticks: 1024}}, t0.Add(time.Second))

	d.Reset()
	if _, ok := d.Latest(); ok {
		t.Fatal("Latest reported a sample after reset")
	}
	if _, ok := d.LastNotification(); ok {
		t.Fatal("LastNotification reported a time after reset")
	}

	s := mustUpdatePower(t, d, powerFields{power: 200, crank: &crankData{revs: 3, ticks: 2048}}, t0.Add(2*time.Second))
	if s.Energy != 0 || *s.Cadence != 0 {
		t.Fatalf("first sample after reset = %+v, cadence %v", s, *s.Cadence)
	}
}
