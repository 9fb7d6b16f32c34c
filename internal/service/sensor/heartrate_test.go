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
	"errors"
	"testing"
	"time"
)

func TestHeartRateIntegratesPreviousRate(t *testing.T) {
	d := NewHeartRateDecoder()

	s, err := d.Update([]byte{0x00, 120}, t0)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if s.HeartRateBPM != 120 || s.AccumulatedHeartbeats != 0 {
		t.Fatalf("first sample = %+v", s)
	}

	s, _ = d.Update([]byte{0x00, 130}, t0.Add(time.Second))
	if !approx(s.AccumulatedHeartbeats, 2) {
		t.Fatalf("beats = %v, want 2", s.AccumulatedHeartbeats)
	}

	// A 6 s gap still counts.
	s, _ = d.Update([]byte{0x00, 130}, t0.Add(7*time.Second))
	if !approx(s.AccumulatedHeartbeats, 2+13) {
		t.Fatalf("beats = %v, want 15", s.AccumulatedHeartbeats)
	}

	// Longer gaps and non-increasing timestamps do not.
	s, _ = d.Update([]byte{0x00, 130}, t0.Add(20*time.Second))
	s, _ = d.Update([]byte{0x00, 130}, t0.Add(20*time.Second))
	if !approx(s.AccumulatedHeartbeats, 15) {
		t.Fatalf("beats = %v, want 15", s.AccumulatedHeartbeats)
	}
}

func TestHeartRateShortPayload(t *testing.T) {
	d := NewHeartRateDecoder()
	if _, err := d.Update([]byte{0x00}, t0); !errors.Is(err, ErrShortPayload) {
		t.Fatalf("err = %v, want ErrShortPayload", err)
	}
	if _, ok := d.Latest(); ok {
		t.Fatal("rejected payload produced a sample")
	}
}

func TestHeartRateReset(t *testing.T) {
	d := NewHeartRateDecoder()
	d.Update([]byte{0x00, 100}, t0)
	d.Update([]byte{0x00, 100}, t0.Add(3*time.Second))

	d.Reset()
	if _, ok := d.LastNotification(); ok {
		t.Fatal("LastNotification after reset")
	}

	s, _ := d.Update([]byte{0x00, 90}, t0.Add(4*time.Second))
	if s.AccumulatedHeartbeats != 0 || s.HeartRateBPM != 90 {
		t.Fatalf("sample after reset = %+v", s)
	}
}
