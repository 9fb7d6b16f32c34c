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
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is a read-only copy of a session, also its JSON projection.
type Snapshot struct {
	ID              string    `json:"id"`
	State           string    `json:"state"`
	StartTime       time.Time `json:"startTime"`
	DurationMs      int64     `json:"durationMs"`
	Laps            []int64   `json:"laps"`
	LapStartIndices []int     `json:"lapStartIndices"`
	Maxima          Maxima    `json:"maxima"`
	Series
}

// Snapshot copies the current session. The copy shares no memory with the
// recorder.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Snapshot{
		ID:              r.id,
		State:           r.state.String(),
		StartTime:       r.start,
		DurationMs:      r.durationLocked(),
		Laps:            append([]int64(nil), r.laps...),
		LapStartIndices: append([]int(nil), r.lapStarts...),
		Maxima:          r.max,
		Series:          r.series.clone(),
	}
}

func (r *Recorder) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Snapshot())
}

// EndTime is the absolute time the session ended, or was snapshotted.
func (s Snapshot) EndTime() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationMs) * time.Millisecond)
}

// At converts an elapsed offset to absolute time.
func (s Snapshot) At(elapsedMs int64) time.Time {
	return s.StartTime.Add(time.Duration(elapsedMs) * time.Millisecond)
}

// LapInterval is one lap of a snapshot: its [StartMs, EndMs) time range and
// the samples [First, Last] that fall inside it. Last < First for a lap
// without samples.
type LapInterval struct {
	Index   int
	StartMs int64
	EndMs   int64
	First   int
	Last    int
}

func (l LapInterval) Empty() bool {
	return l.Last < l.First
}

// Validate checks the structural invariants every exporter relies on.
func (s Snapshot) Validate() error {
	n := s.Len()
	if n == 0 {
		return ErrEmptySession
	}

	for name, l := range map[string]int{
		"power": len(s.Power), "cadence": len(s.Cadence), "speed": len(s.Speed),
		"accumulatedDistance": len(s.Distance), "accumulatedEnergy": len(s.Energy),
		"hr": len(s.HeartRate), "accumulatedHeartBeats": len(s.Heartbeats),
	} {
		if l != n {
			return fmt.Errorf("%w: %s has %d entries, accumulatedTime has %d", ErrCorruptSession, name, l, n)
		}
	}

	if len(s.Laps) == 0 || s.Laps[0] != 0 {
		return fmt.Errorf("%w: laps must start at 0", ErrCorruptSession)
	}
	for i := 1; i < len(s.Laps); i++ {
		if s.Laps[i] <= s.Laps[i-1] {
			return fmt.Errorf("%w: lap %d starts at %d ms, not after %d ms", ErrCorruptSession, i, s.Laps[i], s.Laps[i-1])
		}
	}
	if len(s.LapStartIndices) != len(s.Laps) {
		return fmt.Errorf("%w: %d lap start indices for %d laps", ErrCorruptSession, len(s.LapStartIndices), len(s.Laps))
	}
	for i, idx := range s.LapStartIndices {
		if idx < 0 || idx >= n {
			return fmt.Errorf("%w: lap %d start index %d outside %d samples", ErrCorruptSession, i, idx, n)
		}
	}

	for i, ms := range s.ElapsedMs {
		if ms < 0 || (i > 0 && ms < s.ElapsedMs[i-1]) {
			return fmt.Errorf("%w: elapsed time goes backwards at sample %d", ErrCorruptSession, i)
		}
	}
	if last := s.ElapsedMs[n-1]; last > s.DurationMs {
		return fmt.Errorf("%w: sample at %d ms after session end %d ms", ErrCorruptSession, last, s.DurationMs)
	}
	return nil
}

// LapIntervals walks the samples lap by lap with a single running index.
// Every lap but the last takes the samples before the next lap starts; the
// last lap runs to the session end and takes the rest. A sample taken at
// exactly a lap boundary opens the new lap, matching the start index the
// recorder stored for it, and belongs to no other lap.
func (s Snapshot) LapIntervals() ([]LapInterval, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	n := s.Len()
	out := make([]LapInterval, 0, len(s.Laps))
	idx := 0
	for i, start := range s.Laps {
		lap := LapInterval{Index: i, StartMs: start, First: idx}

		if i < len(s.Laps)-1 {
			lap.EndMs = s.Laps[i+1]
			for idx < n && s.ElapsedMs[idx] < lap.EndMs {
				idx++
			}
		} else {
			lap.EndMs = max(s.DurationMs, start)
			idx = n
		}

		lap.Last = idx - 1
		out = append(out, lap)
	}
	return out, nil
}
