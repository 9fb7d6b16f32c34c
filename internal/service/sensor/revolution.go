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

// Event time resolutions of the revolution data fields.
const (
	WheelTicksPerSecond = 2048.0
	CrankTicksPerSecond = 1024.0
)

// RevolutionReading is the outcome of one tracker update.
type RevolutionReading struct {
	Rate float64 // revolutions per minute, 0 when no delta was usable

	// Stale is set on the first reading after a (re)connect.
	Stale bool

	// Anomalous is set when the time delta is not positive or the count went
	// backwards. Counter rollover lands here: it is not unwrapped.
	Anomalous bool
}

// RevolutionTracker turns successive cumulative (count, time) readings of one
// rotating part into a rotational rate.
type RevolutionTracker struct {
	ticksPerMinute float64

	stale           bool
	prevCount       int64
	prevTicks       int64
	lastNonZeroRate float64
}

// NewRevolutionTracker returns a tracker in the Stale state for a counter
// whose event time is expressed in ticks of 1/ticksPerSecond s.
func NewRevolutionTracker(ticksPerSecond float64) *RevolutionTracker {
	return &RevolutionTracker{
		ticksPerMinute: ticksPerSecond * 60,
		stale:          true,
	}
}

// Update feeds one reading. The previous count and time are always replaced
// by the new ones, whatever branch is taken.
func (t *RevolutionTracker) Update(count, ticks int64) RevolutionReading {
	var r RevolutionReading

	if t.stale {
		t.stale = false
		r.Stale = true
	} else {
		dTicks := ticks - t.prevTicks
		dCount := count - t.prevCount

		if dTicks > 0 && dCount >= 0 {
			r.Rate = t.ticksPerMinute * float64(dCount) / float64(dTicks)
			if r.Rate != 0 {
				t.lastNonZeroRate = r.Rate
			}
		} else {
			r.Anomalous = true
		}
	}

	t.prevCount = count
	t.prevTicks = ticks
	return r
}

// LastNonZeroRate is the most recent non-zero rate since the last reset.
func (t *RevolutionTracker) LastNonZeroRate() float64 {
	return t.lastNonZeroRate
}

// IsStale reports whether the next Update has no previous reading to diff against.
func (t *RevolutionTracker) IsStale() bool {
	return t.stale
}

// Reset forces the Stale state and clears the cached counters.
func (t *RevolutionTracker) Reset() {
	t.stale = true
	t.prevCount = 0
	t.prevTicks = 0
	t.lastNonZeroRate = 0
}
