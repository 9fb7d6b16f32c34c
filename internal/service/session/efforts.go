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

// EffortDurations are the power-curve windows in seconds: 1s, 5s, 15s, 30s, 1m, 5m, 10m, 20m.
var EffortDurations = []int{1, 5, 15, 30, 60, 300, 600, 1200}

// Effort is the best average power held over a window.
type Effort struct {
	Duration int // seconds
	Watts    int
}

// PowerBySecond resamples the power series to one value per whole second of
// the session. Each second takes the last sample at or before its end; seconds
// before the first sample are 0.
func (s Snapshot) PowerBySecond() []int {
	seconds := int(s.DurationMs / 1000)
	out := make([]int, seconds)

	idx := -1
	for sec := 0; sec < seconds; sec++ {
		end := int64(sec+1) * 1000
		for idx+1 < s.Len() && s.ElapsedMs[idx+1] <= end {
			idx++
		}
		if idx >= 0 && s.Power[idx] != nil {
			out[sec] = int(*s.Power[idx])
		}
	}
	return out
}

// MeanMaxPower is the highest average over any window of consecutive
// seconds, 0 when the data is shorter than the window.
func MeanMaxPower(data []int, window int) int {
	if window <= 0 || len(data) < window {
		return 0
	}

	currentSum := 0
	for i := 0; i < window; i++ {
		currentSum += data[i]
	}
	maxSum := currentSum

	for i := window; i < len(data); i++ {
		currentSum += data[i] - data[i-window]
		if currentSum > maxSum {
			maxSum = currentSum
		}
	}

	return maxSum / window
}

// PowerCurve returns the efforts of every window the session is long enough for.
func (s Snapshot) PowerCurve() []Effort {
	data := s.PowerBySecond()

	var out []Effort
	for _, d := range EffortDurations {
		if len(data) < d {
			break
		}
		out = append(out, Effort{Duration: d, Watts: MeanMaxPower(data, d)})
	}
	return out
}
