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

import "fmt"

// FormatElapsed renders milliseconds as HH:MM:SS, optionally followed by
// hundredths. Negative durations get a "- " prefix.
func FormatElapsed(ms int64, withFraction bool) string {
	sign := ""
	if ms < 0 {
		sign = "- "
		ms = -ms
	}

	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000

	out := fmt.Sprintf("%s%02d:%02d:%02d", sign, h, m, s)
	if withFraction {
		out += fmt.Sprintf(".%02d", ms/10)
	}
	return out
}
