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

import "math"

const (
	WattsToKcalPerHour = 0.8598452279
	KJToKcal           = 0.2390057361
	msPerHour          = 3600000
)

// Mode selects the range an aggregate covers.
type Mode int

const (
	Total Mode = iota // from session start
	Lap               // from the start of the current lap
)

func (m Mode) String() string {
	if m == Lap {
		return "lap"
	}
	return "total"
}

// Stat is one row of the session table. Nil means not available yet.
type Stat struct {
	Current     *float64 `json:"current"`
	Accumulated *float64 `json:"accumulated"`
	Average     *float64 `json:"average"`
	Max         *float64 `json:"max"`
}

// Aggregates are the read-time reductions over a range of the series.
//
//	HeartRate: accumulated beats, average and max bpm
//	Power:     accumulated kJ, average and max W
//	Energy:    accumulated kcal, average and max kcal/h
//	Speed:     accumulated km, average and max km/h
//	Cadence:   average and max rpm
type Aggregates struct {
	Mode      Mode  `json:"mode"`
	Samples   int   `json:"samples"`
	SpanMs    int64 `json:"spanMs"`
	HeartRate Stat  `json:"heartRate"`
	Power     Stat  `json:"power"`
	Energy    Stat  `json:"energy"`
	Speed     Stat  `json:"speed"`
	Cadence   Stat  `json:"cadence"`
}

// Aggregates reduces the series over the whole session or the current lap.
// Averages are taken over the time spanned by the samples in range.
func (r *Recorder) Aggregates(mode Mode) Aggregates {
	r.mu.Lock()
	defer r.mu.Unlock()

	from := 0
	if mode == Lap {
		from = r.lapStarts[len(r.lapStarts)-1]
	}
	var maxima *Maxima
	if mode == Total {
		maxima = &r.max
	}
	return aggregate(&r.series, from, mode, maxima)
}

// aggregate reduces s[from:]. Running maxima are used when given, otherwise
// maxima are scanned from the range.
func aggregate(s *Series, from int, mode Mode, maxima *Maxima) Aggregates {
	n := s.Len()
	a := Aggregates{Mode: mode}
	if n == 0 || from >= n {
		return a
	}
	last := n - 1
	a.Samples = n - from
	a.SpanMs = max(s.ElapsedMs[last]-s.ElapsedMs[from], 1)
	spanMs := float64(a.SpanMs)

	a.HeartRate.Current = copyPtr(s.HeartRate[last])
	a.Power.Current = copyPtr(s.Power[last])
	if p := s.Power[last]; p != nil {
		a.Energy.Current = Float(math.Round(*p * WattsToKcalPerHour))
	}
	a.Speed.Current = copyPtr(s.Speed[last])
	a.Cadence.Current = copyPtr(s.Cadence[last])

	m := Maxima{}
	if maxima != nil {
		m = *maxima
	} else {
		m.Power = largestFrom(s.Power, from)
		m.Cadence = largestFrom(s.Cadence, from)
		m.HeartRate = largestFrom(s.HeartRate, from)
		m.Speed = largestFrom(s.Speed, from)
	}

	// Every reduction below needs two samples.
	if n < 2 {
		return a
	}

	if beats, ok := delta(s.Heartbeats, from, last); ok {
		a.HeartRate.Accumulated = Float(math.Floor(beats))
		a.HeartRate.Average = Float(math.Floor(beats / spanMs * 60 * 1000))
	}
	if m.HeartRate != 0 {
		a.HeartRate.Max = Float(math.Floor(m.HeartRate))
	}

	a.Power.Max = Float(math.Floor(m.Power))
	a.Energy.Max = Float(math.Floor(m.Power * WattsToKcalPerHour))
	if kj, ok := delta(s.Energy, from, last); ok {
		a.Power.Accumulated = Float(math.Floor(kj))
		a.Power.Average = Float(math.Floor(kj / (spanMs / 1000) * 1000))
		a.Energy.Accumulated = Float(math.Floor(kj * KJToKcal))
		a.Energy.Average = Float(math.Floor(kj * KJToKcal * msPerHour / spanMs))
	}

	a.Speed.Max = Float(roundTenth(m.Speed))
	if meters, ok := delta(s.Distance, from, last); ok {
		km := meters / 1000
		a.Speed.Accumulated = Float(math.Floor(km))
		a.Speed.Average = Float(roundTenth(km * msPerHour / spanMs))
	}

	a.Cadence.Average = Float(math.Floor(sumFrom(s.Cadence, from) / float64(n-from)))
	a.Cadence.Max = Float(math.Floor(m.Cadence))
	return a
}

func copyPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return Float(*v)
}

// delta is values[to] - values[from], unavailable when either is null.
func delta(values []*float64, from, to int) (float64, bool) {
	if values[from] == nil || values[to] == nil {
		return 0, false
	}
	return *values[to] - *values[from], true
}

// largestFrom skips nulls and zeros, like the running maxima.
func largestFrom(values []*float64, from int) float64 {
	largest := 0.0
	for _, v := range values[from:] {
		raiseMax(&largest, v)
	}
	return largest
}

func sumFrom(values []*float64, from int) float64 {
	sum := 0.0
	for _, v := range values[from:] {
		if v != nil {
			sum += *v
		}
	}
	return sum
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
