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
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptySession   = errors.New("session has no samples")
	ErrCorruptSession = errors.New("session data corrupted")
)

// State of a recording session.
type State int

const (
	NotStarted State = iota
	Recording
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Recording:
		return "recording"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Sample is one set of sensor values handed to the recorder.
// Nil fields are stored as nulls. A sample without power is ignored.
type Sample struct {
	Power      *float64
	Cadence    *float64 // rpm
	Speed      *float64 // km/h
	Distance   *float64 // accumulated, m
	Energy     *float64 // accumulated, kJ
	HeartRate  *float64 // bpm
	Heartbeats *float64 // accumulated
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Series holds the parallel time series of a session. Every slice has the
// same length; ElapsedMs is the time since session start of each entry.
type Series struct {
	ElapsedMs  []int64    `json:"accumulatedTime"`
	Power      []*float64 `json:"power"`
	Cadence    []*float64 `json:"cadence"`
	Speed      []*float64 `json:"speed"`
	Distance   []*float64 `json:"accumulatedDistance"`
	Energy     []*float64 `json:"accumulatedEnergy"`
	HeartRate  []*float64 `json:"hr"`
	Heartbeats []*float64 `json:"accumulatedHeartBeats"`
}

func (s *Series) Len() int {
	return len(s.ElapsedMs)
}

func (s *Series) append(elapsed int64, v Sample) {
	s.ElapsedMs = append(s.ElapsedMs, elapsed)
	s.Power = append(s.Power, v.Power)
	s.Cadence = append(s.Cadence, v.Cadence)
	s.Speed = append(s.Speed, v.Speed)
	s.Distance = append(s.Distance, v.Distance)
	s.Energy = append(s.Energy, v.Energy)
	s.HeartRate = append(s.HeartRate, v.HeartRate)
	s.Heartbeats = append(s.Heartbeats, v.Heartbeats)
}

func (s *Series) clone() Series {
	return Series{
		ElapsedMs:  append([]int64(nil), s.ElapsedMs...),
		Power:      clonePtrs(s.Power),
		Cadence:    clonePtrs(s.Cadence),
		Speed:      clonePtrs(s.Speed),
		Distance:   clonePtrs(s.Distance),
		Energy:     clonePtrs(s.Energy),
		HeartRate:  clonePtrs(s.HeartRate),
		Heartbeats: clonePtrs(s.Heartbeats),
	}
}

func clonePtrs(in []*float64) []*float64 {
	out := make([]*float64, len(in))
	for i, v := range in {
		if v != nil {
			out[i] = Float(*v)
		}
	}
	return out
}

// Maxima are the running maxima of a session. Zero never updates a maximum.
type Maxima struct {
	Power     float64 `json:"power"`
	Cadence   float64 `json:"cadence"`
	HeartRate float64 `json:"hr"`
	Speed     float64 `json:"speed"`
}

func raiseMax(cur *float64, v *float64) {
	if v != nil && *v != 0 && *v > *cur {
		*cur = *v
	}
}

// Recorder is an append-only session time series with lap boundaries.
// It is safe for concurrent use.
type Recorder struct {
	mu  sync.Mutex
	now func() time.Time

	id    string
	state State
	start time.Time
	end   time.Time

	laps      []int64 // lap start offsets in ms, laps[0] == 0
	lapStarts []int   // sample index each lap's aggregates start from
	series    Series
	max       Maxima
}

// NewRecorder returns a recorder in the NotStarted state. A nil clock
// defaults to time.Now.
func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	r := &Recorder{now: now}
	r.resetLocked()
	return r
}

func (r *Recorder) resetLocked() {
	r.id = ""
	r.state = NotStarted
	r.start = time.Time{}
	r.end = time.Time{}
	r.laps = []int64{0}
	r.lapStarts = []int{0}
	r.series = Series{}
	r.max = Maxima{}
}

// Start begins recording. Starting a stopped session resumes it on the
// same clock, so elapsed times keep increasing across the pause.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case NotStarted:
		r.id = uuid.NewString()
		r.start = r.now()
		log.Printf("[SESSION] %s started", r.id)
	case Stopped:
		log.Printf("[SESSION] %s resumed", r.id)
	default:
		return
	}
	r.end = time.Time{}
	r.state = Recording
}

// Stop freezes the end time. Samples are ignored until the next Start.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Recording {
		return
	}
	r.end = r.now()
	r.state = Stopped
	log.Printf("[SESSION] %s stopped after %s, %d samples", r.id, r.end.Sub(r.start).Round(time.Second), r.series.Len())
}

// Restart discards everything and returns to NotStarted.
func (r *Recorder) Restart() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

// Lap closes the current lap at the current elapsed time, or at the stop
// time while stopped. It does nothing before Start, or when called twice
// within the same millisecond.
func (r *Recorder) Lap() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == NotStarted {
		return false
	}
	elapsed := r.durationLocked()
	if elapsed <= r.laps[len(r.laps)-1] {
		return false
	}

	r.laps = append(r.laps, elapsed)
	r.lapStarts = append(r.lapStarts, max(r.series.Len()-1, 0))
	log.Printf("[SESSION] lap %d at %s", len(r.laps), FormatElapsed(elapsed, false))
	return true
}

// Sample appends one entry to every series. It reports false when the
// sample was ignored.
func (r *Recorder) Sample(v Sample) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Recording || v.Power == nil {
		return false
	}

	elapsed := r.now().Sub(r.start).Milliseconds()
	if n := r.series.Len(); n > 0 && elapsed < r.series.ElapsedMs[n-1] {
		// wall clock stepped back
		elapsed = r.series.ElapsedMs[n-1]
	}
	r.series.append(elapsed, v)

	raiseMax(&r.max.Power, v.Power)
	raiseMax(&r.max.Cadence, v.Cadence)
	raiseMax(&r.max.HeartRate, v.HeartRate)
	raiseMax(&r.max.Speed, v.Speed)
	return true
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// ID is the session id, empty before the first Start.
func (r *Recorder) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.series.Len()
}

func (r *Recorder) Maxima() Maxima {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.max
}

// durationLocked is the elapsed session time: up to the stop time once
// stopped, up to now while recording.
func (r *Recorder) durationLocked() int64 {
	switch r.state {
	case Recording:
		return r.now().Sub(r.start).Milliseconds()
	case Stopped:
		return r.end.Sub(r.start).Milliseconds()
	}
	return 0
}

// ElapsedStrings formats the total and current-lap elapsed times, with
// hundredths while under five seconds.
func (r *Recorder) ElapsedStrings() (total, lap string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == NotStarted {
		zero := FormatElapsed(0, true)
		return zero, zero
	}
	dt := r.durationLocked()
	lapDt := dt - r.laps[len(r.laps)-1]
	return FormatElapsed(dt, dt < 5000), FormatElapsed(lapDt, lapDt < 5000)
}
