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

package fit

import (
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"bike-trainer/internal/domain"
	"bike-trainer/internal/service/session"

	"github.com/muktihari/fit/encoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"
)

// Constant for converting Degrees to Semicircles (FIT Standard)
const degreesToSemicircles = 2147483648.0 / 180.0

// RouteLookup places a ridden distance on a virtual route.
type RouteLookup interface {
	Position(distanceMeter float64) (domain.RoutePoint, bool)
}

// Service writes recorded sessions as FIT activity files.
type Service struct {
	route RouteLookup
}

// NewService returns an exporter. route may be nil; records then carry no position.
func NewService(route RouteLookup) *Service {
	return &Service{route: route}
}

// Encode writes the activity: file id, one record per sample, one lap per
// lap interval, then the session and activity summaries.
func (s *Service) Encode(w io.Writer, snap session.Snapshot) error {
	laps, err := snap.LapIntervals()
	if err != nil {
		return fmt.Errorf("fit export: %w", err)
	}

	start := snap.StartTime
	end := snap.EndTime()
	fit := proto.FIT{}

	fileID := mesgdef.FileId{
		Type:         typedef.FileActivity,
		Manufacturer: typedef.ManufacturerDevelopment,
		Product:      0,
		SerialNumber: 12345,
		TimeCreated:  start,
	}
	fit.Messages = append(fit.Messages, fileID.ToMesg(nil))

	startEvent := mesgdef.Event{
		Timestamp: start,
		Event:     typedef.EventTimer,
		EventType: typedef.EventTypeStart,
	}
	fit.Messages = append(fit.Messages, startEvent.ToMesg(nil))

	for i := 0; i < snap.Len(); i++ {
		fit.Messages = append(fit.Messages, s.record(snap, i).ToMesg(nil))
	}

	stopEvent := mesgdef.Event{
		Timestamp: end,
		Event:     typedef.EventTimer,
		EventType: typedef.EventTypeStopAll,
	}
	fit.Messages = append(fit.Messages, stopEvent.ToMesg(nil))

	for i, l := range laps {
		trigger := typedef.LapTriggerManual
		if i == len(laps)-1 {
			trigger = typedef.LapTriggerSessionEnd
		}
		fit.Messages = append(fit.Messages, lapMesg(snap, l, trigger).ToMesg(nil))
	}

	whole := session.LapInterval{StartMs: 0, EndMs: snap.DurationMs, First: 0, Last: snap.Len() - 1}
	sum := summarize(snap, whole)
	elapsed := uint32(snap.DurationMs)

	sessionMesg := mesgdef.NewSession(nil)
	sessionMesg.Timestamp = end
	sessionMesg.StartTime = start
	sessionMesg.TotalElapsedTime = elapsed // ms
	sessionMesg.TotalTimerTime = elapsed   // ms
	sessionMesg.TotalDistance = sum.distance
	sessionMesg.TotalCalories = sum.calories
	sessionMesg.AvgPower = sum.avgPower
	sessionMesg.MaxPower = sum.maxPower
	sessionMesg.AvgHeartRate = sum.avgHeartRate
	sessionMesg.MaxHeartRate = sum.maxHeartRate
	sessionMesg.AvgCadence = sum.avgCadence
	sessionMesg.MaxCadence = sum.maxCadence
	sessionMesg.NumLaps = uint16(len(laps))
	sessionMesg.FirstLapIndex = 0
	sessionMesg.Sport = typedef.SportCycling
	sessionMesg.SubSport = typedef.SubSportIndoorCycling
	sessionMesg.Event = typedef.EventSession
	sessionMesg.EventType = typedef.EventTypeStop
	sessionMesg.Trigger = typedef.SessionTriggerActivityEnd
	fit.Messages = append(fit.Messages, sessionMesg.ToMesg(nil))

	activityMesg := mesgdef.Activity{
		Timestamp:      end,
		TotalTimerTime: elapsed,
		NumSessions:    1,
		Type:           typedef.ActivityManual,
		Event:          typedef.EventActivity,
		EventType:      typedef.EventTypeStop,
	}
	fit.Messages = append(fit.Messages, activityMesg.ToMesg(nil))

	if err := encoder.New(w).Encode(&fit); err != nil {
		return fmt.Errorf("fit export: %w", err)
	}
	return nil
}

// record converts one sample. Null values stay FIT-invalid.
func (s *Service) record(snap session.Snapshot, i int) *mesgdef.Record {
	rec := mesgdef.NewRecord(nil)
	rec.Timestamp = snap.At(snap.ElapsedMs[i])

	if v := snap.Power[i]; v != nil {
		rec.Power = uint16(clamp(*v, 0, math.MaxUint16-1))
	}
	if v := snap.HeartRate[i]; v != nil {
		rec.HeartRate = uint8(clamp(*v, 0, math.MaxUint8-1))
	}
	if v := snap.Cadence[i]; v != nil {
		rec.Cadence = uint8(clamp(*v, 0, math.MaxUint8-1))
	}
	if v := snap.Speed[i]; v != nil {
		// km/h -> mm/s
		rec.EnhancedSpeed = uint32(clamp(*v/3.6*1000, 0, math.MaxUint32-1))
	}
	if v := snap.Distance[i]; v != nil {
		// m -> cm
		rec.Distance = uint32(clamp(*v*100, 0, math.MaxUint32-1))

		if s.route != nil {
			if p, ok := s.route.Position(*v); ok {
				rec.PositionLat = int32(p.Latitude * degreesToSemicircles)
				rec.PositionLong = int32(p.Longitude * degreesToSemicircles)
				// Scale 5, offset 500 m
				rec.EnhancedAltitude = uint32((p.Elevation + 500.0) * 5.0)
				rec.Grade = int16(p.Grade * 100)
			}
		}
	}
	return rec
}

func lapMesg(snap session.Snapshot, l session.LapInterval, trigger typedef.LapTrigger) *mesgdef.Lap {
	sum := summarize(snap, l)
	elapsed := uint32(l.EndMs - l.StartMs)

	lap := mesgdef.NewLap(nil)
	lap.Timestamp = snap.At(l.EndMs)
	lap.StartTime = snap.At(l.StartMs)
	lap.TotalElapsedTime = elapsed // ms
	lap.TotalTimerTime = elapsed   // ms
	lap.TotalDistance = sum.distance
	lap.TotalCalories = sum.calories
	lap.AvgPower = sum.avgPower
	lap.MaxPower = sum.maxPower
	lap.AvgHeartRate = sum.avgHeartRate
	lap.MaxHeartRate = sum.maxHeartRate
	lap.AvgCadence = sum.avgCadence
	lap.MaxCadence = sum.maxCadence
	lap.Event = typedef.EventLap
	lap.EventType = typedef.EventTypeStop
	lap.LapTrigger = trigger
	lap.Sport = typedef.SportCycling
	return lap
}

type summary struct {
	distance     uint32 // cm
	calories     uint16 // kcal
	avgPower     uint16
	maxPower     uint16
	avgHeartRate uint8
	maxHeartRate uint8
	avgCadence   uint8
	maxCadence   uint8
}

// summarize reduces the samples of an interval. Averages and maxima skip
// nulls; distance and calories come from the accumulated series.
func summarize(snap session.Snapshot, l session.LapInterval) summary {
	var sum summary
	if l.Empty() {
		return sum
	}

	if d, ok := delta(snap.Distance, l.First, l.Last); ok {
		sum.distance = uint32(clamp(d*100, 0, math.MaxUint32-1))
	}
	if kj, ok := delta(snap.Energy, l.First, l.Last); ok {
		sum.calories = uint16(clamp(math.Round(kj*session.KJToKcal), 0, math.MaxUint16-1))
	}

	avg, peak := stats(snap.Power, l.First, l.Last)
	sum.avgPower, sum.maxPower = uint16(clamp(avg, 0, math.MaxUint16-1)), uint16(clamp(peak, 0, math.MaxUint16-1))
	avg, peak = stats(snap.HeartRate, l.First, l.Last)
	sum.avgHeartRate, sum.maxHeartRate = uint8(clamp(avg, 0, 254)), uint8(clamp(peak, 0, 254))
	avg, peak = stats(snap.Cadence, l.First, l.Last)
	sum.avgCadence, sum.maxCadence = uint8(clamp(avg, 0, 254)), uint8(clamp(peak, 0, 254))
	return sum
}

func delta(values []*float64, first, last int) (float64, bool) {
	if values[first] == nil || values[last] == nil {
		return 0, false
	}
	return *values[last] - *values[first], true
}

func stats(values []*float64, first, last int) (avg, peak float64) {
	n := 0
	total := 0.0
	for _, v := range values[first : last+1] {
		if v == nil {
			continue
		}
		total += *v
		peak = math.Max(peak, *v)
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return math.Round(total / float64(n)), math.Round(peak)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Save writes the activity to path, creating its directory.
func (s *Service) Save(path string, snap session.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("fit save: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fit save: %w", err)
	}

	if err := s.Encode(f, snap); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("fit save: %w", err)
	}
	log.Printf("[EXPORT] FIT saved: %s", path)
	return nil
}

// FileName is the default export name of a session.
func FileName(start time.Time) string {
	return fmt.Sprintf("ride_%s.fit", start.Local().Format("2006-01-02_15-04-05"))
}
