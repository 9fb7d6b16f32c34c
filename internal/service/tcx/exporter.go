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

// Package tcx writes recorded sessions as Garmin Training Center XML.
package tcx

import (
	"encoding/xml"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"bike-trainer/internal/service/session"
)

const (
	tcdNamespace = "http://www.garmin.com/xmlschemas/TrainingCenterDatabase/v2"
	tpxNamespace = "http://www.garmin.com/xmlschemas/ActivityExtension/v2"

	timeLayout = "2006-01-02T15:04:05Z"
)

type trainingCenterDatabase struct {
	XMLName    xml.Name   `xml:"TrainingCenterDatabase"`
	Xmlns      string     `xml:"xmlns,attr"`
	Activities activities `xml:"Activities"`
}

type activities struct {
	Activity []activity `xml:"Activity"`
}

type activity struct {
	Sport string `xml:"Sport,attr"`
	ID    string `xml:"Id"`
	Laps  []lap  `xml:"Lap"`
}

type lap struct {
	StartTime        string  `xml:"StartTime,attr"`
	TotalTimeSeconds float64 `xml:"TotalTimeSeconds"`
	DistanceMeters   float64 `xml:"DistanceMeters"`
	Calories         int     `xml:"Calories"`
	Intensity        string  `xml:"Intensity"`
	TriggerMethod    string  `xml:"TriggerMethod"`
	Track            track   `xml:"Track"`
}

type track struct {
	Trackpoints []trackpoint `xml:"Trackpoint"`
}

type trackpoint struct {
	Time           string      `xml:"Time"`
	DistanceMeters *float64    `xml:"DistanceMeters,omitempty"`
	HeartRateBpm   *heartRate  `xml:"HeartRateBpm,omitempty"`
	Cadence        *int        `xml:"Cadence,omitempty"`
	Extensions     *extensions `xml:"Extensions,omitempty"`
}

type heartRate struct {
	Value int `xml:"Value"`
}

type extensions struct {
	TPX tpx `xml:"TPX"`
}

type tpx struct {
	Xmlns string `xml:"xmlns,attr"`
	Watts int    `xml:"Watts"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func round(v float64) int {
	return int(math.Round(v))
}

// Export renders a session with at least one sample. The output only
// depends on the snapshot, so exporting the same session twice yields
// identical bytes. Inconsistent series abort the export with
// session.ErrCorruptSession and no output.
func Export(snap session.Snapshot) ([]byte, error) {
	laps, err := snap.LapIntervals()
	if err != nil {
		return nil, fmt.Errorf("tcx export: %w", err)
	}

	act := activity{
		Sport: "Biking",
		ID:    formatTime(snap.StartTime),
	}
	for _, l := range laps {
		act.Laps = append(act.Laps, buildLap(snap, l))
	}

	doc := trainingCenterDatabase{
		Xmlns:      tcdNamespace,
		Activities: activities{Activity: []activity{act}},
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("tcx export: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

func buildLap(snap session.Snapshot, l session.LapInterval) lap {
	out := lap{
		StartTime:        formatTime(snap.At(l.StartMs)),
		TotalTimeSeconds: math.Round(float64(l.EndMs-l.StartMs) / 1000),
		Intensity:        "Active",
		TriggerMethod:    "Manual",
	}
	if l.Empty() {
		return out
	}

	if d, ok := span(snap.Distance, l.First, l.Last); ok {
		out.DistanceMeters = math.Round(d)
	}
	if kj, ok := span(snap.Energy, l.First, l.Last); ok {
		out.Calories = round(kj * session.KJToKcal)
	}

	baseline := 0.0
	if v := snap.Distance[l.First]; v != nil {
		baseline = *v
	}

	for i := l.First; i <= l.Last; i++ {
		tp := trackpoint{Time: formatTime(snap.At(snap.ElapsedMs[i]))}
		if v := snap.HeartRate[i]; v != nil {
			tp.HeartRateBpm = &heartRate{Value: round(*v)}
		}
		if v := snap.Distance[i]; v != nil {
			d := math.Floor(*v - baseline)
			tp.DistanceMeters = &d
		}
		if v := snap.Cadence[i]; v != nil {
			c := round(*v)
			tp.Cadence = &c
		}
		if v := snap.Power[i]; v != nil {
			tp.Extensions = &extensions{TPX: tpx{Xmlns: tpxNamespace, Watts: round(*v)}}
		}
		out.Track.Trackpoints = append(out.Track.Trackpoints, tp)
	}
	return out
}

func span(values []*float64, first, last int) (float64, bool) {
	if values[first] == nil || values[last] == nil {
		return 0, false
	}
	return *values[last] - *values[first], true
}

// Save exports the session to path, creating its directory.
func Save(path string, snap session.Snapshot) error {
	data, err := Export(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("tcx save: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("tcx save: %w", err)
	}
	log.Printf("[EXPORT] TCX saved: %s", path)
	return nil
}
