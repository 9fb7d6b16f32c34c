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

package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"bike-trainer/internal/domain"
	"bike-trainer/internal/service/session"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T) *Service {
	t.Helper()
	s, err := NewService(filepath.Join(t.TempDir(), "trainer.db"))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func recorded(t *testing.T, samples int) session.Snapshot {
	t.Helper()
	now := t0
	r := session.NewRecorder(func() time.Time { return now })
	r.Start()
	for i := 1; i <= samples; i++ {
		now = t0.Add(time.Duration(i) * time.Second)
		r.Sample(session.Sample{Power: session.Float(float64(100 + i)), Distance: session.Float(float64(10 * i))})
	}
	return r.Snapshot()
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newService(t)
	snap := recorded(t, 3)

	if err := s.SaveSnapshot(snap, false); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	got, err := s.LoadSnapshot(snap.ID)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if got.ID != snap.ID || got.Len() != 3 || !got.StartTime.Equal(snap.StartTime) {
		t.Fatalf("restored %s with %d samples at %s", got.ID, got.Len(), got.StartTime)
	}
	if *got.Power[2] != 103 || *got.Distance[2] != 30 {
		t.Errorf("last sample = %v W %v m", *got.Power[2], *got.Distance[2])
	}
	if got.Cadence[0] != nil {
		t.Errorf("null cadence restored as %v", *got.Cadence[0])
	}
	if err := got.Validate(); err != nil {
		t.Errorf("restored snapshot invalid: %v", err)
	}
}

func TestSaveSnapshotReplaces(t *testing.T) {
	s := newService(t)
	first := recorded(t, 2)
	if err := s.SaveSnapshot(first, false); err != nil {
		t.Fatal(err)
	}

	later := recorded(t, 5)
	later.ID = first.ID
	if err := s.SaveSnapshot(later, true); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := s.LoadSnapshot(first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 5 {
		t.Errorf("got %d samples, want the replacement's 5", got.Len())
	}
	open, err := s.UnfinishedSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 0 {
		t.Errorf("finished session still listed as unfinished: %+v", open)
	}
}

func TestUnfinishedSessions(t *testing.T) {
	s := newService(t)
	snap := recorded(t, 1)
	if err := s.SaveSnapshot(snap, false); err != nil {
		t.Fatal(err)
	}

	open, err := s.UnfinishedSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].ID != snap.ID || open[0].Samples != 1 {
		t.Fatalf("unfinished = %+v", open)
	}
}

func TestLoadSnapshotNotFound(t *testing.T) {
	s := newService(t)
	if _, err := s.LoadSnapshot("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestActivityTotals(t *testing.T) {
	s := newService(t)
	if got := s.GetTotalDistance(); got != 0 {
		t.Errorf("empty total distance = %f", got)
	}

	march := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	april := time.Date(2026, 4, 2, 18, 0, 0, 0, time.UTC)
	for _, a := range []domain.Activity{
		{SessionID: "a", StartTime: march, Duration: 3600, TotalDistance: 30000},
		{SessionID: "b", StartTime: march.AddDate(0, 0, 5), Duration: 1800, TotalDistance: 15000},
		{SessionID: "c", StartTime: april, Duration: 600, TotalDistance: 5000},
	} {
		a := a
		if err := s.SaveActivity(&a); err != nil {
			t.Fatalf("SaveActivity: %v", err)
		}
		if a.ID == 0 {
			t.Error("activity id not assigned")
		}
	}

	if got := s.GetTotalDistance(); got != 50000 {
		t.Errorf("total distance = %f, want 50000", got)
	}
	if got := s.GetTotalDuration(); got != 6000 {
		t.Errorf("total duration = %d, want 6000", got)
	}

	inMarch, err := s.GetActivitiesByMonth("2026-03")
	if err != nil {
		t.Fatal(err)
	}
	if len(inMarch) != 2 || inMarch[0].SessionID != "a" {
		t.Errorf("march activities = %+v", inMarch)
	}

	recent, err := s.GetRecentActivities(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Errorf("got %d recent activities, want 1", len(recent))
	}
}

func TestPowerRecords(t *testing.T) {
	s := newService(t)

	curve, err := s.GetPowerCurve()
	if err != nil {
		t.Fatal(err)
	}
	if len(curve) != len(session.EffortDurations) {
		t.Fatalf("got %d seeded records, want %d", len(curve), len(session.EffortDurations))
	}

	updated, err := s.CheckAndUpdateRecord(PowerRecord{Duration: 5, Watts: 450, SessionID: "a", Date: t0})
	if err != nil || !updated {
		t.Fatalf("first record: updated=%v err=%v", updated, err)
	}
	updated, err = s.CheckAndUpdateRecord(PowerRecord{Duration: 5, Watts: 400, SessionID: "b", Date: t0})
	if err != nil || updated {
		t.Fatalf("weaker effort: updated=%v err=%v", updated, err)
	}

	curve, _ = s.GetPowerCurve()
	if curve[1].Duration != 5 || curve[1].Watts != 450 || curve[1].SessionID != "a" {
		t.Errorf("5s record = %+v", curve[1])
	}
}
