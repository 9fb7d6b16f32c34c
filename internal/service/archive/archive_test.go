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

package archive

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bike-trainer/internal/service/session"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return session.Float(v) }

func twoLaps(t *testing.T) session.Snapshot {
	t.Helper()
	now := t0
	r := session.NewRecorder(func() time.Time { return now })
	r.Start()

	now = t0.Add(time.Second)
	r.Sample(session.Sample{Power: f(180), Distance: f(8), HeartRate: f(110)})
	now = t0.Add(2 * time.Second)
	r.Sample(session.Sample{Power: f(190), Cadence: f(85), Distance: f(16)})
	now = t0.Add(2500 * time.Millisecond)
	r.Lap()
	now = t0.Add(3 * time.Second)
	r.Sample(session.Sample{Power: f(300), Cadence: f(95), Distance: f(25)})
	now = t0.Add(4 * time.Second)
	r.Stop()
	return r.Snapshot()
}

func TestRows(t *testing.T) {
	rows, err := Rows(twoLaps(t))
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].Lap != 1 || rows[1].Lap != 1 || rows[2].Lap != 2 {
		t.Errorf("laps = %d %d %d", rows[0].Lap, rows[1].Lap, rows[2].Lap)
	}
	if !math.IsNaN(rows[0].CadenceRPM) {
		t.Errorf("null cadence = %f, want NaN", rows[0].CadenceRPM)
	}
	if rows[0].TSUTCISO != "2026-03-14T09:00:01.000Z" {
		t.Errorf("timestamp = %s", rows[0].TSUTCISO)
	}
	if rows[2].ElapsedMs != 3000 || rows[2].PowerW != 300 {
		t.Errorf("last row = %+v", rows[2])
	}
}

func TestMarshalReadsBack(t *testing.T) {
	snap := twoLaps(t)
	data, err := Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("PAR1")) || !bytes.HasSuffix(data, []byte("PAR1")) {
		t.Fatal("output is not framed by the Parquet magic")
	}

	fr := parquetbuffer.NewBufferFileFromBytes(data)
	pr, err := reader.NewParquetReader(fr, new(Row), parallelism)
	if err != nil {
		t.Fatalf("NewParquetReader: %v", err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	if n != 3 {
		t.Fatalf("file has %d rows, want 3", n)
	}
	rows := make([]Row, n)
	if err := pr.Read(&rows); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rows[1].SessionID != snap.ID || rows[1].CadenceRPM != 85 {
		t.Errorf("row 1 = %+v", rows[1])
	}
	if !math.IsNaN(rows[2].HRBPM) {
		t.Errorf("null heart rate read back as %f", rows[2].HRBPM)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive", "ride.parquet")
	if err := WriteFile(path, twoLaps(t)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("PAR1")) {
		t.Error("file does not start with the Parquet magic")
	}
}

func TestRejectsEmptySession(t *testing.T) {
	r := session.NewRecorder(func() time.Time { return t0 })
	r.Start()
	if _, err := Marshal(r.Snapshot()); !errors.Is(err, session.ErrEmptySession) {
		t.Fatalf("err = %v, want ErrEmptySession", err)
	}
}
