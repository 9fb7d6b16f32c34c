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

// Package archive writes sessions as columnar Parquet files, one row per
// sample, for offline analysis.
package archive

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"

	"bike-trainer/internal/service/session"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

// Row is one sample. Null values are written as NaN.
type Row struct {
	SessionID  string  `parquet:"name=session_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	TSUTCISO   string  `parquet:"name=ts_utc_iso, type=BYTE_ARRAY, convertedtype=UTF8"`
	ElapsedMs  int64   `parquet:"name=elapsed_ms, type=INT64"`
	Lap        int32   `parquet:"name=lap, type=INT32"`
	PowerW     float64 `parquet:"name=power_w, type=DOUBLE"`
	CadenceRPM float64 `parquet:"name=cadence_rpm, type=DOUBLE"`
	SpeedKmh   float64 `parquet:"name=speed_kmh, type=DOUBLE"`
	DistanceM  float64 `parquet:"name=distance_m, type=DOUBLE"`
	EnergyKJ   float64 `parquet:"name=energy_kj, type=DOUBLE"`
	HRBPM      float64 `parquet:"name=hr_bpm, type=DOUBLE"`
	Heartbeats float64 `parquet:"name=heartbeats, type=DOUBLE"`
}

const parallelism = 4

// Rows flattens a snapshot. Lap numbers follow the snapshot's lap intervals.
func Rows(snap session.Snapshot) ([]Row, error) {
	laps, err := snap.LapIntervals()
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}

	rows := make([]Row, 0, snap.Len())
	for _, l := range laps {
		for i := l.First; i <= l.Last; i++ {
			rows = append(rows, Row{
				SessionID:  snap.ID,
				TSUTCISO:   snap.At(snap.ElapsedMs[i]).UTC().Format("2006-01-02T15:04:05.000Z"),
				ElapsedMs:  snap.ElapsedMs[i],
				Lap:        int32(l.Index + 1),
				PowerW:     valueOrNaN(snap.Power[i]),
				CadenceRPM: valueOrNaN(snap.Cadence[i]),
				SpeedKmh:   valueOrNaN(snap.Speed[i]),
				DistanceM:  valueOrNaN(snap.Distance[i]),
				EnergyKJ:   valueOrNaN(snap.Energy[i]),
				HRBPM:      valueOrNaN(snap.HeartRate[i]),
				Heartbeats: valueOrNaN(snap.Heartbeats[i]),
			})
		}
	}
	return rows, nil
}

// Marshal encodes the session as an in-memory Parquet file.
func Marshal(snap session.Snapshot) ([]byte, error) {
	rows, err := Rows(snap)
	if err != nil {
		return nil, err
	}

	fw := parquetbuffer.NewBufferFile()
	if err := write(fw, rows); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

// WriteFile writes the session to path, creating its directory.
func WriteFile(path string, snap session.Snapshot) error {
	rows, err := Rows(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if err := write(fw, rows); err != nil {
		_ = fw.Close()
		return err
	}
	if err := fw.Close(); err != nil {
		return err
	}
	log.Printf("[EXPORT] Parquet saved: %s (%d rows)", path, len(rows))
	return nil
}

func write(fw source.ParquetFile, rows []Row) error {
	pw, err := writer.NewParquetWriter(fw, new(Row), parallelism)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return fmt.Errorf("archive: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return nil
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
