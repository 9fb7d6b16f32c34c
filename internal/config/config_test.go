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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	t.Setenv("TRAINER_DATA_DIR", "")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.DBPath != filepath.Join("data", "trainer.db") {
		t.Errorf("DBPath = %s", cfg.DBPath)
	}
	if cfg.SampleInterval != 450*time.Millisecond || cfg.PowerTimeout != time.Minute || cfg.HeartRateTimeout != 6*time.Second {
		t.Errorf("timings = %s %s %s", cfg.SampleInterval, cfg.PowerTimeout, cfg.HeartRateTimeout)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRAINER_DATA_DIR", dir)
	t.Setenv("TRAINER_SIMULATE", "true")
	t.Setenv("TRAINER_RIDER_WEIGHT", "68.5")
	t.Setenv("TRAINER_HR_TIMEOUT", "10s")
	t.Setenv("TRAINER_AUTOSAVE_SCHEDULE", "*/5 * * * *")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.ExportDir != filepath.Join(dir, "exports") {
		t.Errorf("ExportDir = %s", cfg.ExportDir)
	}
	if !cfg.Simulate || cfg.RiderWeightKg != 68.5 || cfg.HeartRateTimeout != 10*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.AutosaveSchedule != "*/5 * * * *" {
		t.Errorf("AutosaveSchedule = %s", cfg.AutosaveSchedule)
	}
}

func TestFromEnvReportsEveryInvalidValue(t *testing.T) {
	t.Setenv("TRAINER_BIKE_WEIGHT", "-3")
	t.Setenv("TRAINER_POWER_TIMEOUT", "soon")
	t.Setenv("TRAINER_WATCHDOG_SCHEDULE", "every second")

	cfg, err := FromEnv()
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, key := range []string{"TRAINER_BIKE_WEIGHT", "TRAINER_POWER_TIMEOUT", "TRAINER_WATCHDOG_SCHEDULE"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error does not mention %s: %v", key, err)
		}
	}
	if cfg.BikeWeightKg != 9 || cfg.PowerTimeout != time.Minute || cfg.WatchdogSchedule != "@every 1s" {
		t.Errorf("invalid values did not fall back to defaults: %+v", cfg)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, "trainer.env")
	if err := os.WriteFile(env, []byte("TRAINER_ROUTE=alpe.gpx\nTRAINER_OPEN_EXPORTS=1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Registered so the values godotenv sets are restored afterwards.
	t.Setenv("TRAINER_ROUTE", "")
	t.Setenv("TRAINER_OPEN_EXPORTS", "")
	os.Unsetenv("TRAINER_ROUTE")
	os.Unsetenv("TRAINER_OPEN_EXPORTS")

	cfg, err := Load(env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RouteFile != "alpe.gpx" || !cfg.OpenExports {
		t.Errorf("cfg = %+v", cfg)
	}
}
