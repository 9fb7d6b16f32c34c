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
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds the runtime settings. Every field can be set from the
// environment or a .env file.
type Config struct {
	DataDir   string // TRAINER_DATA_DIR
	DBPath    string // TRAINER_DB_PATH
	ExportDir string // TRAINER_EXPORT_DIR
	RouteFile string // TRAINER_ROUTE, GPX file for positions in FIT exports

	Simulate    bool // TRAINER_SIMULATE
	OpenExports bool // TRAINER_OPEN_EXPORTS

	RiderWeightKg float64 // TRAINER_RIDER_WEIGHT
	BikeWeightKg  float64 // TRAINER_BIKE_WEIGHT

	SampleInterval   time.Duration // TRAINER_SAMPLE_INTERVAL
	PowerTimeout     time.Duration // TRAINER_POWER_TIMEOUT
	HeartRateTimeout time.Duration // TRAINER_HR_TIMEOUT

	WatchdogSchedule string // TRAINER_WATCHDOG_SCHEDULE, cron spec
	AutosaveSchedule string // TRAINER_AUTOSAVE_SCHEDULE, cron spec
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DataDir:          "./data",
		RiderWeightKg:    75,
		BikeWeightKg:     9,
		SampleInterval:   450 * time.Millisecond,
		PowerTimeout:     60 * time.Second,
		HeartRateTimeout: 6 * time.Second,
		WatchdogSchedule: "@every 1s",
		AutosaveSchedule: "@every 30s",
	}
}

// Load reads the given .env files (".env" when none is given) into the
// process environment, then builds the config from it. Missing files are
// not an error. Invalid values are, all of them reported together.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		log.Println("[CONFIG] No .env file found, using system environment variables")
	}
	return FromEnv()
}

// FromEnv builds the config from the process environment alone.
func FromEnv() (Config, error) {
	cfg := Default()
	var errs []error

	if v := os.Getenv("TRAINER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	cfg.DBPath = getenv("TRAINER_DB_PATH", filepath.Join(cfg.DataDir, "trainer.db"))
	cfg.ExportDir = getenv("TRAINER_EXPORT_DIR", filepath.Join(cfg.DataDir, "exports"))
	cfg.RouteFile = os.Getenv("TRAINER_ROUTE")

	cfg.Simulate = parseBool("TRAINER_SIMULATE", cfg.Simulate, &errs)
	cfg.OpenExports = parseBool("TRAINER_OPEN_EXPORTS", cfg.OpenExports, &errs)

	cfg.RiderWeightKg = parseWeight("TRAINER_RIDER_WEIGHT", cfg.RiderWeightKg, &errs)
	cfg.BikeWeightKg = parseWeight("TRAINER_BIKE_WEIGHT", cfg.BikeWeightKg, &errs)

	cfg.SampleInterval = parseDuration("TRAINER_SAMPLE_INTERVAL", cfg.SampleInterval, &errs)
	cfg.PowerTimeout = parseDuration("TRAINER_POWER_TIMEOUT", cfg.PowerTimeout, &errs)
	cfg.HeartRateTimeout = parseDuration("TRAINER_HR_TIMEOUT", cfg.HeartRateTimeout, &errs)

	cfg.WatchdogSchedule = parseSchedule("TRAINER_WATCHDOG_SCHEDULE", cfg.WatchdogSchedule, &errs)
	cfg.AutosaveSchedule = parseSchedule("TRAINER_AUTOSAVE_SCHEDULE", cfg.AutosaveSchedule, &errs)

	return cfg, errors.Join(errs...)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBool(key string, def bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func parseWeight(key string, def float64, errs *[]error) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	kg, err := strconv.ParseFloat(v, 64)
	if err != nil || kg <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a positive weight", key, v))
		return def
	}
	return kg
}

func parseDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a positive duration", key, v))
		return def
	}
	return d
}

// parseSchedule accepts standard 5-field specs and descriptors such as "@every 5s".
func parseSchedule(key, def string, errs *[]error) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if _, err := cron.ParseStandard(v); err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}
