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

package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"bike-trainer/internal/config"
	"bike-trainer/internal/domain"
	"bike-trainer/internal/service/ble"
	"bike-trainer/internal/service/gpx"
	"bike-trainer/internal/service/sim"
	"bike-trainer/internal/service/storage"
)

func main() {
	envFile := flag.String("env", "", "load settings from this .env file instead of ./.env")
	simulate := flag.Bool("simulate", false, "use simulated sensors instead of Bluetooth")
	simPower := flag.Int("power", 200, "base power of the simulated power meter in watts")
	duration := flag.Duration("duration", 0, "finish the session after this long (0 waits for Ctrl+C)")
	recoverOnly := flag.Bool("recover", false, "export unfinished sessions and exit")
	flag.Parse()

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}
	if *simulate {
		cfg.Simulate = true
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal(err)
	}
	logFile, err := os.OpenFile(filepath.Join(cfg.DataDir, "trainer.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatal(err)
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	store, err := storage.NewService(cfg.DBPath)
	if err != nil {
		log.Fatal("Failed to open database: ", err)
	}
	defer store.Close()

	route := gpx.NewService()
	if cfg.RouteFile != "" {
		if err := route.LoadFile(cfg.RouteFile); err != nil {
			log.Printf("[ROUTE] %v, riding flat and exporting without positions", err)
		} else {
			log.Printf("[ROUTE] Loaded %s: %d points | %.2f km", cfg.RouteFile, len(route.Points()), route.Length()/1000)
		}
	}

	var sensors domain.SensorService
	if cfg.Simulate {
		ride := sim.NewRide(sim.NewEngine(cfg.RiderWeightKg, cfg.BikeWeightKg), route.GradeAt)
		sensors = ble.NewSimService(ride, *simPower, time.Now().UnixNano())
	} else {
		sensors = ble.NewRealService()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(cfg, sensors, store, route)
	if err := app.Startup(ctx); err != nil {
		log.Fatal(err)
	}
	defer app.Shutdown()

	if exports, err := app.RecoverSessions(); err != nil {
		log.Printf("[SESSION] recovery: %v", err)
	} else if len(exports) > 0 {
		log.Printf("[SESSION] recovered %d unfinished sessions", len(exports))
	}
	if *recoverOnly {
		return
	}

	if msg, err := app.ConnectPower(); err != nil {
		log.Printf("%s: %v", msg, err)
		return
	}
	if msg, err := app.ConnectHeartRate(); err != nil {
		log.Printf("%s: %v, riding without heart rate", msg, err)
	}
	if msg, err := app.ConnectSteering(); err != nil {
		log.Printf("%s: %v, riding without steering", msg, err)
	}

	if msg, err := app.StartSession(); err != nil {
		log.Printf("%s: %v", msg, err)
		return
	}

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-deadline:
			break loop
		case <-ticker.C:
			logStatus(app)
		}
	}

	exp, err := app.FinishSession()
	if err != nil {
		log.Printf("[EXPORT] %v", err)
		return
	}
	log.Printf("[EXPORT] %s: %.2f km, %d W avg, %d kcal", exp.SessionID, exp.Activity.TotalDistance/1000, exp.Activity.AvgPower, exp.Activity.Calories)
}

func logStatus(app *App) {
	total, _, elapsed, lap := app.Status()
	log.Printf("[SESSION] %s (lap %s) | %s W | %s rpm | %s km/h | %s bpm",
		elapsed, lap,
		show(total.Power.Current), show(total.Cadence.Current), show(total.Speed.Current), show(total.HeartRate.Current))
}

func show(v *float64) string {
	if v == nil {
		return "--"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}
