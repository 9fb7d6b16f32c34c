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
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bike-trainer/internal/config"
	"bike-trainer/internal/domain"
	"bike-trainer/internal/service/archive"
	"bike-trainer/internal/service/fit"
	"bike-trainer/internal/service/gpx"
	"bike-trainer/internal/service/sensor"
	"bike-trainer/internal/service/session"
	"bike-trainer/internal/service/storage"
	"bike-trainer/internal/service/tcx"

	"github.com/cli/browser"
	"github.com/robfig/cron/v3"
)

// App orchestrates services, session lifecycle and background jobs.
type App struct {
	config     config.Config
	sensors    domain.SensorService
	dispatcher *sensor.Dispatcher
	watchdog   *sensor.Watchdog
	recorder   *session.Recorder
	sampler    *session.Sampler
	route      *gpx.Service
	fitService *fit.Service
	storage    *storage.Service
	cron       *cron.Cron

	notifications chan domain.Notification

	mu                  sync.Mutex
	isPowerConnected    bool
	isHRConnected       bool
	isSteeringConnected bool
}

// Export lists the files written for a finished session.
type Export struct {
	SessionID string
	TCX       string
	FIT       string
	Parquet   string
	Activity  domain.Activity
}

// NewApp wires the decoders, recorder and exporters around a sensor
// service. route may be empty; FIT records then carry no position.
func NewApp(cfg config.Config, sensors domain.SensorService, store *storage.Service, route *gpx.Service) *App {
	dispatcher := sensor.NewDispatcher()
	recorder := session.NewRecorder(nil)

	watchdog := sensor.NewWatchdog()
	watchdog.Watch(string(domain.SourcePower), dispatcher.Power, cfg.PowerTimeout)
	watchdog.Watch(string(domain.SourceHeartRate), dispatcher.HeartRate, cfg.HeartRateTimeout)

	return &App{
		config:        cfg,
		sensors:       sensors,
		dispatcher:    dispatcher,
		watchdog:      watchdog,
		recorder:      recorder,
		sampler:       session.NewSampler(recorder, dispatcher.Power, dispatcher.HeartRate),
		route:         route,
		fitService:    fit.NewService(route),
		storage:       store,
		cron:          cron.New(),
		notifications: make(chan domain.Notification, 64),
	}
}

// Startup starts the dispatcher and the scheduled jobs.
func (a *App) Startup(ctx context.Context) error {
	if _, err := a.cron.AddFunc(a.config.WatchdogSchedule, a.checkSensors); err != nil {
		return fmt.Errorf("watchdog schedule: %w", err)
	}
	if _, err := a.cron.AddFunc(a.config.AutosaveSchedule, a.autosave); err != nil {
		return fmt.Errorf("autosave schedule: %w", err)
	}
	a.cron.Start()

	go a.dispatcher.Run(ctx, a.notifications)
	// Samples taken outside Recording are dropped by the recorder.
	go a.sampler.Run(ctx, a.config.SampleInterval)
	return nil
}

// Shutdown stops background work, saves an unfinished session and
// disconnects the sensors.
func (a *App) Shutdown() {
	log.Println("Closing app: Disconnecting BLE...")
	<-a.cron.Stop().Done()

	a.autosave()
	a.sensors.Disconnect()
}

// ==================
// DEVICE CONNECTIONS
// ==================

func statusCallback(stage, msg string) {
	log.Printf("[BLE] %s: %s", stage, msg)
}

// ConnectPower connects to the power meter.
func (a *App) ConnectPower() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isPowerConnected {
		return "Power Meter Already Connected", nil
	}
	if err := a.sensors.ConnectPower(statusCallback); err != nil {
		return "Power Meter Error", err
	}
	a.isPowerConnected = true
	return "Power Meter Connected", nil
}

// ConnectHeartRate connects to a heart rate monitor.
func (a *App) ConnectHeartRate() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isHRConnected {
		return "HR Already Connected", nil
	}
	if err := a.sensors.ConnectHR(statusCallback); err != nil {
		return "HR Error", err
	}
	a.isHRConnected = true
	return "HR Monitor Connected", nil
}

// ConnectSteering connects to the steering input device.
func (a *App) ConnectSteering() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isSteeringConnected {
		return "Steering Already Connected", nil
	}
	if err := a.sensors.ConnectSteering(statusCallback); err != nil {
		return "Steering Error", err
	}
	a.isSteeringConnected = true
	return "Steering Connected", nil
}

// DisconnectDevices disconnects every sensor and resets every decoder. A
// running session keeps recording nothing until a sensor is back.
func (a *App) DisconnectDevices() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sensors.Disconnect()
	for _, src := range []domain.Source{domain.SourcePower, domain.SourceHeartRate, domain.SourceSteering} {
		a.dispatcher.Disconnect(src)
	}
	a.isPowerConnected = false
	a.isHRConnected = false
	a.isSteeringConnected = false
	return "Disconnected"
}

// =================
// SESSION LIFECYCLE
// =================

// StartSession starts or resumes recording. The power meter must be connected.
func (a *App) StartSession() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isPowerConnected {
		return "Error: Power Meter Disconnected", errors.New("power meter not connected")
	}
	if a.recorder.State() == session.Recording {
		return "Already Recording", nil
	}

	// Subscribe is idempotent per device and retries any that failed.
	// Devices connected later subscribe themselves.
	if err := a.sensors.Subscribe(a.notifications); err != nil {
		return "Subscribe Error", err
	}

	a.recorder.Start()
	return "Started", nil
}

// Lap closes the current lap.
func (a *App) Lap() string {
	if !a.recorder.Lap() {
		return "Lap Ignored"
	}
	return "Lap"
}

// StopSession pauses recording; StartSession resumes on the same clock.
func (a *App) StopSession() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.recorder.State() != session.Recording {
		return "Not recording"
	}
	a.recorder.Stop()
	return "Stopped"
}

// RestartSession discards everything recorded so far.
func (a *App) RestartSession() string {
	a.recorder.Restart()
	return "Restarted"
}

// Status is the live view of the session table.
func (a *App) Status() (session.Aggregates, session.Aggregates, string, string) {
	total, lap := a.recorder.ElapsedStrings()
	return a.recorder.Aggregates(session.Total), a.recorder.Aggregates(session.Lap), total, lap
}

// FinishSession stops recording, exports the session and clears the
// recorder for the next ride. On error the session is kept.
func (a *App) FinishSession() (Export, error) {
	a.StopSession()

	snap := a.recorder.Snapshot()
	exp, err := a.export(snap)
	if err != nil {
		return exp, err
	}
	a.recorder.Restart()

	if a.config.OpenExports {
		if err := browser.OpenFile(exp.TCX); err != nil {
			log.Printf("[EXPORT] could not open %s: %v", exp.TCX, err)
		}
	}
	return exp, nil
}

// RecoverSessions exports every session that was autosaved but never finished.
func (a *App) RecoverSessions() ([]Export, error) {
	pending, err := a.storage.UnfinishedSessions()
	if err != nil {
		return nil, err
	}

	var out []Export
	var errs []error
	for _, rec := range pending {
		snap, err := a.storage.LoadSnapshot(rec.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		exp, err := a.export(snap)
		if err != nil {
			errs = append(errs, fmt.Errorf("recover %s: %w", rec.ID, err))
			continue
		}
		log.Printf("[SESSION] recovered %s", rec.ID)
		out = append(out, exp)
	}
	return out, errors.Join(errs...)
}

// export writes every file format, then records the activity and any new
// power records.
func (a *App) export(snap session.Snapshot) (Export, error) {
	exp := Export{SessionID: snap.ID}

	if err := snap.Validate(); err != nil {
		return exp, err
	}

	stamp := snap.StartTime.Local().Format("2006-01-02_15-04-05")
	dir := a.config.ExportDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return exp, fmt.Errorf("create export directory: %w", err)
	}

	exp.TCX = filepath.Join(dir, fmt.Sprintf("ride_%s.tcx", stamp))
	if err := tcx.Save(exp.TCX, snap); err != nil {
		return exp, err
	}
	exp.FIT = filepath.Join(dir, fit.FileName(snap.StartTime))
	if err := a.fitService.Save(exp.FIT, snap); err != nil {
		return exp, err
	}
	exp.Parquet = filepath.Join(dir, fmt.Sprintf("ride_%s.parquet", stamp))
	if err := archive.WriteFile(exp.Parquet, snap); err != nil {
		return exp, err
	}

	if err := a.storage.SaveSnapshot(snap, true); err != nil {
		return exp, err
	}

	exp.Activity = summarize(snap)
	exp.Activity.TCXFile = exp.TCX
	exp.Activity.FITFile = exp.FIT
	if err := a.storage.SaveActivity(&exp.Activity); err != nil {
		return exp, err
	}

	for _, e := range snap.PowerCurve() {
		if e.Watts <= 0 {
			continue
		}
		rec := storage.PowerRecord{Duration: e.Duration, Watts: e.Watts, SessionID: snap.ID, Date: snap.StartTime}
		if _, err := a.storage.CheckAndUpdateRecord(rec); err != nil {
			log.Printf("[STORAGE] power record %ds: %v", e.Duration, err)
		}
	}

	log.Printf("[EXPORT] Session %s exported to %s", snap.ID, dir)
	return exp, nil
}

// summarize builds the activity row of a valid, non-empty snapshot.
func summarize(snap session.Snapshot) domain.Activity {
	n := snap.Len()
	act := domain.Activity{
		SessionID:    snap.ID,
		StartTime:    snap.StartTime,
		Duration:     snap.DurationMs / 1000,
		MaxPower:     int(snap.Maxima.Power),
		MaxHeartRate: int(snap.Maxima.HeartRate),
		Laps:         len(snap.Laps),
	}

	if first, last := snap.Distance[0], snap.Distance[n-1]; first != nil && last != nil {
		act.TotalDistance = *last - *first
	}
	if first, last := snap.Energy[0], snap.Energy[n-1]; first != nil && last != nil {
		act.Calories = int(math.Round((*last - *first) * session.KJToKcal))
	}

	sum, count := 0.0, 0
	for _, p := range snap.Power {
		if p != nil {
			sum += *p
			count++
		}
	}
	if count > 0 {
		act.AvgPower = int(math.Round(sum / float64(count)))
	}
	return act
}

// ===============
// SCHEDULED JOBS
// ===============

func (a *App) checkSensors() {
	a.watchdog.Check(time.Now())
}

// autosave stores the session in progress so it can be recovered.
func (a *App) autosave() {
	if a.recorder.State() == session.NotStarted || a.recorder.Len() == 0 {
		return
	}
	if err := a.storage.SaveSnapshot(a.recorder.Snapshot(), false); err != nil {
		log.Printf("[STORAGE] autosave failed: %v", err)
	}
}
