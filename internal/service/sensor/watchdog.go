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

package sensor

import (
	"log"
	"sync"
	"time"

	"bike-trainer/internal/domain"
)

// Default silence limits before a source is considered disconnected.
const (
	DefaultPowerTimeout     = 60 * time.Second
	DefaultHeartRateTimeout = 6 * time.Second
)

type watched struct {
	name    string
	source  domain.Resetter
	timeout time.Duration
}

// Watchdog resets sources that stopped notifying. Check is meant to be
// polled on a fixed interval, independent of notification delivery.
type Watchdog struct {
	mu      sync.Mutex
	sources []watched

	// OnExpire, if set, is called after a source has been reset.
	OnExpire func(name string)
}

func NewWatchdog() *Watchdog {
	return &Watchdog{}
}

// Watch registers a source with its timeout.
func (w *Watchdog) Watch(name string, source domain.Resetter, timeout time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sources = append(w.sources, watched{name: name, source: source, timeout: timeout})
}

// Check resets every source whose last notification is older than its
// timeout and returns their names. Sources that never notified are skipped.
func (w *Watchdog) Check(now time.Time) []string {
	w.mu.Lock()
	sources := make([]watched, len(w.sources))
	copy(sources, w.sources)
	onExpire := w.OnExpire
	w.mu.Unlock()

	var expired []string
	for _, s := range sources {
		// expired when now > last+timeout
		last, reset := s.source.ResetIfSilentSince(now.Add(-s.timeout))
		if !reset {
			continue
		}
		log.Printf("[WATCHDOG] %s silent for %s, reset", s.name, now.Sub(last).Round(time.Second))
		expired = append(expired, s.name)
		if onExpire != nil {
			onExpire(s.name)
		}
	}
	return expired
}
