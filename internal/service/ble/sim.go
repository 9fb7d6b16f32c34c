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

package ble

import (
	"encoding/binary"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"bike-trainer/internal/domain"
	"bike-trainer/internal/service/sensor"
	"bike-trainer/internal/service/sim"
)

// simFlags marks wheel and crank revolution data present.
var simFlags = sensor.NewFlagSet(sensor.FieldWheelRevolutionData, sensor.FieldCrankRevolutionData)

// SimService emulates a power meter, a heart-rate strap and a steering device
// by emitting the payloads they would send, once per interval.
type SimService struct {
	mu        sync.Mutex
	ride      *sim.Ride
	rng       *rand.Rand
	interval  time.Duration
	power     int
	connected map[domain.Source]bool
	stopChan  chan struct{}

	elapsed    float64 // s
	crankRevs  float64
	crankEvent float64 // s
	wheelEvent float64 // s
}

// NewSimService rides the given simulation at basePower watts.
func NewSimService(ride *sim.Ride, basePower int, seed int64) *SimService {
	return &SimService{
		ride:      ride,
		rng:       rand.New(rand.NewSource(seed)),
		interval:  time.Second,
		power:     basePower,
		connected: make(map[domain.Source]bool),
	}
}

func (m *SimService) ConnectPower(onStatus func(string, string)) error {
	return m.connect(domain.SourcePower, "TRAINER", onStatus)
}

func (m *SimService) ConnectHR(onStatus func(string, string)) error {
	return m.connect(domain.SourceHeartRate, "HR", onStatus)
}

func (m *SimService) ConnectSteering(onStatus func(string, string)) error {
	return m.connect(domain.SourceSteering, "STEERING", onStatus)
}

func (m *SimService) connect(src domain.Source, label string, onStatus func(string, string)) error {
	onStatus("SCAN_"+label, "Scanning for simulated devices...")
	m.mu.Lock()
	m.connected[src] = true
	m.mu.Unlock()
	onStatus(label+"_CONNECTED", "Simulator")
	return nil
}

// AdjustPower changes the base power, clamped to 0-1200 W.
func (m *SimService) AdjustPower(delta int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.power = max(0, min(1200, m.power+delta))
	return m.power
}

// Subscribe starts the emitter. Devices connected later are included from the
// next tick; calling it while the emitter runs is a no-op.
func (m *SimService) Subscribe(out chan<- domain.Notification) error {
	m.mu.Lock()
	if m.stopChan != nil {
		m.mu.Unlock()
		return nil
	}
	m.stopChan = make(chan struct{})
	stop := m.stopChan
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case t := <-ticker.C:
				for _, n := range m.step(t, m.interval) {
					select {
					case out <- n:
					case <-stop:
						return
					}
				}
			}
		}
	}()
	return nil
}

// step advances the simulation by dt and returns one notification per
// connected device.
func (m *SimService) step(at time.Time, dt time.Duration) []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	watts := max(0, m.power+m.rng.Intn(41)-20)
	cadence := 80 + m.rng.Float64()*19

	m.elapsed += dt.Seconds()
	m.ride.Advance(float64(watts), dt)

	var out []domain.Notification
	if m.connected[domain.SourcePower] {
		out = append(out, domain.Notification{Source: domain.SourcePower, Payload: m.powerPayload(watts, cadence, dt), ReceivedAt: at})
	}
	if m.connected[domain.SourceHeartRate] {
		out = append(out, domain.Notification{Source: domain.SourceHeartRate, Payload: m.heartRatePayload(watts), ReceivedAt: at})
	}
	if m.connected[domain.SourceSteering] {
		// mode 0, no buttons, axes centred
		out = append(out, domain.Notification{Source: domain.SourceSteering, Payload: []byte{0, 128, 128, 128, 128, 128}, ReceivedAt: at})
	}
	return out
}

// powerPayload lays out flags, power, wheel then crank revolution data. Event
// times are those of the last completed revolution.
func (m *SimService) powerPayload(watts int, cadence float64, dt time.Duration) []byte {
	wheelRevs := m.ride.Revolutions(sensor.WheelRadius)
	if rps := m.ride.Speed / (2 * math.Pi * sensor.WheelRadius); rps > 0 {
		m.wheelEvent = m.elapsed - (wheelRevs-math.Floor(wheelRevs))/rps
	}

	m.crankRevs += cadence / 60 * dt.Seconds()
	m.crankEvent = m.elapsed - (m.crankRevs-math.Floor(m.crankRevs))/(cadence/60)

	b0, b1 := sensor.EncodeFlags(simFlags)
	buf := make([]byte, 14)
	buf[0], buf[1] = b0, b1
	binary.LittleEndian.PutUint16(buf[2:], uint16(int16(watts)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(wheelRevs))
	binary.LittleEndian.PutUint16(buf[8:], uint16(int64(m.wheelEvent*sensor.WheelTicksPerSecond)))
	binary.LittleEndian.PutUint16(buf[10:], uint16(int64(m.crankRevs)))
	binary.LittleEndian.PutUint16(buf[12:], uint16(int64(m.crankEvent*sensor.CrankTicksPerSecond)))
	return buf
}

func (m *SimService) heartRatePayload(watts int) []byte {
	bpm := 90 + float64(watts)/4 + m.rng.Float64()*4 - 2
	return []byte{0x00, uint8(math.Max(40, math.Min(220, bpm)))}
}

// Disconnect stops the emitter. It is safe to call more than once.
func (m *SimService) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopChan != nil {
		close(m.stopChan)
		m.stopChan = nil
	}
	clear(m.connected)
	log.Println("[BLE] Simulator Disconnected")
}
