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
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"bike-trainer/internal/domain"

	"tinygo.org/x/bluetooth"
)

// UUIDs
var (
	ServiceCyclingPower = bluetooth.ServiceUUIDCyclingPower
	ServiceHeartRate    = bluetooth.ServiceUUIDHeartRate
	ServiceSteering     = mustParseUUID("be30f8d4-4711-11ee-be56-0242ac120002")

	CharCyclingPowerMeasure = bluetooth.CharacteristicUUIDCyclingPowerMeasurement
	CharHeartRateMeasure    = bluetooth.CharacteristicUUIDHeartRateMeasurement
	CharSteeringInput       = mustParseUUID("be30f8d4-4711-11ee-be56-0242ac120003")
)

const scanTimeout = 15 * time.Second

func mustParseUUID(s string) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// profile is what the service needs to find and read one kind of sensor.
type profile struct {
	source  domain.Source
	label   string // status prefix: TRAINER, HR, STEERING
	service bluetooth.UUID
	char    bluetooth.UUID
}

var profiles = map[domain.Source]profile{
	domain.SourcePower:     {domain.SourcePower, "TRAINER", ServiceCyclingPower, CharCyclingPowerMeasure},
	domain.SourceHeartRate: {domain.SourceHeartRate, "HR", ServiceHeartRate, CharHeartRateMeasure},
	domain.SourceSteering:  {domain.SourceSteering, "STEERING", ServiceSteering, CharSteeringInput},
}

// RealService talks to the sensors over the host Bluetooth adapter. It does
// no decoding: every notification is forwarded as raw bytes.
type RealService struct {
	adapter *bluetooth.Adapter

	mu         sync.Mutex
	devices    map[domain.Source]*bluetooth.Device
	subscribed map[domain.Source]bool
	out        chan<- domain.Notification // set by Subscribe
}

func NewRealService() *RealService {
	return &RealService{
		adapter:    bluetooth.DefaultAdapter,
		devices:    make(map[domain.Source]*bluetooth.Device),
		subscribed: make(map[domain.Source]bool),
	}
}

func (s *RealService) ConnectPower(onStatus func(string, string)) error {
	return s.connect(profiles[domain.SourcePower], onStatus)
}

func (s *RealService) ConnectHR(onStatus func(string, string)) error {
	return s.connect(profiles[domain.SourceHeartRate], onStatus)
}

func (s *RealService) ConnectSteering(onStatus func(string, string)) error {
	return s.connect(profiles[domain.SourceSteering], onStatus)
}

// connect scans for the first device advertising the profile's service.
func (s *RealService) connect(p profile, onStatus func(string, string)) error {
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("bluetooth error: %w", err)
	}

	onStatus("SCAN_"+p.label, "Searching for "+string(p.source)+"...")
	log.Printf("[BLE] Starting %s scan...", p.source)

	ch := make(chan bluetooth.ScanResult, 1)

	go func() {
		err := s.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(p.service) {
				return
			}
			log.Printf("[BLE] %s: %s (%s)", p.source, result.LocalName(), result.Address.String())
			adapter.StopScan()
			select {
			case ch <- result:
			default:
			}
		})
		if err != nil {
			log.Printf("[BLE] %s scan error: %v", p.source, err)
		}
	}()

	select {
	case result := <-ch:
		onStatus("CONNECTING_"+p.label, "Connecting to: "+result.LocalName())

		device, err := s.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
		if err != nil {
			return fmt.Errorf("%s connection error: %w", p.source, err)
		}

		s.mu.Lock()
		s.devices[p.source] = &device
		delete(s.subscribed, p.source)
		out := s.out
		s.mu.Unlock()

		log.Printf("[BLE] %s connected", p.source)
		onStatus(p.label+"_CONNECTED", "Connected: "+result.LocalName())

		// A device connected after Subscribe starts forwarding right away;
		// on failure the next Subscribe retries it.
		if out != nil {
			if err := s.enable(p.source, &device, out); err != nil {
				log.Printf("[BLE] %v", err)
			}
		}
		return nil

	case <-time.After(scanTimeout):
		s.adapter.StopScan()
		return fmt.Errorf("%s timeout", p.source)
	}
}

// Subscribe enables notifications on every connected device not yet
// subscribed and remembers out, so devices connected later are subscribed
// as they connect. Calling it again retries devices that failed.
func (s *RealService) Subscribe(out chan<- domain.Notification) error {
	s.mu.Lock()
	s.out = out
	pending := make(map[domain.Source]*bluetooth.Device, len(s.devices))
	for src, d := range s.devices {
		if !s.subscribed[src] {
			pending[src] = d
		}
	}
	s.mu.Unlock()

	var errs []error
	for src, device := range pending {
		if err := s.enable(src, device, out); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// enable forwards the device's notifications to out. Payloads are copied
// before forwarding; a full channel drops the notification.
func (s *RealService) enable(src domain.Source, device *bluetooth.Device, out chan<- domain.Notification) error {
	p := profiles[src]
	char, err := findCharacteristic(device, p)
	if err != nil {
		return err
	}

	err = char.EnableNotifications(func(buf []byte) {
		n := domain.Notification{
			Source:     p.source,
			Payload:    append([]byte(nil), buf...),
			ReceivedAt: time.Now(),
		}
		select {
		case out <- n:
		default:
			log.Printf("[BLE] %s notification dropped: consumer busy", p.source)
		}
	})
	if err != nil {
		return fmt.Errorf("%s notifications: %w", p.source, err)
	}

	s.mu.Lock()
	if s.devices[src] == device {
		s.subscribed[src] = true
	}
	s.mu.Unlock()
	log.Printf("[BLE] %s notifications enabled", p.source)
	return nil
}

func findCharacteristic(device *bluetooth.Device, p profile) (bluetooth.DeviceCharacteristic, error) {
	services, err := device.DiscoverServices([]bluetooth.UUID{p.service})
	if err != nil || len(services) == 0 {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("%s service not found: %v", p.source, err)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{p.char})
	if err != nil || len(chars) == 0 {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("%s characteristic not found: %v", p.source, err)
	}
	return chars[0], nil
}

func (s *RealService) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for src, d := range s.devices {
		if err := d.Disconnect(); err != nil {
			log.Printf("[BLE] %s disconnect: %v", src, err)
		}
		delete(s.devices, src)
		delete(s.subscribed, src)
	}
	log.Println("[BLE] Devices Disconnected")
}
