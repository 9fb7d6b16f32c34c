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

package sim

import (
	"math"
	"time"
)

// Physical constants for cycling
const (
	Gravity    = 9.81
	Rho        = 1.225 // Air density (sea level)
	CdA        = 0.32  // Drag area
	Crr        = 0.005 // Rolling resistance coefficient
	Drivetrain = 0.96  // Drivetrain efficiency

	// Time constant of the speed response to a power change.
	inertia = 3 * time.Second
)

type Engine struct {
	UserWeight float64 // kg
	BikeWeight float64 // kg
}

func NewEngine(userWeight, bikeWeight float64) *Engine {
	if userWeight <= 0 {
		userWeight = 75.0
	}
	if bikeWeight <= 0 {
		bikeWeight = 9.0
	}
	return &Engine{
		UserWeight: userWeight,
		BikeWeight: bikeWeight,
	}
}

// CalculateSpeed estimates the steady-state speed (m/s) for a power and grade.
func (e *Engine) CalculateSpeed(watts float64, gradePercent float64) float64 {
	totalMass := e.UserWeight + e.BikeWeight
	powerWheel := watts * Drivetrain

	theta := math.Atan(gradePercent / 100.0)

	// Gravity assists (-) or hinders (+)
	forceLinear := totalMass*Gravity*math.Sin(theta) + totalMass*Gravity*math.Cos(theta)*Crr
	constAero := 0.5 * Rho * CdA

	// Bisection over 0 to ~144 km/h. It converges on steep descents where
	// speed is high even at 0 W.
	low := 0.0
	high := 40.0
	for i := 0; i < 20; i++ {
		mid := (low + high) / 2

		powerRequired := constAero*math.Pow(mid, 3) + forceLinear*mid
		if powerRequired < powerWheel {
			low = mid
		} else {
			high = mid
		}

		if math.Abs(high-low) < 0.01 {
			break
		}
	}

	return math.Max((low+high)/2, 0)
}

// Ride integrates a simulated ride: speed follows the steady-state speed
// with some inertia, distance is the integral of speed.
type Ride struct {
	engine *Engine
	grade  func(distance float64) float64

	Speed    float64 // m/s
	Distance float64 // m
}

// NewRide starts a ride at rest. grade may be nil for a flat road.
func NewRide(engine *Engine, grade func(distance float64) float64) *Ride {
	if grade == nil {
		grade = func(float64) float64 { return 0 }
	}
	return &Ride{engine: engine, grade: grade}
}

// Advance moves the ride forward by dt at the given power.
func (r *Ride) Advance(watts float64, dt time.Duration) {
	if dt <= 0 {
		return
	}
	target := r.engine.CalculateSpeed(watts, r.grade(r.Distance))

	k := math.Min(float64(dt)/float64(inertia), 1)
	next := r.Speed + (target-r.Speed)*k

	r.Distance += (r.Speed + next) / 2 * dt.Seconds()
	r.Speed = next
}

// Revolutions is the number of wheel revolutions ridden so far.
func (r *Ride) Revolutions(wheelRadius float64) float64 {
	return r.Distance / (2 * math.Pi * wheelRadius)
}
