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

package gpx

import (
	"fmt"
	"log"
	"math"

	"bike-trainer/internal/domain"

	"github.com/tkrajina/gpxgo/gpx"
)

// Service holds a virtual route and maps ridden distance onto it.
type Service struct {
	points []domain.RoutePoint
}

func NewService() *Service {
	return &Service{
		points: []domain.RoutePoint{},
	}
}

// LoadFile reads a GPX file as the current route.
func (s *Service) LoadFile(filepath string) error {
	gpxFile, err := gpx.ParseFile(filepath)
	if err != nil {
		return fmt.Errorf("parse route %s: %w", filepath, err)
	}
	if err := s.load(gpxFile); err != nil {
		return fmt.Errorf("route %s: %w", filepath, err)
	}
	log.Printf("[EXPORT] route loaded: %s (%.0f m, %d points)", filepath, s.Length(), len(s.points))
	return nil
}

// Parse reads GPX data as the current route.
func (s *Service) Parse(data []byte) error {
	gpxFile, err := gpx.ParseBytes(data)
	if err != nil {
		return fmt.Errorf("parse route: %w", err)
	}
	return s.load(gpxFile)
}

func (s *Service) load(gpxFile *gpx.GPX) error {
	var processedPoints []domain.RoutePoint
	var totalDist float64
	var previousPoint *gpx.GPXPoint

	processPoint := func(p *gpx.GPXPoint) {
		if previousPoint != nil {
			totalDist += previousPoint.Distance3D(p)
		}

		processedPoints = append(processedPoints, domain.RoutePoint{
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			Elevation: p.Elevation.Value(),
			Distance:  totalDist,
		})

		pCopy := *p
		previousPoint = &pCopy
	}

	for _, track := range gpxFile.Tracks {
		for _, segment := range track.Segments {
			for i := range segment.Points {
				processPoint(&segment.Points[i])
			}
		}
	}

	// Files without tracks may still carry a route.
	if len(processedPoints) == 0 {
		for _, route := range gpxFile.Routes {
			for i := range route.Points {
				processPoint(&route.Points[i])
			}
		}
	}

	if len(processedPoints) < 2 || totalDist <= 0 {
		return fmt.Errorf("the GPX data does not contain a usable track")
	}

	s.points = smoothGrades(processedPoints)
	return nil
}

// Loaded reports whether a route is available.
func (s *Service) Loaded() bool {
	return len(s.points) >= 2
}

func (s *Service) Points() []domain.RoutePoint {
	return s.points
}

// Length is the route length in meters.
func (s *Service) Length() float64 {
	if len(s.points) == 0 {
		return 0
	}
	return s.points[len(s.points)-1].Distance
}

// PointAt interpolates the route at a distance, clamped to both ends.
func (s *Service) PointAt(distanceMeter float64) domain.RoutePoint {
	if len(s.points) == 0 {
		return domain.RoutePoint{}
	}

	lastPoint := s.points[len(s.points)-1]
	if distanceMeter >= lastPoint.Distance {
		return lastPoint
	}
	if distanceMeter <= s.points[0].Distance {
		return s.points[0]
	}

	low := 0
	high := len(s.points) - 1
	for low <= high {
		mid := (low + high) / 2
		if s.points[mid].Distance < distanceMeter {
			low = mid + 1
		} else {
			high = mid - 1
		}
	}

	pPrev := s.points[low-1]
	pNext := s.points[low]

	segmentDist := pNext.Distance - pPrev.Distance
	if segmentDist <= 0 {
		return pPrev
	}
	ratio := (distanceMeter - pPrev.Distance) / segmentDist

	return domain.RoutePoint{
		Latitude:  lerp(pPrev.Latitude, pNext.Latitude, ratio),
		Longitude: lerp(pPrev.Longitude, pNext.Longitude, ratio),
		Elevation: lerp(pPrev.Elevation, pNext.Elevation, ratio),
		Grade:     pPrev.Grade,
		Distance:  distanceMeter,
	}
}

// Position maps a ridden distance onto the route, starting over from the
// first point once the route is finished.
func (s *Service) Position(distanceMeter float64) (domain.RoutePoint, bool) {
	if !s.Loaded() {
		return domain.RoutePoint{}, false
	}
	d := math.Mod(math.Max(distanceMeter, 0), s.Length())
	return s.PointAt(d), true
}

// GradeAt is the smoothed grade in percent at a ridden distance, 0 without a route.
func (s *Service) GradeAt(distanceMeter float64) float64 {
	p, ok := s.Position(distanceMeter)
	if !ok {
		return 0
	}
	return p.Grade
}

func lerp(start, end, ratio float64) float64 {
	return start + ratio*(end-start)
}

// smoothGrades computes each point's grade over a window of neighbours,
// clamped to +-25 %.
func smoothGrades(points []domain.RoutePoint) []domain.RoutePoint {
	const windowSize = 5
	count := len(points)

	for i := 0; i < count; i++ {
		pStart := points[max(0, i-windowSize)]
		pEnd := points[min(count-1, i+windowSize)]

		distDelta := pEnd.Distance - pStart.Distance
		elevDelta := pEnd.Elevation - pStart.Elevation

		points[i].Grade = 0
		if distDelta > 10.0 {
			points[i].Grade = math.Max(-25, math.Min(25, elevDelta/distDelta*100))
		}
	}
	return points
}
