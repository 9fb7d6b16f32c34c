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

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"bike-trainer/internal/domain"
	"bike-trainer/internal/service/session"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when no stored session has the requested id.
var ErrNotFound = errors.New("storage: session not found")

// PowerRecord is the all-time best average power for one effort duration.
type PowerRecord struct {
	Duration  int       `json:"duration" gorm:"primaryKey"` // seconds
	Watts     int       `json:"watts"`
	SessionID string    `json:"session_id"`
	Date      time.Time `json:"date"`
}

// Service encapsulates all database operations.
// It acts as the persistence layer of the application.
type Service struct {
	db *gorm.DB
}

// NewService opens (or creates) the database at dbPath and runs migrations.
func NewService(dbPath string) (*Service, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}

	// AutoMigrate creates or updates tables from the models.
	if err := db.AutoMigrate(&domain.Activity{}, &domain.SessionRecord{}, &PowerRecord{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	for _, duration := range session.EffortDurations {
		var count int64
		db.Model(&PowerRecord{}).Where("duration = ?", duration).Count(&count)
		if count == 0 {
			db.Create(&PowerRecord{Duration: duration, Watts: 0, Date: time.Now()})
		}
	}

	return &Service{db: db}, nil
}

// Close releases the underlying connection.
func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ========
// SESSIONS
// ========

// SaveSnapshot stores the JSON projection of a session, replacing any
// earlier copy with the same id.
func (s *Service) SaveSnapshot(snap session.Snapshot, finished bool) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", snap.ID, err)
	}

	rec := domain.SessionRecord{
		ID:        snap.ID,
		StartTime: snap.StartTime,
		Samples:   snap.Len(),
		Data:      data,
		Finished:  finished,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"start_time", "samples", "data", "finished", "updated_at"}),
	}).Create(&rec).Error
}

// LoadSnapshot restores a stored session.
func (s *Service) LoadSnapshot(id string) (session.Snapshot, error) {
	var rec domain.SessionRecord
	err := s.db.First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return session.Snapshot{}, err
	}

	var snap session.Snapshot
	if err := json.Unmarshal(rec.Data, &snap); err != nil {
		return session.Snapshot{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return snap, nil
}

// UnfinishedSessions lists sessions that were autosaved but never finished,
// newest first.
func (s *Service) UnfinishedSessions() ([]domain.SessionRecord, error) {
	var recs []domain.SessionRecord
	err := s.db.Select("id", "start_time", "samples", "finished", "created_at", "updated_at").
		Where("finished = ?", false).
		Order("start_time desc").
		Find(&recs).Error
	return recs, err
}

// ==========
// ACTIVITIES
// ==========

func (s *Service) SaveActivity(a *domain.Activity) error {
	return s.db.Create(a).Error
}

// GetRecentActivities returns the most recent activities,
// ordered by creation date (descending).
func (s *Service) GetRecentActivities(limit int) ([]domain.Activity, error) {
	var activities []domain.Activity
	result := s.db.Order("created_at desc").Limit(limit).Find(&activities)
	return activities, result.Error
}

// GetTotalDistance returns the total distance accumulated
// across all recorded activities.
func (s *Service) GetTotalDistance() float64 {
	// NULL when the table is empty.
	var total *float64

	result := s.db.Model(&domain.Activity{}).Select("sum(total_distance)").Scan(&total)
	if result.Error != nil || total == nil {
		return 0
	}
	return *total
}

// GetActivitiesByMonth takes a "2006-01" month.
func (s *Service) GetActivitiesByMonth(monthStr string) ([]domain.Activity, error) {
	var activities []domain.Activity
	err := s.db.Where("strftime('%Y-%m', start_time) = ?", monthStr).Order("start_time asc").Find(&activities).Error
	return activities, err
}

func (s *Service) GetTotalDuration() int64 {
	var total *int64
	s.db.Model(&domain.Activity{}).Select("sum(duration)").Scan(&total)
	if total == nil {
		return 0
	}
	return *total
}

// ===========
// POWER CURVE
// ===========

func (s *Service) GetPowerCurve() ([]PowerRecord, error) {
	var records []PowerRecord
	err := s.db.Order("duration ASC").Find(&records).Error
	return records, err
}

// CheckAndUpdateRecord stores newRec when it beats the current best for its
// duration and reports whether it did.
func (s *Service) CheckAndUpdateRecord(newRec PowerRecord) (bool, error) {
	var oldRec PowerRecord
	err := s.db.First(&oldRec, newRec.Duration).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	if newRec.Watts <= oldRec.Watts {
		return false, nil
	}
	if err := s.db.Save(&newRec).Error; err != nil {
		return false, err
	}
	log.Printf("[STORAGE] new %ds power record: %d W", newRec.Duration, newRec.Watts)
	return true, nil
}
