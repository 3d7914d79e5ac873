// Package journal implements a local, supplemental run journal (not part
// of spec.md's critical path): it records window-close and upload
// outcomes to SQLite for post-hoc forensics on an unattended node. A
// journal write failure is logged and ignored; it never affects the
// capture pipeline.
package journal

import (
	"context"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// WindowEvent records one CSV window's close.
type WindowEvent struct {
	Path     string `gorm:"primaryKey"`
	Rows     int
	ClosedAt time.Time
}

// UploadEvent records one upload attempt's outcome.
type UploadEvent struct {
	Path      string `gorm:"primaryKey"`
	Succeeded bool
	At        time.Time
}

// SQLiteJournal implements ports.RunJournal using GORM and SQLite.
type SQLiteJournal struct {
	db *gorm.DB
}

// NewSQLiteJournal opens (creating if needed) the journal database at
// path and migrates its schema.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&WindowEvent{}, &UploadEvent{}); err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA busy_timeout=5000;")
	db.Exec("PRAGMA synchronous=NORMAL;")

	return &SQLiteJournal{db: db}, nil
}

// RecordWindowClosed implements ports.RunJournal.
func (j *SQLiteJournal) RecordWindowClosed(ctx context.Context, path string, rows int, closedAt time.Time) error {
	event := WindowEvent{Path: path, Rows: rows, ClosedAt: closedAt}
	return j.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"rows", "closed_at"}),
	}).Create(&event).Error
}

// RecordUploadOutcome implements ports.RunJournal.
func (j *SQLiteJournal) RecordUploadOutcome(ctx context.Context, path string, succeeded bool, at time.Time) error {
	event := UploadEvent{Path: path, Succeeded: succeeded, At: at}
	return j.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"succeeded", "at"}),
	}).Create(&event).Error
}

// Close implements ports.RunJournal.
func (j *SQLiteJournal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
