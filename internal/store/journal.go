package store

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Journal persists the latest document per path so the tree survives a
// server restart. The store replays entries in sequence order on boot.
type Journal interface {
	Load(ctx context.Context) ([]JournalEntry, error)
	Record(ctx context.Context, path string, value any, seq int64) error
	DeletePrefix(ctx context.Context, path string) error
}

type JournalEntry struct {
	Path  string
	Value any
	Seq   int64
}

// Document is the journal row: one JSON document per replicated path,
// last write wins.
type Document struct {
	Path string `gorm:"primaryKey;size:512"`
	Seq  int64  `gorm:"index"`
	Data []byte `gorm:"type:jsonb"`
}

type GormJournal struct {
	db *gorm.DB
}

// OpenPostgres connects and migrates the journal schema.
func OpenPostgres(dsn string) (*GormJournal, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &GormJournal{db: db}, nil
}

func (j *GormJournal) Load(ctx context.Context) ([]JournalEntry, error) {
	var docs []Document
	if err := j.db.WithContext(ctx).Order("seq asc").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	entries := make([]JournalEntry, 0, len(docs))
	for _, d := range docs {
		var value any
		if err := json.Unmarshal(d.Data, &value); err != nil {
			continue // skip a corrupt row rather than refuse to boot
		}
		entries = append(entries, JournalEntry{Path: d.Path, Value: value, Seq: d.Seq})
	}
	return entries, nil
}

func (j *GormJournal) Record(ctx context.Context, path string, value any, seq int64) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode journal doc: %w", err)
	}
	doc := Document{Path: path, Seq: seq, Data: raw}
	return j.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			DoUpdates: clause.AssignmentColumns([]string{"seq", "data"}),
		}).
		Create(&doc).Error
}

func (j *GormJournal) DeletePrefix(ctx context.Context, path string) error {
	return j.db.WithContext(ctx).
		Where("path = ? OR path LIKE ?", path, path+"/%").
		Delete(&Document{}).Error
}
