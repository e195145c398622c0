package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// ArchivedDraftRow is one completed draft. Picks are stored as a JSON array.
type ArchivedDraftRow struct {
	DraftID     string    `gorm:"primaryKey;size:64"`
	LeagueID    string    `gorm:"size:64;index;not null"`
	TotalPicks  int       `gorm:"not null"`
	Picks       []byte    `gorm:"type:jsonb;not null"`
	CompletedAt time.Time `gorm:"not null"`
	CreatedAt   time.Time
}

func (ArchivedDraftRow) TableName() string { return "archived_drafts" }

// GormArchive implements Archive with gorm on PostgreSQL.
type GormArchive struct {
	db *gorm.DB
}

// OpenArchive opens a gorm connection for the archive and migrates its table.
func OpenArchive(dsn string) (*GormArchive, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	a := NewGormArchive(db)
	if err := a.Migrate(); err != nil {
		return nil, err
	}
	return a, nil
}

func NewGormArchive(db *gorm.DB) *GormArchive {
	return &GormArchive{db: db}
}

func (a *GormArchive) Migrate() error {
	if err := a.db.AutoMigrate(&ArchivedDraftRow{}); err != nil {
		return fmt.Errorf("migrate archived_drafts: %w", err)
	}
	return nil
}

// ArchiveDraft writes the summary once; archiving the same draft again is a no-op.
func (a *GormArchive) ArchiveDraft(ctx context.Context, d ArchivedDraft) error {
	row, err := toRow(d)
	if err != nil {
		return err
	}
	return a.create(a.db.WithContext(ctx), row).Error
}

func (a *GormArchive) create(tx *gorm.DB, row ArchivedDraftRow) *gorm.DB {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
}

func (a *GormArchive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(d ArchivedDraft) (ArchivedDraftRow, error) {
	picks, err := json.Marshal(d.Picks)
	if err != nil {
		return ArchivedDraftRow{}, fmt.Errorf("encode picks: %w", err)
	}
	return ArchivedDraftRow{
		DraftID:     d.DraftID,
		LeagueID:    d.LeagueID,
		TotalPicks:  len(d.Picks),
		Picks:       picks,
		CompletedAt: d.CompletedAt,
	}, nil
}
