// Package store is the durable push-state record: one sqlite file, one
// lazily-opened handle for the process lifetime, keyed by deal ID with
// replace-on-conflict upserts. It is the single component where a write
// failure propagates to the caller: silently losing push state would mean
// duplicate notifications forever after.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pauljones0/zdm-deals-bot/internal/models"
)

const backupTable = "zdm_deals_backup"

type Store struct {
	path string

	mu sync.Mutex
	db *gorm.DB

	now func() time.Time
}

// New returns a store for the given sqlite file. The connection is not
// opened until first use.
func New(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// conn opens the database on first use and runs schema migration.
func (s *Store) conn() (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	db, err := gorm.Open(sqlite.Open(s.path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store %s: %w", s.path, err)
	}

	if err := db.AutoMigrate(&models.DealItem{}); err != nil {
		// An incompatible legacy schema must not abort startup. Rebuild
		// the table and carry over whatever rows still fit.
		slog.Warn("Schema migration failed, rebuilding store table", "error", err)
		rebuildTable(db)
	}

	s.db = db
	return s.db, nil
}

// rebuildTable renames the incompatible table aside, creates a fresh one,
// and best-effort copies the columns every schema version has had. Every
// step tolerates failure; an empty fresh table beats a dead process.
func rebuildTable(db *gorm.DB) {
	m := db.Migrator()
	table := models.DealItem{}.TableName()

	_ = m.DropTable(backupTable)
	if err := m.RenameTable(table, backupTable); err != nil {
		slog.Warn("Could not move incompatible table aside", "error", err)
		_ = m.DropTable(table)
	}
	if err := m.CreateTable(&models.DealItem{}); err != nil {
		slog.Error("Could not recreate store table", "error", err)
		return
	}

	copySQL := fmt.Sprintf(
		"INSERT INTO %s (article_id, title, url, pushed) SELECT article_id, title, url, pushed FROM %s",
		table, backupTable)
	if err := db.Exec(copySQL).Error; err != nil {
		slog.Warn("Could not copy rows from legacy table, continuing with fresh state", "error", err)
	}
	_ = m.DropTable(backupTable)
}

// Close releases the underlying connection. Safe to call when the store
// was never used.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.db = nil
	return sqlDB.Close()
}

// Upsert writes one item with replace semantics.
func (s *Store) Upsert(ctx context.Context, item models.DealItem) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	err = db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&item).Error
	if err != nil {
		return fmt.Errorf("failed to upsert deal %s: %w", item.ID, err)
	}
	return nil
}

// UpsertBatch writes all items in a single transaction: either every row
// lands or none does, and the error goes back to the caller.
func (s *Store) UpsertBatch(ctx context.Context, items []models.DealItem) error {
	if len(items) == 0 {
		return nil
	}
	db, err := s.conn()
	if err != nil {
		return err
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range items {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&items[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert batch of %d deals: %w", len(items), err)
	}
	return nil
}

// GetUnpushed returns every stored item not yet notified.
func (s *Store) GetUnpushed(ctx context.Context) ([]models.DealItem, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var items []models.DealItem
	if err := db.WithContext(ctx).Where("pushed = ?", false).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to query unpushed deals: %w", err)
	}
	return items, nil
}

// GetRecentlyPushedIDs returns the IDs pushed within the rolling window.
// The published-at column is an opaque upstream string compared
// lexicographically against a YYYY-MM-DD cutoff, matching how the feed
// formats its timestamps.
func (s *Store) GetRecentlyPushedIDs(ctx context.Context, windowDays int) (map[string]struct{}, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	cutoff := s.now().AddDate(0, 0, -windowDays).Format("2006-01-02")
	var ids []string
	err = db.WithContext(ctx).
		Model(&models.DealItem{}).
		Where("pushed = ? AND article_time >= ?", true, cutoff).
		Pluck("article_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query pushed IDs: %w", err)
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// SetPushedStatus bulk-updates the pushed flag for the given IDs.
func (s *Store) SetPushedStatus(ctx context.Context, ids []string, pushed bool) error {
	if len(ids) == 0 {
		return nil
	}
	db, err := s.conn()
	if err != nil {
		return err
	}
	err = db.WithContext(ctx).
		Model(&models.DealItem{}).
		Where("article_id IN ?", ids).
		Update("pushed", pushed).Error
	if err != nil {
		return fmt.Errorf("failed to update pushed status for %d deals: %w", len(ids), err)
	}
	return nil
}
