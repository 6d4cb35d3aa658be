// Package storage provides the SQLite implementation of the context memory
// persistence backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/meridianapps/contextmem/internal/contextmem"
)

// SQLiteBackend persists context items in a single SQLite table via GORM.
// Each method is one logical transaction; TouchAll batches all access marks
// into one.
type SQLiteBackend struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string, logger *zap.Logger) (*SQLiteBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if err := db.AutoMigrate(&contextmem.ContextItem{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	logger.Debug("sqlite backend ready", zap.String("path", path))
	return &SQLiteBackend{db: db, logger: logger}, nil
}

// Insert persists a new item.
func (b *SQLiteBackend) Insert(ctx context.Context, item *contextmem.ContextItem) error {
	return b.db.WithContext(ctx).Create(item).Error
}

// Update persists all fields of an existing item, matched by primary key.
func (b *SQLiteBackend) Update(ctx context.Context, item *contextmem.ContextItem) error {
	return b.db.WithContext(ctx).Save(item).Error
}

// Delete removes an item by ID. A missing ID is a no-op.
func (b *SQLiteBackend) Delete(ctx context.Context, id string) error {
	return b.db.WithContext(ctx).Delete(&contextmem.ContextItem{}, "id = ?", id).Error
}

// Get fetches the item for a (category, key) pair, (nil, nil) when absent.
func (b *SQLiteBackend) Get(ctx context.Context, category contextmem.Category, key string) (*contextmem.ContextItem, error) {
	var item contextmem.ContextItem
	err := b.db.WithContext(ctx).
		Where("category = ? AND key = ?", category, key).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// List fetches all items in the given categories, all items when empty.
func (b *SQLiteBackend) List(ctx context.Context, categories []contextmem.Category) ([]*contextmem.ContextItem, error) {
	q := b.db.WithContext(ctx)
	if len(categories) > 0 {
		q = q.Where("category IN ?", categories)
	}

	var items []*contextmem.ContextItem
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Count returns the total number of items.
func (b *SQLiteBackend) Count(ctx context.Context) (int, error) {
	var n int64
	if err := b.db.WithContext(ctx).Model(&contextmem.ContextItem{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

// TouchAll increments access counts and advances last-accessed timestamps
// for every given ID in a single transaction.
func (b *SQLiteBackend) TouchAll(ctx context.Context, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(&contextmem.ContextItem{}).
			Where("id IN ?", ids).
			UpdateColumns(map[string]any{
				"access_count":     gorm.Expr("access_count + 1"),
				"last_accessed_at": now,
			}).Error
	})
}

// Close releases the underlying database handle.
func (b *SQLiteBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ensure SQLiteBackend implements the backend interface.
var _ contextmem.Backend = (*SQLiteBackend)(nil)
