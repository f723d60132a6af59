package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/servemate/service-booking/internal/domain/quota"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var counterKeyColumns = []clause.Column{{Name: "actor"}, {Name: "actor_id"}, {Name: "metric"}, {Name: "scope"}}

// GormCounterRepository stores quota counters, one row per key.
type GormCounterRepository struct {
	db *gorm.DB
}

// NewGormCounterRepository creates a new GormCounterRepository.
func NewGormCounterRepository(db *gorm.DB) *GormCounterRepository {
	return &GormCounterRepository{db: db}
}

func (r *GormCounterRepository) where(db *gorm.DB, key quota.Key) *gorm.DB {
	return db.Where("actor = ? AND actor_id = ? AND metric = ? AND scope = ?",
		string(key.Actor), key.ActorID, string(key.Metric), key.Scope)
}

// Get returns the stored value, zero when the row does not exist.
func (r *GormCounterRepository) Get(ctx context.Context, key quota.Key) (int64, error) {
	var model QuotaCounterModel
	err := r.where(r.db.WithContext(ctx), key).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}
	return model.Value, nil
}

// Add upserts value = value + delta. The upsert takes the row lock, so the
// value read back is the one this transaction will commit.
func (r *GormCounterRepository) Add(ctx context.Context, key quota.Key, delta int64) (int64, error) {
	db := r.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns: counterKeyColumns,
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value": gorm.Expr("quota_counters.value + ?", delta),
		}),
	}).Create(toCounterModel(key, delta)).Error
	if err != nil {
		return 0, fmt.Errorf("failed to add to counter: %w", err)
	}
	return r.Get(ctx, key)
}

// Set overwrites a counter.
func (r *GormCounterRepository) Set(ctx context.Context, key quota.Key, value int64) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   counterKeyColumns,
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(toCounterModel(key, value)).Error
	if err != nil {
		return fmt.Errorf("failed to set counter: %w", err)
	}
	return nil
}

// All returns every stored counter.
func (r *GormCounterRepository) All(ctx context.Context) (map[quota.Key]int64, error) {
	var models []QuotaCounterModel
	if err := r.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list counters: %w", err)
	}
	out := make(map[quota.Key]int64, len(models))
	for _, m := range models {
		out[m.key()] = m.Value
	}
	return out, nil
}

// Lock takes a table lock that conflicts with every counter write but not
// with reads. SQLite already serializes writers.
func (r *GormCounterRepository) Lock(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	if err := db.Exec("LOCK TABLE quota_counters IN SHARE ROW EXCLUSIVE MODE").Error; err != nil {
		return fmt.Errorf("failed to lock counters: %w", err)
	}
	return nil
}
