package db

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const KeyERPLastSync = "erp.last_sync"

func SetKV(ctx context.Context, gdb *gorm.DB, k, v string) error {
	return gdb.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "k"}},
		DoUpdates: clause.AssignmentColumns([]string{"v"}),
	}).Create(&KV{K: k, V: v}).Error
}

// GetKV zwraca "" gdy klucza nie ma
func GetKV(ctx context.Context, gdb *gorm.DB, k string) (string, error) {
	var kv KV
	err := gdb.WithContext(ctx).Where("k = ?", k).Take(&kv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return kv.V, nil
}
