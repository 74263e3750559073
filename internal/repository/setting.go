package repository

import (
	"errors"
	"fieldsync/internal/db"
	"fieldsync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingRepository is a small persisted key-value store for user choices
// that must survive a restart, such as the sync pause flag.
type SettingRepository struct{}

func NewSettingRepository() *SettingRepository {
	return &SettingRepository{}
}

// Get returns the stored value and whether the key exists.
func (r *SettingRepository) Get(key string) (string, bool, error) {
	var s model.Setting
	err := db.DB.Where("key = ?", key).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	return s.Value, true, nil
}

func (r *SettingRepository) Set(key, value string) error {
	return db.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&model.Setting{Key: key, Value: value}).Error
}

func (r *SettingRepository) Delete(key string) error {
	return db.DB.Where("key = ?", key).Delete(&model.Setting{}).Error
}
