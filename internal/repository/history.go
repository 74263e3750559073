package repository

import (
	"time"

	"fieldsync/internal/db"
	"fieldsync/internal/model"
)

type HistoryRepository struct{}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{}
}

func (r *HistoryRepository) RecordDrain(summary model.DrainSummary) error {
	history := model.NewHistory(summary)
	return db.DB.Create(&history).Error
}

func (r *HistoryRepository) RecordAbandonment(photo model.PendingPhoto, attempts int, cause error) error {
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}

	a := model.Abandonment{
		PhotoID:    photo.ID,
		PropertyID: photo.Metadata.PropertyID,
		CapturedAt: photo.Metadata.CapturedAt,
		Attempts:   attempts,
		LastError:  errMsg,
	}

	return db.DB.Create(&a).Error
}

type Stats struct {
	Episodes        int64 `json:"episodes"`
	PhotosSynced    int64 `json:"photos_synced"`
	PhotosFailed    int64 `json:"photos_failed"`
	PhotosAbandoned int64 `json:"photos_abandoned"`
	ReadingsSynced  int64 `json:"readings_synced"`
}

func (r *HistoryRepository) GetStats() (Stats, error) {
	var stats Stats
	if err := db.DB.Model(&model.History{}).Count(&stats.Episodes).Error; err != nil {
		return stats, err
	}

	row := db.DB.Model(&model.History{}).
		Select("COALESCE(SUM(photos_synced),0), COALESCE(SUM(photos_failed),0), " +
			"COALESCE(SUM(photos_abandoned),0), COALESCE(SUM(readings_synced),0)").
		Row()
	if err := row.Scan(&stats.PhotosSynced, &stats.PhotosFailed, &stats.PhotosAbandoned, &stats.ReadingsSynced); err != nil {
		return stats, err
	}

	return stats, nil
}

func (r *HistoryRepository) GetRecent(limit int) ([]model.History, error) {
	var histories []model.History
	result := db.DB.
		Order("started_at desc").
		Limit(limit).
		Find(&histories)

	return histories, result.Error
}

func (r *HistoryRepository) GetAbandoned(since time.Time) ([]model.Abandonment, error) {
	var items []model.Abandonment
	result := db.DB.
		Where("created_at >= ?", since).
		Order("created_at desc").
		Find(&items)

	return items, result.Error
}
