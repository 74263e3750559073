package model

const (
	SettingSyncPaused = "offlineSyncPaused"

	SettingTrue  = "true"
	SettingFalse = "false"
)

type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string `gorm:"not null"`
}
