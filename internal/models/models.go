package models

import "time"

// KVEntry: одна запись локального хранилища профиля.
// Удаление хранится как tombstone (Deleted=true), чтобы другие контексты увидели его через rev.
type KVEntry struct {
	Key       string    `gorm:"column:kv_key;type:varchar(255);primaryKey"`
	Value     []byte
	Origin    string    `gorm:"type:varchar(64);not null"`
	Rev       int64     `gorm:"not null;index"`
	Deleted   bool      `gorm:"not null;default:false"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (KVEntry) TableName() string { return "kv_entries" }

// KVRevision: единственная строка с глобальным счётчиком ревизий.
type KVRevision struct {
	ID  int   `gorm:"primaryKey"`
	Rev int64 `gorm:"not null;default:0"`
}

func (KVRevision) TableName() string { return "kv_revisions" }
