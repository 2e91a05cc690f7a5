package store

import (
	"time"

	"gorm.io/datatypes"
)

// CacheRecord is the serialized-at-rest form of a cached entity. Position is
// assigned once on first insert and never changes on overwrite, so ListAll
// preserves insertion order.
type CacheRecord struct {
	Position   int64          `gorm:"primaryKey;autoIncrement"`
	Collection string         `gorm:"size:64;not null;uniqueIndex:idx_cache_records_collection_key,priority:1"`
	Key        string         `gorm:"size:128;not null;uniqueIndex:idx_cache_records_collection_key,priority:2"`
	Body       datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName overrides the default gorm table name.
func (CacheRecord) TableName() string {
	return "cache_records"
}
