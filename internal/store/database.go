package store

import (
	"context"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errDatabaseStoreNotInitialised = errors.New("store: database store not initialised")

// DatabaseStore implements Store on the agent's SQL database.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore constructs a database-backed Store.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		return nil
	}
	return &DatabaseStore{db: db}
}

// Get retrieves a record body by collection and key.
func (s *DatabaseStore) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, errDatabaseStoreNotInitialised
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var record CacheRecord
	err := s.db.WithContext(ctx).
		Take(&record, "collection = ? AND key = ?", collection, key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return []byte(record.Body), true, nil
}

// Put upserts a record body. Overwrites keep the record's original position
// so collection order remains insertion order.
func (s *DatabaseStore) Put(ctx context.Context, collection, key string, body []byte) error {
	if s == nil {
		return errDatabaseStoreNotInitialised
	}
	if ctx == nil {
		ctx = context.Background()
	}

	record := CacheRecord{
		Collection: collection,
		Key:        key,
		Body:       datatypes.JSON(body),
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
		}).Create(&record).Error
}

// Delete removes a record, ignoring missing keys.
func (s *DatabaseStore) Delete(ctx context.Context, collection, key string) error {
	if s == nil {
		return errDatabaseStoreNotInitialised
	}
	if ctx == nil {
		ctx = context.Background()
	}

	return s.db.WithContext(ctx).
		Where("collection = ? AND key = ?", collection, key).
		Delete(&CacheRecord{}).Error
}

// ClearAll removes every record in a collection.
func (s *DatabaseStore) ClearAll(ctx context.Context, collection string) error {
	if s == nil {
		return errDatabaseStoreNotInitialised
	}
	if ctx == nil {
		ctx = context.Background()
	}

	return s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Delete(&CacheRecord{}).Error
}

// ListAll returns all record bodies for a collection in insertion order.
func (s *DatabaseStore) ListAll(ctx context.Context, collection string) ([][]byte, error) {
	if s == nil {
		return nil, errDatabaseStoreNotInitialised
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var records []CacheRecord
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("position ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	bodies := make([][]byte, 0, len(records))
	for _, record := range records {
		bodies = append(bodies, []byte(record.Body))
	}
	return bodies, nil
}
