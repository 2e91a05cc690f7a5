package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Setting keys persisted across agent restarts.
const (
	CredentialKeySetting = "credentials.encryption_key"
	AgentInstanceSetting = "agent.instance_id"
)

// Setting is a key/value row for values generated on first run. The
// credential encryption key must survive restarts or previously written
// token files become unreadable.
type Setting struct {
	Key       string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GetSetting retrieves a setting by key. Returns an empty string when not found.
func GetSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("settings: db is nil")
	}

	var setting Setting
	err := db.WithContext(ctx).Take(&setting, "key = ?", key).Error
	if err == nil {
		return setting.Value, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return "", nil
	}
	return "", fmt.Errorf("settings: get %q: %w", key, err)
}

// UpsertSetting stores or updates a setting value.
func UpsertSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return fmt.Errorf("settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("settings: key is required")
	}

	record := Setting{
		Key:   key,
		Value: value,
	}

	if err := db.WithContext(ctx).
		Where("key = ?", key).
		Assign(map[string]any{"value": value}).
		FirstOrCreate(&record).Error; err != nil {
		return fmt.Errorf("settings: upsert %q: %w", key, err)
	}

	return nil
}

// EnsureSetting returns the stored value for key, persisting fallback when no
// value exists yet. The stored value wins so generated secrets stay stable
// across restarts.
func EnsureSetting(ctx context.Context, db *gorm.DB, key, fallback string) (string, error) {
	current, err := GetSetting(ctx, db, key)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(current) != "" {
		return current, nil
	}

	fallback = strings.TrimSpace(fallback)
	if fallback == "" {
		return "", fmt.Errorf("settings: no value for %q and fallback is empty", key)
	}

	if err := UpsertSetting(ctx, db, key, fallback); err != nil {
		return "", err
	}
	return fallback, nil
}
