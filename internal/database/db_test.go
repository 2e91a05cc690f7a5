package database

import (
	"testing"

	"gorm.io/gorm"

	"github.com/charlesng35/feedsync/internal/store"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	if err := db.Exec("SELECT 1").Error; err != nil {
		t.Fatalf("expected health query to succeed: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "oracle"}); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestAutoMigrateCreatesCacheSchema(t *testing.T) {
	db := openTestDB(t)

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	if !db.Migrator().HasTable(&store.CacheRecord{}) {
		t.Fatal("expected cache_records table to exist")
	}

	var count int64
	if err := db.Model(&store.CacheRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count cache records: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty cache, got %d records", count)
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite", DSN: "file:" + t.Name() + "?mode=memory&cache=shared"})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
