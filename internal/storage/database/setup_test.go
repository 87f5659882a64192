package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/joshu-sajeev/previewq/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SetupTestDB opens a migrated sqlite file in a temp dir. A file rather
// than :memory: so every pooled connection sees the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(SQLiteDSN(path, 5*time.Second)), GormConfig(gormlogger.Silent))
	require.NoError(t, err)

	require.NoError(t, Migrate(context.Background(), db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}

func createFile(t *testing.T, db *gorm.DB, name string) *models.UploadedFile {
	t.Helper()

	file := &models.UploadedFile{
		UserID:       1,
		Filename:     name,
		OriginalName: name,
		Mimetype:     "image/png",
	}
	require.NoError(t, NewFileRepository(db).Create(context.Background(), file))
	return file
}

// fakeClock is a settable time source shared by repositories in a test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
