package queue_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joshu-sajeev/previewq/internal/blob"
	"github.com/joshu-sajeev/previewq/internal/config"
	"github.com/joshu-sajeev/previewq/internal/models"
	"github.com/joshu-sajeev/previewq/internal/preview"
	"github.com/joshu-sajeev/previewq/internal/queue"
	"github.com/joshu-sajeev/previewq/internal/storage/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type stack struct {
	db      *gorm.DB
	clock   *skewClock
	files   *database.FileRepository
	jobs    *database.JobRepository
	store   *blob.MemoryStorage
	manager *queue.Manager
}

// skewClock is wall time plus an offset the test can push forward.
type skewClock struct {
	mu     sync.Mutex
	offset time.Duration
}

func (c *skewClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Add(c.offset)
}

func (c *skewClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

func newStack(t *testing.T) *stack {
	t.Helper()

	path := filepath.Join(t.TempDir(), "queue.db")
	db, err := gorm.Open(sqlite.Open(database.SQLiteDSN(path, 5*time.Second)), database.GormConfig(gormlogger.Silent))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(context.Background(), db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	clock := &skewClock{}
	s := &stack{
		db:    db,
		clock: clock,
		files: database.NewFileRepository(db),
		jobs:  database.NewJobRepository(db).WithClock(clock.Now),
		store: blob.NewMemoryStorage(),
	}
	settings := database.NewSettingsRepository(db)
	gen := preview.NewGenerator(s.files, s.store, settings, preview.Options{TempDir: t.TempDir()})
	locks := database.NewLockRepository(db).WithClock(clock.Now)
	s.manager = queue.NewManager(s.jobs, locks, gen, settings, queue.Options{
		RetryDelay: 5 * time.Millisecond,
		MaxRetries: 20,
	})
	return s
}

// upload stores an original and queues its preview.
func (s *stack) upload(t *testing.T, name, mimetype string, data []byte) *models.PreviewJob {
	t.Helper()
	ctx := context.Background()

	file := &models.UploadedFile{UserID: 1, Filename: "uploads/" + name, OriginalName: name, Mimetype: mimetype}
	require.NoError(t, s.files.Create(ctx, file))
	s.store.PutBytes(file.Filename, data)

	job, err := s.jobs.Create(ctx, file.ID)
	require.NoError(t, err)
	return job
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessBatch_StopsAtLimit(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	first := s.upload(t, "a.png", "image/png", pngBytes(t, 120, 80))
	second := s.upload(t, "b.png", "image/png", pngBytes(t, 80, 120))
	third := s.upload(t, "c.png", "image/png", pngBytes(t, 50, 50))

	res, err := s.manager.ProcessBatch(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Processed)
	assert.True(t, res.HasMore)
	require.Len(t, res.Results, 2)
	assert.Equal(t, first.ID, res.Results[0].JobID, "oldest first")
	assert.Equal(t, second.ID, res.Results[1].JobID)

	for _, id := range []uint{first.ID, second.ID} {
		job, err := s.jobs.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, config.JobStatusCompleted, job.Status)
		assert.Equal(t, 1, job.Attempts)
		assert.Contains(t, string(job.Result), `"preview_filename"`)
	}

	left, err := s.jobs.Get(ctx, third.ID)
	require.NoError(t, err)
	assert.Equal(t, config.JobStatusPending, left.Status)

	res, err = s.manager.ProcessBatch(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.False(t, res.HasMore)

	file, err := s.files.Get(ctx, third.FileID)
	require.NoError(t, err)
	assert.Equal(t, config.PreviewStatusCompleted, file.PreviewStatus)
	assert.Equal(t, "previews/c_preview.jpg", file.PreviewFilename)
}

func TestProcessBatch_FailuresAreData(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	bad := s.upload(t, "notes.txt", "text/plain", []byte("hello"))

	res, err := s.manager.ProcessBatch(ctx, 5)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.False(t, res.Results[0].Success)
	assert.Contains(t, res.Results[0].Error, "unsupported")

	job, err := s.jobs.Get(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, config.JobStatusFailed, job.Status)
	require.NotNil(t, job.ProcessedAt)

	file, err := s.files.Get(ctx, bad.FileID)
	require.NoError(t, err)
	assert.Equal(t, config.PreviewStatusFailed, file.PreviewStatus)
}

// A job whose lease ran out mid-run is failed by the sweep; the late
// preview write must not leave the file claiming success.
func TestProcessJob_LeaseExpiredKeepsFileInLine(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	queued := s.upload(t, "late.png", "image/png", pngBytes(t, 60, 40))

	job, err := s.manager.ClaimNext(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, queued.ID, job.ID)

	s.clock.Advance(queue.DefaultLease + time.Second)
	n, err := s.manager.SweepExpiredLocks(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	assert.False(t, s.manager.ProcessJob(ctx, job))

	got, err := s.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, config.JobStatusFailed, got.Status)
	assert.Equal(t, config.LockExpiredMessage, got.LastError)

	file, err := s.files.Get(ctx, job.FileID)
	require.NoError(t, err)
	assert.Equal(t, config.PreviewStatusFailed, file.PreviewStatus)
}

func TestEnqueue_Regenerates(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	job := s.upload(t, "a.png", "image/png", pngBytes(t, 40, 40))
	_, err := s.manager.ProcessBatch(ctx, 1)
	require.NoError(t, err)

	again, err := s.manager.Enqueue(ctx, job.FileID)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, again.ID)
	assert.Equal(t, "pending", again.Status)

	st, err := s.manager.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Pending)
	assert.Equal(t, int64(1), st.Completed)
	assert.Equal(t, config.QueueModeAJAX, st.Mode)
}

// Several batch callers drain the queue concurrently; no job is handed
// out twice.
func TestProcessBatch_ConcurrentCallers(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	const total = 9
	for i := range total {
		s.upload(t, strings.Repeat("x", i+1)+".png", "image/png", pngBytes(t, 20, 20))
	}

	var (
		mu   sync.Mutex
		seen = map[uint]int{}
		wg   sync.WaitGroup
	)
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				res, err := s.manager.ProcessBatch(ctx, 2)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				for _, r := range res.Results {
					seen[r.JobID]++
				}
				mu.Unlock()
				if !res.HasMore {
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %d processed %d times", id, n)
	}
}
