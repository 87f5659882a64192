package queue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/joshu-sajeev/previewq/common"
	"github.com/joshu-sajeev/previewq/internal/config"
	"github.com/joshu-sajeev/previewq/internal/mocks"
	"github.com/joshu-sajeev/previewq/internal/models"
	"github.com/joshu-sajeev/previewq/internal/preview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type managerDeps struct {
	jobs     *mocks.JobStoreMock
	locks    *mocks.LockStoreMock
	gen      *mocks.GeneratorMock
	settings *mocks.SettingsMock
	slept    []time.Duration
}

func newTestManager(t *testing.T) (*Manager, *managerDeps) {
	t.Helper()

	d := &managerDeps{
		jobs:     new(mocks.JobStoreMock),
		locks:    new(mocks.LockStoreMock),
		gen:      new(mocks.GeneratorMock),
		settings: &mocks.SettingsMock{Settings: config.DefaultPreviewSettings()},
	}
	m := NewManager(d.jobs, d.locks, d.gen, d.settings, Options{
		Lease:      time.Minute,
		RetryDelay: 10 * time.Millisecond,
		MaxRetries: 4,
		Sleep: func(_ context.Context, delay time.Duration) error {
			d.slept = append(d.slept, delay)
			return nil
		},
	})

	t.Cleanup(func() {
		d.jobs.AssertExpectations(t)
		d.locks.AssertExpectations(t)
		d.gen.AssertExpectations(t)
	})
	return m, d
}

func contention() error {
	return fmt.Errorf("claim job: %w: database is locked", ErrContention)
}

func TestManager_ClaimNext(t *testing.T) {
	job := &models.PreviewJob{ID: 1, FileID: 10, Status: config.JobStatusProcessing, Attempts: 1}
	dbDown := errors.New("disk I/O error")

	tests := []struct {
		name       string
		maxRetries int
		setup      func(*mocks.JobStoreMock)
		wantJob    *models.PreviewJob
		wantErr    error
		wantSleeps []time.Duration
	}{
		{
			name: "claims first time",
			setup: func(m *mocks.JobStoreMock) {
				m.On("ClaimNext", mock.Anything, time.Minute).Return(job, nil).Once()
			},
			wantJob: job,
		},
		{
			name: "empty queue",
			setup: func(m *mocks.JobStoreMock) {
				m.On("ClaimNext", mock.Anything, time.Minute).Return(nil, nil).Once()
			},
		},
		{
			name: "retries contention with linear backoff",
			setup: func(m *mocks.JobStoreMock) {
				m.On("ClaimNext", mock.Anything, time.Minute).Return(nil, contention()).Twice()
				m.On("ClaimNext", mock.Anything, time.Minute).Return(job, nil).Once()
			},
			wantJob:    job,
			wantSleeps: []time.Duration{10 * time.Millisecond, 20 * time.Millisecond},
		},
		{
			name:       "exhausted retries look like an empty queue",
			maxRetries: 3,
			setup: func(m *mocks.JobStoreMock) {
				m.On("ClaimNext", mock.Anything, time.Minute).Return(nil, contention()).Times(3)
			},
			wantSleeps: []time.Duration{10 * time.Millisecond, 20 * time.Millisecond},
		},
		{
			name: "database failure surfaces",
			setup: func(m *mocks.JobStoreMock) {
				m.On("ClaimNext", mock.Anything, time.Minute).Return(nil, dbDown).Once()
			},
			wantErr: dbDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, d := newTestManager(t)
			tt.setup(d.jobs)

			got, err := m.ClaimNext(context.Background(), tt.maxRetries)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantJob, got)
			assert.Equal(t, tt.wantSleeps, d.slept)
		})
	}
}

func TestManager_ClaimNext_StopsWhenCancelled(t *testing.T) {
	jobs := new(mocks.JobStoreMock)
	jobs.On("ClaimNext", mock.Anything, mock.Anything).Return(nil, contention()).Once()

	m := NewManager(jobs, new(mocks.LockStoreMock), new(mocks.GeneratorMock), &mocks.SettingsMock{}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.ClaimNext(ctx, 5)
	assert.ErrorIs(t, err, context.Canceled)
	jobs.AssertExpectations(t)
}

func TestManager_ProcessJob(t *testing.T) {
	job := &models.PreviewJob{ID: 7, FileID: 70, Status: config.JobStatusProcessing}
	result := &preview.Result{FileID: 70, PreviewFilename: "previews/a_preview.jpg", Format: "jpeg", Width: 300, Height: 300, Quality: 85, Bytes: 4096}

	tests := []struct {
		name  string
		setup func(d *managerDeps)
		want  bool
	}{
		{
			name: "success stores the result",
			setup: func(d *managerDeps) {
				d.gen.On("Generate", mock.Anything, uint(70), true).Return(result, nil)
				d.jobs.On("MarkCompleted", mock.Anything, uint(7), mock.MatchedBy(func(raw datatypes.JSON) bool {
					return string(raw) == `{"file_id":70,"preview_filename":"previews/a_preview.jpg","format":"jpeg","width":300,"height":300,"quality":85,"bytes":4096}`
				})).Return(nil)
			},
			want: true,
		},
		{
			name: "generator error fails the job with its text",
			setup: func(d *managerDeps) {
				d.gen.On("Generate", mock.Anything, uint(70), true).Return(nil, preview.ErrUnsupportedType)
				d.jobs.On("MarkFailed", mock.Anything, uint(7), preview.ErrUnsupportedType.Error()).Return(nil)
			},
			want: false,
		},
		{
			name: "panic is converted into a failure",
			setup: func(d *managerDeps) {
				d.gen.On("Generate", mock.Anything, uint(70), true).Run(func(mock.Arguments) {
					panic("decoder exploded")
				})
				d.jobs.On("MarkFailed", mock.Anything, uint(7), "panic: decoder exploded").Return(nil)
			},
			want: false,
		},
		{
			name: "completion rejected after lease expiry",
			setup: func(d *managerDeps) {
				d.gen.On("Generate", mock.Anything, uint(70), true).Return(result, nil)
				d.jobs.On("MarkCompleted", mock.Anything, uint(7), mock.Anything).
					Return(fmt.Errorf("job 7 is failed: %w", config.ErrInvalidTransition))
			},
			want: false,
		},
		{
			name: "failure to record failure still returns false",
			setup: func(d *managerDeps) {
				d.gen.On("Generate", mock.Anything, uint(70), true).Return(nil, preview.ErrCorruptedFile)
				d.jobs.On("MarkFailed", mock.Anything, uint(7), mock.Anything).Return(errors.New("database is locked"))
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, d := newTestManager(t)
			tt.setup(d)

			assert.NotPanics(t, func() {
				assert.Equal(t, tt.want, m.ProcessJob(context.Background(), job))
			})
		})
	}
}

func TestManager_ProcessBatch(t *testing.T) {
	m, d := newTestManager(t)
	d.settings.Settings.MaxConcurrent = 2

	job1 := &models.PreviewJob{ID: 1, FileID: 10}
	job2 := &models.PreviewJob{ID: 2, FileID: 20}

	d.jobs.On("ClaimNext", mock.Anything, time.Minute).Return(job1, nil).Once()
	d.jobs.On("ClaimNext", mock.Anything, time.Minute).Return(job2, nil).Once()
	d.gen.On("Generate", mock.Anything, uint(10), true).Return(&preview.Result{FileID: 10}, nil)
	d.gen.On("Generate", mock.Anything, uint(20), true).Return(nil, preview.ErrOriginalMissing)
	d.jobs.On("MarkCompleted", mock.Anything, uint(1), mock.Anything).Return(nil)
	d.jobs.On("MarkFailed", mock.Anything, uint(2), preview.ErrOriginalMissing.Error()).Return(nil)
	d.jobs.On("Get", mock.Anything, uint(2)).
		Return(&models.PreviewJob{ID: 2, Status: config.JobStatusFailed, LastError: preview.ErrOriginalMissing.Error()}, nil)
	d.jobs.On("CountPending", mock.Anything).Return(int64(1), nil)

	// limit 0 falls back to max_concurrent
	res, err := m.ProcessBatch(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Processed)
	assert.True(t, res.HasMore)
	require.Len(t, res.Results, 2)
	assert.True(t, res.Results[0].Success)
	assert.False(t, res.Results[1].Success)
	assert.Equal(t, preview.ErrOriginalMissing.Error(), res.Results[1].Error)
}

func TestManager_ProcessBatch_ClaimError(t *testing.T) {
	m, d := newTestManager(t)
	d.jobs.On("ClaimNext", mock.Anything, time.Minute).Return(nil, errors.New("no such table: preview_jobs")).Once()

	res, err := m.ProcessBatch(context.Background(), 3)

	assert.Nil(t, res)
	var apiErr common.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
}

func TestManager_ProcessBatch_CancelledCaller(t *testing.T) {
	m, d := newTestManager(t)
	d.jobs.On("CountPending", mock.Anything).Return(int64(4), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := m.ProcessBatch(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.True(t, res.HasMore)
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{-5, 1},
		{0, 1},
		{1, 1},
		{7, 7},
		{10, 10},
		{11, 10},
		{500, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampLimit(tt.in), "ClampLimit(%d)", tt.in)
	}
}

func TestManager_SweepExpiredLocks(t *testing.T) {
	m, d := newTestManager(t)
	d.locks.On("SweepExpired", mock.Anything).Return(2, nil).Once()

	n, err := m.SweepExpiredLocks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestManager_Stats(t *testing.T) {
	m, d := newTestManager(t)
	d.settings.Settings.QueueMode = config.QueueModeCLI
	d.jobs.On("CountByStatus", mock.Anything).Return(map[config.JobStatus]int64{
		config.JobStatusPending:    3,
		config.JobStatusProcessing: 1,
		config.JobStatusCompleted:  8,
		config.JobStatusFailed:     2,
	}, nil)

	st, err := m.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), st.Pending)
	assert.Equal(t, int64(1), st.Processing)
	assert.Equal(t, int64(2), st.Failed)
	assert.Equal(t, int64(8), st.Completed)
	assert.Equal(t, config.QueueModeCLI, st.Mode)
	assert.Equal(t, 3, st.MaxConcurrent)
}

func TestManager_Enqueue(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "queued"},
		{name: "missing file", err: fmt.Errorf("file not found: %w", gorm.ErrRecordNotFound), wantStatus: http.StatusNotFound},
		{name: "timeout", err: context.DeadlineExceeded, wantStatus: http.StatusRequestTimeout},
		{name: "database error", err: errors.New("database is locked"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, d := newTestManager(t)
			if tt.err != nil {
				d.jobs.On("Create", mock.Anything, uint(5)).Return(nil, tt.err)
			} else {
				d.jobs.On("Create", mock.Anything, uint(5)).
					Return(&models.PreviewJob{ID: 9, FileID: 5, Status: config.JobStatusPending}, nil)
			}

			res, err := m.Enqueue(context.Background(), 5)

			if tt.wantStatus != 0 {
				var apiErr common.APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tt.wantStatus, apiErr.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint(9), res.ID)
			assert.Equal(t, "pending", res.Status)
		})
	}
}
