package mocks

import (
	"context"
	"time"

	"github.com/joshu-sajeev/previewq/internal/config"
	"github.com/joshu-sajeev/previewq/internal/models"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"
)

type JobStoreMock struct {
	mock.Mock
}

func (m *JobStoreMock) Create(ctx context.Context, fileID uint) (*models.PreviewJob, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PreviewJob), args.Error(1)
}

func (m *JobStoreMock) Get(ctx context.Context, id uint) (*models.PreviewJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PreviewJob), args.Error(1)
}

func (m *JobStoreMock) ClaimNext(ctx context.Context, lease time.Duration) (*models.PreviewJob, error) {
	args := m.Called(ctx, lease)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PreviewJob), args.Error(1)
}

func (m *JobStoreMock) MarkCompleted(ctx context.Context, id uint, result datatypes.JSON) error {
	args := m.Called(ctx, id, result)
	return args.Error(0)
}

func (m *JobStoreMock) MarkFailed(ctx context.Context, id uint, errMsg string) error {
	args := m.Called(ctx, id, errMsg)
	return args.Error(0)
}

func (m *JobStoreMock) CountByStatus(ctx context.Context) (map[config.JobStatus]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[config.JobStatus]int64), args.Error(1)
}

func (m *JobStoreMock) CountPending(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type LockStoreMock struct {
	mock.Mock
}

func (m *LockStoreMock) Acquire(ctx context.Context, jobID uint, lease time.Duration) (string, error) {
	args := m.Called(ctx, jobID, lease)
	return args.String(0), args.Error(1)
}

func (m *LockStoreMock) SweepExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
