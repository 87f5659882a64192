package mocks

import (
	"context"

	"github.com/joshu-sajeev/previewq/internal/dto"
	"github.com/stretchr/testify/mock"
)

type QueueServiceMock struct {
	mock.Mock
}

func (m *QueueServiceMock) ProcessBatch(ctx context.Context, limit int) (*dto.BatchResult, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.BatchResult), args.Error(1)
}

func (m *QueueServiceMock) Stats(ctx context.Context) (*dto.QueueStatus, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.QueueStatus), args.Error(1)
}

func (m *QueueServiceMock) Enqueue(ctx context.Context, fileID uint) (*dto.JobResponse, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.JobResponse), args.Error(1)
}

func (m *QueueServiceMock) GetJob(ctx context.Context, id uint) (*dto.JobResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.JobResponse), args.Error(1)
}
