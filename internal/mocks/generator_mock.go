package mocks

import (
	"context"

	"github.com/joshu-sajeev/previewq/internal/config"
	"github.com/joshu-sajeev/previewq/internal/preview"
	"github.com/stretchr/testify/mock"
)

type GeneratorMock struct {
	mock.Mock
}

func (m *GeneratorMock) Generate(ctx context.Context, fileID uint, skipPermissionCheck bool) (*preview.Result, error) {
	args := m.Called(ctx, fileID, skipPermissionCheck)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*preview.Result), args.Error(1)
}

// SettingsMock returns fixed preview settings.
type SettingsMock struct {
	Settings config.PreviewSettings
	Err      error
}

func (m *SettingsMock) PreviewSettings(context.Context) (config.PreviewSettings, error) {
	return m.Settings, m.Err
}
