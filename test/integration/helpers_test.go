package integration

import (
	"context"
	"errors"

	"github.com/joshu-sajeev/previewq/internal/preview"
)

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, uint, bool) (*preview.Result, error) {
	return nil, errors.New("render farm unavailable")
}
