package preview

import (
	"context"

	"github.com/joshu-sajeev/previewq/internal/models"
)

// Authorizer decides whether the caller in ctx may view file.
type Authorizer interface {
	CanView(ctx context.Context, file *models.UploadedFile) bool
}

type viewerKey struct{}

// WithViewer records the authenticated user id for permission checks.
func WithViewer(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, viewerKey{}, userID)
}

func ViewerFrom(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(viewerKey{}).(uint)
	return id, ok
}

// OwnerAuthorizer lets only the uploader view a file.
type OwnerAuthorizer struct{}

func (OwnerAuthorizer) CanView(ctx context.Context, file *models.UploadedFile) bool {
	viewer, ok := ViewerFrom(ctx)
	return ok && viewer == file.UserID
}
