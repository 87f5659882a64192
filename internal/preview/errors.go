package preview

import "errors"

// Input and transform failures. All of them are terminal for the job that
// hit them.
var (
	ErrFileNotFound    = errors.New("preview: file not found")
	ErrAccessDenied    = errors.New("preview: access denied")
	ErrOriginalMissing = errors.New("preview: original file missing from storage")
	ErrUnsupportedType = errors.New("preview: unsupported file type")
	ErrImageTooLarge   = errors.New("preview: image exceeds pixel limit")
	ErrCorruptedFile   = errors.New("preview: file appears corrupted")
	ErrToolFailed      = errors.New("preview: external tool failed")
	ErrToolMissing     = errors.New("preview: external tool not installed")
)
