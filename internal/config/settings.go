package config

import (
	"strconv"
	"strings"
)

// Keys of the preview_* namespace in the settings table.
const (
	SettingPreviewWidth         = "preview_width"
	SettingPreviewHeight        = "preview_height"
	SettingPreviewFormat        = "preview_format"
	SettingPreviewQuality       = "preview_quality"
	SettingPreviewMaxSizeKB     = "preview_max_size_kb"
	SettingPreviewQueueMode     = "preview_queue_mode"
	SettingPreviewMaxConcurrent = "preview_max_concurrent"
)

const (
	FormatJPEG = "jpeg"
	FormatWebP = "webp"

	QueueModeCLI  = "cli"
	QueueModeAJAX = "ajax"
)

var (
	AllowedPreviewFormats = []string{FormatJPEG, FormatWebP}
	AllowedQueueModes     = []string{QueueModeCLI, QueueModeAJAX}
)

// PreviewSettings holds the runtime knobs read from the settings store.
type PreviewSettings struct {
	Width         int
	Height        int
	Format        string
	Quality       int
	MaxSizeKB     int
	QueueMode     string
	MaxConcurrent int
}

func DefaultPreviewSettings() PreviewSettings {
	return PreviewSettings{
		Width:         300,
		Height:        300,
		Format:        FormatJPEG,
		Quality:       85,
		MaxSizeKB:     100,
		QueueMode:     QueueModeAJAX,
		MaxConcurrent: 3,
	}
}

// ParsePreviewSettings overlays raw key/value pairs on the defaults.
// Unknown keys are ignored and malformed values keep the default.
func ParsePreviewSettings(values map[string]string) PreviewSettings {
	s := DefaultPreviewSettings()

	s.Width = positiveInt(values[SettingPreviewWidth], s.Width)
	s.Height = positiveInt(values[SettingPreviewHeight], s.Height)
	s.Quality = clampInt(positiveInt(values[SettingPreviewQuality], s.Quality), 1, 100)
	s.MaxSizeKB = positiveInt(values[SettingPreviewMaxSizeKB], s.MaxSizeKB)
	s.MaxConcurrent = positiveInt(values[SettingPreviewMaxConcurrent], s.MaxConcurrent)

	switch f := strings.ToLower(strings.TrimSpace(values[SettingPreviewFormat])); f {
	case FormatJPEG, "jpg":
		s.Format = FormatJPEG
	case FormatWebP:
		s.Format = FormatWebP
	}

	switch m := strings.ToLower(strings.TrimSpace(values[SettingPreviewQueueMode])); m {
	case QueueModeCLI, QueueModeAJAX:
		s.QueueMode = m
	}

	return s
}

// Extension returns the file extension used for previews in this format.
func (s PreviewSettings) Extension() string {
	if s.Format == FormatWebP {
		return "webp"
	}
	return "jpg"
}

func positiveInt(raw string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
