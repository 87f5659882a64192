package dto

import (
	"encoding/json"
	"time"
)

// ProcessRequest asks for one batch. Any limit is accepted; the manager
// clamps it and treats zero as the configured max_concurrent.
type ProcessRequest struct {
	Limit int `json:"limit"`
}

// JobOutcome is one entry of a batch result.
type JobOutcome struct {
	JobID   uint   `json:"job_id"`
	FileID  uint   `json:"file_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type BatchResult struct {
	Processed int          `json:"processed"`
	HasMore   bool         `json:"has_more"`
	Results   []JobOutcome `json:"results"`
}

type QueueStatus struct {
	Pending       int64  `json:"pending"`
	Processing    int64  `json:"processing"`
	Failed        int64  `json:"failed"`
	Completed     int64  `json:"completed"`
	Mode          string `json:"mode"`
	MaxConcurrent int    `json:"max_concurrent"`
}

type WorkerStatus struct {
	Status string `json:"status"`
	PID    int    `json:"pid,omitempty"`
}

type JobResponse struct {
	ID          uint            `json:"id"`
	FileID      uint            `json:"file_id"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}
