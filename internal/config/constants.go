package config

import "errors"

// JobStatus is the lifecycle state of a preview job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// PreviewStatus mirrors the job state on the uploaded file so the UI can
// show progress without reading the job table.
type PreviewStatus string

const (
	PreviewStatusNone       PreviewStatus = ""
	PreviewStatusPending    PreviewStatus = "pending"
	PreviewStatusProcessing PreviewStatus = "processing"
	PreviewStatusCompleted  PreviewStatus = "completed"
	PreviewStatusFailed     PreviewStatus = "failed"
)

// LockExpiredMessage is recorded on jobs whose lease ran out while processing.
const LockExpiredMessage = "Lock expired - job timed out"

var ErrInvalidTransition = errors.New("invalid job status transition")

var AllJobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusProcessing,
	JobStatusCompleted,
	JobStatusFailed,
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed:
		return true
	case JobStatusPending, JobStatusProcessing:
		return false
	}
	return false
}

// CanTransition reports whether a job in state s may move to state to.
// Terminal states accept no transitions.
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case JobStatusPending:
		return to == JobStatusProcessing
	case JobStatusProcessing:
		return to == JobStatusCompleted || to == JobStatusFailed
	case JobStatusCompleted, JobStatusFailed:
		return false
	}
	return false
}

// Preview mirrors a job state onto the file's preview status.
func (s JobStatus) Preview() PreviewStatus {
	switch s {
	case JobStatusPending:
		return PreviewStatusPending
	case JobStatusProcessing:
		return PreviewStatusProcessing
	case JobStatusCompleted:
		return PreviewStatusCompleted
	case JobStatusFailed:
		return PreviewStatusFailed
	}
	return PreviewStatusNone
}
