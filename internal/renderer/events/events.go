package events

import "time"

// JobStatus mirrors the lifecycle stage carried on event payloads.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobEvent describes a significant change in a render job lifecycle.
type JobEvent struct {
	Type       string    `json:"type"`
	JobID      int64     `json:"job_id,omitempty"`
	URL        string    `json:"url"`
	Status     JobStatus `json:"status"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Message    string    `json:"message,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	TypeJobStarted   = "JOB_STARTED"
	TypeJobSucceeded = "JOB_SUCCEEDED"
	TypeJobFailed    = "JOB_FAILED"
)

// TopicJobEvents is the event bus topic for render job lifecycle.
const TopicJobEvents = "renderer.job.events"
