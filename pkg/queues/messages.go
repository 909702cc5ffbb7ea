// Package queues provides the Redis-backed job queues that connect the
// HTTP surface to the ingestion pipeline and the calendar sync workers.
package queues

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Priority levels for queue jobs.
type Priority int

const (
	PriorityLow    Priority = 0 // Cleanup sweeps, backfill
	PriorityNormal Priority = 1 // Message processing
	PriorityHigh   Priority = 2 // User-triggered sync and undo
)

// JobType identifies the type of queue job.
type JobType string

const (
	JobTypeProcessMessage JobType = "process_message"
	JobTypeSyncEvent      JobType = "sync_event"
	JobTypeUndoEvent      JobType = "undo_event"
	JobTypeCleanup        JobType = "cleanup"
)

// Job is the base interface for all queue jobs.
type Job interface {
	// GetUserID returns the user the job belongs to.
	GetUserID() uuid.UUID
	// GetPriority returns the job priority.
	GetPriority() Priority
	// GetJobType returns the job type.
	GetJobType() JobType
}

// ProcessMessageJob runs the full extraction pipeline for one stored
// message.
type ProcessMessageJob struct {
	MessageID  uuid.UUID `json:"message_id"`
	UserID     uuid.UUID `json:"user_id"`
	Priority   Priority  `json:"priority"`
	EnqueuedBy string    `json:"enqueued_by,omitempty"` // upload, webhook, retry
}

func (j *ProcessMessageJob) GetUserID() uuid.UUID  { return j.UserID }
func (j *ProcessMessageJob) GetPriority() Priority { return j.Priority }
func (j *ProcessMessageJob) GetJobType() JobType   { return JobTypeProcessMessage }

// SyncEventJob pushes one approved event to the user's calendar.
type SyncEventJob struct {
	EventID    uuid.UUID  `json:"event_id"`
	UserID     uuid.UUID  `json:"user_id"`
	CalendarID *uuid.UUID `json:"calendar_id,omitempty"`
	Priority   Priority   `json:"priority"`
}

func (j *SyncEventJob) GetUserID() uuid.UUID  { return j.UserID }
func (j *SyncEventJob) GetPriority() Priority { return j.Priority }
func (j *SyncEventJob) GetJobType() JobType   { return JobTypeSyncEvent }

// UndoEventJob removes a synced event from the provider calendar and
// then deletes it locally.
type UndoEventJob struct {
	EventID  uuid.UUID `json:"event_id"`
	UserID   uuid.UUID `json:"user_id"`
	Priority Priority  `json:"priority"`
}

func (j *UndoEventJob) GetUserID() uuid.UUID  { return j.UserID }
func (j *UndoEventJob) GetPriority() Priority { return j.Priority }
func (j *UndoEventJob) GetJobType() JobType   { return JobTypeUndoEvent }

// CleanupJob sweeps old rejected events. Scheduled, not user-scoped.
type CleanupJob struct {
	OlderThan time.Duration `json:"older_than"`
	Priority  Priority      `json:"priority"`
}

func (j *CleanupJob) GetUserID() uuid.UUID  { return uuid.Nil }
func (j *CleanupJob) GetPriority() Priority { return j.Priority }
func (j *CleanupJob) GetJobType() JobType   { return JobTypeCleanup }

// QueuedJob wraps a job with queue metadata.
type QueuedJob struct {
	ID           string          `json:"id"`
	Job          json.RawMessage `json:"job"`
	JobType      JobType         `json:"job_type"`
	Priority     Priority        `json:"priority"`
	RetryCount   int             `json:"retry_count"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	VisibleAfter time.Time       `json:"visible_after,omitempty"` // For delayed visibility
}

// ParseJob parses the raw job payload based on job type.
func (qj *QueuedJob) ParseJob() (Job, error) {
	switch qj.JobType {
	case JobTypeProcessMessage:
		var job ProcessMessageJob
		if err := json.Unmarshal(qj.Job, &job); err != nil {
			return nil, err
		}
		return &job, nil
	case JobTypeSyncEvent:
		var job SyncEventJob
		if err := json.Unmarshal(qj.Job, &job); err != nil {
			return nil, err
		}
		return &job, nil
	case JobTypeUndoEvent:
		var job UndoEventJob
		if err := json.Unmarshal(qj.Job, &job); err != nil {
			return nil, err
		}
		return &job, nil
	case JobTypeCleanup:
		var job CleanupJob
		if err := json.Unmarshal(qj.Job, &job); err != nil {
			return nil, err
		}
		return &job, nil
	default:
		return nil, ErrUnknownJobType
	}
}

// Queue defines the interface for a job queue.
type Queue interface {
	// Name returns the queue name.
	Name() string

	// Enqueue adds a job to the queue.
	Enqueue(job Job) error

	// EnqueueBatch adds multiple jobs to the queue.
	EnqueueBatch(jobs []Job) error

	// Dequeue retrieves jobs from the queue.
	// Returns up to maxJobs, blocks for timeout.
	Dequeue(maxJobs int, timeout time.Duration) ([]*QueuedJob, error)

	// Ack acknowledges successful processing of a job.
	Ack(jobID string) error

	// Nack indicates processing failure, job will be retried.
	Nack(jobID string) error

	// MoveToDeadLetter moves a job to the dead letter queue.
	MoveToDeadLetter(jobID string, reason string) error

	// Depth returns the current queue depth.
	Depth() (int64, error)

	// Close closes the queue connection.
	Close() error
}

// QueueConfig configures queue behavior.
type QueueConfig struct {
	Name              string        `yaml:"name"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetentionPeriod   time.Duration `yaml:"retention_period"`
}

// Queue names.
const (
	QueueProcess = "events:process"
	QueueSync    = "events:sync"
	QueueUndo    = "events:undo"
	QueueCleanup = "events:cleanup"
)

// DefaultQueueConfigs returns default configurations for each queue.
func DefaultQueueConfigs() map[string]QueueConfig {
	return map[string]QueueConfig{
		QueueProcess: {
			Name: QueueProcess,
			// OCR plus an LLM round trip can take a while
			VisibilityTimeout: 300 * time.Second,
			MaxRetries:        3,
			RetentionPeriod:   24 * time.Hour,
		},
		QueueSync: {
			Name:              QueueSync,
			VisibilityTimeout: 60 * time.Second,
			MaxRetries:        3,
			RetentionPeriod:   24 * time.Hour,
		},
		QueueUndo: {
			Name:              QueueUndo,
			VisibilityTimeout: 60 * time.Second,
			MaxRetries:        3,
			RetentionPeriod:   24 * time.Hour,
		},
		QueueCleanup: {
			Name:              QueueCleanup,
			VisibilityTimeout: 120 * time.Second,
			MaxRetries:        1,
			RetentionPeriod:   24 * time.Hour,
		},
	}
}

// Verify interface compliance
var _ Job = (*ProcessMessageJob)(nil)
var _ Job = (*SyncEventJob)(nil)
var _ Job = (*UndoEventJob)(nil)
var _ Job = (*CleanupJob)(nil)
