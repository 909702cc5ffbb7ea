package queues

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	eherrors "github.com/eventhint/eventhint/pkg/errors"
)

func TestProcessMessageJob_Interface(t *testing.T) {
	userID := uuid.New()
	messageID := uuid.New()
	job := &ProcessMessageJob{
		MessageID:  messageID,
		UserID:     userID,
		Priority:   PriorityNormal,
		EnqueuedBy: "upload",
	}

	if job.GetUserID() != userID {
		t.Errorf("GetUserID() = %s, want %s", job.GetUserID(), userID)
	}
	if job.GetPriority() != PriorityNormal {
		t.Errorf("GetPriority() = %d, want %d", job.GetPriority(), PriorityNormal)
	}
	if job.GetJobType() != JobTypeProcessMessage {
		t.Errorf("GetJobType() = %s, want %s", job.GetJobType(), JobTypeProcessMessage)
	}
}

func TestSyncEventJob_Interface(t *testing.T) {
	calendarID := uuid.New()
	job := &SyncEventJob{
		EventID:    uuid.New(),
		UserID:     uuid.New(),
		CalendarID: &calendarID,
		Priority:   PriorityHigh,
	}

	if job.GetJobType() != JobTypeSyncEvent {
		t.Errorf("GetJobType() = %s, want %s", job.GetJobType(), JobTypeSyncEvent)
	}
	if job.GetPriority() != PriorityHigh {
		t.Errorf("GetPriority() = %d, want %d", job.GetPriority(), PriorityHigh)
	}
}

func TestCleanupJob_Interface(t *testing.T) {
	job := &CleanupJob{OlderThan: 30 * 24 * time.Hour, Priority: PriorityLow}

	if job.GetJobType() != JobTypeCleanup {
		t.Errorf("GetJobType() = %s, want %s", job.GetJobType(), JobTypeCleanup)
	}
	if job.GetUserID() != uuid.Nil {
		t.Error("cleanup jobs are not user-scoped")
	}
}

func TestQueuedJob_ParseJob(t *testing.T) {
	src := &SyncEventJob{
		EventID:  uuid.New(),
		UserID:   uuid.New(),
		Priority: PriorityHigh,
	}

	jobBytes, _ := json.Marshal(src)
	qj := &QueuedJob{
		ID:         "job-1",
		Job:        jobBytes,
		JobType:    JobTypeSyncEvent,
		Priority:   PriorityHigh,
		EnqueuedAt: time.Now(),
	}

	parsed, err := qj.ParseJob()
	if err != nil {
		t.Fatalf("ParseJob() error = %v", err)
	}

	sj, ok := parsed.(*SyncEventJob)
	if !ok {
		t.Fatal("ParseJob() did not return *SyncEventJob")
	}

	if sj.EventID != src.EventID {
		t.Errorf("Parsed EventID = %s, want %s", sj.EventID, src.EventID)
	}
	if sj.CalendarID != nil {
		t.Error("CalendarID should stay nil when absent")
	}
}

func TestQueuedJob_ParseJob_UnknownType(t *testing.T) {
	qj := &QueuedJob{
		ID:      "job-1",
		Job:     []byte("{}"),
		JobType: JobType("unknown"),
	}

	_, err := qj.ParseJob()
	if err != ErrUnknownJobType {
		t.Errorf("ParseJob() error = %v, want %v", err, ErrUnknownJobType)
	}
}

func TestDefaultQueueConfigs(t *testing.T) {
	configs := DefaultQueueConfigs()

	expected := []string{QueueProcess, QueueSync, QueueUndo, QueueCleanup}
	for _, name := range expected {
		if _, ok := configs[name]; !ok {
			t.Errorf("DefaultQueueConfigs() missing %s", name)
		}
	}

	// Processing runs OCR and an LLM call, so it needs the longest lease.
	if configs[QueueProcess].VisibilityTimeout < configs[QueueSync].VisibilityTimeout {
		t.Error("process queue should have longer visibility timeout than sync queue")
	}
}

func TestCalculateBackoff(t *testing.T) {
	cases := []struct {
		retry int
		want  time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{20, 5 * time.Minute},
	}
	for _, tc := range cases {
		if got := calculateBackoff(tc.retry); got != tc.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tc.retry, got, tc.want)
		}
	}
}

func TestRetryPolicy_DecideRetry(t *testing.T) {
	p := DefaultRetryPolicy()

	transient := eherrors.E(eherrors.KindUpstreamUnavailable, "calendar down")
	d := p.DecideRetry(transient, 1)
	if !d.ShouldRetry {
		t.Error("upstream outage should be retried")
	}
	if d.BackoffDuration != 2*time.Second {
		t.Errorf("BackoffDuration = %v, want 2s", d.BackoffDuration)
	}

	permanent := eherrors.E(eherrors.KindInputInvalid, "bad payload")
	if p.DecideRetry(permanent, 0).ShouldRetry {
		t.Error("validation failures must not be retried")
	}

	if p.DecideRetry(transient, p.MaxRetries).ShouldRetry {
		t.Error("retries exhaust at MaxRetries")
	}

	if p.ShouldRetry(errors.New("plain"), 0) {
		t.Error("unclassified errors are not retryable")
	}
}
