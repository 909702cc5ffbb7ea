package queues

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue using Redis sorted sets.
type RedisQueue struct {
	client     *redis.Client
	name       string
	config     QueueConfig
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// NewRedisQueue creates a new Redis-backed queue.
func NewRedisQueue(client *redis.Client, config QueueConfig) *RedisQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisQueue{
		client:     client,
		name:       config.Name,
		config:     config,
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Redis key prefixes
const (
	keyPrefixQueue      = "queue:"      // Main queue (sorted set by priority)
	keyPrefixProcessing = "processing:" // Jobs being processed
	keyPrefixJob        = "job:"        // Job data
	keyPrefixDLQ        = "dlq:"        // Dead letter queue
)

// Name returns the queue name.
func (q *RedisQueue) Name() string {
	return q.name
}

// Enqueue adds a job to the queue.
func (q *RedisQueue) Enqueue(job Job) error {
	return q.enqueueSingle(job)
}

func (q *RedisQueue) enqueueSingle(job Job) error {
	jobID := uuid.New().String()

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	qj := &QueuedJob{
		ID:         jobID,
		Job:        jobBytes,
		JobType:    job.GetJobType(),
		Priority:   job.GetPriority(),
		RetryCount: 0,
		EnqueuedAt: time.Now(),
	}

	qjBytes, err := json.Marshal(qj)
	if err != nil {
		return fmt.Errorf("failed to marshal queued job: %w", err)
	}

	// Store job data and add to sorted set in a transaction
	pipe := q.client.TxPipeline()

	jobKey := keyPrefixJob + q.name + ":" + jobID
	pipe.Set(q.ctx, jobKey, qjBytes, q.config.RetentionPeriod)

	// score = priority * 1e12 + timestamp for FIFO within priority
	queueKey := keyPrefixQueue + q.name
	score := float64(job.GetPriority())*1e12 + float64(time.Now().UnixNano())
	pipe.ZAdd(q.ctx, queueKey, redis.Z{Score: score, Member: jobID})

	_, err = pipe.Exec(q.ctx)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	return nil
}

// EnqueueBatch adds multiple jobs to the queue.
func (q *RedisQueue) EnqueueBatch(jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}

	pipe := q.client.TxPipeline()
	queueKey := keyPrefixQueue + q.name
	now := time.Now()

	for _, job := range jobs {
		jobID := uuid.New().String()

		jobBytes, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		qj := &QueuedJob{
			ID:         jobID,
			Job:        jobBytes,
			JobType:    job.GetJobType(),
			Priority:   job.GetPriority(),
			RetryCount: 0,
			EnqueuedAt: now,
		}

		qjBytes, err := json.Marshal(qj)
		if err != nil {
			return fmt.Errorf("failed to marshal queued job: %w", err)
		}

		jobKey := keyPrefixJob + q.name + ":" + jobID
		pipe.Set(q.ctx, jobKey, qjBytes, q.config.RetentionPeriod)

		score := float64(job.GetPriority())*1e12 + float64(now.UnixNano())
		pipe.ZAdd(q.ctx, queueKey, redis.Z{Score: score, Member: jobID})
	}

	_, err := pipe.Exec(q.ctx)
	if err != nil {
		return fmt.Errorf("failed to enqueue batch: %w", err)
	}

	return nil
}

// Dequeue retrieves jobs from the queue.
func (q *RedisQueue) Dequeue(maxJobs int, timeout time.Duration) ([]*QueuedJob, error) {
	if maxJobs <= 0 {
		maxJobs = 1
	}

	queueKey := keyPrefixQueue + q.name
	processingKey := keyPrefixProcessing + q.name
	deadline := time.Now().Add(timeout)

	var jobs []*QueuedJob

	for time.Now().Before(deadline) && len(jobs) < maxJobs {
		// Pop highest priority job (highest score)
		result, err := q.client.ZPopMax(q.ctx, queueKey, 1).Result()
		if err == redis.Nil || len(result) == 0 {
			// Queue is empty, wait a bit and retry
			select {
			case <-time.After(100 * time.Millisecond):
				continue
			case <-q.ctx.Done():
				return jobs, q.ctx.Err()
			}
		}
		if err != nil {
			return jobs, fmt.Errorf("failed to pop from queue: %w", err)
		}

		jobID := result[0].Member.(string)
		jobKey := keyPrefixJob + q.name + ":" + jobID

		data, err := q.client.Get(q.ctx, jobKey).Bytes()
		if err == redis.Nil {
			// Job expired, skip
			continue
		}
		if err != nil {
			return jobs, fmt.Errorf("failed to get job data: %w", err)
		}

		var qj QueuedJob
		if err := json.Unmarshal(data, &qj); err != nil {
			return jobs, fmt.Errorf("failed to unmarshal job: %w", err)
		}

		// Move to processing set with visibility timeout
		visibleAfter := time.Now().Add(q.config.VisibilityTimeout)
		qj.VisibleAfter = visibleAfter

		updatedData, _ := json.Marshal(qj)
		pipe := q.client.TxPipeline()
		pipe.Set(q.ctx, jobKey, updatedData, q.config.RetentionPeriod)
		pipe.ZAdd(q.ctx, processingKey, redis.Z{
			Score:  float64(visibleAfter.UnixNano()),
			Member: jobID,
		})
		if _, err := pipe.Exec(q.ctx); err != nil {
			return jobs, fmt.Errorf("failed to move to processing: %w", err)
		}

		jobs = append(jobs, &qj)
	}

	return jobs, nil
}

// Ack acknowledges successful processing of a job.
func (q *RedisQueue) Ack(jobID string) error {
	processingKey := keyPrefixProcessing + q.name
	jobKey := keyPrefixJob + q.name + ":" + jobID

	pipe := q.client.TxPipeline()
	pipe.ZRem(q.ctx, processingKey, jobID)
	pipe.Del(q.ctx, jobKey)
	_, err := pipe.Exec(q.ctx)
	if err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}

	return nil
}

// Nack indicates processing failure, job will be retried.
func (q *RedisQueue) Nack(jobID string) error {
	processingKey := keyPrefixProcessing + q.name
	jobKey := keyPrefixJob + q.name + ":" + jobID

	data, err := q.client.Get(q.ctx, jobKey).Bytes()
	if err == redis.Nil {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	var qj QueuedJob
	if err := json.Unmarshal(data, &qj); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}

	qj.RetryCount++

	if qj.RetryCount >= q.config.MaxRetries {
		return q.MoveToDeadLetter(jobID, "max retries exceeded")
	}

	// Re-enqueue with backoff
	queueKey := keyPrefixQueue + q.name
	backoff := calculateBackoff(qj.RetryCount)
	qj.VisibleAfter = time.Now().Add(backoff)

	updatedData, _ := json.Marshal(qj)

	pipe := q.client.TxPipeline()
	pipe.ZRem(q.ctx, processingKey, jobID)
	pipe.Set(q.ctx, jobKey, updatedData, q.config.RetentionPeriod)
	// Re-add to queue with delayed visibility
	score := float64(qj.Priority)*1e12 + float64(qj.VisibleAfter.UnixNano())
	pipe.ZAdd(q.ctx, queueKey, redis.Z{Score: score, Member: jobID})

	_, err = pipe.Exec(q.ctx)
	if err != nil {
		return fmt.Errorf("failed to nack job: %w", err)
	}

	return nil
}

// MoveToDeadLetter moves a job to the dead letter queue.
func (q *RedisQueue) MoveToDeadLetter(jobID string, reason string) error {
	processingKey := keyPrefixProcessing + q.name
	jobKey := keyPrefixJob + q.name + ":" + jobID
	dlqKey := keyPrefixDLQ + q.name

	data, err := q.client.Get(q.ctx, jobKey).Bytes()
	if err == redis.Nil {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	dlqEntry := map[string]interface{}{
		"job":        string(data),
		"reason":     reason,
		"moved_at":   time.Now().Format(time.RFC3339),
		"queue_name": q.name,
	}
	dlqData, _ := json.Marshal(dlqEntry)

	pipe := q.client.TxPipeline()
	pipe.ZRem(q.ctx, processingKey, jobID)
	pipe.Del(q.ctx, jobKey)
	pipe.ZAdd(q.ctx, dlqKey, redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: string(dlqData),
	})

	_, err = pipe.Exec(q.ctx)
	if err != nil {
		return fmt.Errorf("failed to move to DLQ: %w", err)
	}

	return nil
}

// Depth returns the current queue depth.
func (q *RedisQueue) Depth() (int64, error) {
	queueKey := keyPrefixQueue + q.name
	return q.client.ZCard(q.ctx, queueKey).Result()
}

// Close closes the queue connection.
func (q *RedisQueue) Close() error {
	q.cancelFunc()
	return nil
}

// calculateBackoff calculates exponential backoff for retries.
func calculateBackoff(retryCount int) time.Duration {
	// Exponential backoff: 1s, 2s, 4s, 8s, etc., max 5 minutes
	base := time.Second
	backoff := base * (1 << uint(retryCount))
	maxBackoff := 5 * time.Minute
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

// RecoverStaleJobs recovers jobs that exceeded their visibility timeout.
// Should be called periodically by a background worker.
func (q *RedisQueue) RecoverStaleJobs() error {
	processingKey := keyPrefixProcessing + q.name
	queueKey := keyPrefixQueue + q.name

	now := float64(time.Now().UnixNano())
	staleJobs, err := q.client.ZRangeByScore(q.ctx, processingKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%f", now),
		Count: 100,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to find stale jobs: %w", err)
	}

	for _, jobID := range staleJobs {
		jobKey := keyPrefixJob + q.name + ":" + jobID

		data, err := q.client.Get(q.ctx, jobKey).Bytes()
		if err == redis.Nil {
			// Job expired, just remove from processing
			q.client.ZRem(q.ctx, processingKey, jobID)
			continue
		}
		if err != nil {
			continue
		}

		var qj QueuedJob
		if err := json.Unmarshal(data, &qj); err != nil {
			continue
		}

		qj.RetryCount++

		if qj.RetryCount >= q.config.MaxRetries {
			q.MoveToDeadLetter(jobID, "visibility timeout exceeded")
			continue
		}

		updatedData, _ := json.Marshal(qj)
		pipe := q.client.TxPipeline()
		pipe.ZRem(q.ctx, processingKey, jobID)
		pipe.Set(q.ctx, jobKey, updatedData, q.config.RetentionPeriod)
		score := float64(qj.Priority)*1e12 + float64(time.Now().UnixNano())
		pipe.ZAdd(q.ctx, queueKey, redis.Z{Score: score, Member: jobID})
		pipe.Exec(q.ctx)
	}

	return nil
}

// Verify interface compliance
var _ Queue = (*RedisQueue)(nil)
