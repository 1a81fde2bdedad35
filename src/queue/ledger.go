package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"gorm.io/gorm"

	"quizforge/src/log"
)

const maxErrorMessageLen = 2000

// Ledger is the durable queue of generation jobs. Multiple worker
// processes may share one ledger table; ClaimNext is the only operation
// that requires cross-process exclusivity.
type Ledger struct {
	db       *gorm.DB
	strategy claimStrategy
	logger   logr.Logger
}

// NewLedger builds a ledger on the given store. The claim strategy is
// picked once here, by store capability: row-level SKIP LOCKED selection
// on Postgres, a short exclusive section elsewhere.
func NewLedger(db *gorm.DB) *Ledger {
	var strategy claimStrategy
	if db.Dialector.Name() == "postgres" {
		strategy = &skipLockedStrategy{}
	} else {
		strategy = &exclusiveStrategy{}
	}
	return &Ledger{
		db:       db,
		strategy: strategy,
		logger:   log.WithName("ledger"),
	}
}

// Migrate creates the generation_jobs table.
func (l *Ledger) Migrate() error {
	return l.db.AutoMigrate(&Job{})
}

// Enqueue validates the payload and creates a pending job. It never
// blocks on generation; the caller polls status afterwards.
func (l *Ledger) Enqueue(ctx context.Context, payload Payload) (*Job, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job payload: %w", err)
	}

	job := &Job{
		Payload:     raw,
		Status:      JobStatusPending,
		MaxAttempts: DefaultMaxAttempts,
		TotalItems:  payload.Count,
	}
	if err := l.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// ClaimNext atomically transitions the oldest eligible pending job to
// processing under workerID. Returns (nil, nil) when no job is eligible.
// Two concurrent callers never receive the same job.
func (l *Ledger) ClaimNext(ctx context.Context, workerID string) (*Job, error) {
	return l.strategy.claim(ctx, l.db, workerID, l.logger)
}

// MarkProgress adds delta generated items to the job's progress counter,
// capped at the job's target total. Only the owning worker should call it.
func (l *Ledger) MarkProgress(ctx context.Context, jobID int64, workerID string, delta int) error {
	if delta <= 0 {
		return nil
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job Job
		err := tx.Where("id = ? AND status = ? AND worker_id = ?",
			jobID, JobStatusProcessing, workerID).First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.logger.Info("progress update for job not held by worker; ignoring",
				"job_id", jobID, "worker_id", workerID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load job for progress update: %w", err)
		}

		generated := job.GeneratedCount + delta
		if generated > job.TotalItems {
			generated = job.TotalItems
		}
		result := tx.Model(&Job{}).Where("id = ?", jobID).
			Update("generated_count", generated)
		if result.Error != nil {
			return fmt.Errorf("failed to update job progress: %w", result.Error)
		}
		return nil
	})
}

// Complete marks the job done. A no-op with a logged warning when the job
// is not currently processing under workerID, so a worker that lost
// ownership (crash and manual requeue) cannot corrupt queue state.
func (l *Ledger) Complete(ctx context.Context, jobID int64, workerID string) error {
	now := time.Now()
	result := l.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ? AND worker_id = ?", jobID, JobStatusProcessing, workerID).
		Updates(map[string]interface{}{
			"status":        JobStatusCompleted,
			"error_message": nil,
			"completed_at":  now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to complete job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		l.logger.Info("complete called for job not held by worker; ignoring",
			"job_id", jobID, "worker_id", workerID)
	}
	return nil
}

// Fail marks the job terminally failed with a truncated message. Subject
// to the same ownership guard as Complete.
func (l *Ledger) Fail(ctx context.Context, jobID int64, workerID string, message string) error {
	msg := truncate(message, maxErrorMessageLen)
	now := time.Now()
	result := l.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ? AND worker_id = ?", jobID, JobStatusProcessing, workerID).
		Updates(map[string]interface{}{
			"status":        JobStatusFailed,
			"error_message": msg,
			"completed_at":  now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to fail job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		l.logger.Info("fail called for job not held by worker; ignoring",
			"job_id", jobID, "worker_id", workerID)
	}
	return nil
}

// Get returns a job by ID, or nil when it does not exist.
func (l *Ledger) Get(ctx context.Context, jobID int64) (*Job, error) {
	var job Job
	err := l.db.WithContext(ctx).First(&job, jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ListRecent returns jobs newest first, optionally filtered by status.
func (l *Ledger) ListRecent(ctx context.Context, status JobStatus, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	query := l.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var jobs []Job
	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// Requeue clones a job's payload into a new pending job. This is the
// manual reclaim path for jobs stuck in processing after a worker crash,
// and the explicit re-submission path for failed jobs; terminal history
// is never rewritten in place.
func (l *Ledger) Requeue(ctx context.Context, jobID int64) (*Job, error) {
	src, err := l.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("job not found: %d", jobID)
	}

	job := &Job{
		Payload:     src.Payload,
		Status:      JobStatusPending,
		MaxAttempts: src.MaxAttempts,
		TotalItems:  src.TotalItems,
	}
	if err := l.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to requeue job: %w", err)
	}
	return job, nil
}

// Reprioritize rewrites a pending job's updated_at, moving it forward in
// the claim order. UpdateColumn bypasses the automatic timestamp so the
// backdate sticks.
func (l *Ledger) Reprioritize(ctx context.Context, jobID int64, at time.Time) error {
	result := l.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", jobID, JobStatusPending).
		UpdateColumn("updated_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to reprioritize job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job %d is not pending", jobID)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
