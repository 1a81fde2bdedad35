package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// claimStrategy hides how cross-process exclusivity of the claim is
// achieved. Both strategies honor the same contract: select the oldest
// eligible pending job, flip it to processing under the worker, and
// never hand the same job to two callers. The selection is made once at
// ledger construction; business code never branches on store type.
type claimStrategy interface {
	claim(ctx context.Context, db *gorm.DB, workerID string, logger logr.Logger) (*Job, error)
}

// skipLockedStrategy claims via FOR UPDATE SKIP LOCKED row selection.
// Scales with many workers: concurrent claimers skip each other's locked
// candidate instead of serializing.
type skipLockedStrategy struct{}

func (s *skipLockedStrategy) claim(ctx context.Context, db *gorm.DB, workerID string, logger logr.Logger) (*Job, error) {
	var claimed *Job
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := claimInTx(tx, workerID, true, logger)
		if err != nil {
			return err
		}
		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// exclusiveStrategy serializes the select+update behind a short critical
// section. Acceptable at low worker counts; the lock covers only the
// status flip, never job execution. The conditional update inside
// claimInTx still guards against claimers in other processes.
type exclusiveStrategy struct {
	mu sync.Mutex
}

func (s *exclusiveStrategy) claim(ctx context.Context, db *gorm.DB, workerID string, logger logr.Logger) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed *Job
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := claimInTx(tx, workerID, false, logger)
		if err != nil {
			return err
		}
		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// claimInTx selects the oldest pending job and flips it to processing.
// Jobs that exhausted their claim attempts are failed in place and the
// scan continues, so one poison payload cannot clog the head of the
// queue.
func claimInTx(tx *gorm.DB, workerID string, lockRows bool, logger logr.Logger) (*Job, error) {
	for {
		query := tx.Session(&gorm.Session{})
		if lockRows {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var job Job
		err := query.
			Where("status = ?", JobStatusPending).
			Order("updated_at ASC, id ASC").
			First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to select claimable job: %w", err)
		}

		if job.Attempts >= job.MaxAttempts {
			msg := fmt.Sprintf("max claim attempts exceeded (%d/%d)", job.Attempts, job.MaxAttempts)
			now := time.Now()
			result := tx.Model(&Job{}).
				Where("id = ? AND status = ?", job.ID, JobStatusPending).
				Updates(map[string]interface{}{
					"status":        JobStatusFailed,
					"error_message": msg,
					"completed_at":  now,
				})
			if result.Error != nil {
				return nil, fmt.Errorf("failed to fail poison job: %w", result.Error)
			}
			logger.Info("failed poison job during claim", "job_id", job.ID, "attempts", job.Attempts)
			continue
		}

		attempts := job.Attempts + 1
		result := tx.Model(&Job{}).
			Where("id = ? AND status = ?", job.ID, JobStatusPending).
			Updates(map[string]interface{}{
				"status":    JobStatusProcessing,
				"worker_id": workerID,
				"attempts":  attempts,
			})
		if result.Error != nil {
			return nil, fmt.Errorf("failed to claim job: %w", result.Error)
		}
		if result.RowsAffected != 1 {
			// Another claimer got there first between select and update.
			return nil, nil
		}

		job.Status = JobStatusProcessing
		job.WorkerID = &workerID
		job.Attempts = attempts
		return &job, nil
	}
}
