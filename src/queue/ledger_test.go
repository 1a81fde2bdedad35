package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"quizforge/src/queue"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// One connection so every session sees the same in-memory database.
	sqlDB.SetMaxOpenConns(1)
	return db
}

func newTestLedger(t *testing.T) (*queue.Ledger, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	ledger := queue.NewLedger(db)
	if err := ledger.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return ledger, db
}

func validPayload(topic string, count int) queue.Payload {
	return queue.Payload{
		Topic:          topic,
		SourceMaterial: "Anatomy",
		Count:          count,
		Difficulty:     2,
	}
}

func TestEnqueueValidation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.Enqueue(ctx, queue.Payload{Count: 5}); err != queue.ErrMissingTopic {
		t.Errorf("Enqueue without topic: err = %v, want ErrMissingTopic", err)
	}
	if _, err := ledger.Enqueue(ctx, queue.Payload{Topic: "Thorax"}); err != queue.ErrInvalidCount {
		t.Errorf("Enqueue without count: err = %v, want ErrInvalidCount", err)
	}

	job, err := ledger.Enqueue(ctx, validPayload("Thorax", 8))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.Status != queue.JobStatusPending {
		t.Errorf("new job status = %q, want pending", job.Status)
	}
	if job.TotalItems != 8 {
		t.Errorf("new job total = %d, want 8", job.TotalItems)
	}
}

func TestClaimTransitionsJob(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if job, err := ledger.ClaimNext(ctx, "w1"); err != nil || job != nil {
		t.Fatalf("claim on empty queue = (%v, %v), want (nil, nil)", job, err)
	}

	enq, err := ledger.Enqueue(ctx, validPayload("Thorax", 8))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	claimed, err := ledger.ClaimNext(ctx, "w1")
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed == nil || claimed.ID != enq.ID {
		t.Fatalf("claimed %+v, want job %d", claimed, enq.ID)
	}
	if claimed.Status != queue.JobStatusProcessing {
		t.Errorf("claimed status = %q, want processing", claimed.Status)
	}
	if claimed.WorkerID == nil || *claimed.WorkerID != "w1" {
		t.Errorf("claimed worker = %v, want w1", claimed.WorkerID)
	}
	if claimed.Attempts != 1 {
		t.Errorf("claimed attempts = %d, want 1", claimed.Attempts)
	}

	// The claimed job is no longer eligible.
	if job, err := ledger.ClaimNext(ctx, "w2"); err != nil || job != nil {
		t.Errorf("second claim = (%v, %v), want (nil, nil)", job, err)
	}
}

func TestConcurrentClaimsReceiveDistinctJobs(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.Enqueue(ctx, validPayload("Thorax", 5)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	const claimers = 8
	var wg sync.WaitGroup
	results := make([]*queue.Job, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, err := ledger.ClaimNext(ctx, "worker")
			if err != nil {
				t.Errorf("claimer %d: %v", i, err)
				return
			}
			results[i] = job
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, job := range results {
		if job != nil {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("%d claimers received the single pending job, want exactly 1", winners)
	}
}

func TestClaimOrderFollowsUpdatedAt(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	first, _ := ledger.Enqueue(ctx, validPayload("First", 5))
	second, _ := ledger.Enqueue(ctx, validPayload("Second", 5))

	// Backdating jumps the queue.
	if err := ledger.Reprioritize(ctx, second.ID, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("Reprioritize: %v", err)
	}

	claimed, err := ledger.ClaimNext(ctx, "w1")
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed == nil || claimed.ID != second.ID {
		t.Fatalf("claimed job %v, want backdated job %d", claimed, second.ID)
	}

	claimed, err = ledger.ClaimNext(ctx, "w1")
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("claimed job %v, want job %d", claimed, first.ID)
	}
}

func TestPoisonJobFailedDuringClaim(t *testing.T) {
	ledger, db := newTestLedger(t)
	ctx := context.Background()

	job, _ := ledger.Enqueue(ctx, validPayload("Thorax", 5))
	// Simulate an operator resetting a repeatedly crashed job to pending.
	db.Model(&queue.Job{}).Where("id = ?", job.ID).
		Update("attempts", queue.DefaultMaxAttempts)

	claimed, err := ledger.ClaimNext(ctx, "w1")
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed != nil {
		t.Fatalf("claimed poison job %d", claimed.ID)
	}

	got, _ := ledger.Get(ctx, job.ID)
	if got.Status != queue.JobStatusFailed {
		t.Errorf("poison job status = %q, want failed", got.Status)
	}
	if got.ErrorMessage == nil {
		t.Error("poison job has no error message")
	}
}

func TestCompleteAndFailOwnershipGuard(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	job, _ := ledger.Enqueue(ctx, validPayload("Thorax", 5))
	claimed, _ := ledger.ClaimNext(ctx, "w1")
	if claimed == nil {
		t.Fatal("claim failed")
	}

	// Wrong worker: no state change, no error.
	if err := ledger.Complete(ctx, job.ID, "w2"); err != nil {
		t.Fatalf("Complete from non-owner: %v", err)
	}
	got, _ := ledger.Get(ctx, job.ID)
	if got.Status != queue.JobStatusProcessing {
		t.Errorf("status after non-owner complete = %q, want processing", got.Status)
	}

	if err := ledger.Complete(ctx, job.ID, "w1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, _ = ledger.Get(ctx, job.ID)
	if got.Status != queue.JobStatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.ErrorMessage != nil {
		t.Errorf("completed job has error message %q", *got.ErrorMessage)
	}

	// Terminal states are idempotent under repeated calls.
	if err := ledger.Complete(ctx, job.ID, "w1"); err != nil {
		t.Errorf("second Complete: %v", err)
	}
	if err := ledger.Fail(ctx, job.ID, "w1", "boom"); err != nil {
		t.Errorf("Fail after Complete: %v", err)
	}
	got, _ = ledger.Get(ctx, job.ID)
	if got.Status != queue.JobStatusCompleted {
		t.Errorf("status after late fail = %q, want completed", got.Status)
	}
}

func TestFailRecordsMessage(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	job, _ := ledger.Enqueue(ctx, validPayload("Thorax", 5))
	if _, err := ledger.ClaimNext(ctx, "w1"); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if err := ledger.Fail(ctx, job.ID, "w1", "provider quota exhausted"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	got, _ := ledger.Get(ctx, job.ID)
	if got.Status != queue.JobStatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "provider quota exhausted" {
		t.Errorf("error message = %v", got.ErrorMessage)
	}
}

func TestMarkProgressCappedAtTotal(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	job, _ := ledger.Enqueue(ctx, validPayload("Thorax", 8))
	if _, err := ledger.ClaimNext(ctx, "w1"); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	if err := ledger.MarkProgress(ctx, job.ID, "w1", 5); err != nil {
		t.Fatalf("MarkProgress: %v", err)
	}
	got, _ := ledger.Get(ctx, job.ID)
	if got.GeneratedCount != 5 {
		t.Errorf("generated = %d, want 5", got.GeneratedCount)
	}

	if err := ledger.MarkProgress(ctx, job.ID, "w1", 10); err != nil {
		t.Fatalf("MarkProgress: %v", err)
	}
	got, _ = ledger.Get(ctx, job.ID)
	if got.GeneratedCount != 8 {
		t.Errorf("generated = %d, want capped at 8", got.GeneratedCount)
	}

	// A non-owner's progress update is ignored.
	if err := ledger.MarkProgress(ctx, job.ID, "w2", 1); err != nil {
		t.Fatalf("MarkProgress from non-owner: %v", err)
	}
}

func TestRequeueClonesPayload(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	job, _ := ledger.Enqueue(ctx, validPayload("Thorax", 8))
	claimed, _ := ledger.ClaimNext(ctx, "w1")
	if claimed == nil {
		t.Fatal("claim failed")
	}
	if err := ledger.Fail(ctx, job.ID, "w1", "worker crashed"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	clone, err := ledger.Requeue(ctx, job.ID)
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if clone.ID == job.ID {
		t.Error("requeue reused the original job row")
	}
	if clone.Status != queue.JobStatusPending {
		t.Errorf("requeued status = %q, want pending", clone.Status)
	}
	if clone.Attempts != 0 {
		t.Errorf("requeued attempts = %d, want 0", clone.Attempts)
	}

	p, err := clone.DecodePayload()
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.Topic != "Thorax" || p.Count != 8 {
		t.Errorf("requeued payload = %+v", p)
	}

	// The original job's terminal record is untouched.
	got, _ := ledger.Get(ctx, job.ID)
	if got.Status != queue.JobStatusFailed {
		t.Errorf("original status = %q, want failed", got.Status)
	}
}

func TestListRecentNewestFirst(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	for _, topic := range []string{"A", "B", "C"} {
		if _, err := ledger.Enqueue(ctx, validPayload(topic, 5)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	jobs, err := ledger.ListRecent(ctx, "", 2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("ListRecent returned %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID < jobs[1].ID {
		t.Errorf("ListRecent order: %d before %d", jobs[0].ID, jobs[1].ID)
	}

	pending, err := ledger.ListRecent(ctx, queue.JobStatusPending, 10)
	if err != nil {
		t.Fatalf("ListRecent(pending): %v", err)
	}
	if len(pending) != 3 {
		t.Errorf("ListRecent(pending) returned %d jobs, want 3", len(pending))
	}
}
