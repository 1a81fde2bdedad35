package queue

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// JobStatus defines the lifecycle state of a generation job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// DefaultMaxAttempts bounds how often a pending job may be claimed before
// it is treated as poison and failed.
const DefaultMaxAttempts = 3

// Payload is the structured generation request carried by a job.
type Payload struct {
	Topic               string            `json:"topic"`
	SourceMaterial      string            `json:"source_material"`
	Count               int               `json:"count"`
	Difficulty          int               `json:"difficulty"`
	Category            string            `json:"category,omitempty"`
	MainHeader          string            `json:"main_header,omitempty"`
	AllTopics           []string          `json:"all_topics,omitempty"`
	SourceRefs          []string          `json:"source_refs,omitempty"`
	PromptOverrides     map[string]string `json:"prompt_overrides,omitempty"`
	DifficultyOverrides map[string]string `json:"difficulty_overrides,omitempty"`
}

var (
	// ErrMissingTopic and ErrInvalidCount reject malformed enqueue requests
	// synchronously; no job row is created for them.
	ErrMissingTopic = errors.New("job payload requires a topic")
	ErrInvalidCount = errors.New("job payload requires a positive item count")
)

// Validate reports whether the payload is acceptable for enqueueing.
func (p *Payload) Validate() error {
	if strings.TrimSpace(p.Topic) == "" {
		return ErrMissingTopic
	}
	if p.Count <= 0 {
		return ErrInvalidCount
	}
	return nil
}

// Topics returns the full topic set the job generates under: the merged
// topic list when present, always including the display topic.
func (p *Payload) Topics() []string {
	seen := make(map[string]struct{}, len(p.AllTopics)+1)
	out := make([]string, 0, len(p.AllTopics)+1)
	add := func(t string) {
		topic := strings.Join(strings.Fields(t), " ")
		if topic == "" {
			return
		}
		if _, ok := seen[topic]; ok {
			return
		}
		seen[topic] = struct{}{}
		out = append(out, topic)
	}
	for _, t := range p.AllTopics {
		add(t)
	}
	add(p.Topic)
	return out
}

// Job is one unit of queued generation work.
//
// UpdatedAt doubles as the claim priority key: pending jobs are claimed
// oldest-updated first, so an operator can jump the queue by backdating a
// row (see Ledger.Reprioritize).
type Job struct {
	ID             int64           `gorm:"primaryKey" json:"id"`
	Payload        json.RawMessage `gorm:"type:text;not null" json:"payload"`
	Status         JobStatus       `gorm:"index;not null;default:pending" json:"status"`
	Attempts       int             `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts    int             `gorm:"not null;default:3" json:"max_attempts"`
	WorkerID       *string         `json:"worker_id,omitempty"`
	GeneratedCount int             `gorm:"not null;default:0" json:"generated_count"`
	TotalItems     int             `gorm:"not null;default:0" json:"total_items"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `gorm:"index" json:"updated_at"`
}

func (Job) TableName() string {
	return "generation_jobs"
}

// DecodePayload unmarshals the job's payload.
func (j *Job) DecodePayload() (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
