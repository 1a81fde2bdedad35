package question

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Option is one answer choice of a generated question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is a generated quiz item. Immutable once written; downstream
// feedback and highlight records reference it by ID.
type Question struct {
	ID             int64           `gorm:"primaryKey" json:"id"`
	Title          string          `gorm:"not null" json:"title"`
	SourceMaterial string          `gorm:"index" json:"source_material"`
	Category       string          `gorm:"index" json:"category"`
	Topic          string          `json:"topic"`
	QuestionText   string          `gorm:"not null" json:"question_text"`
	Options        json.RawMessage `gorm:"type:text" json:"options"`
	CorrectIndex   int             `json:"correct_answer_index"`
	Explanation    string          `json:"explanation"`
	Tags           json.RawMessage `gorm:"type:text" json:"tags"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TopicLink associates a question with one topic label it was generated
// under. Append-only; rows are only removed when the owning question is
// deleted.
type TopicLink struct {
	QuestionID     int64     `gorm:"primaryKey;autoIncrement:false" json:"question_id"`
	Topic          string    `gorm:"primaryKey" json:"topic"`
	SourceMaterial string    `gorm:"index:idx_topic_links_scope" json:"source_material"`
	Category       string    `gorm:"index:idx_topic_links_scope" json:"category"`
	CreatedAt      time.Time `json:"created_at"`
}

func (TopicLink) TableName() string {
	return "question_topic_links"
}

// NewQuestion is the input to Create, before an ID is assigned.
type NewQuestion struct {
	Title          string
	SourceMaterial string
	Category       string
	Topic          string
	QuestionText   string
	Options        []Option
	CorrectIndex   int
	Explanation    string
	Tags           []string
}

type QuestionService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewQuestionService(db *gorm.DB) (*QuestionService, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &QuestionService{
		db:        db,
		snowflake: node,
	}, nil
}

// Migrate creates the questions and topic link tables.
func (s *QuestionService) Migrate() error {
	return s.db.AutoMigrate(&Question{}, &TopicLink{})
}

// Create persists a question together with topic links for each label in
// topics. Link inserts ignore conflicts so repeated labels are harmless.
func (s *QuestionService) Create(ctx context.Context, q NewQuestion, topics []string) (*Question, error) {
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to encode options: %w", err)
	}
	tags, err := json.Marshal(q.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}

	row := &Question{
		ID:             s.snowflake.Generate().Int64(),
		Title:          q.Title,
		SourceMaterial: q.SourceMaterial,
		Category:       q.Category,
		Topic:          q.Topic,
		QuestionText:   q.QuestionText,
		Options:        opts,
		CorrectIndex:   q.CorrectIndex,
		Explanation:    q.Explanation,
		Tags:           tags,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("failed to create question: %w", err)
		}
		links := buildLinks(row.ID, q.SourceMaterial, q.Category, topics)
		if len(links) == 0 {
			return nil
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error; err != nil {
			return fmt.Errorf("failed to link question to topics: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return row, nil
}

// ListRecent returns the newest questions first.
func (s *QuestionService) ListRecent(ctx context.Context, limit int) ([]Question, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []Question
	result := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list questions: %v", result.Error)
	}
	return rows, nil
}

// CountBySourceMaterial reports how many questions exist for a source.
func (s *QuestionService) CountBySourceMaterial(ctx context.Context, sourceMaterial string) (int64, error) {
	var count int64
	result := s.db.WithContext(ctx).Model(&Question{}).
		Where("source_material = ?", sourceMaterial).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count questions: %v", result.Error)
	}
	return count, nil
}

func buildLinks(questionID int64, sourceMaterial, category string, topics []string) []TopicLink {
	seen := make(map[string]struct{}, len(topics))
	links := make([]TopicLink, 0, len(topics))
	for _, t := range topics {
		topic := strings.Join(strings.Fields(t), " ")
		if topic == "" {
			continue
		}
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		links = append(links, TopicLink{
			QuestionID:     questionID,
			Topic:          topic,
			SourceMaterial: sourceMaterial,
			Category:       category,
		})
	}
	return links
}
