package history

import (
	"context"
	"strings"

	"github.com/go-logr/logr"
	"gorm.io/gorm"

	"quizforge/src/log"
)

// Scope tags returned by Resolve. The tag is part of the contract: callers
// surface it so operators can audit which lookup bounded the dedup context.
const (
	ScopeTopic            = "topic"
	ScopeCategoryFallback = "category_fallback"
	ScopeNone             = "none"
)

const (
	DefaultTopicLimit    = 300
	DefaultCategoryLimit = 100
)

// ScopeQuery bounds a prior-title lookup. Topics drive the primary scope;
// Categories (main header plus chunk category, typically) drive the
// fallback when no topic links match.
type ScopeQuery struct {
	SourceMaterial string
	Topics         []string
	Categories     []string
	TopicLimit     int
	CategoryLimit  int
}

// ScopeResult carries the titles found and which scope produced them.
type ScopeResult struct {
	Titles []string
	Scope  string
}

// Resolver answers "what did we already generate near these topics".
type Resolver struct {
	db     *gorm.DB
	logger logr.Logger
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{
		db:     db,
		logger: log.WithName("history"),
	}
}

// Resolve returns recent prior item titles for the query's scope, newest
// first. Topic links are tried first; a topic set with no links falls back
// to category matching. Lookup errors degrade to the next scope instead of
// propagating, so a broken history fetch can never fail a generation job.
func (r *Resolver) Resolve(ctx context.Context, q ScopeQuery) (ScopeResult, error) {
	topics := normalizeLabels(q.Topics)
	if q.SourceMaterial != "" && len(topics) > 0 {
		titles, err := r.byTopics(ctx, q.SourceMaterial, topics, limitOr(q.TopicLimit, DefaultTopicLimit))
		if err != nil {
			r.logger.Error(err, "topic-scoped history fetch failed; falling back to category scope",
				"source_material", q.SourceMaterial, "topics", len(topics))
		} else if len(titles) > 0 {
			return ScopeResult{Titles: titles, Scope: ScopeTopic}, nil
		}
	}

	categories := normalizeLabels(q.Categories)
	if len(categories) > 0 {
		titles, err := r.byCategories(ctx, q.SourceMaterial, categories, limitOr(q.CategoryLimit, DefaultCategoryLimit))
		if err != nil {
			r.logger.Error(err, "category-scoped history fetch failed; continuing without history",
				"categories", categories)
		} else if len(titles) > 0 {
			return ScopeResult{Titles: titles, Scope: ScopeCategoryFallback}, nil
		}
	}

	return ScopeResult{Scope: ScopeNone}, nil
}

func (r *Resolver) byTopics(ctx context.Context, sourceMaterial string, topics []string, limit int) ([]string, error) {
	scoped := r.db.Table("question_topic_links").
		Select("DISTINCT question_id").
		Where("source_material = ?", sourceMaterial).
		Where("topic IN ?", topics)

	var titles []string
	err := r.db.WithContext(ctx).Table("questions").
		Joins("JOIN (?) AS scoped ON scoped.question_id = questions.id", scoped).
		Order("questions.id DESC").
		Limit(limit).
		Pluck("questions.title", &titles).Error
	if err != nil {
		return nil, err
	}
	return titles, nil
}

func (r *Resolver) byCategories(ctx context.Context, sourceMaterial string, categories []string, limit int) ([]string, error) {
	query := r.db.WithContext(ctx).Table("questions").
		Where("category IN ?", categories).
		Order("questions.id DESC").
		Limit(limit)
	if sourceMaterial != "" {
		query = query.Where("source_material = ?", sourceMaterial)
	}

	var titles []string
	if err := query.Pluck("questions.title", &titles).Error; err != nil {
		return nil, err
	}
	return titles, nil
}

func limitOr(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}

// normalizeLabels collapses whitespace and drops empty or repeated labels
// while preserving order.
func normalizeLabels(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		label := strings.Join(strings.Fields(l), " ")
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	return out
}
