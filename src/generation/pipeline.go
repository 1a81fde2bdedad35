package generation

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"quizforge/src/history"
	"quizforge/src/log"
	"quizforge/src/provider"
	"quizforge/src/question"
	"quizforge/src/queue"
	"quizforge/src/sourcestore"
)

// DefaultBatchBudget bounds how many gateway calls one job may spend
// chasing its item count.
const DefaultBatchBudget = 3

// Config tunes per-job generation behavior.
type Config struct {
	BatchBudget          int
	MaxHistoryTitles     int
	MaxSourceChars       int
	HistoryTopicLimit    int
	HistoryCategoryLimit int
}

// Pipeline executes one claimed job end to end: history scope, source
// merge, prompt, provider batches, persistence, terminal job status.
type Pipeline struct {
	ledger    *queue.Ledger
	questions *question.QuestionService
	resolver  *history.Resolver
	store     sourcestore.Store
	gateway   provider.Gateway
	cfg       Config
	logger    logr.Logger
}

func NewPipeline(ledger *queue.Ledger, questions *question.QuestionService, resolver *history.Resolver, store sourcestore.Store, gateway provider.Gateway, cfg Config) *Pipeline {
	if cfg.BatchBudget <= 0 {
		cfg.BatchBudget = DefaultBatchBudget
	}
	return &Pipeline{
		ledger:    ledger,
		questions: questions,
		resolver:  resolver,
		store:     store,
		gateway:   gateway,
		cfg:       cfg,
		logger:    log.WithName("pipeline"),
	}
}

// Execute runs the claimed job and records its terminal status on the
// ledger before returning. The returned error mirrors what was recorded;
// callers only log it. Items persisted before a failure stay persisted.
func (p *Pipeline) Execute(ctx context.Context, job *queue.Job, workerID string) error {
	logger := p.logger.WithValues("job_id", job.ID, "worker_id", workerID)

	payload, err := job.DecodePayload()
	if err != nil {
		return p.fail(ctx, job.ID, workerID, fmt.Errorf("invalid job payload: %w", err))
	}
	if err := payload.Validate(); err != nil {
		return p.fail(ctx, job.ID, workerID, fmt.Errorf("invalid job payload: %w", err))
	}

	topics := payload.Topics()
	historyTitles, scope := p.resolveHistory(ctx, payload, topics, logger)
	logger.Info("resolved history scope", "scope", scope, "titles", len(historyTitles))

	var source []byte
	if len(payload.SourceRefs) > 0 {
		source, err = sourcestore.Merge(ctx, p.store, payload.SourceRefs)
		if err != nil {
			return p.fail(ctx, job.ID, workerID, fmt.Errorf("failed to prepare source material: %w", err))
		}
	}

	category := payload.Category
	if category == "" {
		category = payload.MainHeader
	}

	generated := 0
	for batch := 0; batch < p.cfg.BatchBudget && generated < payload.Count; batch++ {
		remaining := payload.Count - generated
		prompt := BuildPrompt(PromptInput{
			Topic:               payload.Topic,
			Category:            category,
			Count:               remaining,
			Difficulty:          payload.Difficulty,
			HistoryTitles:       historyTitles,
			Source:              source,
			SectionOverrides:    payload.PromptOverrides,
			DifficultyOverrides: payload.DifficultyOverrides,
			MaxHistoryTitles:    p.cfg.MaxHistoryTitles,
			MaxSourceChars:      p.cfg.MaxSourceChars,
		})

		items, err := p.gateway.Generate(ctx, prompt, remaining)
		if err != nil {
			logger.Error(err, "provider call failed", "batch", batch, "generated", generated)
			return p.fail(ctx, job.ID, workerID, err)
		}

		persisted := 0
		for _, item := range items {
			q, err := p.persistItem(ctx, payload, category, item, topics)
			if err != nil {
				logger.Error(err, "dropping item after persist retry", "title", item.Title)
				continue
			}
			persisted++
			historyTitles = append(historyTitles, q.Title)
		}
		generated += persisted

		if err := p.ledger.MarkProgress(ctx, job.ID, workerID, persisted); err != nil {
			logger.Error(err, "failed to record progress", "persisted", persisted)
		}
		logger.Info("batch done", "batch", batch, "persisted", persisted, "generated", generated, "target", payload.Count)
	}

	if generated == 0 {
		return p.fail(ctx, job.ID, workerID, fmt.Errorf("no items generated after %d batches", p.cfg.BatchBudget))
	}
	if err := p.ledger.Complete(ctx, job.ID, workerID); err != nil {
		return err
	}
	logger.Info("job completed", "generated", generated, "target", payload.Count)
	return nil
}

// resolveHistory never fails the job; a broken lookup degrades to an
// empty context.
func (p *Pipeline) resolveHistory(ctx context.Context, payload *queue.Payload, topics []string, logger logr.Logger) ([]string, string) {
	var categories []string
	if payload.MainHeader != "" {
		categories = append(categories, payload.MainHeader)
	}
	if payload.Category != "" && payload.Category != payload.MainHeader {
		categories = append(categories, payload.Category)
	}

	res, err := p.resolver.Resolve(ctx, history.ScopeQuery{
		SourceMaterial: payload.SourceMaterial,
		Topics:         topics,
		Categories:     categories,
		TopicLimit:     p.cfg.HistoryTopicLimit,
		CategoryLimit:  p.cfg.HistoryCategoryLimit,
	})
	if err != nil {
		logger.Error(err, "history lookup failed; generating without history context")
		return nil, history.ScopeNone
	}
	return res.Titles, res.Scope
}

// persistItem writes one accepted item with its topic links, retrying the
// write once immediately before giving the item up.
func (p *Pipeline) persistItem(ctx context.Context, payload *queue.Payload, category string, item provider.Item, topics []string) (*question.Question, error) {
	options := make([]question.Option, len(item.Options))
	for i, text := range item.Options {
		options[i] = question.Option{ID: string(rune('A' + i)), Text: text}
	}

	nq := question.NewQuestion{
		Title:          item.Title,
		SourceMaterial: payload.SourceMaterial,
		Category:       category,
		Topic:          payload.Topic,
		QuestionText:   item.Question,
		Options:        options,
		CorrectIndex:   item.CorrectIndex,
		Explanation:    item.Explanation,
	}

	q, err := p.questions.Create(ctx, nq, topics)
	if err == nil {
		return q, nil
	}
	q, retryErr := p.questions.Create(ctx, nq, topics)
	if retryErr != nil {
		return nil, fmt.Errorf("persist failed twice: %w", retryErr)
	}
	return q, nil
}

func (p *Pipeline) fail(ctx context.Context, jobID int64, workerID string, cause error) error {
	if err := p.ledger.Fail(ctx, jobID, workerID, cause.Error()); err != nil {
		p.logger.Error(err, "failed to record job failure", "job_id", jobID)
	}
	return cause
}
