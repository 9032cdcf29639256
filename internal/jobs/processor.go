package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/wordnest/internal/learning"
	"github.com/yourusername/wordnest/internal/metrics"
	"github.com/yourusername/wordnest/internal/story"
	"github.com/yourusername/wordnest/internal/translation"
)

// 終了状態の書き込みはタスクの期限切れ後も行えるよう、独立した期限を使う
const finalizeTimeout = 10 * time.Second

// StoryGenerator はストーリージョブの実処理です。
type StoryGenerator interface {
	Generate(ctx context.Context, userID string, req story.Request) (*story.Result, error)
}

// Translator は翻訳ジョブの実処理です。
type Translator interface {
	TranslateOrFallback(ctx context.Context, req translation.Request) (translation.Result, error)
}

// StoryResult はストーリージョブの結果です。
type StoryResult struct {
	Story    learning.Story            `json:"story"`
	NewWords []learning.VocabularyWord `json:"newWords"`
}

// Processor は投入されたジョブを 1 件ずつ処理します。
type Processor struct {
	store      *Store
	stories    StoryGenerator
	translator Translator
	publisher  Publisher
	logger     *zap.Logger
}

// NewProcessor は Processor を作成します。
func NewProcessor(store *Store, stories StoryGenerator, translator Translator, publisher Publisher, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		store:      store,
		stories:    stories,
		translator: translator,
		publisher:  publisher,
		logger:     logger.Named("processor"),
	}
}

// ProcessBatch はまとめて届いたジョブを個別に処理します。
// 1 件の失敗で残りを止めることはありません。返すのはジョブ状態を書き込めなかったエラーだけです。
func (p *Processor) ProcessBatch(ctx context.Context, ids []string) error {
	var errs []error
	for _, id := range ids {
		if err := p.Process(ctx, id); err != nil {
			p.logger.Error("Failed to process job", zap.String("job_id", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("job %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Process は 1 件のジョブを処理します。pending 以外のジョブは何もしません。
func (p *Processor) Process(ctx context.Context, jobID string) error {
	record, err := p.store.MarkProcessing(ctx, jobID)
	switch {
	case errors.Is(err, ErrNotFound):
		p.logger.Warn("Job record not found, skipping", zap.String("job_id", jobID))
		return nil
	case errors.Is(err, ErrInvalidTransition):
		p.logger.Debug("Job already claimed, skipping", zap.String("job_id", jobID), zap.Error(err))
		return nil
	case err != nil:
		return err
	}

	log := p.logger.With(zap.String("job_id", jobID), zap.String("type", string(record.Type)))
	log.Info("Processing job")

	var (
		result any
		errMsg string
		runErr error
	)
	switch record.Type {
	case KindTranslation:
		result, errMsg, runErr = p.runTranslation(ctx, record)
	case KindStory:
		result, errMsg, runErr = p.runStory(ctx, record)
	default:
		runErr = fmt.Errorf("unknown job type: %s", record.Type)
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if runErr != nil {
		return p.fail(writeCtx, record, runErr)
	}

	final, err := p.store.MarkCompleted(writeCtx, jobID, result, errMsg)
	if err != nil {
		return p.fail(writeCtx, record, fmt.Errorf("failed to save job result: %w", err))
	}
	metrics.IncJobsFinished(string(record.Type), string(StatusCompleted))
	if errMsg != "" {
		log.Warn("Job completed with fallback", zap.String("error", errMsg))
	} else {
		log.Info("Job completed")
	}
	p.publish(writeCtx, final)
	return nil
}

func (p *Processor) runTranslation(ctx context.Context, record *Record) (any, string, error) {
	var req translation.Request
	if err := json.Unmarshal(record.Input, &req); err != nil {
		return nil, "", fmt.Errorf("invalid translation input: %w", err)
	}
	req.Normalize()

	res, aiErr := p.translator.TranslateOrFallback(ctx, req)
	if aiErr != nil {
		metrics.IncAIFallback(string(KindTranslation))
		return res, aiErr.Error(), nil
	}
	return res, "", nil
}

func (p *Processor) runStory(ctx context.Context, record *Record) (any, string, error) {
	var req story.Request
	if err := json.Unmarshal(record.Input, &req); err != nil {
		return nil, "", fmt.Errorf("invalid story input: %w", err)
	}
	req.Normalize()

	res, err := p.stories.Generate(ctx, record.UserID, req)
	if err != nil {
		return nil, "", err
	}
	newWords := res.NewWords
	if newWords == nil {
		newWords = []learning.VocabularyWord{}
	}
	out := StoryResult{Story: res.Story, NewWords: newWords}
	if res.GenerationErr != nil {
		return out, res.GenerationErr.Error(), nil
	}
	return out, "", nil
}

func (p *Processor) fail(ctx context.Context, record *Record, cause error) error {
	p.logger.Error("Job failed", zap.String("job_id", record.ID), zap.Error(cause))
	final, err := p.store.MarkFailed(ctx, record.ID, cause.Error())
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w (cause: %v)", err, cause)
	}
	metrics.IncJobsFinished(string(record.Type), string(StatusFailed))
	p.publish(ctx, final)
	return nil
}

func (p *Processor) publish(ctx context.Context, record *Record) {
	if p.publisher == nil || record == nil {
		return
	}
	p.publisher.Publish(ctx, EventFromRecord(record))
}
