package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/wordnest/internal/metrics"
	"github.com/yourusername/wordnest/internal/story"
	"github.com/yourusername/wordnest/internal/translation"
)

// Notifier はジョブ作成イベントを受け付けます。
type Notifier interface {
	Notify(ctx context.Context, record *Record) error
}

// Submitter は入力を検証してジョブを作成し、処理の完了を待たずに返します。
type Submitter struct {
	store    *Store
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewSubmitter は Submitter を作成します。
func NewSubmitter(store *Store, notifier Notifier, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{
		store:    store,
		notifier: notifier,
		logger:   logger.Named("submitter"),
		now:      time.Now,
	}
}

// SubmitTranslation は翻訳ジョブを作成します。
func (s *Submitter) SubmitTranslation(ctx context.Context, userID string, req translation.Request) (*SubmitResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.submit(ctx, userID, KindTranslation, req)
}

// SubmitStory はストーリー生成ジョブを作成します。
func (s *Submitter) SubmitStory(ctx context.Context, userID string, req story.Request) (*SubmitResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.submit(ctx, userID, KindStory, req)
}

func (s *Submitter) submit(ctx context.Context, userID string, kind Kind, input any) (*SubmitResponse, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job input: %w", err)
	}

	record := &Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      kind,
		Status:    StatusPending,
		Input:     body,
		StartedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.notifier.Notify(ctx, record); err != nil {
		// 通知できなかったジョブは処理されないため残さない
		if derr := s.store.Discard(context.WithoutCancel(ctx), record.ID); derr != nil {
			s.logger.Error("Failed to discard job", zap.String("job_id", record.ID), zap.Error(derr))
		}
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	metrics.IncJobsSubmitted(string(kind))
	s.logger.Info("Job submitted", zap.String("job_id", record.ID), zap.String("type", string(kind)), zap.String("user_id", userID))
	return &SubmitResponse{JobID: record.ID, Status: StatusPending}, nil
}
