// Package story は学習者向けストーリーの生成と、未知語の語彙登録を行います。
package story

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/wordnest/internal/ai"
	"github.com/yourusername/wordnest/internal/apperr"
	"github.com/yourusername/wordnest/internal/badges"
	"github.com/yourusername/wordnest/internal/learning"
	"github.com/yourusername/wordnest/internal/metrics"
)

// 生成モード
const (
	ModePlacement    = "placement"
	ModePersonalized = "personalized"
	ModeTeacher      = "teacher"
)

// Request はストーリー生成の入力です。
type Request struct {
	Level         string   `json:"level" validate:"required,max=16"`
	Age           int      `json:"age,omitempty" validate:"gte=0,lte=120"`
	Mode          string   `json:"mode" validate:"required,oneof=placement personalized teacher"`
	KnownWords    []string `json:"knownWords,omitempty" validate:"max=500"`
	UnknownWords  []string `json:"unknownWords,omitempty" validate:"max=100"`
	RequiredWords []string `json:"requiredWords,omitempty" validate:"max=50"`
	ExcludedWords []string `json:"excludedWords,omitempty" validate:"max=500"`
	Topic         string   `json:"topic,omitempty" validate:"max=255"`
	Difficulty    string   `json:"difficulty,omitempty" validate:"max=32"`
}

// Normalize は前後の空白を取り除きます。
func (r *Request) Normalize() {
	r.Level = strings.TrimSpace(r.Level)
	r.Mode = strings.ToLower(strings.TrimSpace(r.Mode))
	r.Topic = strings.TrimSpace(r.Topic)
	r.Difficulty = strings.TrimSpace(r.Difficulty)
}

// Validate は必須項目を検証します。Normalize の後に呼び出します。
func (r *Request) Validate() error {
	return apperr.Validate(r)
}

// Result は生成結果です。
type Result struct {
	Story    learning.Story            `json:"story"`
	NewWords []learning.VocabularyWord `json:"newWords"`

	// GenerationErr は生成サービスが失敗して代替ストーリーを使った場合の理由です。
	GenerationErr error `json:"-"`
}

// Repository はストーリー生成に必要な永続化操作です。
type Repository interface {
	EnsureProfile(ctx context.Context, userID, level string, age int) (*learning.Profile, bool, error)
	FindWords(ctx context.Context, userID string, words []string) (map[string]learning.VocabularyWord, error)
	SaveGeneratedStory(ctx context.Context, story *learning.Story, newWords []learning.VocabularyWord) ([]learning.VocabularyWord, error)
}

// BadgeRefresher はストーリー保存後にバッジを再判定します。
type BadgeRefresher interface {
	Refresh(ctx context.Context, userID string) ([]badges.Definition, error)
}

// Service はストーリーを生成して保存します。
type Service struct {
	repo   Repository
	gen    ai.Generator
	badges BadgeRefresher
	logger *zap.Logger
	now    func() time.Time
}

// NewService は Service を作成します。badges は nil でも構いません。
func NewService(repo Repository, gen ai.Generator, badges BadgeRefresher, logger *zap.Logger) *Service {
	if gen == nil {
		gen = ai.Disabled{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		gen:    gen,
		badges: badges,
		logger: logger.Named("story"),
		now:    time.Now,
	}
}

// Generate はストーリーを生成し、初出の未知語とともに保存します。
// 生成サービスの失敗は代替ストーリーで補い、Result.GenerationErr に記録します。
// 戻り値のエラーは永続化の失敗だけです。
func (s *Service) Generate(ctx context.Context, userID string, req Request) (*Result, error) {
	if _, created, err := s.repo.EnsureProfile(ctx, userID, req.Level, req.Age); err != nil {
		return nil, fmt.Errorf("failed to ensure profile: %w", err)
	} else if created {
		s.logger.Info("Created default profile", zap.String("user_id", userID), zap.String("level", req.Level))
	}

	d, genErr := s.draft(ctx, req)
	if genErr != nil {
		metrics.IncAIFallback("story")
		s.logger.Warn("Story generation failed, using fallback", zap.String("user_id", userID), zap.Error(genErr))
		d = fallbackDraft(req)
	}

	unknown := collectUnknownWords(req, d)
	words := make([]string, len(unknown))
	for i, u := range unknown {
		words[i] = u.Word
	}
	existing, err := s.repo.FindWords(ctx, userID, words)
	if err != nil {
		return nil, fmt.Errorf("failed to look up vocabulary: %w", err)
	}

	newWords := make([]learning.VocabularyWord, 0, len(unknown))
	for _, u := range unknown {
		if _, ok := existing[u.Word]; ok {
			continue
		}
		newWords = append(newWords, learning.VocabularyWord{
			UserID:     userID,
			Word:       u.Word,
			Definition: u.Definition,
			Example:    u.Example,
			Mastery:    learning.MasteryUnknown,
		})
	}

	st := &learning.Story{
		UserID:       userID,
		Title:        d.Title,
		Content:      d.Content,
		Level:        req.Level,
		Mode:         req.Mode,
		Topic:        req.Topic,
		UnknownWords: words,
		Fallback:     genErr != nil,
		CreatedAt:    s.now().UTC(),
	}
	saved, err := s.repo.SaveGeneratedStory(ctx, st, newWords)
	if err != nil {
		return nil, fmt.Errorf("failed to save story: %w", err)
	}

	if s.badges != nil {
		if unlocked, err := s.badges.Refresh(ctx, userID); err != nil {
			s.logger.Warn("Failed to refresh badges", zap.String("user_id", userID), zap.Error(err))
		} else if len(unlocked) > 0 {
			s.logger.Info("Badges unlocked", zap.String("user_id", userID), zap.Int("count", len(unlocked)))
		}
	}

	return &Result{Story: *st, NewWords: saved, GenerationErr: genErr}, nil
}

func (s *Service) draft(ctx context.Context, req Request) (draft, error) {
	text, err := s.gen.Generate(ctx, buildPrompt(req))
	if err != nil {
		return draft{}, err
	}
	var d draft
	if err := ai.ExtractJSON(text, &d); err != nil {
		return draft{}, err
	}
	d.Title = strings.TrimSpace(d.Title)
	d.Content = strings.TrimSpace(d.Content)
	if d.Content == "" {
		return draft{}, fmt.Errorf("model output has no story content")
	}
	if d.Title == "" {
		d.Title = defaultTitle(req)
	}
	return d, nil
}

// collectUnknownWords はリクエストと生成結果の未知語を正規化して重複を除きます。
// 既知語・除外語は含めません。
func collectUnknownWords(req Request, d draft) []draftWord {
	skip := make(map[string]struct{}, len(req.KnownWords)+len(req.ExcludedWords))
	for _, w := range req.KnownWords {
		skip[learning.NormalizeWord(w)] = struct{}{}
	}
	for _, w := range req.ExcludedWords {
		skip[learning.NormalizeWord(w)] = struct{}{}
	}

	details := make(map[string]draftWord, len(d.Vocabulary))
	for _, v := range d.Vocabulary {
		if n := learning.NormalizeWord(v.Word); n != "" {
			v.Word = n
			details[n] = v
		}
	}

	var out []draftWord
	seen := make(map[string]struct{})
	add := func(raw string) {
		n := learning.NormalizeWord(raw)
		if n == "" {
			return
		}
		if _, ok := skip[n]; ok {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		w, ok := details[n]
		if !ok {
			w = draftWord{Word: n}
		}
		out = append(out, w)
	}
	for _, w := range req.UnknownWords {
		add(w)
	}
	for _, v := range d.Vocabulary {
		add(v.Word)
	}
	return out
}
