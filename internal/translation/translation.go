// Package translation は単語の翻訳を生成します。
package translation

import (
	"context"
	"fmt"
	"strings"

	"github.com/yourusername/wordnest/internal/ai"
	"github.com/yourusername/wordnest/internal/apperr"
)

// DefaultSourceLanguage は翻訳元言語の既定値です。
const DefaultSourceLanguage = "en"

// Request は翻訳ジョブの入力です。
type Request struct {
	Word           string `json:"word" validate:"required,max=128"`
	SourceLanguage string `json:"sourceLanguage,omitempty" validate:"omitempty,max=16"`
	TargetLanguage string `json:"targetLanguage" validate:"required,max=16"`
}

// Normalize は前後の空白を取り除き、既定値を補います。
func (r *Request) Normalize() {
	r.Word = strings.TrimSpace(r.Word)
	r.SourceLanguage = strings.TrimSpace(r.SourceLanguage)
	r.TargetLanguage = strings.TrimSpace(r.TargetLanguage)
	if r.SourceLanguage == "" {
		r.SourceLanguage = DefaultSourceLanguage
	}
}

// Validate は必須項目を検証します。Normalize の後に呼び出します。
func (r *Request) Validate() error {
	return apperr.Validate(r)
}

// Result は翻訳結果です。
type Result struct {
	Word           string `json:"word"`
	Translation    string `json:"translation"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
	Definition     string `json:"definition,omitempty"`
	Example        string `json:"example,omitempty"`
}

// Fallback は生成サービスが使えないときの代替結果を返します。
func Fallback(req Request) Result {
	return Result{
		Word:           req.Word,
		Translation:    `[Translation for "` + req.Word + `"]`,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
	}
}

// Service は生成サービスを使って翻訳します。
type Service struct {
	gen ai.Generator
}

// NewService は Service を作成します。gen が nil の場合は常に失敗します。
func NewService(gen ai.Generator) *Service {
	if gen == nil {
		gen = ai.Disabled{}
	}
	return &Service{gen: gen}
}

type modelOutput struct {
	Translation string `json:"translation"`
	Definition  string `json:"definition"`
	Example     string `json:"example"`
}

// Translate は req を翻訳します。失敗時の代替は呼び出し側で Fallback を使います。
func (s *Service) Translate(ctx context.Context, req Request) (Result, error) {
	text, err := s.gen.Generate(ctx, buildPrompt(req))
	if err != nil {
		return Result{}, err
	}

	var out modelOutput
	if err := ai.ExtractJSON(text, &out); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(out.Translation) == "" {
		return Result{}, fmt.Errorf("model output has no translation")
	}

	return Result{
		Word:           req.Word,
		Translation:    strings.TrimSpace(out.Translation),
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		Definition:     strings.TrimSpace(out.Definition),
		Example:        strings.TrimSpace(out.Example),
	}, nil
}

// TranslateOrFallback は翻訳に失敗した場合に代替結果と失敗理由を返します。
func (s *Service) TranslateOrFallback(ctx context.Context, req Request) (Result, error) {
	res, err := s.Translate(ctx, req)
	if err != nil {
		return Fallback(req), err
	}
	return res, nil
}

func buildPrompt(req Request) ai.Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the word %q from %s to %s.\n", req.Word, req.SourceLanguage, req.TargetLanguage)
	b.WriteString("Respond with a single JSON object only, using the keys ")
	b.WriteString(`"translation", "definition" (a short learner-friendly definition in the source language) `)
	b.WriteString(`and "example" (one example sentence in the source language).`)
	return ai.Prompt{
		System:      "You are a bilingual dictionary for language learners.",
		User:        b.String(),
		MaxTokens:   300,
		Temperature: 0.2,
	}
}
