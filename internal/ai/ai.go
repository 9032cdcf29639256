// Package ai は外部の文章生成サービスを呼び出すクライアントを提供します。
// 呼び出しは再試行しません。失敗時の代替値は呼び出し側が決めます。
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yourusername/wordnest/internal/config"
)

// ErrUnavailable は生成サービスが設定されていない、または利用できないことを表します。
var ErrUnavailable = errors.New("text generation service is unavailable")

// Prompt は生成サービスへの 1 回分の指示です。
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Generator は文章生成サービスの共通インターフェースです。
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// Disabled は常に ErrUnavailable を返す Generator です。
type Disabled struct{}

func (Disabled) Generate(ctx context.Context, prompt Prompt) (string, error) {
	return "", ErrUnavailable
}

// New は設定に応じた Generator を作成します。
func New(ctx context.Context, cfg *config.Config) (Generator, error) {
	timeout := time.Duration(cfg.AITimeoutSeconds) * time.Second
	switch cfg.AIProvider {
	case config.AIProviderHTTP:
		return NewHTTPGenerator(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, timeout), nil
	case config.AIProviderBedrock:
		return NewBedrockGenerator(ctx, cfg.AWSRegion, cfg.BedrockModelID)
	case config.AIProviderNone, "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.AIProvider)
	}
}

// ExtractJSON はモデルの出力文に埋め込まれた最初の JSON オブジェクトを v にデコードします。
// コードフェンスや前後の説明文は無視します。
func ExtractJSON(text string, v any) error {
	start := strings.Index(text, "{")
	if start < 0 {
		return fmt.Errorf("no JSON object in model output")
	}
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to parse model output: %w", err)
	}
	return nil
}
