package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// InvokeModelAPI は bedrockruntime.Client のうち利用するメソッドです。
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockGenerator は Amazon Bedrock 上の Anthropic モデルを呼び出します。
type BedrockGenerator struct {
	client  InvokeModelAPI
	modelID string
}

// NewBedrockGenerator は既定の認証情報チェーンからクライアントを作成します。
func NewBedrockGenerator(ctx context.Context, region, modelID string) (*BedrockGenerator, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewBedrockGeneratorWithClient(bedrockruntime.NewFromConfig(cfg), modelID), nil
}

// NewBedrockGeneratorWithClient は任意のクライアントで BedrockGenerator を作成します。
func NewBedrockGeneratorWithClient(client InvokeModelAPI, modelID string) *BedrockGenerator {
	return &BedrockGenerator{client: client, modelID: modelID}
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Generate はプロンプトを送信し、テキストブロックを連結して返します。
func (g *BedrockGenerator) Generate(ctx context.Context, prompt Prompt) (string, error) {
	maxTokens := prompt.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        maxTokens,
		System:           prompt.System,
		Messages:         []bedrockMessage{{Role: "user", Content: prompt.User}},
		Temperature:      prompt.Temperature,
	})
	if err != nil {
		return "", err
	}

	out, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("bedrock invoke failed: %w", err)
	}

	var parsed bedrockResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode bedrock response: %w", err)
	}
	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("bedrock returned no text")
	}
	return sb.String(), nil
}
