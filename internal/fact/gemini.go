package fact

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModel はGEMINI_MODEL未指定時のモデル名。
const DefaultModel = "gemini-2.0-flash"

// factSchema は応答を{"fact": string}に制約するスキーマ。
var factSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"fact": {
			Type:        genai.TypeString,
			Description: "A unique and interesting fact derived from the user data.",
		},
	},
	Required: []string{"fact"},
}

// GeminiGenerator はGemini APIを使うGenerator実装。
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

var _ Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator はGemini APIクライアントを生成する。
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate はプロンプトを1回送信し、JSON応答のテキストを返す。
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   factSchema,
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New("gemini returned no content")
	}
	return text, nil
}
