package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiAnalyzer asks a Gemini model for the same JSON object the OpenAI
// assistant returns.
type GeminiAnalyzer struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

func NewGemini(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiAnalyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiAnalyzer{client: client, model: model, logger: logger}, nil
}

func (g *GeminiAnalyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(BuildUserPrompt(req), genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(scheduleSystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		g.logger.Warn("empty gemini response", zap.Int64("entry_id", req.EntryID))
		return nil, fmt.Errorf("gemini: empty response")
	}
	return decodeOutput(text, req, "gemini")
}
