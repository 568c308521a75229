package llm

import (
	"context"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client. It only
// covers the API call itself; prompt construction and response validation
// live with the analyzer.
type GeminiClient struct {
	cli             *genai.Client
	model           string
	maxOutputTokens int32
}

func NewGeminiClient(ctx context.Context, apiKey, model string, maxOutputTokens int) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	if maxOutputTokens <= 0 {
		maxOutputTokens = 4096
	}
	return &GeminiClient{cli: cli, model: model, maxOutputTokens: int32(maxOutputTokens)}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }
func (g *GeminiClient) Close() error { return nil }

func (g *GeminiClient) Generate(ctx context.Context, system, user string) (string, error) {
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: user}}}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
			MaxOutputTokens:   g.maxOutputTokens,
		},
	)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrNoText
	}
	text := joinTextParts(resp.Candidates[0].Content.Parts)
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}

// joinTextParts flattens a candidate's parts. Responses can split the text
// across parts, and the first part may be empty.
func joinTextParts(parts []*genai.Part) string {
	var sb strings.Builder
	for _, part := range parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
