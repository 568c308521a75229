package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"verepo/internal/fetch"
	"verepo/internal/llm"
)

// Analyzer turns a bounded source corpus into a validated Result via one
// reasoning-model invocation.
type Analyzer struct {
	client llm.Client
}

func New(client llm.Client) *Analyzer {
	return &Analyzer{client: client}
}

// parsedResponse mirrors Result with pointer top-level fields so missing
// keys are distinguishable from zero values. The model's output is
// untrusted input; any absent required field fails the whole analysis.
type parsedResponse struct {
	Category   *Category `json:"category"`
	Quality    *Quality  `json:"quality"`
	Slop       *Slop     `json:"slop"`
	FinalScore *float64  `json:"finalScore"`
	Verdict    *string   `json:"verdict"`
	Summary    string    `json:"summary"`
}

// Analyze invokes the model over the extracted files and returns the
// clamped, recomputed result under the given policy, along with the raw
// exchange for archival.
func (a *Analyzer) Analyze(ctx context.Context, files []fetch.SourceFile, repoName string, policy Policy) (*Result, *Exchange, error) {
	system := systemPromptFor(policy)
	user := buildUserMessage(files, repoName)

	text, err := a.client.Generate(ctx, system, user)
	if err != nil {
		return nil, nil, err
	}
	exchange := &Exchange{System: system, User: user, Response: text}

	result, err := parseResponse(text)
	if err != nil {
		return nil, exchange, err
	}

	// The pinned combination rule is the source of truth; the model's own
	// finalScore arithmetic is never trusted.
	result.FinalScore = FinalScore(result.Quality.Score, result.Slop.Level)

	if policy == PolicyAffiliated {
		applyAffiliatedAdjustment(result)
	}
	return result, exchange, nil
}

func parseResponse(text string) (*Result, error) {
	jsonStr := stripCodeFences(text)

	var parsed parsedResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, fmt.Errorf("model response is not valid JSON: %w", err)
	}
	if parsed.Category == nil || parsed.Quality == nil || parsed.Slop == nil ||
		parsed.FinalScore == nil || parsed.Verdict == nil {
		return nil, fmt.Errorf("invalid response structure from model")
	}

	result := &Result{
		Category:   *parsed.Category,
		Quality:    *parsed.Quality,
		Slop:       *parsed.Slop,
		FinalScore: clamp(*parsed.FinalScore),
		Verdict:    *parsed.Verdict,
		Summary:    parsed.Summary,
	}
	result.Quality.Score = clamp(result.Quality.Score)
	result.Quality.Breakdown = QualityBreakdown{
		Structure:     clamp(result.Quality.Breakdown.Structure),
		ErrorHandling: clamp(result.Quality.Breakdown.ErrorHandling),
		Naming:        clamp(result.Quality.Breakdown.Naming),
		Testing:       clamp(result.Quality.Breakdown.Testing),
		Security:      clamp(result.Quality.Breakdown.Security),
		Documentation: clamp(result.Quality.Breakdown.Documentation),
	}
	result.Slop.Confidence = clamp(result.Slop.Confidence)
	return result, nil
}

// stripCodeFences removes an incidental markdown fence the model may wrap
// its JSON in despite instruction.
func stripCodeFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
