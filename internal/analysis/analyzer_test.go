package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verepo/internal/fetch"
	"verepo/internal/llm"
)

const sampleResponse = `{
	"category": {
		"type": "REST API",
		"framework": "Express.js",
		"language": "TypeScript",
		"description": "A small web service.",
		"features": ["routing", "auth"]
	},
	"quality": {
		"score": 70,
		"breakdown": {
			"structure": 75, "errorHandling": 70, "naming": 65,
			"testing": 60, "security": 72, "documentation": 68
		},
		"highlights": ["clear layout"],
		"concerns": ["few tests"]
	},
	"slop": {
		"level": "medium",
		"confidence": 60,
		"signals": ["some boilerplate"]
	},
	"finalScore": 99,
	"verdict": "suspicious",
	"summary": "A serviceable project."
}`

var sampleFiles = []fetch.SourceFile{
	{Path: "main.ts", Content: "console.log(1)", Lines: 1},
}

func TestAnalyzeRecomputesFinalScore(t *testing.T) {
	fake := &llm.Fake{Response: sampleResponse}
	result, exchange, err := New(fake).Analyze(context.Background(), sampleFiles, "acme/widget", PolicyStandard)
	require.NoError(t, err)

	// quality 70, slop medium: 70*0.6 + 50*0.4 = 62, regardless of the
	// model's claimed 99.
	assert.InDelta(t, 62.0, result.FinalScore, 1e-9)
	assert.Equal(t, "suspicious", result.Verdict)
	require.NotNil(t, exchange)
	assert.Equal(t, sampleResponse, exchange.Response)
}

func TestAnalyzePromptContents(t *testing.T) {
	fake := &llm.Fake{Response: sampleResponse}
	_, _, err := New(fake).Analyze(context.Background(), sampleFiles, "acme/widget", PolicyStandard)
	require.NoError(t, err)

	require.Len(t, fake.Calls, 1)
	assert.Contains(t, fake.Calls[0].User, "Analyze this repository: acme/widget")
	assert.Contains(t, fake.Calls[0].User, "--- FILE: main.ts (1 lines) ---")
	assert.Contains(t, fake.Calls[0].System, "Be honest and specific.")
}

func TestAnalyzeStripsCodeFences(t *testing.T) {
	fake := &llm.Fake{Response: "```json\n" + sampleResponse + "\n```"}
	result, _, err := New(fake).Analyze(context.Background(), sampleFiles, "acme/widget", PolicyStandard)
	require.NoError(t, err)
	assert.Equal(t, "REST API", result.Category.Type)
}

func TestAnalyzeClampsScores(t *testing.T) {
	fake := &llm.Fake{Response: `{
		"category": {"type":"x","framework":"y","language":"z","description":"d","features":[]},
		"quality": {"score": 250, "breakdown": {"structure": -5, "errorHandling": 130, "naming": 50, "testing": 50, "security": 50, "documentation": 50}, "highlights": [], "concerns": []},
		"slop": {"level": "low", "confidence": 900, "signals": []},
		"finalScore": -10,
		"verdict": "verified",
		"summary": "s"
	}`}
	result, _, err := New(fake).Analyze(context.Background(), sampleFiles, "acme/widget", PolicyStandard)
	require.NoError(t, err)

	assert.Equal(t, 100.0, result.Quality.Score)
	assert.Equal(t, 0.0, result.Quality.Breakdown.Structure)
	assert.Equal(t, 100.0, result.Quality.Breakdown.ErrorHandling)
	assert.Equal(t, 100.0, result.Slop.Confidence)
	// Recomputed from clamped quality and slop level: 100*0.6 + 100*0.4.
	assert.Equal(t, 100.0, result.FinalScore)
}

func TestAnalyzeMissingFieldFails(t *testing.T) {
	fake := &llm.Fake{Response: `{
		"category": {"type":"x","framework":"y","language":"z","description":"d","features":[]},
		"quality": {"score": 70, "breakdown": {}, "highlights": [], "concerns": []},
		"finalScore": 62,
		"verdict": "suspicious"
	}`}
	_, _, err := New(fake).Analyze(context.Background(), sampleFiles, "acme/widget", PolicyStandard)
	assert.ErrorContains(t, err, "invalid response structure")
}

func TestAnalyzeInvalidJSONFails(t *testing.T) {
	fake := &llm.Fake{Response: "I could not analyze this repository."}
	_, _, err := New(fake).Analyze(context.Background(), sampleFiles, "acme/widget", PolicyStandard)
	assert.ErrorContains(t, err, "not valid JSON")
}

func TestAnalyzeModelError(t *testing.T) {
	fake := &llm.Fake{Err: errors.New("upstream 500")}
	_, _, err := New(fake).Analyze(context.Background(), sampleFiles, "acme/widget", PolicyStandard)
	assert.Error(t, err)
}

func TestAffiliatedPolicyAdjustment(t *testing.T) {
	fake := &llm.Fake{Response: sampleResponse}
	result, _, err := New(fake).Analyze(context.Background(), sampleFiles, "paritydotcx/widget", PolicyAffiliated)
	require.NoError(t, err)

	// Lenient prompt variant was used.
	require.Len(t, fake.Calls, 1)
	assert.Contains(t, fake.Calls[0].System, "Be fair and constructive.")

	// quality 70 -> 85; final 62 -> 77; confidence 60 -> 40 (level keeps
	// medium since 40 >= 30); verdict suspicious -> verified.
	assert.Equal(t, 85.0, result.Quality.Score)
	assert.InDelta(t, 77.0, result.FinalScore, 1e-9)
	assert.Equal(t, 40.0, result.Slop.Confidence)
	assert.Equal(t, SlopMedium, result.Slop.Level)
	assert.Equal(t, VerdictVerified, result.Verdict)
}

func TestAffiliatedAdjustmentDowngradesSlopLevel(t *testing.T) {
	r := &Result{
		Quality:    Quality{Score: 90},
		Slop:       Slop{Level: SlopHigh, Confidence: 45},
		FinalScore: 54,
		Verdict:    VerdictUnverified,
	}
	applyAffiliatedAdjustment(r)

	assert.Equal(t, 100.0, r.Quality.Score)
	assert.Equal(t, 69.0, r.FinalScore)
	assert.Equal(t, 25.0, r.Slop.Confidence)
	assert.Equal(t, SlopLow, r.Slop.Level)
	assert.Equal(t, VerdictSuspicious, r.Verdict)
}

func TestPolicyFor(t *testing.T) {
	owners := []string{"paritydotcx"}
	assert.Equal(t, PolicyAffiliated, PolicyFor("paritydotcx", owners))
	assert.Equal(t, PolicyAffiliated, PolicyFor("PARITYDOTCX", owners))
	assert.Equal(t, PolicyStandard, PolicyFor("acme", owners))
	assert.Equal(t, PolicyStandard, PolicyFor("paritydotcx", nil))
}
