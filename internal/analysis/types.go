package analysis

// Category describes what the analyzed program is.
type Category struct {
	Type        string   `json:"type"`
	Framework   string   `json:"framework"`
	Language    string   `json:"language"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
}

// QualityBreakdown carries the weighted sub-scores, each 0-100.
type QualityBreakdown struct {
	Structure     float64 `json:"structure"`
	ErrorHandling float64 `json:"errorHandling"`
	Naming        float64 `json:"naming"`
	Testing       float64 `json:"testing"`
	Security      float64 `json:"security"`
	Documentation float64 `json:"documentation"`
}

type Quality struct {
	Score      float64          `json:"score"`
	Breakdown  QualityBreakdown `json:"breakdown"`
	Highlights []string         `json:"highlights"`
	Concerns   []string         `json:"concerns"`
}

// Slop is the AI-authorship judgment.
type Slop struct {
	Level      string   `json:"level"` // low | medium | high
	Confidence float64  `json:"confidence"`
	Signals    []string `json:"signals"`
}

// Verdict values, weakest to strongest.
const (
	VerdictUnverified = "unverified"
	VerdictSuspicious = "suspicious"
	VerdictVerified   = "verified"
)

// Slop levels.
const (
	SlopLow    = "low"
	SlopMedium = "medium"
	SlopHigh   = "high"
)

// Result is the validated, clamped analysis verdict.
type Result struct {
	Category   Category `json:"category"`
	Quality    Quality  `json:"quality"`
	Slop       Slop     `json:"slop"`
	FinalScore float64  `json:"finalScore"`
	Verdict    string   `json:"verdict"`
	Summary    string   `json:"summary"`
}

// Exchange is the raw transcript of one model invocation, kept for
// archival.
type Exchange struct {
	System   string
	User     string
	Response string
}

// slopLevelScore maps a slop level to its contribution in the final score.
func slopLevelScore(level string) float64 {
	switch level {
	case SlopLow:
		return 100
	case SlopHigh:
		return 0
	default:
		return 50
	}
}

// FinalScore is the pinned combination rule. The model's own claimed value
// is never trusted for ranking or caching.
func FinalScore(qualityScore float64, slopLevel string) float64 {
	return clamp(qualityScore*0.6 + slopLevelScore(slopLevel)*0.4)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
