package analysis

import "strings"

// Policy names how an analysis is scored. It is decided once by the
// coordinator and passed in explicitly, so the lenient treatment of
// affiliated repositories stays auditable and testable in isolation.
type Policy string

const (
	// PolicyStandard is the strict default.
	PolicyStandard Policy = "standard"
	// PolicyAffiliated selects the lenient prompt variant and applies the
	// documented post-hoc score adjustment.
	PolicyAffiliated Policy = "affiliated"
)

// PolicyFor returns the policy for a repository owner given the configured
// affiliated namespaces.
func PolicyFor(owner string, affiliatedOwners []string) Policy {
	for _, affiliated := range affiliatedOwners {
		if strings.EqualFold(owner, affiliated) {
			return PolicyAffiliated
		}
	}
	return PolicyStandard
}

// applyAffiliatedAdjustment applies the fixed adjustment for affiliated
// repositories, strictly after the model call: quality and final score up
// 15 points (capped), slop confidence down 20 (floored), slop level
// downgraded to low if confidence ends below 30, and the verdict relaxed by
// exactly one step.
func applyAffiliatedAdjustment(r *Result) {
	r.Quality.Score = clamp(r.Quality.Score + 15)
	r.FinalScore = clamp(r.FinalScore + 15)
	r.Slop.Confidence = clamp(r.Slop.Confidence - 20)
	if r.Slop.Confidence < 30 {
		r.Slop.Level = SlopLow
	}
	switch r.Verdict {
	case VerdictUnverified:
		r.Verdict = VerdictSuspicious
	case VerdictSuspicious:
		r.Verdict = VerdictVerified
	}
}
