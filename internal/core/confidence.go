package core

import "time"

// ConfidenceTier is the ordinal label derived from the overall score.
type ConfidenceTier string

const (
	TierVeryHigh ConfidenceTier = "very_high"
	TierHigh     ConfidenceTier = "high"
	TierMedium   ConfidenceTier = "medium"
	TierLow      ConfidenceTier = "low"
	TierVeryLow  ConfidenceTier = "very_low"
)

// TierForScore maps an overall score to its tier band.
func TierForScore(score float64) ConfidenceTier {
	switch {
	case score >= 0.85:
		return TierVeryHigh
	case score >= 0.70:
		return TierHigh
	case score >= 0.55:
		return TierMedium
	case score >= 0.40:
		return TierLow
	default:
		return TierVeryLow
	}
}

// ConfidenceAssessment is the scalar+factor confidence computed once per
// run after the analysis pass and carried immutably into consulting.
type ConfidenceAssessment struct {
	OverallScore float64            `json:"overall_score"`
	Factors      map[string]float64 `json:"factors"`
	Tier         ConfidenceTier     `json:"tier"`
	ComputedAt   time.Time          `json:"computed_at"`
}

// Clone returns an independent copy of the assessment.
func (a *ConfidenceAssessment) Clone() *ConfidenceAssessment {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Factors = make(map[string]float64, len(a.Factors))
	for k, v := range a.Factors {
		cp.Factors[k] = v
	}
	return &cp
}
