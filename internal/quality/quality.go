// Package quality computes the completeness and consistency signals the
// orchestrator uses to decide whether a report needs a repair pass.
package quality

import (
	"strings"

	"pulse/internal/core"
)

// ConsistencyThreshold is the minimum summary/conclusion overlap score below
// which a report is considered incoherent.
const ConsistencyThreshold = 0.7

// Completeness reports which required sections are missing or empty.
type Completeness struct {
	IsComplete bool
	Missing    []core.SectionName
	Ratio      float64
}

// CheckCompleteness verifies every required section is present and non-empty.
func CheckCompleteness(sections map[core.SectionName]string) Completeness {
	required := core.RequiredSections()

	var missing []core.SectionName
	for _, name := range required {
		if strings.TrimSpace(sections[name]) == "" {
			missing = append(missing, name)
		}
	}

	return Completeness{
		IsComplete: len(missing) == 0,
		Missing:    missing,
		Ratio:      float64(len(required)-len(missing)) / float64(len(required)),
	}
}

// CheckConsistency scores the lexical overlap between the summary and
// conclusion sections as a proxy for narrative coherence. The score is the
// shared-word count over the smaller section's vocabulary, doubled and capped
// at 1.0. A report missing either section scores a full 1.0: consistency
// cannot be judged, and completeness already flags the gap.
func CheckConsistency(sections map[core.SectionName]string) float64 {
	summary := wordSet(sections[core.SectionSummary])
	conclusion := wordSet(sections[core.SectionConclusion])
	if len(summary) == 0 || len(conclusion) == 0 {
		return 1.0
	}

	overlap := 0
	for w := range summary {
		if _, ok := conclusion[w]; ok {
			overlap++
		}
	}

	smaller := len(summary)
	if len(conclusion) < smaller {
		smaller = len(conclusion)
	}

	score := float64(overlap) / float64(smaller) * 2
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Evaluate runs both checks and folds them into the report's quality metrics.
func Evaluate(sections map[core.SectionName]string) core.QualityMetrics {
	completeness := CheckCompleteness(sections)
	consistency := CheckConsistency(sections)

	metrics := core.QualityMetrics{
		ConsistencyScore:  consistency,
		CompletenessRatio: completeness.Ratio,
		QualityScore:      (consistency + completeness.Ratio) / 2,
	}
	for _, name := range completeness.Missing {
		metrics.MissingSections = append(metrics.MissingSections, string(name))
	}
	return metrics
}

// NeedsRepair decides whether the orchestrator should run its single repair
// pass for these metrics.
func NeedsRepair(metrics core.QualityMetrics) bool {
	return len(metrics.MissingSections) > 0 || metrics.ConsistencyScore < ConsistencyThreshold
}

func wordSet(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
