package quality

import (
	"testing"

	"pulse/internal/core"
)

func completeSections() map[core.SectionName]string {
	return map[core.SectionName]string{
		core.SectionSummary:    "pricing complaints dominate the widget discussion",
		core.SectionTopics:     "Three topics emerged around pricing and features.",
		core.SectionSentiment:  "Mostly negative on cost.",
		core.SectionInsights:   "Power users drive the complaints.",
		core.SectionConclusion: "pricing complaints dominate the widget discussion overall",
	}
}

func TestCheckCompleteness(t *testing.T) {
	c := CheckCompleteness(completeSections())
	if !c.IsComplete || len(c.Missing) != 0 || c.Ratio != 1.0 {
		t.Fatalf("complete report reported as %+v", c)
	}
}

func TestCheckCompletenessMissing(t *testing.T) {
	sections := completeSections()
	delete(sections, core.SectionInsights)
	sections[core.SectionSentiment] = "   "

	c := CheckCompleteness(sections)

	if c.IsComplete {
		t.Fatal("report with gaps reported complete")
	}
	if len(c.Missing) != 2 {
		t.Fatalf("missing = %v, want sentiment and insights", c.Missing)
	}
	if c.Ratio != 0.6 {
		t.Errorf("ratio = %v, want 0.6", c.Ratio)
	}
}

func TestCheckConsistency(t *testing.T) {
	tests := []struct {
		name       string
		summary    string
		conclusion string
		want       float64
	}{
		{"identical", "pricing is the issue", "pricing is the issue", 1.0},
		{"disjoint", "alpha beta gamma", "delta epsilon zeta", 0.0},
		// 2 shared words of a 4-word minimum vocabulary: 2/4*2 = 1.0
		{"half overlap caps at one", "pricing cost users complaints", "pricing cost export feature", 1.0},
		// 1 shared word of 4: 1/4*2 = 0.5
		{"quarter overlap", "pricing alpha beta gamma", "pricing delta epsilon zeta", 0.5},
		{"missing conclusion scores full", "pricing is the issue", "", 1.0},
		{"both missing scores full", "", "", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sections := map[core.SectionName]string{
				core.SectionSummary:    tt.summary,
				core.SectionConclusion: tt.conclusion,
			}
			if got := CheckConsistency(sections); got != tt.want {
				t.Errorf("CheckConsistency = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	sections := completeSections()
	delete(sections, core.SectionConclusion)

	metrics := Evaluate(sections)

	if metrics.CompletenessRatio != 0.8 {
		t.Errorf("CompletenessRatio = %v, want 0.8", metrics.CompletenessRatio)
	}
	if metrics.ConsistencyScore != 1.0 {
		t.Errorf("ConsistencyScore = %v, want 1.0 when conclusion is absent", metrics.ConsistencyScore)
	}
	if len(metrics.MissingSections) != 1 || metrics.MissingSections[0] != "conclusion" {
		t.Errorf("MissingSections = %v", metrics.MissingSections)
	}
	if metrics.QualityScore != 0.9 {
		t.Errorf("QualityScore = %v, want 0.9", metrics.QualityScore)
	}
}

func TestNeedsRepair(t *testing.T) {
	tests := []struct {
		name    string
		metrics core.QualityMetrics
		want    bool
	}{
		{"healthy", core.QualityMetrics{ConsistencyScore: 0.9}, false},
		{"at threshold", core.QualityMetrics{ConsistencyScore: 0.7}, false},
		{"inconsistent", core.QualityMetrics{ConsistencyScore: 0.5}, true},
		{"incomplete", core.QualityMetrics{ConsistencyScore: 1.0, MissingSections: []string{"insights"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsRepair(tt.metrics); got != tt.want {
				t.Errorf("NeedsRepair = %v, want %v", got, tt.want)
			}
		})
	}
}
