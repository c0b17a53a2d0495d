package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"pulse/internal/cluster"
	"pulse/internal/collect"
	"pulse/internal/core"
	"pulse/internal/llm"
	"pulse/internal/progress"
	"pulse/internal/relevance"
	"pulse/internal/report"
)

// routedGenerator answers each kind of prompt the pipeline issues with a
// canned response, keyed on distinctive prompt text.
type routedGenerator struct {
	synthesis    string
	synthesisErr error
	repair       string
	repairCalls  int
}

func (r *routedGenerator) Generate(_ context.Context, prompt string, _ llm.Options) (string, error) {
	switch {
	case strings.Contains(prompt, "related search keywords"):
		return `["gadget reviews"]`, nil
	case strings.Contains(prompt, "Rate each content item's relevance"):
		var b strings.Builder
		b.WriteString("[")
		for i := 0; i < 12; i++ {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, `{"content_index": %d, "relevance_score": 8.0, "reason": "on topic"}`, i+1)
		}
		b.WriteString("]")
		return b.String(), nil
	case strings.Contains(prompt, "extract the main topics"):
		return `[
			{"name": "pricing", "description": "Cost discussion", "keywords": ["price"]},
			{"name": "features", "description": "Feature requests", "keywords": ["feature"]},
			{"name": "reliability", "description": "Bugs and crashes", "keywords": ["crash"]}
		]`, nil
	case strings.Contains(prompt, "Assign each content item"):
		return "[0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2]", nil
	case strings.Contains(prompt, "has missing or weak sections"):
		r.repairCalls++
		return r.repair, nil
	case strings.Contains(prompt, "Write an analysis report"):
		return r.synthesis, r.synthesisErr
	}
	return "", fmt.Errorf("unexpected prompt: %.60s", prompt)
}

// fakeSearcher returns the same twelve posts for every keyword, split across
// the three vectors, so dedup has real work to do.
type fakeSearcher struct{}

func (fakeSearcher) Search(_ context.Context, _ string, vector core.CollectionVector) ([]core.ContentItem, error) {
	base := map[string]int{collect.VectorZeitgeist: 0, collect.VectorUnderground: 4, collect.VectorVanguard: 8}[vector.Name]
	items := make([]core.ContentItem, 4)
	for i := range items {
		n := base + i
		items[i] = core.ContentItem{
			ID:           fmt.Sprintf("t3_%03d", n),
			Kind:         core.KindPost,
			Title:        fmt.Sprintf("Post %d", n),
			Body:         "Discussion about the widget.",
			Score:        100 - n,
			CommentCount: 10,
			CommunityID:  "widgets",
			Author:       "user",
			URL:          fmt.Sprintf("https://example.com/%03d", n),
			UpvoteRatio:  0.9,
		}
	}
	return items, nil
}

func (fakeSearcher) Comments(_ context.Context, _ string, _ int) ([]core.ContentItem, error) {
	return nil, nil
}

const goodSynthesis = `## Summary
The widget discussion centers on pricing complaints and crashes [ref:t3_000].

## Topic Analysis
Pricing dominates [ref:t3_001], with features second [ref:t3_004].

## Sentiment Analysis
Negative on pricing [ref:t3_000], positive on features [ref:t3_005].

## Insights
Crashes correlate with the latest release [ref:t3_008].

## Conclusion
The widget discussion centers on pricing complaints and crashes overall.`

const incompleteSynthesis = `## Summary
The widget discussion centers on pricing [ref:t3_000].

## Topic Analysis
Pricing dominates [ref:t3_001].

## Sentiment Analysis
Mostly negative [ref:t3_002].

## Conclusion
The widget discussion centers on pricing overall.`

type memoryStore struct {
	saved []*core.Report
	err   error
}

func (m *memoryStore) SaveReport(r *core.Report) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, r)
	return nil
}

func newTestPipeline(gen llm.Generator, store ReportStore, opts Options) *Pipeline {
	collector := collect.NewCollector(fakeSearcher{}, collect.Options{CallsPerMinute: 1000})
	filter := relevance.NewFilter(gen, relevance.DefaultOptions())
	clusterer := cluster.NewClusterer(gen, cluster.DefaultOptions())
	synth := report.NewSynthesizer(gen, "test-model")
	return New(collector, filter, clusterer, synth, gen, store, opts)
}

func TestRunAnalysisEndToEnd(t *testing.T) {
	gen := &routedGenerator{synthesis: goodSynthesis}
	store := &memoryStore{}
	p := newTestPipeline(gen, store, Options{})

	result, err := p.RunAnalysis(context.Background(), Request{Query: "widget", Sources: []string{"reddit"}})
	if err != nil {
		t.Fatalf("RunAnalysis: %v", err)
	}

	if result.ReportID == "" {
		t.Error("no report ID")
	}
	if result.Collected != 12 {
		t.Errorf("Collected = %d, want 12 after dedup", result.Collected)
	}
	if result.Filtered != 12 {
		t.Errorf("Filtered = %d, want 12 (all pass at 8.0)", result.Filtered)
	}
	if result.ClusterCount != 3 {
		t.Errorf("ClusterCount = %d, want 3", result.ClusterCount)
	}

	if strings.Contains(result.FullReportText, "[ref:") {
		t.Error("inline markers not rewritten in final text")
	}
	if !strings.Contains(result.FullReportText, "[1]") {
		t.Error("no numbered citations in final text")
	}
	if !strings.Contains(result.FullReportText, "## References") {
		t.Error("references section missing")
	}
	if len(result.Footnotes) == 0 {
		t.Error("no footnotes mapped")
	}

	if result.QualityMetrics.CompletenessRatio != 1.0 {
		t.Errorf("CompletenessRatio = %v", result.QualityMetrics.CompletenessRatio)
	}
	if len(store.saved) != 1 {
		t.Fatalf("saved %d reports, want 1", len(store.saved))
	}
	if gen.repairCalls != 0 {
		t.Errorf("repair ran %d times on a healthy report", gen.repairCalls)
	}
}

func TestRunAnalysisRepairsOnce(t *testing.T) {
	gen := &routedGenerator{
		synthesis: incompleteSynthesis,
		repair:    "## Insights\nCrashes spiked after the update [ref:t3_008].",
	}
	p := newTestPipeline(gen, &memoryStore{}, Options{})

	result, err := p.RunAnalysis(context.Background(), Request{Query: "widget"})
	if err != nil {
		t.Fatalf("RunAnalysis: %v", err)
	}

	if gen.repairCalls != 1 {
		t.Fatalf("repair ran %d times, want exactly 1", gen.repairCalls)
	}
	if !result.QualityMetrics.Repaired {
		t.Error("metrics do not record the repair")
	}
	if !strings.Contains(result.FullReportText, "Crashes spiked") {
		t.Error("repaired section missing from final text")
	}
	if strings.Contains(result.FullReportText, "[ref:") {
		t.Error("markers from the repaired section not rewritten")
	}
	if result.QualityMetrics.CompletenessRatio != 1.0 {
		t.Errorf("CompletenessRatio after repair = %v", result.QualityMetrics.CompletenessRatio)
	}
}

func TestRunAnalysisRepairFailureStillShips(t *testing.T) {
	gen := &routedGenerator{
		synthesis: incompleteSynthesis,
		repair:    "still no insights section here",
	}
	p := newTestPipeline(gen, &memoryStore{}, Options{})

	result, err := p.RunAnalysis(context.Background(), Request{Query: "widget"})
	if err != nil {
		t.Fatalf("RunAnalysis: %v", err)
	}

	if gen.repairCalls != 1 {
		t.Fatalf("repair ran %d times, want exactly 1", gen.repairCalls)
	}
	if result.FullReportText == "" {
		t.Fatal("no report shipped despite unresolved gap")
	}
	if result.QualityMetrics.CompletenessRatio == 1.0 {
		t.Error("completeness should still reflect the missing section")
	}
}

func TestRunAnalysisSynthesisFailureIsFatal(t *testing.T) {
	gen := &routedGenerator{synthesisErr: errors.New("model unavailable")}
	p := newTestPipeline(gen, &memoryStore{}, Options{})

	result, err := p.RunAnalysis(context.Background(), Request{Query: "widget"})
	if !errors.Is(err, core.ErrSynthesisFailed) {
		t.Fatalf("err = %v, want ErrSynthesisFailed", err)
	}
	if result != nil {
		t.Error("no result should exist without a report")
	}
}

func TestRunAnalysisStorageFailureReturnsReport(t *testing.T) {
	gen := &routedGenerator{synthesis: goodSynthesis}
	p := newTestPipeline(gen, &memoryStore{err: errors.New("disk full")}, Options{})

	result, err := p.RunAnalysis(context.Background(), Request{Query: "widget"})
	if !errors.Is(err, core.ErrStorageFailed) {
		t.Fatalf("err = %v, want ErrStorageFailed", err)
	}
	if result == nil || result.FullReportText == "" {
		t.Fatal("finished report must come back even when storage fails")
	}
}

func TestRunAnalysisProgressTransitions(t *testing.T) {
	gen := &routedGenerator{synthesis: goodSynthesis}

	var stages []string
	var percents []int
	tracker := progress.NewTracker(0)
	p := newTestPipeline(gen, &memoryStore{}, Options{
		OnProgress: func(stage string, percent int) {
			stages = append(stages, stage)
			percents = append(percents, percent)
		},
		Tracker: tracker,
	})

	_, err := p.RunAnalysis(context.Background(), Request{Query: "widget", SessionID: "s1"})
	if err != nil {
		t.Fatalf("RunAnalysis: %v", err)
	}

	want := []string{StageCollecting, StageFiltering, StageClustering, StageSynthesizing, StageCitationMapping, StageQualityCheck, StageDone}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage[%d] = %s, want %s", i, stages[i], want[i])
		}
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] <= percents[i-1] {
			t.Errorf("percent not monotonic: %v", percents)
		}
	}
	if percents[len(percents)-1] != 100 {
		t.Errorf("final percent = %d, want 100", percents[len(percents)-1])
	}

	u, ok := tracker.Get("s1")
	if !ok || u.Stage != StageDone || u.Percent != 100 {
		t.Errorf("tracker final state = %+v", u)
	}
}

func TestRunAnalysisEmptyQuery(t *testing.T) {
	p := newTestPipeline(&routedGenerator{}, nil, Options{})

	if _, err := p.RunAnalysis(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for empty query")
	}
}
