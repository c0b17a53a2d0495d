// Package pipeline drives a full analysis run: collection, filtering,
// clustering, synthesis, citation mapping, quality check, and the single
// bounded repair pass.
package pipeline

import (
	"context"
	"fmt"

	"pulse/internal/citations"
	"pulse/internal/cluster"
	"pulse/internal/collect"
	"pulse/internal/core"
	"pulse/internal/llm"
	"pulse/internal/logger"
	"pulse/internal/progress"
	"pulse/internal/quality"
	"pulse/internal/relevance"
	"pulse/internal/report"
)

// Stage names reported through the progress callback, in run order.
const (
	StageCollecting      = "collecting"
	StageFiltering       = "filtering"
	StageClustering      = "clustering"
	StageSynthesizing    = "synthesizing"
	StageCitationMapping = "citation_mapping"
	StageQualityCheck    = "quality_check"
	StageRepairing       = "repairing"
	StageDone            = "done"
)

// stagePercent maps each stage to overall percent complete at its start.
var stagePercent = map[string]int{
	StageCollecting:      10,
	StageFiltering:       40,
	StageClustering:      55,
	StageSynthesizing:    70,
	StageCitationMapping: 85,
	StageQualityCheck:    90,
	StageRepairing:       95,
	StageDone:            100,
}

// ReportStore persists finished reports.
type ReportStore interface {
	SaveReport(report *core.Report) error
}

// ProgressFunc receives a stage name and overall percent at each transition.
type ProgressFunc func(stage string, percent int)

// Request describes one analysis run.
type Request struct {
	Query      string
	Sources    []string // Content platforms; only "reddit" is supported
	Length     core.ReportLength
	TimeFilter string
	SessionID  string // Optional key for the progress tracker
}

// Options configures a Pipeline.
type Options struct {
	ItemsPerKeyword int
	MaxKeywords     int
	OnProgress      ProgressFunc
	Tracker         *progress.Tracker
}

// Pipeline wires the analysis stages together. Stages degrade individually;
// only synthesis and storage failures abort a run.
type Pipeline struct {
	collector *collect.Collector
	filter    *relevance.Filter
	clusterer *cluster.Clusterer
	synth     *report.Synthesizer
	gen       llm.Generator
	store     ReportStore
	opts      Options
}

// New assembles a pipeline. store may be nil to skip persistence.
func New(collector *collect.Collector, filter *relevance.Filter, clusterer *cluster.Clusterer, synth *report.Synthesizer, gen llm.Generator, store ReportStore, opts Options) *Pipeline {
	if opts.ItemsPerKeyword <= 0 {
		opts.ItemsPerKeyword = 15
	}
	if opts.MaxKeywords <= 0 {
		opts.MaxKeywords = 10
	}
	return &Pipeline{
		collector: collector,
		filter:    filter,
		clusterer: clusterer,
		synth:     synth,
		gen:       gen,
		store:     store,
		opts:      opts,
	}
}

// RunAnalysis executes the full pipeline for the query. The terminal state
// always carries a report: an AnalysisResult is returned alongside any error
// except a synthesis failure, where no report exists at all.
func (p *Pipeline) RunAnalysis(ctx context.Context, req Request) (*core.AnalysisResult, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if req.Length == "" {
		req.Length = core.LengthModerate
	}
	for _, src := range req.Sources {
		if src != "reddit" {
			logger.Warn("unsupported source ignored", "source", src)
		}
	}

	logger.Info("analysis started", "query", req.Query, "length", string(req.Length))

	// COLLECTING
	p.transition(req.SessionID, StageCollecting, "expanding keywords")
	keywords := llm.ExpandKeywords(ctx, p.gen, req.Query)
	if len(keywords) > p.opts.MaxKeywords {
		keywords = keywords[:p.opts.MaxKeywords]
	}
	logger.Info("keywords expanded", "count", len(keywords))

	collected := p.collector.Collect(ctx, keywords, p.opts.ItemsPerKeyword, req.TimeFilter)
	collected = collect.Dedupe(collected)
	logger.Info("collection finished", "items", len(collected))

	// FILTERING
	p.transition(req.SessionID, StageFiltering, "scoring relevance")
	filtered := p.filter.Filter(ctx, collected, req.Query, keywords[1:])

	// CLUSTERING
	p.transition(req.SessionID, StageClustering, "extracting topics")
	clustered := p.clusterer.Cluster(ctx, filtered, req.Query)

	// SYNTHESIZING
	p.transition(req.SessionID, StageSynthesizing, "writing report")
	rpt, err := p.synth.Synthesize(ctx, req.Query, clustered.Clusters, clustered.Statistics, req.Length)
	if err != nil {
		return nil, err
	}

	// Raw marker-bearing sections are kept so a repair pass can remap
	// citations from scratch with stable numbering.
	rawSections := cloneSections(rpt.Sections)

	// CITATION_MAPPING
	p.transition(req.SessionID, StageCitationMapping, "mapping citations")
	p.applyCitations(rpt, filtered)

	// QUALITY_CHECK
	p.transition(req.SessionID, StageQualityCheck, "checking quality")
	metrics := quality.Evaluate(rpt.Sections)

	// REPAIRING runs at most once. Whatever it leaves behind ships.
	if quality.NeedsRepair(metrics) {
		p.transition(req.SessionID, StageRepairing, "repairing weak sections")

		rpt.Sections = rawSections
		missing := quality.CheckCompleteness(rpt.Sections).Missing
		if len(missing) == 0 {
			// Low consistency with nothing absent: regenerate the weak pair.
			missing = []core.SectionName{core.SectionSummary, core.SectionConclusion}
		}
		if err := p.synth.RepairSections(ctx, rpt, missing, clustered.Clusters); err != nil {
			logger.Warn("repair pass failed, shipping report as-is", "error", err.Error())
		}
		p.applyCitations(rpt, filtered)

		metrics = quality.Evaluate(rpt.Sections)
		metrics.Repaired = true
	}
	rpt.QualityMetrics = metrics

	// DONE
	p.transition(req.SessionID, StageDone, "report ready")

	result := &core.AnalysisResult{
		ReportID:       rpt.ID,
		Summary:        rpt.Summary,
		FullReportText: rpt.FullText,
		Footnotes:      rpt.Footnotes,
		QualityMetrics: rpt.QualityMetrics,
		Collected:      len(collected),
		Filtered:       len(filtered),
		ClusterCount:   len(clustered.Clusters),
	}

	if p.store != nil {
		if err := p.store.SaveReport(rpt); err != nil {
			// The finished report still goes back to the caller.
			return result, fmt.Errorf("%w: %v", core.ErrStorageFailed, err)
		}
	}

	logger.Info("analysis finished",
		"report_id", rpt.ID,
		"collected", result.Collected,
		"filtered", result.Filtered,
		"clusters", result.ClusterCount,
		"quality", fmt.Sprintf("%.2f", metrics.QualityScore))
	return result, nil
}

// applyCitations maps the report's inline markers to numbered footnotes.
// Numbering follows first occurrence in canonical section order, so mapping
// the same sections twice yields identical results.
func (p *Pipeline) applyCitations(rpt *core.Report, items []core.ContentItem) {
	body := report.Render(rpt, "")
	_, footnotes := citations.Map(body, items)

	for name, text := range rpt.Sections {
		rpt.Sections[name] = citations.Apply(text, footnotes)
	}
	rpt.Footnotes = footnotes
	rpt.FullText = report.Render(rpt, citations.RenderReferences(footnotes))
	rpt.Summary = report.ExtractSummary(rpt.Sections[core.SectionSummary])
}

// transition reports a state change to the callback and the tracker.
func (p *Pipeline) transition(sessionID, stage, message string) {
	percent := stagePercent[stage]
	logger.Debug("stage transition", "stage", stage, "percent", percent)

	if p.opts.OnProgress != nil {
		p.opts.OnProgress(stage, percent)
	}
	if p.opts.Tracker != nil && sessionID != "" {
		p.opts.Tracker.Report(sessionID, stage, percent, message)
	}
}

func cloneSections(sections map[core.SectionName]string) map[core.SectionName]string {
	clone := make(map[core.SectionName]string, len(sections))
	for name, text := range sections {
		clone[name] = text
	}
	return clone
}
