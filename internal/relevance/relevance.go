// Package relevance scores collected content against the query with an LLM
// judge and keeps only what clears the relevance threshold, subject to a
// minimum-quality floor.
package relevance

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"pulse/internal/core"
	"pulse/internal/llm"
	"pulse/internal/logger"
)

const (
	// DefaultThreshold is the minimum judge score (out of 10) to pass.
	DefaultThreshold = 6.0
	// DefaultMinHighQuality is the floor on returned items, met via backfill.
	DefaultMinHighQuality = 10
	// DefaultMaxContentItems caps how many items get judged at all.
	DefaultMaxContentItems = 50
	// DefaultBatchSize bounds single-prompt size.
	DefaultBatchSize = 10

	// NeutralScore is assigned to a whole batch when the judge call fails
	// or returns unparsable output. Availability over precision.
	NeutralScore = 5.0

	backfillReason = "added to meet the minimum quality floor"
	neutralReason  = "judge unavailable, neutral default"
)

// Options configures a Filter.
type Options struct {
	Threshold       float64
	MinHighQuality  int
	MaxContentItems int
	BatchSize       int
}

// DefaultOptions returns the production thresholds.
func DefaultOptions() Options {
	return Options{
		Threshold:       DefaultThreshold,
		MinHighQuality:  DefaultMinHighQuality,
		MaxContentItems: DefaultMaxContentItems,
		BatchSize:       DefaultBatchSize,
	}
}

// Filter runs the LLM relevance judge over content batches.
type Filter struct {
	gen  llm.Generator
	opts Options
}

// NewFilter creates a relevance filter.
func NewFilter(gen llm.Generator, opts Options) *Filter {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.MinHighQuality <= 0 {
		opts.MinHighQuality = DefaultMinHighQuality
	}
	if opts.MaxContentItems <= 0 {
		opts.MaxContentItems = DefaultMaxContentItems
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Filter{gen: gen, opts: opts}
}

// judgeScore is one entry of the judge's JSON response.
type judgeScore struct {
	ContentIndex   int     `json:"content_index"`
	RelevanceScore float64 `json:"relevance_score"`
	Reason         string  `json:"reason"`
}

// Filter scores items against the query, keeps those at or above the
// threshold, and backfills from the highest-scoring rejects (by raw platform
// score) until the minimum-quality floor is met or input is exhausted.
// Returned items carry RelevanceScore and RelevanceReason; backfilled items
// are flagged so downstream consumers can audit the substitution.
func (f *Filter) Filter(ctx context.Context, items []core.ContentItem, query string, expandedKeywords []string) []core.ContentItem {
	if len(items) == 0 {
		logger.Warn("no content to filter")
		return nil
	}

	logger.Info("relevance filtering started", "items", len(items), "query", query)

	// Cap the judged set by raw platform score to bound LLM spend.
	if len(items) > f.opts.MaxContentItems {
		capped := make([]core.ContentItem, len(items))
		copy(capped, items)
		sort.SliceStable(capped, func(i, j int) bool { return capped[i].Score > capped[j].Score })
		items = capped[:f.opts.MaxContentItems]
	}

	scored := f.scoreAll(ctx, items, query, expandedKeywords)

	var passed, rejected []core.ContentItem
	for _, item := range scored {
		if item.RelevanceScore >= f.opts.Threshold {
			passed = append(passed, item)
		} else {
			rejected = append(rejected, item)
		}
	}

	sort.SliceStable(passed, func(i, j int) bool {
		return passed[i].RelevanceScore > passed[j].RelevanceScore
	})

	result := f.backfill(passed, rejected)

	logger.Info("relevance filtering finished",
		"input", len(scored), "passed", len(passed), "returned", len(result),
		"avg_score", fmt.Sprintf("%.1f", averageScore(result)))

	return result
}

// scoreAll judges the items batch by batch.
func (f *Filter) scoreAll(ctx context.Context, items []core.ContentItem, query string, expandedKeywords []string) []core.ContentItem {
	scored := make([]core.ContentItem, 0, len(items))

	for start := 0; start < len(items); start += f.opts.BatchSize {
		end := start + f.opts.BatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := make([]core.ContentItem, end-start)
		copy(batch, items[start:end])

		f.scoreBatch(ctx, batch, query, expandedKeywords)
		scored = append(scored, batch...)
	}
	return scored
}

// scoreBatch mutates the batch in place with judge scores, falling back to
// the neutral default when the call fails or the output cannot be parsed.
func (f *Filter) scoreBatch(ctx context.Context, batch []core.ContentItem, query string, expandedKeywords []string) {
	prompt := buildJudgePrompt(batch, query, expandedKeywords)

	response, err := f.gen.Generate(ctx, prompt, llm.Options{
		SystemPrompt: "You are a strict relevance judge for community content.",
		Temperature:  0.3,
	})
	if err != nil {
		logger.Warn("judge call failed, assigning neutral scores", "batch", len(batch), "error", err.Error())
		assignNeutral(batch)
		return
	}

	parsed := llm.ParseJSON[[]judgeScore](response)
	if parsed.Malformed {
		logger.Warn("judge output unparsable, assigning neutral scores", "raw_prefix", prefix(parsed.Raw, 120))
		assignNeutral(batch)
		return
	}

	byIndex := make(map[int]judgeScore, len(parsed.Value))
	for _, s := range parsed.Value {
		byIndex[s.ContentIndex] = s
	}

	for i := range batch {
		if s, ok := byIndex[i+1]; ok {
			batch[i].RelevanceScore = clampScore(s.RelevanceScore)
			batch[i].RelevanceReason = s.Reason
		} else {
			batch[i].RelevanceScore = NeutralScore
			batch[i].RelevanceReason = neutralReason
		}
	}
}

// backfill tops up the passed set from the rejects, highest raw platform
// score first, tagging each addition distinctly.
func (f *Filter) backfill(passed, rejected []core.ContentItem) []core.ContentItem {
	if len(passed) >= f.opts.MinHighQuality {
		return passed
	}

	logger.Info("quality floor not met, backfilling",
		"passed", len(passed), "floor", f.opts.MinHighQuality)

	sort.SliceStable(rejected, func(i, j int) bool { return rejected[i].Score > rejected[j].Score })

	needed := f.opts.MinHighQuality - len(passed)
	for i := 0; i < needed && i < len(rejected); i++ {
		item := rejected[i]
		item.RelevanceScore = f.opts.Threshold + 0.1
		item.RelevanceReason = backfillReason
		item.Backfilled = true
		passed = append(passed, item)
	}
	return passed
}

// Stats summarizes a filtering run for observability.
type Stats struct {
	TotalCount       int     `json:"total_count"`
	HighQualityCount int     `json:"high_quality_count"` // score >= 8
	BackfilledCount  int     `json:"backfilled_count"`
	AverageScore     float64 `json:"average_score"`
}

// Summarize computes stats over a filtered result set.
func Summarize(items []core.ContentItem) Stats {
	stats := Stats{TotalCount: len(items)}
	for _, item := range items {
		if item.RelevanceScore >= 8.0 {
			stats.HighQualityCount++
		}
		if item.Backfilled {
			stats.BackfilledCount++
		}
	}
	stats.AverageScore = averageScore(items)
	return stats
}

func buildJudgePrompt(batch []core.ContentItem, query string, expandedKeywords []string) string {
	keywords := append([]string{query}, expandedKeywords...)
	if len(keywords) > 11 {
		keywords = keywords[:11]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The following content was collected for the keyword %q.\n\n", query)
	fmt.Fprintf(&b, "Related keywords: %s\n\nCollected content:\n", strings.Join(keywords, ", "))

	for i, item := range batch {
		title := item.Title
		if item.Kind == core.KindComment {
			title = "comment"
		}
		fmt.Fprintf(&b, "[%d] %s: %s\nContent: %s\nScore: %d\n---\n",
			i+1, strings.ToUpper(string(item.Kind)), title, prefix(item.Body, 300), item.Score)
	}

	b.WriteString(`
Rate each content item's relevance from 0 to 10:
- 9-10: directly and highly relevant (core content)
- 7-8: highly relevant (important content)
- 5-6: somewhat relevant (reference content)
- 3-4: only indirectly related (peripheral content)
- 0-2: barely related (irrelevant content)

Considerations:
- Concrete cases, firsthand experience, and data earn points
- Speculation and rumor lose points
- Pure emotional reaction with no substance loses points

Respond in JSON only:
[
    {"content_index": 1, "relevance_score": 8.5, "reason": "concrete case with data"},
    {"content_index": 2, "relevance_score": 6.0, "reason": "related but generic"}
]`)

	return b.String()
}

func assignNeutral(batch []core.ContentItem) {
	for i := range batch {
		batch[i].RelevanceScore = NeutralScore
		batch[i].RelevanceReason = neutralReason
	}
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}

func averageScore(items []core.ContentItem) float64 {
	if len(items) == 0 {
		return 0
	}
	total := 0.0
	for _, item := range items {
		total += item.RelevanceScore
	}
	return total / float64(len(items))
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
