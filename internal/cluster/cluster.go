// Package cluster groups filtered content into a small set of topics
// extracted per analysis run.
package cluster

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
	// DefaultMinClusterSize is the smallest group that stands alone;
	// smaller groups are pooled into the miscellaneous cluster.
	DefaultMinClusterSize = 3
	// DefaultMaxClusters caps the number of topics.
	DefaultMaxClusters = 7
	// DefaultSampleSize bounds the topic-extraction sample.
	DefaultSampleSize = 30
	// DefaultAssignBatch bounds a single classification prompt.
	DefaultAssignBatch = 20

	// MiscClusterName labels the synthetic cluster for pooled leftovers.
	MiscClusterName = "miscellaneous"
)

// fallbackTopics keep downstream code from ever facing an empty topic set.
var fallbackTopics = []core.Topic{
	{Name: "general discussion", Description: "General discussion not tied to a specific theme", Keywords: []string{"general", "discussion"}},
	{Name: "other opinions", Description: "Assorted personal opinions and experiences", Keywords: []string{"opinion", "experience"}},
}

// Options configures a Clusterer.
type Options struct {
	MinClusterSize int
	MaxClusters    int
	SampleSize     int
	AssignBatch    int
}

// DefaultOptions returns the production clustering parameters.
func DefaultOptions() Options {
	return Options{
		MinClusterSize: DefaultMinClusterSize,
		MaxClusters:    DefaultMaxClusters,
		SampleSize:     DefaultSampleSize,
		AssignBatch:    DefaultAssignBatch,
	}
}

// Clusterer extracts topics from a sample and assigns every item to one.
type Clusterer struct {
	gen  llm.Generator
	opts Options
}

// NewClusterer creates a clusterer.
func NewClusterer(gen llm.Generator, opts Options) *Clusterer {
	if opts.MinClusterSize <= 0 {
		opts.MinClusterSize = DefaultMinClusterSize
	}
	if opts.MaxClusters < 3 {
		opts.MaxClusters = DefaultMaxClusters
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultSampleSize
	}
	if opts.AssignBatch <= 0 {
		opts.AssignBatch = DefaultAssignBatch
	}
	return &Clusterer{gen: gen, opts: opts}
}

// Result is the outcome of one clustering run.
type Result struct {
	Clusters    []core.Cluster
	Unclustered []*core.ContentItem
	Statistics  core.ClusterStatistics
}

// Cluster groups the items by topic. Items end up in exactly one cluster:
// assignments with no fit and members of undersized clusters are pooled into
// the miscellaneous cluster rather than dropped. Final clusters are sorted by
// descending size. Items are mutated in place: ClusterID is set to the index
// of the item's final cluster.
func (c *Clusterer) Cluster(ctx context.Context, items []core.ContentItem, query string) Result {
	if len(items) == 0 {
		logger.Warn("no content to cluster")
		return Result{Statistics: core.ClusterStatistics{Distribution: map[string]core.ClusterDistribution{}}}
	}

	logger.Info("clustering started", "items", len(items), "query", query)

	topics := c.extractTopics(ctx, items, query)
	logger.Info("topics extracted", "count", len(topics))

	assignments := c.assignAll(ctx, items, topics)

	clusters := c.optimize(items, topics, assignments)

	for ci := range clusters {
		for _, item := range clusters[ci].Items {
			item.ClusterID = ci
		}
	}

	stats := statistics(clusters, len(items))
	logger.Info("clustering finished",
		"clusters", stats.NumClusters, "clustered", stats.TotalClustered)

	return Result{Clusters: clusters, Unclustered: nil, Statistics: stats}
}

// extractTopics asks the model for 5-7 distinct topics from the
// highest-relevance sample. Any failure degrades to the fallback topics; the
// pipeline never sees an empty topic set.
func (c *Clusterer) extractTopics(ctx context.Context, items []core.ContentItem, query string) []core.Topic {
	sample := make([]core.ContentItem, len(items))
	copy(sample, items)
	sort.SliceStable(sample, func(i, j int) bool { return sample[i].RelevanceScore > sample[j].RelevanceScore })
	if len(sample) > c.opts.SampleSize {
		sample = sample[:c.opts.SampleSize]
	}

	prompt := buildTopicPrompt(sample, query)

	var topics []core.Topic
	response, err := c.gen.Generate(ctx, prompt, llm.Options{Temperature: 0.3})
	if err != nil {
		logger.Warn("topic extraction call failed, using fallback topics", "error", err.Error())
	} else {
		parsed := llm.ParseJSON[[]core.Topic](response)
		if parsed.Malformed {
			logger.Warn("topic list unparsable, using fallback topics")
		} else {
			for _, t := range parsed.Value {
				if t.Name != "" && t.Description != "" {
					topics = append(topics, t)
				}
			}
		}
	}

	if len(topics) < 3 {
		topics = append(topics, fallbackTopics...)
	}
	if len(topics) > c.opts.MaxClusters {
		topics = topics[:c.opts.MaxClusters]
	}
	return topics
}

// assignAll classifies every item against the topic list, batch by batch,
// returning one topic index (or -1 for no fit) per item in input order.
func (c *Clusterer) assignAll(ctx context.Context, items []core.ContentItem, topics []core.Topic) []int {
	assignments := make([]int, 0, len(items))

	for start := 0; start < len(items); start += c.opts.AssignBatch {
		end := start + c.opts.AssignBatch
		if end > len(items) {
			end = len(items)
		}
		assignments = append(assignments, c.assignBatch(ctx, items[start:end], topics)...)
	}
	return assignments
}

// assignBatch classifies one batch in a single call. Malformed output never
// stops assignment: a short response is padded with index 0, a long one is
// truncated, and any non-integer or out-of-range value defaults to 0.
func (c *Clusterer) assignBatch(ctx context.Context, batch []core.ContentItem, topics []core.Topic) []int {
	prompt := buildAssignPrompt(batch, topics)

	response, err := c.gen.Generate(ctx, prompt, llm.Options{Temperature: 0.2})
	if err != nil {
		logger.Warn("assignment call failed, defaulting batch to first topic", "batch", len(batch), "error", err.Error())
		return zeros(len(batch))
	}

	parsed := llm.ParseJSON[[]int](response)
	if parsed.Malformed {
		logger.Warn("assignment output unparsable, defaulting batch to first topic")
		return zeros(len(batch))
	}

	assignments := parsed.Value
	for len(assignments) < len(batch) {
		assignments = append(assignments, 0)
	}
	assignments = assignments[:len(batch)]

	for i, a := range assignments {
		if a < -1 || a >= len(topics) {
			assignments[i] = 0
		}
	}
	return assignments
}

// optimize builds the final cluster list: groups at or above the minimum
// size stand alone; everything else, including no-fit items, pools into the
// miscellaneous cluster. No item is lost. Clusters are sorted by size.
func (c *Clusterer) optimize(items []core.ContentItem, topics []core.Topic, assignments []int) []core.Cluster {
	buckets := make([][]*core.ContentItem, len(topics))
	var orphans []*core.ContentItem

	for i := range items {
		a := assignments[i]
		if a == -1 {
			orphans = append(orphans, &items[i])
			continue
		}
		buckets[a] = append(buckets[a], &items[i])
	}

	var clusters []core.Cluster
	for ti, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		if len(bucket) < c.opts.MinClusterSize {
			orphans = append(orphans, bucket...)
			continue
		}
		clusters = append(clusters, core.Cluster{
			Topic:            topics[ti],
			Items:            bucket,
			AverageRelevance: averageRelevance(bucket),
		})
	}

	if len(orphans) > 0 {
		clusters = append(clusters, core.Cluster{
			Topic: core.Topic{
				Name:        MiscClusterName,
				Description: "Related content that did not fit a larger theme",
			},
			Items:            orphans,
			AverageRelevance: averageRelevance(orphans),
		})
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return len(clusters[i].Items) > len(clusters[j].Items)
	})
	return clusters
}

// statistics records totals and per-cluster size, share, and average relevance.
func statistics(clusters []core.Cluster, totalItems int) core.ClusterStatistics {
	stats := core.ClusterStatistics{
		TotalItems:   totalItems,
		NumClusters:  len(clusters),
		Distribution: make(map[string]core.ClusterDistribution, len(clusters)),
	}

	for _, cl := range clusters {
		stats.TotalClustered += len(cl.Items)
		dist := core.ClusterDistribution{
			Count:            len(cl.Items),
			AverageRelevance: cl.AverageRelevance,
		}
		if totalItems > 0 {
			dist.Percentage = float64(len(cl.Items)) / float64(totalItems) * 100
		}
		stats.Distribution[cl.Topic.Name] = dist
	}

	stats.TotalUnclustered = totalItems - stats.TotalClustered
	if stats.NumClusters > 0 {
		stats.AverageClusterSize = float64(stats.TotalClustered) / float64(stats.NumClusters)
	}
	return stats
}

func buildTopicPrompt(sample []core.ContentItem, query string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The following high-quality content was collected for the keyword %q.\n\n", query)

	for i, item := range sample {
		title := item.Title
		if item.Kind == core.KindComment {
			title = "comment"
		}
		fmt.Fprintf(&b, "[%d] %s\n%s\nRelevance: %.1f/10\n\n", i+1, title, prefix(item.Body, 200), item.RelevanceScore)
	}

	b.WriteString(`Analyze this content and extract the main topics.

Requirements:
1. Extract 5-7 clear, mutually distinct topics
2. Each topic must appear across several content items
3. Neither too broad nor too narrow
4. Include a short description per topic

Respond in JSON only:
[
    {
        "name": "topic name (2-4 words)",
        "description": "one-sentence description",
        "keywords": ["three", "to", "five", "keywords"]
    }
]`)
	return b.String()
}

func buildAssignPrompt(batch []core.ContentItem, topics []core.Topic) string {
	var b strings.Builder
	b.WriteString("Assign each content item to the most fitting topic.\n\nTopics:\n")
	for i, t := range topics {
		fmt.Fprintf(&b, "[%d] %s: %s\n", i, t.Name, t.Description)
	}

	b.WriteString("\nContent:\n")
	for i, item := range batch {
		title := item.Title
		if item.Kind == core.KindComment {
			title = "comment"
		}
		fmt.Fprintf(&b, "[%d] %s\n%s\n", i, title, prefix(item.Body, 150))
	}

	b.WriteString(`
For each content item, answer with the number of the best topic.
If no topic fits, answer -1.

Respond with a JSON array only, in content order:
[0, 2, 1, -1, 0]`)
	return b.String()
}

func averageRelevance(items []*core.ContentItem) float64 {
	if len(items) == 0 {
		return 0
	}
	total := 0.0
	for _, item := range items {
		total += item.RelevanceScore
	}
	return total / float64(len(items))
}

func zeros(n int) []int {
	return make([]int, n)
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
