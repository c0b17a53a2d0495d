package cluster

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pulse/internal/core"
	"pulse/internal/llm"
)

// scriptedClusterer answers the topic-extraction prompt with topicResponse
// and each assignment prompt with the next entry of assignResponses.
type scriptedClusterer struct {
	topicResponse   string
	topicErr        error
	assignResponses []string
	assignErr       error
	assignCalls     int
}

func (s *scriptedClusterer) Generate(_ context.Context, prompt string, _ llm.Options) (string, error) {
	if strings.Contains(prompt, "extract the main topics") {
		return s.topicResponse, s.topicErr
	}
	if s.assignErr != nil {
		return "", s.assignErr
	}
	i := s.assignCalls
	s.assignCalls++
	if i < len(s.assignResponses) {
		return s.assignResponses[i], nil
	}
	return "[]", nil
}

const threeTopics = `[
	{"name": "pricing complaints", "description": "Complaints about cost", "keywords": ["price", "cost"]},
	{"name": "feature requests", "description": "Requested improvements", "keywords": ["feature", "request"]},
	{"name": "success stories", "description": "Positive experiences", "keywords": ["love", "works"]}
]`

func makeClusterItems(n int) []core.ContentItem {
	items := make([]core.ContentItem, n)
	for i := range items {
		items[i] = core.ContentItem{
			ID:             "t3_item" + string(rune('a'+i)),
			Kind:           core.KindPost,
			Title:          "post",
			Body:           "body",
			RelevanceScore: float64(i%10) + 0.5,
			ClusterID:      -1,
		}
	}
	return items
}

func countClustered(clusters []core.Cluster) int {
	total := 0
	for _, c := range clusters {
		total += len(c.Items)
	}
	return total
}

func TestClusterCompleteness(t *testing.T) {
	// 10 items: 4 to topic 0, 4 to topic 1, one to topic 2 (undersized),
	// one no-fit. The last two must pool into miscellaneous.
	gen := &scriptedClusterer{
		topicResponse:   threeTopics,
		assignResponses: []string{"[0, 0, 0, 0, 1, 1, 1, 1, 2, -1]"},
	}
	items := makeClusterItems(10)

	result := NewClusterer(gen, DefaultOptions()).Cluster(context.Background(), items, "widget")

	if got := countClustered(result.Clusters); got != len(items) {
		t.Fatalf("clustered %d items, want all %d", got, len(items))
	}

	seen := map[string]int{}
	for _, c := range result.Clusters {
		for _, item := range c.Items {
			seen[item.ID]++
		}
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("item %s appears in %d clusters, want exactly 1", id, n)
		}
	}

	last := result.Clusters[len(result.Clusters)-1]
	if last.Topic.Name != MiscClusterName {
		t.Fatalf("expected trailing %s cluster, got %q", MiscClusterName, last.Topic.Name)
	}
	if len(last.Items) != 2 {
		t.Errorf("miscellaneous holds %d items, want 2", len(last.Items))
	}
}

func TestClusterSortedBySize(t *testing.T) {
	gen := &scriptedClusterer{
		topicResponse:   threeTopics,
		assignResponses: []string{"[1, 1, 1, 1, 1, 0, 0, 0, 2, 2]"},
	}
	items := makeClusterItems(10)

	result := NewClusterer(gen, DefaultOptions()).Cluster(context.Background(), items, "widget")

	for i := 1; i < len(result.Clusters); i++ {
		if len(result.Clusters[i].Items) > len(result.Clusters[i-1].Items) {
			t.Fatalf("clusters not sorted by descending size: %d before %d",
				len(result.Clusters[i-1].Items), len(result.Clusters[i].Items))
		}
	}
	if result.Clusters[0].Topic.Name != "feature requests" {
		t.Errorf("largest cluster is %q, want feature requests", result.Clusters[0].Topic.Name)
	}
}

func TestClusterIDsAssigned(t *testing.T) {
	gen := &scriptedClusterer{
		topicResponse:   threeTopics,
		assignResponses: []string{"[0, 0, 0, 1, 1, 1]"},
	}
	items := makeClusterItems(6)

	result := NewClusterer(gen, DefaultOptions()).Cluster(context.Background(), items, "widget")

	for ci, c := range result.Clusters {
		for _, item := range c.Items {
			if item.ClusterID != ci {
				t.Errorf("item %s has ClusterID %d, want %d", item.ID, item.ClusterID, ci)
			}
		}
	}
	for i := range items {
		if items[i].ClusterID == -1 {
			t.Errorf("item %s left with ClusterID -1", items[i].ID)
		}
	}
}

func TestAssignmentPositionalDefaulting(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []int
	}{
		{"short response padded", "[1, 2]", []int{1, 2, 0, 0, 0}},
		{"long response truncated", "[1, 2, 0, 1, 2, 0, 1]", []int{1, 2, 0, 1, 2}},
		{"out of range defaults", "[1, 9, -5, 2, 0]", []int{1, 0, 0, 2, 0}},
		{"no fit preserved", "[-1, -1, 0, 1, 2]", []int{-1, -1, 0, 1, 2}},
		{"unparsable defaults all", "sorry, I cannot help", []int{0, 0, 0, 0, 0}},
	}

	topics := []core.Topic{
		{Name: "a", Description: "a"},
		{Name: "b", Description: "b"},
		{Name: "c", Description: "c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedClusterer{assignResponses: []string{tt.response}}
			c := NewClusterer(gen, DefaultOptions())

			got := c.assignBatch(context.Background(), makeClusterItems(5), topics)

			if len(got) != len(tt.want) {
				t.Fatalf("got %d assignments, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("assignment[%d] = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestAssignmentCallFailure(t *testing.T) {
	gen := &scriptedClusterer{assignErr: errors.New("quota exhausted")}
	c := NewClusterer(gen, DefaultOptions())

	got := c.assignBatch(context.Background(), makeClusterItems(4), fallbackTopics)
	for i, a := range got {
		if a != 0 {
			t.Errorf("assignment[%d] = %d, want default 0", i, a)
		}
	}
}

func TestFallbackTopicsOnExtractionFailure(t *testing.T) {
	tests := []struct {
		name string
		gen  *scriptedClusterer
	}{
		{"call error", &scriptedClusterer{topicErr: errors.New("timeout")}},
		{"unparsable output", &scriptedClusterer{topicResponse: "no json here"}},
		{"too few topics", &scriptedClusterer{topicResponse: `[{"name": "only one", "description": "d"}]`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClusterer(tt.gen, DefaultOptions())
			topics := c.extractTopics(context.Background(), makeClusterItems(5), "widget")

			if len(topics) < 3 {
				t.Fatalf("got %d topics, want at least 3", len(topics))
			}
			names := map[string]bool{}
			for _, topic := range topics {
				names[topic.Name] = true
			}
			if !names["general discussion"] || !names["other opinions"] {
				t.Errorf("fallback topics missing from %v", names)
			}
		})
	}
}

func TestTopicCapAtMaxClusters(t *testing.T) {
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < 10; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"name": "topic ` + string(rune('a'+i)) + `", "description": "d"}`)
	}
	b.WriteString("]")

	gen := &scriptedClusterer{topicResponse: b.String()}
	c := NewClusterer(gen, DefaultOptions())

	topics := c.extractTopics(context.Background(), makeClusterItems(5), "widget")
	if len(topics) != DefaultMaxClusters {
		t.Fatalf("got %d topics, want cap of %d", len(topics), DefaultMaxClusters)
	}
}

func TestAssignmentBatching(t *testing.T) {
	gen := &scriptedClusterer{
		topicResponse: threeTopics,
		assignResponses: []string{
			"[0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0]",
			"[1, 1, 1, 1, 1]",
		},
	}
	items := makeClusterItems(25)

	result := NewClusterer(gen, DefaultOptions()).Cluster(context.Background(), items, "widget")

	if gen.assignCalls != 2 {
		t.Fatalf("25 items took %d assignment calls, want 2", gen.assignCalls)
	}
	if got := countClustered(result.Clusters); got != 25 {
		t.Errorf("clustered %d items, want 25", got)
	}
}

func TestClusterStatistics(t *testing.T) {
	gen := &scriptedClusterer{
		topicResponse:   threeTopics,
		assignResponses: []string{"[0, 0, 0, 0, 0, 0, 1, 1, 1, 1]"},
	}
	items := makeClusterItems(10)

	result := NewClusterer(gen, DefaultOptions()).Cluster(context.Background(), items, "widget")
	stats := result.Statistics

	if stats.TotalItems != 10 || stats.TotalClustered != 10 || stats.TotalUnclustered != 0 {
		t.Errorf("totals = %d/%d/%d, want 10/10/0",
			stats.TotalItems, stats.TotalClustered, stats.TotalUnclustered)
	}
	if stats.NumClusters != 2 {
		t.Fatalf("NumClusters = %d, want 2", stats.NumClusters)
	}
	dist, ok := stats.Distribution["pricing complaints"]
	if !ok {
		t.Fatal("missing distribution entry for pricing complaints")
	}
	if dist.Count != 6 || dist.Percentage != 60 {
		t.Errorf("pricing complaints distribution = %d items %.0f%%, want 6 items 60%%", dist.Count, dist.Percentage)
	}
}

func TestClusterEmptyInput(t *testing.T) {
	gen := &scriptedClusterer{topicResponse: threeTopics}

	result := NewClusterer(gen, DefaultOptions()).Cluster(context.Background(), nil, "widget")

	if len(result.Clusters) != 0 {
		t.Errorf("got %d clusters for empty input, want 0", len(result.Clusters))
	}
	if result.Statistics.TotalItems != 0 {
		t.Errorf("TotalItems = %d, want 0", result.Statistics.TotalItems)
	}
}
