package core

import "time"

// ContentKind distinguishes posts from comments pulled off the platform.
type ContentKind string

const (
	KindPost    ContentKind = "post"
	KindComment ContentKind = "comment"
)

// ContentItem represents a single post or comment collected from the platform.
// The ID is platform-stable and serves as both the dedup key and the citation key.
type ContentItem struct {
	ID               string      `json:"id"`                // Platform-stable identifier
	Kind             ContentKind `json:"kind"`              // post or comment
	Title            string      `json:"title,omitempty"`   // Empty for comments
	Body             string      `json:"body"`              // Selftext or comment body
	Score            int         `json:"score"`             // Raw platform score (upvotes)
	CommentCount     int         `json:"comment_count"`     // Number of replies
	CreatedAt        time.Time   `json:"created_at"`        // Creation time on the platform
	Author           string      `json:"author"`            // Author handle
	CommunityID      string      `json:"community_id"`      // Subreddit-like community name
	URL              string      `json:"url"`               // Permalink
	UpvoteRatio      float64     `json:"upvote_ratio"`      // Approval ratio (0-1), 0.5 when unknown
	CollectionVector string      `json:"collection_vector"` // Name of the vector that collected it
	KeywordSource    string      `json:"keyword_source"`    // Keyword whose search surfaced it
	RumorScore       float64     `json:"rumor_score"`       // Heuristic 0-10 soft signal
	LinguisticFlags  []string    `json:"linguistic_flags"`  // speculation, negative_emotion, informal
	RelevanceScore   float64     `json:"relevance_score"`   // Set by the relevance filter (0-10)
	RelevanceReason  string      `json:"relevance_reason"`  // Judge's one-line justification
	Backfilled       bool        `json:"backfilled"`        // True when added to meet the quality floor
	ClusterID        int         `json:"cluster_id"`        // Set by the clusterer, -1 when unassigned
}

// CollectionVector is a named sampling strategy used to diversify collection.
type CollectionVector struct {
	Name       string `json:"name"`        // e.g. "zeitgeist", "underground", "vanguard"
	SortOrder  string `json:"sort_order"`  // Platform sort: hot, controversial, new
	TimeWindow string `json:"time_window"` // Platform time filter: hour, day, week, month, year, all
	Limit      int    `json:"limit"`       // Item cap for this vector
}

// Topic is a theme extracted once per analysis run. Never mutated after creation.
type Topic struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// Cluster groups items under one topic. Items are references into the
// deduplicated set, not copies.
type Cluster struct {
	Topic            Topic          `json:"topic"`
	Items            []*ContentItem `json:"items"`
	AverageRelevance float64        `json:"average_relevance"`
}

// ClusterDistribution records per-cluster observability numbers.
type ClusterDistribution struct {
	Count            int     `json:"count"`
	Percentage       float64 `json:"percentage"`
	AverageRelevance float64 `json:"average_relevance"`
}

// ClusterStatistics summarizes a clustering run.
type ClusterStatistics struct {
	TotalItems         int                            `json:"total_items"`
	TotalClustered     int                            `json:"total_clustered"`
	TotalUnclustered   int                            `json:"total_unclustered"`
	NumClusters        int                            `json:"num_clusters"`
	AverageClusterSize float64                        `json:"average_cluster_size"`
	Distribution       map[string]ClusterDistribution `json:"distribution"`
}

// FootnoteEntry links a numeric reference in the report text to the source
// item's metadata. Created exactly once per distinct cited source; immutable
// after creation.
type FootnoteEntry struct {
	FootnoteNumber   int       `json:"footnote_number"` // 1-based, first-occurrence order
	SourceItemID     string    `json:"source_item_id"`
	URL              string    `json:"url"`
	Title            string    `json:"title"`
	Score            int       `json:"score"`
	CommentCount     int       `json:"comment_count"`
	CreatedAt        time.Time `json:"created_at"`
	CommunityID      string    `json:"community_id"`
	Author           string    `json:"author"`
	PositionInReport int       `json:"position_in_report"`
}

// SectionName identifies one of the five required report sections.
type SectionName string

const (
	SectionSummary    SectionName = "summary"
	SectionTopics     SectionName = "topic_analysis"
	SectionSentiment  SectionName = "sentiment_analysis"
	SectionInsights   SectionName = "insights"
	SectionConclusion SectionName = "conclusion"
)

// RequiredSections lists the sections every report must carry, in render order.
func RequiredSections() []SectionName {
	return []SectionName{
		SectionSummary,
		SectionTopics,
		SectionSentiment,
		SectionInsights,
		SectionConclusion,
	}
}

// QualityMetrics captures the orchestrator's quality-check signals.
type QualityMetrics struct {
	ConsistencyScore  float64  `json:"consistency_score"`  // Summary/conclusion lexical overlap (0-1)
	CompletenessRatio float64  `json:"completeness_ratio"` // Non-empty sections / required sections
	MissingSections   []string `json:"missing_sections,omitempty"`
	QualityScore      float64  `json:"quality_score"` // Composite 0-1
	Repaired          bool     `json:"repaired"`      // True when the repair pass ran
}

// Report is the assembled analysis output. Built by the synthesizer, revised
// in place by the repair pass, frozen and persisted at the end of the run.
type Report struct {
	ID             string                 `json:"id"`
	Query          string                 `json:"query"`
	Sections       map[SectionName]string `json:"sections"`
	FullText       string                 `json:"full_text"` // Rendered sections plus References
	Summary        string                 `json:"summary"`   // Short extract of the summary section
	Footnotes      []FootnoteEntry        `json:"footnotes"`
	QualityMetrics QualityMetrics         `json:"quality_metrics"`
	GeneratedAt    time.Time              `json:"generated_at"`
	ModelUsed      string                 `json:"model_used"`
}

// ReportLength controls target section depth for synthesis.
type ReportLength string

const (
	LengthSimple   ReportLength = "simple"
	LengthModerate ReportLength = "moderate"
	LengthDetailed ReportLength = "detailed"
)

// AnalysisResult is what RunAnalysis hands back to the caller.
type AnalysisResult struct {
	ReportID       string          `json:"report_id"`
	Summary        string          `json:"summary"`
	FullReportText string          `json:"full_report_text"`
	Footnotes      []FootnoteEntry `json:"footnotes"`
	QualityMetrics QualityMetrics  `json:"quality_metrics"`
	Collected      int             `json:"collected"`
	Filtered       int             `json:"filtered"`
	ClusterCount   int             `json:"cluster_count"`
}
