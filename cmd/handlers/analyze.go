package handlers

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pulse/internal/cluster"
	"pulse/internal/collect"
	"pulse/internal/config"
	"pulse/internal/core"
	"pulse/internal/llm"
	"pulse/internal/pipeline"
	"pulse/internal/reddit"
	"pulse/internal/relevance"
	"pulse/internal/report"
	"pulse/internal/store"
)

// NewAnalyzeCmd creates the analyze command
func NewAnalyzeCmd() *cobra.Command {
	var length string
	var timeFilter string
	var noSave bool

	cmd := &cobra.Command{
		Use:   "analyze [query]",
		Short: "Collect, filter, and analyze discussion of a keyword",
		Long: `Run the full analysis pipeline for a keyword and print the report.

The report goes to stdout; progress and logs go to stderr, so the output
can be redirected to a file.

Examples:
  # Analyze with defaults
  pulse analyze "rust adoption"

  # A detailed report over the last week, not persisted
  pulse analyze "rust adoption" --length detailed --time week --no-save`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			analyzeRun(args[0], length, timeFilter, noSave)
		},
	}

	cmd.Flags().StringVarP(&length, "length", "l", "", "Report length: simple, moderate, or detailed")
	cmd.Flags().StringVarP(&timeFilter, "time", "t", "", "Time window: hour, day, week, month, year, or all")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Skip persisting the report")

	return cmd
}

func analyzeRun(query, length, timeFilter string, noSave bool) {
	cfg := config.Get()

	if length == "" {
		length = cfg.Report.DefaultLength
	}
	if timeFilter == "" {
		timeFilter = cfg.Collect.TimeFilter
	}

	client, err := llm.NewClient(cfg.AI.Gemini.Model, cfg.AI.Gemini.MaxConcurrent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create LLM client: %v\n", err)
		fmt.Fprintf(os.Stderr, "💡 Set GEMINI_API_KEY in the environment or .env\n")
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(cfg.Reddit.Timeout)
	if err != nil {
		timeout = 30 * time.Second
	}
	searcher := reddit.NewClient(cfg.Reddit.UserAgent,
		reddit.WithBaseURL(cfg.Reddit.BaseURL),
		reddit.WithTimeout(timeout),
	)

	collector := collect.NewCollector(searcher, collect.Options{
		CallsPerMinute:    cfg.Collect.CallsPerMinute,
		CommentsPerPost:   cfg.Collect.CommentsPerPost,
		TopPostsWithComms: cfg.Collect.TopPostsWithComms,
	})
	filter := relevance.NewFilter(client, relevance.Options{
		Threshold:       cfg.Filter.Threshold,
		MinHighQuality:  cfg.Filter.MinHighQuality,
		MaxContentItems: cfg.Filter.MaxContentItems,
		BatchSize:       cfg.Filter.BatchSize,
	})
	clusterer := cluster.NewClusterer(client, cluster.Options{
		MinClusterSize: cfg.Cluster.MinClusterSize,
		MaxClusters:    cfg.Cluster.MaxClusters,
		SampleSize:     cfg.Cluster.SampleSize,
		AssignBatch:    cfg.Cluster.AssignBatch,
	})
	synth := report.NewSynthesizer(client, cfg.AI.Gemini.Model)

	var reportStore pipeline.ReportStore
	if !noSave {
		s, err := store.NewStore(cfg.Store.Directory)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Failed to open report store: %v\n", err)
			os.Exit(1)
		}
		defer s.Close()
		reportStore = s
	}

	p := pipeline.New(collector, filter, clusterer, synth, client, reportStore, pipeline.Options{
		ItemsPerKeyword: cfg.Collect.ItemsPerKeyword,
		MaxKeywords:     cfg.Collect.MaxKeywords,
		OnProgress: func(stage string, percent int) {
			fmt.Fprintf(os.Stderr, "⏳ [%3d%%] %s\n", percent, stage)
		},
	})

	result, err := p.RunAnalysis(context.Background(), pipeline.Request{
		Query:      query,
		Sources:    []string{"reddit"},
		Length:     core.ReportLength(length),
		TimeFilter: timeFilter,
		SessionID:  uuid.NewString(),
	})
	if err != nil {
		if result == nil {
			fmt.Fprintf(os.Stderr, "❌ Analysis failed: %v\n", err)
			os.Exit(1)
		}
		// A storage failure still leaves a finished report to print.
		fmt.Fprintf(os.Stderr, "⚠️  %v\n", err)
	}

	fmt.Println(result.FullReportText)

	fmt.Fprintf(os.Stderr, "✅ Report %s: %d collected, %d filtered, %d topics, quality %.2f\n",
		result.ReportID, result.Collected, result.Filtered, result.ClusterCount,
		result.QualityMetrics.QualityScore)
	if result.QualityMetrics.Repaired {
		fmt.Fprintf(os.Stderr, "ℹ️  A repair pass ran; missing sections: %v\n",
			result.QualityMetrics.MissingSections)
	}
}
