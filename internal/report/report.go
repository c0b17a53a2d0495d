// Package report turns clustered content into the five-section analysis
// report, with inline source markers for the citation mapper.
package report

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"pulse/internal/core"
	"pulse/internal/llm"
	"pulse/internal/logger"
)

// itemsPerCluster bounds how many sources a cluster contributes to the prompt.
const itemsPerCluster = 5

// summaryExtractLen bounds the short summary stored alongside the report.
const summaryExtractLen = 300

var headingPattern = regexp.MustCompile(`(?m)^#{1,3}\s+(.+)$`)

// Synthesizer writes reports from clustered content.
type Synthesizer struct {
	gen   llm.Generator
	model string
}

// NewSynthesizer creates a synthesizer. model is recorded on each report.
func NewSynthesizer(gen llm.Generator, model string) *Synthesizer {
	return &Synthesizer{gen: gen, model: model}
}

// Synthesize generates a report for the query from the clustered content.
// Every factual claim in the generated text is expected to carry a
// [ref:ITEM_ID] marker naming its source; the citation mapper resolves those
// later. Failure to obtain any text at all is fatal to the run.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, clusters []core.Cluster, stats core.ClusterStatistics, length core.ReportLength) (*core.Report, error) {
	prompt := buildSynthesisPrompt(query, clusters, stats, length)

	logger.Info("synthesizing report", "query", query, "clusters", len(clusters), "length", string(length))

	text, err := s.gen.Generate(ctx, prompt, llm.Options{Temperature: 0.4, Model: s.model})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSynthesisFailed, err)
	}
	text = strings.TrimSpace(llm.StripCodeFences(text))
	if text == "" {
		return nil, fmt.Errorf("%w: model returned empty text", core.ErrSynthesisFailed)
	}

	sections := ParseSections(text)

	report := &core.Report{
		ID:          uuid.NewString(),
		Query:       query,
		Sections:    sections,
		FullText:    text,
		Summary:     ExtractSummary(sections[core.SectionSummary]),
		GeneratedAt: time.Now().UTC(),
		ModelUsed:   s.model,
	}
	return report, nil
}

// RepairSections regenerates only the named missing sections and merges them
// into the report. A section the model still fails to produce stays empty;
// there is no second repair attempt.
func (s *Synthesizer) RepairSections(ctx context.Context, report *core.Report, missing []core.SectionName, clusters []core.Cluster) error {
	if len(missing) == 0 {
		return nil
	}

	logger.Info("repairing report sections", "report_id", report.ID, "missing", len(missing))

	prompt := buildRepairPrompt(report.Query, report, missing, clusters)
	text, err := s.gen.Generate(ctx, prompt, llm.Options{Temperature: 0.4, Model: s.model})
	if err != nil {
		return fmt.Errorf("repair generation: %w", err)
	}

	repaired := ParseSections(strings.TrimSpace(llm.StripCodeFences(text)))
	merged := 0
	for _, name := range missing {
		if body, ok := repaired[name]; ok && strings.TrimSpace(body) != "" {
			report.Sections[name] = body
			merged++
		}
	}
	logger.Info("repair merged sections", "report_id", report.ID, "merged", merged, "requested", len(missing))

	if report.Sections[core.SectionSummary] != "" {
		report.Summary = ExtractSummary(report.Sections[core.SectionSummary])
	}
	return nil
}

// sectionTitles maps each required section to its rendered heading.
var sectionTitles = map[core.SectionName]string{
	core.SectionSummary:    "Summary",
	core.SectionTopics:     "Topic Analysis",
	core.SectionSentiment:  "Sentiment Analysis",
	core.SectionInsights:   "Insights",
	core.SectionConclusion: "Conclusion",
}

// Render assembles the final report body from its sections in canonical
// order, skipping empty ones, and appends the references block when present.
func Render(report *core.Report, references string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Analysis: %s\n\n", report.Query)

	for _, name := range core.RequiredSections() {
		body := strings.TrimSpace(report.Sections[name])
		if body == "" {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", sectionTitles[name], body)
	}

	if references != "" {
		b.WriteString(references)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// ParseSections splits generated markdown into the required sections by
// heading. Unrecognized headings fold their body into the preceding section;
// a section the model skipped is simply absent from the result.
func ParseSections(text string) map[core.SectionName]string {
	sections := make(map[core.SectionName]string, 5)

	matches := headingPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		// No headings at all: treat the whole response as the summary.
		sections[core.SectionSummary] = strings.TrimSpace(text)
		return sections
	}

	current := core.SectionName("")
	flush := func(body string) {
		if current == "" {
			return
		}
		body = strings.TrimSpace(body)
		if body == "" {
			return
		}
		if existing := sections[current]; existing != "" {
			sections[current] = existing + "\n\n" + body
		} else {
			sections[current] = body
		}
	}

	for i, m := range matches {
		heading := text[m[2]:m[3]]
		bodyStart := m[1]
		bodyEnd := len(text)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}

		if name, ok := classifyHeading(heading); ok {
			current = name
		}
		flush(text[bodyStart:bodyEnd])
	}
	return sections
}

// classifyHeading maps a generated heading onto a required section.
func classifyHeading(heading string) (core.SectionName, bool) {
	h := strings.ToLower(heading)
	switch {
	case strings.Contains(h, "summary"):
		return core.SectionSummary, true
	case strings.Contains(h, "topic"):
		return core.SectionTopics, true
	case strings.Contains(h, "sentiment"):
		return core.SectionSentiment, true
	case strings.Contains(h, "insight"):
		return core.SectionInsights, true
	case strings.Contains(h, "conclusion"):
		return core.SectionConclusion, true
	}
	return "", false
}

// ExtractSummary returns a short extract of the summary section: the first
// two sentences, capped at a few hundred characters.
func ExtractSummary(summary string) string {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return ""
	}

	var cut int
	sentences := 0
	for i, r := range summary {
		if r == '.' || r == '!' || r == '?' {
			sentences++
			cut = i + 1
			if sentences == 2 {
				break
			}
		}
	}
	if cut > 0 {
		summary = summary[:cut]
	}
	if len(summary) > summaryExtractLen {
		summary = strings.TrimSpace(summary[:summaryExtractLen]) + "..."
	}
	return strings.TrimSpace(summary)
}

var lengthGuidance = map[core.ReportLength]string{
	core.LengthSimple:   "Keep each section to 2-3 sentences.",
	core.LengthModerate: "Write 1-2 focused paragraphs per section.",
	core.LengthDetailed: "Write thorough, multi-paragraph sections with concrete examples.",
}

func buildSynthesisPrompt(query string, clusters []core.Cluster, stats core.ClusterStatistics, length core.ReportLength) string {
	guidance, ok := lengthGuidance[length]
	if !ok {
		guidance = lengthGuidance[core.LengthModerate]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write an analysis report on public discussion of %q.\n\n", query)
	fmt.Fprintf(&b, "The discussion groups into %d topics across %d content items:\n\n",
		stats.NumClusters, stats.TotalItems)

	for _, cl := range clusters {
		fmt.Fprintf(&b, "### Topic: %s\n%s\n", cl.Topic.Name, cl.Topic.Description)
		fmt.Fprintf(&b, "%d items, average relevance %.1f/10\n\n", len(cl.Items), cl.AverageRelevance)

		limit := len(cl.Items)
		if limit > itemsPerCluster {
			limit = itemsPerCluster
		}
		for _, item := range cl.Items[:limit] {
			title := item.Title
			if item.Kind == core.KindComment {
				title = "comment"
			}
			fmt.Fprintf(&b, "- ID: %s | %s | score %d, %d comments\n  %s\n",
				item.ID, title, item.Score, item.CommentCount, prefix(item.Body, 200))
		}
		b.WriteString("\n")
	}

	b.WriteString(`Write the report in markdown with exactly these sections:

## Summary
## Topic Analysis
## Sentiment Analysis
## Insights
## Conclusion

Rules:
1. ` + guidance + `
2. Every factual claim must cite its source inline as [ref:ITEM_ID], using
   the IDs listed above. Example: "Users report crashes on startup [ref:t3_abc123]."
3. Never invent an ID. Claims you cannot tie to a listed source do not belong
   in the report.
4. Ground sentiment and insights in what the sources actually say.`)
	return b.String()
}

func buildRepairPrompt(query string, report *core.Report, missing []core.SectionName, clusters []core.Cluster) string {
	var b strings.Builder
	fmt.Fprintf(&b, "An analysis report on %q has missing or weak sections. Rewrite ONLY these sections:\n\n", query)
	for _, name := range missing {
		fmt.Fprintf(&b, "## %s\n", sectionTitles[name])
	}

	b.WriteString("\nExisting report for context:\n\n")
	for _, name := range core.RequiredSections() {
		if body := report.Sections[name]; body != "" {
			fmt.Fprintf(&b, "## %s\n%s\n\n", sectionTitles[name], prefix(body, 500))
		}
	}

	b.WriteString("Available sources:\n")
	for _, cl := range clusters {
		limit := len(cl.Items)
		if limit > itemsPerCluster {
			limit = itemsPerCluster
		}
		for _, item := range cl.Items[:limit] {
			fmt.Fprintf(&b, "- ID: %s | %s\n", item.ID, prefix(item.Title+" "+item.Body, 150))
		}
	}

	b.WriteString(`
Respond in markdown using the exact section headings requested. Cite sources
inline as [ref:ITEM_ID]. Do not include any other sections.`)
	return b.String()
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
