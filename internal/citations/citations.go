// Package citations rewrites the synthesizer's inline source markers into
// numbered footnotes and renders the References section.
package citations

import (
	"fmt"
	"regexp"
	"strings"

	"pulse/internal/core"
	"pulse/internal/logger"
)

// markerPattern matches an inline source marker such as [ref:t3_abc123].
var markerPattern = regexp.MustCompile(`\[ref:([^\]]+)\]`)

// Map rewrites every resolvable source marker in text to a numbered citation
// and returns the rewritten text with one footnote per distinct cited source.
// Numbers are assigned in first-occurrence order, so the same input always
// yields the same numbering. Markers naming an unknown source are left in
// place and logged; text without markers passes through byte-identical.
func Map(text string, items []core.ContentItem) (string, []core.FootnoteEntry) {
	byID := make(map[string]*core.ContentItem, len(items))
	for i := range items {
		byID[items[i].ID] = &items[i]
	}

	numbers := map[string]int{}
	var footnotes []core.FootnoteEntry
	dangling := 0

	rewritten := markerPattern.ReplaceAllStringFunc(text, func(marker string) string {
		id := strings.TrimSuffix(strings.TrimPrefix(marker, "[ref:"), "]")

		item, ok := byID[id]
		if !ok {
			logger.Warn("dangling source marker left in place", "source_id", id)
			dangling++
			return marker
		}

		n, seen := numbers[id]
		if !seen {
			n = len(footnotes) + 1
			numbers[id] = n
			footnotes = append(footnotes, core.FootnoteEntry{
				FootnoteNumber:   n,
				SourceItemID:     item.ID,
				URL:              item.URL,
				Title:            item.Title,
				Score:            item.Score,
				CommentCount:     item.CommentCount,
				CreatedAt:        item.CreatedAt,
				CommunityID:      item.CommunityID,
				Author:           item.Author,
				PositionInReport: n,
			})
		}
		return fmt.Sprintf("[%d]", n)
	})

	if dangling > 0 {
		logger.Warn("report contains unresolved source markers", "count", dangling)
	}
	return rewritten, footnotes
}

// Apply rewrites markers in text using an existing footnote numbering.
// Markers naming a source outside the numbering are left in place.
func Apply(text string, footnotes []core.FootnoteEntry) string {
	numbers := make(map[string]int, len(footnotes))
	for _, fn := range footnotes {
		numbers[fn.SourceItemID] = fn.FootnoteNumber
	}

	return markerPattern.ReplaceAllStringFunc(text, func(marker string) string {
		id := strings.TrimSuffix(strings.TrimPrefix(marker, "[ref:"), "]")
		n, ok := numbers[id]
		if !ok {
			return marker
		}
		return fmt.Sprintf("[%d]", n)
	})
}

// RenderReferences renders the References section for the mapped footnotes.
// Returns the empty string when nothing was cited.
func RenderReferences(footnotes []core.FootnoteEntry) string {
	if len(footnotes) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## References\n\n")
	for _, fn := range footnotes {
		title := fn.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(&b, "[%d] %s (r/%s, %d points, %d comments)\n",
			fn.FootnoteNumber, title, fn.CommunityID, fn.Score, fn.CommentCount)
		if fn.URL != "" {
			fmt.Fprintf(&b, "    %s\n", fn.URL)
		}
	}
	return b.String()
}
