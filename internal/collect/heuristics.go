package collect

import (
	"regexp"
	"strings"

	"pulse/internal/core"
)

// Static keyword sets used as soft signals only, never as filters.
var speculativeWords = []string{
	"might", "could", "perhaps", "likely", "possibly", "maybe", "supposedly",
	"allegedly", "rumor", "rumour", "unconfirmed", "sources say", "i heard",
	"word is", "gossip", "speculation", "apparently", "seems like",
}

var negativeEmotionWords = []string{
	"disaster", "crisis", "collapse", "crash", "terrible", "awful", "horrible",
	"devastating", "nightmare", "panic", "fear", "doom", "failed", "failure",
	"warning", "danger", "risk", "threat", "concerned", "worried",
}

var capsRunRe = regexp.MustCompile(`[A-Z]{3,}`)

// Linguistic flag names attached to ContentItem.LinguisticFlags.
const (
	FlagSpeculation     = "speculation"
	FlagNegativeEmotion = "negative_emotion"
	FlagInformal        = "informal"
)

// RumorScore computes a 0-10 heuristic from controversy, speculative language,
// negative affect, and the collection vector the item arrived on.
func RumorScore(item *core.ContentItem) float64 {
	score := 0.0

	// Controversy from the approval ratio, up to 3.5 points.
	if item.UpvoteRatio > 0 && item.UpvoteRatio < 0.7 {
		score += (0.7 - item.UpvoteRatio) * 5
	}

	text := strings.ToLower(item.Title + " " + item.Body)

	speculation := countContained(text, speculativeWords)
	if speculation > 0 {
		score += min(float64(speculation)*1.5, 3.0)
	}

	negative := countContained(text, negativeEmotionWords)
	if negative > 0 {
		score += min(float64(negative)*1.0, 2.0)
	}

	if item.Kind == core.KindPost && item.URL != "" && strings.Contains(item.URL, "/comments/") {
		score += 0.5
	}

	switch item.CollectionVector {
	case VectorUnderground:
		score += 1.0
	case VectorVanguard:
		score += 0.5
	}

	return min(score, 10.0)
}

// LinguisticFlags returns the soft-signal flags present in text.
func LinguisticFlags(text string) []string {
	var flags []string
	lower := strings.ToLower(text)

	if countContained(lower, speculativeWords) > 0 {
		flags = append(flags, FlagSpeculation)
	}
	if countContained(lower, negativeEmotionWords) > 0 {
		flags = append(flags, FlagNegativeEmotion)
	}
	if strings.Count(text, "!") > 2 || capsRunRe.MatchString(text) {
		flags = append(flags, FlagInformal)
	}

	return flags
}

// Annotate fills in the heuristic fields on a collected item.
func Annotate(item *core.ContentItem) {
	item.RumorScore = RumorScore(item)
	item.LinguisticFlags = LinguisticFlags(item.Title + " " + item.Body)
}

func countContained(haystack string, needles []string) int {
	n := 0
	for _, w := range needles {
		if strings.Contains(haystack, w) {
			n++
		}
	}
	return n
}
