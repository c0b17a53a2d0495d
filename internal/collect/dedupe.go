package collect

import "pulse/internal/core"

// Dedupe collapses repeated items by stable content ID across collection
// batches. First occurrence wins; fields are never merged. Pure, O(n), and
// idempotent: Dedupe(Dedupe(x)) == Dedupe(x).
func Dedupe(items []core.ContentItem) []core.ContentItem {
	seen := make(map[string]struct{}, len(items))
	unique := make([]core.ContentItem, 0, len(items))

	for _, item := range items {
		if item.ID == "" {
			continue
		}
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		unique = append(unique, item)
	}

	return unique
}
