package research

import (
	"sort"
	"unicode/utf8"
)

type selectionPolicy struct {
	threshold float64
	target    int
}

var selectionPolicies = map[Depth]selectionPolicy{
	DepthLight:    {threshold: 60, target: 4},
	DepthModerate: {threshold: 40, target: 8},
	DepthDeep:     {threshold: 35, target: 15},
}

// minTruncatedTail is the smallest budget remainder worth filling with a
// truncated item at deep depth.
const minTruncatedTail = 1000

func policyFor(depth Depth) selectionPolicy {
	if p, ok := selectionPolicies[depth]; ok {
		return p
	}
	return selectionPolicies[DepthModerate]
}

type scoredItem struct {
	item   ExtractedItem
	score  float64
	length int
}

// SelectChunks picks the most relevant items for query within maxChars
// characters. Output is ordered by descending score with ties in input order.
// At deep depth the first item that overflows the budget is admitted as a
// truncated copy filling the remainder exactly, provided at least 1000
// characters remain.
func SelectChunks(items []ExtractedItem, query string, maxChars int, depth Depth) []ExtractedItem {
	scored := make([]scoredItem, 0, len(items))
	for _, it := range items {
		if it.Content == "" {
			continue
		}
		scored = append(scored, scoredItem{
			item:   it,
			score:  Score(it.Content, query, it.Structured),
			length: utf8.RuneCountInString(it.Content),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	policy := policyFor(depth)
	var selected []ExtractedItem
	total := 0
	for _, s := range scored {
		if len(selected) >= policy.target && s.score < policy.threshold {
			break
		}
		if s.score < policy.threshold {
			continue
		}
		if total+s.length > maxChars {
			remaining := maxChars - total
			if depth == DepthDeep && remaining >= minTruncatedTail {
				clipped := s.item
				clipped.Content = clipRunes(s.item.Content, remaining)
				selected = append(selected, clipped)
			}
			break
		}
		selected = append(selected, s.item)
		total += s.length
	}
	return selected
}

func clipRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
