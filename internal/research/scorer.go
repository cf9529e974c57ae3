package research

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	datePattern   = regexp.MustCompile(`\d{4}[-/]\d{2}[-/]\d{2}|\d{2}[-/]\d{2}[-/]\d{4}`)
)

// Score rates content against query on a 0..100 scale. It sums four capped
// terms: keyword coverage (40), structured data density (30), length quality
// (20) and number/date density (10).
func Score(content, query string, sd *StructuredData) float64 {
	if content == "" {
		return 0
	}
	score := keywordScore(strings.ToLower(content), query)
	if sd != nil {
		score += math.Min(30, float64(3*len(sd.Numerical)+2*len(sd.Temporal)+len(sd.Entities)))
	}
	score += lengthScore(utf8.RuneCountInString(content))
	nums := len(numberPattern.FindAllStringIndex(content, -1))
	dates := len(datePattern.FindAllStringIndex(content, -1))
	score += math.Min(10, float64(nums+2*dates))
	return math.Min(100, score)
}

func keywordScore(contentLower, query string) float64 {
	words := queryKeywords(query)
	if len(words) == 0 {
		return 0
	}
	matched := 0
	for _, w := range words {
		if strings.Contains(contentLower, w) {
			matched++
		}
	}
	return math.Min(40, float64(matched)/float64(len(words))*40)
}

// queryKeywords returns the distinct lowercased query tokens longer than
// three characters.
func queryKeywords(query string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if utf8.RuneCountInString(w) <= 3 {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func lengthScore(n int) float64 {
	switch {
	case n >= 500 && n <= 5000:
		return 20
	case n < 500:
		return float64(n) / 500 * 20
	default:
		return math.Max(10, 20-float64(n-5000)/1000)
	}
}
