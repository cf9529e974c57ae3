package research

import (
	"strings"
	"testing"
)

func TestScoreEmptyContent(t *testing.T) {
	if got := Score("", "solar energy", nil); got != 0 {
		t.Fatalf("expected 0 for empty content, got %v", got)
	}
}

func TestScoreRewardsKeywordCoverage(t *testing.T) {
	base := strings.Repeat("plain words without anything relevant ", 20)
	without := Score(base, "solar energy", nil)
	with := Score(base+" solar energy", "solar energy", nil)
	if with <= without {
		t.Fatalf("expected keyword match to raise score: %v <= %v", with, without)
	}
	if with-without < 39 {
		t.Fatalf("full keyword coverage should add about 40 points, got %v", with-without)
	}
}

func TestScoreIgnoresShortQueryWords(t *testing.T) {
	content := strings.Repeat("the cat and the dog ", 30)
	if got := keywordScore(strings.ToLower(content), "the cat and dog"); got != 0 {
		t.Fatalf("words of three letters or fewer must not count, got %v", got)
	}
}

func TestScoreStructuredDataTerm(t *testing.T) {
	content := para(800)
	plain := Score(content, "solar", nil)
	sd := &StructuredData{
		Numerical: make([]NumericalFact, 4),
		Temporal:  make([]TemporalFact, 2),
		Entities:  make([]EntityFact, 3),
	}
	rich := Score(content, "solar", sd)
	if rich-plain != 19 {
		t.Fatalf("expected 3*4+2*2+3 = 19 extra points, got %v", rich-plain)
	}
	many := &StructuredData{Numerical: make([]NumericalFact, 50)}
	if got := Score(content, "solar", many) - plain; got != 30 {
		t.Fatalf("structured term must cap at 30, got %v", got)
	}
}

func TestScoreBounded(t *testing.T) {
	content := strings.Repeat("solar energy 2024-01-01 42 ", 200)
	sd := &StructuredData{Numerical: make([]NumericalFact, 50)}
	got := Score(content, "solar energy", sd)
	if got < 0 || got > 100 {
		t.Fatalf("score out of range: %v", got)
	}
}

func TestLengthScore(t *testing.T) {
	cases := []struct {
		n    int
		want float64
	}{
		{0, 0},
		{250, 10},
		{500, 20},
		{5000, 20},
		{8000, 17},
		{50000, 10},
	}
	for _, tc := range cases {
		if got := lengthScore(tc.n); got != tc.want {
			t.Fatalf("lengthScore(%d) = %v, want %v", tc.n, got, tc.want)
		}
	}
}
