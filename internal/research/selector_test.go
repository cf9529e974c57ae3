package research

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func item(url, content string) ExtractedItem {
	return ExtractedItem{URL: url, Content: content}
}

func TestSelectChunksRespectsBudget(t *testing.T) {
	items := []ExtractedItem{item("a", para(1200)), item("b", para(1200)), item("c", para(1200))}
	got := SelectChunks(items, "solar energy", 3000, DepthModerate)
	if len(got) != 2 {
		t.Fatalf("expected 2 items within budget, got %d", len(got))
	}
	total := 0
	for _, it := range got {
		total += utf8.RuneCountInString(it.Content)
	}
	if total > 3000 {
		t.Fatalf("selection exceeds budget: %d", total)
	}
}

func TestSelectChunksStableOnTies(t *testing.T) {
	items := []ExtractedItem{item("first", para(600)), item("second", para(600)), item("third", para(600))}
	got := SelectChunks(items, "solar energy", 10000, DepthModerate)
	if len(got) != 3 {
		t.Fatalf("expected all items, got %d", len(got))
	}
	for i, want := range []string{"first", "second", "third"} {
		if got[i].URL != want {
			t.Fatalf("position %d: got %s want %s", i, got[i].URL, want)
		}
	}
}

func TestSelectChunksOrdersByScore(t *testing.T) {
	weak := item("weak", strings.Repeat("solar panels on roofs ", 30))
	strong := item("strong", para(700))
	got := SelectChunks([]ExtractedItem{weak, strong}, "solar energy", 10000, DepthDeep)
	if len(got) == 0 || got[0].URL != "strong" {
		t.Fatalf("expected strong item first, got %+v", got)
	}
}

func TestSelectChunksDeepTruncation(t *testing.T) {
	items := []ExtractedItem{item("a", para(1200)), item("b", para(2500))}
	got := SelectChunks(items, "solar energy", 3000, DepthDeep)
	if len(got) != 2 {
		t.Fatalf("expected truncated second item, got %d items", len(got))
	}
	if n := utf8.RuneCountInString(got[1].Content); n != 1800 {
		t.Fatalf("expected truncated item to fill the remaining 1800 chars, got %d", n)
	}
	if items[1].Content != para(2500) {
		t.Fatalf("input item must not be modified")
	}

	moderate := SelectChunks(items, "solar energy", 3000, DepthModerate)
	if len(moderate) != 1 {
		t.Fatalf("moderate depth must not truncate, got %d items", len(moderate))
	}
}

func TestSelectChunksDeepTruncationNeedsTail(t *testing.T) {
	items := []ExtractedItem{item("a", para(2500)), item("b", para(2500))}
	got := SelectChunks(items, "solar energy", 3000, DepthDeep)
	if len(got) != 1 {
		t.Fatalf("remainder below 1000 chars must not be filled, got %d items", len(got))
	}
}

func TestSelectChunksLightThreshold(t *testing.T) {
	relevant := item("relevant", para(700))
	noise := item("noise", strings.Repeat("lorem ipsum dolor sit amet ", 25))
	got := SelectChunks([]ExtractedItem{noise, relevant}, "solar energy", 10000, DepthLight)
	if len(got) != 1 || got[0].URL != "relevant" {
		t.Fatalf("expected only the relevant item, got %+v", got)
	}
}

func TestSelectChunksSkipsEmpty(t *testing.T) {
	got := SelectChunks([]ExtractedItem{item("empty", ""), item("a", para(600))}, "solar energy", 10000, DepthModerate)
	if len(got) != 1 || got[0].URL != "a" {
		t.Fatalf("expected empty content skipped, got %+v", got)
	}
}

func TestClipRunes(t *testing.T) {
	if got := clipRunes("héllo", 2); got != "hé" {
		t.Fatalf("unexpected clip: %q", got)
	}
	if got := clipRunes("abc", 10); got != "abc" {
		t.Fatalf("unexpected clip: %q", got)
	}
	if got := clipRunes("abc", 0); got != "" {
		t.Fatalf("unexpected clip: %q", got)
	}
}
