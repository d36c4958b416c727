package chunker

import (
	"strings"
	"testing"
)

func TestSplitSentencesRoundTrip(t *testing.T) {
	cases := []string{
		"One. Two! Three?",
		"Quoted end.\" Next starts here.",
		"No terminal punctuation at all",
		"Trailing spaces.   And then more.",
		"Multibyte enders。Second sentence！",
	}
	for _, text := range cases {
		spans := splitSentences(text)
		if got := strings.Join(spans, ""); got != text {
			t.Fatalf("round trip failed:\nwant=%q\ngot=%q", text, got)
		}
	}
}

func TestSplitSentencesNewlineEndsSpan(t *testing.T) {
	spans := splitSentences("First line.\nSecond line.")
	if len(spans) != 2 {
		t.Fatalf("spans: want=2 got=%d (%q)", len(spans), spans)
	}
	if !strings.HasSuffix(spans[0], "\n") {
		t.Fatalf("first span should keep its newline: %q", spans[0])
	}
}

func TestSplitBlocksFigureAtomic(t *testing.T) {
	text := "before <figure id=\"f1\">inner. text</figure> after"
	blocks := splitBlocks(text)
	if len(blocks) != 3 {
		t.Fatalf("blocks: want=3 got=%d", len(blocks))
	}
	if blocks[0].kind != blockText || blocks[1].kind != blockFigure || blocks[2].kind != blockText {
		t.Fatalf("block kinds wrong: %+v", blocks)
	}
	if !strings.HasPrefix(blocks[1].text, "<figure") || !strings.HasSuffix(blocks[1].text, "</figure>") {
		t.Fatalf("figure block malformed: %q", blocks[1].text)
	}
}

func TestSplitBlocksDanglingFigureStaysText(t *testing.T) {
	text := "before <figure id=\"f1\">never closed"
	blocks := splitBlocks(text)
	if len(blocks) != 1 {
		t.Fatalf("blocks: want=1 got=%d", len(blocks))
	}
	if blocks[0].kind != blockText {
		t.Fatalf("dangling figure should remain text")
	}
}

func TestJoinSmart(t *testing.T) {
	if got := joinSmart("alpha", "beta"); got != "alpha beta" {
		t.Fatalf("want=%q got=%q", "alpha beta", got)
	}
	if got := joinSmart("alpha ", "beta"); got != "alpha beta" {
		t.Fatalf("want=%q got=%q", "alpha beta", got)
	}
	if got := joinSmart("alpha.", "Beta"); got != "alpha.Beta" {
		t.Fatalf("want=%q got=%q", "alpha.Beta", got)
	}
	if got := joinSmart("", "beta"); got != "beta" {
		t.Fatalf("want=%q got=%q", "beta", got)
	}
	if got := joinSmart("alpha", ""); got != "alpha" {
		t.Fatalf("want=%q got=%q", "alpha", got)
	}
}

func TestTextOutsideFigures(t *testing.T) {
	text := "keep <figure id=\"f\">drop this</figure> also keep"
	got := textOutsideFigures(text)
	if strings.Contains(got, "drop") {
		t.Fatalf("figure body survived: %q", got)
	}
	if !strings.Contains(got, "keep") || !strings.Contains(got, "also keep") {
		t.Fatalf("prose lost: %q", got)
	}
}
