package extract

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/yungbote/docingest/internal/pkg/logger"
)

func TestPlainExtractSinglePage(t *testing.T) {
	e := NewPlainExtractor(logger.NewNop())
	pages, err := e.Extract(context.Background(), []byte("line one\r\nline two\n"), "notes.txt", false)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("pages: want=1 got=%d", len(pages))
	}
	p := pages[0]
	if p.PageNum != 0 {
		t.Fatalf("page num: got=%d", p.PageNum)
	}
	if p.Text != "line one\nline two" {
		t.Fatalf("text not normalized: %q", p.Text)
	}
	if len(p.Tables) != 0 || len(p.Figures) != 0 {
		t.Fatalf("plain pages carry no tables or figures: %+v", p)
	}
}

func TestPlainExtractDetectsLinks(t *testing.T) {
	e := NewPlainExtractor(logger.NewNop())
	pages, err := e.Extract(context.Background(), []byte("docs at https://example.com/docs today"), "notes.md", false)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(pages[0].Hyperlinks) != 1 || pages[0].Hyperlinks[0].URL != "https://example.com/docs" {
		t.Fatalf("hyperlinks: got=%+v", pages[0].Hyperlinks)
	}
}

func TestPlainExtractInvalidUTF8Replaced(t *testing.T) {
	e := NewPlainExtractor(logger.NewNop())
	pages, err := e.Extract(context.Background(), []byte{'o', 'k', ' ', 0xff, 0xfe, 'e', 'n', 'd'}, "notes.txt", false)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(pages[0].Text, "ok") || !strings.Contains(pages[0].Text, "end") {
		t.Fatalf("text lost around invalid bytes: %q", pages[0].Text)
	}
	if !utf8.ValidString(pages[0].Text) {
		t.Fatalf("invalid bytes survived: %q", pages[0].Text)
	}
}

func TestPlainExtractEmptyInputs(t *testing.T) {
	e := NewPlainExtractor(logger.NewNop())
	if _, err := e.Extract(context.Background(), nil, "notes.txt", false); err == nil {
		t.Fatalf("expected error for empty file")
	}
	if _, err := e.Extract(context.Background(), []byte("   \n\t  "), "notes.txt", false); err == nil {
		t.Fatalf("expected error for whitespace-only file")
	}
}
