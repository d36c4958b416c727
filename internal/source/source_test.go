package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pkgerrors "github.com/yungbote/docingest/internal/pkg/errors"
	"github.com/yungbote/docingest/internal/pkg/logger"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func newTestSource(t *testing.T, dir string) Source {
	t.Helper()
	src, err := NewLocal(logger.NewNop(), filepath.Join(dir, "*"))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return src
}

func TestListSortedBaseNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "zebra.pdf", "z")
	writeFile(t, dir, "alpha.txt", "a")
	writeFile(t, dir, "middle.docx", "m")

	names, err := newTestSource(t, dir).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"alpha.txt", "middle.docx", "zebra.pdf"}
	if len(names) != len(want) {
		t.Fatalf("names: want=%v got=%v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names: want=%v got=%v", want, names)
		}
	}
}

func TestListSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.pdf", "x")
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	names, err := newTestSource(t, dir).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 || names[0] != "doc.pdf" {
		t.Fatalf("names: got=%v", names)
	}
}

func TestListEmptyPatternError(t *testing.T) {
	src := newTestSource(t, t.TempDir())
	_, err := src.List(context.Background())
	if !errors.Is(err, pkgerrors.ErrNoInputFiles) {
		t.Fatalf("want ErrNoInputFiles, got %v", err)
	}
}

func TestReadFillsDocument(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "manual.pdf", "pdf content")

	doc, err := newTestSource(t, dir).Read(context.Background(), "manual.pdf")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if doc.Filename != "manual.pdf" {
		t.Fatalf("filename: got=%q", doc.Filename)
	}
	if string(doc.Data) != "pdf content" {
		t.Fatalf("data: got=%q", doc.Data)
	}
	if doc.ContentType != "application/pdf" {
		t.Fatalf("content type: got=%q", doc.ContentType)
	}
	if !strings.HasPrefix(doc.OriginURL, "file://") || !strings.HasSuffix(doc.OriginURL, "manual.pdf") {
		t.Fatalf("origin url: got=%q", doc.OriginURL)
	}
	// md5("pdf content")
	if doc.MD5 != "844861549e91b28a552f1a8c32fbf715" {
		t.Fatalf("md5: got=%q", doc.MD5)
	}
}

func TestReadUnknownFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "manual.pdf", "x")

	_, err := newTestSource(t, dir).Read(context.Background(), "missing.pdf")
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestContentTypeFor(t *testing.T) {
	cases := []struct{ name, want string }{
		{"a.PDF", "application/pdf"},
		{"a.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{"a.pptx", "application/vnd.openxmlformats-officedocument.presentationml.presentation"},
		{"a.md", "text/markdown"},
		{"a.csv", "text/csv"},
		{"notes", "text/plain"},
	}
	for _, tc := range cases {
		if got := contentTypeFor(tc.name); got != tc.want {
			t.Fatalf("contentTypeFor(%q): want=%q got=%q", tc.name, tc.want, got)
		}
	}
}

func TestNewLocalRequiresPattern(t *testing.T) {
	if _, err := NewLocal(logger.NewNop(), "  "); err == nil {
		t.Fatalf("expected error for blank pattern")
	}
}
