// Package pagesplit shells out to poppler and LibreOffice for the two
// pieces of document surgery the pipeline needs: splitting a PDF into
// single-page PDFs and converting office formats to PDF.
//
// REQUIRED BINARIES in the worker runtime:
// - pdfinfo, pdfseparate (poppler-utils)
// - libreoffice (soffice) when DOC/DOCX/PPTX inputs are configured
package pagesplit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/docingest/internal/pkg/ctxutil"
	"github.com/yungbote/docingest/internal/pkg/logger"
)

type Tools interface {
	AssertReady(ctx context.Context) error

	CountPDFPages(ctx context.Context, pdfPath string) (int, error)
	SplitPDF(ctx context.Context, pdfPath string, outDir string) ([]string, error)
	ConvertOfficeToPDF(ctx context.Context, inputPath string, outDir string) (string, error)
	PDFPageText(ctx context.Context, pdfPath string, page int) (string, error)

	// SplitPages is the bytes-in, bytes-out convenience over SplitPDF.
	SplitPages(ctx context.Context, pdf []byte) ([][]byte, error)

	WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error)
}

type tools struct {
	log *logger.Logger

	pdfinfoPath     string
	pdfseparatePath string
	pdftotextPath   string
	sofficePath     string

	workRoot       string
	defaultTimeout time.Duration
}

func New(log *logger.Logger) Tools {
	return &tools{
		log:             log.With("service", "PageSplitter"),
		pdfinfoPath:     "pdfinfo",
		pdfseparatePath: "pdfseparate",
		pdftotextPath:   "pdftotext",
		sofficePath:     "soffice",
		workRoot:        "/tmp/docingest-pages",
		defaultTimeout:  10 * time.Minute,
	}
}

func (m *tools) AssertReady(ctx context.Context) error {
	for _, bin := range []string{m.pdfinfoPath, m.pdfseparatePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

func (m *tools) WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error) {
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("mkdir workRoot: %w", err)
	}
	h := sha256.Sum256(data)
	base := hex.EncodeToString(h[:])[:16]
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	path := filepath.Join(m.workRoot, base+suffix)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	return path, func() { _ = os.Remove(path) }, nil
}

func (m *tools) CountPDFPages(ctx context.Context, pdfPath string) (int, error) {
	ctx = ctxutil.Default(ctx)
	if pdfPath == "" {
		return 0, fmt.Errorf("pdfPath required")
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, m.pdfinfoPath, pdfPath).CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("pdfinfo failed: %w; out=%s", err, string(out))
	}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if n, err := strconv.Atoi(fields[len(fields)-1]); err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, fmt.Errorf("pdfinfo output missing Pages field")
}

// SplitPDF writes one PDF per page into outDir and returns the paths in
// page order.
func (m *tools) SplitPDF(ctx context.Context, pdfPath string, outDir string) ([]string, error) {
	ctx = ctxutil.Default(ctx)
	if pdfPath == "" {
		return nil, fmt.Errorf("pdfPath required")
	}
	if outDir == "" {
		return nil, fmt.Errorf("outDir required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir outDir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	pattern := filepath.Join(outDir, "page-%d.pdf")
	out, err := exec.CommandContext(ctx, m.pdfseparatePath, pdfPath, pattern).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdfseparate failed: %w; out=%s", err, string(out))
	}

	matches, err := filepath.Glob(filepath.Join(outDir, "page-*.pdf"))
	if err != nil {
		return nil, fmt.Errorf("scan split output: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdfseparate produced no pages")
	}
	sort.Slice(matches, func(i, j int) bool {
		return pageIndexOf(matches[i]) < pageIndexOf(matches[j])
	})
	return matches, nil
}

func pageIndexOf(path string) int {
	base := filepath.Base(path)
	base = strings.TrimSuffix(strings.TrimPrefix(base, "page-"), ".pdf")
	n, _ := strconv.Atoi(base)
	return n
}

func (m *tools) SplitPages(ctx context.Context, pdf []byte) ([][]byte, error) {
	src, cleanupSrc, err := m.WriteTempFile(ctx, pdf, ".pdf")
	if err != nil {
		return nil, err
	}
	defer cleanupSrc()

	outDir, err := os.MkdirTemp(m.workRoot, "split-")
	if err != nil {
		return nil, fmt.Errorf("mkdir split dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	paths, err := m.SplitPDF(ctx, src, outDir)
	if err != nil {
		return nil, err
	}
	pages := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read split page %s: %w", p, err)
		}
		pages = append(pages, data)
	}
	return pages, nil
}

// PDFPageText extracts plain text for one 1-based page with layout
// preserved. Used by the offline extractor when no layout provider is
// configured or reachable.
func (m *tools) PDFPageText(ctx context.Context, pdfPath string, page int) (string, error) {
	ctx = ctxutil.Default(ctx)
	if pdfPath == "" {
		return "", fmt.Errorf("pdfPath required")
	}
	if page < 1 {
		return "", fmt.Errorf("page must be 1-based, got %d", page)
	}
	if _, err := exec.LookPath(m.pdftotextPath); err != nil {
		return "", fmt.Errorf("missing required binary %q in PATH: %w", m.pdftotextPath, err)
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	p := strconv.Itoa(page)
	out, err := exec.CommandContext(ctx, m.pdftotextPath,
		"-layout", "-f", p, "-l", p, pdfPath, "-",
	).Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}
	return string(out), nil
}

func (m *tools) ConvertOfficeToPDF(ctx context.Context, inputPath string, outDir string) (string, error) {
	ctx = ctxutil.Default(ctx)
	if inputPath == "" {
		return "", fmt.Errorf("inputPath required")
	}
	if outDir == "" {
		return "", fmt.Errorf("outDir required")
	}
	if _, err := exec.LookPath(m.sofficePath); err != nil {
		return "", fmt.Errorf("missing required binary %q in PATH: %w", m.sofficePath, err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir outDir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.sofficePath,
		"--headless",
		"--nologo",
		"--nolockcheck",
		"--nodefault",
		"--norestore",
		"--convert-to", "pdf",
		"--outdir", outDir,
		inputPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("soffice convert failed: %w; out=%s", err, string(out))
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	pdfPath := filepath.Join(outDir, base+".pdf")
	if _, statErr := os.Stat(pdfPath); statErr != nil {
		newest, err2 := newestFileWithExt(outDir, ".pdf")
		if err2 != nil {
			return "", fmt.Errorf("pdf output not found at %s: %v; soffice out=%s", pdfPath, err2, string(out))
		}
		pdfPath = newest
	}
	return pdfPath, nil
}

func newestFileWithExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, e.Name())
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no %s file in %s", ext, dir)
	}
	return newest, nil
}
