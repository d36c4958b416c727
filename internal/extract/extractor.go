// Package extract turns source document bytes into ordered ExtractedPage
// lists. The router picks a concrete extractor by file suffix; office
// formats are converted to PDF first, and a configurable offline fallback
// catches layout-provider failures.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yungbote/docingest/internal/domain"
	"github.com/yungbote/docingest/internal/pagesplit"
	"github.com/yungbote/docingest/internal/pkg/logger"
)

// Extractor produces pages whose text holds exactly one placeholder per
// table and figure.
type Extractor interface {
	Extract(ctx context.Context, data []byte, filename string, processFigures bool) ([]*domain.ExtractedPage, error)
}

// Mode selects the extraction strategy for layout formats.
type Mode string

const (
	ModeDocAI   Mode = "docai"   // Document AI only
	ModeOffline Mode = "offline" // poppler text extraction only
	ModeHybrid  Mode = "hybrid"  // Document AI with offline fallback
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeHybrid):
		return ModeHybrid, nil
	case string(ModeDocAI):
		return ModeDocAI, nil
	case string(ModeOffline):
		return ModeOffline, nil
	}
	return "", fmt.Errorf("unknown extraction mode: %q", s)
}

// IsPaginated reports whether the filename is a paginated source (per-page
// renderings apply). Presentations are page-addressable but use slide
// citations instead.
func IsPaginated(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

func IsPresentation(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".pptx" || ext == ".ppt"
}

func IsOfficeFormat(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".docx", ".doc", ".pptx", ".ppt":
		return true
	}
	return false
}

func IsPlainFormat(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".markdown", ".html", ".htm", ".json", ".csv":
		return true
	}
	return false
}

// Router dispatches by suffix and owns office-to-PDF conversion.
type Router struct {
	log     *logger.Logger
	mode    Mode
	primary Extractor // layout-aware, may be nil in offline mode
	offline Extractor
	plain   Extractor
	tools   pagesplit.Tools
}

func NewRouter(log *logger.Logger, mode Mode, primary Extractor, offline Extractor, tools pagesplit.Tools) *Router {
	return &Router{
		log:     log.With("service", "ExtractorRouter"),
		mode:    mode,
		primary: primary,
		offline: offline,
		plain:   NewPlainExtractor(log),
		tools:   tools,
	}
}

func (r *Router) Extract(ctx context.Context, data []byte, filename string, processFigures bool) ([]*domain.ExtractedPage, error) {
	if IsPlainFormat(filename) {
		return r.plain.Extract(ctx, data, filename, processFigures)
	}
	if IsOfficeFormat(filename) {
		pdf, err := r.officeToPDF(ctx, data, filename)
		if err != nil {
			return nil, err
		}
		data = pdf
	}
	return r.extractPDF(ctx, data, filename, processFigures)
}

func (r *Router) extractPDF(ctx context.Context, data []byte, filename string, processFigures bool) ([]*domain.ExtractedPage, error) {
	switch r.mode {
	case ModeOffline:
		return r.offline.Extract(ctx, data, filename, processFigures)
	case ModeDocAI:
		return r.primary.Extract(ctx, data, filename, processFigures)
	default:
		pages, err := r.primary.Extract(ctx, data, filename, processFigures)
		if err == nil {
			return pages, nil
		}
		r.log.Warn("layout extraction failed; retrying with offline extractor",
			"filename", filename,
			"error", err.Error(),
		)
		pages, fbErr := r.offline.Extract(ctx, data, filename, processFigures)
		if fbErr != nil {
			return nil, fmt.Errorf("layout extraction failed (%v); offline fallback failed: %w", err, fbErr)
		}
		return pages, nil
	}
}

// officeToPDF round-trips the bytes through soffice.
func (r *Router) officeToPDF(ctx context.Context, data []byte, filename string) ([]byte, error) {
	if r.tools == nil {
		return nil, fmt.Errorf("office format %s requires conversion tools", filename)
	}
	src, cleanup, err := r.tools.WriteTempFile(ctx, data, filepath.Ext(filename))
	if err != nil {
		return nil, fmt.Errorf("stage office input: %w", err)
	}
	defer cleanup()

	outDir, err := os.MkdirTemp("", "docingest-convert-")
	if err != nil {
		return nil, fmt.Errorf("create conversion dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	pdfPath, err := r.tools.ConvertOfficeToPDF(ctx, src, outDir)
	if err != nil {
		return nil, fmt.Errorf("convert %s to pdf: %w", filename, err)
	}
	pdf, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("read converted pdf: %w", err)
	}
	r.log.Info("Converted office document to PDF",
		"filename", filename,
		"pdf_bytes", len(pdf),
	)
	return pdf, nil
}
