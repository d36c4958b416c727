package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/docingest/internal/domain"
	"github.com/yungbote/docingest/internal/pagesplit"
	"github.com/yungbote/docingest/internal/pkg/logger"
)

// offlineExtractor reads PDF text page by page with poppler. It produces no
// tables or figures; it exists so ingestion still works when no layout
// provider is configured or reachable.
type offlineExtractor struct {
	log   *logger.Logger
	tools pagesplit.Tools
}

func NewOfflineExtractor(log *logger.Logger, tools pagesplit.Tools) Extractor {
	return &offlineExtractor{log: log.With("service", "OfflineExtractor"), tools: tools}
}

func (e *offlineExtractor) Extract(ctx context.Context, data []byte, filename string, processFigures bool) ([]*domain.ExtractedPage, error) {
	if e.tools == nil {
		return nil, fmt.Errorf("offline extraction requires pdf tools")
	}
	src, cleanup, err := e.tools.WriteTempFile(ctx, data, ".pdf")
	if err != nil {
		return nil, fmt.Errorf("stage pdf input: %w", err)
	}
	defer cleanup()

	count, err := e.tools.CountPDFPages(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("count pages of %s: %w", filename, err)
	}

	pages := make([]*domain.ExtractedPage, 0, count)
	offset := 0
	for i := 0; i < count; i++ {
		text, err := e.tools.PDFPageText(ctx, src, i+1)
		if err != nil {
			return nil, fmt.Errorf("extract page %d of %s: %w", i+1, filename, err)
		}
		text = strings.TrimSpace(text)
		pages = append(pages, &domain.ExtractedPage{
			PageNum:    i,
			Text:       text,
			Hyperlinks: detectHyperlinks(text, i),
			Offset:     offset,
		})
		offset += len(text)
	}
	e.log.Info("Offline text extraction complete", "filename", filename, "pages", len(pages))
	return pages, nil
}
