package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/docingest/internal/domain"
	"github.com/yungbote/docingest/internal/pkg/logger"
)

// plainExtractor handles text-native formats. The whole file becomes a
// single page with no tables or figures.
type plainExtractor struct {
	log *logger.Logger
}

func NewPlainExtractor(log *logger.Logger) Extractor {
	return &plainExtractor{log: log.With("service", "PlainExtractor")}
}

func (e *plainExtractor) Extract(ctx context.Context, data []byte, filename string, processFigures bool) ([]*domain.ExtractedPage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty input: %s", filename)
	}
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
		e.log.Warn("input was not valid UTF-8; replaced invalid sequences", "filename", filename)
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("input has no text content: %s", filename)
	}

	page := &domain.ExtractedPage{
		PageNum:    0,
		Text:       text,
		Hyperlinks: detectHyperlinks(text, 0),
	}
	return []*domain.ExtractedPage{page}, nil
}
