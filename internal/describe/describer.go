// Package describe produces natural-language descriptions of figure images.
// The multimodal chat model is the primary path; OCR is the fallback so a
// figure whose description fails still carries its legible text.
package describe

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/docingest/internal/pkg/logger"
	"github.com/yungbote/docingest/internal/platform/openai"
	"github.com/yungbote/docingest/internal/platform/vision"
)

type Describer interface {
	// Describe returns a description of the image, "" when none could be
	// produced. An empty description is not an error.
	Describe(ctx context.Context, image []byte, mimeType string) (string, error)

	// SummarizeTable returns a prose summary of a rendered table, "" when
	// no chat model is configured.
	SummarizeTable(ctx context.Context, tableText string) (string, error)
}

type describer struct {
	log  *logger.Logger
	chat openai.Client
	ocr  vision.OCR // may be nil
}

func New(log *logger.Logger, chat openai.Client, ocr vision.OCR) Describer {
	return &describer{log: log.With("service", "MediaDescriber"), chat: chat, ocr: ocr}
}

func (d *describer) SummarizeTable(ctx context.Context, tableText string) (string, error) {
	if d.chat == nil || strings.TrimSpace(tableText) == "" {
		return "", nil
	}
	return d.chat.SummarizeTable(ctx, tableText)
}

func (d *describer) Describe(ctx context.Context, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", nil
	}
	if d.chat != nil {
		text, err := d.chat.DescribeImage(ctx, image, mimeType)
		if err == nil {
			return text, nil
		}
		d.log.Warn("model description failed; falling back to OCR", "error", err.Error())
	}
	if d.ocr == nil {
		return "", nil
	}
	text, err := d.ocr.TextFromImage(ctx, image)
	if err != nil {
		return "", fmt.Errorf("ocr fallback: %w", err)
	}
	if text == "" {
		return "", nil
	}
	return "Image text: " + text, nil
}
