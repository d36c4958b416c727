// Package vision is the OCR fallback describer: when the multimodal model
// is unavailable or declines, a figure still gets its visible text as a
// description.
package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	visionapi "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/yungbote/docingest/internal/pkg/ctxutil"
	"github.com/yungbote/docingest/internal/pkg/logger"
)

type OCR interface {
	// TextFromImage returns the OCR'd text of an image, "" when nothing
	// legible is found.
	TextFromImage(ctx context.Context, img []byte) (string, error)
	Close() error
}

type ocrService struct {
	log    *logger.Logger
	client *visionapi.ImageAnnotatorClient
}

func NewOCR(log *logger.Logger) (OCR, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	client, err := visionapi.NewImageAnnotatorClient(context.Background())
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &ocrService{log: log.With("service", "VisionOCR"), client: client}, nil
}

func (s *ocrService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *ocrService) TextFromImage(ctx context.Context, img []byte) (string, error) {
	if len(img) == 0 {
		return "", nil
	}
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: img},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	}
	resp, err := s.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return "", fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return "", fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	if r0.FullTextAnnotation == nil {
		return "", nil
	}
	return collapseWhitespace(r0.FullTextAnnotation.Text), nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
