// Package docai wraps the Document AI processor used for layout-aware PDF
// extraction. One client is shared per run; a semaphore caps concurrent
// processor calls across all documents.
package docai

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/yungbote/docingest/internal/pkg/ctxutil"
	"github.com/yungbote/docingest/internal/pkg/envutil"
	"github.com/yungbote/docingest/internal/pkg/logger"
)

type Config struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		ProjectID:        strings.TrimSpace(os.Getenv("GCP_PROJECT_ID")),
		Location:         envutil.Str("DOCUMENTAI_LOCATION", "us"),
		ProcessorID:      strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_ID")),
		ProcessorVersion: strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_VERSION")),
	}
	if cfg.ProjectID == "" {
		return Config{}, fmt.Errorf("missing env var GCP_PROJECT_ID")
	}
	if cfg.ProcessorID == "" {
		return Config{}, fmt.Errorf("missing env var DOCUMENTAI_PROCESSOR_ID")
	}
	return cfg, nil
}

type Client interface {
	// Process runs the layout processor over raw document bytes.
	Process(ctx context.Context, data []byte, mimeType string) (*documentaipb.Document, error)
	Close() error
}

type client struct {
	log       *logger.Logger
	cfg       Config
	docClient *documentai.DocumentProcessorClient
	sem       chan struct{}
}

func NewClient(log *logger.Logger) (Client, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewClientWithConfig(log, cfg)
}

func NewClientWithConfig(log *logger.Logger, cfg Config) (Client, error) {
	slog := log.With("service", "DocAIClient")
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)

	c, err := documentai.NewDocumentProcessorClient(context.Background(), option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}
	slog.Info("Document AI initialized", "endpoint", endpoint, "processor", cfg.ProcessorID)

	return &client{
		log:       slog,
		cfg:       cfg,
		docClient: c,
		sem:       make(chan struct{}, envutil.Int("DOCUMENTAI_CONCURRENCY", 3)),
	}, nil
}

func (c *client) Close() error {
	if c.docClient != nil {
		return c.docClient.Close()
	}
	return nil
}

func (c *client) processorName() string {
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		c.cfg.ProjectID, c.cfg.Location, c.cfg.ProcessorID)
	if c.cfg.ProcessorVersion != "" {
		return base + "/processorVersions/" + c.cfg.ProcessorVersion
	}
	return base
}

func (c *client) Process(ctx context.Context, data []byte, mimeType string) (*documentaipb.Document, error) {
	ctx = ctxutil.Default(ctx)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document bytes")
	}
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: c.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mimeType,
			},
		},
		FieldMask: &fieldmaskpb.FieldMask{Paths: []string{
			"text",
			"pages.page_number",
			"pages.paragraphs",
			"pages.tables",
			"pages.visual_elements",
			"pages.image",
			"pages.dimension",
		}},
	}
	resp, err := c.docClient.ProcessDocument(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return nil, fmt.Errorf("documentai returned empty document")
	}
	return resp.Document, nil
}
