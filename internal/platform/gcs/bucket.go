// Package gcs wraps the Cloud Storage client for the three ingestion
// containers: content (page/chunk JSON, figures, manifests), pages
// (per-page renderings), and citations (full source documents).
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/yungbote/docingest/internal/pkg/logger"
)

type BucketCategory string

const (
	BucketCategoryContent   BucketCategory = "content"
	BucketCategoryPages     BucketCategory = "pages"
	BucketCategoryCitations BucketCategory = "citations"
)

type Service interface {
	Upload(ctx context.Context, category BucketCategory, key string, r io.Reader) error
	UploadBytes(ctx context.Context, category BucketCategory, key string, data []byte) error
	Delete(ctx context.Context, category BucketCategory, key string) error
	ListKeys(ctx context.Context, category BucketCategory, prefix string) ([]string, error)
	DeletePrefix(ctx context.Context, category BucketCategory, prefix string) (int, error)
	EnsureBuckets(ctx context.Context) error
	PublicURL(category BucketCategory, key string) string
}

type service struct {
	log    *logger.Logger
	client *storage.Client
	cfg    Config
}

func NewService(log *logger.Logger) (Service, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("resolve object storage config: %w", err)
	}
	return NewServiceWithConfig(log, cfg)
}

func NewServiceWithConfig(log *logger.Logger, cfg Config) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	serviceLog := log.With("service", "BucketService")

	client, err := newStorageClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	serviceLog.Info("Object storage initialized",
		"mode", cfg.Mode,
		"emulator_host", cfg.EmulatorHost,
		"content_bucket", cfg.ContentBucket,
		"pages_bucket", cfg.PagesBucket,
		"citations_bucket", cfg.CitationsBucket,
	)
	return &service{log: serviceLog, client: client, cfg: cfg}, nil
}

func newStorageClient(ctx context.Context, cfg Config) (*storage.Client, error) {
	if cfg.IsEmulator() {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	return storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
}

func (s *service) bucketName(category BucketCategory) (string, error) {
	switch category {
	case BucketCategoryContent:
		return s.cfg.ContentBucket, nil
	case BucketCategoryPages:
		return s.cfg.PagesBucket, nil
	case BucketCategoryCitations:
		return s.cfg.CitationsBucket, nil
	default:
		return "", fmt.Errorf("unknown bucket category: %s", category)
	}
}

func (s *service) Upload(ctx context.Context, category BucketCategory, key string, r io.Reader) error {
	name, err := s.bucketName(category)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(name).Object(key).NewWriter(ctx)
	if ct := ContentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (s *service) UploadBytes(ctx context.Context, category BucketCategory, key string, data []byte) error {
	return s.Upload(ctx, category, key, bytes.NewReader(data))
}

func (s *service) Delete(ctx context.Context, category BucketCategory, key string) error {
	name, err := s.bucketName(category)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.client.Bucket(name).Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, name, err)
	}
	return nil
}

func (s *service) ListKeys(ctx context.Context, category BucketCategory, prefix string) ([]string, error) {
	name, err := s.bucketName(category)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	it := s.client.Bucket(name).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, attrs.Name)
	}
	return out, nil
}

func (s *service) DeletePrefix(ctx context.Context, category BucketCategory, prefix string) (int, error) {
	keys, err := s.ListKeys(ctx, category, prefix)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, k := range keys {
		if err := s.Delete(ctx, category, k); err != nil {
			s.log.Warn("failed deleting object", "key", k, "error", err.Error())
			continue
		}
		deleted++
	}
	return deleted, nil
}

// EnsureBuckets provisions missing buckets. Idempotent; existing buckets
// are left untouched.
func (s *service) EnsureBuckets(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	for _, name := range uniqueStrings(s.cfg.ContentBucket, s.cfg.PagesBucket, s.cfg.CitationsBucket) {
		b := s.client.Bucket(name)
		_, err := b.Attrs(ctx)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrBucketNotExist) {
			return fmt.Errorf("check bucket %q: %w", name, err)
		}
		if err := b.Create(ctx, s.cfg.ProjectID, nil); err != nil {
			return fmt.Errorf("create bucket %q: %w", name, err)
		}
		s.log.Info("Created bucket", "bucket", name)
	}
	return nil
}

func (s *service) PublicURL(category BucketCategory, key string) string {
	name, err := s.bucketName(category)
	if err != nil {
		return key
	}
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if s.cfg.CDNDomain != "" {
		return fmt.Sprintf("https://%s/%s", s.cfg.CDNDomain, key)
	}
	if s.cfg.IsEmulator() {
		base := s.cfg.PublicBaseURL
		if base == "" {
			base = s.cfg.EmulatorHost
		}
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media",
			strings.TrimRight(base, "/"),
			url.PathEscape(name),
			url.PathEscape(key),
		)
	}
	if s.cfg.PublicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", s.cfg.PublicBaseURL, name, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", name, key)
}

// ContentTypeForKey maps an object key suffix to its MIME type. Unknown
// suffixes return "" and let GCS sniff.
func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if s == "" {
		return ""
	}
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".gif"):
		return "image/gif"
	case strings.HasSuffix(s, ".svg"):
		return "image/svg+xml"
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	case strings.HasSuffix(s, ".txt"), strings.HasSuffix(s, ".md"):
		return "text/plain"
	case strings.HasSuffix(s, ".html"), strings.HasSuffix(s, ".htm"):
		return "text/html"
	case strings.HasSuffix(s, ".docx"):
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case strings.HasSuffix(s, ".pptx"):
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case strings.HasSuffix(s, ".doc"):
		return "application/msword"
	default:
		return ""
	}
}

func uniqueStrings(in ...string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
