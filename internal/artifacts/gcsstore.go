package artifacts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yungbote/docingest/internal/pkg/logger"
	"github.com/yungbote/docingest/internal/platform/gcs"
)

// gcsStore maps the artifact layout onto the three storage containers.
type gcsStore struct {
	log    *logger.Logger
	bucket gcs.Service
}

func NewGCSStore(log *logger.Logger, bucket gcs.Service) Store {
	return &gcsStore{log: log.With("service", "GCSArtifactStore"), bucket: bucket}
}

func (s *gcsStore) Remote() bool { return true }

func (s *gcsStore) EnsureReady(ctx context.Context) error {
	return s.bucket.EnsureBuckets(ctx)
}

func (s *gcsStore) put(ctx context.Context, category gcs.BucketCategory, key string, data []byte) (string, error) {
	if err := s.bucket.UploadBytes(ctx, category, key, data); err != nil {
		return "", err
	}
	return s.bucket.PublicURL(category, key), nil
}

func (s *gcsStore) putJSON(ctx context.Context, category gcs.BucketCategory, key string, obj any) (string, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("marshal artifact %s: %w", key, err)
	}
	return s.put(ctx, category, key, data)
}

func (s *gcsStore) WritePageJSON(ctx context.Context, docName string, pageIdx int, obj any) (string, error) {
	return s.putJSON(ctx, gcs.BucketCategoryContent, PageJSONKey(docName, pageIdx), obj)
}

func (s *gcsStore) WritePageRendering(ctx context.Context, docName string, pageIdx int, data []byte) (string, error) {
	return s.put(ctx, gcs.BucketCategoryPages, PageRenderingKey(docName, pageIdx), data)
}

func (s *gcsStore) WriteFullDocument(ctx context.Context, docName string, data []byte) (string, error) {
	return s.put(ctx, gcs.BucketCategoryCitations, FullDocumentKey(docName), data)
}

func (s *gcsStore) WriteChunkJSON(ctx context.Context, docName string, pageIdx, chunkIdx int, obj any) (string, error) {
	return s.putJSON(ctx, gcs.BucketCategoryContent, ChunkJSONKey(docName, pageIdx, chunkIdx), obj)
}

func (s *gcsStore) WriteImage(ctx context.Context, docName string, pageIdx int, originalName string, data []byte, figureIdx int) (string, error) {
	return s.put(ctx, gcs.BucketCategoryContent, ImageKey(docName, pageIdx, originalName, figureIdx), data)
}

func (s *gcsStore) WriteManifest(ctx context.Context, docName string, obj any) (string, error) {
	return s.putJSON(ctx, gcs.BucketCategoryContent, ManifestKey(docName), obj)
}

func (s *gcsStore) WriteStatus(ctx context.Context, name string, obj any) (string, error) {
	return s.putJSON(ctx, gcs.BucketCategoryContent, StatusKey(name), obj)
}

func (s *gcsStore) DeleteArtifacts(ctx context.Context, docName string) (int, error) {
	stem := Stem(docName)
	total := 0
	n, err := s.bucket.DeletePrefix(ctx, gcs.BucketCategoryContent, stem+"/")
	total += n
	if err != nil {
		return total, err
	}
	n, err = s.bucket.DeletePrefix(ctx, gcs.BucketCategoryPages, stem+"_page_")
	total += n
	if err != nil {
		return total, err
	}
	if err := s.bucket.Delete(ctx, gcs.BucketCategoryCitations, FullDocumentKey(docName)); err == nil {
		total++
	}
	return total, nil
}

func (s *gcsStore) DeleteAll(ctx context.Context) (int, error) {
	total := 0
	for _, category := range []gcs.BucketCategory{
		gcs.BucketCategoryContent,
		gcs.BucketCategoryPages,
		gcs.BucketCategoryCitations,
	} {
		n, err := s.bucket.DeletePrefix(ctx, category, "")
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
