package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yungbote/docingest/internal/pkg/logger"
)

// localStore writes artifacts under a base directory and hands back file://
// URLs. Developer/offline mode only; the resulting URLs are not usable by
// remote consumers of the index.
type localStore struct {
	log     *logger.Logger
	baseDir string
}

func NewLocalStore(log *logger.Logger, baseDir string) (Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		baseDir = "artifacts"
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact dir: %w", err)
	}
	return &localStore{log: log.With("service", "LocalArtifactStore"), baseDir: abs}, nil
}

func (s *localStore) Remote() bool { return false }

func (s *localStore) EnsureReady(ctx context.Context) error {
	return os.MkdirAll(s.baseDir, 0o755)
}

func (s *localStore) fileURL(key string) string {
	return "file://" + filepath.Join(s.baseDir, filepath.FromSlash(key))
}

func (s *localStore) writeBytes(key string, data []byte) (string, error) {
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", key, err)
	}
	return "file://" + path, nil
}

func (s *localStore) writeJSON(key string, obj any) (string, error) {
	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal artifact %s: %w", key, err)
	}
	return s.writeBytes(key, data)
}

func (s *localStore) WritePageJSON(ctx context.Context, docName string, pageIdx int, obj any) (string, error) {
	return s.writeJSON(PageJSONKey(docName, pageIdx), obj)
}

func (s *localStore) WritePageRendering(ctx context.Context, docName string, pageIdx int, data []byte) (string, error) {
	return s.writeBytes(PageRenderingKey(docName, pageIdx), data)
}

// WriteFullDocument is a no-op locally: the source file already exists on
// disk, so the citation URL is just its would-be location.
func (s *localStore) WriteFullDocument(ctx context.Context, docName string, data []byte) (string, error) {
	return s.fileURL(FullDocumentKey(docName)), nil
}

func (s *localStore) WriteChunkJSON(ctx context.Context, docName string, pageIdx, chunkIdx int, obj any) (string, error) {
	return s.writeJSON(ChunkJSONKey(docName, pageIdx, chunkIdx), obj)
}

func (s *localStore) WriteImage(ctx context.Context, docName string, pageIdx int, originalName string, data []byte, figureIdx int) (string, error) {
	return s.writeBytes(ImageKey(docName, pageIdx, originalName, figureIdx), data)
}

func (s *localStore) WriteManifest(ctx context.Context, docName string, obj any) (string, error) {
	return s.writeJSON(ManifestKey(docName), obj)
}

func (s *localStore) WriteStatus(ctx context.Context, name string, obj any) (string, error) {
	return s.writeJSON(StatusKey(name), obj)
}

func (s *localStore) DeleteArtifacts(ctx context.Context, docName string) (int, error) {
	count := 0
	stem := Stem(docName)
	dir := filepath.Join(s.baseDir, stem)
	if entries, err := countFiles(dir); err == nil {
		count += entries
	}
	if err := os.RemoveAll(dir); err != nil {
		return count, fmt.Errorf("remove artifact dir %s: %w", dir, err)
	}
	// Page renderings live beside the directory, prefixed with the stem.
	matches, _ := filepath.Glob(filepath.Join(s.baseDir, stem+"_page_*.pdf"))
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			count++
		}
	}
	return count, nil
}

func (s *localStore) DeleteAll(ctx context.Context) (int, error) {
	count, _ := countFiles(s.baseDir)
	if err := os.RemoveAll(s.baseDir); err != nil {
		return 0, fmt.Errorf("remove artifact base dir: %w", err)
	}
	return count, os.MkdirAll(s.baseDir, 0o755)
}

func countFiles(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	return count, err
}
