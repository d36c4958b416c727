// Package source lists and loads the input documents of an ingestion run
// from the local filesystem.
package source

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yungbote/docingest/internal/pkg/errors"
	"github.com/yungbote/docingest/internal/pkg/logger"
)

// Document is one loaded input file.
type Document struct {
	Filename    string // base name, unique per run
	Data        []byte
	OriginURL   string // file:// URI of the source path
	ContentType string
	MD5         string
}

type Source interface {
	// List returns the base filenames matched by the source pattern,
	// sorted. ErrNoInputFiles when nothing matches.
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, filename string) (*Document, error)
}

type localSource struct {
	log     *logger.Logger
	pattern string
}

// NewLocal builds a glob-backed source. The pattern is resolved against the
// working directory at call time, so new files appear without restart.
func NewLocal(log *logger.Logger, pattern string) (Source, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("source pattern required")
	}
	return &localSource{log: log.With("service", "LocalSource"), pattern: pattern}, nil
}

func (s *localSource) List(ctx context.Context) ([]string, error) {
	paths, err := s.matches()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.ErrNoInputFiles
	}
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	sort.Strings(names)
	return names, nil
}

func (s *localSource) Read(ctx context.Context, filename string) (*Document, error) {
	paths, err := s.matches()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if filepath.Base(p) != filename {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		sum := md5.Sum(data)
		return &Document{
			Filename:    filename,
			Data:        data,
			OriginURL:   "file://" + abs,
			ContentType: contentTypeFor(filename),
			MD5:         hex.EncodeToString(sum[:]),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", errors.ErrNotFound, filename)
}

func (s *localSource) matches() ([]string, error) {
	paths, err := filepath.Glob(s.pattern)
	if err != nil {
		return nil, fmt.Errorf("bad source pattern %q: %w", s.pattern, err)
	}
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, p)
	}
	return files, nil
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	case ".pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case ".ppt":
		return "application/vnd.ms-powerpoint"
	case ".md", ".markdown":
		return "text/markdown"
	case ".html", ".htm":
		return "text/html"
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	default:
		return "text/plain"
	}
}
