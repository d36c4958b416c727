package artifacts

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases and collapses everything non-alphanumeric to single
// underscores. Used for stable chunk ids and artifact prefixes.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugRe.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// Stem returns the filename without directory or extension.
func Stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Artifact keys. pageIdx and figureIdx arrive 0-based; keys are 1-based.

func PageJSONKey(docName string, pageIdx int) string {
	return fmt.Sprintf("%s/page-%04d.json", Stem(docName), pageIdx+1)
}

func PageRenderingKey(docName string, pageIdx int) string {
	return fmt.Sprintf("%s_page_%04d.pdf", Stem(docName), pageIdx+1)
}

func ChunkJSONKey(docName string, pageIdx, chunkIdx int) string {
	return fmt.Sprintf("%s/page-%04d/chunk-%06d.json", Stem(docName), pageIdx+1, chunkIdx+1)
}

func ImageKey(docName string, pageIdx int, originalName string, figureIdx int) string {
	ext := strings.ToLower(path.Ext(originalName))
	if ext == "" {
		ext = ".png"
	}
	return fmt.Sprintf("%s/page_%02d_fig_%02d%s", Stem(docName), pageIdx+1, figureIdx+1, ext)
}

func ManifestKey(docName string) string {
	return Stem(docName) + "/manifest.json"
}

func FullDocumentKey(docName string) string {
	return filepath.Base(docName)
}

func StatusKey(name string) string {
	return "status/" + name
}
