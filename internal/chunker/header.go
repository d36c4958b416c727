package chunker

import (
	"regexp"
	"strings"
)

var (
	pageHeaderMarkerRe = regexp.MustCompile(`<!--PageHeader="([^"]*)"-->`)
	pageMarkerRe       = regexp.MustCompile(`<!--Page(?:Header|Footer|Number)=[^>]*-->`)
	chapterPrefixRe    = regexp.MustCompile(`^[\dA-Za-z]+-\d+\s+`)
	markdownHeaderRe   = regexp.MustCompile(`(?m)^(#{1,3})\s+(.+)$`)
	figureBlockRe      = regexp.MustCompile(`(?is)<figure[^>]*>.*?</figure>`)
	tableCaptionRe     = regexp.MustCompile(`(?i)Table\s+\d+(?:-\d+)?\s*[:.]?\s*(.+)`)
)

// ExtractHeader derives a section title for one page and returns the page
// text with all PageHeader/PageFooter/PageNumber markers stripped. Fallback
// order: header markers, then markdown headings, then table captions.
func ExtractHeader(text string) (cleaned, header string) {
	header = headerFromMarkers(text)
	cleaned = pageMarkerRe.ReplaceAllString(text, "")
	if header != "" {
		return cleaned, header
	}
	if h := headerFromMarkdown(cleaned); h != "" {
		return cleaned, h
	}
	return cleaned, headerFromTableCaption(cleaned)
}

func headerFromMarkers(text string) string {
	matches := pageHeaderMarkerRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return ""
	}
	var parts []string
	seen := map[string]bool{}
	for _, m := range matches {
		h := strings.TrimSpace(m[1])
		h = chapterPrefixRe.ReplaceAllString(h, "")
		h = collapseDoubled(h)
		if h == "" {
			continue
		}
		key := strings.ToLower(h)
		if seen[key] {
			continue
		}
		seen[key] = true
		parts = append(parts, h)
	}
	return strings.Join(parts, " | ")
}

// collapseDoubled reduces "Section Title Section Title" back to one copy.
// Repeated header runs are a common artifact of two-column page layouts.
func collapseDoubled(h string) string {
	n := len(h)
	if n >= 3 && n%2 == 1 && h[n/2] == ' ' && h[:n/2] == h[n/2+1:] {
		return h[:n/2]
	}
	return h
}

func headerFromMarkdown(text string) string {
	for _, m := range markdownHeaderRe.FindAllStringSubmatch(text, -1) {
		h := strings.TrimSpace(m[2])
		if len(h) >= 10 {
			return h
		}
	}
	return ""
}

func headerFromTableCaption(text string) string {
	for _, fig := range figureBlockRe.FindAllString(text, -1) {
		for _, line := range strings.Split(fig, "\n") {
			m := tableCaptionRe.FindStringSubmatch(strings.TrimSpace(line))
			if m == nil {
				continue
			}
			caption := strings.TrimSpace(m[1])
			if len(caption) >= 10 {
				return "Table: " + caption
			}
		}
	}
	return ""
}
