package extract

import (
	"regexp"
	"strings"

	"github.com/yungbote/docingest/internal/domain"
)

// bareURLRe matches http(s) URLs in running text. PDF link annotations are
// not parsed; URLs visible in the extracted text are the link source, with
// no rectangle available.
var bareURLRe = regexp.MustCompile(`https?://[^\s<>()\[\]{}"']+`)

// detectHyperlinks finds visible URLs in page text. Trailing sentence
// punctuation is stripped so "see https://example.com." links cleanly.
func detectHyperlinks(text string, pageNum int) []domain.PageHyperlink {
	matches := bareURLRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var links []domain.PageHyperlink
	for _, m := range matches {
		url := strings.TrimRight(m, ".,;:!?")
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		links = append(links, domain.PageHyperlink{
			PageNum:  pageNum,
			URL:      url,
			LinkText: url,
		})
	}
	return links
}
