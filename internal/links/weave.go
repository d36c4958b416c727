// Package links rewrites detected hyperlink rectangles into inline
// markdown-style links within page text.
package links

import (
	"regexp"
	"strings"

	"github.com/yungbote/docingest/internal/domain"
)

var (
	markdownLinkRe = regexp.MustCompile(`\[[^\]]*\]\([^)]*\)`)
	pageFooterRe   = regexp.MustCompile(`<!--PageFooter="([^"]*)"-->`)
	commentRe      = regexp.MustCompile(`<!--[^>]*-->`)
	urlRe          = regexp.MustCompile(`https?://[^\s"<>)]+`)
)

// Weave substitutes the first non-linked occurrence of each hyperlink's text
// with [text](url) and surfaces footer-only citation URLs as **Reference:**
// lines. Substitution is textual; when the same anchor text appears several
// times on a page, the first non-linked occurrence wins.
func Weave(text string, hyperlinks []domain.PageHyperlink) string {
	if len(hyperlinks) > 0 {
		for _, g := range groupByURL(hyperlinks) {
			text = substituteLink(text, g.text, g.url)
		}
	}
	return weaveFooterReferences(text)
}

type linkGroup struct {
	url  string
	text string
}

// groupByURL joins multi-line links back together: several rectangles that
// share a URL are one logical link whose text is the space-join of the parts.
func groupByURL(hyperlinks []domain.PageHyperlink) []linkGroup {
	order := make([]string, 0, len(hyperlinks))
	parts := make(map[string][]string, len(hyperlinks))
	for _, h := range hyperlinks {
		u := strings.TrimSpace(h.URL)
		t := strings.TrimSpace(h.LinkText)
		if u == "" || t == "" {
			continue
		}
		if _, ok := parts[u]; !ok {
			order = append(order, u)
		}
		parts[u] = append(parts[u], t)
	}
	out := make([]linkGroup, 0, len(order))
	for _, u := range order {
		out = append(out, linkGroup{url: u, text: strings.Join(parts[u], " ")})
	}
	return out
}

func linkSpans(text string) [][]int {
	return markdownLinkRe.FindAllStringIndex(text, -1)
}

func insideSpan(spans [][]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && end > s[0] {
			return true
		}
	}
	return false
}

// substituteLink tries the match rules in order: cleaned text (surrounding
// quotes stripped), original text, flexible whitespace, text minus trailing
// punctuation. The first rule that lands a non-linked occurrence wins.
func substituteLink(text, linkText, url string) string {
	cleaned := strings.Trim(linkText, `"'“”‘’`)
	candidates := []string{}
	if cleaned != "" && cleaned != linkText {
		candidates = append(candidates, cleaned)
	}
	candidates = append(candidates, linkText)

	for _, cand := range candidates {
		if out, ok := replaceFirstLiteral(text, cand, url); ok {
			return out
		}
	}
	if out, ok := replaceFirstFlexible(text, linkText, url); ok {
		return out
	}
	trimmed := strings.TrimRight(linkText, ".,;:!?")
	if trimmed != "" && trimmed != linkText {
		if out, ok := replaceFirstLiteral(text, trimmed, url); ok {
			return out
		}
	}
	return text
}

func replaceFirstLiteral(text, target, url string) (string, bool) {
	if strings.TrimSpace(target) == "" {
		return text, false
	}
	spans := linkSpans(text)
	from := 0
	for {
		idx := strings.Index(text[from:], target)
		if idx < 0 {
			return text, false
		}
		start := from + idx
		end := start + len(target)
		if !insideSpan(spans, start, end) {
			return text[:start] + "[" + target + "](" + url + ")" + text[end:], true
		}
		from = end
	}
}

func replaceFirstFlexible(text, target, url string) (string, bool) {
	if strings.TrimSpace(target) == "" {
		return text, false
	}
	pattern := strings.ReplaceAll(regexp.QuoteMeta(target), `\ `, `\s+`)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return text, false
	}
	spans := linkSpans(text)
	for _, m := range re.FindAllStringIndex(text, -1) {
		if insideSpan(spans, m[0], m[1]) {
			continue
		}
		matched := text[m[0]:m[1]]
		return text[:m[0]] + "[" + matched + "](" + url + ")" + text[m[1]:], true
	}
	return text, false
}

// weaveFooterReferences preserves citation URLs that appear only inside
// PageFooter comments by inserting a visible **Reference:** line right
// before the footer marker.
func weaveFooterReferences(text string) string {
	visible := commentRe.ReplaceAllString(text, "")
	seen := map[string]bool{}
	return pageFooterRe.ReplaceAllStringFunc(text, func(marker string) string {
		sub := pageFooterRe.FindStringSubmatch(marker)
		if len(sub) < 2 {
			return marker
		}
		url := urlRe.FindString(sub[1])
		if url == "" || seen[url] || strings.Contains(visible, url) {
			return marker
		}
		seen[url] = true
		return "\n\n**Reference:** " + url + "\n\n" + marker
	})
}
