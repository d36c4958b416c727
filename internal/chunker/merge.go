package chunker

import (
	"strings"
	"unicode"

	"github.com/yungbote/docingest/internal/domain"
)

// mergeInto folds cur into pred and recounts.
func (c *chunker) mergeInto(pred *domain.TextChunk, cur domain.TextChunk) {
	pred.Text = strings.TrimSpace(pred.Text) + "\n" + strings.TrimSpace(cur.Text)
	pred.TokenCount = c.count(pred.Text)
	if pred.PageHeader == "" {
		pred.PageHeader = cur.PageHeader
	}
}

// mergeSamePageOrphans absorbs sub-threshold prose chunks into their
// predecessor. Chunks holding tables or figures are left alone.
func (c *chunker) mergeSamePageOrphans(chunks []domain.TextChunk) []domain.TextChunk {
	if len(chunks) < 2 {
		return chunks
	}
	out := chunks[:1]
	for _, cur := range chunks[1:] {
		pred := &out[len(out)-1]
		if cur.TokenCount < c.orphanThreshold &&
			!strings.Contains(strings.ToLower(cur.Text), "<table") &&
			!containsFigure(cur.Text) {
			combined := pred.TokenCount + cur.TokenCount
			overCapPred := pred.TokenCount > c.cfg.MaxSectionTokens &&
				float64(cur.TokenCount) < 0.3*float64(pred.TokenCount)
			if combined <= c.cfg.MaxSectionTokens || overCapPred {
				c.mergeInto(pred, cur)
				continue
			}
		}
		out = append(out, cur)
	}
	return out
}

// mergePageSeam reconciles the last chunk of the processed document so far
// with the first chunk(s) of a new page: orphan absorption, full merge, or
// a partial-sentence shift of the dangling fragment.
func (c *chunker) mergePageSeam(all, page []domain.TextChunk) ([]domain.TextChunk, []domain.TextChunk) {
	prev := &all[len(all)-1]
	first := &page[0]

	// Differing section headers mark a real boundary.
	if prev.PageHeader != "" && first.PageHeader != "" &&
		!strings.HasPrefix(prev.PageHeader, "Table:") &&
		!strings.HasPrefix(first.PageHeader, "Table:") &&
		!strings.EqualFold(prev.PageHeader, first.PageHeader) {
		return all, page
	}
	// Figures stay atomic on both sides of the seam.
	if containsFigure(prev.Text) && containsFigure(first.Text) {
		return all, page
	}

	// Orphan safety net for tiny page-leading fragments.
	if first.TokenCount < 100 &&
		!containsFigure(prev.Text) && !containsFigure(first.Text) &&
		float64(prev.TokenCount+first.TokenCount) <= 0.8*float64(c.cfg.MaxTokens) {
		prev.Text = joinSmart(prev.Text, first.Text)
		prev.TokenCount = c.count(prev.Text)
		return all, page[1:]
	}

	if c.cfg.CrossPageOverlap {
		if startsWithHash(first.Text) || headingLikeFirstLine(first.Text) {
			return all, page
		}
	} else {
		if endsWithSentencePunct(prev.Text) || startsWithHash(first.Text) || !startsLowercase(first.Text) {
			return all, page
		}
	}

	charCeiling := int(1.2 * float64(c.cfg.MaxChars))
	if prev.TokenCount+first.TokenCount <= c.cfg.MaxTokens &&
		len(prev.Text)+len(first.Text) <= charCeiling {
		prev.Text = joinSmart(prev.Text, first.Text)
		prev.TokenCount = c.count(prev.Text)
		return all, page[1:]
	}

	// The sentence interrupted by the page break travels forward.
	frag, retained := trailingFragment(prev.Text)
	if frag == "" {
		return all, page
	}
	moved := joinSmart(frag, first.Text)
	if c.count(moved) <= c.cfg.MaxTokens && len(moved) <= charCeiling {
		first.Text = moved
		first.TokenCount = c.count(moved)
		return c.retainOrDrop(all, retained), page
	}

	// Fragment too large to prefix: split it into chunks of its own,
	// inserted ahead of the new page's chunks.
	var inserted []domain.TextChunk
	for _, piece := range c.midSplit(frag, 0) {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		inserted = append(inserted, domain.TextChunk{
			PageNum:    prev.PageNum,
			Text:       piece,
			TokenCount: c.count(piece),
			PageHeader: prev.PageHeader,
		})
	}
	if len(inserted) == 0 {
		return all, page
	}
	return c.retainOrDrop(all, retained), append(inserted, page...)
}

func (c *chunker) retainOrDrop(all []domain.TextChunk, retained string) []domain.TextChunk {
	retained = strings.TrimSpace(retained)
	if retained == "" {
		return all[:len(all)-1]
	}
	prev := &all[len(all)-1]
	prev.Text = retained
	prev.TokenCount = c.count(retained)
	return all
}

// trailingFragment splits text at its last sentence-ending rune. The part
// after it is the fragment; empty when the text ends on a full sentence.
func trailingFragment(text string) (frag, retained string) {
	runes := []rune(text)
	last := -1
	for i, r := range runes {
		if isSentenceEnd(r) {
			last = i
		}
	}
	if last < 0 || last == len(runes)-1 {
		return "", text
	}
	frag = strings.TrimSpace(string(runes[last+1:]))
	if frag == "" {
		return "", text
	}
	return frag, string(runes[:last+1])
}

// finalOrphanPass is the document-wide sweep. It tolerates modest overshoot
// of the hard cap for small orphans to preserve semantic continuity.
func (c *chunker) finalOrphanPass(chunks []domain.TextChunk) []domain.TextChunk {
	if len(chunks) < 2 {
		return chunks
	}
	out := chunks[:1]
	for _, cur := range chunks[1:] {
		if cur.TokenCount >= c.orphanThreshold || startsWithNewSection(cur.Text) {
			out = append(out, cur)
			continue
		}
		pred := &out[len(out)-1]
		if c.purelyAtomic(pred.Text) || c.headerConflict(pred, &cur) {
			out = append(out, cur)
			continue
		}
		limit := c.cfg.MaxSectionTokens
		switch {
		case float64(cur.TokenCount) < 0.5*float64(c.cfg.MaxSectionTokens):
			limit = int(1.2 * float64(c.cfg.MaxSectionTokens))
		case float64(cur.TokenCount) < 0.7*float64(c.cfg.MaxSectionTokens):
			limit = int(1.15 * float64(c.cfg.MaxSectionTokens))
		}
		if pred.TokenCount+cur.TokenCount <= limit {
			c.mergeInto(pred, cur)
			continue
		}
		out = append(out, cur)
	}
	return out
}

// purelyAtomic reports a chunk that is essentially only a table or figure,
// with under 50 tokens of actual prose around it.
func (c *chunker) purelyAtomic(text string) bool {
	lower := strings.ToLower(text)
	if !strings.Contains(lower, "<figure") && !strings.Contains(lower, "<table") {
		return false
	}
	return c.count(textOutsideFigures(text)) < 50
}

func (c *chunker) headerConflict(pred *domain.TextChunk, cur *domain.TextChunk) bool {
	if pred.PageHeader == "" || cur.PageHeader == "" {
		return false
	}
	// Below 400 tokens the header is only a soft hint.
	return cur.TokenCount >= 400 && !strings.EqualFold(pred.PageHeader, cur.PageHeader)
}

func (c *chunker) overlapTargetTokens() int {
	return int(c.cfg.OverlapPercent * float64(c.cfg.MaxTokens) / 100)
}

// applyIntraPageOverlap extends each chunk with the opening of its successor
// so retrieval sees the continuation context.
func (c *chunker) applyIntraPageOverlap(chunks []domain.TextChunk) {
	target := c.overlapTargetTokens()
	if target <= 0 {
		return
	}
	for i := 1; i < len(chunks); i++ {
		prev, cur := &chunks[i-1], &chunks[i]
		if containsFigure(prev.Text) || startsWithFigure(cur.Text) {
			continue
		}
		ov := c.overlapPrefix(cur.Text, target)
		if ov == "" {
			continue
		}
		extended := joinSmart(prev.Text, ov)
		tokens := c.count(extended)
		if tokens > c.cfg.MaxSectionTokens {
			c.log.Debug("intra-page overlap rejected by hard cap",
				"page", prev.PageNum,
				"tokens", tokens,
			)
			continue
		}
		prev.Text = extended
		prev.TokenCount = tokens
	}
}

// applyCrossPageOverlap prefixes the first chunk of a page with the closing
// prose of the previous page's last chunk, bridging section flow across the
// page break. Figure bodies are never used as overlap material.
func (c *chunker) applyCrossPageOverlap(prev, cur *domain.TextChunk) {
	target := c.overlapTargetTokens()
	if target <= 0 {
		return
	}
	source := prev.Text
	if containsFigure(source) {
		lower := strings.ToLower(source)
		if idx := strings.LastIndex(lower, "</figure>"); idx >= 0 {
			after := source[idx+len("</figure>"):]
			if strings.TrimSpace(after) != "" {
				source = after
			} else if open := strings.Index(lower, "<figure"); open > 0 {
				source = source[:open]
			} else {
				return
			}
		} else {
			return
		}
	}
	ov := c.overlapSuffix(source, target)
	if ov == "" {
		return
	}
	extended := joinSmart(ov, cur.Text)
	tokens := c.count(extended)
	if tokens > c.cfg.MaxSectionTokens {
		c.log.Debug("cross-page overlap rejected by hard cap",
			"page", cur.PageNum,
			"tokens", tokens,
		)
		return
	}
	cur.Text = extended
	cur.TokenCount = tokens
}

// overlapPrefix picks a prefix of text whose token count lands near target,
// then extends to the nearest sentence or word boundary. Empty when the
// whole text is no longer than the target (overlap would just duplicate it).
func (c *chunker) overlapPrefix(text string, target int) string {
	runes := []rune(text)
	if len(runes) == 0 || c.count(text) <= target {
		return ""
	}
	// Binary search for the smallest prefix holding >= target tokens.
	lo, hi, best := 1, len(runes), len(runes)
	for lo <= hi {
		mid := (lo + hi) / 2
		if c.count(string(runes[:mid])) >= target {
			best = mid
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}
	ceiling := int(1.5 * float64(target))
	end := best
	if p := boundaryForward(runes, best, isSentenceEnd); p > 0 && c.count(string(runes[:p])) <= ceiling {
		end = p
	} else if p := boundaryForward(runes, best, isSpaceRune); p > 0 && c.count(string(runes[:p])) <= ceiling {
		end = p
	}
	out := strings.TrimSpace(string(runes[:end]))
	if out == "" || c.count(out) > ceiling {
		return ""
	}
	return out
}

// overlapSuffix mirrors overlapPrefix from the tail of the text.
func (c *chunker) overlapSuffix(text string, target int) string {
	runes := []rune(text)
	if len(runes) == 0 || c.count(text) <= target {
		return ""
	}
	lo, hi, best := 0, len(runes)-1, 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if c.count(string(runes[mid:])) >= target {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	ceiling := int(1.5 * float64(target))
	start := best
	// Walk back to just after the previous sentence end, else a word break.
	if p := boundaryBackward(runes, best, isSentenceEnd); p >= 0 && c.count(string(runes[p:])) <= ceiling {
		start = p
	} else if p := boundaryBackward(runes, best, isSpaceRune); p >= 0 && c.count(string(runes[p:])) <= ceiling {
		start = p
	}
	out := strings.TrimSpace(string(runes[start:]))
	if out == "" || c.count(out) > ceiling {
		return ""
	}
	return out
}

func boundaryForward(runes []rune, from int, boundary func(rune) bool) int {
	for p := from; p < len(runes); p++ {
		if boundary(runes[p]) {
			return p + 1
		}
	}
	return -1
}

func boundaryBackward(runes []rune, from int, boundary func(rune) bool) int {
	for p := from; p > 0; p-- {
		if boundary(runes[p-1]) {
			return p
		}
	}
	return -1
}

func isSpaceRune(r rune) bool { return r == ' ' || r == '\n' || r == '\t' }

func startsWithHash(text string) bool {
	return strings.HasPrefix(strings.TrimLeft(text, " \t\n"), "#")
}

func startsWithNewSection(text string) bool {
	return strings.HasPrefix(strings.TrimLeft(text, " \t\n"), "##")
}

func startsLowercase(text string) bool {
	for _, r := range strings.TrimLeft(text, " \t\n") {
		return unicode.IsLower(r)
	}
	return false
}

func endsWithSentencePunct(text string) bool {
	trimmed := strings.TrimRight(text, " \t\n")
	runes := []rune(trimmed)
	if len(runes) == 0 {
		return false
	}
	return isSentenceEnd(runes[len(runes)-1])
}

// headingLikeFirstLine detects a short title-cased opening line followed by
// more text, treated as a section start even without markdown markers.
func headingLikeFirstLine(text string) bool {
	trimmed := strings.TrimLeft(text, " \t\n")
	line, rest, found := strings.Cut(trimmed, "\n")
	if !found {
		return false
	}
	line = strings.TrimSpace(line)
	if line == "" || len(line) >= 80 || strings.TrimSpace(rest) == "" {
		return false
	}
	runes := []rune(line)
	return unicode.IsUpper(runes[0]) && !isSentenceEnd(runes[len(runes)-1])
}
