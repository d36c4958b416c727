// Package chunker turns extracted pages into token-bounded, layout-aware
// text chunks. Tables and figures are atomic: a <figure> block is never
// split across chunks, even when that means exceeding the token cap.
package chunker

import (
	"regexp"
	"strings"

	"github.com/yungbote/docingest/internal/domain"
	"github.com/yungbote/docingest/internal/pkg/logger"
	"github.com/yungbote/docingest/internal/token"
)

const (
	// absoluteTokenCeiling is the point past which an atomic block is
	// almost certainly pathological input; we still emit it, loudly.
	absoluteTokenCeiling = 8000

	// tableRefWindowChars bounds how far back a citing sentence may sit
	// and still be pulled into the table's chunk.
	tableRefWindowChars = 150

	// tableRefRemainderFloor keeps the flushed chunk from being gutted
	// by the pullback.
	tableRefRemainderFloor = 300
)

type Config struct {
	MaxTokens          int     // target minimum per chunk
	MaxSectionTokens   int     // hard max per chunk
	MaxChars           int     // soft character ceiling
	OverlapPercent     float64 // overlap size as percent of MaxTokens
	CrossPageOverlap   bool
	DisableCharLimit   bool
	EmbeddingMaxTokens int // declared by the embeddings provider; 0 = unknown

	// TableLegendBufferMultiplier lets a short legend paragraph ride along
	// with the figure that precedes it.
	TableLegendBufferMultiplier float64
}

func (c *Config) normalize() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 500
	}
	if c.MaxSectionTokens <= 0 {
		c.MaxSectionTokens = 750
	}
	if c.MaxChars <= 0 {
		c.MaxChars = 2500
	}
	if c.OverlapPercent < 0 {
		c.OverlapPercent = 0
	}
	if c.TableLegendBufferMultiplier <= 0 {
		c.TableLegendBufferMultiplier = 2.5
	}
}

// Chunker converts ordered pages into chunks. It never fails a document;
// degenerate layout only produces warnings.
type Chunker interface {
	ChunkPages(pages []*domain.ExtractedPage) []domain.TextChunk
}

type chunker struct {
	log             *logger.Logger
	counter         token.Counter
	cfg             Config
	orphanThreshold int
}

func New(log *logger.Logger, counter token.Counter, cfg Config) Chunker {
	cfg.normalize()
	log = log.With("service", "Chunker")
	if cfg.EmbeddingMaxTokens > 0 {
		// Leave a 15% margin for overlap growth plus orphan-merge growth.
		safe := int(float64(cfg.EmbeddingMaxTokens) * 0.85 / (1 + cfg.OverlapPercent/100))
		if safe < cfg.MaxSectionTokens {
			log.Info("lowering hard chunk cap to fit embedding model",
				"embedding_max_tokens", cfg.EmbeddingMaxTokens,
				"max_section_tokens", safe,
			)
			cfg.MaxSectionTokens = safe
		}
		if safe < cfg.MaxTokens {
			cfg.MaxTokens = safe
		}
	}
	ratio := 0.7
	if cfg.EmbeddingMaxTokens > 0 && cfg.EmbeddingMaxTokens < 400 {
		ratio = 0.3
	}
	threshold := int(float64(cfg.MaxSectionTokens) * ratio)
	if threshold < 100 {
		threshold = 100
	}
	return &chunker{log: log, counter: counter, cfg: cfg, orphanThreshold: threshold}
}

func (c *chunker) count(text string) int { return c.counter.Count(text) }

func (c *chunker) ChunkPages(pages []*domain.ExtractedPage) []domain.TextChunk {
	var all []domain.TextChunk
	for _, page := range pages {
		if page == nil {
			continue
		}
		text := c.preparePageText(page)
		cleaned, header := ExtractHeader(text)
		pageChunks := c.accumulate(page.PageNum, header, splitBlocks(cleaned))
		pageChunks = c.mergeSamePageOrphans(pageChunks)
		if len(pageChunks) == 0 {
			continue
		}
		if len(all) > 0 {
			all, pageChunks = c.mergePageSeam(all, pageChunks)
		}
		c.applyIntraPageOverlap(pageChunks)
		if len(all) > 0 && len(pageChunks) > 0 && c.cfg.OverlapPercent > 0 {
			c.applyCrossPageOverlap(&all[len(all)-1], &pageChunks[0])
		}
		all = append(all, pageChunks...)
	}
	all = c.finalOrphanPass(all)
	c.associate(all, pages)
	reindex(all)
	return all
}

// preparePageText replaces each figure placeholder with its <figure> wrapper
// carrying the id, optional title, latex, and description. Table renderings
// already arrive wrapped by the extractor.
func (c *chunker) preparePageText(page *domain.ExtractedPage) string {
	text := page.Text
	for _, fig := range page.Figures {
		if fig == nil || fig.Placeholder == "" {
			continue
		}
		wrapper := figureWrapper(fig)
		if !strings.Contains(text, fig.Placeholder) {
			c.log.Warn("figure placeholder missing from page text; appending wrapper",
				"figure_id", fig.FigureID,
				"page", page.PageNum,
			)
			text = text + "\n" + wrapper
			continue
		}
		text = strings.Replace(text, fig.Placeholder, wrapper, 1)
	}
	return text
}

func figureWrapper(fig *domain.ExtractedImage) string {
	var b strings.Builder
	b.WriteString(`<figure id="` + fig.FigureID + `">`)
	if fig.Title != "" {
		b.WriteString("\n**" + fig.Title + "**")
	}
	if fig.Latex != "" {
		b.WriteString("\n$$" + fig.Latex + "$$")
	}
	if fig.Description != "" {
		b.WriteString("\n" + fig.Description)
	}
	b.WriteString("\n</figure>")
	return b.String()
}

// builder accumulates spans for the chunk under construction.
type builder struct {
	parts    []string
	tokenLen int
	charLen  int
}

func (b *builder) add(span string, tokens int) {
	b.parts = append(b.parts, span)
	b.tokenLen += tokens
	b.charLen += len(span)
}

func (b *builder) text() string { return strings.Join(b.parts, "") }

func (b *builder) reset() {
	b.parts = nil
	b.tokenLen = 0
	b.charLen = 0
}

func (b *builder) empty() bool { return len(b.parts) == 0 }

func (c *chunker) canFit(b *builder, span string, tokens int) bool {
	if b.empty() {
		return tokens <= c.cfg.MaxSectionTokens
	}
	if b.tokenLen+tokens > c.cfg.MaxSectionTokens {
		return false
	}
	if !c.cfg.DisableCharLimit && b.charLen+len(span) > c.cfg.MaxChars {
		return false
	}
	return true
}

func (c *chunker) accumulate(pageNum int, header string, blocks []block) []domain.TextChunk {
	var chunks []domain.TextChunk
	b := &builder{}

	emit := func(text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		chunks = append(chunks, domain.TextChunk{
			PageNum:    pageNum,
			Text:       text,
			TokenCount: c.count(text),
			PageHeader: header,
		})
	}
	flush := func() {
		if b.empty() {
			return
		}
		emit(b.text())
		b.reset()
	}

	for i := 0; i < len(blocks); i++ {
		blk := blocks[i]
		if blk.kind == blockFigure {
			figTokens := c.count(blk.text)
			if !b.empty() && b.tokenLen+figTokens > c.cfg.MaxSectionTokens {
				// The figure needs its own chunk, but a citing phrase at the
				// builder tail should travel with the table it cites.
				ref := c.pullTableReference(b)
				flush()
				if ref != "" {
					b.add(ref, c.count(ref))
				}
			}
			b.add(blk.text, figTokens)
			if figTokens > c.cfg.MaxSectionTokens {
				c.log.Warn("atomic figure exceeds hard chunk cap",
					"page", pageNum,
					"tokens", figTokens,
					"cap", c.cfg.MaxSectionTokens,
				)
			}
			if b.tokenLen > absoluteTokenCeiling {
				c.log.Warn("atomic figure block exceeds absolute token ceiling",
					"page", pageNum,
					"tokens", b.tokenLen,
				)
			}
			// A short legend paragraph right after the figure stays with it.
			if i+1 < len(blocks) && blocks[i+1].kind == blockText {
				next := blocks[i+1].text
				nextTokens := c.count(next)
				limit := float64(c.cfg.MaxTokens) * c.cfg.TableLegendBufferMultiplier
				if float64(b.tokenLen+nextTokens) <= limit {
					b.add(next, nextTokens)
					i++
				}
			}
			flush()
			continue
		}

		for _, span := range splitSentences(blk.text) {
			spanTokens := c.count(span)
			if spanTokens > c.cfg.MaxTokens {
				if !b.empty() {
					if b.tokenLen >= 300 || float64(spanTokens) >= 1.5*float64(c.cfg.MaxTokens) {
						flush()
					} else {
						span = joinSmart(b.text(), span)
						b.reset()
					}
				}
				for _, piece := range c.midSplit(span, 0) {
					emit(piece)
				}
				continue
			}
			if c.canFit(b, span, spanTokens) {
				b.add(span, spanTokens)
				continue
			}
			if b.tokenLen < c.cfg.MaxTokens && b.tokenLen+spanTokens <= c.cfg.MaxSectionTokens {
				b.add(span, spanTokens) // under-target rescue
				continue
			}
			flush()
			if c.canFit(b, span, spanTokens) {
				b.add(span, spanTokens)
			} else {
				emit(span)
			}
		}
	}
	flush()
	return chunks
}

// pullTableReference removes a trailing table-citing sentence from the
// builder when it sits within the proximity window and the remainder keeps
// enough substance, returning the sentence so it can prefix the table chunk.
func (c *chunker) pullTableReference(b *builder) string {
	text := b.text()
	spans := splitSentences(text)
	if len(spans) < 2 {
		return ""
	}
	last := spans[len(spans)-1]
	if len(last) > tableRefWindowChars || !tableRefSentenceRe.MatchString(last) {
		return ""
	}
	remainder := strings.Join(spans[:len(spans)-1], "")
	remainderTokens := c.count(remainder)
	if remainderTokens < tableRefRemainderFloor {
		return ""
	}
	b.reset()
	b.add(remainder, remainderTokens)
	return last
}

// A citing phrase like "… are listed in Table 3-2 below." or "(Table 7)".
var tableRefSentenceRe = regexp.MustCompile(`(?i)\(?\s*(?:see\s+)?Table\s+\d+(?:-\d+)?\b`)

// midSplit recursively halves over-cap text at sentence, then word, then
// midpoint boundaries. depth guards against non-progressing splits.
func (c *chunker) midSplit(text string, depth int) []string {
	if c.count(text) <= c.cfg.MaxTokens {
		return []string{strings.TrimSpace(text)}
	}
	if len(text) < 100 {
		c.log.Warn("unsplittable over-cap span (long token run); emitting as-is",
			"chars", len(text),
		)
		return []string{strings.TrimSpace(text)}
	}
	if depth > 32 {
		c.log.Warn("mid-split recursion limit reached; emitting as-is", "chars", len(text))
		return []string{strings.TrimSpace(text)}
	}

	runes := []rune(text)
	left, right := c.splitHalves(runes)
	if len(left) >= len(runes) || len(right) >= len(runes) || len(left) == 0 || len(right) == 0 {
		c.log.Warn("mid-split made no progress; emitting as-is", "chars", len(text))
		return []string{strings.TrimSpace(text)}
	}
	out := c.midSplit(string(left), depth+1)
	return append(out, c.midSplit(string(right), depth+1)...)
}

// splitHalves finds the cut: sentence punctuation nearest the midpoint,
// else a word break, else the raw midpoint with a symmetric overlap.
func (c *chunker) splitHalves(runes []rune) (left, right []rune) {
	mid := len(runes) / 2
	if p := scanOutward(runes, mid, func(r rune) bool { return isSentenceEnd(r) }); p > 0 {
		return runes[:p], runes[p:]
	}
	if p := scanOutward(runes, mid, func(r rune) bool { return r == ' ' || r == '\n' || r == '\t' }); p > 0 {
		return runes[:p], runes[p:]
	}
	cut := alignToNewline(runes, mid)
	ov := int(float64(len(runes)) * c.cfg.OverlapPercent / 100 / 2)
	lo, hi := cut+ov, cut-ov
	if lo > len(runes) {
		lo = len(runes)
	}
	if hi < 0 {
		hi = 0
	}
	return runes[:lo], runes[hi:]
}

// scanOutward looks for the boundary rune closest to mid in either
// direction and returns the position just after it.
func scanOutward(runes []rune, mid int, boundary func(rune) bool) int {
	for d := 0; d <= mid; d++ {
		for _, p := range [2]int{mid + d, mid - d} {
			if p > 0 && p < len(runes) && boundary(runes[p-1]) {
				return p
			}
		}
	}
	return -1
}

// alignToNewline nudges a raw midpoint cut to a nearby newline, skipping
// newlines that sit immediately before a numbered list item.
func alignToNewline(runes []rune, mid int) int {
	const window = 40
	for d := 0; d <= window; d++ {
		for _, p := range [2]int{mid + d, mid - d} {
			if p <= 0 || p >= len(runes) || runes[p-1] != '\n' {
				continue
			}
			if startsNumberedItem(runes[p:]) {
				continue
			}
			return p
		}
	}
	return mid
}

func startsNumberedItem(runes []rune) bool {
	i := 0
	for i < len(runes) && runes[i] >= '0' && runes[i] <= '9' {
		i++
	}
	return i > 0 && i < len(runes) && (runes[i] == '.' || runes[i] == ')')
}

// reindex assigns ChunkIndexOnPage in final emission order per page.
func reindex(chunks []domain.TextChunk) {
	perPage := map[int]int{}
	for i := range chunks {
		chunks[i].ChunkIndexOnPage = perPage[chunks[i].PageNum]
		perPage[chunks[i].PageNum]++
	}
}

// associate attaches every table and figure whose id="…" substring appears
// in a chunk's text. The association is purely textual, so it survives any
// merge or overlap applied earlier.
func (c *chunker) associate(chunks []domain.TextChunk, pages []*domain.ExtractedPage) {
	var tables []*domain.ExtractedTable
	var figures []*domain.ExtractedImage
	for _, p := range pages {
		if p == nil {
			continue
		}
		tables = append(tables, p.Tables...)
		figures = append(figures, p.Figures...)
	}
	for i := range chunks {
		for _, t := range tables {
			if t != nil && strings.Contains(chunks[i].Text, `id="`+t.TableID+`"`) {
				chunks[i].Tables = append(chunks[i].Tables, t)
			}
		}
		for _, f := range figures {
			if f != nil && strings.Contains(chunks[i].Text, `id="`+f.FigureID+`"`) {
				chunks[i].Figures = append(chunks[i].Figures, f)
			}
		}
	}
}
