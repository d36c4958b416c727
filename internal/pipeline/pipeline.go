// Package pipeline drives one document from raw bytes to indexed chunks:
// delete stale state, persist the source, extract pages, enrich figures and
// tables, chunk, embed, and upsert.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/docingest/internal/artifacts"
	"github.com/yungbote/docingest/internal/chunker"
	"github.com/yungbote/docingest/internal/describe"
	"github.com/yungbote/docingest/internal/domain"
	"github.com/yungbote/docingest/internal/extract"
	"github.com/yungbote/docingest/internal/links"
	"github.com/yungbote/docingest/internal/pagesplit"
	"github.com/yungbote/docingest/internal/pkg/logger"
	"github.com/yungbote/docingest/internal/source"
	"github.com/yungbote/docingest/internal/tablerender"
)

const imageConcurrency = 8

// Embedder is the slice of the embeddings provider the pipeline needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	MaxSequenceTokens() int
}

// VectorStore is the slice of the index the pipeline needs. Deletes for a
// sourcefile complete before its new inserts are issued.
type VectorStore interface {
	Upload(ctx context.Context, docs []*domain.ChunkDocument, includeEmbeddings bool) (int, error)
	DeleteByFilename(ctx context.Context, filename string) (int, error)
	DeleteAll(ctx context.Context) (int, error)
	Dimensions() int
	RequiresEmbeddings() bool
	EnsureCollection(ctx context.Context) error
}

type Options struct {
	// ProcessFigures asks the extractor for cropped figure bitmaps and
	// enables the describe/upload stage.
	ProcessFigures bool
	// CleanArtifacts deletes a document's prior artifacts before re-adding
	// it. Only meaningful with remote storage.
	CleanArtifacts bool
	// TableMode selects the rendering the chunker sees for tables.
	TableMode tablerender.Mode
	// SummarizeTables asks the describer for a prose summary of each
	// rendered table, appended inside the table's figure wrapper.
	SummarizeTables bool
	// IntegratedVectorization marks a store that vectorizes server-side;
	// embeddings are then neither computed nor attached.
	IntegratedVectorization bool
}

// Pipeline processes one document at a time; instances are safe for
// concurrent Process calls.
type Pipeline struct {
	log       *logger.Logger
	extractor extract.Extractor
	chunk     chunker.Chunker
	store     artifacts.Store
	vectors   VectorStore
	embedder  Embedder
	describer describe.Describer
	splitter  pagesplit.Tools
	opts      Options
}

func New(
	log *logger.Logger,
	extractor extract.Extractor,
	chunk chunker.Chunker,
	store artifacts.Store,
	vectors VectorStore,
	embedder Embedder,
	describer describe.Describer,
	splitter pagesplit.Tools,
	opts Options,
) *Pipeline {
	return &Pipeline{
		log:       log.With("service", "DocumentPipeline"),
		extractor: extractor,
		chunk:     chunk,
		store:     store,
		vectors:   vectors,
		embedder:  embedder,
		describer: describer,
		splitter:  splitter,
		opts:      opts,
	}
}

// warnings accumulates non-fatal trouble across a document's run; the list
// lands on the result and, for the extraction stages, in the manifest.
type warnings struct {
	mu   sync.Mutex
	list []string
}

func (w *warnings) add(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.list = append(w.list, fmt.Sprintf(format, args...))
}

func (w *warnings) snapshot() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.list))
	copy(out, w.list)
	return out
}

// Process never raises; failures land in the result's ErrorMessage.
func (p *Pipeline) Process(ctx context.Context, doc *source.Document) domain.IngestionResult {
	started := time.Now()
	result := domain.IngestionResult{Filename: doc.Filename}

	warn := &warnings{}
	indexed, err := p.process(ctx, doc, warn)
	result.Seconds = time.Since(started).Seconds()
	result.ChunksIndexed = indexed
	result.Warnings = warn.snapshot()
	if err != nil {
		result.ErrorMessage = err.Error()
		p.log.Error("Document ingestion failed",
			"filename", doc.Filename,
			"error", err.Error(),
			"seconds", result.Seconds,
		)
		return result
	}
	result.Success = true
	p.log.Info("Document ingested",
		"filename", doc.Filename,
		"chunks_indexed", indexed,
		"seconds", result.Seconds,
	)
	return result
}

func (p *Pipeline) process(ctx context.Context, doc *source.Document, warn *warnings) (int, error) {
	name := doc.Filename

	p.deleteStaleState(ctx, name, warn)

	fullDocURL := p.resolveFullDocumentURL(ctx, doc, warn)
	pageURLs := p.uploadPageRenderings(ctx, name, doc.Data, warn)

	pages, err := p.extractor.Extract(ctx, doc.Data, name, p.opts.ProcessFigures)
	if err != nil {
		return 0, fmt.Errorf("extract: %w", err)
	}
	if len(pages) == 0 {
		p.log.Warn("extractor produced no pages", "filename", name)
		warn.add("extractor produced no pages")
		return 0, nil
	}

	if p.opts.ProcessFigures {
		p.processFigures(ctx, name, pages, warn)
	}
	p.renderTables(ctx, pages, warn)
	for _, page := range pages {
		page.Text = links.Weave(page.Text, page.Hyperlinks)
	}

	p.writePageArtifacts(ctx, name, pages, warn)
	p.writeManifest(ctx, name, doc, len(pages), warn)

	chunks := p.chunk.ChunkPages(pages)
	if len(chunks) == 0 {
		p.log.Warn("document produced no chunks", "filename", name)
		warn.add("document produced no chunks")
		return 0, nil
	}
	chunkDocs := p.buildChunkDocuments(ctx, doc, fullDocURL, pageURLs, chunks, warn)

	if p.vectors.RequiresEmbeddings() && !p.opts.IntegratedVectorization {
		if err := p.embedChunks(ctx, chunkDocs); err != nil {
			return 0, fmt.Errorf("embed: %w", err)
		}
	}

	uploaded, err := p.vectors.Upload(ctx, chunkDocs, !p.opts.IntegratedVectorization)
	if err != nil {
		return 0, fmt.Errorf("vector upload: %w", err)
	}
	if uploaded < len(chunkDocs) {
		p.log.Warn("some chunks failed to index",
			"filename", name,
			"uploaded", uploaded,
			"total", len(chunkDocs),
		)
		warn.add("indexed %d of %d chunks", uploaded, len(chunkDocs))
	}
	return uploaded, nil
}

// deleteStaleState removes prior vectors and artifacts for the document in
// parallel. Failures here are logged, never fatal, but both deletes finish
// before any new insert.
func (p *Pipeline) deleteStaleState(ctx context.Context, name string, warn *warnings) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := p.vectors.DeleteByFilename(gctx, name)
		if err != nil {
			p.log.Warn("stale vector delete failed", "filename", name, "error", err.Error())
			warn.add("stale vector delete failed: %v", err)
			return nil
		}
		if n > 0 {
			p.log.Info("Deleted stale vectors", "filename", name, "count", n)
		}
		return nil
	})
	if p.opts.CleanArtifacts && p.store.Remote() {
		g.Go(func() error {
			n, err := p.store.DeleteArtifacts(gctx, name)
			if err != nil {
				p.log.Warn("stale artifact delete failed", "filename", name, "error", err.Error())
				warn.add("stale artifact delete failed: %v", err)
				return nil
			}
			if n > 0 {
				p.log.Info("Deleted stale artifacts", "filename", name, "count", n)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// resolveFullDocumentURL decides the storage_url recorded on every chunk.
func (p *Pipeline) resolveFullDocumentURL(ctx context.Context, doc *source.Document, warn *warnings) string {
	origin := doc.OriginURL
	if strings.HasPrefix(origin, "http://") || strings.HasPrefix(origin, "https://") {
		return origin
	}
	url, err := p.store.WriteFullDocument(ctx, doc.Filename, doc.Data)
	if err != nil {
		p.log.Warn("full document upload failed; citations will use the origin URI",
			"filename", doc.Filename,
			"error", err.Error(),
		)
		warn.add("full document upload failed: %v", err)
		return origin
	}
	if !p.store.Remote() {
		p.log.Warn("local artifact store in use; storage URLs are not dereferenceable remotely",
			"filename", doc.Filename,
		)
	}
	return url
}

// uploadPageRenderings splits a PDF into per-page PDFs and uploads them all
// concurrently. Non-paginated sources and split failures yield no URLs;
// citations then fall back to filename fragments.
func (p *Pipeline) uploadPageRenderings(ctx context.Context, name string, data []byte, warn *warnings) map[int]string {
	if !extract.IsPaginated(name) || p.splitter == nil || !p.store.Remote() {
		return nil
	}
	pages, err := p.splitter.SplitPages(ctx, data)
	if err != nil {
		p.log.Warn("page split failed; per-page citations unavailable",
			"filename", name,
			"error", err.Error(),
		)
		warn.add("page split failed: %v", err)
		return nil
	}

	urls := make([]string, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	for i, pageData := range pages {
		i, pageData := i, pageData
		g.Go(func() error {
			url, err := p.store.WritePageRendering(gctx, name, i, pageData)
			if err != nil {
				p.log.Warn("page rendering upload failed",
					"filename", name,
					"page", i+1,
					"error", err.Error(),
				)
				warn.add("page %d rendering upload failed: %v", i+1, err)
				return nil
			}
			urls[i] = url
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[int]string, len(urls))
	for i, u := range urls {
		if u != "" {
			out[i] = u
		}
	}
	return out
}

// processFigures describes and uploads every figure under one bounded group.
// Individual figure failures never fail the document.
func (p *Pipeline) processFigures(ctx context.Context, name string, pages []*domain.ExtractedPage, warn *warnings) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imageConcurrency)

	for _, page := range pages {
		page := page
		for fi, fig := range page.Figures {
			fi, fig := fi, fig
			if fig == nil || len(fig.ImageBytes) == 0 {
				continue
			}
			g.Go(func() error {
				if p.describer != nil {
					desc, err := p.describer.Describe(gctx, fig.ImageBytes, fig.MimeType)
					if err != nil {
						p.log.Warn("figure description failed",
							"figure_id", fig.FigureID,
							"error", err.Error(),
						)
						warn.add("figure %s description failed: %v", fig.FigureID, err)
					} else {
						fig.Description = desc
					}
				}
				url, err := p.store.WriteImage(gctx, name, page.PageNum, fig.Filename, fig.ImageBytes, fi)
				if err != nil {
					p.log.Warn("figure upload failed",
						"figure_id", fig.FigureID,
						"error", err.Error(),
					)
					warn.add("figure %s upload failed: %v", fig.FigureID, err)
					return nil
				}
				fig.URL = url
				return nil
			})
		}
	}
	_ = g.Wait()
}

// renderTables renders every table and substitutes its placeholder in page
// text with the wrapped rendering the chunker treats as atomic. Summary
// failures degrade to a bare rendering, never a failed document.
func (p *Pipeline) renderTables(ctx context.Context, pages []*domain.ExtractedPage, warn *warnings) {
	for _, page := range pages {
		for _, table := range page.Tables {
			if table == nil {
				continue
			}
			table.RenderedText = tablerender.Render(table, p.opts.TableMode)
			if p.opts.SummarizeTables && p.describer != nil {
				summary, err := p.describer.SummarizeTable(ctx, table.RenderedText)
				if err != nil {
					p.log.Warn("table summary failed",
						"table_id", table.TableID,
						"error", err.Error(),
					)
					warn.add("table %s summary failed: %v", table.TableID, err)
				} else {
					table.Summary = summary
				}
			}
			wrapper := tableWrapper(table)
			placeholder := domain.TablePlaceholder(table.TableID)
			if !strings.Contains(page.Text, placeholder) {
				p.log.Warn("table placeholder missing from page text; appending rendering",
					"table_id", table.TableID,
					"page", page.PageNum,
				)
				warn.add("table %s placeholder missing on page %d", table.TableID, page.PageNum+1)
				page.Text = page.Text + "\n" + wrapper
				continue
			}
			page.Text = strings.Replace(page.Text, placeholder, wrapper, 1)
		}
	}
}

func tableWrapper(t *domain.ExtractedTable) string {
	var b strings.Builder
	b.WriteString(`<figure id="` + t.TableID + `">`)
	b.WriteString("\n<table>\n")
	b.WriteString(t.RenderedText)
	b.WriteString("\n</table>")
	if t.Summary != "" {
		b.WriteString("\n" + t.Summary)
	}
	b.WriteString("\n</figure>")
	return b.String()
}

type pageArtifact struct {
	PageNum int                      `json:"page_num"` // 1-based
	Tables  []*domain.ExtractedTable `json:"tables,omitempty"`
	Figures []*domain.ExtractedImage `json:"figures,omitempty"`
}

func (p *Pipeline) writePageArtifacts(ctx context.Context, name string, pages []*domain.ExtractedPage, warn *warnings) {
	g, gctx := errgroup.WithContext(ctx)
	for _, page := range pages {
		page := page
		g.Go(func() error {
			obj := pageArtifact{
				PageNum: page.PageNum + 1,
				Tables:  page.Tables,
				Figures: page.Figures,
			}
			if _, err := p.store.WritePageJSON(gctx, name, page.PageNum, obj); err != nil {
				p.log.Warn("page artifact write failed",
					"filename", name,
					"page", page.PageNum+1,
					"error", err.Error(),
				)
				warn.add("page %d artifact write failed: %v", page.PageNum+1, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

type manifest struct {
	Filename    string    `json:"filename"`
	SourceURL   string    `json:"source_url"`
	PageCount   int       `json:"page_count"`
	ExtractedAt time.Time `json:"extracted_at"`
	Warnings    []string  `json:"warnings,omitempty"`
}

func (p *Pipeline) writeManifest(ctx context.Context, name string, doc *source.Document, pageCount int, warn *warnings) {
	m := manifest{
		Filename:    name,
		SourceURL:   doc.OriginURL,
		PageCount:   pageCount,
		ExtractedAt: time.Now().UTC(),
		Warnings:    warn.snapshot(),
	}
	if _, err := p.store.WriteManifest(ctx, name, m); err != nil {
		p.log.Warn("manifest write failed", "filename", name, "error", err.Error())
		warn.add("manifest write failed: %v", err)
	}
}

func (p *Pipeline) buildChunkDocuments(
	ctx context.Context,
	doc *source.Document,
	fullDocURL string,
	pageURLs map[int]string,
	chunks []domain.TextChunk,
	warn *warnings,
) []*domain.ChunkDocument {
	name := doc.Filename
	stemSlug := artifacts.Slugify(artifacts.Stem(name))
	ingestedAt := time.Now().UTC()

	out := make([]*domain.ChunkDocument, 0, len(chunks))
	for i := range chunks {
		ch := &chunks[i]
		pageNum := ch.PageNum + 1
		cd := &domain.ChunkDocument{
			Document: domain.DocumentRef{
				SourceFile:  name,
				StorageURL:  fullDocURL,
				ContentType: doc.ContentType,
				MD5:         doc.MD5,
				IngestedAt:  ingestedAt,
			},
			Page: domain.PageRef{
				PageNum:     pageNum,
				SourcePage:  p.resolveSourcePage(name, ch.PageNum, pageURLs),
				PageBlobURL: pageURLs[ch.PageNum],
			},
			Chunk: domain.ChunkRef{
				ChunkID:          fmt.Sprintf("%s_page%d_chunk%d", stemSlug, pageNum, ch.ChunkIndexOnPage+1),
				ChunkIndexOnPage: ch.ChunkIndexOnPage,
				Text:             ch.Text,
				TokenCount:       ch.TokenCount,
				Title:            ch.PageHeader,
			},
			Tables:  ch.Tables,
			Figures: ch.Figures,
		}
		// Local mode keeps a JSON per chunk; in remote mode the index
		// record is the source of truth.
		if !p.store.Remote() {
			if url, err := p.store.WriteChunkJSON(ctx, name, ch.PageNum, ch.ChunkIndexOnPage, cd); err != nil {
				p.log.Warn("chunk artifact write failed",
					"chunk_id", cd.Chunk.ChunkID,
					"error", err.Error(),
				)
				warn.add("chunk %s artifact write failed: %v", cd.Chunk.ChunkID, err)
			} else {
				cd.Artifact.LocalPath = url
			}
		}
		out = append(out, cd)
	}
	return out
}

func (p *Pipeline) resolveSourcePage(name string, pageIdx int, pageURLs map[int]string) string {
	pageNum := pageIdx + 1
	if url, ok := pageURLs[pageIdx]; ok && extract.IsPaginated(name) {
		return fmt.Sprintf("%s#page=%d", lastTwoPathParts(url), pageNum)
	}
	if extract.IsPresentation(name) {
		return fmt.Sprintf("%s#slide=%d", name, pageNum)
	}
	return fmt.Sprintf("%s#page=%d", name, pageNum)
}

// lastTwoPathParts keeps citations short while staying resolvable against
// the pages container.
func lastTwoPathParts(url string) string {
	parts := strings.Split(strings.TrimRight(url, "/"), "/")
	if len(parts) < 2 {
		return url
	}
	return strings.Join(parts[len(parts)-2:], "/")
}

func (p *Pipeline) embedChunks(ctx context.Context, docs []*domain.ChunkDocument) error {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Chunk.Text
	}
	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("embedding count mismatch: got %d for %d chunks", len(vecs), len(docs))
	}
	for i, d := range docs {
		d.Chunk.Embedding = vecs[i]
	}
	return nil
}
