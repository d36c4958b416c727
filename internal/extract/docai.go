package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"path/filepath"
	"sort"
	"strings"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"golang.org/x/sync/errgroup"

	_ "image/jpeg"

	"github.com/yungbote/docingest/internal/domain"
	"github.com/yungbote/docingest/internal/pkg/logger"
	"github.com/yungbote/docingest/internal/platform/docai"
)

const (
	figureConcurrency = 5

	// Below this confidence a detected formula is treated as an ordinary
	// figure rather than an equation.
	equationConfidenceFloor = 0.6
)

// docaiExtractor builds ExtractedPages from a Document AI layout response.
type docaiExtractor struct {
	log    *logger.Logger
	client docai.Client
}

func NewDocAIExtractor(log *logger.Logger, client docai.Client) Extractor {
	return &docaiExtractor{log: log.With("service", "DocAIExtractor"), client: client}
}

func mimeForFilename(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".gif":
		return "image/gif"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/pdf"
	}
}

func (e *docaiExtractor) Extract(ctx context.Context, data []byte, filename string, processFigures bool) ([]*domain.ExtractedPage, error) {
	doc, err := e.client.Process(ctx, data, mimeForFilename(filename))
	if err != nil {
		return nil, err
	}
	pages, err := e.pagesFromDocument(ctx, doc, processFigures)
	if err != nil {
		return nil, err
	}
	e.log.Info("Layout extraction complete",
		"filename", filename,
		"pages", len(pages),
	)
	return pages, nil
}

type textRange struct{ start, end int }

func (e *docaiExtractor) pagesFromDocument(ctx context.Context, doc *documentaipb.Document, processFigures bool) ([]*domain.ExtractedPage, error) {
	pages := make([]*domain.ExtractedPage, 0, len(doc.Pages))
	offset := 0
	tableCount := 0

	for i, p := range doc.Pages {
		if p == nil {
			continue
		}
		page := &domain.ExtractedPage{PageNum: i, Offset: offset}

		tables, tableRanges := e.tablesFromPage(doc.Text, p, i, &tableCount)
		page.Tables = tables
		page.Figures = e.figuresFromPage(p, i)
		page.Text = buildPageText(doc.Text, p, tables, tableRanges, page.Figures)
		page.Hyperlinks = detectHyperlinks(page.Text, i)

		offset += len(page.Text)
		pages = append(pages, page)
	}

	if processFigures {
		if err := e.cropFigures(ctx, doc, pages); err != nil {
			return nil, err
		}
	}
	return pages, nil
}

// tablesFromPage converts every detected table, tracking its source text
// range so paragraphs inside it can be masked out of the page text.
func (e *docaiExtractor) tablesFromPage(docText string, p *documentaipb.Document_Page, pageIdx int, tableCount *int) ([]*domain.ExtractedTable, []textRange) {
	var tables []*domain.ExtractedTable
	var ranges []textRange

	for _, t := range p.Tables {
		if t == nil {
			continue
		}
		idx := *tableCount
		*tableCount++

		table := &domain.ExtractedTable{
			TableID:     fmt.Sprintf("table_%d", idx),
			SourceIndex: idx,
			Pages:       []int{pageIdx},
			BBox:        bboxFromPoly(t.Layout.GetBoundingPoly()),
		}
		row := 0
		for _, hr := range t.HeaderRows {
			appendRow(table, docText, hr, row, domain.CellKindColumnHeader)
			row++
		}
		for _, br := range t.BodyRows {
			appendRow(table, docText, br, row, domain.CellKindContent)
			row++
		}
		table.RowCount = row
		cols := 0
		for _, c := range table.Cells {
			if end := c.Col + c.ColSpan; end > cols {
				cols = end
			}
		}
		table.ColCount = cols

		if r, ok := anchorRange(t.Layout.GetTextAnchor()); ok {
			ranges = append(ranges, r)
		}
		tables = append(tables, table)
	}
	return tables, ranges
}

// appendRow lays cells into the grid left to right. Column positions skip
// slots occupied by spans from earlier rows only approximately; the layout
// provider reports spans explicitly, so a simple cursor suffices.
func appendRow(table *domain.ExtractedTable, docText string, row *documentaipb.Document_Page_Table_TableRow, rowIdx int, kind domain.CellKind) {
	if row == nil {
		return
	}
	col := 0
	for _, cell := range row.Cells {
		if cell == nil {
			continue
		}
		rowSpan := int(cell.RowSpan)
		colSpan := int(cell.ColSpan)
		if rowSpan < 1 {
			rowSpan = 1
		}
		if colSpan < 1 {
			colSpan = 1
		}
		table.Cells = append(table.Cells, domain.TableCell{
			Row:     rowIdx,
			Col:     col,
			RowSpan: rowSpan,
			ColSpan: colSpan,
			Content: strings.TrimSpace(textFromAnchor(docText, cell.Layout.GetTextAnchor())),
			Kind:    kind,
		})
		col += colSpan
	}
}

func (e *docaiExtractor) figuresFromPage(p *documentaipb.Document_Page, pageIdx int) []*domain.ExtractedImage {
	var figures []*domain.ExtractedImage
	for vi, ve := range p.VisualElements {
		if ve == nil {
			continue
		}
		id := fmt.Sprintf("figure_p%d_%d", pageIdx+1, vi+1)
		fig := &domain.ExtractedImage{
			FigureID:    id,
			PageNum:     pageIdx,
			BBox:        bbox4FromPoly(ve.Layout.GetBoundingPoly()),
			Filename:    id + ".png",
			Placeholder: domain.FigurePlaceholder(id),
			MimeType:    "image/png",
		}
		veType := strings.ToLower(ve.Type)
		if strings.Contains(veType, "formula") || strings.Contains(veType, "equation") {
			conf := float64(ve.Layout.GetConfidence())
			if conf >= equationConfidenceFloor {
				fig.FigureType = "equation"
				fig.EquationConfidence = conf
			}
		}
		figures = append(figures, fig)
	}
	return figures
}

// cropFigures cuts each figure's bitmap out of its page raster under a
// bounded worker group.
func (e *docaiExtractor) cropFigures(ctx context.Context, doc *documentaipb.Document, pages []*domain.ExtractedPage) error {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(figureConcurrency)

	for _, page := range pages {
		page := page
		if len(page.Figures) == 0 || page.PageNum >= len(doc.Pages) {
			continue
		}
		raster := doc.Pages[page.PageNum].GetImage().GetContent()
		if len(raster) == 0 {
			continue
		}
		for _, fig := range page.Figures {
			fig := fig
			g.Go(func() error {
				cropped, err := cropImage(raster, fig.BBox)
				if err != nil {
					e.log.Warn("figure crop failed; keeping figure without bytes",
						"figure_id", fig.FigureID,
						"error", err.Error(),
					)
					return nil
				}
				fig.ImageBytes = cropped
				return nil
			})
		}
	}
	return g.Wait()
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// cropImage crops a normalized bbox region out of an encoded page raster
// and re-encodes it as PNG.
func cropImage(raster []byte, bbox [4]float64) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raster))
	if err != nil {
		return nil, fmt.Errorf("decode page raster: %w", err)
	}
	bounds := img.Bounds()
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())
	rect := image.Rect(
		bounds.Min.X+int(bbox[0]*w),
		bounds.Min.Y+int(bbox[1]*h),
		bounds.Min.X+int(bbox[2]*w),
		bounds.Min.Y+int(bbox[3]*h),
	).Intersect(bounds)
	if rect.Empty() {
		return nil, fmt.Errorf("empty crop region")
	}
	si, ok := img.(subImager)
	if !ok {
		return nil, fmt.Errorf("page raster does not support cropping")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, si.SubImage(rect)); err != nil {
		return nil, fmt.Errorf("encode cropped figure: %w", err)
	}
	return buf.Bytes(), nil
}

// buildPageText lays out paragraphs in source order, substituting each
// table's span with its placeholder and appending figure placeholders.
func buildPageText(docText string, p *documentaipb.Document_Page, tables []*domain.ExtractedTable, tableRanges []textRange, figures []*domain.ExtractedImage) string {
	type element struct {
		start int
		text  string
	}
	var elements []element

	for _, para := range p.Paragraphs {
		if para == nil {
			continue
		}
		r, ok := anchorRange(para.Layout.GetTextAnchor())
		if !ok {
			continue
		}
		if insideAny(r, tableRanges) {
			continue
		}
		t := strings.TrimSpace(textFromAnchor(docText, para.Layout.GetTextAnchor()))
		if t == "" {
			continue
		}
		elements = append(elements, element{start: r.start, text: t})
	}
	for i, table := range tables {
		start := 1 << 30
		if i < len(tableRanges) {
			start = tableRanges[i].start
		}
		elements = append(elements, element{start: start, text: domain.TablePlaceholder(table.TableID)})
	}
	sort.SliceStable(elements, func(i, j int) bool { return elements[i].start < elements[j].start })

	var b strings.Builder
	for i, el := range elements {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(el.text)
	}
	for _, fig := range figures {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(fig.Placeholder)
	}
	return b.String()
}

func insideAny(r textRange, ranges []textRange) bool {
	for _, tr := range ranges {
		if r.start >= tr.start && r.end <= tr.end {
			return true
		}
	}
	return false
}

func anchorRange(anchor *documentaipb.Document_TextAnchor) (textRange, bool) {
	if anchor == nil || len(anchor.TextSegments) == 0 {
		return textRange{}, false
	}
	first := anchor.TextSegments[0]
	last := anchor.TextSegments[len(anchor.TextSegments)-1]
	return textRange{start: int(first.GetStartIndex()), end: int(last.GetEndIndex())}, true
}

func textFromAnchor(docText string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.TextSegments {
		start := int(seg.GetStartIndex())
		end := int(seg.GetEndIndex())
		if start < 0 || end > len(docText) || start >= end {
			continue
		}
		b.WriteString(docText[start:end])
	}
	return b.String()
}

func bboxFromPoly(poly *documentaipb.BoundingPoly) []float64 {
	b := bbox4FromPoly(poly)
	if b == [4]float64{} {
		return nil
	}
	return []float64{b[0], b[1], b[2], b[3]}
}

func bbox4FromPoly(poly *documentaipb.BoundingPoly) [4]float64 {
	if poly == nil || len(poly.NormalizedVertices) == 0 {
		return [4]float64{}
	}
	minX, minY := 1.0, 1.0
	maxX, maxY := 0.0, 0.0
	for _, v := range poly.NormalizedVertices {
		x, y := float64(v.GetX()), float64(v.GetY())
		if x < minX {
			minX = x
		}
		if y < minY {
			minY = y
		}
		if x > maxX {
			maxX = x
		}
		if y > maxY {
			maxY = y
		}
	}
	return [4]float64{minX, minY, maxX, maxY}
}
