package domain

// TablePlaceholder and FigurePlaceholder are the markers extractors embed
// into page text; later stages substitute the rendered figure wrappers.
func TablePlaceholder(tableID string) string { return "{{table:" + tableID + "}}" }

func FigurePlaceholder(figureID string) string { return "{{figure:" + figureID + "}}" }

// CellKind classifies a table cell the way the layout extractor reports it.
type CellKind string

const (
	CellKindContent      CellKind = "content"
	CellKindColumnHeader CellKind = "columnHeader"
	CellKindRowHeader    CellKind = "rowHeader"
)

type TableCell struct {
	Row     int      `json:"row"`
	Col     int      `json:"col"`
	RowSpan int      `json:"row_span"`
	ColSpan int      `json:"col_span"`
	Content string   `json:"content"`
	Kind    CellKind `json:"kind"`
}

// ExtractedTable is a table detected by the extractor. RenderedText and
// Summary are filled in later by the table renderer and the media describer.
type ExtractedTable struct {
	TableID     string      `json:"table_id"`
	SourceIndex int         `json:"source_index"`
	Pages       []int       `json:"pages"`
	Cells       []TableCell `json:"cells"`
	RowCount    int         `json:"row_count"`
	ColCount    int         `json:"col_count"`
	BBox        []float64   `json:"bbox,omitempty"`
	Caption     string      `json:"caption,omitempty"`

	RenderedText string `json:"rendered_text,omitempty"`
	Summary      string `json:"summary,omitempty"`
}

// ExtractedImage is a figure (or equation) cropped out of a page.
// Description and URL are filled in after construction.
type ExtractedImage struct {
	FigureID    string     `json:"figure_id"`
	PageNum     int        `json:"page_num"` // 0-based
	BBox        [4]float64 `json:"bbox"`
	ImageBytes  []byte     `json:"-"`
	Filename    string     `json:"filename"`
	Title       string     `json:"title,omitempty"`
	Placeholder string     `json:"placeholder"`
	MimeType    string     `json:"mime_type"`

	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`

	// Equation-only fields.
	Latex              string  `json:"latex,omitempty"`
	FigureType         string  `json:"figure_type,omitempty"` // "" or "equation"
	EquationConfidence float64 `json:"equation_confidence,omitempty"`
}

type PageHyperlink struct {
	PageNum  int        `json:"page_num"`
	BBox     [4]float64 `json:"bbox"`
	URL      string     `json:"url"`
	LinkText string     `json:"link_text"`
}

// ExtractedPage is one page of a source document. Every table and figure
// attached to the page appears exactly once in Text as its placeholder or
// figure wrapper, and Text carries no raw page-break markers.
type ExtractedPage struct {
	PageNum    int               `json:"page_num"` // 0-based
	Text       string            `json:"text"`
	Tables     []*ExtractedTable `json:"tables,omitempty"`
	Figures    []*ExtractedImage `json:"figures,omitempty"`
	Hyperlinks []PageHyperlink   `json:"hyperlinks,omitempty"`
	Offset     int               `json:"offset"`
}

// TextChunk is the chunker's output unit. TokenCount always equals the token
// length of Text, and any <figure> block contained in Text is complete.
type TextChunk struct {
	PageNum          int
	Text             string
	ChunkIndexOnPage int
	TokenCount       int
	Tables           []*ExtractedTable
	Figures          []*ExtractedImage
	PageHeader       string
}
