package domain

import "time"

// DocumentRef identifies the source document a chunk came from.
type DocumentRef struct {
	SourceFile  string    `json:"sourcefile"`
	StorageURL  string    `json:"storage_url"`
	ContentType string    `json:"content_type"`
	MD5         string    `json:"md5"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// PageRef points at the exact page or slide that grounds a chunk.
type PageRef struct {
	PageNum     int    `json:"page_num"` // 1-based
	SourcePage  string `json:"sourcepage"`
	PageBlobURL string `json:"page_blob_url,omitempty"`
}

type ChunkRef struct {
	ChunkID          string    `json:"chunk_id"`
	ChunkIndexOnPage int       `json:"chunk_index_on_page"`
	Text             string    `json:"text"`
	Embedding        []float32 `json:"embedding,omitempty"`
	TokenCount       int       `json:"token_count"`
	Title            string    `json:"title,omitempty"`
}

type ChunkArtifact struct {
	URL       string `json:"url,omitempty"`
	LocalPath string `json:"local_path,omitempty"`
}

// ChunkDocument is what the vector store ingests. It exists only until the
// index upload completes; its durable form is the record in the store plus
// the per-page and figure artifacts.
type ChunkDocument struct {
	Document DocumentRef       `json:"document"`
	Page     PageRef           `json:"page"`
	Chunk    ChunkRef          `json:"chunk"`
	Artifact ChunkArtifact     `json:"chunk_artifact"`
	Tables   []*ExtractedTable `json:"tables,omitempty"`
	Figures  []*ExtractedImage `json:"figures,omitempty"`
}

// SearchFields serializes the chunk to the flat record shape the vector
// store persists. The embeddings field is omitted entirely when the store
// vectorizes server-side.
func (d *ChunkDocument) SearchFields(includeEmbeddings bool) map[string]any {
	storageURL := d.Document.StorageURL
	if d.Page.PageBlobURL != "" {
		storageURL = d.Page.PageBlobURL
	}
	figureURLs := make([]string, 0, len(d.Figures))
	for _, f := range d.Figures {
		if f != nil && f.URL != "" {
			figureURLs = append(figureURLs, f.URL)
		}
	}
	out := map[string]any{
		"id":          d.Chunk.ChunkID,
		"content":     d.Chunk.Text,
		"filename":    d.Document.SourceFile,
		"sourcefile":  d.Document.SourceFile,
		"sourcepage":  d.Page.SourcePage,
		"pageNumber":  d.Page.PageNum,
		"storageUrl":  storageURL,
		"url":         d.Document.StorageURL,
		"title":       d.Chunk.Title,
		"has_figures": len(d.Figures) > 0,
		"figure_urls": figureURLs,
		"has_tables":  len(d.Tables) > 0,
	}
	if includeEmbeddings && len(d.Chunk.Embedding) > 0 {
		out["embeddings"] = d.Chunk.Embedding
	}
	return out
}
