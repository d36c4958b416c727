// Package qdrant implements the vector store over Qdrant's HTTP API.
// Uploads are idempotent: point ids derive deterministically from chunk
// ids, so re-running ADD upserts in place.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/docingest/internal/domain"
	"github.com/yungbote/docingest/internal/pkg/ctxutil"
	"github.com/yungbote/docingest/internal/pkg/httpx"
	"github.com/yungbote/docingest/internal/pkg/logger"
)

const (
	maxErrorBodyBytes = 1024
	uploadBatchSize   = 100
	uploadConcurrency = 5

	maxRetries          = 2
	initialRetryBackoff = 500 * time.Millisecond
	maxRetryBackoff     = 5 * time.Second
)

var pointIDNamespaceUUID = uuid.MustParse("7c9e6b4a-1f2d-4c83-9b51-0d2a4f6e8c15")

// VectorStore is the index the pipeline writes into.
type VectorStore interface {
	Upload(ctx context.Context, docs []*domain.ChunkDocument, includeEmbeddings bool) (int, error)
	DeleteByFilename(ctx context.Context, filename string) (int, error)
	DeleteAll(ctx context.Context) (int, error)
	CountByFilename(ctx context.Context, filename string) (int, error)
	Dimensions() int

	// RequiresEmbeddings reports whether the caller must attach vectors
	// before Upload. Qdrant has no server-side vectorization, so yes.
	RequiresEmbeddings() bool

	// EnsureCollection provisions the collection and payload indexes.
	EnsureCollection(ctx context.Context) error
}

type vectorStore struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

func NewVectorStore(log *logger.Logger, cfg Config) (VectorStore, error) {
	return NewVectorStoreWithHTTPClient(log, cfg, &http.Client{Timeout: 30 * time.Second})
}

func NewVectorStoreWithHTTPClient(log *logger.Logger, cfg Config, httpClient *http.Client) (VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	s := &vectorStore{
		log:     log.With("service", "QdrantVectorStore"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    httpClient,
	}
	s.log.Info("Qdrant vector store selected",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"vector_dim", cfg.VectorDim,
		"distance", cfg.Distance,
	)
	return s, nil
}

func (s *vectorStore) Dimensions() int          { return s.cfg.VectorDim }
func (s *vectorStore) RequiresEmbeddings() bool { return true }

// pointID maps a chunk id to a stable UUID so repeated uploads upsert.
func (s *vectorStore) pointID(chunkID string) string {
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(s.cfg.Collection+"|"+chunkID)).String()
}

func (s *vectorStore) collectionPath(suffix string) string {
	path := "/collections/" + s.cfg.Collection
	if strings.TrimSpace(suffix) == "" {
		return path
	}
	return path + suffix
}

func (s *vectorStore) EnsureCollection(ctx context.Context) error {
	const op = "ensure_collection"
	err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, nil)
	if err == nil {
		return nil
	}
	var opError *OperationError
	if !errors.As(err, &opError) || opError.StatusCode != http.StatusNotFound {
		return err
	}

	create := map[string]any{
		"vectors": map[string]any{
			"size":     s.cfg.VectorDim,
			"distance": s.cfg.Distance,
		},
	}
	if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath(""), create, nil); err != nil {
		return err
	}
	s.log.Info("Created qdrant collection", "collection", s.cfg.Collection)

	// Filterable deletes and counts key off sourcefile.
	index := map[string]any{"field_name": "sourcefile", "field_schema": "keyword"}
	if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/index?wait=true"), index, nil); err != nil {
		s.log.Warn("failed creating sourcefile payload index", "error", err.Error())
	}
	return nil
}

func (s *vectorStore) Upload(ctx context.Context, docs []*domain.ChunkDocument, includeEmbeddings bool) (int, error) {
	const op = "upload"
	if len(docs) == 0 {
		return 0, nil
	}

	points := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		if d == nil || strings.TrimSpace(d.Chunk.ChunkID) == "" {
			return 0, opErr(op, OperationErrorValidation, "chunk id is required", nil)
		}
		if !includeEmbeddings {
			return 0, opErr(op, OperationErrorValidation,
				"qdrant requires client-side embeddings (integrated vectorization unsupported)", nil)
		}
		if len(d.Chunk.Embedding) == 0 {
			return 0, opErr(op, OperationErrorValidation,
				fmt.Sprintf("chunk %q has no embedding", d.Chunk.ChunkID), nil)
		}
		if s.cfg.VectorDim > 0 && len(d.Chunk.Embedding) != s.cfg.VectorDim {
			return 0, opErr(op, OperationErrorValidation,
				fmt.Sprintf("chunk %q dimension mismatch: expected=%d got=%d",
					d.Chunk.ChunkID, s.cfg.VectorDim, len(d.Chunk.Embedding)), nil)
		}
		points = append(points, map[string]any{
			"id":      s.pointID(d.Chunk.ChunkID),
			"vector":  d.Chunk.Embedding,
			"payload": d.SearchFields(false),
		})
	}

	var uploaded atomic.Int64
	g, gctx := errgroup.WithContext(ctxutil.Default(ctx))
	g.SetLimit(uploadConcurrency)
	for start := 0; start < len(points); start += uploadBatchSize {
		end := start + uploadBatchSize
		if end > len(points) {
			end = len(points)
		}
		batch := points[start:end]
		g.Go(func() error {
			req := map[string]any{"points": batch}
			if err := s.doJSON(gctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), req, nil); err != nil {
				return err
			}
			uploaded.Add(int64(len(batch)))
			return nil
		})
	}
	err := g.Wait()
	return int(uploaded.Load()), err
}

func sourcefileFilter(filename string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "sourcefile", "match": map[string]any{"value": filename}},
		},
	}
}

func (s *vectorStore) CountByFilename(ctx context.Context, filename string) (int, error) {
	const op = "count"
	req := map[string]any{"filter": sourcefileFilter(filename), "exact": true}
	var result struct {
		Count int `json:"count"`
	}
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/count"), req, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

func (s *vectorStore) DeleteByFilename(ctx context.Context, filename string) (int, error) {
	const op = "delete_by_filename"
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return 0, opErr(op, OperationErrorValidation, "filename is required", nil)
	}
	count, err := s.CountByFilename(ctx, filename)
	if err != nil {
		return 0, err
	}
	req := map[string]any{"filter": sourcefileFilter(filename)}
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/delete?wait=true"), req, nil); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *vectorStore) DeleteAll(ctx context.Context) (int, error) {
	const op = "delete_all"
	var result struct {
		Count int `json:"count"`
	}
	countReq := map[string]any{"exact": true}
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/count"), countReq, &result); err != nil {
		return 0, err
	}
	req := map[string]any{"filter": map[string]any{}}
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/delete?wait=true"), req, nil); err != nil {
		return 0, err
	}
	return result.Count, nil
}

// doJSON issues one qdrant call, retrying rate limits and transient server
// failures. Request bodies are re-encoded per attempt.
func (s *vectorStore) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	ctx = ctxutil.Default(ctx)
	backoff := initialRetryBackoff

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return classifyHTTPCallError(op, "qdrant request cancelled", ctx.Err())
		}
		resp, err := s.doJSONOnce(ctx, op, method, path, in, out)
		if err == nil {
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt == maxRetries {
			return err
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, maxRetryBackoff))
		s.log.Warn("qdrant request retrying",
			"operation", op,
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		select {
		case <-time.After(sleepFor):
		case <-ctx.Done():
			return classifyHTTPCallError(op, "qdrant request cancelled", ctx.Err())
		}
		backoff *= 2
	}
}

func (s *vectorStore) doJSONOnce(ctx context.Context, op, method, path string, in, out any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return nil, opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return resp, opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return resp, opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(env.Status); statusErr != "" {
		return resp, &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    statusErr,
		}
	}
	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return resp, nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return resp, opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return resp, nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}
	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil {
		if strings.TrimSpace(statusObject.Error) != "" {
			return strings.TrimSpace(statusObject.Error)
		}
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
