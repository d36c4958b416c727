// Package openai is the OpenAI API client for the two calls the pipeline
// makes: embedding chunk texts and describing figure images.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/docingest/internal/pkg/ctxutil"
	"github.com/yungbote/docingest/internal/pkg/envutil"
	"github.com/yungbote/docingest/internal/pkg/httpx"
	"github.com/yungbote/docingest/internal/pkg/logger"
)

type Client interface {
	// EmbedBatch embeds every text, preserving input order. Micro-batching
	// and provider concurrency limits are handled internally.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	MaxSequenceTokens() int

	// DescribeImage returns a natural-language description of the image,
	// or "" when the model declines.
	DescribeImage(ctx context.Context, image []byte, mimeType string) (string, error)

	// SummarizeTable returns a short prose summary of a rendered table,
	// or "" when the model declines.
	SummarizeTable(ctx context.Context, tableText string) (string, error)
}

type client struct {
	log         *logger.Logger
	baseURL     string
	apiKey      string
	embedModel  string
	visionModel string

	dimensions int
	maxSeqLen  int
	batchSize  int

	httpClient *http.Client
	maxRetries int

	embedSem chan struct{}
}

func NewClient(log *logger.Logger) (Client, error) {
	return NewClientWithHTTPClient(log, &http.Client{Timeout: 120 * time.Second})
}

func NewClientWithHTTPClient(log *logger.Logger, httpClient *http.Client) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	return &client{
		log:         log.With("service", "OpenAIClient"),
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		embedModel:  envutil.Str("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		visionModel: envutil.Str("OPENAI_VISION_MODEL", "gpt-4o-mini"),
		dimensions:  envutil.Int("OPENAI_EMBED_DIMENSIONS", 1536),
		maxSeqLen:   envutil.Int("OPENAI_EMBED_MAX_TOKENS", 8191),
		batchSize:   envutil.Int("OPENAI_EMBED_BATCH_SIZE", 16),
		httpClient:  httpClient,
		maxRetries:  envutil.Int("OPENAI_MAX_RETRIES", 3),
		embedSem:    make(chan struct{}, envutil.Int("OPENAI_EMBED_CONCURRENCY", 5)),
	}, nil
}

func (c *client) Dimensions() int        { return c.dimensions }
func (c *client) MaxSequenceTokens() int { return c.maxSeqLen }

// -------------------- transport --------------------

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("openai: status=%d body=%s", e.status, e.body)
}

func (e *httpStatusError) HTTPStatusCode() int { return e.status }

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(raw)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return resp, raw, &httpStatusError{status: resp.StatusCode, body: snippet}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, path string, body, out any, initialBackoff, maxBackoff time.Duration) error {
	ctx = ctxutil.Default(ctx)
	backoff := initialBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resp, raw, err := c.doOnce(ctx, http.MethodPost, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, maxBackoff)
		sleepFor = httpx.JitterSleep(sleepFor)
		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		select {
		case <-time.After(sleepFor):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

// -------------------- embeddings --------------------

var errMissingIndex = errors.New("embeddings response missing vector")

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctxutil.Default(ctx))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end
		g.Go(func() error {
			select {
			case c.embedSem <- struct{}{}:
				defer func() { <-c.embedSem }()
			case <-gctx.Done():
				return gctx.Err()
			}
			vecs, err := c.embedOnce(gctx, texts[start:end])
			if errors.Is(err, errMissingIndex) {
				// Providers occasionally drop an index from a batch;
				// one re-request usually recovers it.
				c.log.Warn("embeddings batch incomplete; retrying once",
					"start", start,
					"size", end-start,
					"error", err.Error(),
				)
				vecs, err = c.embedOnce(gctx, texts[start:end])
			}
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("embeddings response missing vector for input %d", i)
		}
	}
	return out, nil
}

func (c *client) embedOnce(ctx context.Context, inputs []string) ([][]float32, error) {
	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}
	req := embeddingsRequest{Model: c.embedModel, Input: clean}

	var resp embeddingsResponse
	if err := c.do(ctx, "/v1/embeddings", req, &resp, 15*time.Second, 60*time.Second); err != nil {
		return nil, err
	}
	vecs := make([][]float32, len(clean))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		vecs[d.Index] = vec
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("%w: index %d of %d", errMissingIndex, i, len(clean))
		}
	}
	return vecs, nil
}

// -------------------- figure description --------------------

const describeSystemPrompt = "You describe figures extracted from technical documents. " +
	"Describe the content and meaning of the figure in two or three sentences. " +
	"If the figure is a chart, state what it measures and the visible trend. " +
	"Do not speculate beyond what is shown."

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *imageURLPart `json:"image_url,omitempty"`
}

type imageURLPart struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const tableSummarySystemPrompt = "You summarize tables extracted from technical documents. " +
	"State in one or two sentences what the table lists and any notable values. " +
	"Do not repeat every row."

func (c *client) SummarizeTable(ctx context.Context, tableText string) (string, error) {
	tableText = strings.TrimSpace(tableText)
	if tableText == "" {
		return "", nil
	}

	req := chatRequest{
		Model: c.visionModel,
		Messages: []chatMessage{
			{Role: "system", Content: tableSummarySystemPrompt},
			{Role: "user", Content: "Summarize this table:\n\n" + tableText},
		},
		MaxTokens: 200,
	}

	var resp chatResponse
	if err := c.do(ctx, "/v1/chat/completions", req, &resp, 5*time.Second, 30*time.Second); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *client) DescribeImage(ctx context.Context, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", nil
	}
	if mimeType == "" {
		mimeType = "image/png"
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)

	req := chatRequest{
		Model: c.visionModel,
		Messages: []chatMessage{
			{Role: "system", Content: describeSystemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: "Describe this figure."},
				{Type: "image_url", ImageURL: &imageURLPart{URL: dataURL}},
			}},
		},
		MaxTokens: 300,
	}

	var resp chatResponse
	if err := c.do(ctx, "/v1/chat/completions", req, &resp, 5*time.Second, 30*time.Second); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
