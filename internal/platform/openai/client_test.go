package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/yungbote/docingest/internal/pkg/logger"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func newTestClient(t *testing.T, rt roundTripperFunc) Client {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_EMBED_BATCH_SIZE", "2")
	t.Setenv("OPENAI_MAX_RETRIES", "2")
	c, err := NewClientWithHTTPClient(logger.NewNop(), &http.Client{Transport: rt})
	if err != nil {
		t.Fatalf("NewClientWithHTTPClient: %v", err)
	}
	return c
}

func embeddingsBody(t *testing.T, req *http.Request) []string {
	t.Helper()
	var body struct {
		Input []string `json:"input"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		t.Fatalf("decode embeddings request: %v", err)
	}
	return body.Input
}

// Responses come back index-keyed and deliberately out of order; the client
// must still return vectors in input order.
func TestEmbedBatchPreservesOrder(t *testing.T) {
	var mu sync.Mutex
	var batches [][]string

	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/embeddings" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("auth header: got=%q", got)
		}
		inputs := embeddingsBody(t, req)
		mu.Lock()
		batches = append(batches, inputs)
		mu.Unlock()

		var data []string
		for i := len(inputs) - 1; i >= 0; i-- {
			// Vector value encodes which input it belongs to.
			n := 0
			fmt.Sscanf(inputs[i], "text-%d", &n)
			data = append(data, fmt.Sprintf(`{"index":%d,"embedding":[%d.0]}`, i, n))
		}
		return jsonResponse(200, `{"data":[`+strings.Join(data, ",")+`]}`), nil
	})

	texts := []string{"text-0", "text-1", "text-2", "text-3", "text-4"}
	vecs, err := client.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("vectors: want=%d got=%d", len(texts), len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 1 || v[0] != float32(i) {
			t.Fatalf("vector %d out of order: got=%v", i, v)
		}
	}
	if len(batches) != 3 {
		t.Fatalf("micro-batches: want=3 got=%d", len(batches))
	}
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	vecs, err := client.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 0 {
		t.Fatalf("want empty result, got %d vectors", len(vecs))
	}
}

func TestEmbedBatchBlankTextSentAsSpace(t *testing.T) {
	var sent []string
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		sent = embeddingsBody(t, req)
		return jsonResponse(200, `{"data":[{"index":0,"embedding":[1.0]}]}`), nil
	})
	if _, err := client.EmbedBatch(context.Background(), []string{"   "}); err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(sent) != 1 || sent[0] != " " {
		t.Fatalf("blank input: want single space, got=%q", sent)
	}
}

func TestEmbedBatchMissingIndexRetriesOnce(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return jsonResponse(200, `{"data":[{"index":0,"embedding":[1.0]}]}`), nil
	})
	_, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	if err == nil || !strings.Contains(err.Error(), "missing vector") {
		t.Fatalf("want missing-vector error, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("incomplete batch should be re-requested once: calls=%d", got)
	}
}

func TestEmbedBatchMissingIndexRecovered(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			return jsonResponse(200, `{"data":[{"index":0,"embedding":[1.0]}]}`), nil
		}
		return jsonResponse(200, `{"data":[{"index":0,"embedding":[1.0]},{"index":1,"embedding":[2.0]}]}`), nil
	})
	vecs, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 || vecs[1][0] != 2.0 {
		t.Fatalf("recovered vectors wrong: %v", vecs)
	}
}

func TestEmbedRetriesOn429(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			resp := jsonResponse(429, `{"error":{"message":"rate limited"}}`)
			resp.Header.Set("Retry-After", "1")
			return resp, nil
		}
		return jsonResponse(200, `{"data":[{"index":0,"embedding":[1.0]}]}`), nil
	})

	vecs, err := client.EmbedBatch(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("EmbedBatch after retry: %v", err)
	}
	if len(vecs) != 1 || vecs[0][0] != 1.0 {
		t.Fatalf("vector after retry: got=%v", vecs)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("calls: want=2 got=%d", got)
	}
}

func TestEmbedDoesNotRetryOn400(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return jsonResponse(400, `{"error":{"message":"bad model"}}`), nil
	})

	_, err := client.EmbedBatch(context.Background(), []string{"hello"})
	if err == nil || !strings.Contains(err.Error(), "status=400") {
		t.Fatalf("want status error, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls: want=1 got=%d", got)
	}
}

func TestDescribeImageSendsDataURL(t *testing.T) {
	var gotReq chatRequest
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		if err := json.NewDecoder(req.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode chat request: %v", err)
		}
		return jsonResponse(200, `{"choices":[{"message":{"content":" A torque chart. "}}]}`), nil
	})

	desc, err := client.DescribeImage(context.Background(), []byte{0x89, 0x50}, "image/png")
	if err != nil {
		t.Fatalf("DescribeImage: %v", err)
	}
	if desc != "A torque chart." {
		t.Fatalf("description: want trimmed content, got=%q", desc)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Fatalf("messages shape wrong: %+v", gotReq.Messages)
	}
	raw, _ := json.Marshal(gotReq.Messages[1].Content)
	if !strings.Contains(string(raw), "data:image/png;base64,iVA=") {
		t.Fatalf("image data url missing: %s", raw)
	}
}

func TestDescribeImageEmptyInputsSkipCall(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	desc, err := client.DescribeImage(context.Background(), nil, "image/png")
	if err != nil || desc != "" {
		t.Fatalf("want empty description and nil error, got %q, %v", desc, err)
	}
}

func TestDescribeImageNoChoices(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"choices":[]}`), nil
	})
	desc, err := client.DescribeImage(context.Background(), []byte{1}, "")
	if err != nil {
		t.Fatalf("DescribeImage: %v", err)
	}
	if desc != "" {
		t.Fatalf("want empty description, got=%q", desc)
	}
}

func TestSummarizeTableSendsTableText(t *testing.T) {
	var gotReq chatRequest
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		if err := json.NewDecoder(req.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode chat request: %v", err)
		}
		return jsonResponse(200, `{"choices":[{"message":{"content":" Lists axle torque values. "}}]}`), nil
	})

	summary, err := client.SummarizeTable(context.Background(), "| Part | Torque |\n| Axle | 80 Nm |")
	if err != nil {
		t.Fatalf("SummarizeTable: %v", err)
	}
	if summary != "Lists axle torque values." {
		t.Fatalf("summary: want trimmed content, got=%q", summary)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Fatalf("messages shape wrong: %+v", gotReq.Messages)
	}
	content, _ := gotReq.Messages[1].Content.(string)
	if !strings.Contains(content, "80 Nm") {
		t.Fatalf("table text missing from request: %q", content)
	}
}

func TestSummarizeTableEmptyInputSkipsCall(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	summary, err := client.SummarizeTable(context.Background(), "   ")
	if err != nil || summary != "" {
		t.Fatalf("want empty summary and nil error, got %q, %v", summary, err)
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(logger.NewNop()); err == nil {
		t.Fatalf("expected error without OPENAI_API_KEY")
	}
}
