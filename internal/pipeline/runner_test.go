package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/yungbote/docingest/internal/artifacts"
	"github.com/yungbote/docingest/internal/domain"
	"github.com/yungbote/docingest/internal/pkg/logger"
	"github.com/yungbote/docingest/internal/source"
)

type fakeSource struct {
	names   []string
	listErr error
	readErr map[string]error
}

func (f *fakeSource) List(ctx context.Context) ([]string, error) {
	return f.names, f.listErr
}

func (f *fakeSource) Read(ctx context.Context, filename string) (*source.Document, error) {
	if err := f.readErr[filename]; err != nil {
		return nil, err
	}
	return textDoc(filename, "file:///data/"+filename), nil
}

func newRunner(t *testing.T, src *fakeSource, vs *fakeVectorStore, store artifacts.Store) *Runner {
	t.Helper()
	ex := &fakeExtractor{pages: []*domain.ExtractedPage{{PageNum: 0, Text: "page text"}}}
	emb := &fakeEmbedder{}
	pipe := New(logger.NewNop(), ex, fakeChunker{}, store, vs, emb, nil, nil, Options{})
	return NewRunner(logger.NewNop(), src, pipe, store, vs, nil, emb, 2)
}

func TestParseAction(t *testing.T) {
	cases := []struct {
		in   string
		want Action
	}{
		{"", ActionAdd},
		{"add", ActionAdd},
		{"Remove", ActionRemove},
		{"remove_all", ActionRemoveAll},
		{"removeall", ActionRemoveAll},
	}
	for _, tc := range cases {
		got, err := ParseAction(tc.in)
		if err != nil {
			t.Fatalf("ParseAction(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseAction(%q): want=%q got=%q", tc.in, tc.want, got)
		}
	}
	if _, err := ParseAction("purge"); err == nil {
		t.Fatalf("ParseAction(purge): expected error")
	}
}

func TestRunAddAggregatesResults(t *testing.T) {
	src := &fakeSource{
		names:   []string{"a.txt", "b.txt", "c.txt"},
		readErr: map[string]error{"b.txt": errors.New("permission denied")},
	}
	vs := &fakeVectorStore{}
	store := localStore(t)
	runner := newRunner(t, src, vs, store)

	status, err := runner.Run(context.Background(), ActionAdd)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status.Total != 3 || status.Succeeded != 2 || status.Failed != 1 {
		t.Fatalf("aggregate: total=%d succeeded=%d failed=%d", status.Total, status.Succeeded, status.Failed)
	}
	if status.ChunksIndexed != 2 {
		t.Fatalf("chunks indexed: want=2 got=%d", status.ChunksIndexed)
	}
	if len(status.Results) != 3 {
		t.Fatalf("results: want=3 got=%d", len(status.Results))
	}
	// Results stay positionally aligned with the input listing.
	if status.Results[1].Filename != "b.txt" || status.Results[1].Success {
		t.Fatalf("failed document misplaced: %+v", status.Results[1])
	}
}

func TestRunAddWritesStatusManifest(t *testing.T) {
	src := &fakeSource{names: []string{"a.txt"}}
	dir := t.TempDir()
	store, err := artifacts.NewLocalStore(logger.NewNop(), dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	runner := newRunner(t, src, &fakeVectorStore{}, store)

	if _, err := runner.Run(context.Background(), ActionAdd); err != nil {
		t.Fatalf("Run: %v", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "status", "pipeline_status_*.json"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("status manifests: want=1 got=%d", len(matches))
	}
}

func TestRunAddListFailure(t *testing.T) {
	src := &fakeSource{listErr: errors.New("no input files")}
	runner := newRunner(t, src, &fakeVectorStore{}, localStore(t))

	if _, err := runner.Run(context.Background(), ActionAdd); err == nil {
		t.Fatalf("expected list error to surface")
	}
}

func TestRunRemoveDeletesEveryListedDocument(t *testing.T) {
	src := &fakeSource{names: []string{"a.txt", "b.txt"}}
	vs := &fakeVectorStore{}
	runner := newRunner(t, src, vs, localStore(t))

	status, err := runner.Run(context.Background(), ActionRemove)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status.Succeeded != 2 || status.Failed != 0 {
		t.Fatalf("aggregate: %+v", status)
	}
	if len(vs.deleted) != 2 {
		t.Fatalf("deletes: want=2 got=%v", vs.deleted)
	}
}

func TestRunRemoveAll(t *testing.T) {
	src := &fakeSource{}
	vs := &fakeVectorStore{}
	runner := newRunner(t, src, vs, localStore(t))

	status, err := runner.Run(context.Background(), ActionRemoveAll)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status.Action != string(ActionRemoveAll) {
		t.Fatalf("action: got=%q", status.Action)
	}
	found := false
	for _, ev := range vs.events {
		if ev == "delete_all" {
			found = true
		}
	}
	if !found {
		t.Fatalf("DeleteAll never called: %v", vs.events)
	}
}

func TestValidateReportsEveryComponent(t *testing.T) {
	src := &fakeSource{names: []string{"a.txt"}}
	runner := newRunner(t, src, &fakeVectorStore{}, localStore(t))

	results := runner.Validate(context.Background())
	seen := map[string]bool{}
	for _, r := range results {
		seen[r.Component] = true
		if !r.OK {
			t.Fatalf("component %s failed: %s", r.Component, r.Message)
		}
	}
	for _, want := range []string{"input_source", "artifact_store", "vector_store", "embeddings"} {
		if !seen[want] {
			t.Fatalf("component %s missing from %v", want, results)
		}
	}
}

func TestValidateFlagsDimensionMismatch(t *testing.T) {
	src := &fakeSource{names: []string{"a.txt"}}
	vs := &fakeVectorStore{}
	store := localStore(t)
	ex := &fakeExtractor{}
	emb := &mismatchedEmbedder{}
	pipe := New(logger.NewNop(), ex, fakeChunker{}, store, vs, emb, nil, nil, Options{})
	runner := NewRunner(logger.NewNop(), src, pipe, store, vs, nil, emb, 1)

	for _, r := range runner.Validate(context.Background()) {
		if r.Component == "embeddings" {
			if r.OK {
				t.Fatalf("dimension mismatch not flagged")
			}
			return
		}
	}
	t.Fatalf("embeddings component missing")
}

type mismatchedEmbedder struct{ fakeEmbedder }

func (m *mismatchedEmbedder) Dimensions() int { return 1536 }

func TestRunUnknownAction(t *testing.T) {
	runner := newRunner(t, &fakeSource{}, &fakeVectorStore{}, localStore(t))
	if _, err := runner.Run(context.Background(), Action("compact")); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}

func TestRunAddSkipsAfterCancellation(t *testing.T) {
	names := make([]string, 20)
	for i := range names {
		names[i] = fmt.Sprintf("doc-%02d.txt", i)
	}
	src := &fakeSource{names: names}
	vs := &fakeVectorStore{}
	runner := newRunner(t, src, vs, localStore(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	status, err := runner.Run(ctx, ActionAdd)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status.SkippedCount == 0 {
		t.Fatalf("cancelled run should skip pending documents: %+v", status)
	}
}
