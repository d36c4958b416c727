package artifacts

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yungbote/docingest/internal/pkg/logger"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewLocalStore(logger.NewNop(), t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	if err := store.EnsureReady(context.Background()); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	return store
}

func TestLocalStoreWritePageJSON(t *testing.T) {
	store := newTestStore(t)
	url, err := store.WritePageJSON(context.Background(), "manual.pdf", 0, map[string]int{"page": 1})
	if err != nil {
		t.Fatalf("WritePageJSON: %v", err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Fatalf("url scheme: got=%q", url)
	}
	path := strings.TrimPrefix(url, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	var obj map[string]int
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("unmarshal artifact: %v", err)
	}
	if obj["page"] != 1 {
		t.Fatalf("payload: want page=1 got=%d", obj["page"])
	}
	if !strings.HasSuffix(path, filepath.FromSlash("manual/page-0001.json")) {
		t.Fatalf("path layout: got=%q", path)
	}
}

func TestLocalStoreFullDocumentIsNoOp(t *testing.T) {
	store := newTestStore(t)
	url, err := store.WriteFullDocument(context.Background(), "manual.pdf", []byte("pdf bytes"))
	if err != nil {
		t.Fatalf("WriteFullDocument: %v", err)
	}
	path := strings.TrimPrefix(url, "file://")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("full document should not be written locally, stat err=%v", err)
	}
}

func TestLocalStoreDeleteArtifacts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.WritePageJSON(ctx, "manual.pdf", 0, map[string]int{}); err != nil {
		t.Fatalf("WritePageJSON: %v", err)
	}
	if _, err := store.WritePageRendering(ctx, "manual.pdf", 0, []byte("%PDF")); err != nil {
		t.Fatalf("WritePageRendering: %v", err)
	}
	if _, err := store.WriteImage(ctx, "manual.pdf", 0, "fig.png", []byte{1}, 0); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}
	n, err := store.DeleteArtifacts(ctx, "manual.pdf")
	if err != nil {
		t.Fatalf("DeleteArtifacts: %v", err)
	}
	if n != 3 {
		t.Fatalf("deleted count: want=3 got=%d", n)
	}
	if again, _ := store.DeleteArtifacts(ctx, "manual.pdf"); again != 0 {
		t.Fatalf("second delete: want=0 got=%d", again)
	}
}

func TestLocalStoreDeleteAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, doc := range []string{"a.pdf", "b.pdf"} {
		if _, err := store.WriteManifest(ctx, doc, map[string]string{"filename": doc}); err != nil {
			t.Fatalf("WriteManifest: %v", err)
		}
	}
	n, err := store.DeleteAll(ctx)
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted count: want=2 got=%d", n)
	}
	if err := store.EnsureReady(ctx); err != nil {
		t.Fatalf("EnsureReady after DeleteAll: %v", err)
	}
}

func TestLocalStoreRemote(t *testing.T) {
	store := newTestStore(t)
	if store.Remote() {
		t.Fatalf("local store must report Remote()=false")
	}
}
