// Package artifacts persists the durable side outputs of an ingestion run:
// per-page JSON, chunk JSON, page renderings, cropped figures, manifests,
// and status reports. Every write returns a stable URL.
package artifacts

import "context"

type Store interface {
	WritePageJSON(ctx context.Context, docName string, pageIdx int, obj any) (string, error)
	WritePageRendering(ctx context.Context, docName string, pageIdx int, data []byte) (string, error)
	WriteFullDocument(ctx context.Context, docName string, data []byte) (string, error)
	WriteChunkJSON(ctx context.Context, docName string, pageIdx, chunkIdx int, obj any) (string, error)
	WriteImage(ctx context.Context, docName string, pageIdx int, originalName string, data []byte, figureIdx int) (string, error)
	WriteManifest(ctx context.Context, docName string, obj any) (string, error)
	WriteStatus(ctx context.Context, name string, obj any) (string, error)

	DeleteArtifacts(ctx context.Context, docName string) (int, error)
	DeleteAll(ctx context.Context) (int, error)

	// EnsureReady provisions containers; idempotent.
	EnsureReady(ctx context.Context) error

	// Remote reports whether returned URLs are dereferenceable outside
	// this machine.
	Remote() bool
}
