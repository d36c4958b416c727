package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/docingest/internal/artifacts"
	"github.com/yungbote/docingest/internal/domain"
	"github.com/yungbote/docingest/internal/pagesplit"
	"github.com/yungbote/docingest/internal/pkg/logger"
	"github.com/yungbote/docingest/internal/source"
)

// Action selects what a runner invocation does.
type Action string

const (
	ActionAdd       Action = "add"
	ActionRemove    Action = "remove"
	ActionRemoveAll Action = "remove_all"
)

func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ActionAdd):
		return ActionAdd, nil
	case string(ActionRemove):
		return ActionRemove, nil
	case string(ActionRemoveAll), "removeall":
		return ActionRemoveAll, nil
	}
	return "", fmt.Errorf("unknown action: %q", s)
}

const defaultMaxWorkers = 4

// Runner fans documents out to the pipeline and reports an aggregate status.
type Runner struct {
	log        *logger.Logger
	src        source.Source
	pipe       *Pipeline
	store      artifacts.Store
	vectors    VectorStore
	splitter   pagesplit.Tools
	embedder   Embedder
	maxWorkers int
}

func NewRunner(
	log *logger.Logger,
	src source.Source,
	pipe *Pipeline,
	store artifacts.Store,
	vectors VectorStore,
	splitter pagesplit.Tools,
	embedder Embedder,
	maxWorkers int,
) *Runner {
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	return &Runner{
		log:        log.With("service", "PipelineRunner"),
		src:        src,
		pipe:       pipe,
		store:      store,
		vectors:    vectors,
		splitter:   splitter,
		embedder:   embedder,
		maxWorkers: maxWorkers,
	}
}

func (r *Runner) Run(ctx context.Context, action Action) (*domain.PipelineStatus, error) {
	switch action {
	case ActionAdd:
		return r.runAdd(ctx)
	case ActionRemove:
		return r.runRemove(ctx)
	case ActionRemoveAll:
		return r.runRemoveAll(ctx)
	}
	return nil, fmt.Errorf("unknown action: %q", action)
}

func (r *Runner) runAdd(ctx context.Context) (*domain.PipelineStatus, error) {
	names, err := r.src.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.store.EnsureReady(ctx); err != nil {
		return nil, fmt.Errorf("artifact store not ready: %w", err)
	}
	if err := r.vectors.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("vector store not ready: %w", err)
	}

	status := &domain.PipelineStatus{
		Action:    string(ActionAdd),
		StartedAt: time.Now().UTC(),
		Total:     len(names),
		Results:   make([]domain.IngestionResult, len(names)),
	}
	r.log.Info("Ingestion run starting", "documents", len(names), "workers", r.maxWorkers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxWorkers)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			if gctx.Err() != nil {
				status.Results[i] = domain.IngestionResult{Filename: name, Skipped: true}
				return nil
			}
			doc, err := r.src.Read(gctx, name)
			if err != nil {
				status.Results[i] = domain.IngestionResult{
					Filename:     name,
					ErrorMessage: err.Error(),
				}
				return nil
			}
			status.Results[i] = r.pipe.Process(gctx, doc)
			return nil
		})
	}
	_ = g.Wait()

	status.FinishedAt = time.Now().UTC()
	for _, res := range status.Results {
		switch {
		case res.Skipped:
			status.SkippedCount++
		case res.Success:
			status.Succeeded++
			status.ChunksIndexed += res.ChunksIndexed
		default:
			status.Failed++
		}
	}
	r.writeStatus(ctx, status)
	r.log.Info("Ingestion run finished",
		"succeeded", status.Succeeded,
		"failed", status.Failed,
		"skipped", status.SkippedCount,
		"chunks_indexed", status.ChunksIndexed,
		"success_rate", status.SuccessRate(),
	)
	return status, nil
}

func (r *Runner) runRemove(ctx context.Context) (*domain.PipelineStatus, error) {
	names, err := r.src.List(ctx)
	if err != nil {
		return nil, err
	}
	status := &domain.PipelineStatus{
		Action:    string(ActionRemove),
		StartedAt: time.Now().UTC(),
		Total:     len(names),
		Results:   make([]domain.IngestionResult, len(names)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxWorkers)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			res := domain.IngestionResult{Filename: name, Success: true}
			if n, err := r.vectors.DeleteByFilename(gctx, name); err != nil {
				res.Success = false
				res.ErrorMessage = err.Error()
			} else {
				r.log.Info("Removed document from index", "filename", name, "vectors", n)
			}
			if r.store.Remote() {
				if _, err := r.store.DeleteArtifacts(gctx, name); err != nil {
					r.log.Warn("artifact delete failed", "filename", name, "error", err.Error())
				}
			}
			status.Results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	status.FinishedAt = time.Now().UTC()
	for _, res := range status.Results {
		if res.Success {
			status.Succeeded++
		} else {
			status.Failed++
		}
	}
	r.writeStatus(ctx, status)
	return status, nil
}

func (r *Runner) runRemoveAll(ctx context.Context) (*domain.PipelineStatus, error) {
	status := &domain.PipelineStatus{
		Action:    string(ActionRemoveAll),
		StartedAt: time.Now().UTC(),
	}
	n, err := r.vectors.DeleteAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("delete all vectors: %w", err)
	}
	r.log.Info("Removed all documents from index", "vectors", n)
	if r.store.Remote() {
		if removed, err := r.store.DeleteAll(ctx); err != nil {
			r.log.Warn("artifact delete-all failed", "error", err.Error())
		} else {
			r.log.Info("Removed all artifacts", "count", removed)
		}
	}
	status.FinishedAt = time.Now().UTC()
	r.writeStatus(ctx, status)
	return status, nil
}

func (r *Runner) writeStatus(ctx context.Context, status *domain.PipelineStatus) {
	name := "pipeline_status_" + status.StartedAt.Format("20060102T150405Z") + ".json"
	if _, err := r.store.WriteStatus(ctx, name, status); err != nil {
		r.log.Warn("status manifest write failed", "error", err.Error())
	}
}

// Validate probes every configured collaborator without writing anything
// destructive. Intended as a pre-flight check before long runs.
func (r *Runner) Validate(ctx context.Context) []domain.ValidationResult {
	var out []domain.ValidationResult
	check := func(component string, err error) {
		res := domain.ValidationResult{Component: component, OK: err == nil}
		if err != nil {
			res.Message = err.Error()
		}
		out = append(out, res)
	}

	_, err := r.src.List(ctx)
	check("input_source", err)
	check("artifact_store", r.store.EnsureReady(ctx))
	check("vector_store", r.vectors.EnsureCollection(ctx))
	if r.splitter != nil {
		check("pdf_tools", r.splitter.AssertReady(ctx))
	}
	if r.embedder != nil {
		var dimErr error
		if r.embedder.Dimensions() != r.vectors.Dimensions() {
			dimErr = fmt.Errorf("embedding dimensions %d do not match collection dimensions %d",
				r.embedder.Dimensions(), r.vectors.Dimensions())
		}
		check("embeddings", dimErr)
	}
	return out
}
