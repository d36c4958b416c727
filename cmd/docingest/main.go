package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/docingest/internal/artifacts"
	"github.com/yungbote/docingest/internal/chunker"
	"github.com/yungbote/docingest/internal/config"
	"github.com/yungbote/docingest/internal/describe"
	"github.com/yungbote/docingest/internal/extract"
	"github.com/yungbote/docingest/internal/pagesplit"
	"github.com/yungbote/docingest/internal/pipeline"
	"github.com/yungbote/docingest/internal/pkg/logger"
	"github.com/yungbote/docingest/internal/platform/docai"
	"github.com/yungbote/docingest/internal/platform/gcs"
	"github.com/yungbote/docingest/internal/platform/openai"
	"github.com/yungbote/docingest/internal/platform/qdrant"
	"github.com/yungbote/docingest/internal/platform/vision"
	"github.com/yungbote/docingest/internal/source"
	"github.com/yungbote/docingest/internal/tablerender"
	"github.com/yungbote/docingest/internal/token"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file (env overrides apply)")
		actionFlag = flag.String("action", "", "add | remove | remove_all (overrides config)")
		validate   = flag.Bool("validate", false, "probe collaborators and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *actionFlag != "" {
		cfg.Action = *actionFlag
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	action, err := pipeline.ParseAction(cfg.Action)
	if err != nil {
		log.Error("Bad action", "error", err)
		os.Exit(1)
	}
	tableMode, err := tablerender.ParseMode(cfg.TableMode)
	if err != nil {
		log.Error("Bad table mode", "error", err)
		os.Exit(1)
	}
	extractMode, err := extract.ParseMode(cfg.ExtractMode)
	if err != nil {
		log.Error("Bad extract mode", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Input source
	src, err := source.NewLocal(log, cfg.SourceGlob)
	if err != nil {
		log.Error("Could not init input source", "error", err)
		os.Exit(1)
	}

	// Embeddings + multimodal describer
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}
	var ocr vision.OCR
	if cfg.ProcessFigures {
		ocr, err = vision.NewOCR(log)
		if err != nil {
			log.Warn("Could not init Vision OCR; figure descriptions lose their fallback", "error", err)
		} else {
			defer ocr.Close()
		}
	}
	describer := describe.New(log, openaiClient, ocr)

	// PDF tooling + extractors
	splitTools := pagesplit.New(log)
	offlineExtractor := extract.NewOfflineExtractor(log, splitTools)
	var primary extract.Extractor
	if extractMode != extract.ModeOffline {
		docaiClient, err := docai.NewClient(log)
		if err != nil {
			if extractMode == extract.ModeDocAI {
				log.Error("Could not init Document AI client", "error", err)
				os.Exit(1)
			}
			log.Warn("Could not init Document AI client; running offline extraction only", "error", err)
			extractMode = extract.ModeOffline
		} else {
			defer docaiClient.Close()
			primary = extract.NewDocAIExtractor(log, docaiClient)
		}
	}
	router := extract.NewRouter(log, extractMode, primary, offlineExtractor, splitTools)

	// Artifact store
	var store artifacts.Store
	if cfg.ArtifactMode == "gcs" {
		bucketService, err := gcs.NewService(log)
		if err != nil {
			log.Error("Could not init GCS bucket service", "error", err)
			os.Exit(1)
		}
		store = artifacts.NewGCSStore(log, bucketService)
	} else {
		store, err = artifacts.NewLocalStore(log, cfg.LocalArtifactDir)
		if err != nil {
			log.Error("Could not init local artifact store", "error", err)
			os.Exit(1)
		}
	}

	// Vector store
	qcfg, err := qdrant.ResolveConfigFromEnv()
	if err != nil {
		log.Error("Bad Qdrant config", "error", err)
		os.Exit(1)
	}
	if qcfg.VectorDim == 0 {
		qcfg.VectorDim = openaiClient.Dimensions()
	}
	vectors, err := qdrant.NewVectorStore(log, qcfg)
	if err != nil {
		log.Error("Could not init Qdrant vector store", "error", err)
		os.Exit(1)
	}

	// Chunker
	counter := token.NewCounter(log, cfg.Chunking.TokenEncoding)
	chunk := chunker.New(log, counter, chunker.Config{
		MaxTokens:          cfg.Chunking.MaxTokens,
		MaxSectionTokens:   cfg.Chunking.MaxSectionTokens,
		MaxChars:           cfg.Chunking.MaxChars,
		OverlapPercent:     cfg.Chunking.OverlapPercent,
		CrossPageOverlap:   cfg.Chunking.CrossPageOverlap,
		DisableCharLimit:   cfg.Chunking.DisableCharLimit,
		EmbeddingMaxTokens: openaiClient.MaxSequenceTokens(),
	})

	pipe := pipeline.New(log, router, chunk, store, vectors, openaiClient, describer, splitTools, pipeline.Options{
		ProcessFigures:  cfg.ProcessFigures,
		CleanArtifacts:  cfg.CleanArtifacts,
		TableMode:       tableMode,
		SummarizeTables: cfg.SummarizeTables,
	})
	runner := pipeline.NewRunner(log, src, pipe, store, vectors, splitTools, openaiClient, cfg.MaxWorkers)

	if *validate {
		failed := false
		for _, res := range runner.Validate(ctx) {
			if res.OK {
				log.Info("Validation passed", "component", res.Component)
				continue
			}
			failed = true
			log.Error("Validation failed", "component", res.Component, "message", res.Message)
		}
		if failed {
			os.Exit(1)
		}
		return
	}

	status, err := runner.Run(ctx, action)
	if err != nil {
		log.Error("Pipeline run failed", "action", string(action), "error", err)
		os.Exit(1)
	}
	if status.Failed > 0 {
		os.Exit(2)
	}
}
