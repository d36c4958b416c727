// Package config loads the runner configuration from an optional YAML file
// with environment variables taking precedence. Provider credentials and
// endpoints stay env-only; the file carries run shape and chunking knobs.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/docingest/internal/pkg/envutil"
)

type ChunkingConfig struct {
	MaxTokens        int     `yaml:"max_tokens"`
	MaxSectionTokens int     `yaml:"max_section_tokens"`
	MaxChars         int     `yaml:"max_chars"`
	OverlapPercent   float64 `yaml:"overlap_percent"`
	CrossPageOverlap bool    `yaml:"cross_page_overlap"`
	DisableCharLimit bool    `yaml:"disable_char_limit"`
	TokenEncoding    string  `yaml:"token_encoding"`
}

type Config struct {
	LogMode    string `yaml:"log_mode"`
	Action     string `yaml:"action"`
	SourceGlob string `yaml:"source_glob"`
	MaxWorkers int    `yaml:"max_workers"`

	ProcessFigures  bool   `yaml:"process_figures"`
	CleanArtifacts  bool   `yaml:"clean_artifacts"`
	TableMode       string `yaml:"table_mode"`
	SummarizeTables bool   `yaml:"summarize_tables"`
	ExtractMode     string `yaml:"extract_mode"`

	// ArtifactMode is "gcs" or "local"; local keeps artifacts on disk under
	// LocalArtifactDir and is the offline developer mode.
	ArtifactMode     string `yaml:"artifact_mode"`
	LocalArtifactDir string `yaml:"local_artifact_dir"`

	Chunking ChunkingConfig `yaml:"chunking"`
}

func defaults() Config {
	return Config{
		LogMode:      "development",
		Action:       "add",
		SourceGlob:   "data/*",
		MaxWorkers:   4,
		TableMode:    "plain",
		ExtractMode:  "hybrid",
		ArtifactMode: "local",
		Chunking: ChunkingConfig{
			MaxTokens:        500,
			MaxSectionTokens: 750,
			MaxChars:         2500,
			OverlapPercent:   10,
			CrossPageOverlap: true,
			TokenEncoding:    "cl100k_base",
		},
	}
}

// Load reads the YAML file when path is non-empty, then applies env
// overrides on top.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogMode = envutil.Str("LOG_MODE", c.LogMode)
	c.Action = envutil.Str("INGEST_ACTION", c.Action)
	c.SourceGlob = envutil.Str("INGEST_SOURCE_GLOB", c.SourceGlob)
	c.MaxWorkers = envutil.Int("INGEST_MAX_WORKERS", c.MaxWorkers)
	c.ProcessFigures = envutil.Bool("INGEST_PROCESS_FIGURES", c.ProcessFigures)
	c.CleanArtifacts = envutil.Bool("INGEST_CLEAN_ARTIFACTS", c.CleanArtifacts)
	c.TableMode = envutil.Str("INGEST_TABLE_MODE", c.TableMode)
	c.SummarizeTables = envutil.Bool("INGEST_SUMMARIZE_TABLES", c.SummarizeTables)
	c.ExtractMode = envutil.Str("INGEST_EXTRACT_MODE", c.ExtractMode)
	c.ArtifactMode = envutil.Str("INGEST_ARTIFACT_MODE", c.ArtifactMode)
	c.LocalArtifactDir = envutil.Str("INGEST_LOCAL_ARTIFACT_DIR", c.LocalArtifactDir)

	c.Chunking.MaxTokens = envutil.Int("CHUNK_MAX_TOKENS", c.Chunking.MaxTokens)
	c.Chunking.MaxSectionTokens = envutil.Int("CHUNK_MAX_SECTION_TOKENS", c.Chunking.MaxSectionTokens)
	c.Chunking.MaxChars = envutil.Int("CHUNK_MAX_CHARS", c.Chunking.MaxChars)
	c.Chunking.OverlapPercent = envutil.Float("CHUNK_OVERLAP_PERCENT", c.Chunking.OverlapPercent)
	c.Chunking.CrossPageOverlap = envutil.Bool("CHUNK_CROSS_PAGE_OVERLAP", c.Chunking.CrossPageOverlap)
	c.Chunking.DisableCharLimit = envutil.Bool("CHUNK_DISABLE_CHAR_LIMIT", c.Chunking.DisableCharLimit)
	c.Chunking.TokenEncoding = envutil.Str("CHUNK_TOKEN_ENCODING", c.Chunking.TokenEncoding)
}

func (c *Config) validate() error {
	if c.SourceGlob == "" {
		return fmt.Errorf("source_glob required")
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be >= 1, got %d", c.MaxWorkers)
	}
	switch c.ArtifactMode {
	case "local", "gcs":
	default:
		return fmt.Errorf("artifact_mode must be local or gcs, got %q", c.ArtifactMode)
	}
	return nil
}
