package gcs

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

type StorageMode string

const (
	StorageModeGCS      StorageMode = "gcs"
	StorageModeEmulator StorageMode = "gcs_emulator"
)

type ConfigErrorCode string

const (
	ConfigErrorInvalidMode       ConfigErrorCode = "invalid_mode"
	ConfigErrorMissingBucket     ConfigErrorCode = "missing_bucket"
	ConfigErrorMissingEmulator   ConfigErrorCode = "missing_emulator_host"
	ConfigErrorInvalidPublicBase ConfigErrorCode = "invalid_public_base_url"
)

type ConfigError struct {
	Code   ConfigErrorCode
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("gcs config error (%s): %s", e.Code, e.Detail)
}

// Config is resolved env-first; only bucket names are mandatory.
type Config struct {
	Mode             StorageMode
	ProjectID        string
	EmulatorHost     string
	PublicBaseURL    string
	ContentBucket    string // page JSON, chunk JSON, figures, manifests
	PagesBucket      string // per-page PDF renderings
	CitationsBucket  string // full source documents
	CDNDomain        string
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Mode:            StorageMode(strings.TrimSpace(os.Getenv("OBJECT_STORAGE_MODE"))),
		ProjectID:       strings.TrimSpace(os.Getenv("GCP_PROJECT_ID")),
		EmulatorHost:    strings.TrimRight(strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")), "/"),
		PublicBaseURL:   strings.TrimRight(strings.TrimSpace(os.Getenv("OBJECT_STORAGE_PUBLIC_BASE_URL")), "/"),
		ContentBucket:   strings.TrimSpace(os.Getenv("CONTENT_GCS_BUCKET_NAME")),
		PagesBucket:     strings.TrimSpace(os.Getenv("PAGES_GCS_BUCKET_NAME")),
		CitationsBucket: strings.TrimSpace(os.Getenv("CITATIONS_GCS_BUCKET_NAME")),
		CDNDomain:       strings.TrimSpace(os.Getenv("CONTENT_CDN_DOMAIN")),
	}
	if cfg.Mode == "" {
		cfg.Mode = StorageModeGCS
	}
	if cfg.PagesBucket == "" {
		cfg.PagesBucket = cfg.ContentBucket
	}
	if cfg.CitationsBucket == "" {
		cfg.CitationsBucket = cfg.ContentBucket
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Mode {
	case StorageModeGCS, StorageModeEmulator:
	default:
		return &ConfigError{Code: ConfigErrorInvalidMode, Detail: string(c.Mode)}
	}
	if c.Mode == StorageModeEmulator && c.EmulatorHost == "" {
		return &ConfigError{Code: ConfigErrorMissingEmulator, Detail: "STORAGE_EMULATOR_HOST required in emulator mode"}
	}
	if c.ContentBucket == "" {
		return &ConfigError{Code: ConfigErrorMissingBucket, Detail: "missing env var CONTENT_GCS_BUCKET_NAME"}
	}
	if c.PublicBaseURL != "" {
		parsed, err := url.Parse(c.PublicBaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return &ConfigError{Code: ConfigErrorInvalidPublicBase, Detail: c.PublicBaseURL}
		}
	}
	return nil
}

func (c Config) IsEmulator() bool { return c.Mode == StorageModeEmulator }
