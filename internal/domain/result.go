package domain

import "time"

// IngestionResult is the terminal state of one document's run. Process never
// raises; errors land in ErrorMessage.
type IngestionResult struct {
	Filename      string   `json:"filename"`
	Success       bool     `json:"success"`
	Skipped       bool     `json:"skipped,omitempty"`
	ChunksIndexed int      `json:"chunks_indexed"`
	ErrorMessage  string   `json:"error_message,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	Seconds       float64  `json:"seconds"`
}

type PipelineStatus struct {
	Action        string            `json:"action"`
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    time.Time         `json:"finished_at"`
	Total         int               `json:"total_documents"`
	Succeeded     int               `json:"successful_documents"`
	Failed        int               `json:"failed_documents"`
	SkippedCount  int               `json:"skipped_documents"`
	ChunksIndexed int               `json:"chunks_indexed"`
	Results       []IngestionResult `json:"results"`
}

func (s *PipelineStatus) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total)
}

// ValidationResult reports one collaborator probe from a validate-only run.
type ValidationResult struct {
	Component string `json:"component"`
	OK        bool   `json:"ok"`
	Message   string `json:"message,omitempty"`
}
