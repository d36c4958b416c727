package token

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/yungbote/docingest/internal/pkg/logger"
)

const DefaultEncoding = "cl100k_base"

// Counter reports model-aware token lengths. One Counter is built per
// pipeline run and shared; it is safe for concurrent use.
type Counter interface {
	Count(text string) int
	Encoding() string
}

type counter struct {
	enc      *tiktoken.Tiktoken
	encoding string
}

// NewCounter builds a tiktoken-backed counter. When the encoding cannot be
// loaded (offline environments without the BPE cache) it degrades to a
// character heuristic and warns once.
func NewCounter(log *logger.Logger, encoding string) Counter {
	encoding = strings.TrimSpace(encoding)
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		log.Warn("tiktoken encoding unavailable; falling back to character heuristic",
			"encoding", encoding,
			"error", err.Error(),
		)
		return &heuristicCounter{}
	}
	return &counter{enc: enc, encoding: encoding}
}

func (c *counter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

func (c *counter) Encoding() string { return c.encoding }

// heuristicCounter approximates 4 characters per token.
type heuristicCounter struct{}

func (h *heuristicCounter) Count(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

func (h *heuristicCounter) Encoding() string { return "heuristic" }
