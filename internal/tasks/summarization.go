package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/summarize"
)

// SummaryArtifactName is the object name of a summarization result.
const SummaryArtifactName = "summary.txt"

// SummarizationPayload is the payload of a summarization job.
type SummarizationPayload struct {
	Text string `json:"text"`
}

// Summarization runs extractive summarization over submitted text.
type Summarization struct {
	summarizer summarize.Summarizer
	maxChars   int
}

// NewSummarization returns the summarization handler. maxChars bounds the
// input length in characters.
func NewSummarization(s summarize.Summarizer, maxChars int) *Summarization {
	return &Summarization{summarizer: s, maxChars: maxChars}
}

func (h *Summarization) Type() string { return domain.TaskSummarization }

func (h *Summarization) Description() string {
	return fmt.Sprintf("Extractive summary of up to %d characters of text", h.maxChars)
}

func (h *Summarization) Validate(payload json.RawMessage) error {
	p, err := decodeSummarization(payload)
	if err != nil {
		return err
	}
	if strings.TrimSpace(p.Text) == "" {
		return domain.ErrEmptyInput
	}
	if n := utf8.RuneCountInString(p.Text); n > h.maxChars {
		return fmt.Errorf("%w: %d characters, limit is %d", domain.ErrInputTooLarge, n, h.maxChars)
	}
	return nil
}

func (h *Summarization) Run(ctx context.Context, payload json.RawMessage) (*Artifact, error) {
	p, err := decodeSummarization(payload)
	if err != nil {
		return nil, domain.Permanent(err)
	}

	summary, err := h.summarizer.Summarize(ctx, p.Text)
	if err != nil {
		if errors.Is(err, summarize.ErrMalformedInput) {
			return nil, domain.Permanent(err)
		}
		return nil, fmt.Errorf("summarize: %w", err)
	}
	return &Artifact{Name: SummaryArtifactName, Data: []byte(summary)}, nil
}

func decodeSummarization(payload json.RawMessage) (*SummarizationPayload, error) {
	var p SummarizationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return &p, nil
}
