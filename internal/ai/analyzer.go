// Package ai enriches parsed schedule entries with a confidence score and
// suggestions, or extracts the event itself when rule parsing is skipped.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"schedule-management-backend/internal/config"
	"schedule-management-backend/internal/schedule"
)

// Request is one entry to analyze. Parsed is nil when the caller wants the
// analyzer to extract the event on its own. Parser carries the zone and
// default duration of the run; local extraction falls back to the
// analyzer's own parser when it is nil.
type Request struct {
	EntryID                int64
	Row                    schedule.Row
	Parsed                 *schedule.Event
	Parser                 *schedule.Parser
	Timezone               string
	DefaultDurationMinutes int
	Now                    time.Time
}

type Result struct {
	Event       *schedule.Event `json:"event,omitempty"`
	Confidence  float64         `json:"confidence"`
	Suggestions []string        `json:"suggestions,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	Provider    string          `json:"provider"`
}

type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*Result, error)
}

var ErrNoEvent = errors.New("analyzer returned no event")

// New picks the analyzer named by cfg.Provider. Remote providers get the
// configured per-entry timeout.
func New(ctx context.Context, cfg config.AIConfig, parser *schedule.Parser, logger *zap.Logger) (Analyzer, error) {
	logger = logger.Named("ai")
	timeout := config.Duration(cfg.Timeout, 60*time.Second)

	switch cfg.Provider {
	case "", "heuristic":
		return NewHeuristic(parser), nil
	case "openai":
		c := NewOpenAIClient(cfg.OpenAIKey, cfg.AssistantID)
		c.Model = cfg.OpenAIModel
		c.PollInterval = config.Duration(cfg.PollInterval, 700*time.Millisecond)
		c.Logger = logger
		return withTimeout{next: c, timeout: timeout}, nil
	case "gemini":
		g, err := NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel, logger)
		if err != nil {
			return nil, err
		}
		return withTimeout{next: g, timeout: timeout}, nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

type withTimeout struct {
	next    Analyzer
	timeout time.Duration
}

func (w withTimeout) Analyze(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	return w.next.Analyze(ctx, req)
}

// modelOutput is the JSON object both remote providers are asked to return.
type modelOutput struct {
	Event       *schedule.Event `json:"event"`
	Confidence  float64         `json:"confidence"`
	Suggestions []string        `json:"suggestions"`
	Notes       string          `json:"notes"`
}

// decodeOutput turns raw model text into a Result. A missing event is only an
// error when the request carried no parsed event.
func decodeOutput(text string, req Request, provider string) (*Result, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var out modelOutput
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &out); err != nil {
		return nil, fmt.Errorf("%s: decode model output: %w", provider, err)
	}

	if out.Event != nil && !out.Event.EndDatetime.After(out.Event.StartDatetime) {
		return nil, fmt.Errorf("%s: model event ends before it starts", provider)
	}
	if out.Event == nil && req.Parsed == nil {
		return nil, fmt.Errorf("%s: %w", provider, ErrNoEvent)
	}

	conf := out.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	return &Result{
		Event:       out.Event,
		Confidence:  conf,
		Suggestions: out.Suggestions,
		Notes:       out.Notes,
		Provider:    provider,
	}, nil
}
