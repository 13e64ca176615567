// Package nlp turns user utterances into intents and resolves loosely spelled
// names against the inventory, using a completion engine for both.
//
// The model only proposes intents. Everything it returns is validated by the
// intent package, and names it picks are checked against the candidate list
// before anything acts on them.
package nlp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/parallels/devops-copilot/internal/copilot/intent"
	"github.com/parallels/devops-copilot/internal/copilot/llm"
)

// Extractor converts one utterance into an ordered list of intents.
type Extractor struct {
	engine           llm.Engine
	historyExchanges int
}

// NewExtractor returns an Extractor that embeds up to historyExchanges prior
// exchanges in each prompt (DefaultHistoryExchanges when <= 0).
func NewExtractor(engine llm.Engine, historyExchanges int) *Extractor {
	if historyExchanges <= 0 {
		historyExchanges = DefaultHistoryExchanges
	}
	return &Extractor{engine: engine, historyExchanges: historyExchanges}
}

// Extract submits the extraction prompt and parses the completion.
//
// A completion without structured content, or whose structured content holds
// no records, becomes a single intent.ChatOutput carrying the completion text
// verbatim. A bare empty JSON value yields no intents at all. Engine errors
// and malformed payloads are returned wrapped; nothing is guessed.
func (e *Extractor) Extract(ctx context.Context, req ExtractRequest) ([]intent.Intent, error) {
	msgs := BuildExtractionPrompt(req, e.historyExchanges)
	text, err := llm.Complete(ctx, e.engine, msgs)
	if err != nil {
		return nil, fmt.Errorf("nlp: extract: %w", err)
	}

	payload, structured := intent.ExtractPayload(text)
	if !structured {
		return chatOutput(text), nil
	}

	intents, err := intent.Parse(payload)
	if err != nil {
		slog.Debug("nlp: unparseable completion", "payload", payload, "err", err)
		return nil, fmt.Errorf("nlp: extract: %w", err)
	}
	if len(intents) == 0 {
		if intent.Prose(text) == "" {
			return nil, nil
		}
		return chatOutput(text), nil
	}
	return intents, nil
}

func chatOutput(text string) []intent.Intent {
	return []intent.Intent{intent.ChatOutput{Message: text}}
}
