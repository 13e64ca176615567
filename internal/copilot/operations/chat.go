package operations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/parallels/devops-copilot/internal/copilot/intent"
	"github.com/parallels/devops-copilot/internal/copilot/llm"
	"github.com/parallels/devops-copilot/internal/copilot/nlp"
)

// Chat answers a free-form question with the completion engine. Engine
// errors are returned.
func (h *Handlers) Chat(ctx context.Context, in intent.Chat, history []llm.Message) ([]Outcome, error) {
	if h.Engine == nil {
		return []Outcome{failed("chat", "", "I can only help with virtual machine operations right now.")}, nil
	}
	start := time.Now()
	answer, err := llm.Complete(ctx, h.Engine, nlp.BuildChatPrompt(in.Message, history, h.HistoryExchanges))
	h.Metrics.ObserveCompletion("chat", start)
	if err != nil {
		return nil, fmt.Errorf("operations: chat: %w", err)
	}
	return []Outcome{succeeded("chat", "", "%s", strings.TrimSpace(answer))}, nil
}

// ChatOutput passes text through unchanged.
func (h *Handlers) ChatOutput(_ context.Context, in intent.ChatOutput) ([]Outcome, error) {
	return []Outcome{succeeded("chat", "", "%s", in.Message)}, nil
}
