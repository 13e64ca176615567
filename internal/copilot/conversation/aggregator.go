package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/parallels/devops-copilot/internal/copilot/llm"
	"github.com/parallels/devops-copilot/internal/copilot/metrics"
	"github.com/parallels/devops-copilot/internal/copilot/nlp"
	"github.com/parallels/devops-copilot/internal/copilot/operations"
)

// FallbackReply is sent when a turn produced no outcomes at all.
const FallbackReply = "I am not sure what you are asking me to do, please try again with a more defined input."

// Aggregator folds the outcomes of a turn into one reply.
type Aggregator struct {
	Engine  llm.Engine
	Metrics *metrics.Metrics
}

// Aggregate returns the fallback reply for no outcomes, the message itself for
// one, and a completion-engine summary for more. Summaries need an Engine;
// without one the messages are joined line by line.
func (a *Aggregator) Aggregate(ctx context.Context, outcomes []operations.Outcome) (string, error) {
	switch len(outcomes) {
	case 0:
		return FallbackReply, nil
	case 1:
		return outcomes[0].Message, nil
	}

	if a.Engine == nil {
		lines := make([]string, len(outcomes))
		for i, o := range outcomes {
			lines[i] = o.Message
		}
		return strings.Join(lines, "\n"), nil
	}

	entries := make([]nlp.OutcomeEntry, len(outcomes))
	for i, o := range outcomes {
		entries[i] = nlp.OutcomeEntry{Message: o.Message, Status: string(o.Status)}
	}
	prompt, err := nlp.BuildSummaryPrompt(entries)
	if err != nil {
		return "", fmt.Errorf("conversation: aggregate: %w", err)
	}

	start := time.Now()
	summary, err := llm.Complete(ctx, a.Engine, prompt)
	a.Metrics.ObserveCompletion("summarise", start)
	if err != nil {
		return "", fmt.Errorf("conversation: aggregate: %w", err)
	}
	return strings.TrimSpace(summary), nil
}
