package nlp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/parallels/devops-copilot/internal/copilot/llm"
	"github.com/parallels/devops-copilot/internal/copilot/metrics"
)

// ErrNoMatch is returned when no candidate matches the user's text.
var ErrNoMatch = errors.New("nlp: no matching candidate")

// resolverCutset is stripped from the model's answer. Names that genuinely
// start or end with these characters cannot be resolved this way.
const resolverCutset = "{}\"'` \t\r\n"

// Resolver maps a loosely spelled name onto one of a list of canonical names.
type Resolver struct {
	engine llm.Engine
	// Metrics times the engine calls. Optional.
	Metrics *metrics.Metrics
}

func NewResolver(engine llm.Engine) *Resolver {
	return &Resolver{engine: engine}
}

// Resolve returns the candidate matching text. A case-insensitive exact match
// is returned without calling the engine. Otherwise the engine picks one;
// its answer must itself equal a candidate (case-insensitively) or ErrNoMatch
// is returned. Engine errors propagate.
func (r *Resolver) Resolve(ctx context.Context, text string, candidates []string) (string, error) {
	if name, ok := exactMatch(text, candidates); ok {
		return name, nil
	}
	if len(candidates) == 0 || strings.TrimSpace(text) == "" {
		return "", ErrNoMatch
	}

	start := time.Now()
	answer, err := llm.Complete(ctx, r.engine, resolverPrompt(text, candidates))
	r.Metrics.ObserveCompletion("resolve", start)
	if errors.Is(err, llm.ErrEmptyResponse) {
		return "", ErrNoMatch
	}
	if err != nil {
		return "", fmt.Errorf("nlp: resolve %q: %w", text, err)
	}

	if name, ok := exactMatch(strings.Trim(answer, resolverCutset), candidates); ok {
		return name, nil
	}
	return "", ErrNoMatch
}

func exactMatch(text string, candidates []string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	for _, c := range candidates {
		if strings.EqualFold(text, c) {
			return c, true
		}
	}
	return "", false
}
