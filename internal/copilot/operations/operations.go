// Package operations executes intents against the inventory and reports what
// happened as Outcomes.
//
// Handlers never return errors for things the user can fix (unknown names,
// illegal state transitions, failed control calls); those become failed
// Outcomes. Errors are reserved for completion-engine failures and
// cancellation, which the caller turns into a generic reply.
package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/parallels/devops-copilot/internal/copilot/inventory"
	"github.com/parallels/devops-copilot/internal/copilot/llm"
	"github.com/parallels/devops-copilot/internal/copilot/metrics"
	"github.com/parallels/devops-copilot/internal/copilot/nlp"
)

// Status is the result class of an Outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Outcome is the result of one intent, or of one target of a SET intent.
type Outcome struct {
	Message string `json:"message"`
	Status  Status `json:"status"`
	// Action and Target identify what the outcome is about, for audit and
	// metrics. They are not shown to the user.
	Action string `json:"action,omitempty"`
	Target string `json:"target,omitempty"`
}

func succeeded(action, target, format string, args ...any) Outcome {
	return Outcome{Message: fmt.Sprintf(format, args...), Status: StatusSuccess, Action: action, Target: target}
}

func failed(action, target, format string, args ...any) Outcome {
	return Outcome{Message: fmt.Sprintf(format, args...), Status: StatusFailed, Action: action, Target: target}
}

// Resolver maps loosely spelled names onto canonical ones. It returns
// nlp.ErrNoMatch when nothing fits.
type Resolver interface {
	Resolve(ctx context.Context, text string, candidates []string) (string, error)
}

// Progress receives human-readable notes during long operations.
type Progress func(ctx context.Context, message string)

// DefaultMaxParallel bounds concurrent control calls in a multi-target SET.
const DefaultMaxParallel = 4

// Handlers holds the collaborators every operation needs.
type Handlers struct {
	Inventory inventory.Accessor
	Control   inventory.Controller
	Puller    inventory.Puller

	// Resolver is optional; without it only exact names resolve.
	Resolver Resolver
	// Progress is optional.
	Progress Progress
	// Engine answers CHAT intents. Optional.
	Engine llm.Engine
	// Metrics times CHAT completions. Optional.
	Metrics *metrics.Metrics

	HistoryExchanges int
	MaxParallel      int
}

func (h *Handlers) progress(ctx context.Context, format string, args ...any) {
	if h.Progress != nil {
		h.Progress(ctx, fmt.Sprintf(format, args...))
	}
}

func (h *Handlers) maxParallel() int {
	if h.MaxParallel > 0 {
		return h.MaxParallel
	}
	return DefaultMaxParallel
}

// resolveName finds text among names: exact case-insensitive match first,
// then the Resolver. found is false when nothing matches; err is only set
// for resolver failures other than no-match.
func (h *Handlers) resolveName(ctx context.Context, text string, names []string) (name string, found bool, err error) {
	for _, n := range names {
		if strings.EqualFold(strings.TrimSpace(text), n) {
			return n, true, nil
		}
	}
	if h.Resolver == nil || len(names) == 0 {
		return "", false, nil
	}
	name, err = h.Resolver.Resolve(ctx, text, names)
	if errors.Is(err, nlp.ErrNoMatch) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	slog.Debug("operations: resolved name", "input", text, "resolved", name)
	return name, true, nil
}

// resolveMachine finds the machine called text in machines.
func (h *Handlers) resolveMachine(ctx context.Context, text string, machines []inventory.Machine) (inventory.Machine, bool, error) {
	name, found, err := h.resolveName(ctx, text, inventory.MachineNames(machines))
	if err != nil || !found {
		return inventory.Machine{}, false, err
	}
	for _, m := range machines {
		if m.Name == name {
			return m, true, nil
		}
	}
	return inventory.Machine{}, false, nil
}

// joinNames renders names as "a, b and c".
func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}
