package conversation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/parallels/devops-copilot/common/trace"
	"github.com/parallels/devops-copilot/internal/copilot/intent"
	"github.com/parallels/devops-copilot/internal/copilot/inventory"
	"github.com/parallels/devops-copilot/internal/copilot/llm"
	"github.com/parallels/devops-copilot/internal/copilot/memory"
	"github.com/parallels/devops-copilot/internal/copilot/metrics"
	"github.com/parallels/devops-copilot/internal/copilot/nlp"
	"github.com/parallels/devops-copilot/internal/copilot/observability"
	"github.com/parallels/devops-copilot/internal/copilot/operations"
	"github.com/parallels/devops-copilot/internal/copilot/store"
)

// Replies sent when a turn cannot complete normally.
const (
	ReplyNotUnderstood = "Sorry, I could not understand how to handle that request, please try rephrasing it."
	ReplyFailed        = "Sorry, something went wrong while processing your request."
	ReplyCancelled     = "The request was cancelled."
	ReplyUpstreamLimit = "The language model is rate limiting requests right now, please try again in a moment."
	ReplyTooFast       = "You are sending requests too quickly, please wait a moment and try again."
)

// Extractor turns user text into intents.
type Extractor interface {
	Extract(ctx context.Context, req nlp.ExtractRequest) ([]intent.Intent, error)
}

// AuditWriter records what a turn did. *store.Store satisfies it.
type AuditWriter interface {
	WriteAudit(ctx context.Context, e store.AuditEntry) error
}

// ConversationLog persists the messages of a conversation. *store.Store
// satisfies it.
type ConversationLog interface {
	AppendConversation(ctx context.Context, m store.ConversationMessage) error
}

// Config wires a Handler. Extractor, Router and Aggregator are required; the
// rest are optional.
type Config struct {
	Extractor  Extractor
	Router     *Router
	Aggregator *Aggregator

	// Inventory supplies the names listed in the extraction prompt.
	Inventory inventory.Accessor
	Memory    *memory.Tracker
	Limiter   *llm.RateLimiter
	Audit     AuditWriter
	// Log receives every exchange; it needs Memory for conversation IDs.
	Log     ConversationLog
	Metrics *metrics.Metrics
}

// Turn is one message from a user.
type Turn struct {
	RoomID string
	Sender string
	Text   string
}

type turnKey struct{}

// TurnFromContext returns the turn being handled, for progress sinks that
// need to know where to report.
func TurnFromContext(ctx context.Context) (Turn, bool) {
	t, ok := ctx.Value(turnKey{}).(Turn)
	return t, ok
}

// Handler runs conversation turns. It is safe for concurrent use when its
// collaborators are.
type Handler struct {
	cfg Config
}

// NewHandler returns a Handler for cfg.
func NewHandler(cfg Config) *Handler {
	if cfg.Aggregator == nil {
		cfg.Aggregator = &Aggregator{Metrics: cfg.Metrics}
	}
	return &Handler{cfg: cfg}
}

// Handle processes one turn and returns the single reply for it. Intents run
// sequentially in extraction order; errors become one of the fixed replies.
func (h *Handler) Handle(ctx context.Context, turn Turn) string {
	ctx, traceID := trace.Ensure(ctx)
	ctx = context.WithValue(ctx, turnKey{}, turn)
	log := observability.WithTrace(ctx).With("room", turn.RoomID, "sender", turn.Sender)

	if h.cfg.Limiter != nil && !h.cfg.Limiter.Allow(turn.Sender) {
		log.Warn("conversation: rate limited")
		h.cfg.Metrics.RateLimited()
		h.cfg.Metrics.Turn("rate_limited")
		return ReplyTooFast
	}

	history := h.history(turn)
	reply, err := h.run(ctx, turn, history, traceID)
	if err != nil {
		reply = h.errorReply(ctx, log, turn, traceID, err)
	} else {
		h.cfg.Metrics.Turn("ok")
	}

	h.remember(ctx, turn, traceID, llm.User(turn.Text), llm.Assistant(reply))
	return reply
}

func (h *Handler) remember(ctx context.Context, turn Turn, traceID string, msgs ...llm.Message) {
	if h.cfg.Memory == nil {
		return
	}
	for _, m := range msgs {
		convID := h.cfg.Memory.Record(turn.RoomID, turn.Sender, m)
		if h.cfg.Log == nil {
			continue
		}
		err := h.cfg.Log.AppendConversation(context.WithoutCancel(ctx), store.ConversationMessage{
			ConversationID: convID,
			TraceID:        traceID,
			RoomID:         turn.RoomID,
			Sender:         turn.Sender,
			Role:           string(m.Role),
			Content:        m.Content,
		})
		if err != nil {
			observability.WithTrace(ctx).Warn("conversation: log message", "err", err)
		}
	}
}

func (h *Handler) run(ctx context.Context, turn Turn, history []llm.Message, traceID string) (string, error) {
	req := nlp.ExtractRequest{Text: turn.Text, History: history}
	h.addInventoryHints(ctx, &req)

	start := time.Now()
	intents, err := h.cfg.Extractor.Extract(ctx, req)
	h.cfg.Metrics.ObserveCompletion("extract", start)
	if err != nil {
		return "", err
	}
	observability.WithTrace(ctx).Info("conversation: extracted intents", "count", len(intents))

	var outcomes []operations.Outcome
	for _, in := range intents {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		category := string(in.Category())
		h.cfg.Metrics.Intent(category)

		results, err := h.cfg.Router.Dispatch(ctx, in, history)
		if err != nil {
			return "", err
		}
		for _, o := range results {
			h.cfg.Metrics.Outcome(category, string(o.Status))
			h.audit(ctx, store.AuditEntry{
				TraceID:  traceID,
				Actor:    turn.Sender,
				RoomID:   turn.RoomID,
				Category: category,
				Action:   o.Action,
				Target:   o.Target,
				Result:   string(o.Status),
				Message:  o.Message,
			})
		}
		outcomes = append(outcomes, results...)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return h.cfg.Aggregator.Aggregate(ctx, outcomes)
}

func (h *Handler) errorReply(ctx context.Context, log *slog.Logger, turn Turn, traceID string, err error) string {
	var reply, result string
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		reply, result = ReplyCancelled, "cancelled"
	case errors.Is(err, llm.ErrRateLimit):
		reply, result = ReplyUpstreamLimit, "rate_limited"
	case errors.Is(err, intent.ErrMalformedPayload),
		errors.Is(err, intent.ErrInvalidIntent),
		errors.Is(err, intent.ErrCreateNotFirst):
		reply, result = ReplyNotUnderstood, "error"
	default:
		reply, result = ReplyFailed, "error"
	}
	log.Error("conversation: turn failed", "err", err)
	h.cfg.Metrics.Turn(result)

	// The turn context may already be done; the audit row still matters.
	h.audit(context.WithoutCancel(ctx), store.AuditEntry{
		TraceID:      traceID,
		Actor:        turn.Sender,
		RoomID:       turn.RoomID,
		Category:     "turn",
		Result:       result,
		Message:      reply,
		ErrorMessage: err.Error(),
	})
	return reply
}

func (h *Handler) history(turn Turn) []llm.Message {
	if h.cfg.Memory == nil {
		return nil
	}
	return h.cfg.Memory.History(turn.RoomID, turn.Sender)
}

// addInventoryHints lists known names in the request. Inventory errors are
// logged and leave the lists empty; the handlers report them properly later.
func (h *Handler) addInventoryHints(ctx context.Context, req *nlp.ExtractRequest) {
	if h.cfg.Inventory == nil {
		return
	}
	log := observability.WithTrace(ctx)

	if machines, err := h.cfg.Inventory.Machines(ctx); err != nil {
		log.Warn("conversation: list machines for prompt", "err", err)
	} else {
		req.Machines = inventory.MachineNames(machines)
	}

	if catalogs, err := h.cfg.Inventory.CatalogProviders(ctx); err != nil {
		log.Warn("conversation: list catalogs for prompt", "err", err)
	} else {
		for _, c := range catalogs {
			hint := nlp.ProviderHint{Name: c.Name, Type: intent.ProviderCatalog}
			for _, m := range c.Manifests {
				hint.Manifests = append(hint.Manifests, m.Name)
			}
			req.Providers = append(req.Providers, hint)
		}
	}

	if hosts, err := h.cfg.Inventory.HostProviders(ctx); err != nil {
		log.Warn("conversation: list host providers for prompt", "err", err)
	} else {
		for _, p := range hosts {
			pt := intent.ProviderRemoteHost
			if p.Type == inventory.TypeOrchestrator {
				pt = intent.ProviderOrchestrator
			}
			req.Providers = append(req.Providers, nlp.ProviderHint{Name: p.Name, Type: pt})
		}
	}
}

func (h *Handler) audit(ctx context.Context, e store.AuditEntry) {
	if h.cfg.Audit == nil {
		return
	}
	if err := h.cfg.Audit.WriteAudit(ctx, e); err != nil {
		observability.WithTrace(ctx).Warn("conversation: write audit", "err", err)
	}
}
