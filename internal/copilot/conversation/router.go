// Package conversation runs one user turn end to end: extract intents,
// dispatch them in order, and fold the outcomes into a single reply.
package conversation

import (
	"context"
	"fmt"

	"github.com/parallels/devops-copilot/internal/copilot/intent"
	"github.com/parallels/devops-copilot/internal/copilot/llm"
	"github.com/parallels/devops-copilot/internal/copilot/operations"
)

// HandlerFunc handles one intent. history is the conversation so far, oldest
// first; most handlers ignore it.
type HandlerFunc func(ctx context.Context, in intent.Intent, history []llm.Message) ([]operations.Outcome, error)

// Router routes intents to handlers by category.
type Router struct {
	handlers map[intent.Category]HandlerFunc
}

// NewRouter returns a router with a handler for every intent category,
// backed by h.
func NewRouter(h *operations.Handlers) *Router {
	r := &Router{handlers: make(map[intent.Category]HandlerFunc)}

	r.Register(intent.CategoryCreate, func(ctx context.Context, in intent.Intent, _ []llm.Message) ([]operations.Outcome, error) {
		return h.Create(ctx, in.(intent.Create))
	})
	r.Register(intent.CategoryStatus, func(ctx context.Context, in intent.Intent, _ []llm.Message) ([]operations.Outcome, error) {
		return h.Status(ctx, in.(intent.Status))
	})
	r.Register(intent.CategorySet, func(ctx context.Context, in intent.Intent, _ []llm.Message) ([]operations.Outcome, error) {
		return h.Set(ctx, in.(intent.Set))
	})
	r.Register(intent.CategoryCountState, func(ctx context.Context, in intent.Intent, _ []llm.Message) ([]operations.Outcome, error) {
		return h.CountState(ctx, in.(intent.CountState))
	})
	r.Register(intent.CategoryProviderResource, func(ctx context.Context, in intent.Intent, _ []llm.Message) ([]operations.Outcome, error) {
		return h.ProviderResource(ctx, in.(intent.ProviderResource))
	})
	r.Register(intent.CategoryProviderStatus, func(ctx context.Context, in intent.Intent, _ []llm.Message) ([]operations.Outcome, error) {
		return h.ProviderStatus(ctx, in.(intent.ProviderStatus))
	})
	r.Register(intent.CategoryProviderCount, func(ctx context.Context, in intent.Intent, _ []llm.Message) ([]operations.Outcome, error) {
		return h.ProviderCount(ctx, in.(intent.ProviderCount))
	})
	r.Register(intent.CategoryChat, func(ctx context.Context, in intent.Intent, history []llm.Message) ([]operations.Outcome, error) {
		return h.Chat(ctx, in.(intent.Chat), history)
	})
	r.Register(intent.CategoryChatOutput, func(ctx context.Context, in intent.Intent, _ []llm.Message) ([]operations.Outcome, error) {
		return h.ChatOutput(ctx, in.(intent.ChatOutput))
	})
	return r
}

// Register sets the handler for a category, replacing any previous one.
func (r *Router) Register(category intent.Category, handler HandlerFunc) {
	if r.handlers == nil {
		r.handlers = make(map[intent.Category]HandlerFunc)
	}
	r.handlers[category] = handler
}

// Dispatch calls the handler registered for the intent's category.
func (r *Router) Dispatch(ctx context.Context, in intent.Intent, history []llm.Message) ([]operations.Outcome, error) {
	handler, ok := r.handlers[in.Category()]
	if !ok {
		return nil, fmt.Errorf("conversation: no handler registered for category %q", in.Category())
	}
	return handler(ctx, in, history)
}
