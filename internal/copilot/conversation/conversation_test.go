package conversation_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/parallels/devops-copilot/internal/copilot/conversation"
	"github.com/parallels/devops-copilot/internal/copilot/intent"
	"github.com/parallels/devops-copilot/internal/copilot/inventory"
	"github.com/parallels/devops-copilot/internal/copilot/llm"
	"github.com/parallels/devops-copilot/internal/copilot/memory"
	"github.com/parallels/devops-copilot/internal/copilot/metrics"
	"github.com/parallels/devops-copilot/internal/copilot/nlp"
	"github.com/parallels/devops-copilot/internal/copilot/operations"
	"github.com/parallels/devops-copilot/internal/copilot/store"
)

// ---------------------------------------------------------------------------
// Test doubles

// queueEngine answers Submit calls with replies in order and records prompts.
type queueEngine struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   [][]llm.Message
}

func (q *queueEngine) Submit(_ context.Context, msgs []llm.Message) (llm.Stream, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, msgs)
	if q.err != nil {
		return nil, q.err
	}
	if len(q.replies) == 0 {
		return nil, fmt.Errorf("queueEngine: no reply scripted for call %d", len(q.calls))
	}
	reply := q.replies[0]
	q.replies = q.replies[1:]
	return llm.NewSliceStream(reply), nil
}

type fixedExtractor struct {
	intents []intent.Intent
	err     error
	got     []nlp.ExtractRequest
}

func (f *fixedExtractor) Extract(_ context.Context, req nlp.ExtractRequest) ([]intent.Intent, error) {
	f.got = append(f.got, req)
	return f.intents, f.err
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []store.AuditEntry
}

func (r *recordingAudit) WriteAudit(_ context.Context, e store.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

type noopControl struct{ calls []string }

func (c *noopControl) record(action, id string) error {
	c.calls = append(c.calls, action+" "+id)
	return nil
}

func (c *noopControl) Start(_ context.Context, id string) error   { return c.record("start", id) }
func (c *noopControl) Stop(_ context.Context, id string) error    { return c.record("stop", id) }
func (c *noopControl) Pause(_ context.Context, id string) error   { return c.record("pause", id) }
func (c *noopControl) Resume(_ context.Context, id string) error  { return c.record("resume", id) }
func (c *noopControl) Suspend(_ context.Context, id string) error { return c.record("suspend", id) }
func (c *noopControl) Delete(_ context.Context, id string) error  { return c.record("delete", id) }
func (c *noopControl) Status(_ context.Context, id string) (inventory.MachineState, error) {
	return inventory.StateRunning, c.record("status", id)
}

func snapshot() *inventory.Snapshot {
	return &inventory.Snapshot{
		MachineList: []inventory.Machine{
			{ID: "id-demo1", Name: "demo1", State: inventory.StateRunning},
			{ID: "id-demo2", Name: "demo2", State: inventory.StateStopped},
		},
		Catalogs: []inventory.CatalogProvider{
			{ID: "main", Name: "main", State: inventory.ProviderActive, Manifests: []inventory.Manifest{{Name: "ubuntu"}}},
		},
		HostList: []inventory.HostProvider{
			{ID: "farm", Name: "farm", State: inventory.ProviderActive, Type: inventory.TypeOrchestrator},
		},
	}
}

type fixture struct {
	handler *conversation.Handler
	engine  *queueEngine
	control *noopControl
	audit   *recordingAudit
	memory  *memory.Tracker
}

func newFixture(ex conversation.Extractor, replies ...string) *fixture {
	snap := snapshot()
	eng := &queueEngine{replies: replies}
	ctl := &noopControl{}
	ops := &operations.Handlers{Inventory: snap, Control: ctl, Engine: eng}
	f := &fixture{engine: eng, control: ctl, audit: &recordingAudit{}, memory: memory.NewTracker(memory.TrackerConfig{})}
	if ex == nil {
		ex = nlp.NewExtractor(eng, 0)
	}
	f.handler = conversation.NewHandler(conversation.Config{
		Extractor:  ex,
		Router:     conversation.NewRouter(ops),
		Aggregator: &conversation.Aggregator{Engine: eng},
		Inventory:  snap,
		Memory:     f.memory,
		Audit:      f.audit,
		Metrics:    metrics.New(),
	})
	return f
}

func turn(text string) conversation.Turn {
	return conversation.Turn{RoomID: "!ops:test", Sender: "@alice:test", Text: text}
}

// ---------------------------------------------------------------------------
// Aggregator

func TestAggregate_NoOutcomesUsesFallback(t *testing.T) {
	eng := &queueEngine{}
	a := &conversation.Aggregator{Engine: eng}
	got, err := a.Aggregate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got != conversation.FallbackReply {
		t.Errorf("got %q, want fallback", got)
	}
	if len(eng.calls) != 0 {
		t.Errorf("engine called %d times, want 0", len(eng.calls))
	}
}

func TestAggregate_SingleOutcomeVerbatim(t *testing.T) {
	eng := &queueEngine{}
	a := &conversation.Aggregator{Engine: eng}
	want := "The virtual machine demo1 was stopped."
	got, err := a.Aggregate(context.Background(), []operations.Outcome{{Message: want, Status: operations.StatusSuccess}})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if len(eng.calls) != 0 {
		t.Errorf("engine called %d times, want 0", len(eng.calls))
	}
}

func TestAggregate_ManyOutcomesSummarised(t *testing.T) {
	eng := &queueEngine{replies: []string{"  I stopped demo1 and demo2 was already stopped.\n"}}
	a := &conversation.Aggregator{Engine: eng}
	got, err := a.Aggregate(context.Background(), []operations.Outcome{
		{Message: "The virtual machine demo1 was stopped.", Status: operations.StatusSuccess},
		{Message: "The virtual machine demo2 is paused, please resume it before stopping.", Status: operations.StatusFailed},
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got != "I stopped demo1 and demo2 was already stopped." {
		t.Errorf("got %q", got)
	}
	if len(eng.calls) != 1 {
		t.Fatalf("engine called %d times, want 1", len(eng.calls))
	}
	payload := eng.calls[0][1].Content
	for _, want := range []string{`"status": "success"`, `"status": "failed"`, "demo2 is paused"} {
		if !strings.Contains(payload, want) {
			t.Errorf("summary payload missing %q:\n%s", want, payload)
		}
	}
}

func TestAggregate_WithoutEngineJoinsLines(t *testing.T) {
	a := &conversation.Aggregator{}
	got, err := a.Aggregate(context.Background(), []operations.Outcome{{Message: "a"}, {Message: "b"}})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got != "a\nb" {
		t.Errorf("got %q, want %q", got, "a\nb")
	}
}

// ---------------------------------------------------------------------------
// Router

func TestRouter_DispatchesEveryCategory(t *testing.T) {
	r := conversation.NewRouter(&operations.Handlers{Inventory: snapshot(), Control: &noopControl{}})
	samples := []intent.Intent{
		intent.Create{Provider: "nope", Manifest: "ubuntu"},
		intent.Status{Machine: "demo1"},
		intent.Set{Action: intent.ActionStart, Target: "demo2"},
		intent.CountState{State: "running"},
		intent.ProviderResource{ProviderType: intent.ProviderCatalog, Resource: intent.ResourceManifests, Provider: "main"},
		intent.ProviderStatus{ProviderType: intent.ProviderOrchestrator},
		intent.ProviderCount{ProviderType: intent.ProviderRemoteHost},
		intent.Chat{Message: "hi"},
		intent.ChatOutput{Message: "hello"},
	}
	for _, in := range samples {
		out, err := r.Dispatch(context.Background(), in, nil)
		if err != nil {
			t.Errorf("%s: %v", in.Category(), err)
			continue
		}
		if len(out) == 0 {
			t.Errorf("%s: no outcomes", in.Category())
		}
	}
}

func TestRouter_UnknownCategory(t *testing.T) {
	r := &conversation.Router{}
	if _, err := r.Dispatch(context.Background(), intent.ChatOutput{Message: "x"}, nil); err == nil {
		t.Error("expected an error for an unregistered category")
	}
}

// ---------------------------------------------------------------------------
// Handler

func TestHandle_SingleIntentEndToEnd(t *testing.T) {
	extraction := "```json\n" + `[{"category":"SET","action":"stop","target":"demo1","description":"Stop demo1"}]` + "\n```"
	f := newFixture(nil, extraction)

	got := f.handler.Handle(context.Background(), turn("please stop demo1"))
	if want := "The virtual machine demo1 was stopped."; got != want {
		t.Errorf("reply: got %q, want %q", got, want)
	}
	if diff := cmp.Diff([]string{"stop id-demo1"}, f.control.calls); diff != "" {
		t.Errorf("control calls (-want +got):\n%s", diff)
	}

	prompt := f.engine.calls[0][0].Content
	for _, want := range []string{"demo1", "demo2", "main (manifests: ubuntu)", "farm"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("extraction prompt missing %q", want)
		}
	}

	if len(f.audit.entries) != 1 {
		t.Fatalf("audit entries: got %d, want 1", len(f.audit.entries))
	}
	e := f.audit.entries[0]
	if e.Category != "SET" || e.Action != "stop" || e.Target != "demo1" || e.Result != "success" || e.TraceID == "" {
		t.Errorf("audit entry: got %+v", e)
	}
}

func TestHandle_IntentsRunInOrderAndAreSummarised(t *testing.T) {
	ex := &fixedExtractor{intents: []intent.Intent{
		intent.Set{Action: intent.ActionStop, Target: "demo1"},
		intent.Set{Action: intent.ActionStart, Target: "demo2"},
	}}
	f := newFixture(ex, "Stopped demo1 and started demo2.")

	got := f.handler.Handle(context.Background(), turn("stop demo1 and start demo2"))
	if got != "Stopped demo1 and started demo2." {
		t.Errorf("reply: got %q", got)
	}
	if diff := cmp.Diff([]string{"stop id-demo1", "start id-demo2"}, f.control.calls); diff != "" {
		t.Errorf("control calls (-want +got):\n%s", diff)
	}
}

func TestHandle_NoIntentsUsesFallback(t *testing.T) {
	f := newFixture(nil, "{}")
	if got := f.handler.Handle(context.Background(), turn("hmm")); got != conversation.FallbackReply {
		t.Errorf("got %q, want fallback", got)
	}
}

func TestHandle_PlainTextPassesThrough(t *testing.T) {
	f := newFixture(nil, "Hello! I manage your virtual machines.")
	if got := f.handler.Handle(context.Background(), turn("hello")); got != "Hello! I manage your virtual machines." {
		t.Errorf("got %q", got)
	}
}

func TestHandle_ErrorReplies(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"malformed", fmt.Errorf("nlp: extract: %w", intent.ErrMalformedPayload), conversation.ReplyNotUnderstood},
		{"create not first", intent.ErrCreateNotFirst, conversation.ReplyNotUnderstood},
		{"invalid", intent.ErrInvalidIntent, conversation.ReplyNotUnderstood},
		{"upstream limit", fmt.Errorf("nlp: extract: %w", llm.ErrRateLimit), conversation.ReplyUpstreamLimit},
		{"cancelled", context.Canceled, conversation.ReplyCancelled},
		{"other", errors.New("connection refused"), conversation.ReplyFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(&fixedExtractor{err: tc.err})
			if got := f.handler.Handle(context.Background(), turn("x")); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
			if len(f.audit.entries) != 1 || f.audit.entries[0].ErrorMessage == "" {
				t.Errorf("expected one audit row with the error, got %+v", f.audit.entries)
			}
		})
	}
}

func TestHandle_CancelledContextStopsDispatch(t *testing.T) {
	ex := &fixedExtractor{intents: []intent.Intent{intent.Set{Action: intent.ActionStop, Target: "demo1"}}}
	f := newFixture(ex)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got := f.handler.Handle(ctx, turn("stop demo1")); got != conversation.ReplyCancelled {
		t.Errorf("got %q, want %q", got, conversation.ReplyCancelled)
	}
	if len(f.control.calls) != 0 {
		t.Errorf("control calls after cancellation: %v", f.control.calls)
	}
}

func TestHandle_RateLimit(t *testing.T) {
	ex := &fixedExtractor{intents: []intent.Intent{intent.ChatOutput{Message: "ok"}}}
	snap := snapshot()
	h := conversation.NewHandler(conversation.Config{
		Extractor: ex,
		Router:    conversation.NewRouter(&operations.Handlers{Inventory: snap}),
		Limiter:   llm.NewRateLimiter(1, time.Minute),
	})

	if got := h.Handle(context.Background(), turn("one")); got != "ok" {
		t.Errorf("first turn: got %q", got)
	}
	if got := h.Handle(context.Background(), turn("two")); got != conversation.ReplyTooFast {
		t.Errorf("second turn: got %q, want %q", got, conversation.ReplyTooFast)
	}
	if len(ex.got) != 1 {
		t.Errorf("extractor called %d times, want 1", len(ex.got))
	}
}

func TestHandle_RecordsHistoryForFollowUps(t *testing.T) {
	ex := &fixedExtractor{intents: []intent.Intent{intent.Status{Machine: "demo1"}}}
	f := newFixture(ex)

	first := f.handler.Handle(context.Background(), turn("status of demo1"))
	f.handler.Handle(context.Background(), turn("and now?"))

	if len(ex.got) != 2 {
		t.Fatalf("extractor called %d times, want 2", len(ex.got))
	}
	want := []llm.Message{llm.User("status of demo1"), llm.Assistant(first)}
	if diff := cmp.Diff(want, ex.got[1].History); diff != "" {
		t.Errorf("history for second turn (-want +got):\n%s", diff)
	}
}

func TestHandle_ProgressSeesTurn(t *testing.T) {
	var rooms []string
	ops := &operations.Handlers{
		Inventory: snapshot(),
		Control:   &noopControl{},
		Progress: func(ctx context.Context, _ string) {
			if tr, ok := conversation.TurnFromContext(ctx); ok {
				rooms = append(rooms, tr.RoomID)
			}
		},
	}
	h := conversation.NewHandler(conversation.Config{
		Extractor: &fixedExtractor{intents: []intent.Intent{intent.Set{Action: intent.ActionStop, Target: "demo1"}}},
		Router:    conversation.NewRouter(ops),
	})
	h.Handle(context.Background(), turn("stop demo1"))
	if diff := cmp.Diff([]string{"!ops:test"}, rooms); diff != "" {
		t.Errorf("progress rooms (-want +got):\n%s", diff)
	}
}

type recordingLog struct {
	msgs []store.ConversationMessage
}

func (r *recordingLog) AppendConversation(_ context.Context, m store.ConversationMessage) error {
	r.msgs = append(r.msgs, m)
	return nil
}

func TestHandle_LogsExchangesUnderOneConversation(t *testing.T) {
	log := &recordingLog{}
	h := conversation.NewHandler(conversation.Config{
		Extractor: &fixedExtractor{intents: []intent.Intent{intent.Status{Machine: "demo1"}}},
		Router:    conversation.NewRouter(&operations.Handlers{Inventory: snapshot(), Control: &noopControl{}}),
		Memory:    memory.NewTracker(memory.TrackerConfig{}),
		Log:       log,
	})

	h.Handle(context.Background(), turn("status of demo1"))
	h.Handle(context.Background(), turn("again"))

	if len(log.msgs) != 4 {
		t.Fatalf("logged %d messages, want 4", len(log.msgs))
	}
	var roles []string
	for _, m := range log.msgs {
		roles = append(roles, m.Role)
		if m.ConversationID == "" || m.ConversationID != log.msgs[0].ConversationID {
			t.Errorf("message %q: conversation %q, want %q", m.Content, m.ConversationID, log.msgs[0].ConversationID)
		}
		if m.RoomID != "!ops:test" || m.Sender != "@alice:test" || m.TraceID == "" {
			t.Errorf("message metadata: got %+v", m)
		}
	}
	if diff := cmp.Diff([]string{"user", "assistant", "user", "assistant"}, roles); diff != "" {
		t.Errorf("roles (-want +got):\n%s", diff)
	}
	if log.msgs[0].TraceID == log.msgs[2].TraceID {
		t.Error("each turn should carry its own trace ID")
	}
}
