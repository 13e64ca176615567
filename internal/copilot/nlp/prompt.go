package nlp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/parallels/devops-copilot/internal/copilot/intent"
	"github.com/parallels/devops-copilot/internal/copilot/llm"
)

// DefaultHistoryExchanges is how many prior user/assistant exchanges are
// embedded in the extraction prompt when the caller does not say otherwise.
const DefaultHistoryExchanges = 3

// ProviderHint names a provider the user may refer to. Manifests is only set
// for catalogs.
type ProviderHint struct {
	Name      string
	Type      intent.ProviderType
	Manifests []string
}

// ExtractRequest is the input to one extraction call.
type ExtractRequest struct {
	// Text is the raw user utterance.
	Text string
	// History holds prior turns, oldest first. Only the most recent
	// exchanges are sent.
	History []llm.Message
	// Providers and Machines are the names the model may use as targets.
	Providers []ProviderHint
	Machines  []string
}

const extractionRules = `You are the command interpreter of a virtual machine assistant.
Convert the user's request into a JSON array of intent objects and reply with
that array only, inside a single fenced code block labelled json.

Every object has these fields (use null when a field does not apply):
  category      one of CREATE, STATUS, SET, COUNT_STATE, LIST_PROVIDER_RESOURCE,
                PROVIDER_STATUS, PROVIDER_COUNT, CHAT
  action        the sub-operation, for example start, stop, list, count, status, pull
  action_value  a qualifier for the action, for example a state name or "all"
  target        the provider, host or resource the action applies to
  subject       the virtual machine the intent concerns
  description   one sentence restating what you understood
  manifest      CREATE only: the catalog manifest to pull
  version       CREATE only: the manifest version, null when not given
  architecture  CREATE only: the CPU architecture, null when not given
  provider_type catalog, orchestrator or remote_host for provider intents
  resource      manifests, hosts or virtual_machines for LIST_PROVIDER_RESOURCE

Categories:
  CREATE                 create a virtual machine from a catalog manifest. target is
                         the catalog provider name, subject the new machine name.
  STATUS                 the state of one virtual machine named in subject.
  SET                    change the state of virtual machines. action is one of
                         start, stop, restart, pause, resume, suspend, delete.
                         target is the machine name or "all".
  COUNT_STATE            list or count virtual machines by state. action_value is
                         running, stopped, paused, suspended or all.
  LIST_PROVIDER_RESOURCE list the manifests of a catalog, or the hosts or virtual
                         machines of an orchestrator or remote host. action_value
                         optionally filters them, for example tainted, revoked,
                         active, inactive, running.
  PROVIDER_STATUS        the state of a provider named in target, or of every
                         provider of the type when target is null.
  PROVIDER_COUNT         count providers of a type, action_value optionally filters
                         by state.
  CHAT                   anything else about virtual machines or this assistant.

Rules:
  - A CREATE object never carries a start, stop, restart, pause, resume, suspend
    or delete action. When the user asks to create a machine and also change its
    state, emit the CREATE object first and a separate SET object after it.
  - When there is a CREATE object it is always the first element of the array.
  - Keep the order in which the user asked for things.
  - Use the conversation so far to fill in names the user refers to indirectly,
    for example "it" or "that one".
  - Prefer the exact spelling of known machine and provider names listed below.
  - When the request is not about virtual machines or providers at all, answer it
    in plain text without a code block.`

type example struct {
	input  string
	output string
}

var extractionExamples = []example{
	{
		input:  "create a machine called dev-box from the ubuntu manifest in the main catalog",
		output: `[{"category":"CREATE","action":"pull","target":"main","subject":"dev-box","manifest":"ubuntu","version":null,"architecture":null,"description":"Create dev-box from ubuntu in the main catalog"}]`,
	},
	{
		input:  "create web1 from debian 12 arm64 in catalog lab and start it",
		output: `[{"category":"CREATE","action":"pull","target":"lab","subject":"web1","manifest":"debian","version":"12","architecture":"arm64","description":"Create web1 from debian 12"},{"category":"SET","action":"start","target":"web1","description":"Start web1"}]`,
	},
	{
		input:  "what is the status of demo1?",
		output: `[{"category":"STATUS","action":"status","subject":"demo1","description":"Status of demo1"}]`,
	},
	{
		input:  "stop demo1 and pause demo2",
		output: `[{"category":"SET","action":"stop","target":"demo1","description":"Stop demo1"},{"category":"SET","action":"pause","target":"demo2","description":"Pause demo2"}]`,
	},
	{
		input:  "start all my machines",
		output: `[{"category":"SET","action":"start","target":"all","description":"Start all virtual machines"}]`,
	},
	{
		input:  "how many machines are running?",
		output: `[{"category":"COUNT_STATE","action":"count","action_value":"running","description":"Count running virtual machines"}]`,
	},
	{
		input:  "give me an overview of all my machines",
		output: `[{"category":"COUNT_STATE","action":"list","action_value":"all","description":"List virtual machines in every state"}]`,
	},
	{
		input:  "which manifests in catalog main are tainted?",
		output: `[{"category":"LIST_PROVIDER_RESOURCE","action":"list","action_value":"tainted","target":"main","provider_type":"catalog","resource":"manifests","description":"List tainted manifests in main"}]`,
	},
	{
		input:  "list the healthy hosts of orchestrator build-farm",
		output: `[{"category":"LIST_PROVIDER_RESOURCE","action":"list","action_value":"healthy","target":"build-farm","provider_type":"orchestrator","resource":"hosts","description":"List healthy hosts of build-farm"}]`,
	},
	{
		input:  "is the lab remote host up?",
		output: `[{"category":"PROVIDER_STATUS","action":"status","target":"lab","provider_type":"remote_host","description":"Status of remote host lab"}]`,
	},
	{
		input:  "how many orchestrators are unavailable?",
		output: `[{"category":"PROVIDER_COUNT","action":"count","action_value":"unavailable","provider_type":"orchestrator","description":"Count unavailable orchestrators"}]`,
	},
	{
		input:  "(previous turn: status of demo1) ok, then start it",
		output: `[{"category":"SET","action":"start","target":"demo1","description":"Start demo1"}]`,
	},
	{
		input:  "what does suspending a machine do?",
		output: `[{"category":"CHAT","action":null,"subject":"what does suspending a machine do?","description":"Explain suspend"}]`,
	},
}

// BuildExtractionPrompt assembles the messages for one extraction call.
// historyExchanges <= 0 selects DefaultHistoryExchanges.
func BuildExtractionPrompt(req ExtractRequest, historyExchanges int) []llm.Message {
	var sb strings.Builder
	sb.WriteString(extractionRules)

	sb.WriteString("\n\nExamples:\n")
	for _, ex := range extractionExamples {
		fmt.Fprintf(&sb, "\nUser: %s\n```json\n%s\n```\n", ex.input, ex.output)
	}

	sb.WriteString("\nKnown virtual machines: ")
	sb.WriteString(listOrNone(req.Machines))
	sb.WriteString("\n")
	for _, pt := range []intent.ProviderType{intent.ProviderCatalog, intent.ProviderOrchestrator, intent.ProviderRemoteHost} {
		fmt.Fprintf(&sb, "Known %s providers: %s\n", strings.ReplaceAll(string(pt), "_", " "), providersOf(req.Providers, pt))
	}

	msgs := []llm.Message{llm.System(sb.String())}
	msgs = append(msgs, recentHistory(req.History, historyExchanges)...)
	msgs = append(msgs, llm.User(req.Text))
	return msgs
}

// recentHistory keeps the last n user/assistant exchanges.
func recentHistory(history []llm.Message, n int) []llm.Message {
	if n <= 0 {
		n = DefaultHistoryExchanges
	}
	if limit := 2 * n; len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

func providersOf(hints []ProviderHint, pt intent.ProviderType) string {
	var parts []string
	for _, h := range hints {
		if h.Type != pt {
			continue
		}
		if len(h.Manifests) > 0 {
			parts = append(parts, fmt.Sprintf("%s (manifests: %s)", h.Name, strings.Join(h.Manifests, ", ")))
		} else {
			parts = append(parts, h.Name)
		}
	}
	return listOrNone(parts)
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

// resolverPrompt asks the model to pick one candidate for text.
func resolverPrompt(text string, candidates []string) []llm.Message {
	var sb strings.Builder
	sb.WriteString("Pick the name from the list below that the user most likely meant.\n")
	sb.WriteString("Match case-insensitively. Accept abbreviations and treat spaces, dashes and underscores as equivalent.\n")
	sb.WriteString("Reply with only the selected name exactly as listed, wrapped in curly braces, for example {demo-1}.\n")
	sb.WriteString("If no name plausibly matches, reply with {}.\n\nNames:\n")
	for _, c := range candidates {
		sb.WriteString("- ")
		sb.WriteString(c)
		sb.WriteString("\n")
	}
	return []llm.Message{
		llm.System(sb.String()),
		llm.User(text),
	}
}

// OutcomeEntry is one outcome as presented to the summary prompt.
type OutcomeEntry struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

const summaryRules = `You report the results of operations on virtual machines and providers.
Summarise the JSON list of outcomes below in plain natural language for the user.
Do not use markdown. Account for every entry. Group the results by status and by
what was done (created, deleted, started, stopped, paused, resumed, suspended and
so on), and mention the machines by name.

Example: for two entries, one successful start of demo1 and one failed start of
demo2, reply "I started 1 virtual machine successfully (demo1) and 1 virtual
machine failed to start (demo2)."`

// BuildSummaryPrompt serialises outcomes into the aggregation prompt.
func BuildSummaryPrompt(outcomes []OutcomeEntry) ([]llm.Message, error) {
	data, err := json.MarshalIndent(outcomes, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("nlp: marshal outcomes: %w", err)
	}
	return []llm.Message{
		llm.System(summaryRules),
		llm.User(string(data)),
	}, nil
}

const chatRules = `You are a helpful assistant for a virtual machine management tool.
Answer the user's question briefly and in plain text. If the question is about
an operation you can perform, explain how to phrase the request.`

// BuildChatPrompt prepares a free-form question for the completion engine.
func BuildChatPrompt(question string, history []llm.Message, historyExchanges int) []llm.Message {
	msgs := []llm.Message{llm.System(chatRules)}
	msgs = append(msgs, recentHistory(history, historyExchanges)...)
	return append(msgs, llm.User(question))
}
