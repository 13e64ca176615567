// Package intent defines the typed intents the copilot acts on and converts
// raw completion output into them.
//
// The completion engine produces loosely-typed JSON records (see Record).
// Parse validates those records against a JSON schema, applies the repair
// rules, and turns each one into a concrete Intent whose category-specific
// fields have already been checked. Handlers never look at raw records.
package intent

import (
	"errors"
	"strings"
)

var (
	// ErrMalformedPayload is returned when the structured part of a
	// completion cannot be decoded or fails schema validation.
	ErrMalformedPayload = errors.New("intent: malformed payload")

	// ErrInvalidIntent is returned when a record is well-formed JSON but is
	// missing a field its category requires.
	ErrInvalidIntent = errors.New("intent: invalid intent")

	// ErrCreateNotFirst is returned when a CREATE intent is present but is
	// not the first element of the list.
	ErrCreateNotFirst = errors.New("intent: CREATE must be the first intent")
)

// Category is the top-level classification of a record.
type Category string

const (
	CategoryCreate           Category = "CREATE"
	CategoryStatus           Category = "STATUS"
	CategorySet              Category = "SET"
	CategoryCountState       Category = "COUNT_STATE"
	CategoryProviderResource Category = "LIST_PROVIDER_RESOURCE"
	CategoryProviderStatus   Category = "PROVIDER_STATUS"
	CategoryProviderCount    Category = "PROVIDER_COUNT"
	CategoryChat             Category = "CHAT"
	CategoryChatOutput       Category = "CHAT_OUTPUT"
)

// Categories lists every category in taxonomy order.
var Categories = []Category{
	CategoryCreate,
	CategoryStatus,
	CategorySet,
	CategoryCountState,
	CategoryProviderResource,
	CategoryProviderStatus,
	CategoryProviderCount,
	CategoryChat,
	CategoryChatOutput,
}

// Action is a state-changing machine operation carried by SET intents.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
	ActionPause   Action = "pause"
	ActionResume  Action = "resume"
	ActionSuspend Action = "suspend"
	ActionDelete  Action = "delete"
)

// SetActions lists the SET actions in the order the prompt documents them.
var SetActions = []Action{
	ActionStart, ActionStop, ActionRestart, ActionPause, ActionResume, ActionSuspend, ActionDelete,
}

// ParseAction normalises s and reports whether it names a SET action.
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range SetActions {
		if a == known {
			return a, true
		}
	}
	return "", false
}

// ProviderType distinguishes the three kinds of remote provider.
type ProviderType string

const (
	ProviderCatalog      ProviderType = "catalog"
	ProviderOrchestrator ProviderType = "orchestrator"
	ProviderRemoteHost   ProviderType = "remote_host"
)

// ParseProviderType accepts the canonical names plus a few spellings the
// model tends to use ("remote host", "remote-host", "orchestrators").
func ParseProviderType(s string) (ProviderType, bool) {
	n := strings.ToLower(strings.TrimSpace(s))
	n = strings.NewReplacer(" ", "_", "-", "_").Replace(n)
	n = strings.TrimSuffix(n, "s")
	switch n {
	case "catalog", "catalog_provider":
		return ProviderCatalog, true
	case "orchestrator":
		return ProviderOrchestrator, true
	case "remote_host", "remotehost", "host":
		return ProviderRemoteHost, true
	}
	return "", false
}

// Resource is the child collection listed by LIST_PROVIDER_RESOURCE.
type Resource string

const (
	ResourceManifests       Resource = "manifests"
	ResourceHosts           Resource = "hosts"
	ResourceVirtualMachines Resource = "virtual_machines"
)

// ParseResource normalises s into a Resource.
func ParseResource(s string) (Resource, bool) {
	n := strings.ToLower(strings.TrimSpace(s))
	n = strings.NewReplacer(" ", "_", "-", "_").Replace(n)
	switch n {
	case "manifests", "manifest", "images":
		return ResourceManifests, true
	case "hosts", "host":
		return ResourceHosts, true
	case "virtual_machines", "virtual_machine", "vms", "vm", "machines":
		return ResourceVirtualMachines, true
	}
	return "", false
}

// All is the literal target that fans a SET or COUNT_STATE intent out to every
// matching machine.
const All = "all"

// Intent is a validated, category-specific interpretation of one clause of
// user input. The concrete types below are the only implementations.
type Intent interface {
	Category() Category
	// Summary is the extractor's restatement of the intent, or a generated
	// one when the model left it empty.
	Summary() string
	isIntent()
}

// Create pulls a catalog manifest to create a new machine.
type Create struct {
	Provider     string
	Manifest     string
	Version      string
	Architecture string
	Machine      string
	Description  string
}

// Status asks for the live state of one machine.
type Status struct {
	Machine     string
	Description string
}

// Set changes the state of one machine, or of every eligible machine when
// Target is All.
type Set struct {
	Action      Action
	Target      string
	Description string
}

// CountState lists machines in a given state, or in every state when State is
// All.
type CountState struct {
	State       string
	Description string
}

// ProviderResource lists the manifests, hosts or machines of a provider.
type ProviderResource struct {
	ProviderType ProviderType
	Resource     Resource
	Provider     string
	Filter       string
	Description  string
}

// ProviderStatus reports the state of one provider, or of every provider of
// the type when Provider is empty.
type ProviderStatus struct {
	ProviderType ProviderType
	Provider     string
	Description  string
}

// ProviderCount counts providers of a type, optionally filtered by state.
type ProviderCount struct {
	ProviderType ProviderType
	Filter       string
	Description  string
}

// Chat is a free-form question answered by the completion engine.
type Chat struct {
	Message     string
	Description string
}

// ChatOutput carries text that is shown to the user as-is.
type ChatOutput struct {
	Message string
}

func (Create) Category() Category           { return CategoryCreate }
func (Status) Category() Category           { return CategoryStatus }
func (Set) Category() Category              { return CategorySet }
func (CountState) Category() Category       { return CategoryCountState }
func (ProviderResource) Category() Category { return CategoryProviderResource }
func (ProviderStatus) Category() Category   { return CategoryProviderStatus }
func (ProviderCount) Category() Category    { return CategoryProviderCount }
func (Chat) Category() Category             { return CategoryChat }
func (ChatOutput) Category() Category       { return CategoryChatOutput }

func (Create) isIntent()           {}
func (Status) isIntent()           {}
func (Set) isIntent()              {}
func (CountState) isIntent()       {}
func (ProviderResource) isIntent() {}
func (ProviderStatus) isIntent()   {}
func (ProviderCount) isIntent()    {}
func (Chat) isIntent()             {}
func (ChatOutput) isIntent()       {}

func (c Create) Summary() string {
	return orDefault(c.Description, "create "+c.Machine+" from "+c.Manifest+" on "+c.Provider)
}

func (s Status) Summary() string {
	return orDefault(s.Description, "status of "+s.Machine)
}

func (s Set) Summary() string {
	return orDefault(s.Description, string(s.Action)+" "+s.Target)
}

func (c CountState) Summary() string {
	return orDefault(c.Description, "list "+c.State+" virtual machines")
}

func (p ProviderResource) Summary() string {
	return orDefault(p.Description, "list "+string(p.Resource)+" of "+string(p.ProviderType)+" "+p.Provider)
}

func (p ProviderStatus) Summary() string {
	return orDefault(p.Description, "status of "+string(p.ProviderType)+" "+p.Provider)
}

func (p ProviderCount) Summary() string {
	return orDefault(p.Description, "count "+string(p.ProviderType)+" providers")
}

func (c Chat) Summary() string { return orDefault(c.Description, c.Message) }

func (c ChatOutput) Summary() string { return c.Message }

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) != "" {
		return s
	}
	return strings.Join(strings.Fields(fallback), " ")
}
