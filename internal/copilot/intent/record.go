package intent

import (
	"fmt"
	"slices"
	"strings"

	"github.com/parallels/devops-copilot/internal/copilot/inventory"
)

// Record is the wire form of one intent as emitted by the completion engine.
// Only Category is mandatory on the wire; which other fields matter depends
// on the category and is checked by Intent.
type Record struct {
	Category     string `json:"category"`
	Action       string `json:"action,omitempty"`
	ActionValue  string `json:"action_value,omitempty"`
	Target       string `json:"target,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Description  string `json:"description,omitempty"`
	Manifest     string `json:"manifest,omitempty"`
	Version      string `json:"version,omitempty"`
	Architecture string `json:"architecture,omitempty"`
	ProviderType string `json:"provider_type,omitempty"`
	Resource     string `json:"resource,omitempty"`
}

// DefaultMachineName derives the name of a machine created without one:
// "<manifest>-<version>", or just the manifest when the version is not known
// yet, lower-cased with separators normalised to dashes.
func DefaultMachineName(manifest, version string) string {
	name := strings.TrimSpace(manifest)
	if v := strings.TrimSpace(version); v != "" {
		name += "-" + v
	}
	return strings.ToLower(machineNameReplacer.Replace(name))
}

var machineNameReplacer = strings.NewReplacer(" ", "-", "_", "-", ".", "-", "/", "-")

// countableStates are the values COUNT_STATE accepts.
var countableStates = []string{"running", "stopped", "paused", "suspended", All}

// Intent validates r and returns the concrete intent for its category.
// Errors wrap ErrInvalidIntent.
func (r Record) Intent() (Intent, error) {
	r = r.trimmed()
	desc := r.Description

	switch Category(strings.ToUpper(r.Category)) {
	case CategoryCreate:
		if _, isSet := ParseAction(r.Action); isSet {
			return nil, invalid(r, "CREATE cannot carry the %q action", r.Action)
		}
		if r.Target == "" {
			return nil, invalid(r, "CREATE requires a catalog provider in target")
		}
		if r.Manifest == "" {
			return nil, invalid(r, "CREATE requires a manifest")
		}
		return Create{
			Provider:     r.Target,
			Manifest:     r.Manifest,
			Version:      r.Version,
			Architecture: inventory.NormalizeArch(r.Architecture),
			Machine:      r.Subject,
			Description:  desc,
		}, nil

	case CategoryStatus:
		machine := firstNonEmpty(r.Subject, r.Target)
		if machine == "" {
			return nil, invalid(r, "STATUS requires a machine name")
		}
		return Status{Machine: machine, Description: desc}, nil

	case CategorySet:
		action, ok := ParseAction(r.Action)
		if !ok {
			return nil, invalid(r, "unknown SET action %q", r.Action)
		}
		target := firstNonEmpty(r.Target, r.Subject)
		if target == "" {
			return nil, invalid(r, "SET requires a target machine or %q", All)
		}
		if strings.EqualFold(target, All) {
			target = All
		}
		return Set{Action: action, Target: target, Description: desc}, nil

	case CategoryCountState:
		state := strings.ToLower(firstNonEmpty(r.ActionValue, r.Target))
		if !slices.Contains(countableStates, state) {
			return nil, invalid(r, "COUNT_STATE requires one of %s, got %q", strings.Join(countableStates, "|"), state)
		}
		return CountState{State: state, Description: desc}, nil

	case CategoryProviderResource:
		pt, ok := ParseProviderType(r.ProviderType)
		if !ok {
			return nil, invalid(r, "unknown provider type %q", r.ProviderType)
		}
		res, ok := ParseResource(r.Resource)
		if !ok {
			if r.Resource != "" {
				return nil, invalid(r, "unknown resource %q", r.Resource)
			}
			res = defaultResource(pt)
		}
		if pt == ProviderCatalog && res != ResourceManifests {
			return nil, invalid(r, "catalog providers only expose manifests")
		}
		if pt != ProviderCatalog && res == ResourceManifests {
			return nil, invalid(r, "%s providers do not expose manifests", pt)
		}
		return ProviderResource{
			ProviderType: pt,
			Resource:     res,
			Provider:     r.Target,
			Filter:       strings.ToLower(r.ActionValue),
			Description:  desc,
		}, nil

	case CategoryProviderStatus:
		pt, ok := ParseProviderType(r.ProviderType)
		if !ok {
			return nil, invalid(r, "unknown provider type %q", r.ProviderType)
		}
		return ProviderStatus{ProviderType: pt, Provider: r.Target, Description: desc}, nil

	case CategoryProviderCount:
		pt, ok := ParseProviderType(r.ProviderType)
		if !ok {
			return nil, invalid(r, "unknown provider type %q", r.ProviderType)
		}
		return ProviderCount{ProviderType: pt, Filter: strings.ToLower(r.ActionValue), Description: desc}, nil

	case CategoryChat:
		msg := firstNonEmpty(r.Subject, r.Target, r.Description)
		if msg == "" {
			return nil, invalid(r, "CHAT requires a message")
		}
		return Chat{Message: msg, Description: desc}, nil

	case CategoryChatOutput:
		if desc == "" {
			return nil, invalid(r, "CHAT_OUTPUT requires a description")
		}
		return ChatOutput{Message: desc}, nil
	}

	return nil, invalid(r, "unknown category %q", r.Category)
}

func (r Record) trimmed() Record {
	r.Category = strings.TrimSpace(r.Category)
	r.Action = strings.TrimSpace(r.Action)
	r.ActionValue = strings.TrimSpace(r.ActionValue)
	r.Target = strings.TrimSpace(r.Target)
	r.Subject = strings.TrimSpace(r.Subject)
	r.Description = strings.TrimSpace(r.Description)
	r.Manifest = strings.TrimSpace(r.Manifest)
	r.Version = strings.TrimSpace(r.Version)
	r.Architecture = strings.TrimSpace(r.Architecture)
	r.ProviderType = strings.TrimSpace(r.ProviderType)
	r.Resource = strings.TrimSpace(r.Resource)
	return r
}

func defaultResource(pt ProviderType) Resource {
	if pt == ProviderCatalog {
		return ResourceManifests
	}
	return ResourceVirtualMachines
}

func invalid(r Record, format string, args ...any) error {
	return fmt.Errorf("%w: %s (category %q)", ErrInvalidIntent, fmt.Sprintf(format, args...), r.Category)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
