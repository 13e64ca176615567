package operations

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/parallels/devops-copilot/internal/copilot/intent"
	"github.com/parallels/devops-copilot/internal/copilot/inventory"
)

// provider is the common view of catalog and host providers.
type provider struct {
	name    string
	state   inventory.ProviderState
	catalog *inventory.CatalogProvider
	host    *inventory.HostProvider
}

// NormalizeFilter maps user wording onto provider and machine state names.
func NormalizeFilter(filter string) string {
	f := strings.ToLower(strings.TrimSpace(filter))
	switch f {
	case "available", "healthy":
		return string(inventory.ProviderActive)
	case "unavailable", "unhealthy":
		return string(inventory.ProviderInactive)
	case "all", "any":
		return ""
	}
	return f
}

func noun(pt intent.ProviderType) string {
	return strings.ReplaceAll(string(pt), "_", " ")
}

func (h *Handlers) providersOf(ctx context.Context, pt intent.ProviderType) ([]provider, error) {
	if pt == intent.ProviderCatalog {
		catalogs, err := h.Inventory.CatalogProviders(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]provider, len(catalogs))
		for i := range catalogs {
			out[i] = provider{name: catalogs[i].Name, state: catalogs[i].State, catalog: &catalogs[i]}
		}
		return out, nil
	}

	hosts, err := h.Inventory.HostProviders(ctx)
	if err != nil {
		return nil, err
	}
	want := inventory.TypeRemoteHost
	if pt == intent.ProviderOrchestrator {
		want = inventory.TypeOrchestrator
	}
	var out []provider
	for i := range hosts {
		if hosts[i].Type == want {
			out = append(out, provider{name: hosts[i].Name, state: hosts[i].State, host: &hosts[i]})
		}
	}
	return out, nil
}

// pickProviders returns the provider named name, or all of them when name is
// empty. found is false when a name was given and nothing matched.
func (h *Handlers) pickProviders(ctx context.Context, all []provider, name string) (picked []provider, found bool, err error) {
	if strings.TrimSpace(name) == "" {
		return all, true, nil
	}
	names := make([]string, len(all))
	for i, p := range all {
		names[i] = p.name
	}
	resolved, found, err := h.resolveName(ctx, name, names)
	if err != nil || !found {
		return nil, false, err
	}
	for _, p := range all {
		if p.name == resolved {
			return []provider{p}, true, nil
		}
	}
	return nil, false, nil
}

// ProviderResource lists the manifests, hosts or machines of a provider,
// optionally filtered. Zero matches is a failure.
func (h *Handlers) ProviderResource(ctx context.Context, in intent.ProviderResource) ([]Outcome, error) {
	action := "list " + string(in.Resource)
	all, err := h.providersOf(ctx, in.ProviderType)
	if err != nil {
		slog.Error("operations: list providers", "type", in.ProviderType, "err", err)
		return []Outcome{failed(action, in.Provider, "I could not read the list of %s providers.", noun(in.ProviderType))}, nil
	}
	picked, found, err := h.pickProviders(ctx, all, in.Provider)
	if err != nil {
		return nil, err
	}
	if !found {
		return []Outcome{failed(action, in.Provider, "The %s %s does not exist.", noun(in.ProviderType), in.Provider)}, nil
	}
	if len(picked) == 0 {
		return []Outcome{failed(action, "", "There are no %s providers configured.", noun(in.ProviderType))}, nil
	}

	filter := NormalizeFilter(in.Filter)
	match, ok := resourceFilter(in.Resource, filter)
	if !ok {
		return []Outcome{failed(action, in.Provider, "I cannot filter %s by %q.", resourceNoun(in.Resource), in.Filter)}, nil
	}

	outcomes := make([]Outcome, 0, len(picked))
	for _, p := range picked {
		names := match(p)
		label := resourceNoun(in.Resource)
		if filter != "" {
			label = filter + " " + label
		}
		where := fmt.Sprintf("the %s %s", noun(in.ProviderType), p.name)
		if len(names) == 0 {
			outcomes = append(outcomes, failed(action, p.name, "There are no %s in %s.", label, where))
			continue
		}
		outcomes = append(outcomes, succeeded(action, p.name,
			"%s has %d %s: %s.", capitalize(where), len(names), singularize(label, len(names)), joinNames(names)))
	}
	return outcomes, nil
}

// resourceFilter returns the name selector for resource under filter, or
// false when the filter does not apply to that resource.
func resourceFilter(res intent.Resource, filter string) (func(provider) []string, bool) {
	switch res {
	case intent.ResourceManifests:
		var keep func(inventory.Manifest) bool
		switch filter {
		case "":
			keep = func(inventory.Manifest) bool { return true }
		case "tainted":
			keep = inventory.Manifest.Tainted
		case "revoked":
			keep = inventory.Manifest.Revoked
		case "untainted", "clean":
			keep = func(m inventory.Manifest) bool { return !m.Tainted() && !m.Revoked() }
		default:
			return nil, false
		}
		return func(p provider) []string {
			if p.catalog == nil {
				return nil
			}
			var names []string
			for _, m := range p.catalog.Manifests {
				if keep(m) {
					names = append(names, m.Name)
				}
			}
			return names
		}, true

	case intent.ResourceHosts:
		if filter != "" && inventory.ParseProviderState(filter) == inventory.ProviderUnknown && filter != string(inventory.ProviderUnknown) {
			return nil, false
		}
		return func(p provider) []string {
			if p.host == nil {
				return nil
			}
			var names []string
			for _, hst := range p.host.Hosts {
				if filter == "" || string(hst.State) == filter {
					names = append(names, hst.Name)
				}
			}
			return names
		}, true

	case intent.ResourceVirtualMachines:
		if filter != "" && inventory.ParseMachineState(filter) == inventory.StateUnknown && filter != string(inventory.StateUnknown) {
			return nil, false
		}
		return func(p provider) []string {
			if p.host == nil {
				return nil
			}
			var names []string
			for _, vm := range p.host.VirtualMachines {
				if filter == "" || string(vm.State) == filter {
					names = append(names, vm.Name)
				}
			}
			return names
		}, true
	}
	return nil, false
}

// ProviderStatus reports the state of one provider, or of every provider of
// the type when none is named.
func (h *Handlers) ProviderStatus(ctx context.Context, in intent.ProviderStatus) ([]Outcome, error) {
	all, err := h.providersOf(ctx, in.ProviderType)
	if err != nil {
		slog.Error("operations: list providers", "type", in.ProviderType, "err", err)
		return []Outcome{failed("status", in.Provider, "I could not read the list of %s providers.", noun(in.ProviderType))}, nil
	}
	picked, found, err := h.pickProviders(ctx, all, in.Provider)
	if err != nil {
		return nil, err
	}
	if !found {
		return []Outcome{failed("status", in.Provider, "The %s %s does not exist.", noun(in.ProviderType), in.Provider)}, nil
	}
	if len(picked) == 0 {
		return []Outcome{failed("status", "", "There are no %s providers configured.", noun(in.ProviderType))}, nil
	}

	outcomes := make([]Outcome, 0, len(picked))
	for _, p := range picked {
		outcomes = append(outcomes, succeeded("status", p.name, "The %s %s is %s.", noun(in.ProviderType), p.name, p.state))
	}
	return outcomes, nil
}

// ProviderCount counts providers of a type, optionally by state. Zero
// matches is a failure.
func (h *Handlers) ProviderCount(ctx context.Context, in intent.ProviderCount) ([]Outcome, error) {
	all, err := h.providersOf(ctx, in.ProviderType)
	if err != nil {
		slog.Error("operations: list providers", "type", in.ProviderType, "err", err)
		return []Outcome{failed("count", "", "I could not read the list of %s providers.", noun(in.ProviderType))}, nil
	}

	filter := NormalizeFilter(in.Filter)
	if filter != "" && inventory.ParseProviderState(filter) == inventory.ProviderUnknown && filter != string(inventory.ProviderUnknown) {
		return []Outcome{failed("count", "", "I cannot filter %s providers by %q.", noun(in.ProviderType), in.Filter)}, nil
	}

	var names []string
	for _, p := range all {
		if filter == "" || string(p.state) == filter {
			names = append(names, p.name)
		}
	}

	label := noun(in.ProviderType) + " providers"
	if filter != "" {
		label = filter + " " + label
	}
	if len(names) == 0 {
		return []Outcome{failed("count", filter, "There are no %s.", label)}, nil
	}
	return []Outcome{succeeded("count", filter, "There %s %d %s: %s.",
		plural(len(names), "is", "are"), len(names), singularize(label, len(names)), joinNames(names))}, nil
}

func resourceNoun(res intent.Resource) string {
	return strings.ReplaceAll(string(res), "_", " ")
}

// singularize drops the trailing "s" of label when n is 1.
func singularize(label string, n int) string {
	if n == 1 {
		return strings.TrimSuffix(label, "s")
	}
	return label
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
