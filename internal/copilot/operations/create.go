package operations

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/parallels/devops-copilot/internal/copilot/intent"
	"github.com/parallels/devops-copilot/internal/copilot/inventory"
)

const actionCreate = "create"

// Create pulls a catalog manifest into a new machine.
//
// The provider must match a catalog name exactly (ignoring case); the model
// already saw the provider list, so there is no fuzzy fallback. When no
// version is given and the manifest has exactly one, that version is used.
// When no architecture is given the puller's default is used.
func (h *Handlers) Create(ctx context.Context, in intent.Create) ([]Outcome, error) {
	return []Outcome{h.create(ctx, in)}, nil
}

func (h *Handlers) create(ctx context.Context, in intent.Create) Outcome {
	catalogs, err := h.Inventory.CatalogProviders(ctx)
	if err != nil {
		slog.Error("operations: list catalogs", "err", err)
		return failed(actionCreate, in.Machine, "I could not read the list of catalog providers.")
	}

	provider, ok := findCatalog(catalogs, in.Provider)
	if !ok {
		return failed(actionCreate, in.Machine, "The catalog provider %s does not exist.", in.Provider)
	}
	if provider.State == inventory.ProviderInactive || provider.State == inventory.ProviderDisabled {
		return failed(actionCreate, in.Machine, "The catalog provider %s is %s.", provider.Name, provider.State)
	}

	manifest, ok := findManifest(provider.Manifests, in.Manifest)
	if !ok {
		return failed(actionCreate, in.Machine, "The manifest %s was not found in the catalog %s.", in.Manifest, provider.Name)
	}

	version := in.Version
	if version == "" {
		versions := manifest.Versions()
		if len(versions) != 1 {
			if len(versions) == 0 {
				return failed(actionCreate, in.Machine, "The manifest %s has no versions available.", manifest.Name)
			}
			return failed(actionCreate, in.Machine,
				"Please tell me which version of %s to use, the available versions are %s.", manifest.Name, joinNames(versions))
		}
		version = versions[0]
	}

	items := itemsForVersion(manifest, version)
	if len(items) == 0 {
		return failed(actionCreate, in.Machine, "The version %s of %s is not available in the catalog %s.", version, manifest.Name, provider.Name)
	}
	version = items[0].Version

	arch := in.Architecture
	if arch == "" {
		arch, err = h.Puller.DefaultArchitecture(ctx)
		if err != nil {
			slog.Warn("operations: default architecture", "err", err)
			return failed(actionCreate, in.Machine, "I could not determine the architecture to use for %s.", manifest.Name)
		}
	}

	arch = inventory.NormalizeArch(arch)
	var item *inventory.ManifestItem
	for i := range items {
		if inventory.NormalizeArch(items[i].Architecture) == arch {
			item = &items[i]
			break
		}
	}
	if item == nil {
		return failed(actionCreate, in.Machine, "The version %s of %s is not available for the %s architecture.", version, manifest.Name, arch)
	}
	if item.Revoked {
		return failed(actionCreate, in.Machine, "The version %s of %s has been revoked.", version, manifest.Name)
	}

	name := in.Machine
	if name == "" {
		name = intent.DefaultMachineName(manifest.Name, version)
	}
	if machines, err := h.Inventory.Machines(ctx); err == nil {
		for _, m := range machines {
			if strings.EqualFold(m.Name, name) {
				return failed(actionCreate, name, "A virtual machine named %s already exists.", m.Name)
			}
		}
	}

	h.progress(ctx, "Creating the virtual machine %s from %s %s...", name, manifest.Name, version)
	pullID := uuid.NewString()
	res, err := h.Puller.Pull(ctx, provider, inventory.PullRequest{
		ID:           pullID,
		CatalogID:    manifest.Name,
		Version:      version,
		Architecture: arch,
		MachineName:  name,
		Connection:   provider.Connection,
	})
	if err != nil {
		slog.Warn("operations: pull failed", "pull_id", pullID, "catalog", provider.Name, "manifest", manifest.Name, "version", version, "err", err)
		return failed(actionCreate, name, "Failed to create the virtual machine %s from %s %s.", name, manifest.Name, version)
	}
	if res.Machine != "" {
		name = res.Machine
	}

	msg := "The virtual machine " + name + " was created from " + manifest.Name + " " + version + " (" + arch + ")."
	if item.Tainted {
		msg += " Note that this version is marked as tainted."
	}
	return succeeded(actionCreate, name, "%s", msg)
}

func findCatalog(catalogs []inventory.CatalogProvider, name string) (inventory.CatalogProvider, bool) {
	name = strings.TrimSpace(name)
	for _, c := range catalogs {
		if strings.EqualFold(c.Name, name) || (c.ID != "" && strings.EqualFold(c.ID, name)) {
			return c, true
		}
	}
	return inventory.CatalogProvider{}, false
}

func findManifest(manifests []inventory.Manifest, name string) (inventory.Manifest, bool) {
	name = strings.TrimSpace(name)
	for _, m := range manifests {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return inventory.Manifest{}, false
}

func itemsForVersion(m inventory.Manifest, version string) []inventory.ManifestItem {
	var out []inventory.ManifestItem
	for _, it := range m.Items {
		if strings.EqualFold(it.Version, version) {
			out = append(out, it)
		}
	}
	return out
}
