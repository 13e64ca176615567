// Package registry loads catalog, orchestrator and remote-host providers from
// a YAML file and keeps them current while the file is edited.
//
// Example file:
//
//	catalogs:
//	  - name: local-catalog
//	    state: active
//	    connection: host=ops:secret@catalog.local:5000
//	    manifests:
//	      - name: ubuntu
//	        items:
//	          - {version: "22.04", architecture: arm64}
//	hosts:
//	  - name: build-farm
//	    type: orchestrator
//	    state: active
//	    hosts:
//	      - {name: mac-mini-1, state: active, architecture: arm64}
package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/parallels/devops-copilot/common/redact"
	"github.com/parallels/devops-copilot/internal/copilot/inventory"
)

// Registry serves providers from the last successfully parsed file. It is
// safe for concurrent use.
type Registry struct {
	path string

	mu       sync.RWMutex
	catalogs []inventory.CatalogProvider
	hosts    []inventory.HostProvider
	loadedAt time.Time
}

var _ inventory.ProviderSource = (*Registry)(nil)

// Load parses path. A missing file yields an empty registry so the copilot
// can start before any provider is configured.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.Reload(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return r, nil
}

// Path returns the file the registry reads.
func (r *Registry) Path() string { return r.path }

// CatalogProviders returns a copy of the catalog providers.
func (r *Registry) CatalogProviders(context.Context) ([]inventory.CatalogProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.catalogs), nil
}

// HostProviders returns a copy of the orchestrator and remote-host providers.
func (r *Registry) HostProviders(context.Context) ([]inventory.HostProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.hosts), nil
}

// LoadedAt is the time of the last successful parse.
func (r *Registry) LoadedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedAt
}

// Reload re-reads the file. On error the previous providers stay in effect.
func (r *Registry) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("registry: read %s: %w", r.path, err)
	}
	snap, err := Parse(data)
	if err != nil {
		return fmt.Errorf("registry: %s: %w", r.path, err)
	}

	r.mu.Lock()
	r.catalogs = snap.Catalogs
	r.hosts = snap.HostList
	r.loadedAt = time.Now()
	r.mu.Unlock()

	slog.Info("registry: providers loaded",
		"path", r.path, "catalogs", len(snap.Catalogs), "hosts", len(snap.HostList))
	for _, c := range snap.Catalogs {
		slog.Debug("registry: catalog", "name", c.Name, "connection", redact.Connection(c.Connection))
	}
	return nil
}

// Parse decodes and validates a registry document. IDs default to names and
// states are normalised; duplicate names within a kind are rejected.
func Parse(data []byte) (inventory.Snapshot, error) {
	var snap inventory.Snapshot
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil && !errors.Is(err, io.EOF) {
		return inventory.Snapshot{}, fmt.Errorf("decode: %w", err)
	}

	seen := make(map[string]bool)
	for i := range snap.Catalogs {
		c := &snap.Catalogs[i]
		if err := checkName("catalog", c.Name, seen); err != nil {
			return inventory.Snapshot{}, err
		}
		c.ID = orName(c.ID, c.Name)
		c.State = inventory.ParseProviderState(string(c.State))
		for j, m := range c.Manifests {
			if strings.TrimSpace(m.Name) == "" {
				return inventory.Snapshot{}, fmt.Errorf("catalog %q: manifest %d has no name", c.Name, j)
			}
			for k := range m.Items {
				m.Items[k].Architecture = inventory.NormalizeArch(m.Items[k].Architecture)
			}
		}
	}

	clear(seen)
	for i := range snap.HostList {
		h := &snap.HostList[i]
		if err := checkName("host provider", h.Name, seen); err != nil {
			return inventory.Snapshot{}, err
		}
		switch h.Type {
		case inventory.TypeOrchestrator, inventory.TypeRemoteHost:
		case "":
			h.Type = inventory.TypeRemoteHost
		default:
			return inventory.Snapshot{}, fmt.Errorf("host provider %q: unknown type %q", h.Name, h.Type)
		}
		h.ID = orName(h.ID, h.Name)
		h.State = inventory.ParseProviderState(string(h.State))
		for j := range h.Hosts {
			h.Hosts[j].ID = orName(h.Hosts[j].ID, h.Hosts[j].Name)
			h.Hosts[j].State = inventory.ParseProviderState(string(h.Hosts[j].State))
		}
		for j := range h.VirtualMachines {
			h.VirtualMachines[j].ID = orName(h.VirtualMachines[j].ID, h.VirtualMachines[j].Name)
			h.VirtualMachines[j].State = inventory.ParseMachineState(string(h.VirtualMachines[j].State))
		}
	}
	return snap, nil
}

// Watch reloads the registry whenever its file changes until ctx is done.
// The parent directory is watched because editors usually replace the file
// rather than write it in place. Bursts of events are coalesced by debounce.
func (r *Registry) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("registry: watcher: %w", err)
	}
	dir := filepath.Dir(r.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("registry: watch %s: %w", dir, err)
	}

	go func() {
		defer w.Close()
		target := filepath.Clean(r.path)
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					pending = time.After(debounce)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("registry: watcher error", "err", err)
			case <-pending:
				pending = nil
				if err := r.Reload(); err != nil {
					slog.Warn("registry: reload failed, keeping previous providers", "err", err)
				}
			}
		}
	}()
	return nil
}

func checkName(kind, name string, seen map[string]bool) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return fmt.Errorf("%s without a name", kind)
	}
	if seen[key] {
		return fmt.Errorf("duplicate %s %q", kind, name)
	}
	seen[key] = true
	return nil
}

func orName(id, name string) string {
	if id != "" {
		return id
	}
	return name
}
