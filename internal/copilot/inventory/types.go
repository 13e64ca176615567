// Package inventory describes the machines and providers the copilot can act
// on, and the collaborator interfaces used to read and change them.
//
// The conversation core only reads inventory through Accessor and mutates it
// through Controller and Puller; it never edits the snapshot it was handed.
package inventory

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned by collaborators when a machine or provider ID
	// is unknown.
	ErrNotFound = errors.New("inventory: not found")

	// ErrUnsupported is returned when a backend cannot perform an operation,
	// e.g. suspend without checkpoint support.
	ErrUnsupported = errors.New("inventory: operation not supported")
)

// MachineState is the lifecycle state of a virtual machine.
type MachineState string

const (
	StateRunning   MachineState = "running"
	StateStopped   MachineState = "stopped"
	StatePaused    MachineState = "paused"
	StateSuspended MachineState = "suspended"
	StateUnknown   MachineState = "unknown"
)

// ParseMachineState normalises s, mapping unrecognised values to
// StateUnknown.
func ParseMachineState(s string) MachineState {
	switch MachineState(strings.ToLower(strings.TrimSpace(s))) {
	case StateRunning:
		return StateRunning
	case StateStopped:
		return StateStopped
	case StatePaused:
		return StatePaused
	case StateSuspended:
		return StateSuspended
	}
	return StateUnknown
}

// ProviderState is the health of a remote provider.
type ProviderState string

const (
	ProviderActive   ProviderState = "active"
	ProviderInactive ProviderState = "inactive"
	ProviderUnknown  ProviderState = "unknown"
	ProviderDisabled ProviderState = "disabled"
)

// ParseProviderState normalises s, mapping unrecognised values to
// ProviderUnknown.
func ParseProviderState(s string) ProviderState {
	switch ProviderState(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderActive:
		return ProviderActive
	case ProviderInactive:
		return ProviderInactive
	case ProviderDisabled:
		return ProviderDisabled
	}
	return ProviderUnknown
}

// HostProviderType distinguishes orchestrators from single remote hosts.
type HostProviderType string

const (
	TypeOrchestrator HostProviderType = "orchestrator"
	TypeRemoteHost   HostProviderType = "remote_host"
)

// Machine is a local virtual machine.
type Machine struct {
	ID    string       `yaml:"id" json:"id"`
	Name  string       `yaml:"name" json:"name"`
	State MachineState `yaml:"state" json:"state"`
	OS    string       `yaml:"os,omitempty" json:"os,omitempty"`
}

// ManifestItem is one pullable build of a manifest.
type ManifestItem struct {
	Version      string `yaml:"version" json:"version"`
	Architecture string `yaml:"architecture" json:"architecture"`
	Tainted      bool   `yaml:"tainted,omitempty" json:"tainted,omitempty"`
	Revoked      bool   `yaml:"revoked,omitempty" json:"revoked,omitempty"`
}

// Manifest is a named catalog entry with one or more builds.
type Manifest struct {
	Name  string         `yaml:"name" json:"name"`
	Items []ManifestItem `yaml:"items" json:"items"`
}

// Tainted reports whether any build of the manifest is tainted.
func (m Manifest) Tainted() bool {
	for _, it := range m.Items {
		if it.Tainted {
			return true
		}
	}
	return false
}

// Revoked reports whether every build of the manifest is revoked.
func (m Manifest) Revoked() bool {
	if len(m.Items) == 0 {
		return false
	}
	for _, it := range m.Items {
		if !it.Revoked {
			return false
		}
	}
	return true
}

// Versions returns the distinct versions of the manifest in catalog order.
func (m Manifest) Versions() []string {
	seen := make(map[string]bool, len(m.Items))
	var out []string
	for _, it := range m.Items {
		if !seen[it.Version] {
			seen[it.Version] = true
			out = append(out, it.Version)
		}
	}
	return out
}

// CatalogProvider is a remote catalog of manifests.
type CatalogProvider struct {
	ID         string        `yaml:"id" json:"id"`
	Name       string        `yaml:"name" json:"name"`
	State      ProviderState `yaml:"state" json:"state"`
	Connection string        `yaml:"connection" json:"connection"`
	Manifests  []Manifest    `yaml:"manifests" json:"manifests"`
}

// Host is a machine host registered with an orchestrator.
type Host struct {
	ID           string        `yaml:"id" json:"id"`
	Name         string        `yaml:"name" json:"name"`
	State        ProviderState `yaml:"state" json:"state"`
	Architecture string        `yaml:"architecture,omitempty" json:"architecture,omitempty"`
}

// HostProvider is an orchestrator or a remote host running machines.
type HostProvider struct {
	ID              string           `yaml:"id" json:"id"`
	Name            string           `yaml:"name" json:"name"`
	State           ProviderState    `yaml:"state" json:"state"`
	Type            HostProviderType `yaml:"type" json:"type"`
	Connection      string           `yaml:"connection,omitempty" json:"connection,omitempty"`
	Hosts           []Host           `yaml:"hosts,omitempty" json:"hosts,omitempty"`
	VirtualMachines []Machine        `yaml:"virtual_machines,omitempty" json:"virtual_machines,omitempty"`
}

// PullRequest asks a catalog provider to materialise a manifest build as a
// local machine.
type PullRequest struct {
	// ID identifies the pull in logs and on the created machine.
	ID             string
	CatalogID      string
	Version        string
	Architecture   string
	MachineName    string
	Path           string
	Connection     string
	StartAfterPull bool
}

// PullResult describes the machine created by a pull.
type PullResult struct {
	MachineID string
	Machine   string
}

// NormalizeArch maps CPU architecture aliases to their OCI names (x86_64 to
// amd64, aarch64 to arm64) and lower-cases everything else.
func NormalizeArch(arch string) string {
	arch = strings.ToLower(strings.TrimSpace(arch))
	switch arch {
	case "x86_64", "x86-64", "x64":
		return "amd64"
	case "aarch64":
		return "arm64"
	}
	return arch
}
