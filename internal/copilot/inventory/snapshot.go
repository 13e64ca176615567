package inventory

import (
	"context"
	"slices"
)

// Snapshot is a fixed inventory. It backs the provider registry file and is
// handy wherever a point-in-time view is enough.
type Snapshot struct {
	MachineList []Machine         `yaml:"machines,omitempty"`
	Catalogs    []CatalogProvider `yaml:"catalogs,omitempty"`
	HostList    []HostProvider    `yaml:"hosts,omitempty"`
}

var _ Accessor = (*Snapshot)(nil)

func (s *Snapshot) Machines(context.Context) ([]Machine, error) {
	return slices.Clone(s.MachineList), nil
}

func (s *Snapshot) CatalogProviders(context.Context) ([]CatalogProvider, error) {
	return slices.Clone(s.Catalogs), nil
}

func (s *Snapshot) HostProviders(context.Context) ([]HostProvider, error) {
	return slices.Clone(s.HostList), nil
}

// MachineSource lists local machines.
type MachineSource interface {
	Machines(ctx context.Context) ([]Machine, error)
}

// ProviderSource lists remote providers.
type ProviderSource interface {
	CatalogProviders(ctx context.Context) ([]CatalogProvider, error)
	HostProviders(ctx context.Context) ([]HostProvider, error)
}

type combined struct {
	MachineSource
	ProviderSource
}

// Combine joins a machine backend and a provider backend into one Accessor.
func Combine(machines MachineSource, providers ProviderSource) Accessor {
	return combined{MachineSource: machines, ProviderSource: providers}
}
