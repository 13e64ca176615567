package inventory

import "context"

// Accessor reads the current inventory. Implementations return fresh
// snapshots; callers must not modify the returned slices.
type Accessor interface {
	Machines(ctx context.Context) ([]Machine, error)
	CatalogProviders(ctx context.Context) ([]CatalogProvider, error)
	HostProviders(ctx context.Context) ([]HostProvider, error)
}

// Controller changes the state of a local machine, addressed by ID.
type Controller interface {
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Suspend(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Status(ctx context.Context, id string) (MachineState, error)
}

// Puller creates machines from catalog manifests.
type Puller interface {
	Pull(ctx context.Context, provider CatalogProvider, req PullRequest) (PullResult, error)
	// DefaultArchitecture is the CPU architecture used when the user did not
	// name one, typically the local host's.
	DefaultArchitecture(ctx context.Context) (string, error)
}

// MachineNames returns the machine names in snapshot order.
func MachineNames(machines []Machine) []string {
	names := make([]string, len(machines))
	for i, m := range machines {
		names[i] = m.Name
	}
	return names
}
