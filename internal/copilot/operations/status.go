package operations

import (
	"context"
	"log/slog"

	"github.com/parallels/devops-copilot/internal/copilot/intent"
	"github.com/parallels/devops-copilot/internal/copilot/inventory"
)

// countOrder is the reporting order used when COUNT_STATE asks for all
// states.
var countOrder = []inventory.MachineState{
	inventory.StateStopped,
	inventory.StatePaused,
	inventory.StateSuspended,
	inventory.StateRunning,
}

// Status reports the live state of one machine.
func (h *Handlers) Status(ctx context.Context, in intent.Status) ([]Outcome, error) {
	machines, err := h.Inventory.Machines(ctx)
	if err != nil {
		slog.Error("operations: list machines", "err", err)
		return []Outcome{failed("status", in.Machine, "I could not read the list of virtual machines.")}, nil
	}

	m, found, err := h.resolveMachine(ctx, in.Machine, machines)
	if err != nil {
		return nil, err
	}
	if !found {
		return []Outcome{failed("status", in.Machine, "The virtual machine %s does not exist.", in.Machine)}, nil
	}

	state, err := h.Control.Status(ctx, m.ID)
	if err != nil {
		slog.Warn("operations: status failed", "machine", m.Name, "err", err)
		return []Outcome{failed("status", m.Name, "I could not get the status of the virtual machine %s.", m.Name)}, nil
	}
	return []Outcome{succeeded("status", m.Name, "The virtual machine %s is %s.", m.Name, state)}, nil
}

// CountState lists the machines in one state, or one outcome per state in
// countOrder for intent.All. Zero machines in a state is a success.
func (h *Handlers) CountState(ctx context.Context, in intent.CountState) ([]Outcome, error) {
	machines, err := h.Inventory.Machines(ctx)
	if err != nil {
		slog.Error("operations: list machines", "err", err)
		return []Outcome{failed("count", in.State, "I could not read the list of virtual machines.")}, nil
	}

	states := countOrder
	if in.State != intent.All {
		states = []inventory.MachineState{inventory.ParseMachineState(in.State)}
	}

	outcomes := make([]Outcome, 0, len(states))
	for _, st := range states {
		outcomes = append(outcomes, countInState(machines, st))
	}
	return outcomes, nil
}

func countInState(machines []inventory.Machine, state inventory.MachineState) Outcome {
	var names []string
	for _, m := range machines {
		if m.State == state {
			names = append(names, m.Name)
		}
	}
	switch len(names) {
	case 0:
		return succeeded("count", string(state), "There are no virtual machines in the %s state.", state)
	case 1:
		return succeeded("count", string(state), "There is 1 %s virtual machine: %s.", state, names[0])
	}
	return succeeded("count", string(state), "There are %d %s virtual machines: %s.", len(names), state, joinNames(names))
}
