package operations

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/parallels/devops-copilot/internal/copilot/intent"
	"github.com/parallels/devops-copilot/internal/copilot/inventory"
)

// transition describes how one SET action treats each current state.
type transition struct {
	// done is the state in which the action is already satisfied.
	done inventory.MachineState
	// blocked maps states the action cannot leave to the remediation the
	// user has to perform first.
	blocked map[inventory.MachineState]string
	// eligible are the states selected when the target is "all".
	eligible []inventory.MachineState

	gerund string
	past   string
}

var transitions = map[intent.Action]transition{
	intent.ActionStart: {
		done:     inventory.StateRunning,
		eligible: []inventory.MachineState{inventory.StateStopped},
		gerund:   "Starting", past: "started",
	},
	intent.ActionStop: {
		done: inventory.StateStopped,
		blocked: map[inventory.MachineState]string{
			inventory.StateSuspended: "resume it before stopping",
			inventory.StatePaused:    "resume it before stopping",
		},
		eligible: []inventory.MachineState{inventory.StateRunning},
		gerund:   "Stopping", past: "stopped",
	},
	intent.ActionRestart: {
		blocked: map[inventory.MachineState]string{
			inventory.StateSuspended: "resume it before restarting",
			inventory.StatePaused:    "resume it before restarting",
		},
		eligible: []inventory.MachineState{inventory.StateRunning},
		gerund:   "Restarting", past: "restarted",
	},
	intent.ActionPause: {
		done: inventory.StatePaused,
		blocked: map[inventory.MachineState]string{
			inventory.StateSuspended: "resume it before pausing",
			inventory.StateStopped:   "start it before pausing",
		},
		eligible: []inventory.MachineState{inventory.StateRunning},
		gerund:   "Pausing", past: "paused",
	},
	intent.ActionResume: {
		done: inventory.StateRunning,
		blocked: map[inventory.MachineState]string{
			inventory.StateStopped: "start it before resuming",
		},
		eligible: []inventory.MachineState{inventory.StatePaused, inventory.StateSuspended},
		gerund:   "Resuming", past: "resumed",
	},
	intent.ActionSuspend: {
		done: inventory.StateSuspended,
		blocked: map[inventory.MachineState]string{
			inventory.StateStopped: "start it before suspending",
			inventory.StatePaused:  "resume it before suspending",
		},
		eligible: []inventory.MachineState{inventory.StateRunning},
		gerund:   "Suspending", past: "suspended",
	},
	intent.ActionDelete: {
		blocked: map[inventory.MachineState]string{
			inventory.StateRunning: "stop it before deleting",
		},
		eligible: []inventory.MachineState{inventory.StateStopped},
		gerund:   "Deleting", past: "deleted",
	},
}

// Set changes the state of one machine, or of every eligible machine when
// the target is intent.All. It always returns at least one outcome. Targets
// are processed independently; one failure never stops the others.
func (h *Handlers) Set(ctx context.Context, in intent.Set) ([]Outcome, error) {
	action := string(in.Action)
	tr, ok := transitions[in.Action]
	if !ok {
		return []Outcome{failed(action, in.Target, "I do not know how to %s a virtual machine.", action)}, nil
	}

	machines, err := h.Inventory.Machines(ctx)
	if err != nil {
		slog.Error("operations: list machines", "err", err)
		return []Outcome{failed(action, in.Target, "I could not read the list of virtual machines.")}, nil
	}

	var targets []inventory.Machine
	if in.Target == intent.All {
		targets = eligibleMachines(machines, tr.eligible)
		if len(targets) == 0 {
			return []Outcome{succeeded(action, intent.All,
				"There are no %s virtual machines to %s.", joinStates(tr.eligible), action)}, nil
		}
	} else {
		m, found, err := h.resolveMachine(ctx, in.Target, machines)
		if err != nil {
			return nil, err
		}
		if !found {
			return []Outcome{failed(action, in.Target, "The virtual machine %s does not exist.", in.Target)}, nil
		}
		targets = []inventory.Machine{m}
	}

	outcomes := make([]Outcome, len(targets))
	var g errgroup.Group
	g.SetLimit(h.maxParallel())
	for i, m := range targets {
		g.Go(func() error {
			outcomes[i] = h.transition(ctx, in.Action, tr, m)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, nil
}

// transition applies one action to one machine according to tr.
func (h *Handlers) transition(ctx context.Context, action intent.Action, tr transition, m inventory.Machine) Outcome {
	verb := string(action)
	if tr.done != "" && m.State == tr.done {
		return succeeded(verb, m.Name, "The virtual machine %s is already %s.", m.Name, tr.done)
	}
	if remedy, blocked := tr.blocked[m.State]; blocked {
		return failed(verb, m.Name, "The virtual machine %s is %s, please %s.", m.Name, m.State, remedy)
	}

	h.progress(ctx, "%s the virtual machine %s...", tr.gerund, m.Name)
	if err := h.invoke(ctx, action, m.ID); err != nil {
		slog.Warn("operations: control call failed", "action", verb, "machine", m.Name, "id", m.ID, "err", err)
		msg := "Failed to " + verb + " the virtual machine " + m.Name
		switch {
		case errors.Is(err, inventory.ErrUnsupported):
			msg += ": the operation is not supported by this host"
		case errors.Is(err, inventory.ErrNotFound):
			msg += ": it no longer exists"
		}
		return failed(verb, m.Name, "%s.", msg)
	}
	return succeeded(verb, m.Name, "The virtual machine %s was %s.", m.Name, tr.past)
}

func (h *Handlers) invoke(ctx context.Context, action intent.Action, id string) error {
	switch action {
	case intent.ActionStart:
		return h.Control.Start(ctx, id)
	case intent.ActionStop:
		return h.Control.Stop(ctx, id)
	case intent.ActionRestart:
		if err := h.Control.Stop(ctx, id); err != nil {
			return err
		}
		return h.Control.Start(ctx, id)
	case intent.ActionPause:
		return h.Control.Pause(ctx, id)
	case intent.ActionResume:
		return h.Control.Resume(ctx, id)
	case intent.ActionSuspend:
		return h.Control.Suspend(ctx, id)
	case intent.ActionDelete:
		return h.Control.Delete(ctx, id)
	}
	return errors.New("unsupported action " + string(action))
}

func eligibleMachines(machines []inventory.Machine, states []inventory.MachineState) []inventory.Machine {
	var out []inventory.Machine
	for _, m := range machines {
		for _, s := range states {
			if m.State == s {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

func joinStates(states []inventory.MachineState) string {
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	if len(names) == 2 {
		return names[0] + " or " + names[1]
	}
	return joinNames(names)
}
