// Package docker backs the machine inventory with a Docker Engine: containers
// are the machines, image pulls create them, and checkpoints implement
// suspend/resume.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/checkpoint"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/system"
	dockerclient "github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/parallels/devops-copilot/internal/copilot/inventory"
)

const (
	labelManagedBy = "copilot.managed-by"
	labelCatalog   = "copilot.catalog"
	labelManifest  = "copilot.manifest"
	labelPath      = "copilot.path"
	labelPullID    = "copilot.pull-id"
	managedByValue = "devops-copilot"

	// suspendCheckpoint is the checkpoint name used by Suspend and looked up
	// by Resume.
	suspendCheckpoint = "copilot-suspend"

	// stopTimeout is how long to wait for graceful container stop before SIGKILL.
	stopTimeout = 10 * time.Second
)

// engineAPI is the subset of the Docker client the adapter uses.
type engineAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerPause(ctx context.Context, containerID string) error
	ContainerUnpause(ctx context.Context, containerID string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	CheckpointCreate(ctx context.Context, container string, options checkpoint.CreateOptions) error
	CheckpointList(ctx context.Context, container string, options checkpoint.ListOptions) ([]checkpoint.Summary, error)
	CheckpointDelete(ctx context.Context, container string, options checkpoint.DeleteOptions) error
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	Info(ctx context.Context) (system.Info, error)
}

// Options tunes which containers are exposed as machines.
type Options struct {
	// ManagedOnly restricts the inventory to containers created by the
	// copilot. When false every container on the engine is a machine.
	ManagedOnly bool
}

// Adapter implements inventory.MachineSource, inventory.Controller and
// inventory.Puller against a Docker Engine.
type Adapter struct {
	client engineAPI
	opts   Options
}

var (
	_ inventory.MachineSource = (*Adapter)(nil)
	_ inventory.Controller    = (*Adapter)(nil)
	_ inventory.Puller        = (*Adapter)(nil)
)

// New connects using DOCKER_HOST or the default socket.
func New(opts Options) (*Adapter, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Adapter{client: cli, opts: opts}, nil
}

// Machines lists containers as machines. Exited containers holding a
// suspend checkpoint are reported as suspended.
func (a *Adapter) Machines(ctx context.Context) ([]inventory.Machine, error) {
	listOpts := container.ListOptions{All: true}
	if a.opts.ManagedOnly {
		listOpts.Filters = filters.NewArgs(filters.Arg("label", labelManagedBy+"="+managedByValue))
	}
	containers, err := a.client.ContainerList(ctx, listOpts)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	machines := make([]inventory.Machine, 0, len(containers))
	for _, c := range containers {
		state := parseContainerState(c.State)
		if state == inventory.StateStopped && a.hasSuspendCheckpoint(ctx, c.ID) {
			state = inventory.StateSuspended
		}
		machines = append(machines, inventory.Machine{
			ID:    c.ID,
			Name:  containerName(c.Names, c.ID),
			State: state,
			OS:    c.Image,
		})
	}
	return machines, nil
}

// Status inspects one container.
func (a *Adapter) Status(ctx context.Context, id string) (inventory.MachineState, error) {
	inspect, err := a.client.ContainerInspect(ctx, id)
	if err != nil {
		return inventory.StateUnknown, wrapErr("inspect", id, err)
	}
	state := inventory.StateUnknown
	if inspect.ContainerJSONBase != nil && inspect.State != nil {
		state = parseContainerState(inspect.State.Status)
	}
	if state == inventory.StateStopped && a.hasSuspendCheckpoint(ctx, id) {
		state = inventory.StateSuspended
	}
	return state, nil
}

func (a *Adapter) Start(ctx context.Context, id string) error {
	return wrapErr("start", id, a.client.ContainerStart(ctx, id, container.StartOptions{}))
}

// Stop gracefully stops the container.
func (a *Adapter) Stop(ctx context.Context, id string) error {
	timeout := int(stopTimeout.Seconds())
	return wrapErr("stop", id, a.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}))
}

func (a *Adapter) Pause(ctx context.Context, id string) error {
	return wrapErr("pause", id, a.client.ContainerPause(ctx, id))
}

// Resume unpauses a paused container or restores a suspended one from its
// checkpoint.
func (a *Adapter) Resume(ctx context.Context, id string) error {
	state, err := a.Status(ctx, id)
	if err != nil {
		return err
	}
	switch state {
	case inventory.StatePaused:
		return wrapErr("unpause", id, a.client.ContainerUnpause(ctx, id))
	case inventory.StateSuspended:
		if err := a.client.ContainerStart(ctx, id, container.StartOptions{CheckpointID: suspendCheckpoint}); err != nil {
			return wrapErr("restore", id, err)
		}
		if err := a.client.CheckpointDelete(ctx, id, checkpoint.DeleteOptions{CheckpointID: suspendCheckpoint}); err != nil {
			slog.Warn("docker: failed to delete suspend checkpoint", "container", id, "err", err)
		}
		return nil
	default:
		return fmt.Errorf("resume container %s: container is %s", id, state)
	}
}

// Suspend checkpoints the container to disk and stops it. Requires an engine
// with checkpoint support (experimental mode plus CRIU).
func (a *Adapter) Suspend(ctx context.Context, id string) error {
	err := a.client.CheckpointCreate(ctx, id, checkpoint.CreateOptions{CheckpointID: suspendCheckpoint, Exit: true})
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "experimental") {
		return fmt.Errorf("suspend container %s: %w: %v", id, inventory.ErrUnsupported, err)
	}
	return wrapErr("suspend", id, err)
}

// Delete removes a stopped container. Volumes are kept.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	return wrapErr("remove", id, a.client.ContainerRemove(ctx, id, container.RemoveOptions{}))
}

// Pull pulls the image for req.CatalogID:req.Version from the catalog's
// registry and creates a container named req.MachineName from it.
func (a *Adapter) Pull(ctx context.Context, provider inventory.CatalogProvider, req inventory.PullRequest) (inventory.PullResult, error) {
	ref := imageRef(provider.Connection, req.CatalogID, req.Version)
	platform := &ocispec.Platform{OS: "linux", Architecture: req.Architecture}

	rc, err := a.client.ImagePull(ctx, ref, image.PullOptions{Platform: platformString(platform)})
	if err != nil {
		return inventory.PullResult{}, fmt.Errorf("pull image %s: %w", ref, err)
	}
	// The pull only completes once the progress stream is drained.
	_, copyErr := io.Copy(io.Discard, rc)
	rc.Close()
	if copyErr != nil {
		return inventory.PullResult{}, fmt.Errorf("pull image %s: %w", ref, copyErr)
	}

	labels := map[string]string{
		labelManagedBy: managedByValue,
		labelCatalog:   provider.Name,
		labelManifest:  req.CatalogID,
	}
	if req.Path != "" {
		labels[labelPath] = req.Path
	}
	if req.ID != "" {
		labels[labelPullID] = req.ID
	}
	resp, err := a.client.ContainerCreate(ctx,
		&container.Config{Image: ref, Labels: labels},
		&container.HostConfig{},
		nil, platform, req.MachineName)
	if err != nil {
		return inventory.PullResult{}, fmt.Errorf("create container %s: %w", req.MachineName, err)
	}
	for _, w := range resp.Warnings {
		slog.Warn("docker: create warning", "container", req.MachineName, "warning", w)
	}

	if req.StartAfterPull {
		if err := a.Start(ctx, resp.ID); err != nil {
			return inventory.PullResult{MachineID: resp.ID, Machine: req.MachineName}, err
		}
	}
	return inventory.PullResult{MachineID: resp.ID, Machine: req.MachineName}, nil
}

// DefaultArchitecture reports the engine host's architecture in OCI terms.
func (a *Adapter) DefaultArchitecture(ctx context.Context) (string, error) {
	info, err := a.client.Info(ctx)
	if err != nil {
		return "", fmt.Errorf("docker info: %w", err)
	}
	return inventory.NormalizeArch(info.Architecture), nil
}

// --- helpers ---

func (a *Adapter) hasSuspendCheckpoint(ctx context.Context, id string) bool {
	cps, err := a.client.CheckpointList(ctx, id, checkpoint.ListOptions{})
	if err != nil {
		return false
	}
	for _, cp := range cps {
		if cp.Name == suspendCheckpoint {
			return true
		}
	}
	return false
}

func parseContainerState(s string) inventory.MachineState {
	switch strings.ToLower(s) {
	case "running", "restarting":
		return inventory.StateRunning
	case "paused":
		return inventory.StatePaused
	case "exited", "created", "dead":
		return inventory.StateStopped
	default:
		return inventory.StateUnknown
	}
}

func containerName(names []string, id string) string {
	if len(names) > 0 {
		return strings.TrimPrefix(names[0], "/")
	}
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// imageRef builds "<registry>/<manifest>:<version>" from a catalog connection
// such as "host=user:pass@registry.example.com" or a bare registry host.
func imageRef(connection, manifest, version string) string {
	host := connection
	if _, rest, ok := strings.Cut(host, "="); ok {
		host = rest
	}
	if i := strings.LastIndex(host, "@"); i >= 0 {
		host = host[i+1:]
	}
	host = strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://")
	host = strings.TrimSuffix(host, "/")

	ref := manifest
	if host != "" {
		ref = host + "/" + manifest
	}
	if version != "" {
		ref += ":" + version
	}
	return ref
}

func platformString(p *ocispec.Platform) string {
	if p == nil || p.Architecture == "" {
		return ""
	}
	return p.OS + "/" + p.Architecture
}

func wrapErr(op, id string, err error) error {
	if err == nil {
		return nil
	}
	if dockerclient.IsErrNotFound(err) {
		return fmt.Errorf("%s container %s: %w", op, id, inventory.ErrNotFound)
	}
	return fmt.Errorf("%s container %s: %w", op, id, err)
}
