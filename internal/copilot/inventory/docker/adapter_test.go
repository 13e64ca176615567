package docker

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/checkpoint"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/system"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/parallels/devops-copilot/internal/copilot/inventory"
)

// fakeEngine records calls and serves canned container data.
type fakeEngine struct {
	containers  []types.Container
	states      map[string]string
	checkpoints map[string][]string
	arch        string

	calls      []string
	pulledRef  string
	pullOpts   image.PullOptions
	created    *container.Config
	createName string
	startOpts  container.StartOptions
	suspendErr error
}

func (f *fakeEngine) record(call string) { f.calls = append(f.calls, call) }

func (f *fakeEngine) ContainerList(_ context.Context, _ container.ListOptions) ([]types.Container, error) {
	return f.containers, nil
}

func (f *fakeEngine) ContainerInspect(_ context.Context, id string) (types.ContainerJSON, error) {
	st, ok := f.states[id]
	if !ok {
		return types.ContainerJSON{}, errors.New("boom")
	}
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{ID: id, State: &types.ContainerState{Status: st}},
	}, nil
}

func (f *fakeEngine) ContainerStart(_ context.Context, id string, opts container.StartOptions) error {
	f.record("start " + id)
	f.startOpts = opts
	return nil
}

func (f *fakeEngine) ContainerStop(_ context.Context, id string, _ container.StopOptions) error {
	f.record("stop " + id)
	return nil
}

func (f *fakeEngine) ContainerPause(_ context.Context, id string) error {
	f.record("pause " + id)
	return nil
}

func (f *fakeEngine) ContainerUnpause(_ context.Context, id string) error {
	f.record("unpause " + id)
	return nil
}

func (f *fakeEngine) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	f.record("remove " + id)
	return nil
}

func (f *fakeEngine) ContainerCreate(_ context.Context, cfg *container.Config, _ *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.record("create " + name)
	f.created = cfg
	f.createName = name
	return container.CreateResponse{ID: "new-id"}, nil
}

func (f *fakeEngine) CheckpointCreate(_ context.Context, id string, opts checkpoint.CreateOptions) error {
	f.record("checkpoint " + id + " " + opts.CheckpointID)
	return f.suspendErr
}

func (f *fakeEngine) CheckpointList(_ context.Context, id string, _ checkpoint.ListOptions) ([]checkpoint.Summary, error) {
	var out []checkpoint.Summary
	for _, name := range f.checkpoints[id] {
		out = append(out, checkpoint.Summary{Name: name})
	}
	return out, nil
}

func (f *fakeEngine) CheckpointDelete(_ context.Context, id string, opts checkpoint.DeleteOptions) error {
	f.record("checkpoint-delete " + id + " " + opts.CheckpointID)
	return nil
}

func (f *fakeEngine) ImagePull(_ context.Context, ref string, opts image.PullOptions) (io.ReadCloser, error) {
	f.pulledRef = ref
	f.pullOpts = opts
	return io.NopCloser(strings.NewReader(`{"status":"Downloaded"}`)), nil
}

func (f *fakeEngine) Info(context.Context) (system.Info, error) {
	return system.Info{Architecture: f.arch}, nil
}

// --- parseContainerState ---------------------------------------------------

func TestParseContainerState(t *testing.T) {
	cases := []struct {
		input string
		want  inventory.MachineState
	}{
		{"running", inventory.StateRunning},
		{"RUNNING", inventory.StateRunning},
		{"restarting", inventory.StateRunning},
		{"paused", inventory.StatePaused},
		{"exited", inventory.StateStopped},
		{"created", inventory.StateStopped},
		{"dead", inventory.StateStopped},
		{"removing", inventory.StateUnknown},
		{"", inventory.StateUnknown},
	}
	for _, tc := range cases {
		if got := parseContainerState(tc.input); got != tc.want {
			t.Errorf("parseContainerState(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

// --- Machines ----------------------------------------------------------------

func TestMachines_MapsContainers(t *testing.T) {
	f := &fakeEngine{
		containers: []types.Container{
			{ID: "aaa", Names: []string{"/web1"}, State: "running", Image: "ubuntu:22.04"},
			{ID: "bbb", Names: []string{"/db1"}, State: "exited"},
			{ID: "ccc", Names: []string{"/cache1"}, State: "exited"},
		},
		checkpoints: map[string][]string{"ccc": {suspendCheckpoint}},
	}
	a := &Adapter{client: f}

	got, err := a.Machines(context.Background())
	if err != nil {
		t.Fatalf("Machines: %v", err)
	}
	want := []inventory.Machine{
		{ID: "aaa", Name: "web1", State: inventory.StateRunning, OS: "ubuntu:22.04"},
		{ID: "bbb", Name: "db1", State: inventory.StateStopped},
		{ID: "ccc", Name: "cache1", State: inventory.StateSuspended},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d machines, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("machine %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

// --- Controller ---------------------------------------------------------------

func TestResume_Paused(t *testing.T) {
	f := &fakeEngine{states: map[string]string{"aaa": "paused"}}
	a := &Adapter{client: f}
	if err := a.Resume(context.Background(), "aaa"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if len(f.calls) != 1 || f.calls[0] != "unpause aaa" {
		t.Errorf("calls: %v", f.calls)
	}
}

func TestResume_SuspendedRestoresCheckpoint(t *testing.T) {
	f := &fakeEngine{
		states:      map[string]string{"aaa": "exited"},
		checkpoints: map[string][]string{"aaa": {suspendCheckpoint}},
	}
	a := &Adapter{client: f}
	if err := a.Resume(context.Background(), "aaa"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if f.startOpts.CheckpointID != suspendCheckpoint {
		t.Errorf("start checkpoint: got %q", f.startOpts.CheckpointID)
	}
	if len(f.calls) != 2 || f.calls[1] != "checkpoint-delete aaa "+suspendCheckpoint {
		t.Errorf("calls: %v", f.calls)
	}
}

func TestResume_StoppedIsRejected(t *testing.T) {
	f := &fakeEngine{states: map[string]string{"aaa": "exited"}}
	a := &Adapter{client: f}
	if err := a.Resume(context.Background(), "aaa"); err == nil {
		t.Fatal("expected error resuming a stopped container")
	}
}

func TestSuspend_UnsupportedEngine(t *testing.T) {
	f := &fakeEngine{suspendErr: errors.New("checkpoint is only supported in experimental mode")}
	a := &Adapter{client: f}
	err := a.Suspend(context.Background(), "aaa")
	if !errors.Is(err, inventory.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

// --- Puller -------------------------------------------------------------------

func TestPull_CreatesAndStarts(t *testing.T) {
	f := &fakeEngine{}
	a := &Adapter{client: f}
	provider := inventory.CatalogProvider{Name: "local", Connection: "host=ops:pw@registry.local:5000"}

	res, err := a.Pull(context.Background(), provider, inventory.PullRequest{
		ID:             "pull-1",
		CatalogID:      "ubuntu",
		Version:        "22.04",
		Architecture:   "arm64",
		MachineName:    "web1",
		StartAfterPull: true,
	})
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if f.pulledRef != "registry.local:5000/ubuntu:22.04" {
		t.Errorf("ref: got %q", f.pulledRef)
	}
	if f.pullOpts.Platform != "linux/arm64" {
		t.Errorf("platform: got %q", f.pullOpts.Platform)
	}
	if f.createName != "web1" || f.created.Labels[labelManifest] != "ubuntu" || f.created.Labels[labelPullID] != "pull-1" {
		t.Errorf("unexpected create: name=%q cfg=%+v", f.createName, f.created)
	}
	if res.MachineID != "new-id" || res.Machine != "web1" {
		t.Errorf("result: %+v", res)
	}
	if f.calls[len(f.calls)-1] != "start new-id" {
		t.Errorf("expected start after pull, calls: %v", f.calls)
	}
}

func TestDefaultArchitecture(t *testing.T) {
	a := &Adapter{client: &fakeEngine{arch: "x86_64"}}
	got, err := a.DefaultArchitecture(context.Background())
	if err != nil {
		t.Fatalf("DefaultArchitecture: %v", err)
	}
	if got != "amd64" {
		t.Errorf("got %q, want amd64", got)
	}
}

func TestImageRef(t *testing.T) {
	cases := []struct{ conn, manifest, version, want string }{
		{"host=user:pass@catalog.example.com", "ubuntu", "22.04", "catalog.example.com/ubuntu:22.04"},
		{"https://registry.local/", "debian", "", "registry.local/debian"},
		{"", "alpine", "3.20", "alpine:3.20"},
	}
	for _, tc := range cases {
		if got := imageRef(tc.conn, tc.manifest, tc.version); got != tc.want {
			t.Errorf("imageRef(%q, %q, %q) = %q, want %q", tc.conn, tc.manifest, tc.version, got, tc.want)
		}
	}
}
