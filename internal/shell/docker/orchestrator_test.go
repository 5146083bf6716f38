package docker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/artpar/stackdeploy/internal/core/compose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Fake Client
// =============================================================================

// fakeClient records calls and keeps containers in memory.
type fakeClient struct {
	calls      []string
	containers map[string]*ContainerInfo // by name
	specs      map[string]ContainerSpec
	builds     []BuildSpec
	images     map[string]bool
	execs      map[string][]ExecSpec // by container name

	execResult *ExecResult
	failCreate string // container name
	failRemove error
	nextID     int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		containers: make(map[string]*ContainerInfo),
		specs:      make(map[string]ContainerSpec),
		images:     map[string]bool{},
		execs:      make(map[string][]ExecSpec),
		execResult: &ExecResult{},
	}
}

func (f *fakeClient) byID(id string) *ContainerInfo {
	for _, c := range f.containers {
		if c.ID == id || c.Name == id {
			return c
		}
	}
	return nil
}

func (f *fakeClient) CreateContainer(_ context.Context, spec ContainerSpec) (string, error) {
	f.calls = append(f.calls, "create:"+spec.Name)
	if spec.Name == f.failCreate {
		return "", NewDockerError("CreateContainer", "container", spec.Name, "boom", errors.New("boom"))
	}
	if _, ok := f.containers[spec.Name]; ok {
		return "", NewDockerError("CreateContainer", "container", spec.Name, "container already exists", ErrContainerAlreadyExists)
	}
	f.nextID++
	id := spec.Name + "-id-0123456789"
	f.containers[spec.Name] = &ContainerInfo{ID: id, Name: spec.Name, Image: spec.Image, Status: ContainerStatusCreated, State: "created", Labels: spec.Labels}
	f.specs[spec.Name] = spec
	return id, nil
}

func (f *fakeClient) StartContainer(_ context.Context, id string) error {
	c := f.byID(id)
	if c == nil {
		return ErrContainerNotFound
	}
	f.calls = append(f.calls, "start:"+c.Name)
	c.Status, c.State = ContainerStatusRunning, "running"
	return nil
}

func (f *fakeClient) StopContainer(_ context.Context, id string, _ *time.Duration) error {
	c := f.byID(id)
	if c == nil {
		return ErrContainerNotFound
	}
	f.calls = append(f.calls, "stop:"+c.Name)
	c.Status, c.State = ContainerStatusExited, "exited"
	return nil
}

func (f *fakeClient) RemoveContainer(_ context.Context, id string, _ RemoveOptions) error {
	if f.failRemove != nil {
		return f.failRemove
	}
	c := f.byID(id)
	if c == nil {
		return NewDockerError("RemoveContainer", "container", id, "container not found", ErrContainerNotFound)
	}
	f.calls = append(f.calls, "remove:"+c.Name)
	delete(f.containers, c.Name)
	return nil
}

func (f *fakeClient) InspectContainer(_ context.Context, id string) (*ContainerInfo, error) {
	c := f.byID(id)
	if c == nil {
		return nil, ErrContainerNotFound
	}
	info := *c
	info.Health = "healthy"
	return &info, nil
}

func (f *fakeClient) ListContainers(_ context.Context, opts ListOptions) ([]ContainerInfo, error) {
	var result []ContainerInfo
	for _, c := range f.containers {
		if opts.Filters["label"] == "com.stackdeploy.project="+c.Labels["com.stackdeploy.project"] {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (f *fakeClient) ContainerLogs(_ context.Context, id string, _ LogOptions) (string, error) {
	if f.byID(id) == nil {
		return "", ErrContainerNotFound
	}
	return "log line\n", nil
}

func (f *fakeClient) Exec(_ context.Context, id string, spec ExecSpec) (*ExecResult, error) {
	c := f.byID(id)
	if c == nil {
		return nil, NewDockerError("Exec", "container", id, "container not found", ErrContainerNotFound)
	}
	f.execs[c.Name] = append(f.execs[c.Name], spec)
	return f.execResult, nil
}

func (f *fakeClient) CreateNetwork(_ context.Context, spec NetworkSpec) (string, error) {
	f.calls = append(f.calls, "network:"+spec.Name)
	return spec.Name, nil
}

func (f *fakeClient) RemoveNetwork(_ context.Context, id string) error {
	f.calls = append(f.calls, "rmnetwork:"+id)
	return nil
}

func (f *fakeClient) CreateVolume(_ context.Context, spec VolumeSpec) (string, error) {
	f.calls = append(f.calls, "volume:"+spec.Name)
	return spec.Name, nil
}

func (f *fakeClient) PullImage(_ context.Context, image string) error {
	f.calls = append(f.calls, "pull:"+image)
	f.images[image] = true
	return nil
}

func (f *fakeClient) ImageExists(_ context.Context, image string) (bool, error) {
	return f.images[image], nil
}

func (f *fakeClient) BuildImage(_ context.Context, spec BuildSpec) error {
	f.builds = append(f.builds, spec)
	f.images[spec.Tag] = true
	return nil
}

func (f *fakeClient) Ping(context.Context) error { return nil }
func (f *fakeClient) Close() error               { return nil }

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// Fixtures
// =============================================================================

func testProject() Project {
	return Project{
		Name:  "webstack",
		Dir:   "/srv/webstack",
		RunID: "run-1",
		Spec: &compose.ParsedSpec{
			Services: []compose.Service{
				{Name: "app", Build: &compose.BuildConfig{Context: "./docker/app", Args: map[string]string{"PHP_VERSION": "8.3"}}, DependsOn: []string{"mysql", "redis"}},
				{Name: "mysql", Image: "mysql:8.0", Volumes: []compose.VolumeMount{{Type: compose.VolumeMountTypeVolume, Source: "mysql_data", Target: "/var/lib/mysql"}}},
				{Name: "nginx", Build: &compose.BuildConfig{Context: "/abs/nginx"}, DependsOn: []string{"app"}, Ports: []compose.Port{{Target: 80, Published: 80}}},
				{Name: "redis", Image: "redis:7-alpine"},
			},
			Volumes: []compose.Volume{{Name: "mysql_data"}},
		},
	}
}

// =============================================================================
// Build Tests
// =============================================================================

func TestOrchestrator_Build(t *testing.T) {
	fake := newFakeClient()
	o := NewOrchestrator(fake, setupTestLogger(), testProject())

	tag, err := o.Build(context.Background(), "app", io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "webstack-app:latest", tag)
	require.Len(t, fake.builds, 1)
	assert.Equal(t, "/srv/webstack/docker/app", fake.builds[0].ContextDir)
	assert.Equal(t, "8.3", fake.builds[0].Args["PHP_VERSION"])
	assert.Equal(t, "webstack", fake.builds[0].Labels["com.stackdeploy.project"])
}

func TestOrchestrator_Build_AbsoluteContext(t *testing.T) {
	fake := newFakeClient()
	o := NewOrchestrator(fake, setupTestLogger(), testProject())

	_, err := o.Build(context.Background(), "nginx", nil)
	require.NoError(t, err)
	assert.Equal(t, "/abs/nginx", fake.builds[0].ContextDir)
}

func TestOrchestrator_Build_NoBuildContext(t *testing.T) {
	o := NewOrchestrator(newFakeClient(), setupTestLogger(), testProject())

	_, err := o.Build(context.Background(), "redis", nil)
	assert.ErrorIs(t, err, compose.ErrServiceNoBuild)
}

func TestOrchestrator_Build_UnknownService(t *testing.T) {
	o := NewOrchestrator(newFakeClient(), setupTestLogger(), testProject())

	_, err := o.Build(context.Background(), "postgres", nil)
	assert.ErrorIs(t, err, compose.ErrServiceNotFound)
}

// =============================================================================
// Up Tests
// =============================================================================

func TestOrchestrator_Up_Subset(t *testing.T) {
	fake := newFakeClient()
	o := NewOrchestrator(fake, setupTestLogger(), testProject())

	require.NoError(t, o.Up(context.Background(), "redis", "mysql"))

	assert.Equal(t, []string{
		"network:webstack_default",
		"volume:webstack_mysql_data",
		"pull:mysql:8.0",
		"create:webstack-mysql-1",
		"start:webstack-mysql-1",
		"pull:redis:7-alpine",
		"create:webstack-redis-1",
		"start:webstack-redis-1",
	}, fake.calls)

	spec := fake.specs["webstack-mysql-1"]
	assert.Equal(t, []string{"mysql"}, spec.NetworkAliases["webstack_default"])
	assert.Equal(t, "run-1", spec.Labels["com.stackdeploy.run"])
	require.Len(t, spec.Volumes, 1)
	assert.Equal(t, "webstack_mysql_data", spec.Volumes[0].Source)
}

func TestOrchestrator_Up_BuiltServiceUsesProjectTag(t *testing.T) {
	fake := newFakeClient()
	o := NewOrchestrator(fake, setupTestLogger(), testProject())

	require.NoError(t, o.Up(context.Background(), "app"))

	assert.Equal(t, "webstack-app:latest", fake.specs["webstack-app-1"].Image)
	assert.NotContains(t, fake.calls, "pull:webstack-app:latest")
}

func TestOrchestrator_Up_ReplacesStaleContainer(t *testing.T) {
	fake := newFakeClient()
	o := NewOrchestrator(fake, setupTestLogger(), testProject())
	ctx := context.Background()

	require.NoError(t, o.Up(ctx, "redis"))
	fake.calls = nil
	require.NoError(t, o.Up(ctx, "redis"))

	assert.Contains(t, fake.calls, "remove:webstack-redis-1")
	assert.Contains(t, fake.calls, "start:webstack-redis-1")
}

func TestOrchestrator_Up_CreateFailure(t *testing.T) {
	fake := newFakeClient()
	fake.failCreate = "webstack-redis-1"
	o := NewOrchestrator(fake, setupTestLogger(), testProject())

	err := o.Up(context.Background(), "redis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create container redis")
}

func TestOrchestrator_Up_UnknownService(t *testing.T) {
	o := NewOrchestrator(newFakeClient(), setupTestLogger(), testProject())

	err := o.Up(context.Background(), "postgres")
	assert.ErrorIs(t, err, compose.ErrServiceNotFound)
}

// =============================================================================
// Down Tests
// =============================================================================

func TestOrchestrator_Down(t *testing.T) {
	fake := newFakeClient()
	o := NewOrchestrator(fake, setupTestLogger(), testProject())
	ctx := context.Background()

	require.NoError(t, o.Up(ctx, "redis", "mysql"))
	fake.calls = nil

	require.NoError(t, o.Down(ctx))

	assert.Empty(t, fake.containers)
	assert.Contains(t, fake.calls, "stop:webstack-redis-1")
	assert.Contains(t, fake.calls, "rmnetwork:webstack_default")
}

func TestOrchestrator_Down_NothingRunning(t *testing.T) {
	o := NewOrchestrator(newFakeClient(), setupTestLogger(), Project{Name: "monitoring"})

	assert.NoError(t, o.Down(context.Background()))
}

func TestOrchestrator_Down_CollectsFailures(t *testing.T) {
	fake := newFakeClient()
	o := NewOrchestrator(fake, setupTestLogger(), testProject())
	ctx := context.Background()

	require.NoError(t, o.Up(ctx, "redis", "mysql"))
	fake.failRemove = errors.New("device busy")

	err := o.Down(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device busy")
}

// =============================================================================
// Exec and Status Tests
// =============================================================================

func TestOrchestrator_Exec(t *testing.T) {
	fake := newFakeClient()
	fake.execResult = &ExecResult{Stdout: "PONG\n"}
	o := NewOrchestrator(fake, setupTestLogger(), testProject())
	ctx := context.Background()

	require.NoError(t, o.Up(ctx, "redis"))

	result, err := o.Exec(ctx, "redis", ExecSpec{Cmd: []string{"redis-cli", "ping"}, Env: []string{"REDISCLI_AUTH=pw"}})
	require.NoError(t, err)
	assert.Equal(t, "PONG\n", result.Stdout)
	assert.Equal(t, []string{"REDISCLI_AUTH=pw"}, fake.execs["webstack-redis-1"][0].Env)
}

func TestOrchestrator_Exec_ServiceNotRunning(t *testing.T) {
	o := NewOrchestrator(newFakeClient(), setupTestLogger(), testProject())

	_, err := o.Exec(context.Background(), "redis", ExecSpec{Cmd: []string{"true"}})
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestOrchestrator_Status(t *testing.T) {
	fake := newFakeClient()
	o := NewOrchestrator(fake, setupTestLogger(), testProject())
	ctx := context.Background()

	require.NoError(t, o.Up(ctx, "redis", "mysql"))

	statuses, err := o.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "mysql", statuses[0].Service)
	assert.Equal(t, "running", statuses[0].State)
	assert.Equal(t, "healthy", statuses[0].Health)
	assert.Equal(t, "redis", statuses[1].Service)
}

func TestOrchestrator_Logs(t *testing.T) {
	fake := newFakeClient()
	o := NewOrchestrator(fake, setupTestLogger(), testProject())
	ctx := context.Background()

	require.NoError(t, o.Up(ctx, "mysql"))

	logs, err := o.Logs(ctx, "mysql", "20")
	require.NoError(t, err)
	assert.Equal(t, "log line\n", logs)
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestShortID(t *testing.T) {
	assert.Equal(t, "0123456789ab", shortID("0123456789abcdef"))
	assert.Equal(t, "abc", shortID("abc"))
}
