package docker

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

// Test resource name prefix to identify test containers
const testPrefix = "stackdeploy-test-"

const testLabel = "com.stackdeploy.test"

func skipIfNoDocker(t *testing.T) Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Docker integration test in short mode")
	}
	ctx := context.Background()
	cli, err := NewDockerClient(ctx, "")
	if err != nil {
		t.Skip("Docker not available:", err)
	}
	if err := cli.Ping(ctx); err != nil {
		cli.Close()
		t.Skip("Docker not reachable:", err)
	}
	return cli
}

func cleanupContainer(t *testing.T, cli Client, containerID string) {
	t.Helper()
	_ = cli.RemoveContainer(context.Background(), containerID, RemoveOptions{Force: true, RemoveVolumes: true})
}

// runningAlpine creates and starts a long-lived alpine container.
func runningAlpine(t *testing.T, cli Client, name string) string {
	t.Helper()
	ctx := context.Background()
	cleanupContainer(t, cli, testPrefix+name)

	containerID, err := cli.CreateContainer(ctx, ContainerSpec{
		Name:    testPrefix + name,
		Image:   "alpine:latest",
		Command: []string{"sleep", "300"},
		Labels:  map[string]string{testLabel: name},
	})
	require.NoError(t, err)
	t.Cleanup(func() { cleanupContainer(t, cli, containerID) })

	require.NoError(t, cli.StartContainer(ctx, containerID))
	return containerID
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestPing_Success(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	assert.NoError(t, cli.Ping(context.Background()))
}

// =============================================================================
// Container Lifecycle Tests
// =============================================================================

func TestContainerLifecycle(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	ctx := context.Background()

	containerID := runningAlpine(t, cli, "lifecycle")

	info, err := cli.InspectContainer(ctx, containerID)
	require.NoError(t, err)
	assert.Equal(t, ContainerStatusRunning, info.Status)
	assert.Equal(t, testPrefix+"lifecycle", info.Name)
	assert.Equal(t, "lifecycle", info.Labels[testLabel])
	require.NotNil(t, info.StartedAt)

	timeout := 2 * time.Second
	require.NoError(t, cli.StopContainer(ctx, containerID, &timeout))

	info, err = cli.InspectContainer(ctx, containerID)
	require.NoError(t, err)
	assert.Equal(t, ContainerStatusExited, info.Status)

	require.NoError(t, cli.RemoveContainer(ctx, containerID, RemoveOptions{}))
	_, err = cli.InspectContainer(ctx, containerID)
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestCreateContainer_DuplicateName(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	runningAlpine(t, cli, "duplicate")

	_, err := cli.CreateContainer(context.Background(), ContainerSpec{
		Name:  testPrefix + "duplicate",
		Image: "alpine:latest",
	})
	assert.ErrorIs(t, err, ErrContainerAlreadyExists)
}

func TestStartContainer_NotFound(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	err := cli.StartContainer(context.Background(), "nonexistent-container-12345")
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestRemoveContainer_NotFound(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	err := cli.RemoveContainer(context.Background(), "nonexistent-container-12345", RemoveOptions{Force: true})
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestListContainers_WithLabelFilter(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	runningAlpine(t, cli, "list")

	containers, err := cli.ListContainers(context.Background(), ListOptions{
		All:     true,
		Filters: map[string]string{"label": testLabel + "=list"},
	})
	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.Equal(t, testPrefix+"list", containers[0].Name)
}

func TestContainerLogs_Demultiplexed(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	ctx := context.Background()

	containerID, err := cli.CreateContainer(ctx, ContainerSpec{
		Name:    testPrefix + "logs",
		Image:   "alpine:latest",
		Command: []string{"sh", "-c", "echo to-stdout; echo to-stderr >&2"},
	})
	require.NoError(t, err)
	defer cleanupContainer(t, cli, containerID)
	require.NoError(t, cli.StartContainer(ctx, containerID))

	require.Eventually(t, func() bool {
		info, err := cli.InspectContainer(ctx, containerID)
		return err == nil && info.Status == ContainerStatusExited
	}, 10*time.Second, 200*time.Millisecond)

	logs, err := cli.ContainerLogs(ctx, containerID, LogOptions{Tail: "10"})
	require.NoError(t, err)
	assert.Contains(t, logs, "to-stdout")
	assert.Contains(t, logs, "to-stderr")
	// Frame headers are stripped.
	assert.False(t, strings.ContainsRune(logs, '\x01'))
}

// =============================================================================
// Exec Tests
// =============================================================================

func TestExec_CapturesStreamsAndExitCode(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	containerID := runningAlpine(t, cli, "exec")

	result, err := cli.Exec(context.Background(), containerID, ExecSpec{
		Cmd: []string{"sh", "-c", "echo out; echo err >&2; exit 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "out\n", result.Stdout)
	assert.Equal(t, "err\n", result.Stderr)
}

func TestExec_PassesEnvironment(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	containerID := runningAlpine(t, cli, "exec-env")

	result, err := cli.Exec(context.Background(), containerID, ExecSpec{
		Cmd: []string{"sh", "-c", "echo $SECRET"},
		Env: []string{"SECRET=hunter2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hunter2\n", result.Stdout)
}

func TestExec_ContainerNotFound(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	_, err := cli.Exec(context.Background(), "nonexistent-container-12345", ExecSpec{Cmd: []string{"true"}})
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

// =============================================================================
// Network and Volume Tests
// =============================================================================

func TestNetworkAlias_ResolvesServiceName(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	ctx := context.Background()

	networkName := testPrefix + "net"
	_ = cli.RemoveNetwork(ctx, networkName)
	_, err := cli.CreateNetwork(ctx, NetworkSpec{Name: networkName})
	require.NoError(t, err)
	defer cli.RemoveNetwork(ctx, networkName)

	_, err = cli.CreateNetwork(ctx, NetworkSpec{Name: networkName})
	assert.ErrorIs(t, err, ErrNetworkAlreadyExists)

	cleanupContainer(t, cli, testPrefix+"aliased")
	containerID, err := cli.CreateContainer(ctx, ContainerSpec{
		Name:           testPrefix + "aliased",
		Image:          "alpine:latest",
		Command:        []string{"sleep", "300"},
		Networks:       []string{networkName},
		NetworkAliases: map[string][]string{networkName: {"cache"}},
	})
	require.NoError(t, err)
	defer cleanupContainer(t, cli, containerID)
	require.NoError(t, cli.StartContainer(ctx, containerID))

	result, err := cli.Exec(ctx, containerID, ExecSpec{Cmd: []string{"getent", "hosts", "cache"}})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode, result.Stderr)
}

func TestRemoveNetwork_NotFound(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	err := cli.RemoveNetwork(context.Background(), "nonexistent-network-12345")
	assert.ErrorIs(t, err, ErrNetworkNotFound)
}

func TestCreateVolume(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	ctx := context.Background()

	name, err := cli.CreateVolume(ctx, VolumeSpec{Name: testPrefix + "vol"})
	require.NoError(t, err)
	defer func() { _ = cli.(*DockerClient).cli.VolumeRemove(context.Background(), name, true) }()
	assert.Equal(t, testPrefix+"vol", name)
}

// =============================================================================
// Image Tests
// =============================================================================

func TestPullImage_NotFound(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	err := cli.PullImage(context.Background(), "nonexistent-image-12345:latest")
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestImageExists(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	ctx := context.Background()

	require.NoError(t, cli.PullImage(ctx, "alpine:latest"))

	exists, err := cli.ImageExists(ctx, "alpine:latest")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = cli.ImageExists(ctx, "nonexistent-image-12345:latest")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBuildImage_Success(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	dir := t.TempDir()
	dockerfile := "FROM alpine:latest\nARG GREETING\nRUN echo \"$GREETING\" > /greeting\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte(dockerfile), 0o644))

	var out bytes.Buffer
	tag := testPrefix + "build:latest"
	err := cli.BuildImage(context.Background(), BuildSpec{
		ContextDir: dir,
		Tag:        tag,
		Args:       map[string]string{"GREETING": "hello"},
		Output:     &out,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.String())

	exists, err := cli.ImageExists(context.Background(), tag)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBuildImage_FailingStep(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM alpine:latest\nRUN exit 7\n"), 0o644))

	err := cli.BuildImage(context.Background(), BuildSpec{ContextDir: dir, Tag: testPrefix + "broken:latest"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBuildFailed)
}

// =============================================================================
// DockerError Tests
// =============================================================================

func TestDockerError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *DockerError
		want string
	}{
		{"with id", NewDockerError("StartContainer", "container", "abc123", "container not found", ErrContainerNotFound), "StartContainer container abc123: container not found"},
		{"entity only", NewDockerError("ListContainers", "container", "", "connection failed", ErrConnectionFailed), "ListContainers container: connection failed"},
		{"op only", NewDockerError("Ping", "", "", "daemon down", ErrConnectionFailed), "Ping: daemon down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestDockerError_Unwrap(t *testing.T) {
	err := NewDockerError("BuildImage", "image", "webstack-app:latest", "step failed", ErrBuildFailed)

	assert.ErrorIs(t, err, ErrBuildFailed)
	var dErr *DockerError
	require.True(t, errors.As(error(err), &dErr))
	assert.Equal(t, "webstack-app:latest", dErr.ID)
}
