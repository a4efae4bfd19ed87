package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/tools"
)

const (
	containerName   = "neuro-sandbox"
	containerUser   = "1000"
	mountPath       = "/workspace"
	stopTimeoutSecs = 10
	pidsLimit       = 256

	createRetryAttempts = 5
	createRetryDelay    = 250 * time.Millisecond
)

// DockerConfig describes the sandbox container.
type DockerConfig struct {
	Image          string
	Runtime        string // "" = default (runc), "runsc" = gVisor
	WorkspaceDir   string // host directory bind-mounted at /workspace
	MemoryMB       int64
	NanoCPUs       int64
	DisableNetwork bool
	Timeout        time.Duration
	OutputLimit    int
}

// DockerRunner runs commands in one long-lived container that shares the
// workspace directory with the host.
type DockerRunner struct {
	cli *client.Client
	cfg DockerConfig

	mu          sync.Mutex
	containerID string
}

var _ tools.ProcessRunner = (*DockerRunner)(nil)

// NewDockerRunner creates a runner. The container is created lazily on the
// first command.
func NewDockerRunner(cfg DockerConfig) (*DockerRunner, error) {
	if cfg.Image == "" {
		return nil, errors.New("sandbox image is required")
	}
	abs, err := filepath.Abs(cfg.WorkspaceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	cfg.WorkspaceDir = abs
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	runtime := cfg.Runtime
	if runtime == "" {
		runtime = "default"
	}
	slog.Info("Docker sandbox initialized", "image", cfg.Image, "runtime", runtime)
	return &DockerRunner{cli: cli, cfg: cfg}, nil
}

// Ensure makes sure the sandbox container exists and runs, and returns its id.
func (r *DockerRunner) Ensure(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.containerID != "" {
		inspect, err := r.cli.ContainerInspect(ctx, r.containerID)
		if err == nil && inspect.State.Running {
			return r.containerID, nil
		}
		if err != nil && !errdefs.IsNotFound(err) {
			return "", fmt.Errorf("inspect sandbox %s: %w", r.containerID, err)
		}
		r.containerID = ""
	}

	inspect, err := r.cli.ContainerInspect(ctx, containerName)
	if err == nil {
		if inspect.Config != nil && inspect.Config.Image == r.cfg.Image {
			if !inspect.State.Running {
				slog.Info("Restarting stopped sandbox", "container_id", inspect.ID)
				if err := r.cli.ContainerStart(ctx, inspect.ID, container.StartOptions{}); err != nil {
					return "", fmt.Errorf("restart sandbox %s: %w", inspect.ID, err)
				}
			}
			r.containerID = inspect.ID
			return inspect.ID, nil
		}
		slog.Info("Sandbox image changed, recreating", "container_id", inspect.ID)
		if err := r.stop(ctx, inspect.ID); err != nil {
			slog.Warn("Failed to stop outdated sandbox", "error", err, "container_id", inspect.ID)
		}
	} else if !errdefs.IsNotFound(err) {
		return "", fmt.Errorf("inspect sandbox: %w", err)
	}

	id, err := r.create(ctx)
	if err != nil {
		return "", err
	}
	r.containerID = id
	return id, nil
}

func (r *DockerRunner) create(ctx context.Context) (string, error) {
	if err := r.pull(ctx); err != nil {
		return "", err
	}

	config := &container.Config{
		Image:      r.cfg.Image,
		User:       containerUser,
		WorkingDir: mountPath,
		Cmd:        []string{"sleep", "infinity"},
		Labels:     map[string]string{"app": "neuro-sandbox"},
	}
	hostConfig := &container.HostConfig{
		Runtime: r.cfg.Runtime,
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: r.cfg.WorkspaceDir,
			Target: mountPath,
		}},
		Resources: container.Resources{
			Memory:    r.cfg.MemoryMB * 1024 * 1024,
			NanoCPUs:  r.cfg.NanoCPUs,
			PidsLimit: ptr(int64(pidsLimit)),
		},
	}
	if r.cfg.DisableNetwork {
		hostConfig.NetworkMode = container.NetworkMode("none")
	}

	var resp container.CreateResponse
	var createErr error
	for i := 0; i < createRetryAttempts; i++ {
		resp, createErr = r.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, containerName)
		if createErr == nil {
			break
		}
		errStr := strings.ToLower(createErr.Error())
		if !strings.Contains(errStr, "is already in use") && !strings.Contains(errStr, "conflict") {
			return "", fmt.Errorf("create sandbox: %w", createErr)
		}

		// A delayed removal can leave the old named container briefly.
		slog.Warn("Sandbox name conflict during create, retrying", "attempt", i+1, "error", createErr)
		if inspect, err := r.cli.ContainerInspect(ctx, containerName); err == nil {
			if err := r.stop(ctx, inspect.ID); err != nil {
				slog.Warn("Failed to stop conflicting sandbox", "container_id", inspect.ID, "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(createRetryDelay):
		}
	}
	if createErr != nil {
		return "", fmt.Errorf("create sandbox after retries: %w", createErr)
	}

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if removeErr := r.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true}); removeErr != nil && !errors.Is(removeErr, context.Canceled) {
			slog.Warn("Failed to remove sandbox after start failure", "container_id", resp.ID, "error", removeErr)
		}
		return "", fmt.Errorf("start sandbox %s: %w", resp.ID, err)
	}

	slog.Info("Sandbox created and started", "container_id", resp.ID, "image", r.cfg.Image)
	return resp.ID, nil
}

// pull fetches the image when it is not present locally.
func (r *DockerRunner) pull(ctx context.Context) error {
	if _, err := r.cli.ImageInspect(ctx, r.cfg.Image); err == nil {
		return nil
	} else if !errdefs.IsNotFound(err) {
		return fmt.Errorf("inspect image %s: %w", r.cfg.Image, err)
	}

	slog.Info("Pulling sandbox image", "image", r.cfg.Image)
	rc, err := r.cli.ImagePull(ctx, r.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", r.cfg.Image, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("pull image %s: %w", r.cfg.Image, err)
	}
	return nil
}

// Run executes command in the sandbox with sh -c.
func (r *DockerRunner) Run(ctx context.Context, command, cwd string) (tools.ProcessResult, error) {
	dir, err := workdir(mountPath, cwd)
	if err != nil {
		return tools.ProcessResult{}, err
	}
	id, err := r.Ensure(ctx)
	if err != nil {
		return tools.ProcessResult{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	execResp, err := r.cli.ContainerExecCreate(runCtx, id, container.ExecOptions{
		Cmd:          []string{"sh", "-c", command},
		User:         containerUser,
		WorkingDir:   dir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return tools.ProcessResult{}, fmt.Errorf("create exec in sandbox %s: %w", id, err)
	}

	attachResp, err := r.cli.ContainerExecAttach(runCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return tools.ProcessResult{}, fmt.Errorf("attach exec %s: %w", execResp.ID, err)
	}
	defer attachResp.Close()

	stdout := newLimitedBuffer(r.cfg.OutputLimit)
	stderr := newLimitedBuffer(r.cfg.OutputLimit)

	copied := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, attachResp.Reader)
		copied <- err
	}()

	select {
	case err := <-copied:
		if err != nil {
			return tools.ProcessResult{}, fmt.Errorf("read exec output: %w", err)
		}
	case <-runCtx.Done():
		attachResp.Close()
		<-copied
		if ctx.Err() != nil {
			return tools.ProcessResult{}, ctx.Err()
		}
		return tools.ProcessResult{
			Stdout:   stdout.String(),
			Stderr:   joinNonEmpty(stderr.String(), timeoutMessage(r.cfg.Timeout)),
			ExitCode: TimeoutExitCode,
		}, nil
	}

	inspect, err := r.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return tools.ProcessResult{}, fmt.Errorf("inspect exec %s: %w", execResp.ID, err)
	}
	return tools.ProcessResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspect.ExitCode,
	}, nil
}

// Stop removes the sandbox container. It is idempotent.
func (r *DockerRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.containerID
	if id == "" {
		id = containerName
	}
	r.containerID = ""
	return r.stop(ctx, id)
}

func (r *DockerRunner) stop(ctx context.Context, id string) error {
	timeout := stopTimeoutSecs
	if err := r.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		slog.Debug("Sandbox stop returned error, continuing to remove", "container_id", id, "error", err)
	}
	if err := r.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) || strings.Contains(err.Error(), "is already in progress") {
			return nil
		}
		return fmt.Errorf("remove sandbox %s: %w", id, err)
	}
	slog.Info("Sandbox stopped and removed", "container_id", id)
	return nil
}

// Close releases the Docker client.
func (r *DockerRunner) Close() error {
	return r.cli.Close()
}

func ptr[T any](v T) *T {
	return &v
}
