//go:build e2e

package testfs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// containerLabel tags containers started by the E2E harness.
const containerLabel = "rdup.e2e"

// Container is a running Docker container that commands are exec'd in.
type Container struct {
	client      *client.Client
	containerID string
}

// NewContainer pulls the image if needed, then creates and starts the
// container. The caller must Close it.
func NewContainer(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig) (*Container, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if err := pullImage(ctx, cli, cfg.Image); err != nil {
		_ = cli.Close()
		return nil, err
	}

	if cfg.Labels == nil {
		cfg.Labels = map[string]string{}
	}
	cfg.Labels[containerLabel] = "true"

	resp, err := cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("create container: %w", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("start container: %w", err)
	}

	return &Container{client: cli, containerID: resp.ID}, nil
}

// Run executes cmd inside the container, feeding stdin when non-nil.
// A non-zero exit status is reported in the result, not as an error.
func (c *Container) Run(ctx context.Context, cmd []string, stdin []byte) (*RunResult, error) {
	execResp, err := c.client.ContainerExecCreate(ctx, c.containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdin:  stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("exec create: %w", err)
	}

	hijack, err := c.client.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("exec attach: %w", err)
	}
	defer hijack.Close()

	if stdin != nil {
		if _, err := hijack.Conn.Write(stdin); err != nil {
			return nil, fmt.Errorf("write stdin: %w", err)
		}
		if err := hijack.CloseWrite(); err != nil {
			return nil, fmt.Errorf("close stdin: %w", err)
		}
	}

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, hijack.Reader); err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	inspect, err := c.client.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("exec inspect: %w", err)
	}

	return &RunResult{
		ExitCode: inspect.ExitCode,
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
	}, nil
}

// Close stops the container; AutoRemove deletes it.
func (c *Container) Close(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	defer func() { _ = c.client.Close() }()
	return c.client.ContainerStop(ctx, c.containerID, container.StopOptions{})
}

func pullImage(ctx context.Context, cli *client.Client, imageName string) error {
	reader, err := cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", imageName, err)
	}
	defer func() { _ = reader.Close() }()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}
