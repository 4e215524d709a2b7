// Package pyexec runs Python code inside a short-lived Docker container.
//
// Each execution gets a fresh container with no network access and hard
// memory/CPU limits, so model-written code cannot touch the host or
// other requests.
package pyexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/ihubanov/sift"
)

const (
	defaultImage     = "python:3.12-slim"
	defaultMemory    = 256 << 20 // 256MB
	defaultNanoCPUs  = 1e9       // one CPU
	defaultTimeout   = 30 * time.Second
	defaultMaxOutput = 16 << 10 // 16KB
)

// Option configures a pyexec Tool.
type Option func(*Tool)

// WithImage sets the container image. Default: python:3.12-slim.
func WithImage(img string) Option {
	return func(t *Tool) { t.image = img }
}

// WithMemoryLimit sets the container memory limit in bytes.
func WithMemoryLimit(bytes int64) Option {
	return func(t *Tool) { t.memory = bytes }
}

// WithCPULimit sets the CPU limit in whole CPUs.
func WithCPULimit(cpus float64) Option {
	return func(t *Tool) { t.nanoCPUs = int64(cpus * 1e9) }
}

// WithTimeout sets the per-execution wall clock limit.
func WithTimeout(d time.Duration) Option {
	return func(t *Tool) { t.timeout = d }
}

// Tool executes Python code in disposable containers.
type Tool struct {
	cli       *client.Client
	image     string
	memory    int64
	nanoCPUs  int64
	timeout   time.Duration
	maxOutput int
}

var _ sift.Handler = (*Tool)(nil)

// New creates a pyexec Tool talking to the local Docker daemon.
func New(opts ...Option) (*Tool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	t := &Tool{
		cli:       cli,
		image:     defaultImage,
		memory:    defaultMemory,
		nanoCPUs:  defaultNanoCPUs,
		timeout:   defaultTimeout,
		maxOutput: defaultMaxOutput,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Close releases the Docker client.
func (t *Tool) Close() error {
	return t.cli.Close()
}

func (t *Tool) Definitions() []sift.ToolDefinition {
	return []sift.ToolDefinition{{
		Name:        "run_python",
		Description: "Run Python code in an isolated sandbox and return its output. Use for math, data analysis, and other computation. Print anything you want returned.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"code":{"type":"string","description":"Python code to execute"}},"required":["code"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (sift.ToolResult, error) {
	var params struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return sift.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if strings.TrimSpace(params.Code) == "" {
		return sift.ToolResult{Error: "code is required"}, nil
	}

	stdout, stderr, exitCode, err := t.Run(ctx, params.Code)
	if err != nil {
		return sift.ToolResult{Error: err.Error()}, nil
	}

	var out strings.Builder
	if stdout != "" {
		out.WriteString(stdout)
	}
	if stderr != "" {
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString("stderr:\n" + stderr)
	}
	if exitCode != 0 {
		fmt.Fprintf(&out, "\n(exit code %d)", exitCode)
		return sift.ToolResult{Error: strings.TrimSpace(out.String())}, nil
	}
	if out.Len() == 0 {
		out.WriteString("(no output)")
	}
	return sift.ToolResult{Content: out.String()}, nil
}

// Run executes code in a fresh container and returns captured output.
func (t *Tool) Run(ctx context.Context, code string) (stdout, stderr string, exitCode int, err error) {
	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	id, err := t.createContainer(runCtx, code)
	if err != nil {
		return "", "", 0, err
	}
	// Removal uses a fresh context so cleanup still runs after a timeout.
	defer func() {
		rmCtx, rmCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer rmCancel()
		_ = t.cli.ContainerRemove(rmCtx, id, container.RemoveOptions{Force: true})
	}()

	if err := t.cli.ContainerStart(runCtx, id, container.StartOptions{}); err != nil {
		return "", "", 0, fmt.Errorf("start container: %w", err)
	}

	statusCh, errCh := t.cli.ContainerWait(runCtx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if runCtx.Err() != nil {
			return "", "", 0, fmt.Errorf("execution timed out after %s", t.timeout)
		}
		return "", "", 0, fmt.Errorf("wait container: %w", err)
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	}

	stdout, stderr, err = t.collectLogs(ctx, id)
	if err != nil {
		return "", "", exitCode, err
	}
	return stdout, stderr, exitCode, nil
}

// createContainer creates the sandbox container, pulling the image on
// first use.
func (t *Tool) createContainer(ctx context.Context, code string) (string, error) {
	cfg := &container.Config{
		Image:           t.image,
		Cmd:             []string{"python3", "-c", code},
		NetworkDisabled: true,
	}
	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:   t.memory,
			NanoCPUs: t.nanoCPUs,
		},
	}

	resp, err := t.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err == nil {
		return resp.ID, nil
	}
	if !client.IsErrNotFound(err) {
		return "", fmt.Errorf("create container: %w", err)
	}

	rc, pullErr := t.cli.ImagePull(ctx, t.image, image.PullOptions{})
	if pullErr != nil {
		return "", fmt.Errorf("pull image %s: %w", t.image, pullErr)
	}
	_, _ = io.Copy(io.Discard, rc)
	rc.Close()

	resp, err = t.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	return resp.ID, nil
}

// collectLogs demultiplexes the container's stdout and stderr streams.
func (t *Tool) collectLogs(ctx context.Context, id string) (string, string, error) {
	logs, err := t.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("container logs: %w", err)
	}
	defer logs.Close()

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, logs); err != nil {
		return "", "", fmt.Errorf("read logs: %w", err)
	}
	return truncate(outBuf.String(), t.maxOutput), truncate(errBuf.String(), t.maxOutput), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}
