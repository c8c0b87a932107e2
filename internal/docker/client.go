package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"
)

const labelPrefix = "querybench."

// EnginePort is the port the database engine listens on inside the container.
const EnginePort = 3306

// ErrPortConflict is returned when the daemon cannot bind the requested host port.
var ErrPortConflict = errors.New("host port already allocated")

type Client struct {
	docker *client.Client
}

func New() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Client{docker: cli}, nil
}

func (c *Client) Close() error {
	return c.docker.Close()
}

// Ping verifies the Docker daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.docker.Ping(ctx)
	return err
}

type EngineOpts struct {
	RunID        string
	Name         string
	Image        string
	RootPassword string
	Database     string
	HostPort     int
	MemLimit     string // docker size string, e.g. "512m"
}

// engineArgs enable statement history in performance_schema.
var engineArgs = []string{
	"--performance_schema=ON",
	"--performance-schema-consumer-events-statements-history=ON",
}

// CreateEngine creates and starts a database container publishing EnginePort
// on opts.HostPort. A bind failure on start returns ErrPortConflict and the
// half-created container is removed.
func (c *Client) CreateEngine(ctx context.Context, opts EngineOpts) (string, error) {
	memory, err := parseMemLimit(opts.MemLimit)
	if err != nil {
		return "", err
	}

	port := nat.Port(strconv.Itoa(EnginePort) + "/tcp")

	containerCfg := &container.Config{
		Image: opts.Image,
		Env: []string{
			"MYSQL_ROOT_PASSWORD=" + opts.RootPassword,
			"MYSQL_DATABASE=" + opts.Database,
		},
		Cmd:          engineArgs,
		ExposedPorts: nat.PortSet{port: struct{}{}},
		Labels: map[string]string{
			labelPrefix + "run_id":  opts.RunID,
			labelPrefix + "managed": "true",
		},
	}

	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(opts.HostPort)}},
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyDisabled},
		Resources:     container.Resources{Memory: memory},
		AutoRemove:    false,
	}

	resp, err := c.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("container create: %w", err)
	}

	if err := c.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// Clean up on start failure.
		c.docker.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})
		if isPortConflict(err) {
			return "", fmt.Errorf("container start on port %d: %w", opts.HostPort, ErrPortConflict)
		}
		return "", fmt.Errorf("container start: %w", err)
	}

	return resp.ID, nil
}

func parseMemLimit(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid mem_limit %q: %w", s, err)
	}
	return n, nil
}

func isPortConflict(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "port is already allocated") ||
		strings.Contains(s, "address already in use")
}

// NetworkInfo is the subset of container metadata needed to reach the engine.
type NetworkInfo struct {
	Running   bool
	Status    string
	HostPort  int
	IPAddress string
	Gateway   string
	Ports     string // human-readable port map for diagnostics
}

// Inspect returns the container's state and network addresses.
func (c *Client) Inspect(ctx context.Context, containerID string) (*NetworkInfo, error) {
	info, err := c.docker.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("container inspect: %w", err)
	}

	out := &NetworkInfo{}
	if info.State != nil {
		out.Running = info.State.Running
		out.Status = info.State.Status
	}
	if info.NetworkSettings != nil {
		fillNetworkInfo(out, info.NetworkSettings.Ports, info.NetworkSettings.Networks)
	}
	return out, nil
}

func fillNetworkInfo(out *NetworkInfo, ports nat.PortMap, networks map[string]*network.EndpointSettings) {
	port := nat.Port(strconv.Itoa(EnginePort) + "/tcp")
	for _, b := range ports[port] {
		if p, err := strconv.Atoi(b.HostPort); err == nil && p > 0 {
			out.HostPort = p
			break
		}
	}

	// Prefer the default bridge, then any network in name order.
	names := make([]string, 0, len(networks))
	for name := range networks {
		names = append(names, name)
	}
	sort.Strings(names)
	if _, ok := networks["bridge"]; ok {
		names = append([]string{"bridge"}, names...)
	}
	for _, name := range names {
		ep := networks[name]
		if ep == nil || ep.IPAddress == "" {
			continue
		}
		out.IPAddress = ep.IPAddress
		out.Gateway = ep.Gateway
		break
	}

	out.Ports = formatPorts(ports)
}

func formatPorts(ports nat.PortMap) string {
	if len(ports) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(ports))
	for p := range ports {
		keys = append(keys, string(p))
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		bindings := ports[nat.Port(k)]
		if len(bindings) == 0 {
			parts = append(parts, k+"->unbound")
			continue
		}
		for _, b := range bindings {
			parts = append(parts, fmt.Sprintf("%s->%s:%s", k, b.HostIP, b.HostPort))
		}
	}
	return strings.Join(parts, ", ")
}

// Logs returns the last tail lines of combined stdout/stderr.
func (c *Client) Logs(ctx context.Context, containerID string, tail int) (string, error) {
	rc, err := c.docker.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		return "", fmt.Errorf("container logs: %w", err)
	}
	defer rc.Close()

	// Demultiplex Docker's stdout/stderr stream (8-byte headers).
	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return "", fmt.Errorf("logs read: %w", err)
	}
	return buf.String(), nil
}

// StopContainer stops a running container. Missing or already stopped
// containers are not an error.
func (c *Client) StopContainer(ctx context.Context, containerID string, timeoutSeconds int) error {
	timeout := timeoutSeconds
	err := c.docker.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
	if err != nil && !client.IsErrNotFound(err) && !isNotRunning(err) {
		return fmt.Errorf("container stop: %w", err)
	}
	return nil
}

func isNotRunning(err error) bool {
	return strings.Contains(err.Error(), "is not running")
}

// RemoveContainer force-removes a container and its anonymous volumes.
func (c *Client) RemoveContainer(ctx context.Context, containerID string) error {
	err := c.docker.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("container remove: %w", err)
	}
	return nil
}

// ContainerInfo holds basic info about a managed sandbox container.
type ContainerInfo struct {
	ContainerID string
	RunID       string
	Name        string
	Created     int64
}

// ListManaged returns all containers carrying querybench labels.
func (c *Client) ListManaged(ctx context.Context) ([]ContainerInfo, error) {
	f := filters.NewArgs()
	f.Add("label", labelPrefix+"managed=true")

	containers, err := c.docker.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: f,
	})
	if err != nil {
		return nil, fmt.Errorf("container list: %w", err)
	}

	var result []ContainerInfo
	for _, ctr := range containers {
		runID := ctr.Labels[labelPrefix+"run_id"]
		if runID == "" {
			continue
		}
		name := ""
		if len(ctr.Names) > 0 {
			name = strings.TrimPrefix(ctr.Names[0], "/")
		}
		result = append(result, ContainerInfo{
			ContainerID: ctr.ID,
			RunID:       runID,
			Name:        name,
			Created:     ctr.Created,
		})
	}
	return result, nil
}
