// Package docker runs sandboxes as Docker containers.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	log "github.com/sirupsen/logrus"

	"github.com/cmars/mazewar/sandbox"
)

// Provider implements sandbox.Provider against a Docker daemon.
type Provider struct {
	cli *client.Client
}

// New connects to the daemon configured by the DOCKER_* environment.
func New() (*Provider, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to docker: %w", err)
	}
	return &Provider{cli: cli}, nil
}

var _ sandbox.Provider = (*Provider)(nil)

func (p *Provider) Close() error {
	return p.cli.Close()
}

func (p *Provider) Pull(ctx context.Context, ref string) error {
	rc, err := p.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull %s: %w", ref, err)
	}
	defer rc.Close()
	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull %s: %w", ref, err)
	}
	return nil
}

func (p *Provider) CreateNetwork(ctx context.Context, spec sandbox.NetworkSpec) (string, error) {
	opts := network.CreateOptions{
		Driver:   "bridge",
		Internal: spec.Internal,
	}
	if spec.Subnet != "" {
		opts.IPAM = &network.IPAM{Config: []network.IPAMConfig{{Subnet: spec.Subnet}}}
	}
	resp, err := p.cli.NetworkCreate(ctx, spec.Name, opts)
	if err != nil {
		return "", fmt.Errorf("failed to create network %s: %w", spec.Name, err)
	}
	if resp.Warning != "" {
		log.WithField("network", spec.Name).Warn(resp.Warning)
	}
	return resp.ID, nil
}

func (p *Provider) RemoveNetwork(ctx context.Context, id string) error {
	return wrapNotFound(p.cli.NetworkRemove(ctx, id))
}

func (p *Provider) Run(ctx context.Context, spec sandbox.ContainerSpec) (*sandbox.Container, error) {
	cfg := &container.Config{
		Image:    spec.Image,
		Hostname: spec.Hostname,
		Env:      spec.Env,
	}
	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			NanoCPUs: spec.Limits.NanoCPUs,
			Memory:   spec.Limits.MemoryBytes,
		},
	}
	var port nat.Port
	if spec.Publish != nil {
		port = nat.Port(strconv.Itoa(spec.Publish.ContainerPort) + "/tcp")
		cfg.ExposedPorts = nat.PortSet{port: struct{}{}}
		hostPort := ""
		if spec.Publish.HostPort > 0 {
			hostPort = strconv.Itoa(spec.Publish.HostPort)
		}
		hostCfg.PortBindings = nat.PortMap{port: {{HostIP: spec.Publish.HostIP, HostPort: hostPort}}}
	}
	var netCfg *network.NetworkingConfig
	if spec.Network != "" {
		hostCfg.NetworkMode = container.NetworkMode(spec.Network)
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {Aliases: spec.Aliases},
			},
		}
	}

	created, err := p.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}
	for _, w := range created.Warnings {
		log.WithField("container", spec.Name).Warn(w)
	}
	if err := p.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		if rmErr := p.Remove(context.Background(), created.ID); rmErr != nil {
			log.WithError(rmErr).WithField("container", spec.Name).Warn("failed to remove container")
		}
		return nil, fmt.Errorf("failed to start container %s: %w", spec.Name, err)
	}

	c := &sandbox.Container{ID: created.ID, Name: spec.Name}
	if spec.Publish != nil {
		if c.HostPort, err = p.hostPort(ctx, created.ID, port); err != nil {
			return c, err
		}
	}
	return c, nil
}

func (p *Provider) hostPort(ctx context.Context, id string, port nat.Port) (int, error) {
	info, err := p.cli.ContainerInspect(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect container %s: %w", id, err)
	}
	if info.NetworkSettings != nil {
		for _, b := range info.NetworkSettings.Ports[port] {
			if n, err := strconv.Atoi(b.HostPort); err == nil {
				return n, nil
			}
		}
	}
	return 0, fmt.Errorf("container %s has no host port for %s", id, port)
}

func (p *Provider) Connect(ctx context.Context, networkID, containerID string, aliases ...string) error {
	err := p.cli.NetworkConnect(ctx, networkID, containerID, &network.EndpointSettings{Aliases: aliases})
	if err != nil {
		return fmt.Errorf("failed to connect %s to %s: %w", containerID, networkID, err)
	}
	return nil
}

func (p *Provider) Stop(ctx context.Context, id string, timeout time.Duration) error {
	secs := int(timeout / time.Second)
	return wrapNotFound(p.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &secs}))
}

func (p *Provider) Remove(ctx context.Context, id string) error {
	return wrapNotFound(p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}))
}

func (p *Provider) Logs(ctx context.Context, id string, tail int) ([]string, error) {
	rc, err := p.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		return nil, wrapNotFound(err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return nil, fmt.Errorf("failed to read logs of %s: %w", id, err)
	}
	out := strings.TrimRight(buf.String(), "\n")
	if out == "" {
		return []string{}, nil
	}
	return strings.Split(out, "\n"), nil
}

func (p *Provider) Sweep(ctx context.Context, prefix string) error {
	byName := filters.NewArgs(filters.Arg("name", prefix))

	containers, err := p.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: byName})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}
	for _, c := range containers {
		if !hasPrefix(c.Names, prefix) {
			continue
		}
		if err := p.Remove(ctx, c.ID); err != nil {
			log.WithError(err).WithField("container", c.Names).Warn("failed to sweep container")
		}
	}

	networks, err := p.cli.NetworkList(ctx, network.ListOptions{Filters: byName})
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}
	for _, n := range networks {
		if !strings.HasPrefix(n.Name, prefix) {
			continue
		}
		if err := p.RemoveNetwork(ctx, n.ID); err != nil {
			log.WithError(err).WithField("network", n.Name).Warn("failed to sweep network")
		}
	}
	return nil
}

// hasPrefix matches container names, which the daemon reports with a
// leading slash. The name filter is a substring match, so it is checked
// again here.
func hasPrefix(names []string, prefix string) bool {
	for _, name := range names {
		if strings.HasPrefix(strings.TrimPrefix(name, "/"), prefix) {
			return true
		}
	}
	return false
}

func wrapNotFound(err error) error {
	if err != nil && errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: %v", sandbox.ErrNotFound, err)
	}
	return err
}
