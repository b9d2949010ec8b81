// Package sandbox describes the isolated environments bots and engines run
// in.
package sandbox

import (
	"context"
	"errors"
	"time"

	"github.com/cmars/mazewar/alloc"
)

var ErrNotFound = errors.New("not found")

// NetworkSpec describes a network for one side of an arena.
type NetworkSpec struct {
	Name   string
	Subnet string
	// Internal networks have no route out of the host.
	Internal bool
}

// Publish exposes a container port on the host. A zero HostPort lets the
// runtime pick one.
type Publish struct {
	ContainerPort int
	HostIP        string
	HostPort      int
}

type ContainerSpec struct {
	Name     string
	Image    string
	Hostname string
	// Network is attached at creation; empty means the runtime default.
	Network string
	Aliases []string
	Env     []string
	Publish *Publish
	Limits  alloc.Limits
}

// Container is a started container.
type Container struct {
	ID   string
	Name string
	// HostPort is the host side of Publish, if any.
	HostPort int
}

// Provider runs containers and networks. Implementations must be safe to
// call from a single goroutine; the runner never calls them concurrently.
type Provider interface {
	Pull(ctx context.Context, image string) error
	CreateNetwork(ctx context.Context, spec NetworkSpec) (string, error)
	RemoveNetwork(ctx context.Context, id string) error
	// Run creates and starts a container. A container that fails to start
	// is removed.
	Run(ctx context.Context, spec ContainerSpec) (*Container, error)
	Connect(ctx context.Context, networkID, containerID string, aliases ...string) error
	Stop(ctx context.Context, id string, timeout time.Duration) error
	Remove(ctx context.Context, id string) error
	// Logs returns the last tail lines of combined output.
	Logs(ctx context.Context, id string, tail int) ([]string, error)
	// Sweep force-removes every container and network whose name starts
	// with prefix.
	Sweep(ctx context.Context, prefix string) error
}
