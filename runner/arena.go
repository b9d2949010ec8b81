package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cmars/mazewar/alloc"
	"github.com/cmars/mazewar/api"
	"github.com/cmars/mazewar/sandbox"
)

// ManagedPrefix starts the name of every container and network the runner
// creates.
const ManagedPrefix = "mazewar-managed"

const (
	enginePort      = 5000
	stopTimeout     = 3 * time.Second
	offenseHostname = "offense"
	defenseHostname = "defense"
)

// Team is one side of a match.
type Team struct {
	ID    string
	Image string
}

// Arena is one mirror of a match: an engine and two bots, each bot on its
// own internal network shared only with the engine.
type Arena struct {
	Index   int
	Offense Team
	Defense Team

	networks []string
	subnets  []string
	engine   *sandbox.Container
	offense  *sandbox.Container
	defense  *sandbox.Container

	EngineURL string
	Started   bool
	Status    *api.Status

	OffenseLogs []string
	DefenseLogs []string
}

func (a *Arena) String() string {
	return fmt.Sprintf("%d(%s vs %s)", a.Index, a.Offense.ID, a.Defense.ID)
}

type arenaBuilder struct {
	sandbox sandbox.Provider
	subnets *alloc.SubnetPool
	cfg     *Config
}

func (b *arenaBuilder) name(tag string, a *Arena, parts ...string) string {
	return strings.Join(append([]string{ManagedPrefix, tag, fmt.Sprint(a.Index)}, parts...), "-")
}

// provision creates the arena's networks and containers in order, checking
// ctx between steps. Whatever was created is recorded in a, so a failed
// arena can still be torn down.
func (b *arenaBuilder) provision(ctx context.Context, tag string, a *Arena, limits alloc.Limits) error {
	var sides [2]string
	for i, side := range []string{offenseHostname, defenseHostname} {
		if err := ctx.Err(); err != nil {
			return err
		}
		subnet, err := b.subnets.Acquire()
		if err != nil {
			return err
		}
		a.subnets = append(a.subnets, subnet)
		id, err := b.sandbox.CreateNetwork(ctx, sandbox.NetworkSpec{
			Name:     b.name(tag, a, side),
			Subnet:   subnet,
			Internal: true,
		})
		if err != nil {
			return err
		}
		a.networks = append(a.networks, id)
		sides[i] = id
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	engine, err := b.sandbox.Run(ctx, sandbox.ContainerSpec{
		Name:     b.name(tag, a, "engine"),
		Image:    b.cfg.EngineImage,
		Hostname: "engine",
		Env:      []string{fmt.Sprintf("PORT=%d", enginePort)},
		Publish:  &sandbox.Publish{ContainerPort: enginePort, HostIP: b.cfg.EngineHost},
	})
	if engine != nil {
		a.engine = engine
	}
	if err != nil {
		return err
	}
	a.EngineURL = fmt.Sprintf("http://%s:%d", b.cfg.EngineHost, engine.HostPort)

	bots := []struct {
		team     Team
		hostname string
		network  string
		dst      **sandbox.Container
	}{
		{a.Offense, offenseHostname, sides[0], &a.offense},
		{a.Defense, defenseHostname, sides[1], &a.defense},
	}
	for _, bot := range bots {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := b.sandbox.Run(ctx, sandbox.ContainerSpec{
			Name:     b.name(tag, a, bot.team.ID, bot.hostname),
			Image:    bot.team.Image,
			Hostname: bot.hostname,
			Network:  bot.network,
			Aliases:  []string{bot.hostname},
			Env:      []string{fmt.Sprintf("PORT=%d", b.cfg.BotPort)},
			Limits:   limits,
		})
		if c != nil {
			*bot.dst = c
		}
		if err != nil {
			return err
		}
	}

	for _, id := range sides {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.sandbox.Connect(ctx, id, engine.ID, "engine"); err != nil {
			return err
		}
	}
	return nil
}

func (b *arenaBuilder) botURL(hostname string) string {
	return fmt.Sprintf("http://%s:%d", hostname, b.cfg.BotPort)
}

// teardown stops and removes everything in the arena, keeping the tail of
// each bot's logs. Failures are logged and otherwise ignored.
func (b *arenaBuilder) teardown(ctx context.Context, a *Arena, entry *log.Entry) {
	entry = entry.WithField("arena", a.Index)
	if a.offense != nil {
		a.OffenseLogs = b.collect(ctx, a.offense, entry)
		a.offense = nil
	}
	if a.defense != nil {
		a.DefenseLogs = b.collect(ctx, a.defense, entry)
		a.defense = nil
	}
	if a.engine != nil {
		b.remove(ctx, a.engine, entry)
		a.engine = nil
	}
	for _, id := range a.networks {
		if err := b.sandbox.RemoveNetwork(ctx, id); err != nil {
			entry.WithError(err).WithField("network", id).Warn("failed to remove network")
		}
	}
	a.networks = nil
	for _, s := range a.subnets {
		b.subnets.Release(s)
	}
	a.subnets = nil
}

func (b *arenaBuilder) collect(ctx context.Context, c *sandbox.Container, entry *log.Entry) []string {
	if err := b.sandbox.Stop(ctx, c.ID, stopTimeout); err != nil {
		entry.WithError(err).WithField("container", c.Name).Warn("failed to stop container")
	}
	lines, err := b.sandbox.Logs(ctx, c.ID, b.cfg.MaxLogs)
	if err != nil {
		entry.WithError(err).WithField("container", c.Name).Warn("failed to read logs")
	}
	if err := b.sandbox.Remove(ctx, c.ID); err != nil {
		entry.WithError(err).WithField("container", c.Name).Warn("failed to remove container")
	}
	return truncateLogs(lines, b.cfg.MaxLogs, b.cfg.MaxLogLine)
}

func (b *arenaBuilder) remove(ctx context.Context, c *sandbox.Container, entry *log.Entry) {
	if err := b.sandbox.Stop(ctx, c.ID, stopTimeout); err != nil {
		entry.WithError(err).WithField("container", c.Name).Warn("failed to stop container")
	}
	if err := b.sandbox.Remove(ctx, c.ID); err != nil {
		entry.WithError(err).WithField("container", c.Name).Warn("failed to remove container")
	}
}

// truncateLogs keeps the last maxLines lines, each cut to maxLen bytes.
func truncateLogs(lines []string, maxLines, maxLen int) []string {
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		if len(l) > maxLen {
			l = l[:maxLen]
		}
		out[i] = l
	}
	return out
}
