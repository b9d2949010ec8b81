// Command runner pulls matches from the queue service and plays each one in
// a pair of sandboxed arenas.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/cmars/mazewar/alloc"
	"github.com/cmars/mazewar/config"
	"github.com/cmars/mazewar/runner"
	"github.com/cmars/mazewar/sandbox/docker"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		log.WithError(err).Fatal("failed to load env file")
	}
	cfg, err := config.LoadRunner()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	cfg.Apply()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host, err := alloc.DetectHost(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to detect host resources")
	}
	provider, err := docker.New()
	if err != nil {
		log.WithError(err).Fatal("failed to connect to docker")
	}
	defer provider.Close()

	log.WithFields(log.Fields{
		"server": cfg.ServerAddress,
		"engine": cfg.Runner.EngineImage,
		"cpus":   host.CPUs,
		"memory": host.MemoryBytes >> 20,
	}).Info("starting runner")

	r := runner.New(cfg.Runner,
		runner.NewQueueClient(cfg.ServerAddress, cfg.InternalKey, cfg.Runner.RequestTimeout),
		runner.NewEngineClient(cfg.Runner.RequestTimeout),
		provider, host)
	if err := r.Run(ctx); err != nil {
		log.WithError(err).Fatal("runner failed")
	}
	log.Info("runner stopped")
}
