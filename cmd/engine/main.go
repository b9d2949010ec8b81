// Command engine serves a single match engine: it plays one match at a
// time between two bot services and reports progress over HTTP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/cmars/mazewar/api"
	"github.com/cmars/mazewar/config"
	"github.com/cmars/mazewar/engine"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		log.WithError(err).Fatal("failed to load env file")
	}
	cfg, err := config.LoadEngine()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	cfg.Apply()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := engine.NewRunner(cfg.Engine)
	defer runner.Close()

	r := api.NewRouter()
	r.Mount("/", api.EngineRouter(runner))
	if err := api.ListenAndServe(ctx, cfg.Addr(), r); err != nil {
		log.WithError(err).Fatal("engine server failed")
	}
}
