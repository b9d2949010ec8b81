// Command bot serves the reference bots. The seeker and blocker pair is
// mounted at / and the random pair at /random.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/cmars/mazewar/api"
	"github.com/cmars/mazewar/config"
	"github.com/cmars/mazewar/random"
	"github.com/cmars/mazewar/seeker"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		log.WithError(err).Fatal("failed to load env file")
	}
	cfg, err := config.LoadBot()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	cfg.Apply()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := api.NewRouter()
	r.Mount("/random", api.BotRouter(random.NewOffense, random.NewDefense))
	r.Mount("/", api.BotRouter(seeker.New, random.NewBlocker))
	if err := api.ListenAndServe(ctx, cfg.Addr(), r); err != nil {
		log.WithError(err).Fatal("bot server failed")
	}
}
