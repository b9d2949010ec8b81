package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNoGameRunning  = errors.New("no game running")
	ErrGameInProgress = errors.New("game in progress")
)

// Engine is the match engine as seen by the orchestrator.
type Engine interface {
	// Launch starts a match between two bots and returns the seed in use.
	// An empty seed picks a random one.
	Launch(offenseURL, defenseURL, seed string) (string, error)
	ForceEnd() error
	Status() *Status
	// Subscribe delivers each new step until the match ends or cancel is
	// called.
	Subscribe() (steps <-chan Step, cancel func())
}

const watchWriteTimeout = 5 * time.Second

// EngineRouter serves the engine surface polled by the orchestrator.
func EngineRouter(e Engine) http.Handler {
	r := chi.NewRouter()
	h := &engineHandler{engine: e}
	r.Get("/status", h.Status)
	r.Post("/run_game", h.RunGame)
	r.Post("/force_end_game", h.ForceEnd)
	r.Get("/watch", h.Watch)
	return r
}

type engineHandler struct {
	engine   Engine
	upgrader websocket.Upgrader
}

func (h *engineHandler) Status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.engine.Status())
}

func (h *engineHandler) RunGame(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offenseURL, defenseURL := q.Get("offense_url"), q.Get("defense_url")
	if offenseURL == "" || defenseURL == "" {
		http.Error(w, "Wrong parameters", http.StatusBadRequest)
		return
	}

	seed, err := h.engine.Launch(offenseURL, defenseURL, q.Get("seed"))
	if errors.Is(err, ErrGameInProgress) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	} else if err != nil {
		log.WithError(err).Error("failed to launch game")
		http.Error(w, "failed to launch game", http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, &RunGameResponse{Status: "started", Seed: seed})
}

func (h *engineHandler) ForceEnd(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ForceEnd(); errors.Is(err, ErrNoGameRunning) {
		http.Error(w, "No game running", http.StatusBadRequest)
		return
	} else if err != nil {
		log.WithError(err).Error("failed to end game")
		http.Error(w, "failed to end game", http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, &RunGameResponse{Status: "stopped"})
}

// Watch streams steps over a websocket as the engine produces them.
func (h *engineHandler) Watch(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("watch upgrade failed")
		return
	}
	defer conn.Close()

	steps, cancel := h.engine.Subscribe()
	defer cancel()

	// The client never sends anything; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case step, ok := <-steps:
			deadline := time.Now().Add(watchWriteTimeout)
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "game over"), deadline)
				return
			}
			_ = conn.SetWriteDeadline(deadline)
			if err := conn.WriteJSON(step); err != nil {
				log.WithError(err).Debug("watch write failed")
				return
			}
		case <-closed:
			return
		}
	}
}
