package api

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	log "github.com/sirupsen/logrus"

	"github.com/cmars/mazewar/grid"
)

// BotRouter serves the bot contract for one game at a time. A /start call
// replaces whatever session was in progress.
func BotRouter(newOffense func() OffenseBot, newDefense func() DefenseBot) http.Handler {
	r := chi.NewRouter()
	h := &botHandler{newOffense: newOffense, newDefense: newDefense}
	r.Get("/", h.Info)
	r.Post("/start", h.Start)
	r.Post("/next_move", h.NextMove)
	r.Post("/end_game", h.End)
	return r
}

type InfoResponse struct {
	APIVersion string `json:"apiversion"`
	Role       string `json:"role,omitempty"`
}

type botSession struct {
	offense OffenseBot
	defense DefenseBot
}

func (s *botSession) role() string {
	switch {
	case s == nil:
		return ""
	case s.offense != nil:
		return "offense"
	default:
		return "defense"
	}
}

func (s *botSession) end() error {
	if s.offense != nil {
		return s.offense.End()
	}
	return s.defense.End()
}

type botHandler struct {
	newOffense func() OffenseBot
	newDefense func() DefenseBot

	mu      sync.Mutex
	session *botSession
}

func (h *botHandler) Info(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	role := h.session.role()
	h.mu.Unlock()
	render.JSON(w, r, &InfoResponse{APIVersion: "1", Role: role})
}

func (h *botHandler) Start(w http.ResponseWriter, r *http.Request) {
	var startReq StartRequest
	if err := render.DecodeJSON(r.Body, &startReq); err != nil {
		log.WithError(err).Warn("failed to decode start request")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	s := &botSession{}
	var err error
	if startReq.IsOffense {
		s.offense = h.newOffense()
		err = s.offense.Start(&startReq)
	} else {
		s.defense = h.newDefense()
		err = s.defense.Start(&startReq)
	}
	if err != nil {
		log.WithError(err).Warn("bot cannot start game")
		http.Error(w, "bot cannot start game", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	h.session = s
	h.mu.Unlock()
	log.WithField("role", s.role()).Info("game started")
	w.WriteHeader(http.StatusOK)
}

func (h *botHandler) NextMove(w http.ResponseWriter, r *http.Request) {
	var moveReq NextMoveRequest
	if err := render.DecodeJSON(r.Body, &moveReq); err != nil {
		log.WithError(err).Warn("failed to decode move request")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	view, err := grid.DecodeBase64(moveReq.Map)
	if err != nil {
		log.WithError(err).Warn("failed to decode map")
		http.Error(w, "bad map", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		http.Error(w, "game not started", http.StatusBadRequest)
		return
	}

	if h.session.offense != nil {
		move, err := h.session.offense.Move(view)
		if err != nil {
			log.WithError(err).Warn("bot cannot move")
			http.Error(w, "bot cannot move", http.StatusBadRequest)
			return
		}
		render.JSON(w, r, move.Response())
		return
	}
	move, err := h.session.defense.Move(view)
	if err != nil {
		log.WithError(err).Warn("bot cannot move")
		http.Error(w, "bot cannot move", http.StatusBadRequest)
		return
	}
	render.JSON(w, r, move.Response())
}

func (h *botHandler) End(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	s := h.session
	h.session = nil
	h.mu.Unlock()
	if s == nil {
		http.Error(w, "game not started", http.StatusBadRequest)
		return
	}

	if err := s.end(); err != nil {
		log.WithError(err).Warn("bot cannot end game")
		http.Error(w, "bot cannot end game", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}
