package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/cmars/mazewar/api"
)

const subscriberBuffer = 64

// Config tunes the engine process.
type Config struct {
	BotTimeout time.Duration
	RoundDelay time.Duration
	Match      Options
}

var DefaultConfig = Config{
	BotTimeout: 2 * time.Second,
	Match:      DefaultOptions,
}

// Runner hosts at most one match at a time and plays it on a background
// goroutine. Only that goroutine touches the match; everyone else reads the
// last published status snapshot.
type Runner struct {
	cfg  Config
	dial func(url string) Bot

	mu      sync.Mutex
	current *game
	status  *api.Status
	subs    map[int]chan api.Step
	nextSub int
}

type game struct {
	match  *Match
	cancel context.CancelFunc
	done   chan struct{}
	// ended is set under Runner.mu once subscribers have been released.
	ended bool
}

func NewRunner(cfg Config) *Runner {
	r := &Runner{
		cfg:    cfg,
		status: &api.Status{},
		subs:   map[int]chan api.Step{},
	}
	r.dial = func(url string) Bot {
		return NewBotClient(url, r.cfg.BotTimeout)
	}
	return r
}

var _ api.Engine = (*Runner)(nil)

// Launch starts a new match unless one is still being played. A match that
// is over is replaced.
func (r *Runner) Launch(offenseURL, defenseURL, seed string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil && !r.status.IsOver {
		return "", api.ErrGameInProgress
	}
	if seed == "" {
		seed = uuid.NewString()
	}

	m, err := NewMatch(seed, r.dial(offenseURL), r.dial(defenseURL), r.cfg.Match)
	if err != nil {
		return "", err
	}
	prev := r.current
	ctx, cancel := context.WithCancel(context.Background())
	g := &game{match: m, cancel: cancel, done: make(chan struct{})}
	r.current = g
	r.status = m.Status()
	r.closeSubs()
	log.WithFields(log.Fields{
		"seed":    seed,
		"offense": offenseURL,
		"defense": defenseURL,
	}).Info("launching match")

	go r.play(ctx, g, prev)
	return seed, nil
}

// play drives g to the end. The previous match, if any, finishes notifying
// its bots before g starts.
func (r *Runner) play(ctx context.Context, g *game, prev *game) {
	defer close(g.done)
	defer r.release(g)
	if prev != nil {
		<-prev.done
	}

	m := g.match
	if err := m.Setup(ctx); err != nil {
		log.WithError(err).WithField("seed", m.Seed()).Warn("match failed to start")
		r.publish(g, nil)
		return
	}
	r.publish(g, nil)

	for !m.Over() {
		if ctx.Err() != nil {
			m.Abort("match ended early")
			r.publish(g, nil)
			break
		}
		step := m.PlayRound(ctx)
		r.publish(g, &step)
		if r.cfg.RoundDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(r.cfg.RoundDelay):
			}
		}
	}
	log.WithFields(log.Fields{
		"seed":   m.Seed(),
		"rounds": m.Round(),
		"score":  m.Score(),
	}).Info("match over")

	endCtx, cancel := context.WithTimeout(context.Background(), r.cfg.BotTimeout)
	defer cancel()
	m.End(endCtx)
}

func (r *Runner) publish(g *game, step *api.Step) {
	status := g.match.Status()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != g {
		return
	}
	r.status = status
	if step == nil {
		return
	}
	for id, ch := range r.subs {
		select {
		case ch <- *step:
		default:
			log.WithField("subscriber", id).Debug("watcher is behind, dropping step")
		}
	}
}

// ForceEnd stops the current match and waits for its goroutine to exit.
func (r *Runner) ForceEnd() error {
	r.mu.Lock()
	g := r.current
	if g == nil {
		r.mu.Unlock()
		return api.ErrNoGameRunning
	}
	r.mu.Unlock()

	g.cancel()
	<-g.done

	r.mu.Lock()
	if r.current == g {
		r.current = nil
		r.status = &api.Status{}
	}
	r.mu.Unlock()
	log.WithField("seed", g.match.Seed()).Info("match force ended")
	return nil
}

func (r *Runner) Status() *api.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Subscribe returns a feed of the steps of the match in progress. The
// channel is closed when that match ends.
func (r *Runner) Subscribe() (<-chan api.Step, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan api.Step, subscriberBuffer)
	if r.current == nil || r.current.ended || r.status.IsOver {
		close(ch)
		return ch, func() {}
	}
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if ch, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(ch)
		}
	}
}

func (r *Runner) release(g *game) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g.ended = true
	if r.current == g {
		r.closeSubs()
	}
}

// closeSubs ends every watch feed. The caller holds r.mu.
func (r *Runner) closeSubs() {
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
}

// Close stops any match in progress.
func (r *Runner) Close() {
	if err := r.ForceEnd(); err != nil && !errors.Is(err, api.ErrNoGameRunning) {
		log.WithError(err).Warn("failed to stop match")
	}
}
