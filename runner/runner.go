// Package runner turns queued matches into played games. Each match runs as
// two mirrored arenas, with each team taking offense once.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/cmars/mazewar/alloc"
	"github.com/cmars/mazewar/api"
	"github.com/cmars/mazewar/retry"
	"github.com/cmars/mazewar/sandbox"
)

// Config tunes the runner.
type Config struct {
	EngineImage      string
	EngineHost       string
	BotPort          int
	TickInterval     time.Duration
	MatchTimeout     time.Duration
	RequestTimeout   time.Duration
	MaxLogs          int
	MaxLogLine       int
	ResourceFraction float64
	// StartPolicy bounds the /run_game calls made to a new engine.
	StartPolicy retry.Policy
	// ResultAttempts bounds how many times a result is posted.
	ResultAttempts int
}

var DefaultConfig = Config{
	EngineHost:       "127.0.0.1",
	BotPort:          5000,
	TickInterval:     5 * time.Second,
	MatchTimeout:     5 * time.Minute,
	RequestTimeout:   2 * time.Second,
	MaxLogs:          200,
	MaxLogLine:       200,
	ResourceFraction: 1,
	StartPolicy:      retry.Policy{Attempts: 5, Delay: time.Second},
	ResultAttempts:   5,
}

// Runner is the orchestration loop. It is driven by a single goroutine and
// holds no locks.
type Runner struct {
	cfg     Config
	queue   Queue
	engines Engines
	sandbox sandbox.Provider
	arenas  arenaBuilder
	host    alloc.Host

	now   func() time.Time
	newID func() string

	current map[string]*matchRun
	pending []*pendingResult
	// maxConcurrent is the last cap advertised by the queue service, zero
	// until known.
	maxConcurrent int
	timeout       time.Duration
}

type matchRun struct {
	match     api.Match
	tag       string
	seed      string
	startedAt time.Time
	arenas    []*Arena
	log       *log.Entry
}

type pendingResult struct {
	result   *api.GameResult
	attempts int
}

func New(cfg Config, queue Queue, engines Engines, sb sandbox.Provider, host alloc.Host) *Runner {
	r := &Runner{
		cfg:     cfg,
		queue:   queue,
		engines: engines,
		sandbox: sb,
		host:    host,
		now:     time.Now,
		newID:   uuid.NewString,
		current: map[string]*matchRun{},
		timeout: cfg.MatchTimeout,
	}
	r.arenas = arenaBuilder{sandbox: sb, subnets: alloc.NewSubnetPool(), cfg: &r.cfg}
	return r
}

// Running is the number of matches in flight.
func (r *Runner) Running() int {
	return len(r.current)
}

// Run ticks until ctx is done, then lets running matches finish or expire
// and removes every managed resource.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.sweep(); err != nil {
		return err
	}
	if err := r.pullEngine(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()
	for ctx.Err() == nil {
		r.Tick(ctx)
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}

	log.WithField("running", r.Running()).Info("draining")
	for r.Running() > 0 {
		<-ticker.C
		r.Tick(ctx)
	}
	r.flushResults()
	return r.sweep()
}

func (r *Runner) pullEngine(ctx context.Context) error {
	if r.cfg.EngineImage == "" {
		return errors.New("no engine image configured")
	}
	if err := r.sandbox.Pull(ctx, r.cfg.EngineImage); err != nil {
		return fmt.Errorf("failed to pull engine image: %w", err)
	}
	return nil
}

func (r *Runner) sweep() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := r.sandbox.Sweep(ctx, ManagedPrefix); err != nil {
		return fmt.Errorf("failed to sweep managed resources: %w", err)
	}
	return nil
}

// Tick runs one pass of the loop: post pending results, start new matches
// unless ctx is done, and poll the running ones.
func (r *Runner) Tick(ctx context.Context) {
	r.postResults()

	if ctx.Err() == nil {
		if n, ok := popSize(r.maxConcurrent, r.Running()); ok {
			r.pop(ctx, n)
		}
	}

	for _, run := range r.current {
		r.poll(run)
	}
}

// popSize is how many matches to ask for. It is at least one, unless the
// known cap is already reached.
func popSize(maxConcurrent, running int) (int, bool) {
	if maxConcurrent > 0 && running >= maxConcurrent {
		return 0, false
	}
	n := maxConcurrent - running
	if n < 1 {
		n = 1
	}
	return n, true
}

func (r *Runner) pop(ctx context.Context, n int) {
	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()
	resp, err := r.queue.Pop(reqCtx, n)
	if err != nil {
		log.WithError(err).Warn("failed to pop matches")
		return
	}
	if resp.MaxConcurrentMatch > 0 {
		r.maxConcurrent = resp.MaxConcurrentMatch
	}
	if resp.MatchTimeoutSeconds > 0 {
		r.timeout = time.Duration(resp.MatchTimeoutSeconds) * time.Second
	}
	if len(resp.Matches) > 0 {
		log.WithField("count", len(resp.Matches)).Info("popped matches")
	}
	for i := range resp.Matches {
		if ctx.Err() != nil {
			log.WithField("match", resp.Matches[i].ID).Warn("runner stopped before match started")
			r.queueResult(errorResult(&resp.Matches[i], stoppedMessage))
			continue
		}
		r.start(ctx, resp.Matches[i])
	}
}

const stoppedMessage = "runner stopped"

// start provisions both arenas of m and starts their games. On failure
// everything created so far is torn down and an error result is queued.
func (r *Runner) start(ctx context.Context, m api.Match) {
	run := &matchRun{
		match:     m,
		tag:       r.newID()[:8],
		seed:      r.newID(),
		startedAt: r.now(),
	}
	run.log = log.WithFields(log.Fields{"match": m.ID, "tag": run.tag})
	run.log.Info("starting match")

	for _, ref := range []string{m.ImageTeam1, m.ImageTeam2} {
		err := ctx.Err()
		if err == nil {
			err = r.sandbox.Pull(ctx, ref)
		}
		if ctx.Err() != nil {
			run.log.Warn("runner stopped while pulling images")
			r.queueResult(errorResult(&m, stoppedMessage))
			return
		}
		if err != nil {
			run.log.WithError(err).Error("failed to pull bot image")
			r.queueResult(errorResult(&m, fmt.Sprintf("failed to pull image %s", ref)))
			return
		}
	}

	team1 := Team{ID: m.Team1ID, Image: m.ImageTeam1}
	team2 := Team{ID: m.Team2ID, Image: m.ImageTeam2}
	run.arenas = []*Arena{
		{Index: 0, Offense: team1, Defense: team2},
		{Index: 1, Offense: team2, Defense: team1},
	}
	limits := r.host.PerContainer(r.maxConcurrent, r.cfg.ResourceFraction)
	for _, a := range run.arenas {
		if err := r.arenas.provision(ctx, run.tag, a, limits); err != nil {
			if ctx.Err() != nil {
				run.log.Warn("runner stopped while provisioning")
				r.abort(run, stoppedMessage)
				return
			}
			run.log.WithError(err).WithField("arena", a.Index).Error("failed to provision arena")
			r.abort(run, "failed to provision arena")
			return
		}
	}

	for _, a := range run.arenas {
		err := retry.Do(ctx, r.cfg.StartPolicy, func(ctx context.Context) error {
			reqCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
			defer cancel()
			return r.engines.RunGame(reqCtx, a.EngineURL,
				r.arenas.botURL(offenseHostname), r.arenas.botURL(defenseHostname), run.seed)
		})
		if err != nil && ctx.Err() != nil {
			run.log.Warn("runner stopped while starting games")
			r.abort(run, stoppedMessage)
			return
		}
		if err != nil {
			run.log.WithError(err).WithField("arena", a.Index).Error("failed to start game")
			r.abort(run, "failed to start games")
			return
		}
		a.Started = true
	}

	r.current[m.ID] = run
	run.log.WithField("limits", limits.String()).Info("match running")
}

func (r *Runner) abort(run *matchRun, message string) {
	r.teardown(run)
	r.queueResult(errorResult(&run.match, message))
}

// poll refreshes the status of each arena and resolves the match once both
// games are over or the match has expired. Expiry wins over everything.
func (r *Runner) poll(run *matchRun) {
	if r.now().Sub(run.startedAt) > r.timeout {
		run.log.Warn("match expired")
		r.finish(run, func() *api.GameResult {
			return detailedErrorResult(&run.match, "match expired", run.arenas)
		})
		return
	}

	over := true
	for _, a := range run.arenas {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.RequestTimeout)
		st, err := r.engines.Status(ctx, a.EngineURL)
		cancel()
		if err != nil {
			run.log.WithError(err).WithField("arena", a.Index).Debug("status unavailable")
		} else {
			a.Status = st
		}
		if a.Status == nil || !a.Status.IsOver {
			over = false
		}
	}
	if !over {
		return
	}

	r.finish(run, func() *api.GameResult {
		for _, a := range run.arenas {
			if a.Status.GameData == nil || a.Status.GameData.ErrorMessage != nil {
				return detailedErrorResult(&run.match, "game ended with an error", run.arenas)
			}
		}
		return successResult(&run.match, run.arenas)
	})
}

// finish tears the match down, then builds its result, so the result can
// carry the bots' logs.
func (r *Runner) finish(run *matchRun, result func() *api.GameResult) {
	delete(r.current, run.match.ID)
	r.teardown(run)
	res := result()
	run.log.WithFields(log.Fields{
		"error":  res.IsError,
		"team1":  res.Team1Score,
		"team2":  res.Team2Score,
		"winner": res.WinnerID != nil,
	}).Info("match finished")
	r.queueResult(res)
}

func (r *Runner) teardown(run *matchRun) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	for _, a := range run.arenas {
		r.arenas.teardown(ctx, a, run.log)
	}
}

func (r *Runner) queueResult(res *api.GameResult) {
	p := &pendingResult{result: res}
	if !r.post(p) {
		r.pending = append(r.pending, p)
	}
}

func (r *Runner) post(p *pendingResult) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.RequestTimeout)
	defer cancel()
	p.attempts++
	err := r.queue.AddResult(ctx, p.result)
	if err == nil {
		return true
	}
	entry := log.WithError(err).WithFields(log.Fields{"match": p.result.ID, "attempt": p.attempts})
	if p.attempts >= r.cfg.ResultAttempts {
		entry.Error("giving up on result")
		return true
	}
	entry.Warn("failed to post result")
	return false
}

// postResults retries results that failed to post on earlier ticks.
func (r *Runner) postResults() {
	kept := r.pending[:0]
	for _, p := range r.pending {
		if !r.post(p) {
			kept = append(kept, p)
		}
	}
	r.pending = kept
}

// flushResults retries pending results until each is posted or out of
// attempts.
func (r *Runner) flushResults() {
	for len(r.pending) > 0 {
		r.postResults()
		if len(r.pending) > 0 {
			time.Sleep(r.cfg.RequestTimeout)
		}
	}
}
