package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cmars/mazewar/api"
	"github.com/cmars/mazewar/sandbox"
)

type fakeContainer struct {
	spec     sandbox.ContainerSpec
	networks []string
	stopped  bool
}

// fakeSandbox keeps containers and networks in memory.
type fakeSandbox struct {
	nextID     int
	containers map[string]*fakeContainer
	networks   map[string]sandbox.NetworkSpec
	pulled     []string
	swept      int

	pullErr map[string]error
	// onPull runs before each pull; a non-nil error fails it.
	onPull func(image string) error
	// runErr fails Run for containers of this image.
	runErr map[string]error
	logs   map[string][]string
}

func newFakeSandbox() *fakeSandbox {
	return &fakeSandbox{
		containers: map[string]*fakeContainer{},
		networks:   map[string]sandbox.NetworkSpec{},
		pullErr:    map[string]error{},
		runErr:     map[string]error{},
		logs:       map[string][]string{},
	}
}

func (s *fakeSandbox) id(kind string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", kind, s.nextID)
}

func (s *fakeSandbox) Pull(ctx context.Context, image string) error {
	if s.onPull != nil {
		if err := s.onPull(image); err != nil {
			return err
		}
	}
	if err := s.pullErr[image]; err != nil {
		return err
	}
	s.pulled = append(s.pulled, image)
	return nil
}

func (s *fakeSandbox) CreateNetwork(ctx context.Context, spec sandbox.NetworkSpec) (string, error) {
	id := s.id("net")
	s.networks[id] = spec
	return id, nil
}

func (s *fakeSandbox) RemoveNetwork(ctx context.Context, id string) error {
	if _, ok := s.networks[id]; !ok {
		return sandbox.ErrNotFound
	}
	delete(s.networks, id)
	return nil
}

func (s *fakeSandbox) Run(ctx context.Context, spec sandbox.ContainerSpec) (*sandbox.Container, error) {
	if err := s.runErr[spec.Image]; err != nil {
		return nil, err
	}
	id := s.id("ctr")
	fc := &fakeContainer{spec: spec}
	if spec.Network != "" {
		fc.networks = append(fc.networks, spec.Network)
	}
	s.containers[id] = fc
	c := &sandbox.Container{ID: id, Name: spec.Name}
	if spec.Publish != nil {
		c.HostPort = 40000 + s.nextID
	}
	return c, nil
}

func (s *fakeSandbox) Connect(ctx context.Context, networkID, containerID string, aliases ...string) error {
	fc, ok := s.containers[containerID]
	if !ok {
		return sandbox.ErrNotFound
	}
	fc.networks = append(fc.networks, networkID)
	return nil
}

func (s *fakeSandbox) Stop(ctx context.Context, id string, timeout time.Duration) error {
	fc, ok := s.containers[id]
	if !ok {
		return sandbox.ErrNotFound
	}
	fc.stopped = true
	return nil
}

func (s *fakeSandbox) Remove(ctx context.Context, id string) error {
	if _, ok := s.containers[id]; !ok {
		return sandbox.ErrNotFound
	}
	delete(s.containers, id)
	return nil
}

func (s *fakeSandbox) Logs(ctx context.Context, id string, tail int) ([]string, error) {
	fc, ok := s.containers[id]
	if !ok {
		return nil, sandbox.ErrNotFound
	}
	return s.logs[fc.spec.Image], nil
}

func (s *fakeSandbox) Sweep(ctx context.Context, prefix string) error {
	s.swept++
	return nil
}

func (s *fakeSandbox) byImage(image string) []*fakeContainer {
	var out []*fakeContainer
	for _, fc := range s.containers {
		if fc.spec.Image == image {
			out = append(out, fc)
		}
	}
	return out
}

type runGameCall struct {
	engineURL, offenseURL, defenseURL, seed string
}

// fakeEngines answers for every engine the runner starts. Statuses are set
// per engine in the order games were started.
type fakeEngines struct {
	mu        sync.Mutex
	calls     []runGameCall
	runErr    error
	statuses  map[string]*api.Status
	statusErr map[string]error

	// onRun is called after each started game with the number started.
	onRun func(n int)
}

func newFakeEngines() *fakeEngines {
	return &fakeEngines{statuses: map[string]*api.Status{}, statusErr: map[string]error{}}
}

func (e *fakeEngines) RunGame(ctx context.Context, engineURL, offenseURL, defenseURL, seed string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runErr != nil {
		return e.runErr
	}
	e.calls = append(e.calls, runGameCall{engineURL, offenseURL, defenseURL, seed})
	e.statuses[engineURL] = &api.Status{IsRunning: true}
	if e.onRun != nil {
		e.onRun(len(e.calls))
	}
	return nil
}

func (e *fakeEngines) Status(ctx context.Context, engineURL string) (*api.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.statusErr[engineURL]; err != nil {
		return nil, err
	}
	st, ok := e.statuses[engineURL]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return st, nil
}

// set replaces the status of the i-th started game.
func (e *fakeEngines) set(i int, st *api.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses[e.calls[i].engineURL] = st
}

func (e *fakeEngines) fail(i int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statusErr[e.calls[i].engineURL] = err
}

type fakeQueue struct {
	matches       [][]api.Match
	maxConcurrent int
	timeout       int
	pops          []int
	results       []*api.GameResult
	addFailures   int
}

func (q *fakeQueue) Pop(ctx context.Context, n int) (*api.PopResponse, error) {
	q.pops = append(q.pops, n)
	resp := &api.PopResponse{MaxConcurrentMatch: q.maxConcurrent, MatchTimeoutSeconds: q.timeout}
	if len(q.matches) > 0 {
		resp.Matches = q.matches[0]
		q.matches = q.matches[1:]
	}
	return resp, nil
}

func (q *fakeQueue) AddResult(ctx context.Context, result *api.GameResult) error {
	if q.addFailures > 0 {
		q.addFailures--
		return errors.New("queue unavailable")
	}
	q.results = append(q.results, result)
	return nil
}
