package runner

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/cmars/mazewar/alloc"
	"github.com/cmars/mazewar/api"
	"github.com/cmars/mazewar/retry"
)

var testMatch = api.Match{
	ID:         "m1",
	Team1ID:    "t1",
	Team2ID:    "t2",
	ImageTeam1: "team1/bot",
	ImageTeam2: "team2/bot",
}

type testRig struct {
	runner  *Runner
	sandbox *fakeSandbox
	engines *fakeEngines
	queue   *fakeQueue
	now     time.Time
}

func newTestRig(q *fakeQueue) *testRig {
	cfg := DefaultConfig
	cfg.EngineImage = "mazewar/engine"
	cfg.TickInterval = time.Millisecond
	cfg.StartPolicy = retry.Policy{Attempts: 2}
	cfg.ResultAttempts = 3

	rig := &testRig{
		sandbox: newFakeSandbox(),
		engines: newFakeEngines(),
		queue:   q,
		now:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	host := alloc.Host{CPUs: 8, MemoryBytes: 8 << 30}
	rig.runner = New(cfg, q, rig.engines, rig.sandbox, host)
	rig.runner.now = func() time.Time { return rig.now }
	n := 0
	rig.runner.newID = func() string {
		n++
		return fmt.Sprintf("%08d-test", n)
	}
	return rig
}

func over(score float64, errMsg string) *api.Status {
	st := &api.Status{
		IsOver: true,
		Score:  score,
		GameData: &api.GameData{
			Seed:         "00000002-test",
			MaxMoveCount: 80,
			Steps:        []api.Step{{Round: 0}, {Round: 1}},
		},
	}
	if errMsg != "" {
		st.GameData.ErrorMessage = &errMsg
	}
	return st
}

func decodePayload(c *qt.C, s *string, v interface{}) {
	c.Assert(s, qt.Not(qt.IsNil))
	b, err := base64.StdEncoding.DecodeString(*s)
	c.Assert(err, qt.IsNil)
	c.Assert(json.Unmarshal(b, v), qt.IsNil)
}

func (rig *testRig) assertClean(c *qt.C) {
	c.Assert(rig.sandbox.containers, qt.HasLen, 0)
	c.Assert(rig.sandbox.networks, qt.HasLen, 0)
	c.Assert(rig.runner.arenas.subnets.InUse(), qt.Equals, 0)
	c.Assert(rig.runner.Running(), qt.Equals, 0)
}

func TestPopSize(t *testing.T) {
	c := qt.New(t)
	for _, tc := range []struct {
		max, running, n int
		ok              bool
	}{
		{0, 0, 1, true},
		{0, 3, 1, true},
		{4, 1, 3, true},
		{4, 4, 0, false},
		{2, 5, 0, false},
	} {
		n, ok := popSize(tc.max, tc.running)
		c.Assert(n, qt.Equals, tc.n, qt.Commentf("%+v", tc))
		c.Assert(ok, qt.Equals, tc.ok, qt.Commentf("%+v", tc))
	}
}

func TestTruncateLogs(t *testing.T) {
	c := qt.New(t)
	lines := []string{"one", "two", "three", "a long line"}
	c.Assert(truncateLogs(lines, 2, 4), qt.DeepEquals, []string{"thre", "a lo"})
	c.Assert(truncateLogs(nil, 2, 4), qt.DeepEquals, []string{})
}

func TestMatchPlayed(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	rig := newTestRig(&fakeQueue{matches: [][]api.Match{{testMatch}}, maxConcurrent: 2, timeout: 60})
	rig.sandbox.logs["team1/bot"] = []string{"hello"}

	rig.runner.Tick(ctx)
	c.Assert(rig.runner.Running(), qt.Equals, 1)
	c.Assert(rig.sandbox.pulled, qt.DeepEquals, []string{"team1/bot", "team2/bot"})
	c.Assert(rig.sandbox.containers, qt.HasLen, 6)
	c.Assert(rig.sandbox.networks, qt.HasLen, 4)
	for _, n := range rig.sandbox.networks {
		c.Assert(n.Internal, qt.IsTrue)
	}

	for _, image := range []string{"team1/bot", "team2/bot"} {
		bots := rig.sandbox.byImage(image)
		c.Assert(bots, qt.HasLen, 2)
		hostnames := map[string]bool{}
		for _, b := range bots {
			hostnames[b.spec.Hostname] = true
			c.Assert(b.networks, qt.HasLen, 1)
			c.Assert(b.spec.Limits.NanoCPUs, qt.Equals, int64(1e9))
			c.Assert(b.spec.Limits.MemoryBytes, qt.Equals, int64(1<<30))
			c.Assert(b.spec.Env, qt.DeepEquals, []string{"PORT=5000"})
		}
		c.Assert(hostnames, qt.DeepEquals, map[string]bool{"offense": true, "defense": true})
	}
	engines := rig.sandbox.byImage("mazewar/engine")
	c.Assert(engines, qt.HasLen, 2)
	for _, e := range engines {
		c.Assert(e.networks, qt.HasLen, 2)
		c.Assert(e.spec.Publish, qt.Not(qt.IsNil))
	}

	calls := rig.engines.calls
	c.Assert(calls, qt.HasLen, 2)
	c.Assert(calls[0].engineURL, qt.Not(qt.Equals), calls[1].engineURL)
	c.Assert(calls[0].seed, qt.Equals, calls[1].seed)
	for _, call := range calls {
		c.Assert(call.offenseURL, qt.Equals, "http://offense:5000")
		c.Assert(call.defenseURL, qt.Equals, "http://defense:5000")
	}

	rig.runner.Tick(ctx)
	c.Assert(rig.queue.results, qt.HasLen, 0)

	rig.engines.set(0, over(30, ""))
	rig.engines.set(1, over(12, ""))
	rig.runner.Tick(ctx)
	c.Assert(rig.queue.pops, qt.DeepEquals, []int{1, 1, 1})
	c.Assert(rig.queue.results, qt.HasLen, 1)
	res := rig.queue.results[0]
	c.Assert(res.ID, qt.Equals, "m1")
	c.Assert(res.IsError, qt.IsFalse)
	c.Assert(res.WinnerID, qt.Not(qt.IsNil))
	c.Assert(*res.WinnerID, qt.Equals, "t1")
	c.Assert(res.Team1Score, qt.Equals, 30.0)
	c.Assert(res.Team2Score, qt.Equals, 12.0)
	c.Assert(res.ErrorData, qt.IsNil)

	var data GameData
	decodePayload(c, res.GameData, &data)
	c.Assert(data.Games, qt.HasLen, 2)
	c.Assert(data.Games[0].OffenseTeamID, qt.Equals, "t1")
	c.Assert(data.Games[0].DefenseTeamID, qt.Equals, "t2")
	c.Assert(data.Games[1].OffenseTeamID, qt.Equals, "t2")
	c.Assert(data.Games[0].Steps, qt.HasLen, 2)
	c.Assert(data.Games[1].MaxMoveCount, qt.Equals, 80)
	rig.assertClean(c)
}

func TestMatchTie(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	rig := newTestRig(&fakeQueue{matches: [][]api.Match{{testMatch}}})
	rig.runner.Tick(ctx)
	rig.engines.set(0, over(10, ""))
	rig.engines.set(1, over(10, ""))
	rig.runner.Tick(ctx)

	c.Assert(rig.queue.results, qt.HasLen, 1)
	res := rig.queue.results[0]
	c.Assert(res.IsError, qt.IsFalse)
	c.Assert(res.WinnerID, qt.IsNil)
	c.Assert(res.Team1Score, qt.Equals, res.Team2Score)
}

func TestGameErrorReported(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	rig := newTestRig(&fakeQueue{matches: [][]api.Match{{testMatch}}})
	rig.sandbox.logs["team1/bot"] = []string{"listening", "panic"}
	rig.runner.Tick(ctx)
	rig.engines.set(0, over(30, ""))
	rig.engines.set(1, over(0, "defense bot failed to start"))
	rig.runner.Tick(ctx)

	c.Assert(rig.queue.results, qt.HasLen, 1)
	res := rig.queue.results[0]
	c.Assert(res.IsError, qt.IsTrue)
	c.Assert(res.WinnerID, qt.IsNil)
	c.Assert(res.GameData, qt.IsNil)

	var data ErrorData
	decodePayload(c, res.ErrorData, &data)
	c.Assert(data.Message, qt.Equals, "game ended with an error")
	c.Assert(data.Arenas, qt.HasLen, 2)
	c.Assert(data.Arenas[0].EngineError, qt.IsNil)
	c.Assert(data.Arenas[0].OffenseLogs, qt.DeepEquals, []string{"listening", "panic"})
	c.Assert(data.Arenas[0].DefenseLogs, qt.DeepEquals, []string{})
	c.Assert(*data.Arenas[1].EngineError, qt.Equals, "defense bot failed to start")
	c.Assert(data.Arenas[1].DefenseTeamID, qt.Equals, "t1")
	c.Assert(data.Arenas[1].DefenseLogs, qt.DeepEquals, []string{"listening", "panic"})
	rig.assertClean(c)
}

func TestMatchExpires(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	rig := newTestRig(&fakeQueue{matches: [][]api.Match{{testMatch}}, timeout: 60})
	rig.runner.Tick(ctx)
	rig.engines.set(0, over(30, ""))
	rig.engines.fail(1, errors.New("engine crashed"))

	rig.runner.Tick(ctx)
	c.Assert(rig.queue.results, qt.HasLen, 0)
	c.Assert(rig.runner.Running(), qt.Equals, 1)

	rig.now = rig.now.Add(61 * time.Second)
	rig.runner.Tick(ctx)
	c.Assert(rig.queue.results, qt.HasLen, 1)
	res := rig.queue.results[0]
	c.Assert(res.IsError, qt.IsTrue)
	c.Assert(res.WinnerID, qt.IsNil)

	var data ErrorData
	decodePayload(c, res.ErrorData, &data)
	c.Assert(data.Message, qt.Equals, "match expired")
	c.Assert(data.Arenas, qt.HasLen, 2)
	rig.assertClean(c)
}

func TestProvisionFailureTearsDown(t *testing.T) {
	c := qt.New(t)
	rig := newTestRig(&fakeQueue{matches: [][]api.Match{{testMatch}}})
	rig.sandbox.runErr["team2/bot"] = errors.New("no such image")
	rig.runner.Tick(context.Background())

	c.Assert(rig.engines.calls, qt.HasLen, 0)
	c.Assert(rig.queue.results, qt.HasLen, 1)
	res := rig.queue.results[0]
	c.Assert(res.IsError, qt.IsTrue)
	var data ErrorData
	decodePayload(c, res.ErrorData, &data)
	c.Assert(data.Message, qt.Equals, "failed to provision arena")
	rig.assertClean(c)
}

func TestPullFailure(t *testing.T) {
	c := qt.New(t)
	rig := newTestRig(&fakeQueue{matches: [][]api.Match{{testMatch}}})
	rig.sandbox.pullErr["team2/bot"] = errors.New("denied")
	rig.runner.Tick(context.Background())

	c.Assert(rig.queue.results, qt.HasLen, 1)
	var data ErrorData
	decodePayload(c, rig.queue.results[0].ErrorData, &data)
	c.Assert(data.Message, qt.Equals, "failed to pull image team2/bot")
	rig.assertClean(c)
}

func TestStartFailure(t *testing.T) {
	c := qt.New(t)
	rig := newTestRig(&fakeQueue{matches: [][]api.Match{{testMatch}}})
	rig.engines.runErr = errors.New("connection refused")
	rig.runner.Tick(context.Background())

	c.Assert(rig.queue.results, qt.HasLen, 1)
	var data ErrorData
	decodePayload(c, rig.queue.results[0].ErrorData, &data)
	c.Assert(data.Message, qt.Equals, "failed to start games")
	rig.assertClean(c)
}

func TestConcurrencyCap(t *testing.T) {
	c := qt.New(t)
	other := testMatch
	other.ID = "m2"
	rig := newTestRig(&fakeQueue{matches: [][]api.Match{{testMatch}, {other}}, maxConcurrent: 1})
	rig.runner.Tick(context.Background())
	rig.runner.Tick(context.Background())
	c.Assert(rig.queue.pops, qt.DeepEquals, []int{1})
	c.Assert(rig.runner.Running(), qt.Equals, 1)
}

func TestCanceledTickOnlyPolls(t *testing.T) {
	c := qt.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	rig := newTestRig(&fakeQueue{matches: [][]api.Match{{testMatch}}})
	rig.runner.Tick(ctx)
	cancel()

	rig.engines.set(0, over(5, ""))
	rig.engines.set(1, over(7, ""))
	rig.runner.Tick(ctx)
	c.Assert(rig.queue.pops, qt.HasLen, 1)
	c.Assert(rig.queue.results, qt.HasLen, 1)
	c.Assert(*rig.queue.results[0].WinnerID, qt.Equals, "t2")
}

func TestResultRetried(t *testing.T) {
	c := qt.New(t)
	rig := newTestRig(&fakeQueue{matches: [][]api.Match{{testMatch}}, addFailures: 1})
	rig.sandbox.pullErr["team1/bot"] = errors.New("denied")
	rig.runner.Tick(context.Background())
	c.Assert(rig.queue.results, qt.HasLen, 0)
	c.Assert(rig.runner.pending, qt.HasLen, 1)

	rig.runner.Tick(context.Background())
	c.Assert(rig.queue.results, qt.HasLen, 1)
	c.Assert(rig.runner.pending, qt.HasLen, 0)
}

func TestResultAbandoned(t *testing.T) {
	c := qt.New(t)
	rig := newTestRig(&fakeQueue{matches: [][]api.Match{{testMatch}}, addFailures: 10})
	rig.sandbox.pullErr["team1/bot"] = errors.New("denied")
	for i := 0; i < 3; i++ {
		rig.runner.Tick(context.Background())
	}
	c.Assert(rig.runner.pending, qt.HasLen, 0)
	c.Assert(rig.queue.results, qt.HasLen, 0)
	c.Assert(rig.queue.addFailures, qt.Equals, 7)
}

func TestRunStopsWhenCanceled(t *testing.T) {
	c := qt.New(t)
	rig := newTestRig(&fakeQueue{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Assert(rig.runner.Run(ctx), qt.IsNil)
	c.Assert(rig.sandbox.swept, qt.Equals, 2)
	c.Assert(rig.sandbox.pulled, qt.DeepEquals, []string{"mazewar/engine"})
	c.Assert(rig.queue.pops, qt.HasLen, 0)
}

func TestRunDrainsMatches(t *testing.T) {
	c := qt.New(t)
	rig := newTestRig(&fakeQueue{matches: [][]api.Match{{testMatch}}, timeout: 60})
	ctx, cancel := context.WithCancel(context.Background())
	rig.runner.Tick(ctx)
	cancel()

	// Neither game ever ends, so the match is resolved by expiry.
	rig.now = rig.now.Add(time.Hour)
	c.Assert(rig.runner.Run(ctx), qt.IsNil)
	c.Assert(rig.queue.results, qt.HasLen, 1)
	c.Assert(rig.queue.results[0].IsError, qt.IsTrue)
	rig.assertClean(c)
}

func TestRunRequiresEngineImage(t *testing.T) {
	c := qt.New(t)
	rig := newTestRig(&fakeQueue{})
	rig.runner.cfg.EngineImage = ""
	c.Assert(rig.runner.Run(context.Background()), qt.ErrorMatches, "no engine image configured")
}

func TestStopMidBatch(t *testing.T) {
	c := qt.New(t)
	other := api.Match{ID: "m2", Team1ID: "t3", Team2ID: "t4", ImageTeam1: "team3/bot", ImageTeam2: "team4/bot"}
	rig := newTestRig(&fakeQueue{matches: [][]api.Match{{testMatch, other}}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The stop arrives once the first match has both games running.
	rig.engines.onRun = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	rig.runner.Tick(ctx)

	c.Assert(rig.runner.Running(), qt.Equals, 1)
	c.Assert(rig.sandbox.pulled, qt.DeepEquals, []string{"team1/bot", "team2/bot"})
	c.Assert(rig.queue.results, qt.HasLen, 1)
	res := rig.queue.results[0]
	c.Assert(res.ID, qt.Equals, "m2")
	c.Assert(res.IsError, qt.IsTrue)
	var data ErrorData
	decodePayload(c, res.ErrorData, &data)
	c.Assert(data.Message, qt.Equals, "runner stopped")
}

func TestStopWhilePulling(t *testing.T) {
	c := qt.New(t)
	rig := newTestRig(&fakeQueue{matches: [][]api.Match{{testMatch}}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rig.sandbox.onPull = func(image string) error {
		cancel()
		return context.Canceled
	}
	rig.runner.Tick(ctx)

	c.Assert(rig.queue.results, qt.HasLen, 1)
	var data ErrorData
	decodePayload(c, rig.queue.results[0].ErrorData, &data)
	c.Assert(data.Message, qt.Equals, "runner stopped")
	rig.assertClean(c)
}
