// Package config reads process settings from the environment, after
// loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/cmars/mazewar/engine"
	"github.com/cmars/mazewar/runner"
)

// Common settings shared by every binary.
type Common struct {
	Port     int
	LogLevel log.Level
}

// Apply sets the global logger level.
func (c Common) Apply() {
	log.SetLevel(c.LogLevel)
}

func (c Common) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

type Engine struct {
	Common
	Engine engine.Config
}

type Runner struct {
	Common
	ServerAddress string
	InternalKey   string
	Runner        runner.Config
}

type Bot struct {
	Common
}

// LoadDotenv loads files (.env by default) into the environment without
// overriding what is already set. Missing files are not an error.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); errors.Is(err, fs.ErrNotExist) {
			log.WithField("file", f).Debug("no env file")
		} else if err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func LoadEngine() (*Engine, error) {
	var e env
	cfg := &Engine{Common: e.common()}
	m := engine.DefaultConfig
	m.BotTimeout = e.duration("BOT_TIMEOUT", m.BotTimeout)
	m.RoundDelay = e.duration("ROUND_DELAY", m.RoundDelay)
	m.Match.VisionRadius = e.integer("VISION_RADIUS", m.Match.VisionRadius)
	m.Match.MaxMoves = e.integer("MAX_MOVES", m.Match.MaxMoves)
	m.Match.NWalls = e.integer("N_WALLS", m.Match.NWalls)
	m.Match.Generate.VisionPickups = e.integer("VISION_PICKUPS", m.Match.Generate.VisionPickups)
	cfg.Engine = m
	return cfg, e.err()
}

func LoadRunner() (*Runner, error) {
	var e env
	cfg := &Runner{
		Common:        e.common(),
		ServerAddress: e.str("SERVER_ADDRESS", "http://localhost:8000"),
		InternalKey:   e.required("INTERNAL_KEY"),
	}
	r := runner.DefaultConfig
	r.EngineImage = e.str("ENGINE_IMAGE", "mazewar/engine:latest")
	r.TickInterval = e.duration("TICK_INTERVAL", r.TickInterval)
	r.MatchTimeout = e.duration("MATCH_TIMEOUT", r.MatchTimeout)
	r.RequestTimeout = e.duration("REQUEST_TIMEOUT", r.RequestTimeout)
	r.EngineHost = e.str("ENGINE_HOST", r.EngineHost)
	r.BotPort = e.integer("BOT_PORT", r.BotPort)
	r.MaxLogs = e.integer("MAX_LOGS", r.MaxLogs)
	r.MaxLogLine = e.integer("MAX_LOG_LINE", r.MaxLogLine)
	r.ResourceFraction = e.float("RESOURCE_FRACTION", r.ResourceFraction)
	if r.ResourceFraction <= 0 || r.ResourceFraction > 1 {
		e.fail("RESOURCE_FRACTION", fmt.Errorf("%v is outside (0, 1]", r.ResourceFraction))
	}
	cfg.Runner = r
	return cfg, e.err()
}

func LoadBot() (*Bot, error) {
	var e env
	cfg := &Bot{Common: e.common()}
	return cfg, e.err()
}

// env collects every bad variable instead of stopping at the first.
type env struct {
	errs []error
}

func (e *env) fail(key string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
}

func (e *env) err() error {
	return errors.Join(e.errs...)
}

func (e *env) common() Common {
	c := Common{Port: e.integer("PORT", 5000), LogLevel: log.InfoLevel}
	if s, ok := os.LookupEnv("LOG_LEVEL"); ok && s != "" {
		lvl, err := log.ParseLevel(s)
		if err != nil {
			e.fail("LOG_LEVEL", err)
		} else {
			c.LogLevel = lvl
		}
	}
	if os.Getenv("MODE") == "debug" {
		c.LogLevel = log.DebugLevel
	}
	return c
}

func (e *env) str(key, def string) string {
	if s, ok := os.LookupEnv(key); ok && s != "" {
		return s
	}
	return def
}

func (e *env) required(key string) string {
	s := os.Getenv(key)
	if s == "" {
		e.fail(key, errors.New("not set"))
	}
	return s
}

func (e *env) integer(key string, def int) int {
	s, ok := os.LookupEnv(key)
	if !ok || s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	s, ok := os.LookupEnv(key)
	if !ok || s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return f
}

// duration accepts Go durations ("1500ms") or a bare number of seconds.
func (e *env) duration(key string, def time.Duration) time.Duration {
	s, ok := os.LookupEnv(key)
	if !ok || s == "" {
		return def
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return d
}
