// Package httpsession is an HTTP host runtime for sessionmesh. A Runtime
// receives the session Backend through SetSaveHandler and drives it from
// net/http: Middleware loads the session named by a cookie before the
// request and writes it back afterwards, and NewRouter exposes an admin
// API over the same Backend.
package httpsession

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/sessionmesh"
	"github.com/hupe1980/sessionmesh/logging"
)

var (
	// ErrNoBackend is returned while no Backend has been installed.
	ErrNoBackend = errors.New("no session backend installed")
	// ErrOpen is returned when the Backend refuses to open the session space.
	ErrOpen = errors.New("session backend failed to open")
)

// Options configures a Runtime.
type Options struct {
	// SavePath is passed to Backend.Open.
	SavePath string
	// Name is passed to Backend.Open (defaults to "SESSIONMESH").
	Name string
	// CookieName carries the session id (defaults to "SESSIONMESHID").
	CookieName string
	// MaxLifetime is passed to Backend.GC (defaults to 24m).
	MaxLifetime time.Duration
	// GCProbability is the chance that a request triggers GC.
	GCProbability float64
	// NewID generates session ids (defaults to uuid.NewString).
	NewID func() string
	// Rand returns a number in [0, 1) for the GC draw (defaults to rand.Float64).
	Rand func() float64
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Runtime is a sessionmesh.Host serving sessions over HTTP.
type Runtime struct {
	mu      sync.RWMutex
	backend sessionmesh.Backend

	opts   Options
	logger logging.Logger
}

var _ sessionmesh.Host = (*Runtime)(nil)

// NewRuntime creates a Runtime without a Backend.
func NewRuntime(optFns ...func(o *Options)) *Runtime {
	opts := Options{
		Name:        "SESSIONMESH",
		CookieName:  "SESSIONMESHID",
		MaxLifetime: 24 * time.Minute,
		NewID:       uuid.NewString,
		Rand:        rand.Float64,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Runtime{opts: opts, logger: logging.OrNoOp(opts.Logger)}
}

// SetSaveHandler installs b, replacing any previous Backend.
func (rt *Runtime) SetSaveHandler(b sessionmesh.Backend) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.backend = b
}

// Backend returns the installed Backend, or nil.
func (rt *Runtime) Backend() sessionmesh.Backend {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.backend
}

// Start opens the session space on the installed Backend.
func (rt *Runtime) Start() error {
	b := rt.Backend()
	if b == nil {
		return ErrNoBackend
	}
	if !b.Open(rt.opts.SavePath, rt.opts.Name) {
		return ErrOpen
	}
	rt.logger.Info("session runtime started", "save_path", rt.opts.SavePath, "name", rt.opts.Name)
	return nil
}

// Stop closes the installed Backend.
func (rt *Runtime) Stop() error {
	b := rt.Backend()
	if b == nil {
		return ErrNoBackend
	}
	b.Close()
	rt.logger.Info("session runtime stopped")
	return nil
}

// maxLifetimeSeconds converts the configured lifetime for Backend.GC. A
// lifetime under one second is raised to one; GC(0) would purge every session.
func (rt *Runtime) maxLifetimeSeconds() int {
	return max(int(rt.opts.MaxLifetime/time.Second), 1)
}

// sessionLogger scopes the runtime logger to one session id. A ChainLogger
// records it as session_id; other loggers get an "id" attribute.
func (rt *Runtime) sessionLogger(id string) logging.Logger {
	if cl, ok := rt.logger.(*logging.ChainLogger); ok {
		return cl.WithSession(id)
	}
	return idLogger{Logger: rt.logger, id: id}
}

type idLogger struct {
	logging.Logger
	id string
}

func (l idLogger) Debug(msg string, args ...any) { l.Logger.Debug(msg, l.with(args)...) }
func (l idLogger) Info(msg string, args ...any) { l.Logger.Info(msg, l.with(args)...) }
func (l idLogger) Warn(msg string, args ...any) { l.Logger.Warn(msg, l.with(args)...) }
func (l idLogger) Error(msg string, args ...any) { l.Logger.Error(msg, l.with(args)...) }

func (l idLogger) with(args []any) []any {
	return append([]any{"id", l.id}, args...)
}

// maybeGC runs GC with the configured probability.
func (rt *Runtime) maybeGC(b sessionmesh.Backend) {
	if rt.opts.GCProbability <= 0 || rt.opts.Rand() >= rt.opts.GCProbability {
		return
	}
	if !b.GC(rt.maxLifetimeSeconds()) {
		rt.logger.Warn("session gc failed", "max_lifetime", rt.maxLifetimeSeconds())
	}
}
