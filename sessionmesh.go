// Package sessionmesh provides the facade a host runtime talks to when it
// stores sessions through a chain of cooperating handlers. Most
// applications interact with this package by:
//  1. Creating a Manager via New() or Initialize()
//  2. Registering a canonical store and any decorators via AddHandler
//  3. Letting the host runtime call Open/Read/Write/Destroy/GC/Close
//
// The Manager delegates every lifecycle call to the top of the matching
// core.Chain sequence and refuses to mutate the chain while a call is in
// flight.
package sessionmesh

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/sessionmesh/core"
	"github.com/hupe1980/sessionmesh/logging"
)

// Backend is the session lifecycle contract a host runtime dispatches to.
type Backend interface {
	Open(savePath, name string) bool
	Close() bool
	Read(id string) string
	Write(id, data string) bool
	Destroy(id string) bool
	GC(maxLifetime int) bool
}

// Host is a runtime that dispatches session lifecycle callbacks to the
// Backend installed via SetSaveHandler.
type Host interface {
	SetSaveHandler(b Backend)
}

// Options configures a Manager.
type Options struct {
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Manager owns one handler chain and guards it against mutation while a
// lifecycle call is in flight. It is safe for concurrent use: invocations
// snapshot the top entry under a mutex and traverse the immutable entries
// without holding it.
type Manager struct {
	mu       sync.Mutex
	chain    *core.Chain
	inFlight int
	logger   logging.Logger
}

var _ Backend = (*Manager)(nil)

// New creates a Manager with an unseeded chain. The chain is seeded with
// core.Terminal on first use.
func New(optFns ...func(o *Options)) *Manager {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{chain: core.NewChain(), logger: logging.OrNoOp(opts.Logger)}
}

var active atomic.Pointer[Manager]

// Initialize creates and seeds a new Manager, makes it the process-wide
// active instance and installs it on host (when non-nil). Calling it again
// replaces the active instance; handlers registered on the previous one do
// not carry over.
func Initialize(host Host, optFns ...func(o *Options)) *Manager {
	m := New(optFns...)
	_ = m.chain.Seed() // fresh chain, cannot be seeded yet
	active.Store(m)
	if host != nil {
		host.SetSaveHandler(m)
	}
	m.logger.Debug("session manager initialized")
	return m
}

// Active returns the Manager installed by the most recent Initialize call,
// or nil.
func Active() *Manager {
	return active.Load()
}

// AddHandler registers handlers in order; the last one becomes the top of
// every sequence and runs first. It fails with core.ErrLocked while a
// lifecycle call is in flight, before any handler is registered.
func (m *Manager) AddHandler(handlers ...core.Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inFlight > 0 {
		return fmt.Errorf("add handler: %w", core.ErrLocked)
	}
	for _, h := range handlers {
		if h == nil {
			return fmt.Errorf("add handler: %w", core.ErrNilHandler)
		}
	}
	for _, h := range handlers {
		_ = m.chain.Push(h) // non-nil, checked above
		m.logger.Debug("session handler registered", "handler", fmt.Sprintf("%T", h), "handlers", m.chain.Handlers())
	}
	return nil
}

// Handlers returns the number of registered handlers, core.Terminal excluded.
func (m *Manager) Handlers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chain.Handlers()
}

// enter seeds the chain if needed, marks a call in flight and returns the
// top entry of op's sequence.
func (m *Manager) enter(op core.Op) *core.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.chain.Seeded() {
		_ = m.chain.Seed()
	}
	m.inFlight++
	return m.chain.Top(op)
}

func (m *Manager) leave() {
	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()
}

// Open prepares storage for a named session space.
func (m *Manager) Open(savePath, name string) bool {
	top := m.enter(core.OpCreate)
	defer m.leave()
	return top.Create(savePath, name)
}

// Read returns the serialized payload of a session, or "" when none exists.
func (m *Manager) Read(id string) string {
	top := m.enter(core.OpRead)
	defer m.leave()
	return top.Read(id)
}

// Write stores the serialized payload of a session.
func (m *Manager) Write(id, data string) bool {
	top := m.enter(core.OpWrite)
	defer m.leave()
	return top.Write(id, data)
}

// Destroy permanently removes a session.
func (m *Manager) Destroy(id string) bool {
	top := m.enter(core.OpDelete)
	defer m.leave()
	return top.Delete(id)
}

// GC purges sessions older than maxLifetime seconds.
func (m *Manager) GC(maxLifetime int) bool {
	top := m.enter(core.OpClean)
	defer m.leave()
	return top.Clean(maxLifetime)
}

// Close detaches every registered handler, closing those that implement
// io.Closer, and always returns true. Teardown failures are logged. The
// next lifecycle call reseeds the chain with core.Terminal only.
func (m *Manager) Close() bool {
	m.mu.Lock()
	m.inFlight++
	detached := m.chain
	m.chain = core.NewChain()
	m.mu.Unlock()
	defer m.leave()

	n := detached.Handlers()
	if err := detached.Drain(); err != nil {
		m.logger.Error("session handler teardown failed", "error", err)
	}
	m.logger.Debug("session manager closed", "detached", n)
	return true
}
