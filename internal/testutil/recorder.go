package testutil

import (
	"fmt"
	"sync"

	"github.com/hupe1980/sessionmesh/core"
)

// CallLog is an ordered, goroutine-safe record of "name.op" strings shared
// by several recorders so tests can assert traversal order across a chain.
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

// NewCallLog returns an empty log.
func NewCallLog() *CallLog { return &CallLog{} }

// Add appends an entry.
func (l *CallLog) Add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, entry)
}

// Calls returns a copy of the recorded entries.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// Reset clears the log.
func (l *CallLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
}

// Recorder is a core.Handler that logs every call and either delegates to
// its continuation or short-circuits with configured results.
//
// Example:
//
//	log := testutil.NewCallLog()
//	h := testutil.NewRecorder("h1", log).Delegating()
type Recorder struct {
	name     string
	log      *CallLog
	delegate bool
	readData string
	result   bool
	hook     func(op core.Op)

	mu     sync.Mutex
	counts map[core.Op]int
	closed int
	last   map[core.Op][]any
}

var _ core.Handler = (*Recorder)(nil)

// NewRecorder creates a short-circuiting recorder returning true for every
// boolean operation and "" for reads.
func NewRecorder(name string, log *CallLog) *Recorder {
	if log == nil {
		log = NewCallLog()
	}
	return &Recorder{name: name, log: log, result: true, counts: map[core.Op]int{}, last: map[core.Op][]any{}}
}

// Delegating makes the recorder call its continuation and return the
// continuation's result (chainable).
func (r *Recorder) Delegating() *Recorder { r.delegate = true; return r }

// ReadReturns sets the payload returned by a short-circuiting Read (chainable).
func (r *Recorder) ReadReturns(data string) *Recorder { r.readData = data; return r }

// Returns sets the result of short-circuiting boolean operations (chainable).
func (r *Recorder) Returns(ok bool) *Recorder { r.result = ok; return r }

// OnCall installs a hook that runs before the recorder does anything else
// (chainable).
func (r *Recorder) OnCall(fn func(op core.Op)) *Recorder { r.hook = fn; return r }

// Count returns how often op was invoked on this recorder.
func (r *Recorder) Count(op core.Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[op]
}

// Total returns the number of invocations across all operations.
func (r *Recorder) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.counts {
		n += c
	}
	return n
}

// LastArgs returns the arguments of the most recent op invocation.
func (r *Recorder) LastArgs(op core.Op) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last[op]
}

// Closed returns how many times Close was called.
func (r *Recorder) Closed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Recorder) record(op core.Op, args ...any) {
	r.mu.Lock()
	r.counts[op]++
	r.last[op] = args
	r.mu.Unlock()
	r.log.Add(fmt.Sprintf("%s.%s", r.name, op))
	if r.hook != nil {
		r.hook(op)
	}
}

// Create implements core.Handler.
func (r *Recorder) Create(path, name string, next core.CreateNext) bool {
	r.record(core.OpCreate, path, name)
	if r.delegate {
		return next.Create(path, name)
	}
	return r.result
}

// Read implements core.Handler.
func (r *Recorder) Read(id string, next core.ReadNext) string {
	r.record(core.OpRead, id)
	if r.delegate {
		return next.Read(id)
	}
	return r.readData
}

// Write implements core.Handler.
func (r *Recorder) Write(id, data string, next core.WriteNext) bool {
	r.record(core.OpWrite, id, data)
	if r.delegate {
		return next.Write(id, data)
	}
	return r.result
}

// Delete implements core.Handler.
func (r *Recorder) Delete(id string, next core.DeleteNext) bool {
	r.record(core.OpDelete, id)
	if r.delegate {
		return next.Delete(id)
	}
	return r.result
}

// Clean implements core.Handler.
func (r *Recorder) Clean(maxLifetime int, next core.CleanNext) bool {
	r.record(core.OpClean, maxLifetime)
	if r.delegate {
		return next.Clean(maxLifetime)
	}
	return r.result
}

// Close records teardown.
func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
	r.log.Add(r.name + ".close")
	return nil
}
