package core

// Op identifies one of the five session operations. Every Op owns its own
// sequence inside a Chain.
type Op int

const (
	// OpCreate prepares storage for a named session space.
	OpCreate Op = iota
	// OpRead loads a serialized session payload.
	OpRead
	// OpWrite stores a serialized session payload.
	OpWrite
	// OpDelete permanently removes a session.
	OpDelete
	// OpClean purges sessions older than a maximum lifetime.
	OpClean

	opCount
)

// Ops lists every operation in declaration order.
var Ops = [opCount]Op{OpCreate, OpRead, OpWrite, OpDelete, OpClean}

// String returns the lower case operation name.
func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpDelete:
		return "delete"
	case OpClean:
		return "clean"
	default:
		return "unknown"
	}
}

// Handler is implemented by every session backend participating in a Chain.
//
// Each method receives the operation arguments plus a continuation bound to
// the handlers registered before this one. A handler may call the
// continuation before, after or instead of its own work, several times, or
// not at all (short-circuit). Results are passed back to the caller
// unmodified by the chain.
//
// Handlers that hold resources may implement io.Closer; Close runs when the
// handler is detached by Chain.Drain.
type Handler interface {
	Create(path, name string, next CreateNext) bool
	Read(id string, next ReadNext) string
	Write(id, data string, next WriteNext) bool
	Delete(id string, next DeleteNext) bool
	Clean(maxLifetime int, next CleanNext) bool
}

// CreateNext continues a Create call down the chain.
type CreateNext struct{ entry *Entry }

// Create invokes the remainder of the chain. The zero value behaves like
// Terminal.
func (n CreateNext) Create(path, name string) bool { return n.entry.Create(path, name) }

// ReadNext continues a Read call down the chain.
type ReadNext struct{ entry *Entry }

// Read invokes the remainder of the chain. The zero value behaves like
// Terminal.
func (n ReadNext) Read(id string) string { return n.entry.Read(id) }

// WriteNext continues a Write call down the chain.
type WriteNext struct{ entry *Entry }

// Write invokes the remainder of the chain. The zero value behaves like
// Terminal.
func (n WriteNext) Write(id, data string) bool { return n.entry.Write(id, data) }

// DeleteNext continues a Delete call down the chain.
type DeleteNext struct{ entry *Entry }

// Delete invokes the remainder of the chain. The zero value behaves like
// Terminal.
func (n DeleteNext) Delete(id string) bool { return n.entry.Delete(id) }

// CleanNext continues a Clean call down the chain.
type CleanNext struct{ entry *Entry }

// Clean invokes the remainder of the chain. The zero value behaves like
// Terminal.
func (n CleanNext) Clean(maxLifetime int) bool { return n.entry.Clean(maxLifetime) }
