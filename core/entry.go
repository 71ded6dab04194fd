package core

// Entry is one position in a chain sequence: the handler registered there
// and the entry that was on top when it was registered. Entries are never
// modified after creation, so a caller holding an Entry can traverse it
// while the owning Chain grows or drains.
//
// The invocation methods are nil-safe: a nil *Entry stands for the empty
// space below the terminal handler and returns the terminal's neutral
// results.
type Entry struct {
	handler Handler
	prev    *Entry
}

// Handler returns the handler owning this entry.
func (e *Entry) Handler() Handler { return e.handler }

// Prev returns the entry below this one, or nil for the terminal position.
func (e *Entry) Prev() *Entry { return e.prev }

// Create runs the handler at this entry with a continuation to the entry
// below it.
func (e *Entry) Create(path, name string) bool {
	if e == nil {
		return true
	}
	return e.handler.Create(path, name, CreateNext{entry: e.prev})
}

// Read runs the handler at this entry with a continuation to the entry
// below it.
func (e *Entry) Read(id string) string {
	if e == nil {
		return ""
	}
	return e.handler.Read(id, ReadNext{entry: e.prev})
}

// Write runs the handler at this entry with a continuation to the entry
// below it.
func (e *Entry) Write(id, data string) bool {
	if e == nil {
		return true
	}
	return e.handler.Write(id, data, WriteNext{entry: e.prev})
}

// Delete runs the handler at this entry with a continuation to the entry
// below it.
func (e *Entry) Delete(id string) bool {
	if e == nil {
		return true
	}
	return e.handler.Delete(id, DeleteNext{entry: e.prev})
}

// Clean runs the handler at this entry with a continuation to the entry
// below it.
func (e *Entry) Clean(maxLifetime int) bool {
	if e == nil {
		return true
	}
	return e.handler.Clean(maxLifetime, CleanNext{entry: e.prev})
}
