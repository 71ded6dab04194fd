package core

import (
	"errors"
	"fmt"
	"io"
)

// Chain holds one LIFO sequence of entries per Op. All sequences always have
// the same length: Push and Drain touch every sequence together, so the same
// set of handlers backs every operation.
//
// Chain performs no locking. Callers sharing a Chain between goroutines
// must guard it themselves (see sessionmesh.Manager).
type Chain struct {
	seqs [opCount][]*Entry
}

// NewChain returns an empty, unseeded chain.
func NewChain() *Chain {
	return &Chain{}
}

// Seeded reports whether Terminal has been installed.
func (c *Chain) Seeded() bool {
	return len(c.seqs[OpCreate]) > 0
}

// Len returns the number of entries per sequence, Terminal included.
func (c *Chain) Len() int {
	return len(c.seqs[OpCreate])
}

// Handlers returns the number of registered handlers, Terminal excluded.
func (c *Chain) Handlers() int {
	if n := c.Len(); n > 0 {
		return n - 1
	}
	return 0
}

// Seed installs Terminal as the sole entry of every sequence.
func (c *Chain) Seed() error {
	if c.Seeded() {
		return ErrAlreadySeeded
	}
	for _, op := range Ops {
		c.seqs[op] = append(c.seqs[op], &Entry{handler: Terminal{}})
	}
	return nil
}

// ensureSeeded seeds an empty chain; it is a no-op otherwise.
func (c *Chain) ensureSeeded() {
	if !c.Seeded() {
		_ = c.Seed()
	}
}

// Push registers h on top of every sequence. The new entry of each sequence
// is bound to the previous top, so h sees the handler registered just
// before it (or Terminal) as its continuation. An unseeded chain is seeded
// first.
func (c *Chain) Push(h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	c.ensureSeeded()
	for _, op := range Ops {
		seq := c.seqs[op]
		c.seqs[op] = append(seq, &Entry{handler: h, prev: seq[len(seq)-1]})
	}
	return nil
}

// Top returns the current top entry of op's sequence, or nil when the chain
// is unseeded.
func (c *Chain) Top(op Op) *Entry {
	seq := c.seqs[op]
	if len(seq) == 0 {
		return nil
	}
	return seq[len(seq)-1]
}

// top seeds lazily and returns the top entry of op's sequence.
func (c *Chain) top(op Op) *Entry {
	c.ensureSeeded()
	return c.Top(op)
}

// Create invokes the top of the create sequence.
func (c *Chain) Create(path, name string) bool { return c.top(OpCreate).Create(path, name) }

// Read invokes the top of the read sequence.
func (c *Chain) Read(id string) string { return c.top(OpRead).Read(id) }

// Write invokes the top of the write sequence.
func (c *Chain) Write(id, data string) bool { return c.top(OpWrite).Write(id, data) }

// Delete invokes the top of the delete sequence.
func (c *Chain) Delete(id string) bool { return c.top(OpDelete).Delete(id) }

// Clean invokes the top of the clean sequence.
func (c *Chain) Clean(maxLifetime int) bool { return c.top(OpClean).Clean(maxLifetime) }

// Drain pops every entry, most recent first, until all sequences are
// empty. Each detached handler implementing io.Closer is closed once per
// registration; close failures are joined into the returned error and do
// not stop the drain. The chain is unseeded afterwards.
func (c *Chain) Drain() error {
	var errs []error
	for c.Len() > 0 {
		var detached Handler
		for _, op := range Ops {
			seq := c.seqs[op]
			detached = seq[len(seq)-1].handler
			seq[len(seq)-1] = nil
			c.seqs[op] = seq[:len(seq)-1]
		}
		if closer, ok := detached.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %T: %w", detached, err))
			}
		}
	}
	for _, op := range Ops {
		c.seqs[op] = nil
	}
	return errors.Join(errs...)
}
