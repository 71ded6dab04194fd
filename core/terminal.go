package core

// Terminal is the base case of every chain. It never calls its
// continuation, keeps no state and performs no I/O; it only guarantees that
// each sequence has a bottom entry so invocation is always safe.
type Terminal struct{}

var _ Handler = Terminal{}

// Create reports success.
func (Terminal) Create(string, string, CreateNext) bool { return true }

// Read returns an empty payload.
func (Terminal) Read(string, ReadNext) string { return "" }

// Write reports success.
func (Terminal) Write(string, string, WriteNext) bool { return true }

// Delete reports success.
func (Terminal) Delete(string, DeleteNext) bool { return true }

// Clean reports success.
func (Terminal) Clean(int, CleanNext) bool { return true }
