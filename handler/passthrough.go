package handler

import "github.com/hupe1980/sessionmesh/core"

// Passthrough delegates every operation to its continuation unchanged.
type Passthrough struct{}

var _ core.Handler = Passthrough{}

// Create delegates.
func (Passthrough) Create(path, name string, next core.CreateNext) bool {
	return next.Create(path, name)
}

// Read delegates.
func (Passthrough) Read(id string, next core.ReadNext) string { return next.Read(id) }

// Write delegates.
func (Passthrough) Write(id, data string, next core.WriteNext) bool { return next.Write(id, data) }

// Delete delegates.
func (Passthrough) Delete(id string, next core.DeleteNext) bool { return next.Delete(id) }

// Clean delegates.
func (Passthrough) Clean(maxLifetime int, next core.CleanNext) bool {
	return next.Clean(maxLifetime)
}
