package handler

import (
	"time"

	"github.com/hupe1980/sessionmesh/core"
	"github.com/hupe1980/sessionmesh/logging"
)

// LoggingHandler logs every call as it arrives, then the result returned by
// the rest of the chain and how long it took (at warn level on failure).
// Payloads are logged by size only unless LogPayloads is set.
type LoggingHandler struct {
	logger      logging.Logger
	logPayloads bool
}

var _ core.Handler = (*LoggingHandler)(nil)

// LoggingOptions configures a LoggingHandler.
type LoggingOptions struct {
	// LogPayloads includes raw session payloads in the log entries.
	LogPayloads bool
}

// NewLoggingHandler creates a LoggingHandler writing to logger.
func NewLoggingHandler(logger logging.Logger, optFns ...func(o *LoggingOptions)) *LoggingHandler {
	var opts LoggingOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return &LoggingHandler{logger: logging.OrNoOp(logger), logPayloads: opts.LogPayloads}
}

func (h *LoggingHandler) payload(data string) (string, any) {
	if h.logPayloads {
		return "data", data
	}
	return "bytes", len(data)
}

// Create logs and delegates.
func (h *LoggingHandler) Create(path, name string, next core.CreateNext) bool {
	h.logger.Debug("session create", "path", path, "name", name)
	start := time.Now()
	ok := next.Create(path, name)
	logging.LogHandlerCall(h.logger, "session create done", time.Since(start), ok, "name", name)
	return ok
}

// Read logs and delegates.
func (h *LoggingHandler) Read(id string, next core.ReadNext) string {
	h.logger.Debug("session read", "id", id)
	start := time.Now()
	data := next.Read(id)
	k, v := h.payload(data)
	logging.LogHandlerCall(h.logger, "session read done", time.Since(start), true, "id", id, k, v)
	return data
}

// Write logs and delegates.
func (h *LoggingHandler) Write(id, data string, next core.WriteNext) bool {
	k, v := h.payload(data)
	h.logger.Debug("session write", "id", id, k, v)
	start := time.Now()
	ok := next.Write(id, data)
	logging.LogHandlerCall(h.logger, "session write done", time.Since(start), ok, "id", id)
	return ok
}

// Delete logs and delegates.
func (h *LoggingHandler) Delete(id string, next core.DeleteNext) bool {
	h.logger.Debug("session delete", "id", id)
	start := time.Now()
	ok := next.Delete(id)
	logging.LogHandlerCall(h.logger, "session delete done", time.Since(start), ok, "id", id)
	return ok
}

// Clean logs and delegates.
func (h *LoggingHandler) Clean(maxLifetime int, next core.CleanNext) bool {
	h.logger.Debug("session gc", "max_lifetime", maxLifetime)
	start := time.Now()
	ok := next.Clean(maxLifetime)
	logging.LogHandlerCall(h.logger, "session gc done", time.Since(start), ok, "max_lifetime", maxLifetime)
	return ok
}
